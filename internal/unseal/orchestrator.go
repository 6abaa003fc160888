// Package unseal drives the secret store from process start to an unsealed,
// supervised steady state.
//
// The orchestrator walks one path: start the store process, wait for its API
// to answer, inspect initialization and seal state, then decrypt the stored
// key share and submit it. Whatever the unseal outcome, the store process
// stays supervised. Missing key material or an unmet share threshold leaves
// the store sealed but running, so an operator can fix things without a
// crash loop.
package unseal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/health"
	"github.com/tendersight/vaultops/internal/keyvault"
	"github.com/tendersight/vaultops/internal/logging"
	"github.com/tendersight/vaultops/internal/storeapi"
	"github.com/tendersight/vaultops/pkg/artifact"
)

// State is the orchestrator's position in the store lifecycle.
type State int

const (
	// StateStopped means no store process has been started yet.
	StateStopped State = iota

	// StateStarting means the store process is launched but not answering.
	StateStarting

	// StateReadySealed means the store answers its API and reports sealed.
	StateReadySealed

	// StateReadyUninitialized means the store has no backend data yet.
	// Initialization is an operator action, never automated here.
	StateReadyUninitialized

	// StateUnsealing means a key share submission is in flight.
	StateUnsealing

	// StateUnsealed means the store accepted the share and serves requests.
	StateUnsealed

	// StateFailed means the store process never became usable.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReadySealed:
		return "ready-sealed"
	case StateReadyUninitialized:
		return "ready-uninitialized"
	case StateUnsealing:
		return "unsealing"
	case StateUnsealed:
		return "unsealed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	// DefaultReadyAttempts and DefaultReadyInterval bound the startup poll.
	// A store that answers nothing for a full minute is treated as failed.
	DefaultReadyAttempts = 30
	DefaultReadyInterval = 2 * time.Second
)

// ErrThresholdNotMet reports a share submission the store accepted while
// remaining sealed. Resubmitting the same share cannot change the outcome,
// so the orchestrator never retries it.
var ErrThresholdNotMet = errors.New("store still sealed after key share submission")

// Options tunes the readiness poll. Zero values select the defaults.
type Options struct {
	ReadyAttempts int
	ReadyInterval time.Duration
}

// Orchestrator owns the unseal sequence and the store process supervision.
type Orchestrator struct {
	store      storeapi.Client
	vault      *keyvault.Vault
	supervisor *Supervisor
	logger     *logging.Logger
	metrics    *health.Recorder

	readyAttempts int
	readyInterval time.Duration

	mu    sync.Mutex
	state State
}

// New wires an orchestrator. The supervisor may be nil when the store
// process is managed elsewhere and only Unseal will be called; Run requires
// one.
func New(store storeapi.Client, vault *keyvault.Vault, supervisor *Supervisor, logger *logging.Logger, opts Options) *Orchestrator {
	if opts.ReadyAttempts <= 0 {
		opts.ReadyAttempts = DefaultReadyAttempts
	}
	if opts.ReadyInterval <= 0 {
		opts.ReadyInterval = DefaultReadyInterval
	}

	return &Orchestrator{
		store:         store,
		vault:         vault,
		supervisor:    supervisor,
		logger:        logger,
		metrics:       health.NewRecorder(),
		readyAttempts: opts.ReadyAttempts,
		readyInterval: opts.ReadyInterval,
		state:         StateStopped,
	}
}

// State reports the orchestrator's current lifecycle position.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(next State) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.mu.Unlock()

	if prev != next {
		o.logger.Debug("Orchestrator state: %s -> %s", prev, next)
	}
}

// Run starts the store process, brings it toward unsealed, and supervises it
// until it exits. The returned int is the store's own exit code so callers
// can propagate it. Conditions that leave the store sealed but alive are
// reported and supervision continues; only a store that never starts
// answering is terminated.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	o.setState(StateStarting)

	if err := o.supervisor.Start(ctx); err != nil {
		o.setState(StateFailed)
		return 1, err
	}

	status, err := o.AwaitReady(ctx)
	if err != nil {
		o.setState(StateFailed)
		o.logger.Error("Store never became ready, stopping the process")
		o.supervisor.Terminate()
		return 1, err
	}

	if err := o.settle(ctx, status); err != nil {
		// The store process itself is healthy; only the unseal sequence
		// failed. Keep supervising so diagnostics stay reachable.
		o.logger.Error("%v", dserrors.SimplifyError(err))
	}

	return o.supervisor.Wait()
}

// Unseal runs the unseal sequence against an already-running store.
func (o *Orchestrator) Unseal(ctx context.Context) error {
	status, err := o.store.SealStatus(ctx)
	if err != nil {
		o.setState(StateFailed)
		return err
	}

	return o.settle(ctx, status)
}

// AwaitReady polls the store's status endpoint until it answers. The store
// process is young at this point, so connection errors are expected and
// logged only at debug level until the final attempt fails.
func (o *Orchestrator) AwaitReady(ctx context.Context) (*storeapi.StoreStatus, error) {
	var lastErr error

	for attempt := 1; attempt <= o.readyAttempts; attempt++ {
		o.metrics.RecordReadinessPoll()
		status, err := o.store.SealStatus(ctx)
		if err == nil {
			o.logger.Debug("Store answered after %d attempt(s)", attempt)
			return status, nil
		}
		lastErr = err
		o.logger.Debug("Store not ready (attempt %d/%d): %v", attempt, o.readyAttempts, err)

		if attempt == o.readyAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.readyInterval):
		}
	}

	return nil, dserrors.UserError{
		Message:    fmt.Sprintf("Store did not answer after %d attempts", o.readyAttempts),
		Suggestion: "Check the store process logs for startup errors",
		Err:        lastErr,
	}
}

// settle inspects the store status and performs whatever unseal work that
// state calls for. Missing key material leaves the store sealed with a
// warning rather than an error: the operator installs the material and
// reruns, while the store keeps serving diagnostics.
func (o *Orchestrator) settle(ctx context.Context, status *storeapi.StoreStatus) error {
	o.metrics.RecordSealState(status.Sealed)

	if !status.Initialized {
		o.setState(StateReadyUninitialized)
		o.metrics.RecordUnsealOutcome(health.OutcomeUninitialized)
		o.logger.Warn("Store is reachable but not initialized")
		o.logger.Warn("Initialize it with the store's own tooling, then rerun 'vaultops unseal'")
		return nil
	}

	if !status.Sealed {
		// Rerunning against an unsealed store is a no-op.
		o.setState(StateUnsealed)
		o.metrics.RecordUnsealOutcome(health.OutcomeAlreadyUnsealed)
		o.logger.Info("Store is already unsealed (version %s)", status.Version)
		return nil
	}

	o.setState(StateReadySealed)
	o.logger.Info("Store is sealed, submitting the stored key share")

	key, err := o.vault.DecryptUnsealKey()
	if err != nil {
		if artifact.IsNotFound(err) {
			o.metrics.RecordUnsealOutcome(health.OutcomeMissingMaterial)
			o.logger.Warn("%v", err)
			o.logger.Warn("Store stays sealed. Run 'vaultops keygen' and 'vaultops encrypt' to install key material")
			return nil
		}
		o.metrics.RecordUnsealOutcome(health.OutcomeFailed)
		return err
	}
	defer key.Destroy()

	o.setState(StateUnsealing)

	var after *storeapi.StoreStatus
	err = key.WithBytes(func(share []byte) error {
		var submitErr error
		after, submitErr = o.store.Unseal(ctx, string(share))
		return submitErr
	})
	if err != nil {
		o.setState(StateReadySealed)
		o.metrics.RecordUnsealOutcome(health.OutcomeFailed)
		return err
	}

	if after.Sealed {
		o.setState(StateReadySealed)
		o.metrics.RecordUnsealOutcome(health.OutcomeThresholdNotMet)
		return dserrors.UserError{
			Message:    fmt.Sprintf("Store accepted the share but stays sealed (%d of %d shares)", after.Progress, after.Threshold),
			Suggestion: "The store wants more key shares than this tool manages. Submit the remaining shares by hand",
			Err:        ErrThresholdNotMet,
		}
	}

	o.setState(StateUnsealed)
	o.metrics.RecordSealState(false)
	o.metrics.RecordUnsealOutcome(health.OutcomeUnsealed)
	o.logger.Info("Store unsealed")
	return nil
}
