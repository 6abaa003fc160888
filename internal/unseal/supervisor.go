package unseal

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	dserrors "github.com/tendersight/vaultops/internal/errors"
	"github.com/tendersight/vaultops/internal/logging"
)

// Supervisor runs the secret store server as a child process and stays its
// parent for the whole run. Callers block in Wait; SIGINT and SIGTERM are
// forwarded so the store shuts down before this process does.
type Supervisor struct {
	command []string
	logger  *logging.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	waitOnce sync.Once
	waitErr  error
}

// NewSupervisor prepares a supervisor for the given store command line.
func NewSupervisor(command []string, logger *logging.Logger) *Supervisor {
	return &Supervisor{
		command: command,
		logger:  logger,
	}
}

// Start launches the store process with inherited stdio.
func (s *Supervisor) Start(ctx context.Context) error {
	if len(s.command) == 0 {
		return dserrors.ConfigError{
			Field:      "store.command",
			Message:    "no store command configured",
			Suggestion: "Set 'store.command' in vaultops.yaml (e.g. [vault, server, -config=/etc/vault.hcl])",
		}
	}

	name := s.command[0]
	if _, err := exec.LookPath(name); err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("Store binary '%s' not found in PATH", name),
			Suggestion: "Install the store server or correct 'store.command' in vaultops.yaml",
			Err:        err,
		}
	}

	cmd := exec.CommandContext(ctx, name, s.command[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		return dserrors.CommandError{
			Command:    strings.Join(s.command, " "),
			Message:    err.Error(),
			Suggestion: "Check the store binary and its arguments",
		}
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	s.logger.Info("Store process started (pid %d)", cmd.Process.Pid)
	return nil
}

// Running reports whether a store process has been started.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Wait blocks until the store process exits, forwarding SIGINT and SIGTERM
// to it while it runs. The child's exit code comes back so callers can
// propagate it as their own.
func (s *Supervisor) Wait() (int, error) {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil {
		return 1, fmt.Errorf("store process was never started")
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() { done <- s.reap() }()

	for {
		select {
		case sig := <-signals:
			s.logger.Info("Forwarding %s to the store process", sig)
			_ = cmd.Process.Signal(sig)
		case err := <-done:
			if err != nil {
				if exitError, ok := err.(*exec.ExitError); ok {
					// Preserve the exit code from the store process
					if status, ok := exitError.Sys().(syscall.WaitStatus); ok {
						return status.ExitStatus(), nil
					}
					return 1, nil
				}
				return 1, err
			}
			return 0, nil
		}
	}
}

// Terminate asks the store process to exit and reaps it. Used when startup
// fails and the child would otherwise be orphaned.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}

	_ = cmd.Process.Signal(syscall.SIGTERM)
	_ = s.reap()
}

// reap waits for the child exactly once; Wait and Terminate may both land
// here.
func (s *Supervisor) reap() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()

	s.waitOnce.Do(func() { s.waitErr = cmd.Wait() })
	return s.waitErr
}
