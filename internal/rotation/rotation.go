// Package rotation issues fresh ephemeral credentials for registered
// services against the secret store. Each service is bound to a stable
// AppRole-style role: rotation mints a new secret ID for the role while the
// previous one keeps working until its TTL lapses, so consumers never lose
// access mid-rollout. The fleet-wide shared signing secret is the exception:
// rotating it cuts over in a single write and requires explicit operator
// confirmation.
//
// Every completed rotation is recorded in an append-only ledger that holds
// correlation data only (role ID and a secret-ID prefix), never full secret
// material.
package rotation

// Target is one registered service eligible for rotation and provisioning.
type Target struct {
	Service string // logical service name
	Role    string // role name on the store, defaults to the service name
	Policy  string // policy bound to the role at provisioning time
}

// Status classifies the outcome of one target within a batch.
type Status string

const (
	StatusRotated     Status = "rotated"
	StatusProvisioned Status = "provisioned"
	StatusSkipped     Status = "skipped"
	StatusFailed      Status = "failed"
)

// ServiceResult is the outcome for a single target.
type ServiceResult struct {
	Service        string
	RoleID         string
	SecretIDPrefix string
	Status         Status
	Message        string
}

// Result aggregates per-target outcomes for a rotation or provisioning run.
// Targets are independent, so a Result can mix successes and failures.
type Result struct {
	Outcomes    []ServiceResult
	Rotated     int
	Provisioned int
	Skipped     int
	Failed      int
}

func (r *Result) add(outcome ServiceResult) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.Status {
	case StatusRotated:
		r.Rotated++
	case StatusProvisioned:
		r.Provisioned++
	case StatusSkipped:
		r.Skipped++
	case StatusFailed:
		r.Failed++
	}
}

// Ok reports whether the run completed without any failed target.
func (r *Result) Ok() bool {
	return r.Failed == 0
}
