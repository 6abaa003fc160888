package artifact

import "errors"

// Store persists named secret artifacts.
//
// Implementations must be safe for concurrent use. Names are flat
// identifiers ("master.key", "unseal.json"), not paths; the backend decides
// where and how the bytes live.
type Store interface {
	// Get returns the artifact's contents. A missing artifact returns
	// NotFoundError, distinguishable from read failures.
	Get(name string) ([]byte, error)

	// Put writes the artifact with owner-only access applied at creation
	// time. An existing artifact is truncated and rewritten in place.
	Put(name string, data []byte) error

	// Erase destroys the artifact. File-backed stores overwrite contents
	// with random bytes before unlinking. Erasing a missing artifact
	// returns NotFoundError.
	Erase(name string) error

	// Exists reports whether the artifact is present without reading it.
	Exists(name string) bool

	// Location returns a human-readable locator for the artifact, used in
	// error messages and logs ("missing password file at ...").
	Location(name string) string
}

// NotFoundError indicates that a named artifact does not exist in the store.
//
// Callers use this to tell "artifact missing" (a configuration condition,
// often a warning) apart from I/O failures (always errors).
type NotFoundError struct {
	// Name is the artifact name that was requested.
	Name string

	// Location is the backend-specific locator that was checked.
	Location string
}

// Error implements the error interface.
func (e NotFoundError) Error() string {
	if e.Location != "" {
		return "artifact not found: " + e.Name + " (" + e.Location + ")"
	}
	return "artifact not found: " + e.Name
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}
