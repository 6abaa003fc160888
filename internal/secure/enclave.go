package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer provides memory-safe storage for sensitive data. It wraps
// memguard.Enclave to encrypt secrets at rest in memory and protect them
// from swapping via mlock.
type Buffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy() calls and prevents use after
	// destroy
	destroyed bool
}

// NewBuffer creates a protected buffer from secret bytes. The input is
// copied into a protected region; the caller keeps ownership of data and
// should wipe it afterwards.
func NewBuffer(data []byte) (*Buffer, error) {
	// The enclave encrypts the data, attempts to mlock the backing pages,
	// and places guard pages around them.
	enclave := memguard.NewEnclave(data)

	return &Buffer{
		enclave:   enclave,
		destroyed: false,
	}, nil
}

// NewBufferFromString creates a protected buffer from a secret string.
func NewBufferFromString(s string) (*Buffer, error) {
	return NewBuffer([]byte(s))
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done.
// Prefer WithBytes, which bounds the plaintext lifetime for you.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		// Return an empty locked buffer if already destroyed
		return memguard.NewBufferFromBytes([]byte{}), nil
	}

	return b.enclave.Open()
}

// WithBytes opens the enclave, passes the plaintext to fn, and wipes the
// opened copy before returning. The slice is only valid inside fn; callers
// must not retain it.
func (b *Buffer) WithBytes(fn func([]byte) error) error {
	locked, err := b.Open()
	if err != nil {
		return err
	}
	defer locked.Destroy()

	return fn(locked.Bytes())
}

// Destroy marks this Buffer as destroyed and prevents further use. The
// underlying enclave data stays encrypted at rest, so dropping the
// reference is safe; this method only guards against accidental reuse.
//
// Idempotent. After Destroy(), Open() returns an empty buffer.
//
// For complete cleanup of all memguard state at application exit, call
// memguard.Purge() in a defer in main().
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}

	b.enclave = nil
	b.destroyed = true
}

// Wipe overwrites a byte slice in place. Use on any transient plaintext
// copy the enclave does not manage.
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
