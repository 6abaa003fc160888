package artifact

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)

// FileStore keeps artifacts as files under a single directory.
//
// The directory is created with mode 0700 and every artifact file is opened
// with mode 0600, so restrictive permissions hold from the first byte
// written. Erase overwrites file contents with random bytes before
// unlinking.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir. The directory is
// created lazily on the first Put.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Get returns the artifact's contents.
func (s *FileStore) Get(name string) ([]byte, error) {
	path := s.path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError{Name: name, Location: path}
		}
		return nil, fmt.Errorf("reading artifact %s: %w", name, err)
	}
	return data, nil
}

// Put writes the artifact. The file is created with owner-only permissions
// before any data is written; a pre-existing file is re-tightened to 0600
// and truncated first.
func (s *FileStore) Put(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	path := s.path(name)

	// O_CREATE applies 0600 at creation, so a fresh file is never readable
	// by others. A file that already exists keeps its old mode through
	// OpenFile, hence the explicit Chmod before writing.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0600)
	if err != nil {
		return fmt.Errorf("creating artifact %s: %w", name, err)
	}

	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return fmt.Errorf("restricting artifact %s: %w", name, err)
	}
	if err := f.Truncate(0); err != nil {
		_ = f.Close()
		return fmt.Errorf("truncating artifact %s: %w", name, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing artifact %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("syncing artifact %s: %w", name, err)
	}
	return f.Close()
}

// Erase overwrites the artifact with random bytes, then unlinks it.
func (s *FileStore) Erase(name string) error {
	path := s.path(name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return NotFoundError{Name: name, Location: path}
		}
		return fmt.Errorf("inspecting artifact %s: %w", name, err)
	}
	return Shred(path, 1)
}

// Exists reports whether the artifact file is present.
func (s *FileStore) Exists(name string) bool {
	_, err := os.Stat(s.path(name))
	return err == nil
}

// Location returns the artifact's filesystem path.
func (s *FileStore) Location(name string) string {
	return s.path(name)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, sanitizeName(name))
}

// sanitizeName keeps artifact names from escaping the store directory
func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return replacer.Replace(name)
}

// Shred overwrites a file's contents with random bytes for the given number
// of passes, then removes it. A zero-length file is simply removed. At
// least one overwrite pass always runs for non-empty files, so erasure is
// never silently skipped.
func Shred(path string, passes int) error {
	if passes < 1 {
		passes = 1
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	size := info.Size()
	if size == 0 {
		return os.Remove(path)
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	for pass := 1; pass <= passes; pass++ {
		if _, err := file.Seek(0, 0); err != nil {
			return err
		}
		if err := overwriteWithRandom(file, size); err != nil {
			return err
		}
		if err := file.Sync(); err != nil {
			return err
		}
	}

	_ = file.Close()

	return os.Remove(path)
}

func overwriteWithRandom(w io.Writer, size int64) error {
	const bufSize = 64 * 1024 // 64KB buffer

	buf := make([]byte, bufSize)
	remaining := size

	for remaining > 0 {
		writeSize := bufSize
		if remaining < int64(bufSize) {
			writeSize = int(remaining)
		}

		if _, err := rand.Read(buf[:writeSize]); err != nil {
			return err
		}

		if _, err := w.Write(buf[:writeSize]); err != nil {
			return err
		}

		remaining -= int64(writeSize)
	}

	return nil
}
