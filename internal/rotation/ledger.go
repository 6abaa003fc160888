package rotation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Entry kinds distinguish per-service credential rotations from fleet-wide
// shared secret cutovers in history listings.
const (
	KindEphemeral = "ephemeral"
	KindShared    = "shared"
)

// Entry is one append-only rotation record. It carries enough to correlate
// an issuance with a point in time and nothing that could be replayed: the
// secret ID appears only as a short prefix.
type Entry struct {
	ID             string    `json:"id"`
	Service        string    `json:"service"`
	RoleID         string    `json:"role_id,omitempty"`
	SecretIDPrefix string    `json:"secret_id_prefix,omitempty"`
	Kind           string    `json:"kind"`
	Timestamp      time.Time `json:"timestamp"`
}

// Ledger records rotation events and answers history queries.
type Ledger interface {
	Append(entry *Entry) error
	History(service string, limit int) ([]Entry, error)
	AllHistory(limit int) ([]Entry, error)
}

// FileLedger implements Ledger as one JSON file per entry, grouped in a
// per-service directory. Directories are 0700 and files 0600 so history
// stays private to the operating account.
type FileLedger struct {
	baseDir string
	mu      sync.RWMutex
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger creates a ledger rooted at baseDir. The directory is created
// lazily on first append.
func NewFileLedger(baseDir string) *FileLedger {
	return &FileLedger{baseDir: baseDir}
}

// Append persists a new entry. A missing ID or timestamp is filled in here
// so callers only describe the event.
func (l *FileLedger) Append(entry *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Service == "" {
		return fmt.Errorf("ledger entry has no service name")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.Kind == "" {
		entry.Kind = KindEphemeral
	}

	dir := filepath.Join(l.baseDir, sanitizeName(entry.Service))
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger entry: %w", err)
	}

	// Timestamp plus ID prefix keeps filenames sortable and collision-free
	// even when two rotations land in the same second.
	name := fmt.Sprintf("%s-%s.json", entry.Timestamp.Format("20060102-150405"), entry.ID[:8])
	if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}

	return nil
}

// History returns entries for one service, newest first. A limit of zero or
// less returns everything. An unknown service yields an empty slice.
func (l *FileLedger) History(service string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := l.readService(sanitizeName(service))
	if err != nil {
		return nil, err
	}
	return trimEntries(entries, limit), nil
}

// AllHistory returns entries across every service, newest first.
func (l *FileLedger) AllHistory(limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	serviceDirs, err := os.ReadDir(l.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger directory: %w", err)
	}

	var all []Entry
	for _, dir := range serviceDirs {
		if !dir.IsDir() {
			continue
		}
		entries, err := l.readService(dir.Name())
		if err != nil {
			continue // skip unreadable service directories
		}
		all = append(all, entries...)
	}

	return trimEntries(all, limit), nil
}

// readService loads every entry under one service directory. Callers hold
// the read lock.
func (l *FileLedger) readService(dirName string) ([]Entry, error) {
	dir := filepath.Join(l.baseDir, dirName)

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("failed to read ledger directory: %w", err)
	}

	var entries []Entry
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			continue // skip files that can't be read
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue // skip invalid JSON files
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// trimEntries sorts newest-first and applies the limit.
func trimEntries(entries []Entry, limit int) []Entry {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries
}

// sanitizeName replaces characters that might be problematic in filenames
func sanitizeName(name string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"\"", "-",
		"<", "-",
		">", "-",
		"|", "-",
		" ", "_",
	)
	return replacer.Replace(name)
}
