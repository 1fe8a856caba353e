package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

const fileVersion = "1"

type file struct {
	Version  string   `json:"version"`
	Snapshot Snapshot `json:"snapshot"`
}

// Store persists a Snapshot as JSON. Writes are atomic and serialised
// across processes with a lock file next to the snapshot.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a Store for path, creating its directory.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("snapshot path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the snapshot file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the stored snapshot. A missing file yields an empty Snapshot.
func (s *Store) Load() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock := flock.New(s.lockPath())
	if err := lock.RLock(); err != nil {
		return Snapshot{}, fmt.Errorf("failed to acquire lock on %s: %w", lock.Path(), err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return Snapshot{}, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if f.Version != fileVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %q", f.Version)
	}
	return f.Snapshot, nil
}

// Save writes snap through a temporary file and rename while holding the lock.
func (s *Store) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(file{Version: fileVersion, Snapshot: snap}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	lock := flock.New(s.lockPath())
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", lock.Path(), err)
	}
	defer func() { _ = lock.Unlock() }()

	return atomicWrite(s.path, data)
}

func (s *Store) lockPath() string {
	return s.path + ".lock"
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}
	committed = true
	return nil
}
