package ident

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"floortrack/pkg/domain"
)

// FileBackend stores identity state as a small JSON document on disk.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to the given path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads identity state, reporting absence rather than erroring when the
// file does not exist yet.
func (b *FileBackend) Load() (State, bool, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, domain.StorageError{Op: "read identity", Err: err}
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, false, domain.StorageError{Op: "decode identity", Err: err}
	}
	return state, true, nil
}

// Save writes identity state atomically via a rename.
func (b *FileBackend) Save(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return domain.StorageError{Op: "encode identity", Err: err}
	}
	if dir := filepath.Dir(b.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return domain.StorageError{Op: "create identity dir", Err: err}
		}
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return domain.StorageError{Op: "write identity", Err: err}
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return domain.StorageError{Op: "rename identity", Err: err}
	}
	return nil
}

// MemoryBackend keeps identity state in memory only, for tests and
// ephemeral environments.
type MemoryBackend struct {
	mu    sync.Mutex
	state State
	set   bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

// Load returns the stored state if any.
func (b *MemoryBackend) Load() (State, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.set, nil
}

// Save replaces the stored state.
func (b *MemoryBackend) Save(state State) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = state
	b.set = true
	return nil
}
