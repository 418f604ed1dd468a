package migration

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"floortrack/pkg/domain"
)

// KV is the flat key-value namespace the legacy application kept its data
// in. The engine only needs point reads of the known legacy keys and one
// write for the pre-migration backup.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
}

// FileKV implements KV over a single JSON file holding a string-keyed
// object, the shape produced by legacy data exports.
type FileKV struct {
	mu   sync.Mutex
	path string
}

// NewFileKV returns a KV backed by the JSON file at path. A missing file
// reads as an empty namespace.
func NewFileKV(path string) *FileKV {
	return &FileKV{path: path}
}

func (f *FileKV) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, domain.StorageError{Op: "kv read", Err: err}
	}
	entries := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, domain.StorageError{Op: "kv decode", Err: err}
	}
	return entries, nil
}

func (f *FileKV) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return nil, false, err
	}
	raw, ok := entries[key]
	if !ok {
		return nil, false, nil
	}
	return raw, true, nil
}

func (f *FileKV) Set(key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := f.load()
	if err != nil {
		return err
	}
	entries[key] = json.RawMessage(value)
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return domain.StorageError{Op: "kv encode", Err: err}
	}
	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return domain.StorageError{Op: "kv mkdir", Err: err}
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return domain.StorageError{Op: "kv write", Err: err}
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return domain.StorageError{Op: "kv rename", Err: err}
	}
	return nil
}

// MemoryKV implements KV in memory for tests.
type MemoryKV struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryKV returns an empty in-memory KV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[string][]byte)}
}

func (m *MemoryKV) Get(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	return nil
}
