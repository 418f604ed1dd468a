// Package ident provides the device identity and Lamport clock backing
// replication metadata. Identity survives restarts so the Lamport counter
// never moves backwards for a given device.
package ident

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"floortrack/pkg/domain"
)

var _ domain.Clock = (*Service)(nil)

// State is the persisted identity of one device.
type State struct {
	DeviceID    string `json:"deviceId"`
	LastLamport int64  `json:"lastLamport"`
}

// Backend loads and saves identity state.
type Backend interface {
	Load() (State, bool, error)
	Save(State) error
}

// Service issues entity IDs and strictly increasing Lamport timestamps for
// one device. Safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	backend Backend
	state   State
	nowFn   func() time.Time
	log     *zap.Logger
}

// NewService loads the device identity from the backend, minting a fresh
// device ID on first run. A nil logger means no-op logging.
func NewService(backend Backend, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if backend == nil {
		backend = NewMemoryBackend()
	}
	state, ok, err := backend.Load()
	if err != nil {
		return nil, err
	}
	if !ok || state.DeviceID == "" {
		state.DeviceID = uuid.NewString()
		if err := backend.Save(state); err != nil {
			return nil, err
		}
		log.Info("minted device identity", zap.String("deviceId", state.DeviceID))
	}
	return &Service{
		backend: backend,
		state:   state,
		nowFn:   func() time.Time { return time.Now().UTC() },
		log:     log,
	}, nil
}

// NewID returns a fresh entity identifier.
func (s *Service) NewID() string { return uuid.NewString() }

// DeviceID returns the stable identifier of this device.
func (s *Service) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.DeviceID
}

// NextLamport advances the clock: the greater of last+1 and the wall clock
// in milliseconds. The new value is persisted before it is handed out, so a
// crash cannot reissue a timestamp.
func (s *Service) NextLamport() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.nowFn().UnixMilli()
	if next <= s.state.LastLamport {
		next = s.state.LastLamport + 1
	}
	s.state.LastLamport = next
	if err := s.backend.Save(s.state); err != nil {
		// A failed flush costs durability of the counter, not correctness of
		// this process; the in-memory value still only moves forward.
		s.log.Warn("persist lamport counter", zap.Error(err))
	}
	return next
}

// Observe folds a timestamp seen on a remote record into the clock so later
// local events order after it.
func (s *Service) Observe(remote int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remote <= s.state.LastLamport {
		return
	}
	s.state.LastLamport = remote
	if err := s.backend.Save(s.state); err != nil {
		s.log.Warn("persist lamport counter", zap.Error(err))
	}
}
