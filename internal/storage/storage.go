package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"netmonitor/internal/models"
)

// HistoryFile is the name of the connectivity history file inside the data directory.
const HistoryFile = "connectivity.json"

// ConnectivityStorage persists published statuses as timestamped samples.
// The oldest samples are dropped once limit is exceeded. Samples are kept in
// memory by Record and written to disk by a background writer.
type ConnectivityStorage struct {
	mu      sync.RWMutex
	path    string
	limit   int
	clock   clock.Clock
	log     *zap.Logger
	history []models.ConnectivitySample

	writeMu   sync.Mutex
	pending   atomic.Bool
	dirty     chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once
}

// Option customises a ConnectivityStorage.
type Option func(*ConnectivityStorage)

// WithClock sets the clock used to timestamp samples.
func WithClock(c clock.Clock) Option {
	return func(s *ConnectivityStorage) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *ConnectivityStorage) {
		if l != nil {
			s.log = l
		}
	}
}

// NewConnectivityStorage initialises storage and loads existing samples if
// present. A limit of zero or less keeps every sample.
func NewConnectivityStorage(path string, limit int, opts ...Option) (*ConnectivityStorage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data directory: %w", err)
	}
	s := &ConnectivityStorage{
		path:  path,
		limit: limit,
		clock: clock.New(),
		log:   zap.NewNop(),
		dirty: make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	s.trimLocked()
	go s.writeLoop()
	return s, nil
}

// Record appends status as a sample taken now and schedules a write. After
// Close the history is written before Record returns.
func (s *ConnectivityStorage) Record(status models.NetworkStatus) error {
	s.mu.Lock()
	s.history = append(s.history, models.NewConnectivitySample(status, s.clock.Now()))
	s.trimLocked()
	s.mu.Unlock()
	s.pending.Store(true)

	if s.closed.Load() {
		return s.Flush()
	}
	select {
	case s.dirty <- struct{}{}:
	default:
	}
	return nil
}

// Flush writes the history to disk if samples were recorded since the last
// write.
func (s *ConnectivityStorage) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.pending.Swap(false) {
		return nil
	}
	bytes, err := json.MarshalIndent(s.History(), "", "  ")
	if err == nil {
		err = s.writeFile(bytes)
	} else {
		err = fmt.Errorf("encode connectivity history: %w", err)
	}
	if err != nil {
		s.pending.Store(true)
	}
	return err
}

// Close stops the background writer and flushes pending samples.
func (s *ConnectivityStorage) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.stop)
		<-s.done
	})
	return s.Flush()
}

func (s *ConnectivityStorage) writeLoop() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.dirty:
			if err := s.Flush(); err != nil {
				s.log.Error("persist connectivity history", zap.Error(err))
			}
		}
	}
}

// Observe records status and logs failures. It matches the status observer
// signature so storage can subscribe to the monitor directly.
func (s *ConnectivityStorage) Observe(status models.NetworkStatus) {
	if err := s.Record(status); err != nil {
		s.log.Error("record connectivity sample", zap.Error(err))
	}
}

// Latest returns the most recent sample if one exists.
func (s *ConnectivityStorage) Latest() (models.ConnectivitySample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return models.ConnectivitySample{}, false
	}
	return s.history[len(s.history)-1], true
}

// History returns a copy of the persisted samples.
func (s *ConnectivityStorage) History() []models.ConnectivitySample {
	return s.HistoryN(0)
}

// HistoryN returns a copy of the newest n samples, or all of them when n <= 0.
func (s *ConnectivityStorage) HistoryN(n int) []models.ConnectivitySample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.history
	if n > 0 && n < len(src) {
		src = src[len(src)-n:]
	}
	out := make([]models.ConnectivitySample, len(src))
	copy(out, src)
	return out
}

// Path returns the history file location.
func (s *ConnectivityStorage) Path() string {
	return s.path
}

func (s *ConnectivityStorage) trimLocked() {
	if s.limit > 0 && len(s.history) > s.limit {
		drop := len(s.history) - s.limit
		s.history = append([]models.ConnectivitySample(nil), s.history[drop:]...)
	}
}

func (s *ConnectivityStorage) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.history = nil
			return nil
		}
		return fmt.Errorf("read connectivity history: %w", err)
	}
	if len(data) == 0 {
		s.history = nil
		return nil
	}

	var entries []models.ConnectivitySample
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse connectivity history: %w", err)
	}
	s.history = entries
	s.log.Debug("loaded connectivity history", zap.String("path", s.path), zap.Int("samples", len(entries)))
	return nil
}

func (s *ConnectivityStorage) writeFile(bytes []byte) error {
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, bytes, 0o644); err != nil {
		return fmt.Errorf("write temp connectivity history: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace connectivity history file: %w", err)
	}
	return nil
}
