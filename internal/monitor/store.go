package monitor

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"netmonitor/internal/config"
	"netmonitor/internal/models"
)

// ErrStoreClosed is returned by Apply once the store has been torn down.
var ErrStoreClosed = errors.New("status store closed")

// Observer receives every published status.
type Observer func(models.NetworkStatus)

// Patch derives a candidate status from the currently stored one.
type Patch func(current models.NetworkStatus) models.NetworkStatus

// Store owns the current NetworkStatus. It is the only writer: every update
// is classified, compared against the stored value and, when different,
// stored and delivered to subscribers before the next update starts.
//
// Observers run synchronously inside Apply and must not call Subscribe or
// Apply themselves; calling Read or an unsubscribe func is fine.
type Store struct {
	cfg config.MonitorConfig
	log *zap.Logger

	publishMu sync.Mutex
	closed    bool

	valueMu sync.RWMutex
	current models.NetworkStatus

	subsMu sync.RWMutex
	subs   map[uint64]Observer
	nextID uint64
}

// NewStore creates a store holding the default status.
func NewStore(cfg config.MonitorConfig, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		cfg:     cfg,
		log:     log,
		current: Classify(models.DefaultStatus(), cfg),
		subs:    make(map[uint64]Observer),
	}
}

// Read returns a snapshot of the current status.
func (s *Store) Read() models.NetworkStatus {
	s.valueMu.RLock()
	defer s.valueMu.RUnlock()
	return s.current
}

// Publish replaces the status with candidate unless the values are equal.
func (s *Store) Publish(candidate models.NetworkStatus) (models.NetworkStatus, error) {
	return s.Apply(func(models.NetworkStatus) models.NetworkStatus { return candidate })
}

// Apply merges patch against the stored status and publishes the result.
// It returns the status stored after the call.
func (s *Store) Apply(patch Patch) (models.NetworkStatus, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	if s.closed {
		return s.Read(), ErrStoreClosed
	}

	prev := s.Read()
	next := Classify(patch(prev), s.cfg)
	if next.Equal(prev) {
		return prev, nil
	}

	s.valueMu.Lock()
	s.current = next
	s.valueMu.Unlock()

	s.log.Debug("status changed",
		zap.Bool("online", next.Online),
		zap.Bool("poor", next.PoorConnection),
		zap.Stringp("effective_type", next.EffectiveType),
		zap.Float64p("latency_ms", next.Latency))

	for _, obs := range s.observers() {
		s.deliver(obs, next)
	}
	return next, nil
}

// Subscribe registers obs and immediately delivers the current status. The
// returned func removes the subscription; calling it more than once is safe.
func (s *Store) Subscribe(obs Observer) func() {
	if obs == nil {
		return func() {}
	}

	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = obs
	s.subsMu.Unlock()

	s.deliver(obs, s.Read())

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Close makes every later Apply a no-op and drops all subscribers.
func (s *Store) Close() {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.closed = true
	s.subsMu.Lock()
	s.subs = make(map[uint64]Observer)
	s.subsMu.Unlock()
}

// Subscribers returns the number of registered observers.
func (s *Store) Subscribers() int {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()
	return len(s.subs)
}

func (s *Store) observers() []Observer {
	s.subsMu.RLock()
	defer s.subsMu.RUnlock()

	out := make([]Observer, 0, len(s.subs))
	for _, obs := range s.subs {
		out = append(out, obs)
	}
	return out
}

func (s *Store) deliver(obs Observer, status models.NetworkStatus) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("status observer panicked", zap.Any("panic", r))
		}
	}()
	obs(status)
}
