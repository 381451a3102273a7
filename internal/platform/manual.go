package platform

import (
	"context"
	"strings"
	"sync"
)

// Manual is a platform driven by explicit calls. Embedders use it to bridge
// notifications from their own environment; tests use it to simulate one.
type Manual struct {
	caps Capabilities

	mu        sync.RWMutex
	online    bool
	linkType  string
	onlineSub map[chan struct{}]struct{}
	linkSub   map[chan struct{}]struct{}
}

var _ Platform = (*Manual)(nil)

// NewManual creates a manual platform exposing caps. It starts online with
// an unknown link type.
func NewManual(caps Capabilities) *Manual {
	return &Manual{
		caps:      caps,
		online:    true,
		onlineSub: make(map[chan struct{}]struct{}),
		linkSub:   make(map[chan struct{}]struct{}),
	}
}

func (m *Manual) Capabilities() Capabilities {
	return m.caps
}

func (m *Manual) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

func (m *Manual) LinkType() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.linkType
}

// SetOnline records the online flag and signals a transition. Sends never
// block, so they happen under the lock that also guards channel closing.
func (m *Manual) SetOnline(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = online
	for ch := range m.onlineSub {
		notify(ch)
	}
}

// SetLinkType records the link class and signals a change.
func (m *Manual) SetLinkType(linkType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkType = strings.ToLower(strings.TrimSpace(linkType))
	for ch := range m.linkSub {
		notify(ch)
	}
}

func (m *Manual) WatchOnline(ctx context.Context) (<-chan struct{}, error) {
	if !m.caps.OnlineEvents {
		return nil, ErrUnsupported
	}
	return m.watch(ctx, m.onlineSub), nil
}

func (m *Manual) WatchLinkType(ctx context.Context) (<-chan struct{}, error) {
	if !m.caps.LinkTypeEvents {
		return nil, ErrUnsupported
	}
	return m.watch(ctx, m.linkSub), nil
}

func (m *Manual) watch(ctx context.Context, subs map[chan struct{}]struct{}) <-chan struct{} {
	ch := make(chan struct{}, 1)
	m.mu.Lock()
	subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(subs, ch)
		close(ch)
		m.mu.Unlock()
	}()
	return ch
}
