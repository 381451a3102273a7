package server

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"netmonitor/internal/models"
)

const (
	streamWriteTimeout = 5 * time.Second
	streamPongWait     = 60 * time.Second
	streamPingPeriod   = (streamPongWait * 9) / 10
	streamReadLimit    = 512

	messageHello  = "hello"
	messageStatus = "status"
)

var statusUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// streamMessage is the envelope written to status stream clients.
type streamMessage struct {
	Type    string                `json:"type"`
	Session string                `json:"session"`
	Status  *models.NetworkStatus `json:"status,omitempty"`
	SentAt  time.Time             `json:"sent_at"`
}

func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	select {
	case <-s.closing:
		s.mu.Unlock()
		_ = conn.Close()
		return
	default:
		s.streams.Add(1)
	}
	s.mu.Unlock()

	defer s.streams.Done()
	s.serveStatusConnection(conn, uuid.NewString())
}

// statusMailbox holds the newest status not yet written to a client.
// A put replaces any unread status, so a slow client skips intermediate
// statuses but always ends up with the current one.
type statusMailbox struct {
	mu      sync.Mutex
	pending *models.NetworkStatus
	ready   chan struct{}
}

func newStatusMailbox() *statusMailbox {
	return &statusMailbox{ready: make(chan struct{}, 1)}
}

func (m *statusMailbox) put(status models.NetworkStatus) (replaced bool) {
	m.mu.Lock()
	replaced = m.pending != nil
	m.pending = &status
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
	return replaced
}

func (m *statusMailbox) take() (models.NetworkStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return models.NetworkStatus{}, false
	}
	status := *m.pending
	m.pending = nil
	return status, true
}

// serveStatusConnection pushes published statuses to conn until the client
// goes away or the server shuts down.
func (s *Server) serveStatusConnection(conn *websocket.Conn, session string) {
	defer conn.Close()
	log := s.log.With(zap.String("session", session))
	log.Debug("status stream opened", zap.String("remote", conn.RemoteAddr().String()))
	defer log.Debug("status stream closed")

	mailbox := newStatusMailbox()
	unsubscribe := s.monitor.Subscribe(func(status models.NetworkStatus) {
		if mailbox.put(status) {
			log.Debug("status stream client lagging, coalescing update")
		}
	})
	defer unsubscribe()

	if err := s.writeStreamMessage(conn, streamMessage{Type: messageHello, Session: session}); err != nil {
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(streamReadLimit)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-mailbox.ready:
			status, ok := mailbox.take()
			if !ok {
				continue
			}
			msg := streamMessage{Type: messageStatus, Session: session, Status: &status}
			if err := s.writeStreamMessage(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(streamWriteTimeout))
			return
		case <-done:
			return
		}
	}
}

func (s *Server) writeStreamMessage(conn *websocket.Conn, msg streamMessage) error {
	msg.SentAt = s.clock.Now().UTC()
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return conn.WriteJSON(msg)
}
