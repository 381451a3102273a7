package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"netmonitor/internal/history"
	"netmonitor/internal/metrics"
	"netmonitor/internal/models"
	"netmonitor/internal/monitor"
)

//go:embed static/*
var embeddedStatic embed.FS

const (
	defaultHistoryLimit  = 200
	defaultTimelineRange = 24 * time.Hour
	maxTimelineRange     = 30 * 24 * time.Hour
	maxTimelinePoints    = 500
)

// StatusSource is the monitor as seen by the HTTP layer.
type StatusSource interface {
	Read() models.NetworkStatus
	Subscribe(monitor.Observer) func()
	CheckNow(ctx context.Context) (models.NetworkStatus, error)
}

// HistorySource provides recorded connectivity samples.
type HistorySource interface {
	History() []models.ConnectivitySample
	HistoryN(n int) []models.ConnectivitySample
}

// Server wraps HTTP serving of API + static assets.
type Server struct {
	httpServer   *http.Server
	listener     net.Listener
	monitor      StatusSource
	storage      HistorySource
	gatherer     prometheus.Gatherer
	staticFS     fs.FS
	assetsDir    string
	historyLimit int
	clock        clock.Clock
	log          *zap.Logger

	mu      sync.Mutex
	closing chan struct{}
	streams sync.WaitGroup
}

// Option customises a Server.
type Option func(*Server)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAssetsDir serves files from dir under /assets/.
func WithAssetsDir(dir string) Option {
	return func(s *Server) { s.assetsDir = dir }
}

// WithClock sets the clock used for timeline ranges.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHistoryLimit caps the number of samples a single request may return.
func WithHistoryLimit(limit int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// New creates a configured HTTP server for the monitor.
func New(addr string, mon StatusSource, storage HistorySource, opts ...Option) *Server {
	staticFS, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		panic("static assets missing: " + err.Error())
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		monitor:      mon,
		storage:      storage,
		staticFS:     staticFS,
		historyLimit: defaultHistoryLimit,
		clock:        clock.New(),
		log:          zap.NewNop(),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("server")
	s.registerRoutes(mux)
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("http server listening", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts the server down and closes open status streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	select {
	case <-s.closing:
	default:
		close(s.closing)
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.streams.Wait()
	return err
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		data, err := fs.ReadFile(s.staticFS, "index.html")
		if err != nil {
			http.Error(w, "index missing", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}))
	if s.assetsDir != "" {
		assets := http.StripPrefix("/assets/", http.FileServer(http.Dir(s.assetsDir)))
		mux.Handle("/assets/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			assets.ServeHTTP(w, r)
		}))
	}
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/uptime", s.handleUptime)
	mux.HandleFunc("/api/timeline", s.handleTimeline)
	mux.HandleFunc("/api/check", s.handleCheck)
	mux.HandleFunc("/ws/status", s.handleStatusWS)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Read())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, s.historyLimit)
	writeJSON(w, http.StatusOK, s.storage.HistoryN(limit))
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	if raw := r.URL.Query().Get("range"); raw != "" {
		span, err := time.ParseDuration(raw)
		if err != nil || span <= 0 {
			writeError(w, http.StatusBadRequest, "invalid range")
			return
		}
		writeJSON(w, http.StatusOK, metrics.ComputeUptime(s.storage.History(), now.Add(-span), now))
		return
	}
	limit := parseLimit(r, s.historyLimit)
	writeJSON(w, http.StatusOK, metrics.ComputeUptime(s.storage.HistoryN(limit), time.Time{}, now))
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	span := defaultTimelineRange
	if raw := r.URL.Query().Get("range"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 || parsed > maxTimelineRange {
			writeError(w, http.StatusBadRequest, "invalid range")
			return
		}
		span = parsed
	}
	points := history.DefaultTimelinePoints
	if raw := r.URL.Query().Get("points"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxTimelinePoints {
			writeError(w, http.StatusBadRequest, "invalid points")
			return
		}
		points = parsed
	}

	end := s.clock.Now().UTC()
	start := end.Add(-span)
	// samples are written on change only, so the one in force at start may be old
	samples := s.storage.History()
	writeJSON(w, http.StatusOK, map[string]any{
		"range_start": start,
		"range_end":   end,
		"points":      history.BuildConnectivityTimeline(samples, start, end, points),
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status, err := s.monitor.CheckNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, status)
	case errors.Is(err, monitor.ErrDegraded), errors.Is(err, monitor.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusGatewayTimeout, err.Error())
	}
}

func parseLimit(r *http.Request, fallback int) int {
	if fallback <= 0 {
		return fallback
	}
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	if value > fallback {
		return fallback
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
