package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/config"
)

func proberFor(t *testing.T, target string) *HTTPProber {
	t.Helper()
	cfg := config.DefaultMonitorConfig()
	cfg.ProbeTarget = target
	cfg.ProbeTimeoutMs = 500
	p, err := NewHTTPProber(cfg)
	require.NoError(t, err)
	return p
}

func TestHTTPProber_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/assets/ping.txt", r.URL.Path)
		assert.Equal(t, "true", r.Header.Get(HeartbeatHeader))
		time.Sleep(50 * time.Millisecond)
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	p := proberFor(t, srv.URL+"/assets/ping.txt")
	res, err := p.Check(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.LatencyMs, 50.0)
	assert.Less(t, res.LatencyMs, 1800.0)
}

func TestHTTPProber_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := proberFor(t, srv.URL).Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)

	var probeErr *ProbeError
	require.True(t, errors.As(err, &probeErr))
	assert.Equal(t, http.StatusServiceUnavailable, probeErr.StatusCode)
}

func TestHTTPProber_RedirectIsFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := proberFor(t, srv.URL+"/old").Check(context.Background())
	assert.NoError(t, err)
}

func TestHTTPProber_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := proberFor(t, url).Check(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestHTTPProber_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := proberFor(t, srv.URL).Check(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
}
