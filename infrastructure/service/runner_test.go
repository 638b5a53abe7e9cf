package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainwatch/monitor/infrastructure/logging"
)

func newTestServer() *Server {
	logger := logging.New("monitor-test", "error", "text")
	health := NewDeepHealthChecker(time.Second)
	probes := NewProbeManager(0)
	return NewServer("monitor", "test", logger, health, probes)
}

func TestNewServerWiresCoreEndpoints(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	for _, path := range []string{"/healthz", "/livez", "/readyz", "/startupz", "/metrics", "/stats"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.NotEqual(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestStatsHandlerReturnsJSON(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats ProcessStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.NotEmpty(t, stats.CollectedAt)
}

func TestReadinessReflectsProbeManagerState(t *testing.T) {
	s := newTestServer()
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	s.probes.SetReady(true)

	resp, err = http.Get(srv.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunShutsDownOnStopCallback(t *testing.T) {
	s := newTestServer()
	stopped := make(chan struct{})

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		done <- s.Run(ctx, "127.0.0.1:0", 2*time.Second, func(context.Context) error {
			close(stopped)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	proc, err := os.FindProcess(os.Getpid())
	require.NoError(t, err)
	require.NoError(t, proc.Signal(syscall.SIGTERM))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after SIGTERM")
	}

	select {
	case <-stopped:
	default:
		t.Fatal("stop callback was not invoked")
	}
}
