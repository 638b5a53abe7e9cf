package service

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/chainwatch/monitor/infrastructure/logging"
)

// ProcessStats is a gopsutil-backed snapshot of process/host resource usage,
// exposed on /stats for operators diagnosing a stuck scheduler or a leaking
// chain client pool.
type ProcessStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	Goroutines    int     `json:"goroutines"`
	CollectedAt   string  `json:"collected_at"`
}

// collectStats samples host CPU/memory via gopsutil. Best-effort: a failed
// sample leaves the corresponding field at zero rather than failing the
// request.
func collectStats() ProcessStats {
	stats := ProcessStats{CollectedAt: time.Now().UTC().Format(time.RFC3339)}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.MemUsedBytes = vm.Used
		stats.MemTotalBytes = vm.Total
	}
	return stats
}

// Server bundles the monitor's HTTP surface: health/readiness/liveness
// probes, Prometheus scraping, process stats, and the admin API mounted by
// the caller via Mount.
type Server struct {
	router  chi.Router
	health  *DeepHealthChecker
	probes  *ProbeManager
	logger  *logging.Logger
	started time.Time
}

// NewServer builds the base router with health/metrics/stats endpoints
// already wired. Callers mount their admin API routes on Router() before
// calling Run.
func NewServer(serviceName, version string, logger *logging.Logger, health *DeepHealthChecker, probes *ProbeManager) *Server {
	r := chi.NewRouter()
	s := &Server{router: r, health: health, probes: probes, logger: logger, started: time.Now()}

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/healthz", DeepHealthHandler(health, serviceName, version, false, func() time.Duration {
		return time.Since(s.started)
	}))
	r.Get("/livez", probes.LivenessHandler())
	r.Get("/readyz", probes.ReadinessHandler())
	r.Get("/startupz", probes.StartupHandler())
	r.Get("/stats", s.statsHandler)

	return s
}

// Router returns the underlying chi router so callers can mount additional
// routes (the admin API) before Run.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(collectStats())
}

// Run starts the HTTP server on addr and blocks until SIGINT/SIGTERM, then
// shuts down gracefully within shutdownTimeout. stop is invoked after the
// HTTP server has stopped accepting new connections, giving the caller a
// chance to stop the scheduler/recovery loops before the process exits.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration, stop func(context.Context) error) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serveErr := make(chan error, 1)
	go func() {
		s.logger.WithContext(ctx).WithField("addr", addr).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-sigCh:
		s.logger.WithContext(ctx).Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("http server shutdown error")
	}
	if stop != nil {
		if err := stop(shutdownCtx); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("component stop error")
		}
	}
	s.logger.WithContext(ctx).Info("stopped")
	return nil
}
