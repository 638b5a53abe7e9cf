// Package metrics provides the Prometheus collectors for the monitor:
// monitors_total/monitors_active, per-network scheduler errors, block
// processing duration, trigger dispatch outcomes, and endpoint rotations
// (spec §7, "User-visible failures surface as ... Prometheus counters").
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors registered by the monitor.
type Metrics struct {
	MonitorsTotal  prometheus.Gauge
	MonitorsActive prometheus.Gauge

	SchedulerErrorsTotal *prometheus.CounterVec
	TicksTotal           *prometheus.CounterVec
	BlockProcessDuration *prometheus.HistogramVec

	TriggerDispatchTotal *prometheus.CounterVec

	EndpointRotationsTotal *prometheus.CounterVec

	RecoveryAttemptedTotal *prometheus.CounterVec
	RecoveryRecoveredTotal *prometheus.CounterVec
	RecoveryFailedTotal    *prometheus.CounterVec

	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
// Passing nil skips registration; the collectors then hold only their
// in-memory values.
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		MonitorsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitors_total",
			Help: "Total number of configured monitors.",
		}),
		MonitorsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "monitors_active",
			Help: "Number of monitors that are not paused.",
		}),
		SchedulerErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_errors_total",
			Help: "Total number of failed scheduler ticks per network.",
		}, []string{"network"}),
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of scheduler ticks per network, by outcome.",
		}, []string{"network", "outcome"}),
		BlockProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "block_process_duration_seconds",
			Help:    "Time to fetch and filter a single block.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"network"}),
		TriggerDispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trigger_dispatch_total",
			Help: "Total trigger dispatches, by kind and outcome.",
		}, []string{"kind", "outcome"}),
		EndpointRotationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "endpoint_rotations_total",
			Help: "Total endpoint manager rotation attempts, by network and outcome.",
		}, []string{"network", "outcome"}),
		RecoveryAttemptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_attempted_total",
			Help: "Total missed blocks attempted by the recovery job, by network.",
		}, []string{"network"}),
		RecoveryRecoveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_recovered_total",
			Help: "Total missed blocks recovered, by network.",
		}, []string{"network"}),
		RecoveryFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "recovery_failed_total",
			Help: "Total missed blocks that exhausted retries, by network.",
		}, []string{"network"}),
		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "service_uptime_seconds",
			Help: "Service uptime in seconds.",
		}),
		ServiceInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Service build/environment information.",
		}, []string{"service", "environment"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.MonitorsTotal,
			m.MonitorsActive,
			m.SchedulerErrorsTotal,
			m.TicksTotal,
			m.BlockProcessDuration,
			m.TriggerDispatchTotal,
			m.EndpointRotationsTotal,
			m.RecoveryAttemptedTotal,
			m.RecoveryRecoveredTotal,
			m.RecoveryFailedTotal,
			m.ServiceUptime,
			m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, environment()).Set(1)
	return m
}

// SetMonitorCounts updates monitors_total/monitors_active after config load
// or reload.
func (m *Metrics) SetMonitorCounts(total, active int) {
	m.MonitorsTotal.Set(float64(total))
	m.MonitorsActive.Set(float64(active))
}

// RecordTick records the outcome of one scheduler tick for a network.
func (m *Metrics) RecordTick(network string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.SchedulerErrorsTotal.WithLabelValues(network).Inc()
	}
	m.TicksTotal.WithLabelValues(network, outcome).Inc()
}

// RecordBlockProcessed observes the duration of a single block's
// fetch+filter pipeline stage.
func (m *Metrics) RecordBlockProcessed(network string, d time.Duration) {
	m.BlockProcessDuration.WithLabelValues(network).Observe(d.Seconds())
}

// RecordTriggerDispatch records a single trigger dispatch outcome.
func (m *Metrics) RecordTriggerDispatch(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.TriggerDispatchTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRotation records an endpoint manager rotation attempt.
func (m *Metrics) RecordRotation(network string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.EndpointRotationsTotal.WithLabelValues(network, outcome).Inc()
}

// RecordRecoveryRun records the {attempted, recovered, failed} accounting
// from one recovery job run (spec §4.8/§8).
func (m *Metrics) RecordRecoveryRun(network string, attempted, recovered, failed int) {
	m.RecoveryAttemptedTotal.WithLabelValues(network).Add(float64(attempted))
	m.RecoveryRecoveredTotal.WithLabelValues(network).Add(float64(recovered))
	m.RecoveryFailedTotal.WithLabelValues(network).Add(float64(failed))
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

func environment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("ENVIRONMENT")))
	if env == "" {
		return "development"
	}
	return env
}

// Enabled reports whether Prometheus metrics should be exposed.
// Defaults: production disabled unless METRICS_ENABLED is set; non-production
// enabled unless explicitly disabled.
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return environment() != "production"
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance, initializing a fallback if
// Init was never called.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalMetrics == nil {
		globalMetrics = New("unknown")
	}
	return globalMetrics
}
