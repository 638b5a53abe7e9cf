package metrics

import (
	"errors"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("monitor", reg)
	require.NotNil(t, m)
	assert.NotNil(t, m.MonitorsTotal)
	assert.NotNil(t, m.SchedulerErrorsTotal)
	assert.NotNil(t, m.BlockProcessDuration)
}

func TestSetMonitorCounts(t *testing.T) {
	m := NewWithRegistry("monitor", prometheus.NewRegistry())
	m.SetMonitorCounts(5, 3)
	assert.Equal(t, float64(5), testGaugeValue(t, m.MonitorsTotal))
	assert.Equal(t, float64(3), testGaugeValue(t, m.MonitorsActive))
}

func TestRecordTickIncrementsErrorCounterOnFailure(t *testing.T) {
	m := NewWithRegistry("monitor", prometheus.NewRegistry())
	m.RecordTick("ethereum", nil)
	m.RecordTick("ethereum", errors.New("boom"))

	count := testutilCounterTotal(t, m.SchedulerErrorsTotal.WithLabelValues("ethereum"))
	assert.Equal(t, float64(1), count)
}

func TestRecordRecoveryRunAccounting(t *testing.T) {
	m := NewWithRegistry("monitor", prometheus.NewRegistry())
	m.RecordRecoveryRun("ethereum", 10, 7, 2)

	assert.Equal(t, float64(10), testutilCounterTotal(t, m.RecoveryAttemptedTotal.WithLabelValues("ethereum")))
	assert.Equal(t, float64(7), testutilCounterTotal(t, m.RecoveryRecoveredTotal.WithLabelValues("ethereum")))
	assert.Equal(t, float64(2), testutilCounterTotal(t, m.RecoveryFailedTotal.WithLabelValues("ethereum")))
}

func TestRecordBlockProcessedDoesNotPanic(t *testing.T) {
	m := NewWithRegistry("monitor", prometheus.NewRegistry())
	assert.NotPanics(t, func() {
		m.RecordBlockProcessed("ethereum", 50*time.Millisecond)
	})
}

func testGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, g.Write(&out))
	return out.GetGauge().GetValue()
}

func testutilCounterTotal(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}
