package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncHandlesCreated()
	m.IncHandlesCreated()
	m.IncHandlesDisposed()
	m.IncFunctionsProjected()
	m.RecordHostCall("add", StatusOK, time.Millisecond)
	m.RecordHostCall("add", StatusError, time.Millisecond)
	m.IncWraps("vm")
	m.RecordEval(StatusTimeout, time.Second)
	m.SetMapEntries("arena_1", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HandlesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HandlesDisposed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FunctionsProjected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostCalls.WithLabelValues("add", StatusError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Wraps.WithLabelValues("vm")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MapEntries.WithLabelValues("arena_1")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.HandlesCreated)
	assert.Equal(t, int64(1), snap.HandlesDisposed)
	assert.Equal(t, int64(2), snap.HostCalls)
	assert.Equal(t, int64(1), snap.HostCallErrors)
	assert.Equal(t, int64(1), snap.EvalErrors)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncHandlesCreated()
		m.IncHandlesDisposed()
		m.SetMapEntries("a", 1)
		m.DeleteMapEntries("a")
		m.IncFunctionsProjected()
		m.RecordHostCall("f", StatusOK, 0)
		m.IncWraps("host")
		m.RecordEval(StatusOK, 0)
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestStatus(t *testing.T) {
	assert.Equal(t, StatusOK, Status(nil))
	assert.Equal(t, StatusError, Status(errors.New("boom")))
}
