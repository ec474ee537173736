package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorStartStop(t *testing.T) {
	m := NewMonitor()

	metric := m.Start("extract_table", map[string]string{"label": "Person"})
	require.NotNil(t, metric)
	time.Sleep(time.Millisecond)
	m.Stop(metric)

	assert.False(t, metric.End.IsZero())
	assert.Greater(t, metric.Duration, time.Duration(0))
	assert.Len(t, m.Metrics(), 1)
}

func TestNilMonitorIsNoOp(t *testing.T) {
	var m *Monitor

	metric := m.Start("anything", nil)
	assert.Nil(t, metric)
	m.Stop(metric) // must not panic
	m.Reset()
	assert.Nil(t, m.Metrics())

	summary := m.Summarize()
	assert.Zero(t, summary.TotalOperations)
}

func TestSummarizeGroupsByOperation(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 3; i++ {
		m.Stop(m.Start("query", nil))
	}
	m.Stop(m.Start("extract", nil))
	m.Start("unfinished", nil) // never stopped, excluded

	summary := m.Summarize()
	assert.Equal(t, 4, summary.TotalOperations)
	require.Contains(t, summary.ByOperation, "query")
	assert.Equal(t, 3, summary.ByOperation["query"].Count)
	assert.Equal(t, 1, summary.ByOperation["extract"].Count)
	assert.NotContains(t, summary.ByOperation, "unfinished")
}

func TestTimeline(t *testing.T) {
	m := NewMonitor()
	assert.Equal(t, "no metrics collected", m.Timeline())

	m.Stop(m.Start("query", map[string]string{"label": "Person", "attribute": "country"}))
	timeline := m.Timeline()
	assert.Contains(t, timeline, "query")
	assert.Contains(t, timeline, "attribute=country, label=Person")
}

func TestReset(t *testing.T) {
	m := NewMonitor()
	m.Stop(m.Start("query", nil))
	m.Reset()
	assert.Empty(t, m.Metrics())
}
