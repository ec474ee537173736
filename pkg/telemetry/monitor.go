package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metric is a single timed operation.
type Metric struct {
	Name     string
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Fields   map[string]string
}

func (m *Metric) String() string {
	if m.End.IsZero() {
		return fmt.Sprintf("%s: in progress", m.Name)
	}
	return fmt.Sprintf("%s: %.3fs", m.Name, m.Duration.Seconds())
}

// OperationStats aggregates all metrics recorded under one operation name.
type OperationStats struct {
	Count     int
	TotalTime time.Duration
	AvgTime   time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// Summary is a snapshot of everything a Monitor has recorded.
type Summary struct {
	TotalTime       time.Duration
	TotalOperations int
	ByOperation     map[string]OperationStats
}

// Monitor collects timing metrics for pipeline operations. It is passed
// explicitly to the components that report into it; a nil *Monitor is valid
// and records nothing, so call sites never need to branch. Concurrent writers
// are not supported: the pipeline is sequential.
type Monitor struct {
	metrics []*Metric
}

// NewMonitor creates an empty Monitor.
func NewMonitor() *Monitor {
	return &Monitor{metrics: make([]*Metric, 0)}
}

// Start begins timing an operation. Fields are free-form key=value context
// recorded alongside the timing.
func (m *Monitor) Start(name string, fields map[string]string) *Metric {
	if m == nil {
		return nil
	}
	metric := &Metric{
		Name:   name,
		Start:  time.Now(),
		Fields: fields,
	}
	m.metrics = append(m.metrics, metric)
	return metric
}

// Stop finishes a metric returned by Start. Safe on nil receivers and nil
// metrics, so it can sit in a defer unconditionally.
func (m *Monitor) Stop(metric *Metric) {
	if m == nil || metric == nil {
		return
	}
	metric.End = time.Now()
	metric.Duration = metric.End.Sub(metric.Start)
	QueryDuration.WithLabelValues(metric.Name).Observe(metric.Duration.Seconds())
}

// Metrics returns the recorded metrics in start order.
func (m *Monitor) Metrics() []*Metric {
	if m == nil {
		return nil
	}
	return m.metrics
}

// Reset discards all recorded metrics.
func (m *Monitor) Reset() {
	if m == nil {
		return
	}
	m.metrics = m.metrics[:0]
}

// Summarize aggregates recorded metrics by operation name.
func (m *Monitor) Summarize() Summary {
	summary := Summary{ByOperation: make(map[string]OperationStats)}
	if m == nil {
		return summary
	}

	for _, metric := range m.metrics {
		if metric.End.IsZero() {
			continue
		}
		summary.TotalTime += metric.Duration
		summary.TotalOperations++

		stats := summary.ByOperation[metric.Name]
		stats.Count++
		stats.TotalTime += metric.Duration
		if stats.MinTime == 0 || metric.Duration < stats.MinTime {
			stats.MinTime = metric.Duration
		}
		if metric.Duration > stats.MaxTime {
			stats.MaxTime = metric.Duration
		}
		stats.AvgTime = stats.TotalTime / time.Duration(stats.Count)
		summary.ByOperation[metric.Name] = stats
	}
	return summary
}

// Timeline renders the recorded metrics as a human-readable listing, one line
// per operation in start order.
func (m *Monitor) Timeline() string {
	if m == nil || len(m.metrics) == 0 {
		return "no metrics collected"
	}

	var b strings.Builder
	for i, metric := range m.metrics {
		fmt.Fprintf(&b, "%3d. %-40s %s", i+1, metric.Name, metric.String())
		if len(metric.Fields) > 0 {
			keys := make([]string, 0, len(metric.Fields))
			for k := range metric.Fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%s", k, metric.Fields[k]))
			}
			fmt.Fprintf(&b, " | %s", strings.Join(parts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}
