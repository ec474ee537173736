package profiler

import (
	"fmt"
	"sort"

	"github.com/athapong/graph-profiler/pkg/profiler/extract"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// TableProfiler computes attribute profiles locally from an extracted table.
// One extraction can be reused across every attribute of the label, which is
// the cheaper shape when several attributes are analyzed together.
type TableProfiler struct {
	monitor *telemetry.Monitor
}

// NewTableProfiler creates a TableProfiler. The monitor may be nil.
func NewTableProfiler(monitor *telemetry.Monitor) *TableProfiler {
	return &TableProfiler{monitor: monitor}
}

// ProfileTable profiles every attribute observed in the table. An empty table
// yields an empty map, not an error. An attribute missing from a row counts
// as null for that row.
func (p *TableProfiler) ProfileTable(table *extract.Table) map[string]AttributeProfile {
	summary := make(map[string]AttributeProfile)
	if table.Empty() {
		return summary
	}

	totalCount := int64(table.Len())
	for _, column := range table.Columns() {
		metric := p.monitor.Start("analyze_column", map[string]string{"column": column})
		summary[column] = p.profileColumn(table, column, totalCount)
		p.monitor.Stop(metric)
	}
	return summary
}

func (p *TableProfiler) profileColumn(table *extract.Table, column string, totalCount int64) AttributeProfile {
	counts := make(map[string]int64)
	var nullCount int64

	for _, row := range table.Rows {
		value, ok := row.Props[column]
		if !ok || value == nil {
			nullCount++
			continue
		}
		counts[normalizeValue(value)]++
	}

	profile := newProfile(totalCount, int64(len(counts)), nullCount)
	if profile.IsCategorical() {
		profile.TopValues = topValues(counts, topValueLimit)
	}
	return profile
}

// topValues returns the most frequent values descending by count, ties broken
// by value for determinism.
func topValues(counts map[string]int64, limit int) []ValueCount {
	values := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		values = append(values, ValueCount{Value: v, Count: c})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	if len(values) > limit {
		values = values[:limit]
	}
	return values
}

// normalizeValue renders an attribute value the same way Cypher's toString
// does for the common scalar types, so local profiles agree with in-store
// aggregation and materialized node identity.
func normalizeValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}
