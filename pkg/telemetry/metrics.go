package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueryDuration tracks time spent in store and engine calls.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "profiler_query_duration_seconds",
			Help: "Time spent executing graph store queries",
		},
		[]string{"operation"},
	)

	// RowsExtracted counts rows pulled into local tables by the extractor.
	RowsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profiler_rows_extracted_total",
			Help: "Total number of entity rows extracted from the store",
		},
		[]string{"label"},
	)

	// PropertyNodesTouched reports property nodes merged in the last
	// materialization run.
	PropertyNodesTouched = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "profiler_property_nodes_touched",
			Help: "Property nodes merged during materialization",
		},
		[]string{"attribute"},
	)

	// RelationshipsTouched reports HAS relationships merged in the last
	// materialization run.
	RelationshipsTouched = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "profiler_relationships_touched",
			Help: "Relationships merged during materialization",
		},
		[]string{"attribute"},
	)
)
