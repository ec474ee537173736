// Package extract pulls entity attribute bags out of the graph store into
// local tables for offline profiling.
package extract

import (
	"context"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// Row is one entity's attribute bag plus its stable element id.
type Row struct {
	ElementID string
	Props     map[string]interface{}
}

// Table is a local, ordered collection of extracted rows.
type Table struct {
	Rows []Row
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table holds no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// Columns returns the union of attribute keys across all rows, sorted. An
// attribute missing from a row counts as null for that row.
func (t *Table) Columns() []string {
	keys := mapset.NewThreadUnsafeSet[string]()
	for _, row := range t.Rows {
		for k := range row.Props {
			keys.Add(k)
		}
	}
	columns := keys.ToSlice()
	sort.Strings(columns)
	return columns
}

// Streamer delivers query rows one at a time without materializing the whole
// result set on the client.
type Streamer interface {
	StreamQuery(ctx context.Context, cypher string, params map[string]interface{}, fn func(row map[string]interface{}) error) error
}

// Options bounds an extraction. SampleSize takes precedence over Limit; zero
// values mean unbounded.
type Options struct {
	// Limit takes the first N entities in store iteration order. The order
	// is whatever the store yields and must not be assumed random.
	Limit int64
	// SampleSize selects an approximately uniform random subset.
	SampleSize int64
}

// Extractor streams entities of a label into a Table.
type Extractor struct {
	store   Streamer
	logger  *logrus.Logger
	monitor *telemetry.Monitor
}

// progressInterval controls how often row progress is logged.
const progressInterval = 10000

// NewExtractor creates an Extractor over the given store.
func NewExtractor(store Streamer, opts ...func(*Extractor)) *Extractor {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := &Extractor{store: store, logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithMonitor attaches a telemetry monitor.
func WithMonitor(m *telemetry.Monitor) func(*Extractor) {
	return func(e *Extractor) { e.monitor = m }
}

// WithLogger replaces the default logger.
func WithLogger(logger *logrus.Logger) func(*Extractor) {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// ExtractTable pulls entities with the given label into a local table.
// totalCount is the label's population size, used to decide whether sampling
// or limiting is needed at all.
func (e *Extractor) ExtractTable(ctx context.Context, label string, totalCount int64, opts Options) (*Table, error) {
	metric := e.monitor.Start("extract_table", map[string]string{"label": label})
	defer e.monitor.Stop(metric)

	cypher, params, shape := buildExtractionQuery(label, totalCount, opts)
	e.logger.WithFields(logrus.Fields{
		"label": label,
		"total": totalCount,
		"shape": shape,
	}).Info("Extracting entities")

	table := &Table{Rows: make([]Row, 0)}
	err := e.store.StreamQuery(ctx, cypher, params, func(row map[string]interface{}) error {
		elementID, _ := row["element_id"].(string)
		props, _ := row["props"].(map[string]interface{})
		table.Rows = append(table.Rows, Row{ElementID: elementID, Props: props})

		telemetry.RowsExtracted.WithLabelValues(label).Inc()
		if len(table.Rows)%progressInterval == 0 {
			e.logger.WithField("rows", len(table.Rows)).Info("Extraction progress")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"label": label,
		"rows":  table.Len(),
	}).Info("Extraction complete")
	return table, nil
}

// buildExtractionQuery picks the query shape: random sample when SampleSize
// is set and smaller than the population, hard limit when Limit is set and
// smaller than the population, otherwise the full population. The random
// sample orders by rand() then limits, which is approximately uniform.
func buildExtractionQuery(label string, totalCount int64, opts Options) (string, map[string]interface{}, string) {
	switch {
	case opts.SampleSize > 0 && opts.SampleSize < totalCount:
		cypher := fmt.Sprintf(`
			MATCH (n:`+"`%s`"+`)
			WITH n, rand() AS r
			ORDER BY r
			LIMIT $rows
			RETURN properties(n) AS props, elementId(n) AS element_id`, label)
		return cypher, map[string]interface{}{"rows": opts.SampleSize}, "sample"

	case opts.Limit > 0 && opts.Limit < totalCount:
		cypher := fmt.Sprintf(`
			MATCH (n:`+"`%s`"+`)
			RETURN properties(n) AS props, elementId(n) AS element_id
			LIMIT $rows`, label)
		return cypher, map[string]interface{}{"rows": opts.Limit}, "limit"

	default:
		cypher := fmt.Sprintf(`
			MATCH (n:`+"`%s`"+`)
			RETURN properties(n) AS props, elementId(n) AS element_id`, label)
		return cypher, map[string]interface{}{}, "full"
	}
}
