// Package projection turns entity attributes into first-class Property nodes
// and manages the GDS graph projections built over them.
package projection

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/config"
	"github.com/athapong/graph-profiler/pkg/graphstore"
	"github.com/athapong/graph-profiler/pkg/profiler"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// AttributeResult reports one attribute's materialization outcome. Counts are
// nodes and relationships touched by the merge, so a re-run over an unchanged
// population reports the same numbers without creating anything new.
type AttributeResult struct {
	Attribute     string
	PropertyNodes int64
	Relationships int64
	Err           error
}

// MaterializeReport sums per-attribute results for a whole run.
type MaterializeReport struct {
	Results       []AttributeResult
	PropertyNodes int64
	Relationships int64
}

// Failed returns the results of attributes whose materialization failed.
func (r *MaterializeReport) Failed() []AttributeResult {
	failed := make([]AttributeResult, 0)
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Materializer creates Property nodes for configured attributes and links
// every entity to the nodes for the values it holds. All writes are MERGE
// based: running the same materialization twice converges instead of
// duplicating.
type Materializer struct {
	runner  graphstore.Runner
	cfg     config.ProjectionConfig
	logger  *logrus.Logger
	monitor *telemetry.Monitor
}

// NewMaterializer creates a Materializer. The configuration must validate.
func NewMaterializer(runner graphstore.Runner, cfg config.ProjectionConfig, opts ...func(*Materializer)) (*Materializer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	m := &Materializer{runner: runner, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithMaterializerLogger replaces the default logger.
func WithMaterializerLogger(logger *logrus.Logger) func(*Materializer) {
	return func(m *Materializer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMaterializerMonitor attaches a telemetry monitor.
func WithMaterializerMonitor(mon *telemetry.Monitor) func(*Materializer) {
	return func(m *Materializer) { m.monitor = mon }
}

// MaterializeAll processes the configured attributes one at a time. A failure
// on one attribute is recorded in its result and does not stop the others;
// the returned error is nil as long as the run itself could proceed.
func (m *Materializer) MaterializeAll(ctx context.Context) (*MaterializeReport, error) {
	if len(m.cfg.Attributes) == 0 {
		return nil, fmt.Errorf("no attributes configured to materialize")
	}
	report := &MaterializeReport{Results: make([]AttributeResult, 0, len(m.cfg.Attributes))}

	m.logger.WithFields(logrus.Fields{
		"label":      m.cfg.SourceLabel,
		"attributes": len(m.cfg.Attributes),
	}).Info("Materializing property nodes")

	for _, attr := range m.cfg.Attributes {
		result := m.materializeAttribute(ctx, attr)
		report.Results = append(report.Results, result)

		if result.Err != nil {
			m.logger.WithError(result.Err).WithField("attribute", attr).Error("Attribute materialization failed")
			continue
		}
		report.PropertyNodes += result.PropertyNodes
		report.Relationships += result.Relationships

		telemetry.PropertyNodesTouched.WithLabelValues(attr).Set(float64(result.PropertyNodes))
		telemetry.RelationshipsTouched.WithLabelValues(attr).Set(float64(result.Relationships))
	}

	m.logger.WithFields(logrus.Fields{
		"property_nodes": report.PropertyNodes,
		"relationships":  report.Relationships,
		"failed":         len(report.Failed()),
	}).Info("Materialization complete")
	return report, nil
}

func (m *Materializer) materializeAttribute(ctx context.Context, attr string) AttributeResult {
	metric := m.monitor.Start("materialize_attribute", map[string]string{"attribute": attr})
	defer m.monitor.Stop(metric)

	result := AttributeResult{Attribute: attr}
	query := m.batchQuery(attr)

	// Pages through entities in stable element-id order so each batch
	// commits on its own. Stops when a window comes back short.
	var skip int64
	for {
		params := map[string]interface{}{
			"attribute": attr,
			"skip":      skip,
			"limit":     int64(m.cfg.BatchSize),
		}
		rows, err := m.runner.ExecuteWrite(ctx, query, params)
		if err != nil {
			result.Err = err
			return result
		}
		if len(rows) == 0 {
			break
		}

		propsMerged := graphstore.AsInt64(rows[0]["props_merged"])
		relsMerged := graphstore.AsInt64(rows[0]["rels_merged"])
		result.PropertyNodes += propsMerged
		result.Relationships += relsMerged

		if relsMerged < int64(m.cfg.BatchSize) {
			break
		}
		skip += int64(m.cfg.BatchSize)
	}

	m.logger.WithFields(logrus.Fields{
		"attribute":      attr,
		"property_nodes": result.PropertyNodes,
		"relationships":  result.Relationships,
	}).Info("Attribute materialized")
	return result
}

func (m *Materializer) batchQuery(attr string) string {
	return fmt.Sprintf(`
		MATCH (source:`+"`%s`"+`)
		WHERE %ssource.`+"`%s`"+` IS NOT NULL
		WITH source, source.`+"`%s`"+` AS propValue
		ORDER BY elementId(source)
		SKIP $skip LIMIT $limit
		MERGE (p:`+"`%s`"+` {name: $attribute, value: toString(propValue)})
		MERGE (source)-[r:`+"`%s`"+`]->(p)
		RETURN count(DISTINCT p) AS props_merged, count(r) AS rels_merged`,
		m.cfg.SourceLabel, m.filterPrefix(), attr, attr,
		m.cfg.PropertyLabel, m.cfg.RelationshipType)
}

func (m *Materializer) filterPrefix() string {
	if m.cfg.SourceFilter == "" {
		return ""
	}
	return m.cfg.SourceFilter + " AND "
}

// Teardown deletes every node with the configured property label along with
// all of its relationships. It is label-wide and destructive; nothing scopes
// it to a single attribute.
func (m *Materializer) Teardown(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		MATCH (p:`+"`%s`"+`)
		DETACH DELETE p
		RETURN count(p) AS deleted`, m.cfg.PropertyLabel)

	rows, err := m.runner.ExecuteWrite(ctx, query, nil)
	if err != nil {
		return 0, err
	}
	var deleted int64
	if len(rows) > 0 {
		deleted = graphstore.AsInt64(rows[0]["deleted"])
	}
	m.logger.WithFields(logrus.Fields{
		"label":   m.cfg.PropertyLabel,
		"deleted": deleted,
	}).Info("Property nodes deleted")
	return deleted, nil
}

// ValueDistribution returns how many entities hold each materialized value of
// an attribute, descending by count.
func (m *Materializer) ValueDistribution(ctx context.Context, attr string, limit int) ([]profiler.ValueCount, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		MATCH (p:`+"`%s`"+` {name: $attribute})
		MATCH (source:`+"`%s`"+`)-[:`+"`%s`"+`]->(p)
		RETURN p.value AS value, count(source) AS count
		ORDER BY count DESC
		LIMIT $limit`,
		m.cfg.PropertyLabel, m.cfg.SourceLabel, m.cfg.RelationshipType)

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"attribute": attr,
		"limit":     limit,
	})
	if err != nil {
		return nil, err
	}
	values := make([]profiler.ValueCount, 0, len(rows))
	for _, row := range rows {
		value, _ := row["value"].(string)
		values = append(values, profiler.ValueCount{
			Value: value,
			Count: graphstore.AsInt64(row["count"]),
		})
	}
	return values, nil
}
