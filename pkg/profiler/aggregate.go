package profiler

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/graphstore"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// AggregateStore is the slice of the store gateway the aggregate strategy
// needs: plain read queries plus label discovery helpers.
type AggregateStore interface {
	graphstore.Runner
	NodeCount(ctx context.Context, label string) (int64, error)
	DiscoverAttributeKeys(ctx context.Context, label string, sampleLimit int) ([]string, error)
}

// AggregateProfiler pushes profile computation into the store. Each attribute
// costs one counting round trip, plus a second round trip for the top values
// only when the attribute turns out categorical. Preferred for large
// populations because no entity data crosses the wire.
type AggregateProfiler struct {
	store          AggregateStore
	logger         *logrus.Logger
	monitor        *telemetry.Monitor
	discoveryLimit int
}

// NewAggregateProfiler creates an AggregateProfiler over the given store.
func NewAggregateProfiler(store AggregateStore, opts ...func(*AggregateProfiler)) *AggregateProfiler {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	p := &AggregateProfiler{
		store:          store,
		logger:         logger,
		discoveryLimit: 1000,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithAggregateMonitor attaches a telemetry monitor.
func WithAggregateMonitor(m *telemetry.Monitor) func(*AggregateProfiler) {
	return func(p *AggregateProfiler) { p.monitor = m }
}

// WithAggregateLogger replaces the default logger.
func WithAggregateLogger(logger *logrus.Logger) func(*AggregateProfiler) {
	return func(p *AggregateProfiler) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDiscoveryLimit bounds the entity prefix inspected during attribute key
// discovery.
func WithDiscoveryLimit(n int) func(*AggregateProfiler) {
	return func(p *AggregateProfiler) {
		if n > 0 {
			p.discoveryLimit = n
		}
	}
}

// ProfileAttribute profiles a single attribute entirely in the store. Returns
// ErrEmptyPopulation when the label has no entities.
func (p *AggregateProfiler) ProfileAttribute(ctx context.Context, label, key string) (AttributeProfile, error) {
	metric := p.monitor.Start("aggregate_stats_query", map[string]string{"label": label, "attribute": key})
	statsQuery := fmt.Sprintf(`
		MATCH (n:`+"`%s`"+`)
		WITH count(n) AS total,
		     count(DISTINCT n.`+"`%s`"+`) AS distinct_count,
		     count(n) - count(n.`+"`%s`"+`) AS null_count
		RETURN total, distinct_count, null_count`, label, key, key)

	rows, err := p.store.ExecuteQuery(ctx, statsQuery, nil)
	p.monitor.Stop(metric)
	if err != nil {
		return AttributeProfile{}, err
	}
	if len(rows) == 0 {
		return AttributeProfile{}, ErrEmptyPopulation
	}

	total := graphstore.AsInt64(rows[0]["total"])
	if total == 0 {
		return AttributeProfile{}, ErrEmptyPopulation
	}
	profile := newProfile(total, graphstore.AsInt64(rows[0]["distinct_count"]), graphstore.AsInt64(rows[0]["null_count"]))

	// Second round trip only when the type calls for frequent values.
	if profile.IsCategorical() {
		values, err := p.topValues(ctx, label, key)
		if err != nil {
			return AttributeProfile{}, err
		}
		profile.TopValues = values
	}
	return profile, nil
}

func (p *AggregateProfiler) topValues(ctx context.Context, label, key string) ([]ValueCount, error) {
	metric := p.monitor.Start("aggregate_top_values_query", map[string]string{"label": label, "attribute": key})
	defer p.monitor.Stop(metric)

	query := fmt.Sprintf(`
		MATCH (n:`+"`%s`"+`)
		WHERE n.`+"`%s`"+` IS NOT NULL
		WITH n.`+"`%s`"+` AS value, count(*) AS count
		ORDER BY count DESC
		LIMIT %d
		RETURN value, count`, label, key, key, topValueLimit)

	rows, err := p.store.ExecuteQuery(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	values := make([]ValueCount, 0, len(rows))
	for _, row := range rows {
		values = append(values, ValueCount{
			Value: normalizeValue(row["value"]),
			Count: graphstore.AsInt64(row["count"]),
		})
	}
	return values, nil
}

// ProfileLabel discovers the label's attribute keys and profiles each one.
// The discovered key set is a lower bound: discovery samples a bounded prefix
// of the population and may miss keys held only by rare entities. A label
// with no entities yields an empty map.
func (p *AggregateProfiler) ProfileLabel(ctx context.Context, label string) (map[string]AttributeProfile, error) {
	metric := p.monitor.Start("profile_label_fast", map[string]string{"label": label})
	defer p.monitor.Stop(metric)

	total, err := p.store.NodeCount(ctx, label)
	if err != nil {
		return nil, err
	}
	summary := make(map[string]AttributeProfile)
	if total == 0 {
		p.logger.WithField("label", label).Warn("No entities found for label")
		return summary, nil
	}

	keys, err := p.store.DiscoverAttributeKeys(ctx, label, p.discoveryLimit)
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(logrus.Fields{
		"label":      label,
		"attributes": len(keys),
		"total":      total,
	}).Info("Profiling attributes in fast mode")

	for _, key := range keys {
		profile, err := p.ProfileAttribute(ctx, label, key)
		if err != nil {
			return nil, err
		}
		summary[key] = profile
	}
	return summary, nil
}
