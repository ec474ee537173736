package profiler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/profiler/extract"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// Store is the full gateway surface the analyzer drives: read queries,
// streaming extraction and label discovery.
type Store interface {
	AggregateStore
	extract.Streamer
}

// Analyzer orchestrates a classification run, selecting between the two
// profiling strategies. Fast mode delegates counting to the store; standard
// mode extracts a (possibly sampled) table once and profiles it locally.
type Analyzer struct {
	store     Store
	extractor *extract.Extractor
	aggregate *AggregateProfiler
	table     *TableProfiler
	logger    *logrus.Logger
	monitor   *telemetry.Monitor

	discoveryLimit int
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithAnalyzerMonitor attaches a telemetry monitor shared by all stages.
func WithAnalyzerMonitor(m *telemetry.Monitor) AnalyzerOption {
	return func(a *Analyzer) { a.monitor = m }
}

// WithAnalyzerLogger replaces the default logger.
func WithAnalyzerLogger(logger *logrus.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithAnalyzerDiscoveryLimit bounds attribute key discovery in fast mode.
func WithAnalyzerDiscoveryLimit(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.discoveryLimit = n
		}
	}
}

// NewAnalyzer creates an Analyzer over the given store.
func NewAnalyzer(store Store, opts ...AnalyzerOption) *Analyzer {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	a := &Analyzer{
		store:          store,
		logger:         logger,
		discoveryLimit: 1000,
	}
	for _, opt := range opts {
		opt(a)
	}

	a.extractor = extract.NewExtractor(store,
		extract.WithMonitor(a.monitor),
		extract.WithLogger(a.logger),
	)
	a.aggregate = NewAggregateProfiler(store,
		WithAggregateMonitor(a.monitor),
		WithAggregateLogger(a.logger),
		WithDiscoveryLimit(a.discoveryLimit),
	)
	a.table = NewTableProfiler(a.monitor)
	return a
}

// ProfileLabelFast classifies every discovered attribute using in-store
// aggregation.
func (a *Analyzer) ProfileLabelFast(ctx context.Context, label string) (map[string]AttributeProfile, error) {
	return a.aggregate.ProfileLabel(ctx, label)
}

// ProfileLabelStandard extracts a local table (honoring the sampling/limit
// options) and classifies every attribute observed in it.
func (a *Analyzer) ProfileLabelStandard(ctx context.Context, label string, opts extract.Options) (map[string]AttributeProfile, error) {
	metric := a.monitor.Start("profile_label_standard", map[string]string{"label": label})
	defer a.monitor.Stop(metric)

	total, err := a.store.NodeCount(ctx, label)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		a.logger.WithField("label", label).Warn("No entities found for label")
		return map[string]AttributeProfile{}, nil
	}

	table, err := a.extractor.ExtractTable(ctx, label, total, opts)
	if err != nil {
		return nil, err
	}
	return a.table.ProfileTable(table), nil
}

// ExtractTable exposes the extraction step on its own, for callers that want
// the raw table for richer downstream profiling.
func (a *Analyzer) ExtractTable(ctx context.Context, label string, opts extract.Options) (*extract.Table, error) {
	total, err := a.store.NodeCount(ctx, label)
	if err != nil {
		return nil, err
	}
	return a.extractor.ExtractTable(ctx, label, total, opts)
}
