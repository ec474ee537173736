package main

import (
	"context"
	"flag"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/config"
	"github.com/athapong/graph-profiler/pkg/graphstore"
	"github.com/athapong/graph-profiler/pkg/projection"
	"github.com/athapong/graph-profiler/pkg/results"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

var (
	envFile       = flag.String("env", ".env", "Path to environment file")
	label         = flag.String("label", "", "Entity label to project")
	idProperty    = flag.String("id-property", "id", "Identifying attribute on entity nodes")
	attrList      = flag.String("attrs", "", "Comma-separated attributes to project (default: categorical attributes from the latest results archive)")
	resultsDir    = flag.String("results-dir", ".", "Directory holding results archives")
	graphName     = flag.String("graph-name", "property-graph", "Name of the GDS projection")
	propertyLabel = flag.String("property-label", "Property", "Label for materialized property nodes")
	relType       = flag.String("rel-type", "HAS", "Relationship type from entities to property nodes")
	batchSize     = flag.Int("batch-size", 10000, "Entities per materialization batch")
	orientation   = flag.String("orientation", "UNDIRECTED", "Projection orientation (NATURAL, REVERSE, UNDIRECTED)")
	sourceFilter  = flag.String("filter", "", "Optional boolean Cypher expression filtering source nodes")
	teardown      = flag.Bool("teardown", false, "Delete all materialized property nodes and drop the projection, then exit")
	algorithm     = flag.String("algorithm", "louvain", "Community detection algorithm (louvain, labelPropagation, wcc)")
	topK          = flag.Int("top-k", 10, "Similar nodes returned per node")
	cutoff        = flag.Float64("cutoff", 0.0, "Minimum similarity score")
	logLevel      = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *label == "" {
		logger.Fatal("Entity label must be specified")
	}

	if err := config.LoadEnv(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
	}

	attrs := splitAttrs(*attrList)
	if len(attrs) == 0 && !*teardown {
		record, err := results.LoadLatest(*resultsDir)
		if err != nil {
			logger.Fatalf("No attributes given and no results archive found: %v", err)
		}
		attrs = record.CategoricalAttributes(*label, true)
		if len(attrs) == 0 {
			logger.Fatalf("Latest archive has no categorical attributes for label %s", *label)
		}
		logger.Infof("Projecting categorical attributes from archive: %s", strings.Join(attrs, ", "))
	}

	cfg := config.ProjectionConfig{
		SourceLabel:      *label,
		SourceIDProperty: *idProperty,
		Attributes:       attrs,
		PropertyLabel:    *propertyLabel,
		RelationshipType: *relType,
		GraphName:        *graphName,
		BatchSize:        *batchSize,
		SourceFilter:     *sourceFilter,
		Orientation:      *orientation,
	}

	storeCfg := config.StoreConfigFromEnv()
	store, err := graphstore.NewStore(storeCfg.URI, storeCfg.Username, storeCfg.Password,
		graphstore.WithDatabase(storeCfg.Database),
		graphstore.WithFetchSize(storeCfg.FetchSize),
	)
	if err != nil {
		logger.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.VerifyConnectivity(ctx); err != nil {
		logger.Fatalf("Store unreachable: %v", err)
	}

	monitor := telemetry.NewMonitor()
	materializer, err := projection.NewMaterializer(store, cfg,
		projection.WithMaterializerLogger(logger),
		projection.WithMaterializerMonitor(monitor),
	)
	if err != nil {
		logger.Fatalf("Invalid projection config: %v", err)
	}
	manager, err := projection.NewManager(store, cfg,
		projection.WithManagerLogger(logger),
		projection.WithManagerMonitor(monitor),
	)
	if err != nil {
		logger.Fatalf("Invalid projection config: %v", err)
	}

	if *teardown {
		runTeardown(ctx, logger, materializer, manager)
		return
	}

	report, err := materializer.MaterializeAll(ctx)
	if err != nil {
		logger.Fatalf("Materialization failed: %v", err)
	}
	for _, failed := range report.Failed() {
		logger.WithError(failed.Err).Errorf("Attribute %s failed to materialize", failed.Attribute)
	}
	logger.Infof("Materialized %d property nodes, %d relationships",
		report.PropertyNodes, report.Relationships)

	version, available := manager.CheckGDSAvailable(ctx)
	if !available {
		logger.Warn("GDS extension not available, skipping analytics")
		return
	}
	logger.Infof("GDS version: %s", version)

	info, err := manager.CreateProjection(ctx)
	if err != nil {
		logger.Fatalf("Failed to create projection: %v", err)
	}
	logger.Infof("Projection %s: %d nodes, %d relationships",
		info.Name, info.NodeCount, info.RelationshipCount)

	runAnalytics(ctx, logger, manager)
}

func runAnalytics(ctx context.Context, logger *logrus.Logger, manager *projection.Manager) {
	pairs, err := manager.RunNodeSimilarity(ctx, *topK, *cutoff)
	if err != nil {
		logger.Errorf("Node similarity failed: %v", err)
	} else {
		logger.Infof("Node similarity: %d pairs", len(pairs))
		for i, pair := range pairs {
			if i >= 10 {
				break
			}
			logger.Infof("  %s ~ %s: %.4f", pair.Node1ID, pair.Node2ID, pair.Similarity)
		}
	}

	scores, err := manager.RunPageRank(ctx, 20, 0.85)
	if err != nil {
		logger.Errorf("PageRank failed: %v", err)
	} else {
		logger.Infof("PageRank: %d entities", len(scores))
		for i, score := range scores {
			if i >= 10 {
				break
			}
			logger.Infof("  %s: %.4f", score.NodeID, score.Score)
		}
	}

	assignments, err := manager.RunCommunityDetection(ctx, *algorithm)
	if err != nil {
		logger.Errorf("Community detection failed: %v", err)
		return
	}
	sizes := projection.CommunitySizes(assignments)
	logger.Infof("Community detection (%s): %d communities", *algorithm, len(sizes))
	for i, size := range sizes {
		if i >= 10 {
			break
		}
		logger.Infof("  community %d: %d entities", size.CommunityID, size.Size)
	}
}

func runTeardown(ctx context.Context, logger *logrus.Logger, materializer *projection.Materializer, manager *projection.Manager) {
	if err := manager.DropProjection(ctx); err != nil {
		if errors.Is(err, projection.ErrGraphNotFound) {
			logger.Info("No projection to drop")
		} else {
			logger.Errorf("Failed to drop projection: %v", err)
		}
	}
	deleted, err := materializer.Teardown(ctx)
	if err != nil {
		logger.Fatalf("Teardown failed: %v", err)
	}
	logger.Infof("Deleted %d property nodes", deleted)
}

func splitAttrs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	attrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			attrs = append(attrs, trimmed)
		}
	}
	return attrs
}
