package main

import (
	"context"
	"flag"

	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/config"
	"github.com/athapong/graph-profiler/pkg/graphstore"
	"github.com/athapong/graph-profiler/pkg/profiler"
	"github.com/athapong/graph-profiler/pkg/profiler/extract"
	"github.com/athapong/graph-profiler/pkg/results"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

var (
	envFile        = flag.String("env", ".env", "Path to environment file")
	label          = flag.String("label", "", "Entity label to profile")
	limit          = flag.Int64("limit", 0, "Extract only the first N entities (standard mode)")
	sampleSize     = flag.Int64("sample", 0, "Extract a random sample of N entities (standard mode)")
	fastMode       = flag.Bool("fast", false, "Push counting into the store instead of extracting rows")
	outDir         = flag.String("out", ".", "Directory for the results archive")
	discoveryLimit = flag.Int("discovery-limit", 1000, "Entities sampled when discovering attribute keys")
	logLevel       = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
	printTimeline  = flag.Bool("timeline", false, "Print the telemetry timeline after the run")
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

	analysisCfg := config.AnalysisConfig{
		Label:          *label,
		Limit:          *limit,
		SampleSize:     *sampleSize,
		FastMode:       *fastMode,
		DiscoveryLimit: *discoveryLimit,
	}

	if err := config.LoadEnv(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
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
	analyzer := profiler.NewAnalyzer(store,
		profiler.WithAnalyzerLogger(logger),
		profiler.WithAnalyzerMonitor(monitor),
		profiler.WithAnalyzerDiscoveryLimit(analysisCfg.DiscoveryLimit),
	)

	var summary map[string]profiler.AttributeProfile
	if analysisCfg.FastMode {
		summary, err = analyzer.ProfileLabelFast(ctx, analysisCfg.Label)
	} else {
		summary, err = analyzer.ProfileLabelStandard(ctx, analysisCfg.Label, extract.Options{
			Limit:      analysisCfg.Limit,
			SampleSize: analysisCfg.SampleSize,
		})
	}
	if err != nil {
		logger.Fatalf("Profiling failed: %v", err)
	}

	for name, profile := range summary {
		logger.WithFields(logrus.Fields{
			"attribute": name,
			"type":      profile.Type,
			"distinct":  profile.DistinctCount,
			"total":     profile.TotalCount,
			"nulls":     profile.NullCount,
		}).Info("Attribute classified")
	}

	record := results.NewRecord(analysisCfg.RunConfig(),
		map[string]map[string]profiler.AttributeProfile{analysisCfg.Label: summary})

	path, err := results.Save(*outDir, record)
	if err != nil {
		logger.Fatalf("Failed to save results: %v", err)
	}
	logger.Infof("Results saved to %s", path)

	if *printTimeline {
		logger.Info("Telemetry timeline:\n" + monitor.Timeline())
	}
}
