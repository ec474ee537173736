package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// StoreConfig holds graph store connection settings.
type StoreConfig struct {
	URI       string
	Username  string
	Password  string
	Database  string
	FetchSize int
}

// AnalysisConfig controls a classification run.
type AnalysisConfig struct {
	// Label is the entity label to analyze.
	Label string
	// Limit caps extraction at the first N entities (standard mode only).
	Limit int64
	// SampleSize selects a random subset instead of a limit. Takes
	// precedence over Limit when both are set.
	SampleSize int64
	// FastMode pushes counting into the store instead of extracting rows.
	FastMode bool
	// DiscoveryLimit bounds the prefix of entities inspected when
	// enumerating attribute keys.
	DiscoveryLimit int
}

// RunConfig renders the analysis settings as the run configuration stored
// alongside archived results.
func (c AnalysisConfig) RunConfig() map[string]interface{} {
	return map[string]interface{}{
		"label":           c.Label,
		"limit":           c.Limit,
		"sample_size":     c.SampleSize,
		"fast_mode":       c.FastMode,
		"discovery_limit": c.DiscoveryLimit,
	}
}

// ProjectionConfig controls materialization and the GDS graph projection.
type ProjectionConfig struct {
	SourceLabel      string
	SourceIDProperty string
	Attributes       []string
	PropertyLabel    string
	RelationshipType string
	GraphName        string
	BatchSize        int
	// SourceFilter is an optional Cypher boolean expression applied to
	// source nodes, e.g. "source.active = true". It is ANDed into the
	// generated WHERE clauses; do not include the WHERE keyword.
	SourceFilter string
	// Orientation of projected relationships: NATURAL, REVERSE or UNDIRECTED.
	Orientation string
}

// DefaultProjectionConfig returns a ProjectionConfig with the conventional
// property-graph names filled in.
func DefaultProjectionConfig() ProjectionConfig {
	return ProjectionConfig{
		SourceIDProperty: "id",
		PropertyLabel:    "Property",
		RelationshipType: "HAS",
		GraphName:        "property-graph",
		BatchSize:        10000,
		Orientation:      "UNDIRECTED",
	}
}

// Validate checks that the projection configuration is usable. Attributes are
// not required here: only materialization needs them, and teardown or catalog
// operations run without any.
func (c ProjectionConfig) Validate() error {
	if c.SourceLabel == "" {
		return fmt.Errorf("source label must be specified")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	switch c.Orientation {
	case "NATURAL", "REVERSE", "UNDIRECTED":
	default:
		return fmt.Errorf("unknown orientation: %s", c.Orientation)
	}
	return nil
}

// LoadEnv loads environment variables from the given file. A missing file is
// not fatal; the error is returned for the caller to log.
func LoadEnv(path string) error {
	return godotenv.Load(path)
}

// StoreConfigFromEnv builds a StoreConfig from NEO4J_* environment variables,
// falling back to local-development defaults.
func StoreConfigFromEnv() StoreConfig {
	cfg := StoreConfig{
		URI:       getenv("NEO4J_URI", "bolt://localhost:7687"),
		Username:  getenv("NEO4J_USERNAME", "neo4j"),
		Password:  getenv("NEO4J_PASSWORD", ""),
		Database:  getenv("NEO4J_DATABASE", ""),
		FetchSize: 1000,
	}
	if v := os.Getenv("NEO4J_FETCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FetchSize = n
		}
	}
	return cfg
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
