package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/athapong/graph-profiler/pkg/config"
	"github.com/athapong/graph-profiler/pkg/graphstore"
	"github.com/athapong/graph-profiler/pkg/telemetry"
)

// ErrGraphNotFound is returned when an operation targets a projection name
// the analytics engine does not know. Callers probing for an existing
// projection match it with errors.Is and treat it as "does not exist" rather
// than a request failure.
var ErrGraphNotFound = errors.New("projection: graph not found")

// GraphInfo describes one engine-side graph projection.
type GraphInfo struct {
	Name              string
	NodeCount         int64
	RelationshipCount int64
	MemoryUsage       string
	ProjectMillis     int64
}

// SimilarityPair is one similarity result between two entities.
type SimilarityPair struct {
	Node1ID    string
	Node2ID    string
	Similarity float64
}

// NodeScore is one entity with a ranking score.
type NodeScore struct {
	NodeID string
	Score  float64
}

// CommunityAssignment maps one entity to a community.
type CommunityAssignment struct {
	NodeID      string
	CommunityID int64
}

// CommunitySize is the number of entities assigned to one community.
type CommunitySize struct {
	CommunityID int64
	Size        int
}

// DegreeStats summarizes the degree distribution of source nodes in a
// projection.
type DegreeStats struct {
	Min    float64
	Max    float64
	Avg    float64
	Median float64
}

// resultLimit caps rows returned from streaming algorithm calls.
const resultLimit = 100

// communityResultLimit caps rows returned from community detection.
const communityResultLimit = 1000

// Manager declares and queries named GDS graph projections over the
// materialized property graph.
type Manager struct {
	runner  graphstore.Runner
	cfg     config.ProjectionConfig
	logger  *logrus.Logger
	monitor *telemetry.Monitor
}

// NewManager creates a projection Manager. The configuration must validate.
func NewManager(runner graphstore.Runner, cfg config.ProjectionConfig, opts ...func(*Manager)) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	m := &Manager{runner: runner, cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// WithManagerLogger replaces the default logger.
func WithManagerLogger(logger *logrus.Logger) func(*Manager) {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMonitor attaches a telemetry monitor.
func WithManagerMonitor(mon *telemetry.Monitor) func(*Manager) {
	return func(m *Manager) { m.monitor = mon }
}

// CheckGDSAvailable probes for the GDS extension. It reports availability as
// a condition instead of raising mid-pipeline; the version string is empty
// when the extension is absent.
func (m *Manager) CheckGDSAvailable(ctx context.Context) (string, bool) {
	rows, err := m.runner.ExecuteQuery(ctx, "RETURN gds.version() AS version", nil)
	if err != nil || len(rows) == 0 {
		m.logger.WithError(err).Warn("GDS extension not available")
		return "", false
	}
	version, _ := rows[0]["version"].(string)
	return version, true
}

// CreateProjection declares the named projection over the source label, the
// property label and the configured relationship type. Any existing
// projection under the same name is dropped first, so creation is an
// idempotent replace.
func (m *Manager) CreateProjection(ctx context.Context) (*GraphInfo, error) {
	if err := m.DropProjection(ctx); err != nil && !errors.Is(err, ErrGraphNotFound) {
		return nil, err
	}

	metric := m.monitor.Start("create_projection", map[string]string{"graph": m.cfg.GraphName})
	defer m.monitor.Stop(metric)

	// The relationship key of the projection map cannot be parameterized.
	query := fmt.Sprintf(`
		CALL gds.graph.project(
			$name,
			[$source_label, $property_label],
			{ `+"`%s`"+`: { orientation: $orientation } }
		)
		YIELD graphName, nodeCount, relationshipCount, projectMillis
		RETURN graphName, nodeCount, relationshipCount, projectMillis`,
		m.cfg.RelationshipType)

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"name":           m.cfg.GraphName,
		"source_label":   m.cfg.SourceLabel,
		"property_label": m.cfg.PropertyLabel,
		"orientation":    m.cfg.Orientation,
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Errorf("projection %q returned no metadata", m.cfg.GraphName)
	}

	info := graphInfoFromRow(rows[0])
	m.logger.WithFields(logrus.Fields{
		"graph":         info.Name,
		"nodes":         info.NodeCount,
		"relationships": info.RelationshipCount,
		"millis":        info.ProjectMillis,
	}).Info("Projection created")
	return &info, nil
}

// DropProjection removes the named projection from the engine. Returns
// ErrGraphNotFound when no projection exists under the name.
func (m *Manager) DropProjection(ctx context.Context) error {
	query := `
		CALL gds.graph.drop($name)
		YIELD graphName
		RETURN graphName`

	_, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{"name": m.cfg.GraphName})
	if err != nil {
		return mapGraphError(err, m.cfg.GraphName)
	}
	m.logger.WithField("graph", m.cfg.GraphName).Info("Projection dropped")
	return nil
}

// ListProjections returns every projection currently declared in the engine.
func (m *Manager) ListProjections(ctx context.Context) ([]GraphInfo, error) {
	query := "CALL gds.graph.list() YIELD graphName, nodeCount, relationshipCount, memoryUsage"
	rows, err := m.runner.ExecuteQuery(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	infos := make([]GraphInfo, 0, len(rows))
	for _, row := range rows {
		infos = append(infos, graphInfoFromRow(row))
	}
	return infos, nil
}

// ProjectionInfo returns the configured projection's metadata, or
// ErrGraphNotFound when it is not declared.
func (m *Manager) ProjectionInfo(ctx context.Context) (*GraphInfo, error) {
	infos, err := m.ListProjections(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name == m.cfg.GraphName {
			return &info, nil
		}
	}
	return nil, errors.Wrapf(ErrGraphNotFound, "projection %q", m.cfg.GraphName)
}

// RunNodeSimilarity streams node similarity over the projection: pairs of
// entities scored by shared property values. Only strictly positive scores
// are returned, descending.
func (m *Manager) RunNodeSimilarity(ctx context.Context, topK int, cutoff float64) ([]SimilarityPair, error) {
	metric := m.monitor.Start("node_similarity", map[string]string{"graph": m.cfg.GraphName})
	defer m.monitor.Stop(metric)

	query := fmt.Sprintf(`
		CALL gds.nodeSimilarity.stream($name, {
			topK: $top_k,
			similarityCutoff: $cutoff
		})
		YIELD node1, node2, similarity
		WHERE similarity > 0
		RETURN
			gds.util.asNode(node1).`+"`%s`"+` AS node1_id,
			gds.util.asNode(node2).`+"`%s`"+` AS node2_id,
			similarity
		ORDER BY similarity DESC
		LIMIT %d`,
		m.cfg.SourceIDProperty, m.cfg.SourceIDProperty, resultLimit)

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"name":   m.cfg.GraphName,
		"top_k":  topK,
		"cutoff": cutoff,
	})
	if err != nil {
		return nil, mapGraphError(err, m.cfg.GraphName)
	}

	pairs := make([]SimilarityPair, 0, len(rows))
	for _, row := range rows {
		pairs = append(pairs, SimilarityPair{
			Node1ID:    asString(row["node1_id"]),
			Node2ID:    asString(row["node2_id"]),
			Similarity: graphstore.AsFloat64(row["similarity"]),
		})
	}
	return pairs, nil
}

// RunPageRank streams PageRank scores restricted to the source label.
// Property nodes participate in the computation but are excluded from the
// result.
func (m *Manager) RunPageRank(ctx context.Context, maxIterations int, dampingFactor float64) ([]NodeScore, error) {
	metric := m.monitor.Start("pagerank", map[string]string{"graph": m.cfg.GraphName})
	defer m.monitor.Stop(metric)

	query := fmt.Sprintf(`
		CALL gds.pageRank.stream($name, {
			maxIterations: $max_iterations,
			dampingFactor: $damping_factor
		})
		YIELD nodeId, score
		WITH gds.util.asNode(nodeId) AS node, score
		WHERE $source_label IN labels(node)
		RETURN node.`+"`%s`"+` AS node_id, score
		ORDER BY score DESC
		LIMIT %d`,
		m.cfg.SourceIDProperty, resultLimit)

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"name":           m.cfg.GraphName,
		"max_iterations": maxIterations,
		"damping_factor": dampingFactor,
		"source_label":   m.cfg.SourceLabel,
	})
	if err != nil {
		return nil, mapGraphError(err, m.cfg.GraphName)
	}

	scores := make([]NodeScore, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, NodeScore{
			NodeID: asString(row["node_id"]),
			Score:  graphstore.AsFloat64(row["score"]),
		})
	}
	return scores, nil
}

// communityProcedures maps supported algorithm names to their GDS procedure
// and the column the stream yields the assignment under: wcc reports
// componentId where louvain and labelPropagation report communityId.
var communityProcedures = map[string]struct {
	procedure   string
	yieldColumn string
}{
	"louvain":          {"gds.louvain.stream", "communityId"},
	"labelPropagation": {"gds.labelPropagation.stream", "communityId"},
	"wcc":              {"gds.wcc.stream", "componentId"},
}

// RunCommunityDetection streams community assignments restricted to the
// source label. Supported algorithms: louvain, labelPropagation, wcc.
func (m *Manager) RunCommunityDetection(ctx context.Context, algorithm string) ([]CommunityAssignment, error) {
	proc, ok := communityProcedures[algorithm]
	if !ok {
		return nil, errors.Errorf("unknown community algorithm: %s", algorithm)
	}

	metric := m.monitor.Start("community_detection", map[string]string{
		"graph":     m.cfg.GraphName,
		"algorithm": algorithm,
	})
	defer m.monitor.Stop(metric)

	query := fmt.Sprintf(`
		CALL %s($name)
		YIELD nodeId, %s
		WITH gds.util.asNode(nodeId) AS node, %s AS communityId
		WHERE $source_label IN labels(node)
		RETURN node.`+"`%s`"+` AS node_id, communityId
		ORDER BY communityId
		LIMIT %d`,
		proc.procedure, proc.yieldColumn, proc.yieldColumn,
		m.cfg.SourceIDProperty, communityResultLimit)

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"name":         m.cfg.GraphName,
		"source_label": m.cfg.SourceLabel,
	})
	if err != nil {
		return nil, mapGraphError(err, m.cfg.GraphName)
	}

	assignments := make([]CommunityAssignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, CommunityAssignment{
			NodeID:      asString(row["node_id"]),
			CommunityID: graphstore.AsInt64(row["communityId"]),
		})
	}
	return assignments, nil
}

// CommunitySizes reduces community assignments to per-community entity
// counts, sorted descending by size.
func CommunitySizes(assignments []CommunityAssignment) []CommunitySize {
	counts := make(map[int64]int)
	for _, a := range assignments {
		counts[a.CommunityID]++
	}
	sizes := make([]CommunitySize, 0, len(counts))
	for id, n := range counts {
		sizes = append(sizes, CommunitySize{CommunityID: id, Size: n})
	}
	sort.Slice(sizes, func(i, j int) bool {
		if sizes[i].Size != sizes[j].Size {
			return sizes[i].Size > sizes[j].Size
		}
		return sizes[i].CommunityID < sizes[j].CommunityID
	})
	return sizes
}

// ProjectionStats returns the projection metadata together with the degree
// distribution of its source nodes.
func (m *Manager) ProjectionStats(ctx context.Context) (*GraphInfo, *DegreeStats, error) {
	info, err := m.ProjectionInfo(ctx)
	if err != nil {
		return nil, nil, err
	}

	query := `
		CALL gds.degree.stream($name)
		YIELD nodeId, score
		WITH gds.util.asNode(nodeId) AS node, score
		WHERE $source_label IN labels(node)
		RETURN
			min(score) AS min_degree,
			max(score) AS max_degree,
			avg(score) AS avg_degree,
			percentileCont(score, 0.5) AS median_degree`

	rows, err := m.runner.ExecuteQuery(ctx, query, map[string]interface{}{
		"name":         m.cfg.GraphName,
		"source_label": m.cfg.SourceLabel,
	})
	if err != nil {
		return nil, nil, mapGraphError(err, m.cfg.GraphName)
	}
	if len(rows) == 0 {
		return info, &DegreeStats{}, nil
	}
	stats := &DegreeStats{
		Min:    graphstore.AsFloat64(rows[0]["min_degree"]),
		Max:    graphstore.AsFloat64(rows[0]["max_degree"]),
		Avg:    graphstore.AsFloat64(rows[0]["avg_degree"]),
		Median: graphstore.AsFloat64(rows[0]["median_degree"]),
	}
	return info, stats, nil
}

// mapGraphError translates the engine's missing-graph failure into
// ErrGraphNotFound and passes everything else through unmodified.
func mapGraphError(err error, name string) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "does not exist") {
		return errors.Wrapf(ErrGraphNotFound, "projection %q", name)
	}
	return err
}

func graphInfoFromRow(row map[string]interface{}) GraphInfo {
	memory, _ := row["memoryUsage"].(string)
	return GraphInfo{
		Name:              asString(row["graphName"]),
		NodeCount:         graphstore.AsInt64(row["nodeCount"]),
		RelationshipCount: graphstore.AsInt64(row["relationshipCount"]),
		MemoryUsage:       memory,
		ProjectMillis:     graphstore.AsInt64(row["projectMillis"]),
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
