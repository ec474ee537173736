package projection

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/athapong/graph-profiler/pkg/config"
)

// mergeStore simulates the store's MERGE semantics over a fixed entity
// population: property nodes are keyed by (attribute, value), edges by
// (entity, attribute, value). Re-merging an existing key is a no-op.
type mergeStore struct {
	// entities maps element id -> attribute bag.
	entities map[string]map[string]string
	nodes    map[string]bool
	edges    map[string]bool

	failAttr string // attribute whose writes fail
}

func newMergeStore(entities map[string]map[string]string) *mergeStore {
	return &mergeStore{
		entities: entities,
		nodes:    make(map[string]bool),
		edges:    make(map[string]bool),
	}
}

func (s *mergeStore) ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}

func (s *mergeStore) ExecuteWrite(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	if strings.Contains(cypher, "DETACH DELETE") {
		deleted := int64(len(s.nodes))
		s.nodes = make(map[string]bool)
		s.edges = make(map[string]bool)
		return []map[string]interface{}{{"deleted": deleted}}, nil
	}

	attr, _ := params["attribute"].(string)
	if attr == s.failAttr {
		return nil, errors.New("write batch failed")
	}
	skip := params["skip"].(int64)
	limit := params["limit"].(int64)

	// Entities holding the attribute, in stable id order.
	ids := make([]string, 0, len(s.entities))
	for id, props := range s.entities {
		if _, ok := props[attr]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if skip >= int64(len(ids)) {
		ids = nil
	} else {
		ids = ids[skip:]
		if int64(len(ids)) > limit {
			ids = ids[:limit]
		}
	}

	propsMerged := make(map[string]bool)
	var rels int64
	for _, id := range ids {
		value := s.entities[id][attr]
		nodeKey := attr + "=" + value
		s.nodes[nodeKey] = true
		propsMerged[nodeKey] = true
		s.edges[id+"->"+nodeKey] = true
		rels++
	}

	return []map[string]interface{}{{
		"props_merged": int64(len(propsMerged)),
		"rels_merged":  rels,
	}}, nil
}

func testConfig(attrs ...string) config.ProjectionConfig {
	cfg := config.DefaultProjectionConfig()
	cfg.SourceLabel = "Person"
	cfg.Attributes = attrs
	cfg.BatchSize = 2
	return cfg
}

func entityFixture() map[string]map[string]string {
	return map[string]map[string]string{
		"e1": {"country": "US", "plan": "free"},
		"e2": {"country": "US", "plan": "pro"},
		"e3": {"country": "DE", "plan": "pro"},
		"e4": {"country": "FR"},
		"e5": {"plan": "free"},
	}
}

func TestMaterializeAllCounts(t *testing.T) {
	store := newMergeStore(entityFixture())
	m, err := NewMaterializer(store, testConfig("country", "plan"))
	require.NoError(t, err)

	report, err := m.MaterializeAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Failed())

	// 3 distinct countries + 2 distinct plans.
	assert.Len(t, store.nodes, 5)
	// 4 entities hold country, 4 hold plan.
	assert.Len(t, store.edges, 8)
	assert.Equal(t, int64(8), report.Relationships)
}

func TestMaterializeAllIsIdempotent(t *testing.T) {
	store := newMergeStore(entityFixture())
	m, err := NewMaterializer(store, testConfig("country", "plan"))
	require.NoError(t, err)

	first, err := m.MaterializeAll(context.Background())
	require.NoError(t, err)
	nodesAfterFirst := len(store.nodes)
	edgesAfterFirst := len(store.edges)

	second, err := m.MaterializeAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, nodesAfterFirst, len(store.nodes), "second run must not create nodes")
	assert.Equal(t, edgesAfterFirst, len(store.edges), "second run must not create edges")
	assert.Equal(t, first.Relationships, second.Relationships)
}

func TestMaterializeAllPartialFailureContinues(t *testing.T) {
	store := newMergeStore(entityFixture())
	store.failAttr = "country"
	m, err := NewMaterializer(store, testConfig("country", "plan"))
	require.NoError(t, err)

	report, err := m.MaterializeAll(context.Background())
	require.NoError(t, err)

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "country", failed[0].Attribute)
	assert.Error(t, failed[0].Err)

	// plan still materialized: 2 nodes, 4 edges.
	assert.Len(t, store.nodes, 2)
	assert.Len(t, store.edges, 4)
	assert.Equal(t, int64(4), report.Relationships)
}

func TestTeardownDeletesAllPropertyNodes(t *testing.T) {
	store := newMergeStore(entityFixture())
	m, err := NewMaterializer(store, testConfig("country", "plan"))
	require.NoError(t, err)

	_, err = m.MaterializeAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, store.nodes)

	deleted, err := m.Teardown(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), deleted)
	assert.Empty(t, store.nodes)
	assert.Empty(t, store.edges)
}

func TestNewMaterializerRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultProjectionConfig()
	cfg.Attributes = []string{"country"} // no source label
	_, err := NewMaterializer(newMergeStore(nil), cfg)
	assert.Error(t, err)
}

func TestMaterializeAllRequiresAttributes(t *testing.T) {
	cfg := config.DefaultProjectionConfig()
	cfg.SourceLabel = "Person"
	m, err := NewMaterializer(newMergeStore(nil), cfg)
	require.NoError(t, err)

	_, err = m.MaterializeAll(context.Background())
	assert.Error(t, err)
}

func TestBatchQueryShape(t *testing.T) {
	cfg := testConfig("country")
	cfg.SourceFilter = "source.active = true"
	m, err := NewMaterializer(newMergeStore(nil), cfg)
	require.NoError(t, err)

	query := m.batchQuery("country")
	assert.Contains(t, query, "MERGE (p:`Property` {name: $attribute, value: toString(propValue)})")
	assert.Contains(t, query, "MERGE (source)-[r:`HAS`]->(p)")
	assert.Contains(t, query, "WHERE source.active = true AND source.`country` IS NOT NULL")
	assert.Contains(t, query, "ORDER BY elementId(source)")
	assert.Equal(t, 1, strings.Count(query, "WHERE"), "filter must fold into a single WHERE clause")
}

func TestMaterializeBatchingVisitsAllEntities(t *testing.T) {
	// 7 entities with batch size 2 forces four windows.
	entities := make(map[string]map[string]string)
	for i := 1; i <= 7; i++ {
		entities[fmt.Sprintf("e%d", i)] = map[string]string{"country": "US"}
	}
	store := newMergeStore(entities)
	m, err := NewMaterializer(store, testConfig("country"))
	require.NoError(t, err)

	report, err := m.MaterializeAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), report.Relationships)
	assert.Len(t, store.edges, 7)
	assert.Len(t, store.nodes, 1)
}
