package extract

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildExtractionQuerySample(t *testing.T) {
	cypher, params, shape := buildExtractionQuery("Person", 1000, Options{SampleSize: 100})
	assert.Equal(t, "sample", shape)
	assert.Contains(t, cypher, "rand()")
	assert.Contains(t, cypher, "ORDER BY r")
	assert.Equal(t, int64(100), params["rows"])
}

func TestBuildExtractionQuerySampleWinsOverLimit(t *testing.T) {
	_, params, shape := buildExtractionQuery("Person", 1000, Options{SampleSize: 100, Limit: 50})
	assert.Equal(t, "sample", shape)
	assert.Equal(t, int64(100), params["rows"])
}

func TestBuildExtractionQuerySampleCoveringPopulationFallsBackToFull(t *testing.T) {
	cypher, _, shape := buildExtractionQuery("Person", 100, Options{SampleSize: 100})
	assert.Equal(t, "full", shape)
	assert.NotContains(t, cypher, "rand()")
	assert.NotContains(t, cypher, "LIMIT")
}

func TestBuildExtractionQueryLimit(t *testing.T) {
	cypher, params, shape := buildExtractionQuery("Person", 1000, Options{Limit: 10})
	assert.Equal(t, "limit", shape)
	assert.NotContains(t, cypher, "rand()")
	assert.Contains(t, cypher, "LIMIT")
	assert.Equal(t, int64(10), params["rows"])
}

func TestBuildExtractionQueryLimitCoveringPopulationFallsBackToFull(t *testing.T) {
	_, _, shape := buildExtractionQuery("Person", 10, Options{Limit: 10})
	assert.Equal(t, "full", shape)
}

func TestBuildExtractionQueryFull(t *testing.T) {
	cypher, params, shape := buildExtractionQuery("Person", 10, Options{})
	assert.Equal(t, "full", shape)
	assert.Empty(t, params)
	assert.Contains(t, cypher, "properties(n) AS props")
	assert.Contains(t, cypher, "elementId(n) AS element_id")
}

type fakeStreamer struct {
	rows      []map[string]interface{}
	lastQuery string
}

func (f *fakeStreamer) StreamQuery(ctx context.Context, cypher string, params map[string]interface{}, fn func(row map[string]interface{}) error) error {
	f.lastQuery = cypher
	for _, row := range f.rows {
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

func TestExtractTableCollectsRows(t *testing.T) {
	streamer := &fakeStreamer{rows: []map[string]interface{}{
		{"element_id": "4:abc:0", "props": map[string]interface{}{"name": "ada", "country": "UK"}},
		{"element_id": "4:abc:1", "props": map[string]interface{}{"name": "bob"}},
	}}

	table, err := NewExtractor(streamer).ExtractTable(context.Background(), "Person", 2, Options{})
	require.NoError(t, err)
	require.Equal(t, 2, table.Len())

	assert.Equal(t, "4:abc:0", table.Rows[0].ElementID)
	assert.Equal(t, "ada", table.Rows[0].Props["name"])
	assert.Equal(t, []string{"country", "name"}, table.Columns())
	assert.True(t, strings.Contains(streamer.lastQuery, "MATCH (n:`Person`)"))
}

func TestExtractTableEmptyResult(t *testing.T) {
	table, err := NewExtractor(&fakeStreamer{}).ExtractTable(context.Background(), "Ghost", 0, Options{})
	require.NoError(t, err)
	assert.True(t, table.Empty())
	assert.Empty(t, table.Columns())
}
