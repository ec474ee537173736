package profiler

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAggregateStore serves canned rows keyed by query shape and records how
// many queries of each shape it saw.
type fakeAggregateStore struct {
	statsRows []map[string]interface{}
	topRows   []map[string]interface{}
	keys      []string
	count     int64

	statsQueries int
	topQueries   int
}

func (f *fakeAggregateStore) ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	switch {
	case strings.Contains(cypher, "DISTINCT n."):
		f.statsQueries++
		return f.statsRows, nil
	case strings.Contains(cypher, "ORDER BY count DESC"):
		f.topQueries++
		return f.topRows, nil
	default:
		return nil, nil
	}
}

func (f *fakeAggregateStore) ExecuteWrite(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	return nil, nil
}

func (f *fakeAggregateStore) NodeCount(ctx context.Context, label string) (int64, error) {
	return f.count, nil
}

func (f *fakeAggregateStore) DiscoverAttributeKeys(ctx context.Context, label string, sampleLimit int) ([]string, error) {
	return f.keys, nil
}

func TestProfileAttributeUniqueSkipsTopValuesQuery(t *testing.T) {
	store := &fakeAggregateStore{
		statsRows: []map[string]interface{}{{
			"total":          int64(100),
			"distinct_count": int64(100),
			"null_count":     int64(0),
		}},
	}
	p := NewAggregateProfiler(store)

	profile, err := p.ProfileAttribute(context.Background(), "Person", "email")
	require.NoError(t, err)
	assert.Equal(t, Unique, profile.Type)
	assert.Nil(t, profile.TopValues)
	assert.Equal(t, 1, store.statsQueries)
	assert.Equal(t, 0, store.topQueries, "non-categorical attributes must not trigger the top-values query")
}

func TestProfileAttributeCategoricalFetchesTopValues(t *testing.T) {
	store := &fakeAggregateStore{
		statsRows: []map[string]interface{}{{
			"total":          int64(1000),
			"distinct_count": int64(5),
			"null_count":     int64(0),
		}},
		topRows: []map[string]interface{}{
			{"value": "US", "count": int64(400)},
			{"value": "DE", "count": int64(300)},
			{"value": "FR", "count": int64(300)},
		},
	}
	p := NewAggregateProfiler(store)

	profile, err := p.ProfileAttribute(context.Background(), "Person", "country")
	require.NoError(t, err)
	assert.Equal(t, HighlyCategorical, profile.Type)
	assert.Equal(t, 1, store.topQueries)
	require.Len(t, profile.TopValues, 3)
	assert.Equal(t, ValueCount{Value: "US", Count: 400}, profile.TopValues[0])
}

func TestProfileAttributeEmptyPopulation(t *testing.T) {
	store := &fakeAggregateStore{
		statsRows: []map[string]interface{}{{
			"total":          int64(0),
			"distinct_count": int64(0),
			"null_count":     int64(0),
		}},
	}
	p := NewAggregateProfiler(store)

	_, err := p.ProfileAttribute(context.Background(), "Person", "email")
	assert.ErrorIs(t, err, ErrEmptyPopulation)
}

func TestProfileLabelEmptyPopulationYieldsEmptyMap(t *testing.T) {
	store := &fakeAggregateStore{count: 0, keys: []string{"ignored"}}
	p := NewAggregateProfiler(store)

	summary, err := p.ProfileLabel(context.Background(), "Ghost")
	require.NoError(t, err)
	assert.Empty(t, summary)
	assert.Equal(t, 0, store.statsQueries)
}

func TestProfileLabelProfilesDiscoveredKeys(t *testing.T) {
	store := &fakeAggregateStore{
		count: 100,
		keys:  []string{"email", "name"},
		statsRows: []map[string]interface{}{{
			"total":          int64(100),
			"distinct_count": int64(100),
			"null_count":     int64(0),
		}},
	}
	p := NewAggregateProfiler(store)

	summary, err := p.ProfileLabel(context.Background(), "Person")
	require.NoError(t, err)
	assert.Len(t, summary, 2)
	assert.Equal(t, 2, store.statsQueries)
}
