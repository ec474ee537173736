package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"
)

// Runner executes Cypher against the graph store and returns rows as maps
// keyed by the record's return columns. Read queries and write queries are
// distinguished so the driver can route them with the right transaction
// semantics.
type Runner interface {
	ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error)
	ExecuteWrite(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error)
}

// Store implements Runner using the Neo4j bolt driver.
type Store struct {
	driver    neo4j.Driver
	database  string
	fetchSize int
}

// Option configures a Store.
type Option func(*Store)

// WithDatabase selects a database other than the driver default.
func WithDatabase(name string) Option {
	return func(s *Store) { s.database = name }
}

// WithFetchSize sets the number of records pulled per batch when streaming
// results from the server.
func WithFetchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.fetchSize = n
		}
	}
}

// NewStore creates a Store connected to the given bolt URI.
func NewStore(uri, username, password string, opts ...Option) (*Store, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %v", err)
	}

	s := &Store{
		driver:    driver,
		fetchSize: neo4j.FetchDefault,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// VerifyConnectivity checks that the store is reachable.
func (s *Store) VerifyConnectivity(ctx context.Context) error {
	return s.driver.VerifyConnectivity()
}

// Close releases the underlying driver.
func (s *Store) Close() error {
	if s.driver != nil {
		return s.driver.Close()
	}
	return nil
}

func (s *Store) session(mode neo4j.AccessMode) neo4j.Session {
	return s.driver.NewSession(neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
		FetchSize:    s.fetchSize,
	})
}

// ExecuteQuery runs a read-only query and collects all rows.
func (s *Store) ExecuteQuery(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.session(neo4j.AccessModeRead)
	defer session.Close()

	result, err := session.Run(cypher, params)
	if err != nil {
		return nil, err
	}
	return collectRows(result)
}

// ExecuteWrite runs a query inside a write transaction and collects all rows.
func (s *Store) ExecuteWrite(ctx context.Context, cypher string, params map[string]interface{}) ([]map[string]interface{}, error) {
	session := s.session(neo4j.AccessModeWrite)
	defer session.Close()

	rows, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		result, err := tx.Run(cypher, params)
		if err != nil {
			return nil, err
		}
		return collectRows(result)
	})
	if err != nil {
		return nil, err
	}
	return rows.([]map[string]interface{}), nil
}

// StreamQuery runs a read-only query and invokes fn once per row, in result
// order, without materializing the whole result set.
func (s *Store) StreamQuery(ctx context.Context, cypher string, params map[string]interface{}, fn func(row map[string]interface{}) error) error {
	session := s.session(neo4j.AccessModeRead)
	defer session.Close()

	result, err := session.Run(cypher, params)
	if err != nil {
		return err
	}
	for result.Next() {
		if err := fn(rowFromRecord(result.Record())); err != nil {
			return err
		}
	}
	return result.Err()
}

func collectRows(result neo4j.Result) ([]map[string]interface{}, error) {
	rows := make([]map[string]interface{}, 0)
	for result.Next() {
		rows = append(rows, rowFromRecord(result.Record()))
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return rows, nil
}

func rowFromRecord(record *neo4j.Record) map[string]interface{} {
	row := make(map[string]interface{}, len(record.Keys))
	for i, key := range record.Keys {
		row[key] = record.Values[i]
	}
	return row
}

// NodeLabels returns all node labels present in the database.
func (s *Store) NodeLabels(ctx context.Context) ([]string, error) {
	rows, err := s.ExecuteQuery(ctx, "CALL db.labels()", nil)
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(rows))
	for _, row := range rows {
		label, ok := row["label"].(string)
		if !ok {
			return nil, errors.Errorf("unexpected label row: %v", row)
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// NodeCount returns the total number of nodes carrying the given label.
func (s *Store) NodeCount(ctx context.Context, label string) (int64, error) {
	cypher := fmt.Sprintf("MATCH (n:`%s`) RETURN count(n) AS count", label)
	rows, err := s.ExecuteQuery(ctx, cypher, nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return AsInt64(rows[0]["count"]), nil
}

// DiscoverAttributeKeys returns the property keys observed on nodes with the
// given label. Discovery inspects only the first sampleLimit nodes, so the
// returned set is a lower bound: keys held only by rare nodes may be missed.
func (s *Store) DiscoverAttributeKeys(ctx context.Context, label string, sampleLimit int) ([]string, error) {
	if sampleLimit <= 0 {
		sampleLimit = 1000
	}
	cypher := fmt.Sprintf(`
		MATCH (n:`+"`%s`"+`)
		WITH n LIMIT $limit
		UNWIND keys(n) AS key
		RETURN DISTINCT key`, label)

	rows, err := s.ExecuteQuery(ctx, cypher, map[string]interface{}{"limit": sampleLimit})
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		key, ok := row["key"].(string)
		if !ok {
			return nil, errors.Errorf("unexpected key row: %v", row)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// AsInt64 coerces a driver-returned numeric value to int64. Neo4j integers
// arrive as int64 but fakes and aggregations may hand back other widths.
func AsInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// AsFloat64 coerces a driver-returned numeric value to float64.
func AsFloat64(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}
