// Package results persists classification runs as durable JSON records and
// reloads them for later runs, e.g. to pick which attributes are safe to
// materialize.
package results

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"

	"github.com/athapong/graph-profiler/pkg/profiler"
)

// ErrNoRecords is returned when a directory holds no archive records.
var ErrNoRecords = errors.New("results: no records found")

const (
	filePrefix      = "profile_results_"
	fileSuffix      = ".json"
	timestampLayout = "20060102_150405"
)

// Record is one archived classification run: the configuration it ran with
// and the full classification table, keyed by entity label then attribute.
type Record struct {
	ID        string                                           `json:"id"`
	Timestamp time.Time                                        `json:"timestamp"`
	Config    map[string]interface{}                           `json:"config,omitempty"`
	Results   map[string]map[string]profiler.AttributeProfile `json:"results"`
}

// NewRecord stamps a fresh record for the given run.
func NewRecord(cfg map[string]interface{}, results map[string]map[string]profiler.AttributeProfile) *Record {
	return &Record{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Config:    cfg,
		Results:   results,
	}
}

// Save writes the record into dir and returns the file path. The filename
// carries the record timestamp so directory listings sort chronologically.
func Save(dir string, record *Record) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", err
	}

	name := filePrefix + record.Timestamp.Format(timestampLayout) + fileSuffix
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads one record from a file.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrapf(err, "results: decoding %s", path)
	}
	return &record, nil
}

// FindLatest returns the path of the most recent record in dir, by file
// modification time. Files without a readable timestamp field are skipped.
func FindLatest(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, filePrefix+"*"+fileSuffix))
	if err != nil {
		return "", err
	}

	var latest string
	var latestMod time.Time
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil || !gjson.GetBytes(data, "timestamp").Exists() {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = path
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return "", ErrNoRecords
	}
	return latest, nil
}

// LoadLatest loads the most recent record in dir.
func LoadLatest(dir string) (*Record, error) {
	path, err := FindLatest(dir)
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Identifiers returns the attributes of a label classified as unique keys,
// sorted by name. SEMI_UNIQUE attributes are included unless excluded.
func (r *Record) Identifiers(label string, includeSemiUnique bool) []string {
	return r.selectByType(label, func(t profiler.PropertyType) bool {
		if t == profiler.Unique {
			return true
		}
		return includeSemiUnique && t == profiler.SemiUnique
	})
}

// CategoricalAttributes returns the attributes of a label classified as
// grouping keys, sorted by name. HIGHLY_CATEGORICAL attributes are included
// unless excluded.
func (r *Record) CategoricalAttributes(label string, includeHighlyCategorical bool) []string {
	return r.selectByType(label, func(t profiler.PropertyType) bool {
		if t == profiler.Categorical {
			return true
		}
		return includeHighlyCategorical && t == profiler.HighlyCategorical
	})
}

func (r *Record) selectByType(label string, match func(profiler.PropertyType) bool) []string {
	profiles, ok := r.Results[label]
	if !ok {
		return []string{}
	}
	selected := make([]string, 0)
	for name, profile := range profiles {
		if match(profile.Type) {
			selected = append(selected, name)
		}
	}
	sort.Strings(selected)
	return selected
}
