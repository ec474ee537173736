package profiler

import (
	"github.com/pkg/errors"
)

// PropertyType classifies an attribute by how many distinct values it takes
// relative to the entity population.
type PropertyType string

const (
	// Unique attributes take a different value on every entity.
	Unique PropertyType = "UNIQUE"
	// SemiUnique attributes are mostly distinct but repeat occasionally.
	SemiUnique PropertyType = "SEMI_UNIQUE"
	// Categorical attributes group entities into a moderate number of buckets.
	Categorical PropertyType = "CATEGORICAL"
	// HighlyCategorical attributes take very few distinct values.
	HighlyCategorical PropertyType = "HIGHLY_CATEGORICAL"
)

// ErrEmptyPopulation is returned when a label has no entities, in which case
// the unique ratio is undefined and no profile can be produced.
var ErrEmptyPopulation = errors.New("profiler: entity population is empty")

// ClassifyRatio maps a unique ratio in [0,1] onto a PropertyType. The rule is
// evaluated top-down: exactly 1.0 is UNIQUE, strictly below 0.05 is
// HIGHLY_CATEGORICAL, strictly below 0.5 is CATEGORICAL, everything else is
// SEMI_UNIQUE. Callers must not pass a ratio derived from an empty population.
func ClassifyRatio(ratio float64) PropertyType {
	switch {
	case ratio == 1.0:
		return Unique
	case ratio < 0.05:
		return HighlyCategorical
	case ratio < 0.5:
		return Categorical
	default:
		return SemiUnique
	}
}

// ValueCount is one attribute value and the number of entities holding it.
type ValueCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// AttributeProfile summarizes the cardinality behavior of one attribute on
// one entity label. Profiles are computed fresh per run and never merged.
type AttributeProfile struct {
	TotalCount    int64        `json:"total_count"`
	DistinctCount int64        `json:"distinct_count"`
	NullCount     int64        `json:"null_count"`
	UniqueRatio   float64      `json:"unique_ratio"`
	Type          PropertyType `json:"type"`
	// TopValues lists up to ten most frequent values, descending by count.
	// Present only for categorical and highly categorical attributes.
	TopValues []ValueCount `json:"top_values,omitempty"`
}

// topValueLimit caps how many frequent values a profile carries.
const topValueLimit = 10

// newProfile derives the ratio and type from raw counts. totalCount must be
// positive; the caller guards the empty-population case.
func newProfile(totalCount, distinctCount, nullCount int64) AttributeProfile {
	ratio := float64(distinctCount) / float64(totalCount)
	return AttributeProfile{
		TotalCount:    totalCount,
		DistinctCount: distinctCount,
		NullCount:     nullCount,
		UniqueRatio:   ratio,
		Type:          ClassifyRatio(ratio),
	}
}

// IsCategorical reports whether the profile's type calls for top-value
// sampling.
func (p AttributeProfile) IsCategorical() bool {
	return p.Type == Categorical || p.Type == HighlyCategorical
}
