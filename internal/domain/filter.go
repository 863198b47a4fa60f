package domain

import (
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// CategoryFilter is a normalized set of top-level OSM tag keys.
// An empty filter selects every feature class.
type CategoryFilter struct {
	keys []string
}

// NewCategoryFilter builds a filter from raw tokens. Tokens are trimmed,
// empty tokens dropped and duplicates removed; keys are kept sorted.
func NewCategoryFilter(tokens ...string) CategoryFilter {
	seen := make(map[string]struct{}, len(tokens))
	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		keys = append(keys, t)
	}
	sort.Strings(keys)
	return CategoryFilter{keys: keys}
}

// Keys returns a copy of the filter keys in canonical order.
func (f CategoryFilter) Keys() []string {
	out := make([]string, len(f.keys))
	copy(out, f.keys)
	return out
}

// Len returns the number of keys.
func (f CategoryFilter) Len() int {
	return len(f.keys)
}

// IsEmpty returns true if no category restriction applies.
func (f CategoryFilter) IsEmpty() bool {
	return len(f.keys) == 0
}

// String returns the keys joined by commas.
func (f CategoryFilter) String() string {
	return strings.Join(f.keys, ",")
}

// GeometryKinds selects which geometry classes survive an extraction.
type GeometryKinds struct {
	Points   bool `json:"points"`
	Lines    bool `json:"lines"`
	Polygons bool `json:"polygons"`
}

// AllGeometryKinds enables every geometry class.
func AllGeometryKinds() GeometryKinds {
	return GeometryKinds{Points: true, Lines: true, Polygons: true}
}

// All returns true if no geometry class is excluded.
func (k GeometryKinds) All() bool {
	return k.Points && k.Lines && k.Polygons
}

// Allows checks if the geometry belongs to an enabled class.
func (k GeometryKinds) Allows(g orb.Geometry) bool {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return k.Points
	case orb.LineString, orb.MultiLineString:
		return k.Lines
	case orb.Polygon, orb.MultiPolygon:
		return k.Polygons
	default:
		return false
	}
}

// ExtractionQuery is a query in the remote service's query language.
type ExtractionQuery string

// String returns the query text.
func (q ExtractionQuery) String() string {
	return string(q)
}
