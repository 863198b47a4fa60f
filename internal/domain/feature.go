package domain

import (
	"github.com/paulmach/orb"
)

// Feature is one extracted OSM entity.
type Feature struct {
	ID       string            // OSM identity, e.g. "way/42"
	Geometry orb.Geometry      // Point, LineString, Polygon or their multi variants
	Tags     map[string]string // OSM tags
}

// GeometryType returns the GeoJSON geometry type name.
func (f *Feature) GeometryType() string {
	if f.Geometry == nil {
		return ""
	}
	return f.Geometry.GeoJSONType()
}

// Tag returns a tag value by key.
func (f *Feature) Tag(key string) (string, bool) {
	if f.Tags == nil {
		return "", false
	}
	v, ok := f.Tags[key]
	return v, ok
}

// Name returns the name tag, if any.
func (f *Feature) Name() string {
	v, _ := f.Tag("name")
	return v
}

// IsPoint returns true if the geometry is a point.
func (f *Feature) IsPoint() bool {
	switch f.Geometry.(type) {
	case orb.Point, orb.MultiPoint:
		return true
	}
	return false
}

// IsLine returns true if the geometry is a line.
func (f *Feature) IsLine() bool {
	switch f.Geometry.(type) {
	case orb.LineString, orb.MultiLineString:
		return true
	}
	return false
}

// IsPolygon returns true if the geometry is a polygon.
func (f *Feature) IsPolygon() bool {
	switch f.Geometry.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return true
	}
	return false
}

// FeatureCollection is an ordered, immutable set of features.
type FeatureCollection struct {
	Features []Feature
}

// NewFeatureCollection creates a collection from features.
func NewFeatureCollection(features []Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{Features: features}
}

// Len returns the number of features.
func (fc *FeatureCollection) Len() int {
	if fc == nil {
		return 0
	}
	return len(fc.Features)
}

// IsEmpty returns true if the collection holds no features.
func (fc *FeatureCollection) IsEmpty() bool {
	return fc.Len() == 0
}

// Filter returns a new collection with the features whose geometry class is enabled.
func (fc *FeatureCollection) Filter(kinds GeometryKinds) *FeatureCollection {
	if fc == nil {
		return NewFeatureCollection(nil)
	}
	if kinds.All() {
		return fc
	}
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if kinds.Allows(f.Geometry) {
			out = append(out, f)
		}
	}
	return NewFeatureCollection(out)
}

// CountByGeometry returns feature counts per geometry class.
func (fc *FeatureCollection) CountByGeometry() map[string]int {
	counts := map[string]int{"points": 0, "lines": 0, "polygons": 0}
	if fc == nil {
		return counts
	}
	for i := range fc.Features {
		f := &fc.Features[i]
		switch {
		case f.IsPoint():
			counts["points"]++
		case f.IsLine():
			counts["lines"]++
		case f.IsPolygon():
			counts["polygons"]++
		}
	}
	return counts
}

// ExportArtifact describes a file handed to the export sink.
type ExportArtifact struct {
	Filename    string // File name including extension
	Location    string // Sink-specific location (path, URL, object key)
	Format      string // Encoder format name
	ContentType string // MIME type
	Size        int    // Size in bytes
	Features    int    // Number of exported features
}
