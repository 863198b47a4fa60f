package geojson

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/osmclip/internal/domain"
)

// ErrNoPolygon is returned when a region document holds no polygon.
var ErrNoPolygon = errors.New("no polygon found")

// Decode parses a GeoJSON FeatureCollection into domain features.
// Non-string property values are rendered with fmt.
func Decode(data []byte) (*domain.FeatureCollection, error) {
	gfc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decoding feature collection: %w", err)
	}

	features := make([]domain.Feature, 0, len(gfc.Features))
	for _, gf := range gfc.Features {
		f := domain.Feature{
			Geometry: gf.Geometry,
			Tags:     make(map[string]string, len(gf.Properties)),
		}
		if gf.ID != nil {
			f.ID = fmt.Sprint(gf.ID)
		}
		for k, v := range gf.Properties {
			if s, ok := v.(string); ok {
				f.Tags[k] = s
			} else {
				f.Tags[k] = fmt.Sprint(v)
			}
		}
		features = append(features, f)
	}
	return domain.NewFeatureCollection(features), nil
}

// DecodeRegion extracts region vertices from a GeoJSON document: a bare
// Polygon or MultiPolygon geometry, a Feature, or the first polygon Feature of
// a FeatureCollection. Only the exterior ring of the first polygon is used.
func DecodeRegion(data []byte) ([]domain.Coordinate, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding region: %w", err)
	}

	var geom orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, fmt.Errorf("decoding region: %w", err)
		}
		for _, f := range fc.Features {
			if isPolygonal(f.Geometry) {
				geom = f.Geometry
				break
			}
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, fmt.Errorf("decoding region: %w", err)
		}
		geom = f.Geometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, fmt.Errorf("decoding region: %w", err)
		}
		geom = g.Geometry()
	}

	ring, ok := exteriorRing(geom)
	if !ok {
		return nil, ErrNoPolygon
	}

	points := make([]domain.Coordinate, 0, len(ring))
	for _, p := range ring {
		points = append(points, domain.CoordinateFromPoint(p))
	}
	return points, nil
}

func isPolygonal(g orb.Geometry) bool {
	_, ok := exteriorRing(g)
	return ok
}

func exteriorRing(g orb.Geometry) (orb.Ring, bool) {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) > 0 {
			return v[0], true
		}
	case orb.MultiPolygon:
		if len(v) > 0 && len(v[0]) > 0 {
			return v[0][0], true
		}
	case orb.Ring:
		return v, true
	}
	return nil, false
}
