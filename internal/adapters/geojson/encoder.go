// Package geojson encodes and decodes features and regions as RFC 7946 GeoJSON.
package geojson

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"

	"github.com/jobrunner/osmclip/internal/domain"
)

// Format is the encoder format name.
const Format = "geojson"

// Encoder writes feature collections as pretty-printed GeoJSON.
// It implements output.FeatureEncoder.
type Encoder struct {
	indent string
}

// NewEncoder creates a GeoJSON encoder using a two-space indent.
func NewEncoder() *Encoder {
	return &Encoder{indent: "  "}
}

// Encode implements output.FeatureEncoder.
func (e *Encoder) Encode(_ context.Context, fc *domain.FeatureCollection) ([]byte, error) {
	out := ToFeatureCollection(fc)

	var (
		data []byte
		err  error
	)
	if e.indent == "" {
		data, err = json.Marshal(out)
	} else {
		data, err = json.MarshalIndent(out, "", e.indent)
	}
	if err != nil {
		return nil, fmt.Errorf("marshaling feature collection: %w", err)
	}
	return data, nil
}

// Format implements output.FeatureEncoder.
func (e *Encoder) Format() string { return Format }

// Extension implements output.FeatureEncoder.
func (e *Encoder) Extension() string { return ".geojson" }

// ContentType implements output.FeatureEncoder.
func (e *Encoder) ContentType() string { return "application/geo+json" }

// ToFeatureCollection converts domain features. Tags become properties and the
// OSM identity becomes the feature id.
func ToFeatureCollection(fc *domain.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}

	out.Features = make([]*geojson.Feature, 0, fc.Len())
	for _, f := range fc.Features {
		gf := geojson.NewFeature(f.Geometry)
		gf.ID = f.ID
		for k, v := range f.Tags {
			gf.Properties[k] = v
		}
		out.Append(gf)
	}
	return out
}
