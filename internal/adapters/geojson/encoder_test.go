package geojson

import (
	"context"
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/paulmach/orb"

	"github.com/jobrunner/osmclip/internal/domain"
)

func sampleCollection() *domain.FeatureCollection {
	return domain.NewFeatureCollection([]domain.Feature{
		{
			ID:       "node/1",
			Geometry: orb.Point{46.675, 24.713},
			Tags:     map[string]string{"amenity": "cafe", "name": "Qahwa"},
		},
		{
			ID:       "way/2",
			Geometry: orb.LineString{{46.6, 24.7}, {46.61, 24.71}},
			Tags:     map[string]string{"highway": "residential"},
		},
		{
			ID:       "way/3",
			Geometry: orb.Polygon{{{46.6, 24.7}, {46.7, 24.7}, {46.7, 24.8}, {46.6, 24.7}}},
			Tags:     map[string]string{"building": "yes"},
		},
	})
}

func TestEncoderEncode(t *testing.T) {
	enc := NewEncoder()

	data, err := enc.Encode(context.Background(), sampleCollection())
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			ID         string            `json:"id"`
			Type       string            `json:"type"`
			Geometry   json.RawMessage   `json:"geometry"`
			Properties map[string]string `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	if doc.Type != "FeatureCollection" {
		t.Errorf("type = %q, want FeatureCollection", doc.Type)
	}
	if len(doc.Features) != 3 {
		t.Fatalf("len(features) = %d, want 3", len(doc.Features))
	}
	if doc.Features[0].ID != "node/1" || doc.Features[0].Properties["name"] != "Qahwa" {
		t.Errorf("feature 0 = %+v", doc.Features[0])
	}
	if !strings.Contains(string(doc.Features[2].Geometry), `"Polygon"`) {
		t.Errorf("feature 2 geometry = %s", doc.Features[2].Geometry)
	}
	if !strings.Contains(string(data), "\n  \"") {
		t.Error("output should be indented with two spaces")
	}
}

func TestEncoderEmpty(t *testing.T) {
	data, err := NewEncoder().Encode(context.Background(), domain.NewFeatureCollection(nil))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	fc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if fc.Len() != 0 {
		t.Errorf("Len() = %d, want 0", fc.Len())
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleCollection()

	data, err := NewEncoder().Encode(context.Background(), want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got.Features, want.Features)
	}
}

func TestEncoderMetadata(t *testing.T) {
	enc := NewEncoder()
	if enc.Format() != "geojson" || enc.Extension() != ".geojson" || enc.ContentType() != "application/geo+json" {
		t.Errorf("metadata = %s %s %s", enc.Format(), enc.Extension(), enc.ContentType())
	}
}

func TestDecodeStringifiesProperties(t *testing.T) {
	data := []byte(`{"type":"FeatureCollection","features":[
		{"type":"Feature","id":7,"geometry":{"type":"Point","coordinates":[1,2]},"properties":{"levels":3,"name":"x"}}
	]}`)

	fc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	f := fc.Features[0]
	if f.ID != "7" || f.Tags["levels"] != "3" || f.Tags["name"] != "x" {
		t.Errorf("feature = %+v", f)
	}
}
