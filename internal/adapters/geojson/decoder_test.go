package geojson

import (
	"errors"
	"testing"
)

func TestDecodeRegion(t *testing.T) {
	polygon := `{"type":"Polygon","coordinates":[[[46.6,24.7],[46.7,24.7],[46.7,24.8],[46.6,24.8],[46.6,24.7]]]}`

	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"geometry", polygon, 5},
		{"feature", `{"type":"Feature","properties":{},"geometry":` + polygon + `}`, 5},
		{
			"feature collection skips points",
			`{"type":"FeatureCollection","features":[
				{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[1,2]}},
				{"type":"Feature","properties":{},"geometry":` + polygon + `}
			]}`,
			5,
		},
		{
			"multipolygon",
			`{"type":"MultiPolygon","coordinates":[[[[1,1],[2,1],[2,2],[1,1]]],[[[5,5],[6,5],[6,6],[5,5]]]]}`,
			4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, err := DecodeRegion([]byte(tt.doc))
			if err != nil {
				t.Fatalf("DecodeRegion() error = %v", err)
			}
			if len(points) != tt.want {
				t.Fatalf("len(points) = %d, want %d", len(points), tt.want)
			}
		})
	}

	points, _ := DecodeRegion([]byte(polygon))
	if points[1].Lat != 24.7 || points[1].Lon != 46.7 {
		t.Errorf("points[1] = %+v, want lat 24.7 lon 46.7", points[1])
	}
}

func TestDecodeRegionErrors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantNoP bool
	}{
		{"not json", `polygon please`, false},
		{"point", `{"type":"Point","coordinates":[1,2]}`, true},
		{"empty collection", `{"type":"FeatureCollection","features":[]}`, true},
		{"line feature", `{"type":"Feature","properties":{},"geometry":{"type":"LineString","coordinates":[[1,2],[3,4]]}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRegion([]byte(tt.doc))
			if err == nil {
				t.Fatal("DecodeRegion() should fail")
			}
			if tt.wantNoP && !errors.Is(err, ErrNoPolygon) {
				t.Errorf("error = %v, want ErrNoPolygon", err)
			}
		})
	}
}
