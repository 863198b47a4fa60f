package domain

import (
	"errors"
	"testing"
)

func square() []Coordinate {
	return []Coordinate{
		{Lat: 24.70, Lon: 46.60},
		{Lat: 24.70, Lon: 46.70},
		{Lat: 24.80, Lon: 46.70},
		{Lat: 24.80, Lon: 46.60},
	}
}

func TestNewRegion(t *testing.T) {
	tests := []struct {
		name      string
		points    []Coordinate
		wantErr   bool
		wantLen   int
		wantIndex int
	}{
		{name: "square", points: square(), wantLen: 4},
		{name: "triangle", points: square()[:3], wantLen: 3},
		{name: "closed ring drops duplicate", points: append(square(), square()[0]), wantLen: 4},
		{name: "two points", points: square()[:2], wantErr: true, wantIndex: -1},
		{name: "empty", points: nil, wantErr: true, wantIndex: -1},
		{name: "closed triangle with 3 vertices", points: []Coordinate{{1, 1}, {1, 2}, {1, 1}}, wantErr: true, wantIndex: -1},
		{
			name:      "latitude out of range",
			points:    []Coordinate{{1, 1}, {95, 2}, {2, 2}},
			wantErr:   true,
			wantIndex: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegion("r1", tt.points)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRegion() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidGeometry) {
					t.Errorf("error should wrap ErrInvalidGeometry, got %v", err)
				}
				var gErr *GeometryError
				if !errors.As(err, &gErr) {
					t.Fatalf("error should be *GeometryError, got %T", err)
				}
				if gErr.Index != tt.wantIndex {
					t.Errorf("Index = %d, want %d", gErr.Index, tt.wantIndex)
				}
				return
			}
			if r.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", r.Len(), tt.wantLen)
			}
			if r.ID != "r1" {
				t.Errorf("ID = %q, want r1", r.ID)
			}
		})
	}
}

func TestNewRegionCopiesInput(t *testing.T) {
	points := square()
	r, err := NewRegion("r1", points)
	if err != nil {
		t.Fatalf("NewRegion() error = %v", err)
	}

	points[0].Lat = 0
	if r.Points[0].Lat != 24.70 {
		t.Error("region must not alias caller's slice")
	}
}

func TestRegionRing(t *testing.T) {
	r, _ := NewRegion("r1", square())
	ring := r.Ring()

	if len(ring) != 5 {
		t.Fatalf("len(Ring()) = %d, want 5", len(ring))
	}
	if !ring.Closed() {
		t.Error("Ring() should be closed")
	}
	if ring[0].Lon() != 46.60 || ring[0].Lat() != 24.70 {
		t.Errorf("Ring()[0] = %v, want lon/lat order", ring[0])
	}

	b := r.Bound()
	if b.Min.Lat() != 24.70 || b.Max.Lon() != 46.70 {
		t.Errorf("Bound() = %v", b)
	}
}
