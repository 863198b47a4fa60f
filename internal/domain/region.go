package domain

import (
	"github.com/paulmach/orb"
)

// MinRegionPoints is the smallest number of distinct vertices forming a region.
const MinRegionPoints = 3

// Region is the user-drawn polygon delimiting an extraction.
// Points form an open ring: the closing vertex is implied.
type Region struct {
	ID     string       // Identity, preserved across edits
	Points []Coordinate // Ordered ring vertices
}

// NewRegion validates points and builds a region with the given identity.
// A trailing vertex equal to the first one is dropped.
func NewRegion(id string, points []Coordinate) (Region, error) {
	ring := make([]Coordinate, len(points))
	copy(ring, points)

	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}

	if len(ring) < MinRegionPoints {
		return Region{}, &GeometryError{
			Index:  -1,
			Reason: "a region needs at least 3 distinct points",
		}
	}

	for i, c := range ring {
		if err := c.Validate(); err != nil {
			return Region{}, &GeometryError{
				Index:  i,
				Reason: "coordinate out of range",
				Err:    err,
			}
		}
	}

	return Region{ID: id, Points: ring}, nil
}

// Len returns the number of vertices.
func (r Region) Len() int {
	return len(r.Points)
}

// Ring returns the closed ring in lon/lat order.
func (r Region) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(r.Points)+1)
	for _, c := range r.Points {
		ring = append(ring, c.Point())
	}
	if len(ring) > 0 {
		ring = append(ring, ring[0])
	}
	return ring
}

// Bound returns the bounding box of the region.
func (r Region) Bound() orb.Bound {
	return r.Ring().Bound()
}

// Clone returns a deep copy of the region.
func (r Region) Clone() Region {
	points := make([]Coordinate, len(r.Points))
	copy(points, r.Points)
	return Region{ID: r.ID, Points: points}
}
