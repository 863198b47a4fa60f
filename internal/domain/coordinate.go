// Package domain contains the core business entities and value objects.
package domain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coordinate represents a WGS84 position.
type Coordinate struct {
	Lat float64 // Latitude in degrees
	Lon float64 // Longitude in degrees
}

// NewCoordinate creates a coordinate from latitude and longitude.
func NewCoordinate(lat, lon float64) Coordinate {
	return Coordinate{Lat: lat, Lon: lon}
}

// Validate checks that the coordinate is finite and within WGS84 bounds.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) {
		return &ValidationError{
			Field:      "latitude",
			Value:      c.Lat,
			Constraint: "finite",
			Message:    "latitude must be a finite number",
		}
	}
	if math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return &ValidationError{
			Field:      "longitude",
			Value:      c.Lon,
			Constraint: "finite",
			Message:    "longitude must be a finite number",
		}
	}
	if c.Lat < -90 || c.Lat > 90 {
		return &ValidationError{
			Field:      "latitude",
			Value:      c.Lat,
			Constraint: "[-90, 90]",
			Message:    "latitude must be between -90 and 90",
		}
	}
	if c.Lon < -180 || c.Lon > 180 {
		return &ValidationError{
			Field:      "longitude",
			Value:      c.Lon,
			Constraint: "[-180, 180]",
			Message:    "longitude must be between -180 and 180",
		}
	}
	return nil
}

// Point returns the coordinate as an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

// CoordinateFromPoint converts an orb point (lon, lat order) to a coordinate.
func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// String returns a string representation of the coordinate.
func (c Coordinate) String() string {
	return fmt.Sprintf("(%f, %f)", c.Lat, c.Lon)
}
