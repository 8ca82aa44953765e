// Package geo holds the pure geometry used by the simulation: positions,
// great-circle distance, bearing and route interpolation.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Position is a WGS84 coordinate.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the position carries usable coordinates. The zero
// value is treated as missing data, matching how unset positions flow in
// from external sources.
func (p Position) Valid() bool {
	if p.Lon == 0 || p.Lat == 0 {
		return false
	}
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return false
	}
	if p.Lon < -180 || p.Lon > 180 {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 {
		return false
	}
	return true
}

// Point converts the position to an orb.Point.
func (p Position) Point() orb.Point { return orb.Point{p.Lon, p.Lat} }

// DistanceTo returns the great-circle distance in whole meters. Invalid
// input yields 0 so distance sorting stays total.
func (p Position) DistanceTo(other Position) float64 {
	return Haversine(p, other)
}

func (p Position) String() string {
	return fmt.Sprintf("(%f,%f)", p.Lon, p.Lat)
}

// Haversine returns the distance between two positions in meters, rounded
// to the nearest meter. It is symmetric and returns 0 when either position
// is invalid.
func Haversine(a, b Position) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	d := math.Round(orbgeo.DistanceHaversine(a.Point(), b.Point()))
	if math.IsNaN(d) {
		return 0
	}
	return d
}

// Bearing returns the initial bearing from a to b in whole degrees.
func Bearing(a, b Position) float64 {
	if !a.Valid() || !b.Valid() {
		return 0
	}
	return math.Round(orbgeo.Bearing(a.Point(), b.Point()))
}
