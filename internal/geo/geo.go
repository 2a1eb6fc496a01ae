// Package geo holds the distance and area math used by trails, drawings and imports.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// SquareMetersPerHectare converts m² to hectares
const SquareMetersPerHectare = 10000.0

// Coordinate is a WGS84 position in degrees
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate lies inside the WGS84 range
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

func (c Coordinate) point() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

// Distance returns the haversine great-circle distance in meters
func Distance(a, b Coordinate) float64 {
	return orbgeo.DistanceHaversine(a.point(), b.point())
}

// PathLength sums the distances between consecutive coordinates
func PathLength(coords []Coordinate) float64 {
	total := 0.0
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total
}

// PolygonArea returns the spherical area of the ring in m². Fewer than three
// coordinates have no area. The ring is closed automatically.
func PolygonArea(coords []Coordinate) float64 {
	if len(coords) < 3 {
		return 0
	}
	ring := make(orb.Ring, 0, len(coords)+1)
	for _, c := range coords {
		ring = append(ring, c.point())
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return math.Abs(orbgeo.Area(orb.Polygon{ring}))
}

// RectangleArea treats a and b as opposite corners of a lat/lng aligned rectangle
func RectangleArea(a, b Coordinate) float64 {
	return PolygonArea([]Coordinate{
		{Lat: a.Lat, Lng: a.Lng},
		{Lat: a.Lat, Lng: b.Lng},
		{Lat: b.Lat, Lng: b.Lng},
		{Lat: b.Lat, Lng: a.Lng},
	})
}

// CircleArea is the area of a center pivot whose rim passes through rim
func CircleArea(center, rim Coordinate) float64 {
	r := Distance(center, rim)
	return math.Pi * r * r
}

// ShapeArea computes the area for a drawing shape. Pivot uses the first two
// points as center and rim, rectangle uses them as opposite corners, any other
// shape is a polygon over all points.
func ShapeArea(shape string, coords []Coordinate) float64 {
	switch shape {
	case "pivot":
		if len(coords) < 2 {
			return 0
		}
		return CircleArea(coords[0], coords[1])
	case "rectangle":
		if len(coords) < 2 {
			return 0
		}
		return RectangleArea(coords[0], coords[1])
	default:
		return PolygonArea(coords)
	}
}
