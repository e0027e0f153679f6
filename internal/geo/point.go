// Package geo provides the coordinate primitives shared by the resolver,
// auditor and hull builder: points, the admissible region box, planar
// kilometre distances and the neighborhood centroid catalog.
package geo

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
)

// Approximate planar conversion factors. Longitude degrees shrink with
// latitude, so callers scale by KMPerLonDegree at a reference latitude.
const (
	KMPerLatDegree = 111.0
)

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// NewPoint builds a Point from latitude and longitude.
func NewPoint(lat, lon float64) Point {
	return Point{Lat: lat, Lon: lon}
}

// String renders the point as "lat,lon" with 7 decimals.
func (p Point) String() string {
	return fmt.Sprintf("%.7f,%.7f", p.Lat, p.Lon)
}

// Valid reports whether the point lies on the globe.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Rounded returns the point rounded to the given number of decimals.
func (p Point) Rounded(decimals int) Point {
	f := math.Pow(10, float64(decimals))
	return Point{
		Lat: math.Round(p.Lat*f) / f,
		Lon: math.Round(p.Lon*f) / f,
	}
}

// NearlyEqual compares both axes with an absolute delta. The comparison is
// strict: a delta equal to tol is not a match.
func (p Point) NearlyEqual(o Point, tol float64) bool {
	return math.Abs(p.Lat-o.Lat) < tol && math.Abs(p.Lon-o.Lon) < tol
}

// BoundingBox is an axis-aligned lat/lon rectangle.
type BoundingBox struct {
	LatMin float64 `json:"lat_min" yaml:"lat_min" mapstructure:"lat_min"`
	LatMax float64 `json:"lat_max" yaml:"lat_max" mapstructure:"lat_max"`
	LonMin float64 `json:"lon_min" yaml:"lon_min" mapstructure:"lon_min"`
	LonMax float64 `json:"lon_max" yaml:"lon_max" mapstructure:"lon_max"`
}

// Validate checks that min < max on both axes.
func (b BoundingBox) Validate() error {
	if !(b.LatMin < b.LatMax) {
		return eris.Errorf("geo: bounding box lat_min %.6f must be < lat_max %.6f", b.LatMin, b.LatMax)
	}
	if !(b.LonMin < b.LonMax) {
		return eris.Errorf("geo: bounding box lon_min %.6f must be < lon_max %.6f", b.LonMin, b.LonMax)
	}
	return nil
}

// Contains reports whether p lies inside the box. Edges are inclusive.
func (b BoundingBox) Contains(p Point) bool {
	return b.LatMin <= p.Lat && p.Lat <= b.LatMax &&
		b.LonMin <= p.Lon && p.Lon <= b.LonMax
}

// SouthWest returns the lower-left corner.
func (b BoundingBox) SouthWest() Point { return Point{Lat: b.LatMin, Lon: b.LonMin} }

// NorthEast returns the upper-right corner.
func (b BoundingBox) NorthEast() Point { return Point{Lat: b.LatMax, Lon: b.LonMax} }

// MidLatitude is the latitude halfway between the box edges.
func (b BoundingBox) MidLatitude() float64 { return (b.LatMin + b.LatMax) / 2 }

// KMPerLonDegree returns the length of one longitude degree at refLat.
func KMPerLonDegree(refLat float64) float64 {
	return KMPerLatDegree * math.Cos(refLat*math.Pi/180)
}

// PlanarKM returns the approximate distance in kilometres between a and b,
// projecting both onto a plane scaled at refLat.
func PlanarKM(a, b Point, refLat float64) float64 {
	dy := (b.Lat - a.Lat) * KMPerLatDegree
	dx := (b.Lon - a.Lon) * KMPerLonDegree(refLat)
	return math.Hypot(dx, dy)
}

// Centroid returns the arithmetic mean of pts. ok is false for an empty set.
func Centroid(pts []Point) (c Point, ok bool) {
	if len(pts) == 0 {
		return Point{}, false
	}
	var sumLat, sumLon float64
	for _, p := range pts {
		sumLat += p.Lat
		sumLon += p.Lon
	}
	n := float64(len(pts))
	return Point{Lat: sumLat / n, Lon: sumLon / n}, true
}
