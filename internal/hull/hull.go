// Package hull derives coverage polygons from consolidated coordinates: one
// per (unit, micro-area) and one aggregate per unit.
package hull

import (
	"math"
	"sort"

	"github.com/sells-group/microarea-cli/internal/geo"
)

// ConvexHull returns the hull of pts counter-clockwise, open (the first
// vertex is not repeated), with x = longitude and y = latitude. Collinear
// points are dropped. Inputs with fewer than three distinct points come back
// sorted and unchanged.
func ConvexHull(pts []geo.Point) []geo.Point {
	sorted := make([]geo.Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Lon != sorted[j].Lon {
			return sorted[i].Lon < sorted[j].Lon
		}
		return sorted[i].Lat < sorted[j].Lat
	})
	sorted = Dedup(sorted)
	if len(sorted) < 3 {
		return sorted
	}

	lower := make([]geo.Point, 0, len(sorted))
	for _, p := range sorted {
		for len(lower) >= 2 && cross(lower[len(lower)-2], lower[len(lower)-1], p) <= 0 {
			lower = lower[:len(lower)-1]
		}
		lower = append(lower, p)
	}

	upper := make([]geo.Point, 0, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		p := sorted[i]
		for len(upper) >= 2 && cross(upper[len(upper)-2], upper[len(upper)-1], p) <= 0 {
			upper = upper[:len(upper)-1]
		}
		upper = append(upper, p)
	}

	out := make([]geo.Point, 0, len(lower)+len(upper)-2)
	out = append(out, lower[:len(lower)-1]...)
	return append(out, upper[:len(upper)-1]...)
}

// cross is the z component of (a-o) x (b-o); positive for a left turn.
func cross(o, a, b geo.Point) float64 {
	return (a.Lon-o.Lon)*(b.Lat-o.Lat) - (a.Lat-o.Lat)*(b.Lon-o.Lon)
}

// Close returns ring with its first vertex appended.
func Close(ring []geo.Point) []geo.Point {
	if len(ring) == 0 {
		return nil
	}
	out := make([]geo.Point, 0, len(ring)+1)
	out = append(out, ring...)
	return append(out, ring[0])
}

// PointBuffer is the closed square of half-size half degrees around p.
func PointBuffer(p geo.Point, half float64) []geo.Point {
	return Close([]geo.Point{
		{Lat: p.Lat - half, Lon: p.Lon - half},
		{Lat: p.Lat - half, Lon: p.Lon + half},
		{Lat: p.Lat + half, Lon: p.Lon + half},
		{Lat: p.Lat + half, Lon: p.Lon - half},
	})
}

// SegmentBuffer is the closed rectangle around segment a-b, padded by e
// degrees along the segment and on both sides of it. The ring is
// counter-clockwise when a is the western end.
func SegmentBuffer(a, b geo.Point, e float64) []geo.Point {
	dx, dy := b.Lon-a.Lon, b.Lat-a.Lat
	length := math.Hypot(dx, dy)
	if length == 0 {
		return PointBuffer(a, e)
	}
	// d runs along the segment, n is its left normal.
	dx, dy = dx/length*e, dy/length*e
	nx, ny := -dy, dx
	return Close([]geo.Point{
		{Lon: a.Lon - dx - nx, Lat: a.Lat - dy - ny},
		{Lon: b.Lon + dx - nx, Lat: b.Lat + dy - ny},
		{Lon: b.Lon + dx + nx, Lat: b.Lat + dy + ny},
		{Lon: a.Lon - dx + nx, Lat: a.Lat - dy + ny},
	})
}

// Dedup removes exact duplicates, keeping first occurrences in order.
func Dedup(pts []geo.Point) []geo.Point {
	seen := make(map[geo.Point]struct{}, len(pts))
	out := make([]geo.Point, 0, len(pts))
	for _, p := range pts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// FilterOutliers drops points farther than maxKM from the group centroid,
// measured with the planar approximation at the centroid's latitude. Groups
// under three points are returned unchanged, as are groups where every
// point would be dropped. ok is false in that last case.
func FilterOutliers(pts []geo.Point, maxKM float64) (kept []geo.Point, dropped int, ok bool) {
	if len(pts) < 3 || maxKM <= 0 {
		return pts, 0, true
	}
	c, _ := geo.Centroid(pts)
	kept = make([]geo.Point, 0, len(pts))
	for _, p := range pts {
		if geo.PlanarKM(c, p, c.Lat) <= maxKM {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return pts, 0, false
	}
	return kept, len(pts) - len(kept), true
}

// Contains reports whether p lies on or inside the closed convex ring.
func Contains(ring []geo.Point, p geo.Point) bool {
	const eps = 1e-12
	for i := 0; i+1 < len(ring); i++ {
		if cross(ring[i], ring[i+1], p) < -eps {
			return false
		}
	}
	return len(ring) >= 4
}
