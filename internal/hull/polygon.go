package hull

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/microarea-cli/internal/geo"
)

// Shape tells how a polygon was synthesized.
type Shape string

const (
	ShapeHull          Shape = "hull"
	ShapeSegmentBuffer Shape = "segment_buffer"
	ShapePointBuffer   Shape = "point_buffer"
)

// Config holds the builder thresholds.
type Config struct {
	// OutlierKM is the maximum planar distance from the group centroid.
	OutlierKM float64 `yaml:"outlier_km" mapstructure:"outlier_km"`
	// PointBufferDeg is the half-size of the square around a lone point.
	PointBufferDeg float64 `yaml:"point_buffer_deg" mapstructure:"point_buffer_deg"`
	// SegmentBufferDeg pads the rectangle around a two-point group.
	SegmentBufferDeg float64 `yaml:"segment_buffer_deg" mapstructure:"segment_buffer_deg"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{OutlierKM: 5, PointBufferDeg: 0.002, SegmentBufferDeg: 0.001}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.OutlierKM <= 0 {
		c.OutlierKM = d.OutlierKM
	}
	if c.PointBufferDeg <= 0 {
		c.PointBufferDeg = d.PointBufferDeg
	}
	if c.SegmentBufferDeg <= 0 {
		c.SegmentBufferDeg = d.SegmentBufferDeg
	}
	return c
}

// Polygon is a closed ring for one micro-area, or for a whole unit when
// MicroArea is empty.
type Polygon struct {
	Unit      string      `json:"unit_reference"`
	MicroArea string      `json:"micro_area,omitempty"`
	Ring      []geo.Point `json:"ring"`
	Shape     Shape       `json:"shape"`
	// RawCount is the number of located addresses in the group.
	RawCount int `json:"raw_count"`
	// UniqueCount is the number of points left after dedup and outlier
	// filtering.
	UniqueCount     int `json:"unique_count"`
	OutliersDropped int `json:"outliers_dropped"`
	// MicroAreas is set on unit aggregates only.
	MicroAreas int `json:"micro_areas,omitempty"`
}

// IsAggregate reports whether p covers a whole unit.
func (p Polygon) IsAggregate() bool { return p.MicroArea == "" }

// Geom converts the ring to a go-geom polygon in lon/lat order.
func (p Polygon) Geom() (*geom.Polygon, error) {
	coords := make([]geom.Coord, len(p.Ring))
	for i, v := range p.Ring {
		coords[i] = geom.Coord{v.Lon, v.Lat}
	}
	g, err := geom.NewPolygon(geom.XY).SetCoords([][]geom.Coord{coords})
	if err != nil {
		return nil, eris.Wrapf(err, "hull: polygon %s/%s", p.Unit, p.MicroArea)
	}
	return g, nil
}

// Bounds is the ring's bounding box.
func (p Polygon) Bounds() geo.BoundingBox {
	if len(p.Ring) == 0 {
		return geo.BoundingBox{}
	}
	b := geo.BoundingBox{LatMin: p.Ring[0].Lat, LatMax: p.Ring[0].Lat, LonMin: p.Ring[0].Lon, LonMax: p.Ring[0].Lon}
	for _, v := range p.Ring[1:] {
		b.LatMin = math.Min(b.LatMin, v.Lat)
		b.LatMax = math.Max(b.LatMax, v.Lat)
		b.LonMin = math.Min(b.LonMin, v.Lon)
		b.LonMax = math.Max(b.LonMax, v.Lon)
	}
	return b
}

// AreaKM2 is the shoelace area with degrees scaled to km at refLat.
func (p Polygon) AreaKM2(refLat float64) float64 {
	kx, ky := geo.KMPerLonDegree(refLat), geo.KMPerLatDegree
	n := len(p.Ring)
	if n < 3 {
		return 0
	}
	o := p.Ring[0]
	var sum float64
	for i := 0; i < n; i++ {
		a, b := p.Ring[i], p.Ring[(i+1)%n]
		ax, ay := (a.Lon-o.Lon)*kx, (a.Lat-o.Lat)*ky
		bx, by := (b.Lon-o.Lon)*kx, (b.Lat-o.Lat)*ky
		sum += ax*by - bx*ay
	}
	return math.Abs(sum) / 2
}

// ExtentKM returns the width and height of the bounding box in km at refLat.
func (p Polygon) ExtentKM(refLat float64) (width, height float64) {
	b := p.Bounds()
	return (b.LonMax - b.LonMin) * geo.KMPerLonDegree(refLat), (b.LatMax - b.LatMin) * geo.KMPerLatDegree
}
