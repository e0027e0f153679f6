package hull

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

// Result is everything Build derives from the store.
type Result struct {
	MicroAreas []Polygon
	Units      []Polygon
}

// Builder turns consolidated records into polygons.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder; zero fields in cfg take defaults.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

type groupKey struct {
	unit, microArea string
}

// Build groups records by (unit, micro-area), drops the ones without a
// coordinate and synthesizes one polygon per non-empty group plus one
// aggregate per unit from the union of its points.
func (b *Builder) Build(recs []model.ConsolidatedRecord) Result {
	groups := make(map[groupKey][]geo.Point)
	units := make(map[string][]geo.Point)
	unitAreas := make(map[string]map[string]struct{})
	for _, r := range recs {
		if r.Result.Point == nil {
			continue
		}
		k := r.Key()
		gk := groupKey{unit: k.Unit, microArea: k.MicroArea}
		groups[gk] = append(groups[gk], *r.Result.Point)
		units[k.Unit] = append(units[k.Unit], *r.Result.Point)
		if unitAreas[k.Unit] == nil {
			unitAreas[k.Unit] = make(map[string]struct{})
		}
		unitAreas[k.Unit][k.MicroArea] = struct{}{}
	}

	var res Result
	for gk, pts := range groups {
		if p, ok := b.Polygon(gk.unit, gk.microArea, pts); ok {
			res.MicroAreas = append(res.MicroAreas, p)
		}
	}
	for unit, pts := range units {
		if p, ok := b.Polygon(unit, "", pts); ok {
			p.MicroAreas = len(unitAreas[unit])
			res.Units = append(res.Units, p)
		}
	}
	SortPolygons(res.MicroAreas)
	SortPolygons(res.Units)
	return res
}

// Polygon builds the ring for one group of raw points. It returns false
// when the group is empty.
func (b *Builder) Polygon(unit, microArea string, raw []geo.Point) (Polygon, bool) {
	p := Polygon{Unit: unit, MicroArea: microArea, RawCount: len(raw)}
	pts := Dedup(raw)
	kept, dropped, ok := FilterOutliers(pts, b.cfg.OutlierKM)
	if !ok {
		zap.L().Warn("hull: outlier filter would empty group, keeping all points",
			zap.String("unit", unit), zap.String("micro_area", microArea), zap.Int("points", len(pts)))
	}
	p.OutliersDropped = dropped
	p.UniqueCount = len(kept)

	switch len(kept) {
	case 0:
		return Polygon{}, false
	case 1:
		p.Ring = PointBuffer(kept[0], b.cfg.PointBufferDeg)
		p.Shape = ShapePointBuffer
		return p, true
	case 2:
		a, c := ordered(kept[0], kept[1])
		p.Ring = SegmentBuffer(a, c, b.cfg.SegmentBufferDeg)
		p.Shape = ShapeSegmentBuffer
		return p, true
	}

	h := ConvexHull(kept)
	if len(h) < 3 {
		// All points collinear: buffer the extreme segment.
		p.Ring = SegmentBuffer(h[0], h[1], b.cfg.SegmentBufferDeg)
		p.Shape = ShapeSegmentBuffer
		return p, true
	}
	p.Ring = Close(h)
	p.Shape = ShapeHull
	return p, true
}

// ordered puts the western (then southern) point first.
func ordered(a, b geo.Point) (geo.Point, geo.Point) {
	if b.Lon < a.Lon || (b.Lon == a.Lon && b.Lat < a.Lat) {
		return b, a
	}
	return a, b
}

// SortPolygons orders by unit, then micro-area with numeric ids compared as
// numbers.
func SortPolygons(ps []Polygon) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Unit != ps[j].Unit {
			return ps[i].Unit < ps[j].Unit
		}
		return LessMicroArea(ps[i].MicroArea, ps[j].MicroArea)
	})
}

// LessMicroArea compares micro-area ids: numbers numerically and before
// any non-numeric id, everything else lexically.
func LessMicroArea(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	}
	return a < b
}
