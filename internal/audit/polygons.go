package audit

import (
	"fmt"
	"math"

	"github.com/sells-group/microarea-cli/internal/hull"
)

// Polygons sanity-checks derived polygons: containment in the region, area
// within bounds and bounding-box extent. Distances use the planar
// approximation at the region's mid latitude.
func (a *Auditor) Polygons(polys []hull.Polygon) []Finding {
	ref := a.region.MidLatitude()
	var out []Finding
	for _, p := range polys {
		base := Finding{Unit: p.Unit, MicroArea: p.MicroArea}

		b := p.Bounds()
		if !a.region.Contains(b.SouthWest()) || !a.region.Contains(b.NorthEast()) {
			f := base
			f.Kind = KindPolygonOutOfBounds
			f.Detail = fmt.Sprintf("extends to lat %.5f..%.5f lon %.5f..%.5f", b.LatMin, b.LatMax, b.LonMin, b.LonMax)
			out = append(out, f)
		}

		area := p.AreaKM2(ref)
		switch {
		case a.cfg.MinAreaKM2 > 0 && area < a.cfg.MinAreaKM2:
			f := base
			f.Kind = KindAreaTooSmall
			f.Detail = fmt.Sprintf("%.4f km² < %.4f km²", area, a.cfg.MinAreaKM2)
			out = append(out, f)
		case a.cfg.MaxAreaKM2 > 0 && area > a.cfg.MaxAreaKM2:
			f := base
			f.Kind = KindAreaTooLarge
			f.Detail = fmt.Sprintf("%.2f km² > %.2f km²", area, a.cfg.MaxAreaKM2)
			out = append(out, f)
		}

		w, h := p.ExtentKM(ref)
		if ext := math.Max(w, h); a.cfg.MaxExtentKM > 0 && ext > a.cfg.MaxExtentKM {
			f := base
			f.Kind = KindExtentTooLarge
			f.Detail = fmt.Sprintf("%.1f km > %.1f km", ext, a.cfg.MaxExtentKM)
			out = append(out, f)
		}
	}
	return out
}
