// Package audit reports coordinate-quality problems in consolidated results
// and derived polygons. It only reads; nothing here changes the store.
package audit

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

// Kind names a class of finding.
type Kind string

const (
	KindGenericCoordinate   Kind = "generic_coordinate"
	KindExcessDuplication   Kind = "excess_duplication"
	KindOutOfBounds         Kind = "out_of_bounds"
	KindFarFromUnit         Kind = "far_from_unit"
	KindRejectedOutOfBounds Kind = "rejected_out_of_bounds"
	KindPolygonOutOfBounds  Kind = "polygon_out_of_bounds"
	KindAreaTooSmall        Kind = "area_too_small"
	KindAreaTooLarge        Kind = "area_too_large"
	KindExtentTooLarge      Kind = "extent_too_large"
)

// Kinds lists every kind in report order.
var Kinds = []Kind{
	KindGenericCoordinate, KindExcessDuplication, KindOutOfBounds, KindFarFromUnit, KindRejectedOutOfBounds,
	KindPolygonOutOfBounds, KindAreaTooSmall, KindAreaTooLarge, KindExtentTooLarge,
}

// Finding is one advisory result.
type Finding struct {
	Kind      Kind       `json:"kind"`
	Unit      string     `json:"unit_reference,omitempty"`
	MicroArea string     `json:"micro_area,omitempty"`
	Address   string     `json:"address,omitempty"`
	Point     *geo.Point `json:"point,omitempty"`
	Detail    string     `json:"detail"`
	// Addresses lists every address sharing the coordinate of an
	// excess_duplication finding.
	Addresses []string `json:"addresses,omitempty"`
}

// Config holds the audit thresholds.
type Config struct {
	GenericToleranceDeg float64 `yaml:"generic_tolerance_deg" mapstructure:"generic_tolerance_deg"`
	DuplicateThreshold  int     `yaml:"duplicate_threshold" mapstructure:"duplicate_threshold"`
	DuplicatePrecision  int     `yaml:"duplicate_precision" mapstructure:"duplicate_precision"`
	MaxUnitDistanceKM   float64 `yaml:"max_unit_distance_km" mapstructure:"max_unit_distance_km"`
	MinAreaKM2          float64 `yaml:"min_area_km2" mapstructure:"min_area_km2"`
	MaxAreaKM2          float64 `yaml:"max_area_km2" mapstructure:"max_area_km2"`
	MaxExtentKM         float64 `yaml:"max_extent_km" mapstructure:"max_extent_km"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		GenericToleranceDeg: 0.001,
		DuplicateThreshold:  3,
		DuplicatePrecision:  5,
		MaxUnitDistanceKM:   3,
		MinAreaKM2:          0.01,
		MaxAreaKM2:          50,
		MaxExtentKM:         15,
	}
}

// Auditor checks records and polygons against a region and a catalog.
type Auditor struct {
	cfg     Config
	region  geo.BoundingBox
	catalog *geo.Catalog
}

// New returns an Auditor. A nil catalog uses the built-in one.
func New(region geo.BoundingBox, catalog *geo.Catalog, cfg Config) (*Auditor, error) {
	if err := region.Validate(); err != nil {
		return nil, eris.Wrap(err, "audit: region")
	}
	if catalog == nil {
		catalog = geo.DefaultCatalog()
	}
	if cfg.GenericToleranceDeg <= 0 || cfg.DuplicateThreshold <= 0 {
		return nil, eris.New("audit: generic tolerance and duplicate threshold must be positive")
	}
	return &Auditor{cfg: cfg, region: region, catalog: catalog}, nil
}

// IsGeneric reports whether (lat, lon) sits on a known centroid: both axis
// deltas strictly under the tolerance.
func (a *Auditor) IsGeneric(lat, lon float64) (geo.NamedPoint, bool) {
	p := geo.NewPoint(lat, lon)
	for _, c := range a.catalog.Centroids() {
		if p.NearlyEqual(c.Point(), a.cfg.GenericToleranceDeg) {
			return c, true
		}
	}
	return geo.NamedPoint{}, false
}

// Records audits consolidated results. Findings come grouped by kind, in
// record order within each kind.
func (a *Auditor) Records(recs []model.ConsolidatedRecord) []Finding {
	var generic, bounds, far, rejected []Finding
	for _, r := range recs {
		k := r.Key()
		base := Finding{Unit: k.Unit, MicroArea: k.MicroArea, Address: k.Address}

		for _, hit := range r.Result.OutOfBoundsHits() {
			f := base
			f.Kind = KindRejectedOutOfBounds
			f.Point = hit.Point
			f.Detail = fmt.Sprintf("%s answered outside the region", hit.Layer)
			rejected = append(rejected, f)
		}

		if r.Result.Point == nil {
			continue
		}
		p := *r.Result.Point

		if c, ok := a.IsGeneric(p.Lat, p.Lon); ok {
			f := base
			f.Kind = KindGenericCoordinate
			f.Point = &p
			f.Detail = "matches " + c.Name
			generic = append(generic, f)
		}
		if !a.region.Contains(p) {
			f := base
			f.Kind = KindOutOfBounds
			f.Point = &p
			f.Detail = fmt.Sprintf("outside lat %.2f..%.2f lon %.2f..%.2f", a.region.LatMin, a.region.LatMax, a.region.LonMin, a.region.LonMax)
			bounds = append(bounds, f)
		}
		if unit, ok := geo.ParseMapLink(r.UnitLocationURL); ok && a.cfg.MaxUnitDistanceKM > 0 {
			if d := geo.PlanarKM(unit, p, a.region.MidLatitude()); d > a.cfg.MaxUnitDistanceKM {
				f := base
				f.Kind = KindFarFromUnit
				f.Point = &p
				f.Detail = fmt.Sprintf("%.2f km from unit", d)
				far = append(far, f)
			}
		}
	}

	out := make([]Finding, 0, len(generic)+len(bounds)+len(far)+len(rejected))
	out = append(out, generic...)
	out = append(out, a.duplicates(recs)...)
	out = append(out, bounds...)
	out = append(out, far...)
	return append(out, rejected...)
}

// duplicates emits one finding per rounded coordinate shared by at least
// DuplicateThreshold distinct addresses.
func (a *Auditor) duplicates(recs []model.ConsolidatedRecord) []Finding {
	type bucket struct {
		point geo.Point
		keys  map[model.Key]struct{}
		addrs []string
	}
	buckets := make(map[geo.Point]*bucket)
	var order []geo.Point
	for _, r := range recs {
		if r.Result.Point == nil {
			continue
		}
		rp := r.Result.Point.Rounded(a.cfg.DuplicatePrecision)
		b, ok := buckets[rp]
		if !ok {
			b = &bucket{point: rp, keys: make(map[model.Key]struct{})}
			buckets[rp] = b
			order = append(order, rp)
		}
		k := r.Key()
		if _, seen := b.keys[k]; seen {
			continue
		}
		b.keys[k] = struct{}{}
		b.addrs = append(b.addrs, k.Address)
	}

	var out []Finding
	for _, rp := range order {
		b := buckets[rp]
		if len(b.keys) < a.cfg.DuplicateThreshold {
			continue
		}
		p := b.point
		out = append(out, Finding{
			Kind:      KindExcessDuplication,
			Point:     &p,
			Detail:    fmt.Sprintf("%d addresses share %s", len(b.keys), p),
			Addresses: b.addrs,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].Addresses) > len(out[j].Addresses) })
	return out
}

// Counts tallies findings per kind.
func Counts(fs []Finding) map[Kind]int {
	out := make(map[Kind]int)
	for _, f := range fs {
		out[f.Kind]++
	}
	return out
}

// Describe renders a finding on one line.
func (f Finding) Describe() string {
	var b strings.Builder
	b.WriteString(string(f.Kind))
	if f.Unit != "" {
		fmt.Fprintf(&b, " %s", f.Unit)
		if f.MicroArea != "" {
			fmt.Fprintf(&b, "/%s", f.MicroArea)
		}
	}
	if f.Address != "" {
		fmt.Fprintf(&b, " %q", f.Address)
	}
	if f.Point != nil {
		fmt.Fprintf(&b, " (%s)", f.Point)
	}
	if f.Detail != "" {
		fmt.Fprintf(&b, ": %s", f.Detail)
	}
	return b.String()
}
