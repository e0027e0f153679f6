package dataset

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"io"
	"math"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	gkml "github.com/twpayne/go-geom/encoding/kml"
	"github.com/twpayne/go-kml/v3"

	"github.com/sells-group/microarea-cli/internal/hull"
	"github.com/sells-group/microarea-cli/internal/model"
)

// kmlFillAlpha is the polygon fill opacity; outlines and markers are opaque.
const kmlFillAlpha = 0x60

// WriteKML renders one folder per unit with a sub-folder per micro-area.
// Each sub-folder holds the micro-area polygon, when one was built, and a
// placemark per located address. Every unit gets a hue derived from its
// name and each micro-area a shade of it.
func WriteKML(w io.Writer, recs []model.ConsolidatedRecord, polys []hull.Polygon) error {
	type group struct {
		polygon *hull.Polygon
		points  []model.ConsolidatedRecord
	}
	units := make(map[string]map[string]*group)
	get := func(unit, micro string) *group {
		m, ok := units[unit]
		if !ok {
			m = make(map[string]*group)
			units[unit] = m
		}
		g, ok := m[micro]
		if !ok {
			g = &group{}
			m[micro] = g
		}
		return g
	}

	for i := range polys {
		if polys[i].IsAggregate() {
			continue
		}
		get(polys[i].Unit, polys[i].MicroArea).polygon = &polys[i]
	}
	for _, r := range recs {
		if r.Result.Point == nil {
			continue
		}
		k := r.Key()
		g := get(k.Unit, k.MicroArea)
		g.points = append(g.points, r)
	}

	unitNames := make([]string, 0, len(units))
	for u := range units {
		unitNames = append(unitNames, u)
	}
	sort.Strings(unitNames)

	doc := []kml.Element{kml.Name("Micro-areas")}
	for _, unit := range unitNames {
		micros := make([]string, 0, len(units[unit]))
		for m := range units[unit] {
			micros = append(micros, m)
		}
		sort.Slice(micros, func(i, j int) bool { return hull.LessMicroArea(micros[i], micros[j]) })

		hue := UnitHue(unit)
		folder := []kml.Element{kml.Name(unit)}
		for idx, micro := range micros {
			g := units[unit][micro]
			c := MicroAreaColor(hue, idx)

			sub := []kml.Element{kml.Name("Microárea " + micro)}
			if g.polygon != nil {
				pm, err := polygonPlacemark(*g.polygon, c)
				if err != nil {
					return err
				}
				sub = append(sub, pm)
			}
			for _, r := range g.points {
				sub = append(sub, pointPlacemark(r, c))
			}
			folder = append(folder, kml.Folder(sub...))
		}
		doc = append(doc, kml.Folder(folder...))
	}

	if err := kml.KML(kml.Document(doc...)).WriteIndent(w, "", "  "); err != nil {
		return eris.Wrap(err, "dataset: write kml")
	}
	return nil
}

// WriteKMLFile writes the KML document to path.
func WriteKMLFile(path string, recs []model.ConsolidatedRecord, polys []hull.Polygon) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create kml")
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = eris.Wrap(cerr, "dataset: close kml")
		}
	}()
	return WriteKML(f, recs, polys)
}

func polygonPlacemark(p hull.Polygon, c color.RGBA) (kml.Element, error) {
	g, err := p.Geom()
	if err != nil {
		return nil, err
	}
	fill := c
	fill.A = kmlFillAlpha
	return kml.Placemark(
		kml.Name(fmt.Sprintf("%s / %s", p.Unit, p.MicroArea)),
		kml.Description(fmt.Sprintf("%s, %d points (%d unique, %d outliers dropped)", p.Shape, p.RawCount, p.UniqueCount, p.OutliersDropped)),
		kml.Style(
			kml.LineStyle(kml.Color(c), kml.Width(2)),
			kml.PolyStyle(kml.Color(fill)),
		),
		gkml.EncodePolygon(g),
	), nil
}

func pointPlacemark(r model.ConsolidatedRecord, c color.RGBA) kml.Element {
	p := *r.Result.Point
	pt := geom.NewPointFlat(geom.XY, []float64{p.Lon, p.Lat})
	return kml.Placemark(
		kml.Name(r.Address),
		kml.Description(fmt.Sprintf("%s, %s confidence. %s", r.Result.Method, r.Result.Confidence, r.Result.Note)),
		kml.Style(
			kml.IconStyle(kml.Color(c), kml.Scale(1.2)),
			kml.LabelStyle(kml.Color(c), kml.Scale(0.8)),
		),
		gkml.EncodePoint(pt),
	)
}

// UnitHue maps a unit name to a stable hue in [0, 360).
func UnitHue(unit string) float64 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(unit))
	return float64(h.Sum32() % 360)
}

// MicroAreaColor shades hue for the idx-th micro-area of a unit by varying
// saturation and lightness.
func MicroAreaColor(hue float64, idx int) color.RGBA {
	s := 0.5 + float64(idx%5)*0.1
	l := 0.35 + float64(idx%6)*0.05
	r, g, b := hlsToRGB(hue/360, l, s)
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 0xff}
}

func hlsToRGB(h, l, s float64) (r, g, b float64) {
	if s == 0 {
		return l, l, l
	}
	var m2 float64
	if l <= 0.5 {
		m2 = l * (1 + s)
	} else {
		m2 = l + s - l*s
	}
	m1 := 2*l - m2
	return hueChannel(m1, m2, h+1.0/3), hueChannel(m1, m2, h), hueChannel(m1, m2, h-1.0/3)
}

func hueChannel(m1, m2, h float64) float64 {
	h -= math.Floor(h)
	switch {
	case h < 1.0/6:
		return m1 + (m2-m1)*h*6
	case h < 0.5:
		return m2
	case h < 2.0/3:
		return m1 + (m2-m1)*(2.0/3-h)*6
	default:
		return m1
	}
}
