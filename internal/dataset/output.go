package dataset

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"unicode/utf8"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/hull"
	"github.com/sells-group/microarea-cli/internal/model"
)

// ConsolidatedHeader is the column order of the consolidated table.
var ConsolidatedHeader = []string{
	"unit_reference", "micro_area", "address", "latitude", "longitude", "method", "confidence", "note",
}

// WriteConsolidatedCSV writes one row per record. Latitude and longitude
// are blank for unresolved addresses.
func WriteConsolidatedCSV(w io.Writer, recs []model.ConsolidatedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ConsolidatedHeader); err != nil {
		return eris.Wrap(err, "dataset: write csv header")
	}
	for _, r := range recs {
		lat, lon := "", ""
		if p := r.Result.Point; p != nil {
			lat = strconv.FormatFloat(p.Lat, 'f', 7, 64)
			lon = strconv.FormatFloat(p.Lon, 'f', 7, 64)
		}
		row := []string{
			r.Unit, r.MicroArea, r.Address, lat, lon,
			string(r.Result.Method), r.Result.Confidence.String(), r.Result.Note,
		}
		if err := cw.Write(row); err != nil {
			return eris.Wrapf(err, "dataset: write csv row %s", r.Key())
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "dataset: flush csv")
}

// WriteConsolidatedFile writes the consolidated table to path.
func WriteConsolidatedFile(path string, recs []model.ConsolidatedRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create csv")
	}
	if err := WriteConsolidatedCSV(f, recs); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "dataset: close csv")
}

// FeatureCollection converts polygons to GeoJSON features in lon/lat order.
func FeatureCollection(polys []hull.Polygon) (*geojson.FeatureCollection, error) {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(polys))}
	for _, p := range polys {
		g, err := p.Geom()
		if err != nil {
			return nil, err
		}
		props := map[string]interface{}{
			"unit_reference":   p.Unit,
			"shape":            string(p.Shape),
			"raw_count":        p.RawCount,
			"unique_count":     p.UniqueCount,
			"outliers_dropped": p.OutliersDropped,
		}
		id := p.Unit
		if p.IsAggregate() {
			props["micro_areas"] = p.MicroAreas
		} else {
			props["micro_area"] = p.MicroArea
			id = p.Unit + "/" + p.MicroArea
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         id,
			Geometry:   g,
			Properties: props,
		})
	}
	return fc, nil
}

// WriteGeoJSON encodes polys as a FeatureCollection.
func WriteGeoJSON(w io.Writer, polys []hull.Polygon) error {
	fc, err := FeatureCollection(polys)
	if err != nil {
		return err
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return eris.Wrap(err, "dataset: encode geojson")
	}
	if _, err := w.Write(b); err != nil {
		return eris.Wrap(err, "dataset: write geojson")
	}
	return nil
}

// WriteGeoJSONFile writes polys to path as GeoJSON.
func WriteGeoJSONFile(path string, polys []hull.Polygon) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "dataset: create geojson")
	}
	if err := WriteGeoJSON(f, polys); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "dataset: close geojson")
}

// Shapefile attribute columns, in DBF order.
const (
	shpFieldUnit = iota
	shpFieldMicroArea
	shpFieldRaw
	shpFieldUnique
)

var shapefileFields = []shp.Field{
	shp.StringField("UNIT", 120),
	shp.StringField("MICROAREA", 40),
	shp.NumberField("RAW", 10),
	shp.NumberField("UNIQUE", 10),
}

// WriteShapefile writes polys as a polygon shapefile at path (plus the
// .shx and .dbf siblings). Rings are written clockwise.
func WriteShapefile(path string, polys []hull.Polygon) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrap(err, "dataset: create shapefile")
	}
	defer w.Close()

	if err := w.SetFields(shapefileFields); err != nil {
		return eris.Wrap(err, "dataset: shapefile fields")
	}

	for _, p := range polys {
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{clockwise(p.Ring)}))
		row := int(w.Write(&poly))

		attrs := []struct {
			field int
			value interface{}
		}{
			{shpFieldUnit, truncate(p.Unit, 120)},
			{shpFieldMicroArea, truncate(p.MicroArea, 40)},
			{shpFieldRaw, p.RawCount},
			{shpFieldUnique, p.UniqueCount},
		}
		for _, a := range attrs {
			if err := w.WriteAttribute(row, a.field, a.value); err != nil {
				return eris.Wrapf(err, "dataset: shapefile attribute %s/%s", p.Unit, p.MicroArea)
			}
		}
	}
	return nil
}

// clockwise converts a counter-clockwise ring to the clockwise order
// shapefile outer rings use.
func clockwise(ring []geo.Point) []shp.Point {
	out := make([]shp.Point, len(ring))
	for i, v := range ring {
		out[len(ring)-1-i] = shp.Point{X: v.Lon, Y: v.Lat}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
