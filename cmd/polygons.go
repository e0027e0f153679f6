package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/microarea-cli/internal/dataset"
	"github.com/sells-group/microarea-cli/internal/hull"
	"github.com/sells-group/microarea-cli/internal/model"
)

var (
	polygonsOutDir    string
	polygonsShapefile bool
	polygonsKML       bool
)

// polygonOutputs selects the optional artifacts next to the GeoJSON files.
type polygonOutputs struct {
	Shapefile bool
	KML       bool
}

var polygonsCmd = &cobra.Command{
	Use:   "polygons",
	Short: "Build micro-area and unit polygons from stored coordinates",
	Long: `Groups located addresses by unit and micro-area, drops exact duplicates and
outliers, and writes the convex hull of each group (a buffered rectangle or
square for groups of two or one point) as GeoJSON. Unit polygons cover the
union of the unit's points.

Writes microareas.geojson and units.geojson to --out-dir, plus shapefiles
with --shapefile and microareas.kml (one folder per unit, one colour per
micro-area, a placemark per located address) with --kml.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("polygons"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "polygons: list store")
		}

		res := hull.NewBuilder(cfg.Hull).Build(recs)
		outputs := polygonOutputs{Shapefile: polygonsShapefile, KML: polygonsKML}
		if err := writePolygons(polygonsOutDir, recs, res, outputs); err != nil {
			return err
		}
		formatPolygons(os.Stdout, res, cfg.Region.MidLatitude())
		return nil
	},
}

// writePolygons writes every artifact concurrently. Each writer owns its
// own file.
func writePolygons(dir string, recs []model.ConsolidatedRecord, res hull.Result, outputs polygonOutputs) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrap(err, "polygons: create output dir")
	}

	var g errgroup.Group
	g.Go(func() error { return dataset.WriteGeoJSONFile(filepath.Join(dir, "microareas.geojson"), res.MicroAreas) })
	g.Go(func() error { return dataset.WriteGeoJSONFile(filepath.Join(dir, "units.geojson"), res.Units) })
	if outputs.Shapefile {
		g.Go(func() error { return dataset.WriteShapefile(filepath.Join(dir, "microareas.shp"), res.MicroAreas) })
		g.Go(func() error { return dataset.WriteShapefile(filepath.Join(dir, "units.shp"), res.Units) })
	}
	if outputs.KML {
		g.Go(func() error { return dataset.WriteKMLFile(filepath.Join(dir, "microareas.kml"), recs, res.MicroAreas) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("polygons: wrote artifacts",
		zap.String("dir", dir),
		zap.Int("micro_areas", len(res.MicroAreas)),
		zap.Int("units", len(res.Units)),
		zap.Bool("shapefile", outputs.Shapefile),
		zap.Bool("kml", outputs.KML),
	)
	return nil
}

// formatPolygons writes one row per micro-area polygon.
func formatPolygons(out io.Writer, res hull.Result, refLat float64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "UNIT\tMICRO AREA\tSHAPE\tRAW\tUNIQUE\tOUTLIERS\tAREA_KM2")
	_, _ = fmt.Fprintln(w, "----\t----------\t-----\t---\t------\t--------\t--------")
	for _, p := range res.MicroAreas {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.3f\n",
			p.Unit, p.MicroArea, p.Shape, p.RawCount, p.UniqueCount, p.OutliersDropped, p.AreaKM2(refLat))
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\n%d micro-area polygons, %d unit polygons\n", len(res.MicroAreas), len(res.Units))
}

func init() {
	polygonsCmd.Flags().StringVar(&polygonsOutDir, "out-dir", "output", "directory for the polygon files")
	polygonsCmd.Flags().BoolVar(&polygonsShapefile, "shapefile", false, "also write ESRI shapefiles")
	polygonsCmd.Flags().BoolVar(&polygonsKML, "kml", false, "also write a KML document for Google Earth / My Maps")
	rootCmd.AddCommand(polygonsCmd)
}
