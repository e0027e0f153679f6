package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/microarea-cli/internal/audit"
	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/hull"
	"github.com/sells-group/microarea-cli/internal/model"
)

var auditPolygons bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report suspicious coordinates in the store",
	Long: `Checks every stored coordinate for generic centroids, excess duplication,
out-of-region points, distance from the unit and coordinates a provider
returned outside the region. With --polygons the micro-area polygons are
built and checked for area and extent. The store is never modified.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "audit: list store")
		}

		findings, err := runAudit(recs, catalog, auditPolygons)
		if err != nil {
			return err
		}
		if len(findings) == 0 {
			fmt.Fprintln(os.Stderr, "No findings.")
			return nil
		}
		formatFindings(os.Stdout, findings)
		return nil
	},
}

func runAudit(recs []model.ConsolidatedRecord, catalog *geo.Catalog, withPolygons bool) ([]audit.Finding, error) {
	a, err := audit.New(cfg.Region, catalog, cfg.Audit)
	if err != nil {
		return nil, err
	}
	findings := a.Records(recs)
	if withPolygons {
		res := hull.NewBuilder(cfg.Hull).Build(recs)
		findings = append(findings, a.Polygons(res.MicroAreas)...)
		findings = append(findings, a.Polygons(res.Units)...)
	}
	return findings, nil
}

// formatFindings writes the per-kind counts followed by one line per finding.
func formatFindings(out io.Writer, findings []audit.Finding) {
	counts := audit.Counts(findings)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KIND\tCOUNT")
	_, _ = fmt.Fprintln(w, "----\t-----")
	for _, k := range audit.Kinds {
		if n := counts[k]; n > 0 {
			_, _ = fmt.Fprintf(w, "%s\t%d\n", k, n)
		}
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out)
	for _, f := range findings {
		_, _ = fmt.Fprintln(out, f.Describe())
		for _, addr := range f.Addresses {
			_, _ = fmt.Fprintf(out, "    - %s\n", addr)
		}
	}
}

func init() {
	auditCmd.Flags().BoolVar(&auditPolygons, "polygons", false, "also build and check micro-area polygons")
	rootCmd.AddCommand(auditCmd)
}
