package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/dataset"
	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/resolve"
	"github.com/sells-group/microarea-cli/internal/store"
)

var (
	geocodeInput  string
	geocodeSheet  int
	geocodeLimit  int
	geocodeOutput string
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve every address in a sheet and merge the results into the store",
	Long: `Runs each address through the resolver chain (primary geocoder, OpenStreetMap,
assisted search, neighborhood centroid, manual) and merges the result into the
store one record at a time. A stored result is only replaced by one of equal or
higher confidence, so re-running never degrades coordinates.

Examples:
  microarea-cli geocode --input enderecos.csv
  microarea-cli geocode --input enderecos.xlsx --sheet 1 --limit 20
  microarea-cli geocode --input enderecos.csv --output consolidated.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("geocode"); err != nil {
			return err
		}

		recs, err := dataset.Read(geocodeInput, geocodeSheet)
		if err != nil {
			return eris.Wrap(err, "geocode: read input")
		}
		if geocodeLimit > 0 && geocodeLimit < len(recs) {
			recs = recs[:geocodeLimit]
		}
		zap.L().Info("geocode: loaded addresses", zap.Int("records", len(recs)), zap.String("input", geocodeInput))

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		chain, err := buildChain(catalog)
		if err != nil {
			return eris.Wrap(err, "geocode: build chain")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		return runGeocode(ctx, os.Stdout, chain, st, filepath.Base(geocodeInput), recs, geocodeOutput)
	},
}

// runGeocode resolves recs, prints the summary and optionally writes the
// consolidated table. An interrupted run still prints and exports what was
// merged.
func runGeocode(ctx context.Context, out io.Writer, r resolve.Resolver, st store.Store, source string, recs []model.AddressRecord, output string) error {
	sum, runErr := resolve.NewRunner(r, st).Run(ctx, source, recs)
	if sum != nil {
		if err := sum.Write(out); err != nil {
			return eris.Wrap(err, "geocode: write summary")
		}
	}
	if runErr != nil {
		return runErr
	}

	if output != "" {
		all, err := st.List(context.WithoutCancel(ctx))
		if err != nil {
			return eris.Wrap(err, "geocode: list store")
		}
		if err := dataset.WriteConsolidatedFile(output, all); err != nil {
			return err
		}
		zap.L().Info("geocode: wrote consolidated table", zap.String("output", output), zap.Int("records", len(all)))
	}
	return nil
}

func init() {
	geocodeCmd.Flags().StringVar(&geocodeInput, "input", "", "address sheet (.csv or .xlsx, required)")
	geocodeCmd.Flags().IntVar(&geocodeSheet, "sheet", 0, "worksheet index for .xlsx input")
	geocodeCmd.Flags().IntVar(&geocodeLimit, "limit", 0, "process at most N addresses (0 = all)")
	geocodeCmd.Flags().StringVar(&geocodeOutput, "output", "", "write the consolidated CSV to this path")
	_ = geocodeCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(geocodeCmd)
}
