package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/dataset"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the consolidated per-address table as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "export: list store")
		}
		if err := dataset.WriteConsolidatedFile(exportOutput, recs); err != nil {
			return err
		}

		zap.L().Info("export complete",
			zap.Int("records", len(recs)),
			zap.String("output", exportOutput),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "path to CSV file (required)")
	_ = exportCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(exportCmd)
}
