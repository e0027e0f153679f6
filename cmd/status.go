package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/microarea-cli/internal/resolve"
	"github.com/sells-group/microarea-cli/internal/store"
)

var statusRuns int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show counts per method and confidence and the manual review list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("status"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.List(ctx)
		if err != nil {
			return eris.Wrap(err, "status: list store")
		}
		if len(recs) == 0 {
			fmt.Fprintln(os.Stderr, "Store is empty. Run geocode first.")
			return nil
		}
		if err := resolve.Summarize(recs).Write(os.Stdout); err != nil {
			return err
		}

		if statusRuns > 0 {
			runs, err := st.ListRuns(ctx, statusRuns)
			if err != nil {
				return eris.Wrap(err, "status: list runs")
			}
			_, _ = fmt.Fprintln(os.Stdout)
			formatRunsList(os.Stdout, runs)
		}
		return nil
	},
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tTOTAL\tRESOLVED\tMANUAL\tREPLACED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-----\t--------\t------\t--------\t-------\t--------")

	for _, r := range runs {
		dur := ""
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		source := r.Source
		if len(source) > 30 {
			source = source[:27] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			truncateID(r.ID),
			source,
			r.Status,
			r.Stats.Total,
			r.Stats.Resolved,
			r.Stats.Manual,
			r.Stats.Replaced,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "also list the most recent N runs (0 = none)")
	rootCmd.AddCommand(statusCmd)
}
