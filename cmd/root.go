package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "microarea-cli",
	Short: "Geocode health unit addresses and build micro-area polygons",
	Long: `Resolves the street addresses of each health unit (UBS) to coordinates through a
chain of geocoders and offline fallbacks, keeps the best result per address across
runs, audits coordinate quality and derives coverage polygons per micro-area.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// API keys usually live in .env; real environment variables win.
		_ = godotenv.Load(".env")

		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	// SIGINT stops the geocode loop between records; merged records stay.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
