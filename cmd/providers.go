package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/resolve"
	"github.com/sells-group/microarea-cli/pkg/geocode"
	"github.com/sells-group/microarea-cli/pkg/perplexity"
)

// buildChain wires the configured providers in chain order. The primary
// and assisted layers are skipped when their API keys are empty.
func buildChain(catalog *geo.Catalog) (*resolve.Chain, error) {
	retry := cfg.RetryPolicy()
	opts := []resolve.Option{resolve.WithCircuit(cfg.CircuitPolicy())}

	if cfg.Google.Key != "" {
		g := geocode.NewGoogle(cfg.Google.Key,
			geocode.GoogleOptions{
				Region:     cfg.Google.Region,
				Language:   cfg.Google.Language,
				Components: cfg.Google.Components,
			},
			geocode.WithBaseURL(cfg.Google.BaseURL),
			geocode.WithPacer(geocode.NewPacer(cfg.Pacing(cfg.Google.PacingMs))),
			geocode.WithRetry(retry),
		)
		opts = append(opts, resolve.WithLayer(model.MethodPrimary, g))
	} else {
		zap.L().Info("google key not set, primary layer disabled")
	}

	timeout := time.Duration(cfg.Nominatim.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n := geocode.NewNominatim(
		[]geocode.Option{
			geocode.WithBaseURL(cfg.Nominatim.BaseURL),
			geocode.WithUserAgent(cfg.Nominatim.UserAgent),
			geocode.WithHTTPClient(&http.Client{Timeout: timeout}),
			geocode.WithPacer(geocode.NewPacer(cfg.Pacing(cfg.Nominatim.PacingMs))),
			geocode.WithRetry(retry),
		},
		geocode.WithContactEmail(cfg.Nominatim.Email),
	)
	opts = append(opts, resolve.WithLayer(model.MethodSecondary, n))

	if cfg.Perplexity.Key != "" {
		client := perplexity.New(perplexity.Config{
			APIKey:  cfg.Perplexity.Key,
			BaseURL: cfg.Perplexity.BaseURL,
			Model:   cfg.Perplexity.Model,
		}, nil)
		a := geocode.NewAssisted(client, cfg.Perplexity.City,
			geocode.WithPacer(geocode.NewPacer(cfg.Pacing(cfg.Perplexity.PacingMs))),
			geocode.WithRetry(retry),
		)
		opts = append(opts, resolve.WithLayer(model.MethodAssisted, a))
	}

	return resolve.NewChain(cfg.Region, catalog, opts...)
}
