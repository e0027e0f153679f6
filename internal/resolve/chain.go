// Package resolve turns one address into exactly one ResolutionResult by
// walking an ordered chain of layers: external providers first, then the
// neighborhood-centroid fallback, then the manual terminal state.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/resilience"
	"github.com/sells-group/microarea-cli/pkg/geocode"
)

// Notes written on results that did not come from a provider.
const (
	NoteNotFound        = "not_found"
	NoteEmptyAddress    = "empty_address"
	NoteStoreError      = "store_error: "
	noteFallback        = "fallback:"
	noteFallbackContext = "fallback_context:"

	// NoteFoundOutOfBounds marks a manual result where a provider did
	// answer, but only outside the region.
	NoteFoundOutOfBounds = "found_out_of_bounds"
)

// Layer binds a provider to the method tag its results carry.
type Layer struct {
	Method   model.Method
	Provider geocode.Provider
}

// Chain resolves addresses. One batch loop drives it; it is not safe for
// concurrent use.
type Chain struct {
	layers   []Layer
	region   geo.BoundingBox
	catalog  *geo.Catalog
	breakers *resilience.Breakers
	circuit  resilience.CircuitBreakerConfig
}

// Option configures a Chain.
type Option func(*Chain)

// WithLayer appends a provider layer. Layers run in the order added.
func WithLayer(method model.Method, p geocode.Provider) Option {
	return func(c *Chain) {
		if p != nil {
			c.layers = append(c.layers, Layer{Method: method, Provider: p})
		}
	}
}

// WithCircuit sets the per-provider circuit breaker policy.
func WithCircuit(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Chain) {
		c.circuit = cfg
	}
}

// NewChain builds a chain over region. A nil catalog uses the built-in one.
func NewChain(region geo.BoundingBox, catalog *geo.Catalog, opts ...Option) (*Chain, error) {
	if err := region.Validate(); err != nil {
		return nil, eris.Wrap(err, "resolve: region")
	}
	if catalog == nil {
		catalog = geo.DefaultCatalog()
	}
	c := &Chain{
		region:  region,
		catalog: catalog,
		circuit: resilience.DefaultCircuitBreakerConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.circuit.ShouldTrip == nil {
		c.circuit.ShouldTrip = func(err error) bool {
			return geocode.KindOf(err) == geocode.KindUnavailable
		}
	}
	c.breakers = resilience.NewBreakers(c.circuit)
	return c, nil
}

// Layers returns the configured provider layers in order.
func (c *Chain) Layers() []Layer { return c.layers }

// Breakers exposes the per-provider breakers for status reporting.
func (c *Chain) Breakers() *resilience.Breakers { return c.breakers }

// Resolve runs every layer until one yields an in-region coordinate. It
// never fails: when nothing works the result is the manual state. Once ctx
// is done, remaining provider layers are skipped but the offline fallback
// still runs.
func (c *Chain) Resolve(ctx context.Context, rec model.AddressRecord) model.ResolutionResult {
	log := zap.L().With(zap.String("address", rec.Address), zap.String("unit", rec.Unit), zap.String("micro_area", rec.MicroArea))

	address := strings.TrimSpace(rec.Address)
	if address == "" {
		return model.ResolutionResult{Method: model.MethodManual, Confidence: model.ConfidenceNone, Note: NoteEmptyAddress}
	}

	q := geocode.Query{
		Address:      geocode.Normalize(address),
		Unit:         rec.Unit,
		UnitLocation: rec.UnitLocation,
		Bias:         c.region,
	}

	var attempts []model.Attempt
	for _, layer := range c.layers {
		name := layer.Provider.Name()
		if ctx.Err() != nil {
			attempts = append(attempts, model.Attempt{Layer: layer.Method, Outcome: model.OutcomeSkipped, Detail: "interrupted"})
			continue
		}

		m, err := resilience.ExecuteVal(ctx, c.breakers.Get(name), func(ctx context.Context) (*geocode.Match, error) {
			return layer.Provider.Lookup(ctx, q)
		})
		if err != nil {
			a := failedAttempt(layer.Method, err)
			log.Debug("resolve: layer miss", zap.String("provider", name), zap.String("outcome", string(a.Outcome)), zap.Error(err))
			attempts = append(attempts, a)
			continue
		}

		p := m.Point
		if !p.Valid() || !c.region.Contains(p) {
			detail := (&geocode.ProviderError{Kind: geocode.KindOutOfBounds, Provider: name, Err: fmt.Errorf("%s %s", p, m.FormattedAddress)}).Error()
			log.Info("resolve: provider result outside region", zap.String("provider", name), zap.Stringer("point", p))
			attempts = append(attempts, model.Attempt{Layer: layer.Method, Outcome: model.OutcomeFoundOutOfBounds, Point: &p, Detail: detail})
			continue
		}

		attempts = append(attempts, model.Attempt{Layer: layer.Method, Outcome: model.OutcomeFound, Point: &p})
		return model.ResolutionResult{
			Point:            &p,
			Method:           layer.Method,
			Confidence:       m.Confidence,
			Note:             providerNote(name, m.Precision),
			Precision:        m.Precision,
			FormattedAddress: m.FormattedAddress,
			Attempts:         attempts,
		}
	}

	if r, ok := c.fallback(rec, attempts); ok {
		log.Info("resolve: neighborhood fallback", zap.String("note", r.Note))
		return r
	}

	attempts = append(attempts, model.Attempt{Layer: model.MethodNeighborhood, Outcome: model.OutcomeNotFound})
	r := model.ResolutionResult{
		Method:     model.MethodManual,
		Confidence: model.ConfidenceNone,
		Note:       NoteNotFound,
		Attempts:   attempts,
	}
	if len(r.OutOfBoundsHits()) > 0 {
		r.Note = NoteFoundOutOfBounds
	}
	log.Info("resolve: flagged for manual review", zap.String("note", r.Note))
	return r
}

// fallback matches the address against the neighborhood catalog, then the
// unit location as weaker context.
func (c *Chain) fallback(rec model.AddressRecord, attempts []model.Attempt) (model.ResolutionResult, bool) {
	confidence := model.ConfidenceMedium
	prefix := noteFallback
	n, ok := c.catalog.MatchNeighborhood(rec.Address)
	if !ok {
		n, ok = c.catalog.MatchNeighborhood(rec.UnitLocation)
		confidence = model.ConfidenceLow
		prefix = noteFallbackContext
	}
	if !ok {
		return model.ResolutionResult{}, false
	}

	p := n.Point()
	attempts = append(attempts, model.Attempt{Layer: model.MethodNeighborhood, Outcome: model.OutcomeFound, Point: &p, Detail: n.Name})
	return model.ResolutionResult{
		Point:      &p,
		Method:     model.MethodNeighborhood,
		Confidence: confidence,
		Note:       prefix + n.Name,
		Precision:  "neighborhood",
		Attempts:   attempts,
	}, true
}

func failedAttempt(method model.Method, err error) model.Attempt {
	a := model.Attempt{Layer: method, Detail: err.Error()}
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		a.Outcome = model.OutcomeUnavailable
		a.Detail = "circuit open"
	case geocode.KindOf(err) == geocode.KindZeroResults:
		a.Outcome = model.OutcomeNotFound
	case geocode.KindOf(err) == geocode.KindRejected:
		a.Outcome = model.OutcomeRejected
	default:
		a.Outcome = model.OutcomeUnavailable
	}
	return a
}

func providerNote(provider, precision string) string {
	if precision == "" {
		return provider
	}
	return provider + ":" + precision
}
