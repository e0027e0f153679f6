package resolve

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/internal/resilience"
	"github.com/sells-group/microarea-cli/pkg/geocode"
)

var testRegion = geo.BoundingBox{LatMin: -11.05, LatMax: -10.75, LonMin: -37.25, LonMax: -37.00}

// fakeProvider answers from a fixed script and counts calls.
type fakeProvider struct {
	name    string
	match   *geocode.Match
	err     error
	calls   int
	queries []geocode.Query
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Lookup(_ context.Context, q geocode.Query) (*geocode.Match, error) {
	f.calls++
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.match, nil
}

func found(lat, lon float64, c model.Confidence) *geocode.Match {
	return &geocode.Match{Point: geo.NewPoint(lat, lon), Precision: "rooftop", Confidence: c, FormattedAddress: "formatted"}
}

func providerErr(kind geocode.ErrorKind, name string) error {
	return &geocode.ProviderError{Kind: kind, Provider: name, Err: errors.New("boom")}
}

func newTestChain(t *testing.T, primary, secondary geocode.Provider, opts ...Option) *Chain {
	t.Helper()
	all := []Option{WithLayer(model.MethodPrimary, primary), WithLayer(model.MethodSecondary, secondary)}
	c, err := NewChain(testRegion, nil, append(all, opts...)...)
	require.NoError(t, err)
	return c
}

var guajara = model.AddressRecord{Unit: "UBS Guajará", MicroArea: "3", Address: "Rua 12 de Fevereiro, Guajará - SE"}

func TestChain_PrimaryFound(t *testing.T) {
	primary := &fakeProvider{name: "google", match: found(-10.90, -37.10, model.ConfidenceHigh)}
	secondary := &fakeProvider{name: "nominatim"}
	c := newTestChain(t, primary, secondary)

	r := c.Resolve(context.Background(), guajara)
	require.NotNil(t, r.Point)
	assert.Equal(t, model.MethodPrimary, r.Method)
	assert.Equal(t, model.ConfidenceHigh, r.Confidence)
	assert.Equal(t, "google:rooftop", r.Note)
	assert.Equal(t, 0, secondary.calls)
	require.Len(t, r.Attempts, 1)
	assert.Equal(t, model.OutcomeFound, r.Attempts[0].Outcome)

	require.Len(t, primary.queries, 1)
	assert.Equal(t, "Rua 12 de Fevereiro, Guajará, Sergipe, Brasil", primary.queries[0].Address)
	assert.Equal(t, testRegion, primary.queries[0].Bias)
}

func TestChain_PrimaryOutOfBoundsFallsThrough(t *testing.T) {
	primary := &fakeProvider{name: "google", match: found(-10.9111, -37.0500, model.ConfidenceHigh)}
	primary.match.Point = geo.NewPoint(-10.70, -37.10)
	secondary := &fakeProvider{name: "nominatim", match: found(-10.86, -37.12, model.ConfidenceHigh)}
	c := newTestChain(t, primary, secondary)

	r := c.Resolve(context.Background(), guajara)
	assert.Equal(t, model.MethodSecondary, r.Method)
	assert.Equal(t, geo.NewPoint(-10.86, -37.12), *r.Point)

	hits := r.OutOfBoundsHits()
	require.Len(t, hits, 1)
	assert.Equal(t, model.MethodPrimary, hits[0].Layer)
	require.NotNil(t, hits[0].Point)
	assert.Equal(t, geo.NewPoint(-10.70, -37.10), *hits[0].Point)
	assert.Contains(t, hits[0].Detail, "out_of_bounds")
	assert.NotEqual(t, NoteFoundOutOfBounds, r.Note)
}

func TestChain_OutOfBoundsOnlyEndsManual(t *testing.T) {
	primary := &fakeProvider{name: "google", match: found(-10.9, -37.1, model.ConfidenceHigh)}
	primary.match.Point = geo.NewPoint(-23.5, -46.6)
	secondary := &fakeProvider{name: "nominatim", err: providerErr(geocode.KindZeroResults, "nominatim")}
	c := newTestChain(t, primary, secondary)

	r := c.Resolve(context.Background(), model.AddressRecord{Unit: "UBS Guajará", MicroArea: "3", Address: "Rua Desconhecida, 1"})
	assert.Equal(t, model.MethodManual, r.Method)
	assert.Equal(t, model.ConfidenceNone, r.Confidence)
	assert.Nil(t, r.Point)
	assert.Equal(t, NoteFoundOutOfBounds, r.Note)
	require.Len(t, r.OutOfBoundsHits(), 1)

	primary.match.Point = geo.NewPoint(-10.9, -37.1)
	primary.err = providerErr(geocode.KindZeroResults, "google")
	r = c.Resolve(context.Background(), model.AddressRecord{Unit: "UBS Guajará", MicroArea: "3", Address: "Rua Desconhecida, 1"})
	assert.Equal(t, NoteNotFound, r.Note)
}

func TestChain_InclusiveBoundary(t *testing.T) {
	primary := &fakeProvider{name: "google", match: found(-11.05, -37.00, model.ConfidenceHigh)}
	c := newTestChain(t, primary, &fakeProvider{name: "nominatim"})

	r := c.Resolve(context.Background(), guajara)
	assert.Equal(t, model.MethodPrimary, r.Method)
}

func TestChain_NeighborhoodFallback(t *testing.T) {
	primary := &fakeProvider{name: "google", err: providerErr(geocode.KindZeroResults, "google")}
	secondary := &fakeProvider{name: "nominatim", err: providerErr(geocode.KindUnavailable, "nominatim")}
	c := newTestChain(t, primary, secondary)

	r := c.Resolve(context.Background(), guajara)
	assert.Equal(t, model.MethodNeighborhood, r.Method)
	assert.Equal(t, model.ConfidenceMedium, r.Confidence)
	assert.Equal(t, "fallback:Guajará", r.Note)
	assert.Equal(t, geo.NewPoint(-10.89845, -37.15609), *r.Point)

	outcomes := make([]model.Outcome, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		outcomes = append(outcomes, a.Outcome)
	}
	assert.Equal(t, []model.Outcome{model.OutcomeNotFound, model.OutcomeUnavailable, model.OutcomeFound}, outcomes)
}

func TestChain_ContextFallbackIsLow(t *testing.T) {
	none := &fakeProvider{name: "google", err: providerErr(geocode.KindZeroResults, "google")}
	c := newTestChain(t, none, &fakeProvider{name: "nominatim", err: providerErr(geocode.KindZeroResults, "nominatim")})

	rec := model.AddressRecord{Unit: "UBS X", MicroArea: "1", Address: "Rua Sem Nome, 10", UnitLocation: "Rua Principal, São Braz"}
	r := c.Resolve(context.Background(), rec)
	assert.Equal(t, model.MethodNeighborhood, r.Method)
	assert.Equal(t, model.ConfidenceLow, r.Confidence)
	assert.Equal(t, "fallback_context:São Braz", r.Note)
}

func TestChain_Manual(t *testing.T) {
	c := newTestChain(t,
		&fakeProvider{name: "google", err: providerErr(geocode.KindRejected, "google")},
		&fakeProvider{name: "nominatim", err: providerErr(geocode.KindZeroResults, "nominatim")},
	)

	r := c.Resolve(context.Background(), model.AddressRecord{Unit: "U", MicroArea: "1", Address: "Rua Desconhecida, 99"})
	assert.Nil(t, r.Point)
	assert.Equal(t, model.MethodManual, r.Method)
	assert.Equal(t, model.ConfidenceNone, r.Confidence)
	assert.Equal(t, NoteNotFound, r.Note)
	require.Len(t, r.Attempts, 3)
	assert.Equal(t, model.OutcomeRejected, r.Attempts[0].Outcome)
	assert.Equal(t, model.MethodNeighborhood, r.Attempts[2].Layer)
}

func TestChain_EmptyAddress(t *testing.T) {
	p := &fakeProvider{name: "google"}
	c := newTestChain(t, p, &fakeProvider{name: "nominatim"})

	r := c.Resolve(context.Background(), model.AddressRecord{Unit: "U", MicroArea: "1", Address: "   "})
	assert.Equal(t, model.MethodManual, r.Method)
	assert.Equal(t, NoteEmptyAddress, r.Note)
	assert.Equal(t, 0, p.calls)
}

func TestChain_CircuitOpenSkipsProvider(t *testing.T) {
	down := &fakeProvider{name: "nominatim", err: providerErr(geocode.KindUnavailable, "nominatim")}
	c := newTestChain(t,
		&fakeProvider{name: "google", err: providerErr(geocode.KindZeroResults, "google")},
		down,
		WithCircuit(resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}),
	)

	rec := model.AddressRecord{Unit: "U", MicroArea: "1", Address: "Rua Desconhecida"}
	for range 2 {
		c.Resolve(context.Background(), rec)
	}
	require.Equal(t, 2, down.calls)

	r := c.Resolve(context.Background(), rec)
	assert.Equal(t, 2, down.calls)
	assert.Equal(t, model.OutcomeUnavailable, r.Attempts[1].Outcome)
	assert.Equal(t, "circuit open", r.Attempts[1].Detail)
	assert.Equal(t, resilience.CircuitOpen, c.Breakers().Get("nominatim").State())
}

func TestChain_ZeroResultsDoNotTripBreaker(t *testing.T) {
	empty := &fakeProvider{name: "google", err: providerErr(geocode.KindZeroResults, "google")}
	c := newTestChain(t, empty, &fakeProvider{name: "nominatim", err: providerErr(geocode.KindZeroResults, "nominatim")},
		WithCircuit(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour}))

	for range 3 {
		c.Resolve(context.Background(), guajara)
	}
	assert.Equal(t, 3, empty.calls)
}

func TestChain_InterruptedSkipsProviders(t *testing.T) {
	p := &fakeProvider{name: "google", match: found(-10.9, -37.1, model.ConfidenceHigh)}
	c := newTestChain(t, p, &fakeProvider{name: "nominatim"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := c.Resolve(ctx, guajara)
	assert.Equal(t, 0, p.calls)
	assert.Equal(t, model.MethodNeighborhood, r.Method)
	assert.Equal(t, model.OutcomeSkipped, r.Attempts[0].Outcome)
	assert.Equal(t, model.OutcomeSkipped, r.Attempts[1].Outcome)
}

func TestChain_OneResultPerRecord(t *testing.T) {
	c := newTestChain(t,
		&fakeProvider{name: "google", match: found(-10.9, -37.1, model.ConfidenceHigh)},
		&fakeProvider{name: "nominatim"},
	)
	// Same street under two micro-areas resolves independently.
	a := guajara
	b := guajara
	b.MicroArea = "4"
	ra := c.Resolve(context.Background(), a)
	rb := c.Resolve(context.Background(), b)
	assert.Equal(t, ra.Method, rb.Method)
	assert.NotSame(t, ra.Point, rb.Point)
}

func TestNewChain_InvalidRegion(t *testing.T) {
	_, err := NewChain(geo.BoundingBox{LatMin: 1, LatMax: 0, LonMin: 0, LonMax: 1}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve: region")
}

func TestNewChain_SkipsNilProvider(t *testing.T) {
	c, err := NewChain(testRegion, nil, WithLayer(model.MethodAssisted, nil))
	require.NoError(t, err)
	assert.Empty(t, c.Layers())
}
