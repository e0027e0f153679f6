// Package geocode integrates the external geocoding services behind a single
// Provider contract: Google Geocoding (primary), Nominatim/OSM (secondary)
// and a Perplexity-backed assisted search.
package geocode

import (
	"context"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

// Provider resolves free-text addresses to a coordinate. A provider never
// filters by region itself: Bias is advisory and callers re-validate.
//
// Lookup returns a *ProviderError for every failure so callers can tell a
// throttled service from an empty answer.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, q Query) (*Match, error)
}

// Query is what a provider receives for one address.
type Query struct {
	// Address is the normalized address text.
	Address string

	// Unit and UnitLocation give context to providers that can use it.
	Unit         string
	UnitLocation string

	Bias geo.BoundingBox
}

// Match is a provider's best answer.
type Match struct {
	Point            geo.Point
	FormattedAddress string
	// Precision is the provider's own precision tag, lowercased.
	Precision  string
	Confidence model.Confidence
}
