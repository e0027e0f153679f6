package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
)

// Method tags which resolver layer produced a result.
type Method string

const (
	MethodPrimary      Method = "primary_service"
	MethodSecondary    Method = "secondary_service"
	MethodAssisted     Method = "assisted_search"
	MethodNeighborhood Method = "neighborhood_fallback"
	MethodManual       Method = "manual"
)

// Methods lists every method in chain order.
var Methods = []Method{MethodPrimary, MethodSecondary, MethodAssisted, MethodNeighborhood, MethodManual}

// Confidence is the qualitative trust attached to a coordinate. The zero
// value is ConfidenceNone and values compare with the usual operators.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceMedium
	ConfidenceHigh
)

// Confidences lists every level from strongest to weakest.
var Confidences = []Confidence{ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone}

var confidenceNames = map[Confidence]string{
	ConfidenceNone:   "none",
	ConfidenceLow:    "low",
	ConfidenceMedium: "medium",
	ConfidenceHigh:   "high",
}

func (c Confidence) String() string {
	if s, ok := confidenceNames[c]; ok {
		return s
	}
	return "none"
}

// ParseConfidence accepts the lowercase names produced by String.
func ParseConfidence(s string) (Confidence, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for c, name := range confidenceNames {
		if name == want {
			return c, nil
		}
	}
	return ConfidenceNone, eris.Errorf("model: unknown confidence %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(b []byte) error {
	v, err := ParseConfidence(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Outcome is what a single layer reported for an address.
type Outcome string

const (
	OutcomeFound            Outcome = "found"
	OutcomeFoundOutOfBounds Outcome = "found_out_of_bounds"
	OutcomeNotFound         Outcome = "not_found"
	OutcomeUnavailable      Outcome = "unavailable"
	OutcomeRejected         Outcome = "rejected"
	OutcomeSkipped          Outcome = "skipped"
)

// Attempt records one layer tried while resolving an address.
type Attempt struct {
	Layer   Method     `json:"layer"`
	Outcome Outcome    `json:"outcome"`
	Point   *geo.Point `json:"point,omitempty"`
	Detail  string     `json:"detail,omitempty"`
}

// ResolutionResult is the single decision the chain makes for an address.
type ResolutionResult struct {
	Point            *geo.Point `json:"point,omitempty"`
	Method           Method     `json:"method"`
	Confidence       Confidence `json:"confidence"`
	Note             string     `json:"note,omitempty"`
	Precision        string     `json:"precision,omitempty"`
	FormattedAddress string     `json:"formatted_address,omitempty"`
	Attempts         []Attempt  `json:"attempts,omitempty"`
}

// Resolved reports whether the result carries a coordinate.
func (r ResolutionResult) Resolved() bool { return r.Point != nil }

// PrecisionApproximate is the match precision of a geocoder answer that
// only places the address roughly (Google APPROXIMATE).
const PrecisionApproximate = "approximate"

// NeedsReview reports whether the address should go on the manual review
// list: no coordinate, only a neighborhood centroid, or an approximate
// geocoder match.
func (r ResolutionResult) NeedsReview() bool {
	return r.Point == nil || r.Method == MethodManual || r.Method == MethodNeighborhood ||
		r.Precision == PrecisionApproximate
}

// OutOfBoundsHits returns the attempts where a provider answered with a
// coordinate outside the region box.
func (r ResolutionResult) OutOfBoundsHits() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeFoundOutOfBounds {
			out = append(out, a)
		}
	}
	return out
}

// ConsolidatedRecord is the stored best-known result for one address.
type ConsolidatedRecord struct {
	AddressRecord
	Result    ResolutionResult `json:"result"`
	RunID     string           `json:"run_id,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}
