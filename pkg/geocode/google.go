package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results      []googleResult `json:"results"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
	PartialMatch     bool   `json:"partial_match"`
}

// GoogleOptions are the request parameters sent with every lookup.
type GoogleOptions struct {
	Region     string
	Language   string
	Components string
}

// Google is the primary provider, keyed by an API key.
type Google struct {
	service
	key    string
	params GoogleOptions
}

// NewGoogle returns a Google provider. Empty params fall back to Brazil,
// Portuguese and the state of Sergipe.
func NewGoogle(key string, params GoogleOptions, opts ...Option) *Google {
	if params.Region == "" {
		params.Region = "br"
	}
	if params.Language == "" {
		params.Language = "pt-BR"
	}
	if params.Components == "" {
		params.Components = "country:BR|administrative_area:SE"
	}
	return &Google{
		service: newService("google", googleGeocodeURL, opts),
		key:     key,
		params:  params,
	}
}

// Name implements Provider.
func (g *Google) Name() string { return g.name }

// Lookup implements Provider.
func (g *Google) Lookup(ctx context.Context, q Query) (*Match, error) {
	if g.key == "" {
		return nil, newError(KindRejected, g.name, eris.New("api key not configured"))
	}
	return withRetry(ctx, &g.service, func(ctx context.Context) (*Match, error) {
		return g.lookupOnce(ctx, q)
	})
}

func (g *Google) lookupOnce(ctx context.Context, q Query) (*Match, error) {
	params := url.Values{
		"address":  {q.Address},
		"key":      {g.key},
		"region":   {g.params.Region},
		"language": {g.params.Language},
	}
	if g.params.Components != "" {
		params.Set("components", g.params.Components)
	}
	if q.Bias.Validate() == nil {
		params.Set("bounds", googleBounds(q.Bias))
	}

	body, err := g.get(ctx, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp googleGeocodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, newError(KindRejected, g.name, eris.Wrap(err, "parse response"))
	}

	switch resp.Status {
	case "OK":
		if len(resp.Results) == 0 {
			return nil, newError(KindZeroResults, g.name, nil)
		}
	case "ZERO_RESULTS":
		return nil, newError(KindZeroResults, g.name, nil)
	case "UNKNOWN_ERROR":
		return nil, newError(KindUnavailable, g.name, googleStatusError(resp))
	default:
		// OVER_QUERY_LIMIT, REQUEST_DENIED, INVALID_REQUEST and anything new.
		return nil, newError(KindRejected, g.name, googleStatusError(resp))
	}

	r := resp.Results[0]
	precision := googleLocationTypeToQuality(r.Geometry.LocationType)
	return &Match{
		Point:            geo.NewPoint(r.Geometry.Location.Lat, r.Geometry.Location.Lng),
		FormattedAddress: r.FormattedAddress,
		Precision:        precision,
		Confidence:       googleQualityConfidence(precision),
	}, nil
}

// googleBounds renders the bias box as "sw_lat,sw_lon|ne_lat,ne_lon".
func googleBounds(b geo.BoundingBox) string {
	return fmt.Sprintf("%f,%f|%f,%f", b.LatMin, b.LonMin, b.LatMax, b.LonMax)
}

func googleStatusError(resp googleGeocodeResponse) error {
	if resp.ErrorMessage != "" {
		return eris.Errorf("status %s: %s", resp.Status, resp.ErrorMessage)
	}
	return eris.Errorf("status %s", resp.Status)
}

// googleLocationTypeToQuality maps Google's location_type to a precision tag.
func googleLocationTypeToQuality(locType string) string {
	switch strings.ToUpper(locType) {
	case "ROOFTOP":
		return "rooftop"
	case "RANGE_INTERPOLATED":
		return "range"
	case "GEOMETRIC_CENTER":
		return "centroid"
	default:
		return model.PrecisionApproximate
	}
}

func googleQualityConfidence(precision string) model.Confidence {
	if precision == model.PrecisionApproximate {
		return model.ConfidenceMedium
	}
	return model.ConfidenceHigh
}
