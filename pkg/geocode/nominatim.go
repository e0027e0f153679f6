package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
)

const nominatimSearchURL = "https://nominatim.openstreetmap.org/search"

type nominatimPlace struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	AddressType string `json:"addresstype"`
}

// Nominatim is the secondary provider backed by OpenStreetMap. Its usage
// policy requires an identifying User-Agent and at most one request per
// second, so callers should keep the pacer at or above that.
type Nominatim struct {
	service
	email string
}

// NominatimOption configures the Nominatim-specific parameters.
type NominatimOption func(*Nominatim)

// WithContactEmail adds the email parameter the usage policy asks heavy
// users to send.
func WithContactEmail(email string) NominatimOption {
	return func(n *Nominatim) {
		n.email = email
	}
}

// NewNominatim returns a Nominatim provider.
func NewNominatim(opts []Option, nopts ...NominatimOption) *Nominatim {
	n := &Nominatim{service: newService("nominatim", nominatimSearchURL, opts)}
	for _, o := range nopts {
		o(n)
	}
	return n
}

// Name implements Provider.
func (n *Nominatim) Name() string { return n.name }

// Lookup implements Provider. Transient failures are retried under the
// configured policy; each retry is paced like a fresh request.
func (n *Nominatim) Lookup(ctx context.Context, q Query) (*Match, error) {
	return withRetry(ctx, &n.service, func(ctx context.Context) (*Match, error) {
		return n.lookupOnce(ctx, q)
	})
}

func (n *Nominatim) lookupOnce(ctx context.Context, q Query) (*Match, error) {
	params := url.Values{
		"q":            {q.Address},
		"format":       {"jsonv2"},
		"limit":        {"1"},
		"countrycodes": {"br"},
	}
	if q.Bias.Validate() == nil {
		params.Set("viewbox", nominatimViewbox(q.Bias))
		params.Set("bounded", "0")
	}
	if n.email != "" {
		params.Set("email", n.email)
	}

	body, err := n.get(ctx, n.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var places []nominatimPlace
	if err := json.Unmarshal(body, &places); err != nil {
		return nil, newError(KindRejected, n.name, eris.Wrap(err, "parse response"))
	}
	if len(places) == 0 {
		return nil, newError(KindZeroResults, n.name, nil)
	}

	p := places[0]
	lat, errLat := strconv.ParseFloat(p.Lat, 64)
	lon, errLon := strconv.ParseFloat(p.Lon, 64)
	if errLat != nil || errLon != nil {
		return nil, newError(KindUnavailable, n.name, eris.Errorf("bad coordinate %q,%q", p.Lat, p.Lon))
	}

	precision := p.AddressType
	if precision == "" {
		precision = p.Type
	}
	return &Match{
		Point:            geo.NewPoint(lat, lon),
		FormattedAddress: p.DisplayName,
		Precision:        precision,
		Confidence:       model.ConfidenceHigh,
	}, nil
}

// nominatimViewbox renders the box as "left,top,right,bottom".
func nominatimViewbox(b geo.BoundingBox) string {
	return fmt.Sprintf("%f,%f,%f,%f", b.LonMin, b.LatMax, b.LonMax, b.LatMin)
}
