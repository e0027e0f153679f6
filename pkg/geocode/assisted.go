package geocode

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/sells-group/microarea-cli/internal/geo"
	"github.com/sells-group/microarea-cli/internal/model"
	"github.com/sells-group/microarea-cli/pkg/perplexity"
)

const notFound = "NOT_FOUND"

var answerPattern = regexp.MustCompile(`\[\[\[\s*(-?\d+(?:\.\d+)?)\s*,\s*(-?\d+(?:\.\d+)?)\s*\]\]\]`)

// Assisted asks a search-grounded language model for the street's
// coordinate. Answers are low confidence: the model may guess.
type Assisted struct {
	service
	client perplexity.Client
	city   string
}

// NewAssisted returns the assisted search provider. city names the
// municipality in the prompt.
func NewAssisted(client perplexity.Client, city string, opts ...Option) *Assisted {
	if city == "" {
		city = "Nossa Senhora do Socorro, Sergipe, Brasil"
	}
	return &Assisted{
		service: newService("perplexity", "", opts),
		client:  client,
		city:    city,
	}
}

// Name implements Provider.
func (a *Assisted) Name() string { return a.name }

// Lookup implements Provider.
func (a *Assisted) Lookup(ctx context.Context, q Query) (*Match, error) {
	return withRetry(ctx, &a.service, func(ctx context.Context) (*Match, error) {
		return a.lookupOnce(ctx, q)
	})
}

func (a *Assisted) lookupOnce(ctx context.Context, q Query) (*Match, error) {
	if err := a.pacer.Wait(ctx); err != nil {
		return nil, newError(KindUnavailable, a.name, err)
	}

	resp, err := a.client.Complete(ctx, perplexity.Ask(a.prompt(q), 0.1, 100))
	if err != nil {
		return nil, newError(KindOf(err), a.name, err)
	}

	return a.parse(resp.Text())
}

func (a *Assisted) parse(content string) (*Match, error) {
	if m := answerPattern.FindStringSubmatch(content); m != nil {
		lat, errLat := strconv.ParseFloat(m[1], 64)
		lon, errLon := strconv.ParseFloat(m[2], 64)
		if errLat == nil && errLon == nil {
			return &Match{
				Point:      geo.NewPoint(lat, lon),
				Precision:  "assisted",
				Confidence: model.ConfidenceLow,
			}, nil
		}
	}
	if strings.Contains(content, notFound) {
		return nil, newError(KindZeroResults, a.name, nil)
	}
	return nil, newError(KindZeroResults, a.name, eris.Errorf("unparseable answer %q", clip(content, 80)))
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func (a *Assisted) prompt(q Query) string {
	var b strings.Builder
	b.WriteString("Find the geographic coordinates (latitude and longitude) of this street on Google Maps:\n\n")
	fmt.Fprintf(&b, "STREET: %q\n\nCONTEXT:\n", q.Address)
	if q.Unit != "" {
		fmt.Fprintf(&b, "- The street belongs to the coverage area of health unit %s\n", q.Unit)
	}
	if q.UnitLocation != "" {
		fmt.Fprintf(&b, "- The health unit is located at: %s\n", q.UnitLocation)
	}
	fmt.Fprintf(&b, "- City: %s\n", a.city)
	if q.Bias.Validate() == nil {
		fmt.Fprintf(&b, "- The region spans latitude %.2f to %.2f and longitude %.2f to %.2f\n",
			q.Bias.LatMin, q.Bias.LatMax, q.Bias.LonMin, q.Bias.LonMax)
	}
	b.WriteString("\nIf you find the exact street, answer ONLY with the coordinates in this exact format:\n")
	b.WriteString("[[[LATITUDE, LONGITUDE]]]\n\n")
	b.WriteString("Example: [[[-10.8935, -37.1567]]]\n\n")
	b.WriteString("If you cannot find the exact street, answer:\n[[[NOT_FOUND]]]")
	return b.String()
}
