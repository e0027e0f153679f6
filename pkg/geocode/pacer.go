package geocode

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultPacing is the minimum delay between calls to the same service.
const DefaultPacing = time.Second

// Pacer enforces a minimum delay between consecutive calls. The first call
// goes through immediately.
type Pacer struct {
	delay   time.Duration
	limiter *rate.Limiter
}

// NewPacer returns a pacer for delay. A non-positive delay disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	if delay <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{delay: delay, limiter: rate.NewLimiter(rate.Every(delay), 1)}
}

// Delay is the configured minimum spacing.
func (p *Pacer) Delay() time.Duration { return p.delay }

// Wait blocks until the next call is allowed or ctx ends.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "geocode: pacing wait")
	}
	return nil
}
