package scrape

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/sells-group/feedscrape/internal/resilience"
)

// Pacer enforces a minimum spacing between page navigations so a scrape
// with several terms does not load pages back to back.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a Pacer allowing perSecond navigations per second.
func NewPacer(perSecond float64, burst int) *Pacer {
	if perSecond <= 0 {
		perSecond = 0.5
	}
	if burst <= 0 {
		burst = 1
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until the next navigation is allowed. The limiter refuses up
// front when the next slot falls past ctx's deadline; that is reported as a
// gate timeout even though ctx has not ended yet.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return resilience.WrapError(err, resilience.KindGateTimeout, "no navigation slot before the request deadline")
	}
	return nil
}
