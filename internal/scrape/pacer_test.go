package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/feedscrape/internal/resilience"
)

func TestPacer_Defaults(t *testing.T) {
	p := NewPacer(0, 0)
	assert.Equal(t, rate.Limit(0.5), p.limiter.Limit())
	require.NoError(t, p.Wait(context.Background()))
}

func TestPacer_SpacesNavigations(t *testing.T) {
	p := NewPacer(50, 1)
	start := time.Now()
	for range 3 {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestPacer_WaitHonorsContext(t *testing.T) {
	p := NewPacer(0.001, 1)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Wait(ctx))
}

func TestPacer_SlotPastDeadlineIsGateTimeout(t *testing.T) {
	p := NewPacer(0.5, 1)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Wait(ctx)
	require.Error(t, err)
	assert.Equal(t, resilience.KindGateTimeout, resilience.KindOf(err))
	assert.NoError(t, ctx.Err())
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}
