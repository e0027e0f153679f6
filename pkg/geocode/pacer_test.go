package geocode

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacer_EnforcesMinimumDelay(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, p.Delay())

	ctx := context.Background()
	start := time.Now()
	require.NoError(t, p.Wait(ctx)) // first call is immediate
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestPacer_Disabled(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pacing wait")
}
