package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacerSpacesCalls(t *testing.T) {
	t.Parallel()

	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first wait is immediate")

	require.NoError(t, p.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 35*time.Millisecond)
	assert.Equal(t, 40*time.Millisecond, p.Interval())
}

func TestPacerDisabled(t *testing.T) {
	t.Parallel()

	for _, interval := range []time.Duration{0, -1} {
		p := NewPacer(interval)
		start := time.Now()
		for range 5 {
			require.NoError(t, p.Wait(context.Background()))
		}
		assert.Less(t, time.Since(start), 20*time.Millisecond)
		assert.Zero(t, p.Interval())
	}

	var nilPacer *Pacer
	require.NoError(t, nilPacer.Wait(context.Background()))
}

func TestPacerStopsOnCancel(t *testing.T) {
	t.Parallel()

	p := NewPacer(5 * time.Second)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	require.Error(t, p.Wait(ctx))
	assert.Less(t, time.Since(start), time.Second)

	disabledCtx, stop := context.WithCancel(context.Background())
	stop()
	require.ErrorIs(t, NewPacer(-1).Wait(disabledCtx), context.Canceled)
}
