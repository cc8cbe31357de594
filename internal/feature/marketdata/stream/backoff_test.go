package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff_SequenceWithoutJitter(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Second, 30*time.Second, 0)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i)
	}
	assert.Equal(t, len(want), b.Attempts())

	b.Reset()
	assert.Equal(t, time.Second, b.Next(), "reset restarts at the initial delay")
}

func TestBackoff_JitterBoundedAndCapped(t *testing.T) {
	t.Parallel()

	b := NewBackoff(time.Second, 30*time.Second, 0.3)
	b.rand = func() float64 { return 0.999 }

	assert.InDelta(t, float64(1300*time.Millisecond), float64(b.Next()), float64(time.Millisecond))
	assert.InDelta(t, float64(2600*time.Millisecond), float64(b.Next()), float64(2*time.Millisecond))
	for i := 0; i < 10; i++ {
		assert.LessOrEqual(t, b.Next(), 30*time.Second)
	}
}

func TestSleepCtx_CancelledEarly(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepCtx(ctx, time.Minute)

	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
