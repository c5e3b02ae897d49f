package pacing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	calls []time.Duration
	err   error
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return r.err
}

func TestPacerSkipsFirstWait(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewPacer("send", 45*time.Second, 0, WithSleep(rec.sleep))

	for range 3 {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, []time.Duration{45 * time.Second, 45 * time.Second}, rec.calls)
}

func TestPacerJitterAndPenalty(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewPacer("lookup", 2*time.Second, time.Second,
		WithSleep(rec.sleep),
		WithJitterFunc(func(time.Duration) time.Duration { return 500 * time.Millisecond }),
	)

	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	got, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, got)

	p.Penalize()
	p.Penalize()
	got, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, got)

	got, err = p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2500*time.Millisecond, got)
}

func TestPacerPropagatesSleepError(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{err: context.Canceled}
	p := NewPacer("send", time.Second, 0, WithSleep(rec.sleep))
	_, err := p.Wait(context.Background())
	require.NoError(t, err)
	_, err = p.Wait(context.Background())
	require.True(t, errors.Is(err, context.Canceled))
}

func TestPacerZeroDelay(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	p := NewPacer("send", 0, 0, WithSleep(rec.sleep))
	for range 2 {
		_, err := p.Wait(context.Background())
		require.NoError(t, err)
	}
	assert.Empty(t, rec.calls)
}

func TestRandomJitterBounds(t *testing.T) {
	t.Parallel()

	for range 100 {
		j := randomJitter(time.Second)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.LessOrEqual(t, j, time.Second)
	}
	assert.Zero(t, randomJitter(0))
}
