package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimiterConfig{})
	start := time.Now()
	for range 5 {
		require.NoError(t, l.Wait(context.Background(), "https://api.hunter.io/v2/domain-search"))
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestLimiterPerHost(t *testing.T) {
	t.Parallel()

	l := NewLimiter(LimiterConfig{RPS: 0.001, Burst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://a.example.com/x"))
	require.NoError(t, l.Wait(context.Background(), "https://b.example.com/x"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, l.Wait(ctx, "https://a.example.com/y"))
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "example.com", hostOf("https://Example.com/path"))
	assert.Equal(t, "unknown", hostOf("::bad"))
}
