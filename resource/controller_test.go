package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundRuns: 2})

	// Acquire 2
	require.NoError(t, c.AcquireBackground(context.Background()))
	require.NoError(t, c.AcquireBackground(context.Background()))

	// Try 3rd
	assert.False(t, c.TryAcquireBackground())

	// Blocking acquire gives up with the context
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBackground(ctx), context.DeadlineExceeded)

	// Release 1
	c.ReleaseBackground()

	// Try 3rd again
	assert.True(t, c.TryAcquireBackground())
}

func TestController_DefaultRuns(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(1), c.Config().MaxBackgroundRuns)

	assert.True(t, c.TryAcquireBackground())
	assert.False(t, c.TryAcquireBackground())
}

func TestController_CallRate(t *testing.T) {
	c := NewController(Config{StoreCallsPerSec: 1, Burst: 1})

	require.NoError(t, c.AcquireCall(context.Background()))

	// The bucket is empty; the next token is a second away.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireCall(ctx))
}

func TestController_Unlimited(t *testing.T) {
	c := NewController(Config{MaxBackgroundRuns: 1})
	for range 100 {
		require.NoError(t, c.AcquireCall(context.Background()))
	}
}

func TestController_Nil(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireBackground(context.Background()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	require.NoError(t, c.AcquireCall(context.Background()))
	assert.Equal(t, Config{}, c.Config())
}
