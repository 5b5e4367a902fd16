package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowRespectsBurst(t *testing.T) {
	rl := New(1, 2)

	assert.True(t, rl.Allow("reconnect:wss://relay.example"))
	assert.True(t, rl.Allow("reconnect:wss://relay.example"))
	assert.False(t, rl.Allow("reconnect:wss://relay.example"), "burst exhausted")

	// other keys have their own bucket
	assert.True(t, rl.Allow("reconnect:wss://other.example"))
}

func TestZeroRateMeansUnlimited(t *testing.T) {
	rl := New(0, 1)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("gateway"))
	}
}

func TestSetLimitOverridesKey(t *testing.T) {
	rl := New(0, 1)
	rl.SetLimit("slow", 1, 1)

	assert.True(t, rl.Allow("slow"))
	assert.False(t, rl.Allow("slow"))
	assert.True(t, rl.Allow("fast"), "default stays unlimited")
}

func TestWaitHonorsContext(t *testing.T) {
	rl := New(0.001, 1)
	require.True(t, rl.Allow("slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := rl.Wait(ctx, "slow")
	assert.Error(t, err, "waiting longer than the deadline fails")
}
