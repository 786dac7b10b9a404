package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientLimiterEnforcesRate(t *testing.T) {
	current := time.Unix(100, 0)
	limiter := NewClientLimiter(10, 2, func() time.Time { return current })

	assert.True(t, limiter.Allow("client-1"))
	assert.True(t, limiter.Allow("client-1"))
	assert.False(t, limiter.Allow("client-1"), "burst exhausted")
	assert.True(t, limiter.Allow("client-2"), "buckets are per client")

	current = current.Add(100 * time.Millisecond)
	assert.True(t, limiter.Allow("client-1"), "one token refilled")

	usage := limiter.Usage()
	require.Contains(t, usage, "client-1")
	assert.EqualValues(t, 3, usage["client-1"].Allowed)
	assert.EqualValues(t, 1, usage["client-1"].Denied)
	assert.Equal(t, current, usage["client-1"].LastSeen)

	limiter.Forget("client-1")
	limiter.Forget("client-2")
	assert.Empty(t, limiter.Usage())
}

func TestClientLimiterDisabledAndNil(t *testing.T) {
	limiter := NewClientLimiter(0, 0, nil)
	for i := 0; i < 100; i++ {
		require.True(t, limiter.Allow("client"))
	}
	var missing *ClientLimiter
	assert.True(t, missing.Allow("client"))
	assert.Nil(t, missing.Usage())
}
