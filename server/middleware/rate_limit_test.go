package middleware

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("burst then reject", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 2)
		assert.True(t, rl.Allow("s1"))
		assert.True(t, rl.Allow("s1"))
		assert.False(t, rl.Allow("s1"))
		assert.True(t, rl.Allow("s2"), "keys are independent")
	})

	t.Run("forget resets a key", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		assert.True(t, rl.Allow("s1"))
		assert.False(t, rl.Allow("s1"))
		rl.Forget("s1")
		assert.True(t, rl.Allow("s1"))
	})

	t.Run("sweep drops idle keys", func(t *testing.T) {
		now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		rl := NewRateLimiter(1, 1)
		rl.now = func() time.Time { return now }
		rl.Allow("old")
		now = now.Add(idleLimiterTTL + time.Second)
		rl.Allow("fresh")

		assert.Equal(t, 1, rl.Sweep())
		assert.Equal(t, 1, rl.Len())
	})
}
