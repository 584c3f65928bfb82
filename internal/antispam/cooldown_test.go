package antispam

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCooldown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := newFakeClock(1000)
	cooldowns := NewMemoryCooldown(clock)

	ok, err := cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "first acquire wins the slot")

	ok, err = cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "slot is held for the ttl")

	// A different user or guild gets its own slot.
	ok, err = cooldowns.Acquire(ctx, 1, 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cooldowns.Acquire(ctx, 2, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// After the ttl lapses the slot can be taken again.
	clock.advance(61)

	ok, err = cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisCooldown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx := context.Background()
	cooldowns := NewRedisCooldown(client)

	ok, err := cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "SET NX refuses while the slot exists")

	ok, err = cooldowns.Acquire(ctx, 1, 4, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "slots are per user")

	mr.FastForward(2 * time.Minute)

	ok, err = cooldowns.Acquire(ctx, 1, 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired slot can be reacquired")
}
