package antispam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
)

// CooldownStore throttles repeat notifications. Acquire reports whether the
// caller won the slot; a false answer means the cooldown is still running.
type CooldownStore interface {
	Acquire(ctx context.Context, guildID, userID snowflake.ID, ttl time.Duration) (bool, error)
}

// MemoryCooldown is a process-local cooldown store for tests and
// single-instance deployments.
type MemoryCooldown struct {
	clock Clock

	mu    sync.Mutex
	slots map[stateKey]int64
}

// NewMemoryCooldown creates an in-memory cooldown store.
func NewMemoryCooldown(clock Clock) *MemoryCooldown {
	return &MemoryCooldown{
		clock: clock,
		slots: make(map[stateKey]int64),
	}
}

func (c *MemoryCooldown) Acquire(_ context.Context, guildID, userID snowflake.ID, ttl time.Duration) (bool, error) {
	now := c.clock.Now()
	key := stateKey{Guild: guildID, User: userID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if expires, ok := c.slots[key]; ok && now < expires {
		return false, nil
	}

	c.slots[key] = now + int64(ttl.Seconds())

	return true, nil
}

// RedisCooldown stores cooldown slots in Redis so multiple bot instances
// share them. Slots are acquired with SET NX EX, so acquisition is atomic.
type RedisCooldown struct {
	client rueidis.Client
}

// NewRedisCooldown creates a Redis-backed cooldown store.
func NewRedisCooldown(client rueidis.Client) *RedisCooldown {
	return &RedisCooldown{client: client}
}

func (c *RedisCooldown) Acquire(ctx context.Context, guildID, userID snowflake.ID, ttl time.Duration) (bool, error) {
	key := fmt.Sprintf("cooldown:dm:%d:%d", guildID, userID)

	cmd := c.client.B().Set().Key(key).Value("1").
		Nx().Ex(ttl).Build()

	resp := c.client.Do(ctx, cmd)
	if err := resp.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			// NX failed: the slot is already held.
			return false, nil
		}

		return false, fmt.Errorf("failed to acquire cooldown slot: %w", err)
	}

	return true, nil
}
