package antispam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/platform"
	"go.uber.org/zap"
)

// slowmodeMaxRetries bounds how often a rate-limited slowmode edit is
// reattempted before the enforcement cycle is abandoned.
const slowmodeMaxRetries = 5

type channelKey struct {
	Guild   snowflake.ID
	Channel snowflake.ID
}

// Result reports what an enforcement cycle achieved.
type Result struct {
	SlowmodeApplied bool
	TimedOut        bool
	Deleted         int
}

// Enforcer applies the physical effects of a verdict: channel slowmode
// with deferred restoration, a member timeout, and a retroactive purge of
// the offender's recent messages. All platform retries are bounded.
type Enforcer struct {
	adapter platform.Adapter
	clock   Clock
	params  Params
	states  *stateMap
	logger  *zap.Logger

	mu            sync.Mutex
	savedSlowmode map[channelKey]int
	restoreCancel map[channelKey]context.CancelFunc
	lastTimeout   map[stateKey]int64
	tasks         sync.WaitGroup
}

// NewEnforcer creates an enforcer bound to the shared detection state.
func NewEnforcer(adapter platform.Adapter, clock Clock, params Params, states *stateMap, logger *zap.Logger) *Enforcer {
	return &Enforcer{
		adapter:       adapter,
		clock:         clock,
		params:        params,
		states:        states,
		logger:        logger.Named("enforcer"),
		savedSlowmode: make(map[channelKey]int),
		restoreCancel: make(map[channelKey]context.CancelFunc),
		lastTimeout:   make(map[stateKey]int64),
	}
}

// Enforce runs the full cycle for one verdict. If throttling the channel
// fails the remaining steps are skipped: the channel must be slowed before
// any purge or member action happens.
func (e *Enforcer) Enforce(ctx context.Context, msg *platform.Message, verdict Verdict, massActive bool) (*Result, error) {
	now := e.clock.Now()
	result := &Result{}

	e.states.block(msg.GuildID, msg.AuthorID, now+int64(e.params.BlockDuration.Seconds()))

	if err := e.applySlowmode(ctx, msg.GuildID, msg.ChannelID, massActive); err != nil {
		e.logger.Error("Failed to apply slowmode, skipping enforcement",
			zap.Uint64("channel_id", uint64(msg.ChannelID)),
			zap.Error(err))

		return result, err
	}

	result.SlowmodeApplied = true

	e.scheduleRestore(msg.GuildID, msg.ChannelID, massActive)

	result.TimedOut = e.applyTimeout(ctx, msg, verdict, now)

	if result.SlowmodeApplied && result.TimedOut {
		result.Deleted = e.purge(ctx, msg, now)
	}

	return result, nil
}

// applySlowmode captures the channel's current slowmode (once) and edits
// it to the target value, honouring rate-limit replies.
func (e *Enforcer) applySlowmode(ctx context.Context, guildID, channelID snowflake.ID, massActive bool) error {
	key := channelKey{Guild: guildID, Channel: channelID}

	// Capture the original value exactly once; a concurrent or repeated
	// detection must never overwrite the saved pre-attack state.
	e.mu.Lock()
	_, saved := e.savedSlowmode[key]
	e.mu.Unlock()

	if !saved {
		current, err := e.adapter.ChannelSlowmode(ctx, channelID)
		if err != nil {
			return fmt.Errorf("failed to read current slowmode: %w", err)
		}

		e.mu.Lock()
		if _, exists := e.savedSlowmode[key]; !exists {
			e.savedSlowmode[key] = current
		}
		e.mu.Unlock()
	}

	target := e.params.SlowmodeSeconds
	if massActive {
		target = e.params.MassSlowmodeSeconds
	}

	for attempt := 0; ; attempt++ {
		err := e.adapter.SetChannelSlowmode(ctx, channelID, target, "Spam detected")
		if err == nil {
			return nil
		}

		rle, isRateLimit := platform.AsRateLimit(err)
		if !isRateLimit || attempt >= slowmodeMaxRetries {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(rle.Wait()):
		}
	}
}

// scheduleRestore arranges for the saved slowmode value to come back after
// a quiet interval. A newly scheduled restore replaces any pending one, so
// each channel has at most one restore task in flight.
func (e *Enforcer) scheduleRestore(guildID, channelID snowflake.ID, massActive bool) {
	key := channelKey{Guild: guildID, Channel: channelID}

	delay := e.params.RestoreDelay
	if massActive {
		delay = e.params.MassRestoreDelay
	}

	taskCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if prior, ok := e.restoreCancel[key]; ok {
		prior()
	}

	e.restoreCancel[key] = cancel
	e.mu.Unlock()

	e.tasks.Add(1)

	go func() {
		defer e.tasks.Done()

		select {
		case <-taskCtx.Done():
			return
		case <-time.After(delay):
		}

		e.mu.Lock()
		// Cancellation happens under mu, so a replaced task whose timer
		// already fired can still observe it here and must not consume the
		// saved value or its successor's cancel entry.
		if taskCtx.Err() != nil {
			e.mu.Unlock()

			return
		}

		value, ok := e.savedSlowmode[key]
		delete(e.savedSlowmode, key)
		delete(e.restoreCancel, key)
		e.mu.Unlock()

		if !ok {
			return
		}

		restoreCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()

		if err := e.adapter.SetChannelSlowmode(restoreCtx, channelID, value, "Spam mitigation lifted"); err != nil {
			e.logger.Warn("Failed to restore slowmode",
				zap.Uint64("channel_id", uint64(channelID)),
				zap.Int("value", value),
				zap.Error(err))

			return
		}

		e.logger.Info("Restored channel slowmode",
			zap.Uint64("channel_id", uint64(channelID)),
			zap.Int("value", value))
	}()
}

// applyTimeout times the offender out unless a timeout from this pipeline
// is still in force. Returns whether a timeout is in effect afterwards.
func (e *Enforcer) applyTimeout(ctx context.Context, msg *platform.Message, verdict Verdict, now int64) bool {
	key := stateKey{Guild: msg.GuildID, User: msg.AuthorID}
	duration := int64(e.params.TimeoutDuration.Seconds())

	e.mu.Lock()
	last, hadTimeout := e.lastTimeout[key]
	e.mu.Unlock()

	if hadTimeout && now-last <= duration {
		// Still timed out from an earlier verdict; nothing to reapply.
		return true
	}

	until := time.Unix(now+duration, 0)
	reason := fmt.Sprintf("Automatic timeout: %s detected", verdict.Kind.Label())

	err := e.withTransientRetry(ctx, func() error {
		return e.adapter.TimeoutMember(ctx, msg.GuildID, msg.AuthorID, until, reason)
	})
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// Member already left; treat the account as handled.
			return true
		}

		e.logger.Warn("Failed to apply timeout",
			zap.Uint64("guild_id", uint64(msg.GuildID)),
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))

		return false
	}

	e.mu.Lock()
	e.lastTimeout[key] = now
	e.mu.Unlock()

	return true
}

// purge deletes the offender's recent messages from the channel. Bulk
// deletion is preferred; individual deletes are paced. Two consecutive
// rate limits abort the purge.
func (e *Enforcer) purge(ctx context.Context, msg *platform.Message, now int64) int {
	history, err := e.adapter.ChannelHistory(ctx, msg.ChannelID, e.params.PurgeScanLimit)
	if err != nil {
		e.logger.Warn("Failed to scan channel history for purge",
			zap.Uint64("channel_id", uint64(msg.ChannelID)),
			zap.Error(err))

		return 0
	}

	window := int64(e.params.PurgeWindow.Seconds())
	eligible := make([]snowflake.ID, 0, len(history))

	for _, entry := range history {
		if entry.AuthorID != msg.AuthorID {
			continue
		}

		if now-entry.CreatedAt.Unix() <= window {
			eligible = append(eligible, entry.MessageID)
		}
	}

	if len(eligible) == 0 {
		return 0
	}

	if len(eligible) >= 2 {
		if err := e.adapter.BulkDeleteMessages(ctx, msg.ChannelID, eligible); err != nil {
			e.logger.Warn("Bulk delete failed, falling back to individual deletes",
				zap.Uint64("channel_id", uint64(msg.ChannelID)),
				zap.Int("count", len(eligible)),
				zap.Error(err))
		} else {
			return len(eligible)
		}
	}

	deleted := 0
	consecutiveRateLimits := 0

	for i, messageID := range eligible {
		err := e.adapter.DeleteMessage(ctx, msg.ChannelID, messageID)

		switch {
		case err == nil:
			deleted++
			consecutiveRateLimits = 0
		case errors.Is(err, platform.ErrNotFound):
			consecutiveRateLimits = 0
		default:
			if _, isRateLimit := platform.AsRateLimit(err); isRateLimit {
				consecutiveRateLimits++
				if consecutiveRateLimits >= 2 {
					return deleted
				}

				select {
				case <-ctx.Done():
					return deleted
				case <-time.After(e.params.RateLimitPause):
				}

				continue
			}

			e.logger.Warn("Failed to delete message during purge",
				zap.Uint64("message_id", uint64(messageID)),
				zap.Error(err))
		}

		if i < len(eligible)-1 {
			select {
			case <-ctx.Done():
				return deleted
			case <-time.After(e.params.DeletePause):
			}
		}
	}

	return deleted
}

// withTransientRetry retries an operation with bounded exponential backoff
// while it keeps failing transiently. Other errors abort immediately.
func (e *Enforcer) withTransientRetry(ctx context.Context, operation func() error) error {
	wrapped := func() error {
		err := operation()
		if err == nil || errors.Is(err, platform.ErrTransient) {
			return err
		}

		return backoff.Permanent(err)
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
	), 3)

	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}

// Shutdown cancels every pending restore task and waits for them to exit.
func (e *Enforcer) Shutdown() {
	e.mu.Lock()
	for key, cancel := range e.restoreCancel {
		cancel()
		delete(e.restoreCancel, key)
	}
	e.mu.Unlock()

	e.tasks.Wait()
}
