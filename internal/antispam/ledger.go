package antispam

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/guardbot-dev/guardbot/internal/platform"
	"go.uber.org/zap"
)

const (
	// flagKeyPrefix namespaces per-user flag documents within a guild.
	flagKeyPrefix = "antispam:flags:"

	// maxStoredViolations caps the violation history kept per user.
	maxStoredViolations = 25

	// reportedViolations is how many recent violations Get returns.
	reportedViolations = 10
)

// Violation is one recorded detection against a user.
type Violation struct {
	Kind       Kind         `json:"kind"`
	At         int64        `json:"at"`
	ChannelID  snowflake.ID `json:"channel_id,omitempty"`
	MessageID  snowflake.ID `json:"message_id,omitempty"`
	FlagsAdded int          `json:"flags_added"`
}

// FlagState is the persistent violation ledger entry for one user.
type FlagState struct {
	Flags       int         `json:"flags"`
	LastDecayAt int64       `json:"last_decay_at"`
	Violations  []Violation `json:"violations,omitempty"`
}

// Escalation describes the ladder action the ledger carried out.
type Escalation struct {
	Step  LadderStep
	Flags int
}

// Ledger accumulates weighted flags per user, decays them over time, and
// walks the guild's action ladder when thresholds are crossed.
type Ledger struct {
	store   kv.Store
	adapter platform.Adapter
	clock   Clock
	logger  *zap.Logger

	// mu serializes read-modify-write cycles on flag documents. Detection
	// is single-threaded per message but commands may race with it.
	mu sync.Mutex
}

// NewLedger creates a ledger backed by the given store and adapter.
func NewLedger(store kv.Store, adapter platform.Adapter, clock Clock, logger *zap.Logger) *Ledger {
	return &Ledger{
		store:   store,
		adapter: adapter,
		clock:   clock,
		logger:  logger.Named("ledger"),
	}
}

func flagKey(userID snowflake.ID) string {
	return flagKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}

// AddFlag records a verdict against the author, applies decay, persists the
// updated state, and runs any ladder action that the new total reaches.
// A zero weight still records the violation and consults the ladder; it
// only leaves the flag count unchanged. The returned escalation is nil
// when no ladder step applied.
func (l *Ledger) AddFlag(ctx context.Context, msg *platform.Message, verdict Verdict, policy *Policy) (*Escalation, error) {
	weight := policy.Weight(verdict.Kind)
	now := l.clock.Now()

	l.mu.Lock()
	state, err := l.loadDecayed(ctx, msg.GuildID, msg.AuthorID, policy, now)
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}

	state.Flags += weight
	state.Violations = append(state.Violations, Violation{
		Kind:       verdict.Kind,
		At:         now,
		ChannelID:  msg.ChannelID,
		MessageID:  msg.MessageID,
		FlagsAdded: weight,
	})

	if len(state.Violations) > maxStoredViolations {
		state.Violations = state.Violations[len(state.Violations)-maxStoredViolations:]
	}

	err = l.store.Save(ctx, msg.GuildID, flagKey(msg.AuthorID), state)
	l.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to save flag state: %w", err)
	}

	l.logger.Info("Recorded violation flag",
		zap.Uint64("guild_id", uint64(msg.GuildID)),
		zap.Uint64("user_id", uint64(msg.AuthorID)),
		zap.String("kind", string(verdict.Kind)),
		zap.Int("flags", state.Flags))

	step, ok := l.resolveStep(policy, state.Flags, msg)
	if !ok {
		return nil, nil
	}

	if err := l.execute(ctx, msg, step, state.Flags); err != nil {
		return nil, err
	}

	return &Escalation{Step: step, Flags: state.Flags}, nil
}

// loadDecayed reads the user's flag state and applies whole decay periods.
// Applying decay moves the anchor to the read time, so the next period is
// measured from the most recent decay event.
func (l *Ledger) loadDecayed(ctx context.Context, guildID, userID snowflake.ID, policy *Policy, now int64) (*FlagState, error) {
	state := &FlagState{}

	found, err := l.store.Load(ctx, guildID, flagKey(userID), state)
	if err != nil {
		return nil, fmt.Errorf("failed to load flag state: %w", err)
	}

	if !found {
		state.LastDecayAt = now
		return state, nil
	}

	hours := float64(now-state.LastDecayAt) / 3600
	if hours < 0 {
		hours = 0
	}

	decayHours := policy.DecayHours
	if decayHours < 1 {
		decayHours = 1
	}

	periods := int(hours) / decayHours
	if periods == 0 {
		return state, nil
	}

	state.Flags -= periods
	if state.Flags < 0 {
		state.Flags = 0
	}

	state.LastDecayAt = now

	return state, nil
}

// resolveStep picks the ladder step to run for the given flag total: the
// highest reached threshold wins, and among equal thresholds the first
// listed one. Misconfigured steps are skipped in favor of the next lower.
func (l *Ledger) resolveStep(policy *Policy, flags int, msg *platform.Message) (LadderStep, bool) {
	// Ladder is sorted ascending with stable order for equal thresholds.
	reached := make([]LadderStep, 0, len(policy.Ladder))

	for _, step := range policy.Ladder {
		if step.AtFlags > flags {
			break
		}

		// Drop earlier steps at a strictly lower threshold; keep the first
		// of any steps sharing the current one.
		if len(reached) > 0 && reached[len(reached)-1].AtFlags == step.AtFlags {
			continue
		}

		reached = append(reached, step)
	}

	for i := len(reached) - 1; i >= 0; i-- {
		step := reached[i]
		if err := step.Validate(); err != nil {
			l.logger.Warn("Skipping misconfigured ladder step",
				zap.Uint64("guild_id", uint64(msg.GuildID)),
				zap.Int("at_flags", step.AtFlags),
				zap.Error(err))

			continue
		}

		return step, true
	}

	return LadderStep{}, false
}

// execute runs the ladder action. The offender is notified by DM first
// (failures ignored), then the action is applied, then the channel is told.
func (l *Ledger) execute(ctx context.Context, msg *platform.Message, step LadderStep, flags int) error {
	notice := step.Message
	if notice == "" {
		notice = fmt.Sprintf("Repeated spam violations (%d flags).", flags)
	}

	dm := &platform.Envelope{
		Title:       "Moderation Action",
		Description: notice,
		Color:       0x8B0000,
		Fields: []platform.EnvelopeField{
			{Name: "Action", Value: string(step.Action), Inline: true},
			{Name: "Flags", Value: strconv.Itoa(flags), Inline: true},
		},
		Timestamp: time.Unix(l.clock.Now(), 0),
	}

	if err := l.adapter.SendDirectEnvelope(ctx, msg.AuthorID, dm); err != nil {
		l.logger.Debug("Failed to DM offender before action",
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))
	}

	reason := fmt.Sprintf("Spam escalation at %d flags", flags)

	var err error

	switch step.Action {
	case ActionTimeout:
		until := time.Unix(l.clock.Now()+int64(step.DurationSeconds), 0)
		err = l.adapter.TimeoutMember(ctx, msg.GuildID, msg.AuthorID, until, reason)
	case ActionKick:
		err = l.adapter.KickMember(ctx, msg.GuildID, msg.AuthorID, reason)
	case ActionBan:
		err = l.adapter.BanMember(ctx, msg.GuildID, msg.AuthorID, 0, reason)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, step.Action)
	}

	if err != nil {
		l.logger.Warn("Failed to apply ladder action",
			zap.Uint64("guild_id", uint64(msg.GuildID)),
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.String("action", string(step.Action)),
			zap.Error(err))

		return err
	}

	announcement := fmt.Sprintf("**%s** received a %s: %s",
		msg.AuthorName, step.Action, notice)

	if err := l.adapter.SendText(ctx, msg.ChannelID, announcement); err != nil {
		l.logger.Debug("Failed to announce ladder action",
			zap.Uint64("channel_id", uint64(msg.ChannelID)),
			zap.Error(err))
	}

	l.logger.Info("Applied ladder action",
		zap.Uint64("guild_id", uint64(msg.GuildID)),
		zap.Uint64("user_id", uint64(msg.AuthorID)),
		zap.String("action", string(step.Action)),
		zap.Int("flags", flags))

	return nil
}

// Get returns the user's current decayed flag state with the most recent
// violations only. The decayed view is not written back.
func (l *Ledger) Get(ctx context.Context, guildID, userID snowflake.ID, policy *Policy) (*FlagState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, err := l.loadDecayed(ctx, guildID, userID, policy, l.clock.Now())
	if err != nil {
		return nil, err
	}

	if len(state.Violations) > reportedViolations {
		state.Violations = state.Violations[len(state.Violations)-reportedViolations:]
	}

	return state, nil
}

// Reset clears the user's ledger entry.
func (l *Ledger) Reset(ctx context.Context, guildID, userID snowflake.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.store.Delete(ctx, guildID, flagKey(userID))
}

// TopEntry pairs a user with their decayed flag total.
type TopEntry struct {
	UserID snowflake.ID
	Flags  int
}

// Top lists the k users with the highest decayed flag totals in a guild.
func (l *Ledger) Top(ctx context.Context, guildID snowflake.ID, policy *Policy, k int) ([]TopEntry, error) {
	keys, err := l.store.Keys(ctx, guildID, flagKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list flag keys: %w", err)
	}

	now := l.clock.Now()
	entries := make([]TopEntry, 0, len(keys))

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		raw := strings.TrimPrefix(key, flagKeyPrefix)

		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			continue
		}

		state, err := l.loadDecayed(ctx, guildID, snowflake.ID(id), policy, now)
		if err != nil {
			return nil, err
		}

		if state.Flags == 0 {
			continue
		}

		entries = append(entries, TopEntry{UserID: snowflake.ID(id), Flags: state.Flags})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Flags > entries[j].Flags
	})

	if len(entries) > k {
		entries = entries[:k]
	}

	return entries, nil
}
