package antispam

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"go.uber.org/zap"
)

// PolicyKey is the guild document key holding the moderation policy.
const PolicyKey = "antispam:policy"

// MaxTimeoutSeconds is the longest timeout the platform accepts (28 days).
const MaxTimeoutSeconds = 2419200

var (
	ErrUnknownAction    = errors.New("unknown ladder action")
	ErrInvalidDuration  = errors.New("invalid timeout duration")
	ErrInvalidDecay     = errors.New("decay_hours must be at least 1")
	ErrNegativeWeight   = errors.New("flag weights must be non-negative")
	ErrInvalidThreshold = errors.New("ladder threshold must be positive")
)

// ActionKind names an escalation action in the ladder.
type ActionKind string

const (
	ActionTimeout ActionKind = "timeout"
	ActionKick    ActionKind = "kick"
	ActionBan     ActionKind = "ban"
)

// LadderStep maps a flag threshold to an enforcement action.
// DurationSeconds is meaningful only for timeouts.
type LadderStep struct {
	AtFlags         int        `json:"at_flags"`
	Action          ActionKind `json:"action"`
	DurationSeconds int        `json:"duration_seconds,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// Validate checks a single ladder step against the accepted action kinds
// and timeout bounds.
func (s *LadderStep) Validate() error {
	if s.AtFlags <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidThreshold, s.AtFlags)
	}

	switch s.Action {
	case ActionTimeout:
		if s.DurationSeconds <= 0 || s.DurationSeconds > MaxTimeoutSeconds {
			return fmt.Errorf("%w: %d", ErrInvalidDuration, s.DurationSeconds)
		}
	case ActionKick, ActionBan:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, s.Action)
	}

	return nil
}

// Policy is the persistent per-guild moderation configuration. Every field
// is optional in storage; absent fields fall back to DefaultPolicy values
// during load.
type Policy struct {
	Enabled             bool           `json:"enabled"`
	AlertChannelID      snowflake.ID   `json:"alert_channel,omitempty"`
	BypassRoleID        snowflake.ID   `json:"bypass_role,omitempty"`
	WhitelistChannelIDs []snowflake.ID `json:"whitelist_channels,omitempty"`
	DetectorsEnabled    map[Kind]bool  `json:"detectors_enabled"`
	FlagWeights         map[Kind]int   `json:"flag_weights"`
	DecayHours          int            `json:"decay_hours"`
	Ladder              []LadderStep   `json:"action_ladder"`
}

// DefaultPolicy returns the policy used when a guild has no stored
// configuration: detection on, every detector on, weight 1, daily decay,
// and an empty ladder.
func DefaultPolicy() *Policy {
	detectors := make(map[Kind]bool, len(Kinds))
	weights := make(map[Kind]int, len(Kinds))

	for _, kind := range Kinds {
		detectors[kind] = true
		weights[kind] = 1
	}

	return &Policy{
		Enabled:          true,
		DetectorsEnabled: detectors,
		FlagWeights:      weights,
		DecayHours:       24,
	}
}

// DetectorEnabled reports whether the given detector is switched on.
// Unknown kinds default to enabled.
func (p *Policy) DetectorEnabled(kind Kind) bool {
	enabled, ok := p.DetectorsEnabled[kind.Base()]
	if !ok {
		return true
	}

	return enabled
}

// Weight returns the flag weight for a detector kind, defaulting to 1.
func (p *Policy) Weight(kind Kind) int {
	weight, ok := p.FlagWeights[kind.Base()]
	if !ok {
		return 1
	}

	if weight < 0 {
		return 0
	}

	return weight
}

// WhitelistedChannel reports whether the channel is exempt from detection.
func (p *Policy) WhitelistedChannel(channelID snowflake.ID) bool {
	for _, id := range p.WhitelistChannelIDs {
		if id == channelID {
			return true
		}
	}

	return false
}

// Validate checks the whole policy, including every ladder step.
func (p *Policy) Validate() error {
	if p.DecayHours < 1 {
		return ErrInvalidDecay
	}

	for kind, weight := range p.FlagWeights {
		if weight < 0 {
			return fmt.Errorf("%w: %s=%d", ErrNegativeWeight, kind, weight)
		}
	}

	for i := range p.Ladder {
		if err := p.Ladder[i].Validate(); err != nil {
			return fmt.Errorf("ladder step %d: %w", i, err)
		}
	}

	return nil
}

// normalize sorts the ladder ascending by threshold. The sort is stable so
// two steps at the same threshold keep their listed order.
func (p *Policy) normalize() {
	sort.SliceStable(p.Ladder, func(i, j int) bool {
		return p.Ladder[i].AtFlags < p.Ladder[j].AtFlags
	})
}

// PolicyStore reads and writes guild policies through the KV store.
// Read failures degrade to defaults so detection never silently stops.
type PolicyStore struct {
	store  kv.Store
	logger *zap.Logger
}

// NewPolicyStore creates a policy store on top of the given KV backend.
func NewPolicyStore(store kv.Store, logger *zap.Logger) *PolicyStore {
	return &PolicyStore{
		store:  store,
		logger: logger.Named("policy"),
	}
}

// Get loads the guild policy merged over defaults. A store failure is
// logged and answered with defaults.
func (s *PolicyStore) Get(ctx context.Context, guildID snowflake.ID) *Policy {
	policy := DefaultPolicy()

	// Unmarshalling into the default-initialized struct merges stored
	// fields over defaults; absent fields keep their default values.
	if _, err := s.store.Load(ctx, guildID, PolicyKey, policy); err != nil {
		s.logger.Warn("Failed to load guild policy, using defaults",
			zap.Uint64("guild_id", uint64(guildID)),
			zap.Error(err))

		return DefaultPolicy()
	}

	policy.normalize()

	return policy
}

// Set validates and persists a guild policy.
func (s *PolicyStore) Set(ctx context.Context, guildID snowflake.ID, policy *Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	policy.normalize()

	if err := s.store.Save(ctx, guildID, PolicyKey, policy); err != nil {
		return fmt.Errorf("failed to save guild policy: %w", err)
	}

	return nil
}
