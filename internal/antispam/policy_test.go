package antispam

import (
	"context"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPolicyStore(t *testing.T) *PolicyStore {
	t.Helper()

	return NewPolicyStore(kv.NewMemoryStore(), zap.NewNop())
}

func TestDefaultPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()

	assert.True(t, policy.Enabled)
	assert.Equal(t, 24, policy.DecayHours)
	assert.Empty(t, policy.Ladder)

	for _, kind := range Kinds {
		assert.True(t, policy.DetectorEnabled(kind), kind)
		assert.Equal(t, 1, policy.Weight(kind), kind)
	}
}

func TestPolicyStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestPolicyStore(t)

	policy := DefaultPolicy()
	policy.AlertChannelID = 42
	policy.BypassRoleID = 7
	policy.WhitelistChannelIDs = append(policy.WhitelistChannelIDs, 99)
	policy.DetectorsEnabled[KindForward] = false
	policy.FlagWeights[KindToken] = 3
	policy.DecayHours = 48
	policy.Ladder = []LadderStep{
		{AtFlags: 5, Action: ActionKick},
		{AtFlags: 3, Action: ActionTimeout, DurationSeconds: 600},
	}

	require.NoError(t, store.Set(ctx, 1, policy))

	loaded := store.Get(ctx, 1)
	assert.Equal(t, snowflake.ID(42), loaded.AlertChannelID)
	assert.Equal(t, snowflake.ID(7), loaded.BypassRoleID)
	assert.True(t, loaded.WhitelistedChannel(99))
	assert.False(t, loaded.DetectorEnabled(KindForward))
	assert.Equal(t, 3, loaded.Weight(KindToken))
	assert.Equal(t, 48, loaded.DecayHours)

	// Ladder comes back sorted ascending by threshold.
	require.Len(t, loaded.Ladder, 2)
	assert.Equal(t, 3, loaded.Ladder[0].AtFlags)
	assert.Equal(t, 5, loaded.Ladder[1].AtFlags)
}

func TestPolicyStoreDefaultsForUnknownGuild(t *testing.T) {
	t.Parallel()

	store := newTestPolicyStore(t)

	policy := store.Get(context.Background(), 12345)
	assert.True(t, policy.Enabled)
	assert.True(t, policy.DetectorEnabled(KindText))
}

func TestPolicyStorePartialDocumentMergesDefaults(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backing := kv.NewMemoryStore()
	store := NewPolicyStore(backing, zap.NewNop())

	// A document written by an older build that only knows two fields.
	require.NoError(t, backing.Save(ctx, 1, PolicyKey, map[string]any{
		"enabled":     true,
		"decay_hours": 12,
	}))

	policy := store.Get(ctx, 1)
	assert.Equal(t, 12, policy.DecayHours)

	// Absent fields keep their defaults.
	for _, kind := range Kinds {
		assert.True(t, policy.DetectorEnabled(kind), kind)
		assert.Equal(t, 1, policy.Weight(kind), kind)
	}
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Policy)
		wantErr error
	}{
		{
			name:    "valid",
			mutate:  func(*Policy) {},
			wantErr: nil,
		},
		{
			name:    "decay below one",
			mutate:  func(p *Policy) { p.DecayHours = 0 },
			wantErr: ErrInvalidDecay,
		},
		{
			name:    "negative weight",
			mutate:  func(p *Policy) { p.FlagWeights[KindText] = -1 },
			wantErr: ErrNegativeWeight,
		},
		{
			name: "unknown action",
			mutate: func(p *Policy) {
				p.Ladder = []LadderStep{{AtFlags: 3, Action: "mute"}}
			},
			wantErr: ErrUnknownAction,
		},
		{
			name: "zero timeout duration",
			mutate: func(p *Policy) {
				p.Ladder = []LadderStep{{AtFlags: 3, Action: ActionTimeout}}
			},
			wantErr: ErrInvalidDuration,
		},
		{
			name: "timeout above platform cap",
			mutate: func(p *Policy) {
				p.Ladder = []LadderStep{{AtFlags: 3, Action: ActionTimeout, DurationSeconds: MaxTimeoutSeconds + 1}}
			},
			wantErr: ErrInvalidDuration,
		},
		{
			name: "non-positive threshold",
			mutate: func(p *Policy) {
				p.Ladder = []LadderStep{{AtFlags: 0, Action: ActionKick}}
			},
			wantErr: ErrInvalidThreshold,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy := DefaultPolicy()
			tt.mutate(policy)

			err := policy.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestPolicyNormalizeKeepsEqualThresholdOrder(t *testing.T) {
	t.Parallel()

	policy := DefaultPolicy()
	policy.Ladder = []LadderStep{
		{AtFlags: 5, Action: ActionKick},
		{AtFlags: 5, Action: ActionBan},
		{AtFlags: 3, Action: ActionTimeout, DurationSeconds: 600},
	}

	policy.normalize()

	assert.Equal(t, ActionTimeout, policy.Ladder[0].Action)
	assert.Equal(t, ActionKick, policy.Ladder[1].Action)
	assert.Equal(t, ActionBan, policy.Ladder[2].Action)
}
