package antispam

import (
	"context"

	"github.com/guardbot-dev/guardbot/internal/platform"
	"go.uber.org/zap"
)

// Gate decides whether an author is exempt from detection. Exemption comes
// from the configured bypass role or a whitelisted channel. Any failure to
// resolve the policy answers "not bypassed" so a broken store can never
// silently opt a guild out of detection.
type Gate struct {
	policies *PolicyStore
	logger   *zap.Logger
}

// NewGate creates a bypass gate backed by the policy store.
func NewGate(policies *PolicyStore, logger *zap.Logger) *Gate {
	return &Gate{
		policies: policies,
		logger:   logger.Named("gate"),
	}
}

// Bypassed reports whether the message's author is exempt under the given
// policy. Messages outside a guild are never bypassed.
func (g *Gate) Bypassed(_ context.Context, msg *platform.Message, policy *Policy) bool {
	if msg.GuildID == 0 {
		return false
	}

	if policy.WhitelistedChannel(msg.ChannelID) {
		return true
	}

	if policy.BypassRoleID != 0 && msg.HasRole(policy.BypassRoleID) {
		return true
	}

	return false
}
