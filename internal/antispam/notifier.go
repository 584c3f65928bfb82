package antispam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/guardbot-dev/guardbot/internal/platform"
	"go.uber.org/zap"
)

// snippetLimit caps how much offending content an alert reproduces.
const snippetLimit = 100

// Notifier reports verdicts to the guild's alert channel and warns the
// offender by DM. DM warnings are throttled per user so a burst of verdicts
// does not flood their inbox.
type Notifier struct {
	adapter   platform.Adapter
	cooldowns CooldownStore
	clock     Clock
	params    Params
	logger    *zap.Logger
}

// NewNotifier creates a notifier using the given cooldown store.
func NewNotifier(adapter platform.Adapter, cooldowns CooldownStore, clock Clock, params Params, logger *zap.Logger) *Notifier {
	return &Notifier{
		adapter:   adapter,
		cooldowns: cooldowns,
		clock:     clock,
		params:    params,
		logger:    logger.Named("notifier"),
	}
}

// Notify emits the alert-channel report and the offender DM for a verdict.
// Notification failures are logged, never propagated; reporting must not
// affect enforcement.
func (n *Notifier) Notify(ctx context.Context, msg *platform.Message, verdict Verdict, result *Result, policy *Policy) {
	if policy.AlertChannelID != 0 {
		envelope := n.buildAlert(msg, verdict, result)

		if err := n.adapter.SendEnvelope(ctx, policy.AlertChannelID, envelope); err != nil {
			n.logger.Warn("Failed to send alert",
				zap.Uint64("guild_id", uint64(msg.GuildID)),
				zap.Uint64("channel_id", uint64(policy.AlertChannelID)),
				zap.Error(err))
		}
	}

	n.warnOffender(ctx, msg, verdict, result)
}

// buildAlert renders the verdict as an alert envelope. Mass verdicts use
// the high-severity layout: mitigation summary instead of a content
// snippet, since coordinated raids make individual snippets meaningless.
func (n *Notifier) buildAlert(msg *platform.Message, verdict Verdict, result *Result) *platform.Envelope {
	envelope := &platform.Envelope{
		Title: verdict.Kind.Label() + " Detected",
		Color: verdict.Kind.Color(),
		Fields: []platform.EnvelopeField{
			{
				Name:   "Offender",
				Value:  fmt.Sprintf("%s (`%d`)", msg.AuthorName, msg.AuthorID),
				Inline: true,
			},
			{
				Name:   "Channel",
				Value:  fmt.Sprintf("<#%d>", msg.ChannelID),
				Inline: true,
			},
			{
				Name:   "Messages Removed",
				Value:  strconv.Itoa(result.Deleted),
				Inline: true,
			},
		},
		Footer:    fmt.Sprintf("Score %.2f", verdict.Score),
		Timestamp: msg.CreatedAt,
	}

	if verdict.Kind.IsMass() {
		envelope.Description = "Coordinated activity from multiple accounts. " +
			"Heavy slowmode is active until the attack subsides."
		envelope.Fields = append(envelope.Fields, platform.EnvelopeField{
			Name: "Mitigation",
			Value: fmt.Sprintf("Slowmode raised to %ds, offender timed out, recent messages purged",
				n.params.MassSlowmodeSeconds),
		})

		return envelope
	}

	if snippet := truncate(msg.Content, snippetLimit); snippet != "" {
		envelope.Description = snippet
	}

	return envelope
}

// warnOffender DMs the offender about the action taken, at most once per
// cooldown period.
func (n *Notifier) warnOffender(ctx context.Context, msg *platform.Message, verdict Verdict, result *Result) {
	allowed, err := n.cooldowns.Acquire(ctx, msg.GuildID, msg.AuthorID, n.params.DMCooldown)
	if err != nil {
		n.logger.Warn("Failed to check DM cooldown",
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))

		return
	}

	if !allowed {
		return
	}

	dm := &platform.Envelope{
		Title: "Spam Detected",
		Description: fmt.Sprintf("Your recent messages were flagged as %s and %d of them were removed. "+
			"Continued spam leads to escalating timeouts and removal.",
			verdict.Kind.Label(), result.Deleted),
		Color:     verdict.Kind.Color(),
		Timestamp: time.Unix(n.clock.Now(), 0),
	}

	if err := n.adapter.SendDirectEnvelope(ctx, msg.AuthorID, dm); err != nil {
		// Closed DMs are routine; nothing actionable.
		n.logger.Debug("Failed to DM offender",
			zap.Uint64("user_id", uint64(msg.AuthorID)),
			zap.Error(err))
	}
}

// truncate shortens s to at most limit runes, marking the cut.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}

	return string(runes[:limit-1]) + "…"
}
