// Package discord implements the platform adapter on top of disgo.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/json"
	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/platform"
	"go.uber.org/zap"
)

// Adapter fulfils the platform capability surface using the Discord REST
// API. Discord errors are normalized to the platform error kinds.
type Adapter struct {
	client bot.Client
	logger *zap.Logger
}

// NewAdapter wraps a connected disgo client.
func NewAdapter(client bot.Client, logger *zap.Logger) *Adapter {
	return &Adapter{
		client: client,
		logger: logger.Named("discord"),
	}
}

// normalizeError maps Discord REST failures onto the platform sentinels so
// the pipeline can branch with errors.Is / errors.As.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}

	var restErr rest.Error
	if !errors.As(err, &restErr) {
		return fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}

	if restErr.Response == nil {
		return fmt.Errorf("%w: %w", platform.ErrTransient, err)
	}

	switch restErr.Response.StatusCode {
	case http.StatusForbidden:
		return fmt.Errorf("%w: %w", platform.ErrForbidden, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", platform.ErrNotFound, err)
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(0)

		if raw := restErr.Response.Header.Get("Retry-After"); raw != "" {
			if seconds, parseErr := strconv.ParseFloat(raw, 64); parseErr == nil {
				retryAfter = time.Duration(seconds * float64(time.Second))
			}
		}

		return &platform.RateLimitError{RetryAfter: retryAfter}
	default:
		if restErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %w", platform.ErrTransient, err)
		}

		return err
	}
}

// ChannelSlowmode implements platform.Adapter.
func (a *Adapter) ChannelSlowmode(ctx context.Context, channelID snowflake.ID) (int, error) {
	channel, err := a.client.Rest().GetChannel(channelID, rest.WithCtx(ctx))
	if err != nil {
		return 0, normalizeError(err)
	}

	switch ch := channel.(type) {
	case discord.GuildTextChannel:
		return ch.RateLimitPerUser(), nil
	case discord.GuildNewsChannel:
		return ch.RateLimitPerUser(), nil
	default:
		return 0, nil
	}
}

// SetChannelSlowmode implements platform.Adapter.
func (a *Adapter) SetChannelSlowmode(ctx context.Context, channelID snowflake.ID, seconds int, reason string) error {
	_, err := a.client.Rest().UpdateChannel(channelID, discord.GuildTextChannelUpdate{
		RateLimitPerUser: &seconds,
	}, rest.WithCtx(ctx), rest.WithReason(reason))

	return normalizeError(err)
}

// TimeoutMember implements platform.Adapter.
func (a *Adapter) TimeoutMember(ctx context.Context, guildID, userID snowflake.ID, until time.Time, reason string) error {
	_, err := a.client.Rest().UpdateMember(guildID, userID, discord.MemberUpdate{
		CommunicationDisabledUntil: json.NewNullablePtr(until),
	}, rest.WithCtx(ctx), rest.WithReason(reason))

	return normalizeError(err)
}

// KickMember implements platform.Adapter.
func (a *Adapter) KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	err := a.client.Rest().RemoveMember(guildID, userID,
		rest.WithCtx(ctx), rest.WithReason(reason))

	return normalizeError(err)
}

// BanMember implements platform.Adapter.
func (a *Adapter) BanMember(ctx context.Context, guildID, userID snowflake.ID, deleteMessages time.Duration, reason string) error {
	err := a.client.Rest().AddBan(guildID, userID, deleteMessages,
		rest.WithCtx(ctx), rest.WithReason(reason))

	return normalizeError(err)
}

// DeleteMessage implements platform.Adapter.
func (a *Adapter) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	err := a.client.Rest().DeleteMessage(channelID, messageID, rest.WithCtx(ctx))

	return normalizeError(err)
}

// BulkDeleteMessages implements platform.Adapter.
func (a *Adapter) BulkDeleteMessages(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error {
	err := a.client.Rest().BulkDeleteMessages(channelID, messageIDs, rest.WithCtx(ctx))

	return normalizeError(err)
}

// ChannelHistory implements platform.Adapter.
func (a *Adapter) ChannelHistory(ctx context.Context, channelID snowflake.ID, limit int) ([]platform.HistoryMessage, error) {
	messages, err := a.client.Rest().GetMessages(channelID, 0, 0, 0, limit, rest.WithCtx(ctx))
	if err != nil {
		return nil, normalizeError(err)
	}

	history := make([]platform.HistoryMessage, 0, len(messages))
	for _, msg := range messages {
		history = append(history, platform.HistoryMessage{
			MessageID: msg.ID,
			AuthorID:  msg.Author.ID,
			CreatedAt: msg.CreatedAt,
		})
	}

	return history, nil
}

// SendEnvelope implements platform.Adapter.
func (a *Adapter) SendEnvelope(ctx context.Context, channelID snowflake.ID, envelope *platform.Envelope) error {
	_, err := a.client.Rest().CreateMessage(channelID, discord.MessageCreate{
		Embeds: []discord.Embed{convertEnvelope(envelope)},
	}, rest.WithCtx(ctx))

	return normalizeError(err)
}

// SendDirectEnvelope implements platform.Adapter.
func (a *Adapter) SendDirectEnvelope(ctx context.Context, userID snowflake.ID, envelope *platform.Envelope) error {
	dm, err := a.client.Rest().CreateDMChannel(userID, rest.WithCtx(ctx))
	if err != nil {
		return normalizeError(err)
	}

	_, err = a.client.Rest().CreateMessage(dm.ID(), discord.MessageCreate{
		Embeds: []discord.Embed{convertEnvelope(envelope)},
	}, rest.WithCtx(ctx))

	return normalizeError(err)
}

// SendText implements platform.Adapter.
func (a *Adapter) SendText(ctx context.Context, channelID snowflake.ID, content string) error {
	_, err := a.client.Rest().CreateMessage(channelID, discord.MessageCreate{
		Content: content,
	}, rest.WithCtx(ctx))

	return normalizeError(err)
}

// convertEnvelope renders a platform envelope as a Discord embed.
func convertEnvelope(envelope *platform.Envelope) discord.Embed {
	fields := make([]discord.EmbedField, 0, len(envelope.Fields))

	for _, field := range envelope.Fields {
		inline := field.Inline
		fields = append(fields, discord.EmbedField{
			Name:   field.Name,
			Value:  field.Value,
			Inline: &inline,
		})
	}

	embed := discord.Embed{
		Title:       envelope.Title,
		Description: envelope.Description,
		Color:       envelope.Color,
		Fields:      fields,
	}

	if envelope.Footer != "" {
		embed.Footer = &discord.EmbedFooter{Text: envelope.Footer}
	}

	if !envelope.Timestamp.IsZero() {
		timestamp := envelope.Timestamp
		embed.Timestamp = &timestamp
	}

	return embed
}
