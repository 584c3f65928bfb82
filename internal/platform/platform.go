// Package platform defines the capability surface the moderation core needs
// from the chat platform. The core only depends on these interfaces; the
// Discord-backed implementation lives in the discord subpackage.
package platform

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// EmbedKind tags the embed variants the detectors care about. Anything the
// adapter cannot classify maps to EmbedOther.
type EmbedKind string

const (
	EmbedImage            EmbedKind = "image"
	EmbedMessageReference EmbedKind = "message_reference"
	EmbedOther            EmbedKind = "other"
)

// Attachment describes a single uploaded file on a message.
type Attachment struct {
	ID       snowflake.ID
	Filename string
}

// Embed carries only the classification of an embed; the core never inspects
// embed contents beyond their kind.
type Embed struct {
	Kind EmbedKind
}

// Reference points at another message. IsReply distinguishes an ordinary
// reply from a forwarded message; only forwards count for flood detection.
type Reference struct {
	MessageID snowflake.ID
	ChannelID snowflake.ID
	IsReply   bool
}

// Message is the normalized inbound message handed to the dispatcher.
// AuthorRoleIDs is populated from the guild member so the bypass gate does
// not need an extra member fetch per message.
type Message struct {
	GuildID       snowflake.ID
	ChannelID     snowflake.ID
	MessageID     snowflake.ID
	AuthorID      snowflake.ID
	AuthorName    string
	AuthorIsBot   bool
	AuthorRoleIDs []snowflake.ID
	CreatedAt     time.Time
	Content       string
	Attachments   []Attachment
	Embeds        []Embed
	Mentions      []snowflake.ID
	Reference     *Reference
}

// HasRole reports whether the author carries the given role.
func (m *Message) HasRole(roleID snowflake.ID) bool {
	for _, id := range m.AuthorRoleIDs {
		if id == roleID {
			return true
		}
	}

	return false
}

// EnvelopeField is a single labeled value inside an alert envelope.
type EnvelopeField struct {
	Name   string
	Value  string
	Inline bool
}

// Envelope is the structured alert the notifier emits. The adapter decides
// how to render it (Discord renders it as an embed).
type Envelope struct {
	Title       string
	Description string
	Color       int
	Fields      []EnvelopeField
	Footer      string
	Timestamp   time.Time
}

// HistoryMessage is a trimmed view of a channel history entry, enough for
// the purge step to select deletion candidates.
type HistoryMessage struct {
	MessageID snowflake.ID
	AuthorID  snowflake.ID
	CreatedAt time.Time
}

// Adapter is the full capability set the enforcement pipeline consumes.
// Implementations must normalize platform errors to the kinds declared in
// errors.go so callers can branch on them with errors.Is / errors.As.
type Adapter interface {
	// ChannelSlowmode returns the channel's current slowmode delay in seconds.
	ChannelSlowmode(ctx context.Context, channelID snowflake.ID) (int, error)

	// SetChannelSlowmode edits the channel's slowmode delay in seconds.
	SetChannelSlowmode(ctx context.Context, channelID snowflake.ID, seconds int, reason string) error

	// TimeoutMember applies a communication timeout until the given time.
	TimeoutMember(ctx context.Context, guildID, userID snowflake.ID, until time.Time, reason string) error

	// KickMember removes a member from the guild.
	KickMember(ctx context.Context, guildID, userID snowflake.ID, reason string) error

	// BanMember removes a member and forbids re-entry, deleting the given
	// duration of their recent messages.
	BanMember(ctx context.Context, guildID, userID snowflake.ID, deleteMessages time.Duration, reason string) error

	// DeleteMessage removes a single message.
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error

	// BulkDeleteMessages removes several messages in one call.
	BulkDeleteMessages(ctx context.Context, channelID snowflake.ID, messageIDs []snowflake.ID) error

	// ChannelHistory returns up to limit recent messages, newest first.
	ChannelHistory(ctx context.Context, channelID snowflake.ID, limit int) ([]HistoryMessage, error)

	// SendEnvelope posts a structured alert to a channel.
	SendEnvelope(ctx context.Context, channelID snowflake.ID, envelope *Envelope) error

	// SendDirectEnvelope delivers a structured alert to a user's DMs.
	SendDirectEnvelope(ctx context.Context, userID snowflake.ID, envelope *Envelope) error

	// SendText posts a plain notice to a channel.
	SendText(ctx context.Context, channelID snowflake.ID, content string) error
}
