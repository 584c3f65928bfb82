package discord

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/platform"
)

// ConvertMessage normalizes a gateway message into the platform shape the
// pipeline consumes.
func ConvertMessage(guildID snowflake.ID, msg discord.Message) *platform.Message {
	out := &platform.Message{
		GuildID:     guildID,
		ChannelID:   msg.ChannelID,
		MessageID:   msg.ID,
		AuthorID:    msg.Author.ID,
		AuthorName:  msg.Author.Username,
		AuthorIsBot: msg.Author.Bot,
		CreatedAt:   msg.CreatedAt,
		Content:     msg.Content,
	}

	if msg.Member != nil {
		out.AuthorRoleIDs = msg.Member.RoleIDs
	}

	for _, attachment := range msg.Attachments {
		out.Attachments = append(out.Attachments, platform.Attachment{
			ID:       attachment.ID,
			Filename: attachment.Filename,
		})
	}

	for _, embed := range msg.Embeds {
		out.Embeds = append(out.Embeds, platform.Embed{Kind: classifyEmbed(embed)})
	}

	for _, user := range msg.Mentions {
		out.Mentions = append(out.Mentions, user.ID)
	}

	if ref := msg.MessageReference; ref != nil && ref.MessageID != nil {
		reference := &platform.Reference{
			MessageID: *ref.MessageID,
			IsReply:   msg.Type == discord.MessageTypeReply,
		}

		if ref.ChannelID != nil {
			reference.ChannelID = *ref.ChannelID
		}

		out.Reference = reference
	}

	return out
}

// classifyEmbed maps Discord embed types onto the kinds the detectors
// distinguish. Forwarded messages are carried by the message reference,
// not embeds, so no embed maps to the reference kind here.
func classifyEmbed(embed discord.Embed) platform.EmbedKind {
	if embed.Type == discord.EmbedTypeImage || embed.Type == discord.EmbedTypeGifV || embed.Image != nil {
		return platform.EmbedImage
	}

	return platform.EmbedOther
}
