// Package bot wires the Discord gateway to the moderation pipeline.
package bot

import (
	"context"

	"github.com/disgoorg/disgo"
	disgobot "github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/guardbot-dev/guardbot/internal/antispam"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/guardbot-dev/guardbot/internal/platform/discord"
	"go.uber.org/zap"
)

// Bot owns the Discord client and the moderation pipeline. Gateway events
// are normalized through the platform adapter before dispatch.
type Bot struct {
	client     disgobot.Client
	dispatcher *antispam.Dispatcher
	logger     *zap.Logger
}

// New initializes a Bot instance: the Discord client with the gateway
// intents the detectors need, the platform adapter, and the pipeline.
func New(token string, store kv.Store, cooldowns antispam.CooldownStore, logger *zap.Logger) (*Bot, error) {
	b := &Bot{logger: logger.Named("bot")}

	// Message content and typing intents are required: the text detectors
	// read content, and the typing-bypass detector needs typing events.
	client, err := disgo.New(token,
		disgobot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentMessageContent,
				gateway.IntentGuildMessageTyping,
				gateway.IntentDirectMessages,
			),
		),
		disgobot.WithEventListeners(&events.ListenerAdapter{
			OnGuildMessageCreate: b.handleGuildMessageCreate,
			OnUserTypingStart:    b.handleUserTypingStart,
		}),
	)
	if err != nil {
		return nil, err
	}

	adapter := discord.NewAdapter(client, logger)
	b.client = client
	b.dispatcher = antispam.New(adapter, store, cooldowns, antispam.SystemClock(), antispam.DefaultParams(), logger)

	return b, nil
}

// Start opens the gateway connection and begins receiving events.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

// Close gracefully shuts down the gateway connection and the pipeline,
// letting pending slowmode restores finish.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
	b.dispatcher.Shutdown()
}

// Dispatcher exposes the pipeline for tooling and tests.
func (b *Bot) Dispatcher() *antispam.Dispatcher {
	return b.dispatcher
}

// handleGuildMessageCreate feeds every guild message into the dispatch
// queues. Queueing keeps slow enforcement (paced deletes, retry waits) off
// the gateway reader while preserving per-author message order.
func (b *Bot) handleGuildMessageCreate(event *events.GuildMessageCreate) {
	b.dispatcher.Dispatch(discord.ConvertMessage(event.GuildID, event.Message))
}

// handleUserTypingStart records typing activity for the typing-bypass
// detector.
func (b *Bot) handleUserTypingStart(event *events.UserTypingStart) {
	if event.GuildID == nil {
		return
	}

	b.dispatcher.HandleTyping(*event.GuildID, event.UserID)
}
