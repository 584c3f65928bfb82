package antispam

import (
	"github.com/guardbot-dev/guardbot/internal/platform"
)

// Detector inspects one message against the author's sliding buffers.
// Detectors only mutate their own buffers; physical enforcement is the
// enforcer's job.
type Detector interface {
	Kind() Kind
	Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool)
}

const (
	mediaThreshold   = 3
	mentionThreshold = 3
	forwardThreshold = 5
)

// mediaDetector flags authors posting attachments or image embeds too
// quickly.
type mediaDetector struct{}

func (mediaDetector) Kind() Kind { return KindImage }

func (mediaDetector) Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool) {
	hasMedia := len(msg.Attachments) > 0

	for _, embed := range msg.Embeds {
		if embed.Kind == platform.EmbedImage {
			hasMedia = true
			break
		}
	}

	if !hasMedia {
		return Verdict{}, false
	}

	count := state.pushMedia(now)
	if count < mediaThreshold {
		return Verdict{}, false
	}

	return Verdict{Kind: KindImage, Score: float64(count) / mediaThreshold}, true
}

// mentionDetector flags authors spraying mentions.
type mentionDetector struct{}

func (mentionDetector) Kind() Kind { return KindMention }

func (mentionDetector) Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool) {
	if len(msg.Mentions) == 0 {
		return Verdict{}, false
	}

	count := state.pushMention(now)
	if count < mentionThreshold {
		return Verdict{}, false
	}

	return Verdict{Kind: KindMention, Score: float64(count) / mentionThreshold}, true
}

// forwardDetector flags authors relaying forwarded messages in bulk.
// Ordinary replies do not count.
type forwardDetector struct{}

func (forwardDetector) Kind() Kind { return KindForward }

func (forwardDetector) Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool) {
	forwarded := msg.Reference != nil && !msg.Reference.IsReply

	if !forwarded {
		for _, embed := range msg.Embeds {
			if embed.Kind == platform.EmbedMessageReference {
				forwarded = true
				break
			}
		}
	}

	if !forwarded {
		return Verdict{}, false
	}

	count := state.pushForward(now)
	if count < forwardThreshold {
		return Verdict{}, false
	}

	return Verdict{Kind: KindForward, Score: float64(count) / forwardThreshold}, true
}

// typingDetector flags long messages from authors who never produced a
// typing event, which suggests programmatic posting. Short messages are
// ignored; pasting them is normal.
type typingDetector struct{}

const (
	typingMinLength = 10
	typingWindow    = 300
)

func (typingDetector) Kind() Kind { return KindTypingBypass }

func (typingDetector) Inspect(now int64, msg *platform.Message, state *userState) (Verdict, bool) {
	if len([]rune(msg.Content)) <= typingMinLength {
		return Verdict{}, false
	}

	if state.hasTyping && now-state.typingLast <= typingWindow {
		return Verdict{}, false
	}

	return Verdict{Kind: KindTypingBypass, Score: 1.0}, true
}
