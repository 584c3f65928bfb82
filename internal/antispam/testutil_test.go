package antispam

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/platform"
)

// fakeClock is a manually advanced clock for deterministic tests.
type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func newFakeClock(start int64) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now += seconds
}

type slowmodeCall struct {
	Channel snowflake.ID
	Seconds int
}

type timeoutCall struct {
	Guild snowflake.ID
	User  snowflake.ID
	Until time.Time
}

type envelopeCall struct {
	Target   snowflake.ID
	Envelope *platform.Envelope
}

// fakeAdapter records every platform call and lets tests inject failures.
type fakeAdapter struct {
	mu sync.Mutex

	slowmodes    map[snowflake.ID]int
	slowmodeErr  error
	setSlowmodes []slowmodeCall

	timeouts   []timeoutCall
	timeoutErr error
	kicks      []snowflake.ID
	bans       []snowflake.ID

	deleted     []snowflake.ID
	deleteErrs  []error
	bulkDeleted [][]snowflake.ID
	bulkErr     error

	history    []platform.HistoryMessage
	historyErr error

	envelopes []envelopeCall
	dms       []envelopeCall
	texts     []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{slowmodes: make(map[snowflake.ID]int)}
}

func (a *fakeAdapter) ChannelSlowmode(_ context.Context, channelID snowflake.ID) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.slowmodes[channelID], nil
}

func (a *fakeAdapter) SetChannelSlowmode(_ context.Context, channelID snowflake.ID, seconds int, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.slowmodeErr != nil {
		return a.slowmodeErr
	}

	a.slowmodes[channelID] = seconds
	a.setSlowmodes = append(a.setSlowmodes, slowmodeCall{Channel: channelID, Seconds: seconds})

	return nil
}

func (a *fakeAdapter) TimeoutMember(_ context.Context, guildID, userID snowflake.ID, until time.Time, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.timeoutErr != nil {
		return a.timeoutErr
	}

	a.timeouts = append(a.timeouts, timeoutCall{Guild: guildID, User: userID, Until: until})

	return nil
}

func (a *fakeAdapter) KickMember(_ context.Context, _, userID snowflake.ID, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.kicks = append(a.kicks, userID)

	return nil
}

func (a *fakeAdapter) BanMember(_ context.Context, _, userID snowflake.ID, _ time.Duration, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.bans = append(a.bans, userID)

	return nil
}

func (a *fakeAdapter) DeleteMessage(_ context.Context, _, messageID snowflake.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.deleteErrs) > 0 {
		err := a.deleteErrs[0]
		a.deleteErrs = a.deleteErrs[1:]

		if err != nil {
			return err
		}
	}

	a.deleted = append(a.deleted, messageID)

	return nil
}

func (a *fakeAdapter) BulkDeleteMessages(_ context.Context, _ snowflake.ID, messageIDs []snowflake.ID) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.bulkErr != nil {
		return a.bulkErr
	}

	a.bulkDeleted = append(a.bulkDeleted, messageIDs)

	return nil
}

func (a *fakeAdapter) ChannelHistory(_ context.Context, _ snowflake.ID, _ int) ([]platform.HistoryMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.historyErr != nil {
		return nil, a.historyErr
	}

	return a.history, nil
}

func (a *fakeAdapter) SendEnvelope(_ context.Context, channelID snowflake.ID, envelope *platform.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.envelopes = append(a.envelopes, envelopeCall{Target: channelID, Envelope: envelope})

	return nil
}

func (a *fakeAdapter) SendDirectEnvelope(_ context.Context, userID snowflake.ID, envelope *platform.Envelope) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dms = append(a.dms, envelopeCall{Target: userID, Envelope: envelope})

	return nil
}

func (a *fakeAdapter) SendText(_ context.Context, _ snowflake.ID, content string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.texts = append(a.texts, content)

	return nil
}

func (a *fakeAdapter) slowmodeCalls() []slowmodeCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]slowmodeCall(nil), a.setSlowmodes...)
}

func (a *fakeAdapter) timeoutCalls() []timeoutCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]timeoutCall(nil), a.timeouts...)
}

func (a *fakeAdapter) deletedIDs() []snowflake.ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]snowflake.ID(nil), a.deleted...)
}

func (a *fakeAdapter) bulkDeletedBatches() [][]snowflake.ID {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([][]snowflake.ID(nil), a.bulkDeleted...)
}

func (a *fakeAdapter) sentEnvelopes() []envelopeCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]envelopeCall(nil), a.envelopes...)
}

func (a *fakeAdapter) sentDMs() []envelopeCall {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]envelopeCall(nil), a.dms...)
}

// testParams returns enforcement parameters with all real-time pacing
// removed so tests run instantly.
func testParams() Params {
	params := DefaultParams()
	params.DeletePause = 0
	params.RateLimitPause = 0
	params.RestoreDelay = 10 * time.Millisecond
	params.MassRestoreDelay = 10 * time.Millisecond

	return params
}

// makeMessage builds a plain text message stamped with the clock's time.
func makeMessage(clock Clock, guild, channel, author, id snowflake.ID, content string) *platform.Message {
	return &platform.Message{
		GuildID:    guild,
		ChannelID:  channel,
		MessageID:  id,
		AuthorID:   author,
		AuthorName: "testuser",
		CreatedAt:  time.Unix(clock.Now(), 0),
		Content:    content,
	}
}
