package antispam

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/kv"
	"github.com/guardbot-dev/guardbot/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testGuild   snowflake.ID = 1
	testChannel snowflake.ID = 2
	testAlert   snowflake.ID = 500
)

type pipelineFixture struct {
	dispatcher *Dispatcher
	adapter    *fakeAdapter
	clock      *fakeClock
	store      *kv.MemoryStore
	nextID     snowflake.ID
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	params := testParams()
	params.RestoreDelay = time.Hour
	params.MassRestoreDelay = time.Hour
	params.MassSlowmodeSeconds = 120

	return newPipelineFixtureParams(t, params)
}

func newPipelineFixtureParams(t *testing.T, params Params) *pipelineFixture {
	t.Helper()

	clock := newFakeClock(1_000_000)
	adapter := newFakeAdapter()
	store := kv.NewMemoryStore()

	f := &pipelineFixture{
		dispatcher: New(adapter, store, NewMemoryCooldown(clock), clock, params, zap.NewNop()),
		adapter:    adapter,
		clock:      clock,
		store:      store,
		nextID:     1000,
	}

	t.Cleanup(f.dispatcher.Shutdown)

	policy := DefaultPolicy()
	policy.AlertChannelID = testAlert
	require.NoError(t, f.dispatcher.Policies().Set(context.Background(), testGuild, policy))

	return f
}

// send pushes a text message from the author through the pipeline after
// recording a typing event, as a regular client would produce.
func (f *pipelineFixture) send(author snowflake.ID, content string) *platform.Message {
	f.nextID++

	f.dispatcher.HandleTyping(testGuild, author)

	msg := makeMessage(f.clock, testGuild, testChannel, author, f.nextID, content)
	f.dispatcher.HandleMessage(context.Background(), msg)

	return msg
}

func TestPipelineTextSpamScenario(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	content := "buy cheap followers right now at the best spam site"

	first := f.send(3, content)
	assert.Empty(t, f.adapter.sentEnvelopes(), "single message is not spam")

	// History as the channel would look when the second message lands.
	f.adapter.mu.Lock()
	f.adapter.history = []platform.HistoryMessage{
		{MessageID: first.MessageID, AuthorID: 3, CreatedAt: first.CreatedAt},
		{MessageID: first.MessageID + 1, AuthorID: 3, CreatedAt: time.Unix(f.clock.Now(), 0)},
	}
	f.adapter.mu.Unlock()

	f.send(3, content)

	// Slowmode raised, author timed out, both messages purged.
	calls := f.adapter.slowmodeCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, DefaultParams().SlowmodeSeconds, calls[0].Seconds)

	require.Len(t, f.adapter.timeoutCalls(), 1)
	assert.Equal(t, snowflake.ID(3), f.adapter.timeoutCalls()[0].User)

	require.Len(t, f.adapter.bulkDeletedBatches(), 1)

	// Alert names the detection and the offender got a DM warning.
	envelopes := f.adapter.sentEnvelopes()
	require.Len(t, envelopes, 1)
	assert.Equal(t, testAlert, envelopes[0].Target)
	assert.Contains(t, envelopes[0].Envelope.Title, "Text Spam")

	assert.NotEmpty(t, f.adapter.sentDMs())
}

func TestPipelineMediaFloodScenario(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	sendMedia := func() {
		f.nextID++
		f.dispatcher.HandleTyping(testGuild, 3)

		msg := makeMessage(f.clock, testGuild, testChannel, 3, f.nextID, "")
		msg.Attachments = []platform.Attachment{{ID: f.nextID, Filename: "img.png"}}
		f.dispatcher.HandleMessage(context.Background(), msg)
	}

	sendMedia()
	f.clock.advance(5)
	sendMedia()
	assert.Empty(t, f.adapter.sentEnvelopes())

	f.clock.advance(5)
	sendMedia()

	envelopes := f.adapter.sentEnvelopes()
	require.Len(t, envelopes, 1)
	assert.Contains(t, envelopes[0].Envelope.Title, "Media Flood")
}

func TestPipelineMassTokenScenario(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	content := "claim your free reward before it expires tonight"

	f.send(10, content)
	f.send(11, content)
	assert.Empty(t, f.adapter.sentEnvelopes())

	// Third distinct author posting the same payload: the token detector
	// fires and, with all three cluster authors fed to the aggregator, the
	// verdict escalates to the coordinated variant.
	f.send(12, content)

	envelopes := f.adapter.sentEnvelopes()
	require.Len(t, envelopes, 1)
	assert.Contains(t, envelopes[0].Envelope.Title, "Coordinated Token Spam")

	// Heavy slowmode was applied.
	calls := f.adapter.slowmodeCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, 120, calls[0].Seconds)

	// Follow-up messages from any cluster author are dropped on sight.
	before := len(f.adapter.deletedIDs())
	msg := f.send(10, "another message")

	assert.Contains(t, f.adapter.deletedIDs()[before:], msg.MessageID)
	assert.Len(t, f.adapter.sentEnvelopes(), 1, "no new verdict for blocked author")
}

func TestPipelineBotsAndDMsIgnored(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	bot := makeMessage(f.clock, testGuild, testChannel, 3, 1, "anything at all, repeated")
	bot.AuthorIsBot = true
	f.dispatcher.HandleMessage(context.Background(), bot)
	f.dispatcher.HandleMessage(context.Background(), bot)
	f.dispatcher.HandleMessage(context.Background(), bot)

	dm := makeMessage(f.clock, 0, testChannel, 3, 2, "direct message content here")
	f.dispatcher.HandleMessage(context.Background(), dm)

	assert.Empty(t, f.adapter.sentEnvelopes())
	assert.Empty(t, f.adapter.deletedIDs())
}

func TestPipelineDisabledPolicy(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	policy := DefaultPolicy()
	policy.Enabled = false
	require.NoError(t, f.dispatcher.Policies().Set(context.Background(), testGuild, policy))

	content := "buy cheap followers right now at the best spam site"
	f.send(3, content)
	f.send(3, content)
	f.send(3, content)

	assert.Empty(t, f.adapter.sentEnvelopes())
	assert.Empty(t, f.adapter.timeoutCalls())
}

func TestPipelineBypassRole(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	policy := DefaultPolicy()
	policy.AlertChannelID = testAlert
	policy.BypassRoleID = 77
	require.NoError(t, f.dispatcher.Policies().Set(context.Background(), testGuild, policy))

	content := "buy cheap followers right now at the best spam site"

	for i := 0; i < 3; i++ {
		f.nextID++
		f.dispatcher.HandleTyping(testGuild, 3)

		msg := makeMessage(f.clock, testGuild, testChannel, 3, f.nextID+snowflake.ID(i), content)
		msg.AuthorRoleIDs = []snowflake.ID{77}
		f.dispatcher.HandleMessage(context.Background(), msg)
	}

	assert.Empty(t, f.adapter.sentEnvelopes())
}

func TestPipelineWhitelistedChannel(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	policy := DefaultPolicy()
	policy.AlertChannelID = testAlert
	policy.WhitelistChannelIDs = []snowflake.ID{testChannel}
	require.NoError(t, f.dispatcher.Policies().Set(context.Background(), testGuild, policy))

	content := "buy cheap followers right now at the best spam site"
	f.send(3, content)
	f.send(3, content)
	f.send(3, content)

	assert.Empty(t, f.adapter.sentEnvelopes())
}

func TestPipelineDisabledDetectorSkipped(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	policy := DefaultPolicy()
	policy.AlertChannelID = testAlert
	policy.DetectorsEnabled[KindText] = false
	require.NoError(t, f.dispatcher.Policies().Set(context.Background(), testGuild, policy))

	content := "buy cheap followers right now at the best spam site"
	f.send(3, content)
	f.send(3, content)
	f.send(3, content)

	assert.Empty(t, f.adapter.sentEnvelopes())
}

func TestPipelineTypingBypassScenario(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	// A long message with no typing event looks programmatic.
	msg := makeMessage(f.clock, testGuild, testChannel, 3, 9999,
		"a long pasted payload that arrived without any typing activity")
	f.dispatcher.HandleMessage(context.Background(), msg)

	envelopes := f.adapter.sentEnvelopes()
	require.Len(t, envelopes, 1)
	assert.Contains(t, envelopes[0].Envelope.Title, "Typing Bypass")
}

func TestPipelineBlockExpires(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	content := "buy cheap followers right now at the best spam site"
	f.send(3, content)
	f.send(3, content)
	require.Len(t, f.adapter.sentEnvelopes(), 1)

	// While blocked, messages are removed without detection.
	blockedMsg := f.send(3, "hello again")
	assert.Contains(t, f.adapter.deletedIDs(), blockedMsg.MessageID)

	// After the block lapses, clean messages flow normally again.
	f.clock.advance(int64(DefaultParams().BlockDuration.Seconds()) + 1)

	before := len(f.adapter.deletedIDs())
	f.send(3, "a perfectly ordinary message")

	assert.Len(t, f.adapter.deletedIDs(), before, "unblocked clean message is kept")
}

func TestPipelineDispatchSerializesPerAuthor(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)

	content := "buy cheap followers right now at the best spam site"
	f.dispatcher.HandleTyping(testGuild, 3)

	// Ten identical messages queued from racing goroutines. Per-author
	// serialization means exactly one verdict: the second handled message
	// fires, the block lands before any later message is inspected, and
	// the rest are dropped on sight.
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)

		go func() {
			defer wg.Done()
			f.dispatcher.Dispatch(makeMessage(f.clock, testGuild, testChannel, 3, snowflake.ID(2000+i), content))
		}()
	}

	wg.Wait()
	f.dispatcher.Shutdown()

	assert.Len(t, f.adapter.sentEnvelopes(), 1)
	assert.Len(t, f.adapter.timeoutCalls(), 1)
}

func TestPipelineDispatchAfterShutdownDropped(t *testing.T) {
	t.Parallel()

	f := newPipelineFixture(t)
	f.dispatcher.Shutdown()

	// Must not panic or deliver.
	f.dispatcher.Dispatch(makeMessage(f.clock, testGuild, testChannel, 3, 1, "late message"))

	assert.Empty(t, f.adapter.deletedIDs())
}

func TestPipelineDMCooldownThrottlesWarnings(t *testing.T) {
	t.Parallel()

	// A block shorter than the DM cooldown lets a second verdict land while
	// the cooldown slot is still held.
	params := testParams()
	params.RestoreDelay = time.Hour
	params.BlockDuration = 30 * time.Second
	f := newPipelineFixtureParams(t, params)

	content := "buy cheap followers right now at the best spam site"
	f.send(3, content)
	f.send(3, content)

	dmsAfterFirst := len(f.adapter.sentDMs())
	require.NotZero(t, dmsAfterFirst)

	f.clock.advance(int64(params.BlockDuration.Seconds()) + 1)

	f.send(3, content)
	f.send(3, content)

	assert.Len(t, f.adapter.sentDMs(), dmsAfterFirst, "warning DM is throttled")
}
