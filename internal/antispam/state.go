package antispam

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// recentMessageCount bounds the per-user text history.
	recentMessageCount = 5

	// intervalHistoryCount bounds the per-user inter-arrival history.
	intervalHistoryCount = 15

	// mediaWindow, mentionWindow, and forwardWindow are the sliding
	// windows (in seconds) for the counting detectors.
	mediaWindow   = 30
	mentionWindow = 30
	forwardWindow = 30
)

type timedText struct {
	At   int64
	Text string
}

type arrival struct {
	At  int64
	Gap int64
}

// userState holds the ephemeral sliding buffers for one (guild, author).
// The dispatcher serializes the detection phase, so no locking happens
// here; stateMap guards only its own map.
type userState struct {
	recent         []timedText
	media          []int64
	mentions       []int64
	forwards       []int64
	intervals      []arrival
	typingLast     int64
	hasTyping      bool
	blockedUntil   int64
	timebaseStreak int
}

// pruneWindow drops timestamps that have left the window. An entry exactly
// at the boundary is dropped.
func pruneWindow(entries []int64, now, window int64) []int64 {
	kept := entries[:0]

	for _, at := range entries {
		if now-at < window {
			kept = append(kept, at)
		}
	}

	return kept
}

// pushText appends a message to the bounded text history.
func (s *userState) pushText(now int64, text string) {
	s.recent = append(s.recent, timedText{At: now, Text: text})
	if len(s.recent) > recentMessageCount {
		s.recent = s.recent[len(s.recent)-recentMessageCount:]
	}
}

// nonEmptyTexts returns the buffered texts that carry content.
func (s *userState) nonEmptyTexts() []string {
	texts := make([]string, 0, len(s.recent))

	for _, entry := range s.recent {
		if entry.Text != "" {
			texts = append(texts, entry.Text)
		}
	}

	return texts
}

// pushMedia records a media post and returns the in-window count.
func (s *userState) pushMedia(now int64) int {
	s.media = append(s.media, now)
	s.media = pruneWindow(s.media, now, mediaWindow)

	return len(s.media)
}

// pushMention records a mentioning post and returns the in-window count.
func (s *userState) pushMention(now int64) int {
	s.mentions = append(s.mentions, now)
	s.mentions = pruneWindow(s.mentions, now, mentionWindow)

	return len(s.mentions)
}

// pushForward records a forwarded post and returns the in-window count.
func (s *userState) pushForward(now int64) int {
	s.forwards = append(s.forwards, now)
	s.forwards = pruneWindow(s.forwards, now, forwardWindow)

	return len(s.forwards)
}

// pushArrival records a message arrival, storing the gap to the previous
// arrival. The message's own creation time drives gap math so gateway
// delivery jitter does not distort the timing signal.
func (s *userState) pushArrival(createdAt int64) {
	gap := int64(0)
	if len(s.intervals) > 0 {
		gap = createdAt - s.intervals[len(s.intervals)-1].At
	}

	s.intervals = append(s.intervals, arrival{At: createdAt, Gap: gap})
	if len(s.intervals) > intervalHistoryCount {
		s.intervals = s.intervals[len(s.intervals)-intervalHistoryCount:]
	}
}

// gaps returns the recorded inter-arrival gaps, excluding the leading
// zero-gap entry.
func (s *userState) gaps() []int64 {
	if len(s.intervals) < 2 {
		return nil
	}

	out := make([]int64, 0, len(s.intervals)-1)
	for _, entry := range s.intervals[1:] {
		out = append(out, entry.Gap)
	}

	return out
}

type stateKey struct {
	Guild snowflake.ID
	User  snowflake.ID
}

// stateMap owns all per-user states, created on first touch.
type stateMap struct {
	mu     sync.Mutex
	states map[stateKey]*userState
}

func newStateMap() *stateMap {
	return &stateMap{states: make(map[stateKey]*userState)}
}

// get returns the state for (guild, user), creating it if needed.
func (m *stateMap) get(guildID, userID snowflake.ID) *userState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookup(stateKey{Guild: guildID, User: userID})
}

// lookup must be called with mu held.
func (m *stateMap) lookup(key stateKey) *userState {
	state, ok := m.states[key]
	if !ok {
		state = &userState{}
		m.states[key] = state
	}

	return state
}

// block marks the author soft-blocked until the given time. The block
// field stays under mu: enforcement writes it while another author's
// dispatch may be reading it.
func (m *stateMap) block(guildID, userID snowflake.ID, until int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookup(stateKey{Guild: guildID, User: userID}).blockedUntil = until
}

// blockedUntil returns the author's block deadline, zero when unblocked.
func (m *stateMap) blockedUntil(guildID, userID snowflake.ID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lookup(stateKey{Guild: guildID, User: userID}).blockedUntil
}

// unblock clears the author's soft block.
func (m *stateMap) unblock(guildID, userID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lookup(stateKey{Guild: guildID, User: userID}).blockedUntil = 0
}
