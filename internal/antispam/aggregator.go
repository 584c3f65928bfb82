package antispam

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

const (
	// massLogLimit bounds the per-guild detection log.
	massLogLimit = 100

	// massWindow is the window (in seconds) within which distinct
	// offending authors are counted.
	massWindow = 10

	// massAuthorThreshold is the distinct-author count that declares a
	// mass attack.
	massAuthorThreshold = 3

	// massActiveDuration is how long (in seconds) the mass state persists
	// after the last declaration.
	massActiveDuration = 60
)

type massEntry struct {
	At     int64
	Author snowflake.ID
	Kind   Kind
}

type guildMassLog struct {
	entries         []massEntry
	massActiveUntil int64
}

// Aggregator keeps a cross-user log of recent detections per guild and
// declares a mass attack when enough distinct authors trip detectors
// within a short window.
type Aggregator struct {
	mu     sync.Mutex
	clock  Clock
	logger *zap.Logger
	guilds map[snowflake.ID]*guildMassLog
}

// NewAggregator creates an empty aggregator.
func NewAggregator(clock Clock, logger *zap.Logger) *Aggregator {
	return &Aggregator{
		clock:  clock,
		logger: logger.Named("aggregator"),
		guilds: make(map[snowflake.ID]*guildMassLog),
	}
}

func (a *Aggregator) guild(guildID snowflake.ID) *guildMassLog {
	log, ok := a.guilds[guildID]
	if !ok {
		log = &guildMassLog{}
		a.guilds[guildID] = log
	}

	return log
}

// Record logs a detection and returns whether the guild is now under a
// mass attack. Declaring (or re-declaring) extends the active period.
func (a *Aggregator) Record(guildID, author snowflake.ID, kind Kind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	log := a.guild(guildID)

	log.entries = append(log.entries, massEntry{At: now, Author: author, Kind: kind})
	if len(log.entries) > massLogLimit {
		log.entries = log.entries[len(log.entries)-massLogLimit:]
	}

	distinct := make(map[snowflake.ID]struct{})

	for _, entry := range log.entries {
		if now-entry.At < massWindow {
			distinct[entry.Author] = struct{}{}
		}
	}

	if len(distinct) >= massAuthorThreshold {
		if log.massActiveUntil <= now {
			a.logger.Warn("Mass attack declared",
				zap.Uint64("guild_id", uint64(guildID)),
				zap.Int("distinct_authors", len(distinct)),
				zap.String("kind", string(kind)))
		}

		log.massActiveUntil = now + massActiveDuration
	}

	return log.massActiveUntil > now
}

// Active reports whether the guild currently has a declared mass attack.
// The state auto-clears once the active period lapses.
func (a *Aggregator) Active(guildID snowflake.ID) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.guild(guildID).massActiveUntil > a.clock.Now()
}
