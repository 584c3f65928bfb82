package antispam

import (
	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/platform"
)

// tokenAuthorThreshold is the distinct-author count in a content cluster
// that fires the detector.
const tokenAuthorThreshold = 3

// tokenDetector catches coordinated posting of near-identical content
// across authors, plus single messages stuffed with multiple UUIDs (the
// signature of leaked-token spam). On a verdict every author in the
// cluster is soft-blocked before enforcement runs.
type tokenDetector struct {
	clusters *clusterMap
	states   *stateMap
	params   Params

	// lastAuthors holds the cluster authors of the most recent verdict so
	// the dispatcher can feed them to the aggregator.
	lastAuthors []snowflake.ID
}

func (d *tokenDetector) Kind() Kind { return KindToken }

func (d *tokenDetector) Inspect(now int64, msg *platform.Message, _ *userState) (Verdict, bool) {
	d.lastAuthors = nil

	if msg.Content == "" {
		return Verdict{}, false
	}

	cluster := d.clusters.match(msg.GuildID, msg.Content)
	cluster.append(now, msg.AuthorID)

	authors := cluster.distinctAuthors()
	uuids := CountUUIDs(msg.Content)

	if len(authors) < tokenAuthorThreshold && uuids < 2 {
		return Verdict{}, false
	}

	// Everyone in the cluster gets blocked, not just the author that
	// tipped the threshold.
	until := now + int64(d.params.BlockDuration.Seconds())
	for _, author := range authors {
		d.states.block(msg.GuildID, author, until)
	}

	d.lastAuthors = authors

	return Verdict{Kind: KindToken, Score: float64(len(authors))}, true
}

// verdictAuthors returns the distinct authors behind the last verdict.
func (d *tokenDetector) verdictAuthors() []snowflake.ID {
	return d.lastAuthors
}
