package antispam

import (
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// tokenWindow is the sliding window (in seconds) for content clusters.
const tokenWindow = 5

type clusterEntry struct {
	At     int64
	Author snowflake.ID
}

// contentCluster groups near-identical messages in one guild under a
// representative text.
type contentCluster struct {
	repText string
	entries []clusterEntry
}

// append records an author posting into the cluster and prunes the window.
func (c *contentCluster) append(now int64, author snowflake.ID) {
	c.entries = append(c.entries, clusterEntry{At: now, Author: author})

	kept := c.entries[:0]

	for _, entry := range c.entries {
		if now-entry.At < tokenWindow {
			kept = append(kept, entry)
		}
	}

	c.entries = kept
}

// distinctAuthors returns the unique authors currently in the cluster.
func (c *contentCluster) distinctAuthors() []snowflake.ID {
	seen := make(map[snowflake.ID]struct{}, len(c.entries))
	authors := make([]snowflake.ID, 0, len(c.entries))

	for _, entry := range c.entries {
		if _, ok := seen[entry.Author]; ok {
			continue
		}

		seen[entry.Author] = struct{}{}
		authors = append(authors, entry.Author)
	}

	return authors
}

// clusterMap owns the per-guild content clusters.
type clusterMap struct {
	mu       sync.Mutex
	clusters map[snowflake.ID][]*contentCluster
}

func newClusterMap() *clusterMap {
	return &clusterMap{clusters: make(map[snowflake.ID][]*contentCluster)}
}

// match finds the guild cluster whose representative text matches the
// content, creating a new cluster when none matches. Two texts match at
// similarity >= 0.85, or >= 0.80 once embedded UUIDs are stripped.
func (m *clusterMap) match(guildID snowflake.ID, content string) *contentCluster {
	m.mu.Lock()
	defer m.mu.Unlock()

	stripped := StripUUIDs(content)

	for _, cluster := range m.clusters[guildID] {
		if Similarity(cluster.repText, content) >= SimilarityThreshold {
			return cluster
		}

		if Similarity(StripUUIDs(cluster.repText), stripped) >= 0.80 {
			return cluster
		}
	}

	cluster := &contentCluster{repText: content}
	m.clusters[guildID] = append(m.clusters[guildID], cluster)

	// Drop clusters whose entries have all expired to keep the scan cheap.
	if len(m.clusters[guildID]) > 64 {
		kept := m.clusters[guildID][:0]

		for _, c := range m.clusters[guildID] {
			if len(c.entries) > 0 || c == cluster {
				kept = append(kept, c)
			}
		}

		m.clusters[guildID] = kept
	}

	return cluster
}
