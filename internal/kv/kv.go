// Package kv provides per-guild key/value persistence for moderation state.
// Values are JSON documents; each (guild, key) slot is written atomically.
package kv

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
)

// Store persists per-guild documents. Implementations are expected to be
// strongly consistent within a single process.
type Store interface {
	// Load reads the document at (guildID, key) into out. The boolean
	// reports whether the document existed.
	Load(ctx context.Context, guildID snowflake.ID, key string, out any) (bool, error)

	// Save writes the document at (guildID, key), replacing any prior value.
	Save(ctx context.Context, guildID snowflake.ID, key string, value any) error

	// Delete removes the document at (guildID, key). Missing documents are
	// not an error.
	Delete(ctx context.Context, guildID snowflake.ID, key string) error

	// Keys lists the keys stored for a guild that begin with prefix.
	Keys(ctx context.Context, guildID snowflake.ID, prefix string) ([]string, error)
}
