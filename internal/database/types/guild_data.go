package types

import "time"

// GuildData stores one JSON document for a guild under a string key.
// Policy and flag state documents share this table.
type GuildData struct {
	GuildID   uint64    `bun:",pk,notnull"`
	Key       string    `bun:",pk,notnull"`
	Value     []byte    `bun:"value,type:jsonb,notnull"`
	UpdatedAt time.Time `bun:",notnull"`
}
