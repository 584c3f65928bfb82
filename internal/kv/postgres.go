package kv

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/snowflake/v2"
	"github.com/guardbot-dev/guardbot/internal/database"
)

// PostgresStore persists guild documents in the guild_data table.
type PostgresStore struct {
	db *database.Client
}

// NewPostgresStore creates a PostgreSQL-backed Store.
func NewPostgresStore(db *database.Client) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, guildID snowflake.ID, key string, out any) (bool, error) {
	raw, err := s.db.GuildData().Get(ctx, uint64(guildID), key)
	if err != nil {
		return false, err
	}

	if raw == nil {
		return false, nil
	}

	if err := sonic.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("failed to decode guild document: %w", err)
	}

	return true, nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, guildID snowflake.ID, key string, value any) error {
	raw, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode guild document: %w", err)
	}

	return s.db.GuildData().Set(ctx, uint64(guildID), key, raw)
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, guildID snowflake.ID, key string) error {
	return s.db.GuildData().Delete(ctx, uint64(guildID), key)
}

// Keys implements Store.
func (s *PostgresStore) Keys(ctx context.Context, guildID snowflake.ID, prefix string) ([]string, error) {
	return s.db.GuildData().Keys(ctx, uint64(guildID), prefix)
}
