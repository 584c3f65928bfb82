package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/guardbot-dev/guardbot/internal/database/types"
	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// GuildDataModel handles database operations for per-guild JSON documents.
type GuildDataModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewGuildData creates a repository for guild document operations.
func NewGuildData(db *bun.DB, logger *zap.Logger) *GuildDataModel {
	return &GuildDataModel{
		db:     db,
		logger: logger.Named("guild_data"),
	}
}

// Get fetches the raw document stored at (guildID, key).
// Returns nil with no error when the document does not exist.
func (m *GuildDataModel) Get(ctx context.Context, guildID uint64, key string) ([]byte, error) {
	var record types.GuildData

	err := m.db.NewSelect().
		Model(&record).
		Where("guild_id = ?", guildID).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to get guild document: %w", err)
	}

	return record.Value, nil
}

// Set upserts the document stored at (guildID, key).
func (m *GuildDataModel) Set(ctx context.Context, guildID uint64, key string, value []byte) error {
	record := &types.GuildData{
		GuildID:   guildID,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}

	_, err := m.db.NewInsert().
		Model(record).
		On("CONFLICT (guild_id, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set guild document: %w", err)
	}

	return nil
}

// Delete removes the document stored at (guildID, key).
func (m *GuildDataModel) Delete(ctx context.Context, guildID uint64, key string) error {
	_, err := m.db.NewDelete().
		Model((*types.GuildData)(nil)).
		Where("guild_id = ?", guildID).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete guild document: %w", err)
	}

	return nil
}

// Keys lists document keys for a guild matching the given prefix.
func (m *GuildDataModel) Keys(ctx context.Context, guildID uint64, prefix string) ([]string, error) {
	var keys []string

	err := m.db.NewSelect().
		Model((*types.GuildData)(nil)).
		Column("key").
		Where("guild_id = ?", guildID).
		Where("key LIKE ?", prefix+"%").
		Scan(ctx, &keys)
	if err != nil {
		return nil, fmt.Errorf("failed to list guild document keys: %w", err)
	}

	return keys, nil
}
