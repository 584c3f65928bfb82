// Package database manages the PostgreSQL connection and the repositories
// built on top of it.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/guardbot-dev/guardbot/internal/database/models"
	"github.com/guardbot-dev/guardbot/internal/database/types"
	"github.com/guardbot-dev/guardbot/internal/setup/config"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"
)

// Client represents the database connection and operations.
type Client struct {
	db        *bun.DB
	logger    *zap.Logger
	guildData *models.GuildDataModel
}

// NewConnection establishes a new database connection and returns a Client
// instance with its repositories ready.
func NewConnection(ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger) (*Client, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("guardbot"),
	))

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())

	// Schema is small enough that create-if-missing replaces migrations.
	if _, err := db.NewCreateTable().
		Model((*types.GuildData)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create guild_data table: %w", err)
	}

	client := &Client{
		db:        db,
		logger:    logger.Named("database"),
		guildData: models.NewGuildData(db, logger),
	}

	client.logger.Info("Database connection established")

	return client, nil
}

// Close gracefully shuts down the database connection.
func (c *Client) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// GuildData returns the repository for guild document operations.
func (c *Client) GuildData() *models.GuildDataModel {
	return c.guildData
}
