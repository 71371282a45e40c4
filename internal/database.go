package internal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

type DatabaseManager struct {
	DB     *sql.DB
	logger *Logger
}

func NewDatabaseManager(cfg *Config, logger *Logger) (*DatabaseManager, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPassword,
		cfg.PostgresDb,
		cfg.PostgresSSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database_connected").
		Component("database").
		Operation("connect").
		Log()

	return &DatabaseManager{DB: db, logger: logger}, nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS riot_accounts (
		riot_account_id VARCHAR(36) PRIMARY KEY,
		puuid           VARCHAR(78) UNIQUE NOT NULL,
		game_name       VARCHAR(255) NOT NULL,
		tag_line        VARCHAR(10) NOT NULL,
		region          VARCHAR(10) NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_api_update TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS riot_account_name_history (
		history_id      VARCHAR(36) PRIMARY KEY,
		riot_account_id VARCHAR(36) NOT NULL REFERENCES riot_accounts(riot_account_id),
		puuid           VARCHAR(78) NOT NULL,
		old_game_name   VARCHAR(255) NOT NULL,
		new_game_name   VARCHAR(255) NOT NULL,
		old_tag_line    VARCHAR(10) NOT NULL,
		new_tag_line    VARCHAR(10) NOT NULL,
		changed_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		changed_by      VARCHAR(255)
	)`,
	`CREATE TABLE IF NOT EXISTS riot_account_lp_history (
		snapshot_id     VARCHAR(36) PRIMARY KEY,
		riot_account_id VARCHAR(36) NOT NULL REFERENCES riot_accounts(riot_account_id),
		queue_type      VARCHAR(50) NOT NULL,
		league_points   INTEGER NOT NULL,
		tier            VARCHAR(20) NOT NULL,
		division        VARCHAR(5) NOT NULL,
		wins            INTEGER NOT NULL,
		losses          INTEGER NOT NULL,
		retrieved_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_lp_history_account_time
		ON riot_account_lp_history (riot_account_id, retrieved_at DESC)`,
	`CREATE TABLE IF NOT EXISTS players (
		player_id    VARCHAR(36) PRIMARY KEY,
		display_name VARCHAR(255) NOT NULL,
		added_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS player_display_name_history (
		history_id       VARCHAR(36) PRIMARY KEY,
		player_id        VARCHAR(36) NOT NULL REFERENCES players(player_id),
		old_display_name VARCHAR(255) NOT NULL,
		new_display_name VARCHAR(255) NOT NULL,
		changed_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		changed_by       VARCHAR(255)
	)`,
	`CREATE TABLE IF NOT EXISTS player_riot_account_links (
		link_id         VARCHAR(36) PRIMARY KEY,
		player_id       VARCHAR(36) NOT NULL REFERENCES players(player_id),
		riot_account_id VARCHAR(36) NOT NULL REFERENCES riot_accounts(riot_account_id),
		is_primary      BOOLEAN NOT NULL DEFAULT FALSE,
		is_active       BOOLEAN NOT NULL DEFAULT TRUE,
		linked_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		unlinked_at     TIMESTAMPTZ
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_links_one_active_per_pair
		ON player_riot_account_links (player_id, riot_account_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS discord_servers (
		guild_id   VARCHAR(255) PRIMARY KEY,
		guild_name VARCHAR(255) NOT NULL,
		owner_id   VARCHAR(255),
		added_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS guild_tracked_accounts (
		guild_id        VARCHAR(255) NOT NULL REFERENCES discord_servers(guild_id),
		riot_account_id VARCHAR(36) NOT NULL REFERENCES riot_accounts(riot_account_id),
		added_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (guild_id, riot_account_id)
	)`,
}

// EnsureSchema creates the tables on first start. The "at most one active
// link per pair" rule is backed by a partial unique index over active rows
// only: concurrent transactions that both pass the application-level check
// cannot both insert, while inactive history rows stay unconstrained so a
// re-link after an unlink is a fresh row.
func (dm *DatabaseManager) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := dm.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	dm.logger.Info("schema_ready").
		Component("database").
		Operation("ensure_schema").
		Log()
	return nil
}

func (dm *DatabaseManager) Close() {
	if dm.DB != nil {
		dm.DB.Close()
	}
}
