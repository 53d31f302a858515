// SPDX-License-Identifier: MIT

// Package store is the sqlite persistence layer: teams, templates, event
// groups, league mappings, managed channels and run history.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

// Store wraps the sqlite handle. All methods are safe for concurrent use;
// WAL mode plus busy_timeout covers the multi-writer case.
type Store struct {
	db *sql.DB
}

// Open initializes the database at dbPath and runs migrations.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is still reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		league TEXT NOT NULL,
		team_id TEXT NOT NULL,
		channel_id TEXT NOT NULL UNIQUE,
		logo_url TEXT NOT NULL DEFAULT '',
		template_id INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		game_duration_minutes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS templates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		game_title TEXT NOT NULL DEFAULT '',
		game_subtitle TEXT NOT NULL DEFAULT '',
		game_description TEXT NOT NULL DEFAULT '',
		pregame_title TEXT NOT NULL DEFAULT '',
		pregame_subtitle TEXT NOT NULL DEFAULT '',
		pregame_description TEXT NOT NULL DEFAULT '',
		postgame_title TEXT NOT NULL DEFAULT '',
		postgame_subtitle TEXT NOT NULL DEFAULT '',
		postgame_description TEXT NOT NULL DEFAULT '',
		postgame_not_final_description TEXT NOT NULL DEFAULT '',
		idle_title TEXT NOT NULL DEFAULT '',
		idle_subtitle TEXT NOT NULL DEFAULT '',
		idle_description TEXT NOT NULL DEFAULT '',
		idle_final_description TEXT NOT NULL DEFAULT '',
		idle_not_final_description TEXT NOT NULL DEFAULT '',
		offseason_enabled INTEGER NOT NULL DEFAULT 0,
		offseason_title TEXT NOT NULL DEFAULT '',
		offseason_description TEXT NOT NULL DEFAULT '',
		artwork_url TEXT NOT NULL DEFAULT '',
		game_duration_minutes INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS template_conditions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template_id INTEGER NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 100,
		template TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_template_conditions_template ON template_conditions(template_id);

	CREATE TABLE IF NOT EXISTS event_groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL DEFAULT 1,
		include_leagues TEXT NOT NULL DEFAULT '',
		candidate_leagues TEXT NOT NULL DEFAULT '',
		include_regex TEXT NOT NULL DEFAULT '',
		exclude_regex TEXT NOT NULL DEFAULT '',
		duplicate_mode TEXT NOT NULL DEFAULT 'separate' CHECK(duplicate_mode IN ('separate', 'consolidate')),
		create_hours_before INTEGER NOT NULL DEFAULT 0,
		delete_grace_minutes INTEGER NOT NULL DEFAULT 60,
		template_id INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS exception_keywords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL DEFAULT 0,
		keyword TEXT NOT NULL,
		UNIQUE(group_id, keyword)
	);

	CREATE TABLE IF NOT EXISTS match_overrides (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL DEFAULT 0,
		league TEXT NOT NULL DEFAULT '',
		pattern TEXT NOT NULL,
		UNIQUE(group_id, pattern)
	);

	CREATE TABLE IF NOT EXISTS league_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		league TEXT NOT NULL,
		provider TEXT NOT NULL,
		provider_league_id TEXT NOT NULL DEFAULT '',
		provider_league_name TEXT NOT NULL DEFAULT '',
		sport TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		logo_url TEXT NOT NULL DEFAULT '',
		enabled INTEGER NOT NULL DEFAULT 1,
		single_event INTEGER NOT NULL DEFAULT 0,
		keywords TEXT NOT NULL DEFAULT '',
		UNIQUE(league, provider)
	);

	CREATE TABLE IF NOT EXISTS team_aliases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		league TEXT NOT NULL,
		alias TEXT NOT NULL,
		team_id TEXT NOT NULL,
		UNIQUE(league, alias)
	);

	CREATE TABLE IF NOT EXISTS managed_channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id INTEGER NOT NULL,
		event_id TEXT NOT NULL,
		league TEXT NOT NULL,
		keyword TEXT NOT NULL DEFAULT '',
		remote_id TEXT NOT NULL DEFAULT '',
		tvg_id TEXT NOT NULL,
		name TEXT NOT NULL,
		logo_url TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'active' CHECK(state IN ('active', 'deleted')),
		delete_reason TEXT NOT NULL DEFAULT '',
		event_start TEXT NOT NULL,
		event_end TEXT NOT NULL,
		scheduled_delete_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_managed_channels_group ON managed_channels(group_id);
	CREATE INDEX IF NOT EXISTS idx_managed_channels_event ON managed_channels(event_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_managed_channels_active
		ON managed_channels(group_id, event_id, keyword) WHERE state = 'active';

	CREATE TABLE IF NOT EXISTS managed_channel_streams (
		channel_id INTEGER NOT NULL REFERENCES managed_channels(id) ON DELETE CASCADE,
		stream_id TEXT NOT NULL,
		stream_name TEXT NOT NULL DEFAULT '',
		position INTEGER NOT NULL DEFAULT 0,
		pinned INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (channel_id, stream_id)
	);

	CREATE TABLE IF NOT EXISTS managed_channel_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_managed_channel_history_at ON managed_channel_history(at);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		channels_generated INTEGER NOT NULL DEFAULT 0,
		channels_failed INTEGER NOT NULL DEFAULT 0,
		programs INTEGER NOT NULL DEFAULT 0,
		errors TEXT NOT NULL DEFAULT '[]'
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const timeLayout = time.RFC3339

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}
