// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"time"
)

// Run is one recorded generation run.
type Run struct {
	ID                int64
	StartedAt         time.Time
	FinishedAt        *time.Time
	ChannelsGenerated int
	ChannelsFailed    int
	Programs          int
	Errors            []string
}

// StartRun records the beginning of a generation run.
func (s *Store) StartRun(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO runs (started_at) VALUES (?)`, formatTime(at))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id int64, at time.Time, generated, failed, programs int, errs []string) error {
	if errs == nil {
		errs = []string{}
	}
	blob, err := json.Marshal(errs)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, channels_generated = ?, channels_failed = ?, programs = ?, errors = ?
		WHERE id = ?`, formatTime(at), generated, failed, programs, string(blob), id)
	return err
}

// RecentRuns returns the latest n runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, channels_generated, channels_failed, programs, errors
		FROM runs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		var finished sql.NullString
		var errBlob string
		if err := rows.Scan(&r.ID, &started, &finished, &r.ChannelsGenerated, &r.ChannelsFailed, &r.Programs, &errBlob); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTimePtr(finished)
		_ = json.Unmarshal([]byte(errBlob), &r.Errors)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRuns keeps the most recent keep runs and deletes the rest.
func (s *Store) PruneRuns(ctx context.Context, keep int) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY id DESC LIMIT ?)`, keep)
	return err
}

// GetSetting reads one settings row; missing keys return the fallback.
func (s *Store) GetSetting(ctx context.Context, key, fallback string) string {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if err != nil {
		return fallback
	}
	return v
}

// GetSettingInt reads an integer setting.
func (s *Store) GetSettingInt(ctx context.Context, key string, fallback int) int {
	v := s.GetSetting(ctx, key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// SetSetting writes one settings row.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}
