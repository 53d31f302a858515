// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// DuplicateMode selects how streams with different exception keywords for
// the same event map to channels.
type DuplicateMode string

const (
	DuplicateSeparate    DuplicateMode = "separate"
	DuplicateConsolidate DuplicateMode = "consolidate"
)

// EventGroup is one configured stream group in event mode.
type EventGroup struct {
	ID      int64
	Name    string
	Enabled bool
	// IncludeLeagues are the leagues this group creates channels for.
	// CandidateLeagues is a superset that also participates in matching, so
	// a stream from a broader package still resolves and gets a decision.
	// Empty sets mean no restriction.
	IncludeLeagues     []string
	CandidateLeagues   []string
	IncludeRegex       string
	ExcludeRegex       string
	DuplicateMode      DuplicateMode
	CreateHoursBefore  int // 0 = create immediately
	DeleteGraceMinutes int
	TemplateID         int64
}

// ChannelState is the lifecycle state of a managed channel row.
type ChannelState string

const (
	ChannelActive  ChannelState = "active"
	ChannelDeleted ChannelState = "deleted"
)

// ManagedChannel is one virtual channel tied to an event.
type ManagedChannel struct {
	ID                int64
	GroupID           int64
	EventID           string
	League            string
	Keyword           string // exception keyword; "" for the main channel
	RemoteID          string // downstream middleware id
	TVGID             string
	Name              string
	LogoURL           string
	State             ChannelState
	DeleteReason      string
	EventStart        time.Time
	EventEnd          time.Time
	ScheduledDeleteAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ChannelStream is one stream attached to a managed channel.
type ChannelStream struct {
	ChannelID  int64
	StreamID   string
	StreamName string
	Position   int
	Pinned     bool
}

// ListGroups returns every event group.
func (s *Store) ListGroups(ctx context.Context) ([]EventGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, enabled, include_leagues, candidate_leagues,
		       include_regex, exclude_regex, duplicate_mode,
		       create_hours_before, delete_grace_minutes, template_id
		FROM event_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []EventGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGroup loads one group.
func (s *Store) GetGroup(ctx context.Context, id int64) (EventGroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, enabled, include_leagues, candidate_leagues,
		       include_regex, exclude_regex, duplicate_mode,
		       create_hours_before, delete_grace_minutes, template_id
		FROM event_groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EventGroup{}, ErrNotFound
	}
	return g, err
}

func scanGroup(row rowScanner) (EventGroup, error) {
	var g EventGroup
	var enabled int
	var mode, include, candidate string
	err := row.Scan(&g.ID, &g.Name, &enabled, &include, &candidate,
		&g.IncludeRegex, &g.ExcludeRegex,
		&mode, &g.CreateHoursBefore, &g.DeleteGraceMinutes, &g.TemplateID)
	if err != nil {
		return EventGroup{}, err
	}
	g.Enabled = enabled != 0
	g.DuplicateMode = DuplicateMode(mode)
	g.IncludeLeagues = splitCSV(include)
	g.CandidateLeagues = splitCSV(candidate)
	return g, nil
}

// UpsertGroup inserts or updates a group, keyed by name.
func (s *Store) UpsertGroup(ctx context.Context, g EventGroup) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO event_groups (name, enabled, include_leagues, candidate_leagues,
			include_regex, exclude_regex, duplicate_mode,
			create_hours_before, delete_grace_minutes, template_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			include_leagues = excluded.include_leagues,
			candidate_leagues = excluded.candidate_leagues,
			include_regex = excluded.include_regex,
			exclude_regex = excluded.exclude_regex,
			duplicate_mode = excluded.duplicate_mode,
			create_hours_before = excluded.create_hours_before,
			delete_grace_minutes = excluded.delete_grace_minutes,
			template_id = excluded.template_id`,
		g.Name, boolInt(g.Enabled), strings.Join(g.IncludeLeagues, ","), strings.Join(g.CandidateLeagues, ","),
		g.IncludeRegex, g.ExcludeRegex, string(g.DuplicateMode),
		g.CreateHoursBefore, g.DeleteGraceMinutes, g.TemplateID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// FindChannel locates the channel for (group, event, keyword) in any state.
// The deleted row with the latest update wins when several exist.
func (s *Store) FindChannel(ctx context.Context, groupID int64, eventID, keyword string) (ManagedChannel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, group_id, event_id, league, keyword, remote_id, tvg_id, name, logo_url,
		       state, delete_reason, event_start, event_end, scheduled_delete_at, created_at, updated_at
		FROM managed_channels
		WHERE group_id = ? AND event_id = ? AND keyword = ?
		ORDER BY CASE state WHEN 'active' THEN 0 ELSE 1 END, updated_at DESC
		LIMIT 1`, groupID, eventID, keyword)
	return scanChannel(row)
}

// ListChannels returns every managed channel of a group, newest first.
func (s *Store) ListChannels(ctx context.Context, groupID int64) ([]ManagedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, event_id, league, keyword, remote_id, tvg_id, name, logo_url,
		       state, delete_reason, event_start, event_end, scheduled_delete_at, created_at, updated_at
		FROM managed_channels WHERE group_id = ? ORDER BY created_at DESC`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ManagedChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ListActiveChannels returns active channels across all groups.
func (s *Store) ListActiveChannels(ctx context.Context) ([]ManagedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, event_id, league, keyword, remote_id, tvg_id, name, logo_url,
		       state, delete_reason, event_start, event_end, scheduled_delete_at, created_at, updated_at
		FROM managed_channels WHERE state = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ManagedChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// ExpiredChannels returns active channels whose scheduled_delete_at has
// passed.
func (s *Store) ExpiredChannels(ctx context.Context, now time.Time) ([]ManagedChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, event_id, league, keyword, remote_id, tvg_id, name, logo_url,
		       state, delete_reason, event_start, event_end, scheduled_delete_at, created_at, updated_at
		FROM managed_channels
		WHERE state = 'active' AND scheduled_delete_at IS NOT NULL AND scheduled_delete_at <= ?
		ORDER BY scheduled_delete_at`, formatTime(now))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ManagedChannel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SaveChannel inserts a new channel or updates an existing row by id.
func (s *Store) SaveChannel(ctx context.Context, ch ManagedChannel) (int64, error) {
	var deleteAt any
	if ch.ScheduledDeleteAt != nil {
		deleteAt = formatTime(*ch.ScheduledDeleteAt)
	}
	if ch.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO managed_channels (group_id, event_id, league, keyword, remote_id, tvg_id,
				name, logo_url, state, delete_reason, event_start, event_end, scheduled_delete_at,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ch.GroupID, ch.EventID, ch.League, ch.Keyword, ch.RemoteID, ch.TVGID,
			ch.Name, ch.LogoURL, string(ch.State), ch.DeleteReason,
			formatTime(ch.EventStart), formatTime(ch.EventEnd), deleteAt,
			formatTime(ch.CreatedAt), formatTime(ch.UpdatedAt))
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE managed_channels SET remote_id = ?, tvg_id = ?, name = ?, logo_url = ?,
			state = ?, delete_reason = ?, event_start = ?, event_end = ?,
			scheduled_delete_at = ?, updated_at = ?
		WHERE id = ?`,
		ch.RemoteID, ch.TVGID, ch.Name, ch.LogoURL, string(ch.State), ch.DeleteReason,
		formatTime(ch.EventStart), formatTime(ch.EventEnd), deleteAt, formatTime(ch.UpdatedAt), ch.ID)
	return ch.ID, err
}

// ReplaceChannelStreams swaps the attached stream set of a channel.
func (s *Store) ReplaceChannelStreams(ctx context.Context, channelID int64, streams []ChannelStream) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM managed_channel_streams WHERE channel_id = ?`, channelID); err != nil {
		return err
	}
	for _, st := range streams {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO managed_channel_streams (channel_id, stream_id, stream_name, position, pinned)
			VALUES (?, ?, ?, ?, ?)`,
			channelID, st.StreamID, st.StreamName, st.Position, boolInt(st.Pinned))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ChannelStreams returns the attached streams in position order.
func (s *Store) ChannelStreams(ctx context.Context, channelID int64) ([]ChannelStream, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, stream_id, stream_name, position, pinned
		FROM managed_channel_streams WHERE channel_id = ? ORDER BY position`, channelID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ChannelStream
	for rows.Next() {
		var st ChannelStream
		var pinned int
		if err := rows.Scan(&st.ChannelID, &st.StreamID, &st.StreamName, &st.Position, &pinned); err != nil {
			return nil, err
		}
		st.Pinned = pinned != 0
		out = append(out, st)
	}
	return out, rows.Err()
}

// RecordHistory appends one channel action to the audit trail.
func (s *Store) RecordHistory(ctx context.Context, channelID int64, action, detail string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO managed_channel_history (channel_id, action, detail, at)
		VALUES (?, ?, ?, ?)`, channelID, action, detail, formatTime(at))
	return err
}

// PruneHistory deletes history entries older than cutoff and returns the
// number removed.
func (s *Store) PruneHistory(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM managed_channel_history WHERE at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChannel(row rowScanner) (ManagedChannel, error) {
	var ch ManagedChannel
	var state, eventStart, eventEnd, createdAt, updatedAt string
	var deleteAt sql.NullString
	err := row.Scan(&ch.ID, &ch.GroupID, &ch.EventID, &ch.League, &ch.Keyword, &ch.RemoteID,
		&ch.TVGID, &ch.Name, &ch.LogoURL, &state, &ch.DeleteReason,
		&eventStart, &eventEnd, &deleteAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ManagedChannel{}, ErrNotFound
	}
	if err != nil {
		return ManagedChannel{}, err
	}
	ch.State = ChannelState(state)
	ch.EventStart = parseTime(eventStart)
	ch.EventEnd = parseTime(eventEnd)
	ch.ScheduledDeleteAt = parseTimePtr(deleteAt)
	ch.CreatedAt = parseTime(createdAt)
	ch.UpdatedAt = parseTime(updatedAt)
	return ch, nil
}
