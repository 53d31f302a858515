// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"strings"

	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/match"
	"github.com/teamcast/teamcast/internal/provider"
)

// ListTeams returns every configured team channel.
func (s *Store) ListTeams(ctx context.Context) ([]epg.TeamConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, league, team_id, channel_id, logo_url, template_id, enabled, game_duration_minutes
		FROM teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []epg.TeamConfig
	for rows.Next() {
		var t epg.TeamConfig
		var enabled int
		if err := rows.Scan(&t.ID, &t.Name, &t.League, &t.TeamID, &t.ChannelID,
			&t.LogoURL, &t.TemplateID, &enabled, &t.GameDurationMinutes); err != nil {
			return nil, err
		}
		t.Enabled = enabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpsertTeam inserts or updates a team channel, keyed by channel_id.
func (s *Store) UpsertTeam(ctx context.Context, t epg.TeamConfig) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (name, league, team_id, channel_id, logo_url, template_id, enabled, game_duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			name = excluded.name,
			league = excluded.league,
			team_id = excluded.team_id,
			logo_url = excluded.logo_url,
			template_id = excluded.template_id,
			enabled = excluded.enabled,
			game_duration_minutes = excluded.game_duration_minutes`,
		t.Name, t.League, t.TeamID, t.ChannelID, t.LogoURL, t.TemplateID, boolInt(t.Enabled), t.GameDurationMinutes)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteTeam removes a team channel by id.
func (s *Store) DeleteTeam(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM teams WHERE id = ?`, id)
	return err
}

// ListLeagueMappings returns the persisted league-provider mappings.
func (s *Store) ListLeagueMappings(ctx context.Context) ([]provider.Mapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT league, provider, provider_league_id, provider_league_name,
		       sport, display_name, logo_url, enabled, single_event, keywords
		FROM league_mappings ORDER BY league, provider`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []provider.Mapping
	for rows.Next() {
		var m provider.Mapping
		var enabled, single int
		var keywords string
		if err := rows.Scan(&m.League, &m.Provider, &m.ProviderLeagueID, &m.ProviderLeagueName,
			&m.Sport, &m.DisplayName, &m.LogoURL, &enabled, &single, &keywords); err != nil {
			return nil, err
		}
		m.Enabled = enabled != 0
		m.SingleEvent = single != 0
		if keywords != "" {
			m.Keywords = strings.Split(keywords, ",")
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceLeagueMappings swaps the full mapping table in one transaction.
func (s *Store) ReplaceLeagueMappings(ctx context.Context, mappings []provider.Mapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM league_mappings`); err != nil {
		return err
	}
	for _, m := range mappings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO league_mappings (league, provider, provider_league_id, provider_league_name,
				sport, display_name, logo_url, enabled, single_event, keywords)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.League, m.Provider, m.ProviderLeagueID, m.ProviderLeagueName,
			m.Sport, m.DisplayName, m.LogoURL, boolInt(m.Enabled), boolInt(m.SingleEvent),
			strings.Join(m.Keywords, ","))
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListAliases returns the user alias table for the fuzzy matcher.
func (s *Store) ListAliases(ctx context.Context) ([]match.Alias, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT league, alias, team_id FROM team_aliases ORDER BY league, alias`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []match.Alias
	for rows.Next() {
		var a match.Alias
		if err := rows.Scan(&a.League, &a.Alias, &a.TeamID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAlias inserts or replaces one alias.
func (s *Store) UpsertAlias(ctx context.Context, a match.Alias) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_aliases (league, alias, team_id) VALUES (?, ?, ?)
		ON CONFLICT(league, alias) DO UPDATE SET team_id = excluded.team_id`,
		a.League, a.Alias, a.TeamID)
	return err
}

// ListExceptionKeywords returns keywords for a group; group 0 is global.
func (s *Store) ListExceptionKeywords(ctx context.Context, groupID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT keyword FROM exception_keywords WHERE group_id IN (0, ?) ORDER BY keyword`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// AddExceptionKeyword registers a keyword for a group.
func (s *Store) AddExceptionKeyword(ctx context.Context, groupID int64, keyword string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exception_keywords (group_id, keyword) VALUES (?, ?)
		ON CONFLICT(group_id, keyword) DO NOTHING`, groupID, keyword)
	return err
}

// MatchOverride is one stored classifier override pattern. Group 0 is
// global; patterns compile at load time, not here.
type MatchOverride struct {
	ID      int64
	GroupID int64
	League  string
	Pattern string
}

// ListMatchOverrides returns the override patterns for a group; group 0 is
// global and always included.
func (s *Store) ListMatchOverrides(ctx context.Context, groupID int64) ([]MatchOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, group_id, league, pattern FROM match_overrides
		WHERE group_id IN (0, ?) ORDER BY group_id DESC, id`, groupID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []MatchOverride
	for rows.Next() {
		var o MatchOverride
		if err := rows.Scan(&o.ID, &o.GroupID, &o.League, &o.Pattern); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// AddMatchOverride registers an override pattern for a group.
func (s *Store) AddMatchOverride(ctx context.Context, o MatchOverride) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_overrides (group_id, league, pattern) VALUES (?, ?, ?)
		ON CONFLICT(group_id, pattern) DO UPDATE SET league = excluded.league`,
		o.GroupID, o.League, o.Pattern)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
