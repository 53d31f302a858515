// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/teamcast/teamcast/internal/epg"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// GetTemplate loads one template with its conditional descriptions.
func (s *Store) GetTemplate(ctx context.Context, id int64) (epg.Template, error) {
	var t epg.Template
	var offseason int
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, game_title, game_subtitle, game_description,
		       pregame_title, pregame_subtitle, pregame_description,
		       postgame_title, postgame_subtitle, postgame_description, postgame_not_final_description,
		       idle_title, idle_subtitle, idle_description, idle_final_description, idle_not_final_description,
		       offseason_enabled, offseason_title, offseason_description,
		       artwork_url, game_duration_minutes
		FROM templates WHERE id = ?`, id).Scan(
		&t.ID, &t.Name, &t.GameTitle, &t.GameSubtitle, &t.GameDescription,
		&t.PregameTitle, &t.PregameSubtitle, &t.PregameDescription,
		&t.PostgameTitle, &t.PostgameSubtitle, &t.PostgameDescription, &t.PostgameNotFinalDescription,
		&t.IdleTitle, &t.IdleSubtitle, &t.IdleDescription, &t.IdleFinalDescription, &t.IdleNotFinalDescription,
		&offseason, &t.OffseasonTitle, &t.OffseasonDescription,
		&t.ArtworkURL, &t.GameDurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return epg.Template{}, ErrNotFound
	}
	if err != nil {
		return epg.Template{}, err
	}
	t.OffseasonEnabled = offseason != 0

	t.Conditionals, err = s.templateConditions(ctx, t.ID)
	return t, err
}

// ListTemplates loads every template keyed by id, conditionals included.
func (s *Store) ListTemplates(ctx context.Context) (map[int64]epg.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make(map[int64]epg.Template, len(ids))
	for _, id := range ids {
		t, err := s.GetTemplate(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = t
	}
	return out, nil
}

// SaveTemplate inserts or updates a template and replaces its conditionals.
func (s *Store) SaveTemplate(ctx context.Context, t epg.Template) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO templates (name, game_title, game_subtitle, game_description,
			pregame_title, pregame_subtitle, pregame_description,
			postgame_title, postgame_subtitle, postgame_description, postgame_not_final_description,
			idle_title, idle_subtitle, idle_description, idle_final_description, idle_not_final_description,
			offseason_enabled, offseason_title, offseason_description, artwork_url, game_duration_minutes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			game_title = excluded.game_title,
			game_subtitle = excluded.game_subtitle,
			game_description = excluded.game_description,
			pregame_title = excluded.pregame_title,
			pregame_subtitle = excluded.pregame_subtitle,
			pregame_description = excluded.pregame_description,
			postgame_title = excluded.postgame_title,
			postgame_subtitle = excluded.postgame_subtitle,
			postgame_description = excluded.postgame_description,
			postgame_not_final_description = excluded.postgame_not_final_description,
			idle_title = excluded.idle_title,
			idle_subtitle = excluded.idle_subtitle,
			idle_description = excluded.idle_description,
			idle_final_description = excluded.idle_final_description,
			idle_not_final_description = excluded.idle_not_final_description,
			offseason_enabled = excluded.offseason_enabled,
			offseason_title = excluded.offseason_title,
			offseason_description = excluded.offseason_description,
			artwork_url = excluded.artwork_url,
			game_duration_minutes = excluded.game_duration_minutes`,
		t.Name, t.GameTitle, t.GameSubtitle, t.GameDescription,
		t.PregameTitle, t.PregameSubtitle, t.PregameDescription,
		t.PostgameTitle, t.PostgameSubtitle, t.PostgameDescription, t.PostgameNotFinalDescription,
		t.IdleTitle, t.IdleSubtitle, t.IdleDescription, t.IdleFinalDescription, t.IdleNotFinalDescription,
		boolInt(t.OffseasonEnabled), t.OffseasonTitle, t.OffseasonDescription, t.ArtworkURL, t.GameDurationMinutes)
	if err != nil {
		return 0, err
	}

	id := t.ID
	if id == 0 {
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM template_conditions WHERE template_id = ?`, id); err != nil {
		return 0, err
	}
	for _, c := range t.Conditionals {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO template_conditions (template_id, kind, value, priority, template)
			VALUES (?, ?, ?, ?, ?)`,
			id, string(c.Kind), c.Value, c.Priority, c.Template)
		if err != nil {
			return 0, err
		}
	}
	return id, tx.Commit()
}

func (s *Store) templateConditions(ctx context.Context, templateID int64) ([]epg.ConditionalDescription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, value, priority, template
		FROM template_conditions WHERE template_id = ? ORDER BY priority, id`, templateID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []epg.ConditionalDescription
	for rows.Next() {
		var c epg.ConditionalDescription
		var kind string
		if err := rows.Scan(&kind, &c.Value, &c.Priority, &c.Template); err != nil {
			return nil, err
		}
		c.Kind = epg.ConditionKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}
