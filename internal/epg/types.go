// SPDX-License-Identifier: MIT

// Package epg builds per-channel program timelines: the template context,
// variable resolution, filler generation and XMLTV emission.
package epg

import (
	"time"
)

// ProgramKind classifies an emitted program.
type ProgramKind string

const (
	KindGame      ProgramKind = "game"
	KindPregame   ProgramKind = "pregame"
	KindPostgame  ProgramKind = "postgame"
	KindIdle      ProgramKind = "idle"
	KindOffseason ProgramKind = "offseason"
)

// Program is one entry of a channel timeline. Within a channel, programs are
// strictly ordered by Start and gap-free.
type Program struct {
	ChannelID   string
	Start       time.Time
	Stop        time.Time
	Title       string
	Subtitle    string
	Description string
	Icon        string
	Categories  []string
	Kind        ProgramKind
	EventID     string // non-empty for game programs
}

// TeamConfig is one configured team channel.
type TeamConfig struct {
	ID         int64
	Name       string
	League     string
	TeamID     string // provider team id
	ChannelID  string // tvg-id in the emitted XMLTV
	LogoURL    string
	TemplateID int64
	Enabled    bool
	// GameDurationMinutes overrides sport and global defaults when > 0.
	GameDurationMinutes int
}

// Template is a set of program text templates plus optional conditional
// descriptions. Empty fields fall back to built-in defaults.
type Template struct {
	ID   int64
	Name string

	GameTitle       string
	GameSubtitle    string
	GameDescription string

	PregameTitle       string
	PregameSubtitle    string
	PregameDescription string

	PostgameTitle       string
	PostgameSubtitle    string
	PostgameDescription string
	// PostgameNotFinalDescription is used when the last game did not reach a
	// final score (postponed, cancelled).
	PostgameNotFinalDescription string

	IdleTitle       string
	IdleSubtitle    string
	IdleDescription string
	// IdleFinalDescription / IdleNotFinalDescription are the conditional idle
	// tier keyed on the last game's status.
	IdleFinalDescription    string
	IdleNotFinalDescription string

	OffseasonEnabled     bool
	OffseasonTitle       string
	OffseasonDescription string

	ArtworkURL string

	Conditionals []ConditionalDescription

	GameDurationMinutes int
}

// DefaultTemplate is the built-in fallback used when a team has no template.
func DefaultTemplate() Template {
	return Template{
		Name:                "default",
		GameTitle:           "{matchup}",
		GameSubtitle:        "{league_name}",
		GameDescription:     "{away_team} at {home_team}. {venue_name}{broadcast_sentence}",
		PregameTitle:        "{team_name} Pregame",
		PregameDescription:  "Up next: {matchup.next} {game_date.next} {game_time.next}.",
		PostgameTitle:       "{team_name} Postgame",
		PostgameDescription: "Final: {final_score.last}.",
		IdleTitle:           "{team_name} Channel",
		IdleDescription:     "Next game: {matchup.next} {game_date.next}.",
		OffseasonTitle:      "{team_name} Offseason",
	}
}

// DurationSettings resolve how long a game program runs.
type DurationSettings struct {
	// PerSportMinutes maps a sport name to its default game duration.
	PerSportMinutes map[string]int
	// DefaultMinutes is the global fallback.
	DefaultMinutes int
}

// Minutes resolves the duration precedence: template override, sport default,
// global default, 180.
func (d DurationSettings) Minutes(templateOverride int, sport string) int {
	if templateOverride > 0 {
		return templateOverride
	}
	if m, ok := d.PerSportMinutes[sport]; ok && m > 0 {
		return m
	}
	if d.DefaultMinutes > 0 {
		return d.DefaultMinutes
	}
	return 180
}

// MidnightCrossover selects filler classification for the day after a game
// that spans midnight with no game the next day.
type MidnightCrossover string

const (
	CrossoverPostgame MidnightCrossover = "postgame"
	CrossoverIdle     MidnightCrossover = "idle"
)

// Settings are the generation-wide user settings the EPG layer reads.
type Settings struct {
	Timezone       *time.Location
	DaysAhead      int
	Use12HourClock bool
	ShowTimezone   bool
	Durations      DurationSettings
	Crossover      MidnightCrossover
	// RecentScoreDays bounds backfilling final scores from daily scoreboards.
	RecentScoreDays int
	Workers         int
}
