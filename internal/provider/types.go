// SPDX-License-Identifier: MIT

// Package provider defines the provider-neutral sports data model and the
// capability surface every upstream data provider implements.
package provider

import (
	"fmt"
	"time"
)

// Team is a provider-scoped team identity. Immutable per fetch cycle.
type Team struct {
	ID           string
	Name         string // full display name, e.g. "Detroit Lions"
	Abbreviation string
	ShortName    string // nickname, e.g. "Lions"
	Location     string // city/region, e.g. "Detroit"
	Slug         string
	LogoURL      string
	Color        string
	Rank         int // 1..25, 0 = unranked
}

// Venue describes where an event is played.
type Venue struct {
	Name   string
	City   string
	State  string
	Indoor bool
}

// GameState enumerates the lifecycle of an event.
type GameState string

const (
	StatePre        GameState = "pre"
	StateInProgress GameState = "in_progress"
	StateFinal      GameState = "final"
	StatePostponed  GameState = "postponed"
	StateCancelled  GameState = "cancelled"
)

// EventStatus carries the live state of an event.
type EventStatus struct {
	State     GameState
	Completed bool
	Detail    string // e.g. "Final", "End of 3rd"
	Period    int
}

// SeasonType classifies which part of the season an event belongs to.
type SeasonType string

const (
	SeasonPre     SeasonType = "preseason"
	SeasonRegular SeasonType = "regular"
	SeasonPost    SeasonType = "postseason"
)

// Odds is the betting block attached to an event when available.
type Odds struct {
	Details       string // e.g. "DET -3.5"
	Spread        float64
	OverUnder     float64
	HomeMoneyline int
	AwayMoneyline int
	Provider      string
}

// Event is a single game. Start is always UTC. Scores are nil iff the
// status state is pre.
type Event struct {
	ID             string
	League         string // canonical league code, e.g. "nfl", "eng.1"
	Sport          string
	Start          time.Time
	Home           Team
	Away           Team
	HomeScore      *int
	AwayScore      *int
	Status         EventStatus
	Venue          Venue
	Broadcasts     []string
	SeasonType     SeasonType
	Odds           *Odds
	ConferenceGame bool
	// Leaders are per-game statistical leaders when the provider supplies
	// them (completed games), or season leaders for scheduled games.
	Leaders []Leader
	// SourceLeague is set when the event was discovered through a league other
	// than the team's configured one (soccer multi-league merge, scoreboard
	// discovery).
	SourceLeague string
}

// Involves reports whether the event features the given team id on either side.
func (e Event) Involves(teamID string) bool {
	return e.Home.ID == teamID || e.Away.ID == teamID
}

// Opponent returns the other side for teamID, and whether teamID is home.
func (e Event) Opponent(teamID string) (Team, bool) {
	if e.Home.ID == teamID {
		return e.Away, true
	}
	return e.Home, false
}

// Record is a win/loss line.
type Record struct {
	Wins       int
	Losses     int
	Ties       int
	WinPercent float64
	Summary    string // e.g. "10-4" or "10-4-1"
}

// Leader is a statistical leader line (top scorer, passer, ...).
type Leader struct {
	Category   string // "points", "passing", "rushing", "receiving", "goals", ...
	PlayerName string
	Value      string // display value, e.g. "312 YDS"
}

// TeamStats is the cached per-(team, league) season snapshot.
// Invariant: HomeRecord.Wins + AwayRecord.Wins <= Record.Wins because
// neutral-site games count toward neither split.
type TeamStats struct {
	Record         Record
	Streak         int // signed: + wins, - losses, 0 none
	PPG            float64
	PAPG           float64
	HomeRecord     Record
	AwayRecord     Record
	DivisionRecord Record
	PlayoffSeed    int
	GamesBack      float64
	Rank           int
	ConferenceName string
	ConferenceAbbr string
	DivisionName   string
	// Leagues lists every league the team belongs to, derived from the
	// team/league cache. First entry is the configured league.
	Leagues []string
}

// StreakDisplay renders the signed streak as "W3" / "L2" / "".
func (s TeamStats) StreakDisplay() string {
	switch {
	case s.Streak > 0:
		return fmt.Sprintf("W%d", s.Streak)
	case s.Streak < 0:
		return fmt.Sprintf("L%d", -s.Streak)
	default:
		return ""
	}
}

// Conference groups teams within a league.
type Conference struct {
	ID           string
	Name         string
	Abbreviation string
}

// Standing pairs a team with its season stats inside a standings table.
type Standing struct {
	Team  Team
	Stats TeamStats
}
