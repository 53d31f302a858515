// SPDX-License-Identifier: MIT

package epg

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// RecordLine is a win/loss(/draw) tally over some slice of games.
type RecordLine struct {
	Wins   int
	Draws  int
	Losses int
	// HasDraws selects the W-D-L rendering; no-draw sports render W-L.
	HasDraws bool
}

// Display renders "10-4" or "10-2-4" depending on HasDraws.
func (r RecordLine) Display() string {
	if r.HasDraws {
		return strconv.Itoa(r.Wins) + "-" + strconv.Itoa(r.Draws) + "-" + strconv.Itoa(r.Losses)
	}
	return strconv.Itoa(r.Wins) + "-" + strconv.Itoa(r.Losses)
}

// Streaks are the team's current run of results, derived from the extended
// schedule. Signed: positive = winning, negative = losing; draws break both.
type Streaks struct {
	Overall int
	Home    int
	Away    int
	Last5   RecordLine
	Last10  RecordLine
}

// HeadToHead summarizes completed games against one opponent this season.
type HeadToHead struct {
	Games        int
	TeamWins     int
	OpponentWins int
	Draws        int
	// Most recent meeting.
	LastResult    string // "W", "L" or "D" from the team's perspective
	LastTeamScore int
	LastOppScore  int
	LastVenue     string
	LastCity      string
	LastDaysSince int
}

// GameContext is everything the variable extractors need about one game from
// the configured team's point of view.
type GameContext struct {
	Event         provider.Event
	IsHome        bool
	Opponent      provider.Team
	OpponentStats *provider.TeamStats
	H2H           *HeadToHead
	Streaks       *Streaks
	Leaders       []provider.Leader
	SourceLeague  string
}

// TeamScore returns the configured team's score in this game, if present.
func (g *GameContext) TeamScore() *int {
	if g.IsHome {
		return g.Event.HomeScore
	}
	return g.Event.AwayScore
}

// OpponentScore returns the opponent's score, if present.
func (g *GameContext) OpponentScore() *int {
	if g.IsHome {
		return g.Event.AwayScore
	}
	return g.Event.HomeScore
}

// TemplateContext is the full input to template resolution for one program.
type TemplateContext struct {
	Team       TeamConfig
	Stats      *provider.TeamStats
	Current    *GameContext
	Next       *GameContext
	Last       *GameContext
	LeagueName string
	Standing   *provider.Standing

	Now          time.Time
	Location     *time.Location
	Use12Hour    bool
	ShowTimezone bool
}

// ContextBuilder assembles TemplateContexts for one generation run. Opponent
// stats are memoized so each unique opponent costs one provider call per run.
type ContextBuilder struct {
	registry *provider.Registry
	leagues  *provider.LeagueMap
	teams    *teamcache.Cache
	settings Settings

	mu       sync.Mutex
	oppStats map[string]*provider.TeamStats // league + "/" + team id
}

// NewContextBuilder builds a fresh builder; use one per generation run.
func NewContextBuilder(registry *provider.Registry, leagues *provider.LeagueMap, teams *teamcache.Cache, settings Settings) *ContextBuilder {
	return &ContextBuilder{
		registry: registry,
		leagues:  leagues,
		teams:    teams,
		settings: settings,
		oppStats: map[string]*provider.TeamStats{},
	}
}

// Build assembles the context for one event of a team channel. extended is
// the ±30 day schedule used for next/last and derived signals; it must be
// sorted by start time.
func (b *ContextBuilder) Build(ctx context.Context, team TeamConfig, stats *provider.TeamStats, event *provider.Event, extended []provider.Event, now time.Time) *TemplateContext {
	tc := &TemplateContext{
		Team:         team,
		Stats:        stats,
		LeagueName:   b.leagues.DisplayName(team.League),
		Now:          now,
		Location:     b.settings.Timezone,
		Use12Hour:    b.settings.Use12HourClock,
		ShowTimezone: b.settings.ShowTimezone,
	}
	if tc.Location == nil {
		tc.Location = time.UTC
	}

	if event != nil {
		tc.Current = b.gameContext(ctx, team, *event, extended, now)
	}
	if next := nextGame(extended, team.TeamID, now, event); next != nil {
		tc.Next = b.gameContext(ctx, team, *next, extended, now)
	}
	if last := lastGame(extended, team.TeamID, now, event); last != nil {
		tc.Last = b.gameContext(ctx, team, *last, extended, now)
	}
	return tc
}

func (b *ContextBuilder) gameContext(ctx context.Context, team TeamConfig, ev provider.Event, extended []provider.Event, now time.Time) *GameContext {
	gc := &GameContext{Event: ev, SourceLeague: ev.SourceLeague}
	gc.IsHome = ev.Home.ID == team.TeamID
	if gc.IsHome {
		gc.Opponent = ev.Away
	} else {
		gc.Opponent = ev.Home
	}
	gc.OpponentStats = b.opponentStats(ctx, team.League, gc.Opponent.ID)
	gc.H2H = headToHead(extended, team.TeamID, gc.Opponent.ID, now)
	gc.Streaks = computeStreaks(extended, team.TeamID, hasDraws(b.leagues.Sport(team.League)))
	gc.Leaders = ev.Leaders
	return gc
}

// opponentStats fetches season stats for an opponent, once per run.
func (b *ContextBuilder) opponentStats(ctx context.Context, league, teamID string) *provider.TeamStats {
	if teamID == "" {
		return nil
	}
	key := league + "/" + teamID
	b.mu.Lock()
	if st, ok := b.oppStats[key]; ok {
		b.mu.Unlock()
		return st
	}
	b.mu.Unlock()

	var st *provider.TeamStats
	if p, err := b.registry.GetForLeague(league); err == nil {
		if fetched, err := p.TeamStats(ctx, teamID, league); err == nil {
			st = fetched
		}
	}

	b.mu.Lock()
	b.oppStats[key] = st // negative results memoized too
	b.mu.Unlock()
	return st
}

// nextGame returns the soonest event starting after now, excluding current.
func nextGame(extended []provider.Event, teamID string, now time.Time, current *provider.Event) *provider.Event {
	for i := range extended {
		ev := &extended[i]
		if !ev.Involves(teamID) || !ev.Start.After(now) {
			continue
		}
		if current != nil && ev.ID == current.ID {
			continue
		}
		return ev
	}
	return nil
}

// lastGame returns the most recently started event, final or not. Variables
// that assume a final guard themselves.
func lastGame(extended []provider.Event, teamID string, now time.Time, current *provider.Event) *provider.Event {
	for i := len(extended) - 1; i >= 0; i-- {
		ev := &extended[i]
		if !ev.Involves(teamID) || ev.Start.After(now) {
			continue
		}
		if current != nil && ev.ID == current.ID {
			continue
		}
		return ev
	}
	return nil
}

// headToHead tallies completed games against the opponent in the extended
// window.
func headToHead(extended []provider.Event, teamID, oppID string, now time.Time) *HeadToHead {
	h := &HeadToHead{}
	var last *provider.Event
	for i := range extended {
		ev := &extended[i]
		if !ev.Status.Completed || !ev.Involves(teamID) || !ev.Involves(oppID) {
			continue
		}
		if ev.HomeScore == nil || ev.AwayScore == nil {
			continue
		}
		h.Games++
		ts, os := scoresFor(ev, teamID)
		switch {
		case ts > os:
			h.TeamWins++
		case ts < os:
			h.OpponentWins++
		default:
			h.Draws++
		}
		if last == nil || ev.Start.After(last.Start) {
			last = ev
		}
	}
	if h.Games == 0 {
		return nil
	}
	ts, os := scoresFor(last, teamID)
	switch {
	case ts > os:
		h.LastResult = "W"
	case ts < os:
		h.LastResult = "L"
	default:
		h.LastResult = "D"
	}
	h.LastTeamScore, h.LastOppScore = ts, os
	h.LastVenue = last.Venue.Name
	h.LastCity = last.Venue.City
	h.LastDaysSince = int(now.Sub(last.Start).Hours() / 24)
	return h
}

// computeStreaks walks completed games newest-first. Draws break streaks.
func computeStreaks(extended []provider.Event, teamID string, draws bool) *Streaks {
	completed := make([]provider.Event, 0, len(extended))
	for _, ev := range extended {
		if ev.Status.Completed && ev.Involves(teamID) && ev.HomeScore != nil && ev.AwayScore != nil {
			completed = append(completed, ev)
		}
	}
	if len(completed) == 0 {
		return nil
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].Start.After(completed[j].Start)
	})

	s := &Streaks{}
	s.Overall = runLength(completed, teamID, func(provider.Event) bool { return true })
	s.Home = runLength(completed, teamID, func(ev provider.Event) bool { return ev.Home.ID == teamID })
	s.Away = runLength(completed, teamID, func(ev provider.Event) bool { return ev.Away.ID == teamID })
	s.Last5 = tally(completed, teamID, 5, draws)
	s.Last10 = tally(completed, teamID, 10, draws)
	return s
}

// runLength is the signed current streak over games passing the filter.
func runLength(newestFirst []provider.Event, teamID string, keep func(provider.Event) bool) int {
	streak := 0
	for _, ev := range newestFirst {
		if !keep(ev) {
			continue
		}
		ts, os := scoresFor(&ev, teamID)
		switch {
		case ts > os:
			if streak < 0 {
				return streak
			}
			streak++
		case ts < os:
			if streak > 0 {
				return streak
			}
			streak--
		default:
			return streak
		}
	}
	return streak
}

func tally(newestFirst []provider.Event, teamID string, n int, draws bool) RecordLine {
	r := RecordLine{HasDraws: draws}
	for i, ev := range newestFirst {
		if i >= n {
			break
		}
		ts, os := scoresFor(&ev, teamID)
		switch {
		case ts > os:
			r.Wins++
		case ts < os:
			r.Losses++
		default:
			r.Draws++
		}
	}
	return r
}

func scoresFor(ev *provider.Event, teamID string) (team, opp int) {
	hs, as := 0, 0
	if ev.HomeScore != nil {
		hs = *ev.HomeScore
	}
	if ev.AwayScore != nil {
		as = *ev.AwayScore
	}
	if ev.Home.ID == teamID {
		return hs, as
	}
	return as, hs
}

func hasDraws(sport string) bool {
	return sport == "soccer"
}
