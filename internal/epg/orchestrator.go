// SPDX-License-Identifier: MIT

package epg

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/metrics"
	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// defaultWorkers bounds the per-team worker pool.
const defaultWorkers = 100

// extendedWindowDays is the reach of the context schedule on each side.
const extendedWindowDays = 30

// recentGameLookback is how far back a still-running game pulls the EPG
// start time.
const recentGameLookback = 6 * time.Hour

// ChannelError is one failed team channel in an otherwise successful run.
type ChannelError struct {
	Team  string
	Error string
}

// RunResult is the aggregate of one generation run. Partial success is
// normal: failed channels are reported, successful ones are kept.
type RunResult struct {
	// RunID correlates log lines and API responses for one run.
	RunID             string
	Start             time.Time
	WindowEnd         time.Time
	Channels          []Channel
	Programs          []Program
	ChannelsGenerated int
	ChannelsFailed    int
	Errors            []ChannelError
	GamePrograms      int
	Elapsed           time.Duration
}

// Orchestrator drives team-channel EPG generation.
type Orchestrator struct {
	Registry *provider.Registry
	Leagues  *provider.LeagueMap
	Teams    *teamcache.Cache
	Settings Settings

	// Seed feeds the conditional-description RNG; zero means time-based.
	Seed int64

	now func() time.Time
}

// NewOrchestrator wires an orchestrator with the given collaborators.
func NewOrchestrator(registry *provider.Registry, leagues *provider.LeagueMap, teams *teamcache.Cache, settings Settings) *Orchestrator {
	return &Orchestrator{
		Registry: registry,
		Leagues:  leagues,
		Teams:    teams,
		Settings: settings,
		now:      time.Now,
	}
}

// scoreboardCache is the per-run (sport, league, day) scoreboard memo.
// Double-checked: a fast read under the lock, then a claim of the in-flight
// slot so concurrent workers for the same day share one fetch.
type scoreboardCache struct {
	mu       sync.Mutex
	entries  map[string][]provider.Event
	inflight map[string]chan struct{}
}

func newScoreboardCache() *scoreboardCache {
	return &scoreboardCache{
		entries:  map[string][]provider.Event{},
		inflight: map[string]chan struct{}{},
	}
}

func (s *scoreboardCache) get(ctx context.Context, registry *provider.Registry, league string, day time.Time) []provider.Event {
	key := league + ":" + day.Format("20060102")
	for {
		s.mu.Lock()
		if events, ok := s.entries[key]; ok {
			s.mu.Unlock()
			return events
		}
		if wait, ok := s.inflight[key]; ok {
			s.mu.Unlock()
			select {
			case <-wait:
				continue // re-check
			case <-ctx.Done():
				return nil
			}
		}
		done := make(chan struct{})
		s.inflight[key] = done
		s.mu.Unlock()

		var events []provider.Event
		if p, err := registry.GetForLeague(league); err == nil {
			if fetched, err := p.Scoreboard(ctx, league, day); err == nil {
				events = fetched
			}
		}

		s.mu.Lock()
		s.entries[key] = events
		delete(s.inflight, key)
		s.mu.Unlock()
		close(done)
		return events
	}
}

// Run generates programs for every enabled team, in parallel.
func (o *Orchestrator) Run(ctx context.Context, teams []TeamConfig, templates map[int64]Template) (*RunResult, error) {
	runID := uuid.NewString()
	logger := log.WithComponentFromContext(ctx, "orchestrator").With().Str("run_id", runID).Logger()
	began := o.now()

	loc := o.Settings.Timezone
	if loc == nil {
		loc = time.UTC
	}
	daysAhead := o.Settings.DaysAhead
	if daysAhead <= 0 {
		daysAhead = 3
	}
	workers := o.Settings.Workers
	if workers <= 0 || workers > defaultWorkers {
		workers = defaultWorkers
	}

	enabled := make([]TeamConfig, 0, len(teams))
	for _, t := range teams {
		if t.Enabled {
			enabled = append(enabled, t)
		}
	}

	// Phase 1: fetch every team's extended schedule. The run start depends
	// on whether any team has a game still plausibly running.
	schedules := make([][]provider.Event, len(enabled))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, team := range enabled {
		g.Go(func() error {
			schedules[i] = o.extendedSchedule(gctx, team)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	runStart := o.runStart(schedules, began, loc)
	windowEnd := runStart.Add(time.Duration(daysAhead) * 24 * time.Hour)

	boards := newScoreboardCache()
	builder := NewContextBuilder(o.Registry, o.Leagues, o.Teams, o.Settings)

	seed := o.Seed
	if seed == 0 {
		seed = began.UnixNano()
	}

	result := &RunResult{RunID: runID, Start: runStart, WindowEnd: windowEnd}
	var mu sync.Mutex

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, team := range enabled {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed + team.ID))
			programs, err := o.teamTimeline(gctx, team, templates, schedules[i], runStart, windowEnd, boards, builder, rng)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.ChannelsFailed++
				result.Errors = append(result.Errors, ChannelError{Team: team.Name, Error: err.Error()})
				return nil
			}
			result.ChannelsGenerated++
			result.Channels = append(result.Channels, Channel{
				ID:          team.ChannelID,
				DisplayName: []string{team.Name},
				Icon:        iconFor(team.LogoURL),
			})
			result.Programs = append(result.Programs, programs...)
			for _, p := range programs {
				if p.Kind == KindGame {
					result.GamePrograms++
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(result.Channels, func(i, j int) bool { return result.Channels[i].ID < result.Channels[j].ID })
	result.Elapsed = o.now().Sub(began)
	metrics.GenerationObserved(result.Elapsed.Seconds())

	logger.Info().
		Str("event", "run.complete").
		Int("channels", result.ChannelsGenerated).
		Int("failed", result.ChannelsFailed).
		Int("programs", len(result.Programs)).
		Int("games", result.GamePrograms).
		Dur("elapsed", result.Elapsed).
		Msg("generation run finished")
	return result, nil
}

// runStart is the top of the current hour, pulled back to the earliest start
// of any game begun within the lookback that has not gone final.
func (o *Orchestrator) runStart(schedules [][]provider.Event, now time.Time, loc *time.Location) time.Time {
	start := now.In(loc).Truncate(time.Hour)
	earliest := time.Time{}
	for _, events := range schedules {
		for _, ev := range events {
			if ev.Status.State == provider.StateFinal || ev.Start.After(now) {
				continue
			}
			if now.Sub(ev.Start) <= recentGameLookback {
				if earliest.IsZero() || ev.Start.Before(earliest) {
					earliest = ev.Start
				}
			}
		}
	}
	if !earliest.IsZero() && earliest.Before(start) {
		return earliest.In(loc)
	}
	return start
}

// extendedSchedule fetches the ±30 day schedule, merging every league the
// team belongs to. Events found through a non-configured league carry it as
// SourceLeague.
func (o *Orchestrator) extendedSchedule(ctx context.Context, team TeamConfig) []provider.Event {
	logger := log.WithComponentFromContext(ctx, "orchestrator")

	leagues := []string{team.League}
	for _, l := range o.Teams.Snapshot().LeaguesFor(team.TeamID) {
		if l != team.League {
			leagues = append(leagues, l)
		}
	}

	byID := map[string]provider.Event{}
	for _, league := range leagues {
		p, err := o.Registry.GetForLeague(league)
		if err != nil {
			continue
		}
		for _, days := range []int{extendedWindowDays, -extendedWindowDays} {
			events, err := p.TeamSchedule(ctx, team.TeamID, league, days)
			if err != nil {
				logger.Warn().Err(err).
					Str("event", "schedule.fetch_failed").
					Str("team", team.Name).
					Str("league", league).
					Msg("schedule unavailable")
				continue
			}
			for _, ev := range events {
				if league != team.League && ev.SourceLeague == "" {
					ev.SourceLeague = league
				}
				if _, seen := byID[ev.ID]; !seen {
					byID[ev.ID] = ev
				}
			}
		}
	}

	out := make([]provider.Event, 0, len(byID))
	for _, ev := range byID {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// teamTimeline produces the full sorted, gap-free program list for one team.
func (o *Orchestrator) teamTimeline(ctx context.Context, team TeamConfig, templates map[int64]Template,
	extended []provider.Event, runStart, windowEnd time.Time, boards *scoreboardCache,
	builder *ContextBuilder, rng *rand.Rand) ([]Program, error) {

	if _, err := o.Registry.GetForLeague(team.League); err != nil {
		return nil, fmt.Errorf("league %q: %w", team.League, err)
	}

	tpl, ok := templates[team.TemplateID]
	if !ok {
		tpl = DefaultTemplate()
	}

	extended = o.enrichFromScoreboards(ctx, team, extended, runStart, windowEnd, boards)

	now := o.now()
	var stats *provider.TeamStats
	if p, err := o.Registry.GetForLeague(team.League); err == nil {
		if fetched, err := p.TeamStats(ctx, team.TeamID, team.League); err == nil {
			stats = fetched
			stats.Leagues = append([]string{team.League}, diff(o.Teams.Snapshot().LeaguesFor(team.TeamID), team.League)...)
		}
	}

	sport := o.Leagues.Sport(team.League)
	durationOverride := tpl.GameDurationMinutes
	if team.GameDurationMinutes > 0 {
		durationOverride = team.GameDurationMinutes
	}
	duration := time.Duration(o.Settings.Durations.Minutes(durationOverride, sport)) * time.Minute

	var games []Program
	for i := range extended {
		ev := extended[i]
		if ev.Start.Before(runStart) || !ev.Start.Before(windowEnd) {
			continue
		}
		if ev.Status.State == provider.StateCancelled {
			continue
		}
		tc := builder.Build(ctx, team, stats, &ev, extended, now)
		desc := tpl.GameDescription
		if len(tpl.Conditionals) > 0 {
			if picked := SelectDescription(tpl.Conditionals, tc, rng); picked != "" {
				desc = picked
			}
		}
		games = append(games, Program{
			ChannelID:   team.ChannelID,
			Start:       ev.Start,
			Stop:        ev.Start.Add(duration),
			Title:       Resolve(tpl.GameTitle, tc),
			Subtitle:    Resolve(tpl.GameSubtitle, tc),
			Description: Resolve(desc, tc),
			Icon:        firstNonEmpty(tpl.ArtworkURL, team.LogoURL),
			Categories:  []string{"Sports", o.Leagues.DisplayName(team.League)},
			Kind:        KindGame,
			EventID:     ev.ID,
		})
		metrics.ProgramGenerated(string(KindGame))
	}
	sort.Slice(games, func(i, j int) bool { return games[i].Start.Before(games[j].Start) })
	games = clampOverlaps(games, windowEnd)

	filler := &Filler{
		Settings: o.Settings,
		Template: tpl,
		RNG:      rng,
		ContextAt: func(at time.Time) *TemplateContext {
			return builder.Build(ctx, team, stats, nil, extended, at)
		},
	}
	programs := append(games, filler.Fill(team.ChannelID, games, runStart, windowEnd)...)
	sort.Slice(programs, func(i, j int) bool { return programs[i].Start.Before(programs[j].Start) })
	return programs, nil
}

// enrichFromScoreboards discovers events the schedule omitted and merges
// current-day signals into known ones. Past days within the recent window
// backfill final scores.
func (o *Orchestrator) enrichFromScoreboards(ctx context.Context, team TeamConfig, extended []provider.Event,
	runStart, windowEnd time.Time, boards *scoreboardCache) []provider.Event {

	byID := map[string]int{}
	for i, ev := range extended {
		byID[ev.ID] = i
	}

	leagues := []string{team.League}
	for _, l := range o.Teams.Snapshot().LeaguesFor(team.TeamID) {
		if l != team.League {
			leagues = append(leagues, l)
		}
	}

	recentDays := o.Settings.RecentScoreDays
	if recentDays <= 0 {
		recentDays = 3
	}
	from := runStart.Add(-time.Duration(recentDays) * 24 * time.Hour)

	for day := from; day.Before(windowEnd); day = day.Add(24 * time.Hour) {
		for _, league := range leagues {
			for _, ev := range boards.get(ctx, o.Registry, league, day) {
				if !ev.Involves(team.TeamID) {
					continue
				}
				if idx, ok := byID[ev.ID]; ok {
					extended[idx] = mergeScoreboardEvent(extended[idx], ev)
					continue
				}
				if league != team.League {
					ev.SourceLeague = league
				}
				byID[ev.ID] = len(extended)
				extended = append(extended, ev)
			}
		}
	}

	sort.Slice(extended, func(i, j int) bool { return extended[i].Start.Before(extended[j].Start) })
	return extended
}

// mergeScoreboardEvent overlays scoreboard-only signals onto a schedule
// event: live scores, status, odds, expanded broadcasts, leaders.
func mergeScoreboardEvent(base, board provider.Event) provider.Event {
	base.Status = board.Status
	if board.HomeScore != nil {
		base.HomeScore = board.HomeScore
	}
	if board.AwayScore != nil {
		base.AwayScore = board.AwayScore
	}
	if board.Odds != nil {
		base.Odds = board.Odds
	}
	if len(board.Broadcasts) > len(base.Broadcasts) {
		base.Broadcasts = board.Broadcasts
	}
	if len(board.Leaders) > 0 {
		base.Leaders = board.Leaders
	}
	if board.ConferenceGame {
		base.ConferenceGame = true
	}
	return base
}

// clampOverlaps trims game programs so the timeline never overlaps: a game
// running long yields to the next scheduled start.
func clampOverlaps(games []Program, windowEnd time.Time) []Program {
	for i := range games {
		if games[i].Stop.After(windowEnd) {
			games[i].Stop = windowEnd
		}
		if i+1 < len(games) && games[i].Stop.After(games[i+1].Start) {
			games[i].Stop = games[i+1].Start
		}
	}
	out := games[:0]
	for _, g := range games {
		if g.Start.Before(g.Stop) {
			out = append(out, g)
		}
	}
	return out
}

func iconFor(url string) *Icon {
	if url == "" {
		return nil
	}
	return &Icon{Src: url}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func diff(all []string, exclude string) []string {
	var out []string
	for _, v := range all {
		if v != exclude {
			out = append(out, v)
		}
	}
	return out
}
