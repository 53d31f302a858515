// SPDX-License-Identifier: MIT

package epg

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/provider"
)

func newTestOrchestrator(t *testing.T, fp *fakeProvider, mappings []provider.Mapping, settings Settings) *Orchestrator {
	t.Helper()
	registry, leagues, teams := testRegistry(t, fp, mappings)
	o := NewOrchestrator(registry, leagues, teams, settings)
	o.Seed = 1
	o.now = func() time.Time { return testNow }
	return o
}

func defaultRunSettings() Settings {
	return Settings{
		Timezone:        time.UTC,
		DaysAhead:       2,
		RecentScoreDays: 1,
		Workers:         4,
	}
}

func TestRunGeneratesGapFreeTimeline(t *testing.T) {
	tonight := upcomingGame("g1", testNow.Add(7*time.Hour), wings, hawks)
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{"det": {tonight}},
		boards:    map[string][]provider.Event{"nhl": {tonight}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig()}, nil)
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1, res.ChannelsGenerated)
	assert.Equal(t, 0, res.ChannelsFailed)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, "redwings.teamcast", res.Channels[0].ID)

	// No game in the lookback: the run starts at the top of the hour.
	assert.Equal(t, testNow.Truncate(time.Hour), res.Start)
	assert.Equal(t, res.Start.Add(48*time.Hour), res.WindowEnd)

	require.NotEmpty(t, res.Programs)
	assert.Equal(t, res.Start, res.Programs[0].Start)
	for i := 1; i < len(res.Programs); i++ {
		assert.True(t, res.Programs[i].Start.Equal(res.Programs[i-1].Stop),
			"timeline gap at %v", res.Programs[i].Start)
	}
	assert.Equal(t, res.WindowEnd, res.Programs[len(res.Programs)-1].Stop)

	require.Equal(t, 1, res.GamePrograms)
	var game *Program
	for i := range res.Programs {
		if res.Programs[i].Kind == KindGame {
			game = &res.Programs[i]
		}
	}
	require.NotNil(t, game)
	assert.Equal(t, "g1", game.EventID)
	assert.Equal(t, tonight.Start, game.Start)
	assert.Equal(t, tonight.Start.Add(180*time.Minute), game.Stop)
	assert.Equal(t, "Chicago Blackhawks at Detroit Red Wings", game.Title)
	assert.Equal(t, []string{"Sports", "NHL"}, game.Categories)
}

func TestRunStartPulledBackByLiveGame(t *testing.T) {
	live := upcomingGame("g1", testNow.Add(-3*time.Hour), wings, hawks)
	live.Status.State = provider.StateInProgress
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{"det": {live}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig()}, nil)
	require.NoError(t, err)
	assert.Equal(t, live.Start, res.Start, "live game pulls the window back to its start")
	assert.Equal(t, 1, res.GamePrograms)
}

func TestRunStartIgnoresFinishedAndStaleGames(t *testing.T) {
	schedules := [][]provider.Event{{
		finalGame("f1", testNow.Add(-2*time.Hour), wings, hawks, 3, 1),
		func() provider.Event {
			ev := upcomingGame("old", testNow.Add(-8*time.Hour), wings, hawks)
			ev.Status.State = provider.StateInProgress
			return ev
		}(),
	}}
	o := &Orchestrator{now: func() time.Time { return testNow }}
	got := o.runStart(schedules, testNow, time.UTC)
	assert.Equal(t, testNow.Truncate(time.Hour), got)
}

func TestRunDiscoversScoreboardOnlyEvents(t *testing.T) {
	// The schedule missed tomorrow's game entirely; the daily scoreboard
	// has it.
	surprise := upcomingGame("sb1", testNow.Add(26*time.Hour), hawks, wings)
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{"det": {}},
		boards:    map[string][]provider.Event{"nhl": {surprise}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig()}, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.GamePrograms)
	for _, p := range res.Programs {
		if p.Kind == KindGame {
			assert.Equal(t, "sb1", p.EventID)
		}
	}
}

func TestRunSharesScoreboardFetches(t *testing.T) {
	tonight := upcomingGame("g1", testNow.Add(7*time.Hour), wings, hawks)
	fp := &fakeProvider{
		teams: map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{
			"det": {tonight},
			"chi": {tonight},
		},
		boards: map[string][]provider.Event{"nhl": {tonight}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	hawksChannel := TeamConfig{
		ID: 2, Name: "Chicago Blackhawks", League: "nhl", TeamID: "chi",
		ChannelID: "blackhawks.teamcast", Enabled: true,
	}
	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig(), hawksChannel}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.ChannelsGenerated)

	// One day window plus the one-day score lookback: three unique days, one
	// fetch each regardless of how many channels asked.
	assert.Equal(t, 3, fp.scoreboardCalls)
}

func TestRunSkipsCancelledAndDisabled(t *testing.T) {
	cancelled := upcomingGame("c1", testNow.Add(7*time.Hour), wings, hawks)
	cancelled.Status.State = provider.StateCancelled
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{"det": {cancelled}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	disabled := wingsConfig()
	disabled.ID = 9
	disabled.ChannelID = "disabled.teamcast"
	disabled.Enabled = false

	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig(), disabled}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChannelsGenerated)
	assert.Equal(t, 0, res.GamePrograms)
	for _, p := range res.Programs {
		assert.NotEqual(t, "disabled.teamcast", p.ChannelID)
		assert.NotEqual(t, KindGame, p.Kind)
	}
}

func TestRunUsesAssignedTemplate(t *testing.T) {
	tonight := upcomingGame("g1", testNow.Add(7*time.Hour), wings, hawks)
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings, hawks}},
		schedules: map[string][]provider.Event{"det": {tonight}},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	team := wingsConfig()
	team.TemplateID = 7
	tpl := DefaultTemplate()
	tpl.ID = 7
	tpl.GameTitle = "Hockey Night: {opponent}"
	tpl.GameDurationMinutes = 240

	res, err := o.Run(context.Background(), []TeamConfig{team}, map[int64]Template{7: tpl})
	require.NoError(t, err)
	for _, p := range res.Programs {
		if p.Kind == KindGame {
			assert.Equal(t, "Hockey Night: Chicago Blackhawks", p.Title)
			assert.Equal(t, 4*time.Hour, p.Stop.Sub(p.Start))
		}
	}
	require.Equal(t, 1, res.GamePrograms)
}

func TestRunReportsFailedChannels(t *testing.T) {
	fp := &fakeProvider{
		teams:     map[string][]provider.Team{"nhl": {wings}},
		schedules: map[string][]provider.Event{},
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping()}, defaultRunSettings())

	orphan := TeamConfig{
		ID: 3, Name: "Orphan FC", League: "nowhere", TeamID: "xx",
		ChannelID: "orphan.teamcast", Enabled: true,
	}
	res, err := o.Run(context.Background(), []TeamConfig{wingsConfig(), orphan}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChannelsGenerated)
	assert.Equal(t, 1, res.ChannelsFailed)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "Orphan FC", res.Errors[0].Team)
}

func TestExtendedScheduleMergesLeagues(t *testing.T) {
	domestic := upcomingGame("d1", testNow.Add(24*time.Hour), wings, hawks)
	cup := upcomingGame("cup1", testNow.Add(48*time.Hour), hawks, wings)
	cup.League = "cup"
	fp := &fakeProvider{
		teams: map[string][]provider.Team{
			"nhl": {wings, hawks},
			"cup": {wings, hawks},
		},
		schedules: map[string][]provider.Event{
			"det/nhl": {domestic},
			"det/cup": {cup},
		},
	}
	cupMapping := provider.Mapping{
		League: "cup", Provider: "fake", ProviderLeagueID: "cup",
		Sport: "hockey", DisplayName: "Winter Cup", Enabled: true,
	}
	o := newTestOrchestrator(t, fp, []provider.Mapping{nhlMapping(), cupMapping}, defaultRunSettings())

	events := o.extendedSchedule(context.Background(), wingsConfig())
	require.Len(t, events, 2)
	assert.Equal(t, "d1", events[0].ID)
	assert.Equal(t, "", events[0].SourceLeague)
	assert.Equal(t, "cup1", events[1].ID)
	assert.Equal(t, "cup", events[1].SourceLeague, "cross-league events carry their origin")
}

func TestMergeScoreboardEvent(t *testing.T) {
	base := upcomingGame("g1", testNow, wings, hawks)
	base.Broadcasts = []string{"ESPN"}

	board := base
	board.Status = provider.EventStatus{State: provider.StateFinal, Completed: true}
	board.HomeScore, board.AwayScore = intp(4), intp(2)
	board.Broadcasts = []string{"ESPN", "TNT"}
	board.ConferenceGame = true

	merged := mergeScoreboardEvent(base, board)
	assert.Equal(t, provider.StateFinal, merged.Status.State)
	assert.Equal(t, 4, *merged.HomeScore)
	assert.Equal(t, []string{"ESPN", "TNT"}, merged.Broadcasts)
	assert.True(t, merged.ConferenceGame)

	// A scoreboard with no scores leaves existing ones alone.
	scored := base
	scored.HomeScore, scored.AwayScore = intp(1), intp(1)
	merged = mergeScoreboardEvent(scored, upcomingGame("g1", testNow, wings, hawks))
	assert.Equal(t, 1, *merged.HomeScore)
}

func TestClampOverlaps(t *testing.T) {
	start := testNow
	windowEnd := start.Add(10 * time.Hour)
	games := []Program{
		{ChannelID: "c", Start: start, Stop: start.Add(3 * time.Hour)},
		{ChannelID: "c", Start: start.Add(2 * time.Hour), Stop: start.Add(5 * time.Hour)},
		{ChannelID: "c", Start: start.Add(9 * time.Hour), Stop: start.Add(12 * time.Hour)},
	}

	out := clampOverlaps(games, windowEnd)
	require.Len(t, out, 3)
	assert.Equal(t, start.Add(2*time.Hour), out[0].Stop, "first game yields to the second")
	assert.Equal(t, windowEnd, out[2].Stop, "last game clamps to the window")

	// A game fully swallowed by its successor is dropped.
	games = []Program{
		{ChannelID: "c", Start: start, Stop: start.Add(time.Hour)},
		{ChannelID: "c", Start: start, Stop: start.Add(2 * time.Hour)},
	}
	out = clampOverlaps(games, windowEnd)
	require.Len(t, out, 1)
	assert.Equal(t, start.Add(2*time.Hour), out[0].Stop)
}

func TestScoreboardCacheSingleFlight(t *testing.T) {
	fp := &fakeProvider{
		teams:  map[string][]provider.Team{"nhl": {wings}},
		boards: map[string][]provider.Event{"nhl": {upcomingGame("g1", testNow, wings, hawks)}},
	}
	registry, _, _ := testRegistry(t, fp, []provider.Mapping{nhlMapping()})

	sc := newScoreboardCache()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			sc.get(context.Background(), registry, "nhl", testNow)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	assert.Equal(t, 1, fp.scoreboardCalls)

	// A different day is a different key.
	sc.get(context.Background(), registry, "nhl", testNow.Add(24*time.Hour))
	assert.Equal(t, 2, fp.scoreboardCalls)
}
