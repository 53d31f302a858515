// SPDX-License-Identifier: MIT

package epg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// fakeProvider serves canned data for EPG tests.
type fakeProvider struct {
	teams     map[string][]provider.Team
	schedules map[string][]provider.Event // team id -> schedule
	boards    map[string][]provider.Event // league -> scoreboard events (any day)
	stats     map[string]*provider.TeamStats

	mu              sync.Mutex
	scoreboardCalls int
	statsCalls      int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) SupportsLeague(league string) bool {
	_, ok := f.teams[league]
	if !ok {
		_, ok = f.boards[league]
	}
	return ok
}

func (f *fakeProvider) ListTeams(_ context.Context, league string) ([]provider.Team, error) {
	return f.teams[league], nil
}

func (f *fakeProvider) ListEvents(_ context.Context, league string, date time.Time) ([]provider.Event, error) {
	return sameDay(f.boards[league], date), nil
}

func (f *fakeProvider) TeamSchedule(_ context.Context, teamID, league string, _ int) ([]provider.Event, error) {
	if evs, ok := f.schedules[teamID+"/"+league]; ok {
		return evs, nil
	}
	return f.schedules[teamID], nil
}

func (f *fakeProvider) Scoreboard(_ context.Context, league string, date time.Time) ([]provider.Event, error) {
	f.mu.Lock()
	f.scoreboardCalls++
	f.mu.Unlock()
	return sameDay(f.boards[league], date), nil
}

func (f *fakeProvider) TeamInfo(_ context.Context, teamID, league string) (*provider.Team, error) {
	for _, t := range f.teams[league] {
		if t.ID == teamID {
			return &t, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (f *fakeProvider) TeamStats(_ context.Context, teamID, _ string) (*provider.TeamStats, error) {
	f.mu.Lock()
	f.statsCalls++
	f.mu.Unlock()
	if st, ok := f.stats[teamID]; ok {
		return st, nil
	}
	return &provider.TeamStats{}, nil
}

func (f *fakeProvider) Standings(_ context.Context, _ string) ([]provider.Standing, error) {
	return nil, nil
}

func (f *fakeProvider) ListConferences(_ context.Context, _ string) ([]provider.Conference, error) {
	return nil, nil
}

func (f *fakeProvider) ConferenceTeams(_ context.Context, _ string) ([]provider.Team, error) {
	return nil, nil
}

func sameDay(events []provider.Event, date time.Time) []provider.Event {
	var out []provider.Event
	for _, ev := range events {
		y1, m1, d1 := ev.Start.UTC().Date()
		y2, m2, d2 := date.UTC().Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			out = append(out, ev)
		}
	}
	return out
}

func testRegistry(t *testing.T, fp *fakeProvider, mappings []provider.Mapping) (*provider.Registry, *provider.LeagueMap, *teamcache.Cache) {
	t.Helper()
	registry := provider.NewRegistry()
	registry.Register(provider.Registration{
		Name: "fake", Priority: 1, Enabled: true,
		Factory: func() provider.Provider { return fp },
	})
	leagues := provider.NewLeagueMap(mappings)
	teams := teamcache.New()
	require.NoError(t, teams.Refresh(context.Background(), registry, leagues, 2))
	return registry, leagues, teams
}

func nhlMapping() provider.Mapping {
	return provider.Mapping{
		League: "nhl", Provider: "fake", ProviderLeagueID: "nhl",
		Sport: "hockey", DisplayName: "NHL", Enabled: true,
	}
}

var (
	wings  = provider.Team{ID: "det", Name: "Detroit Red Wings", ShortName: "Red Wings", Location: "Detroit"}
	hawks  = provider.Team{ID: "chi", Name: "Chicago Blackhawks", ShortName: "Blackhawks", Location: "Chicago"}
	bruins = provider.Team{ID: "bos", Name: "Boston Bruins", ShortName: "Bruins", Location: "Boston", Rank: 4}
)

func intp(n int) *int { return &n }

func finalGame(id string, start time.Time, home, away provider.Team, hs, as int) provider.Event {
	return provider.Event{
		ID: id, League: "nhl", Sport: "hockey", Start: start,
		Home: home, Away: away,
		HomeScore: intp(hs), AwayScore: intp(as),
		Status: provider.EventStatus{State: provider.StateFinal, Completed: true, Detail: "Final"},
	}
}

func upcomingGame(id string, start time.Time, home, away provider.Team) provider.Event {
	return provider.Event{
		ID: id, League: "nhl", Sport: "hockey", Start: start,
		Home: home, Away: away,
		Status: provider.EventStatus{State: provider.StatePre},
	}
}

func wingsConfig() TeamConfig {
	return TeamConfig{
		ID: 1, Name: "Detroit Red Wings", League: "nhl", TeamID: "det",
		ChannelID: "redwings.teamcast", Enabled: true,
	}
}

// baseContext builds a minimal TemplateContext without provider plumbing.
func baseContext(now time.Time) *TemplateContext {
	return &TemplateContext{
		Team:       wingsConfig(),
		LeagueName: "NHL",
		Now:        now,
		Location:   time.UTC,
	}
}
