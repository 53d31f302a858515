// SPDX-License-Identifier: MIT

package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// fakeProvider serves canned rosters and schedules for matcher tests.
type fakeProvider struct {
	name      string
	teams     map[string][]provider.Team  // league -> roster
	events    map[string][]provider.Event // league -> all events
	schedules map[string][]provider.Event // team id -> schedule
}

func (f *fakeProvider) Name() string {
	if f.name == "" {
		return "fake"
	}
	return f.name
}

func (f *fakeProvider) SupportsLeague(league string) bool {
	_, ok := f.teams[league]
	if !ok {
		_, ok = f.events[league]
	}
	return ok
}

func (f *fakeProvider) ListTeams(_ context.Context, league string) ([]provider.Team, error) {
	return f.teams[league], nil
}

func (f *fakeProvider) ListEvents(_ context.Context, league string, date time.Time) ([]provider.Event, error) {
	var out []provider.Event
	for _, ev := range f.events[league] {
		y1, m1, d1 := ev.Start.UTC().Date()
		y2, m2, d2 := date.UTC().Date()
		if y1 == y2 && m1 == m2 && d1 == d2 {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeProvider) TeamSchedule(_ context.Context, teamID, league string, _ int) ([]provider.Event, error) {
	return f.schedules[teamID], nil
}

func (f *fakeProvider) Scoreboard(ctx context.Context, league string, date time.Time) ([]provider.Event, error) {
	return f.ListEvents(ctx, league, date)
}

func (f *fakeProvider) TeamInfo(_ context.Context, teamID, league string) (*provider.Team, error) {
	for _, t := range f.teams[league] {
		if t.ID == teamID {
			return &t, nil
		}
	}
	return nil, provider.ErrNotFound
}

func (f *fakeProvider) TeamStats(_ context.Context, _, _ string) (*provider.TeamStats, error) {
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

// testFixture wires a fake provider behind a registry, league map and a
// refreshed team cache.
type testFixture struct {
	Provider *fakeProvider
	Registry *provider.Registry
	Leagues  *provider.LeagueMap
	Teams    *teamcache.Cache
}

func newFixture(t *testing.T, mappings []provider.Mapping, fp *fakeProvider) *testFixture {
	t.Helper()
	registry := provider.NewRegistry()
	registry.Register(provider.Registration{
		Name:     fp.Name(),
		Priority: 1,
		Enabled:  true,
		Factory:  func() provider.Provider { return fp },
	})
	leagues := provider.NewLeagueMap(mappings)
	teams := teamcache.New()
	require.NoError(t, teams.Refresh(context.Background(), registry, leagues, 2))
	return &testFixture{Provider: fp, Registry: registry, Leagues: leagues, Teams: teams}
}

func fakeMapping(league, sport string, fp *fakeProvider) provider.Mapping {
	return provider.Mapping{
		League:           league,
		Provider:         fp.Name(),
		ProviderLeagueID: league,
		Sport:            sport,
		Enabled:          true,
	}
}

func nhlTeams() []provider.Team {
	return []provider.Team{
		{ID: "nyr", Name: "New York Rangers", ShortName: "Rangers", Abbreviation: "NYR", Location: "New York"},
		{ID: "njd", Name: "New Jersey Devils", ShortName: "Devils", Abbreviation: "NJD", Location: "New Jersey"},
		{ID: "det", Name: "Detroit Red Wings", ShortName: "Red Wings", Abbreviation: "DET", Location: "Detroit"},
		{ID: "min", Name: "Minnesota Wild", ShortName: "Wild", Abbreviation: "MIN", Location: "St. Paul"},
	}
}

func ncaafTeams() []provider.Team {
	return []provider.Team{
		{ID: "umd", Name: "Maryland Terrapins", ShortName: "Terrapins", Abbreviation: "MD", Location: "Maryland"},
		{ID: "army", Name: "Army Black Knights", ShortName: "Black Knights", Abbreviation: "ARMY", Location: "West Point"},
		{ID: "navy", Name: "Navy Midshipmen", ShortName: "Midshipmen", Abbreviation: "NAVY", Location: "Annapolis"},
	}
}

func game(id, league string, start time.Time, home, away provider.Team) provider.Event {
	return provider.Event{
		ID:     id,
		League: league,
		Start:  start,
		Home:   home,
		Away:   away,
		Status: provider.EventStatus{State: provider.StatePre},
	}
}
