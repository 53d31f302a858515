// SPDX-License-Identifier: MIT

package tsdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/cache"
	"github.com/teamcast/teamcast/internal/provider"
)

func testLeagues() *provider.LeagueMap {
	return provider.NewLeagueMap([]provider.Mapping{
		{
			League:             "eng.1",
			Provider:           "tsdb",
			ProviderLeagueID:   "4328",
			ProviderLeagueName: "English Premier League",
			Sport:              "soccer",
			Enabled:            true,
		},
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New("testkey", testLeagues(), cache.NewMemoryCache(0), 10000, WithBaseURL(srv.URL))
	c.http = srv.Client()
	return c
}

const eventJSON = `{
	"idEvent": "1001",
	"strEvent": "Arsenal vs Chelsea",
	"strSport": "Soccer",
	"strHomeTeam": "Arsenal",
	"strAwayTeam": "Chelsea",
	"idHomeTeam": "359",
	"idAwayTeam": "363",
	"intHomeScore": "2",
	"intAwayScore": "1",
	"strTimestamp": "2026-01-10T15:00:00+00:00",
	"strVenue": "Emirates Stadium",
	"strCity": "London",
	"strStatus": "Match Finished",
	"strPostponed": "no",
	"strTVStation": "Sky Sports"
}`

func TestListEventsRoutesByLeagueName(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/testkey/eventsday.php", r.URL.Path)
		assert.Equal(t, "2026-01-10", r.URL.Query().Get("d"))
		assert.Equal(t, "English Premier League", r.URL.Query().Get("l"))
		fmt.Fprintf(w, `{"events": [%s, {"idEvent": "nohome"}]}`, eventJSON)
	})

	date := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	events, err := c.ListEvents(context.Background(), "eng.1", date)
	require.NoError(t, err)
	require.Len(t, events, 1) // malformed event dropped

	ev := events[0]
	assert.Equal(t, "1001", ev.ID)
	assert.Equal(t, "soccer", ev.Sport)
	assert.Equal(t, time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, "359", ev.Home.ID)
	assert.Equal(t, "Arsenal", ev.Home.Name)
	assert.Equal(t, provider.StateFinal, ev.Status.State)
	require.NotNil(t, ev.HomeScore)
	assert.Equal(t, 2, *ev.HomeScore)
	assert.Equal(t, []string{"Sky Sports"}, ev.Broadcasts)
	assert.Equal(t, "Emirates Stadium", ev.Venue.Name)

	// Scoreboard is the same daily list, so it rides the cache.
	_, err = c.Scoreboard(context.Background(), "eng.1", date)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestTeamScheduleMergesNextAndLast(t *testing.T) {
	now := time.Now().UTC()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var ev wireEvent
		require.NoError(t, json.Unmarshal([]byte(eventJSON), &ev))
		switch r.URL.Path {
		case "/testkey/eventsnext.php":
			assert.Equal(t, "359", r.URL.Query().Get("id"))
			ev.ID = "next1"
			ev.Timestamp = now.AddDate(0, 0, 2).Format(time.RFC3339)
			ev.Status = ""
			json.NewEncoder(w).Encode(map[string]any{"events": []wireEvent{ev}})
		case "/testkey/eventslast.php":
			ev.ID = "last1"
			ev.Timestamp = now.AddDate(0, 0, -3).Format(time.RFC3339)
			json.NewEncoder(w).Encode(map[string]any{"results": []wireEvent{ev}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	events, err := c.TeamSchedule(context.Background(), "359", "eng.1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "last1", events[0].ID)
	assert.Equal(t, "next1", events[1].ID)

	// Forward window keeps only the upcoming fixture.
	ahead, err := c.TeamSchedule(context.Background(), "359", "eng.1", 7)
	require.NoError(t, err)
	require.Len(t, ahead, 1)
	assert.Equal(t, "next1", ahead[0].ID)
}

func TestTeamScheduleToleratesMissingLastResults(t *testing.T) {
	now := time.Now().UTC()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "eventslast") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var ev wireEvent
		require.NoError(t, json.Unmarshal([]byte(eventJSON), &ev))
		ev.Timestamp = now.AddDate(0, 0, 1).Format(time.RFC3339)
		json.NewEncoder(w).Encode(map[string]any{"events": []wireEvent{ev}})
	})
	c.retries = 0

	events, err := c.TeamSchedule(context.Background(), "359", "eng.1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestStandingsAndTeamStats(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/testkey/lookuptable.php", r.URL.Path)
		assert.Equal(t, "4328", r.URL.Query().Get("l"))
		assert.NotEmpty(t, r.URL.Query().Get("s"))
		fmt.Fprint(w, `{"table": [
			{"idTeam": "359", "strTeam": "Arsenal", "intWin": "15", "intLoss": "3", "intDraw": "4"},
			{"idTeam": "363", "strTeam": "Chelsea", "intWin": "12", "intLoss": "6", "intDraw": "4"}
		]}`)
	})

	standings, err := c.Standings(context.Background(), "eng.1")
	require.NoError(t, err)
	require.Len(t, standings, 2)
	assert.Equal(t, "15-3-4", standings[0].Stats.Record.Summary)
	assert.Equal(t, 1, standings[0].Stats.PlayoffSeed)
	assert.Equal(t, 2, standings[1].Stats.PlayoffSeed)

	stats, err := c.TeamStats(context.Background(), "363", "eng.1")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Record.Wins)

	_, err = c.TeamStats(context.Background(), "999", "eng.1")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestListTeamsRequiresLeagueName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "English Premier League", r.URL.Query().Get("l"))
		fmt.Fprint(w, `{"teams": [{"idTeam": "359", "strTeam": "Arsenal", "strBadge": "http://x/ars.png"}]}`)
	})

	teams, err := c.ListTeams(context.Background(), "eng.1")
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "Arsenal", teams[0].Name)
	assert.Equal(t, "http://x/ars.png", teams[0].LogoURL)

	c.leagues.Replace([]provider.Mapping{
		{League: "eng.1", Provider: "tsdb", ProviderLeagueID: "4328", Enabled: true},
	})
	_, err = c.ListTeams(context.Background(), "eng.1")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestConferencesUnsupported(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.ListConferences(context.Background(), "eng.1")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
	_, err = c.ConferenceTeams(context.Background(), "x")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestProjectStatusTable(t *testing.T) {
	tests := []struct {
		name      string
		status    string
		postponed string
		want      provider.GameState
	}{
		{"not started", "Not Started", "no", provider.StatePre},
		{"empty", "", "no", provider.StatePre},
		{"abbreviated pre", "NS", "no", provider.StatePre},
		{"full time", "Match Finished", "no", provider.StateFinal},
		{"ft", "FT", "no", provider.StateFinal},
		{"extra time final", "AET", "no", provider.StateFinal},
		{"cancelled", "Cancelled", "no", provider.StateCancelled},
		{"postponed flag wins", "Not Started", "yes", provider.StatePostponed},
		{"anything else is live", "2nd Half", "no", provider.StateInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := projectStatus(wireEvent{Status: tt.status, Postponed: tt.postponed})
			assert.Equal(t, tt.want, st.State)
		})
	}
}

func TestParseStart(t *testing.T) {
	got, ok := parseStart(wireEvent{Timestamp: "2026-01-10T15:00:00+01:00"})
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 10, 14, 0, 0, 0, time.UTC), got)

	got, ok = parseStart(wireEvent{Date: "2026-01-10", Time: "19:30:00"})
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 10, 19, 30, 0, 0, time.UTC), got)

	got, ok = parseStart(wireEvent{Date: "2026-01-10"})
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), got)

	_, ok = parseStart(wireEvent{})
	assert.False(t, ok)
}

func TestAtoiPtr(t *testing.T) {
	v, ok := atoiPtr("3")
	require.True(t, ok)
	assert.Equal(t, 3, *v)

	_, ok = atoiPtr("")
	assert.False(t, ok)
	_, ok = atoiPtr("null")
	assert.False(t, ok)
	_, ok = atoiPtr("-1")
	assert.False(t, ok)
}

func TestCurrentSeason(t *testing.T) {
	assert.Equal(t, "2025-2026", currentSeason(time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-2027", currentSeason(time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)))
}

func TestSearchTeams(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/testkey/searchteams.php", r.URL.Path)
		assert.Equal(t, "arsenal", r.URL.Query().Get("t"))
		fmt.Fprint(w, `{"teams": [{"idTeam": "359", "strTeam": "Arsenal"}]}`)
	})

	teams, err := c.SearchTeams(context.Background(), "arsenal")
	require.NoError(t, err)
	require.Len(t, teams, 1)

	// Queries differing only by case share a cache slot.
	_, err = c.SearchTeams(context.Background(), "ARSENAL")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
