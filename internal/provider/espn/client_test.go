// SPDX-License-Identifier: MIT

package espn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/cache"
	"github.com/teamcast/teamcast/internal/provider"
)

func testLeagues() *provider.LeagueMap {
	return provider.NewLeagueMap([]provider.Mapping{
		{League: "nhl", Provider: "espn", ProviderLeagueID: "nhl", Sport: "hockey", DisplayName: "NHL", Enabled: true},
	})
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(testLeagues(), cache.NewMemoryCache(0), 10000,
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
}

func TestScoreboardFetchesAndCaches(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/hockey/nhl/scoreboard", r.URL.Path)
		assert.Equal(t, "20260110", r.URL.Query().Get("dates"))
		fmt.Fprintf(w, `{"events": [%s, {"id": "bad"}]}`, scoreboardEventJSON)
	})

	date := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	events, err := c.Scoreboard(context.Background(), "nhl", date)
	require.NoError(t, err)
	require.Len(t, events, 1) // the malformed event is dropped
	assert.Equal(t, "401", events[0].ID)
	assert.Equal(t, provider.StateFinal, events[0].Status.State)

	// Second call for the same day is served from cache.
	_, err = c.Scoreboard(context.Background(), "nhl", date)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestScoreboardUnknownLeague(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	assert.False(t, c.SupportsLeague("khl"))
	_, err := c.Scoreboard(context.Background(), "khl", time.Now())
	assert.ErrorIs(t, err, provider.ErrNoProvider)
}

func TestNotFoundIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	c.retries = 0

	_, err := c.TeamInfo(context.Background(), "nope", "nhl")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrNotFound)
	var apiErr *provider.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "espn", apiErr.Provider)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestServerErrorExhaustsRetries(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})
	c.retries = 0

	_, err := c.ListTeams(context.Background(), "nhl")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUpstreamError)
	assert.Contains(t, err.Error(), "upstream exploded")
	assert.Equal(t, 1, calls)
}

func TestBadStatusDoesNotRetry(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTeapot)
	})

	_, err := c.ListTeams(context.Background(), "nhl")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrUpstreamBadResponse)
	assert.Equal(t, 1, calls)
}

func TestMalformedBodyIsBadResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"events": [`)
	})

	_, err := c.Scoreboard(context.Background(), "nhl", time.Now())
	assert.ErrorIs(t, err, provider.ErrUpstreamBadResponse)
}

func TestTeamScheduleWindow(t *testing.T) {
	now := time.Now().UTC()
	schedule := func(offsets ...int) string {
		out := `{"events": [`
		for i, d := range offsets {
			if i > 0 {
				out += ","
			}
			out += fmt.Sprintf(`{
				"id": "ev%d",
				"date": %q,
				"competitions": [{"competitors": [
					{"homeAway": "home", "team": {"id": "det", "displayName": "Detroit Red Wings"}},
					{"homeAway": "away", "team": {"id": "chi", "displayName": "Chicago Blackhawks"}}
				]}]
			}`, i, now.AddDate(0, 0, d).Format(time.RFC3339))
		}
		return out + `]}`
	}

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hockey/nhl/teams/det/schedule", r.URL.Path)
		fmt.Fprint(w, schedule(-10, 2, 20))
	})

	all, err := c.TeamSchedule(context.Background(), "det", "nhl", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	ahead, err := c.TeamSchedule(context.Background(), "det", "nhl", 5)
	require.NoError(t, err)
	require.Len(t, ahead, 1)
	assert.Equal(t, "ev1", ahead[0].ID)

	back, err := c.TeamSchedule(context.Background(), "det", "nhl", -15)
	require.NoError(t, err)
	assert.Len(t, back, 2) // the +20d event is beyond the mirror window
}

func TestTeamStatsProjection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hockey/nhl/teams/det", r.URL.Path)
		fmt.Fprint(w, `{"team": {
			"id": "det", "displayName": "Detroit Red Wings",
			"rank": 8,
			"standingSummary": "1st in Atlantic",
			"groups": {"id": "1", "name": "Atlantic Division", "shortName": "Atlantic"},
			"record": {"items": [
				{"type": "total", "summary": "30-10-4", "stats": [
					{"name": "wins", "value": 30},
					{"name": "losses", "value": 10},
					{"name": "streak", "value": 4},
					{"name": "avgPointsFor", "value": 3.4},
					{"name": "avgPointsAgainst", "value": 2.5},
					{"name": "playoffSeed", "value": 1}
				]},
				{"type": "home", "summary": "18-3-1"},
				{"type": "road", "summary": "12-7-3"}
			]}
		}}`)
	})

	stats, err := c.TeamStats(context.Background(), "det", "nhl")
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Rank)
	assert.Equal(t, "Atlantic Division", stats.ConferenceName)
	assert.Equal(t, "30-10-4", stats.Record.Summary)
	assert.Equal(t, 30, stats.Record.Wins)
	assert.Equal(t, 4, stats.Streak)
	assert.Equal(t, 3.4, stats.PPG)
	assert.Equal(t, 2.5, stats.PAPG)
	assert.Equal(t, 1, stats.PlayoffSeed)
	assert.Equal(t, "18-3-1", stats.HomeRecord.Summary)
	assert.Equal(t, "12-7-3", stats.AwayRecord.Summary)

	// TeamInfo rides the same cached detail fetch.
	team, err := c.TeamInfo(context.Background(), "det", "nhl")
	require.NoError(t, err)
	assert.Equal(t, "Detroit Red Wings", team.Name)
	assert.Equal(t, 8, team.Rank)
}

func TestListTeams(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/hockey/nhl/teams", r.URL.Path)
		fmt.Fprint(w, `{"sports": [{"leagues": [{"teams": [
			{"team": {"id": "det", "displayName": "Detroit Red Wings"}},
			{"team": {"id": "chi", "displayName": "Chicago Blackhawks"}}
		]}]}]}`)
	})

	teams, err := c.ListTeams(context.Background(), "nhl")
	require.NoError(t, err)
	require.Len(t, teams, 2)
	assert.Equal(t, "det", teams[0].ID)
}

func TestStandingsProjection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"children": [{
			"name": "Eastern Conference", "abbreviation": "East",
			"standings": {"entries": [{
				"team": {"id": "det", "displayName": "Detroit Red Wings"},
				"stats": [
					{"name": "wins", "value": 30},
					{"name": "losses", "value": 10},
					{"name": "overall", "summary": "30-10-4"},
					{"name": "playoffSeed", "value": 2}
				]
			}]}
		}]}`)
	})

	standings, err := c.Standings(context.Background(), "nhl")
	require.NoError(t, err)
	require.Len(t, standings, 1)
	st := standings[0]
	assert.Equal(t, "det", st.Team.ID)
	assert.Equal(t, "Eastern Conference", st.Stats.ConferenceName)
	assert.Equal(t, "30-10-4", st.Stats.Record.Summary)
	assert.Equal(t, 2, st.Stats.PlayoffSeed)
}

func TestConferenceTeamsIDShape(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("groups"))
		fmt.Fprint(w, `{"sports": [{"leagues": [{"teams": [{"team": {"id": "det", "displayName": "Detroit Red Wings"}}]}]}]}`)
	})

	teams, err := c.ConferenceTeams(context.Background(), "nhl/1")
	require.NoError(t, err)
	assert.Len(t, teams, 1)

	_, err = c.ConferenceTeams(context.Background(), "missing-slash")
	assert.ErrorIs(t, err, provider.ErrUnsupported)
}

func TestContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := c.ListTeams(ctx, "nhl")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || errors.Is(err, provider.ErrUpstreamError))
}
