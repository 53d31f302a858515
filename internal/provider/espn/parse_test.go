// SPDX-License-Identifier: MIT

package espn

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/provider"
)

func TestFlexScoreShapes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *int
	}{
		{"number", `3`, intp(3)},
		{"float truncates", `3.7`, intp(3)},
		{"quoted string", `"5"`, intp(5)},
		{"empty string", `""`, nil},
		{"null", `null`, nil},
		{"object value", `{"value": 4.0}`, intp(4)},
		{"object display value", `{"displayValue": "7"}`, intp(7)},
		{"unknown shape", `{"weird": true}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s flexScore
			require.NoError(t, json.Unmarshal([]byte(tt.in), &s))
			if tt.want == nil {
				assert.Nil(t, s.Value)
			} else {
				require.NotNil(t, s.Value)
				assert.Equal(t, *tt.want, *s.Value)
			}
		})
	}
}

func TestFlexBroadcastsShapes(t *testing.T) {
	in := `["ESPN", {"names": ["TNT", "ABC"]}, {"name": "BSN"}, {"media": {"shortName": "NHLN"}}, {"other": 1}]`
	var b flexBroadcasts
	require.NoError(t, json.Unmarshal([]byte(in), &b))
	assert.Equal(t, flexBroadcasts{"ESPN", "TNT", "ABC", "BSN", "NHLN"}, b)

	// A non-array payload leaves the list empty rather than failing.
	var empty flexBroadcasts
	require.NoError(t, json.Unmarshal([]byte(`"ESPN"`), &empty))
	assert.Empty(t, empty)
}

func TestFlexRecordsShapes(t *testing.T) {
	var list flexRecords
	require.NoError(t, json.Unmarshal([]byte(`[{"type": "total", "summary": "10-4"}]`), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "10-4", list[0].Summary)

	var single flexRecords
	require.NoError(t, json.Unmarshal([]byte(`{"type": "total", "summary": "3-2"}`), &single))
	require.Len(t, single, 1)
	assert.Equal(t, "3-2", single[0].Summary)
}

func TestProjectState(t *testing.T) {
	status := func(name, state string, completed bool) wireStatus {
		var s wireStatus
		s.Type.Name = name
		s.Type.State = state
		s.Type.Completed = completed
		return s
	}
	tests := []struct {
		name string
		in   wireStatus
		want provider.GameState
	}{
		{"scheduled", status("STATUS_SCHEDULED", "pre", false), provider.StatePre},
		{"live", status("STATUS_IN_PROGRESS", "in", false), provider.StateInProgress},
		{"final", status("STATUS_FINAL", "post", true), provider.StateFinal},
		{"postponed wins over state", status("STATUS_POSTPONED", "pre", false), provider.StatePostponed},
		{"canceled US spelling", status("STATUS_CANCELED", "pre", false), provider.StateCancelled},
		{"cancelled UK spelling", status("STATUS_CANCELLED", "pre", false), provider.StateCancelled},
		{"unknown state completed", status("STATUS_WHATEVER", "", true), provider.StateFinal},
		{"unknown state not completed", status("STATUS_WHATEVER", "", false), provider.StatePre},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, projectState(tt.in).State)
		})
	}
}

func TestProjectStateDetailFallback(t *testing.T) {
	var s wireStatus
	s.Type.ShortDetail = "7:00 PM EST"
	assert.Equal(t, "7:00 PM EST", projectState(s).Detail)

	s.Type.Description = "Scheduled"
	assert.Equal(t, "Scheduled", projectState(s).Detail)
}

func TestProjectTeamFallbacks(t *testing.T) {
	var w wireTeam
	require.NoError(t, json.Unmarshal([]byte(`{
		"id": "det", "location": "Detroit", "name": "Red Wings",
		"shortDisplayName": "Red Wings",
		"logos": [{"href": "http://x/det.png"}]
	}`), &w))
	got := projectTeam(w)
	assert.Equal(t, "Detroit Red Wings", got.Name)
	assert.Equal(t, "Red Wings", got.ShortName)
	assert.Equal(t, "http://x/det.png", got.LogoURL)
}

const scoreboardEventJSON = `{
  "id": "401",
  "date": "2026-01-10T19:00Z",
  "season": {"type": 2},
  "status": {"type": {"name": "STATUS_FINAL", "state": "post", "completed": true, "description": "Final"}},
  "competitions": [{
    "conferenceCompetition": true,
    "venue": {"fullName": "Little Caesars Arena", "address": {"city": "Detroit", "state": "MI"}, "indoor": true},
    "broadcasts": [{"names": ["ESPN"]}],
    "odds": [null, {"details": "DET -3.5", "spread": -3.5, "overUnder": 6.5, "provider": {"name": "consensus"}, "homeTeamOdds": {"moneyLine": -160}}],
    "competitors": [
      {"homeAway": "home", "score": "4", "curatedRank": {"current": 8},
       "team": {"id": "det", "displayName": "Detroit Red Wings", "shortDisplayName": "Red Wings"}},
      {"homeAway": "away", "score": 2, "curatedRank": {"current": 99},
       "team": {"id": "chi", "displayName": "Chicago Blackhawks", "shortDisplayName": "Blackhawks"}}
    ]
  }]
}`

func TestProjectEvent(t *testing.T) {
	var w wireEvent
	require.NoError(t, json.Unmarshal([]byte(scoreboardEventJSON), &w))

	ev, ok := projectEvent(w, "nhl", "hockey")
	require.True(t, ok)

	assert.Equal(t, "401", ev.ID)
	assert.Equal(t, "nhl", ev.League)
	assert.Equal(t, "hockey", ev.Sport)
	assert.Equal(t, time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, provider.SeasonRegular, ev.SeasonType)
	assert.Equal(t, provider.StateFinal, ev.Status.State)
	assert.True(t, ev.Status.Completed)

	assert.Equal(t, "det", ev.Home.ID)
	assert.Equal(t, "chi", ev.Away.ID)
	require.NotNil(t, ev.HomeScore)
	assert.Equal(t, 4, *ev.HomeScore)
	require.NotNil(t, ev.AwayScore)
	assert.Equal(t, 2, *ev.AwayScore)

	// Ranks outside 1..25 are noise from some feeds.
	assert.Equal(t, 8, ev.Home.Rank)
	assert.Equal(t, 0, ev.Away.Rank)

	assert.Equal(t, "Little Caesars Arena", ev.Venue.Name)
	assert.True(t, ev.Venue.Indoor)
	assert.True(t, ev.ConferenceGame)
	assert.Equal(t, []string{"ESPN"}, ev.Broadcasts)

	require.NotNil(t, ev.Odds)
	assert.Equal(t, "DET -3.5", ev.Odds.Details)
	assert.Equal(t, -3.5, ev.Odds.Spread)
	assert.Equal(t, 6.5, ev.Odds.OverUnder)
	assert.Equal(t, -160, ev.Odds.HomeMoneyline)
}

func TestProjectEventSuppressesPregameScores(t *testing.T) {
	var w wireEvent
	require.NoError(t, json.Unmarshal([]byte(scoreboardEventJSON), &w))
	w.Status.Type.Name = "STATUS_SCHEDULED"
	w.Status.Type.State = "pre"
	w.Status.Type.Completed = false

	ev, ok := projectEvent(w, "nhl", "hockey")
	require.True(t, ok)
	assert.Equal(t, provider.StatePre, ev.Status.State)
	assert.Nil(t, ev.HomeScore)
	assert.Nil(t, ev.AwayScore)
}

func TestProjectEventRejectsMalformed(t *testing.T) {
	_, ok := projectEvent(wireEvent{}, "nhl", "hockey")
	assert.False(t, ok)

	var w wireEvent
	require.NoError(t, json.Unmarshal([]byte(scoreboardEventJSON), &w))
	w.ID = ""
	_, ok = projectEvent(w, "nhl", "hockey")
	assert.False(t, ok)

	require.NoError(t, json.Unmarshal([]byte(scoreboardEventJSON), &w))
	w.Date = "not a timestamp"
	_, ok = projectEvent(w, "nhl", "hockey")
	assert.False(t, ok)

	// One side missing is unusable for a matchup.
	require.NoError(t, json.Unmarshal([]byte(scoreboardEventJSON), &w))
	w.Competitions[0].Competitors = w.Competitions[0].Competitors[:1]
	_, ok = projectEvent(w, "nhl", "hockey")
	assert.False(t, ok)
}

func TestProjectOddsSkipsEmptyEntries(t *testing.T) {
	raw := []json.RawMessage{
		json.RawMessage(`null`),
		json.RawMessage(`{}`),
		json.RawMessage(`{"details": "EVEN"}`),
	}
	o := projectOdds(raw)
	require.NotNil(t, o)
	assert.Equal(t, "EVEN", o.Details)

	assert.Nil(t, projectOdds([]json.RawMessage{json.RawMessage(`null`)}))
	assert.Nil(t, projectOdds(nil))
}

func TestProjectRecord(t *testing.T) {
	var w wireRecord
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "total", "summary": "30-10-4",
		"stats": [
			{"name": "wins", "value": 30},
			{"name": "losses", "value": 10},
			{"name": "ties", "value": 4},
			{"name": "winPercent", "value": 0.727}
		]
	}`), &w))
	rec := projectRecord(w)
	assert.Equal(t, provider.Record{Summary: "30-10-4", Wins: 30, Losses: 10, Ties: 4, WinPercent: 0.727}, rec)
}

func TestParseESPNTime(t *testing.T) {
	got, err := parseESPNTime("2026-01-10T19:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC), got)

	got, err = parseESPNTime("2026-01-10T19:00:00-05:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC), got.UTC())

	_, err = parseESPNTime("tomorrow-ish")
	assert.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))
	// An HTTP-date in the past yields no wait.
	assert.Equal(t, time.Duration(0), parseRetryAfter("Mon, 02 Jan 2006 15:04:05 GMT"))
}

func intp(v int) *int { return &v }
