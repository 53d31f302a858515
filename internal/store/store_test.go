// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/match"
	"github.com/teamcast/teamcast/internal/provider"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "teamcast.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTeamRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	team := epg.TeamConfig{
		Name: "Detroit Red Wings", League: "nhl", TeamID: "det",
		ChannelID: "redwings.teamcast", LogoURL: "http://img/det.png",
		TemplateID: 0, Enabled: true, GameDurationMinutes: 195,
	}
	id, err := s.UpsertTeam(ctx, team)
	require.NoError(t, err)
	require.NotZero(t, id)

	teams, err := s.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	team.ID = teams[0].ID
	if diff := cmp.Diff(team, teams[0]); diff != "" {
		t.Errorf("team mismatch (-want +got):\n%s", diff)
	}

	// Upsert by channel_id updates in place.
	team.Name = "Red Wings"
	team.Enabled = false
	_, err = s.UpsertTeam(ctx, team)
	require.NoError(t, err)
	teams, err = s.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "Red Wings", teams[0].Name)
	assert.False(t, teams[0].Enabled)

	require.NoError(t, s.DeleteTeam(ctx, teams[0].ID))
	teams, err = s.ListTeams(ctx)
	require.NoError(t, err)
	assert.Empty(t, teams)
}

func TestTemplateRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tpl := epg.DefaultTemplate()
	tpl.Name = "hockey"
	tpl.OffseasonEnabled = true
	tpl.GameDurationMinutes = 210
	tpl.Conditionals = []epg.ConditionalDescription{
		{Kind: epg.CondWinStreak, Value: "3", Priority: 10, Template: "{team_name} ride a {streak} streak."},
		{Kind: epg.CondAlways, Priority: 100, Template: "Next game: {matchup.next}."},
	}

	id, err := s.SaveTemplate(ctx, tpl)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := s.GetTemplate(ctx, id)
	require.NoError(t, err)
	tpl.ID = id
	if diff := cmp.Diff(tpl, got); diff != "" {
		t.Errorf("template mismatch (-want +got):\n%s", diff)
	}

	// Saving again replaces the conditionals instead of stacking them.
	tpl.Conditionals = tpl.Conditionals[:1]
	_, err = s.SaveTemplate(ctx, tpl)
	require.NoError(t, err)
	got, err = s.GetTemplate(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got.Conditionals, 1)

	all, err := s.ListTemplates(ctx)
	require.NoError(t, err)
	require.Contains(t, all, id)

	_, err = s.GetTemplate(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeagueMappingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	mappings := []provider.Mapping{
		{League: "nhl", Provider: "espn", ProviderLeagueID: "nhl", Sport: "hockey", DisplayName: "NHL", Enabled: true},
		{League: "ufc", Provider: "espn", ProviderLeagueID: "ufc", Sport: "mma", DisplayName: "UFC",
			Enabled: true, SingleEvent: true, Keywords: []string{"ufc", "fight night"}},
	}
	require.NoError(t, s.ReplaceLeagueMappings(ctx, mappings))

	got, err := s.ListLeagueMappings(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(mappings, got); diff != "" {
		t.Errorf("mappings mismatch (-want +got):\n%s", diff)
	}

	// Replace is a full swap.
	require.NoError(t, s.ReplaceLeagueMappings(ctx, mappings[:1]))
	got, err = s.ListLeagueMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAliasesAndExceptionKeywords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertAlias(ctx, match.Alias{League: "nhl", Alias: "wings", TeamID: "det"}))
	require.NoError(t, s.UpsertAlias(ctx, match.Alias{League: "nhl", Alias: "wings", TeamID: "det2"}))
	aliases, err := s.ListAliases(ctx)
	require.NoError(t, err)
	require.Len(t, aliases, 1)
	assert.Equal(t, "det2", aliases[0].TeamID, "upsert replaces the target")

	require.NoError(t, s.AddExceptionKeyword(ctx, 0, "multi view"))
	require.NoError(t, s.AddExceptionKeyword(ctx, 0, "multi view")) // idempotent
	require.NoError(t, s.AddExceptionKeyword(ctx, 7, "alt feed"))
	require.NoError(t, s.AddExceptionKeyword(ctx, 8, "other group"))

	kws, err := s.ListExceptionKeywords(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"alt feed", "multi view"}, kws, "group keywords merge with global")
}

func TestGroupRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := EventGroup{
		Name: "US Sports", Enabled: true,
		IncludeLeagues:   []string{"nhl", "nba"},
		CandidateLeagues: []string{"nhl", "nba", "ncaam"},
		IncludeRegex:     `(?i)nhl|nba`, ExcludeRegex: `(?i)replay`,
		DuplicateMode: DuplicateSeparate, CreateHoursBefore: 2,
		DeleteGraceMinutes: 90, TemplateID: 3,
	}
	id, err := s.UpsertGroup(ctx, g)
	require.NoError(t, err)

	got, err := s.GetGroup(ctx, id)
	require.NoError(t, err)
	g.ID = id
	if diff := cmp.Diff(g, got); diff != "" {
		t.Errorf("group mismatch (-want +got):\n%s", diff)
	}

	groups, err := s.ListGroups(ctx)
	require.NoError(t, err)
	assert.Len(t, groups, 1)

	_, err = s.GetGroup(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchOverridesScopedByGroup(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddMatchOverride(ctx, MatchOverride{GroupID: 0, Pattern: `^(?P<team1>.+) gegen (?P<team2>.+)$`}))
	require.NoError(t, s.AddMatchOverride(ctx, MatchOverride{GroupID: 7, League: "nhl", Pattern: `^(?P<team1>.+)--(?P<team2>.+)$`}))
	require.NoError(t, s.AddMatchOverride(ctx, MatchOverride{GroupID: 8, Pattern: `other`}))

	got, err := s.ListMatchOverrides(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2, "group overrides merge with global")
	assert.Equal(t, int64(7), got[0].GroupID, "group patterns come before global ones")
	assert.Equal(t, "nhl", got[0].League)
	assert.Equal(t, int64(0), got[1].GroupID)

	// Re-adding the same pattern updates the league in place.
	require.NoError(t, s.AddMatchOverride(ctx, MatchOverride{GroupID: 7, League: "ncaam", Pattern: `^(?P<team1>.+)--(?P<team2>.+)$`}))
	got, err = s.ListMatchOverrides(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ncaam", got[0].League)
}

func TestChannelLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	ch := ManagedChannel{
		GroupID: 1, EventID: "ev1", League: "nhl", Keyword: "",
		RemoteID: "r-100", TVGID: "tc.ev1", Name: "Rangers vs Devils",
		State: ChannelActive, EventStart: now.Add(7 * time.Hour), EventEnd: now.Add(10 * time.Hour),
		CreatedAt: now, UpdatedAt: now,
	}
	id, err := s.SaveChannel(ctx, ch)
	require.NoError(t, err)

	got, err := s.FindChannel(ctx, 1, "ev1", "")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, ChannelActive, got.State)
	assert.Equal(t, ch.EventStart, got.EventStart)
	assert.Nil(t, got.ScheduledDeleteAt)

	// The partial unique index permits one active row per (group, event,
	// keyword); a second insert must fail.
	_, err = s.SaveChannel(ctx, ch)
	assert.Error(t, err)

	// Keyword variants are distinct channels.
	alt := ch
	alt.Keyword = "multi view"
	alt.TVGID = "tc.ev1.multi-view"
	_, err = s.SaveChannel(ctx, alt)
	require.NoError(t, err)

	active, err := s.ListActiveChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	// Schedule deletion, then expire.
	deleteAt := now.Add(time.Hour)
	got.ScheduledDeleteAt = &deleteAt
	got.UpdatedAt = now
	_, err = s.SaveChannel(ctx, got)
	require.NoError(t, err)

	expired, err := s.ExpiredChannels(ctx, now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, expired)
	expired, err = s.ExpiredChannels(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, id, expired[0].ID)

	// Soft delete frees the slot for a new active row.
	got.State = ChannelDeleted
	got.DeleteReason = "event ended"
	got.UpdatedAt = now.Add(3 * time.Hour)
	_, err = s.SaveChannel(ctx, got)
	require.NoError(t, err)

	ch.CreatedAt = now.Add(4 * time.Hour)
	ch.UpdatedAt = now.Add(4 * time.Hour)
	newID, err := s.SaveChannel(ctx, ch)
	require.NoError(t, err)

	// FindChannel prefers the active row over the deleted one.
	found, err := s.FindChannel(ctx, 1, "ev1", "")
	require.NoError(t, err)
	assert.Equal(t, newID, found.ID)

	_, err = s.FindChannel(ctx, 1, "no-such-event", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChannelStreams(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	id, err := s.SaveChannel(ctx, ManagedChannel{
		GroupID: 1, EventID: "ev1", League: "nhl", TVGID: "tc.ev1", Name: "c",
		State: ChannelActive, EventStart: now, EventEnd: now,
		CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	streams := []ChannelStream{
		{ChannelID: id, StreamID: "s2", StreamName: "Feed B", Position: 1},
		{ChannelID: id, StreamID: "s1", StreamName: "Feed A", Position: 0, Pinned: true},
	}
	require.NoError(t, s.ReplaceChannelStreams(ctx, id, streams))

	got, err := s.ChannelStreams(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "s1", got[0].StreamID, "position order")
	assert.True(t, got[0].Pinned)

	require.NoError(t, s.ReplaceChannelStreams(ctx, id, streams[:1]))
	got, err = s.ChannelStreams(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestHistoryPrune(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordHistory(ctx, 1, "create", "created channel", now.Add(-48*time.Hour)))
	require.NoError(t, s.RecordHistory(ctx, 1, "update", "stream added", now))

	removed, err := s.PruneHistory(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestRunHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := s.StartRun(ctx, now.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	require.NoError(t, s.FinishRun(ctx, ids[4], now.Add(10*time.Minute), 3, 1, 120, []string{"orphan: no provider"}))

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[4], runs[0].ID, "newest first")
	require.NotNil(t, runs[0].FinishedAt)
	assert.Equal(t, 3, runs[0].ChannelsGenerated)
	assert.Equal(t, []string{"orphan: no provider"}, runs[0].Errors)
	assert.Nil(t, runs[1].FinishedAt)

	require.NoError(t, s.PruneRuns(ctx, 2))
	runs, err = s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	assert.Equal(t, "fallback", s.GetSetting(ctx, "missing", "fallback"))
	assert.Equal(t, 3, s.GetSettingInt(ctx, "days_ahead", 3))

	require.NoError(t, s.SetSetting(ctx, "days_ahead", "7"))
	assert.Equal(t, 7, s.GetSettingInt(ctx, "days_ahead", 3))

	require.NoError(t, s.SetSetting(ctx, "days_ahead", "14"))
	assert.Equal(t, "14", s.GetSetting(ctx, "days_ahead", ""))

	require.NoError(t, s.SetSetting(ctx, "clock", "12h"))
	assert.Equal(t, 0, s.GetSettingInt(ctx, "clock", 0), "non-numeric falls back")
}
