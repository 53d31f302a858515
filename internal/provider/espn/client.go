// SPDX-License-Identifier: MIT

package espn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teamcast/teamcast/internal/cache"
	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/metrics"
	"github.com/teamcast/teamcast/internal/provider"
)

const (
	defaultBaseURL  = "https://site.api.espn.com/apis/site/v2/sports"
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 3
	backoffStep     = 2 * time.Second  // linear backoff between retries
	reactiveDefault = 30 * time.Second // 429 wait when no Retry-After is given
	maxErrorBody    = 512
)

// Client talks to the ESPN site API. All calls go through the sliding-window
// limiter and the tiered TTL cache; concurrent cache misses for the same key
// collapse via the loader's single flight.
type Client struct {
	base    string
	http    *http.Client
	leagues *provider.LeagueMap
	limiter *provider.RateLimiter
	loader  *cache.Loader
	logger  zerolog.Logger
	tz      *time.Location
	retries int
}

// Option customises the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimezone sets the location used for TTL tiering of dated fetches.
func WithTimezone(loc *time.Location) Option {
	return func(c *Client) { c.tz = loc }
}

// New creates an ESPN client. requestsPerMinute bounds the sliding window;
// store caches responses with the tiered TTL policy.
func New(leagues *provider.LeagueMap, store cache.Cache, requestsPerMinute int, opts ...Option) *Client {
	c := &Client{
		base: defaultBaseURL,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		leagues: leagues,
		limiter: provider.NewRateLimiter(requestsPerMinute),
		loader:  cache.NewLoader(store),
		logger:  log.WithComponent("espn"),
		tz:      time.UTC,
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "espn" }

// LimiterStats exposes the rate limiter snapshot for diagnostics.
func (c *Client) LimiterStats() provider.RateLimiterStats { return c.limiter.Stats() }

func (c *Client) SupportsLeague(league string) bool {
	return c.leagues.Supported(league, c.Name())
}

// path returns the sport/league API path segment for a canonical league code.
func (c *Client) path(league string) (string, error) {
	mp, ok := c.leagues.ForProvider(league, c.Name())
	if !ok {
		return "", fmt.Errorf("league %q: %w", league, provider.ErrNoProvider)
	}
	return mp.Sport + "/" + mp.ProviderLeagueID, nil
}

func (c *Client) sport(league string) string {
	return c.leagues.Sport(league)
}

// get fetches a URL with the preemptive limiter, bounded retries with linear
// backoff, and reactive 429 handling. Rate-limit waits never fail the call.
func (c *Client) get(ctx context.Context, op, rawURL string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, time.Duration(attempt)*backoffStep); err != nil {
				return err
			}
		}
		if err := c.limiter.Acquire(ctx); err != nil {
			return err
		}
		metrics.APICall(c.Name(), op)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("%s: build request: %w", op, err)
		}
		res, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &provider.APIError{Sentinel: provider.ErrUpstreamUnavailable, Provider: c.Name(), Operation: op, Err: err}
			continue
		}

		switch {
		case res.StatusCode == http.StatusTooManyRequests:
			retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
			drain(res.Body)
			if err := c.limiter.Backoff(ctx, retryAfter, reactiveDefault); err != nil {
				return err
			}
			// Rate-limit waits are not failures and do not consume retries.
			attempt--
			continue
		case res.StatusCode == http.StatusNotFound:
			drain(res.Body)
			return &provider.APIError{Sentinel: provider.ErrNotFound, Provider: c.Name(), Operation: op, Status: res.StatusCode}
		case res.StatusCode >= 500:
			body := readSnippet(res.Body)
			lastErr = &provider.APIError{Sentinel: provider.ErrUpstreamError, Provider: c.Name(), Operation: op, Status: res.StatusCode, Body: body}
			continue
		case res.StatusCode != http.StatusOK:
			body := readSnippet(res.Body)
			return &provider.APIError{Sentinel: provider.ErrUpstreamBadResponse, Provider: c.Name(), Operation: op, Status: res.StatusCode, Body: body}
		}

		err = json.NewDecoder(res.Body).Decode(out)
		drain(res.Body)
		if err != nil {
			return &provider.APIError{Sentinel: provider.ErrUpstreamBadResponse, Provider: c.Name(), Operation: op, Err: err}
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return &provider.APIError{Sentinel: provider.ErrUpstreamUnavailable, Provider: c.Name(), Operation: op}
}

func (c *Client) ListEvents(ctx context.Context, league string, date time.Time) ([]provider.Event, error) {
	return c.Scoreboard(ctx, league, date)
}

func (c *Client) Scoreboard(ctx context.Context, league string, date time.Time) ([]provider.Event, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	day := date.In(c.tz).Format("20060102")
	rawURL := fmt.Sprintf("%s/%s/scoreboard?dates=%s&limit=300", c.base, path, day)
	key := "espn:scoreboard:" + league + ":" + day
	ttl := cache.TieredTTL(date, time.Now(), c.tz)

	v, err := c.loader.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		var wire wireScoreboard
		if err := c.get(ctx, "scoreboard", rawURL, &wire); err != nil {
			return nil, err
		}
		events := make([]provider.Event, 0, len(wire.Events))
		for _, we := range wire.Events {
			if ev, ok := projectEvent(we, league, c.sport(league)); ok {
				events = append(events, ev)
			} else {
				c.logger.Warn().
					Str("event", "scoreboard.skip_malformed").
					Str("league", league).
					Str("id", we.ID).
					Msg("skipping malformed event")
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Event), nil
}

func (c *Client) TeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]provider.Event, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/teams/%s/schedule", c.base, path, url.PathEscape(teamID))
	key := "espn:schedule:" + league + ":" + teamID
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLNextEvents, func(ctx context.Context) (any, error) {
		var wire wireSchedule
		if err := c.get(ctx, "team_schedule", rawURL, &wire); err != nil {
			return nil, err
		}
		events := make([]provider.Event, 0, len(wire.Events))
		for _, we := range wire.Events {
			if ev, ok := projectEvent(we, league, c.sport(league)); ok {
				events = append(events, ev)
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	events := v.([]provider.Event)
	if daysAhead == 0 {
		return events, nil
	}
	// Window filter relative to today; negative daysAhead reaches back only.
	now := time.Now().UTC()
	var lo, hi time.Time
	if daysAhead > 0 {
		lo = now.Add(-24 * time.Hour)
		hi = now.AddDate(0, 0, daysAhead)
	} else {
		lo = now.AddDate(0, 0, daysAhead)
		hi = now.AddDate(0, 0, -daysAhead)
	}
	out := make([]provider.Event, 0, len(events))
	for _, ev := range events {
		if ev.Start.Before(lo) || ev.Start.After(hi) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (c *Client) TeamInfo(ctx context.Context, teamID, league string) (*provider.Team, error) {
	detail, err := c.teamDetail(ctx, teamID, league)
	if err != nil {
		return nil, err
	}
	team := projectTeam(detail.Team.wireTeam)
	if detail.Team.Rank >= 1 && detail.Team.Rank <= 25 {
		team.Rank = detail.Team.Rank
	}
	return &team, nil
}

func (c *Client) TeamStats(ctx context.Context, teamID, league string) (*provider.TeamStats, error) {
	detail, err := c.teamDetail(ctx, teamID, league)
	if err != nil {
		return nil, err
	}
	stats := &provider.TeamStats{
		ConferenceName: detail.Team.Groups.Name,
		ConferenceAbbr: detail.Team.Groups.ShortName,
	}
	if detail.Team.Rank >= 1 && detail.Team.Rank <= 25 {
		stats.Rank = detail.Team.Rank
	}
	for _, rec := range detail.Team.Record.Items {
		projected := projectRecord(rec)
		switch rec.Type {
		case "total":
			stats.Record = projected
			if v, ok := rec.stat("streak"); ok {
				stats.Streak = int(v)
			}
			if v, ok := rec.stat("avgPointsFor"); ok {
				stats.PPG = v
			}
			if v, ok := rec.stat("avgPointsAgainst"); ok {
				stats.PAPG = v
			}
			if v, ok := rec.stat("playoffSeed"); ok {
				stats.PlayoffSeed = int(v)
			}
			if v, ok := rec.stat("gamesBehind"); ok {
				stats.GamesBack = v
			}
			if v, ok := rec.stat("divisionWinPercent"); ok {
				_ = v // division splits come from the division record below
			}
		case "home":
			stats.HomeRecord = projected
		case "road", "away":
			stats.AwayRecord = projected
		case "vsdiv", "division":
			stats.DivisionRecord = projected
		}
	}
	if stats.Record.Summary == "" {
		stats.Record.Summary = detail.Team.StandingSummary
	}
	return stats, nil
}

func (c *Client) teamDetail(ctx context.Context, teamID, league string) (*wireTeamDetail, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/teams/%s", c.base, path, url.PathEscape(teamID))
	key := "espn:team:" + league + ":" + teamID
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeamStats, func(ctx context.Context) (any, error) {
		var wire wireTeamDetail
		if err := c.get(ctx, "team_info", rawURL, &wire); err != nil {
			return nil, err
		}
		return &wire, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*wireTeamDetail), nil
}

func (c *Client) Standings(ctx context.Context, league string) ([]provider.Standing, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/standings", c.base, path)
	key := "espn:standings:" + league
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeamStats, func(ctx context.Context) (any, error) {
		var wire wireStandings
		if err := c.get(ctx, "standings", rawURL, &wire); err != nil {
			return nil, err
		}
		var out []provider.Standing
		appendEntries := func(confName, confAbbr string, entries []wireStandingEntry) {
			for _, e := range entries {
				st := provider.Standing{Team: projectTeam(e.Team)}
				st.Stats.ConferenceName = confName
				st.Stats.ConferenceAbbr = confAbbr
				for _, s := range e.Stats {
					switch s.Name {
					case "wins":
						st.Stats.Record.Wins = int(s.Value)
					case "losses":
						st.Stats.Record.Losses = int(s.Value)
					case "ties":
						st.Stats.Record.Ties = int(s.Value)
					case "winPercent":
						st.Stats.Record.WinPercent = s.Value
					case "streak":
						st.Stats.Streak = int(s.Value)
					case "playoffSeed":
						st.Stats.PlayoffSeed = int(s.Value)
					case "gamesBehind":
						st.Stats.GamesBack = s.Value
					case "avgPointsFor":
						st.Stats.PPG = s.Value
					case "avgPointsAgainst":
						st.Stats.PAPG = s.Value
					}
					if s.Name == "overall" && s.Summary != "" {
						st.Stats.Record.Summary = s.Summary
					}
				}
				if st.Stats.Record.Summary == "" {
					st.Stats.Record.Summary = recordSummary(st.Stats.Record)
				}
				out = append(out, st)
			}
		}
		appendEntries("", "", wire.Standings.Entries)
		for _, child := range wire.Children {
			appendEntries(child.Name, child.Abbreviation, child.Standings.Entries)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Standing), nil
}

func (c *Client) ListTeams(ctx context.Context, league string) ([]provider.Team, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/teams?limit=1000", c.base, path)
	key := "espn:teams:" + league
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeams, func(ctx context.Context) (any, error) {
		var wire wireTeamList
		if err := c.get(ctx, "list_teams", rawURL, &wire); err != nil {
			return nil, err
		}
		var out []provider.Team
		for _, sport := range wire.Sports {
			for _, lg := range sport.Leagues {
				for _, t := range lg.Teams {
					out = append(out, projectTeam(t.Team))
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Team), nil
}

func (c *Client) ListConferences(ctx context.Context, league string) ([]provider.Conference, error) {
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/groups", c.base, path)
	key := "espn:conferences:" + league
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeams, func(ctx context.Context) (any, error) {
		var wire wireGroups
		if err := c.get(ctx, "list_conferences", rawURL, &wire); err != nil {
			return nil, err
		}
		var out []provider.Conference
		for _, g := range wire.Groups {
			out = append(out, provider.Conference{ID: g.ID, Name: g.Name, Abbreviation: g.Abbreviation})
		}
		for _, g := range wire.Children {
			out = append(out, provider.Conference{ID: g.ID, Name: g.Name, Abbreviation: g.Abbreviation})
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Conference), nil
}

func (c *Client) ConferenceTeams(ctx context.Context, conferenceID string) ([]provider.Team, error) {
	// Conference team listings are league-scoped on this API; the conference id
	// carries "league/groupID".
	league, group, ok := strings.Cut(conferenceID, "/")
	if !ok {
		return nil, fmt.Errorf("conference id %q: %w", conferenceID, provider.ErrUnsupported)
	}
	path, err := c.path(league)
	if err != nil {
		return nil, err
	}
	rawURL := fmt.Sprintf("%s/%s/teams?groups=%s&limit=1000", c.base, path, url.QueryEscape(group))
	key := "espn:confteams:" + conferenceID
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeams, func(ctx context.Context) (any, error) {
		var wire wireTeamList
		if err := c.get(ctx, "conference_teams", rawURL, &wire); err != nil {
			return nil, err
		}
		var out []provider.Team
		for _, sport := range wire.Sports {
			for _, lg := range sport.Leagues {
				for _, t := range lg.Teams {
					out = append(out, projectTeam(t.Team))
				}
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Team), nil
}

func recordSummary(r provider.Record) string {
	if r.Ties > 0 {
		return fmt.Sprintf("%d-%d-%d", r.Wins, r.Losses, r.Ties)
	}
	return fmt.Sprintf("%d-%d", r.Wins, r.Losses)
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}

func readSnippet(body io.ReadCloser) string {
	b, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
	_ = body.Close()
	return strings.TrimSpace(string(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
