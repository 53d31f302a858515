// SPDX-License-Identifier: MIT

// Package tsdb implements the provider capability set against TheSportsDB
// API. It is the fallback provider for leagues the primary source does not
// carry; several list operations route by league name rather than id.
package tsdb

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
	defaultBaseURL  = "https://www.thesportsdb.com/api/v1/json"
	defaultTimeout  = 10 * time.Second
	defaultRetries  = 3
	backoffStep     = 2 * time.Second
	reactiveDefault = 60 * time.Second
)

// Client talks to TheSportsDB. The free tier is aggressively rate limited, so
// the sliding-window budget should stay low (30/min by default).
type Client struct {
	base    string
	apiKey  string
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

// WithTimezone sets the location used for TTL tiering of dated fetches.
func WithTimezone(loc *time.Location) Option {
	return func(c *Client) { c.tz = loc }
}

// New creates a TheSportsDB client using the given API key.
func New(apiKey string, leagues *provider.LeagueMap, store cache.Cache, requestsPerMinute int, opts ...Option) *Client {
	c := &Client{
		base:   defaultBaseURL,
		apiKey: apiKey,
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		leagues: leagues,
		limiter: provider.NewRateLimiter(requestsPerMinute),
		loader:  cache.NewLoader(store),
		logger:  log.WithComponent("tsdb"),
		tz:      time.UTC,
		retries: defaultRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "tsdb" }

// LimiterStats exposes the rate limiter snapshot for diagnostics.
func (c *Client) LimiterStats() provider.RateLimiterStats { return c.limiter.Stats() }

func (c *Client) SupportsLeague(league string) bool {
	return c.leagues.Supported(league, c.Name())
}

func (c *Client) mapping(league string) (provider.Mapping, error) {
	mp, ok := c.leagues.ForProvider(league, c.Name())
	if !ok {
		return provider.Mapping{}, fmt.Errorf("league %q: %w", league, provider.ErrNoProvider)
	}
	return mp, nil
}

func (c *Client) endpoint(name string, params url.Values) string {
	u := c.base + "/" + url.PathEscape(c.apiKey) + "/" + name
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

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
			_ = res.Body.Close()
			if err := c.limiter.Backoff(ctx, retryAfter, reactiveDefault); err != nil {
				return err
			}
			attempt--
			continue
		case res.StatusCode == http.StatusNotFound:
			_ = res.Body.Close()
			return &provider.APIError{Sentinel: provider.ErrNotFound, Provider: c.Name(), Operation: op, Status: res.StatusCode}
		case res.StatusCode >= 500:
			_ = res.Body.Close()
			lastErr = &provider.APIError{Sentinel: provider.ErrUpstreamError, Provider: c.Name(), Operation: op, Status: res.StatusCode}
			continue
		case res.StatusCode != http.StatusOK:
			_ = res.Body.Close()
			return &provider.APIError{Sentinel: provider.ErrUpstreamBadResponse, Provider: c.Name(), Operation: op, Status: res.StatusCode}
		}

		err = json.NewDecoder(io.LimitReader(res.Body, 8<<20)).Decode(out)
		_ = res.Body.Close()
		if err != nil {
			return &provider.APIError{Sentinel: provider.ErrUpstreamBadResponse, Provider: c.Name(), Operation: op, Err: err}
		}
		return nil
	}
	return lastErr
}

func (c *Client) ListEvents(ctx context.Context, league string, date time.Time) ([]provider.Event, error) {
	mp, err := c.mapping(league)
	if err != nil {
		return nil, err
	}
	day := date.In(c.tz).Format("2006-01-02")
	params := url.Values{"d": {day}}
	// This endpoint routes by league *name*, not id.
	if mp.ProviderLeagueName != "" {
		params.Set("l", mp.ProviderLeagueName)
	} else {
		params.Set("id", mp.ProviderLeagueID)
	}
	rawURL := c.endpoint("eventsday.php", params)
	key := "tsdb:events:" + league + ":" + day
	ttl := cache.TieredTTL(date, time.Now(), c.tz)

	v, err := c.loader.GetOrFetch(ctx, key, ttl, func(ctx context.Context) (any, error) {
		var wire wireEvents
		if err := c.get(ctx, "list_events", rawURL, &wire); err != nil {
			return nil, err
		}
		return c.projectEvents(wire.Events, league), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Event), nil
}

func (c *Client) Scoreboard(ctx context.Context, league string, date time.Time) ([]provider.Event, error) {
	// TheSportsDB has no distinct scoreboard; the daily event list carries
	// whatever live data exists.
	return c.ListEvents(ctx, league, date)
}

func (c *Client) TeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]provider.Event, error) {
	key := "tsdb:schedule:" + league + ":" + teamID
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLNextEvents, func(ctx context.Context) (any, error) {
		var next, last wireEvents
		if err := c.get(ctx, "team_next", c.endpoint("eventsnext.php", url.Values{"id": {teamID}}), &next); err != nil {
			return nil, err
		}
		if err := c.get(ctx, "team_last", c.endpoint("eventslast.php", url.Values{"id": {teamID}}), &last); err != nil {
			// Upcoming events alone still let the caller build a timeline.
			c.logger.Warn().Err(err).Str("event", "schedule.partial").Str("team", teamID).Msg("last events unavailable")
		}
		events := c.projectEvents(append(last.Results, next.Events...), league)
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	events := v.([]provider.Event)
	if daysAhead == 0 {
		return events, nil
	}
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
	key := "tsdb:team:" + teamID
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeamSearch, func(ctx context.Context) (any, error) {
		var wire wireTeams
		if err := c.get(ctx, "team_info", c.endpoint("lookupteam.php", url.Values{"id": {teamID}}), &wire); err != nil {
			return nil, err
		}
		if len(wire.Teams) == 0 {
			return nil, &provider.APIError{Sentinel: provider.ErrNotFound, Provider: c.Name(), Operation: "team_info"}
		}
		t := projectTeam(wire.Teams[0])
		return &t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*provider.Team), nil
}

func (c *Client) TeamStats(ctx context.Context, teamID, league string) (*provider.TeamStats, error) {
	standings, err := c.Standings(ctx, league)
	if err != nil {
		return nil, err
	}
	for _, s := range standings {
		if s.Team.ID == teamID {
			stats := s.Stats
			return &stats, nil
		}
	}
	return nil, &provider.APIError{Sentinel: provider.ErrNotFound, Provider: c.Name(), Operation: "team_stats"}
}

func (c *Client) Standings(ctx context.Context, league string) ([]provider.Standing, error) {
	mp, err := c.mapping(league)
	if err != nil {
		return nil, err
	}
	key := "tsdb:standings:" + league
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeamStats, func(ctx context.Context) (any, error) {
		params := url.Values{"l": {mp.ProviderLeagueID}, "s": {currentSeason(time.Now())}}
		var wire wireTable
		if err := c.get(ctx, "standings", c.endpoint("lookuptable.php", params), &wire); err != nil {
			return nil, err
		}
		out := make([]provider.Standing, 0, len(wire.Table))
		for i, row := range wire.Table {
			st := provider.Standing{
				Team: provider.Team{
					ID:      row.TeamID,
					Name:    row.Name,
					LogoURL: row.Badge,
				},
			}
			st.Stats.Record = provider.Record{
				Wins:    atoiSafe(row.Win),
				Losses:  atoiSafe(row.Loss),
				Ties:    atoiSafe(row.Draw),
				Summary: recordSummary(atoiSafe(row.Win), atoiSafe(row.Loss), atoiSafe(row.Draw)),
			}
			st.Stats.PlayoffSeed = i + 1
			out = append(out, st)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Standing), nil
}

func (c *Client) ListTeams(ctx context.Context, league string) ([]provider.Team, error) {
	mp, err := c.mapping(league)
	if err != nil {
		return nil, err
	}
	if mp.ProviderLeagueName == "" {
		return nil, fmt.Errorf("league %q has no provider league name: %w", league, provider.ErrUnsupported)
	}
	key := "tsdb:teams:" + league
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeams, func(ctx context.Context) (any, error) {
		var wire wireTeams
		if err := c.get(ctx, "list_teams", c.endpoint("search_all_teams.php", url.Values{"l": {mp.ProviderLeagueName}}), &wire); err != nil {
			return nil, err
		}
		out := make([]provider.Team, 0, len(wire.Teams))
		for _, t := range wire.Teams {
			out = append(out, projectTeam(t))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Team), nil
}

// ListConferences is not modelled by TheSportsDB.
func (c *Client) ListConferences(ctx context.Context, league string) ([]provider.Conference, error) {
	return nil, fmt.Errorf("conferences: %w", provider.ErrUnsupported)
}

// ConferenceTeams is not modelled by TheSportsDB.
func (c *Client) ConferenceTeams(ctx context.Context, conferenceID string) ([]provider.Team, error) {
	return nil, fmt.Errorf("conference teams: %w", provider.ErrUnsupported)
}

// SearchTeams finds teams by name; used by the matcher's fallback path.
func (c *Client) SearchTeams(ctx context.Context, query string) ([]provider.Team, error) {
	key := "tsdb:search:" + strings.ToLower(query)
	v, err := c.loader.GetOrFetch(ctx, key, cache.TTLTeamSearch, func(ctx context.Context) (any, error) {
		var wire wireTeams
		if err := c.get(ctx, "team_search", c.endpoint("searchteams.php", url.Values{"t": {query}}), &wire); err != nil {
			return nil, err
		}
		out := make([]provider.Team, 0, len(wire.Teams))
		for _, t := range wire.Teams {
			out = append(out, projectTeam(t))
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]provider.Team), nil
}

// currentSeason renders the season string for table lookups, e.g. "2025-2026"
// for European leagues spanning the new year.
func currentSeason(now time.Time) string {
	y := now.Year()
	if now.Month() >= time.July {
		return fmt.Sprintf("%d-%d", y, y+1)
	}
	return fmt.Sprintf("%d-%d", y-1, y)
}

func recordSummary(w, l, d int) string {
	if d > 0 {
		return fmt.Sprintf("%d-%d-%d", w, l, d)
	}
	return fmt.Sprintf("%d-%d", w, l)
}

func atoiSafe(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
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
