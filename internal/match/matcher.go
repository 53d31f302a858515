// SPDX-License-Identifier: MIT

package match

import (
	"context"
	"math"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/metrics"
	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// Outcome is the terminal state of one stream through the pipeline.
type Outcome string

const (
	OutcomeMatched     Outcome = "matched"
	OutcomeMiss        Outcome = "miss"
	OutcomeExcluded    Outcome = "excluded"    // include/exclude filter dropped it
	OutcomeException   Outcome = "exception"   // exception keyword short-circuit
	OutcomePlaceholder Outcome = "placeholder" // dead / filler channel
)

// Stream is one raw IPTV entry handed to the matcher.
type Stream struct {
	ID   string
	Name string
	URL  string
}

// Result is what the matcher decides for a stream. Tier records which rung of
// the ladder produced the match ("1", "2", "3a".."3c", "4a", "4b",
// "single_event", "cache").
type Result struct {
	Stream         Stream
	Outcome        Outcome
	Event          provider.Event
	League         string
	Tier           string
	Keyword        string // exception keyword that fired, if any
	Classification Classification
}

// GroupFilters are the per-event-group stream filters and matching scope,
// applied before any matching work.
type GroupFilters struct {
	Include *regexp.Regexp // nil means include everything
	Exclude *regexp.Regexp

	// IncludeLeagues are the leagues the group produces channels for.
	// CandidateLeagues additionally take part in matching, so a stream
	// carried by a broader package still resolves and gets a decision.
	// Empty sets mean no restriction.
	IncludeLeagues   []string
	CandidateLeagues []string

	// ExceptionKeywords extend the matcher-wide keyword list for one group.
	ExceptionKeywords []string

	// Overrides are group-scoped classifier patterns, tried before the
	// matcher-wide ones.
	Overrides []OverridePattern
}

// leagueAllowed reports whether a league may take part in matching.
func (f GroupFilters) leagueAllowed(code string) bool {
	if len(f.IncludeLeagues) == 0 && len(f.CandidateLeagues) == 0 {
		return true
	}
	return slices.Contains(f.IncludeLeagues, code) || slices.Contains(f.CandidateLeagues, code)
}

// leagueIncluded reports whether a matched league produces a channel.
func (f GroupFilters) leagueIncluded(code string) bool {
	return len(f.IncludeLeagues) == 0 || slices.Contains(f.IncludeLeagues, code)
}

// maxAlternatePairings bounds the team-pair disambiguation retries.
const maxAlternatePairings = 3

// Matcher runs the full stream-to-event pipeline: normalize, classify,
// resolve teams, walk the tier ladder, disambiguate.
type Matcher struct {
	Normalizer *Normalizer
	Classifier *Classifier
	Teams      *TeamMatcher
	Cache      *teamcache.Cache
	Registry   *provider.Registry
	Leagues    *provider.LeagueMap
	Streams    *StreamCache // may be nil
	Location   *time.Location

	// ExceptionKeywords short-circuit matching entirely; the stream is
	// routed to special handling downstream.
	ExceptionKeywords []string

	now func() time.Time
}

// NewMatcher wires the pipeline. loc defaults to UTC.
func NewMatcher(n *Normalizer, c *Classifier, teams *TeamMatcher, cache *teamcache.Cache,
	registry *provider.Registry, leagues *provider.LeagueMap, streams *StreamCache, loc *time.Location) *Matcher {
	if loc == nil {
		loc = time.UTC
	}
	return &Matcher{
		Normalizer: n,
		Classifier: c,
		Teams:      teams,
		Cache:      cache,
		Registry:   registry,
		Leagues:    leagues,
		Streams:    streams,
		Location:   loc,
		now:        time.Now,
	}
}

// Match resolves one stream. Filters run first; exception keywords run on the
// raw name before any normalization and short-circuit the tier ladder.
func (m *Matcher) Match(ctx context.Context, stream Stream, filters GroupFilters) Result {
	return m.match(ctx, stream, filters, true)
}

// MatchExcepted resolves an exception-keyword stream to its underlying
// event. The keyword is stripped during normalization, so the remainder runs
// the normal ladder.
func (m *Matcher) MatchExcepted(ctx context.Context, stream Stream, filters GroupFilters) Result {
	return m.match(ctx, stream, filters, false)
}

func (m *Matcher) match(ctx context.Context, stream Stream, filters GroupFilters, shortCircuit bool) Result {
	logger := log.WithComponentFromContext(ctx, "matcher")
	res := Result{Stream: stream, Outcome: OutcomeMiss}

	if filters.Include != nil && !filters.Include.MatchString(stream.Name) {
		res.Outcome = OutcomeExcluded
		return res
	}
	if filters.Exclude != nil && filters.Exclude.MatchString(stream.Name) {
		res.Outcome = OutcomeExcluded
		return res
	}

	if shortCircuit {
		if kw, ok := exceptionHit(stream.Name, m.ExceptionKeywords, filters.ExceptionKeywords); ok {
			res.Outcome = OutcomeException
			res.Keyword = kw
			return res
		}
	}

	normalized := m.Normalizer.Normalize(stream.Name)
	cls := m.classifierFor(filters).Classify(normalized)
	res.Classification = cls

	if cls.Category == CategoryPlaceholder {
		res.Outcome = OutcomePlaceholder
		return res
	}

	if m.Streams != nil {
		if ev, league, tier, ok := m.Streams.Get(ctx, normalized.Text, cls.Date); ok && filters.leagueAllowed(league) {
			if !filters.leagueIncluded(league) {
				res.Outcome = OutcomeExcluded
				res.League = league
				return res
			}
			metrics.StreamMatched("cache")
			res.Outcome = OutcomeMatched
			res.Event, res.League, res.Tier = ev, league, tier
			return res
		}
	}

	if ev, league, tier, ok := m.matchTiers(ctx, stream, normalized, cls, filters); ok {
		if m.Streams != nil {
			m.Streams.Put(ctx, normalized.Text, cls.Date, ev, league, tier)
		}
		if !filters.leagueIncluded(league) {
			res.Outcome = OutcomeExcluded
			res.League = league
			return res
		}
		metrics.StreamMatched(tier)
		res.Outcome = OutcomeMatched
		res.Event, res.League, res.Tier = ev, league, tier
		return res
	}

	metrics.StreamMatched("miss")
	logger.Debug().
		Str("event", "match.miss").
		Str("stream", stream.Name).
		Str("normalized", normalized.Text).
		Msg("no event matched")
	return res
}

// exceptionHit finds the first keyword from any list contained in the raw
// stream name.
func exceptionHit(name string, lists ...[]string) (string, bool) {
	lower := strings.ToLower(name)
	for _, list := range lists {
		for _, kw := range list {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return kw, true
			}
		}
	}
	return "", false
}

// classifierFor layers group-scoped override patterns ahead of the
// matcher-wide ones.
func (m *Matcher) classifierFor(filters GroupFilters) *Classifier {
	if len(filters.Overrides) == 0 {
		return m.Classifier
	}
	merged := make([]OverridePattern, 0, len(filters.Overrides)+len(m.Classifier.Overrides))
	merged = append(merged, filters.Overrides...)
	merged = append(merged, m.Classifier.Overrides...)
	return &Classifier{Overrides: merged}
}

func (m *Matcher) matchTiers(ctx context.Context, stream Stream, n Normalized, cls Classification, filters GroupFilters) (provider.Event, string, string, bool) {
	// Single-event leagues win on keyword alone.
	if ev, league, ok := m.matchSingleEvent(ctx, stream.Name, cls, filters); ok {
		return ev, league, "single_event", true
	}

	if cls.Category != CategoryGame {
		return provider.Event{}, "", "", false
	}
	// "A vs B" carries no venue information; treat left as away by
	// convention and let the schedule decide.
	away, home := cls.Team1, cls.Team2

	// Tier 1: explicit league indicator in the raw name.
	if league, ok := m.leagueIndicator(stream.Name); ok && filters.leagueAllowed(league) {
		if ev, ok := m.resolveInLeague(ctx, league, away, home, cls); ok {
			return ev, league, "1", true
		}
	}

	// Tier 2: sport indicator, try each enabled league of that sport.
	if sport, ok := sportIndicator(n.Text); ok {
		for _, league := range m.Leagues.LeaguesForSport(sport) {
			if !filters.leagueAllowed(league) {
				continue
			}
			if ev, ok := m.resolveInLeague(ctx, league, away, home, cls); ok {
				return ev, league, "2", true
			}
		}
	}

	// Tier 3: candidate leagues from the team/league cache.
	candidates := m.Cache.Snapshot().FindCandidateLeagues(away, home)
	tier := "3c"
	if cls.Date != nil {
		tier = "3a"
	} else if cls.Time != nil {
		tier = "3b"
	}
	var best provider.Event
	bestLeague := ""
	bestDelta := time.Duration(math.MaxInt64)
	for _, league := range candidates {
		if !filters.leagueAllowed(league) {
			continue
		}
		ev, ok := m.resolveInLeague(ctx, league, away, home, cls)
		if !ok {
			continue
		}
		delta := m.eventDelta(ev, cls)
		if delta < bestDelta {
			best, bestLeague, bestDelta = ev, league, delta
		}
	}
	if bestLeague != "" {
		return best, bestLeague, tier, true
	}

	// Tier 4: one resolvable side, search its schedule for the other.
	for _, league := range m.allLeaguesFor(away, home) {
		if !filters.leagueAllowed(league) {
			continue
		}
		if ev, sub, ok := m.matchOneSided(ctx, league, away, home, cls); ok {
			return ev, league, sub, true
		}
	}

	return provider.Event{}, "", "", false
}

// leagueIndicator scans the raw name for an enabled league code or display
// name token.
func (m *Matcher) leagueIndicator(raw string) (string, bool) {
	lower := strings.ToLower(raw)
	for _, code := range m.Leagues.EnabledLeagues() {
		if indexWordLoose(lower, code) {
			return code, true
		}
		if dn := strings.ToLower(m.Leagues.DisplayName(code)); dn != "" && dn != code && strings.Contains(lower, dn) {
			return code, true
		}
	}
	return "", false
}

var sportKeywords = map[string]string{
	"hockey":     "hockey",
	"basketball": "basketball",
	"football":   "football",
	"baseball":   "baseball",
	"soccer":     "soccer",
	"futbol":     "soccer",
}

func sportIndicator(text string) (string, bool) {
	for kw, sport := range sportKeywords {
		if indexWord(text, kw) >= 0 {
			return sport, true
		}
	}
	return "", false
}

// resolveInLeague resolves both raw names in one league and confirms a
// scheduled game between them, trying alternate pairings when the top
// candidates find nothing.
func (m *Matcher) resolveInLeague(ctx context.Context, league, away, home string, cls Classification) (provider.Event, bool) {
	awayMatches := m.Teams.AllMatches(ctx, away, league, maxAlternatePairings)
	homeMatches := m.Teams.AllMatches(ctx, home, league, maxAlternatePairings)
	if len(awayMatches) == 0 || len(homeMatches) == 0 {
		return provider.Event{}, false
	}
	tried := 0
	for _, am := range awayMatches {
		for _, hm := range homeMatches {
			if am.Team.ID == hm.Team.ID {
				continue
			}
			if tried >= maxAlternatePairings {
				return provider.Event{}, false
			}
			tried++
			if ev, ok := m.findScheduledGame(ctx, league, am.Team.ID, hm.Team.ID, cls); ok {
				return ev, true
			}
		}
	}
	return provider.Event{}, false
}

// findScheduledGame locates a game between the two team ids. With a date it
// scans that day's events; without, it scans the first team's schedule for
// the soonest game against the second.
func (m *Matcher) findScheduledGame(ctx context.Context, league, teamID1, teamID2 string, cls Classification) (provider.Event, bool) {
	p, err := m.Registry.GetForLeague(league)
	if err != nil {
		return provider.Event{}, false
	}

	if cls.Date != nil {
		date := m.resolveDate(*cls.Date)
		events, err := p.ListEvents(ctx, league, date)
		if err != nil {
			return provider.Event{}, false
		}
		var best provider.Event
		bestDelta := time.Duration(math.MaxInt64)
		found := false
		for _, ev := range events {
			if !(ev.Involves(teamID1) && ev.Involves(teamID2)) {
				continue
			}
			delta := m.clockDelta(ev, cls)
			if delta < bestDelta {
				best, bestDelta, found = ev, delta, true
			}
		}
		return best, found
	}

	events, err := p.TeamSchedule(ctx, teamID1, league, 30)
	if err != nil {
		return provider.Event{}, false
	}
	now := m.now()
	var best provider.Event
	bestDelta := time.Duration(math.MaxInt64)
	found := false
	for _, ev := range events {
		if !ev.Involves(teamID2) {
			continue
		}
		if ev.Status.State == provider.StateFinal && now.Sub(ev.Start) > 12*time.Hour {
			continue
		}
		delta := absDuration(ev.Start.Sub(now))
		if delta < bestDelta {
			best, bestDelta, found = ev, delta, true
		}
	}
	return best, found
}

// matchOneSided handles Tier 4: one name resolves, the other is searched
// among the resolved team's scheduled opponents.
func (m *Matcher) matchOneSided(ctx context.Context, league, away, home string, cls Classification) (provider.Event, string, bool) {
	unknown := home
	km, ok := m.Teams.BestMatch(ctx, away, league)
	if !ok {
		unknown = away
		km, ok = m.Teams.BestMatch(ctx, home, league)
		if !ok {
			return provider.Event{}, "", false
		}
	}

	p, err := m.Registry.GetForLeague(league)
	if err != nil {
		return provider.Event{}, "", false
	}
	events, err := p.TeamSchedule(ctx, km.Team.ID, league, 30)
	if err != nil {
		return provider.Event{}, "", false
	}

	query := normalizeSearchName(unknown)
	sub := "4b"
	if cls.Date != nil || cls.Time != nil {
		sub = "4a"
	}
	now := m.now()
	bestTier := 0
	var best provider.Event
	bestDelta := time.Duration(math.MaxInt64)
	for _, ev := range events {
		if !ev.Involves(km.Team.ID) {
			continue
		}
		opp, _ := ev.Opponent(km.Team.ID)
		oppTier, _ := scoreTeam(query, opp)
		if oppTier == 0 {
			continue
		}
		var delta time.Duration
		if sub == "4a" {
			delta = m.eventDelta(ev, cls)
		} else {
			delta = absDuration(ev.Start.Sub(now))
		}
		if oppTier > bestTier || (oppTier == bestTier && delta < bestDelta) {
			bestTier, best, bestDelta = oppTier, ev, delta
		}
	}
	if bestTier == 0 {
		return provider.Event{}, "", false
	}
	return best, sub, true
}

// matchSingleEvent handles one-event-per-day leagues: a keyword hit plus
// exactly one event on the target date accepts without team names.
func (m *Matcher) matchSingleEvent(ctx context.Context, raw string, cls Classification, filters GroupFilters) (provider.Event, string, bool) {
	lower := strings.ToLower(raw)
	for _, mp := range m.Leagues.SingleEventLeagues() {
		if !filters.leagueAllowed(mp.League) {
			continue
		}
		hit := false
		for _, kw := range mp.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if !hit {
			continue
		}
		p, err := m.Registry.GetForLeague(mp.League)
		if err != nil {
			continue
		}
		date := m.now().In(m.Location)
		if cls.Date != nil {
			date = m.resolveDate(*cls.Date)
		}
		events, err := p.ListEvents(ctx, mp.League, date)
		if err != nil || len(events) != 1 {
			continue
		}
		return events[0], mp.League, true
	}
	return provider.Event{}, "", false
}

// allLeaguesFor merges candidate leagues where either name resolves,
// preserving the deterministic snapshot ordering.
func (m *Matcher) allLeaguesFor(name1, name2 string) []string {
	snap := m.Cache.Snapshot()
	seen := map[string]bool{}
	var out []string
	for _, name := range []string{name1, name2} {
		for _, e := range snap.Lookup(name) {
			if !seen[e.League] {
				seen[e.League] = true
				out = append(out, e.League)
			}
		}
	}
	return out
}

// resolveDate fills in a missing year: the nearest occurrence of month/day to
// today, in the matcher's timezone.
func (m *Matcher) resolveDate(d time.Time) time.Time {
	if d.Year() > 1 {
		return d
	}
	now := m.now().In(m.Location)
	candidate := time.Date(now.Year(), d.Month(), d.Day(), 0, 0, 0, 0, m.Location)
	prev := candidate.AddDate(-1, 0, 0)
	next := candidate.AddDate(1, 0, 0)
	best := candidate
	if absDuration(now.Sub(prev)) < absDuration(now.Sub(best)) {
		best = prev
	}
	if absDuration(now.Sub(next)) < absDuration(now.Sub(best)) {
		best = next
	}
	return best
}

// eventDelta measures how far an event's start is from the stream's
// date/time hints. Smaller is better; absent hints compare equal.
func (m *Matcher) eventDelta(ev provider.Event, cls Classification) time.Duration {
	if cls.Date == nil && cls.Time == nil {
		return absDuration(ev.Start.Sub(m.now()))
	}
	target := ev.Start.In(m.Location)
	if cls.Date != nil {
		d := m.resolveDate(*cls.Date)
		target = time.Date(d.Year(), d.Month(), d.Day(), target.Hour(), target.Minute(), 0, 0, m.Location)
	}
	if cls.Time != nil {
		target = time.Date(target.Year(), target.Month(), target.Day(), cls.Time.Hour, cls.Time.Minute, 0, 0, m.Location)
	}
	return absDuration(ev.Start.In(m.Location).Sub(target))
}

// clockDelta compares only the time-of-day hint against the event start.
func (m *Matcher) clockDelta(ev provider.Event, cls Classification) time.Duration {
	if cls.Time == nil {
		return 0
	}
	start := ev.Start.In(m.Location)
	evMin := start.Hour()*60 + start.Minute()
	hintMin := cls.Time.Hour*60 + cls.Time.Minute
	d := evMin - hintMin
	if d < 0 {
		d = -d
	}
	// Wrap around midnight.
	if wrapped := 24*60 - d; wrapped < d {
		d = wrapped
	}
	return time.Duration(d) * time.Minute
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// indexWordLoose matches a token allowing a trailing colon ("nhl:").
func indexWordLoose(s, tok string) bool {
	if indexWord(s, tok) >= 0 {
		return true
	}
	return strings.Contains(s, tok+":")
}
