// SPDX-License-Identifier: MIT

package match

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/teamcache"
)

// Match tier constants, highest wins. Secondary (location-only) names score
// one tier band lower than primary names so "Washington" prefers the team
// actually named Washington over a team merely located there.
const (
	tierPrimaryExact     = 60
	tierQueryIsPrefix    = 50
	tierPrimaryWholeWord = 40
	tierPrimaryIsPrefix  = 30
	tierSecondaryExact   = 20
	tierSecondaryWord    = 10
)

// TeamMatch is one fuzzy-matcher candidate.
type TeamMatch struct {
	Team    provider.Team
	League  string
	Tier    int
	Matched string // the search name that matched
}

// Alias maps a user-defined spelling to a team id within one league. Aliases
// win over every scoring tier.
type Alias struct {
	League string
	Alias  string
	TeamID string
}

// TeamMatcher resolves raw team tokens against league rosters. Rosters come
// from the team/league cache snapshot first, with a provider fetch as
// fallback for leagues not yet refreshed.
type TeamMatcher struct {
	Cache    *teamcache.Cache
	Registry *provider.Registry

	aliases map[string]map[string]string // league -> normalized alias -> team id
}

// NewTeamMatcher builds a matcher over the given cache and registry.
func NewTeamMatcher(cache *teamcache.Cache, registry *provider.Registry, aliases []Alias) *TeamMatcher {
	m := &TeamMatcher{Cache: cache, Registry: registry, aliases: map[string]map[string]string{}}
	for _, a := range aliases {
		league := strings.ToLower(a.League)
		if m.aliases[league] == nil {
			m.aliases[league] = map[string]string{}
		}
		m.aliases[league][normalizeSearchName(a.Alias)] = a.TeamID
	}
	return m
}

// BestMatch resolves query to the single best team in the league, or false.
func (m *TeamMatcher) BestMatch(ctx context.Context, query, league string) (TeamMatch, bool) {
	all := m.AllMatches(ctx, query, league, 1)
	if len(all) == 0 {
		return TeamMatch{}, false
	}
	return all[0], true
}

// AllMatches returns up to limit candidates ordered by tier then matched-name
// length. Feeds pairing disambiguation where the best candidate alone may not
// be the one on the schedule.
func (m *TeamMatcher) AllMatches(ctx context.Context, query, league string, limit int) []TeamMatch {
	league = strings.ToLower(league)
	q := normalizeSearchName(query)
	if q == "" {
		return nil
	}

	teams := m.roster(ctx, league)
	if len(teams) == 0 {
		return nil
	}

	if id, ok := m.aliases[league][q]; ok {
		for _, t := range teams {
			if t.ID == id {
				return []TeamMatch{{Team: t, League: league, Tier: tierPrimaryExact, Matched: q}}
			}
		}
	}

	var out []TeamMatch
	for _, t := range teams {
		tier, matched := scoreTeam(q, t)
		if tier > 0 {
			out = append(out, TeamMatch{Team: t, League: league, Tier: tier, Matched: matched})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier > out[j].Tier
		}
		return len(out[i].Matched) > len(out[j].Matched)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// roster loads the league team list, preferring the snapshot.
func (m *TeamMatcher) roster(ctx context.Context, league string) []provider.Team {
	if m.Cache != nil {
		if teams, ok := m.Cache.Snapshot().TeamsInLeague(league); ok {
			return teams
		}
	}
	if m.Registry == nil {
		return nil
	}
	p, err := m.Registry.GetForLeague(league)
	if err != nil {
		return nil
	}
	teams, err := p.ListTeams(ctx, league)
	if err != nil {
		return nil
	}
	return teams
}

// scoreTeam returns the best tier any of the team's search names achieves
// against the normalized query.
func scoreTeam(q string, t provider.Team) (int, string) {
	best, bestName := 0, ""
	consider := func(tier int, name string) {
		if tier > best || (tier == best && len(name) > len(bestName)) {
			best, bestName = tier, name
		}
	}
	for _, name := range primaryNames(t) {
		n := normalizeSearchName(name)
		if n == "" {
			continue
		}
		switch {
		case n == q:
			consider(tierPrimaryExact, n)
		case strings.HasPrefix(n, q+" "):
			consider(tierQueryIsPrefix, n)
		case containsWord(q, n):
			consider(tierPrimaryWholeWord, n)
		case strings.HasPrefix(q, n+" "):
			consider(tierPrimaryIsPrefix, n)
		}
	}
	for _, name := range secondaryNames(t) {
		n := normalizeSearchName(name)
		if n == "" {
			continue
		}
		switch {
		case n == q:
			consider(tierSecondaryExact, n)
		case containsWord(q, n):
			consider(tierSecondaryWord, n)
		}
	}
	return best, bestName
}

func primaryNames(t provider.Team) []string {
	return []string{t.Name, t.ShortName, t.Abbreviation, t.Slug}
}

func secondaryNames(t provider.Team) []string {
	return []string{t.Location}
}

var (
	punctRe   = regexp.MustCompile(`[.,:;!?'"\x60_/\\-]+`)
	numTokRe  = regexp.MustCompile(`\b\d+\b`)
	multiWsRe = regexp.MustCompile(`\s+`)
)

// normalizeSearchName applies the comparison normalization: lowercase,
// accents stripped, punctuation collapsed, numeric tokens dropped, non-state
// parentheticals removed.
func normalizeSearchName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "`", "'")
	s = strings.ReplaceAll(s, "_", " ")
	s = stripNonStateParens(s)
	s = StripAccents(s)
	s = punctRe.ReplaceAllString(s, " ")
	s = numTokRe.ReplaceAllString(s, " ")
	s = multiWsRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// containsWord reports whether name appears in q at token boundaries.
func containsWord(q, name string) bool {
	return indexWord(q, name) >= 0
}
