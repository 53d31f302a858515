// SPDX-License-Identifier: MIT

// Package teamcache maintains the process-wide reverse index from team names
// to candidate leagues, and the multi-league membership index used for soccer
// clubs. Refresh builds a fresh snapshot and swaps it atomically; readers
// never observe a partial update.
package teamcache

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/provider"
)

// Entry is one (league, team) membership for a normalized team name.
type Entry struct {
	League string
	TeamID string
	Sport  string
	Team   provider.Team
}

// Snapshot is an immutable view of both indexes.
type Snapshot struct {
	byName        map[string][]Entry  // normalized name -> memberships
	leaguesByTeam map[string][]string // team id -> league codes
	teamsByLeague map[string][]provider.Team
	Built         time.Time
}

// Cache holds the current snapshot.
type Cache struct {
	snap atomic.Pointer[Snapshot]
}

// New returns a cache with an empty snapshot.
func New() *Cache {
	c := &Cache{}
	c.snap.Store(&Snapshot{
		byName:        map[string][]Entry{},
		leaguesByTeam: map[string][]string{},
		teamsByLeague: map[string][]provider.Team{},
	})
	return c
}

// Refresh rebuilds the snapshot from every enabled league of every provider,
// fetching team lists with a bounded worker pool. Providers without enabled
// league mappings are skipped. A failed league leaves that league out of the
// new snapshot but does not fail the refresh.
func (c *Cache) Refresh(ctx context.Context, registry *provider.Registry, leagues *provider.LeagueMap, workers int) error {
	logger := log.WithComponentFromContext(ctx, "teamcache")
	start := time.Now()

	if workers <= 0 {
		workers = 8
	}

	type result struct {
		league string
		sport  string
		teams  []provider.Team
	}
	results := make(chan result, 64)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	codes := leagues.EnabledLeagues()
	sort.Strings(codes)
	for _, league := range codes {
		g.Go(func() error {
			p, err := registry.GetForLeague(league)
			if err != nil {
				return nil // no provider for this league: skip
			}
			teams, err := p.ListTeams(gctx, league)
			if err != nil {
				logger.Warn().Err(err).
					Str("event", "refresh.league_failed").
					Str("league", league).
					Msg("team list unavailable, league skipped")
				return nil
			}
			select {
			case results <- result{league: league, sport: leagues.Sport(league), teams: teams}:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	done := make(chan struct{})
	snap := &Snapshot{
		byName:        map[string][]Entry{},
		leaguesByTeam: map[string][]string{},
		teamsByLeague: map[string][]provider.Team{},
		Built:         time.Now(),
	}
	go func() {
		defer close(done)
		for r := range results {
			snap.teamsByLeague[r.league] = r.teams
			for _, t := range r.teams {
				e := Entry{League: r.league, TeamID: t.ID, Sport: r.sport, Team: t}
				// Streams refer to teams by any of these forms, so every
				// variant becomes an index key ("Tennessee Titans",
				// "Titans", "Tennessee", "TEN").
				seen := map[string]bool{}
				for _, name := range []string{t.Name, t.ShortName, t.Location, t.Abbreviation} {
					key := NormalizeName(name)
					if key == "" || seen[key] {
						continue
					}
					seen[key] = true
					snap.byName[key] = append(snap.byName[key], e)
				}
				snap.leaguesByTeam[t.ID] = append(snap.leaguesByTeam[t.ID], r.league)
			}
		}
	}()

	err := g.Wait()
	close(results)
	<-done
	if err != nil {
		return err
	}

	for id := range snap.leaguesByTeam {
		sort.Strings(snap.leaguesByTeam[id])
	}
	c.snap.Store(snap)

	logger.Info().
		Str("event", "refresh.complete").
		Int("leagues", len(snap.teamsByLeague)).
		Int("names", len(snap.byName)).
		Dur("elapsed", time.Since(start)).
		Msg("team/league cache refreshed")
	return nil
}

// Snapshot returns the current consistent view.
func (c *Cache) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Lookup returns the memberships recorded for a team name.
func (s *Snapshot) Lookup(name string) []Entry {
	return s.byName[NormalizeName(name)]
}

// TeamsInLeague returns the cached team list for a league, if present.
func (s *Snapshot) TeamsInLeague(league string) ([]provider.Team, bool) {
	teams, ok := s.teamsByLeague[strings.ToLower(league)]
	return teams, ok
}

// LeaguesFor returns every league the team id belongs to. The primary use is
// soccer clubs playing domestic league, cup and European competition at once.
func (s *Snapshot) LeaguesFor(teamID string) []string {
	return s.leaguesByTeam[teamID]
}

// FindCandidateLeagues returns the leagues in which both names resolve to a
// team, ordered deterministically.
func (s *Snapshot) FindCandidateLeagues(name1, name2 string) []string {
	in1 := map[string]bool{}
	for _, e := range s.Lookup(name1) {
		in1[e.League] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, e := range s.Lookup(name2) {
		if in1[e.League] && !seen[e.League] {
			seen[e.League] = true
			out = append(out, e.League)
		}
	}
	sort.Strings(out)
	return out
}

// NormalizeName lowercases and collapses whitespace for index keys.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
