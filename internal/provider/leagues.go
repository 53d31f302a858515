// SPDX-License-Identifier: MIT

package provider

import (
	"strings"
	"sync"
)

// Mapping binds a canonical league code to one provider's identifier for it.
// (League, Provider) is unique within a LeagueMap.
type Mapping struct {
	League             string // canonical code, e.g. "nfl", "eng.1"
	Provider           string
	ProviderLeagueID   string
	ProviderLeagueName string // some providers route by name, not id
	Sport              string
	DisplayName        string
	LogoURL            string
	Enabled            bool
	// SingleEvent marks leagues with at most one event per day (UFC style),
	// which enables keyword-only stream matching.
	SingleEvent bool
	// Keywords are stream-name indicators for single-event leagues.
	Keywords []string
}

// LeagueMap is the canonical league-code <-> provider mapping store.
// Readers see a consistent view; Replace swaps the whole table.
type LeagueMap struct {
	mu       sync.RWMutex
	byLeague map[string][]Mapping
}

// NewLeagueMap builds a store from the given mappings.
func NewLeagueMap(mappings []Mapping) *LeagueMap {
	m := &LeagueMap{}
	m.Replace(mappings)
	return m
}

// Replace swaps the full mapping table atomically.
func (m *LeagueMap) Replace(mappings []Mapping) {
	byLeague := make(map[string][]Mapping)
	for _, mp := range mappings {
		key := strings.ToLower(mp.League)
		byLeague[key] = append(byLeague[key], mp)
	}
	m.mu.Lock()
	m.byLeague = byLeague
	m.mu.Unlock()
}

// ForProvider returns the enabled mapping of league for the named provider.
func (m *LeagueMap) ForProvider(league, providerName string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.byLeague[strings.ToLower(league)] {
		if mp.Enabled && mp.Provider == providerName {
			return mp, true
		}
	}
	return Mapping{}, false
}

// Supported reports whether any enabled mapping exists for (league, provider).
func (m *LeagueMap) Supported(league, providerName string) bool {
	_, ok := m.ForProvider(league, providerName)
	return ok
}

// Sport returns the sport of a league, or "" when unknown.
func (m *LeagueMap) Sport(league string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.byLeague[strings.ToLower(league)] {
		if mp.Enabled {
			return mp.Sport
		}
	}
	return ""
}

// DisplayName resolves the league display name: configured alias first, then
// the provider league name, then the uppercased raw code.
func (m *LeagueMap) DisplayName(league string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.byLeague[strings.ToLower(league)] {
		if !mp.Enabled {
			continue
		}
		if mp.DisplayName != "" {
			return mp.DisplayName
		}
		if mp.ProviderLeagueName != "" {
			return mp.ProviderLeagueName
		}
	}
	return strings.ToUpper(league)
}

// LogoURL returns the configured league logo, or "".
func (m *LeagueMap) LogoURL(league string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.byLeague[strings.ToLower(league)] {
		if mp.Enabled && mp.LogoURL != "" {
			return mp.LogoURL
		}
	}
	return ""
}

// EnabledLeagues returns every league code with at least one enabled mapping.
func (m *LeagueMap) EnabledLeagues() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byLeague))
	for code, mappings := range m.byLeague {
		for _, mp := range mappings {
			if mp.Enabled {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

// LeaguesForSport returns enabled league codes whose sport matches.
func (m *LeagueMap) LeaguesForSport(sport string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for code, mappings := range m.byLeague {
		for _, mp := range mappings {
			if mp.Enabled && strings.EqualFold(mp.Sport, sport) {
				out = append(out, code)
				break
			}
		}
	}
	return out
}

// SingleEventLeague returns the single-event mapping for a league if one exists.
func (m *LeagueMap) SingleEventLeague(league string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mp := range m.byLeague[strings.ToLower(league)] {
		if mp.Enabled && mp.SingleEvent {
			return mp, true
		}
	}
	return Mapping{}, false
}

// SingleEventLeagues returns all enabled single-event mappings.
func (m *LeagueMap) SingleEventLeagues() []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Mapping
	for _, mappings := range m.byLeague {
		for _, mp := range mappings {
			if mp.Enabled && mp.SingleEvent {
				out = append(out, mp)
			}
		}
	}
	return out
}

// DefaultMappings is the built-in league table used until the settings store
// overrides it.
func DefaultMappings() []Mapping {
	espn := func(league, id, sport, display string) Mapping {
		return Mapping{League: league, Provider: "espn", ProviderLeagueID: id, Sport: sport, DisplayName: display, Enabled: true}
	}
	out := []Mapping{
		espn("nfl", "nfl", "football", "NFL"),
		espn("ncaaf", "college-football", "football", "NCAA Football"),
		espn("nba", "nba", "basketball", "NBA"),
		espn("wnba", "wnba", "basketball", "WNBA"),
		espn("ncaam", "mens-college-basketball", "basketball", "NCAA Basketball"),
		espn("ncaaw", "womens-college-basketball", "basketball", "NCAA Women's Basketball"),
		espn("mlb", "mlb", "baseball", "MLB"),
		espn("nhl", "nhl", "hockey", "NHL"),
		espn("mls", "usa.1", "soccer", "MLS"),
		espn("eng.1", "eng.1", "soccer", "Premier League"),
		espn("esp.1", "esp.1", "soccer", "La Liga"),
		espn("ger.1", "ger.1", "soccer", "Bundesliga"),
		espn("ita.1", "ita.1", "soccer", "Serie A"),
		espn("fra.1", "fra.1", "soccer", "Ligue 1"),
		espn("aus.1", "aus.1", "soccer", "A-League"),
		espn("uefa.champions", "uefa.champions", "soccer", "Champions League"),
	}
	out = append(out, Mapping{
		League: "ufc", Provider: "espn", ProviderLeagueID: "ufc", Sport: "mma",
		DisplayName: "UFC", Enabled: true, SingleEvent: true,
		Keywords: []string{"ufc", "fight night"},
	})
	out = append(out, Mapping{
		League: "nfl", Provider: "tsdb", ProviderLeagueID: "4391",
		ProviderLeagueName: "NFL", Sport: "football", DisplayName: "NFL", Enabled: true,
	})
	out = append(out, Mapping{
		League: "eng.1", Provider: "tsdb", ProviderLeagueID: "4328",
		ProviderLeagueName: "English Premier League", Sport: "soccer",
		DisplayName: "Premier League", Enabled: true,
	})
	return out
}
