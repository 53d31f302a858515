// SPDX-License-Identifier: MIT

package epg

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/teamcast/teamcast/internal/provider"
)

// SuffixPolicy declares which suffix forms a variable supports. A request
// outside the policy resolves to empty string.
type SuffixPolicy int

const (
	// PolicyAll allows {var}, {var.next} and {var.last}.
	PolicyAll SuffixPolicy = iota
	// PolicyBaseOnly allows only {var}: identity and team-wide values.
	PolicyBaseOnly
	// PolicyLastOnly allows only {var.last}: scores and outcomes that exist
	// only after a final.
	PolicyLastOnly
)

// Variable is one registered extractor. Extractors are pure and must return
// "" for missing data, never panic.
type Variable struct {
	Name   string
	Policy SuffixPolicy
	Fn     func(*TemplateContext, *GameContext) string
}

// variableRegistry is populated once at init and read-only afterwards.
var variableRegistry = map[string]Variable{}

func register(name string, policy SuffixPolicy, fn func(*TemplateContext, *GameContext) string) {
	variableRegistry[name] = Variable{Name: name, Policy: policy, Fn: fn}
}

// Lookup returns the registered variable, if any.
func Lookup(name string) (Variable, bool) {
	v, ok := variableRegistry[name]
	return v, ok
}

func init() {
	// Identity.
	register("team_name", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		return c.Team.Name
	})
	register("league", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		return strings.ToUpper(c.Team.League)
	})
	register("league_name", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		return c.LeagueName
	})
	register("opponent", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Opponent.Name
	})
	register("opponent_short", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		if g.Opponent.ShortName != "" {
			return g.Opponent.ShortName
		}
		return g.Opponent.Name
	})
	register("matchup", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Away.Name + " at " + g.Event.Home.Name
	})
	register("home_team", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Home.Name
	})
	register("away_team", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Away.Name
	})
	register("home_away", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		if g.IsHome {
			return "vs"
		}
		return "at"
	})

	// Datetime.
	register("game_date", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Start.In(c.Location).Format("Monday, January 2")
	})
	register("game_date_short", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Start.In(c.Location).Format("Jan 2")
	})
	register("game_time", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return formatClock(c, g)
	})
	register("game_day", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Start.In(c.Location).Format("Monday")
	})
	register("days_until", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		d := int(g.Event.Start.Sub(c.Now).Hours() / 24)
		if d < 0 {
			return ""
		}
		return strconv.Itoa(d)
	})

	// Venue.
	register("venue_name", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Venue.Name
	})
	register("venue_city", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return g.Event.Venue.City
	})

	// Broadcast.
	register("broadcast", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || len(g.Event.Broadcasts) == 0 {
			return ""
		}
		return strings.Join(g.Event.Broadcasts, ", ")
	})
	register("broadcast_sentence", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || len(g.Event.Broadcasts) == 0 {
			return ""
		}
		return " Watch on " + strings.Join(g.Event.Broadcasts, ", ") + "."
	})

	// Scores and outcome: only meaningful once a game has started, so the
	// bare form exists for live games but most uses are {x.last}.
	register("team_score", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.TeamScore() == nil {
			return ""
		}
		return strconv.Itoa(*g.TeamScore())
	})
	register("opponent_score", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.OpponentScore() == nil {
			return ""
		}
		return strconv.Itoa(*g.OpponentScore())
	})
	register("final_score", PolicyLastOnly, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.TeamScore() == nil || g.OpponentScore() == nil {
			return ""
		}
		return fmt.Sprintf("%d-%d", *g.TeamScore(), *g.OpponentScore())
	})
	register("result", PolicyLastOnly, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || !g.Event.Status.Completed || g.TeamScore() == nil || g.OpponentScore() == nil {
			return ""
		}
		switch {
		case *g.TeamScore() > *g.OpponentScore():
			return "W"
		case *g.TeamScore() < *g.OpponentScore():
			return "L"
		default:
			return "D"
		}
	})
	register("result_sentence", PolicyLastOnly, func(c *TemplateContext, g *GameContext) string {
		if g == nil || !g.Event.Status.Completed || g.TeamScore() == nil || g.OpponentScore() == nil {
			return ""
		}
		verb := "beat"
		if *g.TeamScore() < *g.OpponentScore() {
			verb = "lost to"
		} else if *g.TeamScore() == *g.OpponentScore() {
			verb = "drew with"
		}
		return fmt.Sprintf("%s %s %s %d-%d", c.Team.Name, verb, g.Opponent.Name, *g.TeamScore(), *g.OpponentScore())
	})

	// Records.
	register("team_record", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.Record.Summary
	})
	register("opponent_record", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.OpponentStats == nil {
			return ""
		}
		return g.OpponentStats.Record.Summary
	})
	register("home_record", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.HomeRecord.Summary
	})
	register("away_record", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.AwayRecord.Summary
	})

	// Rankings. Absent rank renders empty, not "false" or "0".
	register("team_rank", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.Rank <= 0 {
			return ""
		}
		return strconv.Itoa(c.Stats.Rank)
	})
	register("team_rank_display", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.Rank <= 0 {
			return ""
		}
		return "#" + strconv.Itoa(c.Stats.Rank)
	})
	register("is_ranked", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.Rank <= 0 {
			return ""
		}
		return "true"
	})
	register("opponent_rank_display", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Opponent.Rank <= 0 {
			return ""
		}
		return "#" + strconv.Itoa(g.Opponent.Rank)
	})

	// Streaks.
	register("streak", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.StreakDisplay()
	})
	register("streak_overall", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Streaks == nil {
			return ""
		}
		return streakDisplay(g.Streaks.Overall)
	})
	register("streak_home", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Streaks == nil {
			return ""
		}
		return streakDisplay(g.Streaks.Home)
	})
	register("streak_away", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Streaks == nil {
			return ""
		}
		return streakDisplay(g.Streaks.Away)
	})
	register("last_5", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Streaks == nil {
			return ""
		}
		return g.Streaks.Last5.Display()
	})
	register("last_10", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Streaks == nil {
			return ""
		}
		return g.Streaks.Last10.Display()
	})

	// Statistics.
	register("ppg", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.PPG == 0 {
			return ""
		}
		return strconv.FormatFloat(c.Stats.PPG, 'f', 1, 64)
	})
	register("papg", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.PAPG == 0 {
			return ""
		}
		return strconv.FormatFloat(c.Stats.PAPG, 'f', 1, 64)
	})

	// Standings / conference / playoffs.
	register("games_back", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.GamesBack == 0 {
			return ""
		}
		return strconv.FormatFloat(c.Stats.GamesBack, 'f', 1, 64)
	})
	register("conference", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.ConferenceName
	})
	register("division", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.DivisionName
	})
	register("division_record", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil {
			return ""
		}
		return c.Stats.DivisionRecord.Summary
	})
	register("playoff_seed", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || c.Stats.PlayoffSeed <= 0 {
			return ""
		}
		return strconv.Itoa(c.Stats.PlayoffSeed)
	})
	register("is_conference_game", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || !g.Event.ConferenceGame {
			return ""
		}
		return "true"
	})
	register("season_type", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil {
			return ""
		}
		return string(g.Event.SeasonType)
	})

	// Head-to-head.
	register("h2h_record", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.H2H == nil {
			return ""
		}
		return fmt.Sprintf("%d-%d", g.H2H.TeamWins, g.H2H.OpponentWins)
	})
	register("h2h_last_result", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.H2H == nil {
			return ""
		}
		return fmt.Sprintf("%s %d-%d", g.H2H.LastResult, g.H2H.LastTeamScore, g.H2H.LastOppScore)
	})
	register("h2h_sentence", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil || g.H2H == nil || g.H2H.Games == 0 {
			return ""
		}
		return fmt.Sprintf("%s lead the season series %d-%d.", c.Team.Name, g.H2H.TeamWins, g.H2H.OpponentWins)
	})

	// Odds.
	register("odds", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Event.Odds == nil {
			return ""
		}
		return g.Event.Odds.Details
	})
	register("over_under", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || g.Event.Odds == nil || g.Event.Odds.OverUnder == 0 {
			return ""
		}
		return strconv.FormatFloat(g.Event.Odds.OverUnder, 'f', 1, 64)
	})

	// Leaders.
	register("leaders", PolicyAll, func(_ *TemplateContext, g *GameContext) string {
		if g == nil || len(g.Leaders) == 0 {
			return ""
		}
		parts := make([]string, 0, len(g.Leaders))
		for _, l := range g.Leaders {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", capitalize(l.Category), l.PlayerName, l.Value))
		}
		return strings.Join(parts, "; ")
	})

	// Soccer.
	register("source_league", PolicyAll, func(c *TemplateContext, g *GameContext) string {
		if g == nil || g.SourceLeague == "" {
			return ""
		}
		return g.SourceLeague
	})
	register("competitions", PolicyBaseOnly, func(c *TemplateContext, _ *GameContext) string {
		if c.Stats == nil || len(c.Stats.Leagues) == 0 {
			return ""
		}
		return strings.Join(c.Stats.Leagues, ", ")
	})
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func streakDisplay(n int) string {
	st := provider.TeamStats{Streak: n}
	return st.StreakDisplay()
}

func formatClock(c *TemplateContext, g *GameContext) string {
	t := g.Event.Start.In(c.Location)
	layout := "15:04"
	if c.Use12Hour {
		layout = "3:04 PM"
	}
	s := t.Format(layout)
	if c.ShowTimezone {
		s += " " + t.Format("MST")
	}
	return s
}
