// SPDX-License-Identifier: MIT

package espn

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/teamcast/teamcast/internal/provider"
)

func projectTeam(w wireTeam) provider.Team {
	t := provider.Team{
		ID:           w.ID,
		Name:         w.DisplayName,
		Abbreviation: w.Abbreviation,
		ShortName:    w.Name,
		Location:     w.Location,
		Slug:         w.Slug,
		Color:        w.Color,
		LogoURL:      w.Logo,
	}
	if t.Name == "" {
		t.Name = strings.TrimSpace(w.Location + " " + w.Name)
	}
	if t.ShortName == "" {
		t.ShortName = w.ShortName
	}
	if t.LogoURL == "" && len(w.Logos) > 0 {
		t.LogoURL = w.Logos[0].Href
	}
	return t
}

func projectState(s wireStatus) provider.EventStatus {
	st := provider.EventStatus{
		Completed: s.Type.Completed,
		Detail:    s.Type.Description,
		Period:    s.Period,
	}
	if st.Detail == "" {
		st.Detail = s.Type.ShortDetail
	}
	name := strings.ToUpper(s.Type.Name)
	switch {
	case strings.Contains(name, "POSTPONED"):
		st.State = provider.StatePostponed
	case strings.Contains(name, "CANCELED"), strings.Contains(name, "CANCELLED"):
		st.State = provider.StateCancelled
	default:
		switch s.Type.State {
		case "pre":
			st.State = provider.StatePre
		case "in":
			st.State = provider.StateInProgress
		case "post":
			st.State = provider.StateFinal
		default:
			if s.Type.Completed {
				st.State = provider.StateFinal
			} else {
				st.State = provider.StatePre
			}
		}
	}
	return st
}

func projectSeasonType(t int) provider.SeasonType {
	switch t {
	case 1:
		return provider.SeasonPre
	case 3:
		return provider.SeasonPost
	default:
		return provider.SeasonRegular
	}
}

// projectEvent turns one wire event into the neutral model. Events whose
// required fields are missing project to ok=false and are skipped upstream.
func projectEvent(w wireEvent, league, sport string) (provider.Event, bool) {
	if w.ID == "" || len(w.Competitions) == 0 {
		return provider.Event{}, false
	}
	comp := w.Competitions[0]

	dateStr := w.Date
	if dateStr == "" {
		dateStr = comp.Date
	}
	start, err := parseESPNTime(dateStr)
	if err != nil {
		return provider.Event{}, false
	}

	ev := provider.Event{
		ID:             w.ID,
		League:         league,
		Sport:          sport,
		Start:          start.UTC(),
		SeasonType:     projectSeasonType(w.Season.Type),
		Broadcasts:     comp.Broadcasts,
		ConferenceGame: comp.ConferenceGame,
		Venue: provider.Venue{
			Name:   comp.Venue.FullName,
			City:   comp.Venue.Address.City,
			State:  comp.Venue.Address.State,
			Indoor: comp.Venue.Indoor,
		},
	}

	status := w.Status
	if comp.Status != nil {
		status = *comp.Status
	}
	ev.Status = projectState(status)

	for _, c := range comp.Competitors {
		team := projectTeam(c.Team)
		if c.CuratedRank != nil && c.CuratedRank.Current >= 1 && c.CuratedRank.Current <= 25 {
			team.Rank = c.CuratedRank.Current
		}
		switch c.HomeAway {
		case "home":
			ev.Home = team
			if ev.Status.State != provider.StatePre {
				ev.HomeScore = c.Score.Value
			}
		case "away":
			ev.Away = team
			if ev.Status.State != provider.StatePre {
				ev.AwayScore = c.Score.Value
			}
		}
	}
	if ev.Home.ID == "" || ev.Away.ID == "" {
		return provider.Event{}, false
	}

	ev.Odds = projectOdds(comp.Odds)
	return ev, true
}

// projectOdds takes the first non-null odds entry. The array may contain
// nulls or partially filled entries.
func projectOdds(raw []json.RawMessage) *provider.Odds {
	for _, item := range raw {
		s := strings.TrimSpace(string(item))
		if s == "" || s == "null" {
			continue
		}
		var w wireOdds
		if err := json.Unmarshal(item, &w); err != nil {
			continue
		}
		if w.Details == "" && w.Spread == nil && w.OverUnder == nil {
			continue
		}
		o := &provider.Odds{
			Details:  w.Details,
			Provider: w.Provider.Name,
		}
		if w.Spread != nil {
			o.Spread = *w.Spread
		}
		if w.OverUnder != nil {
			o.OverUnder = *w.OverUnder
		}
		if w.HomeTeamOdds.MoneyLine != nil {
			o.HomeMoneyline = *w.HomeTeamOdds.MoneyLine
		}
		if w.AwayTeamOdds.MoneyLine != nil {
			o.AwayMoneyline = *w.AwayTeamOdds.MoneyLine
		}
		return o
	}
	return nil
}

func projectRecord(w wireRecord) provider.Record {
	rec := provider.Record{Summary: w.Summary}
	if v, ok := w.stat("wins"); ok {
		rec.Wins = int(v)
	}
	if v, ok := w.stat("losses"); ok {
		rec.Losses = int(v)
	}
	if v, ok := w.stat("ties"); ok {
		rec.Ties = int(v)
	}
	if v, ok := w.stat("winPercent"); ok {
		rec.WinPercent = v
	}
	return rec
}

// parseESPNTime accepts the timestamp shapes the API emits.
func parseESPNTime(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02T15:04Z",
		time.RFC3339,
		"2006-01-02T15:04:05Z",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339, Value: s}
}
