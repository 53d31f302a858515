// SPDX-License-Identifier: MIT

package tsdb

import (
	"strings"
	"time"

	"github.com/teamcast/teamcast/internal/provider"
)

// TheSportsDB returns everything as strings and uses different top-level keys
// per endpoint ("events" vs "results").
type wireEvents struct {
	Events  []wireEvent `json:"events"`
	Results []wireEvent `json:"results"`
}

type wireEvent struct {
	ID         string `json:"idEvent"`
	Name       string `json:"strEvent"`
	Sport      string `json:"strSport"`
	League     string `json:"strLeague"`
	HomeTeam   string `json:"strHomeTeam"`
	AwayTeam   string `json:"strAwayTeam"`
	HomeTeamID string `json:"idHomeTeam"`
	AwayTeamID string `json:"idAwayTeam"`
	HomeScore  string `json:"intHomeScore"`
	AwayScore  string `json:"intAwayScore"`
	Date       string `json:"dateEvent"`
	Time       string `json:"strTime"`
	Timestamp  string `json:"strTimestamp"`
	Venue      string `json:"strVenue"`
	City       string `json:"strCity"`
	Status     string `json:"strStatus"`
	Postponed  string `json:"strPostponed"`
	Season     string `json:"strSeason"`
	Thumb      string `json:"strThumb"`
	TV         string `json:"strTVStation"`
}

type wireTeams struct {
	Teams []wireTeam `json:"teams"`
}

type wireTeam struct {
	ID        string `json:"idTeam"`
	Name      string `json:"strTeam"`
	ShortName string `json:"strTeamShort"`
	AltName   string `json:"strAlternate"`
	League    string `json:"strLeague"`
	Sport     string `json:"strSport"`
	Badge     string `json:"strBadge"`
	Stadium   string `json:"strStadium"`
	Location  string `json:"strLocation"`
}

type wireTable struct {
	Table []wireTableRow `json:"table"`
}

type wireTableRow struct {
	TeamID string `json:"idTeam"`
	Name   string `json:"strTeam"`
	Badge  string `json:"strBadge"`
	Played string `json:"intPlayed"`
	Win    string `json:"intWin"`
	Loss   string `json:"intLoss"`
	Draw   string `json:"intDraw"`
	Points string `json:"intPoints"`
}

func projectTeam(w wireTeam) provider.Team {
	return provider.Team{
		ID:        w.ID,
		Name:      w.Name,
		ShortName: w.ShortName,
		Location:  w.Location,
		LogoURL:   w.Badge,
	}
}

func (c *Client) projectEvents(wires []wireEvent, league string) []provider.Event {
	out := make([]provider.Event, 0, len(wires))
	for _, w := range wires {
		ev, ok := c.projectEvent(w, league)
		if !ok {
			c.logger.Warn().
				Str("event", "project.skip_malformed").
				Str("league", league).
				Str("id", w.ID).
				Msg("skipping malformed event")
			continue
		}
		out = append(out, ev)
	}
	return out
}

func (c *Client) projectEvent(w wireEvent, league string) (provider.Event, bool) {
	if w.ID == "" || w.HomeTeamID == "" || w.AwayTeamID == "" {
		return provider.Event{}, false
	}
	start, ok := parseStart(w)
	if !ok {
		return provider.Event{}, false
	}

	ev := provider.Event{
		ID:     w.ID,
		League: league,
		Sport:  strings.ToLower(w.Sport),
		Start:  start,
		Home:   provider.Team{ID: w.HomeTeamID, Name: w.HomeTeam},
		Away:   provider.Team{ID: w.AwayTeamID, Name: w.AwayTeam},
		Venue:  provider.Venue{Name: w.Venue, City: w.City},
	}
	if w.TV != "" {
		ev.Broadcasts = []string{w.TV}
	}

	ev.Status = projectStatus(w)
	if ev.Status.State != provider.StatePre {
		if hs, ok := atoiPtr(w.HomeScore); ok {
			ev.HomeScore = hs
		}
		if as, ok := atoiPtr(w.AwayScore); ok {
			ev.AwayScore = as
		}
	}
	return ev, true
}

func projectStatus(w wireEvent) provider.EventStatus {
	st := provider.EventStatus{Detail: w.Status}
	switch {
	case strings.EqualFold(w.Postponed, "yes"):
		st.State = provider.StatePostponed
	case strings.EqualFold(w.Status, "Match Finished"), strings.EqualFold(w.Status, "FT"),
		strings.EqualFold(w.Status, "AET"), strings.EqualFold(w.Status, "PEN"):
		st.State = provider.StateFinal
		st.Completed = true
	case strings.EqualFold(w.Status, "Cancelled"), strings.EqualFold(w.Status, "Canceled"):
		st.State = provider.StateCancelled
	case w.Status == "" || strings.EqualFold(w.Status, "Not Started") || strings.EqualFold(w.Status, "NS"):
		st.State = provider.StatePre
	default:
		st.State = provider.StateInProgress
	}
	return st
}

func parseStart(w wireEvent) (time.Time, bool) {
	if w.Timestamp != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if t, err := time.Parse(layout, w.Timestamp); err == nil {
				return t.UTC(), true
			}
		}
	}
	if w.Date == "" {
		return time.Time{}, false
	}
	clock := w.Time
	if clock == "" {
		clock = "00:00:00"
	}
	if t, err := time.Parse("2006-01-02 15:04:05", w.Date+" "+clock); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse("2006-01-02", w.Date); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func atoiPtr(s string) (*int, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, false
		}
		n = n*10 + int(r-'0')
	}
	return &n, true
}
