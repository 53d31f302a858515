// SPDX-License-Identifier: MIT

// Package espn implements the provider.Provider capability set against the
// ESPN site API. Responses are treated as opaque trees and projected into the
// neutral model at this boundary; every field the projection needs tolerates
// the shapes the API is known to produce.
package espn

import (
	"encoding/json"
	"strconv"
	"strings"
)

// flexScore tolerates scores returned as a number, a string, or an object
// with a numeric sub-field ("value" / "displayValue").
type flexScore struct {
	Value *int
}

func (s *flexScore) UnmarshalJSON(data []byte) error {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" || string(data) == `""` {
		return nil
	}
	// Plain number
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		v := int(n)
		s.Value = &v
		return nil
	}
	// Quoted string
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(str)); err == nil {
			s.Value = &v
		}
		return nil
	}
	// Object with a numeric sub-field
	var obj struct {
		Value        *float64 `json:"value"`
		DisplayValue string   `json:"displayValue"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		if obj.Value != nil {
			v := int(*obj.Value)
			s.Value = &v
		} else if obj.DisplayValue != "" {
			if v, err := strconv.Atoi(strings.TrimSpace(obj.DisplayValue)); err == nil {
				s.Value = &v
			}
		}
		return nil
	}
	// Unknown shape: treat as absent rather than failing the event.
	return nil
}

// flexBroadcasts tolerates broadcast lists of mixed shape: plain strings,
// objects with `names: [string]`, or objects with `name: string`.
type flexBroadcasts []string

func (b *flexBroadcasts) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	var out []string
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			if s != "" {
				out = append(out, s)
			}
			continue
		}
		var obj struct {
			Names []string `json:"names"`
			Name  string   `json:"name"`
			Media struct {
				ShortName string `json:"shortName"`
			} `json:"media"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			continue
		}
		switch {
		case len(obj.Names) > 0:
			out = append(out, obj.Names...)
		case obj.Name != "":
			out = append(out, obj.Name)
		case obj.Media.ShortName != "":
			out = append(out, obj.Media.ShortName)
		}
	}
	*b = out
	return nil
}

// flexRecords tolerates records returned either as an object or a typed list.
type flexRecords []wireRecord

func (r *flexRecords) UnmarshalJSON(data []byte) error {
	var list []wireRecord
	if err := json.Unmarshal(data, &list); err == nil {
		*r = list
		return nil
	}
	var single wireRecord
	if err := json.Unmarshal(data, &single); err == nil {
		*r = []wireRecord{single}
	}
	return nil
}

type wireRecord struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Summary string `json:"summary"`
	Stats   []struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	} `json:"stats"`
}

func (r wireRecord) stat(name string) (float64, bool) {
	for _, s := range r.Stats {
		if s.Name == name {
			return s.Value, true
		}
	}
	return 0, false
}

type wireScoreboard struct {
	Events  []wireEvent `json:"events"`
	Leagues []struct {
		Name   string `json:"name"`
		Season struct {
			Type struct {
				Type int `json:"type"`
			} `json:"type"`
		} `json:"season"`
	} `json:"leagues"`
}

type wireEvent struct {
	ID     string `json:"id"`
	Date   string `json:"date"`
	Name   string `json:"name"`
	Season struct {
		Type int `json:"type"`
	} `json:"season"`
	Competitions []wireCompetition `json:"competitions"`
	Status       wireStatus        `json:"status"`
}

type wireStatus struct {
	Period int `json:"period"`
	Type   struct {
		Name        string `json:"name"`
		State       string `json:"state"`
		Completed   bool   `json:"completed"`
		Description string `json:"description"`
		ShortDetail string `json:"shortDetail"`
	} `json:"type"`
}

type wireCompetition struct {
	ID             string           `json:"id"`
	Date           string           `json:"date"`
	ConferenceGame bool             `json:"conferenceCompetition"`
	Competitors    []wireCompetitor `json:"competitors"`
	Venue          struct {
		FullName string `json:"fullName"`
		Address  struct {
			City  string `json:"city"`
			State string `json:"state"`
		} `json:"address"`
		Indoor bool `json:"indoor"`
	} `json:"venue"`
	Broadcasts flexBroadcasts    `json:"broadcasts"`
	Odds       []json.RawMessage `json:"odds"` // entries may be null
	Status     *wireStatus       `json:"status"`
}

type wireOdds struct {
	Details   string   `json:"details"`
	Spread    *float64 `json:"spread"`
	OverUnder *float64 `json:"overUnder"`
	Provider  struct {
		Name string `json:"name"`
	} `json:"provider"`
	HomeTeamOdds struct {
		MoneyLine *int `json:"moneyLine"`
	} `json:"homeTeamOdds"`
	AwayTeamOdds struct {
		MoneyLine *int `json:"moneyLine"`
	} `json:"awayTeamOdds"`
}

type wireCompetitor struct {
	ID          string    `json:"id"`
	HomeAway    string    `json:"homeAway"`
	Score       flexScore `json:"score"`
	CuratedRank *struct {
		Current int `json:"current"`
	} `json:"curatedRank"`
	Team    wireTeam    `json:"team"`
	Records flexRecords `json:"records"`
}

type wireTeam struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	ShortName    string `json:"shortDisplayName"`
	Name         string `json:"name"`
	Nickname     string `json:"nickname"`
	Location     string `json:"location"`
	Abbreviation string `json:"abbreviation"`
	Slug         string `json:"slug"`
	Color        string `json:"color"`
	Logos        []struct {
		Href string `json:"href"`
	} `json:"logos"`
	Logo string `json:"logo"`
}

type wireTeamList struct {
	Sports []struct {
		Leagues []struct {
			Teams []struct {
				Team wireTeam `json:"team"`
			} `json:"teams"`
		} `json:"leagues"`
	} `json:"sports"`
}

type wireTeamDetail struct {
	Team struct {
		wireTeam
		Rank            int    `json:"rank"`
		StandingSummary string `json:"standingSummary"`
		Record          struct {
			Items flexRecords `json:"items"`
		} `json:"record"`
		Groups struct {
			ID           string `json:"id"`
			Name         string `json:"name"`
			ShortName    string `json:"shortName"`
			IsConference bool   `json:"isConference"`
		} `json:"groups"`
		NextEvent []wireEvent `json:"nextEvent"`
	} `json:"team"`
}

type wireSchedule struct {
	Events []wireEvent `json:"events"`
	Team   wireTeam    `json:"team"`
}

type wireStandings struct {
	Children []struct {
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
		Standings    struct {
			Entries []wireStandingEntry `json:"entries"`
		} `json:"standings"`
	} `json:"children"`
	Standings struct {
		Entries []wireStandingEntry `json:"entries"`
	} `json:"standings"`
}

type wireStandingEntry struct {
	Team  wireTeam `json:"team"`
	Stats []struct {
		Name         string  `json:"name"`
		Type         string  `json:"type"`
		Value        float64 `json:"value"`
		DisplayValue string  `json:"displayValue"`
		Summary      string  `json:"summary"`
	} `json:"stats"`
}

type wireGroups struct {
	Groups []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
	} `json:"groups"`
	Children []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Abbreviation string `json:"abbreviation"`
	} `json:"children"`
}
