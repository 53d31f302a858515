// SPDX-License-Identifier: MIT

package match

import (
	"regexp"
	"strings"
	"time"
)

// Category is the classifier's verdict on what kind of stream a name is.
type Category string

const (
	CategoryGame        Category = "game"        // two teams identified
	CategoryEventCard   Category = "event_card"  // single-event league card (UFC 300 etc.)
	CategoryPlaceholder Category = "placeholder" // dead / filler / no-event channel
	CategoryUnknown     Category = "unknown"
)

// Classification is the structured reading of one normalized stream name.
type Classification struct {
	Category Category
	Team1    string // home side when the separator implies order, else first
	Team2    string
	AtVenue  bool // separator was "at"/"@": team1 is the visitor
	Date     *time.Time
	Time     *Clock
	Raw      string
}

// OverridePattern is a user-supplied regex that takes precedence over the
// built-in separator scan. Named capture groups team1, team2, date and time
// are honored; anything else is ignored.
type OverridePattern struct {
	League string
	Re     *regexp.Regexp
}

// Classifier splits normalized stream names into team pairs. Overrides are
// tried in order before the generic rules.
type Classifier struct {
	Overrides []OverridePattern
}

var placeholderRe = regexp.MustCompile(`(?i)\b(?:no (?:event|game)s?|off ?air|dead|placeholder|coming soon|24/7|channel (?:unavailable|offline)|tba|tbd)\b`)

// eventCardRe matches numbered fight/event cards where there is no team pair.
var eventCardRe = regexp.MustCompile(`(?i)\b(?:ufc|bellator|pfl|one championship|boxing|wwe|aew)\b.*?(?:\d{1,4}|fight night|main card|prelims|ppv)?`)

var dateLikeRe = regexp.MustCompile(`^\s*(?:[0-3]?[0-9](?:st|nd|rd|th)?\s+)?(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)|^\s*[0-3]?[0-9][/.-][01]?[0-9]`)

// Classify reads one already-normalized name. The Date/Time extracted during
// normalization are threaded through unchanged.
func (c *Classifier) Classify(n Normalized) Classification {
	out := Classification{Category: CategoryUnknown, Raw: n.Text, Date: n.Date, Time: n.Time}
	text := n.Text

	if text == "" || placeholderRe.MatchString(text) {
		out.Category = CategoryPlaceholder
		return out
	}

	for _, ov := range c.Overrides {
		m := ov.Re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		names := ov.Re.SubexpNames()
		for i, name := range names {
			if i == 0 || i >= len(m) {
				continue
			}
			switch name {
			case "team1":
				out.Team1 = strings.TrimSpace(m[i])
			case "team2":
				out.Team2 = strings.TrimSpace(m[i])
			case "date":
				if t, err := time.Parse("2006-01-02", m[i]); err == nil {
					out.Date = &t
				}
			case "time":
				if t, err := time.Parse("15:04", m[i]); err == nil {
					out.Time = &Clock{Hour: t.Hour(), Minute: t.Minute()}
				}
			}
		}
		if out.Team1 != "" && out.Team2 != "" {
			out.Category = CategoryGame
			return out
		}
	}

	if t1, t2, atVenue, ok := splitSeparator(text); ok {
		out.Category = CategoryGame
		out.Team1, out.Team2 = t1, t2
		out.AtVenue = atVenue
		return out
	}

	if eventCardRe.MatchString(text) && !strings.Contains(text, " vs") {
		out.Category = CategoryEventCard
		return out
	}

	return out
}

// splitSeparator finds the first game separator and returns both sides.
// "@" followed by date-like text ("thunder @ dec 25") is a schedule note, not
// a venue separator, so it is skipped in favor of a later separator.
func splitSeparator(text string) (team1, team2 string, atVenue, ok bool) {
	for _, sep := range gameSeparators {
		idx := 0
		for {
			i := strings.Index(text[idx:], sep)
			if i < 0 {
				break
			}
			i += idx
			left := strings.TrimSpace(text[:i])
			right := strings.TrimSpace(text[i+len(sep):])
			if (sep == " @ " || sep == " at ") && dateLikeRe.MatchString(right) {
				idx = i + len(sep)
				continue
			}
			if left == "" || right == "" {
				break
			}
			return left, right, sep == " @ " || sep == " at ", true
		}
	}
	return "", "", false, false
}

// FindTeamsAnywhere is the fallback when no separator is present: scan for two
// known team names appearing as substrings. Candidates must not overlap and
// are taken in positional order. Used only against a bounded league roster.
func FindTeamsAnywhere(text string, rosterNames []string) (team1, team2 string, ok bool) {
	type hit struct {
		name  string
		start int
		end   int
	}
	var hits []hit
	for _, name := range rosterNames {
		if name == "" {
			continue
		}
		if i := indexWord(text, name); i >= 0 {
			hits = append(hits, hit{name: name, start: i, end: i + len(name)})
		}
	}
	if len(hits) < 2 {
		return "", "", false
	}
	// Positional order, longest hit wins on overlap.
	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].start < hits[i].start ||
				(hits[j].start == hits[i].start && hits[j].end > hits[i].end) {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	first := hits[0]
	for _, h := range hits[1:] {
		if h.start >= first.end {
			return first.name, h.name, true
		}
	}
	return "", "", false
}

// indexWord finds sub in s at a token boundary.
func indexWord(s, sub string) int {
	from := 0
	for {
		i := strings.Index(s[from:], sub)
		if i < 0 {
			return -1
		}
		i += from
		leftOK := i == 0 || s[i-1] == ' '
		r := i + len(sub)
		rightOK := r == len(s) || s[r] == ' '
		if leftOK && rightOK {
			return i
		}
		from = i + 1
	}
}
