// SPDX-License-Identifier: MIT

// Package match turns raw IPTV stream names into canonical (event, league)
// pairs: a lexical normalizer, a stream classifier, a fuzzy team matcher and
// the multi-tier matching pipeline on top of them.
package match

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Clock is a wall-clock time of day extracted from a stream name.
type Clock struct {
	Hour   int
	Minute int
}

// Normalized is the output of the lexical scrubber: the canonical lowercase
// token string plus any date and time parsed out of the original.
type Normalized struct {
	Text string
	Date *time.Time // date component only, year may be inferred
	Time *Clock
}

// mojibake maps known UTF-8-as-Latin-1 double encodings back to the intended
// rune. Applied before any other step so downstream tables see clean text.
var mojibake = strings.NewReplacer(
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¼", "ü",
	"Ã¶", "ö",
	"Ã¤", "ä",
	"Ã¡", "á",
	"Ã ", "à",
	"Ã³", "ó",
	"Ãº", "ú",
	"Ã±", "ñ",
	"Ã§", "ç",
	"Ã­", "í",
	"Ã£", "ã",
	"Ãµ", "õ",
	"Ã¸", "ø",
	"Ã…", "Å",
	"â€™", "'",
	"â€“", "-",
)

// nameVariants is a one-way canonicalization of common spelling variants to
// the provider-canonical form. Never applied in reverse.
var nameVariants = map[string]string{
	"münchen":         "munich",
	"munchen":         "munich",
	"hertha bsc":      "hertha berlin",
	"inter milan":     "internazionale",
	"st leo":          "saint leo",
	"st. leo":         "saint leo",
	"man utd":         "manchester united",
	"man city":        "manchester city",
	"spurs":           "tottenham hotspur",
	"wolves":          "wolverhampton wanderers",
	"leeds utd":       "leeds united",
	"gladbach":        "borussia monchengladbach",
	"koln":            "cologne",
	"köln":            "cologne",
	"olympique lyon":  "lyon",
	"sporting lisbon": "sporting cp",
	"psg":             "paris saint-germain",
	"juve":            "juventus",
	"napoli sc":       "napoli",
	"ny red bulls":    "new york red bulls",
	"la galaxy":       "los angeles galaxy",
}

var (
	countryPrefixRe = regexp.MustCompile(`^\s*(?:\(?(?:UK|USA?|CA|AU|NZ|IE|DE|FR|ES|IT|PT|BR|MX|AR)\)?\s*[:|\-]\s*|\((?:UK|USA?|CA|AU|NZ|IE)\)\s*)`)
	providerParenRe = regexp.MustCompile(`(?i)\((?:[^)]*\b(?:sky|dazn|peacock|tsn|fox|nbc|cbs|abc|espn|bein|amazon|prime)\b[^)]*)\)`)

	time12Re     = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9]):([0-5][0-9])\s*([ap])\.?m\.?\b`)
	time12HourRe = regexp.MustCompile(`(?i)\b(1[0-2]|0?[1-9])\s*([ap])\.?m\.?\b`)
	time24Re     = regexp.MustCompile(`\b([01]?[0-9]|2[0-3]):([0-5][0-9])\b`)

	dateISORe   = regexp.MustCompile(`\b(20[0-9]{2})-([01]?[0-9])-([0-3]?[0-9])\b`)
	dateSlashRe = regexp.MustCompile(`\b([01]?[0-9])/([0-3]?[0-9])(?:/((?:20)?[0-9]{2}))?\b`)
	dateTextRe  = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+([0-3]?[0-9])(?:st|nd|rd|th)?\b`)

	tzAbbrevRe  = regexp.MustCompile(`(?i)\b(?:ET|EST|EDT|CT|CST|CDT|MT|MST|MDT|PT|PST|PDT|GMT|UTC|BST|CET|CEST|AEST|AEDT)\b`)
	channelNoRe = regexp.MustCompile(`(?i)\b(?:ch(?:annel)?\s*)?#?\d{2,4}\s*[:|\-]`)
	rankHashRe  = regexp.MustCompile(`#\d{1,2}\b`)
	rankBareRe  = regexp.MustCompile(`\b([1-9]|1[0-9]|2[0-5])\s+([A-Za-z(])`)
	bracketRe   = regexp.MustCompile(`[\[\]{}|]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

var monthNums = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// maskRune stands in for every character of a masked time or date token.
// Masking instead of deleting preserves positional offsets so the
// metadata-colon detection still sees where colons are.
const maskRune = '\x01'

// Normalizer scrubs raw stream names. Zero value is usable; ExceptionKeywords
// carries the user-configured phrases stripped in step 6.
type Normalizer struct {
	ExceptionKeywords []string
}

// Normalize converts a raw stream name to its canonical form. Idempotent:
// Normalize(Normalize(s).Text).Text == Normalize(s).Text.
func (n *Normalizer) Normalize(raw string) Normalized {
	s := mojibake.Replace(raw)

	// Country / provider prefixes.
	s = countryPrefixRe.ReplaceAllString(s, "")
	s = providerParenRe.ReplaceAllString(s, " ")

	// Time masking, most specific pattern first. The parsed value is kept.
	var clock *Clock
	s = maskAll(s, time12Re, func(m []string) {
		if clock == nil {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			clock = &Clock{Hour: to24(h, m[3]), Minute: min}
		}
	})
	s = maskAll(s, time24Re, func(m []string) {
		if clock == nil {
			h, _ := strconv.Atoi(m[1])
			min, _ := strconv.Atoi(m[2])
			clock = &Clock{Hour: h, Minute: min}
		}
	})
	s = maskAll(s, time12HourRe, func(m []string) {
		if clock == nil {
			h, _ := strconv.Atoi(m[1])
			clock = &Clock{Hour: to24(h, m[2])}
		}
	})

	// Date masking.
	var date *time.Time
	s = maskAll(s, dateISORe, func(m []string) {
		if date == nil {
			y, _ := strconv.Atoi(m[1])
			mo, _ := strconv.Atoi(m[2])
			d, _ := strconv.Atoi(m[3])
			t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
			date = &t
		}
	})
	s = maskAll(s, dateTextRe, func(m []string) {
		if date == nil {
			mo := monthNums[strings.ToLower(m[1])[:3]]
			d, _ := strconv.Atoi(m[2])
			t := time.Date(0, mo, d, 0, 0, 0, 0, time.UTC)
			date = &t
		}
	})
	s = maskAll(s, dateSlashRe, func(m []string) {
		if date == nil {
			mo, _ := strconv.Atoi(m[1])
			d, _ := strconv.Atoi(m[2])
			y := 0
			if m[3] != "" {
				y, _ = strconv.Atoi(m[3])
				if y < 100 {
					y += 2000
				}
			}
			if mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
				t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
				date = &t
			}
		}
	})

	// Metadata-colon strip: a colon surviving the masks is not part of a time
	// token; everything through the last one before the game separator is
	// channel metadata.
	s = stripMetadataColon(s)

	// Exception keyword strip.
	for _, kw := range n.ExceptionKeywords {
		if kw == "" {
			continue
		}
		s = removeFold(s, kw)
	}

	// Lex scrubbing.
	s = strings.Map(func(r rune) rune {
		if r == maskRune {
			return ' '
		}
		return r
	}, s)
	s = tzAbbrevRe.ReplaceAllString(s, " ")
	s = channelNoRe.ReplaceAllString(s, " ")
	s = rankHashRe.ReplaceAllString(s, " ")
	s = rankBareRe.ReplaceAllString(s, "$2")
	s = stripNonStateParens(s)
	s = bracketRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "..", " ")
	s = strings.TrimSuffix(strings.TrimSpace(s), "@")
	s = strings.ToLower(s)
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	// Name-variant canonicalization, one-way.
	for variant, canonical := range nameVariants {
		s = replaceWord(s, variant, canonical)
	}
	s = spaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return Normalized{Text: s, Date: date, Time: clock}
}

func to24(h int, meridiem string) int {
	m := strings.ToLower(meridiem)
	switch {
	case m == "p" && h != 12:
		return h + 12
	case m == "a" && h == 12:
		return 0
	default:
		return h
	}
}

// maskAll replaces every match of re with mask runes of the same length,
// calling capture with the submatches of each.
func maskAll(s string, re *regexp.Regexp, capture func([]string)) string {
	return re.ReplaceAllStringFunc(s, func(tok string) string {
		if m := re.FindStringSubmatch(tok); m != nil {
			capture(m)
		}
		return strings.Repeat(string(maskRune), len(tok))
	})
}

// gameSeparators in detection-priority order. Longer, more explicit
// separators first so " vs. " is not split as " v ".
var gameSeparators = []string{" vs. ", " vs ", " at ", " @ ", " v. ", " v ", " x "}

// stripMetadataColon removes "NCAAB 01:"-style prefixes: everything up to and
// including the last colon that appears before the game separator. Colons
// inside times were masked before this runs.
func stripMetadataColon(s string) string {
	sepIdx := len(s)
	lower := strings.ToLower(s)
	for _, sep := range gameSeparators {
		if i := strings.Index(lower, sep); i >= 0 && i < sepIdx {
			sepIdx = i
		}
	}
	cut := -1
	for i := 0; i < sepIdx; i++ {
		if s[i] == ':' {
			cut = i
		}
	}
	if cut >= 0 {
		return s[cut+1:]
	}
	return s
}

// stripNonStateParens removes parentheticals unless the content is a US state
// abbreviation, so "Miami (OH)" stays distinct from "Miami".
func stripNonStateParens(s string) string {
	var b strings.Builder
	for {
		open := strings.IndexByte(s, '(')
		if open < 0 {
			b.WriteString(s)
			break
		}
		close := strings.IndexByte(s[open:], ')')
		if close < 0 {
			b.WriteString(s)
			break
		}
		close += open
		inner := strings.TrimSpace(s[open+1 : close])
		b.WriteString(s[:open])
		if isUSState(inner) {
			b.WriteString(s[open : close+1])
		} else {
			b.WriteByte(' ')
		}
		s = s[close+1:]
	}
	return b.String()
}

var usStates = map[string]bool{
	"al": true, "ak": true, "az": true, "ar": true, "ca": true, "co": true,
	"ct": true, "de": true, "fl": true, "ga": true, "hi": true, "id": true,
	"il": true, "in": true, "ia": true, "ks": true, "ky": true, "la": true,
	"me": true, "md": true, "ma": true, "mi": true, "mn": true, "ms": true,
	"mo": true, "mt": true, "ne": true, "nv": true, "nh": true, "nj": true,
	"nm": true, "ny": true, "nc": true, "nd": true, "oh": true, "ok": true,
	"or": true, "pa": true, "ri": true, "sc": true, "sd": true, "tn": true,
	"tx": true, "ut": true, "vt": true, "va": true, "wa": true, "wv": true,
	"wi": true, "wy": true, "dc": true,
}

func isUSState(s string) bool {
	return usStates[strings.ToLower(s)]
}

// removeFold removes every case-insensitive occurrence of sub from s.
func removeFold(s, sub string) string {
	lower := strings.ToLower(s)
	lowerSub := strings.ToLower(sub)
	for {
		i := strings.Index(lower, lowerSub)
		if i < 0 {
			return s
		}
		s = s[:i] + " " + s[i+len(sub):]
		lower = lower[:i] + " " + lower[i+len(sub):]
	}
}

// replaceWord replaces whole-token occurrences of old with new in a
// space-separated lowercase string.
func replaceWord(s, old, new string) string {
	if !strings.Contains(s, old) {
		return s
	}
	padded := " " + s + " "
	padded = strings.ReplaceAll(padded, " "+old+" ", " "+new+" ")
	return strings.TrimSpace(padded)
}

// StripAccents removes combining marks after NFD decomposition, so "Córdoba"
// compares equal to "Cordoba".
func StripAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
