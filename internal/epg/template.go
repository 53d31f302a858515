// SPDX-License-Identifier: MIT

package epg

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([a-z0-9_]+)(?:\.(next|last))?\}`)

// Resolve substitutes every {variable} placeholder in the template against
// the context. Unknown variables and out-of-policy suffixes resolve to empty
// string; resolution never fails.
func Resolve(template string, ctx *TemplateContext) string {
	if template == "" || ctx == nil {
		return template
	}
	out := placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		m := placeholderPattern.FindStringSubmatch(tok)
		name, suffix := m[1], m[2]
		v, ok := Lookup(name)
		if !ok {
			return ""
		}
		game, ok := gameForSuffix(ctx, v.Policy, suffix)
		if !ok {
			return ""
		}
		return v.Fn(ctx, game)
	})
	return tidy(out)
}

// gameForSuffix selects which game context the suffix addresses, honoring
// the variable's policy.
func gameForSuffix(ctx *TemplateContext, policy SuffixPolicy, suffix string) (*GameContext, bool) {
	switch suffix {
	case "":
		if policy == PolicyLastOnly {
			return nil, false
		}
		return ctx.Current, true
	case "next":
		if policy != PolicyAll {
			return nil, false
		}
		return ctx.Next, true
	case "last":
		if policy == PolicyBaseOnly {
			return nil, false
		}
		return ctx.Last, true
	default:
		return nil, false
	}
}

var multiSpace = regexp.MustCompile(`  +`)

// tidy collapses artifacts of empty substitutions: doubled spaces, stray
// space before punctuation, leading/trailing separators.
func tidy(s string) string {
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ,", ",")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "-–")
	return strings.TrimSpace(s)
}
