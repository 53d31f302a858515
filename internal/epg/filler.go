// SPDX-License-Identifier: MIT

package epg

import (
	"math/rand"
	"time"

	"github.com/teamcast/teamcast/internal/metrics"
)

// blockHours is the filler alignment grid: 00:00, 06:00, 12:00, 18:00 local.
const blockHours = 6

// offseasonLookahead is how far ahead we look for an upcoming game before
// declaring the channel offseason.
const offseasonLookahead = 30 * 24 * time.Hour

// Filler partitions the time outside game programs into block-aligned
// programs. ContextAt supplies a template context as of a given instant, so
// filler text can reference the next and last game relative to its own slot.
type Filler struct {
	Settings  Settings
	Template  Template
	ContextAt func(at time.Time) *TemplateContext
	RNG       *rand.Rand
}

// Fill covers every gap in [windowStart, windowEnd) not occupied by games.
// games must be sorted by start and non-overlapping.
func (f *Filler) Fill(channelID string, games []Program, windowStart, windowEnd time.Time) []Program {
	var out []Program
	cursor := windowStart
	for _, g := range games {
		if g.Start.After(cursor) {
			out = append(out, f.fillGap(channelID, cursor, g.Start, games)...)
		}
		if g.Stop.After(cursor) {
			cursor = g.Stop
		}
	}
	if cursor.Before(windowEnd) {
		out = append(out, f.fillGap(channelID, cursor, windowEnd, games)...)
	}
	return out
}

// fillGap walks the gap emitting one program per six-hour block segment.
func (f *Filler) fillGap(channelID string, start, end time.Time, games []Program) []Program {
	loc := f.Settings.Timezone
	if loc == nil {
		loc = time.UTC
	}
	var out []Program
	cursor := start
	for cursor.Before(end) {
		stop := nextBlockBoundary(cursor, loc)
		if stop.After(end) {
			stop = end
		}
		kind := f.classify(cursor, start, end, games, loc)
		out = append(out, f.program(channelID, cursor, stop, kind))
		metrics.ProgramGenerated(string(kind))
		cursor = stop
	}
	return out
}

// classify decides the filler kind of the segment starting at cursor.
func (f *Filler) classify(cursor, gapStart, gapEnd time.Time, games []Program, loc *time.Location) ProgramKind {
	prevGame := gameEndingAt(games, gapStart)
	nextGame := gameStartingAt(games, gapEnd)

	day := cursor.In(loc).YearDay()

	if nextGame != nil && nextGame.Start.In(loc).YearDay() == day {
		return KindPregame
	}
	if prevGame != nil {
		endDay := prevGame.Stop.In(loc).YearDay()
		startDay := prevGame.Start.In(loc).YearDay()
		if endDay == day {
			if startDay != endDay && nextGame == nil {
				// Game ran past midnight with nothing scheduled next: the
				// crossover setting picks the day-after classification.
				if f.Settings.Crossover == CrossoverIdle {
					return f.idleKind(cursor)
				}
			}
			return KindPostgame
		}
	}
	return f.idleKind(cursor)
}

// idleKind applies the idle selection tiers: offseason first, then plain idle.
// The final vs not-final conditional is resolved at template selection time.
func (f *Filler) idleKind(at time.Time) ProgramKind {
	if f.Template.OffseasonEnabled {
		ctx := f.ContextAt(at)
		if ctx != nil && ctx.Next == nil {
			return KindOffseason
		}
		if ctx != nil && ctx.Next != nil && ctx.Next.Event.Start.Sub(at) > offseasonLookahead {
			return KindOffseason
		}
	}
	return KindIdle
}

func (f *Filler) program(channelID string, start, stop time.Time, kind ProgramKind) Program {
	ctx := f.ContextAt(start)
	title, subtitle, desc := f.text(kind, ctx)
	return Program{
		ChannelID:   channelID,
		Start:       start,
		Stop:        stop,
		Title:       Resolve(title, ctx),
		Subtitle:    Resolve(subtitle, ctx),
		Description: Resolve(desc, ctx),
		Icon:        f.Template.ArtworkURL,
		Categories:  []string{"Sports"},
		Kind:        kind,
	}
}

// text selects the raw template strings for a filler kind, applying the
// postgame and idle final/not-final conditionals.
func (f *Filler) text(kind ProgramKind, ctx *TemplateContext) (title, subtitle, desc string) {
	t := f.Template
	switch kind {
	case KindPregame:
		return t.PregameTitle, t.PregameSubtitle, t.PregameDescription
	case KindPostgame:
		desc = t.PostgameDescription
		if !lastGameFinal(ctx) && t.PostgameNotFinalDescription != "" {
			desc = t.PostgameNotFinalDescription
		}
		return t.PostgameTitle, t.PostgameSubtitle, desc
	case KindOffseason:
		return t.OffseasonTitle, "", t.OffseasonDescription
	default:
		desc = t.IdleDescription
		if lastGameFinal(ctx) {
			if t.IdleFinalDescription != "" {
				desc = t.IdleFinalDescription
			}
		} else if t.IdleNotFinalDescription != "" {
			desc = t.IdleNotFinalDescription
		}
		if len(t.Conditionals) > 0 && f.RNG != nil {
			if picked := SelectDescription(t.Conditionals, ctx, f.RNG); picked != "" {
				desc = picked
			}
		}
		return t.IdleTitle, t.IdleSubtitle, desc
	}
}

func lastGameFinal(ctx *TemplateContext) bool {
	return ctx != nil && ctx.Last != nil && ctx.Last.Event.Status.Completed
}

// nextBlockBoundary returns the first 00/06/12/18 local boundary strictly
// after t.
func nextBlockBoundary(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	blockStart := time.Date(lt.Year(), lt.Month(), lt.Day(), (lt.Hour()/blockHours)*blockHours, 0, 0, 0, loc)
	return blockStart.Add(blockHours * time.Hour)
}

func gameEndingAt(games []Program, t time.Time) *Program {
	for i := range games {
		if games[i].Stop.Equal(t) {
			return &games[i]
		}
	}
	return nil
}

func gameStartingAt(games []Program, t time.Time) *Program {
	for i := range games {
		if games[i].Start.Equal(t) {
			return &games[i]
		}
	}
	return nil
}
