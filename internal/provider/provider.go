// SPDX-License-Identifier: MIT

package provider

import (
	"context"
	"time"
)

// Provider is the capability set every upstream sports data source exposes.
// Each method returns a provider-neutral value or a typed failure; callers
// distinguish failure kinds with errors.Is against the package sentinels.
type Provider interface {
	Name() string

	// SupportsLeague reports whether this provider has an enabled mapping for
	// the canonical league code.
	SupportsLeague(league string) bool

	// ListEvents returns all events for the league on the given date.
	ListEvents(ctx context.Context, league string, date time.Time) ([]Event, error)

	// TeamSchedule returns the team's schedule covering daysAhead forward days
	// (negative values reach back for extended-context lookups).
	TeamSchedule(ctx context.Context, teamID, league string, daysAhead int) ([]Event, error)

	// Scoreboard returns the league scoreboard for a date, typically enriched
	// with live scores, odds and expanded broadcast lists.
	Scoreboard(ctx context.Context, league string, date time.Time) ([]Event, error)

	TeamInfo(ctx context.Context, teamID, league string) (*Team, error)
	TeamStats(ctx context.Context, teamID, league string) (*TeamStats, error)
	Standings(ctx context.Context, league string) ([]Standing, error)
	ListTeams(ctx context.Context, league string) ([]Team, error)
	ListConferences(ctx context.Context, league string) ([]Conference, error)
	ConferenceTeams(ctx context.Context, conferenceID string) ([]Team, error)
}
