// SPDX-License-Identifier: MIT

package cache

import "time"

// Fixed TTLs for non-dated provider operations.
const (
	TTLTeams      = 24 * time.Hour // teams / conferences lists
	TTLNextEvents = time.Hour      // league "next events"
	TTLTeamSearch = 24 * time.Hour // team search
	TTLTeamStats  = 6 * time.Hour  // per-(team, league) stats
)

// TieredTTL returns the cache TTL for a per-day fetch, tiered by how far the
// requested date is from now in the given location:
//
//	past >= 7 days   -> 7 days (results no longer change)
//	today            -> 30 minutes (live scores move)
//	tomorrow         -> 4 hours
//	3-7 days ahead   -> 8 hours
//	8+ days ahead    -> 24 hours
func TieredTTL(date, now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	d := dayStart(date, loc)
	n := dayStart(now, loc)
	days := int(d.Sub(n).Hours() / 24)

	switch {
	case days <= -7:
		return 7 * 24 * time.Hour
	case days < 0:
		// Recent past: finals can still be corrected upstream.
		return 4 * time.Hour
	case days == 0:
		return 30 * time.Minute
	case days == 1:
		return 4 * time.Hour
	case days <= 7:
		return 8 * time.Hour
	default:
		return 24 * time.Hour
	}
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
