// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teamcast/teamcast/internal/epg"
	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/match"
	"github.com/teamcast/teamcast/internal/metrics"
	"github.com/teamcast/teamcast/internal/provider"
	"github.com/teamcast/teamcast/internal/store"
)

// Engine applies matcher results to the managed-channel set of a group.
type Engine struct {
	Store      *store.Store
	Middleware Middleware
	Leagues    *provider.LeagueMap
	Durations  epg.DurationSettings
	// Matcher resolves exception-keyword streams to their underlying event.
	Matcher *match.Matcher

	now func() time.Time
}

// NewEngine wires an engine.
func NewEngine(st *store.Store, mw Middleware, leagues *provider.LeagueMap, durations epg.DurationSettings, matcher *match.Matcher) *Engine {
	return &Engine{Store: st, Middleware: mw, Leagues: leagues, Durations: durations, Matcher: matcher, now: time.Now}
}

// SyncStats summarizes one group sync.
type SyncStats struct {
	Created     int
	Updated     int
	Reactivated int
	Skipped     int
	Errors      []string
}

// channelKey identifies the channel a matched stream belongs to: the event
// plus, in separate mode, its exception keyword.
type channelKey struct {
	eventID string
	keyword string
}

// SyncGroup reconciles the group's managed channels against the matched
// streams. At most one active channel exists per (event, keyword) pair.
func (e *Engine) SyncGroup(ctx context.Context, group store.EventGroup, results []match.Result) (SyncStats, error) {
	logger := log.WithComponentFromContext(ctx, "lifecycle")
	now := e.now()
	var stats SyncStats

	buckets := map[channelKey]*bucket{}
	for _, r := range results {
		switch r.Outcome {
		case match.OutcomeMatched:
		case match.OutcomeException:
			// Exception streams attach to the event hiding behind the
			// keyword; unresolvable ones are skipped.
			if e.Matcher == nil {
				stats.Skipped++
				continue
			}
			resolved := e.Matcher.MatchExcepted(ctx, r.Stream, match.GroupFilters{})
			if resolved.Outcome != match.OutcomeMatched {
				stats.Skipped++
				continue
			}
			resolved.Keyword = r.Keyword
			r = resolved
		default:
			continue
		}
		key := channelKey{eventID: r.Event.ID}
		if group.DuplicateMode == store.DuplicateSeparate {
			key.keyword = r.Keyword
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{event: r.Event, league: r.League, keyword: key.keyword}
			buckets[key] = b
		}
		b.streams = append(b.streams, r.Stream)
	}

	keys := make([]channelKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].eventID != keys[j].eventID {
			return keys[i].eventID < keys[j].eventID
		}
		return keys[i].keyword < keys[j].keyword
	})

	for _, key := range keys {
		b := buckets[key]
		if err := e.syncChannel(ctx, group, key, b, now, &stats); err != nil {
			logger.Warn().Err(err).
				Str("event", "sync.channel_failed").
				Str("event_id", key.eventID).
				Msg("channel sync failed")
			stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", key.eventID, err))
		}
	}

	logger.Info().
		Str("event", "sync.complete").
		Int64("group", group.ID).
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("reactivated", stats.Reactivated).
		Msg("group sync finished")
	return stats, nil
}

type bucket struct {
	event   provider.Event
	league  string
	keyword string
	streams []match.Stream
}

func (e *Engine) syncChannel(ctx context.Context, group store.EventGroup, key channelKey, b *bucket, now time.Time, stats *SyncStats) error {
	eventEnd := b.event.Start.Add(time.Duration(e.Durations.Minutes(0, e.Leagues.Sport(b.league))) * time.Minute)
	deleteAt := eventEnd.Add(time.Duration(group.DeleteGraceMinutes) * time.Minute)

	// Create-timing policy: T-minus-N-hours holds back channels for far-off
	// events; an existing channel is still updated.
	withinCreateWindow := group.CreateHoursBefore <= 0 ||
		b.event.Start.Sub(now) <= time.Duration(group.CreateHoursBefore)*time.Hour

	existing, err := e.Store.FindChannel(ctx, group.ID, key.eventID, key.keyword)
	switch {
	case err == nil && existing.State == store.ChannelActive:
		return e.updateChannel(ctx, existing, b, deleteAt, now, stats)
	case err == nil && existing.State == store.ChannelDeleted:
		if eventEnd.Before(now) {
			stats.Skipped++
			return nil
		}
		return e.reactivateChannel(ctx, existing, b, deleteAt, now, stats)
	case err != nil && err != store.ErrNotFound:
		return err
	}

	if !withinCreateWindow {
		stats.Skipped++
		return nil
	}
	return e.createChannel(ctx, group, key, b, eventEnd, deleteAt, now, stats)
}

func (e *Engine) createChannel(ctx context.Context, group store.EventGroup, key channelKey, b *bucket, eventEnd, deleteAt, now time.Time, stats *SyncStats) error {
	name := channelName(b)
	tvgID := tvgID(group.ID, key)

	logo := e.Leagues.LogoURL(b.league)
	remote, err := e.Middleware.CreateChannel(ctx, ChannelSpec{
		TVGID:     tvgID,
		Name:      name,
		LogoURL:   logo,
		GroupID:   strconv.FormatInt(group.ID, 10),
		StreamIDs: orderedStreamIDs(b.streams, nil),
	})
	if err != nil {
		return fmt.Errorf("create downstream channel: %w", err)
	}

	ch := store.ManagedChannel{
		GroupID:           group.ID,
		EventID:           key.eventID,
		League:            b.league,
		Keyword:           key.keyword,
		RemoteID:          remote.ID,
		TVGID:             tvgID,
		Name:              name,
		LogoURL:           logo,
		State:             store.ChannelActive,
		EventStart:        b.event.Start,
		EventEnd:          eventEnd,
		ScheduledDeleteAt: &deleteAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	id, err := e.Store.SaveChannel(ctx, ch)
	if err != nil {
		return err
	}
	if err := e.Store.ReplaceChannelStreams(ctx, id, channelStreams(id, b.streams)); err != nil {
		return err
	}
	_ = e.Store.RecordHistory(ctx, id, "create", name, now)
	metrics.LifecycleOp("create")
	stats.Created++
	return nil
}

func (e *Engine) updateChannel(ctx context.Context, ch store.ManagedChannel, b *bucket, deleteAt, now time.Time, stats *SyncStats) error {
	current, err := e.Store.ChannelStreams(ctx, ch.ID)
	if err != nil {
		return err
	}
	var pinned *store.ChannelStream
	for i := range current {
		if current[i].Pinned {
			pinned = &current[i]
			break
		}
	}

	merged := mergeStreams(current, b.streams)
	ids := orderedStreamIDs(merged, pinned)

	if _, err := e.Middleware.UpdateChannel(ctx, ch.RemoteID, ChannelSpec{
		TVGID:     ch.TVGID,
		Name:      ch.Name,
		LogoURL:   ch.LogoURL,
		GroupID:   strconv.FormatInt(ch.GroupID, 10),
		StreamIDs: ids,
	}); err != nil {
		return fmt.Errorf("update downstream channel: %w", err)
	}

	ch.EventStart = b.event.Start
	ch.ScheduledDeleteAt = &deleteAt
	ch.UpdatedAt = now
	if _, err := e.Store.SaveChannel(ctx, ch); err != nil {
		return err
	}
	replacement := streamsFromIDs(ch.ID, ids, merged)
	if pinned != nil {
		for i := range replacement {
			if replacement[i].StreamID == pinned.StreamID {
				replacement[i].Pinned = true
			}
		}
	}
	if err := e.Store.ReplaceChannelStreams(ctx, ch.ID, replacement); err != nil {
		return err
	}
	metrics.LifecycleOp("update")
	stats.Updated++
	return nil
}

func (e *Engine) reactivateChannel(ctx context.Context, ch store.ManagedChannel, b *bucket, deleteAt, now time.Time, stats *SyncStats) error {
	remote, err := e.Middleware.CreateChannel(ctx, ChannelSpec{
		TVGID:     ch.TVGID,
		Name:      ch.Name,
		LogoURL:   ch.LogoURL,
		GroupID:   strconv.FormatInt(ch.GroupID, 10),
		StreamIDs: orderedStreamIDs(b.streams, nil),
	})
	if err != nil {
		return fmt.Errorf("reactivate downstream channel: %w", err)
	}
	ch.RemoteID = remote.ID
	ch.State = store.ChannelActive
	ch.DeleteReason = ""
	ch.ScheduledDeleteAt = &deleteAt
	ch.UpdatedAt = now
	if _, err := e.Store.SaveChannel(ctx, ch); err != nil {
		return err
	}
	if err := e.Store.ReplaceChannelStreams(ctx, ch.ID, channelStreams(ch.ID, b.streams)); err != nil {
		return err
	}
	_ = e.Store.RecordHistory(ctx, ch.ID, "reactivate", "", now)
	metrics.LifecycleOp("reactivate")
	stats.Reactivated++
	return nil
}

// DeleteExpired removes channels past their scheduled_delete_at, downstream
// first, then locally with a reason.
func (e *Engine) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	logger := log.WithComponentFromContext(ctx, "lifecycle")
	expired, err := e.Store.ExpiredChannels(ctx, now)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, ch := range expired {
		if ch.RemoteID != "" {
			if err := e.Middleware.DeleteChannel(ctx, ch.RemoteID); err != nil {
				logger.Warn().Err(err).
					Str("event", "delete.downstream_failed").
					Int64("channel", ch.ID).
					Msg("downstream delete failed, retrying next tick")
				continue
			}
		}
		ch.State = store.ChannelDeleted
		ch.DeleteReason = "expired"
		ch.UpdatedAt = now
		if _, err := e.Store.SaveChannel(ctx, ch); err != nil {
			return deleted, err
		}
		_ = e.Store.RecordHistory(ctx, ch.ID, "delete", "scheduled delete elapsed", now)
		metrics.LifecycleOp("delete")
		deleted++
	}
	return deleted, nil
}

// channelName renders the display name for a channel.
func channelName(b *bucket) string {
	name := b.event.Away.Name + " at " + b.event.Home.Name
	if b.event.Away.Name == "" || b.event.Home.Name == "" {
		name = b.event.ID
	}
	if b.keyword != "" {
		name += " (" + b.keyword + ")"
	}
	return name
}

// tvgID is stable across reactivations so EPG mappings survive.
func tvgID(groupID int64, key channelKey) string {
	id := fmt.Sprintf("tc.%d.%s", groupID, key.eventID)
	if key.keyword != "" {
		id += "." + sanitize(key.keyword)
	}
	return id
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, strings.ToLower(s))
}

// orderedStreamIDs sorts streams for attachment: the pinned stream first,
// then ascending numeric id, then lexical.
func orderedStreamIDs(streams []match.Stream, pinned *store.ChannelStream) []string {
	sorted := make([]match.Stream, len(streams))
	copy(sorted, streams)
	sort.SliceStable(sorted, func(i, j int) bool { return streamLess(sorted[i].ID, sorted[j].ID) })

	out := make([]string, 0, len(sorted))
	if pinned != nil {
		out = append(out, pinned.StreamID)
	}
	for _, st := range sorted {
		if pinned != nil && st.ID == pinned.StreamID {
			continue
		}
		out = append(out, st.ID)
	}
	return out
}

func streamLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	if errA == nil {
		return true
	}
	if errB == nil {
		return false
	}
	return a < b
}

// mergeStreams unions the stored attachments with the fresh matches.
func mergeStreams(current []store.ChannelStream, fresh []match.Stream) []match.Stream {
	seen := map[string]bool{}
	var out []match.Stream
	for _, st := range fresh {
		if !seen[st.ID] {
			seen[st.ID] = true
			out = append(out, st)
		}
	}
	for _, st := range current {
		if !seen[st.StreamID] {
			seen[st.StreamID] = true
			out = append(out, match.Stream{ID: st.StreamID, Name: st.StreamName})
		}
	}
	return out
}

func channelStreams(channelID int64, streams []match.Stream) []store.ChannelStream {
	ids := orderedStreamIDs(streams, nil)
	return streamsFromIDs(channelID, ids, streams)
}

func streamsFromIDs(channelID int64, ids []string, streams []match.Stream) []store.ChannelStream {
	names := map[string]string{}
	for _, st := range streams {
		names[st.ID] = st.Name
	}
	out := make([]store.ChannelStream, 0, len(ids))
	for i, id := range ids {
		out = append(out, store.ChannelStream{
			ChannelID:  channelID,
			StreamID:   id,
			StreamName: names[id],
			Position:   i,
		})
	}
	return out
}
