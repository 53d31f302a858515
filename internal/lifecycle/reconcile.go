// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/teamcast/teamcast/internal/log"
	"github.com/teamcast/teamcast/internal/store"
)

// DiscrepancyKind classifies a reconciliation finding.
type DiscrepancyKind string

const (
	// LocalOrphan: an active local record whose downstream channel is gone.
	LocalOrphan DiscrepancyKind = "local_orphan"
	// RemoteOrphan: a downstream channel we created with no active local
	// record behind it.
	RemoteOrphan DiscrepancyKind = "remote_orphan"
	// Drift: local and remote disagree on channel metadata.
	Drift DiscrepancyKind = "drift"
)

// Discrepancy is one reconciliation finding.
type Discrepancy struct {
	Kind      DiscrepancyKind
	ChannelID int64 // local id, 0 for remote orphans
	RemoteID  string
	Detail    string
	Fixed     bool
}

// ReconcileReport is the outcome of one reconciliation pass.
type ReconcileReport struct {
	Checked       int
	Discrepancies []Discrepancy
	At            time.Time
}

// tvgPrefix marks downstream channels this system owns.
const tvgPrefix = "tc."

// Reconcile compares local managed channels against the downstream listing.
// With autoFix false (the scheduled default) it only records findings;
// with autoFix true it deletes remote orphans, marks local orphans deleted
// and pushes metadata for drifted channels.
func (e *Engine) Reconcile(ctx context.Context, autoFix bool) (*ReconcileReport, error) {
	logger := log.WithComponentFromContext(ctx, "reconcile")
	now := e.now()
	report := &ReconcileReport{At: now}

	remotes, err := e.Middleware.ListChannels(ctx)
	if err != nil {
		return nil, err
	}
	remoteByID := make(map[string]RemoteChannel, len(remotes))
	for _, rc := range remotes {
		remoteByID[rc.ID] = rc
	}

	locals, err := e.Store.ListActiveChannels(ctx)
	if err != nil {
		return nil, err
	}
	localByRemote := make(map[string]store.ManagedChannel, len(locals))
	for _, ch := range locals {
		localByRemote[ch.RemoteID] = ch
	}

	for _, ch := range locals {
		report.Checked++
		remote, ok := remoteByID[ch.RemoteID]
		if !ok {
			d := Discrepancy{Kind: LocalOrphan, ChannelID: ch.ID, RemoteID: ch.RemoteID, Detail: "downstream channel missing"}
			if autoFix {
				ch.State = store.ChannelDeleted
				ch.DeleteReason = "reconcile: downstream missing"
				ch.UpdatedAt = now
				if _, err := e.Store.SaveChannel(ctx, ch); err == nil {
					_ = e.Store.RecordHistory(ctx, ch.ID, "reconcile_delete", d.Detail, now)
					d.Fixed = true
				}
			}
			report.Discrepancies = append(report.Discrepancies, d)
			continue
		}
		if remote.Name != ch.Name || remote.TVGID != ch.TVGID {
			d := Discrepancy{Kind: Drift, ChannelID: ch.ID, RemoteID: ch.RemoteID,
				Detail: "name or tvg-id drift: " + remote.Name}
			if autoFix {
				if _, err := e.Middleware.UpdateChannel(ctx, ch.RemoteID, ChannelSpec{
					TVGID:   ch.TVGID,
					Name:    ch.Name,
					LogoURL: ch.LogoURL,
				}); err == nil {
					d.Fixed = true
				}
			}
			report.Discrepancies = append(report.Discrepancies, d)
		}
	}

	for _, rc := range remotes {
		if !strings.HasPrefix(rc.TVGID, tvgPrefix) {
			continue // not ours
		}
		if _, ok := localByRemote[rc.ID]; ok {
			continue
		}
		d := Discrepancy{Kind: RemoteOrphan, RemoteID: rc.ID, Detail: rc.Name}
		if autoFix {
			if err := e.Middleware.DeleteChannel(ctx, rc.ID); err == nil {
				d.Fixed = true
			}
		}
		report.Discrepancies = append(report.Discrepancies, d)
	}

	logger.Info().
		Str("event", "reconcile.complete").
		Int("checked", report.Checked).
		Int("discrepancies", len(report.Discrepancies)).
		Bool("auto_fix", autoFix).
		Msg("reconciliation pass finished")
	return report, nil
}
