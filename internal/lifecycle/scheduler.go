// SPDX-License-Identifier: MIT

package lifecycle

import (
	"context"
	"sync"
	"time"

	"github.com/teamcast/teamcast/internal/log"
)

// defaultTickInterval is how often the background worker runs.
const defaultTickInterval = 15 * time.Minute

// historyRetention is how long channel history rows are kept.
const historyRetention = 90 * 24 * time.Hour

// stopDrain is how long Stop waits for an in-flight tick.
const stopDrain = 30 * time.Second

// Scheduler drives the periodic maintenance tick: expired-channel deletion,
// detect-only reconciliation, history pruning. Task failures are isolated;
// one failing task never skips the others.
type Scheduler struct {
	Engine   *Engine
	Interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun time.Time
}

// NewScheduler builds a scheduler around the engine.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultTickInterval
	}
	return &Scheduler{Engine: engine, Interval: interval}
}

// Start launches the background worker. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				s.RunOnce(runCtx)
			}
		}
	}()
}

// Stop signals the worker and waits up to 30 seconds for the current tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(stopDrain):
	}
}

// LastRun reports when the most recent tick finished.
func (s *Scheduler) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// RunOnce executes one maintenance tick synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) {
	logger := log.WithComponentFromContext(ctx, "scheduler")
	now := time.Now()

	if deleted, err := s.Engine.DeleteExpired(ctx, now); err != nil {
		logger.Warn().Err(err).
			Str("event", "tick.delete_failed").
			Msg("expired-channel deletion failed")
	} else if deleted > 0 {
		logger.Info().
			Str("event", "tick.deleted").
			Int("channels", deleted).
			Msg("expired channels removed")
	}

	if _, err := s.Engine.Reconcile(ctx, false); err != nil {
		logger.Warn().Err(err).
			Str("event", "tick.reconcile_failed").
			Msg("reconciliation failed")
	}

	if pruned, err := s.Engine.Store.PruneHistory(ctx, now.Add(-historyRetention)); err != nil {
		logger.Warn().Err(err).
			Str("event", "tick.prune_failed").
			Msg("history pruning failed")
	} else if pruned > 0 {
		logger.Debug().
			Str("event", "tick.pruned").
			Int64("rows", pruned).
			Msg("history rows pruned")
	}

	if err := s.Engine.Store.PruneRuns(ctx, 100); err != nil {
		logger.Warn().Err(err).
			Str("event", "tick.prune_runs_failed").
			Msg("run pruning failed")
	}

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()
}
