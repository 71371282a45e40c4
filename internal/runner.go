package internal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// RankSyncRunner walks every tracked account on a fixed interval and
// records a fresh rank snapshot per account. One bad account never aborts
// the batch, a run never overlaps the previous one, and the first run waits
// for the host to report ready.
type RankSyncRunner struct {
	store  Storage
	syncer RankSyncer
	logger *Logger

	interval time.Duration
	pacing   time.Duration
	ready    <-chan struct{}

	running atomic.Bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewRankSyncRunner(store Storage, syncer RankSyncer, logger *Logger, interval, pacing time.Duration, ready <-chan struct{}) *RankSyncRunner {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &RankSyncRunner{
		store:    store,
		syncer:   syncer,
		logger:   logger,
		interval: interval,
		pacing:   pacing,
		ready:    ready,
		stop:     make(chan struct{}),
	}
}

// Start launches the schedule. The first run fires once the ready signal
// closes; after that the interval ticker drives it.
func (r *RankSyncRunner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		if r.ready != nil {
			select {
			case <-r.ready:
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			}
		}

		r.logger.Info("rank_sync_runner_started").
			Component("runner").
			Operation("start").
			Meta("interval", r.interval.String()).
			Meta("pacing", r.pacing.String()).
			Log()

		r.runOnce(ctx)

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

// Stop halts the schedule and waits for an in-flight run to return.
func (r *RankSyncRunner) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// runOnce executes a single batch. The in-flight gate makes a tick that
// arrives mid-run a no-op instead of a second concurrent run, and the
// recover keeps a panicking run from killing the schedule.
func (r *RankSyncRunner) runOnce(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.logger.Warn("rank_sync_run_skipped").
			Component("runner").
			Operation("run").
			Meta("reason", "previous run still in flight").
			Log()
		return
	}
	defer r.running.Store(false)

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("rank_sync_run_panicked").
				Component("runner").
				Operation("run").
				Meta("panic", rec).
				Log()
		}
	}()

	start := time.Now()

	accounts, err := r.store.ListTrackedAccounts(ctx)
	if err != nil {
		r.logger.Error("tracked_accounts_load_failed").
			Component("runner").
			Operation("run").
			Err(err).
			Log()
		return
	}

	synced, unranked, failed := 0, 0, 0
	for i := range accounts {
		account := accounts[i]

		if _, err := r.syncer.SyncRank(ctx, &account); err != nil {
			if errors.Is(err, ErrNoRankedData) {
				unranked++
			} else {
				failed++
				r.logger.Warn("account_sync_failed").
					Component("runner").
					Operation("run").
					Account(account.PUUID, account.RiotID(), account.Region).
					Err(err).
					Log()
			}
		} else {
			synced++
		}

		// Courtesy margin on top of the limiter's hard guarantee.
		if r.pacing > 0 && i < len(accounts)-1 {
			select {
			case <-ctx.Done():
				return
			case <-r.stop:
				return
			case <-time.After(r.pacing):
			}
		}
	}

	r.logger.Info("rank_sync_run_finished").
		Component("runner").
		Operation("run").
		Duration(time.Since(start)).
		Meta("accounts", len(accounts)).
		Meta("synced", synced).
		Meta("unranked", unranked).
		Meta("failed", failed).
		Log()
}
