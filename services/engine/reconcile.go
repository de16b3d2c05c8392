package engine

import (
	"context"
	"time"

	"videoreach-engine/services/campaign"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reconciler requeues recipients stuck in `processing` after a crash: rows
// whose claim lease is older than the timeout go back to `pending`. It runs
// on its own sweep interval and is never invoked implicitly by a campaign
// run. Requeueing stays an operator-visible, scheduled action.
type Reconciler struct {
	store        *campaign.Store
	leaseTimeout time.Duration
	interval     time.Duration
}

func NewReconciler(store *campaign.Store, leaseTimeout, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:        store,
		leaseTimeout: leaseTimeout,
		interval:     interval,
	}
}

// StartReconciler wires the sweep loop into the fx lifecycle.
func StartReconciler(lc fx.Lifecycle, r *Reconciler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (r *Reconciler) run(ctx context.Context) {
	zap.L().Info("[Reconciler] started stale-claim sweep",
		zap.Duration("lease_timeout", r.leaseTimeout),
		zap.Duration("interval", r.interval),
	)

	for {
		select {
		case <-time.After(r.interval):
			r.Sweep(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Reconciler] stopped")
			return
		}
	}
}

// Sweep requeues every stale claim older than the lease timeout.
func (r *Reconciler) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.leaseTimeout)

	requeued, err := r.store.RequeueStaleProcessing(ctx, cutoff)
	if err != nil {
		zap.L().Error("[Reconciler] sweep failed", zap.Error(err))
		return
	}
	if requeued > 0 {
		zap.L().Warn("[Reconciler] requeued stale processing recipients",
			zap.Int64("requeued", requeued),
			zap.Time("cutoff", cutoff),
		)
	}
}
