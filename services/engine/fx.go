package engine

import (
	taskq "videoreach-engine/pkg/asynq"
	"videoreach-engine/pkg/config"
	"videoreach-engine/services/campaign"
	"videoreach-engine/services/personalize"
	"videoreach-engine/services/ratelimit"
	"videoreach-engine/services/render"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("engine",
	fx.Provide(
		NewOrchestrator,
		NewTasks,
		newReconciler,
	),
	fx.Invoke(
		registerTaskHandlers,
		StartReconciler,
	),
)

func init() {
	prometheus.MustRegister(recipientsReady, recipientsFailed)
}

type Params struct {
	fx.In

	Cfg       *config.Config
	Store     *campaign.Store
	Limiter   ratelimit.Limiter
	Generator *personalize.Generator
	Bridge    *render.Bridge
}

func NewOrchestrator(p Params) *Orchestrator {
	return New(p.Store, p.Limiter, p.Generator, p.Bridge, Options{
		BatchSize:       p.Cfg.Engine.BatchSize,
		InterBatchDelay: p.Cfg.Engine.InterBatchDelay,
		RetryDelay:      p.Cfg.Engine.RetryDelay,
	})
}

func newReconciler(cfg *config.Config, store *campaign.Store) *Reconciler {
	return NewReconciler(store, cfg.Engine.LeaseTimeout, cfg.Engine.SweepInterval)
}

func registerTaskHandlers(mux *asynq.ServeMux, tasks *Tasks) {
	mux.HandleFunc(taskq.ProcessCampaignTask, tasks.HandleProcessCampaign)
	mux.HandleFunc(taskq.RetryFailedTask, tasks.HandleRetryFailed)
	mux.HandleFunc(taskq.RecomputeStatsTask, tasks.HandleRecomputeStats)
}
