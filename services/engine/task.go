package engine

import (
	"context"
	"encoding/json"

	taskq "videoreach-engine/pkg/asynq"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Tasks is the campaign-launch surface: launch requests are enqueued as asynq
// tasks and picked up by the worker running the orchestrator.
type Tasks struct {
	client       *asynq.Client
	orchestrator *Orchestrator
}

func NewTasks(client *asynq.Client, orchestrator *Orchestrator) *Tasks {
	return &Tasks{client: client, orchestrator: orchestrator}
}

func (t *Tasks) EnqueueProcessCampaign(ctx context.Context, campaignID string) error {
	payload, _ := json.Marshal(taskq.ProcessCampaignPayload{CampaignID: campaignID})
	info, err := t.client.EnqueueContext(ctx, asynq.NewTask(taskq.ProcessCampaignTask, payload), asynq.Queue("campaigns"))
	if err != nil {
		return err
	}
	zap.L().Info("enqueued campaign processing",
		zap.String("campaign_id", campaignID),
		zap.String("task_id", info.ID),
	)
	return nil
}

func (t *Tasks) EnqueueRetryFailed(ctx context.Context, campaignID string) error {
	payload, _ := json.Marshal(taskq.RetryFailedPayload{CampaignID: campaignID})
	info, err := t.client.EnqueueContext(ctx, asynq.NewTask(taskq.RetryFailedTask, payload), asynq.Queue("campaigns"))
	if err != nil {
		return err
	}
	zap.L().Info("enqueued failed-recipient retry",
		zap.String("campaign_id", campaignID),
		zap.String("task_id", info.ID),
	)
	return nil
}

func (t *Tasks) EnqueueRecomputeStats(ctx context.Context, campaignID string) error {
	payload, _ := json.Marshal(taskq.RecomputeStatsPayload{CampaignID: campaignID})
	_, err := t.client.EnqueueContext(ctx, asynq.NewTask(taskq.RecomputeStatsTask, payload), asynq.Queue("low"))
	return err
}

func (t *Tasks) HandleProcessCampaign(ctx context.Context, task *asynq.Task) error {
	var payload taskq.ProcessCampaignPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid process-campaign payload", zap.Error(err))
		return err
	}

	return t.orchestrator.ProcessCampaign(ctx, payload.CampaignID, func(completed, total int) {
		zap.L().Info("campaign progress",
			zap.String("campaign_id", payload.CampaignID),
			zap.Int("completed", completed),
			zap.Int("total", total),
		)
	})
}

func (t *Tasks) HandleRetryFailed(ctx context.Context, task *asynq.Task) error {
	var payload taskq.RetryFailedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid retry-failed payload", zap.Error(err))
		return err
	}
	return t.orchestrator.RetryFailed(ctx, payload.CampaignID)
}

func (t *Tasks) HandleRecomputeStats(ctx context.Context, task *asynq.Task) error {
	var payload taskq.RecomputeStatsPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		zap.L().Error("invalid recompute-stats payload", zap.Error(err))
		return err
	}
	_, err := t.orchestrator.store.RecomputeAnalytics(ctx, payload.CampaignID)
	return err
}
