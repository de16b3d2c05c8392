package engine

import (
	"context"
	"fmt"
	"time"

	"videoreach-engine/pkg/errutil"
	"videoreach-engine/services/campaign"
	"videoreach-engine/services/personalize"
	"videoreach-engine/services/ratelimit"
	"videoreach-engine/services/render"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	recipientsReady  = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_recipients_ready_total"})
	recipientsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "engine_recipients_failed_total"})
)

// ActionVideoGeneration is the rate-limit action key consulted before each
// recipient's externally-billed pipeline.
const ActionVideoGeneration = "video_generation"

// ProgressFunc reports (recipients completed so far, total in run) after each
// batch.
type ProgressFunc func(completed, total int)

// Options are the engine tuning knobs. Batch size balances external API burst
// limits against latency; the inter-batch delay is deliberate pacing, not a
// retry wait.
type Options struct {
	BatchSize       int
	InterBatchDelay time.Duration
	RetryDelay      time.Duration
}

// Orchestrator is the campaign batch scheduler: it partitions pending
// recipients into fixed-size batches, runs each batch concurrently with
// per-recipient isolation, and owns every campaign status transition except
// `cancelled`.
type Orchestrator struct {
	store     *campaign.Store
	limiter   ratelimit.Limiter
	generator *personalize.Generator
	bridge    *render.Bridge
	opts      Options
}

func New(store *campaign.Store, limiter ratelimit.Limiter, generator *personalize.Generator, bridge *render.Bridge, opts Options) *Orchestrator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 5
	}
	if opts.InterBatchDelay <= 0 {
		opts.InterBatchDelay = 2 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Orchestrator{
		store:     store,
		limiter:   limiter,
		generator: generator,
		bridge:    bridge,
		opts:      opts,
	}
}

// ProcessCampaign runs the full batch pipeline over the campaign's pending
// recipients. The pending set is snapshotted up front; recipients added later
// are not picked up by this run. Re-running with nothing pending only
// recomputes analytics.
func (o *Orchestrator) ProcessCampaign(ctx context.Context, campaignID string, progress ProgressFunc) error {
	zapLog := zap.L().With(zap.String("campaign_id", campaignID))

	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	pending, err := o.store.ListRecipients(ctx, campaignID, campaign.RecipientStatusPending)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		zapLog.Info("no pending recipients, recomputing analytics only")
		_, err := o.store.RecomputeAnalytics(ctx, campaignID)
		return err
	}

	if err := o.store.UpdateCampaign(ctx, campaignID, map[string]any{
		"status": campaign.CampaignStatusProcessing,
	}); err != nil {
		return err
	}

	start := time.Now()
	total := len(pending)
	completed := 0
	cancelled := false

	zapLog.Info("campaign processing started",
		zap.Int("pending", total),
		zap.Int("batch_size", o.opts.BatchSize),
		zap.String("tier", string(c.Tier)),
	)

	for batchStart := 0; batchStart < total; batchStart += o.opts.BatchSize {
		// Operators may flip the campaign to cancelled at any time; it is
		// observed here, between batches, so in-flight recipients finish
		// cleanly instead of stranding `processing` rows.
		if batchStart > 0 {
			current, err := o.store.GetCampaign(ctx, campaignID)
			if err == nil && current.Status == campaign.CampaignStatusCancelled {
				zapLog.Warn("campaign cancelled, stopping after current batch",
					zap.Int("completed", completed),
					zap.Int("total", total),
				)
				cancelled = true
				break
			}
		}

		batchEnd := batchStart + o.opts.BatchSize
		if batchEnd > total {
			batchEnd = total
		}
		batch := pending[batchStart:batchEnd]

		o.runBatch(ctx, c, batch)

		completed += len(batch)
		if progress != nil {
			progress(completed, total)
		}
		zapLog.Info("batch completed",
			zap.Int("completed", completed),
			zap.Int("total", total),
		)

		if batchEnd < total {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.opts.InterBatchDelay):
			}
		}
	}

	if !cancelled {
		if err := o.store.UpdateCampaign(ctx, campaignID, map[string]any{
			"status": campaign.CampaignStatusReady,
		}); err != nil {
			return err
		}
	}

	if _, err := o.store.RecomputeAnalytics(ctx, campaignID); err != nil {
		return err
	}

	zapLog.Info("campaign processing finished",
		zap.Int("completed", completed),
		zap.Int("total", total),
		zap.Bool("cancelled", cancelled),
		zap.Duration("duration", time.Since(start)),
	)

	return nil
}

// runBatch launches every recipient in the batch concurrently. Each goroutine
// swallows its own outcome: one recipient's failure never aborts siblings, and
// the batch returns only once all members reached a terminal state.
func (o *Orchestrator) runBatch(ctx context.Context, c *campaign.Campaign, batch []campaign.Recipient) {
	g := errgroup.Group{}
	for i := range batch {
		r := batch[i]
		g.Go(func() error {
			o.processRecipient(ctx, c, &r, campaign.RecipientStatusPending)
			return nil
		})
	}
	_ = g.Wait()
}

// RetryFailed reprocesses only the campaign's failed recipients, one at a
// time with a pacing gap. It never touches campaign-level status or aggregate
// analytics; callers recompute those separately if desired.
func (o *Orchestrator) RetryFailed(ctx context.Context, campaignID string) error {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return err
	}

	failed, err := o.store.ListRecipients(ctx, campaignID, campaign.RecipientStatusFailed)
	if err != nil {
		return err
	}

	zap.L().Info("retrying failed recipients",
		zap.String("campaign_id", campaignID),
		zap.Int("failed", len(failed)),
	)

	for i := range failed {
		o.processRecipient(ctx, c, &failed[i], campaign.RecipientStatusFailed)
		if i < len(failed)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.opts.RetryDelay):
			}
		}
	}

	return nil
}

// processRecipient drives one recipient through the pipeline and records its
// terminal state. All expected failure modes land here; nothing propagates to
// the batch.
func (o *Orchestrator) processRecipient(ctx context.Context, c *campaign.Campaign, r *campaign.Recipient, from campaign.RecipientStatus) {
	start := time.Now()
	zapLog := zap.L().With(
		zap.String("campaign_id", c.CampaignID),
		zap.String("recipient_id", r.RecipientID),
	)

	var assetCost float64

	defer func() {
		if rec := recover(); rec != nil {
			zapLog.Error("recipient pipeline panicked", zap.Any("panic", rec))
			o.markFailed(ctx, r, fmt.Sprintf("pipeline panic: %v", rec), assetCost, start)
		}
	}()

	decision, err := o.limiter.Check(ctx, ratelimit.Key{Caller: c.CampaignID, Action: ActionVideoGeneration})
	if err != nil {
		o.markFailed(ctx, r, fmt.Sprintf("rate limit check failed: %v", err), 0, start)
		return
	}
	if !decision.Allowed {
		rlErr := errutil.RateLimited(ActionVideoGeneration, decision.ResetAt)
		zapLog.Warn("recipient denied by rate limiter", zap.Time("reset_at", decision.ResetAt))
		o.markFailed(ctx, r, rlErr.Error(), 0, start)
		return
	}

	// Claim before any external call so a crash mid-pipeline leaves a
	// clearly-resumable marker.
	claimed, err := o.store.ClaimRecipient(ctx, r.RecipientID, from)
	if err != nil {
		zapLog.Error("recipient claim write failed", zap.Error(err))
		return
	}
	if !claimed {
		zapLog.Warn("recipient already claimed, skipping", zap.String("from", string(from)))
		return
	}

	results := o.generator.Generate(ctx, personalize.Input{
		Recipient:  r,
		Tier:       c.Tier,
		BaseScript: c.TemplateScript,
		Goal:       c.Goal,
	})

	assets := make([]campaign.GeneratedAsset, 0, len(results))
	degraded := 0
	for _, res := range results {
		assets = append(assets, res.Asset)
		assetCost += res.Asset.Cost
		if res.Degraded {
			degraded++
		}
	}
	if degraded > 0 {
		zapLog.Warn("some assets degraded to templates", zap.Int("degraded", degraded), zap.Int("total", len(assets)))
	}

	if err := o.store.InsertAssets(ctx, r.RecipientID, assets); err != nil {
		o.markFailed(ctx, r, err.Error(), assetCost, start)
		return
	}

	videoURL, renderCost := o.bridge.Render(ctx, c, r, assets)

	err = o.store.UpdateRecipient(ctx, r.RecipientID, map[string]any{
		"status":                 campaign.RecipientStatusReady,
		"personalized_video_url": videoURL,
		"generation_cost":        assetCost + renderCost,
		"processing_time_ms":     time.Since(start).Milliseconds(),
		"error_message":          "",
	})
	if err != nil {
		o.markFailed(ctx, r, err.Error(), assetCost, start)
		return
	}

	recipientsReady.Inc()
	zapLog.Info("recipient ready",
		zap.Float64("cost", assetCost+renderCost),
		zap.Duration("duration", time.Since(start)),
	)
}

// markFailed records the terminal failure, keeping whatever partial cost the
// pipeline accrued before failing. A failed write here is only logged: the
// recipient boundary must hold regardless.
func (o *Orchestrator) markFailed(ctx context.Context, r *campaign.Recipient, message string, partialCost float64, start time.Time) {
	recipientsFailed.Inc()
	err := o.store.UpdateRecipient(ctx, r.RecipientID, map[string]any{
		"status":             campaign.RecipientStatusFailed,
		"error_message":      message,
		"generation_cost":    partialCost,
		"processing_time_ms": time.Since(start).Milliseconds(),
	})
	if err != nil {
		zap.L().Error("failed to record recipient failure",
			zap.String("recipient_id", r.RecipientID),
			zap.Error(err),
		)
	}
}
