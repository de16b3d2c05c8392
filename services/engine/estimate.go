package engine

import (
	"time"

	"videoreach-engine/services/campaign"
)

// Estimate predicts wall-clock processing time for a run: per-recipient tier
// averages plus the pacing pauses between batches. A planning figure shown to
// operators before launch, not a runtime guarantee. Pure, no I/O.
func Estimate(recipientCount int, tier campaign.Tier, batchSize int, interBatchDelay time.Duration) time.Duration {
	if recipientCount <= 0 {
		return 0
	}
	if batchSize <= 0 {
		batchSize = 5
	}

	perRecipient := time.Duration(tier.AverageSeconds()) * time.Second
	batches := (recipientCount + batchSize - 1) / batchSize

	return time.Duration(recipientCount)*perRecipient + time.Duration(batches-1)*interBatchDelay
}

// Estimate uses the orchestrator's own tuning values.
func (o *Orchestrator) Estimate(recipientCount int, tier campaign.Tier) time.Duration {
	return Estimate(recipientCount, tier, o.opts.BatchSize, o.opts.InterBatchDelay)
}
