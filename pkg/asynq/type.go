package asynq

const (
	ProcessCampaignTask = "campaign:process"
	RetryFailedTask     = "campaign:retry_failed"
	RecomputeStatsTask  = "campaign:recompute_stats"
)

type ProcessCampaignPayload struct {
	CampaignID string `json:"campaign_id"`
}

type RetryFailedPayload struct {
	CampaignID string `json:"campaign_id"`
}

type RecomputeStatsPayload struct {
	CampaignID string `json:"campaign_id"`
}
