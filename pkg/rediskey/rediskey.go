package rediskey

import "fmt"

// Key conventions shared by the rate limiter and the render bridge.
const (
	RateLimitPrefix = "ratelimit"
	CampaignPrefix  = "campaign"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildRateLimitKey returns "ratelimit:{caller}:{action}:{windowStart}"
func BuildRateLimitKey(caller, action string, windowStart int64) string {
	return fmt.Sprintf("%s:%s:%s:%d", RateLimitPrefix, caller, action, windowStart)
}

// BuildVideoObjectPath returns "campaigns/{campaignID}/{recipientID}.mp4"
func BuildVideoObjectPath(campaignID, recipientID string) string {
	return fmt.Sprintf("campaigns/%s/%s.mp4", campaignID, recipientID)
}
