package render

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"videoreach-engine/pkg/config"
	"videoreach-engine/pkg/errutil"
	"videoreach-engine/pkg/rediskey"
	"videoreach-engine/services/campaign"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	rendersTimedOut = prometheus.NewCounter(prometheus.CounterOpts{Name: "render_timed_out_total"})
	rendersFailed   = prometheus.NewCounter(prometheus.CounterOpts{Name: "render_failed_total"})
)

// promptMaxLen is the hard ceiling the synthesis provider accepts. Prompts are
// truncated, never rejected.
const promptMaxLen = 500

const promptSuffix = " Professional, friendly tone with clear lighting."

const defaultPlaceholderURL = "https://cdn.videoreach.dev/placeholder.mp4"

// Bridge turns assembled assets into a synthesis prompt, drives the async
// render, and uploads the artifact. A failed or timed-out render substitutes
// the placeholder URL with cost 0; it never fails the recipient.
type Bridge struct {
	synth          SynthesisClient
	blobs          BlobStore
	pollInterval   time.Duration
	maxWait        time.Duration
	placeholderURL string
}

func NewBridge(synth SynthesisClient, blobs BlobStore, cfg *config.Config) *Bridge {
	placeholder := cfg.Synthesis.PlaceholderURL
	if placeholder == "" {
		placeholder = defaultPlaceholderURL
	}
	return &Bridge{
		synth:          synth,
		blobs:          blobs,
		pollInterval:   cfg.Synthesis.PollInterval,
		maxWait:        cfg.Synthesis.MaxWait,
		placeholderURL: placeholder,
	}
}

// Render produces the recipient's video URL and its flat tier cost.
func (b *Bridge) Render(ctx context.Context, c *campaign.Campaign, r *campaign.Recipient, assets []campaign.GeneratedAsset) (string, float64) {
	prompt := BuildPrompt(r, assets, c.TemplateScript)

	cfg := SynthesisConfig{MasterVideoURL: c.MasterVideoURL}
	if bg := assetText(assets, campaign.AssetTypeBackground); bg != "" {
		cfg.BackgroundPrompt = bg
	}

	url, err := b.renderOnce(ctx, c, r, prompt, cfg)
	if err != nil {
		if errutil.IsRenderTimedOut(err) {
			rendersTimedOut.Inc()
		} else {
			rendersFailed.Inc()
		}
		zap.L().Warn("video render substituted placeholder",
			zap.String("campaign_id", c.CampaignID),
			zap.String("recipient_id", r.RecipientID),
			zap.Error(err),
		)
		return b.placeholderURL, 0
	}

	return url, c.Tier.RenderCost()
}

func (b *Bridge) renderOnce(ctx context.Context, c *campaign.Campaign, r *campaign.Recipient, prompt string, cfg SynthesisConfig) (string, error) {
	handle, err := b.synth.Submit(ctx, prompt, cfg)
	if err != nil {
		return "", errutil.BadGateway("video synthesis submit failed", errutil.WithErr(err))
	}

	resultURI, err := b.waitForResult(ctx, handle)
	if err != nil {
		return "", err
	}

	data, err := b.synth.Download(ctx, resultURI)
	if err != nil {
		return "", errutil.BadGateway("video synthesis download failed", errutil.WithErr(err))
	}

	path := rediskey.BuildVideoObjectPath(c.CampaignID, r.RecipientID)
	url, err := b.blobs.Upload(ctx, path, data)
	if err != nil {
		return "", errutil.BadGateway("video upload failed", errutil.WithErr(err))
	}

	return url, nil
}

// waitForResult polls the operation handle until done, bounded by maxWait.
func (b *Bridge) waitForResult(ctx context.Context, handle string) (string, error) {
	deadline := time.Now().Add(b.maxWait)

	for {
		done, resultURI, err := b.synth.Poll(ctx, handle)
		if err != nil {
			return "", errutil.BadGateway("video synthesis poll failed", errutil.WithErr(err))
		}
		if done {
			return resultURI, nil
		}

		if time.Now().Add(b.pollInterval).After(deadline) {
			return "", errutil.RenderTimedOut(b.maxWait)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(b.pollInterval):
		}
	}
}

// BuildPrompt assembles the synthesis prompt: the intro asset if present, else
// a templated greeting; the role-adapted script if present, else the base
// script, else a generic sentence; always the fixed style suffix. Truncated to
// the provider ceiling.
func BuildPrompt(r *campaign.Recipient, assets []campaign.GeneratedAsset, baseScript string) string {
	intro := assetText(assets, campaign.AssetTypeIntro)
	if intro == "" {
		if r.FirstName != "" {
			intro = fmt.Sprintf("Hi %s", r.FirstName)
		} else {
			intro = "Hi there"
		}
	}

	script := assetText(assets, campaign.AssetTypeCaption)
	if script == "" {
		script = baseScript
	}
	if script == "" {
		script = genericScript(r)
	}

	prompt := intro + ". " + script + promptSuffix
	if len(prompt) > promptMaxLen {
		prompt = prompt[:promptMaxLen]
	}
	return prompt
}

func genericScript(r *campaign.Recipient) string {
	switch {
	case r.Role != "" && r.Industry != "":
		return fmt.Sprintf("I wanted to reach out to you as a %s in the %s industry.", r.Role, r.Industry)
	case r.Role != "":
		return fmt.Sprintf("I wanted to reach out to you as a %s.", r.Role)
	case r.Industry != "":
		return fmt.Sprintf("I wanted to reach out about your work in the %s industry.", r.Industry)
	default:
		return "I wanted to reach out with a quick personal message."
	}
}

func assetText(assets []campaign.GeneratedAsset, t campaign.AssetType) string {
	for _, a := range assets {
		if a.Type != t {
			continue
		}
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(a.Payload, &payload); err == nil && payload.Text != "" {
			return payload.Text
		}
	}
	return ""
}
