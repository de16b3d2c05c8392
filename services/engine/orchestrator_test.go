package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"

	"videoreach-engine/pkg/config"
	"videoreach-engine/services/campaign"
	"videoreach-engine/services/personalize"
	"videoreach-engine/services/ratelimit"
	"videoreach-engine/services/render"
	"videoreach-engine/services/testutil"
)

// fakeContent answers every generation call with a cheap deterministic asset.
type fakeContent struct {
	mu        sync.Mutex
	failKinds map[personalize.Kind]bool
	calls     int
}

func (f *fakeContent) Generate(ctx context.Context, req personalize.GenRequest) (personalize.GenResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failKinds[req.Kind] {
		return personalize.GenResult{}, errors.New("upstream returned 500")
	}
	if req.Kind == personalize.KindSubjectOptions {
		return personalize.GenResult{Candidates: []string{"a", "b", "c", "d", "e"}, Cost: 0.01}, nil
	}
	return personalize.GenResult{Text: "generated " + string(req.Kind), Cost: 0.01}, nil
}

// fakeLimiter denies a configurable set of check invocations (1-based).
type fakeLimiter struct {
	mu      sync.Mutex
	denyOn  map[int]bool
	calls   int
	resetAt time.Time
}

func (f *fakeLimiter) Check(ctx context.Context, key ratelimit.Key) (ratelimit.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.denyOn[f.calls] {
		return ratelimit.Decision{Allowed: false, ResetAt: f.resetAt}, nil
	}
	return ratelimit.Decision{Allowed: true, Remaining: 100, ResetAt: f.resetAt}, nil
}

type fakeSynth struct {
	submitErr error
}

func (f *fakeSynth) Submit(ctx context.Context, prompt string, cfg render.SynthesisConfig) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "op-1", nil
}

func (f *fakeSynth) Poll(ctx context.Context, handle string) (bool, string, error) {
	return true, "result://video", nil
}

func (f *fakeSynth) Download(ctx context.Context, resultURI string) ([]byte, error) {
	return []byte("mp4"), nil
}

type fakeBlobs struct{}

func (f *fakeBlobs) Upload(ctx context.Context, path string, data []byte) (string, error) {
	return "https://cdn.example.com/videos/" + path, nil
}

type testEnv struct {
	orchestrator *Orchestrator
	store        *campaign.Store
	campaign     *campaign.Campaign
}

func newTestEnv(t *testing.T, tier campaign.Tier, recipients int, limiter ratelimit.Limiter, synth render.SynthesisClient) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t,
		&campaign.Campaign{}, &campaign.Recipient{}, &campaign.GeneratedAsset{}, &campaign.CampaignAnalytics{},
	)
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	store := campaign.NewStore(campaign.StoreParams{DB: db, Node: node})

	c := &campaign.Campaign{
		Name:           "q3 outreach",
		Tier:           tier,
		TemplateScript: "our product saves you hours",
		Goal:           "book a demo",
	}
	rows := make([]campaign.Recipient, 0, recipients)
	for i := 0; i < recipients; i++ {
		rows = append(rows, campaign.Recipient{
			Email:     fmt.Sprintf("user%d@example.com", i),
			FirstName: fmt.Sprintf("User%d", i),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NoError(t, store.CreateCampaign(context.Background(), c, rows))

	if limiter == nil {
		limiter = &fakeLimiter{}
	}
	if synth == nil {
		synth = &fakeSynth{}
	}

	cfg := &config.Config{}
	cfg.Synthesis.PollInterval = time.Millisecond
	cfg.Synthesis.MaxWait = 50 * time.Millisecond
	cfg.Synthesis.PlaceholderURL = "https://cdn.example.com/placeholder.mp4"

	orchestrator := New(
		store,
		limiter,
		personalize.NewGenerator(&fakeContent{}),
		render.NewBridge(synth, &fakeBlobs{}, cfg),
		Options{BatchSize: 5, InterBatchDelay: time.Millisecond, RetryDelay: time.Millisecond},
	)

	return &testEnv{orchestrator: orchestrator, store: store, campaign: c}
}

type progressRecorder struct {
	mu    sync.Mutex
	calls [][2]int
}

func (p *progressRecorder) record(completed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int{completed, total})
}

func TestProcessCampaign_SevenRecipientsTwoBatches(t *testing.T) {
	env := newTestEnv(t, campaign.TierBasic, 7, nil, nil)
	ctx := context.Background()

	progress := &progressRecorder{}
	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, progress.record))

	require.Equal(t, [][2]int{{5, 7}, {7, 7}}, progress.calls)

	c, err := env.store.GetCampaign(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, campaign.CampaignStatusReady, c.Status)

	ready, err := env.store.ListRecipients(ctx, c.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 7)

	for _, r := range ready {
		// basic tier: three assets at 0.01 each plus the 0.02 flat render fee
		require.InDelta(t, 0.05, r.GenerationCost, 1e-9)
		require.NotEmpty(t, r.PersonalizedVideoURL)
		require.GreaterOrEqual(t, r.ProcessingTimeMs, int64(0))
	}
}

func TestProcessCampaign_EveryRecipientReachesTerminalState(t *testing.T) {
	env := newTestEnv(t, campaign.TierSmart, 12, nil, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	pending, err := env.store.ListRecipients(ctx, env.campaign.CampaignID,
		campaign.RecipientStatusPending, campaign.RecipientStatusProcessing)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessCampaign_AnalyticsMatchRecipientCosts(t *testing.T) {
	env := newTestEnv(t, campaign.TierBasic, 7, nil, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	all, err := env.store.ListRecipients(ctx, env.campaign.CampaignID)
	require.NoError(t, err)

	var sum float64
	for _, r := range all {
		sum += r.GenerationCost
	}

	analytics, err := env.store.GetAnalytics(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.InDelta(t, sum, analytics.TotalCost, 1e-9)
	require.Equal(t, 7, analytics.VideosGenerated)
}

func TestProcessCampaign_RerunWithNothingPendingIsNoop(t *testing.T) {
	env := newTestEnv(t, campaign.TierBasic, 3, nil, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	recipients, err := env.store.ListRecipients(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	assetCount := 0
	for _, r := range recipients {
		assets, err := env.store.ListAssets(ctx, r.RecipientID)
		require.NoError(t, err)
		assetCount += len(assets)
	}

	progress := &progressRecorder{}
	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, progress.record))
	require.Empty(t, progress.calls)

	after, err := env.store.ListRecipients(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, recipients, after)

	afterAssets := 0
	for _, r := range after {
		assets, err := env.store.ListAssets(ctx, r.RecipientID)
		require.NoError(t, err)
		afterAssets += len(assets)
	}
	require.Equal(t, assetCount, afterAssets)

	analytics, err := env.store.GetAnalytics(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, 3, analytics.VideosGenerated)
}

func TestProcessCampaign_RateLimitDenialIsolatesOneRecipient(t *testing.T) {
	limiter := &fakeLimiter{denyOn: map[int]bool{3: true}, resetAt: time.Now().Add(time.Minute)}
	env := newTestEnv(t, campaign.TierBasic, 5, limiter, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	ready, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 4)

	failed, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Contains(t, failed[0].ErrorMessage, "rate limit exceeded")
	require.Zero(t, failed[0].GenerationCost)

	c, err := env.store.GetCampaign(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, campaign.CampaignStatusReady, c.Status)
}

func TestProcessCampaign_RenderFailureDoesNotFailRecipient(t *testing.T) {
	synth := &fakeSynth{submitErr: errors.New("provider down")}
	env := newTestEnv(t, campaign.TierBasic, 2, nil, synth)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	ready, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 2)

	for _, r := range ready {
		require.Equal(t, "https://cdn.example.com/placeholder.mp4", r.PersonalizedVideoURL)
		// asset cost still captured, render fee dropped
		require.InDelta(t, 0.03, r.GenerationCost, 1e-9)
	}
}

func TestProcessCampaign_CancellationBetweenBatches(t *testing.T) {
	env := newTestEnv(t, campaign.TierBasic, 7, nil, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, func(completed, total int) {
		if completed == 5 {
			require.NoError(t, env.store.UpdateCampaign(ctx, env.campaign.CampaignID, map[string]any{
				"status": campaign.CampaignStatusCancelled,
			}))
		}
	}))

	c, err := env.store.GetCampaign(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.Equal(t, campaign.CampaignStatusCancelled, c.Status)

	pending, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ready, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 5)
}

func TestRetryFailed_ReprocessesOnlyFailedRecipients(t *testing.T) {
	limiter := &fakeLimiter{denyOn: map[int]bool{2: true}, resetAt: time.Now().Add(time.Minute)}
	env := newTestEnv(t, campaign.TierBasic, 3, limiter, nil)
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	failed, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	readyBefore, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	assetsBefore, err := env.store.ListAssets(ctx, readyBefore[0].RecipientID)
	require.NoError(t, err)

	analyticsBefore, err := env.store.GetAnalytics(ctx, env.campaign.CampaignID)
	require.NoError(t, err)

	// retry with a limiter that now allows everything
	retry := New(env.orchestrator.store, &fakeLimiter{}, env.orchestrator.generator, env.orchestrator.bridge,
		Options{BatchSize: 5, InterBatchDelay: time.Millisecond, RetryDelay: time.Millisecond})
	require.NoError(t, retry.RetryFailed(ctx, env.campaign.CampaignID))

	stillFailed, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusFailed)
	require.NoError(t, err)
	require.Empty(t, stillFailed)

	recovered, err := env.store.GetRecipient(ctx, failed[0].RecipientID)
	require.NoError(t, err)
	require.Equal(t, campaign.RecipientStatusReady, recovered.Status)
	require.NotEmpty(t, recovered.PersonalizedVideoURL)

	// ready siblings untouched: no extra asset rows
	assetsAfter, err := env.store.ListAssets(ctx, readyBefore[0].RecipientID)
	require.NoError(t, err)
	require.Equal(t, len(assetsBefore), len(assetsAfter))

	// retry does not recompute aggregate analytics on its own
	analyticsAfter, err := env.store.GetAnalytics(ctx, env.campaign.CampaignID)
	require.NoError(t, err)
	require.InDelta(t, analyticsBefore.TotalCost, analyticsAfter.TotalCost, 1e-9)
}

func TestProcessCampaign_DegradedAssetStillSucceeds(t *testing.T) {
	env := newTestEnv(t, campaign.TierBasic, 1, nil, nil)
	env.orchestrator.generator = personalize.NewGenerator(&fakeContent{
		failKinds: map[personalize.Kind]bool{personalize.KindCTA: true},
	})
	ctx := context.Background()

	require.NoError(t, env.orchestrator.ProcessCampaign(ctx, env.campaign.CampaignID, nil))

	ready, err := env.store.ListRecipients(ctx, env.campaign.CampaignID, campaign.RecipientStatusReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)

	assets, err := env.store.ListAssets(ctx, ready[0].RecipientID)
	require.NoError(t, err)
	require.Len(t, assets, 3)

	var ctaCost = -1.0
	for _, a := range assets {
		if a.Type == campaign.AssetTypeCTA {
			ctaCost = a.Cost
			require.True(t, strings.Contains(string(a.Payload), "text"))
		}
	}
	require.Zero(t, ctaCost)

	// two paid assets plus the render fee
	require.InDelta(t, 0.04, ready[0].GenerationCost, 1e-9)
}
