package personalize

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"videoreach-engine/services/campaign"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const subjectOptionCount = 5

// Input is everything one personalization run needs.
type Input struct {
	Recipient  *campaign.Recipient
	Tier       campaign.Tier
	BaseScript string
	Goal       string
}

// StepResult tags each produced asset with whether the generation call really
// succeeded or the deterministic fallback was substituted.
type StepResult struct {
	Asset    campaign.GeneratedAsset
	Degraded bool
	Err      error
}

// step is one entry of the per-tier fan-out table: a condition gate, the
// upstream request, and the template fallback used when the call fails.
type step struct {
	Type      campaign.AssetType
	Condition func(in Input) bool
	Request   func(in Input) GenRequest
	Fallback  func(in Input) GenResult
}

// Generator runs the tier-dependent sequence of content-generation calls and
// assembles the typed asset list. It never fails for expected error modes:
// every step degrades to its template on error with cost 0.
type Generator struct {
	content ContentGenerator
}

func NewGenerator(content ContentGenerator) *Generator {
	return &Generator{content: content}
}

// Generate returns one StepResult per applicable step, in table order.
// Steps whose condition gates on a missing optional field are omitted
// entirely; absence means "no data", not "error".
func (g *Generator) Generate(ctx context.Context, in Input) []StepResult {
	steps := stepsForTier(in.Tier)
	results := make([]StepResult, 0, len(steps))

	for _, st := range steps {
		if st.Condition != nil && !st.Condition(in) {
			continue
		}
		results = append(results, g.runStep(ctx, st, in))
	}

	return results
}

func (g *Generator) runStep(ctx context.Context, st step, in Input) StepResult {
	req := st.Request(in)
	start := time.Now()

	result, err := g.content.Generate(ctx, req)
	elapsed := time.Since(start)

	degraded := false
	if err != nil {
		zap.L().Warn("content generation degraded to template",
			zap.String("asset_type", string(st.Type)),
			zap.String("recipient_id", in.Recipient.RecipientID),
			zap.Error(err),
		)
		result = st.Fallback(in)
		result.Cost = 0
		degraded = true
	}

	return StepResult{
		Asset: campaign.GeneratedAsset{
			RecipientID:      in.Recipient.RecipientID,
			Type:             st.Type,
			Payload:          assetPayload(result),
			Prompt:           req.Topic,
			GenerationTimeMs: elapsed.Milliseconds(),
			Cost:             result.Cost,
		},
		Degraded: degraded,
		Err:      err,
	}
}

func assetPayload(result GenResult) datatypes.JSON {
	payload := map[string]any{}
	if result.Text != "" {
		payload["text"] = result.Text
	}
	if len(result.Candidates) > 0 {
		payload["options"] = result.Candidates
	}
	b, _ := json.Marshal(payload)
	return datatypes.JSON(b)
}

func contextOf(in Input) Context {
	r := in.Recipient
	var custom map[string]any
	if len(r.CustomFields) > 0 {
		_ = json.Unmarshal(r.CustomFields, &custom)
	}
	return Context{
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Company:      r.Company,
		Role:         r.Role,
		Industry:     r.Industry,
		PainPoint:    r.PainPoint,
		CustomFields: custom,
	}
}

func greeting(r *campaign.Recipient) string {
	if r.FirstName != "" {
		return fmt.Sprintf("Hi %s", r.FirstName)
	}
	return "Hi there"
}

// Tier step tables. Strictly additive: each tier is the previous tier's set
// plus extra steps.

func basicSteps() []step {
	return []step{
		{
			Type: campaign.AssetTypeIntro,
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindIntro,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("one-line personalized video intro about %s", in.Goal),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: greeting(in.Recipient)}
			},
		},
		{
			Type: campaign.AssetTypeSubjectOptions,
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindSubjectOptions,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("email subject lines for %s", in.Goal),
					Count:   subjectOptionCount,
				}
			},
			Fallback: func(in Input) GenResult {
				name := in.Recipient.FirstName
				if name == "" {
					name = "you"
				}
				return GenResult{Candidates: []string{
					fmt.Sprintf("A quick video for %s", name),
					fmt.Sprintf("%s, I made this for you", name),
					"A personal video message",
					fmt.Sprintf("Thoughts on %s", in.Goal),
					"30 seconds of your time",
				}}
			},
		},
		{
			Type: campaign.AssetTypeCTA,
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindCTA,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("call to action for %s", in.Goal),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: "Book a quick call with us this week."}
			},
		},
	}
}

func smartSteps() []step {
	steps := basicSteps()
	return append(steps,
		step{
			Type:      campaign.AssetTypeBroll,
			Condition: func(in Input) bool { return in.Recipient.Industry != "" },
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindIndustryVisual,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("b-roll visual description for the %s industry", in.Recipient.Industry),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: fmt.Sprintf("Modern office scenes from the %s industry.", in.Recipient.Industry)}
			},
		},
		step{
			Type:      campaign.AssetTypeCaption,
			Condition: func(in Input) bool { return in.Recipient.Role != "" && in.BaseScript != "" },
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindRoleScript,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("adapt this script for a %s: %s", in.Recipient.Role, in.BaseScript),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: in.BaseScript}
			},
		},
		step{
			Type:      campaign.AssetTypePainCTA,
			Condition: func(in Input) bool { return in.Recipient.PainPoint != "" },
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindPainPointCTA,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("call to action addressing: %s", in.Recipient.PainPoint),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: fmt.Sprintf("Let's talk about how we can help with %s.", in.Recipient.PainPoint)}
			},
		},
	)
}

func advancedSteps() []step {
	steps := smartSteps()
	return append(steps,
		step{
			Type:      campaign.AssetTypeInsight,
			Condition: func(in Input) bool { return in.Recipient.Company != "" && in.Recipient.Industry != "" },
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindCompanyInsight,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("short insight blurb about %s in the %s industry", in.Recipient.Company, in.Recipient.Industry),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: fmt.Sprintf("%s is doing interesting work in %s.", in.Recipient.Company, in.Recipient.Industry)}
			},
		},
		step{
			Type:      campaign.AssetTypeBackground,
			Condition: func(in Input) bool { return in.Recipient.Industry != "" },
			Request: func(in Input) GenRequest {
				return GenRequest{
					Kind:    KindBackground,
					Context: contextOf(in),
					Topic:   fmt.Sprintf("dynamic video background prompt for the %s industry", in.Recipient.Industry),
				}
			},
			Fallback: func(in Input) GenResult {
				return GenResult{Text: fmt.Sprintf("Subtle animated backdrop evoking the %s industry.", in.Recipient.Industry)}
			},
		},
	)
}

func stepsForTier(tier campaign.Tier) []step {
	switch tier {
	case campaign.TierSmart:
		return smartSteps()
	case campaign.TierAdvanced:
		return advancedSteps()
	default:
		return basicSteps()
	}
}
