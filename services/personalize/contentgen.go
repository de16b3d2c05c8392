package personalize

import (
	"context"
	"fmt"

	"videoreach-engine/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Kind selects which content-generation endpoint a step calls.
type Kind string

const (
	KindIntro          Kind = "intro"
	KindSubjectOptions Kind = "subject_options"
	KindCTA            Kind = "cta"
	KindIndustryVisual Kind = "industry_visual"
	KindRoleScript     Kind = "role_script"
	KindPainPointCTA   Kind = "pain_point_cta"
	KindCompanyInsight Kind = "company_insight"
	KindBackground     Kind = "background_prompt"
)

// Context carries the recipient fields each generation call personalizes on.
type Context struct {
	FirstName    string         `json:"first_name"`
	LastName     string         `json:"last_name"`
	Company      string         `json:"company,omitempty"`
	Role         string         `json:"role,omitempty"`
	Industry     string         `json:"industry,omitempty"`
	PainPoint    string         `json:"pain_point,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type GenRequest struct {
	Kind    Kind    `json:"kind"`
	Context Context `json:"context"`
	Topic   string  `json:"topic,omitempty"`
	Count   int     `json:"count,omitempty"`
}

type GenResult struct {
	Text       string   `json:"text,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Cost       float64  `json:"cost"`
}

// ContentGenerator is one call per asset type against the upstream
// content-generation service.
type ContentGenerator interface {
	Generate(ctx context.Context, req GenRequest) (GenResult, error)
}

// HTTPContentGenerator talks to the content-generation service over REST with
// an RPC-level timeout so one slow call cannot stall a whole batch.
type HTTPContentGenerator struct {
	client *resty.Client
}

func NewHTTPContentGenerator(cfg *config.Config) *HTTPContentGenerator {
	client := resty.New().
		SetBaseURL(cfg.ContentGen.BaseURL).
		SetTimeout(cfg.ContentGen.Timeout).
		SetHeader("Authorization", "Bearer "+cfg.ContentGen.APIKey)

	return &HTTPContentGenerator{client: client}
}

func (g *HTTPContentGenerator) Generate(ctx context.Context, req GenRequest) (GenResult, error) {
	var result GenResult
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/v1/generate")
	if err != nil {
		return GenResult{}, err
	}
	if resp.IsError() {
		zap.L().Warn("content generation call rejected",
			zap.String("kind", string(req.Kind)),
			zap.Int("status", resp.StatusCode()),
		)
		return GenResult{}, fmt.Errorf("content generation %s returned status %d", req.Kind, resp.StatusCode())
	}
	return result, nil
}
