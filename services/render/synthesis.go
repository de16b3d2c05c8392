package render

import (
	"context"
	"fmt"

	"videoreach-engine/pkg/config"

	"github.com/go-resty/resty/v2"
)

// SynthesisConfig is passed through to the provider on submit.
type SynthesisConfig struct {
	MasterVideoURL   string `json:"master_video_url,omitempty"`
	BackgroundPrompt string `json:"background_prompt,omitempty"`
}

// SynthesisClient wraps the asynchronous video-synthesis provider: submit a
// prompt, poll the operation handle until done, download the artifact.
type SynthesisClient interface {
	Submit(ctx context.Context, prompt string, cfg SynthesisConfig) (string, error)
	Poll(ctx context.Context, handle string) (done bool, resultURI string, err error)
	Download(ctx context.Context, resultURI string) ([]byte, error)
}

type HTTPSynthesisClient struct {
	client *resty.Client
}

func NewHTTPSynthesisClient(cfg *config.Config) *HTTPSynthesisClient {
	client := resty.New().
		SetBaseURL(cfg.Synthesis.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.Synthesis.APIKey)

	return &HTTPSynthesisClient{client: client}
}

type submitRequest struct {
	Prompt string          `json:"prompt"`
	Config SynthesisConfig `json:"config"`
}

type submitResponse struct {
	OperationID string `json:"operation_id"`
}

type pollResponse struct {
	Done      bool   `json:"done"`
	ResultURI string `json:"result_uri,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (c *HTTPSynthesisClient) Submit(ctx context.Context, prompt string, cfg SynthesisConfig) (string, error) {
	var result submitResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(submitRequest{Prompt: prompt, Config: cfg}).
		SetResult(&result).
		Post("/v1/operations")
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("synthesis submit returned status %d", resp.StatusCode())
	}
	return result.OperationID, nil
}

func (c *HTTPSynthesisClient) Poll(ctx context.Context, handle string) (bool, string, error) {
	var result pollResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get("/v1/operations/" + handle)
	if err != nil {
		return false, "", err
	}
	if resp.IsError() {
		return false, "", fmt.Errorf("synthesis poll returned status %d", resp.StatusCode())
	}
	if result.Error != "" {
		return false, "", fmt.Errorf("synthesis operation failed: %s", result.Error)
	}
	return result.Done, result.ResultURI, nil
}

func (c *HTTPSynthesisClient) Download(ctx context.Context, resultURI string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		Get(resultURI)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("synthesis download returned status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
