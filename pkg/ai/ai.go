// Package ai provides the model-completion interface used by the ai
// action, with an Azure OpenAI-backed implementation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Request is one completion call. Cancellation travels on the
// context; Timeout additionally bounds the call when set.
type Request struct {
	System          string
	Prompt          string
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Timeout         time.Duration
}

// Response is the model's answer.
type Response struct {
	Text         string
	FinishReason string
}

// Provider sends completion requests to a model backend.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)

	// IsAvailable reports whether the provider is configured and
	// reachable enough to accept requests.
	IsAvailable() bool

	// SignIn performs any interactive authentication the backend
	// needs. Key-authenticated backends return nil.
	SignIn(ctx context.Context) error

	// ModelName identifies the backing deployment for provenance.
	ModelName() string
}

// AzureConfig holds the environment-driven Azure OpenAI settings.
type AzureConfig struct {
	Endpoint   string `env:"CATALYST_AI_ENDPOINT"`
	APIKey     string `env:"CATALYST_AI_API_KEY"`
	Deployment string `env:"CATALYST_AI_DEPLOYMENT"`
	APIVersion string `env:"CATALYST_AI_API_VERSION" envDefault:"2024-02-01"`
}

// AzureClient implements Provider against the Azure OpenAI REST API.
type AzureClient struct {
	Endpoint   string
	APIKey     string
	Deployment string
	APIVersion string
	HTTPClient *http.Client
}

// NewAzureClient creates a client from explicit config.
func NewAzureClient(cfg AzureConfig) (*AzureClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("CATALYST_AI_ENDPOINT is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("CATALYST_AI_API_KEY is required")
	}
	if cfg.Deployment == "" {
		return nil, fmt.Errorf("CATALYST_AI_DEPLOYMENT is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-01"
	}
	return &AzureClient{
		Endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		APIKey:     cfg.APIKey,
		Deployment: cfg.Deployment,
		APIVersion: cfg.APIVersion,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}, nil
}

// NewAzureClientFromEnv creates a client from CATALYST_AI_* environment
// variables.
func NewAzureClientFromEnv() (*AzureClient, error) {
	var cfg AzureConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse ai environment: %w", err)
	}
	return NewAzureClient(cfg)
}

// ModelName returns the deployment name for provenance.
func (c *AzureClient) ModelName() string {
	return c.Deployment
}

// IsAvailable reports whether the client carries a complete
// configuration.
func (c *AzureClient) IsAvailable() bool {
	return c.Endpoint != "" && c.APIKey != "" && c.Deployment != ""
}

// SignIn is a no-op: Azure OpenAI authenticates with the api-key
// header on every request.
func (c *AzureClient) SignIn(context.Context) error { return nil }

type chatRequest struct {
	Messages            []chatMessage `json:"messages"`
	Temperature         float64       `json:"temperature,omitempty"`
	MaxCompletionTokens int           `json:"max_completion_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends a chat completion request to Azure OpenAI.
func (c *AzureClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	deployment := c.Deployment
	if req.Model != "" {
		deployment = req.Model
	}
	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.Endpoint, deployment, c.APIVersion)

	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 16384
	}
	reqBody := chatRequest{
		Temperature:         req.Temperature,
		MaxCompletionTokens: maxTokens,
	}
	if req.System != "" {
		reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "system", Content: req.System})
	}
	reqBody.Messages = append(reqBody.Messages, chatMessage{Role: "user", Content: req.Prompt})

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("azure openai returned %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return nil, fmt.Errorf("api error [%s]: %s", chatResp.Error.Code, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}
	choice := chatResp.Choices[0]
	if choice.FinishReason == "length" {
		return nil, fmt.Errorf("model response was truncated (hit max_completion_tokens); raise max_output_tokens or shorten the prompt")
	}

	return &Response{Text: choice.Message.Content, FinishReason: choice.FinishReason}, nil
}
