package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CosmoTheDev/codesense/internal/config"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-4o"
	reviewerRole       = "You are an expert application security reviewer. Follow the requested output format exactly."
)

// OpenAIProvider calls an OpenAI compatible chat completions API. BaseURL
// points it at proxies or local servers speaking the same protocol.
type OpenAIProvider struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	auth        http.Header
	client      *http.Client
	chat        endpoint
}

type openAIRequest struct {
	Model               string      `json:"model"`
	Messages            []openAIMsg `json:"messages"`
	MaxTokens           int         `json:"max_tokens,omitempty"`
	MaxCompletionTokens int         `json:"max_completion_tokens,omitempty"`
	Temperature         *float64    `json:"temperature,omitempty"`
}

type openAIMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewOpenAI creates an OpenAIProvider from cfg.
func NewOpenAI(cfg config.AIConfig) (*OpenAIProvider, error) {
	base := cfg.BaseURL
	if base == "" {
		base = defaultOpenAIBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid OpenAI base URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("invalid OpenAI base URL scheme %q", u.Scheme)
	}
	base = strings.TrimRight(base, "/")
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.NumPredict
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	auth := http.Header{}
	if cfg.OpenAIKey != "" {
		auth.Set("Authorization", "Bearer "+cfg.OpenAIKey)
	}
	client := &http.Client{Timeout: 120 * time.Second}
	debug, prompts := parseAIDebugEnv()
	return &OpenAIProvider{
		baseURL:     base,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		auth:        auth,
		client:      client,
		chat: endpoint{
			provider: "openai",
			client:   client,
			url:      base + "/chat/completions",
			header:   auth,
			policy: retryPolicy{
				attempts:  6,
				retryable: func(status int) bool { return status == http.StatusTooManyRequests },
				delay:     rateLimitDelay,
			},
			debug:   debug,
			prompts: prompts,
		},
	}, nil
}

func (o *OpenAIProvider) Name() string { return "openai" }

// IsAvailable probes the models endpoint with the configured key.
func (o *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	return probe(ctx, o.client, o.baseURL+"/models", o.auth)
}

// Invoke sends prompt as the user turn after a fixed reviewer system turn.
func (o *OpenAIProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	req := openAIRequest{
		Model: o.model,
		Messages: []openAIMsg{
			{Role: "system", Content: reviewerRole},
			{Role: "user", Content: prompt},
		},
	}
	// Reasoning models reject max_tokens and a custom temperature.
	if usesMaxCompletionTokens(o.model) {
		req.MaxCompletionTokens = o.maxTokens
	} else {
		req.MaxTokens = o.maxTokens
		t := o.temperature
		req.Temperature = &t
	}

	var resp openAIResponse
	if err := o.chat.post(ctx, prompt, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("openai: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func usesMaxCompletionTokens(model string) bool {
	m := strings.ToLower(strings.TrimSpace(model))
	return strings.Contains(m, "gpt-5") || strings.Contains(m, "codex") ||
		strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") || strings.HasPrefix(m, "o4")
}
