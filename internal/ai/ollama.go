package ai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/CosmoTheDev/codesense/internal/config"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "codellama:13b"
)

// OllamaProvider runs non-streaming generations against a local Ollama
// server (ai.provider = "ollama").
type OllamaProvider struct {
	baseURL  string
	model    string
	options  ollamaOptions
	client   *http.Client
	generate endpoint
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Options ollamaOptions `json:"options"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// NewOllama creates an OllamaProvider from cfg. OptimizeForLocal trades a
// shorter timeout for one retry on timeouts and 5xx answers, which local
// models under load produce often.
func NewOllama(cfg config.AIConfig) (*OllamaProvider, error) {
	base := strings.TrimRight(cfg.OllamaURL, "/")
	if base == "" {
		base = defaultOllamaURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}

	timeout, policy := 180*time.Second, retryPolicy{attempts: 1}
	if cfg.OptimizeForLocal {
		timeout = 90 * time.Second
		policy = retryPolicy{
			attempts:  2,
			transport: true,
			retryable: func(status int) bool { return status == http.StatusTooManyRequests || status >= 500 },
			delay:     func(int, http.Header, []byte) time.Duration { return 1500 * time.Millisecond },
		}
	}
	client := &http.Client{Timeout: timeout}
	debug, prompts := parseAIDebugEnv()
	return &OllamaProvider{
		baseURL: base,
		model:   model,
		options: ollamaOptions{Temperature: cfg.Temperature, NumCtx: cfg.NumCtx, NumPredict: cfg.NumPredict},
		client:  client,
		generate: endpoint{
			provider: "ollama",
			client:   client,
			url:      base + "/api/generate",
			policy:   policy,
			debug:    debug || envBool("CODESENSE_OLLAMA_DEBUG"),
			prompts:  prompts,
		},
	}, nil
}

func (o *OllamaProvider) Name() string { return "ollama" }

// IsAvailable checks that the server answers its model listing.
func (o *OllamaProvider) IsAvailable(ctx context.Context) bool {
	return probe(ctx, o.client, o.baseURL+"/api/tags", nil)
}

func (o *OllamaProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	var resp ollamaResponse
	req := ollamaRequest{Model: o.model, Prompt: prompt, Options: o.options}
	if err := o.generate.post(ctx, prompt, req, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Response), nil
}
