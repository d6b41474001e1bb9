package ai

import (
	"context"
	"log/slog"

	"github.com/CosmoTheDev/codesense/internal/config"
)

// AIProvider abstracts calls to a language model. Implementations must be
// safe for concurrent use; the scanner calls Invoke from many goroutines.
// To add a new provider:
//  1. Create a file in internal/ai/ (e.g. mymodel.go)
//  2. Implement AIProvider
//  3. Register in newSingle()
type AIProvider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string

	// IsAvailable verifies the provider is reachable and configured.
	IsAvailable(ctx context.Context) bool

	// Invoke sends prompt to the model and returns its free-text answer.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// New returns the configured AIProvider.
// If no provider is set, it returns a NoopProvider; callers should check
// IsAvailable() before scanning.
// If fallback providers are configured, returns a ChainProvider that tries
// them in order on failure with circuit breaker protection.
func New(cfg config.AIConfig) (AIProvider, error) {
	primary, err := newSingle(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}

	if len(cfg.Fallback) == 0 {
		return primary, nil
	}

	chain := []AIProvider{primary}
	for _, fallbackProvider := range cfg.Fallback {
		p, err := newSingle(fallbackProvider, cfg)
		if err != nil {
			slog.Warn("ai: failed to create fallback provider, skipping", "provider", fallbackProvider, "error", err)
			continue
		}
		chain = append(chain, p)
	}

	if len(chain) == 1 {
		return primary, nil
	}

	return NewChain(chain), nil
}
