package ai

import (
	"context"
	"errors"
)

// errNoAI is returned by NoopProvider for every call.
var errNoAI = errors.New("AI provider not configured; set ai.provider to ollama or openai")

// NoopProvider is used when no AI provider is configured.
// IsAvailable always returns false, so scans fail fast at preflight.
type NoopProvider struct{}

func (n *NoopProvider) Name() string                       { return "none" }
func (n *NoopProvider) IsAvailable(_ context.Context) bool { return false }

func (n *NoopProvider) Invoke(_ context.Context, _ string) (string, error) {
	return "", errNoAI
}
