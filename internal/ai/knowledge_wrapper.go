package ai

import (
	"context"

	"github.com/CosmoTheDev/codesense/internal/knowledge"
)

type retrievalQueryKey struct{}

// WithRetrievalQuery attaches the text that knowledge retrieval should match
// against, usually the code under review rather than the whole prompt.
func WithRetrievalQuery(ctx context.Context, query string) context.Context {
	return context.WithValue(ctx, retrievalQueryKey{}, query)
}

// retrievalQuery returns the query attached to ctx, or prompt when none is.
func retrievalQuery(ctx context.Context, prompt string) string {
	if q, ok := ctx.Value(retrievalQueryKey{}).(string); ok && q != "" {
		return q
	}
	return prompt
}

// Retriever finds reference material relevant to a prompt.
type Retriever interface {
	Retrieve(query string) []knowledge.Doc
}

// groundedProvider wraps an AIProvider so every prompt carries retrieved
// security reference material.
type groundedProvider struct {
	inner AIProvider
	kb    Retriever
}

// WithKnowledge wraps inner so that every Invoke is augmented from kb.
// If kb is nil, inner is returned unchanged.
func WithKnowledge(inner AIProvider, kb Retriever) AIProvider {
	if kb == nil {
		return inner
	}
	return &groundedProvider{inner: inner, kb: kb}
}

func (g *groundedProvider) Name() string { return g.inner.Name() }

func (g *groundedProvider) IsAvailable(ctx context.Context) bool {
	return g.inner.IsAvailable(ctx)
}

func (g *groundedProvider) Invoke(ctx context.Context, prompt string) (string, error) {
	docs := g.kb.Retrieve(retrievalQuery(ctx, prompt))
	return g.inner.Invoke(ctx, knowledge.Augment(prompt, docs))
}
