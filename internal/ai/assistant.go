package ai

import (
	"context"
	"errors"
)

// Provider names accepted by the ai.provider setting.
const (
	ProviderGemini   = "gemini"
	ProviderLMStudio = "lmstudio"
	ProviderNone     = "none"
)

// ErrDisabled is returned by collaborators of the "none" provider.
var ErrDisabled = errors.New("ai provider is disabled")

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer answers a single prompt with free text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Disabled satisfies both collaborator interfaces and always fails, so the
// scoring pipeline takes its degraded path.
type Disabled struct{}

func (Disabled) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrDisabled
}

func (Disabled) Complete(context.Context, string) (string, error) {
	return "", ErrDisabled
}
