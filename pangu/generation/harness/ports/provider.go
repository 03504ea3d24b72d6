package harnessports

import (
	"context"
	"errors"
)

// ErrNonRetryable marks provider failures that retrying cannot fix, such as
// a rejected request or a missing model.
var ErrNonRetryable = errors.New("non-retryable provider error")

// PromptInput is everything the provider needs to produce one completion.
// The react template is already rendered into Prompt.
type PromptInput struct {
	Prompt string            // fully rendered prompt text
	Meta   map[string]string // lightweight metadata for tracing
}

// Options controls sampling, limits, and stop sequences.
type Options struct {
	MaxNewTokens int
	Temperature  float32
	TopP         float32
	Stop         []string
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Usage *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends (inference hidden behind this port).
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
