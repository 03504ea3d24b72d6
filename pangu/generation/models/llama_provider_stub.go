//go:build !llama

package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// ErrLlamaUnavailable is returned when the binary was built without the
// llama build tag.
var ErrLlamaUnavailable = errors.New("llama.cpp not available in this build (rebuild with -tags llama)")

// LlamaProvider is a placeholder in builds without llama.cpp.
type LlamaProvider struct{}

func NewLlamaProvider(cfg *config.LLMConfig, logger zerolog.Logger) (*LlamaProvider, error) {
	return nil, fmt.Errorf("%w: %w", ErrLlamaUnavailable, ports.ErrNonRetryable)
}

func (p *LlamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	return ports.Completion{}, fmt.Errorf("%w: %w", ErrLlamaUnavailable, ports.ErrNonRetryable)
}

func (p *LlamaProvider) Close() error { return nil }

var _ ports.Provider = (*LlamaProvider)(nil)
