//go:build llama

package models

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/go-skynet/go-llama.cpp"
	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// LlamaProvider runs a local GGUF model through llama.cpp. One model
// instance serves calls one at a time.
type LlamaProvider struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
	logger  zerolog.Logger
}

// NewLlamaProvider loads the model at cfg.ModelPath.
func NewLlamaProvider(cfg *config.LLMConfig, logger zerolog.Logger) (*LlamaProvider, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("llm.model_path is required for the llama provider: %w", ports.ErrNonRetryable)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file %s: %w", cfg.ModelPath, err)
	}

	model, err := llama.New(cfg.ModelPath,
		llama.SetContext(cfg.ContextSize),
		llama.SetGPULayers(cfg.GPULayers),
	)
	if err != nil {
		return nil, fmt.Errorf("llama.New failed: %w", err)
	}

	logger = logger.With().Str("component", "llama").Str("model_path", cfg.ModelPath).Logger()
	logger.Info().Int("context_size", cfg.ContextSize).Int("gpu_layers", cfg.GPULayers).Msg("Model loaded")

	return &LlamaProvider{model: model, threads: cfg.Threads, logger: logger}, nil
}

// Complete runs one prediction. llama.cpp cannot be interrupted, so ctx
// is only checked before the call starts.
func (p *LlamaProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return ports.Completion{}, err
	}
	if p.model == nil {
		return ports.Completion{}, fmt.Errorf("model is closed: %w", ports.ErrNonRetryable)
	}

	predictOpts := []llama.PredictOption{
		llama.SetTemperature(opts.Temperature),
		llama.SetTopP(opts.TopP),
		llama.SetTokens(opts.MaxNewTokens),
	}
	if p.threads > 0 {
		predictOpts = append(predictOpts, llama.SetThreads(p.threads))
	}
	if len(opts.Stop) > 0 {
		predictOpts = append(predictOpts, llama.SetStopWords(opts.Stop...))
	}

	text, err := p.model.Predict(in.Prompt, predictOpts...)
	if err != nil {
		return ports.Completion{}, fmt.Errorf("prediction failed: %w", err)
	}
	return ports.Completion{Text: text}, nil
}

// Close frees the model.
func (p *LlamaProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		p.model.Free()
		p.model = nil
	}
	return nil
}

var _ ports.Provider = (*LlamaProvider)(nil)
