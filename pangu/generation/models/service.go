// Package models provides the language model backends behind the
// harness Provider port.
package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

const (
	ProviderOpenAI = "openai"
	ProviderLlama  = "llama"
)

// backend is a Provider that owns resources.
type backend interface {
	ports.Provider
	Close() error
}

// Service owns the process's single model backend. It is built once at
// startup, handed to the orchestrator, and closed at exit; there is no
// implicit reload.
type Service struct {
	mu      sync.RWMutex
	name    string
	backend backend
	closed  bool
	logger  zerolog.Logger
}

// NewService constructs the backend selected by cfg.Provider.
func NewService(cfg *config.LLMConfig, logger zerolog.Logger) (*Service, error) {
	logger = logger.With().Str("component", "models").Logger()

	var (
		b   backend
		err error
	)
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for the %s provider", ProviderOpenAI)
		}
		b = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.RequestTimeout)
	case ProviderLlama:
		b, err = NewLlamaProvider(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to load llama model: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected %s or %s)", cfg.Provider, ProviderOpenAI, ProviderLlama)
	}

	name := cfg.Provider
	if name == "" {
		name = ProviderOpenAI
	}
	logger.Info().Str("provider", name).Str("model", cfg.Model).Msg("Model service ready")
	return &Service{name: name, backend: b, logger: logger}, nil
}

// NewServiceWithProvider wraps an existing backend, mainly for tests.
func NewServiceWithProvider(name string, p ports.Provider, logger zerolog.Logger) *Service {
	b, ok := p.(backend)
	if !ok {
		b = nopCloser{p}
	}
	return &Service{name: name, backend: b, logger: logger}
}

// Name is the configured provider name.
func (s *Service) Name() string { return s.name }

// Complete implements ports.Provider. The lock only guards the closed
// flag; an in-flight call never holds up Close.
func (s *Service) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	s.mu.RLock()
	closed, b := s.closed, s.backend
	s.mu.RUnlock()

	if closed {
		return ports.Completion{}, fmt.Errorf("model service is closed: %w", ports.ErrNonRetryable)
	}
	return b.Complete(ctx, in, opts)
}

// Close releases the backend. Further calls fail. Backends guard their
// own resources against calls still in flight.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	b := s.backend
	s.mu.Unlock()

	s.logger.Debug().Str("provider", s.name).Msg("Closing model service")
	return b.Close()
}

type nopCloser struct{ ports.Provider }

func (nopCloser) Close() error { return nil }

var _ ports.Provider = (*Service)(nil)
