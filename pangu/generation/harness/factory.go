package harness

import (
	"context"
	"database/sql"
	"time"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	harnessConfig *config.HarnessConfig
	llmConfig     *config.LLMConfig
	db            *sql.DB // Optional, for conversation store
	logger        zerolog.Logger
}

// NewFactory creates a new harness factory.
func NewFactory(harnessConfig *config.HarnessConfig, llmConfig *config.LLMConfig, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		harnessConfig: harnessConfig,
		llmConfig:     llmConfig,
		db:            db,
		logger:        logger,
	}
}

// CreateOrchestrator creates a fully wired Orchestrator from config. The
// provider is injected separately since it owns the model lifecycle.
func (f *Factory) CreateOrchestrator(provider ports.Provider, registry *Registry) (*Orchestrator, error) {
	builder, err := NewPromptBuilder(DefaultTemplate)
	if err != nil {
		return nil, err
	}

	return NewOrchestrator(
		provider,
		registry,
		builder,
		f.CreateGuardrails(),
		f.CreateStore(),
		f.createRateLimiter(),
		f.createTracer(),
		f.CreatePolicy(),
		f.logger,
	), nil
}

// CreateCache creates a cache adapter from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.harnessConfig.CacheEnabled || f.harnessConfig.CacheCapacity < 1 {
		return &noOpCache{}
	}

	return adapters.NewLRUCache(f.harnessConfig.CacheCapacity)
}

// createRateLimiter creates a rate limiter adapter from config.
func (f *Factory) createRateLimiter() ports.RateLimiter {
	if !f.harnessConfig.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	capacity := f.harnessConfig.RateLimitCapacity
	if capacity < 1 {
		capacity = 1
		f.logger.Warn().Int("rate_limit_capacity", f.harnessConfig.RateLimitCapacity).Msg("RateLimitCapacity clamped to minimum of 1")
	}
	refill := f.harnessConfig.RateLimitRefillRate
	if refill <= 0 {
		refill = time.Second
	}

	return adapters.NewTokenBucket(capacity, refill)
}

// createTracer creates a tracer adapter from config.
func (f *Factory) createTracer() ports.Tracer {
	if !f.harnessConfig.EnableTracing {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// CreateStore creates a conversation store adapter from config.
func (f *Factory) CreateStore() ports.ConversationStore {
	if f.db == nil {
		return &noOpStore{}
	}

	return adapters.NewLibSQLConversationStore(f.db)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() *Guardrails {
	guardrails := NewGuardrails(f.harnessConfig.MaxOutputSize)

	if f.harnessConfig.EnableGuardrails {
		for _, toolName := range f.harnessConfig.AllowedTools {
			guardrails.AddAllowedTool(toolName)
		}
	}

	return guardrails
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	policy := &Policy{
		MaxIterations:   f.harnessConfig.MaxIterations,
		MaxParseRetries: f.harnessConfig.MaxParseRetries,
		StepTimeout:     f.harnessConfig.StepTimeout,
		ToolTimeout:     f.harnessConfig.ToolTimeout,
		RetryCount:      f.harnessConfig.RetryCount,
		RetryBackoff:    f.harnessConfig.RetryBackoff,
		Sampling:        DefaultPolicy().Sampling,
	}
	if f.llmConfig != nil {
		policy.Sampling = ports.Options{
			MaxNewTokens: f.llmConfig.MaxNewTokens,
			Temperature:  f.llmConfig.Temperature,
			TopP:         f.llmConfig.TopP,
		}
	}

	// Validate and clamp policy values
	if policy.MaxIterations < 1 {
		policy.MaxIterations = 1
		f.logger.Warn().Int("max_iterations", f.harnessConfig.MaxIterations).Msg("MaxIterations clamped to minimum of 1")
	}
	if policy.MaxIterations > 50 {
		policy.MaxIterations = 50
		f.logger.Warn().Int("max_iterations", f.harnessConfig.MaxIterations).Msg("MaxIterations clamped to maximum of 50")
	}

	if policy.MaxParseRetries < 0 {
		policy.MaxParseRetries = 0
		f.logger.Warn().Int("max_parse_retries", f.harnessConfig.MaxParseRetries).Msg("MaxParseRetries clamped to minimum of 0")
	}
	if policy.MaxParseRetries >= policy.MaxIterations {
		policy.MaxParseRetries = policy.MaxIterations - 1
		f.logger.Warn().Int("max_parse_retries", f.harnessConfig.MaxParseRetries).Msg("MaxParseRetries clamped below MaxIterations")
	}

	if policy.StepTimeout <= 0 {
		policy.StepTimeout = DefaultPolicy().StepTimeout
		f.logger.Warn().Dur("step_timeout", f.harnessConfig.StepTimeout).Msg("StepTimeout reset to default")
	}
	if policy.ToolTimeout <= 0 {
		policy.ToolTimeout = DefaultPolicy().ToolTimeout
		f.logger.Warn().Dur("tool_timeout", f.harnessConfig.ToolTimeout).Msg("ToolTimeout reset to default")
	}

	if policy.RetryCount < 0 {
		policy.RetryCount = 0
	}
	if policy.RetryCount > 5 {
		policy.RetryCount = 5
		f.logger.Warn().Int("retry_count", f.harnessConfig.RetryCount).Msg("RetryCount clamped to maximum of 5")
	}
	if policy.RetryBackoff <= 0 {
		policy.RetryBackoff = DefaultPolicy().RetryBackoff
	}

	if policy.Sampling.MaxNewTokens < 1 {
		policy.Sampling.MaxNewTokens = DefaultPolicy().Sampling.MaxNewTokens
		f.logger.Warn().Msg("MaxNewTokens reset to default")
	}

	return policy
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// noOpStore implements ConversationStore interface with no-op behavior.
type noOpStore struct{}

func (s *noOpStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	return nil
}

func (s *noOpStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	return nil, nil
}

func (s *noOpStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return nil
}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache             = (*noOpCache)(nil)
	_ ports.RateLimiter       = (*noOpRateLimiter)(nil)
	_ ports.Tracer            = (*noOpTracer)(nil)
	_ ports.ConversationStore = (*noOpStore)(nil)
)
