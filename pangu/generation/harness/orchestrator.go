package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// Policy controls orchestration behavior.
type Policy struct {
	MaxIterations   int           // model calls per turn
	MaxParseRetries int           // unparseable completions tolerated per turn
	StepTimeout     time.Duration // per THINKING step, retries included
	ToolTimeout     time.Duration // per tool invocation
	RetryCount      int           // provider call retries
	RetryBackoff    time.Duration // base delay between retries
	Sampling        ports.Options // stop sequences are added by the loop
}

// DefaultPolicy returns sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxIterations:   6,
		MaxParseRetries: 2,
		StepTimeout:     2 * time.Minute,
		ToolTimeout:     30 * time.Second,
		RetryCount:      2,
		RetryBackoff:    200 * time.Millisecond,
		Sampling: ports.Options{
			MaxNewTokens: 1024,
			Temperature:  0.1,
			TopP:         0.95,
		},
	}
}

// Orchestrator runs the Thought/Action/Observation loop for one turn at a
// time per conversation. A single Orchestrator serves many conversations.
type Orchestrator struct {
	provider   ports.Provider
	registry   *Registry
	parser     *ActionParser
	builder    *PromptBuilder
	guardrails *Guardrails
	store      ports.ConversationStore
	limiter    ports.RateLimiter
	tracer     ports.Tracer
	policy     *Policy
	logger     zerolog.Logger
}

// NewOrchestrator creates an orchestrator. Nil store, limiter, or tracer
// fall back to no-op implementations.
func NewOrchestrator(
	provider ports.Provider,
	registry *Registry,
	builder *PromptBuilder,
	guardrails *Guardrails,
	store ports.ConversationStore,
	limiter ports.RateLimiter,
	tracer ports.Tracer,
	policy *Policy,
	logger zerolog.Logger,
) *Orchestrator {
	if policy == nil {
		policy = DefaultPolicy()
	}
	if guardrails == nil {
		guardrails = NewGuardrails(0)
	}
	if store == nil {
		store = &noOpStore{}
	}
	if limiter == nil {
		limiter = &noOpRateLimiter{}
	}
	if tracer == nil {
		tracer = &noOpTracer{}
	}
	return &Orchestrator{
		provider:   provider,
		registry:   registry,
		parser:     NewActionParser(),
		builder:    builder,
		guardrails: guardrails,
		store:      store,
		limiter:    limiter,
		tracer:     tracer,
		policy:     policy,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Registry returns the tool registry the loop dispatches to.
func (o *Orchestrator) Registry() *Registry { return o.registry }

// Answer runs one turn of conv to DONE or FAILED. The returned turn is
// always non-nil and already appended to conv; err is set iff the turn
// FAILED.
func (o *Orchestrator) Answer(ctx context.Context, conv *Conversation, question string) (turn *Turn, err error) {
	turn = conv.begin(question)
	log := o.logger.With().Str("conversation_id", conv.ID).Str("turn_id", turn.ID).Logger()

	if strings.TrimSpace(question) == "" {
		return o.fail(ctx, conv, turn, fmt.Errorf("question cannot be empty"))
	}

	release, err := o.limiter.Acquire(ctx, "answer")
	if err != nil {
		return o.fail(ctx, conv, turn, fmt.Errorf("failed to acquire turn slot: %w", err))
	}
	defer release()

	ctx, finish := o.tracer.StartSpan(ctx, "answer", map[string]any{
		"conversation_id": conv.ID,
		"turn_id":         turn.ID,
	})
	defer func() { finish(err) }()

	o.archive(ctx, conv.ID, ports.Turn{Role: "user", Content: question})

	parseFailures := 0
	for iteration := 1; ; iteration++ {
		if iteration > o.policy.MaxIterations {
			return o.fail(ctx, conv, turn, &IterationBudgetExceededError{Limit: o.policy.MaxIterations})
		}
		if cerr := ctx.Err(); cerr != nil {
			return o.fail(ctx, conv, turn, fmt.Errorf("turn cancelled: %w", cerr))
		}

		turn.State = StateThinking
		raw, err := o.think(ctx, turn, iteration)
		if err != nil {
			return o.fail(ctx, conv, turn, err)
		}
		visible := TruncateObservation(raw)

		parsed, perr := o.parser.Parse(raw)
		if perr != nil {
			parseFailures++
			log.Debug().Err(perr).Int("iteration", iteration).Int("parse_failures", parseFailures).Msg("Unparseable model output")
			if parseFailures > o.policy.MaxParseRetries {
				return o.fail(ctx, conv, turn, fmt.Errorf("%w: %w", ErrParseBudgetExceeded, perr))
			}
			turn.Steps = append(turn.Steps, Step{
				Raw:         visible,
				Observation: "Invalid Format: " + perr.Error(),
				Failed:      true,
			})
			turn.State = StateObserving
			continue
		}

		if parsed.Done() {
			answer := o.guardrails.ClampOutput(o.guardrails.SanitizeOutput(parsed.FinalAnswer))
			turn.FinalAnswer = answer
			turn.State = StateDone
			turn.FinishedAt = time.Now()
			o.archive(ctx, conv.ID, ports.Turn{Role: "assistant", Content: answer})
			log.Info().Int("iterations", iteration).Dur("elapsed", turn.FinishedAt.Sub(turn.StartedAt)).Msg("Turn answered")
			return turn, nil
		}

		turn.State = StateActing
		observation, failed, err := o.act(ctx, conv.ID, *parsed.Action)
		if err != nil {
			return o.fail(ctx, conv, turn, err)
		}

		turn.State = StateObserving
		turn.Steps = append(turn.Steps, Step{
			Thought:     parsed.Thought,
			Action:      parsed.Action,
			Observation: observation,
			Failed:      failed,
			Repaired:    parsed.Repaired,
			Raw:         visible,
		})
	}
}

// think renders the prompt and calls the provider under the step timeout.
// A call that outlives its context is abandoned and its result dropped.
func (o *Orchestrator) think(ctx context.Context, turn *Turn, iteration int) (string, error) {
	prompt := o.builder.Build(o.registry.DescribeAll(), turn.Question, turn.Scratchpad(), map[string]string{
		"turn_id":   turn.ID,
		"iteration": fmt.Sprintf("%d", iteration),
	})

	opts := o.policy.Sampling
	opts.Stop = append(append([]string(nil), opts.Stop...), "\n"+MarkerObservation)

	stepCtx, cancel := context.WithTimeout(ctx, o.policy.StepTimeout)
	defer cancel()

	stepCtx, spanFinish := o.tracer.StartSpan(stepCtx, "provider_call", map[string]any{
		"iteration": iteration,
	})

	type result struct {
		completion ports.Completion
		err        error
	}
	done := make(chan result, 1)
	go func() {
		c, err := o.complete(stepCtx, prompt, opts)
		done <- result{completion: c, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-stepCtx.Done():
		res = result{err: stepCtx.Err()}
	}

	if res.err != nil {
		err := o.classifyProviderError(ctx, stepCtx, iteration, res.err)
		spanFinish(err)
		return "", err
	}
	spanFinish(nil)

	if u := res.completion.Usage; u != nil {
		o.tracer.Event(ctx, "usage", map[string]any{
			"prompt_tokens":     u.PromptTokens,
			"completion_tokens": u.CompletionTokens,
		})
	}
	return res.completion.Text, nil
}

func (o *Orchestrator) classifyProviderError(parent, step context.Context, iteration int, err error) error {
	switch {
	case errors.Is(parent.Err(), context.Canceled):
		return fmt.Errorf("turn cancelled: %w", parent.Err())
	case errors.Is(step.Err(), context.DeadlineExceeded):
		return &ModelInferenceTimeoutError{Iteration: iteration, Timeout: o.policy.StepTimeout}
	default:
		return fmt.Errorf("provider call failed: %w", err)
	}
}

// complete calls the provider with exponential backoff. Context errors and
// ErrNonRetryable failures are returned immediately.
func (o *Orchestrator) complete(ctx context.Context, prompt ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	base := o.policy.RetryBackoff
	if base <= 0 {
		base = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(max(o.policy.RetryCount, 0)), retry.NewExponential(base))

	var out ports.Completion
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		c, err := o.provider.Complete(ctx, prompt, opts)
		if err == nil {
			out = c
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, ports.ErrNonRetryable) {
			return err
		}
		o.logger.Warn().Err(err).Int("attempt", attempt).Msg("Provider call failed, retrying")
		return retry.RetryableError(err)
	})
	return out, err
}

// act validates and runs one action. Recoverable failures come back as an
// observation with failed set; only cancellation is returned as err.
func (o *Orchestrator) act(ctx context.Context, conversationID string, action ports.ActionRequest) (string, bool, error) {
	ctx, spanFinish := o.tracer.StartSpan(ctx, "tool_call", map[string]any{
		"tool":  action.Tool,
		"input": string(action.Input),
	})

	if err := o.guardrails.ValidateAction(action); err != nil {
		spanFinish(err)
		return invalidArgumentsObservation(err), true, nil
	}

	toolCtx, cancel := context.WithTimeout(ctx, o.policy.ToolTimeout)
	defer cancel()

	output, err := o.registry.Invoke(toolCtx, action.Tool, action.Input)
	spanFinish(err)
	if err != nil {
		if ctx.Err() != nil {
			return "", false, fmt.Errorf("turn cancelled: %w", ctx.Err())
		}
		if IsRecoverable(err) {
			return invalidArgumentsObservation(err), true, nil
		}
		return err.Error(), true, nil
	}

	if payload, merr := json.Marshal(map[string]any{"input": action.Input, "output": output}); merr == nil {
		if serr := o.store.AppendToolArtifact(ctx, conversationID, action.Tool, payload); serr != nil {
			o.tracer.Event(ctx, "store_error", map[string]any{"error": serr.Error()})
		}
	}
	return output, false, nil
}

func invalidArgumentsObservation(err error) string {
	return fmt.Sprintf("error: invalid arguments — retry with corrected JSON (%s)", err)
}

// fail closes the turn as FAILED and archives the reason.
func (o *Orchestrator) fail(ctx context.Context, conv *Conversation, turn *Turn, err error) (*Turn, error) {
	turn.State = StateFailed
	turn.Err = err
	turn.FinishedAt = time.Now()

	o.logger.Warn().Err(err).
		Str("conversation_id", conv.ID).
		Str("turn_id", turn.ID).
		Int("steps", len(turn.Steps)).
		Msg("Turn failed")

	// Archive even when ctx is already cancelled.
	o.archive(context.WithoutCancel(ctx), conv.ID, ports.Turn{Role: "error", Content: err.Error()})
	return turn, err
}

func (o *Orchestrator) archive(ctx context.Context, conversationID string, t ports.Turn) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if err := o.store.SaveTurn(ctx, conversationID, t); err != nil {
		// Log but don't fail
		o.tracer.Event(ctx, "store_error", map[string]any{"error": err.Error()})
	}
}
