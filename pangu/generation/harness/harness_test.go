package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/tools"
)

const toolName = tools.AverageTemperatureToolName

// scriptedProvider replays completions in order, repeating the last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []string
	prompts   []string
	opts      []ports.Options
}

func (p *scriptedProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.prompts = append(p.prompts, in.Prompt)
	p.opts = append(p.opts, opts)
	idx := min(len(p.prompts)-1, len(p.responses)-1)
	return ports.Completion{
		Text:  p.responses[idx],
		Usage: &ports.Usage{PromptTokens: len(in.Prompt) / 4, CompletionTokens: 16},
	}, nil
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.prompts)
}

// mockProvider is a testify mock of the Provider port.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	args := m.Called(ctx, in, opts)
	return args.Get(0).(ports.Completion), args.Error(1)
}

// recordingStore implements ConversationStore for testing.
type recordingStore struct {
	mu    sync.Mutex
	turns map[string][]ports.Turn
}

func (s *recordingStore) SaveTurn(ctx context.Context, conversationID string, turn ports.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turns == nil {
		s.turns = make(map[string][]ports.Turn)
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return nil
}

func (s *recordingStore) LoadContext(ctx context.Context, conversationID string, k int) ([]ports.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	turns := s.turns[conversationID]
	if k <= 0 || k >= len(turns) {
		return turns, nil
	}
	return turns[len(turns)-k:], nil
}

func (s *recordingStore) AppendToolArtifact(ctx context.Context, conversationID, name string, payload []byte) error {
	return s.SaveTurn(ctx, conversationID, ports.Turn{Role: "tool", Content: name + ": " + string(payload)})
}

func (s *recordingStore) roles(conversationID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var roles []string
	for _, t := range s.turns[conversationID] {
		roles = append(roles, t.Role)
	}
	return roles
}

var _ ports.ConversationStore = (*recordingStore)(nil)

func testTable(t testing.TB) *forecast.Table {
	t.Helper()
	table, err := forecast.NewTable(
		forecast.Statistic{Interval: forecast.Interval6h, Step: 1, Region: "China", Variable: "2m temperature", Value: 14.31, Unit: "°C"},
		forecast.Statistic{Interval: forecast.Interval6h, Step: 2, Region: "China", Variable: "2m temperature", Value: 17.92, Unit: "°C"},
		forecast.Statistic{Interval: forecast.Interval24h, Step: 1, Region: "China", Variable: "2m temperature", Value: 15.2, Unit: "°C"},
	)
	require.NoError(t, err)
	return table
}

func testRegistry(t testing.TB) *Registry {
	t.Helper()
	registry := NewRegistry()
	require.NoError(t, registry.Register(tools.NewAverageTemperatureTool(testTable(t))))
	return registry
}

func testPolicy() *Policy {
	p := DefaultPolicy()
	p.MaxIterations = 4
	p.StepTimeout = 2 * time.Second
	p.ToolTimeout = time.Second
	p.RetryBackoff = time.Millisecond
	return p
}

func newTestOrchestrator(t testing.TB, provider ports.Provider, policy *Policy, store ports.ConversationStore) *Orchestrator {
	t.Helper()
	builder, err := NewPromptBuilder(DefaultTemplate)
	require.NoError(t, err)
	return NewOrchestrator(provider, testRegistry(t), builder, NewGuardrails(8000), store, nil, nil, policy, zerolog.Nop())
}

func action(input string) string {
	return fmt.Sprintf(" I should look up the forecast.\nAction: %s\nAction Input: %s", toolName, input)
}

const sixHourStepTwo = "The forecast average 2m temperature over China at step 2 of the 6h model (12 hours ahead) is 17.92 °C."

func TestOrchestrator_SixHourStepTwo(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "6h", "step": 2}`),
		" I now know the final answer\nFinal Answer: In 12 hours the average temperature over China will be 17.92 °C.",
	}}
	store := &recordingStore{}
	o := newTestOrchestrator(t, provider, testPolicy(), store)
	conv := NewConversation()

	turn, err := o.Answer(context.Background(), conv, "What will the average temperature in China be 12 hours from now?")
	require.NoError(t, err)

	assert.Equal(t, StateDone, turn.State)
	assert.Contains(t, turn.FinalAnswer, "17.92")
	require.Len(t, turn.Steps, 1)
	assert.Equal(t, sixHourStepTwo, turn.Steps[0].Observation)
	assert.False(t, turn.Steps[0].Failed)
	assert.Equal(t, "I should look up the forecast.", turn.Steps[0].Thought)
	assert.Same(t, turn, conv.Last())

	// The second prompt replays the step followed by the tool's observation
	require.Equal(t, 2, provider.calls())
	assert.Contains(t, provider.prompts[1], "Observation: "+sixHourStepTwo+"\nThought: ")
	assert.Contains(t, provider.prompts[0], "should be one of ["+toolName+"]")
	assert.Contains(t, provider.prompts[0], "Question: What will the average temperature")
	assert.Contains(t, provider.opts[0].Stop, "\nObservation:")
	assert.Equal(t, float32(0.1), provider.opts[0].Temperature)

	assert.Equal(t, []string{"user", "tool", "assistant"}, store.roles(conv.ID))
}

func TestOrchestrator_InvalidIntervalThenRetry(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "2h", "step": 1}`),
		action(`{"time_interval": "6h", "step": 2}`),
		"Final Answer: 17.92 °C",
	}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in two hours?")
	require.NoError(t, err)

	require.Len(t, turn.Steps, 2)
	assert.True(t, turn.Steps[0].Failed)
	assert.True(t, strings.HasPrefix(turn.Steps[0].Observation, "error: invalid arguments — retry with corrected JSON"))
	assert.False(t, turn.Steps[1].Failed)
	assert.Equal(t, sixHourStepTwo, turn.Steps[1].Observation)
	assert.Contains(t, provider.prompts[1], "error: invalid arguments")
}

func TestOrchestrator_IterationBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []string{action(`{"time_interval": "2h", "step": 1}`)}}
	policy := testPolicy()
	policy.MaxIterations = 3
	o := newTestOrchestrator(t, provider, policy, nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in two hours?")

	var budgetErr *IterationBudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 3, budgetErr.Limit)
	assert.Equal(t, StateFailed, turn.State)
	assert.Equal(t, 3, provider.calls())
	assert.Len(t, turn.Steps, 3)
	assert.ErrorIs(t, turn.Err, ErrIterationBudgetExceeded)
}

func TestOrchestrator_DataUnavailableIsObservation(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "6h", "step": 3}`),
		"Final Answer: That forecast frame is not available.",
	}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in 18 hours?")
	require.NoError(t, err)

	require.Len(t, turn.Steps, 1)
	assert.True(t, turn.Steps[0].Failed)
	assert.Equal(t, (&forecast.DataUnavailableError{Interval: "6h", Step: 3, Reason: "frame has not been generated"}).Error(), turn.Steps[0].Observation)
}

func TestOrchestrator_RepairThenParseFailure(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{'time_interval': '6h', 'step': 2}`),
		action(`{"time_interval": "6h", "step": 2`),
		"Final Answer: 17.92 °C",
	}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in 12 hours?")
	require.NoError(t, err)

	require.Len(t, turn.Steps, 2)
	assert.True(t, turn.Steps[0].Repaired)
	assert.Equal(t, sixHourStepTwo, turn.Steps[0].Observation)

	assert.True(t, turn.Steps[1].Failed)
	assert.Nil(t, turn.Steps[1].Action)
	assert.True(t, strings.HasPrefix(turn.Steps[1].Observation, "Invalid Format: could not parse action"))
}

func TestOrchestrator_ParseBudget(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"I am not sure what to do."}}
	policy := testPolicy()
	policy.MaxParseRetries = 1
	o := newTestOrchestrator(t, provider, policy, nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "hello?")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParseBudgetExceeded)
	assert.ErrorIs(t, err, ErrActionParse)
	assert.Equal(t, 2, provider.calls())
	assert.Equal(t, StateFailed, turn.State)
}

func TestOrchestrator_StepTimeout(t *testing.T) {
	release := make(chan time.Time)
	defer close(release)

	// Ignores ctx, like an in-flight inference call that cannot be interrupted
	provider := &mockProvider{}
	provider.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		WaitUntil(release).
		Return(ports.Completion{Text: "Final Answer: too late"}, nil)

	policy := testPolicy()
	policy.StepTimeout = 50 * time.Millisecond
	o := newTestOrchestrator(t, provider, policy, nil)

	start := time.Now()
	turn, err := o.Answer(context.Background(), NewConversation(), "temperature tomorrow?")

	var timeoutErr *ModelInferenceTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Contains(t, err.Error(), "agent timed out")
	assert.Equal(t, StateFailed, turn.State)
	assert.Empty(t, turn.FinalAnswer)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOrchestrator_CancelledBeforeThinking(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Final Answer: unreachable"}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	turn, err := o.Answer(ctx, NewConversation(), "temperature tomorrow?")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, turn.State)
	assert.Zero(t, provider.calls())
}

func TestOrchestrator_RetriesTransientProviderErrors(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Completion{}, errors.New("connection reset")).Once()
	provider.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Completion{Text: "Final Answer: 15.20 °C"}, nil).Once()

	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, "15.20 °C", turn.FinalAnswer)
	provider.AssertNumberOfCalls(t, "Complete", 2)
}

func TestOrchestrator_NonRetryableProviderError(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Return(ports.Completion{}, fmt.Errorf("model not found: %w", ports.ErrNonRetryable))

	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	_, err := o.Answer(context.Background(), NewConversation(), "temperature tomorrow?")
	assert.ErrorIs(t, err, ports.ErrNonRetryable)
	provider.AssertNumberOfCalls(t, "Complete", 1)
}

func TestOrchestrator_AllowlistRejection(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "6h", "step": 2}`),
		"Final Answer: cannot look that up",
	}}
	builder, err := NewPromptBuilder(DefaultTemplate)
	require.NoError(t, err)
	guardrails := NewGuardrails(0)
	guardrails.AddAllowedTool("some_other_tool")
	o := NewOrchestrator(provider, testRegistry(t), builder, guardrails, nil, nil, nil, testPolicy(), zerolog.Nop())

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in 12 hours?")
	require.NoError(t, err)
	require.Len(t, turn.Steps, 1)
	assert.True(t, turn.Steps[0].Failed)
	assert.Contains(t, turn.Steps[0].Observation, "not in allowlist")
}

func TestOrchestrator_HallucinatedObservationIsDropped(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "24h", "step": 1}`) + "\nObservation: it is 40 degrees\nThought: I now know the final answer\nFinal Answer: 40 °C",
		"Final Answer: 15.20 °C",
	}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, "15.20 °C", turn.FinalAnswer)
	require.Len(t, turn.Steps, 1)
	assert.NotContains(t, turn.Steps[0].Raw, "40 degrees")
	assert.NotContains(t, provider.prompts[1], "40 degrees")
}

func TestOrchestrator_AnswerMentioningAction(t *testing.T) {
	provider := &scriptedProvider{responses: []string{
		" I now know the final answer\nFinal Answer: Take Action: bring a coat, it will be 3 °C.",
	}}
	policy := testPolicy()
	policy.MaxParseRetries = 0
	o := newTestOrchestrator(t, provider, policy, nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "should I bring a coat tomorrow?")
	require.NoError(t, err)
	assert.Equal(t, StateDone, turn.State)
	assert.Equal(t, "Take Action: bring a coat, it will be 3 °C.", turn.FinalAnswer)
	assert.Empty(t, turn.Steps)
	assert.Equal(t, 1, provider.calls())
}

func TestOrchestrator_EmptyQuestion(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Final Answer: x"}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	turn, err := o.Answer(context.Background(), NewConversation(), "   ")
	assert.Error(t, err)
	assert.Equal(t, StateFailed, turn.State)
	assert.Zero(t, provider.calls())
}

func TestOrchestrator_AnswerBatch(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Final Answer: 15.20 °C"}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	questions := []string{"one?", "two?", "three?", "four?"}
	results := o.AnswerBatch(context.Background(), questions, 2)

	require.Len(t, results, len(questions))
	seen := map[string]bool{}
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, questions[i], r.Question)
		require.NoError(t, r.Err)
		assert.Equal(t, "15.20 °C", r.Turn.FinalAnswer)
		assert.False(t, seen[r.Conversation.ID], "conversations must be distinct")
		seen[r.Conversation.ID] = true
	}
}

func TestOrchestrator_ConcurrentConversations(t *testing.T) {
	provider := &scriptedProvider{responses: []string{"Final Answer: ok"}}
	o := newTestOrchestrator(t, provider, testPolicy(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv := NewConversation()
			for j := 0; j < 3; j++ {
				_, err := o.Answer(context.Background(), conv, "q?")
				assert.NoError(t, err)
			}
			assert.Len(t, conv.Turns(), 3)
		}()
	}
	wg.Wait()
}

func TestPromptBuilder(t *testing.T) {
	_, err := NewPromptBuilder("no placeholders here")
	assert.Error(t, err)

	builder, err := NewPromptBuilder(DefaultTemplate)
	require.NoError(t, err)

	specs := testRegistry(t).DescribeAll()
	in := builder.Build(specs, "what is {agent_scratchpad}?", "", map[string]string{"k": "v"})

	assert.Contains(t, in.Prompt, "Question: what is {agent_scratchpad}?")
	assert.Contains(t, in.Prompt, toolName+"(time_interval: string (one of 1h, 3h, 6h, 24h), step: integer (>= 1))")
	assert.True(t, strings.HasSuffix(in.Prompt, "Thought:"))
	assert.Equal(t, "v", in.Meta["k"])
	for _, marker := range []string{MarkerThought, MarkerAction, MarkerActionInput, MarkerObservation, MarkerFinalAnswer} {
		assert.Contains(t, in.Prompt, marker)
	}
}

func TestFactory_CreatePolicyClamps(t *testing.T) {
	cfg := &config.HarnessConfig{
		MaxIterations:   0,
		MaxParseRetries: 9,
		RetryCount:      100,
	}
	policy := NewFactory(cfg, nil, nil, zerolog.Nop()).CreatePolicy()

	assert.Equal(t, 1, policy.MaxIterations)
	assert.Equal(t, 0, policy.MaxParseRetries)
	assert.Equal(t, 5, policy.RetryCount)
	assert.Equal(t, DefaultPolicy().StepTimeout, policy.StepTimeout)
	assert.Equal(t, DefaultPolicy().ToolTimeout, policy.ToolTimeout)
	assert.Equal(t, 1024, policy.Sampling.MaxNewTokens)
}

func TestFactory_Wiring(t *testing.T) {
	cfg := &config.HarnessConfig{
		CacheEnabled:      true,
		CacheCapacity:     8,
		RateLimitEnabled:  true,
		RateLimitCapacity: 2,
		MaxIterations:     4,
		MaxParseRetries:   1,
		EnableGuardrails:  true,
		AllowedTools:      []string{toolName},
		EnableTracing:     true,
	}
	llm := &config.LLMConfig{MaxNewTokens: 256, Temperature: 0.2, TopP: 0.9}
	f := NewFactory(cfg, llm, nil, zerolog.Nop())

	provider := &scriptedProvider{responses: []string{
		action(`{"time_interval": "6h", "step": "2"}`),
		"Final Answer: 17.92 °C",
	}}
	o, err := f.CreateOrchestrator(provider, testRegistry(t))
	require.NoError(t, err)

	turn, err := o.Answer(context.Background(), NewConversation(), "temperature in 12 hours?")
	require.NoError(t, err)
	assert.Equal(t, sixHourStepTwo, turn.Steps[0].Observation)
	assert.Equal(t, 256, provider.opts[0].MaxNewTokens)

	cache := f.CreateCache()
	require.NoError(t, cache.Set(context.Background(), "k", []byte("v"), 60))
	v, ok := cache.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, IsRecoverable(&UnknownToolError{Name: "x"}))
	assert.True(t, IsRecoverable(&InvalidArgumentsError{Tool: "x"}))
	assert.True(t, IsRecoverable(&ActionParseError{Reason: "x"}))
	assert.False(t, IsRecoverable(&IterationBudgetExceededError{Limit: 1}))
	assert.False(t, IsRecoverable(&ModelInferenceTimeoutError{}))
	assert.False(t, IsRecoverable(json.Unmarshal([]byte("{"), &struct{}{})))
}
