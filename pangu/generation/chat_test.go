package generation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

type fakeAnswerer struct {
	answers map[string]string
	err     error
	convIDs []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, conv *harness.Conversation, question string) (*harness.Turn, error) {
	f.convIDs = append(f.convIDs, conv.ID)
	if f.err != nil {
		return &harness.Turn{Question: question, State: harness.StateFailed, Err: f.err}, f.err
	}
	return &harness.Turn{Question: question, State: harness.StateDone, FinalAnswer: f.answers[question]}, nil
}

func TestChatSession_History(t *testing.T) {
	agent := &fakeAnswerer{answers: map[string]string{
		"in 6 hours?":  "14.31 °C",
		"in 12 hours?": "17.92 °C",
	}}
	s := NewChatSession(agent)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, Greeting, msgs[0].Content)

	reply, err := s.Send(context.Background(), "in 6 hours?")
	require.NoError(t, err)
	assert.Equal(t, "14.31 °C", reply)

	reply, err = s.Send(context.Background(), "in 12 hours?")
	require.NoError(t, err)
	assert.Equal(t, "17.92 °C", reply)

	msgs = s.Messages()
	require.Len(t, msgs, 5)
	assert.Equal(t, []string{"assistant", "user", "assistant", "user", "assistant"},
		[]string{msgs[0].Role, msgs[1].Role, msgs[2].Role, msgs[3].Role, msgs[4].Role})

	// Every turn lands in the same conversation
	assert.Equal(t, []string{s.ConversationID(), s.ConversationID()}, agent.convIDs)
}

func TestChatSession_FailureIsDisplayable(t *testing.T) {
	agent := &fakeAnswerer{err: &harness.ModelInferenceTimeoutError{Iteration: 1, Timeout: time.Second}}
	s := NewChatSession(agent)

	reply, err := s.Send(context.Background(), "tomorrow?")
	assert.Error(t, err)
	assert.Equal(t, "unable to answer: agent timed out", reply)
	assert.Equal(t, reply, s.Messages()[2].Content)
}

func TestUnableToAnswer(t *testing.T) {
	assert.Equal(t, "unable to answer: the assistant could not reach a final answer",
		UnableToAnswer(&harness.IterationBudgetExceededError{Limit: 6}))
	assert.Equal(t, "unable to answer: the assistant kept producing malformed actions",
		UnableToAnswer(fmt.Errorf("%w: %w", harness.ErrParseBudgetExceeded, &harness.ActionParseError{Reason: "x"})))
	assert.Equal(t, "unable to answer: request cancelled",
		UnableToAnswer(fmt.Errorf("turn cancelled: %w", context.Canceled)))
	assert.Equal(t, "unable to answer: boom", UnableToAnswer(errors.New("boom")))
}
