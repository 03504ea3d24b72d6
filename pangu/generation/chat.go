// Package generation adapts the agent loop to conversational front ends.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

// Greeting opens every chat session.
const Greeting = "Hello! I am the Pangu weather assistant. Ask me about the future average temperature over China, " +
	"for example: 'What will the average temperature in China be 6 hours from now?'"

// Message is one entry of the visible chat history.
type Message struct {
	Role      string // "assistant" | "user"
	Content   string
	CreatedAt time.Time
}

// Answerer runs one agent turn.
type Answerer interface {
	Answer(ctx context.Context, conv *harness.Conversation, question string) (*harness.Turn, error)
}

// ChatSession owns one conversation and its rendered history. Turns are
// serialized; a session is not meant to answer two questions at once.
type ChatSession struct {
	mu       sync.Mutex
	agent    Answerer
	conv     *harness.Conversation
	messages []Message
}

// NewChatSession starts a conversation seeded with the greeting.
func NewChatSession(agent Answerer) *ChatSession {
	return &ChatSession{
		agent: agent,
		conv:  harness.NewConversation(),
		messages: []Message{
			{Role: "assistant", Content: Greeting, CreatedAt: time.Now()},
		},
	}
}

// ConversationID identifies the session in the conversation archive.
func (s *ChatSession) ConversationID() string { return s.conv.ID }

// Conversation exposes the underlying agent transcript.
func (s *ChatSession) Conversation() *harness.Conversation { return s.conv }

// Send answers one user message. The reply is always a displayable
// string; fatal loop errors are rendered as "unable to answer: ..." and
// also returned so callers can log them.
func (s *ChatSession) Send(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{Role: "user", Content: text, CreatedAt: time.Now()})

	turn, err := s.agent.Answer(ctx, s.conv, text)
	var reply string
	if err != nil {
		reply = UnableToAnswer(err)
	} else {
		reply = turn.FinalAnswer
	}

	s.messages = append(s.messages, Message{Role: "assistant", Content: reply, CreatedAt: time.Now()})
	return reply, err
}

// Messages returns a copy of the visible history.
func (s *ChatSession) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// UnableToAnswer renders a failed turn for the user.
func UnableToAnswer(err error) string {
	var timeout *harness.ModelInferenceTimeoutError
	switch {
	case errors.As(err, &timeout):
		return "unable to answer: agent timed out"
	case errors.Is(err, harness.ErrIterationBudgetExceeded):
		return "unable to answer: the assistant could not reach a final answer"
	case errors.Is(err, harness.ErrParseBudgetExceeded):
		return "unable to answer: the assistant kept producing malformed actions"
	case errors.Is(err, context.Canceled):
		return "unable to answer: request cancelled"
	default:
		return fmt.Sprintf("unable to answer: %v", err)
	}
}
