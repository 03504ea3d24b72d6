package harness

import (
	"strings"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
	"github.com/google/uuid"
)

// State is the agent loop phase of a turn.
type State string

const (
	StateThinking  State = "THINKING"
	StateActing    State = "ACTING"
	StateObserving State = "OBSERVING"
	StateDone      State = "DONE"
	StateFailed    State = "FAILED"
)

// Step is one Thought/Action/Observation triple. Raw is the model text
// the step came from, replayed verbatim into the scratchpad.
type Step struct {
	Thought     string
	Action      *ports.ActionRequest
	Observation string
	Failed      bool // observation reports an error
	Repaired    bool // action input needed the repair pass
	Raw         string
}

// Turn is one user question and everything the loop did to answer it.
type Turn struct {
	ID          string
	Question    string
	Steps       []Step
	FinalAnswer string
	State       State
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Scratchpad renders completed steps in the format the template expects
// after its trailing "Thought:".
func (t *Turn) Scratchpad() string {
	var b strings.Builder
	for _, s := range t.Steps {
		b.WriteString(s.Raw)
		b.WriteString("\n")
		b.WriteString(MarkerObservation)
		b.WriteString(" ")
		b.WriteString(s.Observation)
		b.WriteString("\n")
		b.WriteString(MarkerThought)
		b.WriteString(" ")
	}
	return b.String()
}

// Conversation is caller-owned state passed into the loop per turn.
type Conversation struct {
	ID string

	mu    sync.Mutex
	turns []*Turn
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Turns returns a snapshot of the turns so far.
func (c *Conversation) Turns() []*Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Turn(nil), c.turns...)
}

// Last returns the most recent turn or nil.
func (c *Conversation) Last() *Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.turns) == 0 {
		return nil
	}
	return c.turns[len(c.turns)-1]
}

func (c *Conversation) begin(question string) *Turn {
	turn := &Turn{
		ID:        uuid.NewString(),
		Question:  question,
		State:     StateThinking,
		StartedAt: time.Now(),
	}
	c.mu.Lock()
	c.turns = append(c.turns, turn)
	c.mu.Unlock()
	return turn
}
