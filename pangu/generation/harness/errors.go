package harness

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDuplicateTool           = errors.New("tool already registered")
	ErrUnknownTool             = errors.New("unknown tool")
	ErrInvalidArguments        = errors.New("invalid arguments")
	ErrActionParse             = errors.New("could not parse action")
	ErrParseBudgetExceeded     = errors.New("parse retry budget exceeded")
	ErrIterationBudgetExceeded = errors.New("iteration budget exceeded")
	ErrModelInferenceTimeout   = errors.New("agent timed out")
)

// DuplicateToolError is returned by Register for a name already in use.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %s already registered", e.Name)
}

func (e *DuplicateToolError) Unwrap() error { return ErrDuplicateTool }

// UnknownToolError names a tool the registry does not hold.
type UnknownToolError struct {
	Name  string
	Known []string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q, expected one of [%s]", e.Name, strings.Join(e.Known, ", "))
}

func (e *UnknownToolError) Unwrap() error { return ErrUnknownTool }

// InvalidArgumentsError lists every schema violation of an action input.
type InvalidArgumentsError struct {
	Tool     string
	Problems []string
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

func (e *InvalidArgumentsError) Unwrap() error { return ErrInvalidArguments }

// ActionParseError is returned when model output cannot be turned into an
// action or a final answer, even after the repair pass.
type ActionParseError struct {
	Reason string
	Text   string
}

func (e *ActionParseError) Error() string {
	return "could not parse action: " + e.Reason
}

func (e *ActionParseError) Unwrap() error { return ErrActionParse }

// IterationBudgetExceededError ends a turn that never produced a final answer.
type IterationBudgetExceededError struct {
	Limit int
}

func (e *IterationBudgetExceededError) Error() string {
	return fmt.Sprintf("no final answer after %d iterations", e.Limit)
}

func (e *IterationBudgetExceededError) Unwrap() error { return ErrIterationBudgetExceeded }

// ModelInferenceTimeoutError ends a turn whose THINKING step overran.
type ModelInferenceTimeoutError struct {
	Iteration int
	Timeout   time.Duration
}

func (e *ModelInferenceTimeoutError) Error() string {
	return fmt.Sprintf("agent timed out: model call %d exceeded %s", e.Iteration, e.Timeout)
}

func (e *ModelInferenceTimeoutError) Unwrap() error { return ErrModelInferenceTimeout }

// IsRecoverable reports whether err should be fed back to the model as an
// observation instead of ending the turn.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrUnknownTool) ||
		errors.Is(err, ErrInvalidArguments) ||
		errors.Is(err, ErrActionParse)
}
