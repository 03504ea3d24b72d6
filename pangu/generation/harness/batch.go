package harness

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

// BatchResult is the outcome of one question in a batch.
type BatchResult struct {
	Index        int
	Question     string
	Conversation *Conversation
	Turn         *Turn
	Err          error
}

// AnswerBatch answers each question in its own conversation, at most
// concurrency at a time. Results are returned in input order.
func (o *Orchestrator) AnswerBatch(ctx context.Context, questions []string, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}

	p := pool.NewWithResults[BatchResult]().WithMaxGoroutines(concurrency)
	for i, q := range questions {
		p.Go(func() BatchResult {
			conv := NewConversation()
			turn, err := o.Answer(ctx, conv, q)
			return BatchResult{Index: i, Question: q, Conversation: conv, Turn: turn, Err: err}
		})
	}

	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].Index < results[b].Index })
	return results
}
