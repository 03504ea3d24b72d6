package forecast

import (
	"context"
	"sort"
	"sync"
)

type tableKey struct {
	interval Interval
	step     int
}

// Table is an in-memory StatisticProvider.
type Table struct {
	mu    sync.RWMutex
	stats map[tableKey]Statistic
}

// NewTable builds a table from records; invalid records are rejected.
func NewTable(records ...Statistic) (*Table, error) {
	t := &Table{stats: make(map[tableKey]Statistic, len(records))}
	if err := t.Put(records...); err != nil {
		return nil, err
	}
	return t, nil
}

// Put inserts or replaces records.
func (t *Table) Put(records ...Statistic) error {
	for _, r := range records {
		if _, err := ValidateRequest(string(r.Interval), r.Step); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range records {
		t.stats[tableKey{r.Interval, r.Step}] = r
	}
	return nil
}

// Statistic implements StatisticProvider.
func (t *Table) Statistic(ctx context.Context, interval string, step int) (Statistic, error) {
	if err := ctx.Err(); err != nil {
		return Statistic{}, err
	}

	iv, err := ValidateRequest(interval, step)
	if err != nil {
		return Statistic{}, err
	}

	t.mu.RLock()
	s, ok := t.stats[tableKey{iv, step}]
	t.mu.RUnlock()
	if !ok {
		return Statistic{}, &DataUnavailableError{Interval: interval, Step: step, Reason: "frame has not been generated"}
	}
	return s, nil
}

// Records returns every statistic ordered by interval then step.
func (t *Table) Records() []Statistic {
	t.mu.RLock()
	out := make([]Statistic, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, s)
	}
	t.mu.RUnlock()

	order := make(map[Interval]int)
	for i, iv := range Intervals() {
		order[iv] = i
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interval != out[j].Interval {
			return order[out[i].Interval] < order[out[j].Interval]
		}
		return out[i].Step < out[j].Step
	})
	return out
}
