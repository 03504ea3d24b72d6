package forecast

import (
	"fmt"
	"time"
)

// Interval is the time step of one Pangu-Weather model run.
type Interval string

const (
	Interval1h  Interval = "1h"
	Interval3h  Interval = "3h"
	Interval6h  Interval = "6h"
	Interval24h Interval = "24h"
)

// frames is the number of precomputed frames per model; together they
// cover the next 24 hours.
var frames = map[Interval]int{
	Interval1h:  24,
	Interval3h:  8,
	Interval6h:  4,
	Interval24h: 1,
}

// Intervals returns the supported intervals, shortest first.
func Intervals() []Interval {
	return []Interval{Interval1h, Interval3h, Interval6h, Interval24h}
}

// IntervalNames returns the intervals as plain strings, for schema enums.
func IntervalNames() []string {
	out := make([]string, 0, len(frames))
	for _, i := range Intervals() {
		out = append(out, string(i))
	}
	return out
}

// Valid reports whether i is one of the supported intervals.
func (i Interval) Valid() bool {
	_, ok := frames[i]
	return ok
}

// Frames is the number of steps available for the interval.
func (i Interval) Frames() int {
	return frames[i]
}

// Duration converts the interval to a time.Duration.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1h:
		return time.Hour
	case Interval3h:
		return 3 * time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval24h:
		return 24 * time.Hour
	}
	return 0
}

// LeadTime is how far ahead of initialization the given step lands.
func (i Interval) LeadTime(step int) time.Duration {
	return time.Duration(step) * i.Duration()
}

// ValidateRequest checks an interval/step pair against the precomputed
// frame layout.
func ValidateRequest(interval string, step int) (Interval, error) {
	iv := Interval(interval)
	if !iv.Valid() {
		return "", &DataUnavailableError{
			Interval: interval,
			Step:     step,
			Reason:   fmt.Sprintf("time_interval must be one of %v", IntervalNames()),
		}
	}
	if step < 1 || step > iv.Frames() {
		return "", &DataUnavailableError{
			Interval: interval,
			Step:     step,
			Reason:   fmt.Sprintf("step must be between 1 and %d for the %s model", iv.Frames(), iv),
		}
	}
	return iv, nil
}
