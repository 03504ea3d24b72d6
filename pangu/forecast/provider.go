// Package forecast exposes precomputed Pangu-Weather statistics.
//
// How a statistic was aggregated from the model grid is outside this
// package: records are loaded as finished values and served read-only.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrDataUnavailable is the sentinel behind every DataUnavailableError.
var ErrDataUnavailable = errors.New("forecast data unavailable")

// DataUnavailableError reports an interval/step combination without
// precomputed data.
type DataUnavailableError struct {
	Interval string
	Step     int
	Reason   string
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("no precomputed data for time_interval=%q step=%d: %s", e.Interval, e.Step, e.Reason)
}

func (e *DataUnavailableError) Unwrap() error { return ErrDataUnavailable }

// Statistic is one precomputed scalar for a model interval and step.
type Statistic struct {
	Interval Interval `json:"time_interval" yaml:"time_interval"`
	Step     int      `json:"step" yaml:"step"`
	Region   string   `json:"region" yaml:"region"`
	Variable string   `json:"variable" yaml:"variable"`
	Value    float64  `json:"value" yaml:"value"`
	Unit     string   `json:"unit" yaml:"unit"`
}

// LeadTime is the forecast horizon of the statistic.
func (s Statistic) LeadTime() time.Duration {
	return s.Interval.LeadTime(s.Step)
}

// String renders the statistic as the sentence handed back to the model.
func (s Statistic) String() string {
	return fmt.Sprintf("The forecast average %s over %s at step %d of the %s model (%d hours ahead) is %.2f %s.",
		s.Variable, s.Region, s.Step, s.Interval, int(s.LeadTime().Hours()), s.Value, s.Unit)
}

// StatisticProvider returns precomputed statistics. Implementations must
// be safe for concurrent readers and fail with *DataUnavailableError for
// unknown intervals, out-of-range steps, or missing records.
type StatisticProvider interface {
	Statistic(ctx context.Context, interval string, step int) (Statistic, error)
}

const (
	DefaultRegion   = "China"
	DefaultVariable = "2m temperature"
	DefaultUnit     = "°C"
)
