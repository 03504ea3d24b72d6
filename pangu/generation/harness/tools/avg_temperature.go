package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// AverageTemperatureToolName is the name the model uses in Action lines.
const AverageTemperatureToolName = "china_average_temperature_tool"

const averageTemperatureDescription = "Use this tool when the user asks for the average temperature over China at a specific future time. " +
	"time_interval is the forecast model interval and must be one of '1h', '3h', '6h' or '24h'. " +
	"step is the forecast step, starting from 1; the lead time is time_interval multiplied by step. " +
	`For example, the 6h model at step 2 (12 hours ahead) is {"time_interval": "6h", "step": 2}.`

// AverageTemperatureTool looks up precomputed average 2m temperature over
// China for one model interval and step.
type AverageTemperatureTool struct {
	provider forecast.StatisticProvider
}

// NewAverageTemperatureTool creates the lookup tool over provider.
func NewAverageTemperatureTool(provider forecast.StatisticProvider) *AverageTemperatureTool {
	return &AverageTemperatureTool{provider: provider}
}

// Spec returns the tool's name, description and argument schema.
func (t *AverageTemperatureTool) Spec() ports.ToolSpec {
	minStep := 1
	return ports.ToolSpec{
		Name:        AverageTemperatureToolName,
		Description: averageTemperatureDescription,
		Parameters: []ports.Parameter{
			{
				Name:        "time_interval",
				Type:        ports.ParamString,
				Required:    true,
				Description: "forecast model interval",
				Enum:        forecast.IntervalNames(),
			},
			{
				Name:        "step",
				Type:        ports.ParamInteger,
				Required:    true,
				Description: "forecast step, starting from 1",
				Minimum:     &minStep,
			},
		},
	}
}

// Invoke returns the statistic as a sentence, or the provider's
// *forecast.DataUnavailableError untouched.
func (t *AverageTemperatureTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		TimeInterval string `json:"time_interval"`
		Step         int    `json:"step"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	stat, err := t.provider.Statistic(ctx, params.TimeInterval, params.Step)
	if err != nil {
		return "", err
	}
	return stat.String(), nil
}

// Ensure AverageTemperatureTool implements the Tool interface.
var _ ports.Tool = (*AverageTemperatureTool)(nil)
