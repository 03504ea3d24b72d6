package harness

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/forecast"
	ports "github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/ports"
)

// echoTool returns its arguments so tests can see what the registry passed on.
type echoTool struct {
	spec ports.ToolSpec
}

func (t *echoTool) Spec() ports.ToolSpec { return t.spec }
func (t *echoTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	return string(args), nil
}

func TestRegistry_RegisterAndDescribe(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "b_tool", Description: "second"}}))
	require.NoError(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "a_tool", Description: "first"}}))

	specs := r.DescribeAll()
	require.Len(t, specs, 2)
	assert.Equal(t, "b_tool", specs[0].Name)
	assert.Equal(t, "a_tool", specs[1].Name)
	assert.Equal(t, []string{"b_tool", "a_tool"}, r.Names())
	assert.True(t, r.Has("a_tool"))
	assert.False(t, r.Has("c_tool"))
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "dup"}}))

	err := r.Register(&echoTool{spec: ports.ToolSpec{Name: "dup"}})
	var dupErr *DuplicateToolError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "dup", dupErr.Name)
	assert.True(t, errors.Is(err, ErrDuplicateTool))
	assert.Len(t, r.DescribeAll(), 1)
}

func TestRegistry_RejectsBadSpecs(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: " "}}))
	assert.Error(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "x", Parameters: []ports.Parameter{{Name: "a", Type: "array"}}}}))
	assert.Error(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "y", Parameters: []ports.Parameter{
		{Name: "a", Type: ports.ParamString}, {Name: "a", Type: ports.ParamString},
	}}}))
	assert.Error(t, r.Register(&echoTool{spec: ports.ToolSpec{Name: "z", Parameters: []ports.Parameter{
		{Name: "n", Type: ports.ParamInteger, Enum: []string{"1"}},
	}}}))
	assert.Empty(t, r.DescribeAll())
}

func TestRegistry_InvokeReturnsProviderResultUnmodified(t *testing.T) {
	r := testRegistry(t)
	table := testTable(t)
	ctx := context.Background()

	for _, tc := range []struct {
		interval string
		step     int
	}{{"6h", 1}, {"6h", 2}, {"24h", 1}} {
		input, err := json.Marshal(map[string]any{"time_interval": tc.interval, "step": tc.step})
		require.NoError(t, err)

		got, err := r.Invoke(ctx, toolName, input)
		require.NoError(t, err)

		want, err := table.Statistic(ctx, tc.interval, tc.step)
		require.NoError(t, err)
		assert.Equal(t, want.String(), got)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Invoke(context.Background(), "weather_tool", json.RawMessage(`{}`))

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "weather_tool", unknown.Name)
	assert.Equal(t, []string{toolName}, unknown.Known)
}

func TestRegistry_InvalidArguments(t *testing.T) {
	r := testRegistry(t)
	ctx := context.Background()

	for name, input := range map[string]string{
		"unknown interval":   `{"time_interval": "2h", "step": 1}`,
		"step below minimum": `{"time_interval": "6h", "step": 0}`,
		"missing step":       `{"time_interval": "6h"}`,
		"fractional step":    `{"time_interval": "6h", "step": 1.5}`,
		"wrong type":         `{"time_interval": 6, "step": 1}`,
		"extra argument":     `{"time_interval": "6h", "step": 1, "city": "Beijing"}`,
		"not an object":      `["6h", 1]`,
		"non numeric string": `{"time_interval": "6h", "step": "two"}`,
	} {
		_, err := r.Invoke(ctx, toolName, json.RawMessage(input))
		var invalid *InvalidArgumentsError
		require.ErrorAs(t, err, &invalid, name)
		assert.NotEmpty(t, invalid.Problems, name)
		assert.ErrorIs(t, err, ErrInvalidArguments, name)
	}
}

func TestRegistry_CoercesIntegerStrings(t *testing.T) {
	r := testRegistry(t)
	got, err := r.Invoke(context.Background(), toolName, json.RawMessage(`{"time_interval": "6h", "step": " 2 "}`))
	require.NoError(t, err)
	assert.Contains(t, got, "17.92")
}

func TestRegistry_ToolErrorsPassThrough(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Invoke(context.Background(), toolName, json.RawMessage(`{"time_interval": "1h", "step": 3}`))
	assert.ErrorIs(t, err, forecast.ErrDataUnavailable)
}

func TestRegistry_ConcurrentInvoke(t *testing.T) {
	r := testRegistry(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Invoke(context.Background(), toolName, json.RawMessage(`{"time_interval": "6h", "step": 1}`))
			assert.NoError(t, err)
			_ = r.DescribeAll()
		}()
	}
	wg.Wait()
}
