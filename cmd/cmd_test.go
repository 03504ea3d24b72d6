package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/config"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(config.LogConfig{Level: "warn"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	_, err = newLogger(config.LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
}

func TestReadQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.txt")
	content := "# forecasts\nWhat about 6 hours from now?\n\n  And tomorrow?  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	qs, err := readQuestions(&cobra.Command{}, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"What about 6 hours from now?", "And tomorrow?"}, qs)

	c := &cobra.Command{}
	c.SetIn(strings.NewReader("from stdin\n"))
	qs, err = readQuestions(c, "-")
	require.NoError(t, err)
	assert.Equal(t, []string{"from stdin"}, qs)

	_, err = readQuestions(&cobra.Command{}, filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestWriteBatchJSON(t *testing.T) {
	conv := harness.NewConversation()
	results := []harness.BatchResult{
		{Index: 0, Question: "q1", Conversation: conv, Turn: &harness.Turn{FinalAnswer: "14.31 °C", Steps: make([]harness.Step, 1)}},
		{Index: 1, Question: "q2", Err: errors.New("boom")},
	}

	var buf bytes.Buffer
	require.NoError(t, writeBatchJSON(&buf, results))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second batchLine
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, conv.ID, first.ConversationID)
	assert.Equal(t, "14.31 °C", first.Answer)
	assert.Equal(t, 1, first.Steps)
	assert.Equal(t, "unable to answer: boom", second.Error)
	assert.Empty(t, second.Answer)
}
