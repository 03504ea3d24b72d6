package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

var (
	batchConcurrency int
	batchJSON        bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <questions-file>",
	Short: "Answer one question per line, concurrently",
	Long: `Answer every non-empty line of a file as an independent conversation.
Lines starting with # are ignored. Use "-" to read from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		questions, err := readQuestions(cmd, args[0])
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			return fmt.Errorf("no questions in %s", args[0])
		}

		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Harness.BatchConcurrency
		}

		results := a.orchestrator.AnswerBatch(cmd.Context(), questions, concurrency)
		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}

		if batchJSON {
			err = writeBatchJSON(cmd.OutOrStdout(), results)
		} else {
			writeBatchText(cmd.OutOrStdout(), results)
		}
		if err != nil {
			return err
		}

		logger.Info().Int("questions", len(results)).Int("failed", failed).Msg("Batch finished")
		if failed > 0 {
			return fmt.Errorf("%d of %d questions failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 0, "concurrent turns (default: harness.batch_concurrency)")
	batchCmd.Flags().BoolVar(&batchJSON, "json", false, "emit one JSON object per line")
}

func readQuestions(cmd *cobra.Command, path string) ([]string, error) {
	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open questions file: %w", err)
		}
		defer f.Close()
		r = f
	}

	var questions []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		questions = append(questions, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questions: %w", err)
	}
	return questions, nil
}

type batchLine struct {
	Index          int    `json:"index"`
	Question       string `json:"question"`
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer,omitempty"`
	Error          string `json:"error,omitempty"`
	Steps          int    `json:"steps"`
}

func writeBatchJSON(w io.Writer, results []harness.BatchResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range results {
		line := batchLine{Index: r.Index, Question: r.Question}
		if r.Conversation != nil {
			line.ConversationID = r.Conversation.ID
		}
		if r.Turn != nil {
			line.Steps = len(r.Turn.Steps)
			line.Answer = r.Turn.FinalAnswer
		}
		if r.Err != nil {
			line.Error = generation.UnableToAnswer(r.Err)
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func writeBatchText(w io.Writer, results []harness.BatchResult) {
	for _, r := range results {
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("[%d] %s", r.Index+1, r.Question)))
		if r.Err != nil {
			fmt.Fprintln(w, errorStyle.Render(generation.UnableToAnswer(r.Err)))
			continue
		}
		fmt.Fprintln(w, answerStyle.Render(r.Turn.FinalAnswer))
	}
}
