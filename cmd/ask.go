package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

var askVerbose bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a single question and exit",
	Example: `  pangu ask "What will the average temperature in China be 12 hours from now?"
  pangu ask -v "How warm will China be tomorrow?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		question := strings.Join(args, " ")
		conv := harness.NewConversation()
		turn, err := a.orchestrator.Answer(cmd.Context(), conv, question)

		out := cmd.OutOrStdout()
		if askVerbose && turn != nil {
			printSteps(cmd, turn)
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(generation.UnableToAnswer(err)))
			return err
		}
		fmt.Fprintln(out, answerStyle.Render(turn.FinalAnswer))
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "print every Thought/Action/Observation step")
}

// printSteps renders the intermediate reasoning of a turn.
func printSteps(cmd *cobra.Command, turn *harness.Turn) {
	out := cmd.OutOrStdout()
	for i, step := range turn.Steps {
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Step %d", i+1)))
		if step.Thought != "" {
			fmt.Fprintln(out, mutedStyle.Render(harness.MarkerThought+" "+step.Thought))
		}
		if step.Action != nil {
			fmt.Fprintln(out, mutedStyle.Render(harness.FormatAction(*step.Action)))
		}
		obs := step.Observation
		if step.Failed {
			fmt.Fprintln(out, warnStyle.Render(harness.MarkerObservation+" "+obs))
		} else {
			fmt.Fprintln(out, mutedStyle.Render(harness.MarkerObservation+" "+obs))
		}
	}
}
