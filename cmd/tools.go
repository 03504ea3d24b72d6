package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed to the model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, spec := range a.registry.DescribeAll() {
			fmt.Fprintln(out, headerStyle.Render(spec.Name))
			fmt.Fprintln(out, "  "+spec.Description)
			for _, p := range spec.Parameters {
				req := "optional"
				if p.Required {
					req = "required"
				}
				fmt.Fprintf(out, "  %s %s\n", assistantStyle.Render(p.Name), mutedStyle.Render(fmt.Sprintf("%s, %s", p.Type, req)))
				if p.Description != "" {
					fmt.Fprintln(out, "    "+p.Description)
				}
			}
		}

		fmt.Fprintln(out)
		fmt.Fprintln(out, mutedStyle.Render("As rendered into the prompt:"))
		fmt.Fprintln(out, harness.RenderTools(a.registry.DescribeAll()))
		return nil
	},
}
