package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session. Every message in the session shares one
conversation. Type /exit or press Ctrl-D to leave.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		session := generation.NewChatSession(a.orchestrator)
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, assistantStyle.Render("pangu> ")+generation.Greeting)
		fmt.Fprintln(out, mutedStyle.Render("conversation "+session.ConversationID()))

		scanner := bufio.NewScanner(cmd.InOrStdin())
		for {
			fmt.Fprint(out, userStyle.Render("you> "))
			if !scanner.Scan() {
				fmt.Fprintln(out)
				return scanner.Err()
			}

			text := strings.TrimSpace(scanner.Text())
			switch text {
			case "":
				continue
			case "/exit", "/quit":
				return nil
			}

			reply, err := session.Send(ctx, text)
			if err != nil {
				logger.Debug().Err(err).Str("conversation_id", session.ConversationID()).Msg("Turn failed")
				fmt.Fprintln(out, assistantStyle.Render("pangu> ")+errorStyle.Render(reply))
				if ctx.Err() != nil {
					return nil
				}
				continue
			}
			fmt.Fprintln(out, assistantStyle.Render("pangu> ")+reply)
		}
	},
}
