package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/pangu-agent/pangu/db"
	"github.com/ZanzyTHEbar/pangu-agent/pangu/generation/harness/adapters"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [conversation-id]",
	Short: "Show archived conversations",
	Long: `Without arguments, list the most recently active conversations.
With a conversation id, print its last turns.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := db.ConnectToDB(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer conn.Close()

		store := adapters.NewLibSQLConversationStore(conn)
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			convs, err := store.Conversations(cmd.Context(), historyLimit)
			if err != nil {
				return err
			}
			if len(convs) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("no conversations yet"))
				return nil
			}
			for _, c := range convs {
				fmt.Fprintf(out, "%s  %s\n", assistantStyle.Render(c.ID), mutedStyle.Render(fmt.Sprintf("%d turns, started %s", c.Turns, c.StartedAt)))
			}
			return nil
		}

		turns, err := store.LoadContext(cmd.Context(), args[0], historyLimit)
		if err != nil {
			return err
		}
		if len(turns) == 0 {
			return fmt.Errorf("conversation %s not found", args[0])
		}
		for _, t := range turns {
			style := mutedStyle
			switch t.Role {
			case "user":
				style = userStyle
			case "assistant":
				style = assistantStyle
			case "error":
				style = errorStyle
			}
			fmt.Fprintf(out, "%s %s %s\n", mutedStyle.Render(t.CreatedAt.Format("15:04:05")), style.Render(t.Role+">"), t.Content)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of conversations or turns to show")
}
