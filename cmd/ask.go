package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var (
	askRAG  bool
	askTopK int
)

var askCmd = &cobra.Command{
	Use:   "ask <session-id> <question...>",
	Short: "Ask a question about a session's data",
	Example: `  datastory ask delhi "Which year was the hottest?"
  datastory ask delhi --rag "How do humidity and temperature relate?"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		id, question := args[0], strings.Join(args[1:], " ")
		ctx := cmd.Context()
		n := a.pipe.Narrator
		if askTopK > 0 {
			n.TopK = askTopK
		}

		var answer string
		if askRAG {
			idx, err := a.pipe.EnsureIndex(ctx, id, false)
			if err != nil {
				return err
			}
			answer, err = n.AskFromIndex(ctx, id, question, idx, a.pipe.Embedder)
			if err != nil {
				return err
			}
		} else {
			answer, err = n.AskFromStat(ctx, id, question)
			if err != nil {
				return err
			}
		}
		return writeOut(cmd.OutOrStdout(), "", answer)
	},
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askRAG, "rag", false, "answer from the most similar facts instead of the whole digest")
	askCmd.Flags().IntVar(&askTopK, "top-k", 0, "facts to retrieve with --rag (overrides config)")
}
