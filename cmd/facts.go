package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/qa"
)

var factsOutput string

var factsCmd = &cobra.Command{
	Use:   "facts <session-id|stat.json>",
	Short: "Print the retrieval facts of a digest, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(false)
		if err != nil {
			return err
		}
		defer a.Close()
		d, err := a.loadDigest(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), factsOutput, strings.Join(qa.Facts(d), "\n"))
	},
}

func init() {
	rootCmd.AddCommand(factsCmd)
	factsCmd.Flags().StringVarP(&factsOutput, "output", "o", "", "write to this path instead of stdout")
}
