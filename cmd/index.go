package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index <session-id>",
	Short: "Embed a session's digest facts into its retrieval index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		idx, err := a.pipe.EnsureIndex(cmd.Context(), args[0], indexForce)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Index ready: %d records, model %s, dim %d\n",
			len(idx.Records), idx.Meta.EmbedModel, idx.Meta.EmbedDim)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "re-embed every fact")
}
