package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/qa"
	"github.com/KaramelBytes/datastory/internal/utils"
)

var (
	qaJSON   bool
	qaOutput string
)

var qaCmd = &cobra.Command{
	Use:   "qa <session-id|stat.json>",
	Short: "Print the question/answer pairs derived from a digest",
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
		entries := qa.Generate(d)
		if qaJSON {
			b, err := utils.PrettyJSON(entries)
			if err != nil {
				return err
			}
			return writeOut(cmd.OutOrStdout(), qaOutput, string(b))
		}
		return writeOut(cmd.OutOrStdout(), qaOutput, qa.Render(entries))
	},
}

func init() {
	rootCmd.AddCommand(qaCmd)
	qaCmd.Flags().BoolVar(&qaJSON, "json", false, "print entries as JSON")
	qaCmd.Flags().StringVarP(&qaOutput, "output", "o", "", "write to this path instead of stdout")
}
