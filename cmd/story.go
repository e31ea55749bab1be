package cmd

import (
	"github.com/spf13/cobra"
)

var storyOutput string

var storyCmd = &cobra.Command{
	Use:   "story <session-id>",
	Short: "Generate the data story of a session and save it as story.txt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		story, err := a.pipe.Narrator.DataStory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), storyOutput, story)
	},
}

func init() {
	rootCmd.AddCommand(storyCmd)
	storyCmd.Flags().StringVarP(&storyOutput, "output", "o", "", "also write the story to this path")
}
