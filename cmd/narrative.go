package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datastory/internal/narrative"
	"github.com/KaramelBytes/datastory/internal/utils"
)

var narrAgency narrative.Agency

var narrativeCmd = &cobra.Command{
	Use:   "narrative",
	Short: "Affective narratives and the steps that prepare them",
}

var narrativeWriteCmd = &cobra.Command{
	Use:     "write <session-id>",
	Short:   "Write a one-paragraph narrative in the requested emotion",
	Example: `  datastory narrative write delhi --emotion awe --intensity 7 --words 150 --purpose "raise awareness"`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := narrAgency.Validate(); err != nil {
			return err
		}
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		text, err := a.pipe.Narrator.Affective(cmd.Context(), args[0], narrAgency)
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), "", text)
	},
}

var narrativeEmotionsCmd = &cobra.Command{
	Use:   "emotions <session-id>",
	Short: "Recommend an emotion and flag inappropriate ones",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.pipe.Narrator.RecommendEmotion(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		b, err := utils.PrettyJSON(res)
		if err != nil {
			return err
		}
		return writeOut(cmd.OutOrStdout(), "", string(b))
	},
}

var narrativeDescribeCmd = &cobra.Command{
	Use:   "describe <session-id>",
	Short: "Extract the core concept and story instruction from the description",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(true)
		if err != nil {
			return err
		}
		defer a.Close()
		res, err := a.pipe.Narrator.ExtractDescription(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "core concept: %s\n", res.CoreConcept)
		if res.HasInstruction {
			fmt.Fprintf(cmd.OutOrStdout(), "instruction:  %s\n", res.Instruction)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(narrativeCmd)
	narrativeCmd.AddCommand(narrativeWriteCmd, narrativeEmotionsCmd, narrativeDescribeCmd)
	f := narrativeWriteCmd.Flags()
	f.StringVar(&narrAgency.Emotion, "emotion", "", "emotion to convey")
	f.IntVar(&narrAgency.Intensity, "intensity", 5, "emotion intensity 1-10")
	f.IntVar(&narrAgency.WordCount, "words", 150, "target length in words")
	f.StringVar(&narrAgency.Purpose, "purpose", "", "what the story should achieve")
}
