package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillprobe/internal/transport"
)

var evaluateTutoringCmd = &cobra.Command{
	Use:   "evaluate-tutoring",
	Short: "Ask the learner service to score tutoring quality",
	RunE: func(cmd *cobra.Command, args []string) error {
		setType, _ := cmd.Flags().GetString("set-type")

		tcfg := transport.ConfigFromEnv()
		if setType != "" {
			tcfg.SetType = setType
		}
		if err := tcfg.Validate(); err != nil {
			return fmt.Errorf("learner service: %w", err)
		}

		res, err := transport.New(tcfg).EvaluateTutoring(cmd.Context(), tcfg.SetType)
		if err != nil {
			return fmt.Errorf("evaluate tutoring: %w", err)
		}
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	evaluateTutoringCmd.Flags().String("set-type", "", "Learner set to evaluate (overrides SKILLPROBE_SET_TYPE)")
}
