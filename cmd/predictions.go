package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/abhisek/skillprobe/internal/llm"
	"github.com/abhisek/skillprobe/internal/store"
	"github.com/abhisek/skillprobe/internal/submission"
	"github.com/abhisek/skillprobe/internal/transport"
	"github.com/abhisek/skillprobe/internal/ui/theme"
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Inspect or submit stored predictions",
}

var predictionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the final level of every finalized session",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		preds, err := s.SessionRepo().Predictions(cmd.Context())
		if err != nil {
			return fmt.Errorf("query predictions: %w", err)
		}
		if len(preds) == 0 {
			fmt.Println("No predictions stored.")
			return nil
		}

		fmt.Printf("%-24s  %-24s  %s\n", "Learner", "Topic", "Level")
		fmt.Println(strings.Repeat("─", 58))
		for _, p := range preds {
			fmt.Printf("%-24s  %-24s  %s\n",
				truncate(p.LearnerID, 24), truncate(p.TopicID, 24),
				theme.Level(p.Level).Render(fmt.Sprintf("%d", p.Level)))
		}
		return nil
	},
}

var predictionsSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit stored predictions for scoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		setType, _ := cmd.Flags().GetString("set-type")

		tcfg := transport.ConfigFromEnv()
		if setType != "" {
			tcfg.SetType = setType
		}
		if err := tcfg.Validate(); err != nil {
			return fmt.Errorf("learner service: %w", err)
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		stored, err := s.SessionRepo().Predictions(cmd.Context())
		if err != nil {
			return fmt.Errorf("query predictions: %w", err)
		}
		preds := lo.Map(stored, func(p store.Prediction, _ int) transport.Prediction {
			return transport.Prediction{StudentID: p.LearnerID, TopicID: p.TopicID, PredictedLevel: p.Level}
		})

		rc := submission.RunConfig{Provider: llm.ConfigFromEnv().Provider}
		return submitPredictions(cmd.Context(), transport.New(tcfg), s.SubmissionRepo(),
			uuid.NewString(), tcfg.SetType, preds, rc)
	},
}

func init() {
	predictionsSubmitCmd.Flags().String("set-type", "", "Learner set the predictions belong to (overrides SKILLPROBE_SET_TYPE)")

	predictionsCmd.AddCommand(predictionsListCmd)
	predictionsCmd.AddCommand(predictionsSubmitCmd)
}
