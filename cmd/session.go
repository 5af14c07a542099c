package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/session"
	"github.com/abhisek/skillprobe/internal/store"
	"github.com/abhisek/skillprobe/internal/ui/theme"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Audit stored calibration sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		recs, err := s.SessionRepo().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}
		if len(recs) == 0 {
			fmt.Println("No sessions stored.")
			return nil
		}

		fmt.Printf("%-20s  %-24s  %-5s  %-5s  %-20s  %s\n",
			"Learner", "Topic", "Level", "Turns", "Freeze", "Updated")
		fmt.Println(strings.Repeat("─", 100))
		for _, r := range recs {
			level := theme.Poor.Render("fail")
			if r.Error == "" {
				level = theme.Level(r.FinalLevel).Render(fmt.Sprintf("L%d", r.FinalLevel))
			}
			fmt.Printf("%-20s  %-24s  %-5s  %-5d  %-20s  %s\n",
				truncate(r.LearnerID, 20), truncate(r.TopicName, 24), level, r.TurnCount,
				r.FreezeReason, r.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <learner> <topic>",
	Short: "Show the evidence trail and transcript of one session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		calibPath, _ := cmd.Flags().GetString("calibration")
		noTranscript, _ := cmd.Flags().GetBool("no-transcript")

		calib, err := calibration.LoadConfig(calibPath)
		if err != nil {
			return err
		}

		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		stored, err := session.Load(cmd.Context(), s.SessionRepo(), args[0], args[1], calib)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no session for learner %s on topic %s", args[0], args[1])
		}
		if err != nil {
			return err
		}
		printSession(stored, !noTranscript)
		return nil
	},
}

func printSession(st *session.Stored, transcript bool) {
	state := st.State
	sep := strings.Repeat("─", 86)

	fmt.Println(theme.Title.Render(fmt.Sprintf("%s / %s", st.Task.LearnerID, st.Task.TopicName)))
	fmt.Printf("Run:           %s\n", st.RunID)
	fmt.Printf("Conversation:  %s\n", st.ConversationID)
	fmt.Printf("Phase:         %s\n", state.Phase)
	fmt.Printf("Turns:         %d\n", state.TurnCount)
	fmt.Printf("Confidence:    %.2f\n", state.CurrentConfidence)
	fmt.Printf("Freeze:        %s\n", reasonLabel(state.FreezeReason))
	if state.Finalized() {
		fmt.Printf("Final level:   %s\n", theme.Level(state.FinalLevel).Render(fmt.Sprintf("%d", state.FinalLevel)))
	}
	if st.Error != "" {
		fmt.Printf("Error:         %s\n", theme.Poor.Render(st.Error))
	}

	fmt.Println()
	fmt.Println("Evidence")
	fmt.Println(sep)
	if len(state.Trail) == 0 {
		fmt.Println(theme.Hint.Render("(none)"))
	} else {
		fmt.Printf("%-4s  %-7s  %-6s  %-9s  %-8s  %-7s  %-8s  %s\n",
			"Turn", "Correct", "Reason", "Suggested", "Raw", "Decided", "Smoothed", "Flags")
		for _, ev := range state.Trail {
			fmt.Printf("%-4d  %-7v  %-6d  %-9d  %-8.2f  %-7s  %-8.2f  %s\n",
				ev.Turn, ev.IsCorrect, ev.ReasoningScore, ev.SuggestedLevel, ev.RawConfidence,
				theme.Level(ev.DecidedLevel).Render(fmt.Sprintf("L%d", ev.DecidedLevel)),
				ev.SmoothedConfidence, evidenceFlags(ev))
			if ev.Misconception != "" {
				fmt.Printf("      %s\n", theme.Hint.Render(ev.Misconception))
			}
		}
	}

	if !transcript {
		return
	}
	fmt.Println()
	fmt.Println("Transcript")
	fmt.Println(sep)
	for _, m := range st.Transcript {
		fmt.Printf("%s: %s\n\n", theme.Title.Render(string(m.Role)), m.Content)
	}
}

func evidenceFlags(ev calibration.Evidence) string {
	var flags []string
	if ev.Corroborated {
		flags = append(flags, "verified")
	}
	if ev.Overridden {
		flags = append(flags, "overridden")
	}
	if ev.Degraded {
		flags = append(flags, "degraded")
	}
	return strings.Join(flags, ",")
}

func init() {
	sessionShowCmd.Flags().String("calibration", "", "YAML file with the calibration constants the session ran with")
	sessionShowCmd.Flags().Bool("no-transcript", false, "Only print the evidence trail")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}
