package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abhisek/skillprobe/internal/submission"
	"github.com/abhisek/skillprobe/internal/ui/theme"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the history of scored submissions",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer s.Close()

		subs, err := s.SubmissionRepo().List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list submissions: %w", err)
		}

		sum := submission.Summarize(subs)
		if len(sum.Rows) == 0 {
			fmt.Println("No submissions recorded yet.")
			return nil
		}

		fmt.Printf("%-4s  %-19s  %-9s  %-8s  %5s  %5s  %7s\n",
			"#", "Timestamp", "Set", "MSE", "Preds", "Turns", "Workers")
		fmt.Println(strings.Repeat("─", 70))
		for _, r := range sum.Rows {
			mse := theme.Band(r.Band).Render(fmt.Sprintf("%-8.4f", r.MSE))
			fmt.Printf("%-4d  %-19s  %-9s  %s  %5d  %5s  %7s\n",
				r.Index, r.Timestamp, r.SetType, mse, r.Predictions, orDash(r.Turns), orDash(r.Workers))
		}

		st := sum.Stats
		fmt.Println(strings.Repeat("─", 70))
		fmt.Printf("Best %.4f   Worst %.4f   Avg %.4f   Trend %s\n",
			st.Best, st.Worst, st.Avg, trendLabel(st.Trend))
		if sum.Best != nil {
			fmt.Println(theme.Hint.Render(fmt.Sprintf("Best run %s on %s", sum.Best.RunID, sum.Best.SetType)))
		}
		return nil
	},
}

func orDash(n int) string {
	if n == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", n)
}

func trendLabel(delta float64) string {
	switch {
	case delta < 0:
		return theme.Good.Render(fmt.Sprintf("%+.4f", delta))
	case delta > 0:
		return theme.Poor.Render(fmt.Sprintf("%+.4f", delta))
	default:
		return "0"
	}
}
