package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/llm"
	"github.com/abhisek/skillprobe/internal/session"
	"github.com/abhisek/skillprobe/internal/store"
	"github.com/abhisek/skillprobe/internal/submission"
	"github.com/abhisek/skillprobe/internal/transport"
	"github.com/abhisek/skillprobe/internal/tutor"
	"github.com/abhisek/skillprobe/internal/ui/theme"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Calibrate every learner-topic pair in a set",
	RunE:  runBatch,
}

func init() {
	defaults := session.DefaultConfig()
	runCmd.Flags().Int("turns", defaults.Turns, "Tutor messages per conversation, opener included (overrides SKILLPROBE_TURNS)")
	runCmd.Flags().Int("max-convos", 0, "Maximum number of conversations (0 = all)")
	runCmd.Flags().String("set-type", "", "Learner set: mini_dev, dev or eval (overrides SKILLPROBE_SET_TYPE)")
	runCmd.Flags().String("student-id", "", "Only calibrate this learner")
	runCmd.Flags().Int("workers", defaults.Workers, "Conversations to run concurrently (overrides SKILLPROBE_WORKERS)")
	runCmd.Flags().String("calibration", "", "YAML file overriding calibration constants")
	runCmd.Flags().Bool("submit", false, "Submit predictions for scoring after the run")
	runCmd.Flags().String("out", filepath.Join("data", "predictions.json"), "Where to write predictions")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	cfg := session.ConfigFromEnv()
	if cmd.Flags().Changed("turns") {
		cfg.Turns, _ = cmd.Flags().GetInt("turns")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers, _ = cmd.Flags().GetInt("workers")
	}
	cfg.MaxConversations, _ = cmd.Flags().GetInt("max-convos")
	turns, workers, maxConvos := cfg.Turns, cfg.Workers, cfg.MaxConversations

	setType, _ := cmd.Flags().GetString("set-type")
	studentID, _ := cmd.Flags().GetString("student-id")
	calibPath, _ := cmd.Flags().GetString("calibration")
	submit, _ := cmd.Flags().GetBool("submit")
	out, _ := cmd.Flags().GetString("out")

	if turns < 1 {
		return fmt.Errorf("--turns must be at least 1, got %d", turns)
	}

	calib, err := calibration.LoadConfig(calibPath)
	if err != nil {
		return err
	}

	tcfg := transport.ConfigFromEnv()
	if setType != "" {
		tcfg.SetType = setType
	}
	if err := tcfg.Validate(); err != nil {
		return fmt.Errorf("learner service: %w", err)
	}
	client := transport.New(tcfg)

	s, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	logger := slog.Default()
	providers, err := llm.NewProvidersFromEnv(ctx, s.EventRepo(), logger)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	runID := uuid.NewString()

	tasks, err := session.Plan(ctx, client, session.PlanOptions{
		SetType:          tcfg.SetType,
		LearnerID:        studentID,
		MaxConversations: maxConvos,
	})
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No learner-topic pairs to calibrate.")
		return nil
	}

	runner := session.NewRunner(session.Deps{
		Detective: diagnosis.NewDetective(providers.Main, diagnosis.DefaultDetectiveConfig()),
		Verifier:  diagnosis.NewVerifier(providers.Verifier),
		Opener:    diagnosis.NewOpener(providers.Main),
		Tutor:     tutor.New(providers.Main, tutor.DefaultConfig()),
		Transport: client,
		Sessions:  s.SessionRepo(),
		Logger:    logger,
	}, cfg, calib, runID)

	fmt.Println(theme.Title.Render(fmt.Sprintf("Run %s", runID)))
	fmt.Printf("%d conversations, %d turns each, %d workers, set %s\n\n",
		len(tasks), turns, workers, tcfg.SetType)

	start := time.Now()
	pool := session.NewPool(runner, workers)
	pool.OnResult = printResult
	results := pool.Run(ctx, tasks)

	printRunSummary(session.BuildSummary(results), time.Since(start))

	preds := session.Predictions(results)
	if err := writePredictions(out, preds); err != nil {
		return err
	}
	fmt.Printf("Wrote %d predictions to %s\n", len(preds), out)

	if !submit {
		return nil
	}
	rc := submission.RunConfig{
		Turns:       turns,
		Workers:     workers,
		MaxConvos:   maxConvos,
		Provider:    llm.ConfigFromEnv().Provider,
		Calibration: &calib,
	}
	return submitPredictions(ctx, client, s.SubmissionRepo(), runID, tcfg.SetType, preds, rc)
}

func printResult(r session.Result) {
	label := r.Task.LearnerID + "/" + r.Task.TopicName
	if r.Failed() {
		fmt.Printf("  %s  %s\n", theme.Poor.Render("FAIL"), label)
		return
	}
	fmt.Printf("  %s  %-40s  conf %.2f  %s  %d turns\n",
		theme.Level(r.Level).Render(fmt.Sprintf("L%d", r.Level)),
		truncate(label, 40), r.Confidence, reasonLabel(r.FreezeReason), r.Turns)
}

func reasonLabel(r calibration.FreezeReason) string {
	if r == calibration.FreezeNone {
		return "unfrozen"
	}
	return string(r)
}

func printRunSummary(sum *session.RunSummary, elapsed time.Duration) {
	fmt.Println()
	fmt.Println(theme.Title.Render("Summary"))
	fmt.Printf("Sessions:   %d (%d failed, %d degraded)\n", sum.Sessions, sum.Failed, sum.Degraded)
	fmt.Printf("Mean level: %.2f\n", sum.MeanLevel)
	fmt.Printf("Elapsed:    %s\n", elapsed.Round(time.Second))

	levels := make([]int, 0, len(sum.ByLevel))
	for l := range sum.ByLevel {
		levels = append(levels, l)
	}
	sort.Ints(levels)
	for _, l := range levels {
		fmt.Printf("  %s  %d\n", theme.Level(l).Render(fmt.Sprintf("L%d", l)), sum.ByLevel[l])
	}

	reasons := make([]string, 0, len(sum.ByReason))
	for r := range sum.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("  %-22s %d\n", reasonLabel(calibration.FreezeReason(r)), sum.ByReason[calibration.FreezeReason(r)])
	}
	fmt.Println()
}

func writePredictions(path string, preds []transport.Prediction) error {
	if preds == nil {
		preds = []transport.Prediction{}
	}
	data, err := json.MarshalIndent(preds, "", "  ")
	if err != nil {
		return fmt.Errorf("encode predictions: %w", err)
	}
	if err := store.EnsureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}
	return nil
}

// submitPredictions scores preds and records the result in the
// submission history.
func submitPredictions(ctx context.Context, client *transport.Client, subs store.SubmissionRepo,
	runID, setType string, preds []transport.Prediction, rc submission.RunConfig) error {
	if len(preds) == 0 {
		return fmt.Errorf("no predictions to submit")
	}

	res, err := client.SubmitPredictions(ctx, preds, setType)
	if err != nil {
		return fmt.Errorf("submit predictions: %w", err)
	}

	band := submission.BandFor(res.MSEScore)
	fmt.Printf("MSE: %s (%d predictions)\n",
		theme.Band(band).Render(fmt.Sprintf("%.4f", res.MSEScore)), len(preds))

	encoded, err := rc.Encode()
	if err != nil {
		return err
	}
	if _, err := subs.Append(context.WithoutCancel(ctx), store.Submission{
		Timestamp:       time.Now(),
		RunID:           runID,
		SetType:         setType,
		MSE:             res.MSEScore,
		PredictionCount: len(preds),
		Config:          encoded,
	}); err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	return nil
}
