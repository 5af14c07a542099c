// Package session drives one learner-topic conversation from the opening
// question through diagnosis and tutoring, and runs many of them on a
// bounded worker pool.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/store"
	"github.com/abhisek/skillprobe/internal/tutor"
)

// Deps are the collaborators a Runner talks to. Verifier and Sessions may
// be nil.
type Deps struct {
	Detective Detective
	Verifier  calibration.Corroborator
	Opener    Opener
	Tutor     Tutor
	Transport Transport
	Sessions  store.SessionRepo
	Logger    *slog.Logger
}

// Runner runs single sessions. It holds no per-session state and is safe
// for concurrent use.
type Runner struct {
	deps  Deps
	cfg   Config
	calib calibration.Config
	gate  *calibration.Gate
	runID string
}

func NewRunner(deps Deps, cfg Config, calib calibration.Config, runID string) *Runner {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Runner{
		deps:  deps,
		cfg:   cfg,
		calib: calib,
		gate:  calibration.NewGate(calib, deps.Verifier),
		runID: runID,
	}
}

// Run calibrates one learner on one topic. It never returns a nil-level
// result without an error: a session that cannot start or complete its
// opening exchange carries ErrSessionFailed. Later collaborator failures
// degrade the session instead of failing it.
func (r *Runner) Run(ctx context.Context, task Task) Result {
	log := r.deps.Logger.With(
		slog.String("learner", task.LearnerID),
		slog.String("topic", task.TopicID),
	)
	c := &conversation{
		task:  task,
		state: calibration.NewState(task.LearnerID, task.TopicID, r.calib),
	}

	if err := r.open(ctx, c); err != nil {
		c.err = fmt.Errorf("%w: %w", ErrSessionFailed, err)
		log.Error("session failed to start", slog.String("error", err.Error()))
		r.persistFailure(ctx, c, log)
		return r.result(c)
	}
	log.Info("session started", slog.String("topic_name", task.TopicName))
	r.persist(ctx, c, log)

	for c.state.TurnCount < r.cfg.Turns && !c.complete {
		if ctx.Err() != nil {
			log.Warn("session interrupted", slog.Int("turn", c.state.TurnCount))
			break
		}

		var msg string
		switch c.state.Phase {
		case calibration.PhaseDiagnosis:
			msg = r.diagnose(ctx, c, log)
		case calibration.PhaseTutoring:
			msg = r.teach(ctx, c, log)
			if err := c.state.CompleteTutoringTurn(); err != nil {
				log.Error("complete tutoring turn", slog.String("error", err.Error()))
			}
		}

		ex, err := r.deps.Transport.Interact(ctx, c.id, msg)
		if err != nil {
			log.Error("interact failed, ending conversation",
				slog.Int("turn", c.state.TurnCount),
				slog.String("error", err.Error()),
			)
			break
		}
		c.record(msg, ex)
		r.persist(ctx, c, log)
	}

	c.state.Close(c.state.TurnCount >= r.cfg.Turns)
	level, err := c.state.Finalize()
	if err != nil {
		log.Warn("finalize", slog.String("error", err.Error()))
	}
	r.persist(ctx, c, log)

	log.Info("session complete",
		slog.Int("level", level),
		slog.Float64("confidence", c.state.CurrentConfidence),
		slog.String("freeze_reason", string(c.state.FreezeReason)),
		slog.Int("turns", c.state.TurnCount),
	)
	return r.result(c)
}

func (r *Runner) open(ctx context.Context, c *conversation) error {
	id, err := r.deps.Transport.Start(ctx, c.task.LearnerID, c.task.TopicID)
	if err != nil {
		return err
	}
	c.id = id

	question, err := r.deps.Opener.Open(ctx, c.task.TopicName)
	if err != nil {
		return fmt.Errorf("opener: %w", err)
	}

	ex, err := r.deps.Transport.Interact(ctx, c.id, question)
	if err != nil {
		return err
	}
	c.record(question, ex)
	return c.state.CompleteOpener()
}

// diagnose folds the latest reply into the calibration state and returns
// the next diagnostic message.
func (r *Runner) diagnose(ctx context.Context, c *conversation, log *slog.Logger) string {
	next := diagnosis.FallbackNextMessage

	var sig calibration.Signal
	analysis, err := r.deps.Detective.Analyze(ctx, diagnosis.DetectiveInput{
		Topic:   c.task.TopicName,
		History: c.history(),
		Reply:   c.reply,
	})
	if err != nil {
		log.Warn("detective failed, recording degraded evidence",
			slog.Int("turn", c.state.TurnCount),
			slog.String("error", err.Error()),
		)
		sig = calibration.DegradedSignal(c.state.CurrentLevel, r.calib)
		c.degraded++
	} else {
		sig = analysis.Signal()
		next = analysis.NextMessage
	}

	sig, err = r.gate.Apply(ctx, c.task.TopicName, c.reply, sig)
	if err != nil {
		log.Warn("verifier failed, keeping detective verdict", slog.String("error", err.Error()))
	}

	ev, err := c.state.Observe(sig)
	if err != nil {
		log.Error("observe", slog.String("error", err.Error()))
		return next
	}

	log.Info("diagnosis",
		slog.Int("turn", ev.Turn),
		slog.Int("level", ev.DecidedLevel),
		slog.Float64("confidence", ev.SmoothedConfidence),
		slog.Float64("raw_confidence", ev.RawConfidence),
		slog.Bool("correct", ev.IsCorrect),
		slog.Bool("overridden", ev.Overridden),
	)
	if c.state.Frozen {
		log.Info("level frozen",
			slog.Int("level", c.state.CurrentLevel),
			slog.String("reason", string(c.state.FreezeReason)),
		)
	}
	return next
}

func (r *Runner) teach(ctx context.Context, c *conversation, log *slog.Logger) string {
	msg, err := r.deps.Tutor.Teach(ctx, tutor.TeachInput{
		Topic:          c.task.TopicName,
		Level:          c.state.CurrentLevel,
		Misconceptions: misconceptions(c.state.Trail),
		History:        c.history(),
		Reply:          c.reply,
	})
	if err != nil {
		log.Warn("tutor failed, sending fallback", slog.String("error", err.Error()))
		return diagnosis.FallbackNextMessage
	}
	log.Debug("tutoring", slog.Int("turn", c.state.TurnCount), slog.Int("level", c.state.CurrentLevel))
	return msg
}

// persist saves the session. Storage failures are logged and never stop
// the conversation; writes outlive a cancelled run.
func (r *Runner) persist(ctx context.Context, c *conversation, log *slog.Logger) {
	if r.deps.Sessions == nil {
		return
	}
	if err := r.deps.Sessions.Save(context.WithoutCancel(ctx), toRecord(r.runID, c)); err != nil {
		log.Error("save session", slog.String("error", err.Error()))
	}
}

// persistFailure records a session that never started, unless the pair
// already holds a finalized session from an earlier run.
func (r *Runner) persistFailure(ctx context.Context, c *conversation, log *slog.Logger) {
	if r.deps.Sessions == nil {
		return
	}
	prev, err := r.deps.Sessions.Load(context.WithoutCancel(ctx), c.task.LearnerID, c.task.TopicID)
	switch {
	case err == nil && prev.FinalLevel != 0:
		log.Warn("keeping finalized session from earlier run", slog.String("run_id", prev.RunID))
		return
	case err != nil && !errors.Is(err, store.ErrNotFound):
		log.Error("load session", slog.String("error", err.Error()))
		return
	}
	r.persist(ctx, c, log)
}

func (r *Runner) result(c *conversation) Result {
	return Result{
		Task:           c.task,
		ConversationID: c.id,
		Level:          c.state.FinalLevel,
		Confidence:     c.state.CurrentConfidence,
		FreezeReason:   c.state.FreezeReason,
		Turns:          c.state.TurnCount,
		Evidence:       len(c.state.Trail),
		Degraded:       c.degraded,
		Err:            c.err,
	}
}

// misconceptions lists the distinct misconceptions seen so far, oldest first.
func misconceptions(trail []calibration.Evidence) []string {
	seen := lo.FilterMap(trail, func(ev calibration.Evidence, _ int) (string, bool) {
		return ev.Misconception, ev.Misconception != ""
	})
	return lo.Uniq(seen)
}

// IsFailed reports whether err marks a failed session.
func IsFailed(err error) bool {
	return errors.Is(err, ErrSessionFailed)
}
