package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/logging"
	"github.com/abhisek/skillprobe/internal/store"
	"github.com/abhisek/skillprobe/internal/transport"
	"github.com/abhisek/skillprobe/internal/tutor"
)

type fakeTransport struct {
	mu sync.Mutex

	startErr      error
	completeAfter int // interact call that reports is_complete; 0 = never
	failAfter     int // interact calls after this one fail; 0 = never

	sent map[string][]string
}

func (f *fakeTransport) Start(_ context.Context, learnerID, topicID string) (string, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	return learnerID + "/" + topicID, nil
}

func (f *fakeTransport) Interact(_ context.Context, conv, msg string) (*transport.Exchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[string][]string{}
	}
	n := len(f.sent[conv]) + 1
	if f.failAfter > 0 && n > f.failAfter {
		return nil, &transport.APIError{StatusCode: 502, Body: "gateway"}
	}
	f.sent[conv] = append(f.sent[conv], msg)
	return &transport.Exchange{
		Reply:      fmt.Sprintf("answer %d", n),
		IsComplete: f.completeAfter > 0 && n >= f.completeAfter,
	}, nil
}

func (f *fakeTransport) messages(conv string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[conv]
}

type fakeDetective struct {
	mu       sync.Mutex
	analysis diagnosis.Analysis
	err      error
	calls    int
	inputs   []diagnosis.DetectiveInput
}

func (f *fakeDetective) Analyze(_ context.Context, in diagnosis.DetectiveInput) (*diagnosis.Analysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	a := f.analysis
	return &a, nil
}

type fakeOpener struct{ err error }

func (f fakeOpener) Open(_ context.Context, topic string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "Tell me what you know about " + topic + ".", nil
}

type fakeTutor struct {
	mu     sync.Mutex
	err    error
	inputs []tutor.TeachInput
}

func (f *fakeTutor) Teach(_ context.Context, in tutor.TeachInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("lesson at level %d", in.Level), nil
}

type fakeVerifier struct {
	verdict bool
	calls   int
}

func (f *fakeVerifier) Corroborate(context.Context, string, string) (bool, error) {
	f.calls++
	return f.verdict, nil
}

func confidentAnalysis() diagnosis.Analysis {
	return diagnosis.Analysis{
		IsCorrect:      true,
		ReasoningScore: 4,
		EstimatedLevel: 3,
		Confidence:     0.9,
		NextMessage:    "Why does that work?",
	}
}

type harness struct {
	transport *fakeTransport
	detective *fakeDetective
	tutor     *fakeTutor
	verifier  *fakeVerifier
	deps      Deps
}

func newHarness() *harness {
	h := &harness{
		transport: &fakeTransport{},
		detective: &fakeDetective{analysis: confidentAnalysis()},
		tutor:     &fakeTutor{},
		verifier:  &fakeVerifier{},
	}
	h.deps = Deps{
		Detective: h.detective,
		Verifier:  h.verifier,
		Opener:    fakeOpener{},
		Tutor:     h.tutor,
		Transport: h.transport,
		Logger:    logging.Discard(),
	}
	return h
}

func (h *harness) runner() *Runner {
	return NewRunner(h.deps, DefaultConfig(), calibration.DefaultConfig(), "run-1")
}

var fractions = Task{LearnerID: "s1", LearnerName: "Ada", TopicID: "t1", TopicName: "Fractions"}

func TestRun_ConfidenceFreezeThenTutoring(t *testing.T) {
	h := newHarness()
	res := h.runner().Run(context.Background(), fractions)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.FreezeReason != calibration.FreezeConfidenceThreshold {
		t.Errorf("FreezeReason = %q, want confidence_threshold", res.FreezeReason)
	}
	if res.Level != 3 {
		t.Errorf("Level = %d, want 3", res.Level)
	}
	if res.Turns != 8 {
		t.Errorf("Turns = %d, want 8", res.Turns)
	}
	// Confidence climbs 0.2, 0.4, 0.6, 0.8: four diagnostic turns.
	if h.detective.calls != 4 || res.Evidence != 4 {
		t.Errorf("detective calls = %d, evidence = %d, want 4", h.detective.calls, res.Evidence)
	}
	if len(h.tutor.inputs) != 3 {
		t.Errorf("tutor calls = %d, want 3", len(h.tutor.inputs))
	}
	if h.verifier.calls != 0 {
		t.Errorf("verifier called %d times outside the ambiguity band", h.verifier.calls)
	}

	sent := h.transport.messages("s1/t1")
	if len(sent) != 8 {
		t.Fatalf("sent %d messages, want 8", len(sent))
	}
	if sent[0] != "Tell me what you know about Fractions." {
		t.Errorf("opener = %q", sent[0])
	}
	if sent[1] != "Why does that work?" {
		t.Errorf("diagnostic follow-up = %q", sent[1])
	}
	if sent[5] != "lesson at level 3" {
		t.Errorf("first tutoring message = %q", sent[5])
	}
}

func TestRun_DetectiveHistoryExcludesLatestReply(t *testing.T) {
	h := newHarness()
	h.runner().Run(context.Background(), fractions)

	first := h.detective.inputs[0]
	if first.Reply != "answer 1" {
		t.Errorf("Reply = %q, want answer 1", first.Reply)
	}
	if len(first.History) != 1 || first.History[0].Role != diagnosis.RoleTutor {
		t.Errorf("History = %+v, want only the opener", first.History)
	}
	if first.Topic != "Fractions" {
		t.Errorf("Topic = %q", first.Topic)
	}
}

func TestRun_DegradedDetectiveHitsShotClock(t *testing.T) {
	h := newHarness()
	h.detective.err = errors.New("provider down")
	res := h.runner().Run(context.Background(), fractions)

	if res.Err != nil {
		t.Fatalf("degraded session must not fail: %v", res.Err)
	}
	if res.FreezeReason != calibration.FreezeTurnBudget {
		t.Errorf("FreezeReason = %q, want turn_budget", res.FreezeReason)
	}
	if res.Degraded != 5 || res.Evidence != 5 {
		t.Errorf("degraded = %d, evidence = %d, want 5", res.Degraded, res.Evidence)
	}
	if res.Level != 3 {
		t.Errorf("Level = %d, want 3", res.Level)
	}
	// Degraded signals sit at 0.5, inside the band, but skip the verifier.
	if h.verifier.calls != 0 {
		t.Errorf("verifier called %d times for degraded evidence", h.verifier.calls)
	}
	if got := h.transport.messages("s1/t1")[1]; got != diagnosis.FallbackNextMessage {
		t.Errorf("follow-up = %q, want fallback", got)
	}
}

func TestRun_AmbiguousSignalsAreCorroborated(t *testing.T) {
	h := newHarness()
	h.detective.analysis.Confidence = 0.6
	h.detective.analysis.IsCorrect = false
	h.verifier.verdict = true

	res := h.runner().Run(context.Background(), fractions)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if h.verifier.calls != h.detective.calls {
		t.Errorf("verifier calls = %d, detective calls = %d", h.verifier.calls, h.detective.calls)
	}
}

func TestRun_TransportCompletesEarly(t *testing.T) {
	h := newHarness()
	h.transport.completeAfter = 3
	res := h.runner().Run(context.Background(), fractions)

	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Turns != 3 {
		t.Errorf("Turns = %d, want 3", res.Turns)
	}
	if res.FreezeReason != calibration.FreezeNone {
		t.Errorf("early completion must not force a freeze, got %q", res.FreezeReason)
	}
	if res.Level != 3 {
		t.Errorf("Level = %d, want finalized 3", res.Level)
	}
}

func TestRun_BudgetExhaustedBeforeShotClock(t *testing.T) {
	h := newHarness()
	h.detective.analysis.Confidence = 0.3
	cfg := DefaultConfig()
	cfg.Turns = 4

	res := NewRunner(h.deps, cfg, calibration.DefaultConfig(), "run-1").Run(context.Background(), fractions)
	if res.FreezeReason != calibration.FreezeTurnBudget {
		t.Errorf("FreezeReason = %q, want turn_budget", res.FreezeReason)
	}
	if res.Turns != 4 {
		t.Errorf("Turns = %d, want 4", res.Turns)
	}
}

func TestRun_TutorFailureSendsFallback(t *testing.T) {
	h := newHarness()
	h.tutor.err = errors.New("tutor down")
	res := h.runner().Run(context.Background(), fractions)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if got := h.transport.messages("s1/t1")[5]; got != diagnosis.FallbackNextMessage {
		t.Errorf("tutoring message = %q, want fallback", got)
	}
}

func TestRun_TutorSeesDistinctMisconceptions(t *testing.T) {
	h := newHarness()
	h.detective.analysis.Misconception = "adds denominators"
	h.runner().Run(context.Background(), fractions)

	in := h.tutor.inputs[0]
	if len(in.Misconceptions) != 1 || in.Misconceptions[0] != "adds denominators" {
		t.Errorf("Misconceptions = %v", in.Misconceptions)
	}
	if in.Level != 3 || in.Topic != "Fractions" {
		t.Errorf("TeachInput = %+v", in)
	}
}

func TestRun_InteractFailureMidSessionStillFinalizes(t *testing.T) {
	h := newHarness()
	h.transport.failAfter = 2
	res := h.runner().Run(context.Background(), fractions)

	if res.Err != nil {
		t.Fatalf("mid-session failure must not fail the session: %v", res.Err)
	}
	if res.Level == 0 {
		t.Error("session was not finalized")
	}
}

func TestRun_StartFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
	}{
		{"start", func(h *harness) { h.transport.startErr = errors.New("no such learner") }},
		{"opener", func(h *harness) { h.deps.Opener = fakeOpener{err: errors.New("llm down")} }},
		{"first interact", func(h *harness) { h.deps.Transport = failingInteract{h.transport} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tt.setup(h)

			res := h.runner().Run(context.Background(), fractions)
			if !errors.Is(res.Err, ErrSessionFailed) {
				t.Fatalf("Err = %v, want ErrSessionFailed", res.Err)
			}
			if !IsFailed(res.Err) || !res.Failed() {
				t.Error("result should report failure")
			}
			if res.Level != 0 {
				t.Errorf("Level = %d, want 0", res.Level)
			}
		})
	}
}

type failingInteract struct{ *fakeTransport }

func (failingInteract) Interact(context.Context, string, string) (*transport.Exchange, error) {
	return nil, errors.New("connection reset")
}

func TestRun_CancelledContextFinalizes(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.deps.Transport = cancelAfterOpen{fakeTransport: h.transport, cancel: cancel}

	res := h.runner().Run(ctx, fractions)
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Turns != 1 || res.Level != 3 {
		t.Errorf("Turns = %d, Level = %d; want 1 and 3", res.Turns, res.Level)
	}
}

type cancelAfterOpen struct {
	*fakeTransport
	cancel context.CancelFunc
}

func (c cancelAfterOpen) Interact(ctx context.Context, conv, msg string) (*transport.Exchange, error) {
	ex, err := c.fakeTransport.Interact(ctx, conv, msg)
	c.cancel()
	return ex, err
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun_PersistsAndRestores(t *testing.T) {
	st := openTestStore(t)
	h := newHarness()
	h.detective.analysis.Misconception = "sign slip"
	h.deps.Sessions = st.SessionRepo()

	res := h.runner().Run(context.Background(), fractions)
	if res.Err != nil {
		t.Fatalf("run: %v", res.Err)
	}

	loaded, err := Load(context.Background(), st.SessionRepo(), "s1", "t1", calibration.DefaultConfig())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	state := loaded.State
	if state.FinalLevel != res.Level || state.CurrentConfidence != res.Confidence {
		t.Errorf("restored level/confidence = %d/%v, want %d/%v",
			state.FinalLevel, state.CurrentConfidence, res.Level, res.Confidence)
	}
	if !state.Frozen || state.FreezeReason != res.FreezeReason || state.Phase != calibration.PhaseTutoring {
		t.Errorf("restored freeze = %v/%q/%q", state.Frozen, state.FreezeReason, state.Phase)
	}
	if len(state.Trail) != res.Evidence {
		t.Fatalf("trail length = %d, want %d", len(state.Trail), res.Evidence)
	}
	if state.Trail[0].Misconception != "sign slip" || state.Trail[0].Turn != 1 {
		t.Errorf("first evidence = %+v", state.Trail[0])
	}
	if len(loaded.Transcript) != 16 {
		t.Errorf("transcript length = %d, want 16", len(loaded.Transcript))
	}
	if loaded.RunID != "run-1" || loaded.ConversationID != "s1/t1" || loaded.Task.TopicName != "Fractions" {
		t.Errorf("header = %+v", loaded)
	}

	preds, err := st.SessionRepo().Predictions(context.Background())
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 1 || preds[0].Level != res.Level {
		t.Errorf("predictions = %+v", preds)
	}
}

func TestRun_FailedSessionPersistedWithoutPrediction(t *testing.T) {
	st := openTestStore(t)
	h := newHarness()
	h.transport.startErr = errors.New("no such learner")
	h.deps.Sessions = st.SessionRepo()

	h.runner().Run(context.Background(), fractions)

	rec, err := st.SessionRepo().Load(context.Background(), "s1", "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.Contains(rec.Error, "no such learner") {
		t.Errorf("Error = %q", rec.Error)
	}
	preds, _ := st.SessionRepo().Predictions(context.Background())
	if len(preds) != 0 {
		t.Errorf("failed session must not be predicted: %+v", preds)
	}
}

func TestRun_FailedRestartKeepsFinalizedSession(t *testing.T) {
	st := openTestStore(t)
	h := newHarness()
	h.deps.Sessions = st.SessionRepo()

	first := h.runner().Run(context.Background(), fractions)
	if first.Err != nil {
		t.Fatalf("first run: %v", first.Err)
	}

	h.transport.startErr = context.Canceled
	again := NewRunner(h.deps, DefaultConfig(), calibration.DefaultConfig(), "run-2").Run(context.Background(), fractions)
	if !errors.Is(again.Err, ErrSessionFailed) {
		t.Fatalf("Err = %v, want ErrSessionFailed", again.Err)
	}

	rec, err := st.SessionRepo().Load(context.Background(), "s1", "t1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.RunID != "run-1" || rec.FinalLevel != first.Level || rec.Error != "" {
		t.Errorf("stored session = run %q level %d error %q; want the first run kept",
			rec.RunID, rec.FinalLevel, rec.Error)
	}
	preds, err := st.SessionRepo().Predictions(context.Background())
	if err != nil {
		t.Fatalf("Predictions: %v", err)
	}
	if len(preds) != 1 || preds[0].Level != first.Level {
		t.Errorf("predictions = %+v", preds)
	}
}
