package session

import (
	"context"
	"errors"
	"os"
	"strconv"

	"github.com/abhisek/skillprobe/internal/calibration"
	"github.com/abhisek/skillprobe/internal/diagnosis"
	"github.com/abhisek/skillprobe/internal/transport"
	"github.com/abhisek/skillprobe/internal/tutor"
)

// ErrSessionFailed marks a session that never got past its opening
// exchange. The cause is wrapped alongside it.
var ErrSessionFailed = errors.New("session failed")

// Detective reads a learner reply.
type Detective interface {
	Analyze(ctx context.Context, in diagnosis.DetectiveInput) (*diagnosis.Analysis, error)
}

// Opener writes the first diagnostic question for a topic.
type Opener interface {
	Open(ctx context.Context, topic string) (string, error)
}

// Tutor writes a teaching reply once diagnosis has frozen.
type Tutor interface {
	Teach(ctx context.Context, in tutor.TeachInput) (string, error)
}

// Transport relays messages to the learner.
type Transport interface {
	Start(ctx context.Context, learnerID, topicID string) (string, error)
	Interact(ctx context.Context, conversationID, message string) (*transport.Exchange, error)
}

// Task is one learner-topic pair to calibrate.
type Task struct {
	LearnerID   string
	LearnerName string
	TopicID     string
	TopicName   string
}

// Result is the outcome of one session.
type Result struct {
	Task           Task
	ConversationID string

	// Level is the finalized level, zero when the session failed.
	Level        int
	Confidence   float64
	FreezeReason calibration.FreezeReason
	Turns        int
	Evidence     int
	Degraded     int

	Err error
}

// Failed reports whether the session produced no usable level.
func (r Result) Failed() bool {
	return r.Err != nil || r.Level == 0
}

// Config controls the turn loop.
type Config struct {
	// Turns is the total number of tutor messages per conversation,
	// opener included.
	Turns int

	// Workers bounds how many sessions run at once.
	Workers int

	// MaxConversations caps the number of planned sessions. Zero means
	// no cap.
	MaxConversations int
}

func DefaultConfig() Config {
	return Config{Turns: 8, Workers: 4}
}

// ConfigFromEnv overlays SKILLPROBE_TURNS and SKILLPROBE_WORKERS on the
// defaults. Unparseable or non-positive values are ignored.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if n, ok := positiveEnv("SKILLPROBE_TURNS"); ok {
		cfg.Turns = n
	}
	if n, ok := positiveEnv("SKILLPROBE_WORKERS"); ok {
		cfg.Workers = n
	}
	return cfg
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// conversation is the runner-side view of one live session.
type conversation struct {
	task       Task
	id         string
	state      *calibration.State
	transcript []diagnosis.Message
	reply      string
	complete   bool
	degraded   int
	err        error
}

func (c *conversation) record(tutorMsg string, ex *transport.Exchange) {
	c.transcript = append(c.transcript,
		diagnosis.Message{Role: diagnosis.RoleTutor, Content: tutorMsg},
		diagnosis.Message{Role: diagnosis.RoleStudent, Content: ex.Reply},
	)
	c.reply = ex.Reply
	c.complete = ex.IsComplete
}

// history is the transcript before the latest learner reply.
func (c *conversation) history() []diagnosis.Message {
	if n := len(c.transcript); n > 0 && c.transcript[n-1].Role == diagnosis.RoleStudent {
		return c.transcript[:n-1]
	}
	return c.transcript
}
