package store

import (
	"context"
	"time"
)

// QueryOpts configures event queries with filtering and pagination.
type QueryOpts struct {
	Limit   int    // max results (0 = unlimited)
	After   int64  // sequence > After
	Purpose string // exact purpose match when non-empty
}

// LLMRequestEventData captures the data for a single LLM request event.
type LLMRequestEventData struct {
	Provider     string
	Model        string
	Purpose      string
	InputTokens  int
	OutputTokens int
	LatencyMs    int64
	Success      bool
	ErrorMessage string
	RequestBody  string
	ResponseBody string
}

// LLMRequestEvent is a stored LLM request event.
type LLMRequestEvent struct {
	ID        int
	Sequence  int64
	Timestamp time.Time
	LLMRequestEventData
}

// LLMUsage aggregates LLM events by purpose or by model.
type LLMUsage struct {
	Purpose      string
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	AvgLatencyMs int64
}

// EventRepo records and queries LLM request events.
type EventRepo interface {
	// AppendLLMRequest records an LLM API call event.
	AppendLLMRequest(ctx context.Context, data LLMRequestEventData) error

	// QueryLLMEvents returns events newest first.
	QueryLLMEvents(ctx context.Context, opts QueryOpts) ([]LLMRequestEvent, error)

	// GetLLMEvent returns one event, or nil if it does not exist.
	GetLLMEvent(ctx context.Context, id int) (*LLMRequestEvent, error)

	LLMUsageByPurpose(ctx context.Context) ([]LLMUsage, error)
	LLMUsageByModel(ctx context.Context) ([]LLMUsage, error)
}

// SessionRecord is the persisted form of one learner-topic session.
type SessionRecord struct {
	RunID          string
	LearnerID      string
	TopicID        string
	TopicName      string
	ConversationID string

	TurnCount         int
	CurrentLevel      int
	CurrentConfidence float64
	PromotionStreak   int
	Phase             string
	Frozen            bool
	FreezeReason      string
	FinalLevel        int // 0 until finalized

	// Error holds the failure message of a session that could not run.
	Error string

	Evidence   []EvidenceRecord
	Transcript []MessageRecord

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EvidenceRecord is one persisted diagnostic turn.
type EvidenceRecord struct {
	Turn               int
	IsCorrect          bool
	ReasoningScore     int
	Misconception      string
	SuggestedLevel     int
	RawConfidence      float64
	DecidedLevel       int
	SmoothedConfidence float64
	Corroborated       bool
	Overridden         bool
	Degraded           bool
}

// MessageRecord is one transcript line.
type MessageRecord struct {
	Role    string
	Content string
}

// Prediction is a finalized level ready for batch submission.
type Prediction struct {
	LearnerID string `json:"student_id"`
	TopicID   string `json:"topic_id"`
	Level     int    `json:"predicted_level"`
}

// SessionRepo persists calibration sessions. Sessions are keyed by
// (learner id, topic id); saving replaces the previous record.
type SessionRepo interface {
	Save(ctx context.Context, rec SessionRecord) error

	// Load returns the full session including evidence and transcript,
	// or ErrNotFound.
	Load(ctx context.Context, learnerID, topicID string) (*SessionRecord, error)

	// List returns session headers without evidence or transcript.
	List(ctx context.Context) ([]SessionRecord, error)

	// Predictions returns the final level of every finalized session.
	Predictions(ctx context.Context) ([]Prediction, error)

	// Clear deletes every session and returns how many were removed.
	Clear(ctx context.Context) (int, error)
}

// Submission is one scored batch submission.
type Submission struct {
	ID              int
	Timestamp       time.Time
	RunID           string
	SetType         string
	MSE             float64
	PredictionCount int
	Config          string // JSON of the calibration config used
}

// SubmissionRepo keeps the history of scored submissions.
type SubmissionRepo interface {
	Append(ctx context.Context, sub Submission) (int, error)

	// List returns submissions oldest first.
	List(ctx context.Context) ([]Submission, error)
}
