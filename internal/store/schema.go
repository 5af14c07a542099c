package store

import (
	"context"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

// Table names.
const (
	tableSessions    = "sessions"
	tableEvidence    = "evidence"
	tableMessages    = "messages"
	tableLLMEvents   = "llm_request_events"
	tableSubmissions = "submissions"
)

var (
	sessionColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "run_id", Type: field.TypeString, Default: ""},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "topic_name", Type: field.TypeString, Default: ""},
		{Name: "conversation_id", Type: field.TypeString, Default: ""},
		{Name: "turn_count", Type: field.TypeInt, Default: 0},
		{Name: "current_level", Type: field.TypeInt},
		{Name: "current_confidence", Type: field.TypeFloat64, Default: 0},
		{Name: "promotion_streak", Type: field.TypeInt, Default: 0},
		{Name: "phase", Type: field.TypeString},
		{Name: "frozen", Type: field.TypeBool, Default: false},
		{Name: "freeze_reason", Type: field.TypeString},
		{Name: "final_level", Type: field.TypeInt, Default: 0},
		{Name: "error", Type: field.TypeString, Default: ""},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "updated_at", Type: field.TypeTime},
	}
	sessionsTable = &schema.Table{
		Name:       tableSessions,
		Columns:    sessionColumns,
		PrimaryKey: []*schema.Column{sessionColumns[0]},
		Indexes: []*schema.Index{
			{Name: "session_learner_topic", Unique: true, Columns: []*schema.Column{sessionColumns[2], sessionColumns[3]}},
			{Name: "session_run", Columns: []*schema.Column{sessionColumns[1]}},
		},
	}

	evidenceColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "turn", Type: field.TypeInt},
		{Name: "is_correct", Type: field.TypeBool},
		{Name: "reasoning_score", Type: field.TypeInt},
		{Name: "misconception", Type: field.TypeString, Default: ""},
		{Name: "suggested_level", Type: field.TypeInt},
		{Name: "raw_confidence", Type: field.TypeFloat64},
		{Name: "decided_level", Type: field.TypeInt},
		{Name: "smoothed_confidence", Type: field.TypeFloat64},
		{Name: "corroborated", Type: field.TypeBool, Default: false},
		{Name: "overridden", Type: field.TypeBool, Default: false},
		{Name: "degraded", Type: field.TypeBool, Default: false},
	}
	evidenceTable = &schema.Table{
		Name:       tableEvidence,
		Columns:    evidenceColumns,
		PrimaryKey: []*schema.Column{evidenceColumns[0]},
		Indexes: []*schema.Index{
			{Name: "evidence_learner_topic_turn", Unique: true, Columns: []*schema.Column{evidenceColumns[1], evidenceColumns[2], evidenceColumns[3]}},
		},
	}

	messageColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "learner_id", Type: field.TypeString},
		{Name: "topic_id", Type: field.TypeString},
		{Name: "position", Type: field.TypeInt},
		{Name: "role", Type: field.TypeString},
		{Name: "content", Type: field.TypeString, Size: 1 << 20},
	}
	messagesTable = &schema.Table{
		Name:       tableMessages,
		Columns:    messageColumns,
		PrimaryKey: []*schema.Column{messageColumns[0]},
		Indexes: []*schema.Index{
			{Name: "message_learner_topic_position", Unique: true, Columns: []*schema.Column{messageColumns[1], messageColumns[2], messageColumns[3]}},
		},
	}

	llmEventColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "provider", Type: field.TypeString},
		{Name: "model", Type: field.TypeString},
		{Name: "purpose", Type: field.TypeString},
		{Name: "input_tokens", Type: field.TypeInt, Default: 0},
		{Name: "output_tokens", Type: field.TypeInt, Default: 0},
		{Name: "latency_ms", Type: field.TypeInt64, Default: 0},
		{Name: "success", Type: field.TypeBool},
		{Name: "error_message", Type: field.TypeString, Default: ""},
		{Name: "request_body", Type: field.TypeString, Size: 1 << 20, Default: ""},
		{Name: "response_body", Type: field.TypeString, Size: 1 << 20, Default: ""},
	}
	llmEventsTable = &schema.Table{
		Name:       tableLLMEvents,
		Columns:    llmEventColumns,
		PrimaryKey: []*schema.Column{llmEventColumns[0]},
		Indexes: []*schema.Index{
			{Name: "llmrequestevent_purpose", Columns: []*schema.Column{llmEventColumns[5]}},
			{Name: "llmrequestevent_timestamp", Columns: []*schema.Column{llmEventColumns[2]}},
		},
	}

	submissionColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "timestamp", Type: field.TypeTime},
		{Name: "run_id", Type: field.TypeString, Default: ""},
		{Name: "set_type", Type: field.TypeString},
		{Name: "mse_score", Type: field.TypeFloat64},
		{Name: "prediction_count", Type: field.TypeInt},
		{Name: "config", Type: field.TypeString, Size: 1 << 16, Default: ""},
	}
	submissionsTable = &schema.Table{
		Name:       tableSubmissions,
		Columns:    submissionColumns,
		PrimaryKey: []*schema.Column{submissionColumns[0]},
		Indexes: []*schema.Index{
			{Name: "submission_timestamp", Columns: []*schema.Column{submissionColumns[1]}},
		},
	}

	tables = []*schema.Table{sessionsTable, evidenceTable, messagesTable, llmEventsTable, submissionsTable}
)

// migrate creates or extends every table. Migration is append-only: new
// columns and indexes are added, nothing is dropped.
func migrate(ctx context.Context, drv *entsql.Driver) error {
	m, err := schema.NewMigrate(drv, schema.WithForeignKeys(false))
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Create(ctx, tables...); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// columnNames returns the names of cols, skipping the auto-increment id.
func columnNames(cols []*schema.Column) []string {
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		if c.Increment {
			continue
		}
		names = append(names, c.Name)
	}
	return names
}
