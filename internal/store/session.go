package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// sessionRepo implements SessionRepo. Each session's evidence and
// transcript rows are rewritten together with the header in a single
// transaction, so a reader never sees a half-saved session.
type sessionRepo struct {
	db *sql.DB
}

var sessionSelectColumns = []string{
	"run_id", "learner_id", "topic_id", "topic_name", "conversation_id",
	"turn_count", "current_level", "current_confidence", "promotion_streak",
	"phase", "frozen", "freeze_reason", "final_level", "error",
	"created_at", "updated_at",
}

func (r *sessionRepo) Save(ctx context.Context, rec SessionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query, args := builder().Insert(tableSessions).
		Columns(columnNames(sessionColumns)...).
		Values(
			rec.RunID, rec.LearnerID, rec.TopicID, rec.TopicName, rec.ConversationID,
			rec.TurnCount, rec.CurrentLevel, rec.CurrentConfidence, rec.PromotionStreak,
			rec.Phase, rec.Frozen, rec.FreezeReason, rec.FinalLevel, rec.Error,
			rec.CreatedAt, rec.UpdatedAt,
		).
		OnConflict(
			entsql.ConflictColumns("learner_id", "topic_id"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				for _, c := range columnNames(sessionColumns) {
					if c != "created_at" {
						u.SetExcluded(c)
					}
				}
			}),
		).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert session %s/%s: %w", rec.LearnerID, rec.TopicID, err)
	}

	if err := replaceEvidence(ctx, tx, rec); err != nil {
		return err
	}
	if err := replaceTranscript(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s/%s: %w", rec.LearnerID, rec.TopicID, err)
	}
	return nil
}

func replaceEvidence(ctx context.Context, tx *sql.Tx, rec SessionRecord) error {
	query, args := builder().Delete(tableEvidence).
		Where(sessionKey(rec.LearnerID, rec.TopicID)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear evidence: %w", err)
	}
	if len(rec.Evidence) == 0 {
		return nil
	}

	ins := builder().Insert(tableEvidence).Columns(columnNames(evidenceColumns)...)
	for _, ev := range rec.Evidence {
		ins.Values(
			rec.LearnerID, rec.TopicID, ev.Turn, ev.IsCorrect, ev.ReasoningScore,
			ev.Misconception, ev.SuggestedLevel, ev.RawConfidence, ev.DecidedLevel,
			ev.SmoothedConfidence, ev.Corroborated, ev.Overridden, ev.Degraded,
		)
	}
	query, args = ins.Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert evidence: %w", err)
	}
	return nil
}

func replaceTranscript(ctx context.Context, tx *sql.Tx, rec SessionRecord) error {
	query, args := builder().Delete(tableMessages).
		Where(sessionKey(rec.LearnerID, rec.TopicID)).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("clear transcript: %w", err)
	}
	if len(rec.Transcript) == 0 {
		return nil
	}

	ins := builder().Insert(tableMessages).Columns(columnNames(messageColumns)...)
	for i, m := range rec.Transcript {
		ins.Values(rec.LearnerID, rec.TopicID, i, m.Role, m.Content)
	}
	query, args = ins.Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert transcript: %w", err)
	}
	return nil
}

func (r *sessionRepo) Load(ctx context.Context, learnerID, topicID string) (*SessionRecord, error) {
	query, args := builder().Select(sessionSelectColumns...).
		From(entsql.Table(tableSessions)).
		Where(sessionKey(learnerID, topicID)).
		Query()

	rec, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s/%s: %w", learnerID, topicID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if rec.Evidence, err = r.loadEvidence(ctx, learnerID, topicID); err != nil {
		return nil, err
	}
	if rec.Transcript, err = r.loadTranscript(ctx, learnerID, topicID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *sessionRepo) loadEvidence(ctx context.Context, learnerID, topicID string) ([]EvidenceRecord, error) {
	query, args := builder().Select(
		"turn", "is_correct", "reasoning_score", "misconception", "suggested_level",
		"raw_confidence", "decided_level", "smoothed_confidence",
		"corroborated", "overridden", "degraded",
	).
		From(entsql.Table(tableEvidence)).
		Where(sessionKey(learnerID, topicID)).
		OrderBy("turn").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query evidence: %w", err)
	}
	defer rows.Close()

	var out []EvidenceRecord
	for rows.Next() {
		var ev EvidenceRecord
		if err := rows.Scan(
			&ev.Turn, &ev.IsCorrect, &ev.ReasoningScore, &ev.Misconception, &ev.SuggestedLevel,
			&ev.RawConfidence, &ev.DecidedLevel, &ev.SmoothedConfidence,
			&ev.Corroborated, &ev.Overridden, &ev.Degraded,
		); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *sessionRepo) loadTranscript(ctx context.Context, learnerID, topicID string) ([]MessageRecord, error) {
	query, args := builder().Select("role", "content").
		From(entsql.Table(tableMessages)).
		Where(sessionKey(learnerID, topicID)).
		OrderBy("position").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transcript: %w", err)
	}
	defer rows.Close()

	var out []MessageRecord
	for rows.Next() {
		var m MessageRecord
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *sessionRepo) List(ctx context.Context) ([]SessionRecord, error) {
	query, args := builder().Select(sessionSelectColumns...).
		From(entsql.Table(tableSessions)).
		OrderBy("learner_id", "topic_id").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *sessionRepo) Predictions(ctx context.Context) ([]Prediction, error) {
	query, args := builder().Select("learner_id", "topic_id", "final_level").
		From(entsql.Table(tableSessions)).
		Where(entsql.GT("final_level", 0)).
		OrderBy("learner_id", "topic_id").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []Prediction
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.LearnerID, &p.TopicID, &p.Level); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *sessionRepo) Clear(ctx context.Context) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var removed int64
	for _, table := range []string{tableEvidence, tableMessages, tableSessions} {
		query, args := builder().Delete(table).Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
		if table == tableSessions {
			removed, _ = res.RowsAffected()
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear: %w", err)
	}
	return int(removed), nil
}

func sessionKey(learnerID, topicID string) *entsql.Predicate {
	return entsql.And(entsql.EQ("learner_id", learnerID), entsql.EQ("topic_id", topicID))
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	var rec SessionRecord
	err := row.Scan(
		&rec.RunID, &rec.LearnerID, &rec.TopicID, &rec.TopicName, &rec.ConversationID,
		&rec.TurnCount, &rec.CurrentLevel, &rec.CurrentConfidence, &rec.PromotionStreak,
		&rec.Phase, &rec.Frozen, &rec.FreezeReason, &rec.FinalLevel, &rec.Error,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &rec, nil
}
