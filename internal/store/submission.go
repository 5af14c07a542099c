package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

type submissionRepo struct {
	db *sql.DB
}

func (r *submissionRepo) Append(ctx context.Context, sub Submission) (int, error) {
	if sub.Timestamp.IsZero() {
		sub.Timestamp = time.Now().UTC()
	}

	query, args := builder().Insert(tableSubmissions).
		Columns(columnNames(submissionColumns)...).
		Values(sub.Timestamp, sub.RunID, sub.SetType, sub.MSE, sub.PredictionCount, sub.Config).
		Returning("id").
		Query()

	var id int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("save submission: %w", err)
	}
	return id, nil
}

func (r *submissionRepo) List(ctx context.Context) ([]Submission, error) {
	query, args := builder().Select("id", "timestamp", "run_id", "set_type", "mse_score", "prediction_count", "config").
		From(entsql.Table(tableSubmissions)).
		OrderBy("timestamp", "id").
		Query()

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var s Submission
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.RunID, &s.SetType, &s.MSE, &s.PredictionCount, &s.Config); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
