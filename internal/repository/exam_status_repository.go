package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-mock/internal/model"
)

// ExamStatusRepository tracks whether a candidate started or finished a mock
// exam.
type ExamStatusRepository struct {
	pool *pgxpool.Pool
}

func NewExamStatusRepository(pool *pgxpool.Pool) *ExamStatusRepository {
	return &ExamStatusRepository{pool: pool}
}

// Upsert records a status change. A completed exam never goes back to
// started, so a late "started" event cannot undo it.
func (r *ExamStatusRepository) Upsert(ctx context.Context, examID string, candidateID int, status model.ExamStatus, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO mock_exam_status (exam_id, candidate_id, status, started_at, completed_at)
		 VALUES ($1, $2, $3,
		         CASE WHEN $3 = 'started' THEN $4::timestamptz END,
		         CASE WHEN $3 = 'completed' THEN $4::timestamptz END)
		 ON CONFLICT (exam_id, candidate_id) DO UPDATE
		 SET status = CASE WHEN mock_exam_status.status = 'completed' THEN 'completed' ELSE EXCLUDED.status END,
		     started_at = COALESCE(mock_exam_status.started_at, EXCLUDED.started_at),
		     completed_at = COALESCE(mock_exam_status.completed_at, EXCLUDED.completed_at),
		     updated_at = NOW()`,
		examID, candidateID, string(status), at)
	return err
}
