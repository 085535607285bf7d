package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-mock/internal/model"
)

// AttemptRepository stores scored section submissions.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a scored attempt and fills in SubmittedAt.
func (r *AttemptRepository) Create(ctx context.Context, a *model.SectionAttempt) error {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	return r.pool.QueryRow(ctx,
		`INSERT INTO section_attempts
		   (id, section_id, candidate_id, mock_id, answers, correct_count, total_count, score, time_taken_seconds, early_exit)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING submitted_at`,
		a.ID, a.SectionID, a.CandidateID, a.MockID, answers,
		a.CorrectCount, a.TotalCount, a.Score, a.TimeTakenSeconds, a.EarlyExit,
	).Scan(&a.SubmittedAt)
}

// GetForCandidate returns an attempt only if it belongs to the candidate
// and the section.
func (r *AttemptRepository) GetForCandidate(ctx context.Context, id uuid.UUID, candidateID int, sectionID string) (*model.SectionAttempt, error) {
	a := &model.SectionAttempt{}
	var answers []byte

	err := r.pool.QueryRow(ctx,
		`SELECT id, section_id, candidate_id, mock_id, answers, correct_count, total_count,
		        score, time_taken_seconds, early_exit, submitted_at
		 FROM section_attempts
		 WHERE id = $1 AND candidate_id = $2 AND section_id = $3`,
		id, candidateID, sectionID,
	).Scan(&a.ID, &a.SectionID, &a.CandidateID, &a.MockID, &answers, &a.CorrectCount, &a.TotalCount,
		&a.Score, &a.TimeTakenSeconds, &a.EarlyExit, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(answers, &a.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return a, nil
}
