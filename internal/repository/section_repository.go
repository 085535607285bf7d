package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-mock/internal/model"
)

// SectionRepository reads and seeds section content.
type SectionRepository struct {
	pool *pgxpool.Pool
}

func NewSectionRepository(pool *pgxpool.Pool) *SectionRepository {
	return &SectionRepository{pool: pool}
}

// GetByID returns pgx.ErrNoRows when the section does not exist.
func (r *SectionRepository) GetByID(ctx context.Context, id string) (*model.Section, error) {
	s := &model.Section{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_seconds, created_at
		 FROM sections
		 WHERE id = $1`, id,
	).Scan(&s.ID, &s.Title, &s.DurationSeconds, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListIDs returns every section id, used to prewarm the cache.
func (r *SectionRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM sections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListQuestions returns the questions of a section with their answers, in
// display order.
func (r *SectionRepository) ListQuestions(ctx context.Context, sectionID string) ([]model.SectionQuestionRow, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, section_id, question_key, prompt, options, correct_answer, order_num
		 FROM section_questions
		 WHERE section_id = $1
		 ORDER BY order_num`, sectionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.SectionQuestionRow
	for rows.Next() {
		var q model.SectionQuestionRow
		if err := rows.Scan(&q.ID, &q.SectionID, &q.Key, &q.Prompt, &q.Options, &q.CorrectAnswer, &q.OrderNum); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Upsert creates or updates a section together with its questions in one
// transaction.
func (r *SectionRepository) Upsert(ctx context.Context, s *model.Section, questions []model.SectionQuestionRow) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sections (id, title, duration_seconds)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title, duration_seconds = EXCLUDED.duration_seconds`,
		s.ID, s.Title, s.DurationSeconds)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `DELETE FROM section_questions WHERE section_id = $1`, s.ID); err != nil {
		return err
	}

	for _, q := range questions {
		_, err := tx.Exec(ctx,
			`INSERT INTO section_questions (section_id, question_key, prompt, options, correct_answer, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, q.Key, q.Prompt, q.Options, q.CorrectAnswer, q.OrderNum)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
