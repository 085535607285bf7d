package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/repository"
)

var ErrAttemptNotFound = errors.New("attempt not found")

// ScoringService grades submissions against the cached answer key and
// stores every attempt.
type ScoringService struct {
	content     *ContentService
	attemptRepo *repository.AttemptRepository
	log         zerolog.Logger
}

func NewScoringService(content *ContentService, attemptRepo *repository.AttemptRepository, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		content:     content,
		attemptRepo: attemptRepo,
		log:         logger.Component(log, "scoring_service"),
	}
}

// ScoreAndPersist grades the answers and inserts a new attempt. Every call
// gets a fresh attempt id.
func (s *ScoringService) ScoreAndPersist(ctx context.Context, req model.ScoreRequest) (*model.SubmissionResult, error) {
	key, err := s.content.AnswerKey(ctx, req.SectionID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	correct := countCorrect(key, req.Answers)
	total := len(key)

	attempt := &model.SectionAttempt{
		ID:               uuid.New(),
		SectionID:        req.SectionID,
		CandidateID:      req.CandidateID,
		Answers:          req.Answers,
		CorrectCount:     correct,
		TotalCount:       total,
		Score:            percent(correct, total),
		TimeTakenSeconds: req.TimeTakenSeconds,
		EarlyExit:        req.EarlyExit,
	}
	if req.MockID != "" {
		mockID := req.MockID
		attempt.MockID = &mockID
	}

	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("persist attempt: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("section_id", req.SectionID).
		Int("candidate_id", req.CandidateID).
		Int("correct", correct).
		Int("total", total).
		Msg("Attempt scored")

	return &model.SubmissionResult{
		AttemptID:        attempt.ID.String(),
		Score:            attempt.Score,
		CorrectCount:     correct,
		TotalCount:       total,
		TimeTakenSeconds: req.TimeTakenSeconds,
		EarlyExit:        req.EarlyExit,
	}, nil
}

// ReviewRecord loads a stored attempt of the candidate for read-only review.
func (s *ScoringService) ReviewRecord(ctx context.Context, attemptID uuid.UUID, candidateID int, sectionID string) (*model.ReviewRecord, error) {
	a, err := s.attemptRepo.GetForCandidate(ctx, attemptID, candidateID, sectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, err
	}
	return &model.ReviewRecord{AttemptID: a.ID.String(), Answers: a.Answers}, nil
}

// countCorrect compares each answer with the key as compact JSON.
func countCorrect(key map[string]string, answers map[string]json.RawMessage) int {
	n := 0
	for q, want := range key {
		got, ok := answers[q]
		if ok && compactJSON(got) == want {
			n++
		}
	}
	return n
}

func percent(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)/float64(total)*10000) / 100
}

func compactJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
