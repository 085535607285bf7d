package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
)

// ExamStatusService queues exam status changes for the ExamStatusWorker.
type ExamStatusService struct {
	rdb *redis.Client
	log zerolog.Logger
	now func() time.Time
}

func NewExamStatusService(rdb *redis.Client, log zerolog.Logger) *ExamStatusService {
	return &ExamStatusService{
		rdb: rdb,
		log: logger.Component(log, "exam_status_service"),
		now: time.Now,
	}
}

// SetExamStatus pushes the change to persist_exam_status_queue.
func (s *ExamStatusService) SetExamStatus(ctx context.Context, examID string, candidateID int, status model.ExamStatus) error {
	raw, err := json.Marshal(model.ExamStatusEvent{
		ExamID:      examID,
		CandidateID: candidateID,
		Status:      status,
		At:          s.now(),
	})
	if err != nil {
		return err
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistExamStatusQueue, raw).Err(); err != nil {
		return fmt.Errorf("queue exam status: %w", err)
	}

	s.log.Debug().
		Str("exam_id", examID).
		Int("candidate_id", candidateID).
		Str("status", string(status)).
		Msg("Exam status queued")
	return nil
}
