package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/repository"
)

const (
	statusPollTimeout = time.Second
	statusRetryDelay  = 5 * time.Second
)

// ExamStatusWorker consumes persist_exam_status_queue and UPSERTs the status
// rows in PostgreSQL.
type ExamStatusWorker struct {
	repo *repository.ExamStatusRepository
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewExamStatusWorker(repo *repository.ExamStatusRepository, rdb *redis.Client, log zerolog.Logger) *ExamStatusWorker {
	return &ExamStatusWorker{
		repo: repo,
		rdb:  rdb,
		log:  logger.Component(log, "exam_status_worker"),
	}
}

// Start runs until ctx is done, then drains the queue. Call in a goroutine.
func (w *ExamStatusWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *ExamStatusWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, statusPollTimeout, config.WorkerKey.PersistExamStatusQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var ev model.ExamStatusEvent
	if err := json.Unmarshal([]byte(result[1]), &ev); err != nil {
		w.log.Error().Err(err).Msg("Unmarshal error, dropping event")
		return
	}

	if err := w.persist(ctx, &ev); err != nil {
		w.log.Error().Err(err).
			Int("candidate_id", ev.CandidateID).
			Str("exam_id", ev.ExamID).
			Msg("Persist error, retrying in 5s")
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistExamStatusQueue, result[1])

		select {
		case <-ctx.Done():
		case <-time.After(statusRetryDelay):
		}
	}
}

func (w *ExamStatusWorker) persist(ctx context.Context, ev *model.ExamStatusEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return w.repo.Upsert(ctx, ev.ExamID, ev.CandidateID, ev.Status, at)
}

// drain persists what is left in the queue before shutdown.
func (w *ExamStatusWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistExamStatusQueue).Result()
		if err != nil {
			break
		}

		var ev model.ExamStatusEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &ev); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistExamStatusQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
