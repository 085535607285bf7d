package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/repository"
)

// ContentService serves section content from the Redis fast lane and falls
// back to PostgreSQL, re-caching what it loads.
type ContentService struct {
	sectionRepo *repository.SectionRepository
	rdb         *redis.Client
	log         zerolog.Logger
}

func NewContentService(sectionRepo *repository.SectionRepository, rdb *redis.Client, log zerolog.Logger) *ContentService {
	return &ContentService{
		sectionRepo: sectionRepo,
		rdb:         rdb,
		log:         logger.Component(log, "content_service"),
	}
}

// GetSectionContent returns the candidate-facing content of a section. A
// missing section or one without a duration is ErrContentUnavailable.
func (s *ContentService) GetSectionContent(ctx context.Context, sectionID string) (*model.SectionContent, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.SectionPayloadKey(sectionID)).Bytes()
	if err == nil {
		var content model.SectionContent
		if err := json.Unmarshal(data, &content); err == nil {
			return &content, nil
		}
		s.log.Warn().Str("section_id", sectionID).Msg("Corrupt cached payload, reloading")
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Str("section_id", sectionID).Msg("Cache read failed, falling back to database")
	}

	content, _, err := s.WarmSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	return content, nil
}

// AnswerKey returns question key → compact JSON of the correct answer.
func (s *ContentService) AnswerKey(ctx context.Context, sectionID string) (map[string]string, error) {
	key, err := s.rdb.HGetAll(ctx, config.CacheKey.SectionAnswerKey(sectionID)).Result()
	if err == nil && len(key) > 0 {
		return key, nil
	}
	if err != nil {
		s.log.Warn().Err(err).Str("section_id", sectionID).Msg("Answer key cache read failed")
	}

	_, key, err = s.WarmSection(ctx, sectionID)
	return key, err
}

// WarmSection loads a section from PostgreSQL into Redis. The cache write
// is best effort; the loaded data is returned either way.
func (s *ContentService) WarmSection(ctx context.Context, sectionID string) (*model.SectionContent, map[string]string, error) {
	section, err := s.sectionRepo.GetByID(ctx, sectionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: section %s not found", model.ErrContentUnavailable, sectionID)
		}
		return nil, nil, fmt.Errorf("%w: load section: %w", model.ErrContentUnavailable, err)
	}
	if section.DurationSeconds <= 0 {
		return nil, nil, fmt.Errorf("%w: section %s has no duration", model.ErrContentUnavailable, sectionID)
	}

	rows, err := s.sectionRepo.ListQuestions(ctx, sectionID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list questions: %w", model.ErrContentUnavailable, err)
	}

	content := &model.SectionContent{
		SectionID:       section.ID,
		Title:           section.Title,
		DurationSeconds: section.DurationSeconds,
		Questions:       make([]model.SectionQuestion, len(rows)),
	}
	answerKey := make(map[string]string, len(rows))
	for i, q := range rows {
		content.Questions[i] = model.SectionQuestion{
			Key:      q.Key,
			Prompt:   q.Prompt,
			Options:  q.Options,
			OrderNum: q.OrderNum,
		}
		answerKey[q.Key] = compactJSON(q.CorrectAnswer)
	}

	payload, err := json.Marshal(content)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.SectionPayloadKey(sectionID), payload, 0)
	pipe.Del(ctx, config.CacheKey.SectionAnswerKey(sectionID))
	if len(answerKey) > 0 {
		pipe.HSet(ctx, config.CacheKey.SectionAnswerKey(sectionID), answerKey)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("section_id", sectionID).Msg("Failed to cache section")
	} else {
		s.log.Debug().Str("section_id", sectionID).Int("questions", len(rows)).Msg("Section cached")
	}

	return content, answerKey, nil
}

// PrewarmAll caches every section at startup.
func (s *ContentService) PrewarmAll(ctx context.Context) error {
	ids, err := s.sectionRepo.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list sections: %w", err)
	}
	if len(ids) == 0 {
		s.log.Info().Msg("No sections to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if _, _, err := s.WarmSection(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("section_id", id).Msg("Failed to warm section, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(ids)).Msg("Prewarming complete")
	return nil
}
