package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/database"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/model"
	"github.com/stemsi/exstem-mock/internal/repository"
	"github.com/stemsi/exstem-mock/internal/service"
)

type seedSection struct {
	section   model.Section
	questions []model.SectionQuestionRow
}

func question(key, prompt string, options []string, answer string, order int) model.SectionQuestionRow {
	opts, _ := json.Marshal(options)
	ans, _ := json.Marshal(answer)
	return model.SectionQuestionRow{
		Key:           key,
		Prompt:        prompt,
		Options:       opts,
		CorrectAnswer: ans,
		OrderNum:      order,
	}
}

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	sectionRepo := repository.NewSectionRepository(pool)
	contentService := service.NewContentService(sectionRepo, rdb, log)

	seeds := []seedSection{
		{
			section: model.Section{ID: "listening-1", Title: "Listening Comprehension", DurationSeconds: 1200},
			questions: []model.SectionQuestionRow{
				question("l1", "Where does the conversation take place?", []string{"A. Library", "B. Station", "C. Market", "D. School"}, "B", 1),
				question("l2", "What will the man do next?", []string{"A. Buy a ticket", "B. Call a friend", "C. Wait", "D. Leave"}, "A", 2),
			},
		},
		{
			section: model.Section{ID: "reading-1", Title: "Reading Comprehension", DurationSeconds: 1800},
			questions: []model.SectionQuestionRow{
				question("r1", "What is the main idea of the passage?", []string{"A", "B", "C", "D"}, "C", 1),
				question("r2", "The word \"scarce\" is closest in meaning to", []string{"A. rare", "B. cheap", "C. large", "D. new"}, "A", 2),
				question("r3", "Which statement is NOT mentioned?", []string{"A", "B", "C", "D"}, "D", 3),
			},
		},
		{
			section: model.Section{ID: "structure-1", Title: "Structure and Written Expression", DurationSeconds: 900},
			questions: []model.SectionQuestionRow{
				question("s1", "She ___ to school every day.", []string{"A. go", "B. goes", "C. going", "D. gone"}, "B", 1),
			},
		},
	}

	fmt.Printf("=== Seeding %d Sections ===\n", len(seeds))

	successCount := 0
	for i := range seeds {
		s := &seeds[i]
		if err := sectionRepo.Upsert(ctx, &s.section, s.questions); err != nil {
			fmt.Printf("Error seeding section %s: %v\n", s.section.ID, err)
			continue
		}
		// Refresh the cache so running servers see the new content.
		if _, _, err := contentService.WarmSection(ctx, s.section.ID); err != nil {
			fmt.Printf("Seeded %s but cache warm failed: %v\n", s.section.ID, err)
		}
		successCount++
		fmt.Printf("Seeded %s (%d questions, %ds)\n", s.section.ID, len(s.questions), s.section.DurationSeconds)
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d sections.\n", successCount, len(seeds))
}
