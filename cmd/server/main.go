package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stemsi/exstem-mock/internal/config"
	"github.com/stemsi/exstem-mock/internal/database"
	"github.com/stemsi/exstem-mock/internal/handler"
	"github.com/stemsi/exstem-mock/internal/logger"
	"github.com/stemsi/exstem-mock/internal/middleware"
	"github.com/stemsi/exstem-mock/internal/registry"
	"github.com/stemsi/exstem-mock/internal/repository"
	"github.com/stemsi/exstem-mock/internal/router"
	"github.com/stemsi/exstem-mock/internal/service"
	"github.com/stemsi/exstem-mock/internal/validator"
	"github.com/stemsi/exstem-mock/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Msg("Starting ExStem Mock")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Open Progress Store ───────────────────────────────────────────
	progressStore, err := database.OpenStore(cfg, rdb, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open progress store")
	}
	defer progressStore.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	sectionRepo := repository.NewSectionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)
	statusRepo := repository.NewExamStatusRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg)
	contentService := service.NewContentService(sectionRepo, rdb, log)
	scoringService := service.NewScoringService(contentService, attemptRepo, log)
	examStatusService := service.NewExamStatusService(rdb, log)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all sections into Redis BEFORE accepting traffic.
	if err := contentService.PrewarmAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Section Registry ─────────────────────────────────────────────
	reg := registry.New(registry.Deps{
		Store:      progressStore,
		Content:    contentService,
		Scorer:     scoringService,
		ExamStatus: examStatusService,
		Log:        log,
	}, registry.Options{
		TickInterval:       cfg.TickInterval,
		FlushInterval:      cfg.FlushInterval,
		PollInterval:       cfg.PollInterval,
		StartOnFirstAnswer: cfg.StartOnFirstAnswer,
	})
	reg.Start()

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workers, workerCtx := errgroup.WithContext(workerCtx)

	statusWorker := worker.NewExamStatusWorker(statusRepo, rdb, log)
	workers.Go(func() error {
		statusWorker.Start(workerCtx)
		return nil
	})

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Section: handler.NewSectionHandler(reg, scoringService),
		Mock:    handler.NewMockHandler(reg),
		WS:      handler.NewWSHandler(reg, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(
			map[string]handler.HealthCheck{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			reg,
			func(ctx context.Context) (int64, error) {
				return rdb.LLen(ctx, config.WorkerKey.PersistExamStatusQueue).Result()
			},
			log,
		),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	limiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute, time.Minute)
	r := router.SetupRouter(authService, limiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 1. Stop accepting new HTTP requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Checkpoint every mounted section before the store closes.
	if err := reg.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Registry shutdown error")
	}

	// 3. Stop background workers and wait for the queue to drain.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
