package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cryptexam/cryptexam-backend/internal/config"
	"github.com/cryptexam/cryptexam-backend/internal/contentstore"
	"github.com/cryptexam/cryptexam-backend/internal/database"
	"github.com/cryptexam/cryptexam-backend/internal/handler"
	"github.com/cryptexam/cryptexam-backend/internal/logger"
	"github.com/cryptexam/cryptexam-backend/internal/notifier"
	"github.com/cryptexam/cryptexam-backend/internal/repository"
	"github.com/cryptexam/cryptexam-backend/internal/router"
	"github.com/cryptexam/cryptexam-backend/internal/service"
	"github.com/cryptexam/cryptexam-backend/internal/validator"
	"github.com/cryptexam/cryptexam-backend/internal/vault"
	"github.com/cryptexam/cryptexam-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting CryptExam Backend")

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

	// ─── Distribution Store ────────────────────────────────────────────
	// The pinning service carries published ciphertext only; without
	// credentials an in-process store keeps development working.
	var store contentstore.Store
	if cfg.PinJWT != "" {
		store = contentstore.NewPinStore(cfg.PinAPIURL, cfg.PinGatewayURL, cfg.PinJWT, cfg.PinTimeout, log)
	} else {
		log.Warn().Msg("PIN_JWT not set, using in-memory distribution store")
		store = contentstore.NewMemoryStore()
	}
	contentVault := vault.New(store, log)

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	sessionRepo := repository.NewExamSessionRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	userService := service.NewUserService(userRepo, authService)
	notifyQueue := service.NewRedisNotifyQueue(rdb)
	eventSink := service.NewRedisEventSink(rdb, log)
	examService := service.NewExamService(examRepo, contentVault, notifyQueue, log)
	sessionService := service.NewExamSessionService(sessionRepo, examRepo, contentVault, eventSink, cfg, log)
	releaseService := service.NewReleaseService(examRepo, sessionRepo, notifyQueue, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, userService),
		Exam:    handler.NewExamHandler(examService, releaseService),
		Admin:   handler.NewAdminHandler(examService, userService, authService),
		Attempt: handler.NewAttemptHandler(sessionService, releaseService),
		Monitor: handler.NewMonitorHandler(rdb, examService, log, cfg.AllowedOrigins),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	notifyWorker := worker.NewNotifyWorker(rdb, notifier.NewSMTPNotifier(cfg, log), cfg, log)
	timeoutWorker := worker.NewTimeoutWorker(sessionService, log)

	go notifyWorker.Start(workerCtx)
	go timeoutWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}
