package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/newsletter/internal/bootstrap"
	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/worker"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, closer := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		FilePath:  cfg.Logging.FilePath,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	})
	defer closer.Close()
	log.Info().Msg("starting queue worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.ConnectDatabase(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	queries := storage.New(db.Pool)

	executor, err := bootstrap.NewExecutor(cfg, queries, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure provider")
	}

	client, err := queue.NewRedisClient(ctx, cfg.Queue)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer client.Close()

	hostname, _ := os.Hostname()
	_, dequeuer := queue.NewQueue(client, cfg.Queue, worker.NewHandler(executor, log), log, "worker-"+hostname)
	if err := dequeuer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker pool")
	}
	log.Info().
		Int("workers", cfg.Queue.WorkerCount).
		Str("stream", cfg.Queue.StreamName).
		Str("group", cfg.Queue.GroupName).
		Msg("queue worker pool started")

	go bootstrap.ReportPoolStats(ctx, db, 15*time.Second)

	<-ctx.Done()
	log.Info().Msg("shutting down queue worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout)
	defer cancel()

	if err := dequeuer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker pool did not stop cleanly")
	}

	log.Info().Msg("queue worker stopped")
}
