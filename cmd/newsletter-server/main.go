package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sungwon/newsletter/internal/api"
	"github.com/sungwon/newsletter/internal/bootstrap"
	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/delivery"
	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/scheduler"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/internal/worker"
)

const poolStatsInterval = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "newsletter-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load("config")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
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
	log.Info().Str("delivery_mode", cfg.Delivery.Mode).Msg("starting newsletter server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.ConnectDatabase(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info().Msg("database connection established")

	queries := storage.New(db.Pool)

	executor, err := bootstrap.NewExecutor(cfg, queries, log)
	if err != nil {
		return err
	}

	// Fired jobs either run the executor in-process or publish to Redis.
	var (
		dispatcher delivery.Service
		dequeuer   queue.Dequeuer
	)
	switch cfg.Delivery.Mode {
	case config.DeliveryModeAsync:
		client, err := queue.NewRedisClient(ctx, cfg.Queue)
		if err != nil {
			return err
		}
		defer client.Close()

		var handler queue.MessageHandler
		if cfg.Queue.EmbeddedWorkers {
			handler = worker.NewHandler(executor, log)
		}
		enqueuer, dq := queue.NewQueue(client, cfg.Queue, handler, log, "server")
		dispatcher = delivery.NewAsyncService(enqueuer, log)
		dequeuer = dq
	default:
		dispatcher = delivery.NewSyncService(executor, log)
	}

	sched := scheduler.New(cfg.Scheduler, queries, dispatcher, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	if dequeuer != nil {
		if err := dequeuer.Start(ctx); err != nil {
			return fmt.Errorf("start embedded workers: %w", err)
		}
		log.Info().Int("workers", cfg.Queue.WorkerCount).Msg("embedded queue workers started")
	}

	srv := &http.Server{
		Addr:         cfg.API.Addr(),
		Handler:      api.NewRouter(queries, db, sched, log),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		bootstrap.ReportPoolStats(gCtx, db, poolStatsInterval)
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.API.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server forced to shutdown")
		}

		schedCtx, cancelSched := context.WithTimeout(context.WithoutCancel(ctx), cfg.Scheduler.ShutdownTimeout)
		defer cancelSched()
		sched.Stop(schedCtx)

		if dequeuer != nil {
			if err := dequeuer.Stop(schedCtx); err != nil {
				log.Error().Err(err).Msg("queue workers did not stop cleanly")
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
