package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/delivery"
	"github.com/sungwon/newsletter/internal/storage"
)

const defaultReconcileInterval = 10 * time.Minute

// Config controls the scheduler service.
type Config struct {
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// Scheduler owns the job registry, the reconciliation loop, and the cron
// trigger that re-runs reconciliation on an interval.
type Scheduler struct {
	cfg        Config
	queries    storage.Querier
	dispatcher delivery.Service
	registry   *Registry
	reconciler *Reconciler
	log        zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	stopRun context.CancelFunc
	runDone chan struct{}
}

// New creates a Scheduler whose jobs hand content to dispatcher when due.
func New(cfg Config, queries storage.Querier, dispatcher delivery.Service, log zerolog.Logger) *Scheduler {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = defaultReconcileInterval
	}

	log = log.With().Str("component", "scheduler").Logger()
	s := &Scheduler{
		cfg:        cfg,
		queries:    queries,
		dispatcher: dispatcher,
		log:        log,
		now:        time.Now,
	}
	s.registry = NewRegistry(s.fire, log)
	s.reconciler = NewReconciler(queries, s.registry, log)
	return s
}

// fire hands content to the dispatcher. Content whose scheduled time moved
// past the job's fire time goes back on the registry instead.
func (s *Scheduler) fire(ctx context.Context, contentID uuid.UUID) {
	content, err := s.queries.GetContentByID(ctx, contentID)
	if err == nil && !content.Sent && content.ScheduledTime.Valid && content.ScheduledTime.Time.After(s.now()) {
		s.registry.Schedule(contentID, content.ScheduledTime.Time)
		s.log.Info().
			Stringer("content_id", contentID).
			Time("fire_at", content.ScheduledTime.Time.UTC()).
			Msg("content not due yet, rescheduled")
		return
	}
	if err != nil && !storage.IsNotFound(err) {
		s.log.Warn().Err(err).
			Stringer("content_id", contentID).
			Msg("could not check scheduled time, dispatching")
	}

	if err := s.dispatcher.DeliverContent(ctx, contentID); err != nil {
		s.log.Error().Err(err).
			Stringer("content_id", contentID).
			Msg("scheduled delivery failed")
	}
}

// Start launches the registry loop, runs one reconciliation, and starts the
// reconciliation interval. A failed initial reconciliation is logged and
// retried on the next tick.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.registry.Run(runCtx)
	}()

	if n, err := s.reconciler.Reconcile(ctx); err != nil {
		s.log.Error().Err(err).Msg("initial reconciliation failed")
	} else {
		s.log.Info().Int("jobs", n).Msg("initial reconciliation complete")
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.ReconcileInterval)
	if _, err := c.AddFunc(spec, s.reconcileTick); err != nil {
		cancel()
		<-done
		return fmt.Errorf("register reconcile interval: %w", err)
	}
	c.Start()

	s.cron = c
	s.stopRun = cancel
	s.runDone = done

	s.log.Info().Dur("interval", s.cfg.ReconcileInterval).Msg("scheduler started")
	return nil
}

func (s *Scheduler) reconcileTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ReconcileInterval)
	defer cancel()
	if _, err := s.reconciler.Reconcile(ctx); err != nil {
		s.log.Error().Err(err).Msg("reconciliation failed")
	}
}

// Stop halts the interval and the registry, then waits for in-flight
// deliveries until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c, cancel, done := s.cron, s.stopRun, s.runDone
	s.cron, s.stopRun, s.runDone = nil, nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	cancel()
	<-done

	if err := s.registry.Drain(ctx); err != nil {
		s.log.Warn().Err(err).Msg("in-flight deliveries cancelled at shutdown")
	}
	s.log.Info().Dur("took", time.Since(start)).Msg("scheduler stopped")
}

// Schedule installs or replaces the job for contentID.
func (s *Scheduler) Schedule(contentID uuid.UUID, fireAt time.Time) {
	s.registry.Schedule(contentID, fireAt)
	s.log.Debug().
		Stringer("content_id", contentID).
		Time("fire_at", fireAt.UTC()).
		Msg("job scheduled")
}

// Cancel removes the pending job for contentID, if any.
func (s *Scheduler) Cancel(contentID uuid.UUID) bool {
	removed := s.registry.Cancel(contentID)
	s.log.Debug().
		Stringer("content_id", contentID).
		Bool("removed", removed).
		Msg("job cancelled")
	return removed
}

// Pending returns the pending jobs ordered by fire time.
func (s *Scheduler) Pending() []Job {
	return s.registry.Pending()
}

// Reconcile runs a reconciliation pass immediately.
func (s *Scheduler) Reconcile(ctx context.Context) (int, error) {
	return s.reconciler.Reconcile(ctx)
}
