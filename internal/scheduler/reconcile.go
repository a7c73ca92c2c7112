package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/storage"
)

// Reconciler rebuilds the registry from the unsent contents in the database.
type Reconciler struct {
	queries  storage.Querier
	registry *Registry
	log      zerolog.Logger
	now      func() time.Time
}

// NewReconciler creates a Reconciler that installs jobs into registry.
func NewReconciler(queries storage.Querier, registry *Registry, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		queries:  queries,
		registry: registry,
		log:      log,
		now:      time.Now,
	}
}

// Reconcile installs one job per unsent content and returns how many were
// installed. Overdue content fires immediately; future content keeps its
// scheduled time. Jobs for content that is no longer unsent are cancelled.
// Jobs scheduled by other writers while the pass runs win over the pass's
// snapshot.
func (r *Reconciler) Reconcile(ctx context.Context) (int, error) {
	mark := r.registry.mark()

	contents, err := r.queries.ListUnsentContents(ctx)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("list unsent contents: %w", err)
	}

	now := r.now().UTC()
	unsent := make(map[uuid.UUID]struct{}, len(contents))
	skipped := 0
	for _, c := range contents {
		unsent[c.ID] = struct{}{}
		if !r.registry.scheduleUnlessNewer(c.ID, FireTime(c.ScheduledTime.Time, now), mark) {
			skipped++
		}
	}

	cancelled := r.registry.cancelExcept(unsent, mark)

	metrics.ReconcileRunsTotal.WithLabelValues("success").Inc()
	ev := r.log.Info().
		Int("scheduled", len(contents)-skipped).
		Int("kept_newer", skipped).
		Int("cancelled", cancelled).
		Int("pending", r.registry.Len())
	if next, ok := r.registry.Next(); ok {
		ev = ev.Time("next_fire_at", next.FireAt)
	}
	ev.Msg("reconciliation complete")

	return len(contents), nil
}

// FireTime returns scheduled, or now when scheduled is already in the past.
func FireTime(scheduled, now time.Time) time.Time {
	if scheduled.Before(now) {
		return now.UTC()
	}
	return scheduled.UTC()
}
