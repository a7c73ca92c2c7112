package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SyncService delivers content in the calling goroutine.
type SyncService struct {
	executor Deliverer
	log      zerolog.Logger
}

// NewSyncService creates a SyncService that runs deliveries inline.
func NewSyncService(executor Deliverer, log zerolog.Logger) *SyncService {
	return &SyncService{
		executor: executor,
		log:      log,
	}
}

// DeliverContent runs the executor and logs its report.
func (s *SyncService) DeliverContent(ctx context.Context, contentID uuid.UUID) error {
	report, err := s.executor.Deliver(ctx, contentID)
	if err != nil {
		s.log.Error().Err(err).
			Stringer("content_id", contentID).
			Msg("content delivery failed")
		return fmt.Errorf("deliver content %s: %w", contentID, err)
	}

	if report.Skipped {
		s.log.Debug().
			Stringer("content_id", contentID).
			Str("reason", report.SkipReason).
			Msg("content delivery skipped")
		return nil
	}

	s.log.Info().
		Stringer("content_id", contentID).
		Int("subscribers", report.Subscribers).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Bool("marked_sent", report.MarkedSent).
		Msg("content delivery finished")

	return nil
}
