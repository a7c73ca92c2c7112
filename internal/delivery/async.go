package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/queue"
)

// AsyncService enqueues delivery requests for background delivery
// by the queue workers.
type AsyncService struct {
	enqueuer queue.Enqueuer
	log      zerolog.Logger
}

// NewAsyncService creates an AsyncService backed by the given Enqueuer.
func NewAsyncService(enqueuer queue.Enqueuer, log zerolog.Logger) *AsyncService {
	return &AsyncService{
		enqueuer: enqueuer,
		log:      log,
	}
}

// DeliverContent enqueues an ID-only delivery request to Redis Streams. The
// worker loads the content and subscribers itself.
func (a *AsyncService) DeliverContent(ctx context.Context, contentID uuid.UUID) error {
	msg := queue.NewContentMessage(contentID)

	entryID, err := a.enqueuer.Enqueue(ctx, msg)
	if err != nil {
		a.log.Error().Err(err).
			Stringer("content_id", contentID).
			Msg("failed to enqueue delivery request to Redis")
		return fmt.Errorf("enqueue to redis: %w", err)
	}

	a.log.Info().
		Stringer("content_id", contentID).
		Str("message_id", msg.ID).
		Str("entry_id", entryID).
		Msg("content enqueued for async delivery")

	return nil
}
