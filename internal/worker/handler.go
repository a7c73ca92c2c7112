package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/delivery"
	"github.com/sungwon/newsletter/internal/queue"
)

// Handler implements queue.MessageHandler. It runs the delivery executor for
// the content referenced by each queue message.
type Handler struct {
	executor delivery.Deliverer
	log      zerolog.Logger
}

// NewHandler creates a Handler that delivers queued content.
func NewHandler(executor delivery.Deliverer, log zerolog.Logger) *Handler {
	return &Handler{
		executor: executor,
		log:      log,
	}
}

// HandleMessage implements queue.MessageHandler. Malformed content ids are
// reported as poison messages. Storage errors are returned so the queue
// retries the request; send failures are already recorded as delivery logs
// by the executor and do not surface here.
func (h *Handler) HandleMessage(ctx context.Context, msg *queue.Message) error {
	contentID, err := msg.ParseContentID()
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrPoisonMessage, err)
	}

	log := h.log.With().
		Str("message_id", msg.ID).
		Stringer("content_id", contentID).
		Int("retry_count", msg.RetryCount).
		Logger()

	report, err := h.executor.Deliver(ctx, contentID)
	if err != nil {
		return fmt.Errorf("deliver content %s: %w", contentID, err)
	}

	if report.Skipped {
		log.Info().Str("reason", report.SkipReason).Msg("queued delivery skipped")
		return nil
	}

	log.Info().
		Int("subscribers", report.Subscribers).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Bool("marked_sent", report.MarkedSent).
		Msg("queued delivery finished")

	return nil
}
