package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/storage"
)

const (
	defaultRetryDelay  = 5 * time.Second
	defaultMaxAttempts = 2
)

// Config controls per-subscriber sending.
type Config struct {
	RetryDelay    time.Duration
	MaxAttempts   int
	RatePerSecond float64
	SenderAddress string
	SenderName    string
}

// Skip reasons reported by Deliver.
const (
	SkipNotFound    = "not_found"
	SkipAlreadySent = "already_sent"
	SkipNotDue      = "not_due"
)

// Report summarises one Deliver run.
type Report struct {
	ContentID   uuid.UUID
	Skipped     bool
	SkipReason  string
	Subscribers int
	Sent        int
	Failed      int
	MarkedSent  bool
}

// Deliverer runs the delivery of one content item.
type Deliverer interface {
	Deliver(ctx context.Context, contentID uuid.UUID) (*Report, error)
}

// Executor sends a content item to every subscriber of its topic and records
// one delivery log row per subscriber.
type Executor struct {
	queries  storage.Querier
	provider provider.Provider
	renderer *Renderer
	limiter  *rate.Limiter
	cfg      Config
	log      zerolog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

var _ Deliverer = (*Executor)(nil)

// NewExecutor creates an Executor. A zero RatePerSecond disables throttling.
func NewExecutor(
	queries storage.Querier,
	p provider.Provider,
	renderer *Renderer,
	cfg Config,
	log zerolog.Logger,
) *Executor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Executor{
		queries:  queries,
		provider: p,
		renderer: renderer,
		limiter:  limiter,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver sends content contentID to its topic's subscribers. Missing,
// already sent or not yet due content is skipped without writes. Send failures are recorded
// as failed delivery logs and never returned; the error result is reserved
// for storage failures and cancellation.
func (e *Executor) Deliver(ctx context.Context, contentID uuid.UUID) (*Report, error) {
	start := e.now()
	report := &Report{ContentID: contentID}
	log := e.log.With().Stringer("content_id", contentID).Logger()

	content, err := e.queries.GetContentByID(ctx, contentID)
	if err != nil {
		if storage.IsNotFound(err) {
			log.Info().Msg("content no longer exists, skipping delivery")
			report.Skipped, report.SkipReason = true, SkipNotFound
			return report, nil
		}
		return nil, fmt.Errorf("load content: %w", err)
	}
	if content.Sent {
		log.Info().Msg("content already sent, skipping delivery")
		report.Skipped, report.SkipReason = true, SkipAlreadySent
		return report, nil
	}
	if content.ScheduledTime.Valid && content.ScheduledTime.Time.After(e.now()) {
		log.Info().
			Time("scheduled_time", content.ScheduledTime.Time).
			Msg("content not due yet, skipping delivery")
		report.Skipped, report.SkipReason = true, SkipNotDue
		return report, nil
	}

	subscribers, err := e.queries.ListSubscribersForTopic(ctx, content.TopicID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers for topic %s: %w", content.TopicID, err)
	}
	subscribers = uniqueSubscribers(subscribers)
	report.Subscribers = len(subscribers)

	// Logs and the sent flag describe sends that already happened, so they
	// are written even if ctx is cancelled mid-run.
	writeCtx := context.WithoutCancel(ctx)

	if len(subscribers) == 0 {
		log.Info().Msg("topic has no subscribers, marking content sent")
		if err := e.markSent(writeCtx, contentID, report); err != nil {
			return report, err
		}
		return report, nil
	}

	for _, sub := range subscribers {
		if ctx.Err() != nil {
			break
		}

		status, sendErr := e.deliverOne(ctx, content, sub, log)
		e.recordLog(writeCtx, content.ID, sub.ID, status, sendErr, log)

		if status == storage.DeliveryStatusSent {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	metrics.DeliveryDuration.Observe(e.now().Sub(start).Seconds())

	if err := ctx.Err(); err != nil {
		log.Warn().
			Int("sent", report.Sent).
			Int("processed", report.Sent+report.Failed).
			Int("subscribers", report.Subscribers).
			Msg("delivery interrupted")
		// One success is enough to close the content, so a re-fire never
		// reaches the same subscribers twice.
		if report.Sent > 0 {
			if markErr := e.markSent(writeCtx, contentID, report); markErr != nil {
				return report, errors.Join(fmt.Errorf("deliver content %s: %w", contentID, err), markErr)
			}
		}
		return report, fmt.Errorf("deliver content %s: %w", contentID, err)
	}

	if report.Sent == 0 {
		log.Warn().Int("failed", report.Failed).Msg("every subscriber failed, content left unsent")
		return report, nil
	}

	if err := e.markSent(writeCtx, contentID, report); err != nil {
		return report, err
	}

	log.Info().
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("content delivered")

	return report, nil
}

// deliverOne makes up to MaxAttempts sends to one subscriber, pausing
// RetryDelay between attempts. Every failure is retried, permanent or not.
func (e *Executor) deliverOne(
	ctx context.Context,
	content storage.Content,
	sub storage.Subscriber,
	log zerolog.Logger,
) (storage.DeliveryStatus, error) {
	rendered, err := e.renderer.Render(content, sub)
	if err != nil {
		return storage.DeliveryStatusFailed, err
	}

	msg := &provider.Message{
		ID:       content.ID.String() + "_" + sub.ID.String(),
		From:     e.cfg.SenderAddress,
		FromName: e.cfg.SenderName,
		To:       sub.Email,
		ToName:   sub.Name.String,
		Subject:  rendered.Subject,
		TextBody: rendered.TextBody,
		HTMLBody: rendered.HTMLBody,
		Headers: map[string]string{
			"X-Newsletter-Content-ID": content.ID.String(),
			"X-Newsletter-Topic-ID":   content.TopicID.String(),
		},
		Tags: []string{"newsletter", "topic-" + content.TopicID.String()},
		Tracking: map[string]string{
			"content_id":    content.ID.String(),
			"subscriber_id": sub.ID.String(),
		},
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				break
			}
		}
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				if lastErr == nil {
					lastErr = fmt.Errorf("rate limiter: %w", err)
				}
				break
			}
		}

		result, err := e.send(ctx, msg)
		if err == nil {
			metrics.DeliveryAttemptsTotal.WithLabelValues("success").Inc()
			ev := log.Info().Stringer("subscriber_id", sub.ID).Int("attempt", attempt)
			if result != nil {
				ev = ev.Str("provider_message_id", result.ProviderMessageID)
			}
			ev.Msg("newsletter sent")
			return storage.DeliveryStatusSent, nil
		}

		metrics.DeliveryAttemptsTotal.WithLabelValues("failure").Inc()
		lastErr = err
		log.Warn().Err(err).
			Stringer("subscriber_id", sub.ID).
			Int("attempt", attempt).
			Bool("permanent", provider.IsPermanent(err)).
			Msg("newsletter send failed")
	}

	if lastErr == nil {
		lastErr = errors.New("delivery interrupted before first attempt")
	}
	return storage.DeliveryStatusFailed, lastErr
}

// send calls the provider, converting a panic into an error.
func (e *Executor) send(ctx context.Context, msg *provider.Message) (result *provider.DeliveryResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider %s panicked: %v", e.provider.GetName(), r)
		}
	}()
	return e.provider.Send(ctx, msg)
}

func (e *Executor) recordLog(
	ctx context.Context,
	contentID, subscriberID uuid.UUID,
	status storage.DeliveryStatus,
	sendErr error,
	log zerolog.Logger,
) {
	params := storage.CreateDeliveryLogParams{
		ContentID:    contentID,
		SubscriberID: subscriberID,
		Status:       status,
		SentAt:       pgtype.Timestamptz{Time: e.now().UTC(), Valid: true},
	}
	if sendErr != nil {
		params.Error = pgtype.Text{String: sendErr.Error(), Valid: true}
	}

	if _, err := e.queries.CreateDeliveryLog(ctx, params); err != nil {
		log.Error().Err(err).
			Stringer("subscriber_id", subscriberID).
			Str("status", string(status)).
			Msg("failed to create delivery log")
		return
	}
	metrics.DeliveriesTotal.WithLabelValues(string(status)).Inc()
}

func (e *Executor) markSent(ctx context.Context, contentID uuid.UUID, report *Report) error {
	updated, err := e.queries.MarkContentSent(ctx, contentID)
	if err != nil {
		return fmt.Errorf("mark content sent: %w", err)
	}
	report.MarkedSent = updated
	if updated {
		metrics.ContentsSentTotal.Inc()
	}
	return nil
}

// uniqueSubscribers drops repeated subscriber ids, keeping first-seen order.
func uniqueSubscribers(subs []storage.Subscriber) []storage.Subscriber {
	seen := make(map[uuid.UUID]struct{}, len(subs))
	out := subs[:0:0]
	for _, s := range subs {
		if _, ok := seen[s.ID]; ok {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}
