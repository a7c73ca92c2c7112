package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrPoisonMessage marks a message that can never be processed. The dequeuer
// moves it to the dead letter stream without retrying.
var ErrPoisonMessage = errors.New("poison message")

// RedisDequeuer manages a pool of worker goroutines that consume and process
// messages from a Redis stream using a consumer group.
type RedisDequeuer struct {
	client   *redis.Client
	enqueuer Enqueuer
	dlq      DeadLetterQueue
	handler  MessageHandler
	retry    *RetryStrategy
	config   Config
	log      zerolog.Logger
	consumer string
	wg       sync.WaitGroup
	retryWG  sync.WaitGroup
	cancel   context.CancelFunc
}

// NewRedisDequeuer creates a RedisDequeuer for the configured stream and
// group. consumerPrefix distinguishes worker names across processes.
func NewRedisDequeuer(
	client *redis.Client,
	enqueuer Enqueuer,
	dlq DeadLetterQueue,
	handler MessageHandler,
	retry *RetryStrategy,
	cfg Config,
	log zerolog.Logger,
	consumerPrefix string,
) *RedisDequeuer {
	return &RedisDequeuer{
		client:   client,
		enqueuer: enqueuer,
		dlq:      dlq,
		handler:  handler,
		retry:    retry,
		config:   cfg,
		log:      log,
		consumer: consumerPrefix,
	}
}

// Start creates the consumer group (if it does not already exist) and
// launches the configured number of worker goroutines.
func (d *RedisDequeuer) Start(ctx context.Context) error {
	if err := d.createConsumerGroup(ctx); err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}

	ctx, d.cancel = context.WithCancel(ctx)

	for i := range d.config.WorkerCount {
		d.wg.Add(1)
		go d.runWorker(ctx, fmt.Sprintf("%s-%d", d.consumer, i))
	}

	d.log.Info().
		Int("worker_count", d.config.WorkerCount).
		Str("stream", d.config.StreamName).
		Str("group", d.config.GroupName).
		Msg("redis dequeuer started")

	return nil
}

// Stop signals all workers to stop and waits up to the configured shutdown
// timeout for them to finish processing.
func (d *RedisDequeuer) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		d.retryWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.log.Info().Msg("redis dequeuer stopped gracefully")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown aborted: %w", ctx.Err())
	case <-time.After(d.config.ShutdownTimeout):
		d.log.Warn().Msg("redis dequeuer shutdown timed out")
		return fmt.Errorf("shutdown timed out after %s", d.config.ShutdownTimeout)
	}
}

// createConsumerGroup creates the consumer group for the stream.
// If the stream or group already exists, the error is ignored.
func (d *RedisDequeuer) createConsumerGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.config.StreamName, d.config.GroupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on stream %s: %w", d.config.GroupName, d.config.StreamName, err)
	}
	return nil
}

// runWorker is the main loop for a single worker goroutine.
func (d *RedisDequeuer) runWorker(ctx context.Context, consumerName string) {
	defer d.wg.Done()

	d.log.Debug().Str("consumer", consumerName).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			d.log.Debug().Str("consumer", consumerName).Msg("worker stopping")
			return
		default:
		}

		xMsgs, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    d.config.GroupName,
			Consumer: consumerName,
			Streams:  []string{d.config.StreamName, ">"},
			Count:    1,
			Block:    d.config.BlockTimeout,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			d.log.Error().Err(err).Str("consumer", consumerName).Msg("xreadgroup error")
			d.pause(ctx, time.Second)
			continue
		}

		for _, stream := range xMsgs {
			for _, xMsg := range stream.Messages {
				d.processMessage(ctx, xMsg)
			}
		}
	}
}

// pause sleeps after a read error so a dead Redis does not spin the loop.
func (d *RedisDequeuer) pause(ctx context.Context, dur time.Duration) {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processMessage handles a single Redis stream message: deserializes it,
// invokes the handler, and either acknowledges or retries/DLQs on failure.
func (d *RedisDequeuer) processMessage(ctx context.Context, xMsg redis.XMessage) {
	start := time.Now()

	msg, err := decodeMessage(xMsg)
	if err != nil {
		d.log.Error().Err(err).Str("entry_id", xMsg.ID).Msg("undecodable message, moving to DLQ")
		MessagesProcessedTotal.WithLabelValues("invalid").Inc()
		raw := &Message{ID: xMsg.ID}
		d.deadLetter(ctx, raw, fmt.Sprintf("%v (data=%v)", err, xMsg.Values["data"]))
		if ackErr := d.acknowledgeMessage(context.WithoutCancel(ctx), xMsg.ID); ackErr != nil {
			d.log.Error().Err(ackErr).Str("entry_id", xMsg.ID).Msg("failed to acknowledge message")
		}
		return
	}

	// Deliveries already in progress finish even when the pool is stopping.
	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.config.ProcessTimeout)
	defer cancel()

	err = d.handler.HandleMessage(processCtx, msg)

	MessageProcessingDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		MessagesProcessedTotal.WithLabelValues("done").Inc()

	case errors.Is(err, ErrPoisonMessage):
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("poison message, moving to DLQ")
		MessagesProcessedTotal.WithLabelValues("invalid").Inc()
		d.deadLetter(ctx, msg, err.Error())

	default:
		d.log.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("content_id", msg.ContentID).
			Int("retry_count", msg.RetryCount).
			Msg("message processing failed")

		msg.RetryCount++

		if d.retry.ShouldRetry(msg.RetryCount) {
			backoff := d.retry.NextBackoff(msg.RetryCount - 1)
			d.log.Info().
				Str("message_id", msg.ID).
				Int("retry_count", msg.RetryCount).
				Dur("backoff", backoff).
				Msg("scheduling retry")

			d.retryWG.Add(1)
			go d.retryAfterBackoff(ctx, msg, backoff)

			MessagesProcessedTotal.WithLabelValues("retry").Inc()
		} else {
			d.log.Warn().
				Str("message_id", msg.ID).
				Str("content_id", msg.ContentID).
				Int("retry_count", msg.RetryCount).
				Msg("max retries exhausted, moving to DLQ")

			d.deadLetter(ctx, msg, err.Error())
		}
	}

	// Acknowledge regardless of outcome to prevent redelivery of the original.
	if ackErr := d.acknowledgeMessage(context.WithoutCancel(ctx), xMsg.ID); ackErr != nil {
		d.log.Error().Err(ackErr).Str("entry_id", xMsg.ID).Msg("failed to acknowledge message")
	}
}

func (d *RedisDequeuer) deadLetter(ctx context.Context, msg *Message, reason string) {
	if err := d.dlq.MoveToDLQ(context.WithoutCancel(ctx), msg, reason); err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to move to DLQ")
	}
}

func decodeMessage(xMsg redis.XMessage) (*Message, error) {
	data, ok := xMsg.Values["data"].(string)
	if !ok {
		return nil, errors.New("invalid message data type")
	}

	var msg Message
	if err := json.Unmarshal([]byte(data), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// acknowledgeMessage acknowledges a message in the consumer group using XACK.
func (d *RedisDequeuer) acknowledgeMessage(ctx context.Context, entryID string) error {
	err := d.client.XAck(ctx, d.config.StreamName, d.config.GroupName, entryID).Err()
	if err != nil {
		return fmt.Errorf("xack message %s on stream %s: %w", entryID, d.config.StreamName, err)
	}
	return nil
}

// retryAfterBackoff waits for the backoff duration then re-enqueues the
// message. A stop during the wait abandons the retry; the content stays
// unsent and is picked up again by reconciliation.
func (d *RedisDequeuer) retryAfterBackoff(ctx context.Context, msg *Message, backoff time.Duration) {
	defer d.retryWG.Done()

	timer := time.NewTimer(backoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if _, err := d.enqueuer.Enqueue(ctx, msg); err != nil {
		d.log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to re-enqueue message for retry")
	}
}
