package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DLQMessage wraps a failed message with failure metadata.
type DLQMessage struct {
	OriginalMessage *Message  `json:"original_message"`
	FinalError      string    `json:"final_error"`
	MovedAt         time.Time `json:"moved_at"`
}

// RedisDLQ appends exhausted messages to "<stream>:dlq" for inspection. The
// content itself stays unsent, so reconciliation fires it again later.
type RedisDLQ struct {
	client *redis.Client
	stream string
}

// NewRedisDLQ creates a RedisDLQ paired with the given delivery stream.
func NewRedisDLQ(client *redis.Client, stream string) *RedisDLQ {
	return &RedisDLQ{client: client, stream: dlqStreamKey(stream)}
}

// MoveToDLQ records a failed message on the dead letter stream.
func (d *RedisDLQ) MoveToDLQ(ctx context.Context, msg *Message, reason string) error {
	data, err := json.Marshal(DLQMessage{
		OriginalMessage: msg,
		FinalError:      reason,
		MovedAt:         time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq message: %w", err)
	}

	err = d.client.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd to dlq stream %s: %w", d.stream, err)
	}

	MessagesProcessedTotal.WithLabelValues("dlq").Inc()

	return nil
}
