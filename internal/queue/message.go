package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is an ID-only delivery request. The worker loads the content and its
// subscribers from the database, so nothing else travels through the stream.
type Message struct {
	ID         string    `json:"id"`
	ContentID  string    `json:"content_id"`
	RetryCount int       `json:"retry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewContentMessage creates a delivery request for one content item.
func NewContentMessage(contentID uuid.UUID) *Message {
	return &Message{
		ID:        uuid.New().String(),
		ContentID: contentID.String(),
		CreatedAt: time.Now().UTC(),
	}
}

// ParseContentID returns the content id carried by the message.
func (m *Message) ParseContentID() (uuid.UUID, error) {
	id, err := uuid.Parse(m.ContentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse content id %q: %w", m.ContentID, err)
	}
	return id, nil
}

// dlqStreamKey returns the dead letter stream paired with a delivery stream.
func dlqStreamKey(stream string) string {
	return stream + ":dlq"
}
