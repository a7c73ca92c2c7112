package storage

import (
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// DeliveryStatus is the outcome recorded in a delivery log row.
type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

type Topic struct {
	ID          uuid.UUID          `json:"id"`
	Name        string             `json:"name"`
	Description pgtype.Text        `json:"description"`
	CreatedAt   pgtype.Timestamptz `json:"created_at"`
	UpdatedAt   pgtype.Timestamptz `json:"updated_at"`
}

type Subscriber struct {
	ID        uuid.UUID          `json:"id"`
	Name      pgtype.Text        `json:"name"`
	Email     string             `json:"email"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
	UpdatedAt pgtype.Timestamptz `json:"updated_at"`
}

type Subscription struct {
	ID           uuid.UUID          `json:"id"`
	SubscriberID uuid.UUID          `json:"subscriber_id"`
	TopicID      uuid.UUID          `json:"topic_id"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}

type Content struct {
	ID            uuid.UUID          `json:"id"`
	TopicID       uuid.UUID          `json:"topic_id"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	ScheduledTime pgtype.Timestamptz `json:"scheduled_time"`
	Sent          bool               `json:"sent"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
	UpdatedAt     pgtype.Timestamptz `json:"updated_at"`
}

type DeliveryLog struct {
	ID           uuid.UUID          `json:"id"`
	ContentID    uuid.UUID          `json:"content_id"`
	SubscriberID uuid.UUID          `json:"subscriber_id"`
	Status       DeliveryStatus     `json:"status"`
	Error        pgtype.Text        `json:"error"`
	SentAt       pgtype.Timestamptz `json:"sent_at"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	UpdatedAt    pgtype.Timestamptz `json:"updated_at"`
}
