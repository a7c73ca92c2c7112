package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const deliveryLogColumns = `id, content_id, subscriber_id, status, error, sent_at, created_at, updated_at`

// Delivery logs are append-only: there is deliberately no update query.
const createDeliveryLog = `
INSERT INTO delivery_logs (content_id, subscriber_id, status, error, sent_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + deliveryLogColumns

type CreateDeliveryLogParams struct {
	ContentID    uuid.UUID          `json:"content_id"`
	SubscriberID uuid.UUID          `json:"subscriber_id"`
	Status       DeliveryStatus     `json:"status"`
	Error        pgtype.Text        `json:"error"`
	SentAt       pgtype.Timestamptz `json:"sent_at"`
}

func (q *Queries) CreateDeliveryLog(ctx context.Context, arg CreateDeliveryLogParams) (DeliveryLog, error) {
	row := q.db.QueryRow(ctx, createDeliveryLog,
		arg.ContentID,
		arg.SubscriberID,
		arg.Status,
		arg.Error,
		arg.SentAt,
	)
	return scanDeliveryLog(row)
}

const listDeliveryLogsByContent = `
SELECT ` + deliveryLogColumns + `
FROM delivery_logs
WHERE content_id = $1
ORDER BY created_at, id`

func (q *Queries) ListDeliveryLogsByContent(ctx context.Context, contentID uuid.UUID) ([]DeliveryLog, error) {
	rows, err := q.db.Query(ctx, listDeliveryLogsByContent, contentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryLogs(rows)
}

const listDeliveryLogsBySubscriber = `
SELECT ` + deliveryLogColumns + `
FROM delivery_logs
WHERE subscriber_id = $1
ORDER BY created_at, id`

func (q *Queries) ListDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]DeliveryLog, error) {
	rows, err := q.db.Query(ctx, listDeliveryLogsBySubscriber, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryLogs(rows)
}

const countDeliveryLogsBySubscriber = `SELECT count(*) FROM delivery_logs WHERE subscriber_id = $1`

func (q *Queries) CountDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countDeliveryLogsBySubscriber, subscriberID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

func scanDeliveryLog(row pgx.Row) (DeliveryLog, error) {
	var i DeliveryLog
	err := row.Scan(
		&i.ID,
		&i.ContentID,
		&i.SubscriberID,
		&i.Status,
		&i.Error,
		&i.SentAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanDeliveryLogs(rows pgx.Rows) ([]DeliveryLog, error) {
	var items []DeliveryLog
	for rows.Next() {
		i, err := scanDeliveryLog(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
