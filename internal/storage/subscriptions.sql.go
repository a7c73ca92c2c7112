package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const createSubscription = `
INSERT INTO subscriptions (subscriber_id, topic_id)
VALUES ($1, $2)
RETURNING id, subscriber_id, topic_id, created_at, updated_at`

type CreateSubscriptionParams struct {
	SubscriberID uuid.UUID `json:"subscriber_id"`
	TopicID      uuid.UUID `json:"topic_id"`
}

func (q *Queries) CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRow(ctx, createSubscription, arg.SubscriberID, arg.TopicID)
	var i Subscription
	err := row.Scan(&i.ID, &i.SubscriberID, &i.TopicID, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getSubscriptionByID = `
SELECT id, subscriber_id, topic_id, created_at, updated_at
FROM subscriptions
WHERE id = $1`

func (q *Queries) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (Subscription, error) {
	row := q.db.QueryRow(ctx, getSubscriptionByID, id)
	var i Subscription
	err := row.Scan(&i.ID, &i.SubscriberID, &i.TopicID, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listSubscriptionsBySubscriber = `
SELECT id, subscriber_id, topic_id, created_at, updated_at
FROM subscriptions
WHERE subscriber_id = $1
ORDER BY created_at, id`

func (q *Queries) ListSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]Subscription, error) {
	rows, err := q.db.Query(ctx, listSubscriptionsBySubscriber, subscriberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

const listSubscriptionsByTopic = `
SELECT id, subscriber_id, topic_id, created_at, updated_at
FROM subscriptions
WHERE topic_id = $1
ORDER BY created_at, id`

func (q *Queries) ListSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) ([]Subscription, error) {
	rows, err := q.db.Query(ctx, listSubscriptionsByTopic, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscriptions(rows)
}

const countSubscriptionsByTopic = `SELECT count(*) FROM subscriptions WHERE topic_id = $1`

func (q *Queries) CountSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countSubscriptionsByTopic, topicID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteSubscription = `DELETE FROM subscriptions WHERE id = $1`

func (q *Queries) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteSubscription, id)
	return err
}

const deleteSubscriptionsBySubscriber = `DELETE FROM subscriptions WHERE subscriber_id = $1`

func (q *Queries) DeleteSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteSubscriptionsBySubscriber, subscriberID)
	return err
}

// The join can yield the same subscriber more than once when duplicate
// subscription rows exist; callers that send mail must de-duplicate.
const listSubscribersForTopic = `
SELECT s.id, s.name, s.email, s.created_at, s.updated_at
FROM subscribers s
JOIN subscriptions sub ON sub.subscriber_id = s.id
WHERE sub.topic_id = $1
ORDER BY sub.created_at, sub.id`

func (q *Queries) ListSubscribersForTopic(ctx context.Context, topicID uuid.UUID) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, listSubscribersForTopic, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

func scanSubscriptions(rows pgx.Rows) ([]Subscription, error) {
	var items []Subscription
	for rows.Next() {
		var i Subscription
		if err := rows.Scan(&i.ID, &i.SubscriberID, &i.TopicID, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanSubscribers(rows pgx.Rows) ([]Subscriber, error) {
	var items []Subscriber
	for rows.Next() {
		var i Subscriber
		if err := rows.Scan(&i.ID, &i.Name, &i.Email, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
