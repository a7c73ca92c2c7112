package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createSubscriber = `
INSERT INTO subscribers (name, email)
VALUES ($1, $2)
RETURNING id, name, email, created_at, updated_at`

type CreateSubscriberParams struct {
	Name  pgtype.Text `json:"name"`
	Email string      `json:"email"`
}

func (q *Queries) CreateSubscriber(ctx context.Context, arg CreateSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRow(ctx, createSubscriber, arg.Name, arg.Email)
	var i Subscriber
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getSubscriberByID = `
SELECT id, name, email, created_at, updated_at
FROM subscribers
WHERE id = $1`

func (q *Queries) GetSubscriberByID(ctx context.Context, id uuid.UUID) (Subscriber, error) {
	row := q.db.QueryRow(ctx, getSubscriberByID, id)
	var i Subscriber
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const getSubscriberByEmail = `
SELECT id, name, email, created_at, updated_at
FROM subscribers
WHERE email = $1`

func (q *Queries) GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error) {
	row := q.db.QueryRow(ctx, getSubscriberByEmail, email)
	var i Subscriber
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listSubscribers = `
SELECT id, name, email, created_at, updated_at
FROM subscribers
ORDER BY created_at, id`

func (q *Queries) ListSubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := q.db.Query(ctx, listSubscribers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSubscribers(rows)
}

const updateSubscriber = `
UPDATE subscribers
SET name = $2, email = $3, updated_at = now()
WHERE id = $1
RETURNING id, name, email, created_at, updated_at`

type UpdateSubscriberParams struct {
	ID    uuid.UUID   `json:"id"`
	Name  pgtype.Text `json:"name"`
	Email string      `json:"email"`
}

func (q *Queries) UpdateSubscriber(ctx context.Context, arg UpdateSubscriberParams) (Subscriber, error) {
	row := q.db.QueryRow(ctx, updateSubscriber, arg.ID, arg.Name, arg.Email)
	var i Subscriber
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const deleteSubscriber = `DELETE FROM subscribers WHERE id = $1`

func (q *Queries) DeleteSubscriber(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteSubscriber, id)
	return err
}
