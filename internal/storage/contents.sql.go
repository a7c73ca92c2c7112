package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const contentColumns = `id, topic_id, subject, body, scheduled_time, sent, created_at, updated_at`

const createContent = `
INSERT INTO contents (topic_id, subject, body, scheduled_time)
VALUES ($1, $2, $3, $4)
RETURNING ` + contentColumns

type CreateContentParams struct {
	TopicID       uuid.UUID          `json:"topic_id"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	ScheduledTime pgtype.Timestamptz `json:"scheduled_time"`
}

func (q *Queries) CreateContent(ctx context.Context, arg CreateContentParams) (Content, error) {
	row := q.db.QueryRow(ctx, createContent, arg.TopicID, arg.Subject, arg.Body, arg.ScheduledTime)
	return scanContent(row)
}

const getContentByID = `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`

func (q *Queries) GetContentByID(ctx context.Context, id uuid.UUID) (Content, error) {
	return scanContent(q.db.QueryRow(ctx, getContentByID, id))
}

const listContentsByTopic = `
SELECT ` + contentColumns + `
FROM contents
WHERE topic_id = $1
ORDER BY scheduled_time, id`

func (q *Queries) ListContentsByTopic(ctx context.Context, topicID uuid.UUID) ([]Content, error) {
	rows, err := q.db.Query(ctx, listContentsByTopic, topicID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

const listUnsentContents = `
SELECT ` + contentColumns + `
FROM contents
WHERE sent = false
ORDER BY scheduled_time, id`

func (q *Queries) ListUnsentContents(ctx context.Context) ([]Content, error) {
	rows, err := q.db.Query(ctx, listUnsentContents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

const listPendingContents = `
SELECT ` + contentColumns + `
FROM contents
WHERE sent = false AND scheduled_time <= $1
ORDER BY scheduled_time, id`

// ListPendingContents returns unsent contents due at or before asOf.
func (q *Queries) ListPendingContents(ctx context.Context, asOf time.Time) ([]Content, error) {
	rows, err := q.db.Query(ctx, listPendingContents, asOf.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

const listContentsScheduledBetween = `
SELECT ` + contentColumns + `
FROM contents
WHERE scheduled_time >= $1 AND scheduled_time < $2
ORDER BY scheduled_time, id`

type ListContentsScheduledBetweenParams struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// ListContentsScheduledBetween returns contents scheduled in [Start, End).
func (q *Queries) ListContentsScheduledBetween(ctx context.Context, arg ListContentsScheduledBetweenParams) ([]Content, error) {
	rows, err := q.db.Query(ctx, listContentsScheduledBetween, arg.Start.UTC(), arg.End.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}

const updateContent = `
UPDATE contents
SET topic_id = $2, subject = $3, body = $4, scheduled_time = $5, updated_at = now()
WHERE id = $1 AND sent = false
RETURNING ` + contentColumns

type UpdateContentParams struct {
	ID            uuid.UUID          `json:"id"`
	TopicID       uuid.UUID          `json:"topic_id"`
	Subject       string             `json:"subject"`
	Body          string             `json:"body"`
	ScheduledTime pgtype.Timestamptz `json:"scheduled_time"`
}

// UpdateContent rewrites an unsent content row. It returns pgx.ErrNoRows when
// the row is missing or has already been sent.
func (q *Queries) UpdateContent(ctx context.Context, arg UpdateContentParams) (Content, error) {
	row := q.db.QueryRow(ctx, updateContent, arg.ID, arg.TopicID, arg.Subject, arg.Body, arg.ScheduledTime)
	return scanContent(row)
}

const markContentSent = `
UPDATE contents
SET sent = true, updated_at = now()
WHERE id = $1 AND sent = false`

// MarkContentSent flips the sent flag and reports whether this call changed it.
func (q *Queries) MarkContentSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, markContentSent, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const deleteContent = `DELETE FROM contents WHERE id = $1 AND sent = false`

// DeleteContent removes an unsent content row and reports whether a row was deleted.
func (q *Queries) DeleteContent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.db.Exec(ctx, deleteContent, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const countContentsByTopic = `SELECT count(*) FROM contents WHERE topic_id = $1`

func (q *Queries) CountContentsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countContentsByTopic, topicID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

func scanContent(row pgx.Row) (Content, error) {
	var i Content
	err := row.Scan(
		&i.ID,
		&i.TopicID,
		&i.Subject,
		&i.Body,
		&i.ScheduledTime,
		&i.Sent,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func scanContents(rows pgx.Rows) ([]Content, error) {
	var items []Content
	for rows.Next() {
		i, err := scanContent(rows)
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
