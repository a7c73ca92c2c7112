package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// ContentFilter narrows ListContents. Zero-valued fields are ignored.
type ContentFilter struct {
	TopicID uuid.UUID
	Sent    *bool
	From    time.Time // inclusive lower bound on scheduled_time
	To      time.Time // exclusive upper bound on scheduled_time
	Limit   uint64
	Offset  uint64
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func buildListContents(f ContentFilter) (string, []interface{}, error) {
	qb := psql.Select(contentColumns).From("contents")

	// uuid.UUID is an array type, which sq.Eq would expand into an IN list.
	if f.TopicID != uuid.Nil {
		qb = qb.Where(sq.Expr("topic_id = ?", f.TopicID))
	}
	if f.Sent != nil {
		qb = qb.Where(sq.Eq{"sent": *f.Sent})
	}
	if !f.From.IsZero() {
		qb = qb.Where(sq.GtOrEq{"scheduled_time": f.From.UTC()})
	}
	if !f.To.IsZero() {
		qb = qb.Where(sq.Lt{"scheduled_time": f.To.UTC()})
	}
	qb = qb.OrderBy("scheduled_time", "id")
	if f.Limit > 0 {
		qb = qb.Limit(f.Limit)
	}
	if f.Offset > 0 {
		qb = qb.Offset(f.Offset)
	}

	return qb.ToSql()
}

// ListContents returns contents matching f ordered by scheduled time.
func (q *Queries) ListContents(ctx context.Context, f ContentFilter) ([]Content, error) {
	query, args, err := buildListContents(f)
	if err != nil {
		return nil, fmt.Errorf("build list contents query: %w", err)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanContents(rows)
}
