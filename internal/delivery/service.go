package delivery

import (
	"context"

	"github.com/google/uuid"
)

// Service dispatches a fired job. Two implementations exist: SyncService
// (run the executor in-process) and AsyncService (enqueue to Redis Streams
// for a worker to deliver).
type Service interface {
	DeliverContent(ctx context.Context, contentID uuid.UUID) error
}
