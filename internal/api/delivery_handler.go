package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/storage"
)

type deliveryLogResponse struct {
	ID           uuid.UUID  `json:"id"`
	ContentID    uuid.UUID  `json:"content_id"`
	SubscriberID uuid.UUID  `json:"subscriber_id"`
	Status       string     `json:"status"`
	Error        *string    `json:"error"`
	SentAt       *time.Time `json:"sent_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toDeliveryLogResponses(logs []storage.DeliveryLog) []deliveryLogResponse {
	resp := make([]deliveryLogResponse, 0, len(logs))
	for _, l := range logs {
		item := deliveryLogResponse{
			ID:           l.ID,
			ContentID:    l.ContentID,
			SubscriberID: l.SubscriberID,
			Status:       string(l.Status),
			Error:        textToPtr(l.Error),
			CreatedAt:    timestampToTime(l.CreatedAt),
		}
		if l.SentAt.Valid {
			t := l.SentAt.Time.UTC()
			item.SentAt = &t
		}
		resp = append(resp, item)
	}
	return resp
}

// ListContentDeliveriesHandler handles GET /api/v1/contents/{id}/deliveries.
func ListContentDeliveriesHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadContent(w, r, queries, id); !ok {
			return
		}

		logs, err := queries.ListDeliveryLogsByContent(r.Context(), id)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list delivery logs")
			return
		}
		respondJSON(w, http.StatusOK, toDeliveryLogResponses(logs))
	}
}

// ListSubscriberDeliveriesHandler handles GET /api/v1/subscribers/{id}/deliveries.
func ListSubscriberDeliveriesHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadSubscriber(w, r, queries, id); !ok {
			return
		}

		logs, err := queries.ListDeliveryLogsBySubscriber(r.Context(), id)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list delivery logs")
			return
		}
		respondJSON(w, http.StatusOK, toDeliveryLogResponses(logs))
	}
}
