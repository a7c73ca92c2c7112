package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/storage"
)

type subscriptionRequest struct {
	TopicID uuid.UUID `json:"topic_id"`
}

type subscriptionResponse struct {
	ID           uuid.UUID `json:"id"`
	SubscriberID uuid.UUID `json:"subscriber_id"`
	TopicID      uuid.UUID `json:"topic_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func toSubscriptionResponse(s storage.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:           s.ID,
		SubscriberID: s.SubscriberID,
		TopicID:      s.TopicID,
		CreatedAt:    timestampToTime(s.CreatedAt),
	}
}

// SubscribeHandler handles POST /api/v1/subscribers/{id}/subscriptions.
func SubscribeHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		subscriberID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req subscriptionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.TopicID == uuid.Nil {
			respondValidationErrors(w, []string{"topic_id is required"})
			return
		}

		if _, ok := loadSubscriber(w, r, queries, subscriberID); !ok {
			return
		}
		if _, ok := loadTopic(w, r, queries, req.TopicID); !ok {
			return
		}

		existing, err := queries.ListSubscriptionsBySubscriber(r.Context(), subscriberID)
		if err != nil {
			respondInternalError(w, log, err, "failed to list subscriptions")
			return
		}
		for _, s := range existing {
			if s.TopicID == req.TopicID {
				respondError(w, http.StatusConflict, "subscriber is already subscribed to this topic")
				return
			}
		}

		sub, err := queries.CreateSubscription(r.Context(), storage.CreateSubscriptionParams{
			SubscriberID: subscriberID,
			TopicID:      req.TopicID,
		})
		if err != nil {
			respondInternalError(w, log, err, "failed to create subscription")
			return
		}

		respondJSON(w, http.StatusCreated, toSubscriptionResponse(sub))
	}
}

// ListSubscriberSubscriptionsHandler handles GET /api/v1/subscribers/{id}/subscriptions.
func ListSubscriberSubscriptionsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriberID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadSubscriber(w, r, queries, subscriberID); !ok {
			return
		}

		subs, err := queries.ListSubscriptionsBySubscriber(r.Context(), subscriberID)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list subscriptions")
			return
		}

		resp := make([]subscriptionResponse, 0, len(subs))
		for _, s := range subs {
			resp = append(resp, toSubscriptionResponse(s))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// ListTopicSubscriptionsHandler handles GET /api/v1/topics/{id}/subscriptions.
func ListTopicSubscriptionsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topicID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadTopic(w, r, queries, topicID); !ok {
			return
		}

		subs, err := queries.ListSubscriptionsByTopic(r.Context(), topicID)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list topic subscriptions")
			return
		}

		resp := make([]subscriptionResponse, 0, len(subs))
		for _, s := range subs {
			resp = append(resp, toSubscriptionResponse(s))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// UnsubscribeHandler handles DELETE /api/v1/subscriptions/{id}.
func UnsubscribeHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		if _, err := queries.GetSubscriptionByID(r.Context(), id); err != nil {
			if storage.IsNotFound(err) {
				respondError(w, http.StatusNotFound, "subscription not found")
				return
			}
			respondInternalError(w, log, err, "failed to get subscription")
			return
		}

		if err := queries.DeleteSubscription(r.Context(), id); err != nil {
			respondInternalError(w, log, err, "failed to delete subscription")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "subscription_id": id})
	}
}
