package api

import (
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/storage"
)

type subscriberRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

type subscriberResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      *string   `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSubscriberResponse(s storage.Subscriber) subscriberResponse {
	return subscriberResponse{
		ID:        s.ID,
		Name:      textToPtr(s.Name),
		Email:     s.Email,
		CreatedAt: timestampToTime(s.CreatedAt),
		UpdatedAt: timestampToTime(s.UpdatedAt),
	}
}

// normalizeEmail validates a bare address and lower-cases its domain.
func normalizeEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", false
	}
	at := strings.LastIndex(raw, "@")
	return raw[:at] + strings.ToLower(raw[at:]), true
}

// CreateSubscriberHandler handles POST /api/v1/subscribers.
func CreateSubscriberHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req subscriberRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Email == nil || strings.TrimSpace(*req.Email) == "" {
			respondValidationErrors(w, []string{"email is required"})
			return
		}
		email, ok := normalizeEmail(*req.Email)
		if !ok {
			respondValidationErrors(w, []string{"email is not a valid address"})
			return
		}

		if _, err := queries.GetSubscriberByEmail(r.Context(), email); err == nil {
			respondError(w, http.StatusConflict, "subscriber already exists with this email")
			return
		} else if !storage.IsNotFound(err) {
			respondInternalError(w, log, err, "failed to look up subscriber by email")
			return
		}

		sub, err := queries.CreateSubscriber(r.Context(), storage.CreateSubscriberParams{
			Name:  ptrToText(req.Name),
			Email: email,
		})
		if err != nil {
			if storage.IsUniqueViolation(err) {
				respondError(w, http.StatusConflict, "subscriber already exists with this email")
				return
			}
			respondInternalError(w, log, err, "failed to create subscriber")
			return
		}

		respondJSON(w, http.StatusCreated, toSubscriberResponse(sub))
	}
}

// ListSubscribersHandler handles GET /api/v1/subscribers.
func ListSubscribersHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subs, err := queries.ListSubscribers(r.Context())
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list subscribers")
			return
		}

		resp := make([]subscriberResponse, 0, len(subs))
		for _, s := range subs {
			resp = append(resp, toSubscriberResponse(s))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// GetSubscriberHandler handles GET /api/v1/subscribers/{id}.
func GetSubscriberHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		sub, ok := loadSubscriber(w, r, queries, id)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, toSubscriberResponse(sub))
	}
}

// GetSubscriberByEmailHandler handles GET /api/v1/subscribers/by-email?email=.
func GetSubscriberByEmailHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.URL.Query().Get("email"))
		if raw == "" {
			respondValidationErrors(w, []string{"email query parameter is required"})
			return
		}
		email, ok := normalizeEmail(raw)
		if !ok {
			email = raw
		}

		sub, err := queries.GetSubscriberByEmail(r.Context(), email)
		if err != nil {
			if storage.IsNotFound(err) {
				respondError(w, http.StatusNotFound, "subscriber with email '"+raw+"' not found")
				return
			}
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to get subscriber by email")
			return
		}
		respondJSON(w, http.StatusOK, toSubscriberResponse(sub))
	}
}

// UpdateSubscriberHandler handles PUT /api/v1/subscribers/{id}.
func UpdateSubscriberHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req subscriberRequest
		if !decodeBody(w, r, &req) {
			return
		}

		current, ok := loadSubscriber(w, r, queries, id)
		if !ok {
			return
		}

		params := storage.UpdateSubscriberParams{
			ID:    id,
			Name:  current.Name,
			Email: current.Email,
		}
		if req.Name != nil {
			params.Name = ptrToText(req.Name)
		}
		if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
			email, valid := normalizeEmail(*req.Email)
			if !valid {
				respondValidationErrors(w, []string{"email is not a valid address"})
				return
			}
			if email != current.Email {
				if _, err := queries.GetSubscriberByEmail(r.Context(), email); err == nil {
					respondError(w, http.StatusConflict, "another subscriber already uses this email")
					return
				} else if !storage.IsNotFound(err) {
					respondInternalError(w, log, err, "failed to look up subscriber by email")
					return
				}
			}
			params.Email = email
		}

		sub, err := queries.UpdateSubscriber(r.Context(), params)
		if err != nil {
			switch {
			case storage.IsNotFound(err):
				respondError(w, http.StatusNotFound, "subscriber not found")
			case storage.IsUniqueViolation(err):
				respondError(w, http.StatusConflict, "another subscriber already uses this email")
			default:
				respondInternalError(w, log, err, "failed to update subscriber")
			}
			return
		}

		respondJSON(w, http.StatusOK, toSubscriberResponse(sub))
	}
}

// DeleteSubscriberHandler handles DELETE /api/v1/subscribers/{id}. The
// subscriber's subscriptions are removed first. Subscribers with delivery
// history are kept.
func DeleteSubscriberHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadSubscriber(w, r, queries, id); !ok {
			return
		}

		logs, err := queries.CountDeliveryLogsBySubscriber(r.Context(), id)
		if err != nil {
			respondInternalError(w, log, err, "failed to count subscriber delivery logs")
			return
		}
		if logs > 0 {
			respondError(w, http.StatusUnprocessableEntity, "subscriber has delivery history and cannot be deleted")
			return
		}

		if err := queries.DeleteSubscriptionsBySubscriber(r.Context(), id); err != nil {
			respondInternalError(w, log, err, "failed to delete subscriber subscriptions")
			return
		}
		if err := queries.DeleteSubscriber(r.Context(), id); err != nil {
			if storage.IsForeignKeyViolation(err) {
				respondError(w, http.StatusUnprocessableEntity, "subscriber has delivery history and cannot be deleted")
				return
			}
			respondInternalError(w, log, err, "failed to delete subscriber")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "subscriber_id": id})
	}
}

func loadSubscriber(w http.ResponseWriter, r *http.Request, queries storage.Querier, id uuid.UUID) (storage.Subscriber, bool) {
	sub, err := queries.GetSubscriberByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "subscriber not found")
			return storage.Subscriber{}, false
		}
		respondInternalError(w, logger.FromContext(r.Context()), err, "failed to get subscriber")
		return storage.Subscriber{}, false
	}
	return sub, true
}
