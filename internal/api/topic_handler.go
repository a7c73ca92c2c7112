package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/storage"
)

type topicRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type topicResponse struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toTopicResponse(t storage.Topic) topicResponse {
	return topicResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: textToPtr(t.Description),
		CreatedAt:   timestampToTime(t.CreatedAt),
		UpdatedAt:   timestampToTime(t.UpdatedAt),
	}
}

// CreateTopicHandler handles POST /api/v1/topics.
func CreateTopicHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req topicRequest
		if !decodeBody(w, r, &req) {
			return
		}
		name := ""
		if req.Name != nil {
			name = strings.TrimSpace(*req.Name)
		}
		if name == "" {
			respondValidationErrors(w, []string{"name is required"})
			return
		}

		if _, err := queries.GetTopicByName(r.Context(), name); err == nil {
			respondError(w, http.StatusConflict, "topic with name '"+name+"' already exists")
			return
		} else if !storage.IsNotFound(err) {
			respondInternalError(w, log, err, "failed to look up topic by name")
			return
		}

		topic, err := queries.CreateTopic(r.Context(), storage.CreateTopicParams{
			Name:        name,
			Description: ptrToText(req.Description),
		})
		if err != nil {
			if storage.IsUniqueViolation(err) {
				respondError(w, http.StatusConflict, "topic with name '"+name+"' already exists")
				return
			}
			respondInternalError(w, log, err, "failed to create topic")
			return
		}

		respondJSON(w, http.StatusCreated, toTopicResponse(topic))
	}
}

// ListTopicsHandler handles GET /api/v1/topics.
func ListTopicsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topics, err := queries.ListTopics(r.Context())
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list topics")
			return
		}

		resp := make([]topicResponse, 0, len(topics))
		for _, t := range topics {
			resp = append(resp, toTopicResponse(t))
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// GetTopicHandler handles GET /api/v1/topics/{id}.
func GetTopicHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		topic, ok := loadTopic(w, r, queries, id)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, toTopicResponse(topic))
	}
}

// GetTopicByNameHandler handles GET /api/v1/topics/by-name?name=.
func GetTopicByNameHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			respondValidationErrors(w, []string{"name query parameter is required"})
			return
		}

		topic, err := queries.GetTopicByName(r.Context(), name)
		if err != nil {
			if storage.IsNotFound(err) {
				respondError(w, http.StatusNotFound, "topic with name '"+name+"' not found")
				return
			}
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to get topic by name")
			return
		}
		respondJSON(w, http.StatusOK, toTopicResponse(topic))
	}
}

// UpdateTopicHandler handles PUT /api/v1/topics/{id}. Omitted fields keep
// their current value.
func UpdateTopicHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req topicRequest
		if !decodeBody(w, r, &req) {
			return
		}

		current, ok := loadTopic(w, r, queries, id)
		if !ok {
			return
		}

		params := storage.UpdateTopicParams{
			ID:          id,
			Name:        current.Name,
			Description: current.Description,
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondValidationErrors(w, []string{"name must not be empty"})
				return
			}
			if name != current.Name {
				if _, err := queries.GetTopicByName(r.Context(), name); err == nil {
					respondError(w, http.StatusConflict, "another topic already uses the name '"+name+"'")
					return
				} else if !storage.IsNotFound(err) {
					respondInternalError(w, log, err, "failed to look up topic by name")
					return
				}
			}
			params.Name = name
		}
		if req.Description != nil {
			params.Description = ptrToText(req.Description)
		}

		topic, err := queries.UpdateTopic(r.Context(), params)
		if err != nil {
			switch {
			case storage.IsNotFound(err):
				respondError(w, http.StatusNotFound, "topic not found")
			case storage.IsUniqueViolation(err):
				respondError(w, http.StatusConflict, "another topic already uses the name '"+params.Name+"'")
			default:
				respondInternalError(w, log, err, "failed to update topic")
			}
			return
		}

		respondJSON(w, http.StatusOK, toTopicResponse(topic))
	}
}

// DeleteTopicHandler handles DELETE /api/v1/topics/{id}. Topics that still
// own content or subscriptions are not deleted.
func DeleteTopicHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadTopic(w, r, queries, id); !ok {
			return
		}

		contents, err := queries.CountContentsByTopic(r.Context(), id)
		if err != nil {
			respondInternalError(w, log, err, "failed to count topic contents")
			return
		}
		if contents > 0 {
			respondError(w, http.StatusUnprocessableEntity, "topic has content items; delete contents first")
			return
		}

		subs, err := queries.CountSubscriptionsByTopic(r.Context(), id)
		if err != nil {
			respondInternalError(w, log, err, "failed to count topic subscriptions")
			return
		}
		if subs > 0 {
			respondError(w, http.StatusUnprocessableEntity, "topic has active subscribers; unsubscribe them before deleting")
			return
		}

		if err := queries.DeleteTopic(r.Context(), id); err != nil {
			if storage.IsForeignKeyViolation(err) {
				respondError(w, http.StatusUnprocessableEntity, "topic is still referenced")
				return
			}
			respondInternalError(w, log, err, "failed to delete topic")
			return
		}

		respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "topic_id": id})
	}
}

func loadTopic(w http.ResponseWriter, r *http.Request, queries storage.Querier, id uuid.UUID) (storage.Topic, bool) {
	topic, err := queries.GetTopicByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "topic not found")
			return storage.Topic{}, false
		}
		respondInternalError(w, logger.FromContext(r.Context()), err, "failed to get topic")
		return storage.Topic{}, false
	}
	return topic, true
}
