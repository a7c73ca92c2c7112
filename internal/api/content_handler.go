package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/newsletter/internal/logger"
	"github.com/sungwon/newsletter/internal/scheduler"
	"github.com/sungwon/newsletter/internal/storage"
)

// JobScheduler is the part of the scheduler the API drives.
type JobScheduler interface {
	Schedule(contentID uuid.UUID, fireAt time.Time)
	Cancel(contentID uuid.UUID) bool
	Pending() []scheduler.Job
	Reconcile(ctx context.Context) (int, error)
}

const (
	errModifySent = "cannot modify content that is already sent"
	errDeleteSent = "cannot delete content that has already been sent"
)

type createContentRequest struct {
	TopicID       uuid.UUID  `json:"topic_id"`
	Subject       string     `json:"subject"`
	Body          string     `json:"body"`
	ScheduledTime *Timestamp `json:"scheduled_time"`
}

type updateContentRequest struct {
	TopicID       *uuid.UUID `json:"topic_id"`
	Subject       *string    `json:"subject"`
	Body          *string    `json:"body"`
	ScheduledTime *Timestamp `json:"scheduled_time"`
}

type contentResponse struct {
	ID            uuid.UUID `json:"id"`
	TopicID       uuid.UUID `json:"topic_id"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	ScheduledTime time.Time `json:"scheduled_time"`
	Sent          bool      `json:"sent"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toContentResponse(c storage.Content) contentResponse {
	return contentResponse{
		ID:            c.ID,
		TopicID:       c.TopicID,
		Subject:       c.Subject,
		Body:          c.Body,
		ScheduledTime: timestampToTime(c.ScheduledTime),
		Sent:          c.Sent,
		CreatedAt:     timestampToTime(c.CreatedAt),
		UpdatedAt:     timestampToTime(c.UpdatedAt),
	}
}

func toContentResponses(contents []storage.Content) []contentResponse {
	resp := make([]contentResponse, 0, len(contents))
	for _, c := range contents {
		resp = append(resp, toContentResponse(c))
	}
	return resp
}

// CreateContentHandler handles POST /api/v1/contents and registers the
// delivery job for the new content.
func CreateContentHandler(queries storage.Querier, jobs JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req createContentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		req.Subject = strings.TrimSpace(req.Subject)
		var errs []string
		if req.TopicID == uuid.Nil {
			errs = append(errs, "topic_id is required")
		}
		if req.Subject == "" {
			errs = append(errs, "subject must not be empty")
		}
		if req.Body == "" {
			errs = append(errs, "body is required")
		}
		if req.ScheduledTime == nil {
			errs = append(errs, "scheduled_time is required")
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		if _, ok := loadTopic(w, r, queries, req.TopicID); !ok {
			return
		}

		content, err := queries.CreateContent(r.Context(), storage.CreateContentParams{
			TopicID:       req.TopicID,
			Subject:       req.Subject,
			Body:          req.Body,
			ScheduledTime: pgtype.Timestamptz{Time: req.ScheduledTime.UTC(), Valid: true},
		})
		if err != nil {
			respondInternalError(w, log, err, "failed to create content")
			return
		}

		jobs.Schedule(content.ID, content.ScheduledTime.Time)
		log.Info().
			Stringer("content_id", content.ID).
			Time("scheduled_time", content.ScheduledTime.Time.UTC()).
			Msg("content created and scheduled")

		respondJSON(w, http.StatusCreated, toContentResponse(content))
	}
}

// ListContentsHandler handles GET /api/v1/contents with optional topic_id,
// sent, from, to, limit and offset filters.
func ListContentsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, errs := parseContentFilter(r)
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		contents, err := queries.ListContents(r.Context(), filter)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list contents")
			return
		}
		respondJSON(w, http.StatusOK, toContentResponses(contents))
	}
}

func parseContentFilter(r *http.Request) (storage.ContentFilter, []string) {
	var (
		f    storage.ContentFilter
		errs []string
		q    = r.URL.Query()
	)

	if raw := q.Get("topic_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			errs = append(errs, "invalid topic_id")
		}
		f.TopicID = id
	}
	if raw := q.Get("sent"); raw != "" {
		sent, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, "invalid sent flag")
		}
		f.Sent = &sent
	}
	from, err := queryTime(r, "from")
	if err != nil {
		errs = append(errs, err.Error())
	}
	to, err := queryTime(r, "to")
	if err != nil {
		errs = append(errs, err.Error())
	}
	f.From, f.To = from, to
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		errs = append(errs, "from must be before to")
	}
	for name, dst := range map[string]*uint64{"limit": &f.Limit, "offset": &f.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.ParseUint(raw, 10, 64)
			if err != nil {
				errs = append(errs, "invalid "+name)
			}
			*dst = n
		}
	}

	return f, errs
}

// ListPendingContentsHandler handles GET /api/v1/contents/pending?as_of=.
// It lists unsent content due at or before as_of, which defaults to now.
func ListPendingContentsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		asOf, err := queryTime(r, "as_of")
		if err != nil {
			respondValidationErrors(w, []string{err.Error()})
			return
		}
		if asOf.IsZero() {
			asOf = time.Now().UTC()
		}

		contents, err := queries.ListPendingContents(r.Context(), asOf)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list pending contents")
			return
		}
		respondJSON(w, http.StatusOK, toContentResponses(contents))
	}
}

// ListScheduledContentsHandler handles GET /api/v1/contents/scheduled?start=&end=.
// It lists content scheduled in [start, end), sent or not.
func ListScheduledContentsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var errs []string
		start, err := queryTime(r, "start")
		if err != nil {
			errs = append(errs, err.Error())
		}
		end, err := queryTime(r, "end")
		if err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) == 0 {
			switch {
			case start.IsZero() || end.IsZero():
				errs = append(errs, "start and end are required")
			case !start.Before(end):
				errs = append(errs, "start must be before end")
			}
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		contents, err := queries.ListContentsScheduledBetween(r.Context(), storage.ListContentsScheduledBetweenParams{
			Start: start,
			End:   end,
		})
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list scheduled contents")
			return
		}
		respondJSON(w, http.StatusOK, toContentResponses(contents))
	}
}

// ListTopicContentsHandler handles GET /api/v1/topics/{id}/contents.
func ListTopicContentsHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		topicID, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		if _, ok := loadTopic(w, r, queries, topicID); !ok {
			return
		}

		contents, err := queries.ListContentsByTopic(r.Context(), topicID)
		if err != nil {
			respondInternalError(w, logger.FromContext(r.Context()), err, "failed to list topic contents")
			return
		}
		respondJSON(w, http.StatusOK, toContentResponses(contents))
	}
}

// GetContentHandler handles GET /api/v1/contents/{id}.
func GetContentHandler(queries storage.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		content, ok := loadContent(w, r, queries, id)
		if !ok {
			return
		}
		respondJSON(w, http.StatusOK, toContentResponse(content))
	}
}

// UpdateContentHandler handles PUT /api/v1/contents/{id}. Sent content is
// immutable. On success the delivery job is re-registered at the new
// scheduled time.
func UpdateContentHandler(queries storage.Querier, jobs JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		var req updateContentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		current, ok := loadContent(w, r, queries, id)
		if !ok {
			return
		}
		if current.Sent {
			respondError(w, http.StatusUnprocessableEntity, errModifySent)
			return
		}

		params := storage.UpdateContentParams{
			ID:            id,
			TopicID:       current.TopicID,
			Subject:       current.Subject,
			Body:          current.Body,
			ScheduledTime: current.ScheduledTime,
		}
		var errs []string
		if req.Subject != nil {
			params.Subject = strings.TrimSpace(*req.Subject)
			if params.Subject == "" {
				errs = append(errs, "subject must not be empty")
			}
		}
		if req.Body != nil {
			params.Body = *req.Body
			if params.Body == "" {
				errs = append(errs, "body must not be empty")
			}
		}
		if req.ScheduledTime != nil {
			params.ScheduledTime = pgtype.Timestamptz{Time: req.ScheduledTime.UTC(), Valid: true}
		}
		if len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}
		if req.TopicID != nil && *req.TopicID != current.TopicID {
			if _, ok := loadTopic(w, r, queries, *req.TopicID); !ok {
				return
			}
			params.TopicID = *req.TopicID
		}

		updated, err := queries.UpdateContent(r.Context(), params)
		if err != nil {
			if storage.IsNotFound(err) {
				// Sent or deleted between the read and the write.
				respondContentGone(w, r, queries, id, errModifySent)
				return
			}
			respondInternalError(w, log, err, "failed to update content")
			return
		}

		jobs.Schedule(updated.ID, updated.ScheduledTime.Time)
		log.Info().
			Stringer("content_id", updated.ID).
			Time("scheduled_time", updated.ScheduledTime.Time.UTC()).
			Msg("content updated and rescheduled")

		respondJSON(w, http.StatusOK, toContentResponse(updated))
	}
}

// DeleteContentHandler handles DELETE /api/v1/contents/{id}. Sent content
// cannot be deleted. On success the pending delivery job is cancelled.
func DeleteContentHandler(queries storage.Querier, jobs JobScheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		current, ok := loadContent(w, r, queries, id)
		if !ok {
			return
		}
		if current.Sent {
			respondError(w, http.StatusUnprocessableEntity, errDeleteSent)
			return
		}

		deleted, err := queries.DeleteContent(r.Context(), id)
		if err != nil {
			if storage.IsForeignKeyViolation(err) {
				respondError(w, http.StatusUnprocessableEntity, "content has delivery history and cannot be deleted")
				return
			}
			respondInternalError(w, log, err, "failed to delete content")
			return
		}
		if !deleted {
			respondContentGone(w, r, queries, id, errDeleteSent)
			return
		}

		cancelled := jobs.Cancel(id)
		log.Info().
			Stringer("content_id", id).
			Bool("job_cancelled", cancelled).
			Msg("content deleted")

		respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true, "content_id": id})
	}
}

// respondContentGone resolves a conditional write that matched no row: the
// content was either deleted or sent concurrently.
func respondContentGone(w http.ResponseWriter, r *http.Request, queries storage.Querier, id uuid.UUID, sentMsg string) {
	content, ok := loadContent(w, r, queries, id)
	if !ok {
		return
	}
	if content.Sent {
		respondError(w, http.StatusUnprocessableEntity, sentMsg)
		return
	}
	respondError(w, http.StatusConflict, "content changed concurrently; retry the request")
}

func loadContent(w http.ResponseWriter, r *http.Request, queries storage.Querier, id uuid.UUID) (storage.Content, bool) {
	content, err := queries.GetContentByID(r.Context(), id)
	if err != nil {
		if storage.IsNotFound(err) {
			respondError(w, http.StatusNotFound, "content not found")
			return storage.Content{}, false
		}
		respondInternalError(w, logger.FromContext(r.Context()), err, "failed to get content")
		return storage.Content{}, false
	}
	return content, true
}
