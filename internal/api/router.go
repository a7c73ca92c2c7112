package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/storage"
)

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(queries storage.Querier, db Pinger, jobs JobScheduler, log zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware(log))
	r.Use(LoggingMiddleware(log))
	r.Use(RecoverMiddleware(log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Topics
		r.Post("/topics", CreateTopicHandler(queries))
		r.Get("/topics", ListTopicsHandler(queries))
		r.Get("/topics/by-name", GetTopicByNameHandler(queries))
		r.Get("/topics/{id}", GetTopicHandler(queries))
		r.Put("/topics/{id}", UpdateTopicHandler(queries))
		r.Delete("/topics/{id}", DeleteTopicHandler(queries))
		r.Get("/topics/{id}/contents", ListTopicContentsHandler(queries))
		r.Get("/topics/{id}/subscriptions", ListTopicSubscriptionsHandler(queries))

		// Subscribers
		r.Post("/subscribers", CreateSubscriberHandler(queries))
		r.Get("/subscribers", ListSubscribersHandler(queries))
		r.Get("/subscribers/by-email", GetSubscriberByEmailHandler(queries))
		r.Get("/subscribers/{id}", GetSubscriberHandler(queries))
		r.Put("/subscribers/{id}", UpdateSubscriberHandler(queries))
		r.Delete("/subscribers/{id}", DeleteSubscriberHandler(queries))
		r.Post("/subscribers/{id}/subscriptions", SubscribeHandler(queries))
		r.Get("/subscribers/{id}/subscriptions", ListSubscriberSubscriptionsHandler(queries))
		r.Get("/subscribers/{id}/deliveries", ListSubscriberDeliveriesHandler(queries))

		// Subscriptions
		r.Delete("/subscriptions/{id}", UnsubscribeHandler(queries))

		// Contents
		r.Post("/contents", CreateContentHandler(queries, jobs))
		r.Get("/contents", ListContentsHandler(queries))
		r.Get("/contents/pending", ListPendingContentsHandler(queries))
		r.Get("/contents/scheduled", ListScheduledContentsHandler(queries))
		r.Get("/contents/{id}", GetContentHandler(queries))
		r.Put("/contents/{id}", UpdateContentHandler(queries, jobs))
		r.Delete("/contents/{id}", DeleteContentHandler(queries, jobs))
		r.Get("/contents/{id}/deliveries", ListContentDeliveriesHandler(queries))

		// Scheduler
		r.Get("/scheduler/jobs", ListJobsHandler(jobs))
		r.Post("/scheduler/reconcile", ReconcileHandler(jobs))
	})

	return r
}
