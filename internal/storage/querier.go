package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Querier interface {
	// Topics
	CreateTopic(ctx context.Context, arg CreateTopicParams) (Topic, error)
	GetTopicByID(ctx context.Context, id uuid.UUID) (Topic, error)
	GetTopicByName(ctx context.Context, name string) (Topic, error)
	ListTopics(ctx context.Context) ([]Topic, error)
	UpdateTopic(ctx context.Context, arg UpdateTopicParams) (Topic, error)
	DeleteTopic(ctx context.Context, id uuid.UUID) error

	// Subscribers
	CreateSubscriber(ctx context.Context, arg CreateSubscriberParams) (Subscriber, error)
	GetSubscriberByID(ctx context.Context, id uuid.UUID) (Subscriber, error)
	GetSubscriberByEmail(ctx context.Context, email string) (Subscriber, error)
	ListSubscribers(ctx context.Context) ([]Subscriber, error)
	UpdateSubscriber(ctx context.Context, arg UpdateSubscriberParams) (Subscriber, error)
	DeleteSubscriber(ctx context.Context, id uuid.UUID) error

	// Subscriptions
	CreateSubscription(ctx context.Context, arg CreateSubscriptionParams) (Subscription, error)
	GetSubscriptionByID(ctx context.Context, id uuid.UUID) (Subscription, error)
	ListSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]Subscription, error)
	ListSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) ([]Subscription, error)
	CountSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error)
	DeleteSubscription(ctx context.Context, id uuid.UUID) error
	DeleteSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) error
	ListSubscribersForTopic(ctx context.Context, topicID uuid.UUID) ([]Subscriber, error)

	// Contents
	CreateContent(ctx context.Context, arg CreateContentParams) (Content, error)
	GetContentByID(ctx context.Context, id uuid.UUID) (Content, error)
	ListContents(ctx context.Context, f ContentFilter) ([]Content, error)
	ListContentsByTopic(ctx context.Context, topicID uuid.UUID) ([]Content, error)
	ListUnsentContents(ctx context.Context) ([]Content, error)
	ListPendingContents(ctx context.Context, asOf time.Time) ([]Content, error)
	ListContentsScheduledBetween(ctx context.Context, arg ListContentsScheduledBetweenParams) ([]Content, error)
	UpdateContent(ctx context.Context, arg UpdateContentParams) (Content, error)
	MarkContentSent(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteContent(ctx context.Context, id uuid.UUID) (bool, error)
	CountContentsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error)

	// Delivery logs
	CreateDeliveryLog(ctx context.Context, arg CreateDeliveryLogParams) (DeliveryLog, error)
	ListDeliveryLogsByContent(ctx context.Context, contentID uuid.UUID) ([]DeliveryLog, error)
	ListDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]DeliveryLog, error)
	CountDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) (int64, error)
}

var _ Querier = (*Queries)(nil)
