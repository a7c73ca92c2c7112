package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sungwon/newsletter/internal/scheduler"
	"github.com/sungwon/newsletter/internal/storage"
)

// mockQuerier implements storage.Querier for testing. Unset single-row
// lookups report pgx.ErrNoRows; unset writes succeed with a zero value.
type mockQuerier struct {
	// Topic methods
	createTopicFn    func(ctx context.Context, arg storage.CreateTopicParams) (storage.Topic, error)
	getTopicByIDFn   func(ctx context.Context, id uuid.UUID) (storage.Topic, error)
	getTopicByNameFn func(ctx context.Context, name string) (storage.Topic, error)
	listTopicsFn     func(ctx context.Context) ([]storage.Topic, error)
	updateTopicFn    func(ctx context.Context, arg storage.UpdateTopicParams) (storage.Topic, error)
	deleteTopicFn    func(ctx context.Context, id uuid.UUID) error

	// Subscriber methods
	createSubscriberFn     func(ctx context.Context, arg storage.CreateSubscriberParams) (storage.Subscriber, error)
	getSubscriberByIDFn    func(ctx context.Context, id uuid.UUID) (storage.Subscriber, error)
	getSubscriberByEmailFn func(ctx context.Context, email string) (storage.Subscriber, error)
	listSubscribersFn      func(ctx context.Context) ([]storage.Subscriber, error)
	updateSubscriberFn     func(ctx context.Context, arg storage.UpdateSubscriberParams) (storage.Subscriber, error)
	deleteSubscriberFn     func(ctx context.Context, id uuid.UUID) error

	// Subscription methods
	createSubscriptionFn              func(ctx context.Context, arg storage.CreateSubscriptionParams) (storage.Subscription, error)
	getSubscriptionByIDFn             func(ctx context.Context, id uuid.UUID) (storage.Subscription, error)
	listSubscriptionsBySubscriberFn   func(ctx context.Context, subscriberID uuid.UUID) ([]storage.Subscription, error)
	listSubscriptionsByTopicFn        func(ctx context.Context, topicID uuid.UUID) ([]storage.Subscription, error)
	countSubscriptionsByTopicFn       func(ctx context.Context, topicID uuid.UUID) (int64, error)
	deleteSubscriptionFn              func(ctx context.Context, id uuid.UUID) error
	deleteSubscriptionsBySubscriberFn func(ctx context.Context, subscriberID uuid.UUID) error
	listSubscribersForTopicFn         func(ctx context.Context, topicID uuid.UUID) ([]storage.Subscriber, error)

	// Content methods
	createContentFn                func(ctx context.Context, arg storage.CreateContentParams) (storage.Content, error)
	getContentByIDFn               func(ctx context.Context, id uuid.UUID) (storage.Content, error)
	listContentsFn                 func(ctx context.Context, f storage.ContentFilter) ([]storage.Content, error)
	listContentsByTopicFn          func(ctx context.Context, topicID uuid.UUID) ([]storage.Content, error)
	listUnsentContentsFn           func(ctx context.Context) ([]storage.Content, error)
	listPendingContentsFn          func(ctx context.Context, asOf time.Time) ([]storage.Content, error)
	listContentsScheduledBetweenFn func(ctx context.Context, arg storage.ListContentsScheduledBetweenParams) ([]storage.Content, error)
	updateContentFn                func(ctx context.Context, arg storage.UpdateContentParams) (storage.Content, error)
	markContentSentFn              func(ctx context.Context, id uuid.UUID) (bool, error)
	deleteContentFn                func(ctx context.Context, id uuid.UUID) (bool, error)
	countContentsByTopicFn         func(ctx context.Context, topicID uuid.UUID) (int64, error)

	// Delivery log methods
	createDeliveryLogFn             func(ctx context.Context, arg storage.CreateDeliveryLogParams) (storage.DeliveryLog, error)
	listDeliveryLogsByContentFn     func(ctx context.Context, contentID uuid.UUID) ([]storage.DeliveryLog, error)
	listDeliveryLogsBySubscriberFn  func(ctx context.Context, subscriberID uuid.UUID) ([]storage.DeliveryLog, error)
	countDeliveryLogsBySubscriberFn func(ctx context.Context, subscriberID uuid.UUID) (int64, error)
}

var _ storage.Querier = (*mockQuerier)(nil)

// --- Topic methods ---

func (m *mockQuerier) CreateTopic(ctx context.Context, arg storage.CreateTopicParams) (storage.Topic, error) {
	if m.createTopicFn != nil {
		return m.createTopicFn(ctx, arg)
	}
	return storage.Topic{}, nil
}

func (m *mockQuerier) GetTopicByID(ctx context.Context, id uuid.UUID) (storage.Topic, error) {
	if m.getTopicByIDFn != nil {
		return m.getTopicByIDFn(ctx, id)
	}
	return storage.Topic{}, pgx.ErrNoRows
}

func (m *mockQuerier) GetTopicByName(ctx context.Context, name string) (storage.Topic, error) {
	if m.getTopicByNameFn != nil {
		return m.getTopicByNameFn(ctx, name)
	}
	return storage.Topic{}, pgx.ErrNoRows
}

func (m *mockQuerier) ListTopics(ctx context.Context) ([]storage.Topic, error) {
	if m.listTopicsFn != nil {
		return m.listTopicsFn(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateTopic(ctx context.Context, arg storage.UpdateTopicParams) (storage.Topic, error) {
	if m.updateTopicFn != nil {
		return m.updateTopicFn(ctx, arg)
	}
	return storage.Topic{}, nil
}

func (m *mockQuerier) DeleteTopic(ctx context.Context, id uuid.UUID) error {
	if m.deleteTopicFn != nil {
		return m.deleteTopicFn(ctx, id)
	}
	return nil
}

// --- Subscriber methods ---

func (m *mockQuerier) CreateSubscriber(ctx context.Context, arg storage.CreateSubscriberParams) (storage.Subscriber, error) {
	if m.createSubscriberFn != nil {
		return m.createSubscriberFn(ctx, arg)
	}
	return storage.Subscriber{}, nil
}

func (m *mockQuerier) GetSubscriberByID(ctx context.Context, id uuid.UUID) (storage.Subscriber, error) {
	if m.getSubscriberByIDFn != nil {
		return m.getSubscriberByIDFn(ctx, id)
	}
	return storage.Subscriber{}, pgx.ErrNoRows
}

func (m *mockQuerier) GetSubscriberByEmail(ctx context.Context, email string) (storage.Subscriber, error) {
	if m.getSubscriberByEmailFn != nil {
		return m.getSubscriberByEmailFn(ctx, email)
	}
	return storage.Subscriber{}, pgx.ErrNoRows
}

func (m *mockQuerier) ListSubscribers(ctx context.Context) ([]storage.Subscriber, error) {
	if m.listSubscribersFn != nil {
		return m.listSubscribersFn(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateSubscriber(ctx context.Context, arg storage.UpdateSubscriberParams) (storage.Subscriber, error) {
	if m.updateSubscriberFn != nil {
		return m.updateSubscriberFn(ctx, arg)
	}
	return storage.Subscriber{}, nil
}

func (m *mockQuerier) DeleteSubscriber(ctx context.Context, id uuid.UUID) error {
	if m.deleteSubscriberFn != nil {
		return m.deleteSubscriberFn(ctx, id)
	}
	return nil
}

// --- Subscription methods ---

func (m *mockQuerier) CreateSubscription(ctx context.Context, arg storage.CreateSubscriptionParams) (storage.Subscription, error) {
	if m.createSubscriptionFn != nil {
		return m.createSubscriptionFn(ctx, arg)
	}
	return storage.Subscription{}, nil
}

func (m *mockQuerier) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (storage.Subscription, error) {
	if m.getSubscriptionByIDFn != nil {
		return m.getSubscriptionByIDFn(ctx, id)
	}
	return storage.Subscription{}, pgx.ErrNoRows
}

func (m *mockQuerier) ListSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]storage.Subscription, error) {
	if m.listSubscriptionsBySubscriberFn != nil {
		return m.listSubscriptionsBySubscriberFn(ctx, subscriberID)
	}
	return nil, nil
}

func (m *mockQuerier) ListSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) ([]storage.Subscription, error) {
	if m.listSubscriptionsByTopicFn != nil {
		return m.listSubscriptionsByTopicFn(ctx, topicID)
	}
	return nil, nil
}

func (m *mockQuerier) CountSubscriptionsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error) {
	if m.countSubscriptionsByTopicFn != nil {
		return m.countSubscriptionsByTopicFn(ctx, topicID)
	}
	return 0, nil
}

func (m *mockQuerier) DeleteSubscription(ctx context.Context, id uuid.UUID) error {
	if m.deleteSubscriptionFn != nil {
		return m.deleteSubscriptionFn(ctx, id)
	}
	return nil
}

func (m *mockQuerier) DeleteSubscriptionsBySubscriber(ctx context.Context, subscriberID uuid.UUID) error {
	if m.deleteSubscriptionsBySubscriberFn != nil {
		return m.deleteSubscriptionsBySubscriberFn(ctx, subscriberID)
	}
	return nil
}

func (m *mockQuerier) ListSubscribersForTopic(ctx context.Context, topicID uuid.UUID) ([]storage.Subscriber, error) {
	if m.listSubscribersForTopicFn != nil {
		return m.listSubscribersForTopicFn(ctx, topicID)
	}
	return nil, nil
}

// --- Content methods ---

func (m *mockQuerier) CreateContent(ctx context.Context, arg storage.CreateContentParams) (storage.Content, error) {
	if m.createContentFn != nil {
		return m.createContentFn(ctx, arg)
	}
	return storage.Content{}, nil
}

func (m *mockQuerier) GetContentByID(ctx context.Context, id uuid.UUID) (storage.Content, error) {
	if m.getContentByIDFn != nil {
		return m.getContentByIDFn(ctx, id)
	}
	return storage.Content{}, pgx.ErrNoRows
}

func (m *mockQuerier) ListContents(ctx context.Context, f storage.ContentFilter) ([]storage.Content, error) {
	if m.listContentsFn != nil {
		return m.listContentsFn(ctx, f)
	}
	return nil, nil
}

func (m *mockQuerier) ListContentsByTopic(ctx context.Context, topicID uuid.UUID) ([]storage.Content, error) {
	if m.listContentsByTopicFn != nil {
		return m.listContentsByTopicFn(ctx, topicID)
	}
	return nil, nil
}

func (m *mockQuerier) ListUnsentContents(ctx context.Context) ([]storage.Content, error) {
	if m.listUnsentContentsFn != nil {
		return m.listUnsentContentsFn(ctx)
	}
	return nil, nil
}

func (m *mockQuerier) ListPendingContents(ctx context.Context, asOf time.Time) ([]storage.Content, error) {
	if m.listPendingContentsFn != nil {
		return m.listPendingContentsFn(ctx, asOf)
	}
	return nil, nil
}

func (m *mockQuerier) ListContentsScheduledBetween(ctx context.Context, arg storage.ListContentsScheduledBetweenParams) ([]storage.Content, error) {
	if m.listContentsScheduledBetweenFn != nil {
		return m.listContentsScheduledBetweenFn(ctx, arg)
	}
	return nil, nil
}

func (m *mockQuerier) UpdateContent(ctx context.Context, arg storage.UpdateContentParams) (storage.Content, error) {
	if m.updateContentFn != nil {
		return m.updateContentFn(ctx, arg)
	}
	return storage.Content{}, nil
}

func (m *mockQuerier) MarkContentSent(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.markContentSentFn != nil {
		return m.markContentSentFn(ctx, id)
	}
	return true, nil
}

func (m *mockQuerier) DeleteContent(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.deleteContentFn != nil {
		return m.deleteContentFn(ctx, id)
	}
	return true, nil
}

func (m *mockQuerier) CountContentsByTopic(ctx context.Context, topicID uuid.UUID) (int64, error) {
	if m.countContentsByTopicFn != nil {
		return m.countContentsByTopicFn(ctx, topicID)
	}
	return 0, nil
}

// --- Delivery log methods ---

func (m *mockQuerier) CreateDeliveryLog(ctx context.Context, arg storage.CreateDeliveryLogParams) (storage.DeliveryLog, error) {
	if m.createDeliveryLogFn != nil {
		return m.createDeliveryLogFn(ctx, arg)
	}
	return storage.DeliveryLog{}, nil
}

func (m *mockQuerier) ListDeliveryLogsByContent(ctx context.Context, contentID uuid.UUID) ([]storage.DeliveryLog, error) {
	if m.listDeliveryLogsByContentFn != nil {
		return m.listDeliveryLogsByContentFn(ctx, contentID)
	}
	return nil, nil
}

func (m *mockQuerier) ListDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) ([]storage.DeliveryLog, error) {
	if m.listDeliveryLogsBySubscriberFn != nil {
		return m.listDeliveryLogsBySubscriberFn(ctx, subscriberID)
	}
	return nil, nil
}

func (m *mockQuerier) CountDeliveryLogsBySubscriber(ctx context.Context, subscriberID uuid.UUID) (int64, error) {
	if m.countDeliveryLogsBySubscriberFn != nil {
		return m.countDeliveryLogsBySubscriberFn(ctx, subscriberID)
	}
	return 0, nil
}

// mockScheduler records the registry calls made by handlers.
type mockScheduler struct {
	mu         sync.Mutex
	scheduled  map[uuid.UUID]time.Time
	cancelled  []uuid.UUID
	reconciled int
	reconcileN int
	reconcileE error
}

var _ JobScheduler = (*mockScheduler)(nil)

func newMockScheduler() *mockScheduler {
	return &mockScheduler{scheduled: make(map[uuid.UUID]time.Time)}
}

func (m *mockScheduler) Schedule(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduled[id] = at.UTC()
}

func (m *mockScheduler) Cancel(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, id)
	_, ok := m.scheduled[id]
	delete(m.scheduled, id)
	return ok
}

func (m *mockScheduler) Pending() []scheduler.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]scheduler.Job, 0, len(m.scheduled))
	for id, at := range m.scheduled {
		jobs = append(jobs, scheduler.Job{ContentID: id, FireAt: at})
	}
	return jobs
}

func (m *mockScheduler) Reconcile(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled++
	return m.reconcileN, m.reconcileE
}
