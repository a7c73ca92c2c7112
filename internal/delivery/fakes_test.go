package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/storage"
)

// fakeQuerier keeps the rows the executor touches in memory. Methods the
// executor never calls fall through to the nil embedded interface.
type fakeQuerier struct {
	storage.Querier

	mu          sync.Mutex
	contents    map[uuid.UUID]storage.Content
	subscribers map[uuid.UUID][]storage.Subscriber
	logs        []storage.CreateDeliveryLogParams
	markCalls   int

	getContentErr error
	listSubsErr   error
	createLogErr  error
	markErr       error
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		contents:    make(map[uuid.UUID]storage.Content),
		subscribers: make(map[uuid.UUID][]storage.Subscriber),
	}
}

func (f *fakeQuerier) GetContentByID(_ context.Context, id uuid.UUID) (storage.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getContentErr != nil {
		return storage.Content{}, f.getContentErr
	}
	c, ok := f.contents[id]
	if !ok {
		return storage.Content{}, pgx.ErrNoRows
	}
	return c, nil
}

func (f *fakeQuerier) ListSubscribersForTopic(_ context.Context, topicID uuid.UUID) ([]storage.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listSubsErr != nil {
		return nil, f.listSubsErr
	}
	return append([]storage.Subscriber(nil), f.subscribers[topicID]...), nil
}

func (f *fakeQuerier) CreateDeliveryLog(_ context.Context, arg storage.CreateDeliveryLogParams) (storage.DeliveryLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createLogErr != nil {
		return storage.DeliveryLog{}, f.createLogErr
	}
	f.logs = append(f.logs, arg)
	return storage.DeliveryLog{
		ID:           uuid.New(),
		ContentID:    arg.ContentID,
		SubscriberID: arg.SubscriberID,
		Status:       arg.Status,
		Error:        arg.Error,
		SentAt:       arg.SentAt,
	}, nil
}

func (f *fakeQuerier) MarkContentSent(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.markErr != nil {
		return false, f.markErr
	}
	c, ok := f.contents[id]
	if !ok || c.Sent {
		return false, nil
	}
	c.Sent = true
	f.contents[id] = c
	return true, nil
}

func (f *fakeQuerier) addContent(topicID uuid.UUID, subject string, sent bool) storage.Content {
	c := storage.Content{
		ID:            uuid.New(),
		TopicID:       topicID,
		Subject:       subject,
		Body:          "Body of " + subject,
		ScheduledTime: pgtype.Timestamptz{Time: fixedNow.Add(-time.Hour), Valid: true},
		Sent:          sent,
	}
	f.contents[c.ID] = c
	return c
}

func (f *fakeQuerier) addSubscriber(topicID uuid.UUID, name, email string) storage.Subscriber {
	s := storage.Subscriber{
		ID:    uuid.New(),
		Name:  pgtype.Text{String: name, Valid: name != ""},
		Email: email,
	}
	f.subscribers[topicID] = append(f.subscribers[topicID], s)
	return s
}

func (f *fakeQuerier) logsFor(subscriberID uuid.UUID) []storage.CreateDeliveryLogParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.CreateDeliveryLogParams
	for _, l := range f.logs {
		if l.SubscriberID == subscriberID {
			out = append(out, l)
		}
	}
	return out
}

// scriptedProvider returns queued results per recipient address. An empty
// queue means success.
type scriptedProvider struct {
	mu      sync.Mutex
	script  map[string][]error
	panics  map[string]bool
	calls   map[string]int
	lastMsg map[string]*provider.Message
}

func newScriptedProvider() *scriptedProvider {
	return &scriptedProvider{
		script:  make(map[string][]error),
		panics:  make(map[string]bool),
		calls:   make(map[string]int),
		lastMsg: make(map[string]*provider.Message),
	}
}

func (p *scriptedProvider) fail(addr string, errs ...error) {
	p.script[addr] = append(p.script[addr], errs...)
}

func (p *scriptedProvider) Send(_ context.Context, msg *provider.Message) (*provider.DeliveryResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[msg.To]++
	p.lastMsg[msg.To] = msg
	if p.panics[msg.To] {
		panic("boom")
	}
	if q := p.script[msg.To]; len(q) > 0 {
		p.script[msg.To] = q[1:]
		if q[0] != nil {
			return nil, q[0]
		}
	}
	return &provider.DeliveryResult{ProviderMessageID: "fake-" + msg.ID, Status: provider.StatusSent}, nil
}

func (p *scriptedProvider) GetName() string { return "fake" }

func (p *scriptedProvider) HealthCheck(_ context.Context) error { return nil }

func (p *scriptedProvider) callCount(addr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[addr]
}

// sleepRecorder stands in for the retry pause.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return s.err
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

var errSMTPDown = errors.New("connection refused")
