package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/storage"
)

var fixedNow = time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)

func newTestExecutor(q *fakeQuerier, p provider.Provider, s *sleepRecorder) *Executor {
	e := NewExecutor(q, p, NewRenderer("Test News"), Config{
		SenderAddress: "news@example.com",
		SenderName:    "Test News",
	}, zerolog.Nop())
	e.now = func() time.Time { return fixedNow }
	e.sleep = s.sleep
	return e
}

func TestExecutor_Deliver_WeeklyScenario(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()
	s := &sleepRecorder{}

	weekly := uuid.New()
	a := q.addSubscriber(weekly, "Ada", "a@example.com")
	b := q.addSubscriber(weekly, "Bob", "b@example.com")
	hello := q.addContent(weekly, "Hello", false)

	p.fail("b@example.com", errors.New("mailbox busy"), errors.New("mailbox still busy"))

	report, err := newTestExecutor(q, p, s).Deliver(context.Background(), hello.ID)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	aLogs := q.logsFor(a.ID)
	if len(aLogs) != 1 {
		t.Fatalf("expected 1 log for A, got %d", len(aLogs))
	}
	if aLogs[0].Status != storage.DeliveryStatusSent || aLogs[0].Error.Valid {
		t.Errorf("A log = %+v, want sent with null error", aLogs[0])
	}

	bLogs := q.logsFor(b.ID)
	if len(bLogs) != 1 {
		t.Fatalf("expected 1 log for B, got %d", len(bLogs))
	}
	if bLogs[0].Status != storage.DeliveryStatusFailed {
		t.Errorf("B status = %s, want failed", bLogs[0].Status)
	}
	if bLogs[0].Error.String != "mailbox still busy" {
		t.Errorf("B error = %q, want last failure message", bLogs[0].Error.String)
	}

	if !q.contents[hello.ID].Sent {
		t.Error("expected content to be marked sent after a partial success")
	}
	if !report.MarkedSent || report.Sent != 1 || report.Failed != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if p.callCount("a@example.com") != 1 || p.callCount("b@example.com") != 2 {
		t.Errorf("calls A=%d B=%d, want 1 and 2", p.callCount("a@example.com"), p.callCount("b@example.com"))
	}
	if s.count() != 1 {
		t.Errorf("expected exactly one retry pause (for B), got %d", s.count())
	}
}

func TestExecutor_Deliver_NoSubscribersMarksSent(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()
	s := &sleepRecorder{}

	c := q.addContent(uuid.New(), "Lonely", false)

	report, err := newTestExecutor(q, p, s).Deliver(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(q.logs) != 0 {
		t.Errorf("expected zero delivery logs, got %d", len(q.logs))
	}
	if !q.contents[c.ID].Sent || !report.MarkedSent {
		t.Error("expected content with no subscribers to be marked sent")
	}
}

func TestExecutor_Deliver_SkipsWithoutWrites(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(q *fakeQuerier) uuid.UUID
		wantReason string
	}{
		{
			name: "already sent",
			setup: func(q *fakeQuerier) uuid.UUID {
				topic := uuid.New()
				q.addSubscriber(topic, "Ada", "a@example.com")
				return q.addContent(topic, "Old", true).ID
			},
			wantReason: "already_sent",
		},
		{
			name:       "missing content",
			setup:      func(_ *fakeQuerier) uuid.UUID { return uuid.New() },
			wantReason: "not_found",
		},
		{
			name: "not due yet",
			setup: func(q *fakeQuerier) uuid.UUID {
				topic := uuid.New()
				q.addSubscriber(topic, "Ada", "a@example.com")
				c := q.addContent(topic, "Later", false)
				c.ScheduledTime.Time = fixedNow.Add(time.Hour)
				q.contents[c.ID] = c
				return c.ID
			},
			wantReason: SkipNotDue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQuerier()
			p := newScriptedProvider()
			id := tt.setup(q)

			report, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), id)
			if err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}
			if !report.Skipped || report.SkipReason != tt.wantReason {
				t.Errorf("report = %+v, want skipped with %s", report, tt.wantReason)
			}
			if len(q.logs) != 0 || q.markCalls != 0 {
				t.Errorf("expected no writes, got %d logs and %d mark calls", len(q.logs), q.markCalls)
			}
			if p.callCount("a@example.com") != 0 {
				t.Error("expected no sends")
			}
		})
	}
}

func TestExecutor_Deliver_RetryOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		failures    []error
		wantStatus  storage.DeliveryStatus
		wantErrText string
		wantCalls   int
		wantSleeps  int
		wantSent    bool
	}{
		{
			name:       "first attempt succeeds",
			wantStatus: storage.DeliveryStatusSent,
			wantCalls:  1,
			wantSleeps: 0,
			wantSent:   true,
		},
		{
			name:       "second attempt succeeds",
			failures:   []error{errSMTPDown},
			wantStatus: storage.DeliveryStatusSent,
			wantCalls:  2,
			wantSleeps: 1,
			wantSent:   true,
		},
		{
			name:        "both attempts fail",
			failures:    []error{errors.New("first"), errors.New("second")},
			wantStatus:  storage.DeliveryStatusFailed,
			wantErrText: "second",
			wantCalls:   2,
			wantSleeps:  1,
			wantSent:    false,
		},
		{
			name: "permanent error is still retried",
			failures: []error{
				&provider.ProviderError{Provider: "fake", Code: 401, Message: "bad credentials", Permanent: true},
				&provider.ProviderError{Provider: "fake", Code: 401, Message: "bad credentials", Permanent: true},
			},
			wantStatus:  storage.DeliveryStatusFailed,
			wantErrText: "fake: bad credentials",
			wantCalls:   2,
			wantSleeps:  1,
			wantSent:    false,
		},
		{
			name:       "permanent error then success",
			failures:   []error{&provider.ProviderError{Provider: "fake", Code: 400, Message: "invalid recipient", Permanent: true}},
			wantStatus: storage.DeliveryStatusSent,
			wantCalls:  2,
			wantSleeps: 1,
			wantSent:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQuerier()
			p := newScriptedProvider()
			s := &sleepRecorder{}

			topic := uuid.New()
			sub := q.addSubscriber(topic, "Ada", "a@example.com")
			c := q.addContent(topic, "Issue", false)
			p.fail("a@example.com", tt.failures...)

			if _, err := newTestExecutor(q, p, s).Deliver(context.Background(), c.ID); err != nil {
				t.Fatalf("Deliver() error = %v", err)
			}

			logs := q.logsFor(sub.ID)
			if len(logs) != 1 {
				t.Fatalf("expected exactly one terminal log, got %d", len(logs))
			}
			if logs[0].Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", logs[0].Status, tt.wantStatus)
			}
			if tt.wantErrText == "" && logs[0].Error.Valid {
				t.Errorf("expected null error, got %q", logs[0].Error.String)
			}
			if tt.wantErrText != "" && logs[0].Error.String != tt.wantErrText {
				t.Errorf("error = %q, want %q", logs[0].Error.String, tt.wantErrText)
			}
			if got := p.callCount("a@example.com"); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if s.count() != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", s.count(), tt.wantSleeps)
			}
			if q.contents[c.ID].Sent != tt.wantSent {
				t.Errorf("sent = %v, want %v", q.contents[c.ID].Sent, tt.wantSent)
			}
		})
	}
}

func TestExecutor_Deliver_RetryDelayIsConfigured(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()
	s := &sleepRecorder{}

	topic := uuid.New()
	q.addSubscriber(topic, "Ada", "a@example.com")
	c := q.addContent(topic, "Issue", false)
	p.fail("a@example.com", errSMTPDown)

	e := newTestExecutor(q, p, s)
	if _, err := e.Deliver(context.Background(), c.ID); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if len(s.waits) != 1 || s.waits[0] != 5*time.Second {
		t.Errorf("waits = %v, want [5s]", s.waits)
	}
}

func TestExecutor_Deliver_DeduplicatesSubscribers(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	sub := q.addSubscriber(topic, "Ada", "a@example.com")
	q.subscribers[topic] = append(q.subscribers[topic], sub)
	c := q.addContent(topic, "Issue", false)

	report, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if report.Subscribers != 1 {
		t.Errorf("subscribers = %d, want 1", report.Subscribers)
	}
	if p.callCount("a@example.com") != 1 {
		t.Errorf("expected one send to a duplicated subscriber, got %d", p.callCount("a@example.com"))
	}
	if len(q.logsFor(sub.ID)) != 1 {
		t.Errorf("expected one log row, got %d", len(q.logsFor(sub.ID)))
	}
}

func TestExecutor_Deliver_ProviderPanicIsContained(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	bad := q.addSubscriber(topic, "Ada", "a@example.com")
	good := q.addSubscriber(topic, "Bob", "b@example.com")
	c := q.addContent(topic, "Issue", false)
	p.panics["a@example.com"] = true

	report, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	badLogs := q.logsFor(bad.ID)
	if len(badLogs) != 1 || badLogs[0].Status != storage.DeliveryStatusFailed {
		t.Fatalf("expected one failed log for panicking send, got %+v", badLogs)
	}
	if !strings.Contains(badLogs[0].Error.String, "panicked") {
		t.Errorf("error = %q, want panic description", badLogs[0].Error.String)
	}
	if logs := q.logsFor(good.ID); len(logs) != 1 || logs[0].Status != storage.DeliveryStatusSent {
		t.Errorf("expected remaining subscriber to be delivered, got %+v", logs)
	}
	if !report.MarkedSent {
		t.Error("expected content marked sent")
	}
}

func TestExecutor_Deliver_LogWriteFailureDoesNotAbort(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	q.addSubscriber(topic, "Ada", "a@example.com")
	q.addSubscriber(topic, "Bob", "b@example.com")
	c := q.addContent(topic, "Issue", false)
	q.createLogErr = errors.New("disk full")

	report, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if p.callCount("a@example.com") != 1 || p.callCount("b@example.com") != 1 {
		t.Error("expected both subscribers to be attempted")
	}
	if report.Sent != 2 || !q.contents[c.ID].Sent {
		t.Errorf("expected content marked sent, report %+v", report)
	}
}

func TestExecutor_Deliver_SentAtIsAttemptTime(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	sub := q.addSubscriber(topic, "Ada", "a@example.com")
	c := q.addContent(topic, "Issue", false)

	if _, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	logs := q.logsFor(sub.ID)
	if !logs[0].SentAt.Valid || !logs[0].SentAt.Time.Equal(fixedNow) {
		t.Errorf("sent_at = %v, want %v", logs[0].SentAt.Time, fixedNow)
	}
	if logs[0].SentAt.Time.Equal(c.ScheduledTime.Time) {
		t.Error("sent_at must not be the scheduled time")
	}
}

func TestExecutor_Deliver_StorageErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(q *fakeQuerier)
	}{
		{"load content fails", func(q *fakeQuerier) { q.getContentErr = errors.New("db down") }},
		{"list subscribers fails", func(q *fakeQuerier) { q.listSubsErr = errors.New("db down") }},
		{"mark sent fails", func(q *fakeQuerier) { q.markErr = errors.New("db down") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newFakeQuerier()
			topic := uuid.New()
			q.addSubscriber(topic, "Ada", "a@example.com")
			c := q.addContent(topic, "Issue", false)
			tt.setup(q)

			_, err := newTestExecutor(q, newScriptedProvider(), &sleepRecorder{}).Deliver(context.Background(), c.ID)
			if err == nil {
				t.Fatal("expected storage error to be returned")
			}
		})
	}
}

func TestExecutor_Deliver_CancelledDuringRetryLeavesUnsent(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	a := q.addSubscriber(topic, "Ada", "a@example.com")
	b := q.addSubscriber(topic, "Bob", "b@example.com")
	c := q.addContent(topic, "Issue", false)
	p.fail("a@example.com", errSMTPDown)

	ctx, cancel := context.WithCancel(context.Background())
	s := &sleepRecorder{}
	e := newTestExecutor(q, p, s)
	e.sleep = func(_ context.Context, _ time.Duration) error {
		cancel()
		return context.Canceled
	}

	_, err := e.Deliver(ctx, c.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Deliver() error = %v, want context.Canceled", err)
	}

	if logs := q.logsFor(a.ID); len(logs) != 1 || logs[0].Status != storage.DeliveryStatusFailed {
		t.Errorf("expected a failed log for the interrupted subscriber, got %+v", logs)
	}
	if len(q.logsFor(b.ID)) != 0 {
		t.Error("expected remaining subscribers to be left for the next run")
	}
	if q.contents[c.ID].Sent {
		t.Error("expected interrupted content to stay unsent")
	}
}

func TestExecutor_Deliver_CancelledAfterPartialSuccessMarksSent(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	a := q.addSubscriber(topic, "Ada", "a@example.com")
	b := q.addSubscriber(topic, "Bob", "b@example.com")
	c := q.addContent(topic, "Issue", false)
	p.fail("b@example.com", errSMTPDown)

	ctx, cancel := context.WithCancel(context.Background())
	e := newTestExecutor(q, p, &sleepRecorder{})
	e.sleep = func(_ context.Context, _ time.Duration) error {
		cancel()
		return context.Canceled
	}

	report, err := e.Deliver(ctx, c.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Deliver() error = %v, want context.Canceled", err)
	}
	if report.Sent != 1 || !report.MarkedSent {
		t.Errorf("report = %+v, want one send and marked sent", report)
	}
	if !q.contents[c.ID].Sent {
		t.Fatal("expected content with a success to be marked sent")
	}

	again, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("second Deliver() error = %v", err)
	}
	if !again.Skipped || again.SkipReason != SkipAlreadySent {
		t.Errorf("second report = %+v, want already_sent skip", again)
	}
	if got := p.callCount("a@example.com"); got != 1 {
		t.Errorf("subscriber A emailed %d times, want 1", got)
	}
	if len(q.logsFor(a.ID)) != 1 || len(q.logsFor(b.ID)) != 1 {
		t.Errorf("logs A=%d B=%d, want one each", len(q.logsFor(a.ID)), len(q.logsFor(b.ID)))
	}
}

func TestExecutor_Deliver_MessageAddressing(t *testing.T) {
	q := newFakeQuerier()
	p := newScriptedProvider()

	topic := uuid.New()
	sub := q.addSubscriber(topic, "Ada", "a@example.com")
	c := q.addContent(topic, "Issue 9", false)

	if _, err := newTestExecutor(q, p, &sleepRecorder{}).Deliver(context.Background(), c.ID); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	msg := p.lastMsg["a@example.com"]
	if msg == nil {
		t.Fatal("expected a message to be sent")
	}
	if msg.From != "news@example.com" || msg.FromName != "Test News" {
		t.Errorf("from = %s <%s>", msg.FromName, msg.From)
	}
	if msg.ToName != "Ada" || msg.Subject != "Issue 9" {
		t.Errorf("to name %q subject %q", msg.ToName, msg.Subject)
	}
	if msg.ID != c.ID.String()+"_"+sub.ID.String() {
		t.Errorf("message id = %s", msg.ID)
	}
	if msg.Headers["X-Newsletter-Content-ID"] != c.ID.String() {
		t.Errorf("missing content id header: %v", msg.Headers)
	}
	if msg.Tracking["subscriber_id"] != sub.ID.String() || msg.Tracking["content_id"] != c.ID.String() {
		t.Errorf("tracking = %v", msg.Tracking)
	}
	if len(msg.Tags) != 2 || msg.Tags[1] != "topic-"+c.TopicID.String() {
		t.Errorf("tags = %v", msg.Tags)
	}
}

func TestUniqueSubscribers(t *testing.T) {
	a := storage.Subscriber{ID: uuid.New(), Email: "a@example.com"}
	b := storage.Subscriber{ID: uuid.New(), Email: "b@example.com"}

	got := uniqueSubscribers([]storage.Subscriber{a, b, a, b, a})
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Errorf("uniqueSubscribers() = %+v, want [a b] in first-seen order", got)
	}
	if got := uniqueSubscribers(nil); len(got) != 0 {
		t.Errorf("uniqueSubscribers(nil) = %+v, want empty", got)
	}
}
