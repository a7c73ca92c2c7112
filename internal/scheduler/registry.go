package scheduler

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sungwon/newsletter/internal/metrics"
)

// FireFunc is invoked on its own goroutine when a job's fire time arrives.
type FireFunc func(ctx context.Context, contentID uuid.UUID)

// Job is a pending one-shot delivery trigger for a content item.
type Job struct {
	ContentID uuid.UUID `json:"content_id"`
	FireAt    time.Time `json:"fire_at"`
}

type entry struct {
	job   Job
	index int
	seq   uint64
}

// jobHeap is a min-heap on FireAt.
type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	return h[i].job.FireAt.Before(h[j].job.FireAt)
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Registry holds at most one pending job per content id and fires each job
// once its time arrives. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	jobs   jobHeap
	byID   map[uuid.UUID]*entry
	seq    uint64
	wake   chan struct{}
	fire   FireFunc
	log    zerolog.Logger
	now    func() time.Time
	fires  sync.WaitGroup
	cancel context.CancelFunc
}

// NewRegistry creates a Registry that calls fire for every due job.
func NewRegistry(fire FireFunc, log zerolog.Logger) *Registry {
	return &Registry{
		byID: make(map[uuid.UUID]*entry),
		wake: make(chan struct{}, 1),
		fire: fire,
		log:  log,
		now:  time.Now,
	}
}

// Schedule installs a job for contentID, replacing any pending job for the
// same content.
func (r *Registry) Schedule(contentID uuid.UUID, fireAt time.Time) {
	r.mu.Lock()
	r.scheduleLocked(contentID, fireAt.UTC())
	r.mu.Unlock()

	r.signal()
}

// mark returns the stamp of the most recent Schedule. Jobs stamped after a
// mark were installed by a writer that ran after it was taken.
func (r *Registry) mark() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq
}

// scheduleUnlessNewer behaves like Schedule but leaves a job alone when it
// was installed after mark. It reports whether the job was written.
func (r *Registry) scheduleUnlessNewer(contentID uuid.UUID, fireAt time.Time, mark uint64) bool {
	r.mu.Lock()
	if e, ok := r.byID[contentID]; ok && e.seq > mark {
		r.mu.Unlock()
		return false
	}
	r.scheduleLocked(contentID, fireAt.UTC())
	r.mu.Unlock()

	r.signal()
	return true
}

// cancelExcept removes every job not in keep that was installed at or before
// mark, and returns how many were removed.
func (r *Registry) cancelExcept(keep map[uuid.UUID]struct{}, mark uint64) int {
	r.mu.Lock()
	var stale []uuid.UUID
	for id, e := range r.byID {
		if _, ok := keep[id]; ok || e.seq > mark {
			continue
		}
		stale = append(stale, id)
	}
	for _, id := range stale {
		heap.Remove(&r.jobs, r.byID[id].index)
		delete(r.byID, id)
	}
	metrics.ScheduledJobs.Set(float64(len(r.jobs)))
	r.mu.Unlock()

	if len(stale) > 0 {
		r.signal()
	}
	return len(stale)
}

func (r *Registry) scheduleLocked(contentID uuid.UUID, fireAt time.Time) {
	r.seq++
	if e, ok := r.byID[contentID]; ok {
		e.job.FireAt = fireAt
		e.seq = r.seq
		heap.Fix(&r.jobs, e.index)
	} else {
		e := &entry{job: Job{ContentID: contentID, FireAt: fireAt}, seq: r.seq}
		heap.Push(&r.jobs, e)
		r.byID[contentID] = e
	}
	metrics.ScheduledJobs.Set(float64(len(r.jobs)))
}

// Cancel removes the pending job for contentID. It reports whether a job was
// removed; a missing job is not an error.
func (r *Registry) Cancel(contentID uuid.UUID) bool {
	r.mu.Lock()
	e, ok := r.byID[contentID]
	if ok {
		heap.Remove(&r.jobs, e.index)
		delete(r.byID, contentID)
		metrics.ScheduledJobs.Set(float64(len(r.jobs)))
	}
	r.mu.Unlock()

	if ok {
		r.signal()
	}
	return ok
}

// Pending returns a snapshot of all pending jobs ordered by fire time.
func (r *Registry) Pending() []Job {
	r.mu.Lock()
	out := make([]Job, 0, len(r.jobs))
	for _, e := range r.jobs {
		out = append(out, e.job)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].ContentID.String() < out[j].ContentID.String()
		}
		return out[i].FireAt.Before(out[j].FireAt)
	})
	return out
}

// Len returns the number of pending jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Next returns the earliest pending job, if any.
func (r *Registry) Next() (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.jobs) == 0 {
		return Job{}, false
	}
	return r.jobs[0].job, true
}

func (r *Registry) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run fires due jobs until ctx is cancelled. Jobs still pending when Run
// returns are dropped. Fire callbacks receive a context that outlives ctx;
// use Drain to wait for them.
func (r *Registry) Run(ctx context.Context) {
	fireCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		due, wait, ok := r.popDue()
		for _, job := range due {
			r.dispatch(fireCtx, job)
		}

		var timerC <-chan time.Time
		if ok {
			timer.Reset(wait)
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			r.clear()
			return
		case <-r.wake:
		case <-timerC:
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

// popDue removes every job whose fire time has passed. If jobs remain it
// returns the delay until the next one.
func (r *Registry) popDue() ([]Job, time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var due []Job
	for len(r.jobs) > 0 && !r.jobs[0].job.FireAt.After(now) {
		e := heap.Pop(&r.jobs).(*entry)
		delete(r.byID, e.job.ContentID)
		due = append(due, e.job)
	}
	metrics.ScheduledJobs.Set(float64(len(r.jobs)))

	if len(r.jobs) == 0 {
		return due, 0, false
	}
	return due, r.jobs[0].job.FireAt.Sub(now), true
}

func (r *Registry) dispatch(ctx context.Context, job Job) {
	metrics.JobsFiredTotal.Inc()
	r.log.Info().
		Stringer("content_id", job.ContentID).
		Time("fire_at", job.FireAt).
		Msg("firing scheduled delivery")

	r.fires.Add(1)
	go func() {
		defer r.fires.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().
					Stringer("content_id", job.ContentID).
					Interface("panic", rec).
					Msg("scheduled delivery panicked")
			}
		}()
		r.fire(ctx, job.ContentID)
	}()
}

func (r *Registry) clear() {
	r.mu.Lock()
	dropped := len(r.jobs)
	r.jobs = nil
	r.byID = make(map[uuid.UUID]*entry)
	metrics.ScheduledJobs.Set(0)
	r.mu.Unlock()

	if dropped > 0 {
		r.log.Info().Int("dropped", dropped).Msg("registry stopped with pending jobs")
	}
}

// Drain waits for in-flight fire callbacks. If ctx expires first their
// context is cancelled and ctx.Err() is returned.
func (r *Registry) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.fires.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.mu.Lock()
		cancel := r.cancel
		r.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return ctx.Err()
	}
}
