package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Handler delivers one fired task's payload to a client. Exactly one
// handler may be registered per client at a time (spec.md §4.6).
type Handler func(ctx context.Context, taskID uuid.UUID, payload json.RawMessage) error

// ErrHandlerRegistered is returned by RegisterHandler when a client
// already owns a handler.
var ErrHandlerRegistered = fmt.Errorf("scheduler: client already has a registered handler")

// ErrTaskNotFound is returned by Get/Edit/ChangeState for an unknown
// task ID.
var ErrTaskNotFound = fmt.Errorf("scheduler: task not found")

const (
	defaultPollInterval = 200 * time.Millisecond
	defaultQueueSize    = 32
	enqueueRetryBackoff = 50 * time.Millisecond
	maxEnqueueAttempts  = 5
)

type delivery struct {
	taskID  uuid.UUID
	payload json.RawMessage
}

type options struct {
	Log          *zap.SugaredLogger
	PollInterval time.Duration
	QueueSize    int
}

func newOptions() *options {
	return &options{
		Log:          zap.NewNop().Sugar(),
		PollInterval: defaultPollInterval,
		QueueSize:    defaultQueueSize,
	}
}

// Option configures a Scheduler.
type Option func(*options)

// WithLog sets the scheduler's logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Log = log }
}

// WithPollInterval overrides the timer loop's resolution.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.PollInterval = d }
}

// WithQueueSize overrides the bounded per-client delivery FIFO's capacity.
func WithQueueSize(n int) Option {
	return func(o *options) { o.QueueSize = n }
}

// Scheduler owns the persisted task set, fires due tasks at wall-clock
// time, and delivers them to one handler per client through a bounded
// FIFO, mirroring the teacher's Coordinator (one mutex-guarded state
// struct, one errgroup.Group-supervised Run).
type Scheduler struct {
	store *Store
	log   *zap.SugaredLogger

	pollInterval time.Duration
	queueSize    int

	mu       sync.Mutex
	tasks    map[uuid.UUID]*Task
	handlers map[string]Handler
	queues   map[string]chan delivery
	runCtx   context.Context
}

// New loads the persisted task set from store and returns a ready
// Scheduler; call RegisterHandler for each client before Run.
func New(store *Store, opts ...Option) (*Scheduler, error) {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	loaded, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("scheduler: load persisted tasks: %w", err)
	}

	s := &Scheduler{
		store:        store,
		log:          o.Log,
		pollInterval: o.PollInterval,
		queueSize:    o.QueueSize,
		tasks:        make(map[uuid.UUID]*Task, len(loaded)),
		handlers:     make(map[string]Handler),
		queues:       make(map[string]chan delivery),
	}

	now := time.Now()
	for _, t := range loaded {
		if t.Enabled {
			t.nextFire = t.TimeSpec.next(now)
		}
		s.tasks[t.TaskID] = t
	}
	return s, nil
}

// RegisterHandler registers h as the sole handler for clientID. If the
// scheduler is already running, delivery for clientID starts immediately.
func (s *Scheduler) RegisterHandler(clientID string, h Handler) error {
	s.mu.Lock()
	if _, ok := s.handlers[clientID]; ok {
		s.mu.Unlock()
		return ErrHandlerRegistered
	}
	s.handlers[clientID] = h
	s.queues[clientID] = make(chan delivery, s.queueSize)
	ctx := s.runCtx
	s.mu.Unlock()

	if ctx != nil {
		go s.deliverLoop(ctx, clientID)
	}
	return nil
}

// UnregisterHandler removes clientID's handler and its queue (the queue is
// not closed); deliveries still in that queue's backlog are dropped.
func (s *Scheduler) UnregisterHandler(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, clientID)
	delete(s.queues, clientID)
}

// Run drives the timer loop and, for every currently-registered client, a
// delivery loop, until ctx is cancelled or one loop fails.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("running scheduler")
	defer s.log.Info("stopped scheduler")

	wg, ctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	s.runCtx = ctx
	clients := make([]string, 0, len(s.handlers))
	for c := range s.handlers {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	wg.Go(func() error { return s.timerLoop(ctx) })
	for _, c := range clients {
		client := c
		wg.Go(func() error {
			s.deliverLoop(ctx, client)
			return nil
		})
	}

	return wg.Wait()
}

func (s *Scheduler) timerLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.fireDue(ctx, now)
		}
	}
}

// fireDue advances and re-persists every task due at or before now, then
// enqueues one delivery per fired task.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]*Task, 0)
	for _, t := range s.tasks {
		if !t.Enabled || t.nextFire.IsZero() {
			continue
		}
		if !t.nextFire.After(now) {
			due = append(due, t)
		}
	}
	for _, t := range due {
		s.advanceLocked(t, now)
	}
	s.mu.Unlock()

	for _, t := range due {
		s.enqueue(ctx, t)
	}
}

func (s *Scheduler) advanceLocked(t *Task, now time.Time) {
	switch {
	case t.TimeSpec.Kind == TimeExact:
		t.fired = true
		t.Enabled = false
	case t.TimeSpec.Kind == TimeCron && t.TimeSpec.reboot:
		t.fired = true
		t.Enabled = false
	default:
		t.nextFire = t.TimeSpec.next(now)
	}

	if err := s.store.Save(t); err != nil {
		s.log.Warnw("scheduler: persist task after fire failed", "task", t.TaskID, "error", err)
	}
}

// enqueue pushes one delivery onto clientID's bounded FIFO, retrying with
// a constant back-off while the queue is full before dropping the task
// (spec.md §4.6: delivery is serialized per client through a bounded
// FIFO).
func (s *Scheduler) enqueue(ctx context.Context, t *Task) {
	s.mu.Lock()
	queue, ok := s.queues[t.ClientID]
	s.mu.Unlock()
	if !ok {
		s.log.Warnw("scheduler: no handler registered for client", "client", t.ClientID, "task", t.TaskID)
		return
	}

	d := delivery{taskID: t.TaskID, payload: t.Payload}
	policy := &backoff.ConstantBackOff{Interval: enqueueRetryBackoff}

	for attempt := 0; attempt < maxEnqueueAttempts; attempt++ {
		select {
		case queue <- d:
			return
		default:
		}
		if attempt == maxEnqueueAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(policy.NextBackOff()):
		}
	}
	s.log.Warnw("scheduler: client delivery queue full, dropping task", "client", t.ClientID, "task", t.TaskID)
}

func (s *Scheduler) deliverLoop(ctx context.Context, clientID string) {
	s.mu.Lock()
	queue := s.queues[clientID]
	s.mu.Unlock()
	if queue == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-queue:
			s.mu.Lock()
			h := s.handlers[clientID]
			s.mu.Unlock()
			if h == nil {
				continue
			}
			if err := h(ctx, d.taskID, d.payload); err != nil {
				s.log.Warnw("scheduler: task handler failed", "client", clientID, "task", d.taskID, "error", err)
			}
		}
	}
}
