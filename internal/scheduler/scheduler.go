package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/internal/domain"
)

// Runner executes one task. performed is false when the task decided there
// was nothing to do.
type Runner interface {
	Run(ctx context.Context, task domain.Task) (performed bool, err error)
}

type RunnerFunc func(ctx context.Context, task domain.Task) (bool, error)

func (f RunnerFunc) Run(ctx context.Context, task domain.Task) (bool, error) {
	return f(ctx, task)
}

type Outcome string

const (
	OutcomePerformed Outcome = "performed"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
	// OutcomeDropped marks tasks discarded by the kill switch.
	OutcomeDropped Outcome = "dropped"
)

// CompletionFunc is called exactly once for every task that leaves the queue.
type CompletionFunc func(ctx context.Context, task domain.Task, outcome Outcome, err error)

// Switch is the subset of the kill switch the loop needs.
type Switch interface {
	Engaged() bool
	Changed() <-chan struct{}
}

// Gap is the jittered spacing applied to a gate class after each task.
type Gap struct {
	Min time.Duration
	Max time.Duration
}

type Config struct {
	Gaps     map[domain.GateClass]Gap
	Runner   Runner
	OnDone   CompletionFunc
	Switch   Switch
	Clock    clockwork.Clock
	Logger   *slog.Logger
	TenantID string
	// Float returns a uniform value in [0, 1). Defaults to math/rand/v2.
	Float func() float64
}

// Scheduler drains one tenant's task queue, earliest deadline first, one
// task at a time, with a pacing gate per gate class.
type Scheduler struct {
	cfg    Config
	clock  clockwork.Clock
	logger *slog.Logger
	float  func() float64

	mu    sync.Mutex
	queue *Queue
	gates map[domain.GateClass]time.Time

	wake chan struct{}
}

func New(cfg Config) *Scheduler {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	float := cfg.Float
	if float == nil {
		float = rand.Float64
	}
	if cfg.OnDone == nil {
		cfg.OnDone = func(context.Context, domain.Task, Outcome, error) {}
	}

	return &Scheduler{
		cfg:    cfg,
		clock:  clock,
		logger: log,
		float:  float,
		queue:  NewQueue(),
		gates:  make(map[domain.GateClass]time.Time),
		wake:   make(chan struct{}, 1),
	}
}

// Enqueue adds tasks and wakes the loop so it can re-evaluate its deadline.
func (s *Scheduler) Enqueue(tasks ...domain.Task) {
	if len(tasks) == 0 {
		return
	}
	s.mu.Lock()
	for _, t := range tasks {
		s.queue.Push(t)
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Gate returns the earliest start time for the next task of class c.
func (s *Scheduler) Gate(c domain.GateClass) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gates[c]
}

// Pending returns a copy of the queued tasks in execution order.
func (s *Scheduler) Pending() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Ordered(s.gates)
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the loop until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TenantID:  logger.Ptr(s.cfg.TenantID),
		Component: "pagebot.scheduler",
	})
	s.logger.InfoContext(ctx, "scheduler started")

	for {
		if err := ctx.Err(); err != nil {
			s.logger.InfoContext(ctx, "scheduler stopped", "pending", s.Len())
			return nil
		}

		if s.engaged() {
			s.dropAll(ctx)
			s.waitWhileEngaged(ctx)
			continue
		}

		task, wait, ok := s.next()
		switch {
		case !ok:
			s.idle(ctx, 0)
		case wait > 0:
			s.idle(ctx, wait)
		default:
			s.execute(ctx, task)
		}
	}
}

func (s *Scheduler) engaged() bool {
	return s.cfg.Switch != nil && s.cfg.Switch.Engaged()
}

func (s *Scheduler) switchChanged() <-chan struct{} {
	if s.cfg.Switch == nil {
		return nil
	}
	return s.cfg.Switch.Changed()
}

// next pops the task with the earliest readyAt if it is due. Otherwise it
// returns how long until the earliest one becomes ready.
func (s *Scheduler) next() (domain.Task, time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	readyAt, ok := s.queue.Earliest(s.gates)
	if !ok {
		return domain.Task{}, 0, false
	}
	now := s.clock.Now()
	if readyAt.After(now) {
		return domain.Task{}, readyAt.Sub(now), true
	}
	task, _ := s.queue.PopEarliest(s.gates)
	return task, 0, true
}

// idle blocks until the timer fires, a task is enqueued, the kill switch
// flips or ctx ends. A zero wait means no timer.
func (s *Scheduler) idle(ctx context.Context, wait time.Duration) {
	var timerC <-chan time.Time
	if wait > 0 {
		timer := s.clock.NewTimer(wait)
		defer timer.Stop()
		timerC = timer.Chan()
	}

	select {
	case <-ctx.Done():
	case <-s.wake:
	case <-s.switchChanged():
	case <-timerC:
	}
}

func (s *Scheduler) waitWhileEngaged(ctx context.Context) {
	changed := s.switchChanged()
	if !s.engaged() {
		return
	}
	select {
	case <-ctx.Done():
	case <-changed:
	case <-s.wake:
		// tasks enqueued while engaged are dropped on the next pass
	}
}

func (s *Scheduler) dropAll(ctx context.Context) {
	s.mu.Lock()
	dropped := s.queue.Drain()
	s.mu.Unlock()

	if len(dropped) == 0 {
		return
	}

	s.logger.WarnContext(ctx, "kill switch engaged, dropping queued tasks", "count", len(dropped))
	for _, t := range dropped {
		s.cfg.OnDone(ctx, t, OutcomeDropped, nil)
	}
}

func (s *Scheduler) execute(ctx context.Context, task domain.Task) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ItemID:   logger.Ptr(task.ItemID),
		ThreadID: logger.Ptr(task.ThreadID),
		TaskID:   logger.Ptr(task.ID),
		TaskType: logger.Ptr(string(task.Type)),
	})

	ctx, span := logger.StartSpan(ctx, "scheduler.run_task",
		attribute.String("task.type", string(task.Type)),
		attribute.String("task.target_id", task.TargetID),
	)
	defer span.End()

	start := s.clock.Now()
	s.logger.DebugContext(ctx, "running task",
		"due_at", task.DueAt,
		"lag_ms", start.Sub(task.DueAt).Milliseconds())

	performed, err := s.runSafe(ctx, task)

	// A skipped task made no remote call, so its gate stays where it was.
	var gap time.Duration
	if performed || err != nil {
		class := task.Type.GateClass()
		gap = s.jitter(class)
		s.mu.Lock()
		s.gates[class] = s.clock.Now().Add(gap)
		s.mu.Unlock()
	}

	outcome := OutcomePerformed
	switch {
	case err != nil:
		outcome = OutcomeFailed
		span.Fail(err)
		s.logger.WarnContext(ctx, "task failed", "error", err, "next_gap", gap)
	case !performed:
		outcome = OutcomeSkipped
		s.logger.InfoContext(ctx, "task skipped")
	default:
		s.logger.InfoContext(ctx, "task performed",
			"duration_ms", s.clock.Since(start).Milliseconds(),
			"next_gap", gap)
	}

	s.cfg.OnDone(ctx, task, outcome, err)
}

func (s *Scheduler) runSafe(ctx context.Context, task domain.Task) (performed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "panic recovered in task",
				"panic", r,
				"stack", string(debug.Stack()))
			performed, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	if s.cfg.Runner == nil {
		return false, fmt.Errorf("no runner configured")
	}
	return s.cfg.Runner.Run(ctx, task)
}

// jitter picks a gap uniformly in [Min, Max].
func (s *Scheduler) jitter(c domain.GateClass) time.Duration {
	g := s.cfg.Gaps[c]
	if g.Max <= g.Min {
		return g.Min
	}
	return g.Min + time.Duration(s.float()*float64(g.Max-g.Min))
}
