package tenant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jonboulle/clockwork"

	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/limits"
	"basegraph.app/pagebot/internal/metrics"
	"basegraph.app/pagebot/internal/scheduler"
)

const (
	itemCacheSize = 256
	itemCacheTTL  = 30 * time.Minute
)

// Dispatcher performs one task against the remote platform.
type Dispatcher interface {
	Dispatch(ctx context.Context, st *State, task domain.Task) (performed bool, err error)
}

type DispatcherFunc func(ctx context.Context, st *State, task domain.Task) (bool, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, st *State, task domain.Task) (bool, error) {
	return f(ctx, st, task)
}

type Deps struct {
	Limits     config.Limits
	Dispatcher Dispatcher
	Switch     scheduler.Switch
	Clock      clockwork.Clock
	Logger     *slog.Logger
	// Float overrides the scheduler jitter source.
	Float func() float64
}

// Counters is the mutable admission state of a tenant. It must only be
// touched inside State.Locked.
type Counters struct {
	Dedup    *limits.DedupLedger
	Rate     *limits.RateWindow
	Threads  *limits.ThreadCounter
	InFlight *limits.InFlightSet
	Queue    *scheduler.Scheduler
}

// State is everything the engine keeps for one page.
type State struct {
	ID      string
	Profile config.Tenant
	Limits  config.Limits

	mu       sync.Mutex
	counters Counters

	plans      map[domain.EventKind][]domain.TaskType
	dispatcher Dispatcher
	killSwitch scheduler.Switch
	clock      clockwork.Clock
	logger     *slog.Logger
	items      *expirable.LRU[string, domain.Item]
}

func NewState(profile config.Tenant, deps Deps) (*State, error) {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	dedup, err := limits.NewDedupLedger(deps.Limits.DedupCapacity, clock)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", profile.ID, err)
	}

	plans := make(map[domain.EventKind][]domain.TaskType, 3)
	for _, kind := range []domain.EventKind{domain.EventKindTopLevel, domain.EventKindReply, domain.EventKindPost} {
		types, err := domain.ParseTaskTypes(deps.Limits.Actions(string(kind)))
		if err != nil {
			return nil, fmt.Errorf("tenant %s: %s actions: %w", profile.ID, kind, err)
		}
		plans[kind] = types
	}

	s := &State{
		ID:         profile.ID,
		Profile:    profile,
		Limits:     deps.Limits,
		plans:      plans,
		dispatcher: deps.Dispatcher,
		killSwitch: deps.Switch,
		clock:      clock,
		logger:     log,
		items:      expirable.NewLRU[string, domain.Item](itemCacheSize, nil, itemCacheTTL),
	}

	gaps := make(map[domain.GateClass]scheduler.Gap, 2)
	for _, class := range []domain.GateClass{domain.GateClassReaction, domain.GateClassReply} {
		lo, hi := deps.Limits.Gap(string(class))
		gaps[class] = scheduler.Gap{Min: lo, Max: hi}
	}

	s.counters = Counters{
		Dedup:    dedup,
		Rate:     limits.NewRateWindow(clock),
		Threads:  limits.NewThreadCounter(deps.Limits.ThreadIdleTTL, clock),
		InFlight: limits.NewInFlightSet(),
		Queue: scheduler.New(scheduler.Config{
			TenantID: profile.ID,
			Gaps:     gaps,
			Runner:   scheduler.RunnerFunc(s.run),
			OnDone:   s.complete,
			Switch:   deps.Switch,
			Clock:    clock,
			Logger:   log,
			Float:    deps.Float,
		}),
	}
	return s, nil
}

// Locked runs fn while holding the tenant lock. fn must not block on I/O.
func (s *State) Locked(fn func(c *Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.counters)
}

func (s *State) Clock() clockwork.Clock {
	return s.clock
}

func (s *State) Credentials() domain.Credentials {
	return domain.Credentials{PageID: s.Profile.ID, AccessToken: s.Profile.AccessToken}
}

// Plan returns the task types an admitted event of kind k expands into.
func (s *State) Plan(k domain.EventKind) []domain.TaskType {
	return s.plans[k]
}

// Disabled reports whether the kill switch currently blocks this tenant.
func (s *State) Disabled() bool {
	return s.killSwitch != nil && s.killSwitch.Engaged()
}

// Scheduler is safe to use without the tenant lock.
func (s *State) Scheduler() *scheduler.Scheduler {
	return s.counters.Queue
}

// CacheItem keeps fetched content around so task handlers do not refetch it.
func (s *State) CacheItem(item domain.Item) {
	s.items.Add(item.ID, item)
}

func (s *State) CachedItem(id string) (domain.Item, bool) {
	return s.items.Get(id)
}

// Run blocks in the scheduler loop until ctx is done.
func (s *State) Run(ctx context.Context) error {
	return s.counters.Queue.Run(ctx)
}

func (s *State) run(ctx context.Context, task domain.Task) (bool, error) {
	var seen bool
	s.Locked(func(c *Counters) { seen = c.Dedup.Seen(task.ItemID) })
	if seen {
		s.logger.DebugContext(ctx, "item already handled, skipping task")
		return false, nil
	}

	metrics.TaskLag.WithLabelValues(s.ID, string(task.Type)).
		Observe(s.clock.Since(task.DueAt).Seconds())

	if s.dispatcher == nil {
		return false, fmt.Errorf("no dispatcher configured")
	}
	return s.dispatcher.Dispatch(ctx, s, task)
}

// complete releases the task's share of the item reservation. The item is
// remembered once its last task leaves the queue, whatever the outcome.
func (s *State) complete(_ context.Context, task domain.Task, outcome scheduler.Outcome, _ error) {
	var (
		last     bool
		inFlight int
	)
	s.Locked(func(c *Counters) {
		last = c.InFlight.Release(task.ItemID)
		if last {
			c.Dedup.Remember(task.ItemID)
		}
		inFlight = c.InFlight.Len()
	})
	if last {
		s.items.Remove(task.ItemID)
	}

	metrics.TasksCompleted.WithLabelValues(s.ID, string(task.Type), string(outcome)).Inc()
	metrics.InFlightItems.WithLabelValues(s.ID).Set(float64(inFlight))
	metrics.QueueDepth.WithLabelValues(s.ID).Set(float64(s.counters.Queue.Len()))
}

type Snapshot struct {
	TenantID  string
	Name      string
	Queued    int
	InFlight  int
	Seen      int
	Threads   int
	HourCount int
	DayCount  int
	Gates     map[domain.GateClass]time.Time
	Pending   []domain.Task
}

func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		TenantID: s.ID,
		Name:     s.Profile.Name,
		Gates:    make(map[domain.GateClass]time.Time, 2),
	}
	s.Locked(func(c *Counters) {
		snap.InFlight = c.InFlight.Len()
		snap.Seen = c.Dedup.Len()
		snap.Threads = c.Threads.Len()
		snap.HourCount, snap.DayCount = c.Rate.Counts()
	})

	q := s.counters.Queue
	snap.Pending = q.Pending()
	snap.Queued = len(snap.Pending)
	for _, class := range []domain.GateClass{domain.GateClassReaction, domain.GateClassReply} {
		snap.Gates[class] = q.Gate(class)
	}
	return snap
}
