package admission

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/pagebot/common/id"
	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/metrics"
	"basegraph.app/pagebot/internal/tenant"
)

// Reason names why an event was turned away. Rejections are values, not errors.
type Reason string

const (
	ReasonDuplicate     Reason = "DUPLICATE"
	ReasonInFlight      Reason = "INFLIGHT"
	ReasonReplyDisabled Reason = "REPLY_DISABLED"
	ReasonSeedDisabled  Reason = "SEED_DISABLED"
	ReasonStale         Reason = "STALE"
	ReasonSampledOut    Reason = "SAMPLED_OUT"
	ReasonRateLimit     Reason = "RATE_LIMIT"
	ReasonThreadLimit   Reason = "THREAD_LIMIT"
	ReasonQueueFull     Reason = "QUEUE_FULL"
	ReasonFetchFailed   Reason = "FETCH_FAILED"
	ReasonSelf          Reason = "SELF"
	ReasonNoise         Reason = "NOISE"
	ReasonDisabled      Reason = "DISABLED"
)

// marksSeen is false for the two reasons that say the item is already
// owned by an earlier delivery.
func (r Reason) marksSeen() bool {
	return r != ReasonDuplicate && r != ReasonInFlight
}

type Decision struct {
	Admit  bool
	Reason Reason
	Tasks  []domain.Task
	Item   domain.Item
}

func (d Decision) Label() string {
	if d.Admit {
		return "ADMIT"
	}
	return string(d.Reason)
}

// ContentSource fetches the item an event points at.
type ContentSource interface {
	FetchItem(ctx context.Context, creds domain.Credentials, itemID string) (domain.Item, error)
}

type Option func(*Pipeline)

// WithRand replaces the uniform [0, 1) source used for sampling and delays.
func WithRand(f func() float64) Option {
	return func(p *Pipeline) { p.float = f }
}

// WithIDs replaces the task id generator.
func WithIDs(f func() int64) Option {
	return func(p *Pipeline) { p.nextID = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline decides whether an event becomes work. It holds no per-tenant
// state of its own; everything lives in tenant.State.
type Pipeline struct {
	source ContentSource
	logger *slog.Logger
	float  func() float64
	nextID func() int64
}

func New(source ContentSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		source: source,
		logger: slog.Default(),
		float:  rand.Float64,
		nextID: id.New,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate runs the ordered checks and, on admission, enqueues the event's
// tasks on the tenant scheduler.
//
// The cheap checks run under the tenant lock and end by reserving the item,
// so a redelivery racing the content fetch is rejected as INFLIGHT. Rate,
// thread and queue limits are checked again after the fetch because other
// events may have been admitted meanwhile.
func (p *Pipeline) Evaluate(ctx context.Context, st *tenant.State, ev domain.Event) Decision {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		TenantID:  logger.Ptr(st.ID),
		ItemID:    logger.Ptr(ev.ItemID),
		ThreadID:  logger.Ptr(ev.ThreadID),
		Component: "pagebot.admission",
	})
	ctx, span := logger.StartSpan(ctx, "admission.evaluate",
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.item_id", ev.ItemID),
	)
	defer span.End()

	decision := p.evaluate(ctx, st, ev)

	span.Annotate(attribute.String("admission.decision", decision.Label()))
	metrics.AdmissionDecisions.WithLabelValues(st.ID, decision.Label()).Inc()
	if decision.Admit {
		p.logger.InfoContext(ctx, "event admitted", "kind", ev.Kind, "tasks", len(decision.Tasks))
	} else {
		p.logger.InfoContext(ctx, "event rejected", "kind", ev.Kind, "reason", decision.Reason)
	}
	return decision
}

func (p *Pipeline) evaluate(ctx context.Context, st *tenant.State, ev domain.Event) Decision {
	plan := st.Plan(ev.Kind)
	threadID := threadOf(ev)

	var reason Reason
	st.Locked(func(c *tenant.Counters) {
		reason = p.precheck(c, st, ev, threadID, len(plan))
		switch {
		case reason == "":
			c.InFlight.Reserve(ev.ItemID)
		case reason.marksSeen():
			c.Dedup.Remember(ev.ItemID)
		}
	})
	if reason != "" {
		return Decision{Reason: reason}
	}

	item, reason := p.inspect(ctx, st, ev)
	if reason != "" {
		p.abandon(st, ev.ItemID)
		return Decision{Reason: reason}
	}

	tasks := p.tasksFor(st, ev, threadID, plan)
	st.CacheItem(item)

	st.Locked(func(c *tenant.Counters) {
		// Re-checked: the switch may have been engaged while fetching.
		if st.Disabled() {
			reason = ReasonDisabled
		} else {
			reason = p.capacity(c, st, threadID, len(tasks))
		}
		if reason != "" {
			c.InFlight.Cancel(ev.ItemID)
			c.Dedup.Remember(ev.ItemID)
			return
		}
		if len(tasks) == 0 {
			// Nothing configured for this kind: the event is accepted and
			// immediately done.
			c.InFlight.Cancel(ev.ItemID)
			c.Dedup.Remember(ev.ItemID)
			return
		}
		c.Rate.Record()
		c.Threads.Record(threadID)
		c.InFlight.Assign(ev.ItemID, len(tasks))
		c.Queue.Enqueue(tasks...)
	})
	if reason != "" {
		return Decision{Reason: reason, Item: item}
	}

	metrics.QueueDepth.WithLabelValues(st.ID).Set(float64(st.Scheduler().Len()))
	return Decision{Admit: true, Tasks: tasks, Item: item}
}

func (p *Pipeline) precheck(c *tenant.Counters, st *tenant.State, ev domain.Event, threadID string, planSize int) Reason {
	switch {
	case c.Dedup.Seen(ev.ItemID):
		return ReasonDuplicate
	case c.InFlight.Contains(ev.ItemID):
		return ReasonInFlight
	case st.Disabled():
		return ReasonDisabled
	case ev.Kind == domain.EventKindReply && !st.Profile.AllowsReplies(st.Limits):
		return ReasonReplyDisabled
	case ev.Kind == domain.EventKindPost && !st.Profile.AllowsSeeding(st.Limits):
		return ReasonSeedDisabled
	case p.stale(st, ev.CreatedAt):
		return ReasonStale
	case p.float() >= st.Limits.Probability(string(ev.Kind)):
		return ReasonSampledOut
	}
	return p.capacity(c, st, threadID, planSize)
}

func (p *Pipeline) capacity(c *tenant.Counters, st *tenant.State, threadID string, planSize int) Reason {
	l := st.Limits
	switch {
	case !c.Rate.Allow(l.HourCap, l.DayCap):
		return ReasonRateLimit
	case !c.Threads.Allow(threadID, l.PerThreadCap):
		return ReasonThreadLimit
	case c.Queue.Len()+planSize > l.QueueCapacity:
		return ReasonQueueFull
	}
	return ""
}

// inspect fetches the item and applies the content checks. It runs without
// the tenant lock.
func (p *Pipeline) inspect(ctx context.Context, st *tenant.State, ev domain.Event) (domain.Item, Reason) {
	item, err := p.source.FetchItem(ctx, st.Credentials(), ev.ItemID)
	if err != nil {
		p.logger.WarnContext(ctx, "content fetch failed", "error", err)
		return domain.Item{}, ReasonFetchFailed
	}

	// Events without a timestamp are aged by the content itself.
	if ev.CreatedAt.IsZero() && p.stale(st, item.CreatedAt) {
		return item, ReasonStale
	}

	if ev.Kind == domain.EventKindPost {
		return item, ""
	}

	author := item.AuthorID
	if author == "" {
		author = ev.AuthorID
	}
	if author == st.ID {
		return item, ReasonSelf
	}

	if Classify(item.Text, "").Noise {
		return item, ReasonNoise
	}
	return item, ""
}

func (p *Pipeline) abandon(st *tenant.State, itemID string) {
	st.Locked(func(c *tenant.Counters) {
		c.InFlight.Cancel(itemID)
		c.Dedup.Remember(itemID)
	})
}

func (p *Pipeline) stale(st *tenant.State, createdAt time.Time) bool {
	if createdAt.IsZero() {
		return false
	}
	return st.Clock().Since(createdAt) > st.Limits.StaleAfter
}

func (p *Pipeline) tasksFor(st *tenant.State, ev domain.Event, threadID string, plan []domain.TaskType) []domain.Task {
	now := st.Clock().Now()
	var parentID string
	if ev.Kind == domain.EventKindReply {
		parentID = ev.ParentID
	}
	tasks := make([]domain.Task, 0, len(plan))
	for _, typ := range plan {
		lo, hi := st.Limits.Delay(string(typ))
		tasks = append(tasks, domain.Task{
			ID:         p.nextID(),
			Type:       typ,
			TenantID:   st.ID,
			ItemID:     ev.ItemID,
			TargetID:   ev.ItemID,
			ThreadID:   threadID,
			ParentID:   parentID,
			DueAt:      now.Add(p.uniform(lo, hi)),
			EnqueuedAt: now,
		})
	}
	return tasks
}

func (p *Pipeline) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.float()*float64(hi-lo))
}

// threadOf falls back to the item itself for events that start a thread.
func threadOf(ev domain.Event) string {
	if ev.ThreadID != "" {
		return ev.ThreadID
	}
	return ev.ItemID
}
