package tenant_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/core/config"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/killswitch"
	"basegraph.app/pagebot/internal/tenant"
)

func quietLimits() config.Limits {
	l := config.DefaultLimits()
	l.ReactionMinGap, l.ReactionMaxGap = 0, 0
	l.ReplyMinGap, l.ReplyMaxGap = 0, 0
	return l
}

var _ = Describe("Registry", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		reg    *tenant.Registry
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		reg = tenant.NewRegistry(ctx, []config.Tenant{{ID: "pageX", AccessToken: "tok"}}, tenant.Deps{
			Limits: quietLimits(),
			Clock:  clockwork.NewFakeClock(),
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		})
		DeferCleanup(func() {
			cancel()
			reg.Wait()
		})
	})

	It("rejects tenants that are not configured", func() {
		_, err := reg.Get("pageY")
		Expect(errors.Is(err, tenant.ErrUnknownTenant)).To(BeTrue())
		Expect(reg.Known("pageY")).To(BeFalse())
	})

	It("hands every concurrent caller the same state", func() {
		const callers = 16
		states := make([]*tenant.State, callers)
		var wg sync.WaitGroup
		for i := range callers {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				st, err := reg.Get("pageX")
				Expect(err).NotTo(HaveOccurred())
				states[i] = st
			}()
		}
		wg.Wait()

		for _, st := range states {
			Expect(st).To(BeIdenticalTo(states[0]))
		}

		count := 0
		reg.Range(func(*tenant.State) bool { count++; return true })
		Expect(count).To(Equal(1))
	})

	It("stops schedulers when the context ends", func() {
		Expect(reg.WarmUp()).To(Succeed())
		cancel()
		done := make(chan struct{})
		go func() { reg.Wait(); close(done) }()
		Eventually(done).Should(BeClosed())
	})
})

var _ = Describe("State", func() {
	var (
		ctx      context.Context
		clock    *clockwork.FakeClock
		sw       *killswitch.Switch
		st       *tenant.State
		ran      chan domain.Task
		dispatch func(ctx context.Context, st *tenant.State, task domain.Task) (bool, error)
	)

	admit := func(itemID string, types ...domain.TaskType) {
		tasks := make([]domain.Task, len(types))
		for i, t := range types {
			tasks[i] = domain.Task{ID: int64(i + 1), Type: t, ItemID: itemID, TargetID: itemID, DueAt: clock.Now()}
		}
		st.Locked(func(c *tenant.Counters) {
			Expect(c.InFlight.Reserve(itemID)).To(BeTrue())
			c.InFlight.Assign(itemID, len(tasks))
			c.Queue.Enqueue(tasks...)
		})
	}

	seen := func(itemID string) func() bool {
		return func() bool {
			var ok bool
			st.Locked(func(c *tenant.Counters) { ok = c.Dedup.Seen(itemID) })
			return ok
		}
	}

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		sw = killswitch.New(false)
		ran = make(chan domain.Task, 10)
		dispatch = func(context.Context, *tenant.State, domain.Task) (bool, error) { return true, nil }

		var err error
		st, err = tenant.NewState(config.Tenant{ID: "pageX", AccessToken: "tok"}, tenant.Deps{
			Limits: quietLimits(),
			Clock:  clock,
			Switch: sw,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
			Dispatcher: tenant.DispatcherFunc(func(ctx context.Context, s *tenant.State, t domain.Task) (bool, error) {
				ran <- t
				return dispatch(ctx, s, t)
			}),
		})
		Expect(err).NotTo(HaveOccurred())

		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)
		go func() { _ = st.Run(ctx) }()
	})

	It("remembers the item only after its last task completes", func() {
		admit("c1", domain.TaskTypeAcknowledge, domain.TaskTypeRespond)

		Eventually(ran).Should(Receive())
		Eventually(ran).Should(Receive())
		Eventually(seen("c1")).Should(BeTrue())

		st.Locked(func(c *tenant.Counters) {
			Expect(c.InFlight.Contains("c1")).To(BeFalse())
		})
	})

	It("remembers the item even when its task fails", func() {
		dispatch = func(context.Context, *tenant.State, domain.Task) (bool, error) {
			return false, errors.New("graph said no")
		}
		admit("c2", domain.TaskTypeRespond)

		Eventually(ran).Should(Receive())
		Eventually(seen("c2")).Should(BeTrue())
	})

	It("skips tasks whose item was already handled", func() {
		st.Locked(func(c *tenant.Counters) { c.Dedup.Remember("c3") })
		admit("c3", domain.TaskTypeRespond)

		Consistently(ran, 50*time.Millisecond).ShouldNot(Receive())
		Eventually(func() int {
			var n int
			st.Locked(func(c *tenant.Counters) { n = c.InFlight.Len() })
			return n
		}).Should(Equal(0))
	})

	It("fails closed when the kill switch drops the queue", func() {
		sw.Set(true)
		admit("c4", domain.TaskTypeAcknowledge, domain.TaskTypeRespond)

		Eventually(seen("c4")).Should(BeTrue())
		Expect(ran).NotTo(Receive())
	})

	It("follows the kill switch", func() {
		Expect(st.Disabled()).To(BeFalse())
		sw.Set(true)
		Expect(st.Disabled()).To(BeTrue())
	})

	It("caches fetched items", func() {
		st.CacheItem(domain.Item{ID: "c5", Text: "hello"})
		item, ok := st.CachedItem("c5")
		Expect(ok).To(BeTrue())
		Expect(item.Text).To(Equal("hello"))
	})

	It("reports a snapshot", func() {
		sw.Set(true)
		st.Locked(func(c *tenant.Counters) {
			c.Rate.Record()
			c.Threads.Record("p1")
		})

		snap := st.Snapshot()
		Expect(snap.TenantID).To(Equal("pageX"))
		Expect(snap.HourCount).To(Equal(1))
		Expect(snap.Threads).To(Equal(1))
		Expect(snap.Gates).To(HaveKey(domain.GateClassReply))
	})
})

var _ = Describe("NewState", func() {
	It("expands event kinds into the configured plans", func() {
		st, err := tenant.NewState(config.Tenant{ID: "pageX", AccessToken: "tok"}, tenant.Deps{Limits: config.DefaultLimits()})
		Expect(err).NotTo(HaveOccurred())

		Expect(st.Plan(domain.EventKindTopLevel)).To(Equal([]domain.TaskType{
			domain.TaskTypeAcknowledge,
			domain.TaskTypeRespond,
		}))
		Expect(st.Plan(domain.EventKindPost)).To(Equal([]domain.TaskType{domain.TaskTypeSeed}))
		Expect(st.Credentials()).To(Equal(domain.Credentials{PageID: "pageX", AccessToken: "tok"}))
		Expect(st.Disabled()).To(BeFalse())
	})

	It("refuses unknown actions", func() {
		l := config.DefaultLimits()
		l.ReplyActions = []string{"like"}
		_, err := tenant.NewState(config.Tenant{ID: "pageX", AccessToken: "tok"}, tenant.Deps{Limits: l})
		Expect(err).To(MatchError(ContainSubstring(`unknown task type "like"`)))
	})
})
