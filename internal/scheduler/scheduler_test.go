package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/killswitch"
	"basegraph.app/pagebot/internal/scheduler"
)

type started struct {
	task domain.Task
	at   time.Time
}

type completion struct {
	task    domain.Task
	outcome scheduler.Outcome
	err     error
}

var _ = Describe("Scheduler", func() {
	var (
		t0      time.Time
		clock   *clockwork.FakeClock
		sw      *killswitch.Switch
		starts  chan started
		done    chan completion
		runFn   func(ctx context.Context, task domain.Task) (bool, error)
		s       *scheduler.Scheduler
		ctx     context.Context
		cancel  context.CancelFunc
		gaps    map[domain.GateClass]scheduler.Gap
		floatFn func() float64
	)

	task := func(id int64, typ domain.TaskType, due time.Time) domain.Task {
		return domain.Task{ID: id, Type: typ, ItemID: "c1", TargetID: "c1", DueAt: due}
	}

	waitForTimer := func() {
		Expect(clock.BlockUntilContext(ctx, 1)).To(Succeed())
	}

	start := func() {
		s = scheduler.New(scheduler.Config{
			TenantID: "pageX",
			Gaps:     gaps,
			Clock:    clock,
			Switch:   sw,
			Float:    floatFn,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
			Runner: scheduler.RunnerFunc(func(ctx context.Context, t domain.Task) (bool, error) {
				starts <- started{task: t, at: clock.Now()}
				return runFn(ctx, t)
			}),
			OnDone: func(_ context.Context, t domain.Task, o scheduler.Outcome, err error) {
				done <- completion{task: t, outcome: o, err: err}
			},
		})
		go func() { _ = s.Run(ctx) }()
	}

	BeforeEach(func() {
		t0 = time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)
		clock = clockwork.NewFakeClockAt(t0)
		sw = killswitch.New(false)
		starts = make(chan started, 20)
		done = make(chan completion, 20)
		runFn = func(context.Context, domain.Task) (bool, error) { return true, nil }
		gaps = map[domain.GateClass]scheduler.Gap{
			domain.GateClassReaction: {Min: 500 * time.Millisecond, Max: 500 * time.Millisecond},
			domain.GateClassReply:    {Min: 2 * time.Second, Max: 4 * time.Second},
		}
		floatFn = func() float64 { return 0.25 }
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(func() { cancel() })
	})

	It("runs a due task immediately and reports completion", func() {
		start()
		s.Enqueue(task(1, domain.TaskTypeAcknowledge, t0))

		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomePerformed))
		Expect(c.task.ID).To(Equal(int64(1)))
		Expect(s.Len()).To(Equal(0))
	})

	It("waits for the gate even when the task is due earlier", func() {
		start()
		s.Enqueue(task(1, domain.TaskTypeAcknowledge, t0))
		Eventually(done).Should(Receive())
		Eventually(starts).Should(Receive())
		Expect(s.Gate(domain.GateClassReaction)).To(Equal(t0.Add(500 * time.Millisecond)))

		s.Enqueue(task(2, domain.TaskTypeAcknowledge, t0.Add(100*time.Millisecond)))
		waitForTimer()

		clock.Advance(100 * time.Millisecond)
		Consistently(starts, 50*time.Millisecond).ShouldNot(Receive())

		clock.Advance(400 * time.Millisecond)
		var st started
		Eventually(starts).Should(Receive(&st))
		Expect(st.task.ID).To(Equal(int64(2)))
		Expect(st.at).To(BeTemporally(">=", t0.Add(500*time.Millisecond)))
	})

	It("advances the gate after a failure and keeps going", func() {
		runFn = func(_ context.Context, t domain.Task) (bool, error) {
			if t.ID == 1 {
				return false, errors.New("remote said no")
			}
			return true, nil
		}
		start()
		s.Enqueue(task(1, domain.TaskTypeRespond, t0))

		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomeFailed))
		Expect(c.err).To(MatchError("remote said no"))
		// 2s + 0.25 * (4s - 2s)
		Expect(s.Gate(domain.GateClassReply)).To(Equal(t0.Add(2500 * time.Millisecond)))

		s.Enqueue(task(2, domain.TaskTypeRespond, t0))
		waitForTimer()
		clock.Advance(2500 * time.Millisecond)

		Eventually(done).Should(Receive(&c))
		Expect(c.task.ID).To(Equal(int64(2)))
		Expect(c.outcome).To(Equal(scheduler.OutcomePerformed))
	})

	It("keeps jitter within [min, max]", func() {
		floatFn = nil
		gaps[domain.GateClassReaction] = scheduler.Gap{Min: 10 * time.Second, Max: 15 * time.Second}
		start()

		for i := range 5 {
			s.Enqueue(task(int64(i), domain.TaskTypeAcknowledge, clock.Now()))
			Eventually(done).Should(Receive())
			gap := s.Gate(domain.GateClassReaction).Sub(clock.Now())
			Expect(gap).To(BeNumerically(">=", 10*time.Second))
			Expect(gap).To(BeNumerically("<=", 15*time.Second))
			clock.Advance(gap)
		}
	})

	It("picks the earliest deadline, not the first enqueued", func() {
		gaps[domain.GateClassReply] = scheduler.Gap{}
		start()

		s.Enqueue(
			task(1, domain.TaskTypeRespond, t0.Add(10*time.Second)),
			task(2, domain.TaskTypeRespond, t0.Add(5*time.Second)),
		)
		waitForTimer()
		clock.Advance(10 * time.Second)

		var first, second started
		Eventually(starts).Should(Receive(&first))
		Eventually(starts).Should(Receive(&second))
		Expect(first.task.ID).To(Equal(int64(2)))
		Expect(second.task.ID).To(Equal(int64(1)))
	})

	It("keeps reaction and reply gates independent", func() {
		gaps[domain.GateClassReply] = scheduler.Gap{Min: time.Hour, Max: time.Hour}
		start()

		s.Enqueue(task(1, domain.TaskTypeRespond, t0))
		Eventually(done).Should(Receive())

		s.Enqueue(task(2, domain.TaskTypeAcknowledge, t0))
		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.task.ID).To(Equal(int64(2)))
	})

	It("survives a panicking task", func() {
		runFn = func(_ context.Context, t domain.Task) (bool, error) {
			if t.ID == 1 {
				panic("boom")
			}
			return true, nil
		}
		gaps[domain.GateClassReaction] = scheduler.Gap{}
		start()

		s.Enqueue(task(1, domain.TaskTypeAcknowledge, t0), task(2, domain.TaskTypeAcknowledge, t0))

		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomeFailed))
		Expect(c.err).To(MatchError(ContainSubstring("panic: boom")))
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomePerformed))
	})

	It("reports tasks that decided to do nothing as skipped", func() {
		runFn = func(context.Context, domain.Task) (bool, error) { return false, nil }
		start()
		s.Enqueue(task(1, domain.TaskTypeSeed, t0))

		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomeSkipped))
	})

	It("leaves the gate alone after a skipped task", func() {
		runFn = func(_ context.Context, t domain.Task) (bool, error) { return t.ID != 1, nil }
		start()
		before := s.Gate(domain.GateClassReply)
		s.Enqueue(task(1, domain.TaskTypeRespond, t0))

		var c completion
		Eventually(done).Should(Receive(&c))
		Expect(c.outcome).To(Equal(scheduler.OutcomeSkipped))
		Expect(s.Gate(domain.GateClassReply)).To(Equal(before))

		s.Enqueue(task(2, domain.TaskTypeRespond, t0))
		Eventually(done).Should(Receive(&c))
		Expect(c.task.ID).To(Equal(int64(2)))
		Expect(c.outcome).To(Equal(scheduler.OutcomePerformed))

		var st started
		Eventually(starts).Should(Receive(&st))
		Eventually(starts).Should(Receive(&st))
		Expect(st.at).To(Equal(t0))
	})

	Context("when the kill switch is engaged", func() {
		It("drops the queue without running anything", func() {
			start()
			s.Enqueue(
				task(1, domain.TaskTypeRespond, t0.Add(time.Minute)),
				task(2, domain.TaskTypeAcknowledge, t0.Add(time.Minute)),
			)
			waitForTimer()

			sw.Set(true)

			var c completion
			Eventually(done).Should(Receive(&c))
			Expect(c.outcome).To(Equal(scheduler.OutcomeDropped))
			Eventually(done).Should(Receive(&c))
			Expect(c.outcome).To(Equal(scheduler.OutcomeDropped))
			Expect(s.Len()).To(Equal(0))

			clock.Advance(time.Hour)
			Consistently(starts, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("drops tasks enqueued while halted and resumes once released", func() {
			sw.Set(true)
			start()

			s.Enqueue(task(1, domain.TaskTypeAcknowledge, t0))
			var c completion
			Eventually(done).Should(Receive(&c))
			Expect(c.outcome).To(Equal(scheduler.OutcomeDropped))

			sw.Set(false)
			s.Enqueue(task(2, domain.TaskTypeAcknowledge, t0))
			Eventually(done).Should(Receive(&c))
			Expect(c.task.ID).To(Equal(int64(2)))
			Expect(c.outcome).To(Equal(scheduler.OutcomePerformed))
		})
	})
})

var _ = Describe("Queue", func() {
	t0 := time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC)

	It("orders by max(dueAt, gate) then insertion", func() {
		q := scheduler.NewQueue()
		q.Push(domain.Task{ID: 1, Type: domain.TaskTypeRespond, DueAt: t0.Add(time.Second)})
		q.Push(domain.Task{ID: 2, Type: domain.TaskTypeAcknowledge, DueAt: t0.Add(2 * time.Second)})
		q.Push(domain.Task{ID: 3, Type: domain.TaskTypeRespond, DueAt: t0.Add(time.Second)})

		gates := map[domain.GateClass]time.Time{domain.GateClassReply: t0.Add(5 * time.Second)}

		ordered := q.Ordered(gates)
		Expect([]int64{ordered[0].ID, ordered[1].ID, ordered[2].ID}).To(Equal([]int64{2, 1, 3}))

		at, ok := q.Earliest(gates)
		Expect(ok).To(BeTrue())
		Expect(at).To(Equal(t0.Add(2 * time.Second)))

		popped, _ := q.PopEarliest(gates)
		Expect(popped.ID).To(Equal(int64(2)))
		Expect(q.Len()).To(Equal(2))
	})

	It("drains in insertion order", func() {
		q := scheduler.NewQueue()
		q.Push(domain.Task{ID: 1})
		q.Push(domain.Task{ID: 2})
		drained := q.Drain()
		Expect(drained).To(HaveLen(2))
		Expect(drained[0].ID).To(Equal(int64(1)))
		Expect(q.Len()).To(Equal(0))
	})
})
