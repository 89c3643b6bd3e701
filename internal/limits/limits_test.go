package limits_test

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/pagebot/internal/limits"
)

var _ = Describe("RateWindow", func() {
	var (
		clock *clockwork.FakeClock
		w     *limits.RateWindow
	)

	BeforeEach(func() {
		clock = clockwork.NewFakeClockAt(time.Date(2024, 2, 9, 12, 0, 0, 0, time.UTC))
		w = limits.NewRateWindow(clock)
	})

	It("allows while both counts are under their caps", func() {
		Expect(w.Allow(2, 10)).To(BeTrue())
		w.Record()
		Expect(w.Allow(2, 10)).To(BeTrue())
		w.Record()
		Expect(w.Allow(2, 10)).To(BeFalse())
	})

	It("allows again once the hour rolls over", func() {
		w.Record()
		w.Record()
		Expect(w.Allow(2, 10)).To(BeFalse())

		clock.Advance(59 * time.Minute)
		Expect(w.Allow(2, 10)).To(BeFalse())

		clock.Advance(2 * time.Minute)
		Expect(w.Allow(2, 10)).To(BeTrue())

		hour, day := w.Counts()
		Expect(hour).To(Equal(0))
		Expect(day).To(Equal(2))
	})

	It("enforces the daily cap across hours", func() {
		for range 3 {
			w.Record()
			clock.Advance(2 * time.Hour)
		}
		Expect(w.Allow(100, 3)).To(BeFalse())

		clock.Advance(20 * time.Hour)
		Expect(w.Allow(100, 3)).To(BeTrue())
	})

	It("treats non-positive caps as unlimited", func() {
		for range 50 {
			w.Record()
		}
		Expect(w.Allow(0, -1)).To(BeTrue())
	})
})

var _ = Describe("DedupLedger", func() {
	var (
		clock  *clockwork.FakeClock
		ledger *limits.DedupLedger
	)

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		var err error
		ledger, err = limits.NewDedupLedger(3, clock)
		Expect(err).NotTo(HaveOccurred())
	})

	It("is idempotent", func() {
		ledger.Remember("c1")
		first, _ := ledger.RememberedAt("c1")

		clock.Advance(time.Minute)
		ledger.Remember("c1")

		Expect(ledger.Len()).To(Equal(1))
		Expect(ledger.Seen("c1")).To(BeTrue())
		again, _ := ledger.RememberedAt("c1")
		Expect(again).To(Equal(first))
	})

	It("evicts the oldest inserted id first", func() {
		ledger.Remember("a")
		ledger.Remember("b")
		ledger.Remember("c")

		// lookups must not refresh position
		Expect(ledger.Seen("a")).To(BeTrue())
		ledger.Remember("a")

		ledger.Remember("d")

		Expect(ledger.Seen("a")).To(BeFalse())
		Expect(ledger.Seen("b")).To(BeTrue())
		Expect(ledger.Seen("c")).To(BeTrue())
		Expect(ledger.Seen("d")).To(BeTrue())
	})

	It("never exceeds its capacity", func() {
		for i := range 100 {
			ledger.Remember(fmt.Sprintf("item-%d", i))
			Expect(ledger.Len()).To(BeNumerically("<=", 3))
		}
		Expect(ledger.Seen("item-99")).To(BeTrue())
		Expect(ledger.Seen("item-96")).To(BeFalse())
	})

	It("falls back to the default capacity", func() {
		l, err := limits.NewDedupLedger(0, clock)
		Expect(err).NotTo(HaveOccurred())
		for i := range limits.DefaultDedupCapacity + 10 {
			l.Remember(fmt.Sprintf("item-%d", i))
		}
		Expect(l.Len()).To(Equal(limits.DefaultDedupCapacity))
	})
})

var _ = Describe("ThreadCounter", func() {
	var (
		clock   *clockwork.FakeClock
		counter *limits.ThreadCounter
	)

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		counter = limits.NewThreadCounter(48*time.Hour, clock)
	})

	It("caps actions per thread", func() {
		Expect(counter.Allow("p1", 2)).To(BeTrue())
		counter.Record("p1")
		counter.Record("p1")
		Expect(counter.Allow("p1", 2)).To(BeFalse())
		Expect(counter.Allow("p2", 2)).To(BeTrue())
	})

	It("keeps a thread alive while it sees activity", func() {
		counter.Record("p1")
		clock.Advance(47 * time.Hour)
		counter.Record("p1")
		clock.Advance(47 * time.Hour)
		Expect(counter.Count("p1")).To(Equal(2))
	})

	It("forgets threads idle for longer than the ttl", func() {
		counter.Record("p1")
		counter.Record("p2")
		clock.Advance(49 * time.Hour)
		counter.Record("p2")

		Expect(counter.Count("p1")).To(Equal(0))
		Expect(counter.Allow("p1", 1)).To(BeTrue())
		Expect(counter.Len()).To(Equal(1))
		Expect(counter.Count("p2")).To(Equal(1))
	})
})

var _ = Describe("InFlightSet", func() {
	var set *limits.InFlightSet

	BeforeEach(func() {
		set = limits.NewInFlightSet()
	})

	It("refuses a second reservation", func() {
		Expect(set.Reserve("c1")).To(BeTrue())
		Expect(set.Reserve("c1")).To(BeFalse())
		Expect(set.Contains("c1")).To(BeTrue())
	})

	It("releases only after the last task", func() {
		set.Reserve("c1")
		set.Assign("c1", 2)

		Expect(set.Release("c1")).To(BeFalse())
		Expect(set.Contains("c1")).To(BeTrue())
		Expect(set.Release("c1")).To(BeTrue())
		Expect(set.Contains("c1")).To(BeFalse())
	})

	It("ignores releases for unknown ids", func() {
		Expect(set.Release("nope")).To(BeFalse())
	})

	It("drops cancelled reservations", func() {
		set.Reserve("c1")
		set.Cancel("c1")
		Expect(set.Len()).To(Equal(0))
	})
})
