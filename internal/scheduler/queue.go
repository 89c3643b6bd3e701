package scheduler

import (
	"slices"
	"time"

	"basegraph.app/pagebot/internal/domain"
)

type entry struct {
	task domain.Task
	seq  uint64
}

// Queue is an unordered bag of pending tasks. Ordering is computed at
// selection time because gates move after every execution.
//
// Not safe for concurrent use; Scheduler guards it.
type Queue struct {
	entries []entry
	seq     uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Push(t domain.Task) {
	q.seq++
	q.entries = append(q.entries, entry{task: t, seq: q.seq})
}

func (q *Queue) Len() int {
	return len(q.entries)
}

// ReadyKey is the earliest time t may start given the current gates.
func ReadyKey(t domain.Task, gates map[domain.GateClass]time.Time) time.Time {
	gate := gates[t.Type.GateClass()]
	if gate.After(t.DueAt) {
		return gate
	}
	return t.DueAt
}

// less orders by ready key, then insertion order.
func less(a, b entry, gates map[domain.GateClass]time.Time) bool {
	ka, kb := ReadyKey(a.task, gates), ReadyKey(b.task, gates)
	if !ka.Equal(kb) {
		return ka.Before(kb)
	}
	return a.seq < b.seq
}

func (q *Queue) earliestIndex(gates map[domain.GateClass]time.Time) int {
	best := -1
	for i := range q.entries {
		if best < 0 || less(q.entries[i], q.entries[best], gates) {
			best = i
		}
	}
	return best
}

// Earliest returns the smallest ready key in the queue.
func (q *Queue) Earliest(gates map[domain.GateClass]time.Time) (time.Time, bool) {
	i := q.earliestIndex(gates)
	if i < 0 {
		return time.Time{}, false
	}
	return ReadyKey(q.entries[i].task, gates), true
}

// PopEarliest removes and returns the task that should run next.
func (q *Queue) PopEarliest(gates map[domain.GateClass]time.Time) (domain.Task, bool) {
	i := q.earliestIndex(gates)
	if i < 0 {
		return domain.Task{}, false
	}
	t := q.entries[i].task
	q.entries = slices.Delete(q.entries, i, i+1)
	return t, true
}

// Drain empties the queue and returns its tasks in insertion order.
func (q *Queue) Drain() []domain.Task {
	tasks := make([]domain.Task, len(q.entries))
	for i, e := range q.entries {
		tasks[i] = e.task
	}
	q.entries = nil
	return tasks
}

// Ordered returns the tasks in the order they would run if gates stayed put.
func (q *Queue) Ordered(gates map[domain.GateClass]time.Time) []domain.Task {
	sorted := slices.Clone(q.entries)
	slices.SortFunc(sorted, func(a, b entry) int {
		switch {
		case less(a, b, gates):
			return -1
		case less(b, a, gates):
			return 1
		}
		return 0
	})
	tasks := make([]domain.Task, len(sorted))
	for i, e := range sorted {
		tasks[i] = e.task
	}
	return tasks
}
