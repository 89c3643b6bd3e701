package limits

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultThreadIdleTTL = 48 * time.Hour

type threadEntry struct {
	lastActionAt time.Time
	count        int
}

// ThreadCounter caps actions per conversation thread. Threads idle for longer
// than the TTL are forgotten on the next read.
//
// Not safe for concurrent use; the owning tenant serializes access.
type ThreadCounter struct {
	clock   clockwork.Clock
	entries map[string]threadEntry
	idleTTL time.Duration
}

func NewThreadCounter(idleTTL time.Duration, clock clockwork.Clock) *ThreadCounter {
	if idleTTL <= 0 {
		idleTTL = DefaultThreadIdleTTL
	}
	return &ThreadCounter{
		clock:   clock,
		entries: make(map[string]threadEntry),
		idleTTL: idleTTL,
	}
}

// Allow reports whether threadID is below ceiling. A ceiling of zero or less is unlimited.
func (t *ThreadCounter) Allow(threadID string, ceiling int) bool {
	return under(t.Count(threadID), ceiling)
}

func (t *ThreadCounter) Record(threadID string) {
	now := t.clock.Now()
	e := t.entries[threadID]
	if now.Sub(e.lastActionAt) > t.idleTTL {
		e = threadEntry{}
	}
	e.count++
	e.lastActionAt = now
	t.entries[threadID] = e
}

// Count prunes idle threads and returns the count for threadID.
func (t *ThreadCounter) Count(threadID string) int {
	t.prune()
	return t.entries[threadID].count
}

func (t *ThreadCounter) Len() int {
	t.prune()
	return len(t.entries)
}

func (t *ThreadCounter) prune() {
	cutoff := t.clock.Now().Add(-t.idleTTL)
	for id, e := range t.entries {
		if e.lastActionAt.Before(cutoff) {
			delete(t.entries, id)
		}
	}
}
