package limits

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
)

// DefaultDedupCapacity bounds the ledger when no capacity is configured.
const DefaultDedupCapacity = 5000

// DedupLedger remembers processed item ids.
//
// Eviction is by insertion order: the ledger only ever calls Contains,
// ContainsOrAdd and Peek, none of which refresh recency, so the LRU's
// "least recently used" entry is always the oldest inserted one.
type DedupLedger struct {
	clock   clockwork.Clock
	entries *lru.Cache[string, time.Time]
}

func NewDedupLedger(capacity int, clock clockwork.Clock) (*DedupLedger, error) {
	if capacity <= 0 {
		capacity = DefaultDedupCapacity
	}
	entries, err := lru.New[string, time.Time](capacity)
	if err != nil {
		return nil, fmt.Errorf("creating dedup ledger: %w", err)
	}
	return &DedupLedger{clock: clock, entries: entries}, nil
}

// Remember marks id as processed. Remembering a known id is a no-op and
// keeps its original position.
func (d *DedupLedger) Remember(id string) {
	d.entries.ContainsOrAdd(id, d.clock.Now())
}

func (d *DedupLedger) Seen(id string) bool {
	return d.entries.Contains(id)
}

// RememberedAt returns when id was first remembered.
func (d *DedupLedger) RememberedAt(id string) (time.Time, bool) {
	return d.entries.Peek(id)
}

func (d *DedupLedger) Len() int {
	return d.entries.Len()
}
