// Package dedupe tracks which replay ids, and which exact replay-id sets,
// have already been folded into the ladder.
package dedupe

import (
	"slices"
	"strings"
	"sync"
)

// Deduper answers ownership questions about accepted replays.
type Deduper interface {
	// ReplayOwner returns the submission that first accepted replayID.
	ReplayOwner(replayID string) (string, bool)

	// SetOwner returns the submission whose replay-id set equals ids,
	// regardless of order.
	SetOwner(ids []string) (string, bool)

	// Record marks ids as accepted by submissionID. Already owned ids keep
	// their first owner.
	Record(submissionID string, ids []string)

	Size() int
}

// Ledger implements Deduper in memory. It never evicts: forgetting an id
// would let a replay be scored twice.
type Ledger struct {
	mu      sync.RWMutex
	replays map[string]string // replay id -> submission id
	sets    map[string]string // SetKey -> submission id
}

// NewLedger creates an empty Ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{}
	for _, opt := range opts {
		opt(l)
	}
	if l.replays == nil {
		l.replays = make(map[string]string)
		l.sets = make(map[string]string)
	}
	return l
}

// SetKey is the order-independent identity of a replay-id set.
func SetKey(ids []string) string {
	s := slices.Clone(ids)
	slices.Sort(s)
	return strings.Join(s, ",")
}

func (l *Ledger) ReplayOwner(replayID string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sub, ok := l.replays[replayID]
	return sub, ok
}

func (l *Ledger) SetOwner(ids []string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	sub, ok := l.sets[SetKey(ids)]
	return sub, ok
}

func (l *Ledger) Record(submissionID string, ids []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range ids {
		if _, ok := l.replays[id]; !ok {
			l.replays[id] = submissionID
		}
	}
	key := SetKey(ids)
	if _, ok := l.sets[key]; !ok {
		l.sets[key] = submissionID
	}
}

// Size returns the number of distinct accepted replay ids.
func (l *Ledger) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.replays)
}
