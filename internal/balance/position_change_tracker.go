package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionChange records the fraction of the net position attributable to a given fill
// (spec.md §3, §4.5, GLOSSARY).
type PositionChange struct {
	ClientOrderFillId ClientOrderFillId
	Timestamp         time.Time
	Portion           decimal.Decimal
}

// PositionChangeTracker keeps a per-trade-place, append-only, ordered log of position changes,
// keyed by fill id (spec.md §4.5). Lookup is linear within the window a caller has trimmed to, by
// design -- callers are expected to maintain their own sliding window (spec.md §4.5).
type PositionChangeTracker struct {
	byPlace map[TradePlace][]PositionChange
}

// NewPositionChangeTracker is a factory method.
func NewPositionChangeTracker() *PositionChangeTracker {
	return &PositionChangeTracker{byPlace: map[TradePlace][]PositionChange{}}
}

// Append adds a new PositionChange to the log for a trade place. The log is append-only; this is
// the only mutator.
func (t *PositionChangeTracker) Append(place TradePlace, change PositionChange) {
	t.byPlace[place] = append(t.byPlace[place], change)
}

// GetLastPositionChangeBeforePeriod returns the most recent change with timestamp <= ts, or false
// if none exists (spec.md §4.5).
func (t *PositionChangeTracker) GetLastPositionChangeBeforePeriod(place TradePlace, ts time.Time) (PositionChange, bool) {
	log := t.byPlace[place]
	for i := len(log) - 1; i >= 0; i-- {
		if !log[i].Timestamp.After(ts) {
			return log[i], true
		}
	}
	return PositionChange{}, false
}

// All returns the full log for a trade place, in append order. Intended for consumers that maintain
// their own trimming window.
func (t *PositionChangeTracker) All(place TradePlace) []PositionChange {
	return t.byPlace[place]
}

// clone deep-copies the tracker for Balances snapshotting.
func (t *PositionChangeTracker) clone() *PositionChangeTracker {
	c := NewPositionChangeTracker()
	for place, log := range t.byPlace {
		c.byPlace[place] = append([]PositionChange{}, log...)
	}
	return c
}
