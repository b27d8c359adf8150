package balance

import (
	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// FillAmountPositionTracker tracks net filled-amount position per trade place and, optionally, a
// target amount limit that blocks reservations from the overshoot side once the position crosses it
// (spec.md §4.4 step 6).
type FillAmountPositionTracker struct {
	positions map[TradePlace]decimal.Decimal
	limits    map[TradePlace]decimal.Decimal
}

// NewFillAmountPositionTracker is a factory method.
func NewFillAmountPositionTracker() *FillAmountPositionTracker {
	return &FillAmountPositionTracker{
		positions: map[TradePlace]decimal.Decimal{},
		limits:    map[TradePlace]decimal.Decimal{},
	}
}

// Position returns the current net position for a trade place (zero if never touched).
func (t *FillAmountPositionTracker) Position(place TradePlace) decimal.Decimal {
	return t.positions[place]
}

// Add applies a signed delta to the position (positive for buys, negative for sells, per spec.md
// §4.4 step 6) and returns the new position.
func (t *FillAmountPositionTracker) Add(place TradePlace, delta decimal.Decimal) decimal.Decimal {
	newPos := t.positions[place].Add(delta)
	t.positions[place] = newPos
	return newPos
}

// SetPosition overwrites the tracked position for a trade place outright, used to seed or correct
// it from a venue-reported derivative position (spec.md §4.6 update_exchange_balance).
func (t *FillAmountPositionTracker) SetPosition(place TradePlace, position decimal.Decimal) {
	t.positions[place] = position
}

// SetLimit installs or replaces the target amount limit for a trade place (spec.md §4.6
// set_target_amount_limit). A zero limit is stored like any other value; there is no way to clear
// a limit once set.
func (t *FillAmountPositionTracker) SetLimit(place TradePlace, limit decimal.Decimal) {
	t.limits[place] = limit
}

// Limit returns the configured limit and whether one is set.
func (t *FillAmountPositionTracker) Limit(place TradePlace) (decimal.Decimal, bool) {
	limit, ok := t.limits[place]
	return limit, ok
}

// CanReserveAgainstLimit implements spec.md §4.4 step 6's reservation-side check: buys must keep
// (position + requested) <= limit, sells must keep (position - requested) >= -limit. Returns true
// when no limit is configured.
func (t *FillAmountPositionTracker) CanReserveAgainstLimit(place TradePlace, side model.OrderAction, requested decimal.Decimal) bool {
	limit, ok := t.limits[place]
	if !ok {
		return true
	}
	position := t.positions[place]
	if side.IsBuy() {
		return position.Add(requested).LessThanOrEqual(limit)
	}
	return position.Sub(requested).GreaterThanOrEqual(limit.Neg())
}

// FillAmountPositionPercent returns position/limit, or false if no limit is configured
// (SPEC_FULL.md §10's get_fill_amount_position_percent).
func (t *FillAmountPositionTracker) FillAmountPositionPercent(place TradePlace) (decimal.Decimal, bool) {
	limit, ok := t.limits[place]
	if !ok || limit.IsZero() {
		return decimal.Zero, false
	}
	return t.positions[place].Div(limit), true
}

// clone deep-copies the tracker for Balances snapshotting.
func (t *FillAmountPositionTracker) clone() *FillAmountPositionTracker {
	c := NewFillAmountPositionTracker()
	for place, pos := range t.positions {
		c.positions[place] = pos
	}
	for place, limit := range t.limits {
		c.limits[place] = limit
	}
	return c
}
