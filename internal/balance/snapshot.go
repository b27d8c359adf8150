package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balances is the full BRM state bundle: raw per-exchange balances, virtual-diff balances,
// every reservation by id, amount limits, the position-by-fill-amount table, the position-change
// log, last-order-fills by trade place, and an init timestamp (spec.md §3). It is immutable by
// convention -- produced by Manager.GetBalances() as a deep copy, and consumed only by
// Manager.RestoreBalanceStateWithReservationsHandling or by a host for persistence.
type Balances struct {
	balanceHolder   *VirtualBalanceHolder
	reservations    *ReservationStore
	fillPositions   *FillAmountPositionTracker
	positionChanges *PositionChangeTracker
	lastOrderFills  map[TradePlace]FillEvent
	initTime        time.Time
}

// RawBalance returns the raw exchange balance captured in the snapshot for (account, currency).
func (b *Balances) RawBalance(account ExchangeAccountId, currency CurrencyCode) (decimal.Decimal, bool) {
	return b.balanceHolder.RawBalance(account, currency)
}

// Reservations returns every reservation captured in the snapshot, in no particular order.
func (b *Balances) Reservations() []*BalanceReservation {
	return b.reservations.All()
}

// Position returns the captured net fill-amount position for a trade place.
func (b *Balances) Position(place TradePlace) decimal.Decimal {
	return b.fillPositions.Position(place)
}

// LastFill returns the captured last fill for a trade place, if any.
func (b *Balances) LastFill(place TradePlace) (FillEvent, bool) {
	f, ok := b.lastOrderFills[place]
	return f, ok
}

// InitTime returns when this snapshot was produced.
func (b *Balances) InitTime() time.Time {
	return b.initTime
}
