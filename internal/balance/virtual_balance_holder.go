package balance

import (
	"github.com/shopspring/decimal"
)

// VirtualBalanceHolder maintains two layered maps -- raw exchange balances and synthetic diffs --
// and is oblivious to reservations: the subtraction of not-approved reservation cost (spec.md §4.1
// step 3) is performed by ReservationEngine, which owns the reservation set, not here (spec.md §9's
// "avoid spreading the lock across inner components" plays out as "avoid spreading reservation
// knowledge across components" too).
type VirtualBalanceHolder struct {
	raw   map[ExchangeAccountId]map[CurrencyCode]decimal.Decimal
	diffs map[BalanceRequest]decimal.Decimal
}

// NewVirtualBalanceHolder is a factory method.
func NewVirtualBalanceHolder() *VirtualBalanceHolder {
	return &VirtualBalanceHolder{
		raw:   map[ExchangeAccountId]map[CurrencyCode]decimal.Decimal{},
		diffs: map[BalanceRequest]decimal.Decimal{},
	}
}

// UpdateBalances overwrites the raw balance map for an account wholesale. It never touches diffs
// (spec.md §4.1's contract).
func (h *VirtualBalanceHolder) UpdateBalances(account ExchangeAccountId, balances map[CurrencyCode]decimal.Decimal) {
	m := make(map[CurrencyCode]decimal.Decimal, len(balances))
	for code, amount := range balances {
		m[code] = amount
	}
	h.raw[account] = m
}

// RawBalance returns the raw exchange balance for (account, currency), if known.
func (h *VirtualBalanceHolder) RawBalance(account ExchangeAccountId, currency CurrencyCode) (decimal.Decimal, bool) {
	byCurrency, ok := h.raw[account]
	if !ok {
		return decimal.Zero, false
	}
	amount, ok := byCurrency[currency]
	return amount, ok
}

// AddBalance mutates the diff for a BalanceRequest additively; a missing entry is treated as zero.
func (h *VirtualBalanceHolder) AddBalance(request BalanceRequest, delta decimal.Decimal) {
	h.diffs[request] = h.diffs[request].Add(delta)
}

// Diff returns the current diff for a BalanceRequest, or zero if none exists.
func (h *VirtualBalanceHolder) Diff(request BalanceRequest) decimal.Decimal {
	return h.diffs[request]
}

// GetVirtualBalance implements spec.md §4.1 steps 1-2 only (raw + diff); the reservation subtraction
// in step 3 is layered on top by ReservationEngine.GetVirtualBalance. Returns (amount, true) or
// (zero, false) if no raw balance is known for this account/currency.
func (h *VirtualBalanceHolder) GetVirtualBalance(request BalanceRequest) (decimal.Decimal, bool) {
	raw, ok := h.RawBalance(request.ExchangeAccountId, request.CurrencyCode)
	if !ok {
		return decimal.Zero, false
	}
	return raw.Add(h.Diff(request)), true
}

// restore replaces both raw and diffs from a Balances snapshot (spec.md §4.1's restore contract).
func (h *VirtualBalanceHolder) restore(raw map[ExchangeAccountId]map[CurrencyCode]decimal.Decimal, diffs map[BalanceRequest]decimal.Decimal) {
	h.raw = map[ExchangeAccountId]map[CurrencyCode]decimal.Decimal{}
	for account, byCurrency := range raw {
		m := make(map[CurrencyCode]decimal.Decimal, len(byCurrency))
		for code, amount := range byCurrency {
			m[code] = amount
		}
		h.raw[account] = m
	}
	h.diffs = map[BalanceRequest]decimal.Decimal{}
	for request, amount := range diffs {
		h.diffs[request] = amount
	}
}

// clone deep-copies both maps for Balances snapshotting.
func (h *VirtualBalanceHolder) clone() *VirtualBalanceHolder {
	c := NewVirtualBalanceHolder()
	c.restore(h.raw, h.diffs)
	return c
}
