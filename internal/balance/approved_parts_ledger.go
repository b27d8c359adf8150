package balance

import (
	"github.com/shopspring/decimal"
)

// ApprovedPartsLedger is the per-reservation client-order-id -> approved sub-amount bookkeeping
// described in spec.md §2's component table. The data lives on BalanceReservation.ApprovedParts
// itself (spec.md §3); this type holds the approve, fill-reduce and unreserve-by-client-order-id
// mutations. ReservationEngine's unreserve and transfer paths and FillHandler.OrderWasFinished
// still read and update ApprovedParts directly.
type ApprovedPartsLedger struct{}

// Approve moves `amount` out of not_approved_amount into approved_parts[cid].unfilled_amount,
// creating the entry if absent (spec.md §4.3 approve_reservation). Fatal if it would drive
// not_approved_amount negative.
func (ApprovedPartsLedger) Approve(r *BalanceReservation, cid ClientOrderId, amount decimal.Decimal) error {
	if amount.GreaterThan(r.NotApprovedAmount) {
		return newFatalError(KindNegativeApprovedPart, "cannot approve %s for reservation %d: only %s is not_approved", amount, r.Id, r.NotApprovedAmount)
	}
	r.NotApprovedAmount = r.NotApprovedAmount.Sub(amount)
	part := r.ensureApprovedPart(cid)
	part.Amount = part.Amount.Add(amount)
	part.UnfilledAmount = part.UnfilledAmount.Add(amount)
	return nil
}

// ReduceUnfilled reduces approved_parts[cid].unfilled_amount by `amount`, clamped at zero
// (spec.md §4.4 step 9's fill-application rule). Returns the amount actually removed.
func (ApprovedPartsLedger) ReduceUnfilled(r *BalanceReservation, cid ClientOrderId, amount decimal.Decimal) decimal.Decimal {
	part, ok := r.ApprovedParts[cid]
	if !ok {
		return decimal.Zero
	}
	removed := amount
	if removed.GreaterThan(part.UnfilledAmount) {
		removed = part.UnfilledAmount
	}
	part.UnfilledAmount = part.UnfilledAmount.Sub(removed)
	r.UnreservedAmount = r.UnreservedAmount.Sub(removed)
	return removed
}

// SubtractFromUnfilled subtracts `amount` from approved_parts[cid].unfilled_amount for an explicit
// unreserve_by_client_order_id call (spec.md §4.3), without touching UnreservedAmount -- the caller
// is responsible for that, since the overshoot/clamp rules differ slightly between the fill path
// and the explicit-unreserve path.
func (ApprovedPartsLedger) SubtractFromUnfilled(r *BalanceReservation, cid ClientOrderId, amount decimal.Decimal) (*ApprovedPart, bool) {
	part, ok := r.ApprovedParts[cid]
	if !ok {
		return nil, false
	}
	part.UnfilledAmount = part.UnfilledAmount.Sub(amount)
	return part, true
}
