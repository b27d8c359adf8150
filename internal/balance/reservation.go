package balance

import (
	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// ApprovedPart is the subset of a reservation bound to one placed order (spec.md §3, GLOSSARY).
type ApprovedPart struct {
	Amount         decimal.Decimal
	UnfilledAmount decimal.Decimal
}

// BalanceReservation is a single in-memory claim on a portion of balance for an order that has been
// decided but not yet placed or fully filled (spec.md §3).
type BalanceReservation struct {
	Id                      ReservationId
	ConfigurationDescriptor ConfigurationDescriptor
	ExchangeAccountId       ExchangeAccountId
	Symbol                  *Symbol
	OrderSide               model.OrderAction
	Price                   decimal.Decimal
	Amount                  decimal.Decimal

	// ReservationCurrencyCode is resolved once at creation time per spec.md §9 and never recomputed.
	ReservationCurrencyCode CurrencyCode
	// CostPerUnit is resolved at the reservation's current Price; Cost = CostPerUnit * Amount.
	CostPerUnit decimal.Decimal

	NotApprovedAmount decimal.Decimal
	UnreservedAmount  decimal.Decimal
	// ApprovedParts preserves insertion order in approvedPartOrder so unreserve's "arbitrary but
	// deterministic by insertion order" rule (spec.md §4.3) is actually deterministic.
	ApprovedParts     map[ClientOrderId]*ApprovedPart
	approvedPartOrder []ClientOrderId
}

// Cost returns the signed cost of the full reservation amount, in ReservationCurrencyCode.
func (r *BalanceReservation) Cost() decimal.Decimal {
	return r.CostPerUnit.Mul(r.Amount)
}

// sumApprovedUnfilled sums every approved part's unfilled_amount.
func (r *BalanceReservation) sumApprovedUnfilled() decimal.Decimal {
	total := decimal.Zero
	for _, cid := range r.approvedPartOrder {
		if part, ok := r.ApprovedParts[cid]; ok {
			total = total.Add(part.UnfilledAmount)
		}
	}
	return total
}

// checkInvariants validates spec.md §3's reservation invariants 1 and 2 (amount ordering and the
// approved-parts sum); returns a non-nil error describing the first violation found. The cost-sign
// and virtual-view invariants are not checked here, and no operation calls this function.
func (r *BalanceReservation) checkInvariants() error {
	if r.NotApprovedAmount.IsNegative() {
		return newFatalError(KindNegativeApprovedPart, "reservation %d has negative not_approved_amount %s", r.Id, r.NotApprovedAmount)
	}
	if r.NotApprovedAmount.GreaterThan(r.UnreservedAmount) {
		return newFatalError(KindNegativeApprovedPart, "reservation %d has not_approved_amount %s > unreserved_amount %s", r.Id, r.NotApprovedAmount, r.UnreservedAmount)
	}
	if r.UnreservedAmount.GreaterThan(r.Amount) {
		return newFatalError(KindNegativeApprovedPart, "reservation %d has unreserved_amount %s > amount %s", r.Id, r.UnreservedAmount, r.Amount)
	}
	sumApproved := r.sumApprovedUnfilled()
	lhs := r.NotApprovedAmount.Add(sumApproved)
	epsilon := r.Symbol.Epsilon()
	if lhs.Sub(r.UnreservedAmount).Abs().GreaterThan(epsilon) {
		return newFatalError(KindNegativeApprovedPart, "reservation %d invariant violated: not_approved(%s) + sum(approved.unfilled)(%s) != unreserved(%s)", r.Id, r.NotApprovedAmount, sumApproved, r.UnreservedAmount)
	}
	return nil
}

// ensureApprovedPart returns the existing approved part for cid, or creates and registers a new
// zeroed one, preserving insertion order.
func (r *BalanceReservation) ensureApprovedPart(cid ClientOrderId) *ApprovedPart {
	if part, ok := r.ApprovedParts[cid]; ok {
		return part
	}
	part := &ApprovedPart{Amount: decimal.Zero, UnfilledAmount: decimal.Zero}
	r.ApprovedParts[cid] = part
	r.approvedPartOrder = append(r.approvedPartOrder, cid)
	return part
}

// IsDepleted reports whether unreserved_amount has reached zero within the symbol's epsilon,
// the condition under which spec.md §3 says a reservation is destroyed.
func (r *BalanceReservation) IsDepleted() bool {
	return r.UnreservedAmount.Abs().LessThanOrEqual(r.Symbol.Epsilon())
}

// clone returns a deep copy, used by Balances snapshotting and clone-and-subtract (spec.md §4.6).
func (r *BalanceReservation) clone() *BalanceReservation {
	c := &BalanceReservation{
		Id:                      r.Id,
		ConfigurationDescriptor: r.ConfigurationDescriptor,
		ExchangeAccountId:       r.ExchangeAccountId,
		Symbol:                  r.Symbol,
		OrderSide:               r.OrderSide,
		Price:                   r.Price,
		Amount:                  r.Amount,
		ReservationCurrencyCode: r.ReservationCurrencyCode,
		CostPerUnit:             r.CostPerUnit,
		NotApprovedAmount:       r.NotApprovedAmount,
		UnreservedAmount:        r.UnreservedAmount,
		ApprovedParts:           make(map[ClientOrderId]*ApprovedPart, len(r.ApprovedParts)),
		approvedPartOrder:       append([]ClientOrderId{}, r.approvedPartOrder...),
	}
	for cid, part := range r.ApprovedParts {
		c.ApprovedParts[cid] = &ApprovedPart{Amount: part.Amount, UnfilledAmount: part.UnfilledAmount}
	}
	return c
}
