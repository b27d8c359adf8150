package balance

import (
	"log"

	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// ReserveParameters bundles everything try_reserve needs, mirroring spec.md §6's ReserveParameters.
type ReserveParameters struct {
	ConfigurationDescriptor ConfigurationDescriptor
	ExchangeAccountId       ExchangeAccountId
	Symbol                  *Symbol
	Side                    model.OrderAction
	Price                   decimal.Decimal
	Amount                  decimal.Decimal
}

func (p ReserveParameters) balanceRequest() BalanceRequest {
	return BalanceRequest{
		ConfigurationDescriptor: p.ConfigurationDescriptor,
		ExchangeAccountId:       p.ExchangeAccountId,
		CurrencyPair:            p.Symbol.Pair,
		CurrencyCode:            p.Symbol.ReservationCurrencyCode(p.Side),
	}
}

// ReservationEngine implements spec.md §4.3: the core reserve/approve/unreserve/transfer
// algorithms. It owns the reservation set and is the only component that knows how to fold
// not-approved reservation cost into VirtualBalanceHolder's raw+diff view (spec.md §4.1 step 3),
// exactly as spec.md §4.1 specifies ("this step is performed by ReservationEngine ... Virtual
// BalanceHolder itself is oblivious to reservations").
//
// Like every other BRM component, ReservationEngine trusts that Manager's single lock already
// serializes all access; it performs no locking of its own (spec.md §9).
type ReservationEngine struct {
	vbh     *VirtualBalanceHolder
	store   *ReservationStore
	fillPos *FillAmountPositionTracker
	ledger  ApprovedPartsLedger
}

// NewReservationEngine is a factory method.
func NewReservationEngine(vbh *VirtualBalanceHolder, store *ReservationStore, fillPos *FillAmountPositionTracker) *ReservationEngine {
	return &ReservationEngine{vbh: vbh, store: store, fillPos: fillPos, ledger: ApprovedPartsLedger{}}
}

// notApprovedCostSum sums not_approved_amount * cost_per_unit across every live reservation
// matching the given BalanceRequest (spec.md §4.1 step 3).
func (e *ReservationEngine) notApprovedCostSum(request BalanceRequest) decimal.Decimal {
	total := decimal.Zero
	for _, r := range e.store.All() {
		if r.ConfigurationDescriptor != request.ConfigurationDescriptor {
			continue
		}
		if r.ExchangeAccountId != request.ExchangeAccountId {
			continue
		}
		if r.Symbol.Pair != request.CurrencyPair {
			continue
		}
		if r.ReservationCurrencyCode != request.CurrencyCode {
			continue
		}
		total = total.Add(r.NotApprovedAmount.Mul(r.CostPerUnit))
	}
	return total
}

// GetVirtualBalance implements spec.md §4.1 in full: raw + diff - sum(not_approved reservation
// cost), for the given request. Returns (amount, true), or (zero, false) if no raw balance is
// known for the account/currency.
func (e *ReservationEngine) GetVirtualBalance(request BalanceRequest) (decimal.Decimal, bool) {
	base, ok := e.vbh.GetVirtualBalance(request)
	if !ok {
		return decimal.Zero, false
	}
	return base.Sub(e.notApprovedCostSum(request)), true
}

// CanReserve implements spec.md §4.3's can_reserve: cost_per_unit * amount <= virtual_balance + epsilon.
func (e *ReservationEngine) CanReserve(params ReserveParameters) bool {
	costPerUnit := params.Symbol.CostPerUnit(params.Side, params.Price)
	cost := costPerUnit.Mul(params.Amount)

	virtualBalance, ok := e.GetVirtualBalance(params.balanceRequest())
	if !ok {
		return false
	}

	if !e.fillPos.CanReserveAgainstLimit(TradePlace{ExchangeAccountId: params.ExchangeAccountId, CurrencyPair: params.Symbol.Pair}, params.Side, params.Amount) {
		return false
	}

	epsilon := params.Symbol.Epsilon()
	return cost.Sub(virtualBalance).LessThanOrEqual(epsilon)
}

// buildReservation constructs (but does not insert) a fresh reservation for params, using the
// pre-assigned id.
func (e *ReservationEngine) buildReservation(id ReservationId, params ReserveParameters) *BalanceReservation {
	currency := params.Symbol.ReservationCurrencyCode(params.Side)
	costPerUnit := params.Symbol.CostPerUnit(params.Side, params.Price)
	return &BalanceReservation{
		Id:                      id,
		ConfigurationDescriptor: params.ConfigurationDescriptor,
		ExchangeAccountId:       params.ExchangeAccountId,
		Symbol:                  params.Symbol,
		OrderSide:               params.Side,
		Price:                   params.Price,
		Amount:                  params.Amount,
		ReservationCurrencyCode: currency,
		CostPerUnit:             costPerUnit,
		NotApprovedAmount:       params.Amount,
		UnreservedAmount:        params.Amount,
		ApprovedParts:           map[ClientOrderId]*ApprovedPart{},
	}
}

// TryReserve implements spec.md §4.3's try_reserve: if CanReserve passes, insert a new reservation
// (whose presence in the store is itself what subtracts cost from the virtual balance view, per
// spec.md §4.1 step 3) and return its id. Otherwise leaves all state unchanged and returns false.
func (e *ReservationEngine) TryReserve(params ReserveParameters) (ReservationId, bool, error) {
	if !e.CanReserve(params) {
		return 0, false, nil
	}

	id, e2 := e.store.NextId()
	if e2 != nil {
		return 0, false, e2
	}

	r := e.buildReservation(id, params)
	e.store.Insert(r)
	log.Printf("balance: reserved id=%d account=%s pair=%s side=%s price=%s amount=%s cost=%s\n",
		r.Id, r.ExchangeAccountId, r.Symbol.Pair, r.OrderSide, r.Price, r.Amount, r.Cost())
	return id, true, nil
}

// TryReservePair implements spec.md §4.3's try_reserve_pair: tentatively apply the first
// reservation, evaluate the second against the updated view, and roll back both on any failure so
// the operation is all-or-nothing.
func (e *ReservationEngine) TryReservePair(p1, p2 ReserveParameters) (ReservationId, ReservationId, bool, error) {
	id1, ok, err := e.TryReserve(p1)
	if err != nil || !ok {
		return 0, 0, false, err
	}
	id2, ok, err := e.TryReserve(p2)
	if err != nil || !ok {
		e.rollback(id1)
		return 0, 0, false, err
	}
	return id1, id2, true, nil
}

// TryReserveThree implements spec.md §4.3's try_reserve_three with the same tentative-apply/roll
// back-on-failure strategy, generalized to three legs.
func (e *ReservationEngine) TryReserveThree(p1, p2, p3 ReserveParameters) (ReservationId, ReservationId, ReservationId, bool, error) {
	id1, id2, ok, err := e.TryReservePair(p1, p2)
	if err != nil || !ok {
		return 0, 0, 0, false, err
	}
	id3, ok, err := e.TryReserve(p3)
	if err != nil || !ok {
		e.rollback(id1)
		e.rollback(id2)
		return 0, 0, 0, false, err
	}
	return id1, id2, id3, true, nil
}

// rollback unconditionally removes a reservation created during a tentative multi-leg reserve.
func (e *ReservationEngine) rollback(id ReservationId) {
	e.store.Remove(id)
}

// TryUpdateReservation implements spec.md §4.3's try_update_reservation: recompute cost at the new
// price; if the delta is free or fits in the virtual balance, rewrite price/cost (and the diff)
// in place without touching approved_parts, unreserved_amount, or not_approved_amount.
func (e *ReservationEngine) TryUpdateReservation(id ReservationId, newPrice decimal.Decimal) (bool, error) {
	r, ok := e.store.Get(id)
	if !ok {
		return false, newFatalError(KindUnknownReservation, "try_update_reservation: unknown reservation id %d", id)
	}

	newCostPerUnit := r.Symbol.CostPerUnit(r.OrderSide, newPrice)
	costPerUnitDelta := newCostPerUnit.Sub(r.CostPerUnit)
	delta := r.UnreservedAmount.Mul(costPerUnitDelta)

	if delta.IsPositive() {
		virtualBalance, known := e.GetVirtualBalance(r.reservationRequest())
		if !known {
			return false, nil
		}
		epsilon := r.Symbol.Epsilon()
		if delta.Sub(virtualBalance).GreaterThan(epsilon) {
			return false, nil
		}
	}

	// the not-approved portion is repriced live through CostPerUnit; the approved-but-unfilled hold
	// ApproveReservation wrote as a diff is moved to the new rate here, since fills and unreserves
	// reverse it at the current CostPerUnit.
	approvedUnfilled := r.UnreservedAmount.Sub(r.NotApprovedAmount)
	if approvedUnfilled.IsPositive() {
		e.vbh.AddBalance(r.reservationRequest(), approvedUnfilled.Mul(costPerUnitDelta).Neg())
	}
	r.Price = newPrice
	r.CostPerUnit = newCostPerUnit
	return true, nil
}

// reservationRequest recovers the BalanceRequest a reservation's not-approved balance view lives
// under.
func (r *BalanceReservation) reservationRequest() BalanceRequest {
	return BalanceRequest{
		ConfigurationDescriptor: r.ConfigurationDescriptor,
		ExchangeAccountId:       r.ExchangeAccountId,
		CurrencyPair:            r.Symbol.Pair,
		CurrencyCode:            r.ReservationCurrencyCode,
	}
}

// ApproveReservation implements spec.md §4.3's approve_reservation. Moving `amount` out of
// not_approved_amount also moves it out of notApprovedCostSum's subtraction (it stops being
// not_approved), so ApproveReservation writes a compensating diff for the same amount to hold the
// virtual balance steady across the move -- the "synthetic diff" spec.md §3 invariant 4 describes.
func (e *ReservationEngine) ApproveReservation(id ReservationId, cid ClientOrderId, amount decimal.Decimal) error {
	r, ok := e.store.Get(id)
	if !ok {
		return newFatalError(KindUnknownReservation, "approve_reservation: unknown reservation id %d", id)
	}
	if e2 := e.ledger.Approve(r, cid, amount); e2 != nil {
		return e2
	}
	e.vbh.AddBalance(r.reservationRequest(), amount.Mul(r.CostPerUnit).Neg())
	log.Printf("balance: approved id=%d cid=%s amount=%s\n", id, cid, amount)
	return nil
}

// unreserveAmounts is the shared core of unreserve/unreserve_rest: subtracts from not_approved_amount
// first, then from approved parts' unfilled portions in deterministic insertion order (spec.md §4.3).
// Returns the portion taken from approved parts, since that (and only that) portion needs its
// ApproveReservation-time diff reversed by the caller.
func (e *ReservationEngine) unreserveAmounts(r *BalanceReservation, amount decimal.Decimal) decimal.Decimal {
	remaining := amount
	fromNotApproved := remaining
	if fromNotApproved.GreaterThan(r.NotApprovedAmount) {
		fromNotApproved = r.NotApprovedAmount
	}
	r.NotApprovedAmount = r.NotApprovedAmount.Sub(fromNotApproved)
	r.UnreservedAmount = r.UnreservedAmount.Sub(fromNotApproved)
	remaining = remaining.Sub(fromNotApproved)

	approvedPortion := decimal.Zero
	for _, cid := range r.approvedPartOrder {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		part, ok := r.ApprovedParts[cid]
		if !ok {
			continue
		}
		take := remaining
		if take.GreaterThan(part.UnfilledAmount) {
			take = part.UnfilledAmount
		}
		part.UnfilledAmount = part.UnfilledAmount.Sub(take)
		r.UnreservedAmount = r.UnreservedAmount.Sub(take)
		remaining = remaining.Sub(take)
		approvedPortion = approvedPortion.Add(take)
	}
	return approvedPortion
}

// restoreBalanceForUnreserve reverses the compensating diff ApproveReservation wrote for the
// approved-but-unfilled portion of a reservation being released (spec.md §4.3: "restore
// proportional balance to the virtual view"; §3 invariant 4). The not-approved portion never had a
// diff written in the first place -- its cost is subtracted live by notApprovedCostSum off
// not_approved_amount, which unreserveAmounts has already reduced -- so only the approved portion
// is reversed here.
func (e *ReservationEngine) restoreBalanceForUnreserve(r *BalanceReservation, approvedPortion decimal.Decimal) {
	if !approvedPortion.IsPositive() {
		return
	}
	e.vbh.AddBalance(r.reservationRequest(), approvedPortion.Mul(r.CostPerUnit))
}

// Unreserve implements spec.md §4.3's unreserve. Overshoot beyond epsilon is fatal; overshoot
// within epsilon clamps to unreserved_amount. When unreserved_amount reaches <= epsilon of zero,
// the reservation is removed from the store.
func (e *ReservationEngine) Unreserve(id ReservationId, amount decimal.Decimal) error {
	r, ok := e.store.Get(id)
	if !ok {
		return newFatalError(KindUnknownReservation, "unreserve: unknown reservation id %d", id)
	}

	epsilon := r.Symbol.Epsilon()
	overshoot := amount.Sub(r.UnreservedAmount)
	if overshoot.GreaterThan(epsilon) {
		return newFatalError(KindUnreserveOverflow, "unreserve: amount %s exceeds unreserved_amount %s by more than epsilon %s on reservation %d", amount, r.UnreservedAmount, epsilon, id)
	}

	toRemove := amount
	if overshoot.IsPositive() {
		toRemove = r.UnreservedAmount
	}

	approvedPortion := e.unreserveAmounts(r, toRemove)
	e.restoreBalanceForUnreserve(r, approvedPortion)
	log.Printf("balance: unreserved id=%d amount=%s remaining_unreserved=%s\n", id, toRemove, r.UnreservedAmount)

	if r.IsDepleted() {
		e.store.Remove(id)
	}
	return nil
}

// UnreserveByClientOrderId implements spec.md §4.3's unreserve_by_client_order_id: subtracts only
// from approved_parts[cid].unfilled_amount, with the same overshoot/epsilon handling as Unreserve.
func (e *ReservationEngine) UnreserveByClientOrderId(id ReservationId, cid ClientOrderId, amount decimal.Decimal) error {
	r, ok := e.store.Get(id)
	if !ok {
		return newFatalError(KindUnknownReservation, "unreserve_by_client_order_id: unknown reservation id %d", id)
	}
	part, ok := r.ApprovedParts[cid]
	if !ok {
		return newFatalError(KindUnknownTransferClientOrderId, "unreserve_by_client_order_id: reservation %d has no approved part for client order id %s", id, cid)
	}

	epsilon := r.Symbol.Epsilon()
	overshoot := amount.Sub(part.UnfilledAmount)
	if overshoot.GreaterThan(epsilon) {
		return newFatalError(KindUnreserveOverflow, "unreserve_by_client_order_id: amount %s exceeds unfilled_amount %s by more than epsilon %s on reservation %d cid %s", amount, part.UnfilledAmount, epsilon, id, cid)
	}

	toRemove := amount
	if overshoot.IsPositive() {
		toRemove = part.UnfilledAmount
	}

	e.ledger.SubtractFromUnfilled(r, cid, toRemove)
	r.UnreservedAmount = r.UnreservedAmount.Sub(toRemove)
	e.restoreBalanceForUnreserve(r, toRemove)
	log.Printf("balance: unreserved-by-cid id=%d cid=%s amount=%s remaining_unreserved=%s\n", id, cid, toRemove, r.UnreservedAmount)

	if r.IsDepleted() {
		e.store.Remove(id)
	}
	return nil
}

// UnreserveRest implements spec.md §4.3's unreserve_rest: equivalent to unreserve(id, unreserved_amount),
// always removing the reservation.
func (e *ReservationEngine) UnreserveRest(id ReservationId) error {
	r, ok := e.store.Get(id)
	if !ok {
		return newFatalError(KindUnknownReservation, "unreserve_rest: unknown reservation id %d", id)
	}
	return e.Unreserve(id, r.UnreservedAmount)
}

// UnreservePair implements spec.md §6's unreserve_pair: applies Unreserve to both legs. The two
// legs are independent (unlike try_reserve_pair, there is no atomicity requirement for unreserve),
// so the second leg is attempted even if the first fails. If both fail, only the first leg's error
// is returned.
func (e *ReservationEngine) UnreservePair(id1 ReservationId, amount1 decimal.Decimal, id2 ReservationId, amount2 decimal.Decimal) error {
	err1 := e.Unreserve(id1, amount1)
	err2 := e.Unreserve(id2, amount2)
	if err1 != nil {
		return err1
	}
	return err2
}

// TryTransferReservation implements spec.md §4.3's try_transfer_reservation: an atomic move of
// `amount` between two reservations sharing the same reservation_currency_code. Returns false with
// no mutation if the cost difference can't be afforded; fatal if a client order id is given but
// exists in neither side's approved_parts.
func (e *ReservationEngine) TryTransferReservation(srcId, dstId ReservationId, amount decimal.Decimal, cid *ClientOrderId) (bool, error) {
	src, ok := e.store.Get(srcId)
	if !ok {
		return false, newFatalError(KindUnknownReservation, "try_transfer_reservation: unknown source reservation id %d", srcId)
	}
	dst, ok := e.store.Get(dstId)
	if !ok {
		return false, newFatalError(KindUnknownReservation, "try_transfer_reservation: unknown destination reservation id %d", dstId)
	}
	if src.ReservationCurrencyCode != dst.ReservationCurrencyCode {
		return false, newFatalError(KindUnknownReservation, "try_transfer_reservation: reservation %d (%s) and %d (%s) do not share a reservation currency", srcId, src.ReservationCurrencyCode, dstId, dst.ReservationCurrencyCode)
	}

	var srcPart *ApprovedPart
	if cid != nil {
		sp, srcHas := src.ApprovedParts[*cid]
		dp, dstHas := dst.ApprovedParts[*cid]
		if !srcHas && !dstHas {
			return false, newFatalError(KindUnknownTransferClientOrderId, "try_transfer_reservation: client order id %s exists in neither reservation %d nor %d", *cid, srcId, dstId)
		}
		srcPart = sp
		_ = dp
	}

	// cost difference check against the source balance (spec.md §4.3): moving the claim onto a
	// reservation with a higher cost per unit needs the extra cost to be available
	costDelta := dst.CostPerUnit.Sub(src.CostPerUnit).Mul(amount)
	if costDelta.IsPositive() {
		virtualBalance, known := e.GetVirtualBalance(src.reservationRequest())
		if !known {
			return false, nil
		}
		epsilon := src.Symbol.Epsilon()
		if costDelta.Sub(virtualBalance).GreaterThan(epsilon) {
			return false, nil
		}
	}

	// subtract from the source
	if cid == nil || srcPart == nil {
		src.NotApprovedAmount = src.NotApprovedAmount.Sub(amount)
	} else {
		srcPart.UnfilledAmount = srcPart.UnfilledAmount.Sub(amount)
	}
	src.UnreservedAmount = src.UnreservedAmount.Sub(amount)
	src.Amount = src.Amount.Sub(amount)

	// add to the destination
	dst.UnreservedAmount = dst.UnreservedAmount.Add(amount)
	dst.Amount = dst.Amount.Add(amount)
	if cid == nil {
		dst.NotApprovedAmount = dst.NotApprovedAmount.Add(amount)
	} else {
		dstPart := dst.ensureApprovedPart(*cid)
		dstPart.Amount = dstPart.Amount.Add(amount)
		dstPart.UnfilledAmount = dstPart.UnfilledAmount.Add(amount)
	}

	// a pure not-approved transfer (cid == nil) needs no diff: notApprovedCostSum already charges the
	// moved amount at the destination's rate instead of the source's (spec.md §4.3).
	if cid != nil {
		if srcPart != nil {
			// release the hold ApproveReservation placed on the source bucket for this claim.
			e.vbh.AddBalance(src.reservationRequest(), amount.Mul(src.CostPerUnit))
		}
		// materialize an equivalent hold on the destination bucket for the claim just created there.
		e.vbh.AddBalance(dst.reservationRequest(), amount.Mul(dst.CostPerUnit).Neg())
	}

	log.Printf("balance: transferred amount=%s from id=%d to id=%d cid=%v\n", amount, srcId, dstId, cid)

	if src.IsDepleted() {
		e.store.Remove(srcId)
	}
	return true, nil
}
