package balance

import (
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// OrderRole distinguishes a maker fill (resting order matched) from a taker fill (order matched
// immediately against the book); BRM does not vary its accounting by role but carries the value
// through for the recorder and for trace logging (spec.md §4.4).
type OrderRole int8

// OrderRole values.
const (
	OrderRoleMaker OrderRole = iota
	OrderRoleTaker
)

// FillEvent is a single execution against a resting or immediate order (spec.md §4.4's "fill
// event").
type FillEvent struct {
	Price                           decimal.Decimal
	Amount                          decimal.Decimal
	Side                            model.OrderAction
	CommissionCurrencyCode          CurrencyCode
	CommissionAmount                decimal.Decimal
	ConvertedCommissionCurrencyCode *CurrencyCode
	ConvertedCommissionAmount       decimal.Decimal
	Role                            OrderRole
	FillId                          ClientOrderFillId
	Timestamp                       time.Time
}

// OrderSnapshot is the surrounding order context a fill is applied against (spec.md §4.4): enough
// to identify the trade place and, if the order was placed against a reservation, to route
// approved-part bookkeeping back to it.
type OrderSnapshot struct {
	ConfigurationDescriptor ConfigurationDescriptor
	ClientOrderId           ClientOrderId
	ExchangeAccountId       ExchangeAccountId
	Symbol                  *Symbol
	OrderType               model.OrderType
	Side                    model.OrderAction
	Price                   decimal.Decimal
	Amount                  decimal.Decimal
	Status                  OrderStatus
	ReservationId           *ReservationId
	Fills                   []FillEvent
}

// residualAmount is the order's amount minus everything already filled, used by
// clone_and_subtract_not_approved_data to size the release of an outstanding order's claim.
func (o *OrderSnapshot) residualAmount() decimal.Decimal {
	filled := decimal.Zero
	for _, f := range o.Fills {
		filled = filled.Add(f.Amount)
	}
	residual := o.Amount.Sub(filled)
	if residual.IsNegative() {
		return decimal.Zero
	}
	return residual
}

func (o *OrderSnapshot) tradePlace() TradePlace {
	return TradePlace{ExchangeAccountId: o.ExchangeAccountId, CurrencyPair: o.Symbol.Pair}
}

func (o *OrderSnapshot) balanceRequest(currency CurrencyCode) BalanceRequest {
	return BalanceRequest{
		ConfigurationDescriptor: o.ConfigurationDescriptor,
		ExchangeAccountId:       o.ExchangeAccountId,
		CurrencyPair:            o.Symbol.Pair,
		CurrencyCode:            currency,
	}
}

// FillHandler applies order fills and order finishes to VirtualBalanceHolder, FillAmountPositionTracker,
// PositionChangeTracker, and the reservation an order is linked to (spec.md §4.4). Like every other
// BRM component it trusts the caller already holds Manager's single lock.
type FillHandler struct {
	vbh            *VirtualBalanceHolder
	reservations   *ReservationEngine
	fillPos        *FillAmountPositionTracker
	changes        *PositionChangeTracker
	ledger         ApprovedPartsLedger
	lastOrderFills map[TradePlace]FillEvent
}

// NewFillHandler is a factory method.
func NewFillHandler(vbh *VirtualBalanceHolder, reservations *ReservationEngine, fillPos *FillAmountPositionTracker, changes *PositionChangeTracker) *FillHandler {
	return &FillHandler{
		vbh:            vbh,
		reservations:   reservations,
		fillPos:        fillPos,
		changes:        changes,
		ledger:         ApprovedPartsLedger{},
		lastOrderFills: map[TradePlace]FillEvent{},
	}
}

// beforeAfterCurrency resolves the before-trade currency (what the order consumes, identical to the
// reservation-currency resolution in symbol.go) and the after-trade currency (the complementary side
// of the pair) per spec.md §4.4 step 1.
func beforeAfterCurrency(sym *Symbol, side model.OrderAction) (before, after CurrencyCode) {
	before = sym.ReservationCurrencyCode(side)
	if before == sym.Pair.Quote {
		after = sym.Pair.Base
	} else {
		after = sym.Pair.Quote
	}
	return before, after
}

// beforeAfterAmounts computes the magnitude of the before-trade and after-trade changes for a fill,
// mirroring the §4.3 cost model for the before-trade leg (spec.md §4.4 step 2) and crediting the raw
// order amount to the complementary currency for the after-trade leg.
func beforeAfterAmounts(sym *Symbol, side model.OrderAction, price, amount decimal.Decimal) (before, after decimal.Decimal) {
	before = sym.CostPerUnit(side, price).Mul(amount)
	after = amount
	return before, after
}

// OrderWasFilled implements spec.md §4.4 steps 1-9 for a single fill against order.
func (h *FillHandler) OrderWasFilled(order *OrderSnapshot, fill FillEvent) error {
	sym := order.Symbol

	if order.ReservationId != nil {
		if r, ok := h.reservations.store.Get(*order.ReservationId); ok && r.OrderSide != fill.Side {
			return newFatalError(KindNegativeApprovedPart, "fill side %s contradicts reservation %d side %s for order %s", fill.Side, *order.ReservationId, r.OrderSide, order.ClientOrderId)
		}
	}

	beforeCurrency, afterCurrency := beforeAfterCurrency(sym, fill.Side)
	beforeAmount, afterAmount := beforeAfterAmounts(sym, fill.Side, fill.Price, fill.Amount)

	h.vbh.AddBalance(order.balanceRequest(beforeCurrency), beforeAmount.Neg())
	h.vbh.AddBalance(order.balanceRequest(afterCurrency), afterAmount)

	commissionCurrency := fill.CommissionCurrencyCode
	if commissionCurrency == "" {
		// no commission currency reported: charge it to the reservation currency
		commissionCurrency = beforeCurrency
	}
	commissionAmount := fill.CommissionAmount
	if fill.ConvertedCommissionCurrencyCode != nil {
		commissionCurrency = *fill.ConvertedCommissionCurrencyCode
		commissionAmount = fill.ConvertedCommissionAmount
	}
	if !commissionAmount.IsZero() {
		h.vbh.AddBalance(order.balanceRequest(commissionCurrency), commissionAmount.Neg())
	}

	place := order.tradePlace()
	delta := fill.Amount
	if fill.Side.IsSell() {
		delta = delta.Neg()
	}
	oldPos := h.fillPos.Position(place)
	newPos := h.fillPos.Add(place, delta)

	var portion decimal.Decimal
	if newPos.IsZero() {
		portion = decimal.Zero
	} else {
		portion = newPos.Sub(oldPos).Abs().Div(newPos.Abs())
	}
	h.changes.Append(place, PositionChange{ClientOrderFillId: fill.FillId, Timestamp: fill.Timestamp, Portion: portion})

	h.lastOrderFills[place] = fill

	if order.ReservationId != nil {
		if r, ok := h.reservations.store.Get(*order.ReservationId); ok {
			removed := h.ledger.ReduceUnfilled(r, order.ClientOrderId, fill.Amount)
			// reverse the ApproveReservation-time hold for the filled portion: the actual spend
			// this fill caused was already applied above via beforeAmount at the fill's own price,
			// so the reservation-price hold on the same units must not also linger (spec.md §3
			// invariant 4; §4.4 step 9).
			if removed.IsPositive() {
				h.vbh.AddBalance(r.reservationRequest(), removed.Mul(r.CostPerUnit))
			}
			if r.IsDepleted() {
				h.reservations.store.Remove(*order.ReservationId)
			}
		}
	}

	log.Printf("balance: filled order=%s place=%s side=%s price=%s amount=%s fill_id=%s\n",
		order.ClientOrderId, place, fill.Side, fill.Price, fill.Amount, fill.FillId)
	return nil
}

// OrderWasFinished implements spec.md §4.4's order_was_finished: replays every recorded fill, then,
// if the order ended Canceled with a linked reservation, releases the residual unfilled approved
// part (equivalent to unreserve_by_client_order_id for the remainder).
func (h *FillHandler) OrderWasFinished(order *OrderSnapshot) error {
	for _, fill := range order.Fills {
		if e := h.OrderWasFilled(order, fill); e != nil {
			return e
		}
	}

	if order.Status != OrderStatusCanceled || order.ReservationId == nil {
		return nil
	}

	r, ok := h.reservations.store.Get(*order.ReservationId)
	if !ok {
		return nil
	}
	part, ok := r.ApprovedParts[order.ClientOrderId]
	if !ok || part.UnfilledAmount.IsZero() {
		return nil
	}
	return h.reservations.UnreserveByClientOrderId(*order.ReservationId, order.ClientOrderId, part.UnfilledAmount)
}

// LastFill returns the most recent fill recorded for a trade place, if any.
func (h *FillHandler) LastFill(place TradePlace) (FillEvent, bool) {
	f, ok := h.lastOrderFills[place]
	return f, ok
}

// clone deep-copies the last-fill map for Balances snapshotting.
func (h *FillHandler) clone() map[TradePlace]FillEvent {
	c := make(map[TradePlace]FillEvent, len(h.lastOrderFills))
	for place, f := range h.lastOrderFills {
		c[place] = f
	}
	return c
}
