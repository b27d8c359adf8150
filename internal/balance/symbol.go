package balance

import (
	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// Symbol describes a tradable pair's shape on a particular exchange: which currency amount is
// quoted in, whether it's a derivative, and the tick/limit constraints that govern rounding and
// the can_reserve epsilon (spec.md §3, §4.3).
type Symbol struct {
	Pair                 CurrencyPair
	IsDerivative         bool
	IsReversedDerivative bool
	AmountCurrencyCode   CurrencyCode
	BalanceCurrencyCode  *CurrencyCode
	Leverage             decimal.Decimal

	PriceTick  decimal.Decimal
	AmountTick decimal.Decimal
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	MinCost    decimal.Decimal
}

// MakeSpotSymbol is a factory method for a plain spot symbol (not a derivative).
func MakeSpotSymbol(pair CurrencyPair, priceTick decimal.Decimal, amountTick decimal.Decimal) *Symbol {
	return &Symbol{
		Pair:               pair,
		AmountCurrencyCode: pair.Base,
		Leverage:           decimal.NewFromInt(1),
		PriceTick:          priceTick,
		AmountTick:         amountTick,
	}
}

// MakeDerivativeSymbol is a factory method for a linear or reversed derivative symbol.
func MakeDerivativeSymbol(pair CurrencyPair, reversed bool, leverage decimal.Decimal, priceTick decimal.Decimal, amountTick decimal.Decimal) *Symbol {
	amountCurrency := pair.Base
	if reversed {
		amountCurrency = pair.Quote
	}
	return &Symbol{
		Pair:                 pair,
		IsDerivative:         true,
		IsReversedDerivative: reversed,
		AmountCurrencyCode:   amountCurrency,
		Leverage:             leverage,
		PriceTick:            priceTick,
		AmountTick:           amountTick,
	}
}

// Epsilon returns half of the smaller of the amount and price ticks, the margin of error used
// throughout ReservationEngine for last-unit precision errors (spec.md §4.3, §9).
func (s *Symbol) Epsilon() decimal.Decimal {
	smaller := s.AmountTick
	if s.PriceTick.LessThan(smaller) {
		smaller = s.PriceTick
	}
	return smaller.Div(decimal.NewFromInt(2))
}

// RoundPrice snaps a price to the symbol's price tick using round-half-away-from-zero.
func (s *Symbol) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return model.RoundToTick(price, s.PriceTick)
}

// RoundAmount snaps an amount to the symbol's amount tick using round-half-away-from-zero.
func (s *Symbol) RoundAmount(amount decimal.Decimal) decimal.Decimal {
	return model.RoundToTick(amount, s.AmountTick)
}

// ReservationCurrencyCode resolves the currency a reservation of the given side consumes on this
// symbol (spec.md §4.3 table). A reservation caches the result at creation time per spec.md §9's
// "precompute it at reservation creation" guidance; balance lookups and fill handling also call it
// to resolve the currency for a side.
func (s *Symbol) ReservationCurrencyCode(side model.OrderAction) CurrencyCode {
	switch {
	case !s.IsDerivative && side.IsBuy():
		return s.Pair.Quote
	case !s.IsDerivative && side.IsSell():
		return s.Pair.Base
	case s.IsDerivative && !s.IsReversedDerivative:
		return s.Pair.Quote
	default: // reversed derivative, either side
		return s.Pair.Base
	}
}

// CostPerUnit computes the amount of ReservationCurrencyCode consumed per unit of `amount`, at the
// given price, per spec.md §4.3's cost-model table. The result is always positive; sign/direction of
// consumption is implied by order side and is applied by callers when adjusting balances.
func (s *Symbol) CostPerUnit(side model.OrderAction, price decimal.Decimal) decimal.Decimal {
	leverage := s.Leverage
	if leverage.IsZero() {
		leverage = decimal.NewFromInt(1)
	}

	switch {
	case !s.IsDerivative && side.IsBuy():
		return price
	case !s.IsDerivative && side.IsSell():
		return decimal.NewFromInt(1)
	case s.IsDerivative && !s.IsReversedDerivative:
		// linear derivative, buy or sell: +P / leverage
		return price.Div(leverage)
	default:
		// reversed derivative, buy or sell: +(1/P) / leverage
		return decimal.NewFromInt(1).DivRound(price, 28).Div(leverage)
	}
}
