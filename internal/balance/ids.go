package balance

import (
	"fmt"

	"github.com/stellar/kelp/model"
)

// ExchangeAccountId identifies a single account on a single exchange (exchange code + account index),
// matching spec.md §3's identifier.
type ExchangeAccountId struct {
	ExchangeCode string
	AccountIndex uint8
}

// String is the Stringer method.
func (id ExchangeAccountId) String() string {
	return fmt.Sprintf("%s#%d", id.ExchangeCode, id.AccountIndex)
}

// CurrencyCode is re-exported from model so callers of this package don't need to import model directly
// for simple currency comparisons.
type CurrencyCode = model.CurrencyCode

// CurrencyPair is spec.md's CurrencyPair, a thin rename of model.TradingPair so BRM speaks its own
// vocabulary while reusing the same underlying type as the rest of the engine.
type CurrencyPair = model.TradingPair

// ClientOrderId is a string unique per engine run, assigned by the disposition layer before an order
// is placed. BRM treats it as an opaque key.
type ClientOrderId string

// ClientOrderFillId is a string unique per fill, assigned by the venue.
type ClientOrderFillId string

// ReservationId is a dense 32-bit counter, generated monotonically by ReservationStore (spec.md §4.2).
type ReservationId uint32

// ConfigurationDescriptor partitions balances between coexisting strategy configurations sharing the
// same exchange account (spec.md §3).
type ConfigurationDescriptor struct {
	ServiceName      string
	ServiceConfigKey string
}

// String is the Stringer method.
func (d ConfigurationDescriptor) String() string {
	return fmt.Sprintf("%s/%s", d.ServiceName, d.ServiceConfigKey)
}

// BalanceRequest is the identity key for a virtual balance view: (configuration, account, pair, currency).
type BalanceRequest struct {
	ConfigurationDescriptor ConfigurationDescriptor
	ExchangeAccountId       ExchangeAccountId
	CurrencyPair            CurrencyPair
	CurrencyCode            CurrencyCode
}

// TradePlace is (exchange account, currency pair) -- the GLOSSARY's "trade place", used to key position
// trackers.
type TradePlace struct {
	ExchangeAccountId ExchangeAccountId
	CurrencyPair      CurrencyPair
}

// String is the Stringer method.
func (tp TradePlace) String() string {
	return fmt.Sprintf("%s:%s", tp.ExchangeAccountId, tp.CurrencyPair)
}
