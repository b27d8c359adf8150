package model

import (
	"fmt"
	"sort"
)

// CurrencyCode identifies a single currency/asset by its exchange-facing code (e.g. "BTC", "ETH").
type CurrencyCode string

// Asset is an alias of CurrencyCode kept for compatibility with the teacher's model.Asset usage
// in the CCXT exchange adapter; Kelp's Stellar-native Asset concept (code+issuer) is out of scope
// for BRM, which only ever reasons about currency codes.
type Asset = CurrencyCode

// TradingPair is a base/quote pair of currencies, renamed CurrencyPair in BRM's own vocabulary (see internal/balance/ids.go).
type TradingPair struct {
	Base  Asset
	Quote Asset
}

// String is the Stringer method.
func (p TradingPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base, p.Quote)
}

// ToString converts a TradingPair to its exchange-specific string form via the given converter and delimiter.
func (p *TradingPair) ToString(c *AssetConverter, delimiter string) (string, error) {
	baseString, e := c.ToString(p.Base)
	if e != nil {
		return "", e
	}
	quoteString, e := c.ToString(p.Quote)
	if e != nil {
		return "", e
	}
	return baseString + delimiter + quoteString, nil
}

// TradingPairs2Strings converts a slice of pairs into a map of pair -> exchange-specific string.
func TradingPairs2Strings(c *AssetConverter, delimiter string, pairs []TradingPair) (map[TradingPair]string, error) {
	m := map[TradingPair]string{}
	for _, p := range pairs {
		s, e := p.ToString(c, delimiter)
		if e != nil {
			return nil, e
		}
		m[p] = s
	}
	return m, nil
}

// MakeSortedBotKey makes a deterministic identifier for a (base, quote) pair regardless of order.
// Nothing in this repository calls it.
func MakeSortedBotKey(assetBase Asset, assetQuote Asset) string {
	codes := []string{string(assetBase), string(assetQuote)}
	sort.Strings(codes)
	return codes[0] + "_" + codes[1]
}

// AssetConverter converts between this engine's Asset representation and an exchange's own asset strings.
type AssetConverter struct {
	code2string map[Asset]string
	string2code map[string]Asset
}

// CcxtAssetConverter is the identity converter used by the CCXT adapter (exchange codes already match Asset codes).
var CcxtAssetConverter = &AssetConverter{
	code2string: map[Asset]string{},
	string2code: map[string]Asset{},
}

// ToString converts an Asset to its exchange string form.
func (c *AssetConverter) ToString(a Asset) (string, error) {
	if s, ok := c.code2string[a]; ok {
		return s, nil
	}
	return string(a), nil
}

// FromString converts an exchange string form back to an Asset.
func (c *AssetConverter) FromString(s string) (Asset, error) {
	if a, ok := c.string2code[s]; ok {
		return a, nil
	}
	return Asset(s), nil
}

// MustFromString is the panicking variant of FromString, used during strategy config parsing.
func (c *AssetConverter) MustFromString(s string) Asset {
	a, e := c.FromString(s)
	if e != nil {
		panic(e)
	}
	return a
}

// AssetDisplayFn renders an Asset for use in composite keys. Nothing in this repository uses it.
type AssetDisplayFn func(Asset) (string, error)

// OrderAction is the side of an order or fill.
type OrderAction string

// OrderAction values.
const (
	OrderActionBuy  OrderAction = "buy"
	OrderActionSell OrderAction = "sell"
)

// IsBuy reports whether the action is a buy.
func (a OrderAction) IsBuy() bool {
	return a == OrderActionBuy
}

// IsSell reports whether the action is a sell.
func (a OrderAction) IsSell() bool {
	return a == OrderActionSell
}

// Reverse flips buy<->sell, used when mirroring a trade onto a backing exchange.
func (a OrderAction) Reverse() OrderAction {
	if a == OrderActionBuy {
		return OrderActionSell
	}
	return OrderActionBuy
}

// String is the Stringer method.
func (a OrderAction) String() string {
	return string(a)
}

// OrderType is the style of order (this engine only ever produces/consumes limit orders).
type OrderType string

// OrderType values.
const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Timestamp is a millisecond Unix timestamp.
type Timestamp int64

// MakeTimestamp wraps a raw millisecond value; nil-safe for exchanges that omit timestamps.
func MakeTimestamp(millis int64) *Timestamp {
	t := Timestamp(millis)
	return &t
}

// TransactionID identifies an exchange-assigned order or trade id.
type TransactionID string

// MakeTransactionID wraps a raw exchange id string.
func MakeTransactionID(id string) *TransactionID {
	t := TransactionID(id)
	return &t
}

// String is the Stringer method.
func (t *TransactionID) String() string {
	if t == nil {
		return ""
	}
	return string(*t)
}

// Order is a single order leg, on either side of the book.
type Order struct {
	Pair        *TradingPair
	OrderAction OrderAction
	OrderType   OrderType
	Price       *Number
	Volume      *Number
	Timestamp   *Timestamp
}

// String is the Stringer method.
func (o Order) String() string {
	return fmt.Sprintf("Order[pair=%s, action=%s, type=%s, price=%s, volume=%s]", o.Pair, o.OrderAction, o.OrderType, o.Price, o.Volume)
}

// OpenOrder is a resting order as reported by an exchange.
type OpenOrder struct {
	Order
	ID             string
	StartTime      *Timestamp
	ExpireTime     *Timestamp
	VolumeExecuted *Number
}

// Trade is a single fill/execution.
type Trade struct {
	Order
	TransactionID *TransactionID
	Cost          *Number
	Fee           *Number
}

// CancelOrderResult is the outcome of a cancel request.
type CancelOrderResult int8

// CancelOrderResult values.
const (
	CancelResultFailed CancelOrderResult = iota
	CancelResultPending
	CancelResultCancelSuccessful
)

// OrderConstraints describes a symbol's tradable limits on a particular exchange.
type OrderConstraints struct {
	PricePrecision  int8
	VolumePrecision int8
	MinBaseVolume   Number
	MinQuoteVolume  *Number
}

// MakeOrderConstraints is a factory method.
func MakeOrderConstraints(pricePrecision int8, volumePrecision int8, minBaseVolume float64) *OrderConstraints {
	return &OrderConstraints{
		PricePrecision:  pricePrecision,
		VolumePrecision: volumePrecision,
		MinBaseVolume:   *NumberFromFloat(minBaseVolume, volumePrecision),
	}
}

// OrderBook is a two-sided snapshot of resting orders for a trading pair.
type OrderBook struct {
	pair *TradingPair
	asks []Order
	bids []Order
}

// MakeOrderBook is a factory method.
func MakeOrderBook(pair *TradingPair, asks []Order, bids []Order) *OrderBook {
	return &OrderBook{pair: pair, asks: asks, bids: bids}
}

// Asks returns the ask side, lowest price first.
func (ob *OrderBook) Asks() []Order {
	return ob.asks
}

// Bids returns the bid side, highest price first.
func (ob *OrderBook) Bids() []Order {
	return ob.bids
}

// Pair returns the trading pair this book is for.
func (ob *OrderBook) Pair() *TradingPair {
	return ob.pair
}
