package api

import (
	"github.com/stellar/kelp/model"
)

// ExchangeAPIKey is a key/secret pair for authenticating against an exchange.
type ExchangeAPIKey struct {
	Key    string
	Secret string
}

// Ticker is a best bid/ask/last snapshot for a trading pair.
type Ticker struct {
	AskPrice  *model.Number
	BidPrice  *model.Number
	LastPrice *model.Number
}

// TradesResult bundles a page of trades with a cursor for the next page.
type TradesResult struct {
	Cursor interface{}
	Trades []model.Trade
}

// TradeHistoryResult bundles a page of historical trades.
type TradeHistoryResult struct {
	Cursor interface{}
	Trades []model.Trade
}

// PrepareDepositResult carries the address/memo needed to deposit an asset.
type PrepareDepositResult struct {
	Address string
	Memo    string
}

// WithdrawInfo describes the fee and minimum for withdrawing an asset.
type WithdrawInfo struct {
	Fee    *model.Number
	Amount *model.Number
}

// WithdrawFunds is the result of a withdrawal request.
type WithdrawFunds struct {
	TransactionID *model.TransactionID
}

// TickerAPI is the read-only subset of Exchange needed by a PriceFeed.
type TickerAPI interface {
	GetTickerPrice(pairs []model.TradingPair) (map[model.TradingPair]Ticker, error)
}

// TradeAPI is the subset of Exchange needed to mirror an orderbook and offset trades.
type TradeAPI interface {
	GetAssetConverter() *model.AssetConverter
	GetOrderConstraints(pair *model.TradingPair) *model.OrderConstraints
	GetOrderBook(pair *model.TradingPair, maxCount int32) (*model.OrderBook, error)
	GetTrades(pair *model.TradingPair, maybeCursor interface{}) (*TradesResult, error)
	GetTradeHistory(maybeCursorStart interface{}, maybeCursorEnd interface{}) (*TradeHistoryResult, error)
	GetOpenOrders(pairs []*model.TradingPair) (map[model.TradingPair][]model.OpenOrder, error)
	AddOrder(order *model.Order) (*model.TransactionID, error)
	CancelOrder(txID *model.TransactionID) (model.CancelOrderResult, error)
}

// Exchange is the full outbound surface BRM's host uses to talk to a venue; BRM itself never
// calls this interface, and neither balance.StaticSymbolSource nor the balance recorders depend
// on it.
type Exchange interface {
	TickerAPI
	TradeAPI
	GetAccountBalances(assetList []model.Asset) (map[model.Asset]model.Number, error)
	PrepareDeposit(asset model.Asset, amount *model.Number) (*PrepareDepositResult, error)
	GetWithdrawInfo(asset model.Asset, amountToWithdraw *model.Number, address string) (*WithdrawInfo, error)
	WithdrawFunds(asset model.Asset, amountToWithdraw *model.Number, address string) (*WithdrawFunds, error)
}

// FillHandler receives fills so a strategy can react (e.g. mirrorStrategy offsetting trades on a backing exchange).
type FillHandler interface {
	HandleFill(trade model.Trade) error
}

// Level is a single price/amount level a LevelProvider wants placed on the book.
type Level struct {
	Price  model.Number
	Amount model.Number
}

// LevelProvider computes the levels a strategy wants to maintain, given the available balances.
type LevelProvider interface {
	GetLevels(maxAssetBase float64, maxAssetQuote float64) ([]Level, error)
	GetFillHandlers() ([]FillHandler, error)
}

// PriceFeed is a single external price source.
type PriceFeed interface {
	GetPrice() (float64, error)
}

// Strategy is the top-level decision-making interface the bot loop drives each tick; BRM consumes
// only the order snapshots a Strategy's resulting trades produce (spec.md §1 Non-goals), never the
// Strategy interface itself.
type Strategy interface {
	PruneExistingOffers(buyingOffers []model.OpenOrder, sellingOffers []model.OpenOrder) ([]model.Order, []model.OpenOrder, []model.OpenOrder)
	PreUpdate(maxAssetBase float64, maxAssetQuote float64) error
	UpdateWithOps(buyingOffers []model.OpenOrder, sellingOffers []model.OpenOrder) ([]model.Order, error)
	PostUpdate() error
	GetFillHandlers() ([]FillHandler, error)
}
