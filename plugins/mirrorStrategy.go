package plugins

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/api"
	"github.com/stellar/kelp/internal/balance"
	"github.com/stellar/kelp/model"
)

// decimalFromPrecision turns a display precision (number of decimal digits) into the smallest
// representable tick at that precision, e.g. precision 8 -> 0.00000001.
func decimalFromPrecision(precision int8) decimal.Decimal {
	if precision < 0 {
		precision = 0
	}
	return decimal.New(1, int32(-precision))
}

// mirrorFillHandlerConfig contains the configuration params for this fill handler.
type mirrorFillHandlerConfig struct {
	Exchange        string              `valid:"-" toml:"EXCHANGE"`
	ExchangeBase    string              `valid:"-" toml:"EXCHANGE_BASE"`
	ExchangeQuote   string              `valid:"-" toml:"EXCHANGE_QUOTE"`
	VolumeDivideBy  float64             `valid:"-" toml:"VOLUME_DIVIDE_BY"`
	OffsetTrades    bool                `valid:"-" toml:"OFFSET_TRADES"`
	ExchangeAPIKeys exchangeAPIKeysToml `valid:"-" toml:"EXCHANGE_API_KEYS"`
}

type exchangeAPIKeysToml []struct {
	Key    string `valid:"-" toml:"KEY"`
	Secret string `valid:"-" toml:"SECRET"`
}

func (t *exchangeAPIKeysToml) toExchangeAPIKeys() []api.ExchangeAPIKey {
	apiKeys := []api.ExchangeAPIKey{}
	for _, apiKey := range *t {
		apiKeys = append(apiKeys, api.ExchangeAPIKey{
			Key:    apiKey.Key,
			Secret: apiKey.Secret,
		})
	}
	return apiKeys
}

// assetSurplus holds information about how many units of an asset need to be offset on the backing
// exchange; negative values mean we have eagerly offset an asset, likely because of minimum-volume
// requirements of the backing exchange.
type assetSurplus struct {
	total     *model.Number // total value in base asset units that are pending to be offset
	committed *model.Number // base asset units that are already committed to being offset
}

// makeAssetSurplus is a factory method.
func makeAssetSurplus() *assetSurplus {
	return &assetSurplus{
		total:     model.NumberConstants.Zero,
		committed: model.NumberConstants.Zero,
	}
}

// mirrorFillHandler is an example api.FillHandler: every time the primary venue reports a fill, it
// (a) feeds the fill into the balance manager so reservations and virtual balances stay in sync,
// and (b) offsets the position by placing an opposing order on a backing exchange, accumulating a
// surplus until the backing exchange's minimum order size is cleared. It holds its own mutex
// because multiple concurrent fill reports must serialize against the shared baseSurplus state,
// independently of the balance manager's own internal lock.
type mirrorFillHandler struct {
	account            balance.ExchangeAccountId
	descriptor         balance.ConfigurationDescriptor
	manager            *balance.Manager
	backingPair        *model.TradingPair
	backingConstraints *model.OrderConstraints
	volumeDivideBy     float64
	tradeAPI           api.TradeAPI
	offsetTrades       bool
	mutex              sync.Mutex
	baseSurplus        map[model.OrderAction]*assetSurplus
}

// ensure this implements api.FillHandler
var _ api.FillHandler = &mirrorFillHandler{}

// makeMirrorFillHandler is a factory method.
func makeMirrorFillHandler(
	account balance.ExchangeAccountId,
	descriptor balance.ConfigurationDescriptor,
	manager *balance.Manager,
	config *mirrorFillHandlerConfig,
	simMode bool,
) (*mirrorFillHandler, error) {
	var exchange api.Exchange
	var e error
	if config.OffsetTrades {
		exchangeAPIKeys := config.ExchangeAPIKeys.toExchangeAPIKeys()
		exchange, e = MakeExchange(config.Exchange, exchangeAPIKeys, simMode)
		if e != nil {
			return nil, e
		}
	}

	backingPair := &model.TradingPair{
		Base:  model.CurrencyCode(config.ExchangeBase),
		Quote: model.CurrencyCode(config.ExchangeQuote),
	}
	var backingConstraints *model.OrderConstraints
	if exchange != nil {
		backingConstraints = exchange.GetOrderConstraints(backingPair)
	}
	if backingConstraints == nil {
		backingConstraints = model.MakeOrderConstraints(8, 8, 0)
	}

	var tradeAPI api.TradeAPI
	if exchange != nil {
		tradeAPI = api.TradeAPI(exchange)
	}

	return &mirrorFillHandler{
		account:            account,
		descriptor:         descriptor,
		manager:            manager,
		backingPair:        backingPair,
		backingConstraints: backingConstraints,
		volumeDivideBy:     config.VolumeDivideBy,
		tradeAPI:           tradeAPI,
		offsetTrades:       config.OffsetTrades,
		baseSurplus: map[model.OrderAction]*assetSurplus{
			model.OrderActionBuy:  makeAssetSurplus(),
			model.OrderActionSell: makeAssetSurplus(),
		},
	}, nil
}

// symbolFromPair builds the spot Symbol the balance manager uses to account for a trade on the
// primary venue, rounding to the backing exchange's display precision (this handler has no order
// book of its own, so it borrows the backing venue's tick sizes).
func (h *mirrorFillHandler) symbolFromPair(pair model.TradingPair) *balance.Symbol {
	priceTick := decimalFromPrecision(h.backingConstraints.PricePrecision)
	amountTick := decimalFromPrecision(h.backingConstraints.VolumePrecision)
	return balance.MakeSpotSymbol(pair, priceTick, amountTick)
}

func (h *mirrorFillHandler) baseVolumeToOffset(trade model.Trade, newOrderAction model.OrderAction) (newVolume *model.Number, ok bool) {
	uncommittedBase := h.baseSurplus[newOrderAction].total.Subtract(*h.baseSurplus[newOrderAction].committed)

	if uncommittedBase.AsFloat() < h.backingConstraints.MinBaseVolume.Scale(0.5).AsFloat() {
		log.Printf("offset-skip | tradeID=%s | tradeBaseAmt=%f | tradePriceQuote=%f | minBaseVolume=%f | newOrderAction=%s\n",
			trade.TransactionID.String(), trade.Volume.AsFloat(), trade.Price.AsFloat(),
			h.backingConstraints.MinBaseVolume.AsFloat(), newOrderAction.String())
		return nil, false
	}

	if uncommittedBase.AsFloat() > h.backingConstraints.MinBaseVolume.AsFloat() {
		newVolume = uncommittedBase
	} else {
		newVolume = &h.backingConstraints.MinBaseVolume
	}
	return model.NumberByCappingPrecision(newVolume, h.backingConstraints.VolumePrecision), true
}

// HandleFill impl. Feeds the fill into the balance manager first (so reservations and virtual
// balances never drift out of sync with what was actually executed), then offsets the net position
// against the backing exchange if configured to do so.
func (h *mirrorFillHandler) HandleFill(trade model.Trade) error {
	sym := h.symbolFromPair(*trade.Pair)
	fillEvent := balance.FillEvent{
		Price:     *trade.Price,
		Amount:    *trade.Volume,
		Side:      trade.OrderAction,
		Role:      balance.OrderRoleTaker,
		FillId:    balance.ClientOrderFillId(trade.TransactionID.String()),
		Timestamp: time.Now(),
	}
	order := &balance.OrderSnapshot{
		ConfigurationDescriptor: h.descriptor,
		ClientOrderId:           balance.ClientOrderId(trade.TransactionID.String()),
		ExchangeAccountId:       h.account,
		Symbol:                  sym,
		OrderType:               trade.OrderType,
		Side:                    trade.OrderAction,
		Price:                   *trade.Price,
		Amount:                  *trade.Volume,
		Status:                  balance.OrderStatusPartiallyFilled,
	}
	if e := h.manager.OrderWasFilled(h.descriptor, order, &fillEvent); e != nil {
		return fmt.Errorf("error recording fill %s against the balance manager: %s", trade.TransactionID, e)
	}

	if !h.offsetTrades {
		return nil
	}

	// we should only ever have one active fill handler to avoid inconsistent R/W on baseSurplus
	h.mutex.Lock()
	defer h.mutex.Unlock()

	newOrderAction := trade.OrderAction.Reverse()
	h.baseSurplus[newOrderAction].total = h.baseSurplus[newOrderAction].total.Add(*trade.Volume)

	newVolume, ok := h.baseVolumeToOffset(trade, newOrderAction)
	if !ok {
		return nil
	}
	h.baseSurplus[newOrderAction].committed = h.baseSurplus[newOrderAction].committed.Add(*newVolume)

	newOrder := model.Order{
		Pair:        h.backingPair,
		OrderAction: newOrderAction,
		OrderType:   model.OrderTypeLimit,
		Price:       model.NumberByCappingPrecision(trade.Price, h.backingConstraints.PricePrecision),
		Volume:      newVolume,
		Timestamp:   nil,
	}
	log.Printf("offset-attempt | tradeID=%s | newOrderAction=%s | newOrderBaseAmt=%f | newOrderPriceQuote=%f\n",
		trade.TransactionID.String(), newOrderAction.String(), newOrder.Volume.AsFloat(), newOrder.Price.AsFloat())

	transactionID, e := h.tradeAPI.AddOrder(&newOrder)
	if e != nil {
		return fmt.Errorf("error when offsetting trade (newOrder=%v): %s", newOrder, e)
	}
	if transactionID == nil {
		return fmt.Errorf("error when offsetting trade (newOrder=%v): transactionID was <nil>", newOrder)
	}

	h.baseSurplus[newOrderAction].total = h.baseSurplus[newOrderAction].total.Subtract(*newVolume)
	h.baseSurplus[newOrderAction].committed = h.baseSurplus[newOrderAction].committed.Subtract(*newVolume)
	log.Printf("offset-success | tradeID=%s | newOrderAction=%s | transactionID=%s\n",
		trade.TransactionID.String(), newOrderAction.String(), transactionID)
	return nil
}
