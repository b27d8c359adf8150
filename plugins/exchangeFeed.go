package plugins

import (
	"fmt"
	"log"

	"github.com/stellar/kelp/api"
	"github.com/stellar/kelp/model"
)

// exchangeFeed adapts any api.TickerAPI into a single-pair api.PriceFeed, deriving one of
// bid/ask/mid from the ticker depending on modifier.
type exchangeFeed struct {
	name      string
	tickerAPI api.TickerAPI
	pair      model.TradingPair
	modifier  string
}

var _ api.PriceFeed = &exchangeFeed{}

// NewReferencePriceFeed wraps an exchange's ticker endpoint as a read-only price feed for a single
// trading pair. It is meant for bots that want an external reference price to log or sanity-check
// against, not for pricing an order: balance tracking always stays in the native currencies of the
// reservation it was created from, never converted through this feed.
func NewReferencePriceFeed(name string, tickerAPI api.TickerAPI, pair model.TradingPair, modifier string) api.PriceFeed {
	return &exchangeFeed{name: name, tickerAPI: tickerAPI, pair: pair, modifier: modifier}
}

// GetPrice implements api.PriceFeed.
func (f *exchangeFeed) GetPrice() (float64, error) {
	m, e := f.tickerAPI.GetTickerPrice([]model.TradingPair{f.pair})
	if e != nil {
		return 0, fmt.Errorf("error while getting price from exchange feed %s: %s", f.name, e)
	}

	p, ok := m[f.pair]
	if !ok {
		return 0, fmt.Errorf("could not get price for trading pair: %s", f.pair.String())
	}

	midPrice := p.BidPrice.Add(*p.AskPrice).Scale(0.5)
	var price *model.Number
	switch f.modifier {
	case "ask":
		price = p.AskPrice
	case "bid":
		price = p.BidPrice
	default:
		price = midPrice
	}

	lastPrice := "n/a"
	if p.LastPrice != nil {
		lastPrice = p.LastPrice.AsString()
	}
	log.Printf("plugins: exchange feed %s (modifier=%s) bid=%s ask=%s mid=%s last=%s chosen=%s\n",
		f.name, f.modifier, p.BidPrice.AsString(), p.AskPrice.AsString(), midPrice.AsString(), lastPrice, price.AsString())
	return price.AsFloat(), nil
}
