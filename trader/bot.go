package trader

import (
	"log"
	"time"

	"github.com/stellar/kelp/api"
	"github.com/stellar/kelp/internal/balance"
	"github.com/stellar/kelp/model"
)

// Bot drives a single Strategy against a single trading pair on a tick interval, consulting the
// balance manager for available balances before every cycle instead of querying a venue directly.
// This mirrors the teacher's trader.Bot tick loop (prune -> pre-update -> update -> post-update)
// with the venue balance lookup rerouted through balance.Manager so the bot never drifts from
// BRM's view of reserved and in-flight amounts.
type Bot struct {
	strategy            api.Strategy
	manager             *balance.Manager
	account             balance.ExchangeAccountId
	descriptor          balance.ConfigurationDescriptor
	pair                model.TradingPair
	tickIntervalSeconds int32
	referenceFeed       api.PriceFeed
}

// MakeBot is a factory method. referenceFeed may be nil, in which case no reference price is
// logged alongside the tick.
func MakeBot(
	strategy api.Strategy,
	manager *balance.Manager,
	account balance.ExchangeAccountId,
	descriptor balance.ConfigurationDescriptor,
	pair model.TradingPair,
	tickIntervalSeconds int32,
	referenceFeed api.PriceFeed,
) *Bot {
	return &Bot{
		strategy:            strategy,
		manager:             manager,
		account:             account,
		descriptor:          descriptor,
		pair:                pair,
		tickIntervalSeconds: tickIntervalSeconds,
		referenceFeed:       referenceFeed,
	}
}

// Start runs the tick loop forever, logging and continuing past a single tick's error so a
// transient failure doesn't take the whole bot down.
func (b *Bot) Start() {
	for {
		if e := b.update(); e != nil {
			log.Printf("trader: tick failed: %s\n", e)
		}
		time.Sleep(time.Duration(b.tickIntervalSeconds) * time.Second)
	}
}

// update runs a single tick of the strategy's prune/pre-update/update/post-update cycle.
func (b *Bot) update() error {
	maxBase, _, e := b.manager.GetBalanceByCurrencyCode(b.descriptor, b.account, b.pair, b.pair.Base)
	if e != nil {
		return e
	}
	maxQuote, _, e := b.manager.GetBalanceByCurrencyCode(b.descriptor, b.account, b.pair, b.pair.Quote)
	if e != nil {
		return e
	}

	if b.referenceFeed != nil {
		if price, e := b.referenceFeed.GetPrice(); e != nil {
			log.Printf("trader: reference feed error: %s\n", e)
		} else {
			log.Printf("trader: reference price for %s: %f\n", b.pair, price)
		}
	}

	deleteOps, buyingOffers, sellingOffers := b.strategy.PruneExistingOffers(nil, nil)
	if len(deleteOps) > 0 {
		log.Printf("trader: strategy wants %d stale offer(s) removed\n", len(deleteOps))
	}

	if e := b.strategy.PreUpdate(maxBase.InexactFloat64(), maxQuote.InexactFloat64()); e != nil {
		return e
	}

	ops, e := b.strategy.UpdateWithOps(buyingOffers, sellingOffers)
	if e != nil {
		return e
	}
	log.Printf("trader: tick produced %d order(s) for %s\n", len(ops), b.pair)

	return b.strategy.PostUpdate()
}
