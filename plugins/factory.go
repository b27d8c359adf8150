package plugins

import (
	"fmt"
	"log"

	"github.com/stellar/kelp/api"
)

// exchangeContainer bundles an exchange integration's description with its factory method.
type exchangeContainer struct {
	description string
	makeFn      func(apiKeys []api.ExchangeAPIKey, simMode bool) (api.Exchange, error)
}

// exchanges is a map of all the exchange integrations available. The sample host only knows
// about venues reachable through a ccxt-rest bridge (https://github.com/ccxt/ccxt), since that is
// the one exchange-facing adapter this repo carries; Stellar SDEX order placement is out of scope
// for a venue-agnostic balance manager.
var exchanges = map[string]exchangeContainer{
	"ccxt-binance": {
		description: "Binance, accessed through a local ccxt-rest bridge",
		makeFn: func(apiKeys []api.ExchangeAPIKey, simMode bool) (api.Exchange, error) {
			return makeCcxtExchange("http://localhost:3000", "binance", apiKeys, simMode)
		},
	},
	"ccxt-kraken": {
		description: "Kraken, accessed through a local ccxt-rest bridge",
		makeFn: func(apiKeys []api.ExchangeAPIKey, simMode bool) (api.Exchange, error) {
			return makeCcxtExchange("http://localhost:3000", "kraken", apiKeys, simMode)
		},
	},
	"ccxt-poloniex": {
		description: "Poloniex, accessed through a local ccxt-rest bridge",
		makeFn: func(apiKeys []api.ExchangeAPIKey, simMode bool) (api.Exchange, error) {
			return makeCcxtExchange("http://localhost:3000", "poloniex", apiKeys, simMode)
		},
	},
}

// MakeExchange is a factory method to make an exchange based on a given type.
func MakeExchange(exchangeType string, apiKeys []api.ExchangeAPIKey, simMode bool) (api.Exchange, error) {
	exchange, ok := exchanges[exchangeType]
	if !ok {
		return nil, fmt.Errorf("invalid exchange type: %s", exchangeType)
	}
	return exchange.makeFn(apiKeys, simMode)
}

// Exchanges returns the list of exchanges along with the description.
func Exchanges() map[string]string {
	m := make(map[string]string, len(exchanges))
	for name := range exchanges {
		m[name] = exchanges[name].description
	}
	return m
}

// init logs the registered exchange set at startup, matching the teacher's habit of surfacing
// plugin registries at boot rather than burying them.
func init() {
	names := Exchanges()
	log.Printf("plugins: registered %d exchange integration(s)\n", len(names))
}
