package trader

// BotConfig is the bot's top-level configuration file, read with github.com/stellar/go/support/config
// (the teacher's own config-reading library). It carries only what the bot loop needs to identify
// its exchange account and trading pair -- everything venue-specific lives behind api.Exchange and
// is configured separately per exchange integration.
type BotConfig struct {
	ExchangeCode        string  `valid:"-" toml:"EXCHANGE_CODE"`
	AccountIndex        uint8   `valid:"-" toml:"ACCOUNT_INDEX"`
	AssetCodeBase       string  `valid:"-" toml:"ASSET_CODE_BASE"`
	AssetCodeQuote      string  `valid:"-" toml:"ASSET_CODE_QUOTE"`
	ServiceName         string  `valid:"-" toml:"SERVICE_NAME"`
	ServiceConfigKey    string  `valid:"-" toml:"SERVICE_CONFIG_KEY"`
	TickIntervalSeconds int32   `valid:"-" toml:"TICK_INTERVAL_SECONDS"`
	PriceTick           float64 `valid:"-" toml:"PRICE_TICK"`
	AmountTick          float64 `valid:"-" toml:"AMOUNT_TICK"`

	// ReferenceExchangeType, when set, names a plugins.MakeExchange integration (e.g. "ccxt-binance")
	// the bot polls each tick for a reference price on the same pair, purely as a cross-check logged
	// alongside the tick. Balances stay tracked in native units regardless of whether this is set.
	ReferenceExchangeType  string `valid:"-" toml:"REFERENCE_EXCHANGE_TYPE"`
	ReferencePriceModifier string `valid:"-" toml:"REFERENCE_PRICE_MODIFIER"`
}
