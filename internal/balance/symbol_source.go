package balance

// SymbolSource resolves a Symbol for a known (account, pair), infallibly -- the caller is
// responsible for ensuring every pair BRM is asked about has already been registered (spec.md §6's
// outbound "Symbol lookup" interface). BRM never discovers symbols on its own.
type SymbolSource interface {
	GetSymbol(account ExchangeAccountId, pair CurrencyPair) *Symbol
}

// StaticSymbolSource is a fixed-table SymbolSource, sufficient for bots that register their tradable
// symbols once at startup (the common case; mirrors the teacher's factory-table registries in
// plugins/factory.go).
type StaticSymbolSource struct {
	symbols map[TradePlace]*Symbol
}

// NewStaticSymbolSource is a factory method.
func NewStaticSymbolSource() *StaticSymbolSource {
	return &StaticSymbolSource{symbols: map[TradePlace]*Symbol{}}
}

// Register adds or replaces the Symbol for (account, pair).
func (s *StaticSymbolSource) Register(account ExchangeAccountId, sym *Symbol) {
	s.symbols[TradePlace{ExchangeAccountId: account, CurrencyPair: sym.Pair}] = sym
}

// GetSymbol implements SymbolSource. Panics if the pair was never registered -- per spec.md §6 this
// lookup is documented as infallible for known pairs, so an unknown pair is a caller bug, not a
// runtime condition BRM recovers from.
func (s *StaticSymbolSource) GetSymbol(account ExchangeAccountId, pair CurrencyPair) *Symbol {
	sym, ok := s.symbols[TradePlace{ExchangeAccountId: account, CurrencyPair: pair}]
	if !ok {
		panic("balance: GetSymbol called for unregistered trade place " + TradePlace{ExchangeAccountId: account, CurrencyPair: pair}.String())
	}
	return sym
}
