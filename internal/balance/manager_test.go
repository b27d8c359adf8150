package balance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar/kelp/model"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

var (
	testAccount = ExchangeAccountId{ExchangeCode: "binance", AccountIndex: 0}
	testDesc    = ConfigurationDescriptor{ServiceName: "mm", ServiceConfigKey: "eth_btc"}
	ethBtc      = model.TradingPair{Base: "ETH", Quote: "BTC"}
)

func newTestManager(t *testing.T, symbol *Symbol, raw map[CurrencyCode]decimal.Decimal) (*Manager, *Symbol) {
	t.Helper()
	src := NewStaticSymbolSource()
	src.Register(testAccount, symbol)
	m := NewManager(src, nil, NewManualClock(time.Unix(0, 0)))
	require.NoError(t, m.UpdateExchangeBalance(testAccount, raw, nil))
	return m, symbol
}

func spotSymbol() *Symbol {
	return MakeSpotSymbol(ethBtc, d("0.00000001"), d("0.00000001"))
}

// S1. Spot buy reserve-then-unreserve round trip.
func TestScenarioS1_ReserveUnreserveRoundTrip(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0")})

	params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	id, ok, err := m.TryReserve(params)
	require.NoError(t, err)
	require.True(t, ok)

	balance, known, err := m.GetBalanceByReserveParameters(params)
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, balance.IsZero(), "expected 0.0, got %s", balance)

	require.NoError(t, m.Unreserve(id, d("5")))

	balance, known, err = m.GetBalanceByReserveParameters(params)
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, balance.Equal(d("1.0")))

	_, ok = m.store.Get(id)
	assert.False(t, ok, "reservation should have been removed")
}

// S2. Triple atomic reserve, last one fails.
func TestScenarioS2_TripleReserveAtomicFailure(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0"), "ETH": d("5.0")})

	p1 := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	p2 := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("5")}
	p3 := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("1")}

	_, _, _, ok, err := m.TryReserveThree(p1, p2, p3)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 0, m.store.Len(), "no reservations should have survived the rollback")

	btc, known, err := m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "BTC")
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, btc.Equal(d("1.0")))

	eth, known, err := m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "ETH")
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, eth.Equal(d("5.0")))
}

// S3. Transfer with price difference.
func TestScenarioS3_TransferWithPriceDifference(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"ETH": d("5"), "BTC": d("5")})

	r1params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("3")}
	r1, ok, err := m.TryReserve(r1params)
	require.NoError(t, err)
	require.True(t, ok)

	eth, _, _ := m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "ETH")
	assert.True(t, eth.Equal(d("2")), "got %s", eth)

	r2params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.5"), Amount: d("2")}
	r2, ok, err := m.TryReserve(r2params)
	require.NoError(t, err)
	require.True(t, ok)

	eth, _, _ = m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "ETH")
	assert.True(t, eth.IsZero(), "got %s", eth)

	ok, err = m.TryTransferReservation(r1, r2, d("2"), nil)
	require.NoError(t, err)
	require.True(t, ok)

	r1Rec, _ := m.store.Get(r1)
	r2Rec, _ := m.store.Get(r2)
	assert.True(t, r1Rec.Amount.Equal(d("1")), "transfer moves amount along with the claim, got %s", r1Rec.Amount)
	assert.True(t, r1Rec.UnreservedAmount.Equal(d("1")), "got %s", r1Rec.UnreservedAmount)
	assert.True(t, r2Rec.UnreservedAmount.Equal(d("4")), "got %s", r2Rec.UnreservedAmount)

	eth, _, _ = m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "ETH")
	assert.True(t, eth.IsZero(), "sells consume base 1:1 regardless of price, got %s", eth)
}

// S4. Approve then partial fill.
func TestScenarioS4_ApproveThenPartialFill(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("2")})

	params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	id, ok, err := m.TryReserve(params)
	require.NoError(t, err)
	require.True(t, ok)

	btc, _, _ := m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "BTC")
	assert.True(t, btc.Equal(d("1")), "got %s", btc)

	cid := ClientOrderId("cid-1")
	require.NoError(t, m.ApproveReservation(id, cid, d("5")))

	order := &OrderSnapshot{
		ConfigurationDescriptor: testDesc,
		ClientOrderId:           cid,
		ExchangeAccountId:       testAccount,
		Symbol:                  sym,
		OrderType:               model.OrderTypeLimit,
		Side:                    model.OrderActionBuy,
		Price:                   d("0.2"),
		Amount:                  d("5"),
		Status:                  OrderStatusPartiallyFilled,
		ReservationId:           &id,
	}
	fill := &FillEvent{Price: d("0.2"), Amount: d("3"), Side: model.OrderActionBuy, Timestamp: time.Unix(1, 0)}
	require.NoError(t, m.OrderWasFilled(testDesc, order, fill))

	// -1.0 total: -0.6 for the 3 units actually spent by the fill, plus -0.4 still held against the
	// 2 approved-but-unfilled units (spec.md §3 invariant 4).
	btcDiff := m.vbh.Diff(BalanceRequest{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, CurrencyPair: ethBtc, CurrencyCode: "BTC"})
	assert.True(t, btcDiff.Equal(d("-1.0")), "got %s", btcDiff)
	ethDiff := m.vbh.Diff(BalanceRequest{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, CurrencyPair: ethBtc, CurrencyCode: "ETH"})
	assert.True(t, ethDiff.Equal(d("3")), "got %s", ethDiff)

	r, ok := m.store.Get(id)
	require.True(t, ok)
	assert.True(t, r.ApprovedParts[cid].UnfilledAmount.Equal(d("2")), "got %s", r.ApprovedParts[cid].UnfilledAmount)
	assert.True(t, r.UnreservedAmount.Equal(d("2")), "got %s", r.UnreservedAmount)

	require.NoError(t, m.UnreserveByClientOrderId(id, cid, d("2")))
	_, ok = m.store.Get(id)
	assert.False(t, ok, "reservation should be removed once fully unreserved")
}

// S5. Position limit blocks reservation after flip.
func TestScenarioS5_PositionLimitBlocksThenAllows(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("100"), "ETH": d("100")})

	require.NoError(t, m.SetTargetAmountLimit(testAccount, ethBtc, d("10")))

	sellParams := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("10")}
	id, ok, err := m.TryReserve(sellParams)
	require.NoError(t, err)
	require.True(t, ok)

	cid := ClientOrderId("sell-1")
	require.NoError(t, m.ApproveReservation(id, cid, d("10")))
	order := &OrderSnapshot{ConfigurationDescriptor: testDesc, ClientOrderId: cid, ExchangeAccountId: testAccount, Symbol: sym, OrderType: model.OrderTypeLimit, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("10"), Status: OrderStatusFilled, ReservationId: &id}
	fill := &FillEvent{Price: d("0.2"), Amount: d("10"), Side: model.OrderActionSell, Timestamp: time.Unix(1, 0)}
	require.NoError(t, m.OrderWasFilled(testDesc, order, fill))

	pos, err := m.GetPosition(testAccount, ethBtc, model.OrderActionSell)
	require.NoError(t, err)
	assert.True(t, pos.Equal(d("-10")), "got %s", pos)

	blocked := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("1")}
	_, ok, err = m.TryReserve(blocked)
	require.NoError(t, err)
	assert.False(t, ok, "further sells should be blocked once position is at -limit")

	buyParams := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("20")}
	id2, ok, err := m.TryReserve(buyParams)
	require.NoError(t, err)
	require.True(t, ok)
	cid2 := ClientOrderId("buy-1")
	require.NoError(t, m.ApproveReservation(id2, cid2, d("20")))
	order2 := &OrderSnapshot{ConfigurationDescriptor: testDesc, ClientOrderId: cid2, ExchangeAccountId: testAccount, Symbol: sym, OrderType: model.OrderTypeLimit, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("20"), Status: OrderStatusFilled, ReservationId: &id2}
	fill2 := &FillEvent{Price: d("0.2"), Amount: d("20"), Side: model.OrderActionBuy, Timestamp: time.Unix(2, 0)}
	require.NoError(t, m.OrderWasFilled(testDesc, order2, fill2))

	pos, err = m.GetPosition(testAccount, ethBtc, model.OrderActionBuy)
	require.NoError(t, err)
	assert.True(t, pos.Equal(d("10")), "got %s", pos)

	sellAgain := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionSell, Price: d("0.2"), Amount: d("20")}
	_, ok, err = m.TryReserve(sellAgain)
	require.NoError(t, err)
	assert.True(t, ok, "position has reverted below the limit so a sell should now succeed")
}

// S6. Snapshot and clone subtract active orders.
func TestScenarioS6_SnapshotRestoreAndClone(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"ETH": d("0"), "BTC": d("2")})

	params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	id, ok, err := m.TryReserve(params)
	require.NoError(t, err)
	require.True(t, ok)
	cid := ClientOrderId("created-1")
	require.NoError(t, m.ApproveReservation(id, cid, d("5")))

	snap, err := m.GetBalances()
	require.NoError(t, err)

	restored := NewManager(m.symbols, nil, NewManualClock(time.Unix(0, 0)))
	require.NoError(t, restored.RestoreBalanceStateWithReservationsHandling(snap))

	btc, known, err := restored.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "BTC")
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, btc.Equal(d("2")), "got %s", btc)
	assert.Equal(t, 0, restored.store.Len())

	order := &OrderSnapshot{
		ConfigurationDescriptor: testDesc,
		ClientOrderId:           cid,
		ExchangeAccountId:       testAccount,
		Symbol:                  sym,
		OrderType:               model.OrderTypeLimit,
		Side:                    model.OrderActionBuy,
		Price:                   d("0.2"),
		Amount:                  d("5"),
		Status:                  OrderStatusCreated,
		ReservationId:           &id,
	}
	clone, err := m.CloneAndSubtractNotApprovedData([]*OrderSnapshot{order})
	require.NoError(t, err)

	cloneBtc, known, err := clone.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "BTC")
	require.NoError(t, err)
	require.True(t, known)
	assert.True(t, cloneBtc.Equal(d("2")), "got %s", cloneBtc)

	originalBtc, known, err := m.GetBalanceByCurrencyCode(testDesc, testAccount, ethBtc, "BTC")
	require.NoError(t, err)
	require.True(t, known)
	// the original manager must be unaffected by clone mutation, but it must also still show the
	// approved-but-unfilled reservation's hold: 2 raw BTC minus the 5 * 0.2 = 1 BTC held by the
	// approval above (spec.md §3 invariant 4).
	assert.True(t, originalBtc.Equal(d("1")), "original manager must still reflect its own approved hold, got %s", originalBtc)

	_, stillThere := m.store.Get(id)
	assert.True(t, stillThere, "original reservation must survive the clone operation")
}

func TestUnreserveOvershootBeyondEpsilonIsFatal(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0")})
	params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	id, ok, err := m.TryReserve(params)
	require.NoError(t, err)
	require.True(t, ok)

	err = m.Unreserve(id, d("5.1"))
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, KindUnreserveOverflow, fatal.Kind)
}

func TestUnreserveWithinEpsilonClamps(t *testing.T) {
	sym := spotSymbol()
	m, sym := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0")})
	params := ReserveParameters{ConfigurationDescriptor: testDesc, ExchangeAccountId: testAccount, Symbol: sym, Side: model.OrderActionBuy, Price: d("0.2"), Amount: d("5")}
	id, ok, err := m.TryReserve(params)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, m.Unreserve(id, d("5.000000005")))
	_, ok = m.store.Get(id)
	assert.False(t, ok)
}

func TestMismatchStreakRaisesFatalAfterFiveDivergences(t *testing.T) {
	sym := spotSymbol()
	m, _ := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0")})

	require.NoError(t, m.UpdateExchangeBalance(testAccount, nil, map[CurrencyPair]decimal.Decimal{ethBtc: d("0")}))

	var lastErr error
	for i := 0; i < 5; i++ {
		lastErr = m.UpdateExchangeBalance(testAccount, nil, map[CurrencyPair]decimal.Decimal{ethBtc: d("1.0")})
	}
	require.Error(t, lastErr)
	var fatal *FatalError
	require.ErrorAs(t, lastErr, &fatal)
	assert.Equal(t, KindMismatchStreak, fatal.Kind)
}

func TestManagerPoisonsOnPanic(t *testing.T) {
	sym := spotSymbol()
	m, _ := newTestManager(t, sym, map[CurrencyCode]decimal.Decimal{"BTC": d("1.0")})

	assert.Panics(t, func() {
		m.enter()
		defer m.exit()
		panic("boom")
	})

	err := m.Unreserve(0, d("1"))
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, KindManagerPoisoned, fatal.Kind)
}

func TestReservationIdCounterOverflowIsFatal(t *testing.T) {
	store := NewReservationStore()
	store.nextId = uint64(4294967296) // 2^32, past the last valid id 2^32-1
	_, err := store.NextId()
	require.Error(t, err)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, KindReservationOverflow, fatal.Kind)
}
