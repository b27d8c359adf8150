package balance

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/kelp/model"
)

// mismatchStreakThreshold is the number of consecutive venue/local position divergences tolerated
// before update_exchange_balance raises a fatal error. The threshold is arbitrary per spec.md §9's
// open question, but defaults to 5.
const mismatchStreakThreshold = 5

// positionMismatchEpsilon is the tolerance used when comparing a venue-reported derivative position
// against the locally tracked one.
var positionMismatchEpsilon = decimal.New(1, -8)

// Manager is the BalanceManagerFacade: the sole public entry point into BRM. Every method acquires
// a single mutex before touching any state, matching spec.md §5's single-serializing-lock model and
// the teacher's support/kelpos.KelpOS.processLock pattern. A panic while the lock is held poisons
// the manager; every subsequent call fails fast with ErrManagerPoisoned (spec.md §5's "the lock must
// be poisoned" guidance, carried here as a typed error rather than process abort per spec.md §9).
type Manager struct {
	mu       sync.Mutex
	poisoned bool

	vbh     *VirtualBalanceHolder
	store   *ReservationStore
	fillPos *FillAmountPositionTracker
	changes *PositionChangeTracker
	engine  *ReservationEngine
	fills   *FillHandler

	symbols  SymbolSource
	recorder Recorder
	clock    Clock

	mismatchStreak map[TradePlace]int
	positionSeeded map[TradePlace]bool
	initTime       time.Time
}

// NewManager is a factory method. recorder may be nil, in which case NopRecorder is used.
func NewManager(symbols SymbolSource, recorder Recorder, clock Clock) *Manager {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	vbh := NewVirtualBalanceHolder()
	store := NewReservationStore()
	fillPos := NewFillAmountPositionTracker()
	changes := NewPositionChangeTracker()
	engine := NewReservationEngine(vbh, store, fillPos)
	fills := NewFillHandler(vbh, engine, fillPos, changes)
	return &Manager{
		vbh:            vbh,
		store:          store,
		fillPos:        fillPos,
		changes:        changes,
		engine:         engine,
		fills:          fills,
		symbols:        symbols,
		recorder:       recorder,
		clock:          clock,
		mismatchStreak: map[TradePlace]int{},
		positionSeeded: map[TradePlace]bool{},
		initTime:       clock.Now(),
	}
}

// Symbol resolves a Symbol via the injected SymbolSource; it does not touch BRM's mutable state so
// it does not take the lock.
func (m *Manager) Symbol(account ExchangeAccountId, pair CurrencyPair) *Symbol {
	return m.symbols.GetSymbol(account, pair)
}

// enter acquires the lock, failing fast if the manager is already poisoned. Callers that receive a
// nil error must `defer m.exit()` immediately afterward.
func (m *Manager) enter() error {
	m.mu.Lock()
	if m.poisoned {
		m.mu.Unlock()
		return ErrManagerPoisoned
	}
	return nil
}

// exit releases the lock, poisoning the manager and re-raising if the deferred call unwinds a panic.
func (m *Manager) exit() {
	if r := recover(); r != nil {
		m.poisoned = true
		m.mu.Unlock()
		panic(r)
	}
	m.mu.Unlock()
}

// UpdateExchangeBalance implements spec.md §4.6's update_exchange_balance: overwrites raw balances,
// seeds derivative fill-amount positions from the venue on first report per trade place, and
// validates them on every subsequent report. Five consecutive divergences beyond epsilon is fatal.
func (m *Manager) UpdateExchangeBalance(account ExchangeAccountId, balances map[CurrencyCode]decimal.Decimal, positions map[CurrencyPair]decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	m.vbh.UpdateBalances(account, balances)

	for pair, reported := range positions {
		place := TradePlace{ExchangeAccountId: account, CurrencyPair: pair}
		if !m.positionSeeded[place] {
			m.fillPos.SetPosition(place, reported)
			m.positionSeeded[place] = true
			m.mismatchStreak[place] = 0
			continue
		}

		local := m.fillPos.Position(place)
		if local.Sub(reported).Abs().GreaterThan(positionMismatchEpsilon) {
			m.mismatchStreak[place]++
			if m.mismatchStreak[place] >= mismatchStreakThreshold {
				return newFatalError(KindMismatchStreak, "position for %s diverged from venue-reported %s (local %s) on %d consecutive updates", place, reported, local, m.mismatchStreak[place])
			}
		} else {
			m.mismatchStreak[place] = 0
		}
	}
	return nil
}

// CanReserve implements spec.md §4.3's can_reserve.
func (m *Manager) CanReserve(params ReserveParameters) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.exit()
	return m.engine.CanReserve(params), nil
}

// TryReserve implements spec.md §4.3's try_reserve.
func (m *Manager) TryReserve(params ReserveParameters) (ReservationId, bool, error) {
	if err := m.enter(); err != nil {
		return 0, false, err
	}
	defer m.exit()

	request := params.balanceRequest()
	pre, _ := m.engine.GetVirtualBalance(request)
	id, ok, err := m.engine.TryReserve(params)
	if ok {
		m.recordMutation(request, pre)
	}
	return id, ok, err
}

// recordMutation emits a BalanceUpdate to the configured Recorder, if any (spec.md §6's optional
// persistence hook). Never called on a no-op path.
func (m *Manager) recordMutation(request BalanceRequest, pre decimal.Decimal) {
	post, _ := m.engine.GetVirtualBalance(request)
	m.recorder.RecordBalanceUpdate(BalanceUpdate{
		Request:            request,
		PreBalance:         pre,
		PostBalance:        post,
		ActiveReservations: m.store.All(),
	})
}

// TryReservePair implements spec.md §4.3's try_reserve_pair.
func (m *Manager) TryReservePair(p1, p2 ReserveParameters) (ReservationId, ReservationId, bool, error) {
	if err := m.enter(); err != nil {
		return 0, 0, false, err
	}
	defer m.exit()
	return m.engine.TryReservePair(p1, p2)
}

// TryReserveThree implements spec.md §4.3's try_reserve_three.
func (m *Manager) TryReserveThree(p1, p2, p3 ReserveParameters) (ReservationId, ReservationId, ReservationId, bool, error) {
	if err := m.enter(); err != nil {
		return 0, 0, 0, false, err
	}
	defer m.exit()
	return m.engine.TryReserveThree(p1, p2, p3)
}

// TryUpdateReservation implements spec.md §4.3's try_update_reservation.
func (m *Manager) TryUpdateReservation(id ReservationId, newPrice decimal.Decimal) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.exit()
	return m.engine.TryUpdateReservation(id, newPrice)
}

// ApproveReservation implements spec.md §4.3's approve_reservation.
func (m *Manager) ApproveReservation(id ReservationId, cid ClientOrderId, amount decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	return m.engine.ApproveReservation(id, cid, amount)
}

// Unreserve implements spec.md §4.3's unreserve.
func (m *Manager) Unreserve(id ReservationId, amount decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	var request BalanceRequest
	var pre decimal.Decimal
	if r, ok := m.store.Get(id); ok {
		request = r.reservationRequest()
		pre, _ = m.engine.GetVirtualBalance(request)
	}
	if e := m.engine.Unreserve(id, amount); e != nil {
		return e
	}
	m.recordMutation(request, pre)
	return nil
}

// UnreserveByClientOrderId implements spec.md §4.3's unreserve_by_client_order_id.
func (m *Manager) UnreserveByClientOrderId(id ReservationId, cid ClientOrderId, amount decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	return m.engine.UnreserveByClientOrderId(id, cid, amount)
}

// UnreserveRest implements spec.md §4.3's unreserve_rest.
func (m *Manager) UnreserveRest(id ReservationId) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	return m.engine.UnreserveRest(id)
}

// UnreservePair implements spec.md §6's unreserve_pair.
func (m *Manager) UnreservePair(id1 ReservationId, amount1 decimal.Decimal, id2 ReservationId, amount2 decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	return m.engine.UnreservePair(id1, amount1, id2, amount2)
}

// TryTransferReservation implements spec.md §4.3's try_transfer_reservation.
func (m *Manager) TryTransferReservation(srcId, dstId ReservationId, amount decimal.Decimal, cid *ClientOrderId) (bool, error) {
	if err := m.enter(); err != nil {
		return false, err
	}
	defer m.exit()
	return m.engine.TryTransferReservation(srcId, dstId, amount, cid)
}

// OrderWasFilled implements spec.md §4.4's order_was_filled. A nil fill is a no-op.
func (m *Manager) OrderWasFilled(desc ConfigurationDescriptor, order *OrderSnapshot, fill *FillEvent) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	if fill == nil {
		return nil
	}
	order.ConfigurationDescriptor = desc

	beforeCurrency, _ := beforeAfterCurrency(order.Symbol, fill.Side)
	request := order.balanceRequest(beforeCurrency)
	pre, _ := m.engine.GetVirtualBalance(request)
	if e := m.fills.OrderWasFilled(order, *fill); e != nil {
		return e
	}
	m.recordMutation(request, pre)
	return nil
}

// OrderWasFinished implements spec.md §4.4's order_was_finished.
func (m *Manager) OrderWasFinished(desc ConfigurationDescriptor, order *OrderSnapshot) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	order.ConfigurationDescriptor = desc
	return m.fills.OrderWasFinished(order)
}

// SetTargetAmountLimit implements spec.md §4.6's set_target_amount_limit.
func (m *Manager) SetTargetAmountLimit(account ExchangeAccountId, pair CurrencyPair, limit decimal.Decimal) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()
	m.fillPos.SetLimit(TradePlace{ExchangeAccountId: account, CurrencyPair: pair}, limit)
	return nil
}

// GetBalanceBySide implements spec.md §4.6's get_balance_by_side.
func (m *Manager) GetBalanceBySide(desc ConfigurationDescriptor, account ExchangeAccountId, symbol *Symbol, side model.OrderAction) (decimal.Decimal, bool, error) {
	if err := m.enter(); err != nil {
		return decimal.Zero, false, err
	}
	defer m.exit()
	request := BalanceRequest{
		ConfigurationDescriptor: desc,
		ExchangeAccountId:       account,
		CurrencyPair:            symbol.Pair,
		CurrencyCode:            symbol.ReservationCurrencyCode(side),
	}
	amount, ok := m.engine.GetVirtualBalance(request)
	return amount, ok, nil
}

// GetBalanceByCurrencyCode implements spec.md §4.6's get_balance_by_currency_code.
func (m *Manager) GetBalanceByCurrencyCode(desc ConfigurationDescriptor, account ExchangeAccountId, pair CurrencyPair, currency CurrencyCode) (decimal.Decimal, bool, error) {
	if err := m.enter(); err != nil {
		return decimal.Zero, false, err
	}
	defer m.exit()
	request := BalanceRequest{ConfigurationDescriptor: desc, ExchangeAccountId: account, CurrencyPair: pair, CurrencyCode: currency}
	amount, ok := m.engine.GetVirtualBalance(request)
	return amount, ok, nil
}

// GetBalanceByReserveParameters implements spec.md §4.6's get_balance_by_reserve_parameters.
func (m *Manager) GetBalanceByReserveParameters(params ReserveParameters) (decimal.Decimal, bool, error) {
	if err := m.enter(); err != nil {
		return decimal.Zero, false, err
	}
	defer m.exit()
	amount, ok := m.engine.GetVirtualBalance(params.balanceRequest())
	return amount, ok, nil
}

// GetPosition implements spec.md §6's get_position. side is accepted for API symmetry with the rest
// of the inbound surface; the tracked position is already signed (+buys, -sells) so it is returned
// as-is regardless of which side is asked about.
func (m *Manager) GetPosition(account ExchangeAccountId, pair CurrencyPair, side model.OrderAction) (decimal.Decimal, error) {
	if err := m.enter(); err != nil {
		return decimal.Zero, err
	}
	defer m.exit()
	_ = side
	return m.fillPos.Position(TradePlace{ExchangeAccountId: account, CurrencyPair: pair}), nil
}

// GetFillAmountPositionPercent implements spec.md §6's get_fill_amount_position_percent.
func (m *Manager) GetFillAmountPositionPercent(account ExchangeAccountId, pair CurrencyPair) (decimal.Decimal, bool, error) {
	if err := m.enter(); err != nil {
		return decimal.Zero, false, err
	}
	defer m.exit()
	pct, ok := m.fillPos.FillAmountPositionPercent(TradePlace{ExchangeAccountId: account, CurrencyPair: pair})
	return pct, ok, nil
}

// GetLastPositionChangeBeforePeriod implements spec.md §4.5's get_last_position_change_before_period.
func (m *Manager) GetLastPositionChangeBeforePeriod(place TradePlace, ts time.Time) (PositionChange, bool, error) {
	if err := m.enter(); err != nil {
		return PositionChange{}, false, err
	}
	defer m.exit()
	change, ok := m.changes.GetLastPositionChangeBeforePeriod(place, ts)
	return change, ok, nil
}

// GetBalances implements spec.md §4.6's get_balances: a deep copy of every piece of state.
func (m *Manager) GetBalances() (*Balances, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()
	return &Balances{
		balanceHolder:   m.vbh.clone(),
		reservations:    m.store.clone(),
		fillPositions:   m.fillPos.clone(),
		positionChanges: m.changes.clone(),
		lastOrderFills:  m.fills.clone(),
		initTime:        m.clock.Now(),
	}, nil
}

// RestoreBalanceStateWithReservationsHandling implements spec.md §4.6's
// restore_balance_state_with_reservations_handling: replaces internal state from the snapshot, then
// unreserves every restored reservation (reservations never survive an engine restart).
func (m *Manager) RestoreBalanceStateWithReservationsHandling(snapshot *Balances) error {
	if err := m.enter(); err != nil {
		return err
	}
	defer m.exit()

	m.vbh = snapshot.balanceHolder.clone()
	m.store = snapshot.reservations.clone()
	m.fillPos = snapshot.fillPositions.clone()
	m.changes = snapshot.positionChanges.clone()
	m.engine = NewReservationEngine(m.vbh, m.store, m.fillPos)
	fillsCopy := make(map[TradePlace]FillEvent, len(snapshot.lastOrderFills))
	for place, f := range snapshot.lastOrderFills {
		fillsCopy[place] = f
	}
	m.fills = NewFillHandler(m.vbh, m.engine, m.fillPos, m.changes)
	m.fills.lastOrderFills = fillsCopy

	for _, r := range m.store.All() {
		if e := m.engine.UnreserveRest(r.Id); e != nil {
			return e
		}
	}
	return nil
}

// CloneAndSubtractNotApprovedData implements spec.md §4.6's clone_and_subtract_not_approved_data:
// produces an independent Manager, then for every order in activeOrders that is neither finished
// nor Creating, releases its residual approved-part claim in the clone only; finally releases the
// not-approved portion of every remaining reservation in the clone. Errors if any active order is a
// Market order, since a clone cannot know its fill price.
func (m *Manager) CloneAndSubtractNotApprovedData(activeOrders []*OrderSnapshot) (*Manager, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	defer m.exit()

	for _, order := range activeOrders {
		if order.OrderType == model.OrderTypeMarket {
			return nil, newFatalError(KindCloneOverMarketOrder, "clone_and_subtract_not_approved_data: active order %s is a Market order", order.ClientOrderId)
		}
	}

	clone := &Manager{
		vbh:            m.vbh.clone(),
		store:          m.store.clone(),
		fillPos:        m.fillPos.clone(),
		changes:        m.changes.clone(),
		symbols:        m.symbols,
		recorder:       m.recorder,
		clock:          m.clock,
		mismatchStreak: map[TradePlace]int{},
		positionSeeded: map[TradePlace]bool{},
		initTime:       m.clock.Now(),
	}
	for place, n := range m.mismatchStreak {
		clone.mismatchStreak[place] = n
	}
	for place, seeded := range m.positionSeeded {
		clone.positionSeeded[place] = seeded
	}
	clone.engine = NewReservationEngine(clone.vbh, clone.store, clone.fillPos)
	clone.fills = NewFillHandler(clone.vbh, clone.engine, clone.fillPos, clone.changes)
	clone.fills.lastOrderFills = m.fills.clone()

	for _, order := range activeOrders {
		if order.Status.IsFinished() || order.Status == OrderStatusCreating {
			continue
		}
		if order.ReservationId == nil {
			continue
		}
		residual := order.residualAmount()
		if residual.IsZero() {
			continue
		}
		if e := clone.engine.UnreserveByClientOrderId(*order.ReservationId, order.ClientOrderId, residual); e != nil {
			fe, ok := e.(*FatalError)
			ignorable := ok && (fe.Kind == KindUnknownReservation || fe.Kind == KindUnknownTransferClientOrderId)
			if !ignorable {
				return nil, e
			}
		}
	}

	for _, r := range clone.store.All() {
		if r.NotApprovedAmount.IsPositive() {
			if e := clone.engine.Unreserve(r.Id, r.NotApprovedAmount); e != nil {
				return nil, e
			}
		}
	}

	return clone, nil
}
