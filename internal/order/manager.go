// Package order keeps the locally desired orders of one symbol consistent
// with the broker's view of them.
package order

import (
	"context"
	"sort"
	"time"

	"execcore/internal/brokerage"
	"execcore/internal/model"
	"execcore/internal/model/enum"
	"execcore/internal/obs"
	"execcore/internal/syncmap"
	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	DefaultStaleAfter = 5 * time.Second

	staleCancelReason = "stale order"
)

// Option configures a Manager.
type Option struct {
	// StaleAfter is the age after which an open order is canceled. Optional;
	// default 5s.
	StaleAfter time.Duration
	// Clock stamps desired orders. Optional; default time.Now.
	Clock func() time.Time
	// Metrics is optional.
	Metrics *obs.Metrics
	// Trace tags outbound orders. Optional.
	Trace *obs.TraceGenerator
}

// Manager tracks the orders of a single symbol through their lifecycle.
//
// Three maps are kept, each keyed by broker id:
//   - active: local intent, removed only once terminal
//   - pending: broker orders placed since the last ManageOrders call
//   - confirmed: broker orders merged from pending and refreshed by events
//
// Stop-limit orders are fire-and-forget and never enter these maps.
type Manager struct {
	symbol string
	broker brokerage.Brokerage
	opt    Option

	active    syncmap.Map[int64, *model.DesiredOrder]
	pending   syncmap.Map[int64, *model.Order]
	confirmed syncmap.Map[int64, *model.Order]
}

func NewManager(symbol string, broker brokerage.Brokerage, option ...Option) *Manager {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.StaleAfter <= 0 {
		opt.StaleAfter = DefaultStaleAfter
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}

	return &Manager{
		symbol: symbol,
		broker: broker,
		opt:    opt,
	}
}

func (m *Manager) Symbol() string {
	return m.symbol
}

// AddOrder submits a new order and returns its broker id. A refused
// submission is logged and returns 0 with a nil error; only an unsupported
// kind or a missing brokerage is reported as an error.
func (m *Manager) AddOrder(ctx context.Context, quantity decimal.Decimal, kind enum.OrderKind, limitPrice, stopPrice decimal.Decimal) (int64, error) {
	if m.broker == nil {
		return 0, exception.ErrOrderNilBrokerage
	}

	var (
		ticket brokerage.Ticket
		err    error
		tag    = m.opt.Trace.Tag(m.symbol)
	)

	switch kind {
	case enum.OrderKindMarket:
		ticket, err = m.broker.PlaceMarketOrder(ctx, m.symbol, quantity, tag)
	case enum.OrderKindLimit:
		ticket, err = m.broker.PlaceLimitOrder(ctx, m.symbol, quantity, limitPrice, tag)
	case enum.OrderKindStopLimit:
		ticket, err = m.broker.PlaceStopLimitOrder(ctx, m.symbol, quantity, stopPrice, limitPrice, tag)
	default:
		return 0, exception.ErrOrderUnsupportedKind
	}

	if err != nil {
		logs.Errorf("place %s order %s %s, err: %+v", kind, m.symbol, quantity, err)
		m.opt.Metrics.IncRejected(m.symbol)
		return 0, nil
	}

	if ticket == nil || ticket.Err() != nil || ticket.ID() == 0 || ticket.Status() == enum.OrderStatusInvalid {
		var reason error = exception.ErrOrderRejected
		if ticket != nil && ticket.Err() != nil {
			reason = ticket.Err()
		}
		logs.Warnf("%s order %s %s rejected, err: %+v", kind, m.symbol, quantity, reason)
		m.opt.Metrics.IncRejected(m.symbol)
		return 0, nil
	}

	id := ticket.ID()
	m.opt.Metrics.IncSubmitted(m.symbol, kind.String())

	if kind == enum.OrderKindStopLimit {
		return id, nil
	}

	now := m.opt.Clock()
	m.active.Store(id, &model.DesiredOrder{
		Symbol:     m.symbol,
		Quantity:   quantity,
		Filled:     decimal.Zero,
		Kind:       kind,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
		BrokerID:   id,
		Status:     enum.OrderStatusSubmitted,
		CreatedAt:  now,
	})
	m.pending.Store(id, &model.Order{
		ID:         id,
		Symbol:     m.symbol,
		Kind:       kind,
		Status:     enum.OrderStatusSubmitted,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
		CreatedAt:  now,
	})

	return id, nil
}

// Adopt starts tracking an open order that was placed outside this manager,
// for example before a restart. It reports whether the order is now tracked.
func (m *Manager) Adopt(ctx context.Context, id int64) bool {
	o, err := m.broker.OrderByID(ctx, id)
	if err != nil {
		logs.Errorf("adopt order %d, err: %+v", id, err)
		return false
	}
	if o == nil || o.Symbol != m.symbol || o.Kind == enum.OrderKindStopLimit || !o.Status.IsOpen() {
		return false
	}

	_, loaded := m.active.LoadOrStore(id, &model.DesiredOrder{
		Symbol:     o.Symbol,
		Quantity:   o.Quantity,
		Filled:     decimal.Zero,
		Kind:       o.Kind,
		LimitPrice: o.LimitPrice,
		StopPrice:  o.StopPrice,
		BrokerID:   id,
		Status:     o.Status,
		CreatedAt:  o.CreatedAt,
	})
	if !loaded {
		m.pending.Store(id, o)
	}
	return true
}

// ManageOrders runs one reconciliation pass: merge pending orders into the
// confirmed map, prune terminal orders, then cancel stale open orders.
func (m *Manager) ManageOrders(ctx context.Context, now time.Time) {
	m.mergePending(ctx)
	m.pruneActive()
	m.pruneConfirmed()
	m.cancelStale(ctx, now)
}

// mergePending moves submitted orders into the confirmed map. An order the
// confirmed map does not hold yet is refreshed from the broker, since its
// events may have been applied and pruned before the submission returned.
func (m *Manager) mergePending(ctx context.Context) {
	for _, e := range m.pending.Snapshot() {
		confirmed, loaded := m.confirmed.LoadOrStore(e.Key, e.Value)
		fill := decimal.Zero
		if !loaded {
			if o := m.refresh(ctx, e.Key); o != nil {
				confirmed = o
				fill = m.unrecordedFill(e.Key, o.Status)
			}
		}
		m.mirror(e.Key, confirmed.Status, fill)
		if !m.pending.Delete(e.Key) {
			logs.Errorf("remove pending order %d of %s, not found", e.Key, m.symbol)
		}
	}
}

// refresh stores the broker's view of id in the confirmed map. It returns nil
// when the broker cannot tell, leaving the submitted snapshot in place.
func (m *Manager) refresh(ctx context.Context, id int64) *model.Order {
	o, err := m.broker.OrderByID(ctx, id)
	if err != nil {
		logs.Warnf("refresh order %d of %s, err: %+v", id, m.symbol, err)
		return nil
	}
	if o == nil {
		return nil
	}
	m.confirmed.Store(id, o)
	return o
}

// unrecordedFill returns the quantity a filled order still lacks locally.
func (m *Manager) unrecordedFill(id int64, status enum.OrderStatus) decimal.Decimal {
	if status != enum.OrderStatusFilled {
		return decimal.Zero
	}
	o, ok := m.active.Load(id)
	if !ok {
		return decimal.Zero
	}
	return o.Remaining()
}

func (m *Manager) pruneActive() {
	for _, e := range m.active.Snapshot() {
		if !e.Value.Finished && !e.Value.Status.IsTerminal() {
			continue
		}
		if !m.active.Delete(e.Key) {
			logs.Errorf("remove finished order %d of %s, not found", e.Key, m.symbol)
		}
	}
}

func (m *Manager) pruneConfirmed() {
	for _, e := range m.confirmed.Snapshot() {
		if !e.Value.Status.IsTerminal() {
			continue
		}
		if !m.confirmed.Delete(e.Key) {
			logs.Errorf("remove confirmed order %d of %s, not found", e.Key, m.symbol)
		}
	}
}

func (m *Manager) cancelStale(ctx context.Context, now time.Time) {
	open, err := m.openOrders(ctx)
	if err != nil {
		logs.Errorf("fetch open orders of %s, err: %+v", m.symbol, err)
		return
	}

	for _, o := range open {
		if now.Sub(o.CreatedAt) <= m.opt.StaleAfter {
			continue
		}

		if err := m.cancel(ctx, o.ID); err != nil {
			logs.Warnf("cancel stale order %d of %s, err: %+v", o.ID, m.symbol, err)
			m.opt.Metrics.IncCancelFailure(m.symbol)
			continue
		}

		logs.Infof("cancel stale order %d of %s, age %s", o.ID, m.symbol, now.Sub(o.CreatedAt))
		m.opt.Metrics.IncStaleCancel(m.symbol)
	}
}

func (m *Manager) cancel(ctx context.Context, id int64) error {
	ticket, err := m.broker.OrderTicket(ctx, id)
	if err != nil {
		return errors.Wrap(err, "order ticket").With("id", id)
	}
	return ticket.Cancel(ctx, staleCancelReason)
}

// UpdateOrder applies an order-status-changed event. Events for unknown ids,
// zero ids and stop-limit orders are ignored. A failed broker lookup is
// returned.
func (m *Manager) UpdateOrder(ctx context.Context, event model.OrderEvent) error {
	if event.OrderID == 0 {
		return nil
	}

	o, err := m.broker.OrderByID(ctx, event.OrderID)
	if err != nil {
		return errors.Wrap(err, "lookup order").With("id", event.OrderID)
	}
	if o == nil {
		logs.Debugf("order event for unknown order %d of %s, ignored", event.OrderID, m.symbol)
		return nil
	}
	if o.Symbol != m.symbol {
		return exception.ErrOrderSymbolMismatch
	}
	if o.Kind == enum.OrderKindStopLimit {
		return nil
	}

	m.confirmed.Store(o.ID, o)
	m.mirror(o.ID, event.Status, event.FillQuantity)
	return nil
}

// mirror copies status into the local order and accumulates fill. The local
// order is replaced rather than mutated so concurrent readers never observe a
// half written value.
func (m *Manager) mirror(id int64, status enum.OrderStatus, fill decimal.Decimal) {
	for {
		current, ok := m.active.Load(id)
		if !ok {
			return
		}

		next := *current
		next.Filled = next.Filled.Add(fill)
		if status.IsAvailable() && !next.Finished {
			next.Status = status
		}
		if next.Status.IsTerminal() {
			next.Finished = true
		}

		if m.active.CompareAndSwap(id, current, &next) {
			return
		}
	}
}

// UpdateOrderRequest amends quantity and limit price of an open order. Zero
// values leave the field unchanged.
func (m *Manager) UpdateOrderRequest(ctx context.Context, id int64, quantity, limitPrice decimal.Decimal) bool {
	ticket, err := m.broker.OrderTicket(ctx, id)
	if err != nil {
		logs.Errorf("amend order %d of %s, err: %+v", id, m.symbol, err)
		return false
	}
	if err := ticket.Update(ctx, quantity, limitPrice); err != nil {
		logs.Errorf("amend order %d of %s, err: %+v", id, m.symbol, err)
		return false
	}

	for {
		current, ok := m.active.Load(id)
		if !ok {
			return true
		}
		next := *current
		if !quantity.IsZero() {
			next.Quantity = quantity
		}
		if !limitPrice.IsZero() {
			next.LimitPrice = limitPrice
		}
		if m.active.CompareAndSwap(id, current, &next) {
			return true
		}
	}
}

// HasOpenOrder reports whether the broker works any tracked kind of order for
// the symbol, or any local order is still active.
func (m *Manager) HasOpenOrder(ctx context.Context) bool {
	open, err := m.openOrders(ctx)
	if err != nil {
		logs.Errorf("fetch open orders of %s, err: %+v", m.symbol, err)
	}
	return len(open) != 0 || m.active.Len() != 0
}

// CheckOrder reports whether the local, confirmed and broker order counts
// agree. It never corrects anything.
func (m *Manager) CheckOrder(ctx context.Context) bool {
	open, err := m.openOrders(ctx)
	if err != nil {
		logs.Errorf("fetch open orders of %s, err: %+v", m.symbol, err)
		return false
	}

	local := m.active.Len()
	ok := local == m.confirmed.Len() && local == len(open)
	m.opt.Metrics.SetOrderConsistent(m.symbol, ok)
	return ok
}

// ActiveOrders returns a copy of the local orders ordered by broker id.
func (m *Manager) ActiveOrders() []model.DesiredOrder {
	entries := m.active.Snapshot()
	result := make([]model.DesiredOrder, 0, len(entries))
	for _, e := range entries {
		result = append(result, *e.Value)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BrokerID < result[j].BrokerID
	})
	return result
}

// Order returns the local order for id.
func (m *Manager) Order(id int64) (model.DesiredOrder, bool) {
	o, ok := m.active.Load(id)
	if !ok {
		return model.DesiredOrder{}, false
	}
	return *o, true
}

// openOrders returns the broker's open orders for the symbol without
// stop-limit orders.
func (m *Manager) openOrders(ctx context.Context) ([]*model.Order, error) {
	if m.broker == nil {
		return nil, exception.ErrOrderNilBrokerage
	}

	orders, err := m.broker.OpenOrders(ctx, m.symbol)
	if err != nil {
		return nil, err
	}

	result := make([]*model.Order, 0, len(orders))
	for _, o := range orders {
		if o.Kind != enum.OrderKindStopLimit {
			result = append(result, o)
		}
	}
	return result, nil
}
