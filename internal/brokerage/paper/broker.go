// Package paper implements brokerage.Brokerage in memory. Orders rest until
// the caller fills or cancels them, which makes it suitable for paper trading
// and for exercising the execution core in tests.
package paper

import (
	"context"
	"sort"
	"sync"
	"time"

	"execcore/internal/brokerage"
	"execcore/internal/model"
	"execcore/internal/model/enum"
	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

// Compile-time interface checks.
var (
	_ brokerage.Brokerage   = (*Broker)(nil)
	_ brokerage.EventSource = (*Broker)(nil)
	_ brokerage.Ticket      = (*ticket)(nil)
)

const defaultEventBuffer = 1024

// Option configures the paper broker.
type Option struct {
	// Clock stamps order creation. Optional; default time.Now.
	Clock func() time.Time
	// EventBuffer is the event channel capacity. Optional; default 1024.
	EventBuffer int
	// DeferCancel keeps canceled orders open until AckCancel is called.
	DeferCancel bool
	// Reject, when set, is consulted on every submission; a non-nil error
	// rejects the order.
	Reject func(symbol string, quantity decimal.Decimal) error
}

// Broker is an in-memory brokerage.
type Broker struct {
	opt Option

	mu        sync.Mutex
	nextID    int64
	orders    map[int64]*model.Order
	cancels   map[int64]int
	fills     map[int64]decimal.Decimal
	positions map[string]decimal.Decimal
	holdings  []model.Holding
	cash      map[string]decimal.Decimal
	events    chan model.Event
	closed    bool
}

func NewBroker(option ...Option) *Broker {
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	if opt.EventBuffer <= 0 {
		opt.EventBuffer = defaultEventBuffer
	}

	return &Broker{
		opt:       opt,
		orders:    make(map[int64]*model.Order),
		cancels:   make(map[int64]int),
		fills:     make(map[int64]decimal.Decimal),
		positions: make(map[string]decimal.Decimal),
		cash:      make(map[string]decimal.Decimal),
		events:    make(chan model.Event, opt.EventBuffer),
	}
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, symbol string, quantity decimal.Decimal, tag string) (brokerage.Ticket, error) {
	return b.place(ctx, &model.Order{
		Symbol:   symbol,
		Kind:     enum.OrderKindMarket,
		Quantity: quantity,
	})
}

func (b *Broker) PlaceLimitOrder(ctx context.Context, symbol string, quantity, limitPrice decimal.Decimal, tag string) (brokerage.Ticket, error) {
	return b.place(ctx, &model.Order{
		Symbol:     symbol,
		Kind:       enum.OrderKindLimit,
		Quantity:   quantity,
		LimitPrice: limitPrice,
	})
}

func (b *Broker) PlaceStopLimitOrder(ctx context.Context, symbol string, quantity, stopPrice, limitPrice decimal.Decimal, tag string) (brokerage.Ticket, error) {
	return b.place(ctx, &model.Order{
		Symbol:     symbol,
		Kind:       enum.OrderKindStopLimit,
		Quantity:   quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
	})
}

func (b *Broker) place(ctx context.Context, order *model.Order) (brokerage.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if order.Quantity.IsZero() {
		return &ticket{broker: b, status: enum.OrderStatusInvalid, err: exception.ErrOrderEmptyQuantity}, nil
	}
	if b.opt.Reject != nil {
		if err := b.opt.Reject(order.Symbol, order.Quantity); err != nil {
			return &ticket{broker: b, status: enum.OrderStatusInvalid, err: err}, nil
		}
	}

	b.mu.Lock()
	b.nextID++
	order.ID = b.nextID
	order.Status = enum.OrderStatusSubmitted
	order.CreatedAt = b.opt.Clock()
	b.orders[order.ID] = order
	b.mu.Unlock()

	b.emit(model.Event{
		Kind: enum.EventKindOrderStatus,
		Order: model.OrderEvent{
			OrderID: order.ID,
			Symbol:  order.Symbol,
			Status:  enum.OrderStatusSubmitted,
			Time:    order.CreatedAt,
		},
	})

	return &ticket{broker: b, id: order.ID, status: enum.OrderStatusSubmitted}, nil
}

func (b *Broker) OpenOrders(ctx context.Context, symbol string) ([]*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]*model.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if o.Symbol == symbol && o.Status.IsOpen() {
			cp := *o
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (b *Broker) OrderByID(ctx context.Context, id int64) (*model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (b *Broker) OrderTicket(ctx context.Context, id int64) (brokerage.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return nil, errors.Wrap(exception.ErrOrderUnknown, "order ticket").With("id", id)
	}
	return &ticket{broker: b, id: id, status: o.Status}, nil
}

func (b *Broker) Holdings(ctx context.Context) ([]model.Holding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]struct{}, len(b.holdings))
	result := make([]model.Holding, 0, len(b.holdings)+len(b.positions))
	for _, h := range b.holdings {
		if qty, ok := b.positions[h.Symbol]; ok {
			h.Quantity = qty
		}
		seen[h.Symbol] = struct{}{}
		result = append(result, h)
	}
	for symbol, qty := range b.positions {
		if _, ok := seen[symbol]; ok {
			continue
		}
		result = append(result, model.Holding{
			Symbol:   symbol,
			Asset:    symbol,
			Kind:     enum.SecurityKindSpot,
			Quantity: qty,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result, nil
}

func (b *Broker) Cash(ctx context.Context, currency string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash[currency], nil
}

func (b *Broker) Events() <-chan model.Event {
	return b.events
}

// SetHoldings replaces the static holdings template. Quantities of symbols
// that received fills are overridden by the filled position.
func (b *Broker) SetHoldings(holdings []model.Holding) {
	b.mu.Lock()
	b.holdings = append([]model.Holding(nil), holdings...)
	b.mu.Unlock()
}

// SetCash sets a cash balance and emits an account event.
func (b *Broker) SetCash(currency string, amount decimal.Decimal) {
	b.mu.Lock()
	b.cash[currency] = amount
	b.mu.Unlock()

	b.emit(model.Event{
		Kind:    enum.EventKindAccount,
		Account: model.Account{Currency: currency, Cash: amount, Time: b.opt.Clock()},
	})
}

// Position returns the filled position of symbol.
func (b *Broker) Position(symbol string) decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[symbol]
}

// Fill executes quantity (signed like the order) of an open order at price.
func (b *Broker) Fill(id int64, quantity, price decimal.Decimal) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderUnknown, "fill").With("id", id)
	}
	if !o.Status.IsOpen() {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotOpen, "fill").With("id", id)
	}

	filled := b.fills[id].Add(quantity)
	status := enum.OrderStatusPartiallyFilled
	if filled.Abs().GreaterThanOrEqual(o.Quantity.Abs()) {
		status = enum.OrderStatusFilled
	}
	o.Status = status
	b.positions[o.Symbol] = b.positions[o.Symbol].Add(quantity)
	b.fills[id] = filled
	now := b.opt.Clock()
	symbol := o.Symbol
	b.mu.Unlock()

	b.emit(model.Event{
		Kind: enum.EventKindOrderStatus,
		Order: model.OrderEvent{
			OrderID:      id,
			Symbol:       symbol,
			Status:       status,
			FillQuantity: quantity,
			FillPrice:    price,
			Time:         now,
		},
	})
	b.emit(model.Event{
		Kind: enum.EventKindTrade,
		Trade: model.Trade{
			OrderID:  id,
			Symbol:   symbol,
			Quantity: quantity,
			Price:    price,
			Time:     now,
		},
	})
	return nil
}

// Invalidate moves an open order to Invalid, as a broker would after a late
// rejection.
func (b *Broker) Invalidate(id int64) error {
	return b.resolve(id, enum.OrderStatusInvalid)
}

// AckCancel completes a cancel that was deferred by Option.DeferCancel.
func (b *Broker) AckCancel(id int64) error {
	return b.resolve(id, enum.OrderStatusCanceled)
}

// CancelRequests returns how many cancel requests the order received.
func (b *Broker) CancelRequests(id int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancels[id]
}

// Close closes the event channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

func (b *Broker) cancel(id int64) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderUnknown, "cancel").With("id", id)
	}
	b.cancels[id]++
	if !o.Status.IsOpen() {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotOpen, "cancel").With("id", id)
	}
	deferred := b.opt.DeferCancel
	b.mu.Unlock()

	if deferred {
		return nil
	}
	return b.resolve(id, enum.OrderStatusCanceled)
}

func (b *Broker) update(id int64, quantity, limitPrice decimal.Decimal) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderUnknown, "update").With("id", id)
	}
	if !o.Status.IsOpen() {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotOpen, "update").With("id", id)
	}
	if !quantity.IsZero() {
		o.Quantity = quantity
	}
	if !limitPrice.IsZero() {
		o.LimitPrice = limitPrice
	}
	symbol, status := o.Symbol, o.Status
	b.mu.Unlock()

	b.emit(model.Event{
		Kind: enum.EventKindOrderStatus,
		Order: model.OrderEvent{
			OrderID: id,
			Symbol:  symbol,
			Status:  status,
			Time:    b.opt.Clock(),
		},
	})
	return nil
}

func (b *Broker) resolve(id int64, status enum.OrderStatus) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderUnknown, "resolve").With("id", id)
	}
	if !o.Status.IsOpen() {
		b.mu.Unlock()
		return errors.Wrap(exception.ErrOrderNotOpen, "resolve").With("id", id)
	}
	o.Status = status
	symbol := o.Symbol
	b.mu.Unlock()

	b.emit(model.Event{
		Kind: enum.EventKindOrderStatus,
		Order: model.OrderEvent{
			OrderID: id,
			Symbol:  symbol,
			Status:  status,
			Time:    b.opt.Clock(),
		},
	})
	return nil
}

func (b *Broker) status(id int64) enum.OrderStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.orders[id]; ok {
		return o.Status
	}
	return enum.OrderStatusInvalid
}

func (b *Broker) emit(e model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.events <- e:
	default:
		logs.Warnf("paper broker event buffer full, drop event kind %d", e.Kind)
	}
}

type ticket struct {
	broker *Broker
	id     int64
	status enum.OrderStatus
	err    error
}

func (t *ticket) ID() int64 {
	return t.id
}

func (t *ticket) Status() enum.OrderStatus {
	if t.err != nil || t.id == 0 {
		return t.status
	}
	return t.broker.status(t.id)
}

func (t *ticket) Err() error {
	return t.err
}

func (t *ticket) Cancel(ctx context.Context, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.err != nil {
		return t.err
	}
	return t.broker.cancel(t.id)
}

func (t *ticket) Update(ctx context.Context, quantity, limitPrice decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.err != nil {
		return t.err
	}
	return t.broker.update(t.id, quantity, limitPrice)
}
