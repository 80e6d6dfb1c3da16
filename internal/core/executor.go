package core

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"execcore/internal/brokerage"
	"execcore/internal/bus"
	"execcore/internal/margin"
	"execcore/internal/model"
	"execcore/internal/model/enum"
	"execcore/internal/obs"
	"execcore/internal/order"
	"execcore/internal/state"
	"execcore/internal/syncmap"
	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

const defaultQueueSize = 4096

// Option configures an Executor.
type Option struct {
	// QueueSize bounds the broker event queue. Optional; default 4096.
	QueueSize int
	// RiskMultiplier scales collateral in the liquidation check. Optional;
	// default 1.
	RiskMultiplier decimal.Decimal
	// Order configures every order manager.
	Order order.Option
	// Metrics is optional.
	Metrics *obs.Metrics
	// Clock drives the manage loop. Optional; default time.Now.
	Clock func() time.Time
}

// Report is the outcome of one manage tick.
type Report struct {
	Time time.Time
	// InconsistentOrders lists symbols whose CheckOrder failed.
	InconsistentOrders []string
	// PositionMismatches lists symbols whose CheckPosition failed.
	PositionMismatches []string
	Verdict            margin.Verdict
}

// Executor wires a brokerage to the order managers, the position book and a
// margin model.
type Executor struct {
	broker brokerage.Brokerage
	model  margin.Model
	opt    Option

	queue    *bus.Queue
	book     *state.Book
	managers syncmap.Map[string, *order.Manager]

	last atomic.Pointer[Report]
}

func NewExecutor(broker brokerage.Brokerage, model margin.Model, option ...Option) (*Executor, error) {
	if broker == nil {
		return nil, exception.ErrOrderNilBrokerage
	}
	if model == nil {
		return nil, exception.ErrNilInstance
	}

	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = defaultQueueSize
	}
	if !opt.RiskMultiplier.IsPositive() {
		opt.RiskMultiplier = decimal.NewFromInt(1)
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	if opt.Order.Metrics == nil {
		opt.Order.Metrics = opt.Metrics
	}

	return &Executor{
		broker: broker,
		model:  model,
		opt:    opt,
		queue:  bus.NewQueue(opt.QueueSize),
		book:   state.NewBook(),
	}, nil
}

// Manager returns the order manager of symbol, creating it when absent.
func (x *Executor) Manager(symbol string) *order.Manager {
	if m, ok := x.managers.Load(symbol); ok {
		return m
	}
	m, _ := x.managers.LoadOrStore(symbol, order.NewManager(symbol, x.broker, x.opt.Order))
	return m
}

func (x *Executor) Book() *state.Book {
	return x.book
}

// Submit places an order and projects its quantity onto the virtual
// position once the broker accepted it. Stop-limit orders are not projected.
func (x *Executor) Submit(ctx context.Context, symbol string, quantity decimal.Decimal, kind enum.OrderKind, limitPrice, stopPrice decimal.Decimal) (int64, error) {
	id, err := x.Manager(symbol).AddOrder(ctx, quantity, kind, limitPrice, stopPrice)
	if err != nil {
		return 0, err
	}
	if id != 0 && kind != enum.OrderKindStopLimit {
		x.book.Tracker(symbol).AddPosition(quantity)
	}
	return id, nil
}

// Amend changes quantity and limit price of an open order. The virtual
// position follows a quantity change.
func (x *Executor) Amend(ctx context.Context, symbol string, id int64, quantity, limitPrice decimal.Decimal) bool {
	m := x.Manager(symbol)
	before, tracked := m.Order(id)
	if !m.UpdateOrderRequest(ctx, id, quantity, limitPrice) {
		return false
	}
	if tracked && !quantity.IsZero() {
		x.book.Tracker(symbol).AddPosition(quantity.Sub(before.Quantity))
	}
	return true
}

// Publish queues a broker event for the dispatcher. It never blocks.
func (x *Executor) Publish(e model.Event) error {
	err := x.queue.TryPublish(e)
	if errors.Is(err, bus.ErrQueueFull) {
		x.opt.Metrics.IncQueueDrop()
		logs.Errorf("event queue full, drop event kind %d", e.Kind)
	}
	return err
}

// Consume forwards events from src until it closes or ctx is done.
func (x *Executor) Consume(ctx context.Context, src brokerage.EventSource) {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			_ = x.Publish(e)
		}
	}
}

// Dispatch applies queued events until ctx is done or Close was called and
// the queue is drained.
func (x *Executor) Dispatch(ctx context.Context) {
	x.queue.Run(ctx, func(e model.Event) {
		x.handle(ctx, e)
	})
}

// Close stops accepting events.
func (x *Executor) Close() {
	x.queue.Close()
}

func (x *Executor) handle(ctx context.Context, e model.Event) {
	switch e.Kind {
	case enum.EventKindOrderStatus:
		x.handleOrder(ctx, e.Order)
	case enum.EventKindTrade:
		logs.Debugf("trade %s %s @ %s, order %d", e.Trade.Symbol, e.Trade.Quantity, e.Trade.Price, e.Trade.OrderID)
	case enum.EventKindAccount:
		logs.Infof("account %s cash %s", e.Account.Currency, e.Account.Cash)
	default:
		logs.Errorf("unknown event kind %d", e.Kind)
	}
}

func (x *Executor) handleOrder(ctx context.Context, ev model.OrderEvent) {
	if ev.OrderID == 0 {
		return
	}

	if err := x.Manager(ev.Symbol).UpdateOrder(ctx, ev); err != nil {
		logs.Errorf("update order %d of %s, err: %+v", ev.OrderID, ev.Symbol, err)
		return
	}

	o, err := x.broker.OrderByID(ctx, ev.OrderID)
	if err != nil {
		logs.Errorf("lookup order %d, err: %+v", ev.OrderID, err)
		return
	}
	if o == nil {
		return
	}
	x.book.Tracker(o.Symbol).UpdatePosition(ev, o)
}

// Manage runs one tick: reconcile every order manager, confirm positions
// against the broker's holdings and evaluate liquidation risk.
func (x *Executor) Manage(ctx context.Context, now time.Time) Report {
	start := time.Now()
	report := Report{Time: now}

	for _, e := range x.managers.Snapshot() {
		e.Value.ManageOrders(ctx, now)
		if !e.Value.CheckOrder(ctx) {
			report.InconsistentOrders = append(report.InconsistentOrders, e.Key)
		}
	}
	sort.Strings(report.InconsistentOrders)

	holdings, err := x.broker.Holdings(ctx)
	if err != nil {
		logs.Errorf("fetch holdings, err: %+v", err)
	} else {
		x.book.ApplyHoldings(holdings)
		report.PositionMismatches = x.book.Mismatches()
		for _, p := range x.book.Snapshot().Positions {
			x.opt.Metrics.SetPositionConsistent(p.Symbol, p.Virtual.Equal(p.Confirmed))
		}

		report.Verdict = x.model.Evaluate(holdings, x.opt.RiskMultiplier)
		x.opt.Metrics.SetRisk(
			report.Verdict.Collateral.InexactFloat64(),
			report.Verdict.MarginFraction.InexactFloat64(),
			report.Verdict.AtRisk,
		)
		if report.Verdict.AtRisk {
			logs.Warnf("liquidation risk, collateral %s, margin fraction %s, maintenance margin %s",
				report.Verdict.Collateral, report.Verdict.MarginFraction, report.Verdict.MaintenanceMargin)
		}
	}

	x.opt.Metrics.ObserveManage(time.Since(start))
	x.last.Store(&report)
	return report
}

// LastReport returns the report of the latest tick.
func (x *Executor) LastReport() (Report, bool) {
	r := x.last.Load()
	if r == nil {
		return Report{}, false
	}
	return *r, true
}

// Run dispatches events and ticks Manage every interval until ctx is done.
func (x *Executor) Run(ctx context.Context, interval time.Duration) {
	go x.Dispatch(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			x.Manage(ctx, x.opt.Clock())
		}
	}
}

// HasOpenOrder reports whether symbol has any working order.
func (x *Executor) HasOpenOrder(ctx context.Context, symbol string) bool {
	return x.Manager(symbol).HasOpenOrder(ctx)
}

// SaveSnapshot writes the position book to path.
func (x *Executor) SaveSnapshot(path string) error {
	return state.WriteSnapshot(path, x.book.Snapshot())
}

// LoadSnapshot seeds the position book from path.
func (x *Executor) LoadSnapshot(path string) error {
	snapshot, err := state.ReadSnapshot(path)
	if err != nil {
		return err
	}
	x.book.Restore(snapshot)
	return nil
}
