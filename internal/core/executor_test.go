package core

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"execcore/internal/brokerage/paper"
	"execcore/internal/bus"
	"execcore/internal/margin"
	"execcore/internal/model"
	"execcore/internal/model/enum"
	"execcore/internal/order"
	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	symbol = "BTC/USD"
	usd    = "USD"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func fixedClock() time.Time {
	return t0
}

func newFixture(t *testing.T, brokerOpt paper.Option, opt Option) (*paper.Broker, *Executor) {
	t.Helper()
	brokerOpt.Clock = fixedClock
	b := paper.NewBroker(brokerOpt)

	params := margin.NewParameters(
		margin.CollateralParameter{Asset: usd, InitialWeight: d("1"), TotalWeight: d("1")},
	)
	opt.Order.Clock = fixedClock
	opt.Clock = fixedClock
	x, err := NewExecutor(b, margin.NewFactory(params, usd).Model(false), opt)
	require.NoError(t, err)
	return b, x
}

// pump hands every queued broker event to the dispatcher.
func pump(b *paper.Broker, x *Executor) {
	for {
		select {
		case e := <-b.Events():
			x.handle(context.Background(), e)
		default:
			return
		}
	}
}

func TestNewExecutorValidates(t *testing.T) {
	_, err := NewExecutor(nil, margin.NewFactory(nil, usd).Model(false))
	assert.ErrorIs(t, err, exception.ErrOrderNilBrokerage)

	_, err = NewExecutor(paper.NewBroker(), nil)
	assert.ErrorIs(t, err, exception.ErrNilInstance)
}

func TestSubmitProjectsPosition(t *testing.T) {
	ctx := context.Background()
	_, x := newFixture(t, paper.Option{}, Option{})

	id, err := x.Submit(ctx, symbol, d("2"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.True(t, x.Book().Tracker(symbol).Position().Equal(d("2")))
	assert.True(t, x.HasOpenOrder(ctx, symbol))
}

func TestSubmitRejectedLeavesPositionFlat(t *testing.T) {
	ctx := context.Background()
	_, x := newFixture(t, paper.Option{
		Reject: func(string, decimal.Decimal) error { return exception.ErrOrderRejected },
	}, Option{})

	id, err := x.Submit(ctx, symbol, d("2"), enum.OrderKindMarket, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.True(t, x.Book().Tracker(symbol).Position().IsZero())
}

func TestSubmitStopLimitNotProjected(t *testing.T) {
	ctx := context.Background()
	_, x := newFixture(t, paper.Option{}, Option{})

	id, err := x.Submit(ctx, symbol, d("-1"), enum.OrderKindStopLimit, d("90"), d("95"))
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.True(t, x.Book().Tracker(symbol).Position().IsZero())
}

func TestManageReconcilesFill(t *testing.T) {
	ctx := context.Background()
	b, x := newFixture(t, paper.Option{}, Option{})

	id, err := x.Submit(ctx, symbol, d("1"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)

	report := x.Manage(ctx, t0)
	assert.Empty(t, report.InconsistentOrders)
	assert.Equal(t, []string{symbol}, report.PositionMismatches)

	require.NoError(t, b.Fill(id, d("1"), d("100")))
	pump(b, x)

	report = x.Manage(ctx, t0)
	assert.Empty(t, report.InconsistentOrders)
	assert.Empty(t, report.PositionMismatches)
	assert.True(t, x.Book().Tracker(symbol).Position().Equal(d("1")))
	assert.True(t, x.Book().Tracker(symbol).Confirmed().Equal(d("1")))
	assert.False(t, x.HasOpenOrder(ctx, symbol))

	last, ok := x.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.Time, last.Time)
}

func TestCanceledOrderUndoesProjection(t *testing.T) {
	ctx := context.Background()
	b, x := newFixture(t, paper.Option{}, Option{})

	id, err := x.Submit(ctx, symbol, d("3"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, b.Fill(id, d("1"), d("100")))
	require.NoError(t, b.AckCancel(id))
	pump(b, x)

	assert.True(t, x.Book().Tracker(symbol).Position().Equal(d("1")))

	report := x.Manage(ctx, t0)
	assert.Empty(t, report.PositionMismatches)
}

func TestManageCancelsStaleOrders(t *testing.T) {
	ctx := context.Background()
	b, x := newFixture(t, paper.Option{DeferCancel: true}, Option{})

	id, err := x.Submit(ctx, symbol, d("1"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)

	x.Manage(ctx, t0.Add(order.DefaultStaleAfter+time.Second))
	assert.Equal(t, 1, b.CancelRequests(id))
}

func TestManageEvaluatesRisk(t *testing.T) {
	ctx := context.Background()
	b, x := newFixture(t, paper.Option{}, Option{})

	b.SetHoldings([]model.Holding{{
		Symbol:        usd,
		Asset:         usd,
		QuoteCurrency: usd,
		Kind:          enum.SecurityKindSpot,
		Quantity:      d("-40000"),
		Price:         d("1"),
	}})

	report := x.Manage(ctx, t0)
	assert.True(t, report.Verdict.AtRisk)
	assert.True(t, report.Verdict.Collateral.Equal(d("-40000")))
}

func TestAmendFollowsQuantity(t *testing.T) {
	ctx := context.Background()
	_, x := newFixture(t, paper.Option{}, Option{})

	id, err := x.Submit(ctx, symbol, d("1"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)

	assert.True(t, x.Amend(ctx, symbol, id, d("3"), d("99")))
	assert.True(t, x.Book().Tracker(symbol).Position().Equal(d("3")))

	assert.True(t, x.Amend(ctx, symbol, id, decimal.Zero, d("98")))
	assert.True(t, x.Book().Tracker(symbol).Position().Equal(d("3")))

	assert.False(t, x.Amend(ctx, symbol, 404, d("1"), decimal.Zero))
}

func TestPublishQueueFull(t *testing.T) {
	_, x := newFixture(t, paper.Option{}, Option{QueueSize: 1})

	e := model.Event{Kind: enum.EventKindAccount}
	require.NoError(t, x.Publish(e))
	assert.ErrorIs(t, x.Publish(e), bus.ErrQueueFull)
}

func TestConsumeAndDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b, x := newFixture(t, paper.Option{}, Option{})

	go x.Consume(ctx, b)
	go x.Dispatch(ctx)

	id, err := x.Submit(ctx, symbol, d("-2"), enum.OrderKindMarket, decimal.Zero, decimal.Zero)
	require.NoError(t, err)
	require.NoError(t, b.Fill(id, d("-2"), d("100")))
	b.SetCash(usd, d("1000"))

	assert.Eventually(t, func() bool {
		o, ok := x.Manager(symbol).Order(id)
		return ok && o.Finished && x.Book().Tracker(symbol).Position().Equal(d("-2"))
	}, time.Second, 5*time.Millisecond)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, x := newFixture(t, paper.Option{}, Option{})

	_, err := x.Submit(ctx, symbol, d("1.25"), enum.OrderKindLimit, d("100"), decimal.Zero)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state", "positions.json")
	require.NoError(t, x.SaveSnapshot(path))

	_, restored := newFixture(t, paper.Option{}, Option{})
	require.NoError(t, restored.LoadSnapshot(path))
	assert.True(t, restored.Book().Tracker(symbol).Position().Equal(d("1.25")))
}
