package state

import (
	"testing"

	"execcore/internal/model"
	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func limitOrder(qty string) *model.Order {
	return &model.Order{ID: 1, Symbol: "BTC/USD", Kind: enum.OrderKindLimit, Quantity: d(qty)}
}

func TestTrackerConvergesToRealizedFill(t *testing.T) {
	tr := NewTracker("BTC/USD")
	order := limitOrder("1.5")

	tr.AddPosition(order.Quantity)
	assert.True(t, tr.Position().Equal(d("1.5")))

	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusFilled, FillQuantity: d("1.5")}, order)
	assert.True(t, tr.Position().Equal(d("1.5")), "got %s", tr.Position())
}

func TestTrackerPartialFillsThenFilled(t *testing.T) {
	tr := NewTracker("BTC/USD")
	order := limitOrder("-3")

	tr.AddPosition(order.Quantity)
	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusPartiallyFilled, FillQuantity: d("-1")}, order)
	assert.True(t, tr.Position().Equal(d("-4")), "got %s", tr.Position())

	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusFilled, FillQuantity: d("-2")}, order)
	assert.True(t, tr.Position().Equal(d("-3")), "got %s", tr.Position())
}

func TestTrackerPartialFillThenCancel(t *testing.T) {
	tr := NewTracker("ETH/USD")
	order := limitOrder("10")

	tr.AddPosition(order.Quantity)
	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusPartiallyFilled, FillQuantity: d("4")}, order)
	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusCanceled}, order)
	assert.True(t, tr.Position().Equal(d("4")), "got %s", tr.Position())
}

func TestTrackerInvalidUndoesProjection(t *testing.T) {
	tr := NewTracker("ETH/USD")
	order := limitOrder("2")

	tr.AddPosition(order.Quantity)
	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusInvalid}, order)
	assert.True(t, tr.Position().IsZero())
}

func TestTrackerIgnoresStopLimit(t *testing.T) {
	tr := NewTracker("ETH/USD")
	order := &model.Order{Kind: enum.OrderKindStopLimit, Quantity: d("2")}

	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusFilled, FillQuantity: d("2")}, order)
	assert.True(t, tr.Position().IsZero())

	tr.UpdatePosition(model.OrderEvent{Status: enum.OrderStatusFilled}, nil)
	assert.True(t, tr.Position().IsZero())
}

func TestTrackerCheckPosition(t *testing.T) {
	tr := NewTracker("BTC/USD")
	assert.True(t, tr.CheckPosition())

	tr.AddPosition(d("1"))
	assert.False(t, tr.CheckPosition())

	tr.ManagePosition(d("1.000"))
	assert.True(t, tr.CheckPosition())
	assert.True(t, tr.Confirmed().Equal(d("1")))
}
