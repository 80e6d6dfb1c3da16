package paper

import (
	"context"
	"errors"
	"testing"

	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPlaceFillCancel(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()

	tk, err := b.PlaceLimitOrder(ctx, "BTC/USD", decimal.NewFromInt(2), decimal.NewFromInt(100), "")
	require.NoError(t, err)
	require.NoError(t, tk.Err())
	assert.Equal(t, int64(1), tk.ID())
	assert.Equal(t, enum.OrderStatusSubmitted, tk.Status())

	open, err := b.OpenOrders(ctx, "BTC/USD")
	require.NoError(t, err)
	require.Len(t, open, 1)

	require.NoError(t, b.Fill(tk.ID(), decimal.NewFromInt(1), decimal.NewFromInt(100)))
	assert.Equal(t, enum.OrderStatusPartiallyFilled, tk.Status())
	assert.True(t, b.Position("BTC/USD").Equal(decimal.NewFromInt(1)))

	require.NoError(t, tk.Cancel(ctx, "test"))
	assert.Equal(t, enum.OrderStatusCanceled, tk.Status())
	assert.Equal(t, 1, b.CancelRequests(tk.ID()))

	open, err = b.OpenOrders(ctx, "BTC/USD")
	require.NoError(t, err)
	assert.Empty(t, open)

	kinds := []enum.EventKind{}
	for len(b.Events()) > 0 {
		kinds = append(kinds, (<-b.Events()).Kind)
	}
	assert.Equal(t, []enum.EventKind{
		enum.EventKindOrderStatus,
		enum.EventKindOrderStatus,
		enum.EventKindTrade,
		enum.EventKindOrderStatus,
	}, kinds)
}

func TestBrokerReject(t *testing.T) {
	errNoMargin := errors.New("no margin")
	b := NewBroker(Option{
		Reject: func(string, decimal.Decimal) error { return errNoMargin },
	})

	tk, err := b.PlaceMarketOrder(context.Background(), "ETH/USD", decimal.NewFromInt(1), "")
	require.NoError(t, err)
	assert.ErrorIs(t, tk.Err(), errNoMargin)
	assert.Equal(t, int64(0), tk.ID())
	assert.Equal(t, enum.OrderStatusInvalid, tk.Status())
}

func TestBrokerDeferCancel(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(Option{DeferCancel: true})

	tk, err := b.PlaceLimitOrder(ctx, "SOL/USD", decimal.NewFromInt(-5), decimal.NewFromInt(20), "")
	require.NoError(t, err)

	require.NoError(t, tk.Cancel(ctx, "stale"))
	require.NoError(t, tk.Cancel(ctx, "stale"))
	assert.Equal(t, 2, b.CancelRequests(tk.ID()))
	assert.Equal(t, enum.OrderStatusSubmitted, tk.Status())

	require.NoError(t, b.AckCancel(tk.ID()))
	assert.Equal(t, enum.OrderStatusCanceled, tk.Status())
}

func TestBrokerHoldingsMergeFills(t *testing.T) {
	ctx := context.Background()
	b := NewBroker()
	b.SetHoldings(nil)

	tk, err := b.PlaceMarketOrder(ctx, "BTC", decimal.NewFromInt(3), "")
	require.NoError(t, err)
	require.NoError(t, b.Fill(tk.ID(), decimal.NewFromInt(3), decimal.NewFromInt(10)))
	assert.Equal(t, enum.OrderStatusFilled, tk.Status())

	holdings, err := b.Holdings(ctx)
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "BTC", holdings[0].Symbol)
	assert.True(t, holdings[0].Quantity.Equal(decimal.NewFromInt(3)))
}
