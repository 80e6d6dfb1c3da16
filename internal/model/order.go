package model

import (
	"time"

	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Order is the broker's authoritative record of an order.
type Order struct {
	ID         int64
	Symbol     string
	Kind       enum.OrderKind
	Status     enum.OrderStatus
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	CreatedAt  time.Time
}

// DesiredOrder is the local intent for an order. BrokerID stays zero until
// the broker acknowledges the submission.
type DesiredOrder struct {
	Symbol     string
	Quantity   decimal.Decimal
	Filled     decimal.Decimal
	Kind       enum.OrderKind
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	BrokerID   int64
	Status     enum.OrderStatus
	Finished   bool
	CreatedAt  time.Time
}

// Remaining returns the unfilled signed quantity.
func (o *DesiredOrder) Remaining() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// OrderEvent is an order-status-changed notification from the broker.
type OrderEvent struct {
	OrderID      int64
	Symbol       string
	Status       enum.OrderStatus
	FillQuantity decimal.Decimal
	FillPrice    decimal.Decimal
	Time         time.Time
}

// Trade is a fill notification from the broker.
type Trade struct {
	OrderID  int64
	Symbol   string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	Fee      decimal.Decimal
	Time     time.Time
}

// Account carries a cash balance change from the broker.
type Account struct {
	Currency string
	Cash     decimal.Decimal
	Time     time.Time
}

// Event is the tagged envelope pushed by a broker. Exactly one payload
// field matches Kind.
type Event struct {
	Kind    enum.EventKind
	Order   OrderEvent
	Trade   Trade
	Account Account
}
