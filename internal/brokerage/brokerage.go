// Package brokerage defines the capability interface exchange adapters
// implement for the execution core.
package brokerage

import (
	"context"

	"execcore/internal/model"
	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Brokerage places and inspects orders on a single account.
type Brokerage interface {
	PlaceMarketOrder(ctx context.Context, symbol string, quantity decimal.Decimal, tag string) (Ticket, error)
	PlaceLimitOrder(ctx context.Context, symbol string, quantity, limitPrice decimal.Decimal, tag string) (Ticket, error)
	PlaceStopLimitOrder(ctx context.Context, symbol string, quantity, stopPrice, limitPrice decimal.Decimal, tag string) (Ticket, error)

	// OpenOrders returns the orders the broker still works for symbol.
	OpenOrders(ctx context.Context, symbol string) ([]*model.Order, error)
	// OrderByID returns nil without error when the id is unknown.
	OrderByID(ctx context.Context, id int64) (*model.Order, error)
	OrderTicket(ctx context.Context, id int64) (Ticket, error)

	Holdings(ctx context.Context) ([]model.Holding, error)
	Cash(ctx context.Context, currency string) (decimal.Decimal, error)
}

// EventSource pushes order, trade and account events. The channel is closed
// when the source shuts down.
type EventSource interface {
	Events() <-chan model.Event
}

// Ticket is the handle returned by a submission.
type Ticket interface {
	ID() int64
	Status() enum.OrderStatus
	// Err is non-nil when the broker refused the request.
	Err() error
	Cancel(ctx context.Context, reason string) error
	Update(ctx context.Context, quantity, limitPrice decimal.Decimal) error
}
