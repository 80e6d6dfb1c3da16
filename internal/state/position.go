package state

import (
	"sync"

	"execcore/internal/model"
	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Tracker holds the virtual position of one symbol: the broker-confirmed
// quantity projected forward by in-flight orders.
type Tracker struct {
	symbol string

	mu        sync.Mutex
	virtual   decimal.Decimal
	confirmed decimal.Decimal
}

func NewTracker(symbol string) *Tracker {
	return &Tracker{symbol: symbol}
}

func (t *Tracker) Symbol() string {
	return t.symbol
}

// AddPosition projects quantity at submission time, before any fill.
func (t *Tracker) AddPosition(quantity decimal.Decimal) {
	t.mu.Lock()
	t.virtual = t.virtual.Add(quantity)
	t.mu.Unlock()
}

// ManagePosition records the broker-reported position. It does not correct
// the virtual position.
func (t *Tracker) ManagePosition(current decimal.Decimal) {
	t.mu.Lock()
	t.confirmed = current
	t.mu.Unlock()
}

// UpdatePosition folds an order event into the virtual position. A terminal
// status undoes the projection made by AddPosition; a fill adds the executed
// quantity. A terminal fill applies both, leaving exactly the realized fill.
// Stop-limit orders are never projected and are ignored here.
func (t *Tracker) UpdatePosition(event model.OrderEvent, order *model.Order) {
	if order == nil || order.Kind == enum.OrderKindStopLimit {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Status {
	case enum.OrderStatusCanceled, enum.OrderStatusInvalid, enum.OrderStatusFilled:
		t.virtual = t.virtual.Sub(order.Quantity)
	}

	if !event.FillQuantity.IsZero() {
		t.virtual = t.virtual.Add(event.FillQuantity)
	}
}

// CheckPosition reports whether the virtual position equals the confirmed one.
func (t *Tracker) CheckPosition() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.virtual.Equal(t.confirmed)
}

// Position returns the virtual position.
func (t *Tracker) Position() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.virtual
}

// Confirmed returns the last broker-reported position.
func (t *Tracker) Confirmed() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.confirmed
}

func (t *Tracker) entry() PositionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return PositionEntry{
		Symbol:    t.symbol,
		Virtual:   t.virtual,
		Confirmed: t.confirmed,
	}
}
