package model

import (
	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
)

// Holding is one line of the account's holdings as seen by the margin engine.
type Holding struct {
	Symbol        string
	Asset         string
	QuoteCurrency string
	Kind          enum.SecurityKind
	Quantity      decimal.Decimal
	Price         decimal.Decimal

	// InitialMarginRequirement and MaintenanceMarginRequirement are fractions
	// of notional, reported per futures contract.
	InitialMarginRequirement     decimal.Decimal
	MaintenanceMarginRequirement decimal.Decimal
}

func (h Holding) IsSpot() bool {
	return h.Kind == enum.SecurityKindSpot
}

func (h Holding) IsFutures() bool {
	return h.Kind == enum.SecurityKindFutures
}

// AbsQuantity returns |quantity|.
func (h Holding) AbsQuantity() decimal.Decimal {
	return h.Quantity.Abs()
}

// Notional returns |quantity| x price.
func (h Holding) Notional() decimal.Decimal {
	return h.Quantity.Abs().Mul(h.Price)
}
