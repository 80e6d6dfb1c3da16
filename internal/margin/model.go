// Package margin computes collateral, margin fraction and liquidation risk
// from a holdings snapshot and per-asset collateral parameters.
package margin

import (
	"math"

	"execcore/internal/model"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

var (
	one = decimal.NewFromInt(1)

	// base liquidation rule
	marginFractionAdjustment = decimal.RequireFromString("0.002")
	usdPositionFloor         = decimal.NewFromInt(-30000)
	usdCollateralRatio       = decimal.NewFromInt(4)

	// spot margin rule
	autoCloseRatio         = decimal.RequireFromString("0.5")
	spotInitialBase        = decimal.RequireFromString("1.1")
	spotMaintenanceBase    = decimal.RequireFromString("1.03")
	spotMaintenanceIMFRate = decimal.RequireFromString("0.6")
)

// Model is a margin model of one exchange variant.
type Model interface {
	GetCollateral(holdings []model.Holding, isInitial bool) decimal.Decimal
	GetAvailableCollateral(holdings []model.Holding) decimal.Decimal
	CalculateMarginFraction(holdings []model.Holding, isInitial bool) decimal.Decimal
	IsAtRiskForLiquidation(holdings []model.Holding, riskMultiplier decimal.Decimal) bool

	InitialMargin(h model.Holding) decimal.Decimal
	MaintenanceMargin(h model.Holding) decimal.Decimal
	Notional(h model.Holding) decimal.Decimal

	Evaluate(holdings []model.Holding, riskMultiplier decimal.Decimal) Verdict
}

// Verdict bundles the figures of one evaluation.
type Verdict struct {
	Collateral          decimal.Decimal
	AvailableCollateral decimal.Decimal
	MarginFraction      decimal.Decimal
	MaintenanceMargin   decimal.Decimal
	AtRisk              bool
}

// rules are the per-holding formulas that differ between variants.
type rules interface {
	initialMargin(h model.Holding) decimal.Decimal
	maintenanceMargin(h model.Holding) decimal.Decimal
	notional(h model.Holding) decimal.Decimal
}

// BaseModel is the variant without spot margin. Spot holdings carry no
// margin and no notional.
type BaseModel struct {
	params        *Parameters
	quoteCurrency string
	rules         rules
}

func NewBaseModel(params *Parameters, quoteCurrency string) *BaseModel {
	return &BaseModel{
		params:        params,
		quoteCurrency: quoteCurrency,
		rules:         baseRules{},
	}
}

// GetCollateral sums quantity x weight over spot holdings quoted in the
// model's quote currency whose asset has parameters. Quantities are expected
// in collateral units; price does not enter.
func (m *BaseModel) GetCollateral(holdings []model.Holding, isInitial bool) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(m.collateral(h, isInitial))
	}
	return total
}

func (m *BaseModel) collateral(h model.Holding, isInitial bool) decimal.Decimal {
	if !h.IsSpot() || h.QuoteCurrency != m.quoteCurrency {
		return decimal.Zero
	}
	p, ok := m.params.Get(h.Asset)
	if !ok {
		return decimal.Zero
	}
	return h.Quantity.Mul(p.Weight(isInitial))
}

func (m *BaseModel) GetAvailableCollateral(holdings []model.Holding) decimal.Decimal {
	available := m.GetCollateral(holdings, true)
	for _, h := range holdings {
		available = available.Sub(m.rules.initialMargin(h))
	}
	return available
}

// CalculateMarginFraction returns collateral over total notional, or zero
// when there is no notional.
func (m *BaseModel) CalculateMarginFraction(holdings []model.Holding, isInitial bool) decimal.Decimal {
	notional := m.totalNotional(holdings)
	if notional.IsZero() {
		return decimal.Zero
	}
	return m.GetCollateral(holdings, isInitial).Div(notional)
}

// IsAtRiskForLiquidation reports whether any of the margin fraction, USD
// floor or USD to net collateral rules trips.
func (m *BaseModel) IsAtRiskForLiquidation(holdings []model.Holding, riskMultiplier decimal.Decimal) bool {
	validateRiskMultiplier(riskMultiplier)

	notional := m.totalNotional(holdings)
	if !notional.IsZero() {
		fraction := m.GetCollateral(holdings, false).Mul(riskMultiplier).Div(notional)
		threshold := m.totalMaintenanceMargin(holdings).Div(notional).Add(marginFractionAdjustment)
		if fraction.LessThanOrEqual(threshold) {
			return true
		}
	}

	usd := m.usdPosition(holdings)
	if usd.LessThanOrEqual(usdPositionFloor) {
		return true
	}

	// only borrowed quote currency counts against net collateral
	if usd.IsNegative() && usd.LessThanOrEqual(m.netCollateral(holdings).Mul(usdCollateralRatio).Neg()) {
		return true
	}

	return false
}

func (m *BaseModel) InitialMargin(h model.Holding) decimal.Decimal {
	return m.rules.initialMargin(h)
}

func (m *BaseModel) MaintenanceMargin(h model.Holding) decimal.Decimal {
	return m.rules.maintenanceMargin(h)
}

func (m *BaseModel) Notional(h model.Holding) decimal.Decimal {
	return m.rules.notional(h)
}

func (m *BaseModel) Evaluate(holdings []model.Holding, riskMultiplier decimal.Decimal) Verdict {
	return evaluate(m, m, holdings, riskMultiplier)
}

func (m *BaseModel) totalNotional(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(m.rules.notional(h))
	}
	return total
}

func (m *BaseModel) totalMaintenanceMargin(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		total = total.Add(m.rules.maintenanceMargin(h))
	}
	return total
}

// usdPosition is the signed quantity held in the quote currency itself.
func (m *BaseModel) usdPosition(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		if h.IsSpot() && h.Asset == m.quoteCurrency {
			total = total.Add(h.Quantity)
		}
	}
	return total
}

// netCollateral is the maintenance collateral of everything except the quote
// currency.
func (m *BaseModel) netCollateral(holdings []model.Holding) decimal.Decimal {
	total := decimal.Zero
	for _, h := range holdings {
		if h.Asset == m.quoteCurrency {
			continue
		}
		total = total.Add(m.collateral(h, false))
	}
	return total
}

func evaluate(m Model, base *BaseModel, holdings []model.Holding, riskMultiplier decimal.Decimal) Verdict {
	return Verdict{
		Collateral:          m.GetCollateral(holdings, false),
		AvailableCollateral: m.GetAvailableCollateral(holdings),
		MarginFraction:      m.CalculateMarginFraction(holdings, false),
		MaintenanceMargin:   base.totalMaintenanceMargin(holdings),
		AtRisk:              m.IsAtRiskForLiquidation(holdings, riskMultiplier),
	}
}

func validateRiskMultiplier(riskMultiplier decimal.Decimal) {
	if !riskMultiplier.IsPositive() || riskMultiplier.GreaterThan(one) {
		logs.Errorf("invalid risk multiplier %s, expected (0, 1]", riskMultiplier)
	}
}

type baseRules struct{}

func (baseRules) initialMargin(h model.Holding) decimal.Decimal {
	if !h.IsFutures() {
		return decimal.Zero
	}
	return h.Notional().Mul(h.InitialMarginRequirement)
}

func (baseRules) maintenanceMargin(h model.Holding) decimal.Decimal {
	if !h.IsFutures() {
		return decimal.Zero
	}
	return h.Notional().Mul(h.MaintenanceMarginRequirement)
}

func (baseRules) notional(h model.Holding) decimal.Decimal {
	if !h.IsFutures() {
		return decimal.Zero
	}
	return h.Notional()
}

func sqrt(d decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(math.Sqrt(d.InexactFloat64()))
}
