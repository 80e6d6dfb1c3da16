package margin

import (
	"execcore/internal/model"

	"github.com/shopspring/decimal"
)

// SpotMarginModel is the variant with spot margin enabled. Spot shorts carry
// initial and maintenance margin and spot longs carry notional.
type SpotMarginModel struct {
	BaseModel
}

func NewSpotMarginModel(params *Parameters, quoteCurrency string) *SpotMarginModel {
	return &SpotMarginModel{
		BaseModel: BaseModel{
			params:        params,
			quoteCurrency: quoteCurrency,
			rules:         spotRules{params: params},
		},
	}
}

// IsAtRiskForLiquidation reports whether the weighted collateral falls to
// half the total maintenance margin or below. An account with neither
// collateral nor maintenance margin is not at risk.
func (m *SpotMarginModel) IsAtRiskForLiquidation(holdings []model.Holding, riskMultiplier decimal.Decimal) bool {
	validateRiskMultiplier(riskMultiplier)

	maintenance := m.totalMaintenanceMargin(holdings)
	collateral := m.GetCollateral(holdings, false).Mul(riskMultiplier)
	if maintenance.IsZero() && collateral.IsZero() {
		return false
	}
	return collateral.LessThanOrEqual(maintenance.Mul(autoCloseRatio))
}

func (m *SpotMarginModel) Evaluate(holdings []model.Holding, riskMultiplier decimal.Decimal) Verdict {
	return evaluate(m, &m.BaseModel, holdings, riskMultiplier)
}

// InitialMarginRequirement returns the per unit initial margin requirement
// of a spot holding: max(1.1/initialWeight - 1, imf * sqrt|q|).
func (m *SpotMarginModel) InitialMarginRequirement(h model.Holding) decimal.Decimal {
	return spotRules{params: m.params}.initialRequirement(h)
}

// MaintenanceMarginRequirement returns the per unit maintenance margin
// requirement of a spot holding: max(1.03/totalWeight - 1, 0.6 * imf * sqrt|q|).
func (m *SpotMarginModel) MaintenanceMarginRequirement(h model.Holding) decimal.Decimal {
	return spotRules{params: m.params}.maintenanceRequirement(h)
}

type spotRules struct {
	params *Parameters
}

func (r spotRules) initialMargin(h model.Holding) decimal.Decimal {
	if !h.IsSpot() {
		return baseRules{}.initialMargin(h)
	}
	if !h.Quantity.IsNegative() {
		return decimal.Zero
	}
	return r.initialRequirement(h).Mul(h.Notional())
}

func (r spotRules) maintenanceMargin(h model.Holding) decimal.Decimal {
	if !h.IsSpot() {
		return baseRules{}.maintenanceMargin(h)
	}
	if !h.Quantity.IsNegative() {
		return decimal.Zero
	}
	return r.maintenanceRequirement(h).Mul(h.Notional())
}

func (r spotRules) notional(h model.Holding) decimal.Decimal {
	if !h.IsSpot() {
		return baseRules{}.notional(h)
	}
	if !h.Quantity.IsPositive() {
		return decimal.Zero
	}
	return h.Notional()
}

func (r spotRules) initialRequirement(h model.Holding) decimal.Decimal {
	p, ok := r.params.Get(h.Asset)
	if !ok || p.InitialWeight.IsZero() {
		return h.InitialMarginRequirement
	}
	byWeight := spotInitialBase.Div(p.InitialWeight).Sub(one)
	bySize := p.IMFFactor.Mul(sqrt(h.AbsQuantity()))
	return decimal.Max(byWeight, bySize)
}

func (r spotRules) maintenanceRequirement(h model.Holding) decimal.Decimal {
	p, ok := r.params.Get(h.Asset)
	if !ok || p.TotalWeight.IsZero() {
		return h.MaintenanceMarginRequirement
	}
	byWeight := spotMaintenanceBase.Div(p.TotalWeight).Sub(one)
	bySize := spotMaintenanceIMFRate.Mul(p.IMFFactor).Mul(sqrt(h.AbsQuantity()))
	return decimal.Max(byWeight, bySize)
}
