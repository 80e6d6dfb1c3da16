package margin

import (
	"testing"

	"execcore/internal/model"
	"execcore/internal/model/enum"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usd = "USD"

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func btcParameters(imf string) *Parameters {
	return NewParameters(
		CollateralParameter{Asset: "BTC", InitialWeight: d("0.95"), TotalWeight: d("0.90"), IMFFactor: d(imf)},
		CollateralParameter{Asset: usd, InitialWeight: d("1"), TotalWeight: d("1"), IMFFactor: d("0")},
	)
}

func spot(asset, quantity, price string) model.Holding {
	return model.Holding{
		Symbol:        asset + "/" + usd,
		Asset:         asset,
		QuoteCurrency: usd,
		Kind:          enum.SecurityKindSpot,
		Quantity:      d(quantity),
		Price:         d(price),
	}
}

func futures(asset, quantity, price, imr, mmr string) model.Holding {
	return model.Holding{
		Symbol:                       asset + "-PERP",
		Asset:                        asset,
		QuoteCurrency:                usd,
		Kind:                         enum.SecurityKindFutures,
		Quantity:                     d(quantity),
		Price:                        d(price),
		InitialMarginRequirement:     d(imr),
		MaintenanceMarginRequirement: d(mmr),
	}
}

func TestSpotShortInitialMargin(t *testing.T) {
	m := NewSpotMarginModel(btcParameters("0.002"), usd)
	h := spot("BTC", "-10", "50000")

	imr := m.InitialMarginRequirement(h)
	assert.Equal(t, "0.157895", imr.StringFixed(6))

	margin := m.InitialMargin(h)
	assert.Equal(t, "78947.37", margin.StringFixed(2))
}

func TestSpotLongCarriesNotionalOnly(t *testing.T) {
	m := NewSpotMarginModel(btcParameters("0.002"), usd)
	h := spot("BTC", "10", "50000")

	assert.True(t, m.InitialMargin(h).IsZero())
	assert.True(t, m.MaintenanceMargin(h).IsZero())
	assert.True(t, m.Notional(h).Equal(d("500000")))

	short := spot("BTC", "-10", "50000")
	assert.True(t, m.Notional(short).IsZero())
}

func TestSpotRequirementSizeTermDominates(t *testing.T) {
	m := NewSpotMarginModel(btcParameters("0.1"), usd)
	h := spot("BTC", "-100", "1")

	// 0.1 * sqrt(100) = 1 > 1.1/0.95 - 1
	assert.Equal(t, "1.000000", m.InitialMarginRequirement(h).StringFixed(6))
	// 0.6 * 0.1 * 10 = 0.6 > 1.03/0.9 - 1
	assert.Equal(t, "0.600000", m.MaintenanceMarginRequirement(h).StringFixed(6))
}

func TestInitialRequirementMonotonicInIMF(t *testing.T) {
	h := spot("BTC", "-250", "100")
	prev := decimal.Zero
	for _, imf := range []string{"0", "0.001", "0.002", "0.01", "0.02", "0.05", "0.1", "1"} {
		req := NewSpotMarginModel(btcParameters(imf), usd).InitialMarginRequirement(h)
		assert.True(t, req.GreaterThanOrEqual(prev), "imf %s: %s < %s", imf, req, prev)
		prev = req
	}
}

func TestBaseModelSpotCarriesNoMargin(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	h := spot("BTC", "-10", "50000")

	assert.True(t, m.InitialMargin(h).IsZero())
	assert.True(t, m.Notional(h).IsZero())
}

func TestGetCollateralFilters(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	holdings := []model.Holding{
		spot("BTC", "2", "100"),
		spot(usd, "1000", "1"),
		spot("DOGE", "1000", "1"),
		futures("BTC", "1", "100", "0.05", "0.03"),
		{Asset: "BTC", QuoteCurrency: "EUR", Kind: enum.SecurityKindSpot, Quantity: d("1"), Price: d("100")},
	}

	// 2 * 0.95 + 1000
	assert.True(t, m.GetCollateral(holdings, true).Equal(d("1001.9")))
	// 2 * 0.90 + 1000
	assert.True(t, m.GetCollateral(holdings, false).Equal(d("1001.8")))
}

func TestAvailableCollateralAndFraction(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	holdings := []model.Holding{
		spot(usd, "10000", "1"),
		futures("BTC", "-2", "1000", "0.1", "0.05"),
	}

	// 10000 - 2 * 1000 * 0.1
	assert.True(t, m.GetAvailableCollateral(holdings).Equal(d("9800")))
	// 10000 / 2000
	assert.True(t, m.CalculateMarginFraction(holdings, false).Equal(d("5")))
	assert.True(t, m.CalculateMarginFraction(holdings[:1], false).IsZero())
}

func TestBaseLiquidationUSDFloor(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	// net collateral 9000 keeps the ratio rule above -36000
	btc := spot("BTC", "10000", "50000")

	cases := []struct {
		usd    string
		atRisk bool
	}{
		{"-30000.01", true},
		{"-30000", true},
		{"-29999.99", false},
		{"0", false},
	}

	for _, c := range cases {
		holdings := []model.Holding{btc, spot(usd, c.usd, "1")}
		assert.Equal(t, c.atRisk, m.IsAtRiskForLiquidation(holdings, d("1")), c.usd)
	}
}

func TestBaseLiquidationNetCollateralRatio(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	// net collateral 100 * 0.9 = 90, limit -360
	btc := spot("BTC", "100", "1000")

	assert.True(t, m.IsAtRiskForLiquidation([]model.Holding{btc, spot(usd, "-360", "1")}, d("1")))
	assert.False(t, m.IsAtRiskForLiquidation([]model.Holding{btc, spot(usd, "-359", "1")}, d("1")))
}

func TestBaseLiquidationMarginFraction(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	perp := futures("BTC", "1", "10000", "0.1", "0.03")

	// fraction 0.0321 vs threshold 0.032
	healthy := []model.Holding{spot(usd, "321", "1"), perp}
	assert.False(t, m.IsAtRiskForLiquidation(healthy, d("1")))

	thin := []model.Holding{spot(usd, "320", "1"), perp}
	assert.True(t, m.IsAtRiskForLiquidation(thin, d("1")))

	// multiplier scales collateral down
	assert.True(t, m.IsAtRiskForLiquidation(healthy, d("0.5")))
}

func TestEmptyAccountNotAtRisk(t *testing.T) {
	f := NewFactory(btcParameters("0.002"), usd)
	assert.False(t, f.Model(false).IsAtRiskForLiquidation(nil, d("1")))
	assert.False(t, f.Model(true).IsAtRiskForLiquidation(nil, d("1")))
}

func TestInvalidRiskMultiplierStillEvaluates(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)
	holdings := []model.Holding{spot(usd, "-40000", "1")}

	assert.True(t, m.IsAtRiskForLiquidation(holdings, d("0")))
	assert.True(t, m.IsAtRiskForLiquidation(holdings, d("1.5")))
}

func TestSpotMarginAutoClose(t *testing.T) {
	m := NewSpotMarginModel(btcParameters("0.002"), usd)
	short := spot("BTC", "-10", "50000")
	mmr := m.MaintenanceMarginRequirement(short)
	maintenance := mmr.Mul(d("500000"))
	require.True(t, maintenance.Equal(m.MaintenanceMargin(short)))

	// collateral exactly half the maintenance margin
	cash := maintenance.Mul(d("0.5")).Add(short.Quantity.Mul(d("0.9")).Neg())
	holdings := []model.Holding{short, spot(usd, cash.String(), "1")}
	assert.True(t, m.IsAtRiskForLiquidation(holdings, d("1")))

	richer := []model.Holding{short, spot(usd, cash.Add(d("1")).String(), "1")}
	assert.False(t, m.IsAtRiskForLiquidation(richer, d("1")))
}

func TestEvaluateVerdict(t *testing.T) {
	f := NewFactory(btcParameters("0.002"), usd)
	holdings := []model.Holding{spot(usd, "-40000", "1"), spot("BTC", "50000", "1")}

	v := f.Model(false).Evaluate(holdings, d("1"))
	assert.True(t, v.AtRisk)
	assert.True(t, v.Collateral.Equal(d("5000")))

	v = f.Model(true).Evaluate(holdings, d("1"))
	assert.False(t, v.AtRisk)
	assert.True(t, v.MarginFraction.Equal(d("0.1")))
}

func TestFactoryReturnsSameInstances(t *testing.T) {
	f := NewFactory(nil, usd)
	assert.Same(t, f.Model(true), f.Model(true))
	assert.Same(t, f.Model(false), f.Model(false))
	assert.NotSame(t, f.Model(true), f.Model(false))
	assert.Equal(t, 0, f.Parameters().Len())
}

func TestCollateralIgnoresPrice(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)

	cheap := []model.Holding{spot("BTC", "2", "100")}
	dear := []model.Holding{spot("BTC", "2", "50000")}

	assert.True(t, m.GetCollateral(cheap, true).Equal(d("1.9")))
	assert.True(t, m.GetCollateral(dear, true).Equal(d("1.9")))
	assert.True(t, m.GetCollateral(cheap, false).Equal(d("1.8")))
}

func TestBaseNetCollateralRuleNeedsBorrowedQuote(t *testing.T) {
	m := NewBaseModel(btcParameters("0.002"), usd)

	// no quote position and no net collateral
	assert.False(t, m.IsAtRiskForLiquidation([]model.Holding{spot(usd, "0", "1")}, d("1")))
	// any borrowing without net collateral trips the ratio rule
	assert.True(t, m.IsAtRiskForLiquidation([]model.Holding{spot(usd, "-1", "1")}, d("1")))
}

func TestSpotAutoCloseWithoutMaintenance(t *testing.T) {
	params := NewParameters(
		CollateralParameter{Asset: "XYZ", InitialWeight: d("1.1"), TotalWeight: d("1.1"), IMFFactor: d("0")},
	)
	m := NewSpotMarginModel(params, usd)
	short := spot("XYZ", "-5", "10")
	require.True(t, m.MaintenanceMargin(short).IsZero())

	// collateral -5.5 against a zero threshold
	assert.True(t, m.IsAtRiskForLiquidation([]model.Holding{short}, d("1")))
	assert.False(t, m.IsAtRiskForLiquidation([]model.Holding{spot("XYZ", "5", "10")}, d("1")))
	assert.False(t, m.IsAtRiskForLiquidation(nil, d("1")))
}
