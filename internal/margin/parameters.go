package margin

import (
	"sort"

	"execcore/internal/syncmap"
	"execcore/pkg/exception"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
)

// CollateralParameter holds the risk weights of one asset.
type CollateralParameter struct {
	Asset         string
	InitialWeight decimal.Decimal
	TotalWeight   decimal.Decimal
	IMFFactor     decimal.Decimal
}

// Weight returns the initial weight when isInitial is set, otherwise the
// total (maintenance) weight.
func (p CollateralParameter) Weight(isInitial bool) decimal.Decimal {
	if isInitial {
		return p.InitialWeight
	}
	return p.TotalWeight
}

// Parameters is the per-asset parameter set shared by every margin model.
// Records are never mutated; an update swaps in a modified copy.
type Parameters struct {
	m syncmap.Map[string, *CollateralParameter]
}

func NewParameters(params ...CollateralParameter) *Parameters {
	p := &Parameters{}
	for i := range params {
		cp := params[i]
		p.m.Store(cp.Asset, &cp)
	}
	return p
}

func (p *Parameters) Get(asset string) (CollateralParameter, bool) {
	if p == nil {
		return CollateralParameter{}, false
	}
	v, ok := p.m.Load(asset)
	if !ok {
		return CollateralParameter{}, false
	}
	return *v, true
}

func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return p.m.Len()
}

// All returns a copy of every parameter ordered by asset.
func (p *Parameters) All() []CollateralParameter {
	if p == nil {
		return nil
	}
	entries := p.m.Snapshot()
	result := make([]CollateralParameter, 0, len(entries))
	for _, e := range entries {
		result = append(result, *e.Value)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Asset < result[j].Asset
	})
	return result
}

// TryUpdateCollateralParameters replaces the total weight of asset. An
// unknown asset is logged and ignored. It reports whether the update landed.
func (p *Parameters) TryUpdateCollateralParameters(asset string, totalWeight decimal.Decimal) bool {
	current, ok := p.m.Load(asset)
	if !ok {
		logs.Errorf("update collateral parameter of %s, err: %+v", asset, exception.ErrMarginUnknownAsset)
		return false
	}
	return p.replace(asset, current, totalWeight)
}

func (p *Parameters) replace(asset string, current *CollateralParameter, totalWeight decimal.Decimal) bool {
	next := *current
	next.TotalWeight = totalWeight
	if !p.m.CompareAndSwap(asset, current, &next) {
		logs.Errorf("update collateral parameter of %s, err: %+v", asset, exception.ErrMarginUpdateConflict)
		return false
	}
	return true
}
