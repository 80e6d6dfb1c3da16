package margin

// Factory owns one instance of each margin variant built from the same
// parameter set.
type Factory struct {
	params *Parameters
	base   *BaseModel
	spot   *SpotMarginModel
}

func NewFactory(params *Parameters, quoteCurrency string) *Factory {
	if params == nil {
		params = NewParameters()
	}
	return &Factory{
		params: params,
		base:   NewBaseModel(params, quoteCurrency),
		spot:   NewSpotMarginModel(params, quoteCurrency),
	}
}

// Model returns the spot margin variant when spotMarginEnabled is set.
func (f *Factory) Model(spotMarginEnabled bool) Model {
	if spotMarginEnabled {
		return f.spot
	}
	return f.base
}

// Parameters returns the shared parameter set. Updates through it are seen by
// both variants.
func (f *Factory) Parameters() *Parameters {
	return f.params
}
