package enum

// SecurityKind spot, futures
type SecurityKind uint8

const (
	_security_kind_beg SecurityKind = iota
	SecurityKindSpot
	SecurityKindFutures
	_security_kind_end
)

func (k SecurityKind) IsAvailable() bool {
	return k > _security_kind_beg && k < _security_kind_end
}
