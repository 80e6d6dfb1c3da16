package enum

// EventKind order status changed, trade occurred, account changed
type EventKind uint8

const (
	_event_kind_beg EventKind = iota
	EventKindOrderStatus
	EventKindTrade
	EventKindAccount
	_event_kind_end
)

func (k EventKind) IsAvailable() bool {
	return k > _event_kind_beg && k < _event_kind_end
}
