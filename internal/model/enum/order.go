package enum

// OrderKind market, limit, stop limit
type OrderKind uint8

const (
	_order_kind_beg OrderKind = iota
	OrderKindMarket
	OrderKindLimit
	OrderKindStopLimit
	_order_kind_end
)

func (k OrderKind) IsAvailable() bool {
	return k > _order_kind_beg && k < _order_kind_end
}

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "market"
	case OrderKindLimit:
		return "limit"
	case OrderKindStopLimit:
		return "stop_limit"
	default:
		return "unknown"
	}
}

// OrderStatus new, submitted, partially filled, filled, canceled, invalid, cancel pending, update submitted
type OrderStatus uint8

const (
	_order_status_beg OrderStatus = iota
	OrderStatusNew
	OrderStatusSubmitted
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusInvalid
	OrderStatusCancelPending
	OrderStatusUpdateSubmitted
	_order_status_end
)

func (s OrderStatus) IsAvailable() bool {
	return s > _order_status_beg && s < _order_status_end
}

// IsTerminal reports whether no further transition can follow s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusInvalid:
		return true
	default:
		return false
	}
}

// IsOpen reports whether the broker still works the order.
func (s OrderStatus) IsOpen() bool {
	return s.IsAvailable() && !s.IsTerminal()
}

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusNew:
		return "new"
	case OrderStatusSubmitted:
		return "submitted"
	case OrderStatusPartiallyFilled:
		return "partially_filled"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCanceled:
		return "canceled"
	case OrderStatusInvalid:
		return "invalid"
	case OrderStatusCancelPending:
		return "cancel_pending"
	case OrderStatusUpdateSubmitted:
		return "update_submitted"
	default:
		return "unknown"
	}
}
