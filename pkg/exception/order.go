package exception

import "github.com/yanun0323/errors"

var (
	ErrOrderUnsupportedKind = errors.New("order: unsupported kind")
	ErrOrderNilBrokerage    = errors.New("order: nil brokerage")
	ErrOrderUnknown         = errors.New("order: unknown order id")
	ErrOrderSymbolMismatch  = errors.New("order: symbol mismatch")
	ErrOrderRejected        = errors.New("order: rejected by broker")
	ErrOrderNotOpen         = errors.New("order: order is not open")
	ErrOrderEmptyQuantity   = errors.New("order: empty quantity")
)
