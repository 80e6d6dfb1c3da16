package exception

import "github.com/yanun0323/errors"

var (
	ErrMarginUnknownAsset   = errors.New("margin: unknown asset")
	ErrMarginUpdateConflict = errors.New("margin: concurrent parameter update")
	ErrMarginInvalidRow     = errors.New("margin: invalid parameter row")
)
