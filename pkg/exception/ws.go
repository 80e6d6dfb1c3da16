package exception

import "github.com/yanun0323/errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketSilence         = errors.New("websocket: no inbound message within silence timeout")
)

var (
	ErrWebSocketNilDialer     = errors.New("websocket: nil dialer")
	ErrWebSocketNilHandler    = errors.New("websocket: nil handler")
	ErrWebSocketNotConnected  = errors.New("websocket: not connected")
	ErrWebSocketQueueFull     = errors.New("websocket: outbound queue full")
	ErrWebSocketFrameTooLarge = errors.New("websocket: message exceeds max size")
)
