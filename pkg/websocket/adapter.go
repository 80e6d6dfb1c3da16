package websocket

import "context"

// Conn is a minimal interface for a WebSocket connection.
type Conn interface {
	// Read copies the next part of the current message into dst. fin reports
	// whether the message is complete; a partial read fills dst entirely.
	// A close frame from the peer is reported as MessageClose.
	Read(ctx context.Context, dst []byte) (n int, msgType MessageType, fin bool, err error)
	Write(ctx context.Context, msgType MessageType, payload []byte) error
	// Close sends a close frame with code and releases the transport. It is
	// safe to call more than once.
	Close(code CloseCode, reason string) error
}

// Dialer creates new connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Handler receives every complete text or binary message. payload is only
// valid for the duration of the call.
type Handler func(msgType MessageType, payload []byte)

// Recorder counts connection activity. obs.Metrics implements it.
type Recorder interface {
	IncReconnect()
	IncFrame()
}
