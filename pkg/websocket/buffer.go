package websocket

import "execcore/pkg/exception"

const (
	defaultReceiveBufferSize = 4 << 10
	defaultMaxMessageSize    = 16 << 20
)

// receiveBuffer accumulates the parts of one inbound message. When a part
// fills the buffer it doubles rather than dropping the message.
type receiveBuffer struct {
	buf []byte
	n   int
	max int
}

func newReceiveBuffer(size, max int) *receiveBuffer {
	if size <= 0 {
		size = defaultReceiveBufferSize
	}
	if max < size {
		max = size
	}
	return &receiveBuffer{buf: make([]byte, size), max: max}
}

// space returns the unused tail of the buffer.
func (b *receiveBuffer) space() []byte {
	return b.buf[b.n:]
}

func (b *receiveBuffer) advance(n int) {
	b.n += n
}

func (b *receiveBuffer) full() bool {
	return b.n == len(b.buf)
}

// grow doubles the buffer, keeping the bytes read so far.
func (b *receiveBuffer) grow() error {
	if len(b.buf) >= b.max {
		return exception.ErrWebSocketFrameTooLarge
	}
	size := len(b.buf) * 2
	if size > b.max {
		size = b.max
	}
	next := make([]byte, size)
	copy(next, b.buf[:b.n])
	b.buf = next
	return nil
}

func (b *receiveBuffer) message() []byte {
	return b.buf[:b.n]
}

func (b *receiveBuffer) reset() {
	b.n = 0
}
