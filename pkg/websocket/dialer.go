package websocket

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/yanun0323/errors"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	closeGracePeriod        = time.Second
)

// GorillaDialer dials url with github.com/gorilla/websocket.
type GorillaDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func NewDialer(url string) *GorillaDialer {
	return &GorillaDialer{
		URL:              url,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
	}
}

func (d *GorillaDialer) Dial(ctx context.Context) (Conn, error) {
	dialer := gorilla.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}

	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrap(err, "dial websocket").With("url", d.URL)
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &gorillaConn{conn: conn, writeTimeout: writeTimeout}, nil
}

type gorillaConn struct {
	conn         *gorilla.Conn
	writeTimeout time.Duration

	// owned by the reader
	reader  io.Reader
	msgType MessageType

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *gorillaConn) Read(ctx context.Context, dst []byte) (int, MessageType, bool, error) {
	if c.reader == nil {
		mt, r, err := c.conn.NextReader()
		if err != nil {
			if _, ok := err.(*gorilla.CloseError); ok {
				return 0, MessageClose, true, nil
			}
			return 0, 0, false, err
		}
		c.reader, c.msgType = r, MessageType(mt)
	}

	n, err := io.ReadFull(c.reader, dst)
	switch err {
	case nil:
		return n, c.msgType, false, nil
	case io.EOF, io.ErrUnexpectedEOF:
		c.reader = nil
		return n, c.msgType, true, nil
	default:
		c.reader = nil
		return n, c.msgType, false, err
	}
}

func (c *gorillaConn) Write(ctx context.Context, msgType MessageType, payload []byte) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.writeTimeout)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(int(msgType), payload)
}

func (c *gorillaConn) Close(code CloseCode, reason string) error {
	c.closeOnce.Do(func() {
		msg := gorilla.FormatCloseMessage(int(code), reason)
		_ = c.conn.WriteControl(gorilla.CloseMessage, msg, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
