package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"execcore/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPingInterval   = 15 * time.Second
	DefaultSilenceTimeout = 30 * time.Second
	DefaultReconnectDelay = time.Second
	defaultWriteQueueSize = 256
)

// Option configures an Engine.
type Option struct {
	// PingInterval is the heartbeat period. Optional; default 15s.
	PingInterval time.Duration
	// SilenceTimeout closes the session when nothing arrives for this long.
	// Optional; default 30s.
	SilenceTimeout time.Duration
	// ReconnectDelay is the fixed wait between sessions. Optional; default 1s.
	// Ignored when Backoff is set.
	ReconnectDelay time.Duration
	// Backoff overrides the fixed reconnect delay.
	Backoff *Backoff
	// ReceiveBufferSize is the initial receive buffer. Optional; default 4KiB.
	ReceiveBufferSize int
	// MaxMessageSize caps buffer growth. Optional; default 16MiB.
	MaxMessageSize int
	// WriteQueueSize bounds the outbound queue. Optional; default 256.
	WriteQueueSize int
	WriteOverflow  OverflowPolicy
	// Heartbeat builds the ping payload. Optional; default PingRequest.
	Heartbeat func() []byte
	// OnConnect runs once per session before anything else is written, for
	// example to log in. Frames it sends are written after it returns, so with
	// OverflowBlock it must not send more than WriteQueueSize frames.
	OnConnect func(ctx context.Context, e *Engine) error
	// OnDisconnect receives the error that ended the session.
	OnDisconnect func(err error)
	// Recorder is optional.
	Recorder Recorder
}

// Engine keeps one logical session to an endpoint alive. Each session runs
// receive, send and activity-check loops until one of them fails; the
// session is then closed and redialed after the reconnect delay.
type Engine struct {
	dialer  Dialer
	handler Handler
	opt     Option
	backoff Backoff

	writer        *writer
	subscriptions *subscriptions

	state       atomic.Int32
	lastInbound atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(dialer Dialer, handler Handler, option ...Option) (*Engine, error) {
	if dialer == nil {
		return nil, exception.ErrWebSocketNilDialer
	}
	if handler == nil {
		return nil, exception.ErrWebSocketNilHandler
	}

	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	if opt.PingInterval <= 0 {
		opt.PingInterval = DefaultPingInterval
	}
	if opt.SilenceTimeout <= 0 {
		opt.SilenceTimeout = DefaultSilenceTimeout
	}
	if opt.ReconnectDelay <= 0 {
		opt.ReconnectDelay = DefaultReconnectDelay
	}
	if opt.ReceiveBufferSize <= 0 {
		opt.ReceiveBufferSize = defaultReceiveBufferSize
	}
	if opt.MaxMessageSize <= 0 {
		opt.MaxMessageSize = defaultMaxMessageSize
	}
	if opt.WriteQueueSize <= 0 {
		opt.WriteQueueSize = defaultWriteQueueSize
	}
	if opt.Heartbeat == nil {
		opt.Heartbeat = PingRequest
	}

	backoff := FixedBackoff(opt.ReconnectDelay)
	if opt.Backoff != nil {
		backoff = *opt.Backoff
	}

	return &Engine{
		dialer:        dialer,
		handler:       handler,
		opt:           opt,
		backoff:       backoff,
		writer:        newWriter(opt.WriteQueueSize, opt.WriteOverflow),
		subscriptions: newSubscriptions(),
	}, nil
}

// Start runs the engine in the background. Calling Start on a running engine
// does nothing.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	e.cancel, e.done = cancel, done

	go func() {
		defer close(done)
		if err := e.Run(ctx); err != nil && err != context.Canceled {
			logs.Errorf("websocket engine stopped, err: %+v", err)
		}
	}()
}

// Stop cancels the engine and blocks until the run loop has exited. Calling
// Stop on a stopped engine does nothing.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run dials and serves sessions until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	defer e.setState(StateDisconnected)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.setState(StateConnecting)
		conn, err := e.dialer.Dial(ctx)
		if err != nil {
			e.setState(StateDisconnected)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			attempt++
			logs.Errorf("dial websocket, attempt %d, err: %+v", attempt, err)
			e.backoff.sleep(ctx, attempt)
			continue
		}

		attempt = 0
		e.touch()
		e.writer.setConnected(true)
		e.setState(StateOpen)

		err = e.serve(ctx, conn)

		e.setState(StateClosing)
		e.writer.setConnected(false)
		if closeErr := conn.Close(CloseNormal, ""); closeErr != nil {
			logs.Debugf("close websocket, err: %+v", closeErr)
		}
		e.writer.drain()
		e.setState(StateDisconnected)

		if e.opt.OnDisconnect != nil {
			e.opt.OnDisconnect(err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		logs.Warnf("websocket session ended, reconnect in %s, err: %+v", e.backoff.Next(1), err)
		if e.opt.Recorder != nil {
			e.opt.Recorder.IncReconnect()
		}
		e.backoff.sleep(ctx, 1)
	}
}

// serve runs the three session activities and returns the first error.
func (e *Engine) serve(ctx context.Context, conn Conn) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.receive(gctx, conn)
	})
	g.Go(func() error {
		return e.send(gctx, conn)
	})
	g.Go(func() error {
		return e.checkActivity(gctx)
	})
	g.Go(func() error {
		// unblocks a Read that does not observe ctx
		<-gctx.Done()
		_ = conn.Close(CloseNormal, "")
		return nil
	})

	return g.Wait()
}

func (e *Engine) receive(ctx context.Context, conn Conn) error {
	buf := newReceiveBuffer(e.opt.ReceiveBufferSize, e.opt.MaxMessageSize)
	for {
		n, msgType, fin, err := conn.Read(ctx, buf.space())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "read websocket")
		}
		e.touch()
		buf.advance(n)

		if !fin {
			if buf.full() {
				if err := buf.grow(); err != nil {
					return err
				}
			}
			continue
		}

		switch msgType {
		case MessageClose:
			return exception.ErrWebSocketConnectionClose
		case MessageText, MessageBinary:
			e.handler(msgType, buf.message())
			if e.opt.Recorder != nil {
				e.opt.Recorder.IncFrame()
			}
		}
		buf.reset()
	}
}

func (e *Engine) send(ctx context.Context, conn Conn) error {
	if e.opt.OnConnect != nil {
		if err := e.opt.OnConnect(ctx, e); err != nil {
			return errors.Wrap(err, "on connect")
		}
	}

	if err := e.flush(ctx, conn); err != nil {
		return err
	}
	for _, sub := range e.subscriptions.list() {
		payload, err := SubscribeRequest(sub.Channel, sub.Market)
		if err != nil {
			return errors.Wrap(err, "encode subscribe")
		}
		if err := conn.Write(ctx, MessageText, payload); err != nil {
			return errors.Wrap(err, "write subscribe")
		}
	}

	ticker := time.NewTicker(e.opt.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-e.writer.queue:
			if err := conn.Write(ctx, frame.msgType, frame.payload); err != nil {
				return errors.Wrap(err, "write websocket")
			}
		case <-ticker.C:
			if err := conn.Write(ctx, MessageText, e.opt.Heartbeat()); err != nil {
				return errors.Wrap(err, "write heartbeat")
			}
		}
	}
}

// flush writes whatever is queued right now.
func (e *Engine) flush(ctx context.Context, conn Conn) error {
	for {
		select {
		case frame := <-e.writer.queue:
			if err := conn.Write(ctx, frame.msgType, frame.payload); err != nil {
				return errors.Wrap(err, "write websocket")
			}
		default:
			return nil
		}
	}
}

// checkActivity fails once nothing has arrived for SilenceTimeout.
func (e *Engine) checkActivity(ctx context.Context) error {
	timer := time.NewTimer(e.opt.SilenceTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		silent := time.Since(time.Unix(0, e.lastInbound.Load()))
		if silent >= e.opt.SilenceTimeout {
			logs.Warnf("websocket silent for %s, force reconnect", silent)
			return exception.ErrWebSocketSilence
		}
		timer.Reset(e.opt.SilenceTimeout - silent)
	}
}

// Send queues a text message. It fails when no session is open or the queue
// rejects the message.
func (e *Engine) Send(payload []byte) error {
	return e.SendMessage(MessageText, payload)
}

func (e *Engine) SendMessage(msgType MessageType, payload []byte) error {
	if !e.writer.connected.Load() {
		return exception.ErrWebSocketNotConnected
	}
	if !e.writer.send(msgType, payload) {
		return exception.ErrWebSocketQueueFull
	}
	return nil
}

// SendJSON marshals v and queues it as a text message.
func (e *Engine) SendJSON(v any) error {
	payload, err := sonic.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal websocket message")
	}
	return e.Send(payload)
}

// Subscribe records sub and sends it when a session is open. Recorded
// subscriptions are replayed on every reconnect.
func (e *Engine) Subscribe(channel, market string) error {
	if !e.subscriptions.add(Subscription{Channel: channel, Market: market}) {
		return nil
	}
	if !e.Connected() {
		return nil
	}
	payload, err := SubscribeRequest(channel, market)
	if err != nil {
		return err
	}
	return e.Send(payload)
}

func (e *Engine) Unsubscribe(channel, market string) error {
	if !e.subscriptions.remove(Subscription{Channel: channel, Market: market}) {
		return nil
	}
	if !e.Connected() {
		return nil
	}
	payload, err := UnsubscribeRequest(channel, market)
	if err != nil {
		return err
	}
	return e.Send(payload)
}

// Subscriptions returns the recorded subscriptions.
func (e *Engine) Subscriptions() []Subscription {
	return e.subscriptions.list()
}

func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) Connected() bool {
	return e.State() == StateOpen
}

// LastInbound returns when the last inbound message part arrived.
func (e *Engine) LastInbound() time.Time {
	return time.Unix(0, e.lastInbound.Load())
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

func (e *Engine) touch() {
	e.lastInbound.Store(time.Now().UnixNano())
}
