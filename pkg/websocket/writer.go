package websocket

import "sync/atomic"

type outbound struct {
	msgType MessageType
	payload []byte
}

// writer provides a bounded outbound queue.
type writer struct {
	queue     chan outbound
	policy    OverflowPolicy
	connected atomic.Bool
}

func newWriter(capacity int, policy OverflowPolicy) *writer {
	if capacity <= 0 {
		capacity = 1
	}
	return &writer{
		queue:  make(chan outbound, capacity),
		policy: policy,
	}
}

func (w *writer) setConnected(connected bool) {
	w.connected.Store(connected)
}

// send copies payload and queues it according to the overflow policy.
func (w *writer) send(msgType MessageType, payload []byte) bool {
	if !w.connected.Load() {
		return false
	}

	frame := outbound{msgType: msgType, payload: append([]byte(nil), payload...)}
	switch w.policy {
	case OverflowBlock:
		w.queue <- frame
		return true
	case OverflowDropOldest:
		for {
			select {
			case w.queue <- frame:
				return true
			default:
				select {
				case <-w.queue:
				default:
					return false
				}
			}
		}
	default:
		select {
		case w.queue <- frame:
			return true
		default:
			return false
		}
	}
}

// drain discards queued frames.
func (w *writer) drain() {
	for {
		select {
		case <-w.queue:
		default:
			return
		}
	}
}
