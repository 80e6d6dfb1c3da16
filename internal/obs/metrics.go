package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "execcore"

// Metrics exposes the execution core's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	ordersSubmitted    *prometheus.CounterVec
	ordersRejected     *prometheus.CounterVec
	staleCancels       *prometheus.CounterVec
	cancelFailures     *prometheus.CounterVec
	orderConsistent    *prometheus.GaugeVec
	positionConsistent *prometheus.GaugeVec
	manageLatency      prometheus.Histogram

	reconnects     prometheus.Counter
	framesReceived prometheus.Counter
	queueDrops     prometheus.Counter

	collateral      prometheus.Gauge
	marginFraction  prometheus.Gauge
	liquidationRisk prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ordersSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Orders accepted by the broker.",
		}, []string{"symbol", "kind"}),
		ordersRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_rejected_total",
			Help:      "Orders refused at submission.",
		}, []string{"symbol"}),
		staleCancels: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_cancels_total",
			Help:      "Cancel requests issued for stale orders.",
		}, []string{"symbol"}),
		cancelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_failures_total",
			Help:      "Cancel requests that failed.",
		}, []string{"symbol"}),
		orderConsistent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "order_consistent",
			Help:      "1 when local, confirmed and broker order counts agree.",
		}, []string{"symbol"}),
		positionConsistent: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "position_consistent",
			Help:      "1 when the virtual position equals the broker position.",
		}, []string{"symbol"}),
		manageLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "manage_duration_seconds",
			Help:      "Duration of one manage tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_reconnects_total",
			Help:      "Connection sessions that ended and were redialed.",
		}),
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_frames_received_total",
			Help:      "Inbound messages dispatched to the handler.",
		}),
		queueDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_queue_drops_total",
			Help:      "Broker events dropped because the queue was full.",
		}),
		collateral: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collateral",
			Help:      "Collateral at maintenance weights.",
		}),
		marginFraction: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "margin_fraction",
			Help:      "Collateral over notional.",
		}),
		liquidationRisk: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "liquidation_risk",
			Help:      "1 when the account is at risk of liquidation.",
		}),
	}
}

func (m *Metrics) IncSubmitted(symbol, kind string) {
	if m == nil {
		return
	}
	m.ordersSubmitted.WithLabelValues(symbol, kind).Inc()
}

func (m *Metrics) IncRejected(symbol string) {
	if m == nil {
		return
	}
	m.ordersRejected.WithLabelValues(symbol).Inc()
}

func (m *Metrics) IncStaleCancel(symbol string) {
	if m == nil {
		return
	}
	m.staleCancels.WithLabelValues(symbol).Inc()
}

func (m *Metrics) IncCancelFailure(symbol string) {
	if m == nil {
		return
	}
	m.cancelFailures.WithLabelValues(symbol).Inc()
}

func (m *Metrics) SetOrderConsistent(symbol string, ok bool) {
	if m == nil {
		return
	}
	m.orderConsistent.WithLabelValues(symbol).Set(boolGauge(ok))
}

func (m *Metrics) SetPositionConsistent(symbol string, ok bool) {
	if m == nil {
		return
	}
	m.positionConsistent.WithLabelValues(symbol).Set(boolGauge(ok))
}

// ObserveManage records the duration of one manage tick.
func (m *Metrics) ObserveManage(d time.Duration) {
	if m == nil {
		return
	}
	m.manageLatency.Observe(d.Seconds())
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) IncFrame() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// IncQueueDrop records a queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// SetRisk publishes the latest margin verdict.
func (m *Metrics) SetRisk(collateral, marginFraction float64, atRisk bool) {
	if m == nil {
		return
	}
	m.collateral.Set(collateral)
	m.marginFraction.Set(marginFraction)
	m.liquidationRisk.Set(boolGauge(atRisk))
}

func boolGauge(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}
