package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	inbound           *prometheus.CounterVec
	created           prometheus.Counter
	outbound          *prometheus.CounterVec
	duplicates        prometheus.Counter
	transportFailures prometheus.Counter
	receipts          *prometheus.CounterVec
	closed            *prometheus.CounterVec
	sinkDeliveries    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_inbound_events_total",
			Help: "Inbound provider events by outcome.",
		}, []string{"result"}),
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_conversations_created_total",
			Help: "Conversations created from inbound events.",
		}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_outbound_messages_total",
			Help: "Outbound messages by resulting delivery status.",
		}, []string{"status"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_duplicate_events_total",
			Help: "Inbound events ignored because their provider id was already recorded.",
		}),
		transportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_transport_failures_total",
			Help: "Provider send calls that failed or timed out.",
		}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_delivery_receipts_total",
			Help: "Delivery receipts by outcome.",
		}, []string{"result"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_conversations_closed_total",
			Help: "Conversations moved to ENDED, by reason.",
		}, []string{"reason"}),
		sinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "router_notifier_deliveries_total",
			Help: "Notifier sink deliveries by sink and result.",
		}, []string{"sink", "result"}),
	}
	reg.MustRegister(m.inbound, m.created, m.outbound, m.duplicates,
		m.transportFailures, m.receipts, m.closed, m.sinkDeliveries)
	return m
}

func (m *Metrics) inboundResult(result string) {
	if m != nil {
		m.inbound.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) conversationCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) outboundStatus(status string) {
	if m != nil {
		m.outbound.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) duplicateEvent() {
	if m != nil {
		m.duplicates.Inc()
	}
}

func (m *Metrics) transportFailure() {
	if m != nil {
		m.transportFailures.Inc()
	}
}

func (m *Metrics) receipt(result string) {
	if m != nil {
		m.receipts.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) conversationClosed(reason string) {
	if m != nil {
		m.closed.WithLabelValues(reason).Inc()
	}
}

// SinkDelivery matches the notifier bus delivery callback.
func (m *Metrics) SinkDelivery(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sinkDeliveries.WithLabelValues(sink, result).Inc()
}
