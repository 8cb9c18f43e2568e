package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the relay pipeline. A nil
// receiver is a no-op so wiring stays optional in tests.
type RelayMetrics struct {
	inboundTotal    *prometheus.CounterVec
	outboundTotal   *prometheus.CounterVec
	routingTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	escalationTotal prometheus.Counter
	webhookLatency  *prometheus.HistogramVec
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "relay",
			Name:      "inbound_total",
			Help:      "Total inbound customer messages",
		}, []string{"channel", "outcome"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "relay",
			Name:      "outbound_total",
			Help:      "Total outbound deliveries to customers",
		}, []string{"channel", "status"}),
		routingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "routing",
			Name:      "decisions_total",
			Help:      "Routing decisions by department and source",
		}, []string{"department", "source"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "translation",
			Name:      "cache_lookups_total",
			Help:      "Translation cache lookups",
		}, []string{"result"}),
		escalationTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relaydesk",
			Subsystem: "relay",
			Name:      "escalations_total",
			Help:      "Conversations escalated to a human",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relaydesk",
			Subsystem: "relay",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.routingTotal,
		m.cacheLookups, m.escalationTotal, m.webhookLatency)
	return m
}

// ObserveInbound counts one inbound message. outcome is "forwarded", "held"
// or "rejected".
func (m *RelayMetrics) ObserveInbound(channel, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(channel, outcome).Inc()
}

// ObserveOutbound counts one delivery attempt outcome.
func (m *RelayMetrics) ObserveOutbound(channel, status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(channel, status).Inc()
}

// ObserveRouting counts one routing decision.
func (m *RelayMetrics) ObserveRouting(department, source string) {
	if m == nil {
		return
	}
	m.routingTotal.WithLabelValues(department, source).Inc()
}

// ObserveCacheLookup counts a translation cache hit or miss.
func (m *RelayMetrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveEscalation counts one escalation to a human.
func (m *RelayMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationTotal.Inc()
}

// ObserveWebhookLatency records processing time for one inbound webhook.
func (m *RelayMetrics) ObserveWebhookLatency(channel string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(channel).Observe(seconds)
}
