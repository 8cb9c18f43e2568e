package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func TestRelayMetrics_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelayMetrics(reg)

	m.ObserveInbound("whatsapp", "forwarded")
	m.ObserveInbound("whatsapp", "held")
	m.ObserveOutbound("instagram", "delivered")
	m.ObserveRouting("sales", "keyword")
	m.ObserveCacheLookup(true)
	m.ObserveCacheLookup(false)
	m.ObserveEscalation()
	m.ObserveWebhookLatency("whatsapp", 0.042)

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["relaydesk_relay_inbound_total"])
	assert.True(t, names["relaydesk_routing_decisions_total"])
	assert.True(t, names["relaydesk_translation_cache_lookups_total"])
}

func TestRelayMetrics_NilIsNoop(t *testing.T) {
	var m *RelayMetrics
	assert.NotPanics(t, func() {
		m.ObserveInbound("whatsapp", "forwarded")
		m.ObserveOutbound("whatsapp", "failed")
		m.ObserveRouting("general", "default")
		m.ObserveCacheLookup(true)
		m.ObserveEscalation()
		m.ObserveWebhookLatency("instagram", 0.1)
	})
}
