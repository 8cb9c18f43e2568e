package handlers

import (
	"context"
	"time"

	"github.com/relaydesk/relaydesk/internal/channels/instagram"
	"github.com/relaydesk/relaydesk/internal/channels/whatsapp"
	"github.com/relaydesk/relaydesk/internal/observability/metrics"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// inboundTimeout bounds pipeline work per webhook message. The webhook
// response has already committed by then, so this only protects the relay.
const inboundTimeout = 30 * time.Second

// InboundHandler is the slice of the relay the webhooks feed into.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg relay.Inbound) (relay.InboundResult, error)
}

// ChannelWebhooks owns the Meta webhook endpoints for both customer
// channels and hands parsed messages to the relay.
type ChannelWebhooks struct {
	WhatsApp  *whatsapp.WebhookHandler
	Instagram *instagram.WebhookHandler

	svc     InboundHandler
	logger  *logging.Logger
	metrics *metrics.RelayMetrics
}

// NewChannelWebhooks wires webhook parsing for both channels into the relay.
// Both channels share the verify token and app secret of the Meta app.
func NewChannelWebhooks(svc InboundHandler, verifyToken, appSecret string, logger *logging.Logger) *ChannelWebhooks {
	if logger == nil {
		logger = logging.Default()
	}
	h := &ChannelWebhooks{svc: svc, logger: logger}
	h.WhatsApp = whatsapp.NewWebhookHandler(verifyToken, appSecret, h.onWhatsApp)
	h.Instagram = instagram.NewWebhookHandler(verifyToken, appSecret, h.onInstagram)
	return h
}

// WithMetrics wires webhook latency observation.
func (h *ChannelWebhooks) WithMetrics(m *metrics.RelayMetrics) *ChannelWebhooks {
	h.metrics = m
	return h
}

func (h *ChannelWebhooks) onWhatsApp(msg whatsapp.ParsedMessage) {
	h.relayInbound(relay.Inbound{
		Channel:     relay.ChannelWhatsApp,
		Identifier:  msg.From,
		Text:        msg.Text,
		DisplayName: msg.DisplayName,
	})
}

func (h *ChannelWebhooks) onInstagram(msg instagram.ParsedMessage) {
	h.relayInbound(relay.Inbound{
		Channel:     relay.ChannelInstagram,
		Identifier:  msg.SenderID,
		Text:        msg.Text,
		DisplayName: msg.Username,
	})
}

// relayInbound runs after the webhook response commits, so failures are only
// logged. Meta retries delivery on its side when we answer non-200.
func (h *ChannelWebhooks) relayInbound(msg relay.Inbound) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	start := time.Now()
	result, err := h.svc.HandleInbound(ctx, msg)
	h.metrics.ObserveWebhookLatency(string(msg.Channel), time.Since(start).Seconds())
	if err != nil {
		h.logger.Error("inbound relay failed",
			"channel", msg.Channel,
			"error", err,
		)
		return
	}
	h.logger.Debug("inbound handled",
		"channel", msg.Channel,
		"forwarded", result.Forwarded,
		"thread_id", result.ThreadID,
	)
}
