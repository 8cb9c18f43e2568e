package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaydesk/relaydesk/internal/delivery"
	"github.com/relaydesk/relaydesk/internal/escalation"
	"github.com/relaydesk/relaydesk/internal/intake"
	"github.com/relaydesk/relaydesk/internal/observability/metrics"
	"github.com/relaydesk/relaydesk/internal/routing"
	"github.com/relaydesk/relaydesk/internal/translation"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// HubThread identifies where a message landed in the hub.
type HubThread struct {
	SpaceID  string
	ThreadID string
}

// HubPoster posts messages into the team hub. An empty threadID starts a new
// thread; the returned identifiers are what conversations are keyed on.
type HubPoster interface {
	PostMessage(ctx context.Context, spaceID, threadID, text string) (HubThread, error)
}

// Event is one unit of relay activity, published to live observers.
type Event struct {
	Type           string    `json:"type"` // "inbound", "outbound", "escalated"
	ConversationID string    `json:"conversation_id"`
	ThreadID       string    `json:"thread_id"`
	Channel        Channel   `json:"channel"`
	Department     string    `json:"department,omitempty"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventSink receives relay events. Implementations must not block.
type EventSink interface {
	RelayEvent(ev Event)
}

// Inbound is one customer message entering the relay.
type Inbound struct {
	Channel     Channel
	Identifier  string
	Text        string
	DisplayName string
}

// InboundResult reports what the relay did with an inbound message.
type InboundResult struct {
	Forwarded bool
	AutoReply string
	ThreadID  string
}

// ReplyResult reports the outcome of delivering a team reply.
type ReplyResult struct {
	Delivered  bool
	Channel    Channel
	Identifier string
}

// Stats is the monitoring snapshot surfaced at /stats.
type Stats struct {
	Conversations   int              `json:"conversations"`
	ByChannel       map[Channel]int  `json:"by_channel"`
	CacheHitRatio   float64          `json:"cache_hit_ratio"`
	CacheSize       int              `json:"cache_size"`
	Escalated       int              `json:"escalated"`
	CustomerRecords int              `json:"customer_records"`
	PendingRouting  int              `json:"pending_routing"`
	BackendCalls    uint64           `json:"translation_backend_calls"`
}

// ServiceConfig tunes the relay orchestrator.
type ServiceConfig struct {
	TargetLang       string                         // hub-side language, default "en"
	HubSpaceID       string                         // fallback space for unmapped departments
	DepartmentSpaces map[routing.Department]string  // optional per-department spaces
	HistoryLimit     int                            // entries included in escalation snapshots
}

// Service wires the gate, translator, router and stores into the relay
// pipeline: inbound customer messages flow to hub threads, team replies flow
// back out through the channel senders.
type Service struct {
	conversations *ConversationStore
	history       HistoryStore
	gatherer      *intake.Gatherer
	router        *routing.Router
	translator    *translation.Service
	escalations   *escalation.Store
	hub           HubPoster
	senders       map[Channel]delivery.Sender

	cfg     ServiceConfig
	metrics *metrics.RelayMetrics
	logger  *logging.Logger
	tracer  trace.Tracer
	events  EventSink
}

// NewService assembles the relay pipeline. hub and senders are required; the
// rest fall back to defaults when nil.
func NewService(
	conversations *ConversationStore,
	history HistoryStore,
	gatherer *intake.Gatherer,
	router *routing.Router,
	translator *translation.Service,
	escalations *escalation.Store,
	hub HubPoster,
	senders map[Channel]delivery.Sender,
	cfg ServiceConfig,
	m *metrics.RelayMetrics,
	logger *logging.Logger,
) *Service {
	if cfg.TargetLang == "" {
		cfg.TargetLang = "en"
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		conversations: conversations,
		history:       history,
		gatherer:      gatherer,
		router:        router,
		translator:    translator,
		escalations:   escalations,
		hub:           hub,
		senders:       senders,
		cfg:           cfg,
		metrics:       m,
		logger:        logger,
		tracer:        otel.Tracer("relaydesk.internal.relay"),
	}
}

// WithEventSink wires a live observer into the relay.
func (s *Service) WithEventSink(sink EventSink) *Service {
	s.events = sink
	return s
}

func (s *Service) emit(ev Event) {
	if s.events == nil {
		return
	}
	ev.Timestamp = time.Now()
	s.events.RelayEvent(ev)
}

// HandleInbound runs one customer message through the pipeline: admission
// gate, translation, routing, conversation mapping, hub forward.
func (s *Service) HandleInbound(ctx context.Context, msg Inbound) (InboundResult, error) {
	ctx, span := s.tracer.Start(ctx, "relay.handle_inbound")
	defer span.End()

	if !msg.Channel.Valid() {
		return InboundResult{}, ErrInvalidChannel
	}
	if strings.TrimSpace(msg.Identifier) == "" {
		return InboundResult{}, ErrMissingIdentifier
	}
	if strings.TrimSpace(msg.Text) == "" {
		return InboundResult{}, ErrEmptyText
	}
	span.SetAttributes(attribute.String("relay.channel", string(msg.Channel)))

	escalated := s.escalations.IsEscalated(msg.Identifier)

	// Admission gate. Escalated customers are already talking to a human, so
	// the gate's auto-replies are suppressed and everything forwards.
	if !escalated {
		adm := s.gatherer.Admit(ctx, msg.Identifier, string(msg.Channel), msg.Text)
		if !adm.Forward {
			s.deliverAutoReply(ctx, msg.Channel, msg.Identifier, adm.AutoReply)
			s.metrics.ObserveInbound(string(msg.Channel), "held")
			return InboundResult{AutoReply: adm.AutoReply}, nil
		}
	}

	translated := s.translator.Translate(ctx, msg.Text, s.cfg.TargetLang, "")

	// Existing mapping: the thread is already routed, forward straight in.
	if conv, err := s.conversations.GetByUser(msg.Channel, msg.Identifier); err == nil {
		return s.forwardToExisting(ctx, conv, msg, translated)
	}

	decision := s.router.Route(ctx, msg.Identifier, translated.TranslatedText)
	s.metrics.ObserveRouting(string(decision.Decision.Department), string(decision.Decision.Source))

	if decision.NeedsClarification {
		// A human already owns an escalated customer, so a clarification hold
		// would swallow the message. Force the default department and forward.
		if escalated {
			s.router.Resolve(msg.Identifier)
			decision = routing.Result{
				Decision: routing.Decision{
					Department: routing.DepartmentGeneral,
					Confidence: 0.3,
					Source:     routing.SourceDefault,
				},
				State: routing.RouteStateRouted,
			}
			return s.forwardToNewThread(ctx, msg, translated, decision)
		}
		reply := s.localizeReply(ctx, decision.Clarification, translated.DetectedLang)
		s.deliverAutoReply(ctx, msg.Channel, msg.Identifier, reply)
		s.metrics.ObserveInbound(string(msg.Channel), "held")
		return InboundResult{AutoReply: reply}, nil
	}

	return s.forwardToNewThread(ctx, msg, translated, decision)
}

func (s *Service) forwardToExisting(ctx context.Context, conv Conversation, msg Inbound, translated translation.Result) (InboundResult, error) {
	text := hubMessageText(conv.Sender.CustomerName, conv.Sender.DisplayName, msg.Channel, translated, msg.Text)
	if _, err := s.hub.PostMessage(ctx, conv.SpaceID, conv.ThreadID, text); err != nil {
		s.metrics.ObserveInbound(string(msg.Channel), "rejected")
		return InboundResult{}, fmt.Errorf("relay: forward to hub thread: %w", err)
	}

	s.conversations.Touch(conv.ID)
	s.appendHistory(ctx, conv.ID, HistoryEntry{
		Direction: DirectionInbound,
		Text:      translated.TranslatedText,
		Original:  originalIfDiffers(msg.Text, translated),
		Language:  translated.DetectedLang,
	})
	s.metrics.ObserveInbound(string(msg.Channel), "forwarded")
	s.emit(Event{
		Type:           "inbound",
		ConversationID: conv.ID,
		ThreadID:       conv.ThreadID,
		Channel:        msg.Channel,
		Department:     conv.Department,
		Text:           translated.TranslatedText,
	})
	return InboundResult{Forwarded: true, ThreadID: conv.ThreadID}, nil
}

func (s *Service) forwardToNewThread(ctx context.Context, msg Inbound, translated translation.Result, decision routing.Result) (InboundResult, error) {
	spaceID := s.spaceFor(decision.Decision.Department)

	var customerName, company string
	if rec, ok := s.gatherer.Record(msg.Identifier); ok {
		customerName = rec.Name
		company = rec.BusinessName
	}

	text := newThreadText(customerName, company, msg, translated, decision)
	thread, err := s.hub.PostMessage(ctx, spaceID, "", text)
	if err != nil {
		s.metrics.ObserveInbound(string(msg.Channel), "rejected")
		return InboundResult{}, fmt.Errorf("relay: forward to hub: %w", err)
	}

	conv := s.conversations.Put(msg.Channel, msg.Identifier, thread.ThreadID, thread.SpaceID, SenderInfo{
		DisplayName:   msg.DisplayName,
		RawIdentifier: msg.Identifier,
		FirstMessage:  msg.Text,
		CustomerName:  customerName,
		Company:       company,
		Language:      translated.DetectedLang,
	})
	if err := s.conversations.Update(conv.ID, func(c *Conversation) {
		c.Department = string(decision.Decision.Department)
	}); err != nil {
		s.logger.Warn("conversation vanished before department backfill", "conversation_id", conv.ID)
	}

	s.appendHistory(ctx, conv.ID, HistoryEntry{
		Direction: DirectionInbound,
		Text:      translated.TranslatedText,
		Original:  originalIfDiffers(msg.Text, translated),
		Language:  translated.DetectedLang,
	})

	s.logger.Info("conversation opened",
		"channel", msg.Channel, "department", decision.Decision.Department,
		"source", decision.Decision.Source, "thread_id", thread.ThreadID)
	s.metrics.ObserveInbound(string(msg.Channel), "forwarded")
	s.emit(Event{
		Type:           "inbound",
		ConversationID: conv.ID,
		ThreadID:       thread.ThreadID,
		Channel:        msg.Channel,
		Department:     string(decision.Decision.Department),
		Text:           translated.TranslatedText,
	})
	return InboundResult{Forwarded: true, ThreadID: thread.ThreadID}, nil
}

// HandleReply delivers a team reply back to the customer behind threadID,
// translated into the customer's language.
func (s *Service) HandleReply(ctx context.Context, threadID, replyText string) (ReplyResult, error) {
	ctx, span := s.tracer.Start(ctx, "relay.handle_reply")
	defer span.End()

	if strings.TrimSpace(replyText) == "" {
		return ReplyResult{}, ErrEmptyText
	}
	conv, err := s.conversations.GetByThread(threadID)
	if err != nil {
		return ReplyResult{}, err
	}

	sender, ok := s.senders[conv.Channel]
	if !ok {
		return ReplyResult{Channel: conv.Channel, Identifier: conv.UserID}, ErrInvalidChannel
	}

	outText := s.localizeReply(ctx, replyText, conv.Sender.Language)

	to := conv.Sender.RawIdentifier
	if to == "" {
		to = conv.UserID
	}
	result := ReplyResult{Channel: conv.Channel, Identifier: conv.UserID}
	if _, err := sender.Send(ctx, to, outText); err != nil {
		s.metrics.ObserveOutbound(string(conv.Channel), "failed")
		return result, fmt.Errorf("relay: deliver reply: %w", err)
	}
	result.Delivered = true
	s.metrics.ObserveOutbound(string(conv.Channel), "delivered")

	// A human answering resets the escalation countdown.
	s.escalations.Extend(conv.UserID)

	s.conversations.Touch(conv.ID)
	s.appendHistory(ctx, conv.ID, HistoryEntry{
		Direction: DirectionOutbound,
		Text:      outText,
		Original:  originalIfSame(replyText, outText),
		Language:  conv.Sender.Language,
	})
	s.emit(Event{
		Type:           "outbound",
		ConversationID: conv.ID,
		ThreadID:       conv.ThreadID,
		Channel:        conv.Channel,
		Department:     conv.Department,
		Text:           outText,
	})
	return result, nil
}

// Escalate hands the conversation behind threadID to a human: automated
// replies stop, staff get notified with a history snapshot.
func (s *Service) Escalate(ctx context.Context, threadID string) (escalation.Record, error) {
	conv, err := s.conversations.GetByThread(threadID)
	if err != nil {
		return escalation.Record{}, err
	}

	var lines []string
	if entries, err := s.history.Recent(ctx, conv.ID, s.cfg.HistoryLimit); err == nil {
		for _, entry := range entries {
			prefix := "customer"
			if entry.Direction == DirectionOutbound {
				prefix = "team"
			}
			lines = append(lines, prefix+": "+entry.Text)
		}
	}

	rec := s.escalations.Escalate(ctx, escalation.Request{
		Identifier:   conv.UserID,
		ThreadID:     conv.ThreadID,
		CustomerName: conv.Sender.CustomerName,
		ExternalRef:  conv.ID,
		History:      lines,
	})
	s.metrics.ObserveEscalation()
	s.emit(Event{
		Type:           "escalated",
		ConversationID: conv.ID,
		ThreadID:       conv.ThreadID,
		Channel:        conv.Channel,
		Department:     conv.Department,
	})
	return rec, nil
}

// ClearEscalation hands the conversation back to the relay.
func (s *Service) ClearEscalation(identifier string) bool {
	return s.escalations.Clear(identifier)
}

// History returns the rolling message window for a conversation.
func (s *Service) History(ctx context.Context, conversationID string, limit int) ([]HistoryEntry, error) {
	return s.history.Recent(ctx, conversationID, limit)
}

// Conversation looks up the mapping for a hub thread.
func (s *Service) Conversation(threadID string) (Conversation, error) {
	return s.conversations.GetByThread(threadID)
}

// Stats returns the monitoring snapshot.
func (s *Service) Stats() Stats {
	cache := s.translator.CacheStats()
	return Stats{
		Conversations:   s.conversations.Count(),
		ByChannel:       s.conversations.CountByChannel(),
		CacheHitRatio:   cache.HitRatio,
		CacheSize:       cache.Size,
		Escalated:       s.escalations.Count(),
		CustomerRecords: s.gatherer.Count(),
		PendingRouting:  s.router.PendingCount(),
		BackendCalls:    s.translator.BackendCalls(),
	}
}

// deliverAutoReply sends a generated reply back to the customer. Failures are
// logged, not propagated: a lost prompt must not block the next inbound.
func (s *Service) deliverAutoReply(ctx context.Context, channel Channel, identifier, text string) {
	if text == "" {
		return
	}
	sender, ok := s.senders[channel]
	if !ok {
		s.logger.Warn("no sender for channel, dropping auto-reply", "channel", channel)
		return
	}
	if _, err := sender.Send(ctx, identifier, text); err != nil {
		s.metrics.ObserveOutbound(string(channel), "failed")
		s.logger.Warn("auto-reply delivery failed", "channel", channel, "error", err)
		return
	}
	s.metrics.ObserveOutbound(string(channel), "delivered")
}

// localizeReply translates generated or team text into the customer's
// language. Unknown language or translation failure falls back to the input.
func (s *Service) localizeReply(ctx context.Context, text, lang string) string {
	if lang == "" || lang == s.cfg.TargetLang {
		return text
	}
	res := s.translator.Translate(ctx, text, lang, s.cfg.TargetLang)
	if res.Confidence == 0 {
		return text
	}
	return res.TranslatedText
}

func (s *Service) spaceFor(dept routing.Department) string {
	if space, ok := s.cfg.DepartmentSpaces[dept]; ok && space != "" {
		return space
	}
	return s.cfg.HubSpaceID
}

func (s *Service) appendHistory(ctx context.Context, conversationID string, entry HistoryEntry) {
	if err := s.history.Append(ctx, conversationID, entry); err != nil {
		s.logger.Warn("history append failed", "conversation_id", conversationID, "error", err)
	}
}

// hubMessageText formats a follow-up message for an existing thread.
func hubMessageText(customerName, displayName string, channel Channel, translated translation.Result, original string) string {
	name := customerName
	if name == "" {
		name = displayName
	}
	if name == "" {
		name = "Customer"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s): %s", name, channel, translated.TranslatedText)
	if orig := originalIfDiffers(original, translated); orig != "" {
		fmt.Fprintf(&b, "\n_original (%s): %s_", translated.DetectedLang, orig)
	}
	return b.String()
}

// newThreadText formats the opening message of a hub thread.
func newThreadText(customerName, company string, msg Inbound, translated translation.Result, decision routing.Result) string {
	name := customerName
	if name == "" {
		name = msg.DisplayName
	}
	if name == "" {
		name = msg.Identifier
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*New %s conversation - %s*\n", msg.Channel, decision.Decision.Department)
	fmt.Fprintf(&b, "From: %s", name)
	if company != "" {
		fmt.Fprintf(&b, " (%s)", company)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s", translated.TranslatedText)
	if orig := originalIfDiffers(msg.Text, translated); orig != "" {
		fmt.Fprintf(&b, "\n_original (%s): %s_", translated.DetectedLang, orig)
	}
	return b.String()
}

// originalIfDiffers returns the pre-translation text when translation
// actually changed it.
func originalIfDiffers(original string, translated translation.Result) string {
	if strings.TrimSpace(original) == strings.TrimSpace(translated.TranslatedText) {
		return ""
	}
	return original
}

// originalIfSame returns original when localization changed the text.
func originalIfSame(original, localized string) string {
	if strings.TrimSpace(original) == strings.TrimSpace(localized) {
		return ""
	}
	return original
}

