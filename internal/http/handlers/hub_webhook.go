package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/relaydesk/relaydesk/internal/escalation"
	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// HubRelay is the slice of the relay the hub webhook drives.
type HubRelay interface {
	HandleReply(ctx context.Context, threadID, text string) (relay.ReplyResult, error)
	Escalate(ctx context.Context, threadID string) (escalation.Record, error)
	ClearEscalation(identifier string) bool
	Conversation(threadID string) (relay.Conversation, error)
}

// HubWebhookHandler receives Google Chat events: team replies in relay
// threads go back to the customer, slash commands control escalation.
type HubWebhookHandler struct {
	svc    HubRelay
	logger *logging.Logger
}

// NewHubWebhookHandler creates the hub webhook handler.
func NewHubWebhookHandler(svc HubRelay, logger *logging.Logger) *HubWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HubWebhookHandler{svc: svc, logger: logger}
}

// chatEvent is the subset of the Google Chat event payload the relay reads.
type chatEvent struct {
	Type    string `json:"type"`
	Message struct {
		Text         string `json:"text"`
		ArgumentText string `json:"argumentText"`
		Thread       struct {
			Name string `json:"name"`
		} `json:"thread"`
		Sender struct {
			Type        string `json:"type"`
			DisplayName string `json:"displayName"`
		} `json:"sender"`
	} `json:"message"`
	Space struct {
		Name string `json:"name"`
	} `json:"space"`
}

// chatResponse is the synchronous reply rendered into the thread.
type chatResponse struct {
	Text   string `json:"text,omitempty"`
	Thread *struct {
		Name string `json:"name"`
	} `json:"thread,omitempty"`
}

// Handle processes one Google Chat event.
func (h *HubWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var event chatEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Only human MESSAGE events matter; membership changes and the app's own
	// posts are acknowledged and dropped.
	if event.Type != "MESSAGE" || event.Message.Sender.Type == "BOT" {
		writeChatResponse(w, event.Message.Thread.Name, "")
		return
	}

	threadID := event.Message.Thread.Name
	text := strings.TrimSpace(event.Message.Text)

	switch {
	case strings.HasPrefix(text, "/escalate"):
		writeChatResponse(w, threadID, h.escalate(r.Context(), threadID))
	case strings.HasPrefix(text, "/clear"):
		writeChatResponse(w, threadID, h.clear(threadID))
	default:
		writeChatResponse(w, threadID, h.reply(r.Context(), threadID, text))
	}
}

func (h *HubWebhookHandler) escalate(ctx context.Context, threadID string) string {
	rec, err := h.svc.Escalate(ctx, threadID)
	if err != nil {
		if errors.Is(err, relay.ErrConversationNotFound) {
			return "This thread is not linked to a customer conversation."
		}
		h.logger.Error("escalation failed", "thread_id", threadID, "error", err)
		return "Escalation failed, see service logs."
	}

	who := rec.CustomerName
	if who == "" {
		who = rec.Identifier
	}
	return "Escalated: automated replies for " + who + " are paused. Replies in this thread still reach them."
}

func (h *HubWebhookHandler) clear(threadID string) string {
	conv, err := h.svc.Conversation(threadID)
	if err != nil {
		return "This thread is not linked to a customer conversation."
	}
	if !h.svc.ClearEscalation(conv.UserID) {
		return "This conversation was not escalated."
	}
	return "Escalation cleared, the relay is handling this customer again."
}

func (h *HubWebhookHandler) reply(ctx context.Context, threadID, text string) string {
	if text == "" || threadID == "" {
		return ""
	}

	result, err := h.svc.HandleReply(ctx, threadID, text)
	if err != nil {
		// Team chatter in unmapped threads is none of our business.
		if errors.Is(err, relay.ErrConversationNotFound) {
			return ""
		}
		h.logger.Error("reply delivery failed",
			"thread_id", threadID,
			"channel", result.Channel,
			"error", err,
		)
		return "Delivery failed, the customer did not receive this reply."
	}
	return ""
}

func writeChatResponse(w http.ResponseWriter, threadID, text string) {
	resp := chatResponse{Text: text}
	if text != "" && threadID != "" {
		resp.Thread = &struct {
			Name string `json:"name"`
		}{Name: threadID}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
