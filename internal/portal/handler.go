package portal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// backlogSize is how many recent events a fresh feed connection receives.
const backlogSize = 50

// RelayService is the slice of the relay the portal needs.
type RelayService interface {
	HandleReply(ctx context.Context, threadID, text string) (relay.ReplyResult, error)
	Stats() relay.Stats
}

// Handler serves the operator portal: a live websocket feed of relay
// activity plus a reply form for answering customers without leaving the
// browser. It implements relay.EventSink.
type Handler struct {
	svc    RelayService
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*websocket.Conn]struct{}
	recent  []relay.Event
}

var _ relay.EventSink = (*Handler)(nil)

// NewHandler creates a portal handler.
func NewHandler(svc RelayService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		svc:     svc,
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// RelayEvent records the event and pushes it to every connected feed.
func (h *Handler) RelayEvent(ev relay.Event) {
	h.mu.Lock()
	h.recent = append(h.recent, ev)
	if len(h.recent) > backlogSize {
		h.recent = h.recent[len(h.recent)-backlogSize:]
	}
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := websocket.JSON.Send(conn, ev); err != nil {
			h.drop(conn)
		}
	}
}

// FeedHandler returns the websocket endpoint for the live feed.
func (h *Handler) FeedHandler() http.Handler {
	return websocket.Handler(h.serveFeed)
}

func (h *Handler) serveFeed(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	backlog := make([]relay.Event, len(h.recent))
	copy(backlog, h.recent)
	h.mu.Unlock()

	defer h.drop(conn)

	for _, ev := range backlog {
		if err := websocket.JSON.Send(conn, ev); err != nil {
			return
		}
	}

	// Block until the client hangs up; inbound frames are ignored.
	var discard string
	for {
		if err := websocket.Message.Receive(conn, &discard); err != nil {
			return
		}
	}
}

func (h *Handler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if present {
		conn.Close()
	}
}

type replyRequest struct {
	ThreadID string `json:"thread_id"`
	Text     string `json:"text"`
}

// HandleReply accepts a reply from the portal form and delivers it to the
// customer behind the thread.
func (h *Handler) HandleReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	switch {
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	default:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form body", http.StatusBadRequest)
			return
		}
		req.ThreadID = r.FormValue("thread_id")
		req.Text = r.FormValue("text")
	}

	if strings.TrimSpace(req.ThreadID) == "" || strings.TrimSpace(req.Text) == "" {
		http.Error(w, "thread_id and text are required", http.StatusBadRequest)
		return
	}

	result, err := h.svc.HandleReply(r.Context(), req.ThreadID, req.Text)
	if err != nil {
		if errors.Is(err, relay.ErrConversationNotFound) {
			http.Error(w, "no conversation for thread", http.StatusNotFound)
			return
		}
		h.logger.Warn("portal reply failed", "thread_id", req.ThreadID, "error", err)
		http.Error(w, "reply delivery failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
