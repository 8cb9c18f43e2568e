package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/relaydesk/relaydesk/internal/relay"
)

type stubRelay struct {
	replies []struct{ threadID, text string }
	err     error
}

func (s *stubRelay) HandleReply(_ context.Context, threadID, text string) (relay.ReplyResult, error) {
	s.replies = append(s.replies, struct{ threadID, text string }{threadID, text})
	if s.err != nil {
		return relay.ReplyResult{}, s.err
	}
	return relay.ReplyResult{Delivered: true, Channel: relay.ChannelWhatsApp, Identifier: "15550100"}, nil
}

func (s *stubRelay) Stats() relay.Stats { return relay.Stats{} }

func dialFeed(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(h.FeedHandler())
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, err := websocket.Dial(wsURL, "", server.URL)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestFeedReceivesBroadcastEvents(t *testing.T) {
	h := NewHandler(&stubRelay{}, nil)
	conn := dialFeed(t, h)

	// Wait for the connection to register before broadcasting.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, time.Second, 5*time.Millisecond)

	h.RelayEvent(relay.Event{Type: "inbound", ThreadID: "t1", Channel: relay.ChannelWhatsApp, Text: "hello"})

	var got relay.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, websocket.JSON.Receive(conn, &got))
	assert.Equal(t, "inbound", got.Type)
	assert.Equal(t, "t1", got.ThreadID)
	assert.Equal(t, "hello", got.Text)
}

func TestFeedReplaysBacklogOnConnect(t *testing.T) {
	h := NewHandler(&stubRelay{}, nil)
	h.RelayEvent(relay.Event{Type: "inbound", ThreadID: "t1", Text: "first"})
	h.RelayEvent(relay.Event{Type: "outbound", ThreadID: "t1", Text: "second"})

	conn := dialFeed(t, h)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))

	var first, second relay.Event
	require.NoError(t, websocket.JSON.Receive(conn, &first))
	require.NoError(t, websocket.JSON.Receive(conn, &second))
	assert.Equal(t, "first", first.Text)
	assert.Equal(t, "second", second.Text)
}

func TestBacklogIsBounded(t *testing.T) {
	h := NewHandler(&stubRelay{}, nil)
	for i := 0; i < backlogSize+10; i++ {
		h.RelayEvent(relay.Event{Type: "inbound", Text: "x"})
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	assert.Len(t, h.recent, backlogSize)
}

func TestHandleReplyJSON(t *testing.T) {
	svc := &stubRelay{}
	h := NewHandler(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/portal/reply",
		strings.NewReader(`{"thread_id":"spaces/s/threads/t1","text":"On our way"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleReply(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.replies, 1)
	assert.Equal(t, "spaces/s/threads/t1", svc.replies[0].threadID)
	assert.Equal(t, "On our way", svc.replies[0].text)
	assert.Contains(t, rec.Body.String(), `"Delivered":true`)
}

func TestHandleReplyForm(t *testing.T) {
	svc := &stubRelay{}
	h := NewHandler(svc, nil)

	form := "thread_id=spaces%2Fs%2Fthreads%2Ft1&text=done"
	req := httptest.NewRequest(http.MethodPost, "/portal/reply", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleReply(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.replies, 1)
	assert.Equal(t, "done", svc.replies[0].text)
}

func TestHandleReplyValidation(t *testing.T) {
	h := NewHandler(&stubRelay{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/portal/reply",
		strings.NewReader(`{"thread_id":"","text":""}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleReply(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReplyUnknownThread(t *testing.T) {
	h := NewHandler(&stubRelay{err: relay.ErrConversationNotFound}, nil)

	req := httptest.NewRequest(http.MethodPost, "/portal/reply",
		strings.NewReader(`{"thread_id":"spaces/s/threads/gone","text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.HandleReply(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
