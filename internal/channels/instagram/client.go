package instagram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaydesk/relaydesk/internal/delivery"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v18.0"
	defaultHTTPTimeout  = 10 * time.Second
)

// Client sends Instagram DMs via the Meta Graph API.
type Client struct {
	pageAccessToken string
	graphAPIBase    string
	httpClient      *http.Client
}

var _ delivery.Sender = (*Client)(nil)

// NewClient creates a Graph API client for the connected Instagram account.
func NewClient(pageAccessToken string) *Client {
	return &Client{
		pageAccessToken: pageAccessToken,
		graphAPIBase:    defaultGraphAPIBase,
		httpClient:      &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

type sendRequest struct {
	Recipient sendRecipient `json:"recipient"`
	Message   sendMessage   `json:"message"`
}

type sendRecipient struct {
	ID string `json:"id"`
}

type sendMessage struct {
	Text string `json:"text"`
}

type sendResponse struct {
	RecipientID string    `json:"recipient_id"`
	MessageID   string    `json:"message_id"`
	Error       *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// Send delivers a text DM to the given Instagram-scoped user ID.
func (c *Client) Send(ctx context.Context, identifier, text string) (delivery.Result, error) {
	payload := sendRequest{
		Recipient: sendRecipient{ID: identifier},
		Message:   sendMessage{Text: text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("instagram: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/me/messages?access_token=%s", c.graphAPIBase, c.pageAccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("instagram: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("instagram: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery.Result{StatusCode: resp.StatusCode}, fmt.Errorf("instagram: read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return delivery.Result{StatusCode: resp.StatusCode}, fmt.Errorf("instagram: unmarshal response: %w", err)
	}

	result := delivery.Result{
		StatusCode:        resp.StatusCode,
		ProviderMessageID: parsed.MessageID,
	}

	if resp.StatusCode == http.StatusOK && parsed.Error == nil {
		return result, nil
	}

	sendErr := fmt.Errorf("instagram: send failed: status %d", resp.StatusCode)
	if parsed.Error != nil {
		sendErr = fmt.Errorf("instagram: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if permanentStatus(resp.StatusCode) || blockedRecipient(parsed.Error) {
		return result, &delivery.PermanentError{StatusCode: resp.StatusCode, Err: sendErr}
	}
	return result, sendErr
}

func permanentStatus(status int) bool {
	return status == http.StatusBadRequest ||
		status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusNotFound
}

// blockedRecipient recognizes Meta error code 551: this person is not
// available right now (blocked or deactivated).
func blockedRecipient(e *apiError) bool {
	return e != nil && e.Code == 551
}
