package whatsapp

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

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	accessToken   string
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
}

var _ delivery.Sender = (*Client)(nil)

// NewClient creates a Cloud API client for one business phone number.
func NewClient(accessToken, phoneNumberID string) *Client {
	return &Client{
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// SetGraphAPIBase overrides the Graph API base URL (useful for testing).
func (c *Client) SetGraphAPIBase(base string) {
	c.graphAPIBase = base
}

type sendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// Send delivers a text message to the given phone number.
func (c *Client) Send(ctx context.Context, identifier, text string) (delivery.Result, error) {
	payload := sendRequest{
		MessagingProduct: "whatsapp",
		To:               identifier,
		Type:             "text",
		Text:             sendText{Body: text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return delivery.Result{}, fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return delivery.Result{}, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return delivery.Result{StatusCode: resp.StatusCode}, fmt.Errorf("whatsapp: read response: %w", err)
	}

	var parsed sendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return delivery.Result{StatusCode: resp.StatusCode}, fmt.Errorf("whatsapp: unmarshal response: %w", err)
	}

	result := delivery.Result{StatusCode: resp.StatusCode}
	if len(parsed.Messages) > 0 {
		result.ProviderMessageID = parsed.Messages[0].ID
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 && parsed.Error == nil {
		return result, nil
	}

	sendErr := fmt.Errorf("whatsapp: send failed: status %d", resp.StatusCode)
	if parsed.Error != nil {
		sendErr = fmt.Errorf("whatsapp: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if permanentStatus(resp.StatusCode) {
		return result, &delivery.PermanentError{StatusCode: resp.StatusCode, Err: sendErr}
	}
	return result, sendErr
}

// permanentStatus marks responses retrying cannot fix: bad token, malformed
// recipient, or a recipient that blocked the business.
func permanentStatus(status int) bool {
	return status == http.StatusBadRequest ||
		status == http.StatusUnauthorized ||
		status == http.StatusForbidden ||
		status == http.StatusNotFound
}
