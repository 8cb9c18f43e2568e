package hub

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/api/chat/v1"
	"google.golang.org/api/option"

	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// Client posts and reads messages in Google Chat spaces. It implements
// relay.HubPoster so the relay never sees the Chat API directly.
type Client struct {
	svc    *chat.Service
	logger *logging.Logger
	tracer trace.Tracer
}

var _ relay.HubPoster = (*Client)(nil)

// NewClient creates a Google Chat client from service-account credentials.
func NewClient(ctx context.Context, credentialsJSON []byte, logger *logging.Logger) (*Client, error) {
	return NewClientWithOptions(ctx, logger,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(chat.ChatBotScope),
	)
}

// NewClientWithOptions creates a client with explicit API options. Tests use
// it to point the service at a local HTTP server.
func NewClientWithOptions(ctx context.Context, logger *logging.Logger, opts ...option.ClientOption) (*Client, error) {
	if logger == nil {
		logger = logging.Default()
	}

	svc, err := chat.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("hub: create chat service: %w", err)
	}

	return &Client{
		svc:    svc,
		logger: logger,
		tracer: otel.Tracer("relaydesk.internal.hub"),
	}, nil
}

// PostMessage posts text into a space. An empty threadID starts a new thread;
// otherwise the message is posted as a reply in that thread. The returned
// HubThread carries the thread the message ended up in.
func (c *Client) PostMessage(ctx context.Context, spaceID, threadID, text string) (relay.HubThread, error) {
	ctx, span := c.tracer.Start(ctx, "hub.PostMessage",
		trace.WithAttributes(attribute.String("hub.space_id", spaceID)))
	defer span.End()

	if spaceID == "" {
		return relay.HubThread{}, fmt.Errorf("hub: space id is required")
	}

	msg := &chat.Message{Text: text}
	call := c.svc.Spaces.Messages.Create(spaceName(spaceID), msg).Context(ctx)
	if threadID != "" {
		msg.Thread = &chat.Thread{Name: threadID}
		call = call.MessageReplyOption("REPLY_MESSAGE_FALLBACK_TO_NEW_THREAD")
	}

	created, err := call.Do()
	if err != nil {
		return relay.HubThread{}, fmt.Errorf("hub: post message: %w", err)
	}

	thread := relay.HubThread{SpaceID: spaceID}
	if created.Space != nil && created.Space.Name != "" {
		thread.SpaceID = created.Space.Name
	}
	if created.Thread != nil {
		thread.ThreadID = created.Thread.Name
	}

	c.logger.Debug("hub message posted",
		"space_id", thread.SpaceID,
		"thread_id", thread.ThreadID,
	)
	return thread, nil
}

// ListMessagesSince returns human messages created in the space after the
// given RFC 3339 timestamp, oldest first.
func (c *Client) ListMessagesSince(ctx context.Context, spaceID, sinceRFC3339 string) ([]*chat.Message, error) {
	ctx, span := c.tracer.Start(ctx, "hub.ListMessagesSince",
		trace.WithAttributes(attribute.String("hub.space_id", spaceID)))
	defer span.End()

	call := c.svc.Spaces.Messages.List(spaceName(spaceID)).
		Filter(fmt.Sprintf(`createTime > %q`, sinceRFC3339)).
		OrderBy("createTime ASC").
		Context(ctx)

	var messages []*chat.Message
	err := call.Pages(ctx, func(page *chat.ListMessagesResponse) error {
		for _, m := range page.Messages {
			if m.Sender != nil && m.Sender.Type == "BOT" {
				continue
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("hub: list messages: %w", err)
	}
	return messages, nil
}

func spaceName(spaceID string) string {
	if strings.HasPrefix(spaceID, "spaces/") {
		return spaceID
	}
	return "spaces/" + spaceID
}
