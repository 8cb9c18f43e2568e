package hub

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/api/chat/v1"

	"github.com/relaydesk/relaydesk/internal/relay"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// MessageLister is the slice of Client the poller depends on.
type MessageLister interface {
	ListMessagesSince(ctx context.Context, spaceID, sinceRFC3339 string) ([]*chat.Message, error)
}

// ReplyHandler receives team replies read out of hub threads.
type ReplyHandler interface {
	HandleReply(ctx context.Context, threadID, text string) (relay.ReplyResult, error)
}

// Poller periodically reads new human messages from the watched spaces and
// relays thread replies back to customers. It is the fallback for
// deployments where Google Chat cannot reach the app with a webhook.
type Poller struct {
	lister   MessageLister
	handler  ReplyHandler
	spaces   []string
	interval time.Duration
	logger   *logging.Logger

	// per-space high-water mark of the last message seen
	since map[string]string

	now func() time.Time
}

// NewPoller creates a poller over the given spaces. The first poll only picks
// up messages created after construction.
func NewPoller(lister MessageLister, handler ReplyHandler, spaces []string, interval time.Duration, logger *logging.Logger) *Poller {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	p := &Poller{
		lister:   lister,
		handler:  handler,
		spaces:   spaces,
		interval: interval,
		logger:   logger,
		since:    make(map[string]string, len(spaces)),
		now:      time.Now,
	}
	start := p.now().UTC().Format(time.RFC3339Nano)
	for _, space := range spaces {
		p.since[space] = start
	}
	return p
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll reads new messages from every watched space once.
func (p *Poller) Poll(ctx context.Context) {
	for _, space := range p.spaces {
		if err := p.pollSpace(ctx, space); err != nil {
			p.logger.Warn("hub poll failed", "space_id", space, "error", err)
		}
	}
}

func (p *Poller) pollSpace(ctx context.Context, spaceID string) error {
	messages, err := p.lister.ListMessagesSince(ctx, spaceID, p.since[spaceID])
	if err != nil {
		return err
	}

	for _, m := range messages {
		if m.CreateTime != "" {
			p.since[spaceID] = m.CreateTime
		}

		text := strings.TrimSpace(m.Text)
		if text == "" || m.Thread == nil || m.Thread.Name == "" {
			continue
		}
		// Slash commands are handled by the hub webhook, not relayed.
		if strings.HasPrefix(text, "/") {
			continue
		}

		if _, err := p.handler.HandleReply(ctx, m.Thread.Name, text); err != nil {
			if errors.Is(err, relay.ErrConversationNotFound) {
				continue
			}
			p.logger.Warn("hub reply relay failed",
				"space_id", spaceID,
				"thread_id", m.Thread.Name,
				"error", err,
			)
		}
	}
	return nil
}
