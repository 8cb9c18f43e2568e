package relay

import (
	"errors"
	"time"
)

// Channel identifies the customer-facing messaging surface.
type Channel string

const (
	ChannelWhatsApp  Channel = "whatsapp"
	ChannelInstagram Channel = "instagram"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelWhatsApp, ChannelInstagram}

// Valid reports whether c is a supported channel.
func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

var (
	// ErrConversationNotFound covers unknown and expired conversations.
	ErrConversationNotFound = errors.New("relay: conversation not found")
	// ErrEmptyText rejects messages with nothing to relay.
	ErrEmptyText = errors.New("relay: empty message text")
	// ErrMissingIdentifier rejects messages with no sender identifier.
	ErrMissingIdentifier = errors.New("relay: missing sender identifier")
	// ErrInvalidChannel rejects unknown channels.
	ErrInvalidChannel = errors.New("relay: invalid channel")
)

// SenderInfo carries what is known about the customer behind a conversation.
type SenderInfo struct {
	DisplayName   string `json:"display_name,omitempty"`
	RawIdentifier string `json:"raw_identifier"`
	FirstMessage  string `json:"first_message,omitempty"`
	CustomerName  string `json:"customer_name,omitempty"`
	Company       string `json:"company,omitempty"`
	Language      string `json:"language,omitempty"`
}

// Conversation maps a hub thread to the customer and channel it belongs to,
// so team replies find their way back.
type Conversation struct {
	ID           string     `json:"id"`
	Channel      Channel    `json:"channel"`
	UserID       string     `json:"user_id"`
	ThreadID     string     `json:"thread_id"`
	SpaceID      string     `json:"space_id"`
	Department   string     `json:"department,omitempty"`
	Sender       SenderInfo `json:"sender"`
	CreatedAt    time.Time  `json:"created_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// HistoryEntry is one relayed message in a conversation's rolling window.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Direction string    `json:"direction"` // "inbound" or "outbound"
	Text      string    `json:"text"`
	Original  string    `json:"original,omitempty"` // pre-translation text when it differs
	Language  string    `json:"language,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	DirectionInbound  = "inbound"  // customer → hub
	DirectionOutbound = "outbound" // hub → customer
)
