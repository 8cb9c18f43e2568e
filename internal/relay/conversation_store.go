package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaydesk/relaydesk/internal/intake"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// ConversationStore is the in-memory thread↔customer mapping. Lookups work
// three ways: by conversation ID, by (channel, user) and by hub thread. Every
// Put opens a fresh TTL window; expired entries read as not-found and are
// deleted by the read that finds them.
type ConversationStore struct {
	mu       sync.Mutex
	byID     map[string]*Conversation
	byUser   map[userKey]string // → conversation ID
	byThread map[string]string  // → conversation ID

	ttl    time.Duration
	logger *logging.Logger
	now    func() time.Time
}

type userKey struct {
	channel Channel
	userID  string
}

// NewConversationStore creates a store whose entries live for ttl after each
// Put (default 24h).
func NewConversationStore(ttl time.Duration, logger *logging.Logger) *ConversationStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ConversationStore{
		byID:     make(map[string]*Conversation),
		byUser:   make(map[userKey]string),
		byThread: make(map[string]string),
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Put records the mapping for (channel, userID) and returns the conversation.
// An existing mapping for the same user is superseded, so GetByUser only ever
// sees the most recent thread.
func (s *ConversationStore) Put(channel Channel, userID, threadID, spaceID string, sender SenderInfo) Conversation {
	now := s.now()
	conv := &Conversation{
		ID:           uuid.NewString(),
		Channel:      channel,
		UserID:       intake.NormalizeIdentifier(userID),
		ThreadID:     threadID,
		SpaceID:      spaceID,
		Sender:       sender,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}
	key := userKey{channel: channel, userID: conv.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if oldID, ok := s.byUser[key]; ok {
		s.removeLocked(oldID)
	}
	if oldID, ok := s.byThread[threadID]; ok {
		s.removeLocked(oldID)
	}

	s.byID[conv.ID] = conv
	s.byUser[key] = conv.ID
	if threadID != "" {
		s.byThread[threadID] = conv.ID
	}
	return *conv
}

// Get looks a conversation up by ID.
func (s *ConversationStore) Get(conversationID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(conversationID)
}

// GetByUser looks the current conversation up for (channel, userID).
func (s *ConversationStore) GetByUser(channel Channel, userID string) (Conversation, error) {
	key := userKey{channel: channel, userID: intake.NormalizeIdentifier(userID)}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[key]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return s.liveLocked(id)
}

// GetByThread looks a conversation up by its hub thread.
func (s *ConversationStore) GetByThread(threadID string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byThread[threadID]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return s.liveLocked(id)
}

// Touch refreshes LastActivity without extending the expiry window.
func (s *ConversationStore) Touch(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byID[conversationID]; ok {
		conv.LastActivity = s.now()
	}
}

// Update applies mutate to the stored conversation, if it is still live.
// Department and customer-name backfills go through here.
func (s *ConversationStore) Update(conversationID string, mutate func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.liveLocked(conversationID); err != nil {
		return err
	}
	mutate(s.byID[conversationID])
	return nil
}

// Count reports the number of live conversations.
func (s *ConversationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, conv := range s.byID {
		if now.Before(conv.ExpiresAt) {
			n++
		}
	}
	return n
}

// CountByChannel reports live conversations per channel.
func (s *ConversationStore) CountByChannel() map[Channel]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	counts := make(map[Channel]int, len(Channels))
	for _, conv := range s.byID {
		if now.Before(conv.ExpiresAt) {
			counts[conv.Channel]++
		}
	}
	return counts
}

// Sweep removes expired conversations and returns how many were dropped.
func (s *ConversationStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for id, conv := range s.byID {
		if !now.Before(conv.ExpiresAt) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed
}

// Run sweeps expired conversations on interval until ctx is cancelled. The
// sweep bounds memory for users that never message again after expiry: lazy
// deletion alone only fires on reads.
func (s *ConversationStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Debug("conversation sweep", "removed", removed)
			}
		}
	}
}

// liveLocked returns the conversation for id, deleting it when expired.
func (s *ConversationStore) liveLocked(id string) (Conversation, error) {
	conv, ok := s.byID[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	if !s.now().Before(conv.ExpiresAt) {
		s.removeLocked(id)
		return Conversation{}, ErrConversationNotFound
	}
	return *conv, nil
}

// removeLocked drops id from every index.
func (s *ConversationStore) removeLocked(id string) {
	conv, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	key := userKey{channel: conv.Channel, userID: conv.UserID}
	if mapped, ok := s.byUser[key]; ok && mapped == id {
		delete(s.byUser, key)
	}
	if conv.ThreadID != "" {
		if mapped, ok := s.byThread[conv.ThreadID]; ok && mapped == id {
			delete(s.byThread, conv.ThreadID)
		}
	}
}
