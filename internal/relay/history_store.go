package relay

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HistoryStore keeps a rolling window of relayed messages per conversation,
// oldest first. Entries fall out of the window after the store's TTL.
type HistoryStore interface {
	Append(ctx context.Context, conversationID string, entry HistoryEntry) error
	Recent(ctx context.Context, conversationID string, limit int) ([]HistoryEntry, error)
}

// MemoryHistoryStore is the in-process HistoryStore. Appends trim entries
// that have aged out, so a busy conversation self-bounds.
type MemoryHistoryStore struct {
	mu      sync.Mutex
	entries map[string][]HistoryEntry

	ttl time.Duration
	now func() time.Time
}

var _ HistoryStore = (*MemoryHistoryStore)(nil)

// NewMemoryHistoryStore creates a history store with the given rolling
// window (default 24h).
func NewMemoryHistoryStore(ttl time.Duration) *MemoryHistoryStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryHistoryStore{
		entries: make(map[string][]HistoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Append adds entry to the conversation's history.
func (s *MemoryHistoryStore) Append(_ context.Context, conversationID string, entry HistoryEntry) error {
	if conversationID == "" {
		return ErrConversationNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[conversationID] = append(s.trimLocked(s.entries[conversationID]), entry)
	return nil
}

// Recent returns up to limit newest entries in ascending time order.
// limit <= 0 returns the whole window.
func (s *MemoryHistoryStore) Recent(_ context.Context, conversationID string, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.trimLocked(s.entries[conversationID])
	if len(live) == 0 {
		delete(s.entries, conversationID)
		return nil, nil
	}
	s.entries[conversationID] = live

	if limit > 0 && len(live) > limit {
		live = live[len(live)-limit:]
	}
	out := make([]HistoryEntry, len(live))
	copy(out, live)
	return out, nil
}

// Sweep drops aged-out entries across all conversations.
func (s *MemoryHistoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, entries := range s.entries {
		live := s.trimLocked(entries)
		removed += len(entries) - len(live)
		if len(live) == 0 {
			delete(s.entries, id)
			continue
		}
		s.entries[id] = live
	}
	return removed
}

// Run sweeps aged-out history on interval until ctx is cancelled.
func (s *MemoryHistoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// trimLocked drops entries older than the rolling window. Entries are
// appended in time order, so the first fresh index bounds the cut.
func (s *MemoryHistoryStore) trimLocked(entries []HistoryEntry) []HistoryEntry {
	cutoff := s.now().Add(-s.ttl)
	i := 0
	for i < len(entries) && entries[i].Timestamp.Before(cutoff) {
		i++
	}
	return entries[i:]
}
