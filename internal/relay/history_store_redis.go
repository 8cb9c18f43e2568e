package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const historyKeyPrefix = "relay:history:"

// RedisHistoryStore keeps conversation history in Redis lists so a restart
// does not lose the rolling window. Same contract as MemoryHistoryStore. The
// key-level TTL refreshes on every append and only reaps idle conversations;
// Recent filters entries against the rolling window itself.
type RedisHistoryStore struct {
	redis       *redis.Client
	ttl         time.Duration
	maxMessages int64
	tracer      trace.Tracer
	now         func() time.Time
}

var _ HistoryStore = (*RedisHistoryStore)(nil)

// NewRedisHistoryStore creates a Redis-backed history store. Returns nil when
// redisClient is nil so callers can fall through to the memory store.
func NewRedisHistoryStore(redisClient *redis.Client, ttl time.Duration) *RedisHistoryStore {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHistoryStore{
		redis:       redisClient,
		ttl:         ttl,
		maxMessages: 250,
		tracer:      otel.Tracer("relaydesk.internal.relay.history"),
		now:         time.Now,
	}
}

// Append adds entry to the conversation's history list.
func (s *RedisHistoryStore) Append(ctx context.Context, conversationID string, entry HistoryEntry) error {
	if conversationID == "" {
		return ErrConversationNotFound
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("relay: marshal history entry: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "relay.history.append")
	defer span.End()

	key := historyKey(conversationID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxMessages > 0 {
		pipe.LTrim(ctx, key, -s.maxMessages, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("relay: append history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit newest entries in ascending time order.
func (s *RedisHistoryStore) Recent(ctx context.Context, conversationID string, limit int) ([]HistoryEntry, error) {
	if conversationID == "" {
		return nil, ErrConversationNotFound
	}

	ctx, span := s.tracer.Start(ctx, "relay.history.recent")
	defer span.End()

	key := historyKey(conversationID)
	raw, err := s.redis.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("relay: read history: %w", err)
	}

	cutoff := s.now().Add(-s.ttl)
	prefix := 0
	entries := make([]HistoryEntry, 0, len(raw))
	for i, item := range raw {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			// A corrupt item should not hide the rest of the window.
			continue
		}
		if entry.Timestamp.Before(cutoff) {
			if prefix == i {
				prefix++
			}
			continue
		}
		entries = append(entries, entry)
	}
	if prefix > 0 {
		// Entries are appended in time order, so the aged prefix can be
		// dropped in place. Failure is harmless: the next read filters again.
		s.redis.LTrim(ctx, key, int64(prefix), -1)
	}

	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func historyKey(conversationID string) string {
	return historyKeyPrefix + conversationID
}
