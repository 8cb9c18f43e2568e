package escalation

import (
	"context"
	"sync"
	"time"

	"github.com/relaydesk/relaydesk/internal/intake"
	"github.com/relaydesk/relaydesk/pkg/logging"
)

// Record marks a customer conversation as handed off to a human. While a
// record is live the relay suppresses automated replies for that customer.
type Record struct {
	Identifier   string
	ThreadID     string
	CustomerName string
	ExternalRef  string
	History      []string
	EscalatedAt  time.Time
	ExpiresAt    time.Time // zero in the manual-clear variant
}

// Request carries the details of a new escalation.
type Request struct {
	Identifier   string
	ThreadID     string
	CustomerName string
	ExternalRef  string
	History      []string
}

// Notifier alerts staff that a conversation needs a human.
type Notifier interface {
	NotifyEscalation(ctx context.Context, rec Record) error
}

// Store tracks escalated customers keyed by normalized identifier. With a
// zero timeout escalations persist until Clear; with a positive timeout they
// expire on their own and Extend resets the countdown.
type Store struct {
	mu      sync.Mutex
	records map[string]*Record

	timeout  time.Duration
	notifier Notifier
	logger   *logging.Logger
	now      func() time.Time
}

// NewStore creates a manual-clear escalation store.
func NewStore(logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		records: make(map[string]*Record),
		logger:  logger,
		now:     time.Now,
	}
}

// WithAutoExpiry switches the store to the auto-expiring variant.
func (s *Store) WithAutoExpiry(timeout time.Duration) *Store {
	s.timeout = timeout
	return s
}

// WithNotifier attaches a staff notifier invoked on every new escalation.
func (s *Store) WithNotifier(n Notifier) *Store {
	s.notifier = n
	return s
}

// Escalate records a handoff and notifies staff. Re-escalating an already
// escalated identifier refreshes the record.
func (s *Store) Escalate(ctx context.Context, req Request) Record {
	key := intake.NormalizeIdentifier(req.Identifier)
	now := s.now()

	rec := &Record{
		Identifier:   key,
		ThreadID:     req.ThreadID,
		CustomerName: req.CustomerName,
		ExternalRef:  req.ExternalRef,
		History:      append([]string(nil), req.History...),
		EscalatedAt:  now,
	}
	if s.timeout > 0 {
		rec.ExpiresAt = now.Add(s.timeout)
	}

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()

	s.logger.Info("conversation escalated to human",
		"identifier", key, "thread_id", req.ThreadID, "customer", req.CustomerName)

	if s.notifier != nil {
		// Notification failure must not undo the escalation itself.
		if err := s.notifier.NotifyEscalation(ctx, *rec); err != nil {
			s.logger.Error("escalation staff notification failed", "error", err, "identifier", key)
		}
	}
	return *rec
}

// IsEscalated reports whether identifier is currently handed off. An expired
// record counts as absent and is deleted on the spot.
func (s *Store) IsEscalated(identifier string) bool {
	key := intake.NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return false
	}
	if s.expiredLocked(rec) {
		delete(s.records, key)
		return false
	}
	return true
}

// Get returns a copy of the live record for identifier.
func (s *Store) Get(identifier string) (Record, bool) {
	key := intake.NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || s.expiredLocked(rec) {
		if ok {
			delete(s.records, key)
		}
		return Record{}, false
	}
	return *rec, true
}

// Clear ends the handoff for identifier. Returns false when nothing was live.
func (s *Store) Clear(identifier string) bool {
	key := intake.NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return false
	}
	expired := s.expiredLocked(rec)
	delete(s.records, key)
	return !expired
}

// Extend resets the expiry countdown. Called on every human reply so an
// active conversation never falls back to the bot mid-exchange. No-op in the
// manual-clear variant.
func (s *Store) Extend(identifier string) bool {
	if s.timeout <= 0 {
		return false
	}
	key := intake.NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || s.expiredLocked(rec) {
		if ok {
			delete(s.records, key)
		}
		return false
	}
	rec.ExpiresAt = s.now().Add(s.timeout)
	return true
}

// RemainingTime reports how long until the escalation lapses. The second
// return is false when the identifier is not escalated; a manual-clear
// record reports zero remaining with true.
func (s *Store) RemainingTime(identifier string) (time.Duration, bool) {
	key := intake.NormalizeIdentifier(identifier)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok || s.expiredLocked(rec) {
		if ok {
			delete(s.records, key)
		}
		return 0, false
	}
	if rec.ExpiresAt.IsZero() {
		return 0, true
	}
	return rec.ExpiresAt.Sub(s.now()), true
}

// Count reports the number of live escalations.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, rec := range s.records {
		if !s.expiredLocked(rec) {
			n++
		}
	}
	return n
}

// Sweep removes expired records and returns how many were dropped.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, rec := range s.records {
		if s.expiredLocked(rec) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired escalations on interval until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
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
				s.logger.Debug("escalation sweep", "removed", removed)
			}
		}
	}
}

func (s *Store) expiredLocked(rec *Record) bool {
	return !rec.ExpiresAt.IsZero() && s.now().After(rec.ExpiresAt)
}
