package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	err   error
	calls int
	last  Record
}

func (s *stubNotifier) NotifyEscalation(_ context.Context, rec Record) error {
	s.calls++
	s.last = rec
	return s.err
}

func TestStore_ManualVariant(t *testing.T) {
	s := NewStore(nil)
	ctx := context.Background()

	s.Escalate(ctx, Request{Identifier: "123", ThreadID: "thread-1", CustomerName: "John"})
	assert.True(t, s.IsEscalated("123"))

	// No timeout: still escalated arbitrarily far in the future.
	base := time.Now()
	s.now = func() time.Time { return base.Add(1000 * time.Hour) }
	assert.True(t, s.IsEscalated("123"))

	remaining, ok := s.RemainingTime("123")
	assert.True(t, ok)
	assert.Equal(t, time.Duration(0), remaining)

	assert.True(t, s.Clear("123"))
	assert.False(t, s.IsEscalated("123"))
	assert.False(t, s.Clear("123"))
}

func TestStore_AutoExpiry(t *testing.T) {
	s := NewStore(nil).WithAutoExpiry(30 * time.Minute)
	ctx := context.Background()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Escalate(ctx, Request{Identifier: "123"})
	assert.True(t, s.IsEscalated("123"))
	assert.Equal(t, 1, s.Count())

	remaining, ok := s.RemainingTime("123")
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, remaining)

	// Expired records are absent and the check deletes them.
	s.now = func() time.Time { return base.Add(31 * time.Minute) }
	assert.False(t, s.IsEscalated("123"))
	assert.Equal(t, 0, s.Count())
	_, ok = s.Get("123")
	assert.False(t, ok)
}

func TestStore_ExtendResetsCountdown(t *testing.T) {
	s := NewStore(nil).WithAutoExpiry(30 * time.Minute)
	ctx := context.Background()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Escalate(ctx, Request{Identifier: "123"})

	// A human reply at t+20m restarts the 30m window.
	s.now = func() time.Time { return base.Add(20 * time.Minute) }
	assert.True(t, s.Extend("123"))

	s.now = func() time.Time { return base.Add(45 * time.Minute) }
	assert.True(t, s.IsEscalated("123"))

	s.now = func() time.Time { return base.Add(51 * time.Minute) }
	assert.False(t, s.IsEscalated("123"))
	assert.False(t, s.Extend("123"))
}

func TestStore_ExtendIsNoopWithoutTimeout(t *testing.T) {
	s := NewStore(nil)
	s.Escalate(context.Background(), Request{Identifier: "123"})
	assert.False(t, s.Extend("123"))
	assert.True(t, s.IsEscalated("123"))
}

func TestStore_NotifierCalledAndFailureTolerated(t *testing.T) {
	notifier := &stubNotifier{err: errors.New("smtp down")}
	s := NewStore(nil).WithNotifier(notifier)

	rec := s.Escalate(context.Background(), Request{
		Identifier:   "+1 555 0100",
		ThreadID:     "thread-9",
		CustomerName: "Maria",
		History:      []string{"customer: help", "bot: routing you now"},
	})

	assert.Equal(t, 1, notifier.calls)
	assert.Equal(t, "Maria", notifier.last.CustomerName)
	// The escalation sticks even though the notification failed.
	assert.True(t, s.IsEscalated("+1 555 0100"))
	assert.Equal(t, "15550100", rec.Identifier)
}

func TestStore_IdentifierNormalization(t *testing.T) {
	s := NewStore(nil)
	s.Escalate(context.Background(), Request{Identifier: "+1 (555) 010-0000"})
	assert.True(t, s.IsEscalated("15550100000"))
	assert.True(t, s.Clear("1-555-010-0000"))
}

func TestStore_Sweep(t *testing.T) {
	s := NewStore(nil).WithAutoExpiry(time.Hour)
	ctx := context.Background()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.Escalate(ctx, Request{Identifier: "a"})
	s.Escalate(ctx, Request{Identifier: "b"})
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	s.Escalate(ctx, Request{Identifier: "c"})

	s.now = func() time.Time { return base.Add(61 * time.Minute) }
	assert.Equal(t, 2, s.Sweep())
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.IsEscalated("c"))
}

func TestEscalationEmail(t *testing.T) {
	subject, body := escalationEmail(Record{
		Identifier:   "15550100",
		CustomerName: "John",
		ThreadID:     "spaces/x/threads/y",
		History:      []string{"customer: it is broken", "agent: looking into it"},
		EscalatedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Contains(t, subject, "John")
	assert.Contains(t, body, "spaces/x/threads/y")
	assert.Contains(t, body, "it is broken")
}
