package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSender returns its outcomes in order, repeating the last one.
type scriptedSender struct {
	outcomes []outcome
	calls    int
}

type outcome struct {
	result Result
	err    error
}

func (s *scriptedSender) Send(_ context.Context, _, _ string) (Result, error) {
	i := s.calls
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	}
	s.calls++
	out := s.outcomes[i]
	return out.result, out.err
}

func newRetrying(next Sender) (*RetryingSender, *[]time.Duration) {
	slept := &[]time.Duration{}
	r := NewRetryingSender(next, nil)
	r.sleep = func(d time.Duration) { *slept = append(*slept, d) }
	return r, slept
}

func TestRetryingSender_SucceedsFirstAttempt(t *testing.T) {
	stub := &scriptedSender{outcomes: []outcome{
		{result: Result{StatusCode: 200, ProviderMessageID: "m1"}},
	}}
	r, slept := newRetrying(stub)

	result, err := r.Send(context.Background(), "+15550100", "hello")
	require.NoError(t, err)
	assert.Equal(t, "m1", result.ProviderMessageID)
	assert.Equal(t, 1, stub.calls)
	assert.Empty(t, *slept)
}

func TestRetryingSender_RetriesTransientThenSucceeds(t *testing.T) {
	stub := &scriptedSender{outcomes: []outcome{
		{result: Result{StatusCode: 503}, err: errors.New("service unavailable")},
		{result: Result{StatusCode: 500}, err: errors.New("internal error")},
		{result: Result{StatusCode: 200}},
	}}
	r, slept := newRetrying(stub)

	_, err := r.Send(context.Background(), "+15550100", "hello")
	require.NoError(t, err)
	assert.Equal(t, 3, stub.calls)
	// Backoff doubles: 1x then 2x the base delay.
	require.Len(t, *slept, 2)
	assert.Equal(t, r.baseDelay, (*slept)[0])
	assert.Equal(t, 2*r.baseDelay, (*slept)[1])
}

func TestRetryingSender_ExhaustsAttempts(t *testing.T) {
	stub := &scriptedSender{outcomes: []outcome{
		{result: Result{StatusCode: 500}, err: errors.New("boom")},
	}}
	r, _ := newRetrying(stub)

	_, err := r.Send(context.Background(), "+15550100", "hello")
	require.Error(t, err)
	assert.Equal(t, 3, stub.calls)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestRetryingSender_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := &PermanentError{StatusCode: 401, Err: errors.New("bad token")}
	stub := &scriptedSender{outcomes: []outcome{
		{result: Result{StatusCode: 401}, err: permanent},
	}}
	r, slept := newRetrying(stub)

	_, err := r.Send(context.Background(), "+15550100", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
	assert.Empty(t, *slept)
	assert.True(t, IsPermanent(err))
}

func TestRetryingSender_NonRetryableStatusStops(t *testing.T) {
	stub := &scriptedSender{outcomes: []outcome{
		{result: Result{StatusCode: 404}, err: errors.New("recipient not found")},
	}}
	r, _ := newRetrying(stub)

	_, err := r.Send(context.Background(), "+15550100", "hello")
	require.Error(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestIsPermanent_WrappedError(t *testing.T) {
	inner := &PermanentError{StatusCode: 403}
	wrapped := errors.Join(errors.New("outer"), inner)
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsPermanent(errors.New("transient")))
}

func TestFailoverSender(t *testing.T) {
	t.Run("primary succeeds", func(t *testing.T) {
		primary := &scriptedSender{outcomes: []outcome{{result: Result{StatusCode: 200}}}}
		secondary := &scriptedSender{outcomes: []outcome{{result: Result{StatusCode: 200}}}}
		f := NewFailoverSender(primary, "meta", secondary, "backup", nil)

		_, err := f.Send(context.Background(), "u1", "hi")
		require.NoError(t, err)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 0, secondary.calls)
	})

	t.Run("falls back on primary failure", func(t *testing.T) {
		primary := &scriptedSender{outcomes: []outcome{{err: errors.New("down")}}}
		secondary := &scriptedSender{outcomes: []outcome{{result: Result{StatusCode: 200, ProviderMessageID: "s1"}}}}
		f := NewFailoverSender(primary, "meta", secondary, "backup", nil)

		result, err := f.Send(context.Background(), "u1", "hi")
		require.NoError(t, err)
		assert.Equal(t, "s1", result.ProviderMessageID)
	})

	t.Run("both fail", func(t *testing.T) {
		primary := &scriptedSender{outcomes: []outcome{{err: errors.New("down")}}}
		secondary := &scriptedSender{outcomes: []outcome{{err: errors.New("also down")}}}
		f := NewFailoverSender(primary, "meta", secondary, "backup", nil)

		_, err := f.Send(context.Background(), "u1", "hi")
		assert.EqualError(t, err, "also down")
	})

	t.Run("no secondary returns primary error", func(t *testing.T) {
		primary := &scriptedSender{outcomes: []outcome{{err: errors.New("down")}}}
		f := NewFailoverSender(primary, "meta", nil, "", nil)

		_, err := f.Send(context.Background(), "u1", "hi")
		assert.EqualError(t, err, "down")
	})
}
