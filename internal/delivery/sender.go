package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Result describes a completed delivery attempt.
type Result struct {
	StatusCode        int
	ProviderMessageID string
}

// Sender delivers one outbound message to a customer identifier. A nil error
// means the provider accepted the message.
type Sender interface {
	Send(ctx context.Context, identifier, text string) (Result, error)
}

// PermanentError marks a failure that retrying cannot fix: bad credentials,
// malformed recipient, recipient blocked.
type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery: permanent failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("delivery: permanent failure (status %d)", e.StatusCode)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsPermanent reports whether err carries a PermanentError anywhere in its
// chain, or an HTTP status class that retrying cannot fix.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// nonRetryableStatus covers authentication failure, malformed requests and
// blocked recipients.
func nonRetryableStatus(status int) bool {
	switch status {
	case 400, 401, 403, 404, 405, 410, 422:
		return true
	}
	return false
}
