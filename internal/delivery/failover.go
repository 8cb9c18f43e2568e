package delivery

import (
	"context"
	"errors"

	"github.com/relaydesk/relaydesk/pkg/logging"
)

// FailoverSender attempts a primary send, then falls back to a secondary
// provider on error.
type FailoverSender struct {
	primary       Sender
	secondary     Sender
	primaryName   string
	secondaryName string
	logger        *logging.Logger
}

// NewFailoverSender builds a failover sender with named providers.
func NewFailoverSender(primary Sender, primaryName string, secondary Sender, secondaryName string, logger *logging.Logger) *FailoverSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailoverSender{
		primary:       primary,
		secondary:     secondary,
		primaryName:   primaryName,
		secondaryName: secondaryName,
		logger:        logger,
	}
}

var _ Sender = (*FailoverSender)(nil)

// Send tries the primary provider first, then the secondary on failure.
func (f *FailoverSender) Send(ctx context.Context, identifier, text string) (Result, error) {
	if f == nil || f.primary == nil {
		return Result{}, errors.New("delivery: failover primary sender not configured")
	}

	result, err := f.primary.Send(ctx, identifier, text)
	if err == nil {
		return result, nil
	}
	if f.secondary == nil {
		return result, err
	}

	f.logger.Warn("primary delivery failed; attempting fallback",
		"provider", f.primaryName, "fallback", f.secondaryName, "error", err, "to", identifier)

	fallbackResult, fallbackErr := f.secondary.Send(ctx, identifier, text)
	if fallbackErr != nil {
		f.logger.Error("fallback delivery failed",
			"provider", f.secondaryName, "error", fallbackErr, "to", identifier)
		return fallbackResult, fallbackErr
	}
	f.logger.Info("fallback delivery succeeded", "provider", f.secondaryName, "to", identifier)
	return fallbackResult, nil
}
