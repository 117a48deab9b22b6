package email

import (
	"context"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/leadflow/pkg/protocol"
)

const MaxSendRetries = 3

// DefaultBackOff waits 1s, 2s and 4s between attempts.
func DefaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	return backoff.WithMaxRetries(b, MaxSendRetries)
}

// IsTransient reports whether err is a network failure worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EHOSTUNREACH) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr) && netErr.Timeout()
}

// SendWithRetry sends msg, retrying transient failures according to b. Other errors return immediately.
func SendWithRetry(ctx context.Context, sender protocol.EmailSender, msg protocol.EmailMessage, b backoff.BackOff) error {
	operation := func() error {
		err := sender.SendEmail(ctx, msg)
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
