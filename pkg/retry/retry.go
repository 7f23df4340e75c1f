// Package retry implements the bounded retry policy shared by every event
// handler that performs a remote or transactional step.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const DefaultMaxRetries = 3

// Policy bounds the number of attempts made for a unit of work. With a zero
// Delay attempts follow each other immediately.
type Policy struct {
	MaxRetries int
	Delay      time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func Default() Policy {
	return Policy{MaxRetries: DefaultMaxRetries}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it after the first attempt.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do runs fn until it succeeds or the policy is exhausted. It returns the
// number of attempts made and the last error, unchanged, so the caller can
// decide between dead-lettering and publishing a failure event.
func (p Policy) Do(ctx context.Context, log *slog.Logger, op string, fn func(ctx context.Context) error) (int, error) {
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	delay := p.Delay

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if IsPermanent(err) {
			log.WarnContext(ctx, "operation failed permanently", "op", op, "attempt", attempt, "err", err)
			return attempt, err
		}
		log.WarnContext(ctx, "operation attempt failed", "op", op, "attempt", attempt, "max_retries", maxRetries, "err", err)

		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if attempt == maxRetries || delay <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
		if p.Multiplier > 1 {
			delay = time.Duration(float64(delay) * p.Multiplier)
			if p.MaxDelay > 0 && delay > p.MaxDelay {
				delay = p.MaxDelay
			}
		}
	}

	log.ErrorContext(ctx, "operation retries exhausted", "op", op, "attempts", maxRetries, "err", lastErr)
	return maxRetries, lastErr
}
