package retry

import (
	"context"
	"errors"
	"time"
)

// DefaultDelay is the wait before the second attempt. It doubles after every
// failed attempt (100ms, 200ms, 400ms, ...).
const DefaultDelay = 100 * time.Millisecond

type permanentError struct {
	error
}

func (e permanentError) Unwrap() error {
	return e.error
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err}
}

// Do calls fn up to maxAttempts times with exponential backoff starting at
// delay. It returns the last error if all attempts fail, the unwrapped error
// as soon as fn returns a Permanent one, or ctx.Err() if the context is
// cancelled while waiting.
func Do(ctx context.Context, maxAttempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}

		var permanent permanentError
		if errors.As(err, &permanent) {
			return permanent.error
		}

		if i < maxAttempts-1 {
			select {
			case <-time.After(delay * time.Duration(1<<i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
