package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/vovakirdan/chatkeep/internal/store"
)

// retry calls fn up to attempts times, waiting backoff between attempts.
// It stops early on success, on cancellation, and on errors that retrying
// cannot fix. The last error is returned; there is no wait after the final
// attempt.
func (s *SQLiteStore) retry(ctx context.Context, logger zerolog.Logger, attempts int, backoff time.Duration, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying operation")
			if err := s.wait(ctx, backoff); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempts", attempt).Msg("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || !isTransient(err) {
			return err
		}
		logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", attempts).Msg("operation failed")
	}

	logger.Error().Err(lastErr).Int("attempts", attempts).Msg("operation failed after all retries")
	return lastErr
}

// isTransient reports whether err may go away on retry. SQLite errors are
// classified by code; anything else coming from the driver or the connection
// pool is treated as transient.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrFull, sqlite3.ErrCantOpen, sqlite3.ErrProtocol:
			return true
		default:
			return false
		}
	}
	return !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrValidation)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
