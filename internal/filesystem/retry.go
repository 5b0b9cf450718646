package filesystem

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"clip-catalog/internal/logging"
	"clip-catalog/internal/metrics"
)

// RetryConfig configures retry behavior for filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// IsStale reports whether err is a stale file handle (ESTALE).
func IsStale(err error) bool {
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == syscall.ESTALE
}

// Stat is os.Stat that retries stale file handles.
func Stat(ctx context.Context, path string, config RetryConfig) (os.FileInfo, error) {
	return withRetry(ctx, "stat", path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// ReadDir is os.ReadDir that retries stale file handles.
func ReadDir(ctx context.Context, path string, config RetryConfig) ([]os.DirEntry, error) {
	return withRetry(ctx, "readdir", path, config, func() ([]os.DirEntry, error) {
		return os.ReadDir(path)
	})
}

// withRetry runs fn until it succeeds, fails with anything other than
// ESTALE, runs out of attempts or ctx is done. Backoff doubles up to
// MaxBackoff.
func withRetry[T any](ctx context.Context, op, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("%s succeeded on retry %d for %s", op, attempt, path)
			}
			return v, nil
		}
		lastErr = err

		if !IsStale(err) {
			return v, err
		}
		metrics.FilesystemStaleErrors.WithLabelValues(op).Inc()

		// Don't sleep after the last attempt
		if attempt == config.MaxRetries {
			break
		}
		metrics.FilesystemRetryAttempts.WithLabelValues(op).Inc()
		logging.Debug("%s stale file handle for %s, retrying in %v (attempt %d/%d)",
			op, path, backoff, attempt+1, config.MaxRetries)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, config.MaxBackoff)
	}

	logging.Warn("%s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	metrics.FilesystemRetryFailures.WithLabelValues(op).Inc()
	var zero T
	return zero, lastErr
}
