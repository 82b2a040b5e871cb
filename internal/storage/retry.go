package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// Policy configures the retry wrapper. MaxRetries counts additional attempts
// after the first; the delay doubles after every failed attempt.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// ErrRetryable is the marker for errors explicitly flagged as transient.
// Use Retryable to attach it to an error.
var ErrRetryable = errors.New("retryable storage error")

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }
func (e *retryableError) Is(target error) bool {
	return target == ErrRetryable
}

// Retryable marks err as transient so Retry will attempt it again.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
// It is terminal: callers surface it as service degradation, not user input
// error.
type ExhaustedError struct {
	Op       string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("storage operation %q failed after %d attempts: %v", e.Op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsRetryable reports whether err is worth another attempt: explicitly marked
// errors and the I/O error class. ESTALE shows up on flapping NFS mounts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.EIO, syscall.ESTALE, syscall.ETIMEDOUT, syscall.EAGAIN, syscall.EINTR} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var pathErr *os.PathError
	var linkErr *os.LinkError
	var sysErr *os.SyscallError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) || errors.As(err, &sysErr) {
		// Path-level failures that are not plain not-exist/permission problems
		// are treated as transient storage trouble.
		return !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission)
	}
	return false
}

// Retry invokes op and, when it fails with a retryable error, tries again up
// to policy.MaxRetries additional times, sleeping with doubling backoff
// between attempts. The sleep blocks the calling goroutine; cancellation is
// observed between attempts only. Non-retryable errors propagate immediately.
func Retry(ctx context.Context, logger *slog.Logger, op string, policy Policy, fn func() error) error {
	attempts := policy.MaxRetries + 1
	delay := policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				logger.Warn("retry aborted by cancellation", "op", op, "error", ctx.Err())
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err

		if attempt < attempts {
			logger.Warn("storage operation failed, will retry",
				"op", op,
				"attempt", attempt,
				"maxAttempts", attempts,
				"backoff", delay.String(),
				"error", err,
			)
		}
	}

	logger.Error("storage operation failed after all retries", "op", op, "attempts", attempts, "error", lastErr)
	return &ExhaustedError{Op: op, Attempts: attempts, Last: lastErr}
}
