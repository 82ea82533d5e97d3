package util

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"
	"time"
)

// RetryConfig holds retry configuration
type RetryConfig struct {
	MaxAttempts int           // Attempts including the first
	InitialWait time.Duration // Doubled after every failed attempt
	MaxWait     time.Duration // Cap on a single wait
}

// DefaultRetryConfig is used for cache directory and snapshot file operations
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 100 * time.Millisecond,
		MaxWait:     5 * time.Second,
	}
}

// NetworkRetryConfig is used for catalog API lookups
func NetworkRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts: 3,
		InitialWait: 500 * time.Millisecond,
		MaxWait:     10 * time.Second,
	}
}

// transient is implemented by errors that know whether a retry can help,
// such as HTTP status errors from the catalog client
type transient interface {
	Transient() bool
}

// transientErrnos are syscall errors seen on flaky networks and network shares
var transientErrnos = []syscall.Errno{
	syscall.EAGAIN,
	syscall.ETIMEDOUT,
	syscall.ECONNRESET,
	syscall.ECONNABORTED,
	syscall.ECONNREFUSED,
	syscall.ENETDOWN,
	syscall.ENETUNREACH,
	syscall.EHOSTDOWN,
	syscall.EHOSTUNREACH,
	syscall.EIO,
}

// transientMessages catch wrapped errors whose type was lost on the way
var transientMessages = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"broken pipe",
	"no route to host",
	"network is unreachable",
	"temporary failure",
	"unexpected eof",
	"server closed idle connection",
}

// IsRetryableError reports whether err is worth another attempt.
// Context cancellation never is; rate limiting always is.
func IsRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var t transient
	if errors.As(err, &t) {
		return t.Transient()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		for _, e := range transientErrnos {
			if errno == e {
				return true
			}
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range transientMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs operation until it succeeds, fails with a
// non-retryable error, runs out of attempts or ctx is done.
func RetryWithBackoff[T any](ctx context.Context, cfg *RetryConfig, operationName string, operation func(ctx context.Context) (T, error)) (T, error) {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var result T
	var err error
	wait := cfg.InitialWait

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err = operation(ctx)
		if err == nil {
			if attempt > 1 {
				DebugLog("Retry: %s succeeded on attempt %d/%d", operationName, attempt, cfg.MaxAttempts)
			}
			return result, nil
		}

		if !IsRetryableError(err) {
			DebugLog("Retry: %s failed with non-retryable error: %v", operationName, err)
			return result, err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		DebugLog("Retry: %s failed (attempt %d/%d), retrying in %v: %v",
			operationName, attempt, cfg.MaxAttempts, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, fmt.Errorf("%s: %w", operationName, ctx.Err())
		case <-timer.C:
		}

		wait = min(wait*2, cfg.MaxWait)
	}

	WarnLog("Retry: %s failed after %d attempts: %v", operationName, cfg.MaxAttempts, err)
	return result, fmt.Errorf("max retries exceeded (%d attempts): %w", cfg.MaxAttempts, err)
}

// Retry is RetryWithBackoff for operations without a result
func Retry(ctx context.Context, cfg *RetryConfig, operationName string, operation func(ctx context.Context) error) error {
	_, err := RetryWithBackoff(ctx, cfg, operationName, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

// RetryableRename renames a file, retrying transient failures of network shares
func RetryableRename(oldpath, newpath string, cfg *RetryConfig) error {
	return Retry(context.Background(), cfg, fmt.Sprintf("rename(%s -> %s)", oldpath, newpath), func(context.Context) error {
		return os.Rename(oldpath, newpath)
	})
}

// RetryableMkdirAll creates a directory, retrying transient failures of network shares
func RetryableMkdirAll(path string, perm os.FileMode, cfg *RetryConfig) error {
	return Retry(context.Background(), cfg, fmt.Sprintf("mkdir(%s)", path), func(context.Context) error {
		return os.MkdirAll(path, perm)
	})
}
