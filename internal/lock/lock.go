// Package lock provides a cross-process exclusive lock backed by flock(2) on
// a lock file. The kernel drops the lock when the holding process exits.
package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// ErrTimeout is returned when the lock could not be acquired within the
// configured wait. It is retryable.
var ErrTimeout = errors.New("lock timeout")

// Options bound how long Acquire waits.
type Options struct {
	Timeout time.Duration // per attempt
	Retries int           // extra attempts after the first
	Poll    time.Duration
}

// DefaultOptions mirrors the [lock] config defaults.
func DefaultOptions() Options {
	return Options{
		Timeout: 5 * time.Second,
		Retries: 2,
		Poll:    25 * time.Millisecond,
	}
}

// Lock is a held lock. Release it exactly once.
type Lock struct {
	fl       *flock.Flock
	released bool
}

// Acquire takes the exclusive lock at path, waiting up to
// opts.Timeout*(opts.Retries+1). The returned error wraps ErrTimeout when
// the wait is exhausted, or ctx.Err() when canceled.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock dir: %w", err)
	}

	fl := flock.New(path)
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		ok, err := tryOnce(ctx, fl, opts)
		if err != nil {
			return nil, err
		}
		if ok {
			return &Lock{fl: fl}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimeout, path, opts.Retries+1)
}

// tryOnce polls for the lock until opts.Timeout passes. A false result with
// no error means the attempt timed out.
func tryOnce(ctx context.Context, fl *flock.Flock, opts Options) (bool, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ok, err := fl.TryLockContext(attemptCtx, opts.Poll)
	switch {
	case ok:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("locking %s: %w", fl.Path(), err)
	}
	return false, nil
}

// Release unlocks and closes the lock file, which stays on disk for the next
// holder. Calling it more than once is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("releasing lock: %w", err)
	}
	return nil
}

// Held reports whether the lock is still held by this handle.
func (l *Lock) Held() bool { return l != nil && !l.released && l.fl.Locked() }

// With runs fn while holding the lock at path. The lock is released on
// every return path, including a panic in fn.
func With(ctx context.Context, path string, opts Options, fn func() error) (err error) {
	l, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := l.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	return fn()
}
