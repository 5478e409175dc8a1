package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastOpts() Options {
	return Options{Timeout: 30 * time.Millisecond, Retries: 1, Poll: 5 * time.Millisecond}
}

// assertFree fails unless another handle can take the lock immediately.
func assertFree(t *testing.T, path string) {
	t.Helper()
	l, err := Acquire(context.Background(), path, fastOpts())
	if err != nil {
		t.Fatalf("lock at %s still held: %v", path, err)
	}
	_ = l.Release()
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "sessions.lock")
	l, err := Acquire(context.Background(), path, fastOpts())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("lock file missing while held: %v", err)
	}
	if !l.Held() {
		t.Fatal("Held() = false while held")
	}
	if err := l.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if l.Held() {
		t.Fatal("Held() = true after release")
	}
	assertFree(t, path)
}

func TestAcquire_TimesOutWhenHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lock")
	held, err := Acquire(context.Background(), path, fastOpts())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = held.Release() }()

	start := time.Now()
	_, err = Acquire(context.Background(), path, fastOpts())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("second Acquire err = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("bounded wait took %s", time.Since(start))
	}
}

func TestAcquire_LeftoverFileIsNotHeld(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lock")
	if err := os.WriteFile(path, []byte(`{"pid":1}`), 0o600); err != nil {
		t.Fatal(err)
	}
	l, err := Acquire(context.Background(), path, fastOpts())
	if err != nil {
		t.Fatalf("Acquire over leftover lock file: %v", err)
	}
	_ = l.Release()
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lock")
	held, err := Acquire(context.Background(), path, fastOpts())
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = held.Release()
	}()
	opts := fastOpts()
	opts.Timeout = 2 * time.Second
	l, err := Acquire(context.Background(), path, opts)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	_ = l.Release()
}

func TestAcquire_HonorsCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.lock")
	held, _ := Acquire(context.Background(), path, fastOpts())
	defer func() { _ = held.Release() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := fastOpts()
	opts.Timeout = time.Second
	if _, err := Acquire(ctx, path, opts); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestWith_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	opts := Options{Timeout: 5 * time.Second, Poll: time.Millisecond}

	var inside, overlaps int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := With(context.Background(), path, opts, func() error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.AddInt32(&overlaps, 1)
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			if err != nil {
				t.Errorf("With: %v", err)
			}
		}()
	}
	wg.Wait()
	if overlaps != 0 {
		t.Fatalf("%d overlapping holders", overlaps)
	}
}

func TestWith_ReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	boom := errors.New("boom")
	err := With(context.Background(), path, fastOpts(), func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("With err = %v, want boom", err)
	}
	assertFree(t, path)
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	func() {
		defer func() { _ = recover() }()
		_ = With(context.Background(), path, fastOpts(), func() error { panic("kaboom") })
	}()
	assertFree(t, path)
}
