package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/theirongolddev/tokenwise/internal/lock"
	"github.com/theirongolddev/tokenwise/internal/store"
)

// A running daemon holds tokenwised.lock in its state dir for its whole
// lifetime and describes itself in tokenwised.json.
const (
	instanceLock = "tokenwised.lock"
	instanceInfo = "tokenwised.json"
)

// ErrRunning is returned by Claim when another daemon serves the state dir.
var ErrRunning = errors.New("daemon already running")

// ErrNotRunning is returned by Stop when no daemon serves the state dir.
var ErrNotRunning = errors.New("daemon is not running")

// Instance describes a running daemon.
type Instance struct {
	PID       int       `json:"pid"`
	Addr      string    `json:"addr"`
	StartedAt time.Time `json:"started_at"`
	StateDir  string    `json:"state_dir"`
	LogFile   string    `json:"log_file,omitempty"`
}

// Claimed is a daemon's hold on its state dir. Release it on shutdown.
type Claimed struct {
	lock *lock.Lock
	info string
}

var probeLock = lock.Options{Timeout: 20 * time.Millisecond, Poll: 5 * time.Millisecond}

// Claim takes the instance lock for stateDir and publishes inst. It fails
// with ErrRunning while another process holds the lock.
func Claim(ctx context.Context, stateDir string, inst Instance) (*Claimed, error) {
	l, err := lock.Acquire(ctx, filepath.Join(stateDir, instanceLock),
		lock.Options{Timeout: 200 * time.Millisecond, Poll: 20 * time.Millisecond})
	if errors.Is(err, lock.ErrTimeout) {
		if other, ok, _ := Running(stateDir); ok && other.PID > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrRunning, other.PID)
		}
		return nil, ErrRunning
	}
	if err != nil {
		return nil, err
	}
	info := filepath.Join(stateDir, instanceInfo)
	if err := store.WriteJSONAtomic(info, inst); err != nil {
		_ = l.Release()
		return nil, err
	}
	return &Claimed{lock: l, info: info}, nil
}

// Release removes the instance file and drops the lock.
func (c *Claimed) Release() error {
	if err := os.Remove(c.info); err != nil && !errors.Is(err, os.ErrNotExist) {
		_ = c.lock.Release()
		return fmt.Errorf("removing %s: %w", c.info, err)
	}
	return c.lock.Release()
}

// Running reports the daemon serving stateDir. The lock decides liveness;
// an instance file left by a crashed process is ignored.
func Running(stateDir string) (Instance, bool, error) {
	l, err := lock.Acquire(context.Background(), filepath.Join(stateDir, instanceLock), probeLock)
	if err == nil {
		return Instance{}, false, l.Release()
	}
	if !errors.Is(err, lock.ErrTimeout) {
		return Instance{}, false, err
	}
	var inst Instance
	if err := store.ReadJSON(filepath.Join(stateDir, instanceInfo), &inst); err != nil {
		return Instance{}, true, fmt.Errorf("reading daemon info: %w", err)
	}
	return inst, true, nil
}

// Stop sends SIGTERM to the daemon serving stateDir and waits for it to
// release the instance lock.
func Stop(ctx context.Context, stateDir string) (Instance, error) {
	inst, ok, err := Running(stateDir)
	if !ok {
		return Instance{}, ErrNotRunning
	}
	if err != nil {
		return Instance{}, err
	}
	proc, err := os.FindProcess(inst.PID)
	if err != nil {
		return inst, fmt.Errorf("finding daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return inst, fmt.Errorf("signaling daemon (pid %d): %w", inst.PID, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok, _ := Running(stateDir); !ok {
			return inst, nil
		}
		select {
		case <-ctx.Done():
			return inst, fmt.Errorf("daemon (pid %d) did not exit: %w", inst.PID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// FetchStatus reads /v1/status from the daemon at addr.
func FetchStatus(ctx context.Context, addr string) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/v1/status", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("decoding status: %w", err)
	}
	return st, nil
}
