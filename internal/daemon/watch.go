package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/logging"
)

const debounce = 250 * time.Millisecond

// stateWatcher signals on changes to the ledger or the session set.
type stateWatcher struct {
	sessionsDir string
	watcher     *fsnotify.Watcher
	changes     chan struct{}
	done        chan struct{}
	log         *zap.Logger
}

func watchState(stateDir string, log *zap.Logger) (*stateWatcher, error) {
	sessionsDir := filepath.Join(stateDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o750); err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{stateDir, sessionsDir} {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
	}
	entries, _ := os.ReadDir(sessionsDir)
	for _, e := range entries {
		if e.IsDir() {
			_ = w.Add(filepath.Join(sessionsDir, e.Name()))
		}
	}
	sw := &stateWatcher{
		sessionsDir: sessionsDir,
		watcher:     w,
		changes:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		log:         logging.OrNop(log),
	}
	go sw.loop()
	return sw, nil
}

func (sw *stateWatcher) Changes() <-chan struct{} { return sw.changes }

func (sw *stateWatcher) Close() {
	select {
	case <-sw.done:
		return
	default:
		close(sw.done)
		_ = sw.watcher.Close()
	}
}

func (sw *stateWatcher) loop() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-sw.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) && filepath.Dir(ev.Name) == sw.sessionsDir {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = sw.watcher.Add(ev.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(debounce)
			}
		case <-fire:
			select {
			case sw.changes <- struct{}{}:
			default:
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Warn("state watch error", zap.Error(err))
		}
	}
}

// ignored reports lock files, atomic-write temp files and the daemon's own
// pid, state and log files.
func ignored(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "tokenwised.") {
		return true
	}
	for _, suffix := range []string{".lock", ".log"} {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return false
}
