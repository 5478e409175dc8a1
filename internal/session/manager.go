package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/lock"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/store"
)

// ResetAll is the Reset target that clears every session.
const ResetAll = "all"

// ErrNotFound is returned by Reset when no session matches.
var ErrNotFound = errors.New("session not found")

// Options configure a Manager.
type Options struct {
	MaxFiles    int
	TTL         time.Duration
	MaxSessions int
	Overflow    Overflow
	Archive     bool
	Lock        lock.Options
	Now         func() time.Time
	Logger      *zap.Logger
}

// Manager owns the set of live sessions under one state directory. Disk is
// the source of truth; every operation reloads state under the session lock.
type Manager struct {
	store *store.SessionStore
	opts  Options
	log   *zap.Logger
}

// NewManager returns a manager persisting to stateDir.
func NewManager(stateDir string, opts Options) *Manager {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 40
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 10
	}
	if opts.Overflow == "" {
		opts.Overflow = OverflowEvict
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store: store.NewSessionStore(stateDir),
		opts:  opts,
		log:   logging.OrNop(opts.Logger).Named("session"),
	}
}

// StateDir returns the directory sessions persist under.
func (m *Manager) StateDir() string { return m.store.StateDir() }

// loaded is the live view built under the lock.
type loaded struct {
	live  []*Session
	warns []model.Warning
}

// load reads every session, quarantining corrupt ones. When expire is set,
// expired sessions are destroyed before being considered.
func (m *Manager) load(now time.Time, expire bool) (loaded, error) {
	recs, warns, err := m.store.LoadAll(now)
	if err != nil {
		return loaded{}, err
	}
	out := loaded{warns: warns}
	for _, rec := range recs {
		s, err := fromRecord(rec, m.opts.MaxFiles, m.opts.Overflow)
		if err != nil {
			return loaded{}, err
		}
		if expire && s.Expired(now, m.opts.TTL) {
			if err := m.destroy(s.ID); err != nil {
				return loaded{}, err
			}
			m.log.Info("session expired",
				zap.String("id", s.ID),
				zap.String("scope", s.Scope),
				zap.Duration("idle", now.Sub(s.LastActivity)))
			continue
		}
		out.live = append(out.live, s)
	}
	return out, nil
}

func (m *Manager) destroy(id string) error {
	if m.opts.Archive {
		return m.store.Archive(id)
	}
	return m.store.Delete(id)
}

func (m *Manager) withLock(ctx context.Context, fn func() error) error {
	return lock.With(ctx, m.store.LockPath(), m.opts.Lock, fn)
}

// Resolve returns the live session for scope, creating one when none exists
// or the previous one expired. Expired sessions are destroyed first so their
// fingerprints never count as cached.
func (m *Manager) Resolve(ctx context.Context, scope, goal string) (*Session, []model.Warning, error) {
	var (
		out   *Session
		warns []model.Warning
	)
	err := m.withLock(ctx, func() error {
		now := m.opts.Now()
		l, err := m.load(now, true)
		if err != nil {
			return err
		}
		warns = l.warns

		for _, s := range l.live {
			if s.Scope == scope && (out == nil || s.LastActivity.After(out.LastActivity)) {
				out = s
			}
		}
		if out == nil {
			out, err = New(uuid.NewString(), scope, goal, now, m.opts.MaxFiles, m.opts.Overflow)
			if err != nil {
				return err
			}
			l.live = append(l.live, out)
			m.log.Debug("session created", zap.String("id", out.ID), zap.String("scope", scope))
		}
		out.LastActivity = now
		if goal != "" {
			out.Goal = goal
		}
		if err := m.store.Save(out.record()); err != nil {
			return err
		}
		return m.enforceMaxSessions(l.live, out.ID)
	})
	if err != nil {
		return nil, warns, fmt.Errorf("resolving session %q: %w", scope, err)
	}
	return out, warns, nil
}

// Commit reloads session id from disk, applies fn, and persists the result.
// A session that disappeared or expired since Resolve is recreated empty
// under the same id and scope.
func (m *Manager) Commit(ctx context.Context, like *Session, fn func(*Session) error) (*Session, error) {
	var out *Session
	err := m.withLock(ctx, func() error {
		now := m.opts.Now()
		l, err := m.load(now, true)
		if err != nil {
			return err
		}
		for _, s := range l.live {
			if s.ID == like.ID {
				out = s
				break
			}
		}
		if out == nil {
			out, err = New(like.ID, like.Scope, like.Goal, now, m.opts.MaxFiles, m.opts.Overflow)
			if err != nil {
				return err
			}
			l.live = append(l.live, out)
		}
		if err := fn(out); err != nil {
			return err
		}
		out.LastActivity = now
		if err := m.store.Save(out.record()); err != nil {
			return err
		}
		return m.enforceMaxSessions(l.live, out.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("committing session %s: %w", like.ID, err)
	}
	return out, nil
}

// enforceMaxSessions destroys the least recently active sessions beyond the
// cap. keep is never destroyed.
func (m *Manager) enforceMaxSessions(live []*Session, keep string) error {
	if len(live) <= m.opts.MaxSessions {
		return nil
	}
	sorted := slices.Clone(live)
	slices.SortFunc(sorted, func(a, b *Session) int {
		return a.LastActivity.Compare(b.LastActivity)
	})
	excess := len(live) - m.opts.MaxSessions
	for _, s := range sorted {
		if excess == 0 {
			break
		}
		if s.ID == keep {
			continue
		}
		if err := m.destroy(s.ID); err != nil {
			return err
		}
		m.log.Info("session dropped over max_sessions", zap.String("id", s.ID), zap.String("scope", s.Scope))
		excess--
	}
	return nil
}

// Reset destroys the session whose id or scope equals target, or every
// session when target is ResetAll. It returns the number destroyed.
func (m *Manager) Reset(ctx context.Context, target string) (int, error) {
	var n int
	err := m.withLock(ctx, func() error {
		l, err := m.load(m.opts.Now(), false)
		if err != nil {
			return err
		}
		for _, s := range l.live {
			if target != ResetAll && s.ID != target && s.Scope != target {
				continue
			}
			if err := m.store.Delete(s.ID); err != nil {
				return err
			}
			n++
		}
		if n == 0 && target != ResetAll {
			return fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil
	})
	return n, err
}

// Stats reports every persisted session. Expired sessions are flagged,
// not destroyed.
func (m *Manager) Stats(ctx context.Context) (model.CacheStats, []model.Warning, error) {
	var (
		st    model.CacheStats
		warns []model.Warning
	)
	err := m.withLock(ctx, func() error {
		now := m.opts.Now()
		l, err := m.load(now, false)
		if err != nil {
			return err
		}
		warns = l.warns
		st = model.CacheStats{
			MaxFiles:     m.opts.MaxFiles,
			MaxSessions:  m.opts.MaxSessions,
			TTL:          m.opts.TTL,
			OverflowMode: string(m.opts.Overflow),
			StateDir:     m.store.StateDir(),
		}
		blobs := make(map[string]struct{})
		for _, s := range l.live {
			ss := s.Stats(now, m.opts.TTL)
			st.PerSession = append(st.PerSession, ss)
			if !ss.Expired {
				st.Sessions++
			}
			st.TotalFiles += ss.Files
			for _, fp := range s.Files() {
				blobs[fp.Hash] = struct{}{}
			}
		}
		st.UniqueBlobs = len(blobs)
		slices.SortFunc(st.PerSession, func(a, b model.SessionStats) int {
			return b.LastActivity.Compare(a.LastActivity)
		})
		return nil
	})
	return st, warns, err
}
