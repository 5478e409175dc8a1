// Package session holds time-boxed, capacity-bounded groups of file
// fingerprints and the manager that persists them.
package session

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/store"
)

// Overflow decides what happens when a new path arrives at a full session.
type Overflow string

const (
	// OverflowEvict drops the least recently used path.
	OverflowEvict Overflow = "evict"
	// OverflowReject leaves the session unchanged and reports the path.
	OverflowReject Overflow = "reject"
)

// Session is one chain of related requests. Paths are kept in LRU order;
// content is deduplicated through a per-session fingerprint store.
type Session struct {
	ID           string
	Scope        string
	Goal         string
	CreatedAt    time.Time
	LastActivity time.Time

	maxFiles int
	overflow Overflow
	order    *simplelru.LRU[string, struct{}]
	fps      *fingerprint.Store
	evicted  []string
}

// New returns an empty session.
func New(id, scope, goal string, now time.Time, maxFiles int, overflow Overflow) (*Session, error) {
	s := &Session{
		ID:           id,
		Scope:        scope,
		Goal:         goal,
		CreatedAt:    now,
		LastActivity: now,
		maxFiles:     maxFiles,
		overflow:     overflow,
		fps:          fingerprint.New(),
	}
	lru, err := simplelru.NewLRU[string, struct{}](maxFiles, func(path string, _ struct{}) {
		s.fps.Release(path)
		s.evicted = append(s.evicted, path)
	})
	if err != nil {
		return nil, fmt.Errorf("creating session lru: %w", err)
	}
	s.order = lru
	return s, nil
}

// fromRecord rebuilds a session from disk. Entries beyond the current cap
// are dropped oldest first.
func fromRecord(rec store.SessionRecord, maxFiles int, overflow Overflow) (*Session, error) {
	m := rec.Manifest
	s, err := New(m.ID, m.Scope, m.Goal, m.CreatedAt, maxFiles, overflow)
	if err != nil {
		return nil, err
	}
	s.LastActivity = m.LastActivity
	for _, fp := range rec.Files {
		s.fps.Adopt(fp)
		s.order.Add(fp.Path, struct{}{})
	}
	s.evicted = nil
	return s, nil
}

func (s *Session) record() store.SessionRecord {
	return store.SessionRecord{
		Manifest: store.SessionManifest{
			ID:           s.ID,
			Scope:        s.Scope,
			Goal:         s.Goal,
			CreatedAt:    s.CreatedAt,
			LastActivity: s.LastActivity,
		},
		Files: s.Files(),
	}
}

// Lookup returns the cached fingerprint for path without changing LRU order.
func (s *Session) Lookup(path string) (model.FileFingerprint, bool) {
	if !s.order.Contains(path) {
		return model.FileFingerprint{}, false
	}
	return s.fps.Get(path)
}

// Touch marks path as recently used.
func (s *Session) Touch(path string, now time.Time) bool {
	if _, ok := s.order.Get(path); !ok {
		return false
	}
	s.fps.Touch(path, now)
	return true
}

// Upsert inserts or repoints fp.Path. When the session is full, the LRU
// path is evicted (returned) or, under OverflowReject, fp is not inserted
// and rejected is true.
func (s *Session) Upsert(fp model.FileFingerprint) (evicted []string, rejected bool) {
	if s.order.Contains(fp.Path) {
		s.fps.PutFingerprint(fp)
		s.order.Add(fp.Path, struct{}{})
		return nil, false
	}
	if s.order.Len() >= s.maxFiles && s.overflow == OverflowReject {
		return nil, true
	}
	s.evicted = s.evicted[:0]
	s.order.Add(fp.Path, struct{}{})
	s.fps.PutFingerprint(fp)
	if len(s.evicted) == 0 {
		return nil, false
	}
	return append([]string(nil), s.evicted...), false
}

// PathsWithHash returns the cached paths whose content hashes to hash.
func (s *Session) PathsWithHash(hash string) []string {
	return s.fps.PathsFor(hash)
}

// Files returns cached fingerprints, least recently used first.
func (s *Session) Files() []model.FileFingerprint {
	keys := s.order.Keys()
	out := make([]model.FileFingerprint, 0, len(keys))
	for _, k := range keys {
		if fp, ok := s.fps.Get(k); ok {
			out = append(out, fp)
		}
	}
	return out
}

// Len returns the number of cached paths.
func (s *Session) Len() int { return s.order.Len() }

// MaxFiles returns the path cap.
func (s *Session) MaxFiles() int { return s.maxFiles }

// Blobs returns the number of distinct contents cached.
func (s *Session) Blobs() int { return s.fps.Blobs() }

// Expired reports whether the session has been idle longer than ttl.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}

// Stats summarizes the session.
func (s *Session) Stats(now time.Time, ttl time.Duration) model.SessionStats {
	st := model.SessionStats{
		ID:           s.ID,
		Scope:        s.Scope,
		Goal:         s.Goal,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		Files:        s.order.Len(),
		Age:          now.Sub(s.CreatedAt),
		Idle:         now.Sub(s.LastActivity),
		Expired:      s.Expired(now, ttl),
	}
	for _, fp := range s.Files() {
		st.Tokens += fp.Tokens
		st.Bytes += fp.Size
	}
	return st
}
