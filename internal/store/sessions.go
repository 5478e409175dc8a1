package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

const manifestVersion = 1

// SessionManifest is the on-disk metadata of one cache session.
type SessionManifest struct {
	Version      int       `json:"version"`
	ID           string    `json:"id"`
	Scope        string    `json:"scope"`
	Goal         string    `json:"goal,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	// Order lists cached paths, least recently used first.
	Order []string `json:"order"`
}

// SessionRecord is a manifest plus its file entries, in manifest order.
type SessionRecord struct {
	Manifest SessionManifest
	Files    []model.FileFingerprint
}

// SessionStore lays sessions out as <state>/sessions/<id>/manifest.json with
// one files/<key>.json entry per cached path.
type SessionStore struct {
	stateDir string
}

// NewSessionStore returns a store rooted at stateDir.
func NewSessionStore(stateDir string) *SessionStore {
	return &SessionStore{stateDir: stateDir}
}

// StateDir returns the root directory.
func (s *SessionStore) StateDir() string { return s.stateDir }

// LockPath is the lock guarding every session read-modify-write.
func (s *SessionStore) LockPath() string {
	return filepath.Join(s.stateDir, "sessions.lock")
}

func (s *SessionStore) sessionsDir() string { return filepath.Join(s.stateDir, "sessions") }

func (s *SessionStore) sessionDir(id string) string { return filepath.Join(s.sessionsDir(), id) }

// FileKey names the entry file for a cached path.
func FileKey(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// IDs returns the ids of every persisted session, sorted.
func (s *SessionStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.sessionsDir())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.Contains(name, ".corrupt-") {
			continue
		}
		ids = append(ids, name)
	}
	slices.Sort(ids)
	return ids, nil
}

// Load reads one session. Undecodable or inconsistent data wraps ErrCorrupt.
func (s *SessionStore) Load(id string) (SessionRecord, error) {
	dir := s.sessionDir(id)
	var rec SessionRecord
	if err := ReadJSON(filepath.Join(dir, "manifest.json"), &rec.Manifest); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rec, fmt.Errorf("%w: session %s has no manifest", ErrCorrupt, id)
		}
		return rec, err
	}
	if rec.Manifest.ID != id {
		return rec, fmt.Errorf("%w: manifest id %q in dir %q", ErrCorrupt, rec.Manifest.ID, id)
	}

	rec.Files = make([]model.FileFingerprint, 0, len(rec.Manifest.Order))
	for _, p := range rec.Manifest.Order {
		var fp model.FileFingerprint
		if err := ReadJSON(filepath.Join(dir, "files", FileKey(p)+".json"), &fp); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return rec, fmt.Errorf("%w: session %s missing entry for %s", ErrCorrupt, id, p)
			}
			return rec, err
		}
		if fp.Path != p || fp.Hash == "" {
			return rec, fmt.Errorf("%w: session %s entry mismatch for %s", ErrCorrupt, id, p)
		}
		rec.Files = append(rec.Files, fp)
	}
	return rec, nil
}

// LoadAll loads every session. Corrupt sessions are quarantined and reported
// as warnings instead of failing the call.
func (s *SessionStore) LoadAll(now time.Time) ([]SessionRecord, []model.Warning, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, nil, err
	}
	var (
		recs  []SessionRecord
		warns []model.Warning
	)
	for _, id := range ids {
		rec, err := s.Load(id)
		if err == nil {
			recs = append(recs, rec)
			continue
		}
		if !errors.Is(err, ErrCorrupt) {
			return nil, warns, err
		}
		dst, qerr := Quarantine(s.sessionDir(id), now)
		if qerr != nil {
			_ = os.RemoveAll(s.sessionDir(id))
			dst = "(removed)"
		}
		warns = append(warns, model.Warning{
			Kind:    model.WarnCacheCorruption,
			Message: fmt.Sprintf("session %s unreadable, starting fresh (moved to %s): %v", id, dst, err),
			Path:    s.sessionDir(id),
		})
	}
	return recs, warns, nil
}

// Save writes every file entry, then the manifest, then prunes entries the
// manifest no longer names. A reader sees the previous manifest until the
// new one is renamed into place.
func (s *SessionStore) Save(rec SessionRecord) error {
	m := rec.Manifest
	m.Version = manifestVersion
	m.Order = make([]string, 0, len(rec.Files))

	dir := s.sessionDir(m.ID)
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0o750); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	keep := make(map[string]struct{}, len(rec.Files))
	for _, fp := range rec.Files {
		key := FileKey(fp.Path) + ".json"
		keep[key] = struct{}{}
		m.Order = append(m.Order, fp.Path)
		if err := WriteJSONAtomic(filepath.Join(filesDir, key), fp); err != nil {
			return err
		}
	}
	if err := WriteJSONAtomic(filepath.Join(dir, "manifest.json"), m); err != nil {
		return err
	}

	entries, err := os.ReadDir(filesDir)
	if err != nil {
		return fmt.Errorf("listing session files: %w", err)
	}
	for _, e := range entries {
		if _, ok := keep[e.Name()]; !ok {
			_ = os.Remove(filepath.Join(filesDir, e.Name()))
		}
	}
	return nil
}

// Delete removes a session directory.
func (s *SessionStore) Delete(id string) error {
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	return nil
}

// Archive moves a session to <state>/archive/<id> for cold storage.
func (s *SessionStore) Archive(id string) error {
	archive := filepath.Join(s.stateDir, "archive")
	if err := os.MkdirAll(archive, 0o750); err != nil {
		return fmt.Errorf("creating archive dir: %w", err)
	}
	dst := filepath.Join(archive, id)
	_ = os.RemoveAll(dst)
	if err := os.Rename(s.sessionDir(id), dst); err != nil {
		return fmt.Errorf("archiving session %s: %w", id, err)
	}
	return nil
}
