// Package fingerprint is a content-addressed record of seen file contents.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// BytesPerToken is the size heuristic for token estimates.
const BytesPerToken = 4

// EstimateTokens returns ceil(n / BytesPerToken).
func EstimateTokens(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + BytesPerToken - 1) / BytesPerToken
}

// Hash returns the hex SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Compute fingerprints content for path. It performs no I/O.
func Compute(path string, content []byte, now time.Time) model.FileFingerprint {
	size := int64(len(content))
	return model.FileFingerprint{
		Path:     path,
		Hash:     Hash(content),
		Size:     size,
		Tokens:   EstimateTokens(size),
		LastSeen: now,
	}
}

type blob struct {
	size   int64
	tokens int64
	paths  map[string]struct{}
}

// Store maps paths to content hashes and keeps each distinct content once.
// It is not safe for concurrent use.
type Store struct {
	byPath map[string]model.FileFingerprint
	blobs  map[string]*blob
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byPath: make(map[string]model.FileFingerprint),
		blobs:  make(map[string]*blob),
	}
}

// Put fingerprints content under path. When path already maps to the same
// hash the existing fingerprint is returned unchanged with false. Otherwise
// path is repointed and true is returned; the old blob survives while other
// paths still reference it.
func (s *Store) Put(path string, content []byte, now time.Time) (model.FileFingerprint, bool) {
	return s.PutFingerprint(Compute(path, content, now))
}

// PutFingerprint is Put for an already computed fingerprint.
func (s *Store) PutFingerprint(fp model.FileFingerprint) (model.FileFingerprint, bool) {
	if cur, ok := s.byPath[fp.Path]; ok {
		if cur.Hash == fp.Hash {
			return cur, false
		}
		s.unref(cur.Path, cur.Hash)
	}
	b, ok := s.blobs[fp.Hash]
	if !ok {
		b = &blob{size: fp.Size, tokens: fp.Tokens, paths: make(map[string]struct{}, 1)}
		s.blobs[fp.Hash] = b
	}
	b.paths[fp.Path] = struct{}{}
	s.byPath[fp.Path] = fp
	return fp, true
}

// Adopt records a persisted fingerprint without recomputing its hash.
func (s *Store) Adopt(fp model.FileFingerprint) {
	s.PutFingerprint(fp)
}

// Get returns the current fingerprint for path.
func (s *Store) Get(path string) (model.FileFingerprint, bool) {
	fp, ok := s.byPath[path]
	return fp, ok
}

// Touch refreshes LastSeen for path without changing its content record.
func (s *Store) Touch(path string, now time.Time) bool {
	fp, ok := s.byPath[path]
	if !ok {
		return false
	}
	fp.LastSeen = now
	s.byPath[path] = fp
	return true
}

// Release drops path. The blob goes away with its last reference.
func (s *Store) Release(path string) bool {
	cur, ok := s.byPath[path]
	if !ok {
		return false
	}
	s.unref(path, cur.Hash)
	delete(s.byPath, path)
	return true
}

func (s *Store) unref(path, hash string) {
	b, ok := s.blobs[hash]
	if !ok {
		return
	}
	delete(b.paths, path)
	if len(b.paths) == 0 {
		delete(s.blobs, hash)
	}
}

// Blobs returns the number of distinct contents stored.
func (s *Store) Blobs() int { return len(s.blobs) }

// Paths returns the number of paths referencing a blob.
func (s *Store) Paths() int { return len(s.byPath) }

// PathsFor returns the sorted paths that currently reference hash.
func (s *Store) PathsFor(hash string) []string {
	b, ok := s.blobs[hash]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(b.paths))
	for p := range b.paths {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// BlobTokens returns the summed token estimate of distinct contents.
func (s *Store) BlobTokens() int64 {
	var n int64
	for _, b := range s.blobs {
		n += b.tokens
	}
	return n
}
