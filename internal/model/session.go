// Package model defines domain types for the context cache and budget core.
package model

import "time"

// FileFingerprint identifies one file's contribution to a request payload.
// A fingerprint is immutable for a given Hash; a Path may later point at a
// different Hash when the file content changes.
type FileFingerprint struct {
	Path     string    `json:"path"`
	Hash     string    `json:"hash"`
	Size     int64     `json:"size"`
	Tokens   int64     `json:"tokens"`
	LastSeen time.Time `json:"last_seen"`
}

// SessionStats is the observability view of one cache session.
type SessionStats struct {
	ID           string        `json:"id"`
	Scope        string        `json:"scope"`
	Goal         string        `json:"goal,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	LastActivity time.Time     `json:"last_activity"`
	Files        int           `json:"files"`
	Tokens       int64         `json:"tokens"`
	Bytes        int64         `json:"bytes"`
	Age          time.Duration `json:"age"`
	Idle         time.Duration `json:"idle"`
	Expired      bool          `json:"expired"`
}

// CacheStats holds the aggregate view of all live sessions.
type CacheStats struct {
	Sessions     int            `json:"sessions"`
	TotalFiles   int            `json:"total_files"`
	UniqueBlobs  int            `json:"unique_blobs"`
	MaxFiles     int            `json:"max_files_per_session"`
	MaxSessions  int            `json:"max_sessions"`
	TTL          time.Duration  `json:"ttl"`
	OverflowMode string         `json:"overflow"`
	PerSession   []SessionStats `json:"per_session"`
	StateDir     string         `json:"state_dir"`
}

// ReuseStats describes how much of one request was served from the cache.
type ReuseStats struct {
	FilesTotal       int     `json:"files_total"`
	FilesReused      int     `json:"files_reused"`
	FilesTransmitted int     `json:"files_transmitted"`
	FilesExcluded    int     `json:"files_excluded"`
	FilesAliased     int     `json:"files_aliased"`
	TokensTotal      int64   `json:"tokens_total"`
	TokensReused     int64   `json:"tokens_reused"`
	ReusePercent     float64 `json:"reuse_percent"`
}
