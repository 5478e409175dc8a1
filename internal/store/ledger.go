package store

import (
	"context"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// LedgerBackend is append-only persistence for cost entries. Callers
// serialize Append through the ledger lock.
type LedgerBackend interface {
	Append(ctx context.Context, e model.CostEntry) error
	// Entries returns entries with since <= Timestamp < until, oldest first.
	// A zero bound is open. Undecodable data wraps ErrCorrupt.
	Entries(ctx context.Context, since, until time.Time) ([]model.CostEntry, error)
	// Recover quarantines a corrupt store and starts an empty one.
	Recover(now time.Time) (model.Warning, error)
	Path() string
	Close() error
}

func inRange(ts, since, until time.Time) bool {
	if !since.IsZero() && ts.Before(since) {
		return false
	}
	if !until.IsZero() && !ts.Before(until) {
		return false
	}
	return true
}
