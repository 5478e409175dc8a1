// Package detect partitions a requested file set against a cache session.
package detect

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/session"
	"github.com/theirongolddev/tokenwise/internal/source"
)

// Plan classifies each requested file exactly once.
type Plan struct {
	SessionID string
	Unchanged []source.File
	Changed   []source.File
	New       []source.File
	// Payload is Changed and New in request order, minus aliased paths. It is
	// never truncated.
	Payload []source.File
	// Aliases maps a new path to an already cached path with identical
	// content. Aliased files are named instead of sent.
	Aliases         map[string]string
	CapacityWarning bool
	Capacity        int
	Stats           model.ReuseStats
}

// CommitResult reports what Commit did to the session.
type CommitResult struct {
	Touched  int
	Updated  int
	Added    int
	Evicted  []string
	Rejected []string
}

// Detector compares requested files with what a session already holds.
type Detector struct {
	log *zap.Logger
}

// New returns a detector. A nil logger discards output.
func New(log *zap.Logger) *Detector {
	return &Detector{log: logging.OrNop(log).Named("detect")}
}

// Partition splits files into unchanged, changed and new relative to sess.
// A nil session (caching disabled) makes every file new.
func (d *Detector) Partition(sess *session.Session, files []source.File) Plan {
	var p Plan
	seen := make(map[string]struct{}, len(files))
	if sess != nil {
		p.SessionID = sess.ID
		p.Capacity = sess.MaxFiles()
	}

	for _, f := range files {
		if _, dup := seen[f.Path]; dup {
			continue
		}
		seen[f.Path] = struct{}{}
		p.Stats.FilesTotal++
		p.Stats.TokensTotal += f.Fingerprint.Tokens

		if sess == nil {
			p.New = append(p.New, f)
			p.Payload = append(p.Payload, f)
			continue
		}
		cached, ok := sess.Lookup(f.Path)
		switch {
		case ok && cached.Hash == f.Fingerprint.Hash:
			p.Unchanged = append(p.Unchanged, f)
			p.Stats.FilesReused++
			p.Stats.TokensReused += cached.Tokens
		case ok:
			p.Changed = append(p.Changed, f)
			p.Payload = append(p.Payload, f)
		default:
			p.New = append(p.New, f)
			others := sess.PathsWithHash(f.Fingerprint.Hash)
			if len(others) == 0 {
				p.Payload = append(p.Payload, f)
				continue
			}
			if p.Aliases == nil {
				p.Aliases = make(map[string]string)
			}
			p.Aliases[f.Path] = others[0]
			p.Stats.FilesReused++
			p.Stats.FilesAliased++
			p.Stats.TokensReused += f.Fingerprint.Tokens
		}
	}

	p.Stats.FilesTransmitted = len(p.Payload)
	if p.Stats.FilesTotal > 0 {
		p.Stats.ReusePercent = float64(p.Stats.FilesReused) / float64(p.Stats.FilesTotal) * 100
	}
	if sess != nil && p.Stats.FilesTotal > p.Capacity {
		p.CapacityWarning = true
		d.log.Warn("requested files exceed session capacity",
			zap.String("session", sess.ID),
			zap.Int("files", p.Stats.FilesTotal),
			zap.Int("capacity", p.Capacity))
	}
	return p
}

// Warnings returns the user-facing signals carried by the plan.
func (p Plan) Warnings() []model.Warning {
	if !p.CapacityWarning {
		return nil
	}
	return []model.Warning{{
		Kind:    model.WarnCapacity,
		Message: fmt.Sprintf("%d files requested but the session holds %d; caching will be less effective this round",
			p.Stats.FilesTotal, p.Capacity),
	}}
}

// Commit applies a plan after the remote call succeeded. Unchanged entries
// are touched first so LRU eviction falls on paths outside this request.
func (d *Detector) Commit(sess *session.Session, p Plan, now time.Time) CommitResult {
	var res CommitResult
	upsert := func(f source.File, isNew bool) {
		fp := f.Fingerprint
		fp.LastSeen = now
		evicted, rejected := sess.Upsert(fp)
		res.Evicted = append(res.Evicted, evicted...)
		switch {
		case rejected:
			res.Rejected = append(res.Rejected, f.Path)
		case isNew:
			res.Added++
		default:
			res.Updated++
		}
	}

	for _, f := range p.Unchanged {
		if cached, ok := sess.Lookup(f.Path); ok && cached.Hash == f.Fingerprint.Hash {
			sess.Touch(f.Path, now)
			res.Touched++
			continue
		}
		upsert(f, true)
	}
	for _, f := range p.Changed {
		_, known := sess.Lookup(f.Path)
		upsert(f, !known)
	}
	for _, f := range p.New {
		upsert(f, true)
	}

	if len(res.Evicted) > 0 || len(res.Rejected) > 0 {
		d.log.Info("session over capacity",
			zap.String("session", sess.ID),
			zap.Strings("evicted", res.Evicted),
			zap.Strings("rejected", res.Rejected))
	}
	return res
}

// Warnings returns capacity warnings for rejected inserts.
func (r CommitResult) Warnings() []model.Warning {
	out := make([]model.Warning, 0, len(r.Rejected))
	for _, p := range r.Rejected {
		out = append(out, model.Warning{Kind: model.WarnCapacity, Message: "session full; not cached", Path: p})
	}
	return out
}
