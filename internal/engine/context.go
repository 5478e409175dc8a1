package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/detect"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/session"
	"github.com/theirongolddev/tokenwise/internal/source"
)

// Request asks for the context of one remote call.
type Request struct {
	Goal    string
	Scope   string
	Globs   []string
	NoCache bool
	// Model prices CostSaved. Empty uses the medium tier model.
	Model string
}

// Resolution is what ResolveContext decided to send.
type Resolution struct {
	// Session is nil when the request ran uncached.
	Session  *session.Session
	Uncached bool
	Files    []source.File
	Payload  []source.File
	Cached   []source.File
	Excluded []string
	Plan     detect.Plan
	Stats    model.ReuseStats
	// ContextBytes is the size of every resolved file, cached or not.
	ContextBytes int64
	PayloadBytes int64
	TokensSaved  int64
	Warnings     []model.Warning

	// CostSaved is TokensSaved at SavingsModel's input rate.
	CostSaved    float64
	SavingsModel string
}

// ResolveContext loads the requested files and partitions them against the
// scope's live session. A session lock timeout degrades to an uncached
// resolution with a warning instead of failing the request.
func (e *Engine) ResolveContext(ctx context.Context, req Request) (Resolution, error) {
	scope := req.Scope
	if scope == "" {
		scope = DefaultScope
	}
	loaded, err := source.Load(ctx, e.root, req.Globs, source.LoadOptions{
		ExpandOptions: source.ExpandOptions{
			AllowedExt:       e.cfg.Cache.AllowedExt,
			RespectGitignore: e.cfg.Cache.RespectGitignore,
		},
		MaxFileBytes: e.cfg.Cache.MaxFileBytes,
		Now:          e.now(),
	}, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("loading context: %w", err)
	}

	res := Resolution{
		Files:        loaded.Files,
		Excluded:     loaded.Excluded,
		SavingsModel: req.Model,
		ContextBytes: loaded.Bytes,
		Warnings:     loaded.Warnings,
	}

	var sess *session.Session
	if !req.NoCache && !e.noCache {
		s, warns, err := e.sessions.Resolve(ctx, scope, req.Goal)
		res.Warnings = append(res.Warnings, warns...)
		switch {
		case err == nil:
			sess = s
		case IsLockTimeout(err):
			res.Warnings = append(res.Warnings, model.Warning{
				Kind:    model.WarnLockTimeout,
				Message: "cache busy, sending full context uncached",
				Path:    e.stateDir,
			})
		default:
			return Resolution{}, err
		}
	}

	plan := e.detector.Partition(sess, loaded.Files)
	res.Session = sess
	res.Uncached = sess == nil
	res.Plan = plan
	res.Payload = plan.Payload
	res.Cached = plan.Unchanged
	res.Stats = plan.Stats
	res.Stats.FilesExcluded = len(loaded.Excluded)
	res.TokensSaved = plan.Stats.TokensReused
	if res.SavingsModel == "" {
		res.SavingsModel = e.cfg.Models.Medium
	}
	res.CostSaved = e.Savings(res.SavingsModel, res.TokensSaved)
	for _, f := range plan.Payload {
		res.PayloadBytes += int64(len(f.Content))
	}
	res.Warnings = append(res.Warnings, plan.Warnings()...)

	logging.Warnings(e.log, res.Warnings)
	e.log.Debug("context resolved",
		zap.String("scope", scope),
		zap.Bool("uncached", res.Uncached),
		zap.Int("files", plan.Stats.FilesTotal),
		zap.Int("reused", plan.Stats.FilesReused),
		zap.Int("transmitted", plan.Stats.FilesTransmitted),
		zap.Int("excluded", res.Stats.FilesExcluded))
	return res, nil
}

// Savings prices reused tokens at model's input rate.
func (e *Engine) Savings(model string, reusedTokens int64) float64 {
	return e.prices.Savings(model, e.now(), reusedTokens)
}

// CommitContext applies res's plan to its session after the remote call
// succeeded. Uncached resolutions are a no-op.
func (e *Engine) CommitContext(ctx context.Context, res Resolution) (detect.CommitResult, error) {
	if res.Session == nil {
		return detect.CommitResult{}, nil
	}
	var out detect.CommitResult
	_, err := e.sessions.Commit(ctx, res.Session, func(s *session.Session) error {
		out = e.detector.Commit(s, res.Plan, e.now())
		return nil
	})
	if err != nil {
		return detect.CommitResult{}, err
	}
	logging.Warnings(e.log, out.Warnings())
	return out, nil
}
