// Package engine is the invocation surface over the context cache, the
// complexity analyzer, the model selector and the budget ledger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/complexity"
	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/detect"
	"github.com/theirongolddev/tokenwise/internal/ledger"
	"github.com/theirongolddev/tokenwise/internal/lock"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/selector"
	"github.com/theirongolddev/tokenwise/internal/session"
	"github.com/theirongolddev/tokenwise/internal/source"
)

// DefaultScope labels sessions opened without an explicit scope.
const DefaultScope = "default"

// Options configure Open.
type Options struct {
	Config   config.Config
	RepoRoot string
	// StateDir overrides the directory derived from Config and RepoRoot.
	StateDir string
	// NoCache disables session lookup for every request.
	NoCache bool
	Now     func() time.Time
	Logger  *zap.Logger
}

// Engine wires the core components for one repository. It is safe for
// sequential use; cross-process safety comes from the lock files.
type Engine struct {
	cfg      config.Config
	root     string
	stateDir string
	noCache  bool
	now      func() time.Time
	log      *zap.Logger

	prices   *config.PriceTable
	sessions *session.Manager
	detector *detect.Detector
	analyzer *complexity.Analyzer
	selector *selector.Selector
	ledger   *ledger.Ledger
}

// Open builds an engine. Warnings describe stores recovered from corruption.
func Open(opts Options) (*Engine, []model.Warning, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrNop(opts.Logger)

	root, err := resolveRoot(cfg, opts.RepoRoot)
	if err != nil {
		return nil, nil, err
	}
	stateDir := opts.StateDir
	if stateDir == "" {
		stateDir = config.StateDir(cfg, root)
	}

	lockOpts := lock.Options{
		Timeout: cfg.Lock.Timeout.Duration,
		Retries: cfg.Lock.Retries,
	}

	analyzer, err := complexity.New(cfg.Complexity)
	if err != nil {
		return nil, nil, err
	}

	ledgerOpts := ledger.OptionsFromConfig(cfg)
	ledgerOpts.Now = opts.Now
	ledgerOpts.Logger = log
	l, warnings, err := ledger.Open(stateDir, cfg.Budget.Backend, ledgerOpts)
	if err != nil {
		return nil, nil, err
	}

	prices := config.NewPriceTable(cfg.Pricing)
	e := &Engine{
		cfg:      cfg,
		root:     root,
		stateDir: stateDir,
		noCache:  opts.NoCache,
		now:      opts.Now,
		log:      log.Named("engine"),
		prices:   prices,
		sessions: session.NewManager(stateDir, session.Options{
			MaxFiles:    cfg.Cache.MaxFiles,
			TTL:         cfg.Cache.TTL.Duration,
			MaxSessions: cfg.Cache.MaxSessions,
			Overflow:    session.Overflow(cfg.Cache.Overflow),
			Archive:     cfg.Cache.ArchiveExpired,
			Lock:        lockOpts,
			Now:         opts.Now,
			Logger:      log,
		}),
		detector: detect.New(log),
		analyzer: analyzer,
		selector: selector.New(cfg, prices, log),
		ledger:   l,
	}
	return e, warnings, nil
}

// resolveRoot widens repo to its git worktree root when it lies inside one.
func resolveRoot(cfg config.Config, repo string) (string, error) {
	root := repo
	if root == "" {
		root = config.ResolveRepoPath(cfg, "")
	}
	if top, ok := source.RepoRoot(root); ok {
		root = top
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolving repo root: %w", err)
	}
	return root, nil
}

// StateDirFor returns the state directory Open would use for repo.
func StateDirFor(cfg config.Config, repo string) (string, error) {
	root, err := resolveRoot(cfg, repo)
	if err != nil {
		return "", err
	}
	return filepath.Abs(config.StateDir(cfg, root))
}

// Close releases the ledger.
func (e *Engine) Close() error { return e.ledger.Close() }

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config { return e.cfg }

// RepoRoot returns the repository files are resolved against.
func (e *Engine) RepoRoot() string { return e.root }

// StateDir returns where sessions and the ledger persist.
func (e *Engine) StateDir() string { return e.stateDir }

// Prices returns the pricing table with overrides applied.
func (e *Engine) Prices() *config.PriceTable { return e.prices }

// Selector exposes tier-to-model mapping for callers that plan ahead.
func (e *Engine) Selector() *selector.Selector { return e.selector }

func (e *Engine) ledgerWarnings(ws []model.Warning) []model.Warning {
	return append(ws, e.ledger.TakeWarnings()...)
}

// Choice carries caller overrides for ChooseModel.
type Choice struct {
	Tier            *model.Tier
	Model           string
	Role            string
	InputTokens     int64 // 0 estimates from the resolved bytes
	AllowOverBudget bool
}

// ChooseModel assesses goal against the resolved context size and selects a
// model under the current budget. The assessment is returned even when the
// budget blocks the selection.
func (e *Engine) ChooseModel(ctx context.Context, goal string, resolvedBytes int64, c Choice) (model.Selection, model.Assessment, error) {
	a := e.analyzer.Assess(goal, resolvedBytes, c.Tier)
	st, err := e.ledger.State(ctx)
	if err != nil {
		return model.Selection{}, a, err
	}
	input := c.InputTokens
	if input <= 0 {
		input = a.Signals.ContextTokens
	}
	sel, err := e.selector.Select(selector.Request{
		Tier:                 a.Tier,
		Model:                c.Model,
		Role:                 c.Role,
		EstimatedInputTokens: input,
		AllowOverBudget:      c.AllowOverBudget,
	}, st)
	if err != nil {
		return model.Selection{}, a, err
	}
	logging.Warnings(e.log, selector.Warnings(sel, st))
	return sel, a, nil
}

// Assess scores goal without consulting the budget and returns the planning
// cost range for the tier.
func (e *Engine) Assess(goal string, resolvedBytes int64, override *model.Tier) (model.Assessment, model.CostRange) {
	a := e.analyzer.Assess(goal, resolvedBytes, override)
	return a, complexity.EstimateCostRange(a.Tier)
}

// Usage describes one billed call for RecordUsage.
type Usage struct {
	Model            string
	Role             string
	Tier             model.Tier
	SessionID        string
	Goal             string
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// RecordCost appends a billed amount for modelID.
func (e *Engine) RecordCost(ctx context.Context, modelID string, amount float64) (model.CostEntry, error) {
	return e.RecordEntry(ctx, model.CostEntry{Model: modelID, Amount: amount})
}

// RecordEntry appends a fully described entry.
func (e *Engine) RecordEntry(ctx context.Context, entry model.CostEntry) (model.CostEntry, error) {
	return e.ledger.Record(ctx, entry)
}

// RecordUsage prices u from the pricing table and appends it.
func (e *Engine) RecordUsage(ctx context.Context, u Usage) (model.CostEntry, error) {
	now := e.now()
	amount := e.prices.Cost(u.Model, now, u.InputTokens, u.OutputTokens, u.CacheWriteTokens, u.CacheReadTokens)
	if _, known := e.prices.Lookup(u.Model, now); !known {
		e.log.Warn("no pricing for model, recording zero cost", zap.String("model", u.Model))
	}
	return e.ledger.Record(ctx, model.CostEntry{
		Timestamp:    now,
		Model:        u.Model,
		Role:         u.Role,
		Tier:         u.Tier,
		SessionID:    u.SessionID,
		Goal:         u.Goal,
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		Amount:       amount,
	})
}

// ResetCache destroys the session with the given id or scope, or every
// session for session.ResetAll.
func (e *Engine) ResetCache(ctx context.Context, target string) (int, error) {
	if target == "" {
		target = session.ResetAll
	}
	return e.sessions.Reset(ctx, target)
}

// IsLockTimeout reports whether err came from a bounded lock wait.
func IsLockTimeout(err error) bool { return errors.Is(err, lock.ErrTimeout) }
