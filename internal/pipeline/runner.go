// Package pipeline runs the Architect, Coder, Tester and DocWriter stages of
// one task against a remote model, one stage at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/detect"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/remote"
	"github.com/theirongolddev/tokenwise/internal/selector"
)

// Task is one goal to push through the stages.
type Task struct {
	Goal            string
	Scope           string
	Globs           []string
	NoCache         bool
	Tier            *model.Tier
	Model           string
	AllowOverBudget bool
	// Stages defaults to model.Roles.
	Stages []string
}

// StageResult is one completed stage.
type StageResult struct {
	Role      string
	Selection model.Selection
	Output    string
	Cost      float64
	Calls     int
	Reuse     model.ReuseStats
	Commit    detect.CommitResult
	Duration  time.Duration

	// Saved prices the reused context at the selected model's input rate.
	Saved float64
}

// Result is everything Run did, including stages finished before a failure.
type Result struct {
	Assessment model.Assessment
	Stages     []StageResult
	TotalCost  float64
	TotalSaved float64
	Warnings   []model.Warning
}

// Runner executes tasks. Engine and Caller are required.
type Runner struct {
	Engine      *engine.Engine
	Caller      remote.Caller
	MaxAttempts int
	Prompts     PromptBuilder
	// OnStage, when set, is called before each stage starts.
	OnStage func(role string, sel model.Selection)
	Logger  *zap.Logger
}

// Run resolves context, chooses a model and calls the remote side for each
// stage in order. Every billed call is recorded, even when ctx is canceled
// during the call. A budget stop or cancellation halts before the next stage.
func (r *Runner) Run(ctx context.Context, t Task) (Result, error) {
	log := logging.OrNop(r.Logger).Named("pipeline")
	prompts := r.Prompts
	if prompts == nil {
		prompts = DefaultPrompts
	}
	stages := t.Stages
	if len(stages) == 0 {
		stages = model.Roles
	}

	var (
		out      Result
		previous string
	)
	for _, role := range stages {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("stopped before %s: %w", role, err)
		}
		start := time.Now()

		res, err := r.Engine.ResolveContext(ctx, engine.Request{
			Goal:    t.Goal,
			Scope:   t.Scope,
			Globs:   t.Globs,
			NoCache: t.NoCache,
		})
		if err != nil {
			return out, fmt.Errorf("%s: %w", role, err)
		}
		out.Warnings = append(out.Warnings, res.Warnings...)

		in := StageInput{
			Role:     role,
			Goal:     t.Goal,
			Previous: previous,
			Payload:  res.Payload,
			Aliases:  res.Plan.Aliases,
		}
		for _, f := range res.Cached {
			in.Cached = append(in.Cached, f.Path)
		}

		system, prompt := prompts.Build(in)
		tokens := fingerprint.EstimateTokens(int64(len(system) + len(prompt)))
		sel, a, err := r.Engine.ChooseModel(ctx, t.Goal, res.ContextBytes, engine.Choice{
			Tier:            t.Tier,
			Model:           t.Model,
			Role:            role,
			InputTokens:     tokens,
			AllowOverBudget: t.AllowOverBudget,
		})
		if out.Assessment.Tier == "" {
			out.Assessment = a
		}
		if err != nil {
			return out, fmt.Errorf("%s: %w", role, err)
		}
		in.Tier = a.Tier
		if r.OnStage != nil {
			r.OnStage(role, sel)
		}

		stage := StageResult{
			Role:      role,
			Selection: sel,
			Reuse:     res.Stats,
			Saved:     r.Engine.Savings(sel.Model, res.TokensSaved),
		}
		caller := &remote.Retrying{
			Caller:      r.Caller,
			MaxAttempts: r.MaxAttempts,
			Logger:      r.Logger,
			OnBilled: func(ctx context.Context, u remote.Usage) error {
				entry, err := r.Engine.RecordUsage(ctx, engine.Usage{
					Model:            orDefault(u.Model, sel.Model),
					Role:             role,
					Tier:             a.Tier,
					SessionID:        sessionID(res),
					Goal:             t.Goal,
					InputTokens:      u.InputTokens,
					OutputTokens:     u.OutputTokens,
					CacheWriteTokens: u.CacheWriteTokens,
					CacheReadTokens:  u.CacheReadTokens,
				})
				if err != nil {
					return err
				}
				stage.Calls++
				stage.Cost += entry.Amount
				out.TotalCost += entry.Amount
				return nil
			},
		}

		resp, err := caller.Complete(ctx, remote.Request{
			Model:     sel.Model,
			System:    system,
			Prompt:    prompt,
			MaxTokens: sel.MaxOutputTokens,
			Role:      role,
		})
		stage.Duration = time.Since(start)
		if err != nil {
			if stage.Calls > 0 {
				out.Stages = append(out.Stages, stage)
			}
			return out, fmt.Errorf("%s: %w", role, err)
		}
		stage.Output = resp.Text

		// A cancel that arrived during the call must not lose the plan.
		commit, err := r.Engine.CommitContext(context.WithoutCancel(ctx), res)
		switch {
		case err == nil:
			stage.Commit = commit
			out.Warnings = append(out.Warnings, commit.Warnings()...)
		case engine.IsLockTimeout(err):
			out.Warnings = append(out.Warnings, model.Warning{
				Kind:    model.WarnLockTimeout,
				Message: "cache busy, context of this stage was not cached",
			})
		default:
			return out, fmt.Errorf("%s: %w", role, err)
		}

		log.Info("stage complete",
			zap.String("role", role),
			zap.String("model", sel.Model),
			zap.Float64("cost", stage.Cost),
			zap.Float64("saved", stage.Saved),
			zap.Int("transmitted", res.Stats.FilesTransmitted),
			zap.Int("reused", res.Stats.FilesReused))
		out.Stages = append(out.Stages, stage)
		out.TotalSaved += stage.Saved
		previous = resp.Text
	}
	return out, nil
}

// Halted reports whether err stopped the pipeline because of the budget.
func Halted(err error) bool {
	return errors.Is(err, selector.ErrBudgetExceeded)
}

func sessionID(res engine.Resolution) string {
	if res.Session == nil {
		return ""
	}
	return res.Session.ID
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
