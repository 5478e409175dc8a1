// Package ledger records billed remote calls and answers budget queries.
//
// The ledger is append-only: entries are never edited or deleted, and
// cumulative spend within a period only grows. Writes are serialized across
// processes by a lock file next to the backing store.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/lock"
	"github.com/theirongolddev/tokenwise/internal/logging"
	"github.com/theirongolddev/tokenwise/internal/model"
	"github.com/theirongolddev/tokenwise/internal/store"
)

// ErrInvalidEntry is returned by Record for entries that fail validation.
var ErrInvalidEntry = errors.New("invalid cost entry")

// Period selects a window of ledger history.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

// ParsePeriod accepts day, month or all.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodDay, PeriodMonth, PeriodAll:
		return p, nil
	case "":
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown period %q (want day, month or all)", s)
}

// Bounds returns [since, until) for the period containing now, in now's
// location. PeriodAll is unbounded.
func (p Period) Bounds(now time.Time) (time.Time, time.Time) {
	switch p {
	case PeriodDay:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 0, 1)
	case PeriodMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return start, start.AddDate(0, 1, 0)
	}
	return time.Time{}, time.Time{}
}

// Options configure a Ledger.
type Options struct {
	MonthlyTarget float64
	DailyTarget   float64
	WarnPercent   float64
	Lock          lock.Options
	Now           func() time.Time
	Logger        *zap.Logger
}

// OptionsFromConfig maps the [budget] and [lock] sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MonthlyTarget: cfg.Budget.MonthlyTarget,
		DailyTarget:   cfg.Budget.DailyTarget,
		WarnPercent:   cfg.Budget.WarnPercent,
		Lock: lock.Options{
			Timeout: cfg.Lock.Timeout.Duration,
			Retries: cfg.Lock.Retries,
		},
	}
}

// Ledger is a handle on one state directory's cost history.
type Ledger struct {
	backend  store.LedgerBackend
	lockPath string
	opts     Options
	log      *zap.Logger

	mu       sync.Mutex
	warnings []model.Warning
}

// Open opens the ledger in stateDir using backend ("jsonl" or "sqlite").
// A corrupt store is quarantined and reported in the returned warnings.
func Open(stateDir, backend string, opts Options) (*Ledger, []model.Warning, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := logging.OrNop(opts.Logger).Named("ledger")

	var (
		b        store.LedgerBackend
		warnings []model.Warning
		err      error
	)
	switch backend {
	case "", config.BackendJSONL:
		var j *store.JSONLLedger
		j, warnings, err = store.OpenJSONL(filepath.Join(stateDir, "ledger.jsonl"), opts.Now())
		b = j
	case config.BackendSQLite:
		var s *store.SQLiteLedger
		s, warnings, err = store.OpenSQLite(filepath.Join(stateDir, "ledger.db"), opts.Now())
		b = s
	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s ledger: %w", backend, err)
	}
	logging.Warnings(log, warnings)

	return &Ledger{
		backend:  b,
		lockPath: filepath.Join(stateDir, "ledger.lock"),
		opts:     opts,
		log:      log,
	}, warnings, nil
}

// Path returns the backing store location.
func (l *Ledger) Path() string { return l.backend.Path() }

// Close releases the backend.
func (l *Ledger) Close() error { return l.backend.Close() }

// TakeWarnings returns and clears warnings raised since the last call, such
// as a store recovered mid-session.
func (l *Ledger) TakeWarnings() []model.Warning {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.warnings
	l.warnings = nil
	return w
}

func (l *Ledger) warn(w model.Warning) {
	logging.Warnings(l.log, []model.Warning{w})
	l.mu.Lock()
	l.warnings = append(l.warnings, w)
	l.mu.Unlock()
}

// Validate checks the fields Record requires.
func Validate(e model.CostEntry) error {
	switch {
	case strings.TrimSpace(e.Model) == "":
		return fmt.Errorf("%w: model is required", ErrInvalidEntry)
	case math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0):
		return fmt.Errorf("%w: amount %v is not a number", ErrInvalidEntry, e.Amount)
	case e.Amount < 0:
		return fmt.Errorf("%w: amount %v is negative", ErrInvalidEntry, e.Amount)
	case e.InputTokens < 0 || e.OutputTokens < 0:
		return fmt.Errorf("%w: token counts must be non-negative", ErrInvalidEntry)
	}
	return nil
}

// Record validates e, fills in ID and Timestamp when unset, and appends it
// under the ledger lock. The stored entry is returned.
func (l *Ledger) Record(ctx context.Context, e model.CostEntry) (model.CostEntry, error) {
	if err := Validate(e); err != nil {
		return model.CostEntry{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.opts.Now()
	}
	e.Timestamp = e.Timestamp.UTC()

	err := lock.With(ctx, l.lockPath, l.opts.Lock, func() error {
		err := l.backend.Append(ctx, e)
		if errors.Is(err, store.ErrCorrupt) {
			w, rerr := l.backend.Recover(l.opts.Now())
			if rerr != nil {
				return rerr
			}
			l.warn(w)
			err = l.backend.Append(ctx, e)
		}
		return err
	})
	if err != nil {
		return model.CostEntry{}, fmt.Errorf("recording cost for %s: %w", e.Model, err)
	}
	l.log.Debug("recorded cost",
		zap.String("id", e.ID),
		zap.String("model", e.Model),
		zap.Float64("amount", e.Amount))
	return e, nil
}

// Between returns entries with since <= Timestamp < until, oldest first.
func (l *Ledger) Between(ctx context.Context, since, until time.Time) ([]model.CostEntry, error) {
	entries, err := l.backend.Entries(ctx, since, until)
	if errors.Is(err, store.ErrCorrupt) {
		// Another process may have recovered the store while we waited.
		err = lock.With(ctx, l.lockPath, l.opts.Lock, func() error {
			var rerr error
			entries, rerr = l.backend.Entries(ctx, since, until)
			if !errors.Is(rerr, store.ErrCorrupt) {
				return rerr
			}
			w, rerr := l.backend.Recover(l.opts.Now())
			if rerr != nil {
				return rerr
			}
			l.warn(w)
			entries = nil
			return nil
		})
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return entries, nil
}

// Entries returns the entries of the period containing now.
func (l *Ledger) Entries(ctx context.Context, p Period) ([]model.CostEntry, error) {
	since, until := p.Bounds(l.opts.Now())
	return l.Between(ctx, since, until)
}

// CumulativeSpend sums the amounts recorded in the current period.
func (l *Ledger) CumulativeSpend(ctx context.Context, p Period) (float64, error) {
	entries, err := l.Entries(ctx, p)
	if err != nil {
		return 0, err
	}
	return Sum(entries), nil
}

// PercentageOfTarget returns month spend as a percentage of the monthly
// target, or 0 when no target is set.
func (l *Ledger) PercentageOfTarget(ctx context.Context) (float64, error) {
	st, err := l.State(ctx)
	if err != nil {
		return 0, err
	}
	return st.MonthlyPercent(), nil
}

// State returns spend against the configured targets as of now.
func (l *Ledger) State(ctx context.Context) (model.BudgetState, error) {
	now := l.opts.Now()
	month, err := l.Entries(ctx, PeriodMonth)
	if err != nil {
		return model.BudgetState{}, err
	}
	daySince, dayUntil := PeriodDay.Bounds(now)
	var day float64
	for _, e := range month {
		if !e.Timestamp.Before(daySince) && e.Timestamp.Before(dayUntil) {
			day += e.Amount
		}
	}
	return model.BudgetState{
		MonthlyTarget: l.opts.MonthlyTarget,
		DailyTarget:   l.opts.DailyTarget,
		WarnPercent:   l.opts.WarnPercent,
		MonthSpend:    Sum(month),
		DaySpend:      day,
		Entries:       len(month),
		At:            now,
	}, nil
}

// Analysis summarizes the trailing days ending today.
func (l *Ledger) Analysis(ctx context.Context, days int) (model.CostAnalysis, error) {
	if days <= 0 {
		days = 7
	}
	now := l.opts.Now()
	_, until := PeriodDay.Bounds(now)
	since := until.AddDate(0, 0, -days)
	entries, err := l.Between(ctx, since, until)
	if err != nil {
		return model.CostAnalysis{}, err
	}
	return Analyze(entries, since, until), nil
}

// Sum adds up entry amounts.
func Sum(entries []model.CostEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Amount
	}
	return total
}
