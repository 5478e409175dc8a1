package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/theirongolddev/tokenwise/internal/config"
	"github.com/theirongolddev/tokenwise/internal/lock"
	"github.com/theirongolddev/tokenwise/internal/model"
)

var base = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func testOptions(now *time.Time) Options {
	return Options{
		MonthlyTarget: 100,
		DailyTarget:   10,
		WarnPercent:   80,
		Lock:          lock.Options{Timeout: 50 * time.Millisecond, Poll: 5 * time.Millisecond},
		Now:           func() time.Time { return *now },
	}
}

func openLedger(t *testing.T, dir, backend string, now *time.Time) *Ledger {
	t.Helper()
	l, warnings, err := Open(dir, backend, testOptions(now))
	if err != nil {
		t.Fatalf("Open(%s): %v", backend, err)
	}
	if len(warnings) != 0 {
		t.Fatalf("Open(%s) warnings = %v", backend, warnings)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestCumulativeSpendSurvivesReopen(t *testing.T) {
	for _, backend := range []string{config.BackendJSONL, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			now := base
			ctx := context.Background()

			amounts := []float64{0.25, 1.5, 0, 3.125}
			var want float64
			for i, a := range amounts {
				l := openLedger(t, dir, backend, &now)
				if _, err := l.Record(ctx, model.CostEntry{Model: "claude-sonnet-4-5", Amount: a}); err != nil {
					t.Fatalf("Record #%d: %v", i, err)
				}
				want += a
				_ = l.Close()
				now = now.Add(time.Minute)
			}

			l := openLedger(t, dir, backend, &now)
			got, err := l.CumulativeSpend(ctx, PeriodMonth)
			if err != nil {
				t.Fatalf("CumulativeSpend: %v", err)
			}
			if math.Abs(got-want) > 1e-9 {
				t.Fatalf("CumulativeSpend = %v, want %v", got, want)
			}
			entries, _ := l.Entries(ctx, PeriodAll)
			if len(entries) != len(amounts) {
				t.Fatalf("entries = %d, want %d", len(entries), len(amounts))
			}
			for _, e := range entries {
				if e.ID == "" || e.Timestamp.IsZero() {
					t.Fatalf("entry missing id or timestamp: %+v", e)
				}
			}
		})
	}
}

func TestRecord_Validation(t *testing.T) {
	now := base
	l := openLedger(t, t.TempDir(), config.BackendJSONL, &now)
	cases := []model.CostEntry{
		{Model: "", Amount: 1},
		{Model: "claude-haiku-4-5", Amount: -0.01},
		{Model: "claude-haiku-4-5", Amount: math.NaN()},
		{Model: "claude-haiku-4-5", Amount: 1, InputTokens: -1},
	}
	for _, e := range cases {
		if _, err := l.Record(context.Background(), e); !errors.Is(err, ErrInvalidEntry) {
			t.Fatalf("Record(%+v) err = %v, want ErrInvalidEntry", e, err)
		}
	}
	if n, _ := l.CumulativeSpend(context.Background(), PeriodAll); n != 0 {
		t.Fatalf("invalid entries were stored: spend %v", n)
	}
}

func TestPeriodsReset(t *testing.T) {
	now := base.AddDate(0, -1, 0)
	ctx := context.Background()
	l := openLedger(t, t.TempDir(), config.BackendJSONL, &now)

	mustRecord(t, l, 5)
	now = base.Add(-24 * time.Hour)
	mustRecord(t, l, 2)
	now = base
	mustRecord(t, l, 1)

	month, _ := l.CumulativeSpend(ctx, PeriodMonth)
	day, _ := l.CumulativeSpend(ctx, PeriodDay)
	all, _ := l.CumulativeSpend(ctx, PeriodAll)
	if month != 3 || day != 1 || all != 8 {
		t.Fatalf("month=%v day=%v all=%v, want 3 1 8", month, day, all)
	}

	now = base.AddDate(0, 1, 0)
	month, _ = l.CumulativeSpend(ctx, PeriodMonth)
	if month != 0 {
		t.Fatalf("new month spend = %v, want 0", month)
	}
	all, _ = l.CumulativeSpend(ctx, PeriodAll)
	if all != 8 {
		t.Fatalf("history lost: all = %v", all)
	}
}

func TestState(t *testing.T) {
	now := base
	ctx := context.Background()
	l := openLedger(t, t.TempDir(), config.BackendSQLite, &now)
	mustRecord(t, l, 81)

	st, err := l.State(ctx)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if st.MonthSpend != 81 || st.DaySpend != 81 || st.Entries != 1 {
		t.Fatalf("State = %+v", st)
	}
	if !st.Warning() || !st.Exceeded() {
		t.Fatalf("81 of 100 monthly with 10 daily: warning=%v exceeded=%v", st.Warning(), st.Exceeded())
	}
	pct, _ := l.PercentageOfTarget(ctx)
	if pct != 81 {
		t.Fatalf("PercentageOfTarget = %v, want 81", pct)
	}
}

func TestCorruptJSONLIsQuarantined(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	if err := os.WriteFile(path, []byte("{not json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	now := base
	l, warnings, err := Open(dir, config.BackendJSONL, testOptions(&now))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Kind != model.WarnCacheCorruption {
		t.Fatalf("warnings = %v, want one corruption warning", warnings)
	}
	spend, err := l.CumulativeSpend(context.Background(), PeriodAll)
	if err != nil || spend != 0 {
		t.Fatalf("spend after recovery = %v, %v", spend, err)
	}
	mustRecord(t, l, 2)

	matches, _ := filepath.Glob(path + ".corrupt-*")
	if len(matches) != 1 {
		t.Fatalf("quarantined files = %v", matches)
	}
}

func TestCorruptionAfterOpenRecovers(t *testing.T) {
	dir := t.TempDir()
	now := base
	l := openLedger(t, dir, config.BackendJSONL, &now)
	mustRecord(t, l, 1)

	f, err := os.OpenFile(filepath.Join(dir, "ledger.jsonl"), os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("garbage\n")
	_ = f.Close()

	if _, err := l.State(context.Background()); err != nil {
		t.Fatalf("State after corruption: %v", err)
	}
	w := l.TakeWarnings()
	if len(w) != 1 || !strings.Contains(w[0].Message, "starting empty") {
		t.Fatalf("TakeWarnings = %v", w)
	}
	if again := l.TakeWarnings(); len(again) != 0 {
		t.Fatalf("warnings not cleared: %v", again)
	}
	mustRecord(t, l, 4)
	if spend, _ := l.CumulativeSpend(context.Background(), PeriodAll); spend != 4 {
		t.Fatalf("spend = %v, want 4", spend)
	}
}

func TestRecordAfterCorruptionKeepsNewEntry(t *testing.T) {
	dir := t.TempDir()
	now := base
	l := openLedger(t, dir, config.BackendJSONL, &now)
	mustRecord(t, l, 1)
	appendGarbage(t, filepath.Join(dir, "ledger.jsonl"))

	mustRecord(t, l, 4)
	w := l.TakeWarnings()
	if len(w) != 1 || w[0].Kind != model.WarnCacheCorruption {
		t.Fatalf("warnings after Record = %v, want one corruption warning", w)
	}
	spend, err := l.CumulativeSpend(context.Background(), PeriodAll)
	if err != nil || spend != 4 {
		t.Fatalf("spend = %v, %v, want 4", spend, err)
	}
	if w := l.TakeWarnings(); len(w) != 0 {
		t.Fatalf("second recovery: %v", w)
	}
}

func TestBetween_RechecksUnderLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.jsonl")
	now := base
	l := openLedger(t, dir, config.BackendJSONL, &now)
	mustRecord(t, l, 2)
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	appendGarbage(t, path)

	held, err := lock.Acquire(context.Background(), filepath.Join(dir, "ledger.lock"), lock.Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	l.opts.Lock.Timeout = 2 * time.Second

	type result struct {
		spend float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		spend, err := l.CumulativeSpend(context.Background(), PeriodAll)
		done <- result{spend, err}
	}()

	// Another process repairs the file while this handle waits on the lock.
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, good, 0o600); err != nil {
		t.Fatal(err)
	}
	_ = held.Release()

	r := <-done
	if r.err != nil || r.spend != 2 {
		t.Fatalf("spend = %v, %v, want 2", r.spend, r.err)
	}
	if matches, _ := filepath.Glob(path + ".corrupt-*"); len(matches) != 0 {
		t.Fatalf("repaired ledger was quarantined: %v", matches)
	}
}

func TestSQLiteCorruptionAfterOpenRecovers(t *testing.T) {
	dir := t.TempDir()
	now := base
	l := openLedger(t, dir, config.BackendSQLite, &now)
	mustRecord(t, l, 1)

	db := filepath.Join(dir, "ledger.db")
	for _, p := range []string{db, db + "-wal", db + "-shm"} {
		if err := os.WriteFile(p, []byte(strings.Repeat("garbage!", 512)), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	st, err := l.State(context.Background())
	if err != nil {
		t.Fatalf("State after corruption: %v", err)
	}
	if st.MonthSpend != 0 {
		t.Fatalf("MonthSpend = %v, want 0 after recovery", st.MonthSpend)
	}
	if w := l.TakeWarnings(); len(w) != 1 || w[0].Kind != model.WarnCacheCorruption {
		t.Fatalf("TakeWarnings = %v", w)
	}
	mustRecord(t, l, 3)
	if spend, _ := l.CumulativeSpend(context.Background(), PeriodAll); spend != 3 {
		t.Fatalf("spend = %v, want 3", spend)
	}
}

func TestConcurrentRecordAcrossHandles(t *testing.T) {
	for _, backend := range []string{config.BackendJSONL, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			now := base
			const writers, each = 8, 5

			handles := make([]*Ledger, writers)
			for i := range handles {
				opts := testOptions(&now)
				opts.Lock = lock.Options{Timeout: 10 * time.Second, Poll: time.Millisecond}
				l, _, err := Open(dir, backend, opts)
				if err != nil {
					t.Fatalf("Open #%d: %v", i, err)
				}
				t.Cleanup(func() { _ = l.Close() })
				handles[i] = l
			}

			var wg sync.WaitGroup
			errs := make(chan error, writers*each)
			for i, l := range handles {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for j := 0; j < each; j++ {
						_, err := l.Record(context.Background(), model.CostEntry{
							Model:  "claude-haiku-4-5",
							Amount: float64(i + 1),
							Goal:   fmt.Sprintf("writer %d call %d", i, j),
						})
						if err != nil {
							errs <- err
						}
					}
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("Record: %v", err)
			}

			entries, err := handles[0].Entries(context.Background(), PeriodAll)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != writers*each {
				t.Fatalf("entries = %d, want %d", len(entries), writers*each)
			}
			// each * (1 + 2 + ... + writers)
			want := float64(each * writers * (writers + 1) / 2)
			if got := Sum(entries); got != want {
				t.Fatalf("sum = %v, want %v", got, want)
			}
		})
	}
}

func TestRecord_LockTimeout(t *testing.T) {
	dir := t.TempDir()
	now := base
	l := openLedger(t, dir, config.BackendJSONL, &now)

	held, err := lock.Acquire(context.Background(), filepath.Join(dir, "ledger.lock"), lock.Options{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()

	_, err = l.Record(context.Background(), model.CostEntry{Model: "claude-haiku-4-5", Amount: 1})
	if !errors.Is(err, lock.ErrTimeout) {
		t.Fatalf("Record err = %v, want lock.ErrTimeout", err)
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	now := base
	if _, _, err := Open(t.TempDir(), "csv", testOptions(&now)); err == nil {
		t.Fatal("Open(csv) succeeded")
	}
}

func TestParsePeriod(t *testing.T) {
	for in, want := range map[string]Period{"": PeriodMonth, "Day": PeriodDay, "all": PeriodAll} {
		got, err := ParsePeriod(in)
		if err != nil || got != want {
			t.Fatalf("ParsePeriod(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePeriod("week"); err == nil {
		t.Fatal("ParsePeriod(week) succeeded")
	}
}

func appendGarbage(t *testing.T, path string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("garbage\n")
	_ = f.Close()
}

func mustRecord(t *testing.T, l *Ledger, amount float64) {
	t.Helper()
	if _, err := l.Record(context.Background(), model.CostEntry{Model: "claude-sonnet-4-5", Amount: amount}); err != nil {
		t.Fatalf("Record(%v): %v", amount, err)
	}
}
