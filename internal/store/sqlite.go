package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// SQLiteLedger provides a SQLite-backed cost ledger.
type SQLiteLedger struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens or creates the ledger database at the given path. A
// database that fails its integrity check is quarantined and recreated.
func OpenSQLite(dbPath string, now time.Time) (*SQLiteLedger, []model.Warning, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating ledger dir: %w", err)
	}

	l := &SQLiteLedger{path: dbPath}
	err := l.open()
	if err == nil {
		return l, nil, nil
	}
	if !errors.Is(err, ErrCorrupt) {
		return nil, nil, err
	}
	w, rerr := l.Recover(now)
	if rerr != nil {
		return nil, nil, rerr
	}
	return l, []model.Warning{w}, nil
}

func (l *SQLiteLedger) open() error {
	db, err := sql.Open("sqlite", l.path+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("opening ledger db: %w", err)
	}

	var check string
	if err := db.QueryRow("PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		if isCorruptErr(err) {
			return fmt.Errorf("%w: %s: %v", ErrCorrupt, l.path, err)
		}
		return fmt.Errorf("checking ledger db: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return fmt.Errorf("%w: %s: quick_check: %s", ErrCorrupt, l.path, check)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		if isCorruptErr(err) {
			return fmt.Errorf("%w: creating schema: %v", ErrCorrupt, err)
		}
		return fmt.Errorf("creating schema: %w", err)
	}

	l.db = db
	return nil
}

// Path returns the database location.
func (l *SQLiteLedger) Path() string { return l.path }

// Close closes the ledger database.
func (l *SQLiteLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append inserts one entry in its own transaction.
func (l *SQLiteLedger) Append(ctx context.Context, e model.CostEntry) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapCorrupt("beginning insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := e.Timestamp.UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO cost_entries
		(id, ts_ns, ts, model, role, tier, session_id, input_tokens, output_tokens, amount, goal)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, ts.UnixNano(), ts.Format(time.RFC3339Nano), e.Model, e.Role, string(e.Tier), e.SessionID,
		e.InputTokens, e.OutputTokens, e.Amount, e.Goal,
	)
	if err != nil {
		return wrapCorrupt("inserting cost entry", err)
	}
	return wrapCorrupt("committing cost entry", tx.Commit())
}

// Entries reads entries in [since, until), oldest first.
func (l *SQLiteLedger) Entries(ctx context.Context, since, until time.Time) ([]model.CostEntry, error) {
	q := `SELECT id, ts, model, role, tier, session_id, input_tokens, output_tokens, amount, goal
		FROM cost_entries WHERE 1=1`
	var args []any
	if !since.IsZero() {
		q += " AND ts_ns >= ?"
		args = append(args, since.UTC().UnixNano())
	}
	if !until.IsZero() {
		q += " AND ts_ns < ?"
		args = append(args, until.UTC().UnixNano())
	}
	q += " ORDER BY ts_ns, rowid"

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrapCorrupt("querying ledger", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CostEntry
	for rows.Next() {
		var e model.CostEntry
		var ts string
		var role, tier, sid, goal sql.NullString
		if err := rows.Scan(&e.ID, &ts, &e.Model, &role, &tier, &sid, &e.InputTokens, &e.OutputTokens, &e.Amount, &goal); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %s timestamp: %v", ErrCorrupt, e.ID, err)
		}
		e.Role = role.String
		e.Tier = model.Tier(tier.String)
		e.SessionID = sid.String
		e.Goal = goal.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapCorrupt("reading rows", err)
	}
	return out, nil
}

// Count returns the number of recorded entries.
func (l *SQLiteLedger) Count(ctx context.Context) (int, error) {
	var count int
	err := l.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cost_entries").Scan(&count)
	return count, wrapCorrupt("counting entries", err)
}

// Recover closes the database, moves it (and its WAL files) aside, and
// creates an empty one.
func (l *SQLiteLedger) Recover(now time.Time) (model.Warning, error) {
	if l.db != nil {
		_ = l.db.Close()
		l.db = nil
	}
	dst, err := Quarantine(l.path, now)
	if err != nil {
		return model.Warning{}, err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Rename(l.path+suffix, dst+suffix)
	}
	if err := l.open(); err != nil {
		return model.Warning{}, err
	}
	return model.Warning{
		Kind:    model.WarnCacheCorruption,
		Message: fmt.Sprintf("ledger database unreadable, starting empty (moved to %s)", dst),
		Path:    l.path,
	}, nil
}

// wrapCorrupt annotates err, wrapping ErrCorrupt when SQLite reports a
// damaged database so callers can recover.
func wrapCorrupt(op string, err error) error {
	if err == nil {
		return nil
	}
	if isCorruptErr(err) {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isCorruptErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not a database") || strings.Contains(msg, "malformed")
}
