package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// JSONLLedger stores one JSON cost entry per line. The file is re-read on
// every query so appends from other processes are visible.
type JSONLLedger struct {
	path string
}

// OpenJSONL opens (without creating) the ledger file at path. A corrupt file
// is quarantined and a warning returned.
func OpenJSONL(path string, now time.Time) (*JSONLLedger, []model.Warning, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	l := &JSONLLedger{path: path}
	if _, err := l.Entries(context.Background(), time.Time{}, time.Time{}); err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return nil, nil, err
		}
		w, rerr := l.Recover(now)
		if rerr != nil {
			return nil, nil, rerr
		}
		return l, []model.Warning{w}, nil
	}
	return l, nil, nil
}

// Path returns the ledger file location.
func (l *JSONLLedger) Path() string { return l.path }

// Append rewrites the file with e appended. The previous content stays
// readable until the rename. Existing content that does not decode wraps
// ErrCorrupt and nothing is written.
func (l *JSONLLedger) Append(ctx context.Context, e model.CostEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding cost entry: %w", err)
	}
	data, err := os.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading ledger: %w", err)
	}
	if _, err := l.decode(ctx, data, time.Time{}, time.Time{}); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	data = append(data, line...)
	data = append(data, '\n')
	return WriteFileAtomic(l.path, data, 0o640)
}

// Entries reads the file and filters by timestamp.
func (l *JSONLLedger) Entries(ctx context.Context, since, until time.Time) ([]model.CostEntry, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	return l.decode(ctx, data, since, until)
}

func (l *JSONLLedger) decode(ctx context.Context, data []byte, since, until time.Time) ([]model.CostEntry, error) {
	var out []model.CostEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if lineNo%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e model.CostEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrCorrupt, l.path, lineNo, err)
		}
		if e.Model == "" || e.Timestamp.IsZero() {
			return nil, fmt.Errorf("%w: %s line %d: missing model or timestamp", ErrCorrupt, l.path, lineNo)
		}
		if inRange(e.Timestamp, since, until) {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, l.path, err)
	}
	return out, nil
}

// Recover moves the file aside. The next Append starts a fresh ledger.
func (l *JSONLLedger) Recover(now time.Time) (model.Warning, error) {
	dst, err := Quarantine(l.path, now)
	if err != nil {
		return model.Warning{}, err
	}
	return model.Warning{
		Kind:    model.WarnCacheCorruption,
		Message: fmt.Sprintf("ledger unreadable, starting empty (moved to %s)", dst),
		Path:    l.path,
	}, nil
}

// Close is a no-op; the file is not held open.
func (l *JSONLLedger) Close() error { return nil }
