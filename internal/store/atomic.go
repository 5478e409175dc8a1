// Package store persists cache sessions and the cost ledger under the state directory.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// ErrCorrupt marks persisted data that could not be decoded.
var ErrCorrupt = errors.New("corrupt store")

// WriteFileAtomic replaces path with data through a synced temp file and a
// rename. Readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteJSONAtomic marshals v as indented JSON and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	return WriteFileAtomic(path, append(data, '\n'), 0o640)
}

// ReadJSON decodes path into v. Decode failures wrap ErrCorrupt.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is under the state dir
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

// Quarantine moves a corrupt file or directory aside to <path>.corrupt-<unix>
// and returns the new location.
func Quarantine(path string, now time.Time) (string, error) {
	dst := fmt.Sprintf("%s.corrupt-%d", path, now.Unix())
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); errors.Is(err, os.ErrNotExist) {
			break
		}
		dst = fmt.Sprintf("%s.corrupt-%d-%d", path, now.Unix(), i)
	}
	if err := os.Rename(path, dst); err != nil {
		return "", fmt.Errorf("quarantining %s: %w", path, err)
	}
	return dst, nil
}
