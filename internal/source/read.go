package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/model"
)

// TruncationMarker is appended to files cut at the size limit.
const TruncationMarker = "\n/* ...truncated... */\n"

// ContextReadError reports a requested file that could not be read. The file
// is excluded from the request; the request itself continues.
type ContextReadError struct {
	Path string
	Err  error
}

func (e *ContextReadError) Error() string {
	return fmt.Sprintf("reading context file %s: %v", e.Path, e.Err)
}

func (e *ContextReadError) Unwrap() error { return e.Err }

// File is one context file as it will be transmitted.
type File struct {
	Path        string
	Content     []byte
	Truncated   bool
	Fingerprint model.FileFingerprint
}

// ReadFile reads rel under root, truncating at maxBytes (0 means no limit).
// Failures are returned as *ContextReadError.
func ReadFile(root, rel string, maxBytes int64, now time.Time) (File, error) {
	p := filepath.FromSlash(rel)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}

	f, err := os.Open(p) //nolint:gosec // path comes from user-selected context specs
	if err != nil {
		return File{}, &ContextReadError{Path: rel, Err: err}
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return File{}, &ContextReadError{Path: rel, Err: err}
	}
	if !info.Mode().IsRegular() {
		return File{}, &ContextReadError{Path: rel, Err: errors.New("not a regular file")}
	}

	var r io.Reader = f
	if maxBytes > 0 {
		r = io.LimitReader(f, maxBytes+1)
	}
	content, err := io.ReadAll(r)
	if err != nil {
		return File{}, &ContextReadError{Path: rel, Err: err}
	}

	out := File{Path: rel}
	if maxBytes > 0 && int64(len(content)) > maxBytes {
		content = append(content[:maxBytes:maxBytes], TruncationMarker...)
		out.Truncated = true
	}
	out.Content = content
	out.Fingerprint = fingerprint.Compute(rel, content, now)
	return out, nil
}

// Warning converts a read failure into a user-facing warning.
func Warning(err error) model.Warning {
	var cre *ContextReadError
	if errors.As(err, &cre) {
		return model.Warning{Kind: model.WarnContextRead, Message: "excluded: " + cre.Err.Error(), Path: cre.Path}
	}
	return model.Warning{Kind: model.WarnContextRead, Message: err.Error()}
}
