// Package source expands context file specs and reads the files they name.
package source

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/theirongolddev/tokenwise/internal/model"
)

// ExpandOptions control directory and glob expansion.
type ExpandOptions struct {
	AllowedExt       []string // applied to directory walks only
	RespectGitignore bool
	SkipDirs         []string // directory base names never descended into
}

var defaultSkipDirs = []string{".git", ".tokenwise", "node_modules", "vendor"}

// Expand resolves specs relative to root into a sorted, de-duplicated list of
// slash-separated paths. Each spec is a file, a directory (walked recursively
// for allowed extensions) or a glob where ** spans directories. Specs that
// match nothing produce a warning rather than an error.
func Expand(root string, specs []string, opts ExpandOptions) ([]string, []model.Warning, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving root: %w", err)
	}
	skip := opts.SkipDirs
	if skip == nil {
		skip = defaultSkipDirs
	}

	var ignore *Ignore
	if opts.RespectGitignore {
		ignore = LoadIgnore(root)
	}

	seen := make(map[string]struct{})
	var (
		out     []string
		warns   []model.Warning
		matched int
	)
	add := func(rel string) {
		matched++
		if _, ok := seen[rel]; ok {
			return
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}

	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		matched = 0

		abs := spec
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(root, spec)
		}

		info, statErr := os.Stat(abs)
		switch {
		case statErr == nil && !info.IsDir():
			add(relPath(root, abs))
		case statErr == nil && info.IsDir():
			walkErr := walkFiles(root, abs, skip, ignore, func(rel string) {
				if hasAllowedExt(rel, opts.AllowedExt) {
					add(rel)
				}
			})
			if walkErr != nil {
				return nil, warns, walkErr
			}
		case isGlob(spec):
			pattern := relPath(root, abs)
			if !doublestar.ValidatePattern(pattern) {
				warns = append(warns, model.Warning{Kind: model.WarnContextRead, Message: "invalid glob", Path: spec})
				continue
			}
			walkErr := walkFiles(root, globBase(root, pattern), skip, ignore, func(rel string) {
				if ok, _ := doublestar.Match(pattern, rel); ok {
					add(rel)
				}
			})
			if walkErr != nil {
				return nil, warns, walkErr
			}
		case statErr != nil && !errors.Is(statErr, fs.ErrNotExist):
			warns = append(warns, model.Warning{Kind: model.WarnContextRead, Message: statErr.Error(), Path: spec})
			continue
		}

		if matched == 0 {
			warns = append(warns, model.Warning{Kind: model.WarnContextRead, Message: "no files match", Path: spec})
		}
	}

	slices.Sort(out)
	return out, warns, nil
}

func walkFiles(root, dir string, skip []string, ignore *Ignore, fn func(rel string)) error {
	if _, err := os.Stat(dir); err != nil {
		return nil //nolint:nilerr // a missing glob base matches nothing
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // intentionally skip unreadable entries
		}
		rel := relPath(root, p)
		if d.IsDir() {
			if p != dir && slices.Contains(skip, d.Name()) {
				return filepath.SkipDir
			}
			if p != root && ignore.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ignore.Match(rel, false) {
			return nil
		}
		fn(rel)
		return nil
	})
}

// relPath returns p relative to root in slash form, or the cleaned absolute
// path when p lies outside root.
func relPath(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	return filepath.ToSlash(rel)
}

func hasAllowedExt(p string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(path.Ext(p))
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func isGlob(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// globBase returns the directory a walk for pattern starts from: the
// pattern's leading segments without metacharacters.
func globBase(root, pattern string) string {
	base, _ := doublestar.SplitPattern(pattern)
	if path.IsAbs(base) {
		return filepath.FromSlash(base)
	}
	return filepath.Join(root, filepath.FromSlash(base))
}
