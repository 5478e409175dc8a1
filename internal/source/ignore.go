package source

import (
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Ignore matches repository paths against the .gitignore files under a root.
// A nil *Ignore matches nothing.
type Ignore struct {
	matcher gitignore.Matcher
}

// LoadIgnore reads every .gitignore below root. Unreadable files are skipped.
func LoadIgnore(root string) *Ignore {
	patterns, err := gitignore.ReadPatterns(osfs.New(root), nil)
	if err != nil || len(patterns) == 0 {
		return nil
	}
	return &Ignore{matcher: gitignore.NewMatcher(patterns)}
}

// Match reports whether the slash-separated rel path is ignored.
func (i *Ignore) Match(rel string, isDir bool) bool {
	if i == nil || rel == "" || rel == "." || strings.HasPrefix(rel, "/") {
		return false
	}
	return i.matcher.Match(strings.Split(rel, "/"), isDir)
}

// RepoRoot returns the worktree root of the git repository containing start,
// or false when start is not inside one.
func RepoRoot(start string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(start, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", false
	}
	return wt.Filesystem.Root(), true
}
