package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"

	"github.com/theirongolddev/tokenwise/internal/model"
)

func writeTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExpand_FileDirAndGlob(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":           "# hi",
		"src/app.ts":          "x",
		"src/app.test.ts":     "x",
		"src/deep/util.ts":    "x",
		"src/deep/image.png":  "x",
		"lib/a.go":            "x",
		"lib/sub/b.go":        "x",
		".git/config":         "x",
		"node_modules/m/i.ts": "x",
	})
	opts := ExpandOptions{AllowedExt: []string{".ts", ".md"}}

	got, warns, err := Expand(root, []string{"README.md", "src", "lib/**/*.go"}, opts)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	want := []string{"README.md", "lib/a.go", "lib/sub/b.go", "src/app.test.ts", "src/app.ts", "src/deep/util.ts"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Expand = %v\nwant %v", got, want)
	}
}

func TestExpand_DedupesAndWarnsOnNoMatch(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "x"})
	got, warns, err := Expand(root, []string{"a.go", "*.go", "missing/*.go", "nope.txt"}, ExpandOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "a.go" {
		t.Fatalf("Expand = %v, want [a.go]", got)
	}
	if len(warns) != 2 {
		t.Fatalf("warnings = %v, want 2 no-match warnings", warns)
	}
}

func TestExpand_RespectsGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "dist/\n*.gen.go\n",
		"main.go":        "x",
		"api.gen.go":     "x",
		"dist/bundle.go": "x",
		"pkg/keep.go":    "x",
		"pkg/.gitignore": "local.go\n",
		"pkg/local.go":   "x",
	})
	got, _, err := Expand(root, []string{"**/*.go"}, ExpandOptions{RespectGitignore: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"main.go", "pkg/keep.go"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Expand = %v, want %v", got, want)
	}
}

func TestExpand_GlobForms(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go":         "x",
		"x/y/a.go":     "x",
		"src/b.ts":     "x",
		"src/a/b.ts":   "x",
		"docs/a.md":    "x",
		"a/b/c/d/e.go": "x",
	})
	cases := []struct {
		pattern string
		want    []string
	}{
		{"**/*.go", []string{"a.go", "a/b/c/d/e.go", "x/y/a.go"}},
		{"src/**", []string{"src/a/b.ts", "src/b.ts"}},
		{"src/*.ts", []string{"src/b.ts"}},
		{"src/**/b.ts", []string{"src/a/b.ts", "src/b.ts"}},
		{"**/a/**/**/e.go", []string{"a/b/c/d/e.go"}},
		{"{docs,src}/*.{md,ts}", []string{"docs/a.md", "src/b.ts"}},
		{filepath.ToSlash(root) + "/x/**/*.go", []string{"x/y/a.go"}},
	}
	for _, c := range cases {
		got, warns, err := Expand(root, []string{c.pattern}, ExpandOptions{})
		if err != nil {
			t.Fatalf("Expand(%q): %v", c.pattern, err)
		}
		if len(warns) != 0 {
			t.Errorf("Expand(%q) warnings = %v", c.pattern, warns)
		}
		if strings.Join(got, ",") != strings.Join(c.want, ",") {
			t.Errorf("Expand(%q) = %v, want %v", c.pattern, got, c.want)
		}
	}
}

func TestExpand_InvalidGlobWarns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "x"})
	got, warns, err := Expand(root, []string{"src/[a"}, ExpandOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 || len(warns) != 1 || warns[0].Message != "invalid glob" {
		t.Fatalf("Expand = %v, %v", got, warns)
	}
}

func TestReadFile_TruncatesWithMarker(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"big.txt": strings.Repeat("a", 100)})
	f, err := ReadFile(root, "big.txt", 10, time.Now())
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !f.Truncated {
		t.Fatal("Truncated = false")
	}
	if want := strings.Repeat("a", 10) + TruncationMarker; string(f.Content) != want {
		t.Fatalf("Content = %q, want %q", f.Content, want)
	}
	if f.Fingerprint.Size != int64(len(f.Content)) {
		t.Fatalf("fingerprint size %d does not match transmitted content %d", f.Fingerprint.Size, len(f.Content))
	}
}

func TestReadFile_MissingIsContextReadError(t *testing.T) {
	_, err := ReadFile(t.TempDir(), "gone.go", 0, time.Now())
	var cre *ContextReadError
	if !errors.As(err, &cre) {
		t.Fatalf("err = %T %v, want *ContextReadError", err, err)
	}
	if cre.Path != "gone.go" || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("ContextReadError = %+v", cre)
	}
	if w := Warning(err); w.Kind != model.WarnContextRead || w.Path != "gone.go" {
		t.Fatalf("Warning = %+v", w)
	}
}

func TestLoad_ExcludesUnreadable(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root can read mode 000 files")
	}
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a", "b.go": "package b", "c.go": "package c"})
	if err := os.Chmod(filepath.Join(root, "b.go"), 0o000); err != nil {
		t.Fatal(err)
	}

	var calls int
	res, err := Load(context.Background(), root, []string{"*.go"}, LoadOptions{}, func(current, total int) {
		calls++
		if total != 3 {
			t.Errorf("progress total = %d, want 3", total)
		}
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(res.Files) != 2 || res.Files[0].Path != "a.go" || res.Files[1].Path != "c.go" {
		t.Fatalf("Files = %v", res.Files)
	}
	if len(res.Excluded) != 1 || res.Excluded[0] != "b.go" {
		t.Fatalf("Excluded = %v", res.Excluded)
	}
	if len(res.Warnings) != 1 || res.Warnings[0].Kind != model.WarnContextRead {
		t.Fatalf("Warnings = %v", res.Warnings)
	}
	if calls != 3 {
		t.Fatalf("progress called %d times, want 3", calls)
	}
}

func TestLoad_Canceled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, root, []string{"a.go"}, LoadOptions{}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load err = %v, want context.Canceled", err)
	}
}

func TestRepoRoot(t *testing.T) {
	root := t.TempDir()
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	got, ok := RepoRoot(sub)
	if !ok {
		t.Fatal("RepoRoot did not find the repository")
	}
	want, _ := filepath.EvalSymlinks(root)
	gotReal, _ := filepath.EvalSymlinks(got)
	if gotReal != want {
		t.Fatalf("RepoRoot = %q, want %q", got, root)
	}
}
