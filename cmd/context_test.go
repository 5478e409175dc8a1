package cmd

import (
	"testing"
	"time"

	"github.com/theirongolddev/tokenwise/internal/detect"
	"github.com/theirongolddev/tokenwise/internal/engine"
	"github.com/theirongolddev/tokenwise/internal/fingerprint"
	"github.com/theirongolddev/tokenwise/internal/session"
	"github.com/theirongolddev/tokenwise/internal/source"
)

func testFile(path, content string) source.File {
	return source.File{Path: path, Content: []byte(content), Fingerprint: fingerprint.Compute(path, []byte(content), time.Unix(0, 0))}
}

func TestContextRows_UncachedListsEachFileOnce(t *testing.T) {
	files := []source.File{testFile("a.go", "a"), testFile("b.go", "b")}
	plan := detect.New(nil).Partition(nil, files)
	rows := contextRows(engine.Resolution{Uncached: true, Files: files, Payload: plan.Payload, Plan: plan})
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want 2", rows)
	}
	for _, r := range rows {
		if r[0] != "send" {
			t.Fatalf("state = %q, want send", r[0])
		}
	}
}

func TestContextRows_Alias(t *testing.T) {
	d := detect.New(nil)
	sess, err := session.New("s1", "scope", "", time.Unix(0, 0), 10, session.OverflowEvict)
	if err != nil {
		t.Fatal(err)
	}
	d.Commit(sess, d.Partition(sess, []source.File{testFile("old.go", "body")}), time.Unix(0, 0))

	files := []source.File{testFile("old.go", "body"), testFile("new.go", "body")}
	plan := d.Partition(sess, files)
	rows := contextRows(engine.Resolution{Files: files, Plan: plan})
	if len(rows) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][0] != "alias" || rows[0][4] != "same content as old.go" {
		t.Fatalf("alias row = %v", rows[0])
	}
	if rows[1][0] != "cached" {
		t.Fatalf("cached row = %v", rows[1])
	}
}
