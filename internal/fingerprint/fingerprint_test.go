package fingerprint

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestCompute_Deterministic(t *testing.T) {
	a := Compute("a.go", []byte("package a\n"), t0)
	b := Compute("other.go", []byte("package a\n"), t0.Add(time.Hour))
	if a.Hash != b.Hash {
		t.Fatalf("same content hashed differently: %s vs %s", a.Hash, b.Hash)
	}
	if a.Size != 10 || a.Tokens != 3 {
		t.Fatalf("Size/Tokens = %d/%d, want 10/3", a.Size, a.Tokens)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[int64]int64{0: 0, 1: 1, 4: 1, 5: 2, 8: 2, 200_000: 50_000}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestPut_SameHashIsNoop(t *testing.T) {
	s := New()
	first, changed := s.Put("a.go", []byte("x"), t0)
	if !changed {
		t.Fatal("first Put reported unchanged")
	}
	again, changed := s.Put("a.go", []byte("x"), t0.Add(time.Minute))
	if changed {
		t.Fatal("second Put with same content reported a change")
	}
	if again != first {
		t.Fatalf("no-op Put returned %+v, want existing %+v", again, first)
	}
}

func TestPut_DuplicateContentStoredOnce(t *testing.T) {
	s := New()
	s.Put("a.go", []byte("shared"), t0)
	s.Put("b.go", []byte("shared"), t0)
	if s.Blobs() != 1 || s.Paths() != 2 {
		t.Fatalf("Blobs/Paths = %d/%d, want 1/2", s.Blobs(), s.Paths())
	}

	shared, _ := s.Get("b.go")
	s.Put("a.go", []byte("diverged"), t0)
	if s.Blobs() != 2 {
		t.Fatalf("Blobs after repoint = %d, want 2", s.Blobs())
	}
	b, _ := s.Get("b.go")
	if b.Hash != shared.Hash {
		t.Fatal("changing a.go affected b.go")
	}
	if got := s.PathsFor(shared.Hash); len(got) != 1 || got[0] != "b.go" {
		t.Fatalf("PathsFor(shared) = %v, want [b.go]", got)
	}
}

func TestRelease_DropsLastReference(t *testing.T) {
	s := New()
	fp, _ := s.Put("a.go", []byte("x"), t0)
	s.Put("b.go", []byte("x"), t0)
	s.Release("a.go")
	if s.Blobs() != 1 {
		t.Fatal("blob dropped while b.go still references it")
	}
	s.Release("b.go")
	if s.Blobs() != 0 || len(s.PathsFor(fp.Hash)) != 0 {
		t.Fatal("blob survived its last reference")
	}
	if s.Release("b.go") {
		t.Fatal("Release of unknown path returned true")
	}
}

func TestTouch(t *testing.T) {
	s := New()
	s.Put("a.go", []byte("x"), t0)
	later := t0.Add(time.Hour)
	if !s.Touch("a.go", later) {
		t.Fatal("Touch returned false for known path")
	}
	fp, _ := s.Get("a.go")
	if !fp.LastSeen.Equal(later) {
		t.Fatalf("LastSeen = %s, want %s", fp.LastSeen, later)
	}
	if s.Touch("b.go", later) {
		t.Fatal("Touch returned true for unknown path")
	}
}
