package logging

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theirongolddev/tokenwise/internal/model"
)

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Options{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	l.Debug("hidden")
	l.Info("shown", zap.String("k", "v"))
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %s", out)
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"k":"v"`) {
		t.Fatalf("json output = %s", out)
	}
}

func TestNew_RejectsBadLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("New accepted level \"loud\"")
	}
}

func TestWarnings(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	Warnings(zap.New(core), []model.Warning{
		{Kind: model.WarnContextRead, Message: "cannot read", Path: "a.go"},
		{Kind: model.WarnCapacity, Message: "over cap"},
	})
	if logs.Len() != 2 {
		t.Fatalf("logged %d entries, want 2", logs.Len())
	}
	first := logs.All()[0]
	if first.ContextMap()["path"] != "a.go" || first.ContextMap()["kind"] != "context_read" {
		t.Fatalf("fields = %v", first.ContextMap())
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}
