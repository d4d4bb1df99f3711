package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf))

	log.Info("auction ended", "asset", 3)

	line := buf.String()
	if !strings.Contains(line, "[INF] auction ended asset=3") {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf)).With("component", "market").WithGroup("call")

	log.Info("rejected", "fn", "mint")

	line := buf.String()
	if !strings.Contains(line, "component=market") {
		t.Errorf("missing With attr: %q", line)
	}

	if !strings.Contains(line, "call.fn=mint") {
		t.Errorf("missing grouped attr: %q", line)
	}
}

func TestHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf))

	SetLevel(slog.LevelWarn)
	defer SetLevel(slog.LevelInfo)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}

	if !strings.Contains(out, "[WRN] shown") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	if l, err := ParseLevel("debug"); err != nil || l != slog.LevelDebug {
		t.Errorf("debug: got %v, %v", l, err)
	}

	if l, err := ParseLevel(""); err != nil || l != slog.LevelInfo {
		t.Errorf("empty: got %v, %v", l, err)
	}

	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}
