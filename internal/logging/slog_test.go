package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_NoColorOutputsPlainText(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.UseColor = false
	opts.DisableTimestamp = true
	opts.ShowSource = false

	log := slog.New(NewPrettyHandler(&buf, &opts))
	log.Info("hello world", "peer", "1.2.3.4:6881")

	out := buf.String()
	if !strings.Contains(out, "hello world") {
		t.Fatalf("expected message in output, got %q", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Fatalf("expected level in output, got %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("expected no ANSI escapes with UseColor=false, got %q", out)
	}
}

func TestPrettyHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	opts := DefaultOptions()
	opts.UseColor = false
	opts.DisableTimestamp = true
	opts.ShowSource = false

	log := slog.New(NewPrettyHandler(&buf, &opts)).With("component", "channel")
	log.Warn("idle peer")

	if !strings.Contains(buf.String(), "component") {
		t.Fatalf("expected attached attribute in output, got %q", buf.String())
	}
}
