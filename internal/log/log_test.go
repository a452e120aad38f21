package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_JSONAndText(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "info", true).Info("hello", "k", 1)
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("JSON output missing msg: %s", buf.String())
	}

	buf.Reset()
	New(&buf, "info", false).Info("hello", "k", 1)
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output missing msg: %s", buf.String())
	}
}

func TestNew_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn", false)
	l.Info("skipped")
	l.Warn("kept")

	if strings.Contains(buf.String(), "skipped") {
		t.Error("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn line should be written")
	}
}

func TestOr(t *testing.T) {
	d := Discard()
	if Or(d, "x") != d {
		t.Error("Or should return the given logger when non-nil")
	}
	if Or(nil, "x") == nil {
		t.Error("Or should fall back to a component logger")
	}
}
