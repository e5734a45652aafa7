package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestConsoleHandlerFormatsRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewConsole(&buf, slog.LevelInfo).With("component", "publish")
	logger.WithGroup("s3").Info("uploading file", "key", "my-ext/main.js", "error", errors.New("boom now"))

	line := buf.String()
	if !strings.HasPrefix(line, "INFO ") {
		t.Fatalf("expected INFO prefix, got %q", line)
	}
	if strings.Contains(line, "s3.component") {
		t.Fatalf("attrs added before WithGroup must not be grouped: %q", line)
	}
	for _, want := range []string{
		"| uploading file",
		"s3.key=my-ext/main.js",
		" component=publish",
		`s3.error="boom now"`,
	} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestConsoleHandlerRespectsLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	logger := NewConsole(&buf, &level)

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("expected info record to be filtered, got %q", buf.String())
	}

	level.Set(slog.LevelDebug)
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("expected debug record after level change, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARNING", slog.LevelWarn, false},
		{"err", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range cases {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Mode{"": ModeConsole, "console": ModeConsole, "JSON": ModeJSON} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %v, %v, want %v", in, got, err, want)
		}
	}
	if _, err := ParseMode("xml"); err == nil {
		t.Fatal("ParseMode(xml) error = nil")
	}
}

func TestJSONModeWritesJSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	New(ModeJSON, &buf, slog.LevelInfo).Info("uploaded", "key", "ext/main.js")
	line := buf.String()
	if !strings.HasPrefix(line, "{") || !strings.Contains(line, `"key":"ext/main.js"`) {
		t.Fatalf("unexpected JSON record %q", line)
	}
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	t.Parallel()

	if IsTerminal(&bytes.Buffer{}) {
		t.Fatal("IsTerminal(buffer) = true, want false")
	}
}
