package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestStructuredLogger(t *testing.T) {
	t.Run("TextFormat", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewStdLogger()
		l.SetLevel(LogLevelInfo)
		l.SetOutput(buf)
		l.SetFormat(LogFormatText)
		l.Info("hello %s", "world")

		output := buf.String()
		if !strings.Contains(output, "INFO") || !strings.Contains(output, "hello world") {
			t.Errorf("Unexpected text output: %s", output)
		}
	})

	t.Run("JSONFormat", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewStdLogger()
		l.SetLevel(LogLevelInfo)
		l.SetOutput(buf)
		l.SetFormat(LogFormatJSON)
		l.Info("hello %s", "world")

		var data map[string]any
		if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
			t.Fatalf("Failed to unmarshal JSON output: %v", err)
		}
		if data["level"] != "INFO" || data["msg"] != "hello world" {
			t.Errorf("Unexpected JSON output: %v", data)
		}
		if _, ok := data["time"]; !ok {
			t.Errorf("Missing time field in JSON output")
		}
	})

	t.Run("WithFields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewStdLogger()
		l.SetOutput(buf)
		l.SetFormat(LogFormatJSON)
		l.WithFields(map[string]any{"conn": "c-1"}).Info("acquired")

		var data map[string]any
		if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
			t.Fatalf("Failed to unmarshal JSON output: %v", err)
		}
		if data["conn"] != "c-1" || data["msg"] != "acquired" {
			t.Errorf("Unexpected JSON output with fields: %v", data)
		}
	})

	t.Run("SQLNeedsDebug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		l := NewStdLogger()
		l.SetOutput(buf)
		l.SetFormat(LogFormatJSON)
		l.SQL("SELECT 1", time.Millisecond)
		if buf.Len() != 0 {
			t.Fatalf("SQL logged at info level: %s", buf.String())
		}

		l.SetLevel(LogLevelDebug)
		l.SQL("SELECT * FROM Samples.Employee", 10*time.Millisecond, 1)

		var data map[string]any
		if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
			t.Fatalf("Failed to unmarshal JSON output: %v", err)
		}
		if data["level"] != "SQL" || data["sql"] != "SELECT * FROM Samples.Employee" {
			t.Errorf("Unexpected SQL JSON output: %v", data)
		}
		if data["duration"] == "" {
			t.Errorf("Missing duration in SQL JSON output")
		}
	})

	t.Run("LevelOutputOnly", func(t *testing.T) {
		errorBuf := &bytes.Buffer{}
		l := NewStdLogger()
		l.SetOutput(nil)
		l.SetLevelOutput(LogLevelError, errorBuf)

		l.Info("this is info")
		l.Error("this is error")

		out := errorBuf.String()
		if strings.Contains(out, "INFO") {
			t.Errorf("Error buffer should not contain INFO: %s", out)
		}
		if !strings.Contains(out, "ERROR") || !strings.Contains(out, "this is error") {
			t.Errorf("Error buffer missing ERROR: %s", out)
		}
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug": LogLevelDebug,
		"INFO":  LogLevelInfo,
		"warn":  LogLevelWarn,
		"error": LogLevelError,
		"off":   LogLevelSilent,
		"":      LogLevelInfo,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSlogLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := NewSlogLogger(slog.New(h)).WithFields(map[string]any{"pool": "main"})

	l.SQL("SELECT 1", time.Millisecond)
	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to unmarshal slog output: %v", err)
	}
	if data["sql"] != "SELECT 1" || data["pool"] != "main" {
		t.Errorf("Unexpected slog output: %v", data)
	}

	buf.Reset()
	l.SetLevel(LogLevelWarn)
	l.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level: %s", buf.String())
	}
}
