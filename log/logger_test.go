package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	specs := map[string]Level{
		"debug":   Debug,
		"INFO":    Info,
		"notice":  Notice,
		"warn":    Warning,
		"warning": Warning,
		"error":   Error,
	}

	for name, expLevel := range specs {
		level, err := ParseLevel(name)
		if err != nil {
			t.Fatalf("[%s] unexpected error: %v", name, err)
		}
		if level != expLevel {
			t.Fatalf("[%s] expected level %d; got %d", name, expLevel, level)
		}
	}

	if _, err := ParseLevel("chatty"); err == nil {
		t.Fatal("expected to get an error for an unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetSink(&buf)
	defer SetSink(nopWriter{})

	SetLevel(Warning)
	logger := New("test")
	logger.Info("hidden")
	logger.Warning("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info message to be filtered; got %q", out)
	}
	if !strings.Contains(out, "visible") || !strings.Contains(out, "[test]") {
		t.Fatalf("expected warning message tagged with module name; got %q", out)
	}

	buf.Reset()
	SetModuleLevel("test", Debug)
	logger.Debug("module debug")
	if !strings.Contains(buf.String(), "module debug") {
		t.Fatalf("expected module level override to enable debug output; got %q", buf.String())
	}
	SetLevel(Notice)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
