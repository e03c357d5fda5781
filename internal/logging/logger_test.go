package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("debug message")
	logger.Info("info message")
	if buf.Len() != 0 {
		t.Errorf("expected debug/info to be filtered at warn level, got: %s", buf.String())
	}

	logger.Warn("warn message")
	logger.Error("error message")
	output := buf.String()
	if !strings.Contains(output, "[WARN] warn message") {
		t.Errorf("expected warn message in output, got: %s", output)
	}
	if !strings.Contains(output, "[ERROR] error message") {
		t.Errorf("expected error message in output, got: %s", output)
	}
}

func TestKeyValueFormatting(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Info("event complete", "type", "write_buffer", "status", 0)

	output := buf.String()
	if !strings.Contains(output, "event complete type=write_buffer status=0") {
		t.Errorf("expected message followed by pairs, got: %s", output)
	}
}

func TestOddArgsRenderAsMissing(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Warn("queue depth", "depth")
	if !strings.Contains(buf.String(), "depth=!MISSING") {
		t.Errorf("a trailing key must render as missing, not vanish: %s", buf.String())
	}
}

func TestWithBindsPairsOnEveryLine(t *testing.T) {
	var buf bytes.Buffer
	root := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	worker := root.With("worker", 3)

	worker.Debug("claimed group", "group", 7)
	if !strings.Contains(buf.String(), "claimed group worker=3 group=7") {
		t.Errorf("bound pairs must precede call pairs: %s", buf.String())
	}

	buf.Reset()
	nested := worker.With("cpu", 1)
	nested.Debug("pinned")
	if !strings.Contains(buf.String(), "pinned worker=3 cpu=1") {
		t.Errorf("With must accumulate across derivations: %s", buf.String())
	}

	buf.Reset()
	root.Debug("scan done")
	if strings.Contains(buf.String(), "worker=") {
		t.Errorf("derived pairs must not leak onto the root logger: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"WARN":  LevelWarn,
		"Error": LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", name, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}

	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("ParseLevel must reject unknown level names")
	}
}

func TestDefaultLogger(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelInfo, Output: &buf}))

	Info("from the global helpers")
	if !strings.Contains(buf.String(), "from the global helpers") {
		t.Errorf("global Info did not route to the default logger: %s", buf.String())
	}

	Debug("should be filtered")
	if strings.Contains(buf.String(), "should be filtered") {
		t.Error("debug message leaked through info level")
	}
}
