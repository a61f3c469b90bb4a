package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestSetup(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	Setup("DEBUG", "json")
	if logger == nil {
		t.Fatal("Logger should not be nil")
	}
	if !logger.Enabled(t.Context(), slog.LevelDebug) {
		t.Error("expected DEBUG to be enabled")
	}
}

func TestGetConcurrentWithSetup(t *testing.T) {
	logger = nil
	once = *new(sync.Once)

	var wg sync.WaitGroup
	got := make([]*slog.Logger, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				Setup("INFO", "json")
			}
			got[i] = Get()
		}()
	}
	wg.Wait()

	for i, l := range got {
		if l == nil {
			t.Fatalf("Get() #%d returned nil", i)
		}
		if l != got[0] {
			t.Fatalf("Get() #%d returned a different logger", i)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"verbose": slog.LevelWarn,
		"":        slog.LevelWarn,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, slog.LevelInfo, "", true).Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("expected text output on a terminal, got %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, slog.LevelInfo, "json", true).Info("hello")
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("expected JSON output when forced: %v", err)
	}

	buf.Reset()
	newLogger(&buf, slog.LevelInfo, "", false).Info("hello")
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("expected JSON output off a terminal: %v", err)
	}

	buf.Reset()
	newLogger(&buf, slog.LevelWarn, "json", false).Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("INFO should be filtered at WARN, got %q", buf.String())
	}
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger = slog.New(slog.NewJSONHandler(&buf, nil))

	l := WithLaunch(WithRequest(WithComponent("dispatch"), "BOOTSTRAP", 42), "abc-123")
	l.Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("Failed to decode JSON: %v", err)
	}

	if out["component"] != "dispatch" {
		t.Errorf("Expected component 'dispatch', got %v", out["component"])
	}
	if out["request_type"] != "BOOTSTRAP" {
		t.Errorf("Expected request_type 'BOOTSTRAP', got %v", out["request_type"])
	}
	if out["request_id"] != float64(42) {
		t.Errorf("Expected request_id 42, got %v", out["request_id"])
	}
	if out["launch_id"] != "abc-123" {
		t.Errorf("Expected launch_id 'abc-123', got %v", out["launch_id"])
	}
	if out["msg"] != "hello" {
		t.Errorf("Expected msg 'hello', got %v", out["msg"])
	}
}
