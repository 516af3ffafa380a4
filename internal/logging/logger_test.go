// Package logging tests for structured JSON logging.
package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"

	apperrors "github.com/kimhsiao/nutrilog/backend/internal/errors"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

// =====================================================
// Logger Creation and Initialization Tests
// =====================================================

// TestInit_idempotent verifies Init is idempotent.
func TestInit_idempotent(t *testing.T) {
	global = nil
	once = *new(sync.Once)

	var buf1 bytes.Buffer
	Init(&buf1, LevelInfo)
	first := Get()

	var buf2 bytes.Buffer
	Init(&buf2, LevelDebug)

	if Get() != first {
		t.Error("Second Init() should be ignored, different logger returned")
	}
	if first.out != &buf1 {
		t.Error("Second Init() should be ignored, output writer changed")
	}
}

// TestGet_default verifies default logger creation.
func TestGet_default(t *testing.T) {
	global = nil
	once = *new(sync.Once)

	logger := Get()
	if logger == nil {
		t.Fatal("Get() returned nil without Init()")
	}
	if logger.out != os.Stdout {
		t.Error("Get() should default to os.Stdout")
	}
	if logger.minLevel != LevelInfo {
		t.Errorf("minLevel = %v, want LevelInfo", logger.minLevel)
	}
}

// TestParseLevel verifies config string mapping.
func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{" error ", LevelError},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// =====================================================
// Output Tests
// =====================================================

// TestLogger_jsonFormat verifies field names and context flattening.
func TestLogger_jsonFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelDebug)

	logger.Info("entry added", map[string]interface{}{"entry_id": "abc", "calories": 320})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	line := lines[0]
	if line["message"] != "entry added" {
		t.Errorf("message = %v", line["message"])
	}
	if line["level"] != "info" {
		t.Errorf("level = %v, want info", line["level"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Error("timestamp field missing")
	}
	if line["entry_id"] != "abc" {
		t.Errorf("entry_id = %v", line["entry_id"])
	}
	if line["calories"] != float64(320) {
		t.Errorf("calories = %v", line["calories"])
	}
}

// TestLogger_filtering verifies messages below the minimum level are dropped.
func TestLogger_filtering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too", errors.New("boom"))

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[1]["error"] != "boom" {
		t.Errorf("error field = %v, want boom", lines[1]["error"])
	}
}

// TestLogger_ErrorWithCode verifies the code field and caller map isolation.
func TestLogger_ErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, LevelInfo)

	ctx := map[string]interface{}{"provider": "minio"}
	logger.ErrorWithCode("push failed", apperrors.New(apperrors.ErrTransport, "timeout"), ctx)

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0]["code"] != "TRANSPORT_ERROR" {
		t.Errorf("code = %v, want TRANSPORT_ERROR", lines[0]["code"])
	}
	if lines[0]["provider"] != "minio" {
		t.Errorf("provider = %v", lines[0]["provider"])
	}
	if _, mutated := ctx["code"]; mutated {
		t.Error("ErrorWithCode() mutated the caller's context map")
	}
}

// TestLogger_getContext_multiple verifies context merging.
func TestLogger_getContext_multiple(t *testing.T) {
	logger := New(&bytes.Buffer{}, LevelInfo)
	merged := logger.getContext(
		map[string]interface{}{"a": 1},
		map[string]interface{}{"b": 2, "a": 3},
	)
	if merged["a"] != 3 || merged["b"] != 2 {
		t.Errorf("merged = %v", merged)
	}
	if logger.getContext() != nil {
		t.Error("getContext() with no maps should be nil")
	}
}

// TestLogger_concurrentLogging verifies that concurrent writers produce whole lines.
func TestLogger_concurrentLogging(t *testing.T) {
	var buf safeBuffer
	logger := New(&buf, LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Info("tick", map[string]interface{}{"i": i})
		}(i)
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "\n"); got != 20 {
		t.Errorf("line count = %d, want 20", got)
	}
}

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
