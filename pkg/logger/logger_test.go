package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "info", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: " INFO ", want: slog.LevelInfo},
		{in: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLevel(%q) accepted an unknown level", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevelFiltersRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelWarn, false)

	log.Info("too quiet to pass")
	log.Warn("loud enough")

	out := buf.String()
	if strings.Contains(out, "too quiet to pass") {
		t.Error("info record passed a warn-level logger")
	}
	if !strings.Contains(out, "loud enough") {
		t.Error("warn record missing")
	}
}

func TestJSONOutputIsValidJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo, true)

	log.Info("structured", "node_id", "abc123")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if record["msg"] != "structured" {
		t.Errorf("msg = %v, want structured", record["msg"])
	}
	if record["node_id"] != "abc123" {
		t.Errorf("node_id = %v, want abc123", record["node_id"])
	}
}

func TestWithComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo, true)

	log.WithComponent("prober").Info("probing")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["component"] != "prober" {
		t.Errorf("component = %v, want prober", record["component"])
	}
}

func TestWithContextExtractsKnownFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, slog.LevelInfo, true)

	ctx := ContextWithCycleID(context.Background(), "cycle-7")
	ctx = ContextWithNodeID(ctx, "node-9")

	log.WithContext(ctx).Info("cycling")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["cycle_id"] != "cycle-7" {
		t.Errorf("cycle_id = %v, want cycle-7", record["cycle_id"])
	}
	if record["node_id"] != "node-9" {
		t.Errorf("node_id = %v, want node-9", record["node_id"])
	}
}

func TestContextRoundTrip(t *testing.T) {
	ctx := ContextWithCycleID(context.Background(), "cycle-1")
	if got := CycleIDFromContext(ctx); got != "cycle-1" {
		t.Errorf("CycleIDFromContext() = %q, want cycle-1", got)
	}
	if got := CycleIDFromContext(context.Background()); got != "" {
		t.Errorf("CycleIDFromContext() on empty context = %q, want empty", got)
	}

	ctx = ContextWithNodeID(context.Background(), "node-1")
	if got := NodeIDFromContext(ctx); got != "node-1" {
		t.Errorf("NodeIDFromContext() = %q, want node-1", got)
	}
}

func TestOpenMirrorsIntoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "client.log")

	log, closeLog, err := Open(slog.LevelInfo, false, path)
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}

	log.Info("written to the file too")
	if err := closeLog(); err != nil {
		t.Fatalf("close log file: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "written to the file too") {
		t.Errorf("log file %q does not contain the record:\n%s", path, content)
	}
}

func TestOpenWithoutFileHasNoopCloser(t *testing.T) {
	log, closeLog, err := Open(slog.LevelInfo, false, "")
	if err != nil {
		t.Fatalf("Open(): %v", err)
	}
	if log == nil {
		t.Fatal("Open() returned a nil logger")
	}
	if err := closeLog(); err != nil {
		t.Errorf("close with no file = %v, want nil", err)
	}
}
