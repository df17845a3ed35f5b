package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLogRequestFillsEnvelope(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	LogRequest(map[string]any{"msg": "snapshot_reload"})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "snapshot_reload" {
		t.Fatalf("msg = %v", entry["msg"])
	}
	if entry["ts"] == nil || entry["ts"] == "" {
		t.Fatalf("ts not filled: %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("level = %v, want info", entry["level"])
	}
}

func TestLogRequestKeepsCallerFields(t *testing.T) {
	l := Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	LogRequest(map[string]any{"level": "warn", "msg": "slow_query", "duration_ms": 950})

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("caller level overwritten: %v", entry["level"])
	}
	if entry["duration_ms"] != float64(950) {
		t.Fatalf("duration_ms = %v", entry["duration_ms"])
	}
}
