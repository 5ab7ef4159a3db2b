package obs

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestLogWritesJSONLine(t *testing.T) {
	logger := Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	defer logger.SetOutput(original)

	Log("info", "sweep_complete", Fields{"closed": 2, "level": "ignored"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["msg"] != "sweep_complete" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["closed"] != float64(2) {
		t.Fatalf("missing field: %v", entry)
	}
	if _, ok := entry["ts"].(string); !ok {
		t.Fatalf("missing ts: %v", entry)
	}
}
