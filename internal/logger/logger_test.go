package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewWriter_LevelByEnv(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "prod").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line written outside dev: %s", buf.String())
	}

	NewWriter(&buf, "dev").Debug("shown", "part", "BRK-100")
	line := strings.TrimSpace(buf.String())
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", line, err)
	}
	if rec["msg"] != "shown" || rec["part"] != "BRK-100" || rec["level"] != "DEBUG" {
		t.Fatalf("unexpected record: %v", rec)
	}
}
