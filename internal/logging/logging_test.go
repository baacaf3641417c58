package logging

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartupLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	NewStartupLogger("wildlife-web").
		CommitHash("abc123").
		Dir("output", "/tmp/out").
		Service("detector", "http://localhost:5005").
		Feature("tracing", false).
		Config("everyNFrame", "3").
		InitDuration(250 * time.Millisecond).
		Log()

	var doc map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	process := doc["process"].(map[string]interface{})
	if process["name"] != "wildlife-web" || process["commitHash"] != "abc123" {
		t.Errorf("unexpected process block %v", process)
	}
	if doc["dirs"].(map[string]interface{})["output"] != "/tmp/out" {
		t.Errorf("missing output dir in %v", doc["dirs"])
	}
	if doc["services"].(map[string]interface{})["detector"] != "http://localhost:5005" {
		t.Errorf("missing detector service in %v", doc["services"])
	}
	if doc["features"].(map[string]interface{})["tracing"] != false {
		t.Errorf("missing tracing feature in %v", doc["features"])
	}
	if doc["message"] != "Startup complete" {
		t.Errorf("message = %v", doc["message"])
	}
}
