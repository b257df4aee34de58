package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog/log"
)

func TestInitToLevels(t *testing.T) {
	saved := log.Logger
	t.Cleanup(func() { log.Logger = saved })

	var buf bytes.Buffer
	InitTo(&buf, Config{})
	log.Debug().Msg("hidden")
	log.Info().Str("capability", "weather").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the info line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["message"] != "shown" || entry["capability"] != "weather" || entry["caller"] == nil {
		t.Errorf("unexpected entry %v", entry)
	}

	buf.Reset()
	InitTo(&buf, Config{Debug: true, PrettyFormat: true})
	log.Debug().Msg("visible")
	if out := buf.String(); !strings.Contains(out, "visible") || strings.HasPrefix(out, "{") {
		t.Errorf("expected console-formatted debug line, got %q", out)
	}
}
