package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/quill/internal/config"
)

func TestNew_Level(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  logrus.Level
	}{
		{"debug", "debug", logrus.DebugLevel},
		{"warn", "warn", logrus.WarnLevel},
		{"unknown falls back", "chatty", logrus.InfoLevel},
		{"empty falls back", "", logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.LogLevel = tt.level
			logger := New(cfg, &bytes.Buffer{})
			if logger.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	logger := New(cfg, &buf)
	logger.WithField("doc_id", "abc").Info("saved")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if entry["doc_id"] != "abc" {
		t.Errorf("doc_id = %v, want abc", entry["doc_id"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(nil, &buf)
	logger.Warn("store unavailable")
	if !strings.Contains(buf.String(), "store unavailable") {
		t.Errorf("output = %q", buf.String())
	}
}
