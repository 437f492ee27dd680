package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	if lvl, ok := parseLevel(" Warning "); !ok || lvl != zerolog.WarnLevel {
		t.Fatalf("warning got=%v ok=%v", lvl, ok)
	}
	if lvl, ok := parseLevel("off"); !ok || lvl != zerolog.Disabled {
		t.Fatalf("off got=%v ok=%v", lvl, ok)
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level should not parse")
	}
	if _, ok := parseLevel(""); ok {
		t.Fatalf("empty level should not parse")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogNoColor, "1")
	t.Setenv(EnvLogBypass, "garbage")
	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	if cfg.Level != zerolog.ErrorLevel {
		t.Fatalf("level got=%v", cfg.Level)
	}
	if cfg.Timestamp {
		t.Fatalf("timestamp should be disabled")
	}
	if !cfg.NoColor {
		t.Fatalf("nocolor should be enabled")
	}
	if cfg.Bypass {
		t.Fatalf("bypass should keep default on bad input")
	}
}

func TestApplyBypassWritesJSON(t *testing.T) {
	prevLogger := log.Logger
	prevLevel := zerolog.GlobalLevel()
	defer func() {
		log.Logger = prevLogger
		zerolog.SetGlobalLevel(prevLevel)
	}()

	var out bytes.Buffer
	Apply(Config{Level: zerolog.InfoLevel, Bypass: true, Out: &out})
	log.Info().Str("component", "tunnel").Msg("connected")
	line := out.String()
	if !strings.Contains(line, `"component":"tunnel"`) || !strings.Contains(line, `"message":"connected"`) {
		t.Fatalf("unexpected log line: %q", line)
	}
}
