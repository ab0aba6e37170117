package common

import (
	"strings"
	"testing"

	"github.com/lni/dragonboat/v4/logger"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"":        logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"error":   logger.ERROR,
	}
	for in, expected := range tests {
		got, err := ParseLogLevel(in)
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", in, err)
		}
		if got != expected {
			t.Errorf("Expected %v for %q, got %v", expected, in, got)
		}
	}

	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultEngineConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got %v", err)
	}

	broken := []func(c *EngineConfig){
		func(c *EngineConfig) { c.DBName = "" },
		func(c *EngineConfig) { c.Codec = "xml" },
		func(c *EngineConfig) { c.LMDBMapSize = -1 },
		func(c *EngineConfig) { c.LogLevel = "loud" },
	}
	for i, mutate := range broken {
		c := DefaultEngineConfig()
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("Expected case %d to be invalid", i)
		}
	}
}

func TestString(t *testing.T) {
	cfg := DefaultEngineConfig()
	cfg.DataDir = "/tmp/fkv"

	s := cfg.String()
	for _, want := range []string{"ENGINE", "auto", "/tmp/fkv", "DATABASE", "default"} {
		if !strings.Contains(s, want) {
			t.Errorf("Expected %q in config string, got:\n%s", want, s)
		}
	}
}

func TestCreateLogger(t *testing.T) {
	l := CreateLogger("test")
	l.SetLevel(logger.ERROR)

	fl, ok := l.(*fKVLogger)
	if !ok {
		t.Fatalf("Expected *fKVLogger, got %T", l)
	}
	if fl.level.Enabled(toZapLevel(logger.INFO)) {
		t.Error("Expected info to be disabled at error level")
	}
	if !fl.level.Enabled(toZapLevel(logger.ERROR)) {
		t.Error("Expected error to be enabled at error level")
	}
	l.Infof("suppressed %d", 1)
}
