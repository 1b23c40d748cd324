package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pcoslab/pcos/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.yaml")

	doc := "terminals: 1\ndefault_rtc_rate: 8\nroot_shell: hello\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Terminals != 1 {
		t.Fatalf("terminals = %d, want 1", cfg.Terminals)
	}

	if cfg.DefaultRTCRate != 8 {
		t.Fatalf("default rtc rate = %d, want 8", cfg.DefaultRTCRate)
	}

	if cfg.RootShell != "hello" {
		t.Fatalf("root shell = %q, want hello", cfg.RootShell)
	}

	// Fields left unset in the document keep their default value.
	if cfg.PITFrequency != 50 {
		t.Fatalf("pit frequency = %d, want default 50", cfg.PITFrequency)
	}
}

func TestValidateRejectsBadTerminalCount(t *testing.T) {
	cfg := config.Default()
	cfg.Terminals = 4

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for terminals=4")
	}
}

func TestValidateRejectsNonPowerOfTwoRTCRate(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultRTCRate = 3

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-power-of-two rtc rate")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
