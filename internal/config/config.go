// Package config loads the kernel's boot configuration: terminal count, default RTC rate, PIT
// frequency, and the headless-mode toggle, as a small YAML document an operator can tune without
// recompiling -- the tunable surface the teacher instead wired as hard-coded OptionFn defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Boot is the top-level boot configuration document.
type Boot struct {
	Terminals      int    `yaml:"terminals"`
	DefaultRTCRate uint32 `yaml:"default_rtc_rate"`
	PITFrequency   int    `yaml:"pit_frequency"`
	Headless       bool   `yaml:"headless"`
	FSImage        string `yaml:"fsimage"`
	RootShell      string `yaml:"root_shell"`
}

// Default returns the boot configuration used when no file is given.
func Default() Boot {
	return Boot{
		Terminals:      3,
		DefaultRTCRate: 2,
		PITFrequency:   50,
		Headless:       false,
		FSImage:        "fsimage.bin",
		RootShell:      "shell",
	}
}

// Load reads and parses a YAML boot configuration from path, filling in defaults for any field
// the document leaves out.
func Load(path string) (Boot, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Boot{}, fmt.Errorf("config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Boot{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Boot{}, err
	}

	return cfg, nil
}

// Validate rejects a configuration with an unusable terminal count or RTC rate.
func (b Boot) Validate() error {
	if b.Terminals <= 0 || b.Terminals > 3 {
		return fmt.Errorf("config: terminals must be in [1,3], got %d", b.Terminals)
	}

	if b.DefaultRTCRate == 0 || b.DefaultRTCRate&(b.DefaultRTCRate-1) != 0 {
		return fmt.Errorf("config: default_rtc_rate must be a power of two, got %d", b.DefaultRTCRate)
	}

	if b.PITFrequency <= 0 {
		return fmt.Errorf("config: pit_frequency must be positive, got %d", b.PITFrequency)
	}

	return nil
}
