package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	defaults := Default("/tmp/introcard.db")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"), defaults)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Path != defaults.Storage.Path || cfg.Export.Width != 600 || cfg.Export.Scale != 2 {
		t.Fatalf("unexpected config %#v", cfg)
	}
	if cfg.AutosaveDelay() != 500*time.Millisecond {
		t.Fatalf("default delay want 500ms, got %s", cfg.AutosaveDelay())
	}
	if err := defaults.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[storage]
backend = "file"
path = "state.json"

[autosave]
delay_ms = 250

[layout]
viewport_width = 480

[export]
scale = 3

[[fonts]]
family = "cjk"
regular = "/fonts/NotoSansSC-Regular.otf"

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := Load(path, Default("/tmp/introcard.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Backend != StorageFile || cfg.Storage.Path != "state.json" {
		t.Fatalf("storage override failed: %#v", cfg.Storage)
	}
	if cfg.Storage.Key != "selfIntroGeneratorState" {
		t.Fatalf("unset key must keep default, got %q", cfg.Storage.Key)
	}
	if cfg.AutosaveDelay() != 250*time.Millisecond || cfg.Layout.ViewportWidth != 480 || cfg.Export.Scale != 3 {
		t.Fatalf("override failed: %#v", cfg)
	}
	if cfg.Export.Width != 600 {
		t.Fatalf("unset export width must keep default")
	}
	if len(cfg.Fonts) != 1 || cfg.Fonts[0].Family != "cjk" {
		t.Fatalf("fonts not decoded: %#v", cfg.Fonts)
	}
}

func TestValidateRejectsInvalidValues(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":   func(c *Config) { c.Storage.Backend = "redis" },
		"path":      func(c *Config) { c.Storage.Path = " " },
		"key":       func(c *Config) { c.Storage.Key = "" },
		"delay":     func(c *Config) { c.Autosave.DelayMS = -1 },
		"width":     func(c *Config) { c.Export.Width = 0 },
		"scale":     func(c *Config) { c.Export.Scale = 20 },
		"font":      func(c *Config) { c.Fonts = []FontConfig{{Family: "x"}} },
		"log level": func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default("/tmp/introcard.db")
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	mem := Default("")
	mem.Storage.Backend = StorageMemory
	if err := mem.Validate(); err != nil {
		t.Fatalf("memory backend needs no path: %v", err)
	}
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[storage\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := Load(path, Default("/tmp/x.db"))
	if err == nil || !strings.Contains(err.Error(), "decode toml") {
		t.Fatalf("expected decode error, got %v", err)
	}
}
