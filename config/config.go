package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	toml "github.com/pelletier/go-toml/v2"
)

// StorageBackend 选择自动保存槽位的实现。
type StorageBackend string

const (
	StorageSQLite StorageBackend = "sqlite"
	StorageFile   StorageBackend = "file"
	StorageMemory StorageBackend = "memory"
)

type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Autosave AutosaveConfig `toml:"autosave"`
	Layout   LayoutConfig   `toml:"layout"`
	Export   ExportConfig   `toml:"export"`
	Fonts    []FontConfig   `toml:"fonts"`
	Logging  LoggingConfig  `toml:"logging"`
}

type StorageConfig struct {
	Backend StorageBackend `toml:"backend"`
	Path    string         `toml:"path"`
	Key     string         `toml:"key"`
}

type AutosaveConfig struct {
	DelayMS int `toml:"delay_ms"`
}

type LayoutConfig struct {
	Gap           float64 `toml:"gap"`
	ViewportWidth float64 `toml:"viewport_width"`
}

type ExportConfig struct {
	Width  float64 `toml:"width"`
	Scale  float64 `toml:"scale"`
	Dir    string  `toml:"dir"`
	Assets string  `toml:"assets"` // 相对图片路径的根目录
}

// FontConfig 注册额外的字体族，例如带中文字形的字体。
type FontConfig struct {
	Family  string `toml:"family"`
	Regular string `toml:"regular"`
	Bold    string `toml:"bold"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

func Default(dbPath string) Config {
	return Config{
		Storage: StorageConfig{
			Backend: StorageSQLite,
			Path:    dbPath,
			Key:     "selfIntroGeneratorState",
		},
		Autosave: AutosaveConfig{DelayMS: 500},
		Layout: LayoutConfig{
			Gap:           15,
			ViewportWidth: 600,
		},
		Export: ExportConfig{
			Width:  600,
			Scale:  2,
			Dir:    ".",
			Assets: ".",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load 读取 TOML 配置并覆盖 defaults；文件不存在或为空时直接返回 defaults。
func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case StorageSQLite, StorageFile:
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for backend %q", c.Storage.Backend)
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage.backend: %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("storage.key is required")
	}
	if c.Autosave.DelayMS < 0 {
		return errors.New("autosave.delay_ms must be >= 0")
	}
	if c.Layout.Gap < 0 {
		return errors.New("layout.gap must be >= 0")
	}
	if c.Layout.ViewportWidth < 0 {
		return errors.New("layout.viewport_width must be >= 0")
	}
	if c.Export.Width <= 0 {
		return errors.New("export.width must be > 0")
	}
	if c.Export.Scale <= 0 || c.Export.Scale > 8 {
		return fmt.Errorf("export.scale must be in (0, 8], got %g", c.Export.Scale)
	}
	for i, f := range c.Fonts {
		if strings.TrimSpace(f.Family) == "" {
			return fmt.Errorf("fonts[%d].family is required", i)
		}
		if strings.TrimSpace(f.Regular) == "" {
			return fmt.Errorf("fonts[%d].regular is required", i)
		}
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	return nil
}

// AutosaveDelay 返回自动保存防抖时长。
func (c Config) AutosaveDelay() time.Duration {
	return time.Duration(c.Autosave.DelayMS) * time.Millisecond
}
