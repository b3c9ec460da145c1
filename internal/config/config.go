package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/alexjbarnes/scout-sync/internal/errors"
	"github.com/alexjbarnes/scout-sync/internal/settings"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// allExtensions in ALLOWED_EXTENSIONS accepts any file.
const allExtensions = "*"

// Config holds all environment-based configuration for scout-sync.
type Config struct {
	// File to watch at startup. Optional; the control API can set it later.
	ScoutFile string `env:"SCOUT_FILE"`

	// Destination id. When set it overrides the persisted value.
	PantryID string `env:"PANTRY_ID"`

	// Payload encoding flag ("true"/"false"). When set it overrides the
	// persisted value.
	B64Encoding string `env:"B64_ENCODING"`

	// Basket endpoint template with {id} and {name} placeholders.
	URLTemplate string `env:"PANTRY_URL_TEMPLATE" envDefault:"https://getpantry.cloud/apiv1/pantry/{id}/basket/{name}"`

	// Prefix for the shareable live-app link built from the basket URL.
	LiveAppURL string `env:"LIVE_APP_URL" envDefault:"https://apps.untan.gl/live/?url="`

	// Settings database. Defaults to ~/.scout-sync/settings.db.
	SettingsDB string `env:"SETTINGS_DB"`

	// Control API and event stream listen address.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:"127.0.0.1:8095"`

	// Mount the MCP tool endpoint at /mcp on the control listener.
	EnableMCP bool `env:"ENABLE_MCP" envDefault:"true"`

	// Engine timing.
	Debounce     time.Duration `env:"DEBOUNCE" envDefault:"250ms"`
	TickInterval time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	Cooldown     time.Duration `env:"COOLDOWN" envDefault:"3s"`
	HTTPTimeout  time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`

	// File extensions the control API accepts, without dots. "*" allows all.
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envSeparator:"," envDefault:"dvw,vsm"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Optional log level override (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file may hold the destination id,
// which grants write access to the basket.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.ScoutFile != "" {
		abs, err := filepath.Abs(cfg.ScoutFile)
		if err != nil {
			return nil, fmt.Errorf("resolving scout file to absolute path: %w", err)
		}

		cfg.ScoutFile = abs
	}

	if cfg.SettingsDB == "" {
		path, err := settings.DefaultPath()
		if err != nil {
			return nil, err
		}

		cfg.SettingsDB = path
	}

	abs, err := filepath.Abs(cfg.SettingsDB)
	if err != nil {
		return nil, fmt.Errorf("resolving settings db to absolute path: %w", err)
	}

	cfg.SettingsDB = abs

	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.Contains(c.URLTemplate, "{id}") || !strings.Contains(c.URLTemplate, "{name}") {
		return fmt.Errorf("%w: PANTRY_URL_TEMPLATE must contain {id} and {name}", apperrors.ErrInvalidSetting)
	}

	durations := []struct {
		name string
		d    time.Duration
	}{
		{"DEBOUNCE", c.Debounce},
		{"TICK_INTERVAL", c.TickInterval},
		{"COOLDOWN", c.Cooldown},
		{"HTTP_TIMEOUT", c.HTTPTimeout},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", apperrors.ErrInvalidSetting, d.name)
		}
	}

	if c.B64Encoding != "" {
		if _, err := strconv.ParseBool(c.B64Encoding); err != nil {
			return fmt.Errorf("%w: B64_ENCODING must be true or false", apperrors.ErrInvalidSetting)
		}
	}

	if c.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("%w: LOG_LEVEL %q", apperrors.ErrInvalidSetting, c.LogLevel)
		}
	}

	return nil
}

// B64 returns the B64_ENCODING override and whether it was set.
func (c *Config) B64() (b64 bool, ok bool) {
	if c.B64Encoding == "" {
		return false, false
	}

	b64, err := strconv.ParseBool(c.B64Encoding)

	return b64, err == nil
}

// AllowsFile reports whether path has one of the allowed extensions.
// Extensions compare case-insensitively.
func (c *Config) AllowsFile(path string) bool {
	if len(c.AllowedExtensions) == 0 {
		return true
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	for _, allowed := range c.AllowedExtensions {
		allowed = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(allowed)), ".")
		if allowed == allExtensions || allowed == ext {
			return true
		}
	}

	return false
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
