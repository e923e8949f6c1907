// Package config holds aimon configuration and the model price table.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

// Config holds all aimon configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Paths      PathsConfig      `toml:"paths"`
	Reaper     ReaperConfig     `toml:"reaper"`
	Appearance AppearanceConfig `toml:"appearance"`
	Pricing    PricingOverrides `toml:"pricing"`
}

// ServerConfig holds the HTTP listen settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// PathsConfig holds filesystem locations.
type PathsConfig struct {
	DBPath         string `toml:"db_path,omitempty"`
	TranscriptsDir string `toml:"transcripts_dir,omitempty"`
}

// ReaperConfig holds stale-session detection settings.
type ReaperConfig struct {
	StaleTimeoutMinutes int `toml:"stale_timeout_minutes"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// PricingOverrides allows user-defined pricing for specific model tiers.
type PricingOverrides struct {
	Overrides map[string]TierPricingOverride `toml:"overrides,omitempty"`
}

// TierPricingOverride holds per-tier pricing overrides.
type TierPricingOverride struct {
	InputPerMTok  *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok *float64 `toml:"output_per_mtok,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 6820,
		},
		Paths: PathsConfig{
			DBPath:         filepath.Join(DataDir(), "aimon.db"),
			TranscriptsDir: filepath.Join(home, ".claude", "projects"),
		},
		Reaper: ReaperConfig{
			StaleTimeoutMinutes: 5,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aimon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "aimon")
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "aimon")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "aimon")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
// AIMON_* environment variables override file values for the runtime
// knobs.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("AIMON_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("AIMON_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AIMON_DB_PATH"); v != "" {
		cfg.Paths.DBPath = v
	}
	if v := os.Getenv("AIMON_TRANSCRIPTS_DIR"); v != "" {
		cfg.Paths.TranscriptsDir = v
	}
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
