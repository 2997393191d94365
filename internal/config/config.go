// Package config loads calmux settings.
//
// Settings come from a YAML file (by default
// $XDG_CONFIG_HOME/calmux/config.yaml), then from environment variables,
// which may themselves be loaded from a .env file. Command line flags are
// applied on top by the cmd package.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/teemow/calmux/internal/fetch"
	"github.com/teemow/calmux/internal/notify"
	"github.com/teemow/calmux/internal/similarity"
)

// AppName is used for the XDG config and data directories.
const AppName = "calmux"

// Config is the complete calmux configuration.
type Config struct {
	// DefaultAccount is used when a request names no account.
	DefaultAccount string   `yaml:"default_account"`
	Accounts       []string `yaml:"accounts"`

	Google    GoogleConfig    `yaml:"google"`
	Detection DetectionConfig `yaml:"detection"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Registry  RegistryConfig  `yaml:"registry"`
	Notify    NotifyConfig    `yaml:"notify"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GoogleConfig holds the OAuth client used for every account.
type GoogleConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	// TokenDir overrides the directory holding per-account tokens.
	TokenDir string `yaml:"token_dir"`
}

// DetectionConfig tunes duplicate detection.
type DetectionConfig struct {
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`
	BlockingThreshold  float64 `yaml:"blocking_threshold"`
}

// FetchConfig tunes multi-calendar listings.
type FetchConfig struct {
	MaxConcurrency int `yaml:"max_concurrency"`
	BatchSize      int `yaml:"batch_size"`
}

// RegistryConfig controls the calendar registry cache.
type RegistryConfig struct {
	// ResetSchedule is a cron expression; the cache is cleared on every
	// tick. Empty disables scheduled resets.
	ResetSchedule string `yaml:"reset_schedule"`
}

// NotifyConfig enables the NATS change feed.
type NotifyConfig struct {
	Enabled bool          `yaml:"enabled"`
	NATS    notify.Config `yaml:"nats"`
}

// LoggingConfig selects the log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultPath returns the default location of the config file.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// DataDir returns the directory calmux keeps its state in.
func DataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DefaultAccount: "default",
		Detection: DetectionConfig{
			DuplicateThreshold: similarity.DefaultDuplicateThreshold,
			BlockingThreshold:  similarity.DefaultBlockingThreshold,
		},
		Fetch: FetchConfig{
			MaxConcurrency: fetch.DefaultMaxConcurrency,
			BatchSize:      50,
		},
		Notify:  NotifyConfig{NATS: notify.DefaultConfig()},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadEnv loads .env files into the environment without overriding
// variables that are already set. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the config file at path and applies environment overrides.
// An empty path reads DefaultPath, which may be missing.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("CALMUX_DEFAULT_ACCOUNT"); v != "" {
		c.DefaultAccount = v
	}
	if v := getenv("CALMUX_ACCOUNTS"); v != "" {
		c.Accounts = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				c.Accounts = append(c.Accounts, a)
			}
		}
	}
	if v := getenv("GOOGLE_CLIENT_ID"); v != "" {
		c.Google.ClientID = v
	}
	if v := getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		c.Google.ClientSecret = v
	}
	if v := getenv("CALMUX_TOKEN_DIR"); v != "" {
		c.Google.TokenDir = v
	}
	if v := getenv("CALMUX_REGISTRY_RESET_SCHEDULE"); v != "" {
		c.Registry.ResetSchedule = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.Notify.Enabled = true
		c.Notify.NATS.URL = v
	}
	if v := getenv("NATS_SUBJECT"); v != "" {
		c.Notify.NATS.Subject = v
	}
	if v := getenv("CALMUX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("CALMUX_DUPLICATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detection.DuplicateThreshold = f
		}
	}
}

// Validate checks the configuration and fills in defaults for unset values.
func (c *Config) Validate() error {
	d := Default()
	if c.DefaultAccount == "" {
		c.DefaultAccount = d.DefaultAccount
	}
	for i, a := range c.Accounts {
		if !validAccount(a) {
			return fmt.Errorf("accounts[%d]: invalid account name %q", i, a)
		}
	}
	if !validAccount(c.DefaultAccount) {
		return fmt.Errorf("invalid default account name %q", c.DefaultAccount)
	}

	if c.Detection.DuplicateThreshold == 0 {
		c.Detection.DuplicateThreshold = d.Detection.DuplicateThreshold
	}
	if c.Detection.BlockingThreshold == 0 {
		c.Detection.BlockingThreshold = d.Detection.BlockingThreshold
	}
	if c.Detection.DuplicateThreshold < 0 || c.Detection.DuplicateThreshold > 1 {
		return fmt.Errorf("detection.duplicate_threshold must be between 0 and 1")
	}
	if c.Detection.BlockingThreshold < c.Detection.DuplicateThreshold || c.Detection.BlockingThreshold > 1 {
		return fmt.Errorf("detection.blocking_threshold must be between duplicate_threshold and 1")
	}

	if c.Fetch.MaxConcurrency <= 0 {
		c.Fetch.MaxConcurrency = d.Fetch.MaxConcurrency
	}
	if c.Fetch.BatchSize <= 0 {
		c.Fetch.BatchSize = d.Fetch.BatchSize
	}
	if c.Fetch.BatchSize > 1000 {
		return fmt.Errorf("fetch.batch_size must not exceed 1000")
	}

	if c.Registry.ResetSchedule != "" {
		if _, err := cron.ParseStandard(c.Registry.ResetSchedule); err != nil {
			return fmt.Errorf("registry.reset_schedule: %w", err)
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "":
		c.Logging.Format = d.Logging.Format
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}
	return nil
}

// SlogLevel parses Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q: %w", l.Level, err)
	}
	return level, nil
}

// AllAccounts returns the configured accounts with the default one first.
func (c *Config) AllAccounts() []string {
	out := []string{c.DefaultAccount}
	seen := map[string]bool{c.DefaultAccount: true}
	for _, a := range c.Accounts {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func validAccount(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
