package config

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

// GatewayConfig controls the text-generation gateway.
type GatewayConfig struct {
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	MaxConcurrent     int     `yaml:"max_concurrent"`
	MaxToolIterations int     `yaml:"max_tool_iterations"`
	CallTimeout       string  `yaml:"call_timeout"`
	AnalyzeTimeout    string  `yaml:"analyze_timeout"`
	CalendarTimeout   string  `yaml:"calendar_timeout"`
}

type Config struct {
	Username        string        `yaml:"username"`
	PortfolioPath   string        `yaml:"portfolio_path"`
	CacheExpiration string        `yaml:"cache_expiration"`
	HeadlinesFeed   string        `yaml:"headlines_feed,omitempty"`
	Gateway         GatewayConfig `yaml:"gateway"`
}

// OpenAIKey returns the API key from the environment (.env is loaded by the CLI).
func (c *Config) OpenAIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// FinnhubKey returns the optional Finnhub API key; empty disables the quote tool.
func (c *Config) FinnhubKey() string {
	return os.Getenv("FINNHUB_API_KEY")
}

// ExpirationWindow returns the cache expiration window, defaulting to 24h.
func (c *Config) ExpirationWindow() time.Duration {
	return parseDuration(c.CacheExpiration, 24*time.Hour)
}

func (c *Config) CallTimeout() time.Duration {
	return parseDuration(c.Gateway.CallTimeout, 180*time.Second)
}

func (c *Config) AnalyzeTimeout() time.Duration {
	return parseDuration(c.Gateway.AnalyzeTimeout, 120*time.Second)
}

func (c *Config) CalendarTimeout() time.Duration {
	return parseDuration(c.Gateway.CalendarTimeout, 90*time.Second)
}

// MaxConcurrent returns the gateway concurrency cap, defaulting to 2.
func (c *Config) MaxConcurrent() int {
	if c.Gateway.MaxConcurrent <= 0 {
		return 2
	}
	return c.Gateway.MaxConcurrent
}

// MaxToolIterations returns the tool-call loop bound, defaulting to 3.
func (c *Config) MaxToolIterations() int {
	if c.Gateway.MaxToolIterations <= 0 {
		return 3
	}
	return c.Gateway.MaxToolIterations
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	// Support "Nd" day syntax
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, "marketcal", "config.yaml")
}

func CachePath() string {
	return filepath.Join(xdg.CacheHome, "marketcal", "cache.db")
}

func ResultsPath() string {
	return filepath.Join(xdg.DataHome, "marketcal", "results.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Write defaults to config path on first run
			if err := writeDefaults(path); err != nil {
				// Non-fatal: just use embedded defaults
				return defaults, nil
			}
			return defaults, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	if cfg.Username == "" {
		return fmt.Errorf("username is required")
	}
	if cfg.CacheExpiration != "" {
		if d := parseDuration(cfg.CacheExpiration, 0); d <= 0 {
			return fmt.Errorf("cache_expiration: invalid duration %q", cfg.CacheExpiration)
		}
	}
	if cfg.Gateway.MaxConcurrent < 0 {
		return fmt.Errorf("gateway.max_concurrent must not be negative, got %d", cfg.Gateway.MaxConcurrent)
	}
	if cfg.Gateway.MaxToolIterations < 0 {
		return fmt.Errorf("gateway.max_tool_iterations must not be negative, got %d", cfg.Gateway.MaxToolIterations)
	}
	for _, field := range []struct {
		name, value string
	}{
		{"gateway.call_timeout", cfg.Gateway.CallTimeout},
		{"gateway.analyze_timeout", cfg.Gateway.AnalyzeTimeout},
		{"gateway.calendar_timeout", cfg.Gateway.CalendarTimeout},
	} {
		if field.value == "" {
			continue
		}
		if d := parseDuration(field.value, 0); d <= 0 {
			return fmt.Errorf("%s: invalid duration %q", field.name, field.value)
		}
	}
	return nil
}
