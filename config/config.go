package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"settlenet/crypto"

	"github.com/BurntSushi/toml"
)

type RateLimit struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

type VenueConfig struct {
	URL string `toml:"URL"`
}

type LogConfig struct {
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

type Config struct {
	ListenAddress          string               `toml:"ListenAddress"`
	Environment            string               `toml:"Environment"`
	DataDir                string               `toml:"DataDir"`
	AuditDB                string               `toml:"AuditDB"`
	Operator               string               `toml:"Operator"`
	Owner                  string               `toml:"Owner"`
	CancelDelaySeconds     int64                `toml:"CancelDelaySeconds"`
	SwapCancelDelaySeconds int64                `toml:"SwapCancelDelaySeconds"`
	LogRequests            bool                 `toml:"LogRequests"`
	Log                    LogConfig              `toml:"Log"`
	RateLimits             map[string]RateLimit   `toml:"RateLimits"`
	Venues                 map[string]VenueConfig `toml:"Venues"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyFallbacks(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		ListenAddress:          ":8080",
		Environment:            "local",
		DataDir:                "./settle-data",
		AuditDB:                "",
		CancelDelaySeconds:     3600,
		SwapCancelDelaySeconds: 3600,
		LogRequests:            true,
		RateLimits: map[string]RateLimit{
			"settle": {RequestsPerMinute: 600, Burst: 20},
			"query":  {RequestsPerMinute: 6000, Burst: 100},
		},
	}
}

func applyFallbacks(cfg *Config) {
	base := defaults()
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = base.ListenAddress
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = base.DataDir
	}
	if cfg.CancelDelaySeconds <= 0 {
		cfg.CancelDelaySeconds = base.CancelDelaySeconds
	}
	if cfg.SwapCancelDelaySeconds <= 0 {
		cfg.SwapCancelDelaySeconds = base.SwapCancelDelaySeconds
	}
	if cfg.RateLimits == nil {
		cfg.RateLimits = base.RateLimits
	}
	if strings.TrimSpace(cfg.AuditDB) == "" {
		cfg.AuditDB = filepath.Join(cfg.DataDir, "audit.db")
	}
}

// Validate checks that the configured accounts decode.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Operator) == "" {
		return fmt.Errorf("config: Operator account required")
	}
	if _, err := crypto.DecodeAddress(c.Operator); err != nil {
		return fmt.Errorf("config: invalid Operator: %w", err)
	}
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config: Owner account required")
	}
	if _, err := crypto.DecodeAddress(c.Owner); err != nil {
		return fmt.Errorf("config: invalid Owner: %w", err)
	}
	for name, venue := range c.Venues {
		if strings.TrimSpace(venue.URL) == "" {
			return fmt.Errorf("config: venue %q requires a URL", name)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file. Fresh
// operator and owner keys are generated so a local deployment starts usable.
func createDefault(path string) (*Config, error) {
	operatorKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	ownerKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := defaults()
	cfg.Operator = operatorKey.PubKey().Address().String()
	cfg.Owner = ownerKey.PubKey().Address().String()
	applyFallbacks(cfg)
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
