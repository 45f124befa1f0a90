package infra

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
// Secrets can be overridden through environment variables after load.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Exchanges struct {
		Binance struct {
			WSURL     string   `yaml:"ws_url"`
			RestURL   string   `yaml:"rest_url"`
			APIKey    string   `yaml:"api_key"`
			SecretKey string   `yaml:"secret_key"`
			Symbols   []string `yaml:"symbols"`
		} `yaml:"binance"`
	} `yaml:"exchanges"`

	Feed struct {
		DedupWindow     int `yaml:"dedup_window"`     // trade ids remembered per subscription
		DeltaBufferCap  int `yaml:"delta_buffer_cap"` // pre-snapshot deltas held before forced resync
		ReadTimeoutSec  int `yaml:"read_timeout_sec"`
		PingIntervalSec int `yaml:"ping_interval_sec"`
	} `yaml:"feed"`

	Recorder struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"recorder"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Feed.DedupWindow <= 0 {
		c.Feed.DedupWindow = 40
	}
	if c.Feed.DeltaBufferCap <= 0 {
		c.Feed.DeltaBufferCap = 4096
	}
	if c.Feed.ReadTimeoutSec <= 0 {
		c.Feed.ReadTimeoutSec = 60
	}
	if c.Feed.PingIntervalSec <= 0 {
		c.Feed.PingIntervalSec = 30
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	b := &c.Exchanges.Binance
	if b.WSURL == "" || (!strings.HasPrefix(b.WSURL, "ws://") && !strings.HasPrefix(b.WSURL, "wss://")) {
		return fmt.Errorf("invalid Binance WS URL: %s", b.WSURL)
	}
	if b.RestURL == "" || (!strings.HasPrefix(b.RestURL, "http://") && !strings.HasPrefix(b.RestURL, "https://")) {
		return fmt.Errorf("invalid Binance REST URL: %s", b.RestURL)
	}
	if len(b.Symbols) == 0 {
		return fmt.Errorf("at least one Binance symbol is required")
	}
	if c.Recorder.Enabled && c.Recorder.Path == "" {
		return fmt.Errorf("recorder enabled but no path set")
	}
	return nil
}

// overrideWithEnv applies environment variables on top of the file values.
// Environment variables win, so secrets can stay out of the config file.
func overrideWithEnv(cfg *Config) {
	if cfg.Exchanges.Binance.SecretKey != "" {
		fmt.Println("⚠️  SECURITY WARNING: API secrets found in config file.")
		fmt.Println("   Recommendation: Use environment variables instead:")
		fmt.Println("   - UNIFEED_BINANCE_KEY, UNIFEED_BINANCE_SECRET")
	}

	if key := os.Getenv("UNIFEED_BINANCE_KEY"); key != "" {
		cfg.Exchanges.Binance.APIKey = key
	}
	if secret := os.Getenv("UNIFEED_BINANCE_SECRET"); secret != "" {
		cfg.Exchanges.Binance.SecretKey = secret
	}
}
