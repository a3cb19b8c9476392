package config

import (
	"fmt"
	"os"
	"time"

	"github.com/nlindqvist/psarank/internal/source"
	"github.com/nlindqvist/psarank/internal/transport"
	"github.com/pelletier/go-toml/v2"
)

// DefaultConfigFile is picked up from the working directory when no
// explicit path is given.
const DefaultConfigFile = "psarank.toml"

// Load reads and parses the configuration file. An empty path falls back
// to psarank.toml in the working directory if present, and to built-in
// defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.Fetch.Gender == "" {
		cfg.Fetch.Gender = GenderBoth
	}
	if cfg.Fetch.PageSize == 0 {
		cfg.Fetch.PageSize = DefaultPageSize
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = source.DefaultAPIBaseURL
	}
	if cfg.API.TimeoutSeconds == 0 {
		cfg.API.TimeoutSeconds = int(source.DefaultAPITimeout / time.Second)
	}
	if cfg.HTML.BaseURL == "" {
		cfg.HTML.BaseURL = source.DefaultHTMLBaseURL
	}
	if cfg.HTML.TimeoutSeconds == 0 {
		cfg.HTML.TimeoutSeconds = int(source.DefaultHTMLTimeout / time.Second)
	}

	// In TOML an absent max_retries reads as 0, so 0 means "use the default"
	if cfg.Transport.MaxRetries == 0 {
		cfg.Transport.MaxRetries = transport.DefaultMaxRetries
	}
	if cfg.Transport.RetryDelaySeconds == 0 {
		cfg.Transport.RetryDelaySeconds = int(transport.DefaultBaseRetryDelay / time.Second)
	}
	if cfg.Transport.RequestsPerMinute == 0 {
		cfg.Transport.RequestsPerMinute = transport.DefaultRequestsPerMinute
	}

	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
}
