package config

import (
	"fmt"
	"time"

	"github.com/nlindqvist/psarank/pkg/models"
)

// Config represents the complete application configuration
type Config struct {
	Fetch     FetchConfig     `toml:"fetch"`
	API       APIConfig       `toml:"api"`
	HTML      HTMLConfig      `toml:"html"`
	Transport TransportConfig `toml:"transport"`
	Metrics   MetricsConfig   `toml:"metrics"`
}

// FetchConfig holds session-level settings
type FetchConfig struct {
	Gender   string `toml:"gender"`    // male, female or both (default: both)
	PageSize int    `toml:"page_size"` // records per page (default: 100)
	MaxPages int    `toml:"max_pages"` // page limit per gender (0 = unbounded)
}

// APIConfig holds settings for the primary JSON source
type APIConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// HTMLConfig holds settings for the fallback table source
type HTMLConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TransportConfig holds HTTP client settings shared by both sources
type TransportConfig struct {
	MaxRetries        int      `toml:"max_retries"`         // Retries after the first attempt (0 = unset, defaults to 3)
	RetryDelaySeconds int      `toml:"retry_delay_seconds"` // Base delay for exponential backoff
	RequestsPerMinute int      `toml:"requests_per_minute"` // Per-host pacing
	UserAgents        []string `toml:"user_agents"`         // Optional override of the rotation pool
}

// MetricsConfig controls the optional Prometheus endpoint
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
}

const (
	// GenderBoth selects both genders, fetched sequentially
	GenderBoth = "both"
	// DefaultPageSize is the page size used when none is configured
	DefaultPageSize = 100
	// MaxPageSize is the largest page size accepted from configuration
	MaxPageSize = 500
	// MaxRetries is the largest retry count accepted from configuration
	MaxRetries = 10
	// MaxRequestsPerMinute caps per-host pacing
	MaxRequestsPerMinute = 600
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Fetch.Gender {
	case string(models.GenderMale), string(models.GenderFemale), GenderBoth:
	default:
		return fmt.Errorf("fetch.gender must be male, female or both (got %q)", c.Fetch.Gender)
	}
	if c.Fetch.PageSize < 1 {
		return fmt.Errorf("fetch.page_size must be at least 1 (got %d)", c.Fetch.PageSize)
	}
	if c.Fetch.PageSize > MaxPageSize {
		return fmt.Errorf("fetch.page_size must not exceed %d (got %d)", MaxPageSize, c.Fetch.PageSize)
	}
	if c.Fetch.MaxPages < 0 {
		return fmt.Errorf("fetch.max_pages must not be negative (got %d)", c.Fetch.MaxPages)
	}

	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.TimeoutSeconds < 1 {
		return fmt.Errorf("api.timeout_seconds must be at least 1 (got %d)", c.API.TimeoutSeconds)
	}
	if c.HTML.BaseURL == "" {
		return fmt.Errorf("html.base_url is required")
	}
	if c.HTML.TimeoutSeconds < 1 {
		return fmt.Errorf("html.timeout_seconds must be at least 1 (got %d)", c.HTML.TimeoutSeconds)
	}

	if c.Transport.MaxRetries < 1 || c.Transport.MaxRetries > MaxRetries {
		return fmt.Errorf("transport.max_retries must be between 1 and %d (got %d)", MaxRetries, c.Transport.MaxRetries)
	}
	if c.Transport.RetryDelaySeconds < 1 {
		return fmt.Errorf("transport.retry_delay_seconds must be at least 1 (got %d)", c.Transport.RetryDelaySeconds)
	}
	if c.Transport.RequestsPerMinute < 1 || c.Transport.RequestsPerMinute > MaxRequestsPerMinute {
		return fmt.Errorf("transport.requests_per_minute must be between 1 and %d (got %d)", MaxRequestsPerMinute, c.Transport.RequestsPerMinute)
	}
	for i, agent := range c.Transport.UserAgents {
		if agent == "" {
			return fmt.Errorf("transport.user_agents[%d] must not be empty", i)
		}
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return fmt.Errorf("metrics.listen_addr is required when metrics are enabled")
	}

	return nil
}

// Genders expands the configured gender selection in fetch order
func (c *Config) Genders() []models.Gender {
	if c.Fetch.Gender == GenderBoth {
		return []models.Gender{models.GenderMale, models.GenderFemale}
	}
	return []models.Gender{models.Gender(c.Fetch.Gender)}
}

// APITimeout returns the primary source request timeout
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// HTMLTimeout returns the fallback source request timeout
func (c *Config) HTMLTimeout() time.Duration {
	return time.Duration(c.HTML.TimeoutSeconds) * time.Second
}

// RetryDelay returns the base backoff delay between retries
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Transport.RetryDelaySeconds) * time.Second
}
