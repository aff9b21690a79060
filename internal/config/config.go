package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Version is stamped at build time with -ldflags "-X github.com/swurapp/swur/internal/config.Version=..."
var Version = "dev"

const (
	DefaultIgnoreTagName = "ignore"
	DefaultClientTimeout = 30 * time.Second
	DefaultJobName       = "swur"
)

// DefaultUserAgent is the User-Agent sent with every upstream request unless overridden.
func DefaultUserAgent() string {
	return "swur/" + Version
}

type Config struct {
	APIKey                string  `mapstructure:"api_key"`
	BaseURL               string  `mapstructure:"base_url"`
	IgnoreTagName         string  `mapstructure:"ignore_tag_name"`
	ClientTimeout         string  `mapstructure:"client_timeout"` // Go duration string like "30s", "1m", etc.
	UserAgent             string  `mapstructure:"user_agent"`
	ProxyConnectionString string  `mapstructure:"proxy_connection_string"`
	RateLimit             float64 `mapstructure:"rate_limit"`  // requests per second, 0 disables the limiter
	Concurrency           int     `mapstructure:"concurrency"` // parallel episode fetches
	DryRun                bool    `mapstructure:"dry_run"`
	SearchOnMonitor       bool    `mapstructure:"search_on_monitor"`
	LogLevel              string  `mapstructure:"log_level"`
	LogFormat             string  `mapstructure:"log_format"`
	Metrics               struct {
		PushGatewayURL string `mapstructure:"push_gateway_url"`
		TextfilePath   string `mapstructure:"textfile_path"` // node_exporter textfile collector target
		JobName        string `mapstructure:"job_name"`
	} `mapstructure:"metrics"`
	Sentry struct {
		DSN         string `mapstructure:"dsn"`
		Environment string `mapstructure:"environment"`
	} `mapstructure:"sentry"`
}

// flagKeys maps command-line flags to their configuration keys.
var flagKeys = map[string]string{
	"api-key":           "api_key",
	"base-url":          "base_url",
	"ignore-tag-name":   "ignore_tag_name",
	"log-level":         "log_level",
	"log-format":        "log_format",
	"client-timeout":    "client_timeout",
	"concurrency":       "concurrency",
	"dry-run":           "dry_run",
	"search-on-monitor": "search_on_monitor",
}

// NewFlagSet declares the command-line flags of the swur binary.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to a YAML config file (default: ./config.yaml or ./config/config.yaml)")
	fs.String("api-key", "", "(Required) The API key for the Sonarr instance")
	fs.String("base-url", "", "(Required) The base URL (scheme, host, and port) for the Sonarr instance")
	fs.String("ignore-tag-name", DefaultIgnoreTagName, "The name of the tag for series that should NOT be tracked")
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error); falls back to $LOG_LEVEL")
	fs.String("log-format", "console", "Log output format (console or json)")
	fs.String("client-timeout", DefaultClientTimeout.String(), "Timeout for a single API call")
	fs.Int("concurrency", 1, "Number of episode listings fetched in parallel")
	fs.Bool("dry-run", false, "Only log the episodes that would be changed")
	fs.Bool("search-on-monitor", false, "Trigger an EpisodeSearch for newly monitored episodes")
	return fs
}

// Load parses args, then merges flags, environment (SWUR_*), an optional config file and defaults.
// pflag.ErrHelp is returned as-is when -h/--help is given.
func Load(args []string) (*Config, error) {
	fs := NewFlagSet("swur")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadWithFlags(fs)
}

// LoadWithFlags builds the configuration from an already parsed flag set.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	configFile, _ := fs.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variable support
	v.SetEnvPrefix("SWUR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("log_level", "SWUR_LOG_LEVEL", "LOG_LEVEL")

	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("ignore_tag_name", DefaultIgnoreTagName)
	v.SetDefault("client_timeout", DefaultClientTimeout.String())
	v.SetDefault("user_agent", DefaultUserAgent())
	v.SetDefault("proxy_connection_string", "")
	v.SetDefault("rate_limit", 0)
	v.SetDefault("concurrency", 1)
	v.SetDefault("dry_run", false)
	v.SetDefault("search_on_monitor", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("metrics.push_gateway_url", "")
	v.SetDefault("metrics.textfile_path", "")
	v.SetDefault("metrics.job_name", DefaultJobName)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")

	for flag, key := range flagKeys {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent()
	}
	if config.IgnoreTagName == "" {
		config.IgnoreTagName = DefaultIgnoreTagName
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks that the required values are present and well-formed.
func (c *Config) Validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, errors.New("api_key is required"))
	}
	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("base_url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("base_url: unsupported scheme %q (want http or https)", u.Scheme))
	} else if u.Host == "" {
		errs = append(errs, errors.New("base_url: missing host"))
	}
	if c.ClientTimeout != "" {
		if d, err := time.ParseDuration(c.ClientTimeout); err != nil {
			errs = append(errs, fmt.Errorf("client_timeout: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("client_timeout: must be positive, got %s", d))
		}
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency: must be at least 1, got %d", c.Concurrency))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit: must not be negative, got %v", c.RateLimit))
	}
	if c.LogFormat != "" && c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format: unsupported format %q (want console or json)", c.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Timeout returns the per-call timeout, falling back to DefaultClientTimeout.
func (c *Config) Timeout() time.Duration {
	if c.ClientTimeout == "" {
		return DefaultClientTimeout
	}
	d, err := time.ParseDuration(c.ClientTimeout)
	if err != nil || d <= 0 {
		return DefaultClientTimeout
	}
	return d
}
