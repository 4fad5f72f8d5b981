package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	// Store settings. The cache is enabled only when both StoreEndpoint and
	// StoreAPIKey are present; otherwise check degrades to cache_disabled and
	// write returns 503.
	StoreEndpoint string
	StoreAPIKey   string
	CacheIndex    string

	CORSOrigin string

	// OTLPEndpoint is the OTLP/HTTP collector base URL. Empty disables span
	// export (spans become no-ops).
	OTLPEndpoint string
	Environment  string

	RequestTimeout time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

// CacheEnabled reports whether the store integration is configured.
func (c *Config) CacheEnabled() bool {
	return c.StoreEndpoint != "" && c.StoreAPIKey != ""
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Store struct {
		Endpoint string `yaml:"endpoint"`
		Index    string `yaml:"index"`
	} `yaml:"store"`

	CORS struct {
		Origin string `yaml:"origin"`
	} `yaml:"cors"`

	Telemetry struct {
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		Environment  string `yaml:"environment"`
	} `yaml:"telemetry"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	StoreAPIKey string `yaml:"elasticsearch_api"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) with env
// overrides. The file is optional; a missing file means defaults plus env.
// The store API key comes from ELASTICSEARCH_API or config/secrets.yaml.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}

	var fc fileConfig
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = os.Getenv("PORT")
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8000"
	}

	endpoint := os.Getenv("ELASTICSEARCH_ENDPOINT")
	if endpoint == "" {
		endpoint = fc.Store.Endpoint
	}
	cfg.StoreEndpoint = NormalizeEndpoint(endpoint)

	cfg.StoreAPIKey = os.Getenv("ELASTICSEARCH_API")
	if cfg.StoreAPIKey == "" {
		secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
		secretsData, err := os.ReadFile(secretsPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read secrets file: %w", err)
			}
		} else {
			var sec secretsFile
			if err := yaml.Unmarshal(secretsData, &sec); err != nil {
				return nil, fmt.Errorf("parse secrets file: %w", err)
			}
			cfg.StoreAPIKey = sec.StoreAPIKey
		}
	}

	cfg.CacheIndex = os.Getenv("CACHE_INDEX")
	if cfg.CacheIndex == "" {
		cfg.CacheIndex = fc.Store.Index
	}
	if cfg.CacheIndex == "" {
		cfg.CacheIndex = "weather-cache"
	}

	cfg.CORSOrigin = os.Getenv("CORS_ORIGIN")
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = fc.CORS.Origin
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "http://localhost:1234"
	}

	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if cfg.OTLPEndpoint == "" {
		cfg.OTLPEndpoint = fc.Telemetry.OTLPEndpoint
	}
	cfg.Environment = fc.Telemetry.Environment
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS > 0 && fc.Reliability.RateLimitBurst > 0 {
		cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	} else if cfg.RateLimitRPS > 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	return cfg, nil
}

// NormalizeEndpoint trims trailing slashes and rewrites the well-known
// "/:443" and "/:9200" suffixes that pasted console URLs sometimes carry
// into plain port suffixes.
func NormalizeEndpoint(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "/")
	s = strings.ReplaceAll(s, "/:443", ":443")
	s = strings.ReplaceAll(s, "/:9200", ":9200")
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails or the result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
