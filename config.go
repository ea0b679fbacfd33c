package linematch

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/oarkflow/json"
)

// Config holds the runtime settings for the search server. It is loaded
// from a JSON file and can be overridden per field through LINEMATCH_*
// environment variables.
type Config struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	FilePath      string `json:"file_path"`
	RereadOnQuery bool   `json:"reread_on_query"`

	MaxWorkers    int `json:"max_workers"`
	CacheSize     int `json:"cache_size"`
	MaxQueryBytes int `json:"max_query_bytes"`

	SSLEnabled bool   `json:"ssl_enabled"`
	SSLCert    string `json:"ssl_cert"`
	SSLKey     string `json:"ssl_key"`

	RateLimitEnabled     bool `json:"rate_limit_enabled"`
	RequestsPerMinute    int  `json:"requests_per_minute"`
	RateCleanupSeconds   int  `json:"rate_cleanup_seconds"`
	ConnTimeoutSeconds   int  `json:"conn_timeout_seconds"`
	ShutdownGraceSeconds int  `json:"shutdown_grace_seconds"`

	MetricsAddr string `json:"metrics_addr"`

	Database *DBConfig `json:"database"`
}

// DefaultConfig returns the settings used when a field is absent from the
// config file.
func DefaultConfig() Config {
	return Config{
		Host:                 "localhost",
		Port:                 44445,
		RereadOnQuery:        false,
		MaxWorkers:           DefaultMaxWorkers,
		CacheSize:            DefaultCacheCapacity,
		MaxQueryBytes:        DefaultMaxQueryBytes,
		RateLimitEnabled:     true,
		RequestsPerMinute:    1000,
		RateCleanupSeconds:   3600,
		ConnTimeoutSeconds:   300,
		ShutdownGraceSeconds: 10,
	}
}

// LoadConfig reads path, applies environment overrides, and validates the
// result. An empty path yields the defaults plus overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("LINEMATCH_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("LINEMATCH_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := os.Getenv("LINEMATCH_FILE_PATH"); v != "" {
		c.FilePath = v
	}
	if v := os.Getenv("LINEMATCH_REREAD_ON_QUERY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.RereadOnQuery = b
		}
	}
	if v := os.Getenv("LINEMATCH_MAX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxWorkers = n
		}
	}
	if v := os.Getenv("LINEMATCH_REQUESTS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("LINEMATCH_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.FilePath == "" && c.Database == nil {
		return fmt.Errorf("either file_path or database must be set")
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.MaxQueryBytes <= 0 {
		return fmt.Errorf("max_query_bytes must be positive, got %d", c.MaxQueryBytes)
	}
	if c.RateLimitEnabled && c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests_per_minute must be positive, got %d", c.RequestsPerMinute)
	}
	if c.SSLEnabled {
		if c.SSLCert == "" || c.SSLKey == "" {
			return fmt.Errorf("ssl_enabled requires ssl_cert and ssl_key")
		}
		if _, err := os.Stat(c.SSLCert); err != nil {
			return fmt.Errorf("ssl_cert: %w", err)
		}
		if _, err := os.Stat(c.SSLKey); err != nil {
			return fmt.Errorf("ssl_key: %w", err)
		}
	}
	return nil
}

// Addr returns the host:port the server should listen on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Policy maps the reread flag to the engine policy.
func (c *Config) Policy() Policy {
	if c.RereadOnQuery {
		return RereadOnQuery
	}
	return Static
}

// IdleTimeout returns the per-connection timeout as a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.ConnTimeoutSeconds) * time.Second
}

// ShutdownGrace returns how long Shutdown waits for in-flight requests.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// TLSConfig builds a tls.Config from the certificate paths, or nil when
// TLS is disabled.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if !c.SSLEnabled {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.SSLCert, c.SSLKey)
	if err != nil {
		return nil, fmt.Errorf("load tls keypair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
