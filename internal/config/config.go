package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	RatePerMinute  int      `yaml:"rate_per_minute"`
	RateBurst      int      `yaml:"rate_burst"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite, postgres
	Path   string `yaml:"path"`   // sqlite file
	DSN    string `yaml:"dsn"`    // postgres
}

type APIKey struct {
	Key     string `yaml:"key"`
	OwnerID string `yaml:"owner_id"`
}

type AuthConfig struct {
	APIKeys   []APIKey `yaml:"api_keys"`
	JWTSecret string   `yaml:"jwt_secret"`
	JWTIssuer string   `yaml:"jwt_issuer"`
}

type MonitorConfig struct {
	Schedule    string        `yaml:"schedule"` // cron spec, e.g. "@every 1m"
	Timeout     time.Duration `yaml:"-"`
	Concurrency int           `yaml:"concurrency"`
}

type LoggingConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// SeedEndpoint pre-registers an endpoint at startup. Full endpoint CRUD
// lives in a separate service; seeding covers single-box deployments.
type SeedEndpoint struct {
	ID       string `yaml:"id"`
	OwnerID  string `yaml:"owner_id"`
	URL      string `yaml:"url"`
	IsActive bool   `yaml:"is_active"`
}

type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Storage   StorageConfig  `yaml:"storage"`
	Auth      AuthConfig     `yaml:"auth"`
	Monitor   MonitorConfig  `yaml:"monitor"`
	Logging   LoggingConfig  `yaml:"logging"`
	Endpoints []SeedEndpoint `yaml:"endpoints"`
}

// Load reads, parses, and validates the config file at path, then applies
// environment overrides (ADDR, DATABASE_URL, LOG_DIR, CHECK_TIMEOUT_MS,
// MAX_CONCURRENT_CHECKS). An empty path yields the defaults.
func Load(path string) (*Config, error) {
	type rawMonitor struct {
		Schedule    string `yaml:"schedule"`
		Timeout     string `yaml:"timeout"`
		Concurrency int    `yaml:"concurrency"`
	}
	type rawConfig struct {
		Server    ServerConfig   `yaml:"server"`
		Storage   StorageConfig  `yaml:"storage"`
		Auth      AuthConfig     `yaml:"auth"`
		Monitor   rawMonitor     `yaml:"monitor"`
		Logging   LoggingConfig  `yaml:"logging"`
		Endpoints []SeedEndpoint `yaml:"endpoints"`
	}

	var raw rawConfig
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg := &Config{
		Server:    raw.Server,
		Storage:   raw.Storage,
		Auth:      raw.Auth,
		Logging:   raw.Logging,
		Endpoints: raw.Endpoints,
		Monitor: MonitorConfig{
			Schedule:    raw.Monitor.Schedule,
			Concurrency: raw.Monitor.Concurrency,
		},
	}

	// defaults
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.RatePerMinute == 0 {
		cfg.Server.RatePerMinute = 120
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 60
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverMemory
	}
	if cfg.Storage.Driver == DriverSQLite && cfg.Storage.Path == "" {
		cfg.Storage.Path = "endpointwatch.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Monitor.Schedule == "" {
		cfg.Monitor.Schedule = "@every 1m"
	}
	if cfg.Monitor.Concurrency <= 0 {
		cfg.Monitor.Concurrency = 10
	}
	cfg.Monitor.Timeout = 5 * time.Second
	if raw.Monitor.Timeout != "" {
		d, err := time.ParseDuration(raw.Monitor.Timeout)
		if err != nil {
			return nil, fmt.Errorf("monitor.timeout %q: %w", raw.Monitor.Timeout, err)
		}
		cfg.Monitor.Timeout = d
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.Driver = DriverPostgres
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("CHECK_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.Monitor.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Monitor.Concurrency = n
		}
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (must be memory, sqlite, or postgres)", c.Storage.Driver)
	}

	seen := make(map[string]bool, len(c.Auth.APIKeys))
	for i, k := range c.Auth.APIKeys {
		if k.Key == "" || k.OwnerID == "" {
			return fmt.Errorf("auth.api_keys[%d]: key and owner_id are required", i)
		}
		if seen[k.Key] {
			return fmt.Errorf("auth.api_keys[%d]: duplicate key", i)
		}
		seen[k.Key] = true
	}

	for i, e := range c.Endpoints {
		if e.OwnerID == "" || e.URL == "" {
			return fmt.Errorf("endpoints[%d]: owner_id and url are required", i)
		}
	}
	return nil
}
