package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Google     GoogleConfig     `yaml:"google"`
	Worker     WorkerConfig     `yaml:"worker"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type HTTPConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type GoogleConfig struct {
	Enabled         bool   `yaml:"enabled"`
	CredentialsFile string `yaml:"credentials_file"`
}

type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
	LeaseMinutes        int `yaml:"lease_minutes"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxDelayMinutes     int `yaml:"max_delay_minutes"`
	CallTimeoutSeconds  int `yaml:"call_timeout_seconds"`
	ReclaimEverySeconds int `yaml:"reclaim_every_seconds"`
}

type AuthConfig struct {
	Enabled      bool        `yaml:"enabled"`
	HeaderAPIKey string      `yaml:"header_api_key"`
	HeaderExtra  string      `yaml:"header_extra"`
	APIKeys      []ClientKey `yaml:"api_keys"`
}

type ClientKey struct {
	Key   string `yaml:"key"`
	Extra string `yaml:"extra"`
	Name  string `yaml:"name"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads .env when present, expands ${VAR} references inside the YAML and
// unmarshals the result.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Google.Enabled && c.Google.CredentialsFile == "" {
		return errors.New("google.credentials_file is required when google sync is enabled")
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	if c.Auth.Enabled && len(c.Auth.APIKeys) == 0 {
		return errors.New("auth.api_keys is required when auth is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "reservly"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Auth.HeaderAPIKey == "" {
		c.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Auth.HeaderExtra == "" {
		c.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Worker.PollIntervalSeconds == 0 {
		c.Worker.PollIntervalSeconds = 2
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 10
	}
	if c.Worker.LeaseMinutes == 0 {
		c.Worker.LeaseMinutes = 15
	}
	if c.Worker.InitialDelaySeconds == 0 {
		c.Worker.InitialDelaySeconds = 30
	}
	if c.Worker.MaxDelayMinutes == 0 {
		c.Worker.MaxDelayMinutes = 60
	}
	if c.Worker.CallTimeoutSeconds == 0 {
		c.Worker.CallTimeoutSeconds = 30
	}
	if c.Worker.ReclaimEverySeconds == 0 {
		c.Worker.ReclaimEverySeconds = 60
	}
}
