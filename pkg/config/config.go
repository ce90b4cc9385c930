package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/benthamhq/bentham/pkg/costs"
	"github.com/benthamhq/bentham/pkg/surface"
)

// LogConfig controls structured log output
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// RecoveryConfig tunes retries and circuit breaking
type RecoveryConfig struct {
	MaxRetries  int   `yaml:"maxRetries"`
	BaseDelayMs int64 `yaml:"baseDelayMs"`
	MaxDelayMs  int64 `yaml:"maxDelayMs"`
	Threshold   int   `yaml:"threshold"`
	ResetMs     int64 `yaml:"resetMs"`
}

// ExecutorConfig bounds the per-study worker pool
type ExecutorConfig struct {
	Workers int `yaml:"workers"`
}

// Config is the full server configuration
type Config struct {
	ListenAddr   string `yaml:"listenAddr"`
	DataDir      string `yaml:"dataDir"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes"`

	// RedisAddr switches rate limiting to a shared Redis window when
	// set; empty keeps the in-process limiter
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionTTLMinutes  int `yaml:"sessionTtlMinutes"`
	MonitorIntervalSec int `yaml:"monitorIntervalSec"`
	ProbeIntervalSec   int `yaml:"probeIntervalSec"`

	Log      LogConfig            `yaml:"log"`
	Recovery RecoveryConfig       `yaml:"recovery"`
	Executor ExecutorConfig       `yaml:"executor"`
	Surfaces []surface.Definition `yaml:"surfaces"`
}

// Default returns the production defaults: a local data dir, one echo
// surface so a fresh install can execute a study end to end, and
// conservative retry pacing.
func Default() *Config {
	return &Config{
		ListenAddr:         ":8080",
		DataDir:            "./data",
		MaxBodyBytes:       1 << 20, // 1 MiB manifest cap
		SessionTTLMinutes:  30,
		MonitorIntervalSec: 30,
		ProbeIntervalSec:   60,
		Log:                LogConfig{Level: "info", JSON: true},
		Recovery: RecoveryConfig{
			MaxRetries:  3,
			BaseDelayMs: 2000,
			MaxDelayMs:  60000,
			Threshold:   5,
			ResetMs:     60000,
		},
		Executor: ExecutorConfig{Workers: 4},
		Surfaces: []surface.Definition{
			{ID: "echo", Kind: surface.KindEcho, Pricing: costs.Pricing{}},
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("maxBodyBytes must be positive")
	}
	if len(c.Surfaces) == 0 {
		return fmt.Errorf("at least one surface must be configured")
	}
	seen := make(map[string]bool, len(c.Surfaces))
	for _, def := range c.Surfaces {
		if def.ID == "" {
			return fmt.Errorf("surface definition missing id")
		}
		if seen[def.ID] {
			return fmt.Errorf("duplicate surface definition %q", def.ID)
		}
		seen[def.ID] = true
	}
	return nil
}

// SessionTTL returns the session idle TTL as a duration
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// MonitorInterval returns the orchestrator sweep interval
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalSec) * time.Second
}

// ProbeInterval returns the surface health probe interval
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSec) * time.Second
}
