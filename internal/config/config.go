package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/etc/framecore/config.yaml"

// MaxBackoff is the loosest idle-worker pickup latency allowed
const MaxBackoff = time.Second

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Loop       LoopConfig       `yaml:"loop"`
	Pool       PoolConfig       `yaml:"pool"`
	Subsystems SubsystemsConfig `yaml:"subsystems"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type LoopConfig struct {
	TickRate    float64 `yaml:"tick_rate"`    // fixed substeps per second
	MaxFPS      float64 `yaml:"max_fps"`      // 0 = one tick per quantum
	MaxSubsteps int     `yaml:"max_substeps"` // 0 = unbounded catch-up
}

type PoolConfig struct {
	Workers   int    `yaml:"workers"` // 0 = GOMAXPROCS
	Backoff   string `yaml:"backoff"`
	Shutdown  string `yaml:"shutdown"`   // abandon or drain
	QueueWarn int    `yaml:"queue_warn"` // warn when this many tasks wait
}

type SubsystemsConfig struct {
	Workers WorkersConfig `yaml:"workers"`
	Probe   ProbeConfig   `yaml:"probe"`
	Journal JournalConfig `yaml:"journal"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type WorkersConfig struct {
	Hz float64 `yaml:"hz"`
}

type ProbeConfig struct {
	Enabled bool    `yaml:"enabled"`
	Hz      float64 `yaml:"hz"`
	Path    string  `yaml:"path"` // filesystem sampled for disk usage
}

type JournalConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Hz            float64 `yaml:"hz"`
	Path          string  `yaml:"path"`
	RetentionDays int     `yaml:"retention_days"`
}

type MonitorConfig struct {
	Enabled bool    `yaml:"enabled"`
	Hz      float64 `yaml:"hz"`
}

// Load reads and parses the config file, expanding env vars
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in config
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sane defaults
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Loop: LoopConfig{
			TickRate:    60,
			MaxFPS:      60,
			MaxSubsteps: 0,
		},
		Pool: PoolConfig{
			Workers:   0,
			Backoff:   "1s",
			Shutdown:  "abandon",
			QueueWarn: 1024,
		},
		Subsystems: SubsystemsConfig{
			Workers: WorkersConfig{Hz: 60},
			Probe: ProbeConfig{
				Enabled: true,
				Hz:      1,
				Path:    "/",
			},
			Journal: JournalConfig{
				Enabled:       true,
				Hz:            2,
				Path:          "/var/lib/framecore/journal.db",
				RetentionDays: 7,
			},
			Monitor: MonitorConfig{
				Enabled: true,
				Hz:      0.2,
			},
		},
	}
}

// Validate checks the config for errors
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Log.Format)
	}

	if c.Loop.TickRate <= 0 {
		return fmt.Errorf("loop tick_rate must be positive")
	}
	if c.Loop.MaxFPS < 0 {
		return fmt.Errorf("loop max_fps must not be negative")
	}
	if c.Loop.MaxSubsteps < 0 {
		return fmt.Errorf("loop max_substeps must not be negative")
	}

	if c.Pool.Workers < 0 {
		return fmt.Errorf("pool workers must not be negative")
	}
	backoff, err := time.ParseDuration(c.Pool.Backoff)
	if err != nil {
		return fmt.Errorf("invalid pool backoff %q: %w", c.Pool.Backoff, err)
	}
	if backoff <= 0 || backoff > MaxBackoff {
		return fmt.Errorf("pool backoff must be in (0, %s], got %s", MaxBackoff, backoff)
	}
	if s := strings.ToLower(c.Pool.Shutdown); s != "abandon" && s != "drain" {
		return fmt.Errorf("invalid pool shutdown: %s (must be abandon or drain)", c.Pool.Shutdown)
	}
	if c.Pool.QueueWarn < 0 {
		return fmt.Errorf("pool queue_warn must not be negative")
	}

	if c.Subsystems.Workers.Hz <= 0 {
		return fmt.Errorf("workers hz must be positive")
	}
	if c.Subsystems.Probe.Enabled && c.Subsystems.Probe.Hz <= 0 {
		return fmt.Errorf("probe hz must be positive when probe is enabled")
	}
	if c.Subsystems.Journal.Enabled {
		if c.Subsystems.Journal.Hz <= 0 {
			return fmt.Errorf("journal hz must be positive when journal is enabled")
		}
		if c.Subsystems.Journal.Path == "" {
			return fmt.Errorf("journal path is required when journal is enabled")
		}
		if c.Subsystems.Journal.RetentionDays < 0 {
			return fmt.Errorf("journal retention_days must not be negative")
		}
	}
	if c.Subsystems.Monitor.Enabled && c.Subsystems.Monitor.Hz <= 0 {
		return fmt.Errorf("monitor hz must be positive when monitor is enabled")
	}

	return nil
}

// Backoff returns the parsed pool backoff, falling back to MaxBackoff
func (c *Config) Backoff() time.Duration {
	d, err := time.ParseDuration(c.Pool.Backoff)
	if err != nil || d <= 0 || d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// Quantum returns the fixed simulation step implied by the tick rate
func (c *Config) Quantum() time.Duration {
	return time.Duration(float64(time.Second) / c.Loop.TickRate)
}
