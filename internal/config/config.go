// Package config loads and validates web server configuration via Viper.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Pool     PoolConfig     `mapstructure:"pool"`
	Listener ListenerConfig `mapstructure:"listener"`
	Admin    AdminConfig    `mapstructure:"admin"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls where the TCP listener binds.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// PoolConfig sizes the thread pool.
type PoolConfig struct {
	Size            int `mapstructure:"size"`
	QueueDepth      int `mapstructure:"queue_depth"`
	SubmitTimeoutMs int `mapstructure:"submit_timeout_ms"`
}

// ListenerConfig governs request handling on accepted connections.
type ListenerConfig struct {
	SleepDelayMs   int    `mapstructure:"sleep_delay_ms"`
	ReadTimeoutMs  int    `mapstructure:"read_timeout_ms"`
	StaticDir      string `mapstructure:"static_dir"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// AdminConfig toggles the HTTP admin API.
type AdminConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ProgressConfig tunes the lifecycle event hub and its sinks.
type ProgressConfig struct {
	BufferSize      int    `mapstructure:"buffer_size"`
	MaxBatchEvents  int    `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int    `mapstructure:"max_batch_wait_ms"`
	LogEvents       bool   `mapstructure:"log_events"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	PostgresTable   string `mapstructure:"postgres_table"`
	MemoryRetention int    `mapstructure:"memory_retention"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 7878)
	v.SetDefault("pool.size", 4)
	v.SetDefault("pool.queue_depth", 64)
	v.SetDefault("pool.submit_timeout_ms", 0)
	v.SetDefault("listener.sleep_delay_ms", 5000)
	v.SetDefault("listener.read_timeout_ms", 5000)
	v.SetDefault("listener.static_dir", "")
	v.SetDefault("listener.max_connections", 0)
	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.port", 9090)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 250)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("progress.postgres_dsn", "")
	v.SetDefault("progress.postgres_table", "job_runs")
	v.SetDefault("progress.memory_retention", 10000)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be > 0")
	}
	if c.Pool.QueueDepth < 0 {
		return fmt.Errorf("pool.queue_depth must be >= 0")
	}
	if c.Pool.SubmitTimeoutMs < 0 {
		return fmt.Errorf("pool.submit_timeout_ms must be >= 0")
	}
	if c.Listener.SleepDelayMs < 0 {
		return fmt.Errorf("listener.sleep_delay_ms must be >= 0")
	}
	if c.Listener.ReadTimeoutMs <= 0 {
		return fmt.Errorf("listener.read_timeout_ms must be > 0")
	}
	if c.Listener.MaxConnections < 0 {
		return fmt.Errorf("listener.max_connections must be >= 0")
	}
	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("admin.port must be between 1 and 65535 when admin is enabled")
		}
		if c.Admin.Port == c.Server.Port {
			return fmt.Errorf("admin.port must differ from server.port")
		}
	}
	if c.Progress.BufferSize <= 0 {
		return fmt.Errorf("progress.buffer_size must be > 0")
	}
	if c.Progress.MaxBatchEvents <= 0 {
		return fmt.Errorf("progress.max_batch_events must be > 0")
	}
	if c.Progress.MaxBatchWaitMs <= 0 {
		return fmt.Errorf("progress.max_batch_wait_ms must be > 0")
	}
	return nil
}

// ListenAddr is the host:port the TCP listener binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// AdminAddr is the host:port the admin API binds.
func (c Config) AdminAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Admin.Port))
}

// SleepDelay is how long the /sleep route blocks its worker.
func (c Config) SleepDelay() time.Duration {
	return time.Duration(c.Listener.SleepDelayMs) * time.Millisecond
}

// ReadTimeout bounds reading the request line from a connection.
func (c Config) ReadTimeout() time.Duration {
	return time.Duration(c.Listener.ReadTimeoutMs) * time.Millisecond
}

// SubmitTimeout bounds waiting for queue space; zero waits indefinitely.
func (c Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Pool.SubmitTimeoutMs) * time.Millisecond
}

// BatchWait is the longest the hub holds a partial batch.
func (c Config) BatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
