// Package config loads engine configuration from YAML via viper.
// Every tunable the engine exposes lives here with a documented default;
// nothing in the engine hardcodes a threshold.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SchedulerConfig controls the target collection scheduler
type SchedulerConfig struct {
	// CollectorTimeout bounds every collector invocation
	CollectorTimeout time.Duration `mapstructure:"collector_timeout"`
	// MaxInFlight caps simultaneous collector invocations
	MaxInFlight int64 `mapstructure:"max_in_flight"`
	// SkipLogSize bounds the in-memory record of skipped cycles
	SkipLogSize int `mapstructure:"skip_log_size"`
}

// QueueConfig controls the task queue drain loop
type QueueConfig struct {
	DrainInterval  time.Duration `mapstructure:"drain_interval"`
	DrainBatchSize int           `mapstructure:"drain_batch_size"`
	HandlerTimeout time.Duration `mapstructure:"handler_timeout"`
	MaxWorkers     int64         `mapstructure:"max_workers"`
	HistorySize    int           `mapstructure:"history_size"`
}

// RulesConfig controls the automation rule engine
type RulesConfig struct {
	EvalInterval time.Duration `mapstructure:"eval_interval"`
	Timezone     string        `mapstructure:"timezone"`
}

// ScorerConfig controls the collection quality scorer
type ScorerConfig struct {
	// MinTextLength is the character count an item must exceed to be
	// counted toward field quality
	MinTextLength    int           `mapstructure:"min_text_length"`
	FreshnessWindow  time.Duration `mapstructure:"freshness_window"`
	BaseConfidence   float64       `mapstructure:"base_confidence"`
	FreshnessBonus   float64       `mapstructure:"freshness_bonus"`
	CoverageBonusMax float64       `mapstructure:"coverage_bonus_max"`
}

// ModeConfig controls execution mode statistics
type ModeConfig struct {
	ReliabilityInterval time.Duration `mapstructure:"reliability_interval"`
	ReliabilityWindow   int           `mapstructure:"reliability_window"`
}

// MonitorConfig controls host resource sampling
type MonitorConfig struct {
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// NATSConfig controls the optional event bridge
type NATSConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig controls the SQLite result archive
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the root engine configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Rules     RulesConfig     `mapstructure:"rules"`
	Scorer    ScorerConfig    `mapstructure:"scorer"`
	Mode      ModeConfig      `mapstructure:"mode"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Storage   StorageConfig   `mapstructure:"storage"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.collector_timeout", 30*time.Second)
	v.SetDefault("scheduler.max_in_flight", 8)
	v.SetDefault("scheduler.skip_log_size", 100)

	v.SetDefault("queue.drain_interval", 5*time.Second)
	v.SetDefault("queue.drain_batch_size", 3)
	v.SetDefault("queue.handler_timeout", 30*time.Second)
	v.SetDefault("queue.max_workers", 4)
	v.SetDefault("queue.history_size", 50)

	v.SetDefault("rules.eval_interval", 30*time.Second)
	v.SetDefault("rules.timezone", "UTC")

	v.SetDefault("scorer.min_text_length", 3)
	v.SetDefault("scorer.freshness_window", 60*time.Second)
	v.SetDefault("scorer.base_confidence", 0.5)
	v.SetDefault("scorer.freshness_bonus", 0.2)
	v.SetDefault("scorer.coverage_bonus_max", 0.3)

	v.SetDefault("mode.reliability_interval", 60*time.Second)
	v.SetDefault("mode.reliability_window", 20)

	v.SetDefault("monitor.sample_interval", 15*time.Second)

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)

	v.SetDefault("storage.path", "argus.db")
}

// Default returns the built-in configuration without reading any file
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	// Unmarshal of pure defaults cannot fail
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads configuration from the given directory (expects config.yaml)
// falling back to defaults for anything unset. A missing file is not an
// error; a malformed one is.
func Load(dir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
