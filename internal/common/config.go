package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Baseline    BaselineConfig  `toml:"baseline"`
	Detection   DetectionConfig `toml:"detection"`
	Triggers    TriggersConfig  `toml:"triggers"`
	Cleanup     CleanupConfig   `toml:"cleanup"`
	Ingest      IngestConfig    `toml:"ingest"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Monitor     MonitorConfig   `toml:"monitor"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// BaselineConfig controls how baselines are built and updated
type BaselineConfig struct {
	WindowDays  int     `toml:"window_days"`  // How far back baselines look
	MinSamples  int     `toml:"min_samples"`  // Snapshots needed before trusting a topic/voice pattern
	DecayFactor float64 `toml:"decay_factor"` // Old-data weight when merging new snapshots (0..1)
}

// DetectionConfig controls the delta detector
type DetectionConfig struct {
	MinConfidence         float64 `toml:"min_confidence"`          // Deltas below this are dropped
	ClusterGap            string  `toml:"cluster_gap"`             // Max gap between deltas in a cluster, e.g. "60m"
	SilenceThresholdHours float64 `toml:"silence_threshold_hours"` // Hours quiet before a voice counts as silent
	CoordinationWindow    string  `toml:"coordination_window"`     // Max spread of last posts for coordinated silence, e.g. "6h"
	DeltaRetention        string  `toml:"delta_retention"`         // How long deltas are kept, e.g. "24h"
}

// TriggersConfig controls scheduled context triggers
type TriggersConfig struct {
	DefinitionsFile     string `toml:"definitions_file"`      // Optional TOML catalog overlaying the built-in trigger definitions
	MarketHoursEnabled  bool   `toml:"market_hours_enabled"`  // Register recurring market open/close triggers
	MarketOpenSchedule  string `toml:"market_open_schedule"`  // Cron, UTC (default "30 13 * * 1-5")
	MarketCloseSchedule string `toml:"market_close_schedule"` // Cron, UTC (default "0 20 * * 1-5")
}

// CleanupConfig controls periodic pruning of old deltas and events
type CleanupConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // Cron schedule format
}

// IngestConfig controls snapshot ingestion rate limiting
type IngestConfig struct {
	RateLimit float64 `toml:"rate_limit"` // Snapshot requests per second per client
	Burst     int     `toml:"burst"`      // Burst allowance
}

// WebSocketConfig contains configuration for the event stream
type WebSocketConfig struct {
	MinSeverity   string   `toml:"min_severity"`   // Minimum event severity to broadcast ("noise".."major")
	AllowedEvents []string `toml:"allowed_events"` // Whitelist of event types to broadcast. Empty allows all.
}

// MonitorConfig lists the entities watched by the detection pipeline
type MonitorConfig struct {
	Entities []string `toml:"entities"` // Entity identifiers, e.g. "ticker:ACME"
	Interval string   `toml:"interval"` // Detection window length, e.g. "1h"
}

// NewDefaultConfig creates a configuration with default values
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in tacet.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Baseline: BaselineConfig{
			WindowDays:  7,
			MinSamples:  5,
			DecayFactor: 0.95,
		},
		Detection: DetectionConfig{
			MinConfidence:         0.5,
			ClusterGap:            "60m",
			SilenceThresholdHours: 24,
			CoordinationWindow:    "6h",
			DeltaRetention:        "24h",
		},
		Triggers: TriggersConfig{
			MarketHoursEnabled:  false,
			MarketOpenSchedule:  "30 13 * * 1-5",
			MarketCloseSchedule: "0 20 * * 1-5",
		},
		Cleanup: CleanupConfig{
			Enabled:  true,
			Schedule: "*/30 * * * *",
		},
		Ingest: IngestConfig{
			RateLimit: 10,
			Burst:     20,
		},
		WebSocket: WebSocketConfig{
			MinSeverity:   "minor",
			AllowedEvents: []string{},
		},
		Monitor: MonitorConfig{
			Entities: []string{},
			Interval: "1h",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files. Priority: CLI flags > environment variables > last config
// file > ... > first config file > defaults.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TACET_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("TACET_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("TACET_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("TACET_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("TACET_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if conf := os.Getenv("TACET_DETECTION_MIN_CONFIDENCE"); conf != "" {
		if v, err := strconv.ParseFloat(conf, 64); err == nil {
			config.Detection.MinConfidence = v
		}
	}
	if entities := os.Getenv("TACET_MONITOR_ENTITIES"); entities != "" {
		var parsed []string
		for _, e := range strings.Split(entities, ",") {
			if trimmed := strings.TrimSpace(e); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) > 0 {
			config.Monitor.Entities = parsed
		}
	}
}

// ApplyFlagOverrides applies command-line flag values, which have highest priority
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ClusterGapDuration parses the cluster gap, falling back to 60 minutes
func (c *Config) ClusterGapDuration() time.Duration {
	return parseDurationOr(c.Detection.ClusterGap, 60*time.Minute)
}

// CoordinationWindowDuration parses the coordination window, falling back to 6 hours
func (c *Config) CoordinationWindowDuration() time.Duration {
	return parseDurationOr(c.Detection.CoordinationWindow, 6*time.Hour)
}

// DeltaRetentionDuration parses the delta retention period, falling back to 24 hours
func (c *Config) DeltaRetentionDuration() time.Duration {
	return parseDurationOr(c.Detection.DeltaRetention, 24*time.Hour)
}

// MonitorIntervalDuration parses the monitor window length, falling back to 1 hour
func (c *Config) MonitorIntervalDuration() time.Duration {
	return parseDurationOr(c.Monitor.Interval, time.Hour)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// ValidateSchedule validates a standard 5-field cron schedule expression and
// ensures a minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
