package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HomePulse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Hub      HubConfig      `yaml:"hub"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Sources  []SourceConfig `yaml:"sources"`
}

// HubConfig contains hub-wide identity settings.
type HubConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for refresh metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Source modes.
const (
	// SourceModePoll periodically fetches data from a bridge via MQTT
	// request/response.
	SourceModePoll = "poll"

	// SourceModePush receives unsolicited data pushed by a bridge.
	SourceModePush = "push"
)

// SourceConfig describes one logical data source managed by the hub.
//
// Each source gets its own update coordinator. Poll sources fetch on an
// interval via the bridge poll topics; push sources inject data as it
// arrives and do not poll.
type SourceConfig struct {
	// ID is the unique source identifier used in MQTT topics.
	ID string `yaml:"id"`

	// Name is the human-readable label used in logs and diagnostics.
	Name string `yaml:"name"`

	// Mode is "poll" or "push".
	Mode string `yaml:"mode"`

	// IntervalSeconds is the polling interval. 0 disables periodic polling.
	IntervalSeconds int `yaml:"interval_seconds"`

	// FetchTimeoutSeconds bounds a single poll round trip. Default: 10.
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`

	// DebounceCooldownMS is the manual-refresh debounce cooldown. Default: 500.
	DebounceCooldownMS int `yaml:"debounce_cooldown_ms"`

	// DebounceImmediate executes the first debounced refresh immediately
	// instead of waiting out the cooldown. Default: true.
	DebounceImmediate *bool `yaml:"debounce_immediate"`

	// AvailabilityGraceSeconds is how long a source may keep failing before
	// its entities report unavailable. Default: 60.
	AvailabilityGraceSeconds int `yaml:"availability_grace_seconds"`

	// Entities are the subscriber entities exposed for this source.
	Entities []EntityConfig `yaml:"entities"`
}

// EntityConfig describes one entity exposed from a source's payload.
type EntityConfig struct {
	// ID is the unique entity identifier used in MQTT state topics.
	ID string `yaml:"id"`

	// Key is the payload key the entity publishes. Empty publishes the
	// whole payload.
	Key string `yaml:"key"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HOMEPULSE_SECTION_KEY
// For example: HOMEPULSE_DATABASE_PATH, HOMEPULSE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Hub: HubConfig{
			ID:       "hub-001",
			Name:     "HomePulse",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/homepulse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "homepulse-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HOMEPULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("HOMEPULSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("HOMEPULSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HOMEPULSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HOMEPULSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HOMEPULSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Hub validation
	if c.Hub.ID == "" {
		errs = append(errs, "hub.id is required")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Source validation
	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			errs = append(errs, fmt.Sprintf("sources[%d].id is required", i))
			continue
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Sprintf("sources[%d].id %q is duplicated", i, src.ID))
		}
		seen[src.ID] = true

		switch src.Mode {
		case SourceModePoll, SourceModePush:
		default:
			errs = append(errs, fmt.Sprintf("sources[%d].mode must be %q or %q", i, SourceModePoll, SourceModePush))
		}
		if src.Mode == SourceModePush && src.IntervalSeconds != 0 {
			errs = append(errs, fmt.Sprintf("sources[%d]: push sources must not set interval_seconds", i))
		}
		if src.IntervalSeconds < 0 {
			errs = append(errs, fmt.Sprintf("sources[%d].interval_seconds must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Interval returns the source polling interval as a Duration.
// Zero means periodic polling is disabled.
func (s SourceConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// FetchTimeout returns the per-poll timeout as a Duration.
func (s SourceConfig) FetchTimeout() time.Duration {
	if s.FetchTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// DebounceCooldown returns the manual-refresh debounce cooldown as a Duration.
func (s SourceConfig) DebounceCooldown() time.Duration {
	if s.DebounceCooldownMS <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(s.DebounceCooldownMS) * time.Millisecond
}

// Immediate reports whether debounced refreshes execute immediately when idle.
func (s SourceConfig) Immediate() bool {
	if s.DebounceImmediate == nil {
		return true
	}
	return *s.DebounceImmediate
}

// AvailabilityGrace returns the entity availability grace window as a Duration.
func (s SourceConfig) AvailabilityGrace() time.Duration {
	if s.AvailabilityGraceSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.AvailabilityGraceSeconds) * time.Second
}
