package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for relaybox.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Relay     RelayConfig     `yaml:"relay"`
	Console   ConsoleConfig   `yaml:"console"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// RelayConfig contains the device-facing HTTP listener settings.
type RelayConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// FallbackToWildcard retries a failed bind on 0.0.0.0 when the configured
	// host is not a local interface address.
	FallbackToWildcard bool `yaml:"fallback_to_wildcard"`

	// AutoStart starts the relay as soon as `serve` runs. When false the
	// relay waits for POST /start on the console.
	AutoStart bool `yaml:"auto_start"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// ConsoleConfig contains the operator console settings.
type ConsoleConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogHistory     int           `yaml:"log_history"`
	Timeouts       TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig contains HTTP timeout settings in seconds.
// Zero disables the corresponding timeout.
type TimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live log stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text, pretty
	Output string `yaml:"output"`
}

// AuditConfig contains the audit trail settings.
type AuditConfig struct {
	Database AuditDatabaseConfig `yaml:"database"`
	File     AuditFileConfig     `yaml:"file"`
}

// AuditDatabaseConfig contains SQLite audit database settings.
type AuditDatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// AuditFileConfig contains daily audit log file settings.
type AuditFileConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// MQTTConfig contains MQTT mirror settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	QueueSize   int                 `yaml:"queue_size"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB request metrics settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// DiscoveryConfig contains network information settings.
type DiscoveryConfig struct {
	MDNS     MDNSConfig     `yaml:"mdns"`
	PublicIP PublicIPConfig `yaml:"public_ip"`
}

// MDNSConfig contains mDNS advertisement settings.
type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance"`
	Service  string `yaml:"service"`
	Domain   string `yaml:"domain"`
}

// PublicIPConfig contains public IP lookup settings.
type PublicIPConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Services   []string      `yaml:"services"`
	Attempts   int           `yaml:"attempts"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RELAYBOX_SECTION_KEY
// For example: RELAYBOX_RELAY_PORT, RELAYBOX_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Host:               "0.0.0.0",
			Port:               12123,
			FallbackToWildcard: true,
			AutoStart:          true,
			Timeouts: TimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Console: ConsoleConfig{
			Enabled:    true,
			Host:       "127.0.0.1",
			Port:       12124,
			LogHistory: 1000,
			Timeouts: TimeoutConfig{
				Read: 30,
				Idle: 60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Audit: AuditConfig{
			Database: AuditDatabaseConfig{
				Enabled:     true,
				Path:        "./data/relaybox.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			File: AuditFileConfig{
				Enabled: true,
				Dir:     "./data/logs",
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "relaybox",
			},
			QoS:         1,
			TopicPrefix: "relaybox",
			QueueSize:   256,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Discovery: DiscoveryConfig{
			MDNS: MDNSConfig{
				Instance: "relaybox",
				Service:  "_relaybox._tcp",
				Domain:   "local.",
			},
			PublicIP: PublicIPConfig{
				Enabled: true,
				Services: []string{
					"https://api.ipify.org",
					"https://checkip.amazonaws.com",
					"https://icanhazip.com",
					"https://ipecho.net/plain",
				},
				Attempts:   3,
				RetryDelay: time.Second,
				Timeout:    5 * time.Second,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RELAYBOX_RELAY_HOST"); v != "" {
		cfg.Relay.Host = v
	}
	if v := os.Getenv("RELAYBOX_RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing RELAYBOX_RELAY_PORT: %w", err)
		}
		cfg.Relay.Port = port
	}
	if v := os.Getenv("RELAYBOX_CONSOLE_HOST"); v != "" {
		cfg.Console.Host = v
	}
	if v := os.Getenv("RELAYBOX_AUDIT_DATABASE_PATH"); v != "" {
		cfg.Audit.Database.Path = v
	}
	if v := os.Getenv("RELAYBOX_AUDIT_FILE_DIR"); v != "" {
		cfg.Audit.File.Dir = v
	}
	if v := os.Getenv("RELAYBOX_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RELAYBOX_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RELAYBOX_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("RELAYBOX_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("RELAYBOX_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Relay.Host == "" {
		errs = append(errs, "relay.host is required")
	}
	if c.Relay.Port < 1 || c.Relay.Port > 65535 {
		errs = append(errs, "relay.port must be between 1 and 65535")
	}

	if c.Console.Enabled {
		if c.Console.Port < 1 || c.Console.Port > 65535 {
			errs = append(errs, "console.port must be between 1 and 65535")
		}
		if c.Console.Port == c.Relay.Port && c.Console.Host == c.Relay.Host {
			errs = append(errs, "console and relay cannot share an address")
		}
	}

	if c.Audit.Database.Enabled && c.Audit.Database.Path == "" {
		errs = append(errs, "audit.database.path is required")
	}
	if c.Audit.File.Enabled && c.Audit.File.Dir == "" {
		errs = append(errs, "audit.file.dir is required")
	}

	if c.MQTT.Enabled {
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, "mqtt.topic_prefix is required")
		}
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	if c.Discovery.PublicIP.Enabled && c.Discovery.PublicIP.Attempts < 1 {
		errs = append(errs, "discovery.public_ip.attempts must be at least 1")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors: " + strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (t TimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t TimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (t TimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
