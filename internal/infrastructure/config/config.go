package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Discovery.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Tahoma    TahomaConfig    `yaml:"tahoma"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
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

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
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

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Runtime adds the Go runtime and process collectors.
	Runtime bool `yaml:"runtime"`
}

// DiscoveryConfig contains dongle discovery settings.
type DiscoveryConfig struct {
	// AutoScan starts a scan on every dongle at startup.
	AutoScan bool `yaml:"auto_scan"`

	// ScanInterval re-runs the scan every N seconds. 0 disables it.
	ScanInterval int `yaml:"scan_interval"`

	// IdentifyTimeout bounds how long a connected dongle may stay
	// unidentified, in seconds. 0 disables the timeout.
	IdentifyTimeout int `yaml:"identify_timeout"`

	// IdentifyRetries is how many times identity is re-requested before
	// the session is abandoned.
	IdentifyRetries int `yaml:"identify_retries"`

	// HealthInterval is how often bridge health is published, in seconds.
	HealthInterval int `yaml:"health_interval"`

	// Dongles lists the USB dongles to scan. Empty means one dongle on
	// the first enumerated serial port.
	Dongles []DongleConfig `yaml:"dongles"`
}

// DongleConfig describes one USB dongle.
type DongleConfig struct {
	Name     string `yaml:"name"`
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baud_rate"`
	USBVID   string `yaml:"usb_vid"`
	USBPID   string `yaml:"usb_pid"`
}

// TahomaConfig contains the TaHoma device bridge settings.
type TahomaConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Devices []TahomaDeviceConfig `yaml:"devices"`
}

// TahomaDeviceConfig maps a device id to a channel profile.
type TahomaDeviceConfig struct {
	ID      string `yaml:"id"`
	Profile string `yaml:"profile"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_DISCOVERY_AUTO_SCAN
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "Gray Logic",
		},
		Database: DatabaseConfig{
			Path:        "./data/discovery.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-discovery",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Runtime: true,
		},
		Discovery: DiscoveryConfig{
			AutoScan:        true,
			IdentifyTimeout: 30,
			IdentifyRetries: 2,
			HealthInterval:  30,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Discovery
	if v, ok := envBool("GRAYLOGIC_DISCOVERY_AUTO_SCAN"); ok {
		cfg.Discovery.AutoScan = v
	}
	if v := os.Getenv("GRAYLOGIC_DISCOVERY_PORT"); v != "" {
		// A single port override applies to the first dongle, creating it
		// when none is configured.
		if len(cfg.Discovery.Dongles) == 0 {
			cfg.Discovery.Dongles = []DongleConfig{{}}
		}
		cfg.Discovery.Dongles[0].Port = v
	}
}

// envBool reads a boolean environment variable. Unset or unparsable values
// report ok=false.
func envBool(key string) (value, ok bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb is enabled")
		}
	}

	errs = append(errs, c.Discovery.validate()...)
	errs = append(errs, c.Tahoma.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (d DiscoveryConfig) validate() []string {
	var errs []string
	if d.ScanInterval < 0 {
		errs = append(errs, "discovery.scan_interval must not be negative")
	}
	if d.IdentifyTimeout < 0 {
		errs = append(errs, "discovery.identify_timeout must not be negative")
	}
	if d.IdentifyRetries < 0 {
		errs = append(errs, "discovery.identify_retries must not be negative")
	}
	if d.HealthInterval < 0 {
		errs = append(errs, "discovery.health_interval must not be negative")
	}

	names := make(map[string]bool)
	for i, dongle := range d.Dongles {
		if dongle.Name != "" {
			if names[dongle.Name] {
				errs = append(errs, fmt.Sprintf("discovery.dongles[%d].name %q is duplicated", i, dongle.Name))
			}
			names[dongle.Name] = true
		}
		if dongle.BaudRate < 0 {
			errs = append(errs, fmt.Sprintf("discovery.dongles[%d].baud_rate must not be negative", i))
		}
	}
	return errs
}

func (t TahomaConfig) validate() []string {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if len(t.Devices) == 0 {
		errs = append(errs, "tahoma.devices must not be empty when tahoma is enabled")
	}
	ids := make(map[string]bool)
	for i, dev := range t.Devices {
		if dev.ID == "" {
			errs = append(errs, fmt.Sprintf("tahoma.devices[%d].id is required", i))
			continue
		}
		if ids[dev.ID] {
			errs = append(errs, fmt.Sprintf("tahoma.devices[%d].id %q is duplicated", i, dev.ID))
		}
		ids[dev.ID] = true
	}
	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return seconds(c.API.Timeouts.Read)
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return seconds(c.API.Timeouts.Write)
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return seconds(c.API.Timeouts.Idle)
}

// GetScanInterval returns the periodic scan interval. Zero disables it.
func (c *Config) GetScanInterval() time.Duration {
	return seconds(c.Discovery.ScanInterval)
}

// GetIdentifyTimeout returns the identify timeout. Zero disables it.
func (c *Config) GetIdentifyTimeout() time.Duration {
	return seconds(c.Discovery.IdentifyTimeout)
}

// GetHealthInterval returns the bridge health publish interval.
func (c *Config) GetHealthInterval() time.Duration {
	return seconds(c.Discovery.HealthInterval)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
