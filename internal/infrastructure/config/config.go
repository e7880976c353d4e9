package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic home orchestrator.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// This is the process configuration (brokers, stores, listeners). The
// home-automation document with commands, scenes and sensors lives in the
// file referenced by Home.ConfigFile and is loaded by the automation package.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	StatsD    StatsDConfig    `yaml:"statsd"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Home      HomeConfig      `yaml:"home"`
	Bridges   BridgesConfig   `yaml:"bridges"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite settings for the state mirror snapshot.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
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
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
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

// StatsDConfig contains DogStatsD metrics settings.
type StatsDConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Address   string   `yaml:"address"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings. An empty secret disables API auth.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// HomeConfig locates the home-automation document and sets orchestrator behaviour.
type HomeConfig struct {
	// ConfigFile is the YAML/JSON document with commands, scenes and sensors.
	ConfigFile string `yaml:"config_file"`

	// WatchConfigFile reloads ConfigFile when it changes on disk.
	WatchConfigFile bool `yaml:"watch_config_file"`

	// MirrorRoot is the MQTT topic prefix the state mirror writes under.
	MirrorRoot string `yaml:"mirror_root"`

	// ConfigPath is the mirror path watched for remote config documents.
	// Empty disables remote config ingestion.
	ConfigPath string `yaml:"config_path"`

	// InitialState is the system state at startup (HOME, AWAY, ARMED).
	InitialState string `yaml:"initial_state"`

	// MirrorQueueSize bounds the asynchronous mirror write queue.
	MirrorQueueSize int `yaml:"mirror_queue_size"`

	// InboxSize bounds the dispatcher inbox.
	InboxSize int `yaml:"inbox_size"`
}

// BridgesConfig enables the MQTT bridge adapter for each capability kind.
type BridgesConfig struct {
	TopicPrefix string `yaml:"topic_prefix"`
	Lighting    bool   `yaml:"lighting"`
	Thermostat  bool   `yaml:"thermostat"`
	ActivityHub bool   `yaml:"activity_hub"`
	BinaryMesh  bool   `yaml:"binary_mesh"`
	Camera      bool   `yaml:"camera"`
	Audio       bool   `yaml:"audio"`
	Presence    bool   `yaml:"presence"`

	// Processes are bridge executables started and supervised by the
	// orchestrator. Bridges run elsewhere when this is empty.
	Processes []BridgeProcessConfig `yaml:"processes"`
}

// BridgeProcessConfig describes one supervised bridge executable.
type BridgeProcessConfig struct {
	Name    string   `yaml:"name"`
	Binary  string   `yaml:"binary"`
	Args    []string `yaml:"args"`
	Env     []string `yaml:"env"`
	WorkDir string   `yaml:"work_dir"`

	// RestartDelay is in seconds. MaxRestarts of 0 means unlimited.
	RestartDelay int `yaml:"restart_delay"`
	MaxRestarts  int `yaml:"max_restarts"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_HOME_CONFIG_FILE, GRAYLOGIC_API_PORT
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

// Default returns the built-in configuration with environment overrides
// applied. Used when no config file is given.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Gray Logic Home",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/graylogic-home.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-home",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8090,
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
		StatsD: StatsDConfig{
			Address:   "127.0.0.1:8125",
			Namespace: "graylogic.home.",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60 * 24,
			},
		},
		Home: HomeConfig{
			ConfigFile:      "./configs/home.yaml",
			WatchConfigFile: true,
			MirrorRoot:      "graylogic/home",
			InitialState:    "AWAY",
			MirrorQueueSize: 1024,
			InboxSize:       256,
		},
		Bridges: BridgesConfig{
			TopicPrefix: "graylogic",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_STATSD_ADDRESS"); v != "" {
		cfg.StatsD.Address = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("GRAYLOGIC_HOME_CONFIG_FILE"); v != "" {
		cfg.Home.ConfigFile = v
	}
	if v := os.Getenv("GRAYLOGIC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when database is enabled")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.StatsD.Enabled && c.StatsD.Address == "" {
		errs = append(errs, "statsd.address is required when statsd is enabled")
	}

	// An empty secret leaves the API open, which is only acceptable on a
	// trusted LAN. A short one is always rejected.
	const minJWTSecretLength = 32
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Home.ConfigFile == "" {
		errs = append(errs, "home.config_file is required")
	}
	if c.Home.MirrorRoot == "" {
		errs = append(errs, "home.mirror_root is required")
	}
	switch strings.ToUpper(c.Home.InitialState) {
	case "HOME", "AWAY", "ARMED":
	default:
		errs = append(errs, "home.initial_state must be HOME, AWAY or ARMED")
	}
	if c.Home.MirrorQueueSize < 1 {
		errs = append(errs, "home.mirror_queue_size must be positive")
	}
	if c.Home.InboxSize < 1 {
		errs = append(errs, "home.inbox_size must be positive")
	}

	seen := make(map[string]bool, len(c.Bridges.Processes))
	for i, p := range c.Bridges.Processes {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Sprintf("bridges.processes[%d].name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Sprintf("bridges.processes[%d].name %q is duplicated", i, p.Name))
		}
		seen[p.Name] = true
		if p.Binary == "" {
			errs = append(errs, fmt.Sprintf("bridges.processes[%d].binary is required", i))
		}
		if p.RestartDelay < 0 || p.MaxRestarts < 0 {
			errs = append(errs, fmt.Sprintf("bridges.processes[%d] restart settings must not be negative", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// TokenTTL returns the access token lifetime.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
