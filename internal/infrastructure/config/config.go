package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Chroma daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Logging  LoggingConfig  `yaml:"logging"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Rules    RulesConfig    `yaml:"rules"`
	Groups   GroupsConfig   `yaml:"groups"`
}

// EngineConfig contains frame scheduling settings.
type EngineConfig struct {
	// FrameRate is the maximum number of rendered frames per second.
	FrameRate int `yaml:"frame_rate"`

	// PresentConcurrency bounds concurrent device presents. 0 or 1 presents sequentially.
	PresentConcurrency int `yaml:"present_concurrency"`
}

// DatabaseConfig contains SQLite journal settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`

	// RetentionDays prunes journal entries older than this. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
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

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for frame statistics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains diagnostics HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// RulesConfig locates the special-rules document.
type RulesConfig struct {
	// Path of the rules YAML file. Empty disables special rules.
	Path string `yaml:"path"`

	// Watch reloads the file when it changes.
	Watch bool `yaml:"watch"`

	// DebounceMS delays reloads after a change, in milliseconds.
	DebounceMS int `yaml:"debounce_ms"`
}

// GroupsConfig contains one section per device group.
type GroupsConfig struct {
	ChromaSDK ChromaSDKConfig `yaml:"chromasdk"`
	GameSense GameSenseConfig `yaml:"gamesense"`
	Serial    SerialConfig    `yaml:"serial"`
	Virtual   VirtualConfig   `yaml:"virtual"`
}

// DeviceConfig declares a single device of a group.
type DeviceConfig struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"`
	Detail  string        `yaml:"detail"`
	X       int           `yaml:"x"`
	Y       int           `yaml:"y"`
	Profile ProfileConfig `yaml:"profile"`
}

// ProfileConfig is a per-device colour correction. Zero values mean identity.
type ProfileConfig struct {
	Red   float64 `yaml:"red"`
	Green float64 `yaml:"green"`
	Blue  float64 `yaml:"blue"`
	Gamma float64 `yaml:"gamma"`
}

// ChromaSDKConfig configures the native-SDK-backed group.
type ChromaSDKConfig struct {
	Enabled     bool           `yaml:"enabled"`
	URL         string         `yaml:"url"`
	Title       string         `yaml:"title"`
	HeartbeatMS int            `yaml:"heartbeat_ms"`
	Devices     []DeviceConfig `yaml:"devices"`
}

// GameSenseConfig configures the protocol-backed group.
type GameSenseConfig struct {
	Enabled bool `yaml:"enabled"`

	// Transport is "websocket" or "mqtt".
	Transport   string         `yaml:"transport"`
	URL         string         `yaml:"url"`
	Game        string         `yaml:"game"`
	DisplayName string         `yaml:"display_name"`
	Devices     []DeviceConfig `yaml:"devices"`
}

// SerialConfig configures the serial accessory strip group.
type SerialConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`

	// Port is the serial device path. Empty selects the first USB port
	// matching VID/PID.
	Port     string        `yaml:"port"`
	VID      string        `yaml:"vid"`
	PID      string        `yaml:"pid"`
	BaudRate int           `yaml:"baud_rate"`
	LEDs     int           `yaml:"leds"`
	Detail   string        `yaml:"detail"`
	Profile  ProfileConfig `yaml:"profile"`
}

// VirtualConfig configures the in-memory group.
type VirtualConfig struct {
	Enabled bool           `yaml:"enabled"`
	Devices []DeviceConfig `yaml:"devices"`
}

// Transport names accepted by GameSenseConfig.
const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)

var validDeviceTypes = []string{"keyboard", "mouse", "headset", "mousepad", "keypad", "accessory", "chroma_link"}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CHROMA_SECTION_KEY
// For example: CHROMA_DATABASE_PATH, CHROMA_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
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

// Default returns a Config with sensible defaults. Only the virtual group is
// enabled so a bare daemon starts without hardware.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			FrameRate:          45,
			PresentConcurrency: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Database: DatabaseConfig{
			Enabled:       true,
			Path:          "./data/chroma.db",
			WALMode:       true,
			BusyTimeout:   5,
			RetentionDays: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gray-logic-chroma",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8089,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Rules: RulesConfig{
			Watch:      true,
			DebounceMS: 250,
		},
		Groups: GroupsConfig{
			ChromaSDK: ChromaSDKConfig{
				Title:       "Gray Logic Chroma",
				HeartbeatMS: 1000,
			},
			GameSense: GameSenseConfig{
				Transport:   TransportWebSocket,
				Game:        "GRAY_LOGIC_CHROMA",
				DisplayName: "Gray Logic Chroma",
			},
			Serial: SerialConfig{
				Name:     "strip",
				BaudRate: 115200,
				LEDs:     30,
			},
			Virtual: VirtualConfig{
				Enabled: true,
				Devices: []DeviceConfig{{Name: "keyboard", Type: "keyboard"}},
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CHROMA_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHROMA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Database
	if v := os.Getenv("CHROMA_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CHROMA_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CHROMA_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CHROMA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CHROMA_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CHROMA_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("CHROMA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CHROMA_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("CHROMA_SERIAL_PORT"); v != "" {
		cfg.Groups.Serial.Port = v
	}
}

// Validate checks the configuration for values the daemon cannot use.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Engine.FrameRate < 1 || c.Engine.FrameRate > 240 {
		errs = append(errs, "engine.frame_rate must be between 1 and 240")
	}
	if c.Engine.PresentConcurrency < 0 {
		errs = append(errs, "engine.present_concurrency must not be negative")
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when enabled")
	}

	gs := c.Groups.GameSense
	switch gs.Transport {
	case TransportWebSocket:
	case TransportMQTT:
		if gs.Enabled && !c.MQTT.Enabled {
			errs = append(errs, "groups.gamesense.transport mqtt requires mqtt.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("groups.gamesense.transport %q must be websocket or mqtt", gs.Transport))
	}
	if gs.Enabled && gs.Game == "" {
		errs = append(errs, "groups.gamesense.game is required")
	}

	if c.Groups.Serial.Enabled {
		if c.Groups.Serial.BaudRate <= 0 {
			errs = append(errs, "groups.serial.baud_rate must be positive")
		}
		if c.Groups.Serial.LEDs < 1 || c.Groups.Serial.LEDs > 256*256-1 {
			errs = append(errs, "groups.serial.leds must be between 1 and 65535")
		}
		if !validDetail(c.Groups.Serial.Detail) {
			errs = append(errs, "groups.serial.detail must be low or high")
		}
	}

	errs = append(errs, validateDevices("groups.chromasdk", c.Groups.ChromaSDK.Devices)...)
	errs = append(errs, validateDevices("groups.gamesense", gs.Devices)...)
	errs = append(errs, validateDevices("groups.virtual", c.Groups.Virtual.Devices)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validateDevices(section string, devices []DeviceConfig) []string {
	var errs []string
	for i, d := range devices {
		if !slices.Contains(validDeviceTypes, d.Type) {
			errs = append(errs, fmt.Sprintf("%s.devices[%d].type %q is not a device type", section, i, d.Type))
		}
		if !validDetail(d.Detail) {
			errs = append(errs, fmt.Sprintf("%s.devices[%d].detail must be low or high", section, i))
		}
	}
	return errs
}

func validDetail(s string) bool {
	return s == "" || s == "low" || s == "high"
}

// FrameTime returns the minimum interval between rendered frames.
func (c *Config) FrameTime() time.Duration {
	if c.Engine.FrameRate <= 0 {
		return time.Second / 45
	}
	return time.Second / time.Duration(c.Engine.FrameRate)
}

// ReadTimeout returns the API read timeout as a Duration.
func (c APIConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c APIConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c APIConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}

// RulesDebounce returns the rules reload debounce as a Duration.
func (c *Config) RulesDebounce() time.Duration {
	return time.Duration(c.Rules.DebounceMS) * time.Millisecond
}
