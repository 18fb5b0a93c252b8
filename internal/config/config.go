package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Tracking TrackingConfig `mapstructure:"tracking"`
	Location LocationConfig `mapstructure:"location"`
	Local    LocalConfig    `mapstructure:"local"`
	Remote   RemoteConfig   `mapstructure:"remote"`
	Control  ControlConfig  `mapstructure:"control"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentConfig defines behavior of the long-running agent process
type AgentConfig struct {
	UserID       string `mapstructure:"user_id"`       // start tracking for this user at boot when set
	SyncInterval string `mapstructure:"sync_interval"` // periodic offline queue sync, "0" disables
}

// TrackingConfig defines the background capture registration and queue keys
type TrackingConfig struct {
	TaskName         string  `mapstructure:"task_name"`
	QueueKey         string  `mapstructure:"queue_key"`
	RegistrationKey  string  `mapstructure:"registration_key"`
	Accuracy         string  `mapstructure:"accuracy"`          // lowest, low, balanced, high, highest
	TimeInterval     string  `mapstructure:"time_interval"`     // minimum time between deliveries
	DistanceInterval float64 `mapstructure:"distance_interval"` // meters
	ShowIndicator    bool    `mapstructure:"show_indicator"`
	IndicatorTitle   string  `mapstructure:"indicator_title"`
	IndicatorBody    string  `mapstructure:"indicator_body"`
	DrainRate        float64 `mapstructure:"drain_rate"` // inserts per second while draining, 0 = unlimited
	DrainBurst       int     `mapstructure:"drain_burst"`
	SessionLimit     int     `mapstructure:"session_limit"` // default page size for recent sessions
}

// LocationConfig defines the location source feeding the device
type LocationConfig struct {
	Source               string  `mapstructure:"source"` // static or replay
	ReplayFile           string  `mapstructure:"replay_file"`
	ReplayLoop           bool    `mapstructure:"replay_loop"`
	StaticLatitude       float64 `mapstructure:"static_latitude"`
	StaticLongitude      float64 `mapstructure:"static_longitude"`
	PollInterval         string  `mapstructure:"poll_interval"`
	ForegroundPermission string  `mapstructure:"foreground_permission"` // granted or denied
	BackgroundPermission string  `mapstructure:"background_permission"` // granted or denied
}

// LocalConfig defines the device-local key-value storage
type LocalConfig struct {
	Type             string `mapstructure:"type"` // bolt or badger
	Path             string `mapstructure:"path"`
	BadgerSyncWrites bool   `mapstructure:"badger_sync_writes"`
	BadgerGCInterval string `mapstructure:"badger_gc_interval"`
}

// RemoteConfig defines the hosted store samples and sessions are written to
type RemoteConfig struct {
	Type  string      `mapstructure:"type"` // sqlite or redis
	Path  string      `mapstructure:"path"` // sqlite database file
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig defines Redis connection settings
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
	WriteTimeout string `mapstructure:"write_timeout"`
}

// ControlConfig defines the local control API used by the UI
type ControlConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Port        int    `mapstructure:"port"`
	BindAddress string `mapstructure:"bind_address"`
}

// ServerConfig defines the metrics server
type ServerConfig struct {
	MetricsPort int    `mapstructure:"metrics_port"`
	BindAddress string `mapstructure:"bind_address"`
}

// LoggingConfig defines logging behavior
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	if configPath != "" {
		v.SetConfigFile(configPath)
	}
	v.SetEnvPrefix("FIELDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found, use defaults and environment variables
		}
	}

	// Unmarshal config
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Defaults returns the configuration produced by defaults alone, before
// validation.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// KnownKeys returns every recognised configuration key, sorted.
func KnownKeys() []string {
	v := viper.New()
	setDefaults(v)

	keys := v.AllKeys()
	sort.Strings(keys)
	return keys
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("agent.user_id", "")
	v.SetDefault("agent.sync_interval", "1m")

	// Tracking defaults
	v.SetDefault("tracking.task_name", "background-location-task")
	v.SetDefault("tracking.queue_key", "location_queue")
	v.SetDefault("tracking.registration_key", "tracking_registration")
	v.SetDefault("tracking.accuracy", "high")
	v.SetDefault("tracking.time_interval", "10s")
	v.SetDefault("tracking.distance_interval", 10.0)
	v.SetDefault("tracking.show_indicator", true)
	v.SetDefault("tracking.indicator_title", "Location Tracking Active")
	v.SetDefault("tracking.indicator_body", "Your location is being shared with your team.")
	v.SetDefault("tracking.drain_rate", 0.0)
	v.SetDefault("tracking.drain_burst", 1)
	v.SetDefault("tracking.session_limit", 20)

	// Location defaults
	v.SetDefault("location.source", "static")
	v.SetDefault("location.replay_file", "")
	v.SetDefault("location.replay_loop", false)
	v.SetDefault("location.static_latitude", 0.0)
	v.SetDefault("location.static_longitude", 0.0)
	v.SetDefault("location.poll_interval", "1s")
	v.SetDefault("location.foreground_permission", "granted")
	v.SetDefault("location.background_permission", "granted")

	// Local storage defaults
	v.SetDefault("local.type", "bolt")
	v.SetDefault("local.path", "/var/lib/fieldtrack/device.bolt")
	v.SetDefault("local.badger_sync_writes", true)
	v.SetDefault("local.badger_gc_interval", "10m")

	// Remote store defaults
	v.SetDefault("remote.type", "sqlite")
	v.SetDefault("remote.path", "/var/lib/fieldtrack/remote.db")
	v.SetDefault("remote.redis.host", "localhost")
	v.SetDefault("remote.redis.port", 6379)
	v.SetDefault("remote.redis.password", "")
	v.SetDefault("remote.redis.db", 0)
	v.SetDefault("remote.redis.pool_size", 10)
	v.SetDefault("remote.redis.min_idle_conns", 2)
	v.SetDefault("remote.redis.dial_timeout", "5s")
	v.SetDefault("remote.redis.read_timeout", "3s")
	v.SetDefault("remote.redis.write_timeout", "3s")

	// Control API defaults
	v.SetDefault("control.enabled", true)
	v.SetDefault("control.port", 8787)
	v.SetDefault("control.bind_address", "127.0.0.1")

	// Server defaults
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.bind_address", "0.0.0.0")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Tracking.TaskName == "" {
		return fmt.Errorf("tracking task name is required")
	}
	if cfg.Tracking.QueueKey == "" || cfg.Tracking.RegistrationKey == "" {
		return fmt.Errorf("tracking queue and registration keys are required")
	}
	if cfg.Tracking.QueueKey == cfg.Tracking.RegistrationKey {
		return fmt.Errorf("tracking queue and registration keys must differ")
	}
	switch strings.ToLower(cfg.Tracking.Accuracy) {
	case "lowest", "low", "balanced", "high", "highest":
	default:
		return fmt.Errorf("invalid tracking accuracy: %s", cfg.Tracking.Accuracy)
	}
	if cfg.Tracking.DistanceInterval < 0 {
		return fmt.Errorf("invalid distance interval: %v", cfg.Tracking.DistanceInterval)
	}
	if cfg.Tracking.DrainRate < 0 {
		return fmt.Errorf("invalid drain rate: %v", cfg.Tracking.DrainRate)
	}
	if cfg.Tracking.DrainBurst < 1 {
		cfg.Tracking.DrainBurst = 1
	}

	switch cfg.Location.Source {
	case "static":
	case "replay":
		if cfg.Location.ReplayFile == "" {
			return fmt.Errorf("location replay file is required for replay source")
		}
	default:
		return fmt.Errorf("invalid location source: %s (must be static or replay)", cfg.Location.Source)
	}
	for name, value := range map[string]string{
		"foreground": cfg.Location.ForegroundPermission,
		"background": cfg.Location.BackgroundPermission,
	} {
		if value != "granted" && value != "denied" {
			return fmt.Errorf("invalid %s permission: %s (must be granted or denied)", name, value)
		}
	}

	// Validate local storage
	if cfg.Local.Path == "" {
		return fmt.Errorf("local storage path is required")
	}
	if cfg.Local.Type == "" {
		cfg.Local.Type = "bolt"
	}
	if cfg.Local.Type != "bolt" && cfg.Local.Type != "badger" {
		return fmt.Errorf("invalid local storage type: %s (must be bolt or badger)", cfg.Local.Type)
	}

	// Validate remote store
	switch cfg.Remote.Type {
	case "sqlite":
		if cfg.Remote.Path == "" {
			return fmt.Errorf("remote sqlite path is required")
		}
	case "redis":
		if cfg.Remote.Redis.Host == "" {
			return fmt.Errorf("remote redis host is required")
		}
	default:
		return fmt.Errorf("invalid remote store type: %s (must be sqlite or redis)", cfg.Remote.Type)
	}

	if cfg.Control.Enabled && (cfg.Control.Port <= 0 || cfg.Control.Port > 65535) {
		return fmt.Errorf("invalid control port: %d", cfg.Control.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.Server.MetricsPort)
	}

	return nil
}
