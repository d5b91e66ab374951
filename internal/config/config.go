package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"energy-flow-monitor/internal/logging"
)

// Tick interval bounds in seconds.
const (
	MinTickIntervalSeconds     = 60
	MaxTickIntervalSeconds     = 3600
	DefaultTickIntervalSeconds = 300
)

// Config materialises application configuration.
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Logging       logging.Config      `mapstructure:"logging"`
	Sensors       SensorsConfig       `mapstructure:"sensors"`
	HomeAssistant HomeAssistantConfig `mapstructure:"home_assistant"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Export        ExportConfig        `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Timezone    string `mapstructure:"timezone"`
}

// SensorsConfig lists the cumulative meter sensors per logical group.
type SensorsConfig struct {
	Imported     []string `mapstructure:"imported"`
	Exported     []string `mapstructure:"exported"`
	Produced     []string `mapstructure:"produced"`
	Charge       []string `mapstructure:"battery_charge"`
	Discharge    []string `mapstructure:"battery_discharge"`
	CO2Intensity string   `mapstructure:"co2_intensity"`
	Presence     string   `mapstructure:"presence"`
}

// HomeAssistantConfig covers the reading adapter endpoint.
type HomeAssistantConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	Token          string        `mapstructure:"token"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SchedulerConfig governs tick cadence.
type SchedulerConfig struct {
	IntervalSeconds int           `mapstructure:"interval_seconds"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// Interval returns the tick interval clamped to the allowed bounds.
func (s SchedulerConfig) Interval() time.Duration {
	secs := s.IntervalSeconds
	if secs < MinTickIntervalSeconds {
		secs = MinTickIntervalSeconds
	}
	if secs > MaxTickIntervalSeconds {
		secs = MaxTickIntervalSeconds
	}
	return time.Duration(secs) * time.Second
}

// StorageConfig selects the state document backend.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"` // "file" or "postgres"
	StateDir string `mapstructure:"state_dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// NotificationsConfig defines rule evaluation and routing behaviour.
type NotificationsConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Language     string        `mapstructure:"language"`
	PushGeneral  bool          `mapstructure:"push_general"`
	PushWarnings bool          `mapstructure:"push_warnings"`
	PushAlarms   bool          `mapstructure:"push_alarms"`
	MailWarnings bool          `mapstructure:"mail_warnings"`
	MailAlarms   bool          `mapstructure:"mail_alarms"`
	Webhook      WebhookConfig `mapstructure:"webhook"`
	MQTT         MQTTConfig    `mapstructure:"mqtt"`
}

// WebhookConfig captures HTTP notification delivery.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MQTTConfig captures MQTT notification delivery.
type MQTTConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	BrokerURL   string        `mapstructure:"broker_url"`
	ClientID    string        `mapstructure:"client_id"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	TopicPrefix string        `mapstructure:"topic_prefix"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	Days int `mapstructure:"days"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ENERGYMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "energy-flow-monitor")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.timezone", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("home_assistant.base_url", "http://homeassistant.local:8123")
	v.SetDefault("home_assistant.request_timeout", "10s")

	v.SetDefault("scheduler.interval_seconds", DefaultTickIntervalSeconds)
	v.SetDefault("scheduler.align_to_interval", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x656e6572))

	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.state_dir", ".state")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.language", "en")
	v.SetDefault("notifications.push_general", true)
	v.SetDefault("notifications.push_warnings", true)
	v.SetDefault("notifications.push_alarms", true)
	v.SetDefault("notifications.mail_warnings", false)
	v.SetDefault("notifications.mail_alarms", true)
	v.SetDefault("notifications.webhook.timeout", "10s")
	v.SetDefault("notifications.mqtt.topic_prefix", "energyflow/notifications")
	v.SetDefault("notifications.mqtt.timeout", "10s")

	v.SetDefault("export.days", 90)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.IntervalSeconds <= 0 {
		return fmt.Errorf("scheduler.interval_seconds must be greater than zero")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.StateDir == "" {
			return fmt.Errorf("storage.state_dir must be set for the file backend")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be \"file\" or \"postgres\", got %q", c.Storage.Backend)
	}
	if lang := c.Notifications.Language; lang != "en" && lang != "nl" {
		return fmt.Errorf("notifications.language must be \"en\" or \"nl\", got %q", lang)
	}
	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url must be set when the webhook channel is enabled")
	}
	if c.Notifications.MQTT.Enabled && c.Notifications.MQTT.BrokerURL == "" {
		return fmt.Errorf("notifications.mqtt.broker_url must be set when the mqtt channel is enabled")
	}
	if c.Export.Days <= 0 {
		return fmt.Errorf("export.days must be greater than zero")
	}
	return nil
}

// Location resolves the configured timezone, falling back to local time.
func (c *Config) Location() (*time.Location, error) {
	if c.App.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// InputSensors groups the configured meter sensors for gap detection.
func (c *Config) InputSensors() map[string][]string {
	return map[string][]string{
		"imported": c.Sensors.Imported,
		"exported": c.Sensors.Exported,
		"produced": c.Sensors.Produced,
	}
}
