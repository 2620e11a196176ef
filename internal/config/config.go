package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/JamesFord-HappyHippo/Waves-sub004/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	Tide     TideConfig     `mapstructure:"tide"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Vessel   VesselConfig   `mapstructure:"vessel"`
	Alerting AlertingConfig `mapstructure:"alerting"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Export   ExportConfig   `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	SubmitterID string `mapstructure:"submitter_id"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the spatial store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// TideConfig covers the tide prediction service.
type TideConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	MaxStationDistance float64       `mapstructure:"max_station_distance_meters"`
}

// PipelineConfig holds the validation rule set.
type PipelineConfig struct {
	MaxDepthMeters      float64       `mapstructure:"max_depth_meters"`
	MinDepthMeters      float64       `mapstructure:"min_depth_meters"`
	MaxGPSAccuracy      float64       `mapstructure:"max_gps_accuracy_meters"`
	MaxSpeedForAccuracy float64       `mapstructure:"max_speed_mps"`
	DuplicateWindow     time.Duration `mapstructure:"duplicate_window"`
	StaleWindow         time.Duration `mapstructure:"stale_window"`
	NeighborhoodSince   time.Duration `mapstructure:"neighborhood_since"`
}

// VesselConfig describes the vessel readings are classified for.
type VesselConfig struct {
	DraftMeters          float64 `mapstructure:"draft_meters"`
	SafetyMarginMeters   float64 `mapstructure:"safety_margin_meters"`
	DataQualityThreshold float64 `mapstructure:"data_quality_threshold"`
}

// AlertingConfig defines alert lifecycle and routing.
type AlertingConfig struct {
	AutoAcknowledge        bool           `mapstructure:"auto_acknowledge"`
	AutoAcknowledgeTimeout time.Duration  `mapstructure:"auto_acknowledge_timeout"`
	SweepInterval          time.Duration  `mapstructure:"sweep_interval"`
	Telegram               TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the optional Telegram alert channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// QueueConfig locates the durable offline queue.
type QueueConfig struct {
	Path string `mapstructure:"path"`
}

// SyncConfig tunes the sync engine's retry behaviour.
type SyncConfig struct {
	BackoffBase   time.Duration `mapstructure:"backoff_base"`
	BackoffMax    time.Duration `mapstructure:"backoff_max"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	BatchLimit    int           `mapstructure:"batch_limit"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAVES")
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
	v.SetDefault("app.name", "wavesd")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.submitter_id", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tide.request_timeout", "10s")
	v.SetDefault("tide.user_agent", "wavesd/1.0")
	v.SetDefault("tide.max_station_distance_meters", 50000.0)

	v.SetDefault("pipeline.max_depth_meters", 200.0)
	v.SetDefault("pipeline.min_depth_meters", 0.0)
	v.SetDefault("pipeline.max_gps_accuracy_meters", 10.0)
	v.SetDefault("pipeline.max_speed_mps", 2.0)
	v.SetDefault("pipeline.duplicate_window", "30s")
	v.SetDefault("pipeline.stale_window", "5m")
	v.SetDefault("pipeline.neighborhood_since", "720h")

	v.SetDefault("vessel.draft_meters", 1.5)
	v.SetDefault("vessel.safety_margin_meters", 0.5)
	v.SetDefault("vessel.data_quality_threshold", 0.5)

	v.SetDefault("alerting.auto_acknowledge", true)
	v.SetDefault("alerting.auto_acknowledge_timeout", "30s")
	v.SetDefault("alerting.sweep_interval", "5s")
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("queue.path", "data/offline_queue.db")

	v.SetDefault("sync.backoff_base", "1s")
	v.SetDefault("sync.backoff_max", "60s")
	v.SetDefault("sync.retry_interval", "15s")
	v.SetDefault("sync.batch_limit", 100)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
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
	if c.Pipeline.MaxDepthMeters <= c.Pipeline.MinDepthMeters {
		return fmt.Errorf("pipeline.max_depth_meters must exceed pipeline.min_depth_meters")
	}
	if c.Pipeline.MaxGPSAccuracy <= 0 {
		return fmt.Errorf("pipeline.max_gps_accuracy_meters must be greater than zero")
	}
	if c.Vessel.DraftMeters < 0 {
		return fmt.Errorf("vessel.draft_meters cannot be negative")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("sync.backoff_base must be positive and no greater than sync.backoff_max")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Queue.Path == "" {
		return fmt.Errorf("queue.path is required")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token is required when telegram is enabled")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id is required when telegram is enabled")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
