package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// watched holds the viper instance the last Load built. Watch must attach to
// this instance: it is the one that knows the config file paths.
var (
	watchedMu sync.Mutex
	watched   *viper.Viper
)

// Config carries every tunable of the billing engine. Values come from
// config.yaml (optional) with TASKORA_* environment overrides on top.
type Config struct {
	HTTP          HTTPConfig          `mapstructure:"http"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Notifications NotificationConfig  `mapstructure:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	AdminAPIKey   string              `mapstructure:"admin_api_key"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	CallbackToken string        `mapstructure:"callback_token"`
	CallbackURL   string        `mapstructure:"callback_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BillingHour      int           `mapstructure:"billing_hour"`
	NotificationHour int           `mapstructure:"notification_hour"`
	PendingTTL       time.Duration `mapstructure:"pending_ttl"`
	LeaseTTL         time.Duration `mapstructure:"lease_ttl"`
}

type NotificationConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	v.SetEnvPrefix("TASKORA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	watchedMu.Lock()
	watched = v
	watchedMu.Unlock()

	return cfg, nil
}

// Watch re-reads the config file on change and invokes fn with the fresh
// config. Only used for runtime-adjustable settings (log level). A no-op
// until Load has run, or when no config file exists (env-only deployments).
func Watch(fn func(Config)) {
	watchedMu.Lock()
	v := watched
	watchedMu.Unlock()
	if v == nil {
		return
	}

	v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := Load()
		if err != nil {
			return
		}
		fn(cfg)
	})
	v.WatchConfig()
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.billing_hour", 2)
	v.SetDefault("scheduler.notification_hour", 9)
	v.SetDefault("scheduler.pending_ttl", 24*time.Hour)
	v.SetDefault("scheduler.lease_ttl", 6*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("observability.service_name", "taskora-billing")
}

func validate(cfg Config) error {
	if cfg.Scheduler.BillingHour < 0 || cfg.Scheduler.BillingHour > 23 {
		return fmt.Errorf("scheduler.billing_hour out of range: %d", cfg.Scheduler.BillingHour)
	}
	if cfg.Scheduler.NotificationHour < 0 || cfg.Scheduler.NotificationHour > 23 {
		return fmt.Errorf("scheduler.notification_hour out of range: %d", cfg.Scheduler.NotificationHour)
	}
	return nil
}
