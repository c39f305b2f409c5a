package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultBaseURL is the backend address compiled into the binary. A runtime
// override stored in the settings backend takes precedence.
const DefaultBaseURL = "http://localhost:9000"

// Config holds all configuration (file + env overrides)
type Config struct {
	Server struct {
		Addr      string `mapstructure:"addr"`
		AdminAddr string `mapstructure:"admin_addr"`
		LogLevel  string `mapstructure:"log_level"`
	} `mapstructure:"server"`

	Upstream struct {
		BaseURL          string        `mapstructure:"base_url"`
		Timeout          time.Duration `mapstructure:"timeout"`
		PromotionsPath   string        `mapstructure:"promotions_path"`
		FeaturesPath     string        `mapstructure:"features_path"`
		PlaceholderImage string        `mapstructure:"placeholder_image"`
	} `mapstructure:"upstream"`

	Breaker struct {
		MaxRequests      uint32        `mapstructure:"max_requests"`
		Interval         time.Duration `mapstructure:"interval"`
		Timeout          time.Duration `mapstructure:"timeout"`
		FailureThreshold uint32        `mapstructure:"failure_threshold"`
	} `mapstructure:"breaker"`

	Cache struct {
		PromotionsTTL time.Duration `mapstructure:"promotions_ttl"`
		FeaturesTTL   time.Duration `mapstructure:"features_ttl"`
	} `mapstructure:"cache"`

	Rotation struct {
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"rotation"`

	Session struct {
		IdleTTL time.Duration `mapstructure:"idle_ttl"`
	} `mapstructure:"session"`

	Settings struct {
		Backend string `mapstructure:"backend"` // memory | redis | postgres
	} `mapstructure:"settings"`

	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`

	Postgres struct {
		Host         string `mapstructure:"host"`
		Port         int    `mapstructure:"port"`
		User         string `mapstructure:"user"`
		Password     string `mapstructure:"password"`
		DBName       string `mapstructure:"db_name"`
		SSLMode      string `mapstructure:"ssl_mode"`
		MaxOpenConns int    `mapstructure:"max_open_conns"`
		MaxIdleConns int    `mapstructure:"max_idle_conns"`
	} `mapstructure:"postgres"`

	Listener struct {
		Channel          string `mapstructure:"channel"`
		ReconnectSeconds int    `mapstructure:"reconnect_seconds"`
	} `mapstructure:"listener"`
}

// keys lists every config key so viper's AutomaticEnv can resolve them
// during Unmarshal even when no config file is present.
var keys = []string{
	"server.addr", "server.admin_addr", "server.log_level",
	"upstream.base_url", "upstream.timeout", "upstream.promotions_path",
	"upstream.features_path", "upstream.placeholder_image",
	"breaker.max_requests", "breaker.interval", "breaker.timeout", "breaker.failure_threshold",
	"cache.promotions_ttl", "cache.features_ttl",
	"rotation.interval",
	"session.idle_ttl",
	"settings.backend",
	"redis.url",
	"postgres.host", "postgres.port", "postgres.user", "postgres.password",
	"postgres.db_name", "postgres.ssl_mode", "postgres.max_open_conns", "postgres.max_idle_conns",
	"listener.channel", "listener.reconnect_seconds",
}

func Load() Config {
	_ = godotenv.Load() // .env is optional

	v := viper.New()
	v.SetConfigName("application")
	v.SetConfigType("yaml")
	v.AddConfigPath("configs")
	_ = v.ReadInConfig() // optional; env can fully configure

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("unable to decode config: %w", err))
	}
	validate(&cfg)
	return cfg
}

// WithDefaults returns c with every unset field given its default.
func WithDefaults(c Config) Config {
	validate(&c)
	return c
}

func validate(c *Config) {
	if c.Server.Addr == "" { c.Server.Addr = ":8080" }
	if c.Server.AdminAddr == "" { c.Server.AdminAddr = "127.0.0.1:8081" }
	if c.Upstream.BaseURL == "" { c.Upstream.BaseURL = DefaultBaseURL }
	if c.Upstream.Timeout <= 0 { c.Upstream.Timeout = 5 * time.Second }
	if c.Upstream.PromotionsPath == "" { c.Upstream.PromotionsPath = "/promotions/active" }
	if c.Upstream.FeaturesPath == "" { c.Upstream.FeaturesPath = "/features" }
	if c.Upstream.PlaceholderImage == "" { c.Upstream.PlaceholderImage = "/static/img/promo-placeholder.png" }
	if c.Breaker.MaxRequests == 0 { c.Breaker.MaxRequests = 3 }
	if c.Breaker.Interval <= 0 { c.Breaker.Interval = 10 * time.Second }
	if c.Breaker.Timeout <= 0 { c.Breaker.Timeout = 30 * time.Second }
	if c.Breaker.FailureThreshold == 0 { c.Breaker.FailureThreshold = 5 }
	if c.Cache.PromotionsTTL <= 0 { c.Cache.PromotionsTTL = 2 * time.Minute }
	if c.Cache.FeaturesTTL <= 0 { c.Cache.FeaturesTTL = 5 * time.Minute }
	if c.Rotation.Interval <= 0 { c.Rotation.Interval = 5 * time.Second }
	if c.Session.IdleTTL <= 0 { c.Session.IdleTTL = 30 * time.Minute }
	if c.Settings.Backend == "" { c.Settings.Backend = "memory" }
	if c.Redis.URL == "" { c.Redis.URL = "redis://localhost:6379/0" }
	if c.Postgres.Port == 0 { c.Postgres.Port = 5432 }
	if c.Postgres.SSLMode == "" { c.Postgres.SSLMode = "disable" }
	if c.Postgres.MaxOpenConns == 0 { c.Postgres.MaxOpenConns = 10 }
	if c.Postgres.MaxIdleConns == 0 { c.Postgres.MaxIdleConns = 2 }
	if c.Listener.Channel == "" { c.Listener.Channel = "app_settings_change" }
	if c.Listener.ReconnectSeconds <= 0 { c.Listener.ReconnectSeconds = 5 }
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Password,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.DBName,
		c.Postgres.SSLMode,
	)
}

func (c Config) Backoff() time.Duration { return time.Duration(c.Listener.ReconnectSeconds) * time.Second }
