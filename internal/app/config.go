package app

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the runtime configuration shared by the household server and the offline client.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Client     ClientConfig     `mapstructure:"client"`
	Remote     RemoteConfig     `mapstructure:"remote"`
	Offline    OfflineConfig    `mapstructure:"offline"`
	Sync       SyncConfig       `mapstructure:"sync"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// MonitoringConfig enables health checks and metrics.
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Health     HealthConfig     `mapstructure:"health_check"`
}

// PrometheusConfig toggles metrics endpoints.
type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// HealthConfig toggles health endpoints.
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RealtimeConfig toggles the websocket change feed.
type RealtimeConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// AuthConfig captures authentication settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures family bearer tokens.
type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// ClientConfig holds settings for the offline client binary.
type ClientConfig struct {
	LogLevel string `mapstructure:"log_level"`
}

// RemoteConfig points the offline client at a household server.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OfflineConfig configures the local persistence store.
type OfflineConfig struct {
	Path        string        `mapstructure:"path"`
	QuotaBytes  int64         `mapstructure:"quota_bytes"`
	InitTimeout time.Duration `mapstructure:"init_timeout"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// SyncConfig configures mutation queue replay.
type SyncConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	Resolver        string        `mapstructure:"conflict_resolver"`
	DrainSchedule   string        `mapstructure:"drain_schedule"`
	ProbeSchedule   string        `mapstructure:"probe_schedule"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"`
}

// LoadEnvFiles loads KEY=VALUE pairs from .env style files into the process environment.
// Existing variables win and missing files are ignored.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env file %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("HEARTH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/hearth.sqlite")

	v.SetDefault("auth.jwt.issuer", "hearth")
	v.SetDefault("auth.jwt.access_token_ttl", "720h")

	v.SetDefault("monitoring.prometheus.enabled", true)
	v.SetDefault("monitoring.prometheus.endpoint", "/metrics")
	v.SetDefault("monitoring.health_check.enabled", true)

	v.SetDefault("realtime.enabled", true)

	v.SetDefault("client.log_level", "warn")

	v.SetDefault("remote.base_url", "http://127.0.0.1:8000")
	v.SetDefault("remote.timeout", "10s")

	v.SetDefault("offline.path", "./data/hearth-offline.sqlite")
	v.SetDefault("offline.quota_bytes", 50*1024*1024)
	v.SetDefault("offline.init_timeout", "0s")
	v.SetDefault("offline.stale_after", "5m")

	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.base_delay", "1s")
	v.SetDefault("sync.max_delay", "30s")
	v.SetDefault("sync.request_timeout", "0s")
	v.SetDefault("sync.conflict_resolver", "local_wins")
	v.SetDefault("sync.drain_schedule", "@every 1m")
	v.SetDefault("sync.probe_schedule", "@every 15s")
	v.SetDefault("sync.refresh_schedule", "@every 5m")
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
