package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Tiles     TilesConfig     `mapstructure:"tiles"`
	Map       MapConfig       `mapstructure:"map"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	CORSOrigins  string `mapstructure:"cors_origins"`
}

// DatabaseConfig selects and locates the restaurant store. Driver is
// "postgres" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Path     string `mapstructure:"path"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// NATSConfig points at the change-event broker. An empty URL disables events.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ValkeyConfig points at the query cache. An empty Addr disables caching.
type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	Namespace string `mapstructure:"namespace"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// AuthConfig protects mutating endpoints. An empty secret rejects every
// bearer token.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// TilesConfig configures the raster tile proxy.
type TilesConfig struct {
	Upstream   string  `mapstructure:"upstream"`
	UserAgent  string  `mapstructure:"user_agent"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
	Timeout    int     `mapstructure:"timeout"`
}

// MapConfig holds the map engine's tunables.
type MapConfig struct {
	HomeLat    float64 `mapstructure:"home_lat"`
	HomeLng    float64 `mapstructure:"home_lng"`
	HomeZoom   int     `mapstructure:"home_zoom"`
	MinZoom    int     `mapstructure:"min_zoom"`
	MaxZoom    int     `mapstructure:"max_zoom"`
	DetailZoom int     `mapstructure:"detail_zoom"`
	CullMargin float64 `mapstructure:"cull_margin"`
	DebounceMS int     `mapstructure:"debounce_ms"`
}

// Debounce returns the filter debounce as a duration.
func (m MapConfig) Debounce() time.Duration {
	return time.Duration(m.DebounceMS) * time.Millisecond
}

// Normalized clamps out-of-range values instead of rejecting them: zooms are
// kept inside [0, 20] and ordered, the home and detail zooms inside
// [MinZoom, MaxZoom], and the home latitude inside the ±85° pole guard.
func (m MapConfig) Normalized() MapConfig {
	clamp := func(v, lo, hi int) int { return max(lo, min(hi, v)) }

	m.MinZoom = clamp(m.MinZoom, 0, 20)
	m.MaxZoom = clamp(m.MaxZoom, 0, 20)
	if m.MinZoom > m.MaxZoom {
		m.MinZoom, m.MaxZoom = m.MaxZoom, m.MinZoom
	}
	m.HomeZoom = clamp(m.HomeZoom, m.MinZoom, m.MaxZoom)
	m.DetailZoom = clamp(m.DetailZoom, m.MinZoom, m.MaxZoom)
	m.HomeLat = math.Max(-85, math.Min(85, m.HomeLat))
	if m.CullMargin < 0 {
		m.CullMargin = 0
	}
	if m.DebounceMS < 0 {
		m.DebounceMS = 0
	}
	return m
}

// TemporalConfig locates the workflow engine. An empty HostPort disables
// certification scheduling.
type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.cors_origins", "*")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "halalmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "halalmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "halalmap.db")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.namespace", "halalmap")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "halalmap")
	v.SetDefault("tiles.upstream", "https://cartodb-basemaps-a.global.ssl.fastly.net/dark_all/{z}/{x}/{y}.png")
	v.SetDefault("tiles.user_agent", "halalmap-tile-proxy/1.0")
	v.SetDefault("tiles.rate_per_sec", 50)
	v.SetDefault("tiles.burst", 100)
	v.SetDefault("tiles.timeout", 10)
	v.SetDefault("map.home_lat", -2.5)
	v.SetDefault("map.home_lng", 118.0)
	v.SetDefault("map.home_zoom", 5)
	v.SetDefault("map.min_zoom", 3)
	v.SetDefault("map.max_zoom", 15)
	v.SetDefault("map.detail_zoom", 12)
	v.SetDefault("map.cull_margin", 50)
	v.SetDefault("map.debounce_ms", 300)
	v.SetDefault("temporal.host_port", "")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "halalmap-certification")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: HALALMAP_DATABASE_HOST → database.host
	v.SetEnvPrefix("HALALMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Map = cfg.Map.Normalized()

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
// Map tunables are clamped by Normalized rather than rejected here.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for sqlite")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be postgres or sqlite, got %q", c.Database.Driver))
	}

	if !strings.Contains(c.Tiles.Upstream, "{z}") || !strings.Contains(c.Tiles.Upstream, "{x}") || !strings.Contains(c.Tiles.Upstream, "{y}") {
		errs = append(errs, "tiles.upstream must contain {z}, {x} and {y}")
	}
	if c.Temporal.HostPort != "" && c.Temporal.TaskQueue == "" {
		errs = append(errs, "temporal.task_queue is required when temporal.host_port is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
