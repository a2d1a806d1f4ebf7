package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Posts     PostsConfig     `mapstructure:"posts"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Map       MapConfig       `mapstructure:"map"`
	Location  LocationConfig  `mapstructure:"location"`
	Feed      FeedConfig      `mapstructure:"feed"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PostsConfig selects where posts are read from: "backend" or "postgres".
type PostsConfig struct {
	Source string `mapstructure:"source"`
}

type BackendConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	Burst      int           `mapstructure:"burst"`
	MaxRetries int           `mapstructure:"max_retries"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL           string `mapstructure:"url"`
	DeviceSubject string `mapstructure:"device_subject"`
	EventSubject  string `mapstructure:"event_subject"`
}

type ValkeyConfig struct {
	Addr       string        `mapstructure:"addr"`
	HandoffTTL time.Duration `mapstructure:"handoff_ttl"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type MapConfig struct {
	DefaultLat   float64 `mapstructure:"default_lat"`
	DefaultLng   float64 `mapstructure:"default_lng"`
	DefaultZoom  int     `mapstructure:"default_zoom"`
	DetailZoom   int     `mapstructure:"detail_zoom"`
	RecenterZoom int     `mapstructure:"recenter_zoom"`
	MinZoom      int     `mapstructure:"min_zoom"`
	MaxZoom      int     `mapstructure:"max_zoom"`
}

type LocationConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAccuracy float64       `mapstructure:"max_accuracy"`
}

type FeedConfig struct {
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	SearchLimit     int           `mapstructure:"search_limit"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("posts.source", "backend")
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.token", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.rate_limit", 20.0)
	v.SetDefault("backend.burst", 5)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "discovery")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "discoverymap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.device_subject", "discovery.device")
	v.SetDefault("nats.event_subject", "discovery.session")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.handoff_ttl", time.Hour)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("map.default_lat", 43.068)
	v.SetDefault("map.default_lng", 141.35)
	v.SetDefault("map.default_zoom", 16)
	v.SetDefault("map.detail_zoom", 18)
	v.SetDefault("map.recenter_zoom", 16)
	v.SetDefault("map.min_zoom", 3)
	v.SetDefault("map.max_zoom", 20)
	v.SetDefault("location.timeout", 10*time.Second)
	v.SetDefault("location.max_accuracy", 100.0)
	v.SetDefault("feed.refresh_interval", 30*time.Second)
	v.SetDefault("feed.search_limit", 12)
	v.SetDefault("feed.cache_ttl", 15*time.Second)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: DISCOVERYMAP_BACKEND_BASE_URL → backend.base_url
	v.SetEnvPrefix("DISCOVERYMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
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

	switch c.Posts.Source {
	case "backend":
		if c.Backend.BaseURL == "" {
			errs = append(errs, "backend.base_url is required when posts.source is backend")
		}
		if c.Backend.Timeout <= 0 {
			errs = append(errs, "backend.timeout must be positive")
		}
		if c.Backend.RateLimit <= 0 {
			errs = append(errs, "backend.rate_limit must be positive")
		}
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
	default:
		errs = append(errs, fmt.Sprintf("posts.source must be backend or postgres, got %q", c.Posts.Source))
	}

	if c.NATS.DeviceSubject == "" || c.NATS.EventSubject == "" {
		errs = append(errs, "nats.device_subject and nats.event_subject are required")
	}
	if c.Map.DefaultLat < -90 || c.Map.DefaultLat > 90 || c.Map.DefaultLng < -180 || c.Map.DefaultLng > 180 {
		errs = append(errs, fmt.Sprintf("map default center out of range: %f,%f", c.Map.DefaultLat, c.Map.DefaultLng))
	}
	if c.Map.MinZoom <= 0 || c.Map.MinZoom > c.Map.MaxZoom {
		errs = append(errs, fmt.Sprintf("map zoom bounds invalid: %d..%d", c.Map.MinZoom, c.Map.MaxZoom))
	}
	for name, z := range map[string]int{
		"map.default_zoom":  c.Map.DefaultZoom,
		"map.detail_zoom":   c.Map.DetailZoom,
		"map.recenter_zoom": c.Map.RecenterZoom,
	} {
		if z < c.Map.MinZoom || z > c.Map.MaxZoom {
			errs = append(errs, fmt.Sprintf("%s must be within %d..%d, got %d", name, c.Map.MinZoom, c.Map.MaxZoom, z))
		}
	}
	if c.Location.Timeout <= 0 {
		errs = append(errs, "location.timeout must be positive")
	}
	if c.Location.MaxAccuracy < 0 {
		errs = append(errs, "location.max_accuracy must not be negative")
	}
	if c.Feed.SearchLimit <= 0 {
		errs = append(errs, "feed.search_limit must be positive")
	}
	if c.Feed.RefreshInterval < 0 || c.Feed.CacheTTL < 0 {
		errs = append(errs, "feed intervals must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
