// Package config loads showroom settings from showroom.yaml and SHOWROOM_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SHOWROOM_DATABASE_DSN
const EnvPrefix = "SHOWROOM"

// Config represents the showroom configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Site         SiteConfig         `mapstructure:"site"`
	RateLimit    RateLimitConfig    `mapstructure:"ratelimit"`
	Housekeeping HousekeepingConfig `mapstructure:"housekeeping"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	BaseURL         string        `mapstructure:"base_url"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CertFile        string        `mapstructure:"cert_file"`
	KeyFile         string        `mapstructure:"key_file"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TrustForwarded  bool          `mapstructure:"trust_forwarded"`
	Profiling       bool          `mapstructure:"profiling"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// StorageConfig represents photo storage configuration
type StorageConfig struct {
	Dir         string `mapstructure:"dir"`
	MaxUploadMB int    `mapstructure:"max_upload_mb"`
}

// RedisConfig selects Redis-backed caches, sessions, rate limits and feed.
// An empty address keeps everything in memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	AdminDomains  []string      `mapstructure:"admin_domains"`
	SessionTTL    time.Duration `mapstructure:"session_ttl"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
}

// SiteConfig represents public site configuration
type SiteConfig struct {
	PrettyHTML  bool `mapstructure:"pretty_html"`
	PageSize    int  `mapstructure:"page_size"`
	MaxPageSize int  `mapstructure:"max_page_size"`
}

// RateLimitConfig bounds contact form and login attempts per client
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// HousekeepingConfig represents maintenance task configuration
type HousekeepingConfig struct {
	ActivityRetention time.Duration `mapstructure:"activity_retention"`
	OrphanGrace       time.Duration `mapstructure:"orphan_grace"`
	StatsInterval     time.Duration `mapstructure:"stats_interval"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 20*time.Second)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.allowed_origins", []string{})
	v.SetDefault("server.trust_forwarded", false)
	v.SetDefault("server.profiling", false)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "showroom.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("storage.dir", "data/media")
	v.SetDefault("storage.max_upload_mb", 10)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.admin_domains", []string{})
	v.SetDefault("auth.session_ttl", 12*time.Hour)
	v.SetDefault("auth.secure_cookies", false)

	v.SetDefault("site.pretty_html", false)
	v.SetDefault("site.page_size", 12)
	v.SetDefault("site.max_page_size", 48)

	v.SetDefault("ratelimit.requests", 10)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("housekeeping.activity_retention", 180*24*time.Hour)
	v.SetDefault("housekeeping.orphan_grace", time.Hour)
	v.SetDefault("housekeeping.stats_interval", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path, or showroom.yaml from the working directory or
// /etc/showroom when path is empty. A missing default file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("showroom")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/showroom")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Auth.AdminDomains = splitList(config.Auth.AdminDomains)
	config.Server.AllowedOrigins = splitList(config.Server.AllowedOrigins)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration, reporting every problem at once
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Address == "" {
		add("server.address is required")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		add("server.cert_file and server.key_file must be set together")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		add("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		add("database.dsn is required for postgres")
	}
	if c.Storage.Dir == "" {
		add("storage.dir is required")
	}
	if c.Storage.MaxUploadMB <= 0 {
		add("storage.max_upload_mb must be positive")
	}
	if len(c.Auth.JWTSecret) < 32 {
		add("auth.jwt_secret must be at least 32 characters (set %s_AUTH_JWT_SECRET)", EnvPrefix)
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.SessionTTL <= 0 {
		add("auth.token_ttl and auth.session_ttl must be positive")
	}
	if c.Site.PageSize <= 0 || c.Site.MaxPageSize < c.Site.PageSize {
		add("site.page_size must be positive and at most site.max_page_size")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		add("ratelimit.requests and ratelimit.window must be positive")
	}
	if c.Housekeeping.ActivityRetention <= 0 || c.Housekeeping.StatsInterval <= 0 {
		add("housekeeping.activity_retention and housekeeping.stats_interval must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		add("log.format must be json or console, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MaxUploadBytes returns the per-file upload limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) << 20
}

// splitList flattens comma-separated entries, as produced by environment overrides
func splitList(items []string) []string {
	out := []string{}
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
