// Package config loads the server's settings from defaults, an optional
// config.yaml, an optional .env file, the environment and command-line flags.
//
// PRECEDENCE (lowest to highest):
//
//	defaults → config.yaml → .env → environment → flags
//
// Everything is read once at startup into a Config struct. Nothing downstream
// calls viper or os.Getenv; the struct is passed explicitly to whatever needs it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Keys used in config.yaml and as flag names. The environment variable is
// the upper-cased key (database_url → DATABASE_URL).
const (
	KeyPort               = "port"
	KeyDatabaseURL        = "database_url"
	KeyJWTSecret          = "jwt_secret"
	KeyTokenTTL           = "token_ttl"
	KeyCORSAllowedOrigins = "cors_allowed_origins"
	KeyLoginRatePerMinute = "login_rate_per_minute"
	KeyLoginBurst         = "login_burst"
	KeyMaxUploadBytes     = "max_upload_bytes"
	KeyMaxImageDimension  = "max_image_dimension"
	KeyLogLevel           = "log_level"
	KeyShutdownTimeout    = "shutdown_timeout"
	KeyTrustProxy         = "trust_proxy"

	// KeyConfigFile and KeyEnvFile locate the optional files themselves.
	KeyConfigFile = "config"
	KeyEnvFile    = "env_file"
)

// DefaultDatabaseURL is a SQLite file path. Anything starting with
// postgres:// or postgresql:// selects the PostgreSQL store instead.
const DefaultDatabaseURL = "data/mealtrack.db"

type Config struct {
	Port               int
	DatabaseURL        string
	JWTSecret          string
	TokenTTL           time.Duration
	CORSAllowedOrigins []string
	LoginRatePerMinute int
	LoginBurst         int
	MaxUploadBytes     int64
	MaxImageDimension  int
	LogLevel           string
	ShutdownTimeout    time.Duration

	// TrustProxy makes the server take the client address from
	// X-Forwarded-For / X-Real-IP. Only enable it behind a proxy that
	// overwrites those headers: otherwise any client can pick its own
	// address and dodge the per-IP login limit.
	TrustProxy bool
}

var defaults = map[string]any{
	KeyPort:               8080,
	KeyDatabaseURL:        DefaultDatabaseURL,
	KeyTokenTTL:           30 * 24 * time.Hour,
	KeyCORSAllowedOrigins: "*",
	KeyLoginRatePerMinute: 10,
	KeyLoginBurst:         5,
	KeyMaxUploadBytes:     10 << 20,
	KeyMaxImageDimension:  800,
	KeyLogLevel:           "info",
	KeyShutdownTimeout:    30 * time.Second,
	KeyTrustProxy:         false,
}

// Load fills a Config from v. Flags must already be bound to v (BindPFlag)
// by the caller; Load takes care of everything else.
//
// A missing config.yaml or .env is not an error. A config file that exists but
// can't be parsed is.
func Load(v *viper.Viper) (*Config, error) {
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetDefault(KeyEnvFile, ".env")

	// === ENVIRONMENT ===
	// Bound key by key rather than with AutomaticEnv so the list of variables
	// the server reads is explicit. JWT_SECRET wins over the older SECRET_KEY.
	for key := range defaults {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("config: binding env for %s: %w", key, err)
		}
	}
	if err := v.BindEnv(KeyJWTSecret, "JWT_SECRET", "SECRET_KEY"); err != nil {
		return nil, fmt.Errorf("config: binding env for %s: %w", KeyJWTSecret, err)
	}

	// === config.yaml ===
	if path := v.GetString(KeyConfigFile); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	// === .env ===
	if err := mergeDotEnv(v, v.GetString(KeyEnvFile)); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:               v.GetInt(KeyPort),
		DatabaseURL:        strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		JWTSecret:          v.GetString(KeyJWTSecret),
		TokenTTL:           v.GetDuration(KeyTokenTTL),
		CORSAllowedOrigins: splitList(v.GetStringSlice(KeyCORSAllowedOrigins)),
		LoginRatePerMinute: v.GetInt(KeyLoginRatePerMinute),
		LoginBurst:         v.GetInt(KeyLoginBurst),
		MaxUploadBytes:     v.GetInt64(KeyMaxUploadBytes),
		MaxImageDimension:  v.GetInt(KeyMaxImageDimension),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		ShutdownTimeout:    v.GetDuration(KeyShutdownTimeout),
		TrustProxy:         v.GetBool(KeyTrustProxy),
	}
	return cfg, nil
}

// mergeDotEnv reads a .env file and merges the settings it knows about into
// viper's config layer: above config.yaml, below real environment variables
// and flags.
//
// WHY NOT godotenv.Load?
// Load exports every line into the process environment. Reading the file into
// a map instead keeps the process environment untouched, and tests that load
// different .env files can't leak into each other.
func mergeDotEnv(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	settings := make(map[string]any)
	for key := range defaults {
		if val, ok := vars[strings.ToUpper(key)]; ok && val != "" {
			settings[key] = val
		}
	}
	if secret := firstNonEmpty(vars["JWT_SECRET"], vars["SECRET_KEY"]); secret != "" {
		settings[KeyJWTSecret] = secret
	}

	if len(settings) == 0 {
		return nil
	}
	if err := v.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("config: merging %s: %w", path, err)
	}
	return nil
}

// Validate reports every problem at once rather than stopping at the first.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("jwt_secret must be at least 16 characters (set JWT_SECRET)"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url must not be empty"))
	}
	if c.TokenTTL < 0 {
		errs = append(errs, errors.New("token_ttl must not be negative"))
	}
	if c.MaxImageDimension <= 0 {
		errs = append(errs, errors.New("max_image_dimension must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max_upload_bytes must be positive"))
	}
	if c.LoginRatePerMinute <= 0 || c.LoginBurst <= 0 {
		errs = append(errs, errors.New("login_rate_per_minute and login_burst must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// UsesPostgres reports whether DatabaseURL points at PostgreSQL rather than
// a SQLite file.
func (c *Config) UsesPostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: want debug, info, warn or error", c.LogLevel)
	}
	return level, nil
}

// splitList accepts both a YAML list and a comma-separated string
// (CORS_ALLOWED_ORIGINS="https://a.example,https://b.example").
func splitList(in []string) []string {
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
