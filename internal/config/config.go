package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath   = "CONFIG_PATH"
	EnvDBConnection = "DB_CONNECTION"
	EnvJWTSecret    = "JWT_SECRET"
	EnvJWTExpiry    = "JWT_EXPIRY"
	EnvRedisAddr    = "REDIS_ADDR"
	EnvSMTPHost     = "SMTP_HOST"
	EnvSMTPFrom     = "SMTP_FROM"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Duration wraps time.Duration so YAML can carry values like "30s" or "1h".
// Plain integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if errStr := value.Decode(&raw); errStr == nil {
		parsed, errParse := time.ParseDuration(strings.TrimSpace(raw))
		if errParse != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, errParse)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if errInt := value.Decode(&seconds); errInt == nil {
		*d = Duration(time.Duration(seconds) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration node")
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	Expiry Duration `yaml:"expiry"`
}

// RedisConfig holds the optional Redis connection settings for the
// authentication rate-limit store. An empty address selects the in-memory
// store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SMTPConfig holds the mail transport settings.
type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	Workers   int `yaml:"workers"`    // Concurrent deliveries, default 3.
	QueueSize int `yaml:"queue-size"` // Pending job buffer.
}

// AuthConfig holds authentication endpoint limits.
type AuthConfig struct {
	LoginLimit  int      `yaml:"login-limit"`  // Attempts per window per client.
	LoginWindow Duration `yaml:"login-window"` // Window size.
}

// ServerConfig groups the settings beyond the database DSN.
type ServerConfig struct {
	JWT    JWTConfig    `yaml:"jwt"`
	Redis  RedisConfig  `yaml:"redis"`
	SMTP   SMTPConfig   `yaml:"smtp"`
	Notify NotifyConfig `yaml:"notify"`
	Auth   AuthConfig   `yaml:"auth"`
}

// LoadDatabaseDSN reads the database DSN from the YAML config file. The
// DB_CONNECTION environment variable takes precedence.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// Default authentication endpoint limits.
const (
	defaultLoginLimit  = 10
	defaultLoginWindow = time.Minute
)

// LoadServerConfig loads server settings from the YAML config file with
// environment overrides applied on top. A missing file yields defaults.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	result := ServerConfig{
		JWT:  JWTConfig{Expiry: Duration(defaultJWTExpiry)},
		Auth: AuthConfig{LoginLimit: defaultLoginLimit, LoginWindow: Duration(defaultLoginWindow)},
	}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.JWT.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.JWT.Expiry = Duration(expiry)
		}
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Redis.Addr = addr
	}
	if host := strings.TrimSpace(os.Getenv(EnvSMTPHost)); host != "" {
		result.SMTP.Host = host
	}
	if from := strings.TrimSpace(os.Getenv(EnvSMTPFrom)); from != "" {
		result.SMTP.From = from
	}

	if result.JWT.Expiry <= 0 {
		result.JWT.Expiry = Duration(defaultJWTExpiry)
	}
	if result.Auth.LoginLimit <= 0 {
		result.Auth.LoginLimit = defaultLoginLimit
	}
	if result.Auth.LoginWindow <= 0 {
		result.Auth.LoginWindow = Duration(defaultLoginWindow)
	}
	return result, nil
}
