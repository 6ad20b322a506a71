package config

import (
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Algorithm types accepted in token.algorithm_type.
const (
	AlgorithmTypeSymmetric  = "symmetric"
	AlgorithmTypeAsymmetric = "asymmetric"
)

// Session backends accepted in session.backend.
const (
	SessionBackendPostgres = "postgres"
	SessionBackendRedis    = "redis"
)

type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	Server struct {
		Port           string `mapstructure:"port"`
		MigrationsPath string `mapstructure:"migrations_path"`
		// LoginRatePerMinute limits login attempts per client address; 0 disables it.
		LoginRatePerMinute int `mapstructure:"login_rate_per_minute"`
	} `mapstructure:"server"`
	Session struct {
		Backend string `mapstructure:"backend"`
	} `mapstructure:"session"`
	Token TokenConfig `mapstructure:"token"`
	Log   struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// TokenConfig holds everything the token lifecycle needs. Key material is
// either a shared secret (symmetric) or a pair of PEM files (asymmetric).
type TokenConfig struct {
	AccessTTLSeconds   int64  `mapstructure:"access_ttl_seconds"`
	RefreshTTLSeconds  int64  `mapstructure:"refresh_ttl_seconds"`
	AlgorithmName      string `mapstructure:"algorithm_name"`
	AlgorithmType      string `mapstructure:"algorithm_type"`
	MaxTokenCount      int    `mapstructure:"max_token_count"`
	EvictOldestOnLimit bool   `mapstructure:"evict_oldest_on_limit"`
	SecretKey          string `mapstructure:"secret_key"`
	PrivateKeyPath     string `mapstructure:"private_key_path"`
	PublicKeyPath      string `mapstructure:"public_key_path"`
}

var AppConfig Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.migrations_path", "file://db/migrations")
	v.SetDefault("server.login_rate_per_minute", 30)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.prefix", "auth")
	v.SetDefault("session.backend", SessionBackendPostgres)
	v.SetDefault("token.access_ttl_seconds", 5*60)
	v.SetDefault("token.refresh_ttl_seconds", 30*24*60*60)
	v.SetDefault("token.algorithm_name", "RS256")
	v.SetDefault("token.algorithm_type", AlgorithmTypeAsymmetric)
	v.SetDefault("token.max_token_count", 5)
	v.SetDefault("token.evict_oldest_on_limit", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Registered so AutomaticEnv can override them without a config file.
	for _, key := range []string{
		"database.host", "database.port", "database.user", "database.password", "database.name",
		"redis.host", "redis.port", "redis.password",
		"token.secret_key", "token.private_key_path", "token.public_key_path",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("redis.db", 0)
}

// Load reads config.yml from path, applies defaults and environment
// overrides (token.secret_key -> TOKEN_SECRET_KEY) and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yml")

	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads the configuration into AppConfig and exits on failure.
func LoadConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Error loading config: %s", err)
	}
	AppConfig = *cfg
}

// Validate checks the values the token core cannot run without.
func (c *Config) Validate() error {
	t := c.Token
	if t.AccessTTLSeconds <= 0 {
		return errors.New("token.access_ttl_seconds must be positive")
	}
	if t.RefreshTTLSeconds <= 0 {
		return errors.New("token.refresh_ttl_seconds must be positive")
	}
	if t.MaxTokenCount <= 0 {
		return errors.New("token.max_token_count must be positive")
	}
	switch t.AlgorithmType {
	case AlgorithmTypeSymmetric:
		if t.SecretKey == "" {
			return errors.New("token.secret_key is required for symmetric algorithms")
		}
	case AlgorithmTypeAsymmetric:
		if t.PrivateKeyPath == "" || t.PublicKeyPath == "" {
			return errors.New("token.private_key_path and token.public_key_path are required for asymmetric algorithms")
		}
	default:
		return fmt.Errorf("unsupported token.algorithm_type %q", t.AlgorithmType)
	}
	switch c.Session.Backend {
	case SessionBackendPostgres, SessionBackendRedis:
	default:
		return fmt.Errorf("unsupported session.backend %q", c.Session.Backend)
	}
	return nil
}

// PostgresDSN returns the lib/pq connection string for the configured database.
// Credentials are escaped, so passwords may contain URL delimiters.
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}
