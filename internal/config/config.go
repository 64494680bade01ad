package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	LLM       LLMConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Log       LogConfig
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig
	Auth      AuthConfig
}

// LLMConfig holds the LLM configuration
type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Model    string        `mapstructure:"model"`
	Stream   bool          `mapstructure:"stream"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig points at the sqlite file backing the store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RateLimitConfig controls the optional per-client limiter on the chat endpoint.
type RateLimitConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	RPS           float64 `mapstructure:"rps"`
	Burst         int     `mapstructure:"burst"`
	UseRedis      bool    `mapstructure:"use_redis"`
	WindowSeconds int     `mapstructure:"window_seconds"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig protects the admin API. With an empty JWTSecret every admin
// request is refused.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

var defaults = map[string]any{
	"llm.provider":              "gemini",
	"llm.base_url":              "https://generativelanguage.googleapis.com/v1beta/openai/",
	"llm.api_key":               "",
	"llm.model":                 "gemini-2.5-flash",
	"llm.stream":                true,
	"llm.timeout":               "0s",
	"server.host":               "0.0.0.0",
	"server.port":               "8000",
	"server.request_timeout":    "120s",
	"database.path":             "botdesk.db",
	"log.level":                 "info",
	"rate_limit.enabled":        false,
	"rate_limit.rps":            1.0,
	"rate_limit.burst":          5,
	"rate_limit.use_redis":      false,
	"rate_limit.window_seconds": 60,
	"redis.addr":                "",
	"redis.password":            "",
	"redis.db":                  0,
	"auth.jwt_secret":           "",
	"auth.token_ttl":            "24h",
}

// Load reads config.yaml (or the file named by CONFIG_PATH), then applies
// environment overrides such as LLM_API_KEY or SERVER_PORT. A .env file in the
// working directory is loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := os.Getenv("CONFIG_PATH")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Addr is the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}
