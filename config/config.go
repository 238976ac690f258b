// Package config loads service settings from a .env file, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const configFileEnv = "P2P_CONFIG_FILE"

type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	Storage struct {
		Backend string `yaml:"backend"` // file, memory or redis
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Telegram struct {
		BotToken       string        `yaml:"bot_token"`
		InitDataMaxAge time.Duration `yaml:"init_data_max_age"`
	} `yaml:"telegram"`

	Relay struct {
		RateLimit  int           `yaml:"rate_limit"`
		RateWindow time.Duration `yaml:"rate_window"`
	} `yaml:"relay"`

	SessionTTL time.Duration `yaml:"session_ttl"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
}

func defaults() *Config {
	cfg := &Config{HTTPAddr: ":8080", SessionTTL: 30 * time.Minute}
	cfg.Storage.Backend = "file"
	cfg.Storage.Path = "data/p2pcalc.json"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Telegram.InitDataMaxAge = 24 * time.Hour
	cfg.Relay.RateLimit = 5
	cfg.Relay.RateWindow = time.Minute
	cfg.Log.Level = "info"
	return cfg
}

// Load reads envPath (if it exists) into the process environment, applies
// the YAML file named by P2P_CONFIG_FILE, then environment overrides, and
// validates the result.
func Load(envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envPath, err)
		}
	}

	cfg := defaults()
	if path := os.Getenv(configFileEnv); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", cfg.Storage.Backend))
	cfg.Storage.Path = getEnv("STORAGE_PATH", cfg.Storage.Path)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken)
	cfg.Telegram.InitDataMaxAge = getEnvDuration("INIT_DATA_MAX_AGE", cfg.Telegram.InitDataMaxAge)
	cfg.Relay.RateLimit = getEnvInt("RELAY_RATE_LIMIT", cfg.Relay.RateLimit)
	cfg.Relay.RateWindow = getEnvDuration("RELAY_RATE_WINDOW", cfg.Relay.RateWindow)
	cfg.SessionTTL = getEnvDuration("SESSION_TTL", cfg.SessionTTL)
	cfg.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", cfg.Log.Level))
	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	switch c.Storage.Backend {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			return errors.New("STORAGE_PATH is required for the file backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("REDIS_ADDR is required for the redis backend")
		}
		if c.Redis.DB < 0 {
			return fmt.Errorf("invalid REDIS_DB: %d", c.Redis.DB)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Relay.RateLimit <= 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT must be positive, got %d", c.Relay.RateLimit)
	}
	if c.Relay.RateWindow <= 0 {
		return fmt.Errorf("RELAY_RATE_WINDOW must be positive, got %s", c.Relay.RateWindow)
	}
	if c.Telegram.InitDataMaxAge < 0 {
		return fmt.Errorf("INIT_DATA_MAX_AGE must not be negative, got %s", c.Telegram.InitDataMaxAge)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
