package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything needed to reach the API and serve the cache.
type Config struct {
	// API
	APIBase        string        `yaml:"api_base"`
	ServerOverride string        `yaml:"server_override"` // rebases every operation when set
	Locale         string        `yaml:"locale"`
	PageSize       int           `yaml:"page_size"`
	Throttle       time.Duration `yaml:"throttle"` // completion waiter re-check interval
	Cooldown       time.Duration `yaml:"cooldown"` // pause before retries and forced rebuilds
	HTTPTimeout    time.Duration `yaml:"http_timeout"`

	// Preload lists kinds loaded at startup by the server.
	Preload []string `yaml:"preload"`

	Server ServerConfig `yaml:"server"`

	// Export database
	DBPath string `yaml:"db_path"`

	Debug bool `yaml:"debug"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		APIBase:     "https://api.boundlexx.app/api/v1",
		Locale:      "english",
		PageSize:    200,
		Throttle:    200 * time.Millisecond,
		Cooldown:    5 * time.Second,
		HTTPTimeout: 30 * time.Second,
		Server: ServerConfig{
			Port:           "8080",
			AllowedOrigins: []string{"http://localhost:*", "https://*.boundlexx.app"},
		},
		DBPath: "./boundlexx.db",
	}
}

// Load reads config from a YAML file and applies environment overrides.
// If the file doesn't exist, defaults are used.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.APIBase = getEnv("BOUNDLEXX_API_BASE", c.APIBase)
	c.ServerOverride = getEnv("BOUNDLEXX_SERVER", c.ServerOverride)
	c.Locale = getEnv("BOUNDLEXX_LOCALE", c.Locale)
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.DBPath = getEnv("DB_PATH", c.DBPath)

	if v := os.Getenv("BOUNDLEXX_DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing BOUNDLEXX_DEBUG: %w", err)
		}
		c.Debug = debug
	}
	return nil
}

// Validate rejects values the cache layer cannot work with.
func (c Config) Validate() error {
	if c.APIBase == "" {
		return fmt.Errorf("api_base is required")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	if c.Throttle <= 0 {
		return fmt.Errorf("throttle must be positive, got %s", c.Throttle)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
