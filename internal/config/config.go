package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the marketing engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Messaging MessagingConfig `yaml:"messaging"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// GetHost returns the bind host, defaulting to all interfaces.
func (s ServerConfig) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}
	return s.Host
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the advisory count cache settings.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	DB      int    `yaml:"db"`
}

// MessagingConfig holds the outbound broker settings. With an empty URL the
// engine falls back to a log-only messenger.
type MessagingConfig struct {
	AMQPURL string `yaml:"amqp_url"`
}

// AuthConfig holds identity-provider token verification settings.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	DevMode   bool   `yaml:"dev_mode"`
}

// LoadFromEnv loads the YAML config file (if present) and applies environment
// overrides. A .env file is loaded first so local development matches
// production env-var wiring.
func LoadFromEnv(path string) (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{Port: 8080},
		Redis:  RedisConfig{Addr: "localhost:6379"},
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Messaging.AMQPURL = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DEV_MODE"); v == "true" {
		cfg.Auth.DevMode = true
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL or database.url)")
	}
	if cfg.Auth.JWTSecret == "" && !cfg.Auth.DevMode {
		return nil, fmt.Errorf("jwt secret is required outside dev mode")
	}

	return cfg, nil
}
