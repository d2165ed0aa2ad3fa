package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/marcho78/prompt2json/internal/quota"
)

type Config struct {
	Server    ServerConfig    `json:"server"`
	Redis     RedisConfig     `json:"redis"`
	Database  DatabaseConfig  `json:"database"`
	Auth      AuthConfig      `json:"auth"`
	RateLimit RateLimitConfig `json:"rate_limit"`
}

type ServerConfig struct {
	Port        string `json:"port"`
	Environment string `json:"environment"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type DatabaseConfig struct {
	DSN string `json:"dsn"`
}

type AuthConfig struct {
	JWTSecret   string `json:"jwt_secret"`
	ExpiryHours int    `json:"expiry_hours"`
}

type RateLimitConfig struct {
	// "redis" for shared counters across instances, "memory" for a
	// single-instance deployment
	Store string       `json:"store"`
	Quota quota.Config `json:"quota"`
}

func Load(path string) (*Config, error) {
	config := defaults()

	file, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(file, config); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyEnv(config)

	if config.RateLimit.Quota.EndpointLimits == nil {
		config.RateLimit.Quota.EndpointLimits = defaultEndpointLimits()
	}

	return config, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8000",
			Environment: "development",
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
		Auth: AuthConfig{
			ExpiryHours: 24,
		},
		RateLimit: RateLimitConfig{
			Store: "redis",
			Quota: quota.Config{
				Anonymous: quota.TierLimits{
					DailyRequests:       10,
					DailyTokens:         50000,
					MaxTokensPerRequest: 5000,
				},
				Registered: quota.TierLimits{
					DailyRequests:       50,
					DailyTokens:         200000,
					MaxTokensPerRequest: 10000,
				},
				WarningThreshold: 0.8,
			},
		},
	}
}

func defaultEndpointLimits() map[string]quota.EndpointLimit {
	return map[string]quota.EndpointLimit{
		"generate-prompt": {Anonymous: 10, Registered: 30},
		"optimize-prompt": {Anonymous: 5, Registered: 20},
		"test-prompt":     {Anonymous: 5, Registered: 20},
		"batch-generate":  {Registered: 5},
	}
}

// Environment variables override file values
func applyEnv(config *Config) {
	setString(&config.Server.Port, "PORT")
	setString(&config.Server.Environment, "ENVIRONMENT")
	setString(&config.Redis.Host, "REDIS_HOST")
	setString(&config.Redis.Port, "REDIS_PORT")
	setString(&config.Redis.Password, "REDIS_PASSWORD")
	setString(&config.Database.DSN, "DATABASE_URL")
	setString(&config.Auth.JWTSecret, "JWT_SECRET")
	setString(&config.RateLimit.Store, "RATE_LIMIT_STORE")

	setInt64(&config.RateLimit.Quota.Anonymous.DailyRequests, "ANONYMOUS_DAILY_REQUESTS")
	setInt64(&config.RateLimit.Quota.Anonymous.DailyTokens, "ANONYMOUS_DAILY_TOKENS")
	setInt64(&config.RateLimit.Quota.Anonymous.MaxTokensPerRequest, "ANONYMOUS_MAX_TOKENS_PER_REQUEST")
	setInt64(&config.RateLimit.Quota.Registered.DailyRequests, "REGISTERED_DAILY_REQUESTS")
	setInt64(&config.RateLimit.Quota.Registered.DailyTokens, "REGISTERED_DAILY_TOKENS")
	setInt64(&config.RateLimit.Quota.Registered.MaxTokensPerRequest, "REGISTERED_MAX_TOKENS_PER_REQUEST")

	if v := os.Getenv("WARNING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.RateLimit.Quota.WarningThreshold = f
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
