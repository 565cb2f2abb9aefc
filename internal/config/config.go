// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"time"

	"katalog/internal/authz"
	"katalog/internal/repositories"
	"katalog/internal/services"

	"github.com/spf13/viper"
)

// Config is the typed service configuration.
type Config struct {
	AppPort  string
	AppEnv   string
	LogLevel string

	DatabaseDriver string
	DatabaseDSN    string

	JWTSecret     string
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	RabbitMQURL        string
	RabbitMQExchange   string
	RabbitMQStockQueue string
	RabbitMQDeadLetter string
	RabbitMQRetryDelay time.Duration

	RedisAddr string
	CacheTTL  time.Duration

	AvailabilityPolicy services.AvailabilityPolicy
	AccessPolicy       authz.Policy
	ProductOrdering    repositories.Ordering
	PageSize           int
	MaxPageSize        int

	RateLimitMax    int
	RateLimitWindow time.Duration
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_DSN", "katalog.db")

	v.SetDefault("JWT_SECRET", "change-me")
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_EMAIL", "")
	v.SetDefault("ADMIN_PASSWORD", "")

	// Empty disables events and the stock consumer.
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "katalog.products")
	v.SetDefault("RABBITMQ_STOCK_QUEUE", "katalog.stock_adjustments")
	v.SetDefault("RABBITMQ_DEAD_LETTER_EXCHANGE", "")
	v.SetDefault("RABBITMQ_RETRY_DELAY", "1s")

	// Empty disables the read cache.
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("AVAILABILITY_POLICY", string(services.AvailabilityDirect))
	v.SetDefault("ACCESS_POLICY", string(authz.PolicyReadOnly))
	v.SetDefault("PRODUCT_ORDERING", string(repositories.OrderByName))
	v.SetDefault("PAGE_SIZE", 20)
	v.SetDefault("MAX_PAGE_SIZE", 100)

	v.SetDefault("RATE_LIMIT_MAX", 100)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
}

// Load reads the environment into a Config.
func Load() (Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()
	return FromViper(v)
}

// FromViper builds a Config from v and rejects unknown enum values.
func FromViper(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppPort:            v.GetString("APP_PORT"),
		AppEnv:             v.GetString("APP_ENV"),
		LogLevel:           v.GetString("LOG_LEVEL"),
		DatabaseDriver:     v.GetString("DATABASE_DRIVER"),
		DatabaseDSN:        v.GetString("DATABASE_DSN"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		AdminUsername:      v.GetString("ADMIN_USERNAME"),
		AdminEmail:         v.GetString("ADMIN_EMAIL"),
		AdminPassword:      v.GetString("ADMIN_PASSWORD"),
		RabbitMQURL:        v.GetString("RABBITMQ_URL"),
		RabbitMQExchange:   v.GetString("RABBITMQ_EXCHANGE"),
		RabbitMQStockQueue: v.GetString("RABBITMQ_STOCK_QUEUE"),
		RabbitMQDeadLetter: v.GetString("RABBITMQ_DEAD_LETTER_EXCHANGE"),
		RabbitMQRetryDelay: v.GetDuration("RABBITMQ_RETRY_DELAY"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		CacheTTL:           v.GetDuration("CACHE_TTL"),
		PageSize:           v.GetInt("PAGE_SIZE"),
		MaxPageSize:        v.GetInt("MAX_PAGE_SIZE"),
		RateLimitMax:       v.GetInt("RATE_LIMIT_MAX"),
		RateLimitWindow:    v.GetDuration("RATE_LIMIT_WINDOW"),
	}

	switch cfg.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}

	var err error
	if cfg.AvailabilityPolicy, err = services.ParseAvailabilityPolicy(v.GetString("AVAILABILITY_POLICY")); err != nil {
		return Config{}, err
	}
	if cfg.AccessPolicy, err = authz.ParsePolicy(v.GetString("ACCESS_POLICY")); err != nil {
		return Config{}, err
	}

	switch o := repositories.Ordering(v.GetString("PRODUCT_ORDERING")); o {
	case repositories.OrderByName, repositories.OrderByNewest:
		cfg.ProductOrdering = o
	default:
		return Config{}, fmt.Errorf("unknown PRODUCT_ORDERING %q", o)
	}

	if cfg.PageSize <= 0 {
		return Config{}, fmt.Errorf("PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if cfg.MaxPageSize < cfg.PageSize {
		cfg.MaxPageSize = cfg.PageSize
	}
	return cfg, nil
}
