package config_test

import (
	"testing"
	"time"

	"katalog/internal/authz"
	"katalog/internal/config"
	"katalog/internal/repositories"
	"katalog/internal/services"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]interface{}) *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := config.FromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppPort)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, services.AvailabilityDirect, cfg.AvailabilityPolicy)
	assert.Equal(t, authz.PolicyReadOnly, cfg.AccessPolicy)
	assert.Equal(t, repositories.OrderByName, cfg.ProductOrdering)
	assert.Equal(t, 20, cfg.PageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Equal(t, 10*time.Minute, cfg.CacheTTL)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Empty(t, cfg.RabbitMQURL)
	assert.Empty(t, cfg.RabbitMQDeadLetter)
	assert.Equal(t, time.Second, cfg.RabbitMQRetryDelay)
	assert.Empty(t, cfg.RedisAddr)
}

func TestFromViper_Overrides(t *testing.T) {
	cfg, err := config.FromViper(newViper(map[string]interface{}{
		"AVAILABILITY_POLICY": "derived",
		"ACCESS_POLICY":       "authenticated",
		"PRODUCT_ORDERING":    "-created_at",
		"PAGE_SIZE":           50,
		"MAX_PAGE_SIZE":       10,
		"CACHE_TTL":           "30s",
	}))
	require.NoError(t, err)

	assert.Equal(t, services.AvailabilityDerived, cfg.AvailabilityPolicy)
	assert.Equal(t, authz.PolicyAuthenticated, cfg.AccessPolicy)
	assert.Equal(t, repositories.OrderByNewest, cfg.ProductOrdering)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 50, cfg.MaxPageSize)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestFromViper_RejectsUnknownValues(t *testing.T) {
	for key, val := range map[string]string{
		"DATABASE_DRIVER":     "mysql",
		"AVAILABILITY_POLICY": "sometimes",
		"ACCESS_POLICY":       "anyone",
		"PRODUCT_ORDERING":    "price",
		"PAGE_SIZE":           "0",
	} {
		_, err := config.FromViper(newViper(map[string]interface{}{key: val}))
		assert.Error(t, err, key)
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("APP_PORT", ":9090")
	t.Setenv("AVAILABILITY_POLICY", "derived")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.AppPort)
	assert.Equal(t, services.AvailabilityDerived, cfg.AvailabilityPolicy)
}
