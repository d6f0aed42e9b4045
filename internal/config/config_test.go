package config

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DB_USER", "booking")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "3306")
	t.Setenv("DB_NAME", "consultations")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PAYMENT_PROVIDER", "fake")
	t.Setenv("FAKE_WEBHOOK_SECRET", "whsec")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, 2*time.Hour, cfg.Booking.MinLeadTime)
	assert.Equal(t, 90*24*time.Hour, cfg.Booking.AbandonedRetention)
	assert.EqualValues(t, 10000, cfg.Booking.AmountPence)
	assert.Equal(t, "gbp", cfg.Booking.Currency)
	assert.Equal(t, 30, cfg.Booking.MaxListingDays)
	assert.Equal(t, 500, cfg.Booking.ListingLimit)
	assert.Equal(t, "Europe/London", cfg.Location.String())
	assert.Equal(t, "log", cfg.Notify.Broker)
	assert.Equal(t, "mysql", cfg.Store)
	assert.Equal(t, "booking.confirmed", cfg.Notify.KafkaTopic)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("HOLD_TTL", "10m")
	t.Setenv("STAFF_MEMBERS", "Anna, Beth ,,")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CURRENCY", "EUR")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, []string{"Anna", "Beth"}, cfg.Booking.StaffMembers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "eur", cfg.Booking.Currency)
}

func TestLoadReportsAllMissing(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("PAYMENT_PROVIDER", "fake")
	t.Setenv("FAKE_WEBHOOK_SECRET", "x")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_ENV")
	assert.Contains(t, err.Error(), "DB_NAME")
}

func TestLoadMemoryStoreSkipsDatabase(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)

	t.Setenv("STORE_BACKEND", "postgres")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND")
}

func TestLoadRejectsStripeWithoutKeys(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_PROVIDER", "stripe")
	t.Setenv("STRIPE_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestRateLimitNormalization(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestCacheMethods(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()

	client, err := NewRedisClient(RedisConfig{Addr: addr})
	require.NoError(t, err)
	require.NotNil(t, client)
	defer client.Close()

	// unreachable server: nil client plus the ping error
	mr.Close()
	client, err = NewRedisClient(RedisConfig{Addr: addr})
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestLoadRedisConfigHostPort(t *testing.T) {
	t.Setenv("REDIS_ADDR", "ignored:1")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)
}
