package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, 10*time.Minute, cfg.Inventory.ReservationTTL)
	assert.Equal(t, 15*time.Minute, cfg.Inventory.OfferTTL)
	assert.Equal(t, 15*time.Second, cfg.Inventory.SweepInterval)
	assert.Equal(t, 1, cfg.Inventory.MaxMissedOffers)
	assert.Equal(t, 24*time.Hour, cfg.Inventory.RefundCutoff)
	assert.Equal(t, int32(2), cfg.Inventory.CurrencyPlaces)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("RESERVATION_TTL", "2m")
	t.Setenv("WAITLIST_MAX_MISSED_OFFERS", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("SWEEP_INTERVAL", "not-a-duration")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.Inventory.ReservationTTL)
	assert.Equal(t, 3, cfg.Inventory.MaxMissedOffers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Inventory.SweepInterval, "bad values fall back to the default")
}

func TestValidate(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost/inventory")
	t.Setenv("QR_SECRET", "0123456789abcdef0123")
	t.Setenv("AUTH_TRUSTED_HEADER", "X-User-ID")
	cfg := Load()
	require.NoError(t, cfg.Validate())

	cfg.Inventory.SweepLockTTL = cfg.Inventory.SweepInterval
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.Inventory.QRSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.Auth.TrustedHeader = ""
	assert.Error(t, cfg.Validate())
}
