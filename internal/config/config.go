package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Database  DatabaseConfig
	Inventory InventoryConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type RedisConfig struct {
	Addr string
}

type KafkaConfig struct {
	Brokers []string
	GroupID string
	Topics  TopicConfig
	Enabled bool
}

type DatabaseConfig struct {
	DSN           string
	MaxOpenConns  int
	MaxIdleConns  int
	MaxLifetime   time.Duration
	MigrationsDir string
	AutoMigrate   bool
}

type TopicConfig struct {
	PaymentSucceeded    string
	PaymentFailed       string
	WaitlistOffer       string
	ReservationConfirm  string
	ReservationReleased string
	TicketRefunded      string
}

// InventoryConfig holds the engine's tunables.
type InventoryConfig struct {
	ReservationTTL   time.Duration
	OfferTTL         time.Duration
	SweepInterval    time.Duration
	SweepLockTTL     time.Duration
	SweepBatchSize   int
	MaxMissedOffers  int
	RefundCutoff     time.Duration
	CurrencyPlaces   int32
	QRSecret         string
	InstanceID       string
	LedgerMaxRetries int
}

type AuthConfig struct {
	OIDCIssuer    string
	TrustedHeader string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", ":8084"),
			ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr: getEnv("REDIS_ADDR", "localhost:6379"),
		},
		Database: DatabaseConfig{
			DSN:           getEnv("POSTGRES_DSN", ""),
			MaxOpenConns:  getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  getEnvInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:   time.Duration(getEnvInt("DB_MAX_LIFETIME_MINUTES", 5)) * time.Minute,
			MigrationsDir: getEnv("MIGRATIONS_DIR", "./migrations"),
			AutoMigrate:   getEnvBool("AUTO_MIGRATE", true),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			GroupID: getEnv("KAFKA_GROUP_ID", "ms-inventory"),
			Enabled: getEnvBool("KAFKA_ENABLED", true),
			Topics: TopicConfig{
				PaymentSucceeded:    getEnv("KAFKA_TOPIC_PAYMENT_SUCCEEDED", "payment.succeeded"),
				PaymentFailed:       getEnv("KAFKA_TOPIC_PAYMENT_FAILED", "payment.failed"),
				WaitlistOffer:       getEnv("KAFKA_TOPIC_WAITLIST_OFFER", "inventory.waitlist.offer"),
				ReservationConfirm:  getEnv("KAFKA_TOPIC_RESERVATION_CONFIRMED", "inventory.reservation.confirmed"),
				ReservationReleased: getEnv("KAFKA_TOPIC_RESERVATION_RELEASED", "inventory.reservation.released"),
				TicketRefunded:      getEnv("KAFKA_TOPIC_TICKET_REFUNDED", "inventory.ticket.refunded"),
			},
		},
		Inventory: InventoryConfig{
			ReservationTTL:   getEnvDuration("RESERVATION_TTL", 10*time.Minute),
			OfferTTL:         getEnvDuration("WAITLIST_OFFER_TTL", 15*time.Minute),
			SweepInterval:    getEnvDuration("SWEEP_INTERVAL", 15*time.Second),
			SweepLockTTL:     getEnvDuration("SWEEP_LOCK_TTL", 30*time.Second),
			SweepBatchSize:   getEnvInt("SWEEP_BATCH_SIZE", 500),
			MaxMissedOffers:  getEnvInt("WAITLIST_MAX_MISSED_OFFERS", 1),
			RefundCutoff:     getEnvDuration("REFUND_CUTOFF", 24*time.Hour),
			CurrencyPlaces:   int32(getEnvInt("CURRENCY_PLACES", 2)),
			QRSecret:         getEnv("QR_SECRET", ""),
			InstanceID:       getEnv("INSTANCE_ID", ""),
			LedgerMaxRetries: getEnvInt("LEDGER_MAX_RETRIES", 5),
		},
		Auth: AuthConfig{
			OIDCIssuer:    getEnv("OIDC_ISSUER", ""),
			TrustedHeader: getEnv("AUTH_TRUSTED_HEADER", ""),
		},
	}
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN not set")
	}
	if len(c.Inventory.QRSecret) < 16 {
		return fmt.Errorf("QR_SECRET must be at least 16 characters")
	}
	if c.Auth.OIDCIssuer == "" && c.Auth.TrustedHeader == "" {
		return fmt.Errorf("either OIDC_ISSUER or AUTH_TRUSTED_HEADER must be set")
	}
	if c.Inventory.ReservationTTL <= 0 || c.Inventory.OfferTTL <= 0 {
		return fmt.Errorf("reservation and offer TTLs must be positive")
	}
	if c.Inventory.SweepLockTTL <= c.Inventory.SweepInterval {
		return fmt.Errorf("SWEEP_LOCK_TTL must exceed SWEEP_INTERVAL")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
