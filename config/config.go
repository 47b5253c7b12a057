package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"fulfillment-service/pkg/database"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Port     string
	GRPCPort string
	JWT      JWT
	DB       DB
	Redis    Redis
	Kafka    Kafka
	Payment  Payment
	Webhook  Webhook
	Orders   Orders
	Dispatch Dispatch
	Outbox   Outbox
	Ledger   Ledger
}

type JWT struct {
	Secret   string
	Issuer   string
	Audience string
}

type DB struct {
	database.Config
}

type Redis struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	Brokers            []string
	NotificationsTopic string
	TrackingTopic      string
}

type Payment struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Webhook struct {
	Secret string
}

type Orders struct {
	TaxRate     decimal.Decimal
	CancelGrace time.Duration
}

type Dispatch struct {
	RadiusKm       float64
	TopN           int
	RetryInterval  time.Duration
	RetryThreshold time.Duration
}

type Outbox struct {
	MaxAttempts  int
	PollInterval time.Duration
}

type Ledger struct {
	AuditInterval time.Duration
}

func Load(log *zap.Logger) *Config {
	return &Config{
		Port:     getEnvDefault("APP_PORT", ":8080"),
		GRPCPort: getEnvDefault("GRPC_PORT", ":9090"),
		JWT: JWT{
			Secret:   getEnv("JWT_SECRET", log),
			Issuer:   getEnv("JWT_ISSUER", log),
			Audience: getEnv("JWT_AUDIENCE", log),
		},
		DB: DB{
			Config: database.Config{
				Host:     getEnv("DB_HOST", log),
				Port:     getEnv("DB_PORT", log),
				User:     getEnv("DB_USER", log),
				Password: getEnv("DB_PASSWORD", log),
				Name:     getEnv("DB_NAME", log),
				SSLMode:  getEnvDefault("DB_SSLMODE", "disable"),
			},
		},
		Redis: Redis{
			Enabled:  getEnvDefault("REDIS_ENABLED", "false") == "true",
			Addr:     getEnvDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvDefault("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0, log),
		},
		Kafka: Kafka{
			Brokers:            splitAndTrim(getEnvDefault("KAFKA_BROKERS", "")),
			NotificationsTopic: getEnvDefault("KAFKA_TOPIC_NOTIFICATIONS", "fulfillment.notifications"),
			TrackingTopic:      getEnvDefault("KAFKA_TOPIC_TRACKING", "fulfillment.tracking"),
		},
		Payment: Payment{
			BaseURL: getEnv("PAYMENT_BASE_URL", log),
			APIKey:  getEnv("PAYMENT_API_KEY", log),
			Timeout: getEnvDuration("PAYMENT_TIMEOUT", 10*time.Second, log),
		},
		Webhook: Webhook{
			Secret: getEnv("WEBHOOK_SECRET", log),
		},
		Orders: Orders{
			TaxRate:     getEnvDecimal("TAX_RATE", decimal.RequireFromString("0.05"), log),
			CancelGrace: getEnvDuration("CANCEL_GRACE", 2*time.Minute, log),
		},
		Dispatch: Dispatch{
			RadiusKm:       getEnvFloat("DISPATCH_RADIUS_KM", 5, log),
			TopN:           getEnvInt("DISPATCH_TOP_N", 5, log),
			RetryInterval:  getEnvDuration("DISPATCH_RETRY_INTERVAL", time.Minute, log),
			RetryThreshold: getEnvDuration("DISPATCH_RETRY_THRESHOLD", time.Minute, log),
		},
		Outbox: Outbox{
			MaxAttempts:  getEnvInt("OUTBOX_MAX_ATTEMPTS", 20, log),
			PollInterval: getEnvDuration("OUTBOX_POLL_INTERVAL", 2*time.Second, log),
		},
		Ledger: Ledger{
			AuditInterval: getEnvDuration("LEDGER_AUDIT_INTERVAL", 15*time.Minute, log),
		},
	}
}

func getEnv(key string, log *zap.Logger) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	log.Error("required environment variable is not set", zap.String("key", key))
	panic("missing required environment variable: " + key)
}

func getEnvDefault(key, def string) string {
	if val, exists := os.LookupEnv(key); exists && val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int, log *zap.Logger) int {
	s := getEnvDefault(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Warn("invalid integer, using default", zap.String("key", key), zap.String("value", s), zap.Int("default", def))
		return def
	}
	return n
}

func getEnvFloat(key string, def float64, log *zap.Logger) float64 {
	s := getEnvDefault(key, "")
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		log.Warn("invalid number, using default", zap.String("key", key), zap.String("value", s), zap.Float64("default", def))
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration, log *zap.Logger) time.Duration {
	s := getEnvDefault(key, "")
	if s == "" {
		return def
	}
	d, err := parseDurationWithDays(s)
	if err != nil {
		log.Warn("invalid duration, using default", zap.String("key", key), zap.String("value", s), zap.Duration("default", def))
		return def
	}
	return d
}

func getEnvDecimal(key string, def decimal.Decimal, log *zap.Logger) decimal.Decimal {
	s := getEnvDefault(key, "")
	if s == "" {
		return def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		log.Warn("invalid decimal, using default", zap.String("key", key), zap.String("value", s), zap.String("default", def.String()))
		return def
	}
	return d
}

// parseDurationWithDays accepts time.ParseDuration syntax plus a "d" suffix for days.
func parseDurationWithDays(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		d, err := time.ParseDuration(days + "h")
		if err != nil {
			return 0, err
		}
		return 24 * d, nil
	}
	return time.ParseDuration(s)
}

func splitAndTrim(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
