package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint  string
	Observability ObservabilityConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBPath            string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CacheBackend string

	Shopify ShopifyConfig
	Kafka   KafkaConfig

	AdminToken   string
	AdminTrigger TriggerLimitConfig
	Scheduler    SchedulerConfig
}

// TriggerLimitConfig paces manual admin triggers per shop.
type TriggerLimitConfig struct {
	Rate  float64
	Burst int
}

// ObservabilityConfig carries log, trace and query-log settings.
type ObservabilityConfig struct {
	LogLevel          string
	LogFormat         string
	OtelEnabled       bool
	OtelProtocol      string
	OtelSamplingRatio float64
	DBLogLevel        string
	DBSlowThreshold   time.Duration
}

type ShopifyConfig struct {
	APIVersion    string
	WebhookSecret string
	Timeout       time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type SchedulerConfig struct {
	Enabled          bool
	RunInterval      time.Duration
	ReprocessEnabled bool
	ReprocessEvery   time.Duration
}

const (
	CacheBackendDB     = "db"
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "promosync"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),
		Observability: ObservabilityConfig{
			LogLevel:          strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:         strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:       getenvBool("OTEL_ENABLED", true),
			OtelProtocol:      strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc"))),
			OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
			DBLogLevel:        strings.ToLower(strings.TrimSpace(getenv("DATABASE_LOG_LEVEL", "warn"))),
			DBSlowThreshold:   getenvDuration("DATABASE_SLOW_THRESHOLD", 200*time.Millisecond),
		},
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "promosync"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBPath:            getenv("DATABASE_PATH", "promosync.db"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword:     getenv("REDIS_PASSWORD", ""),
		RedisDB:           getenvInt("REDIS_DB", 0),
		CacheBackend:      normalizeCacheBackend(getenv("CACHE_BACKEND", CacheBackendDB)),
		Shopify: ShopifyConfig{
			APIVersion:    getenv("SHOPIFY_API_VERSION", "2025-01"),
			WebhookSecret: strings.TrimSpace(getenv("SHOPIFY_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("SHOPIFY_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "shopify.webhooks"),
			GroupID: getenv("KAFKA_GROUP_ID", "promosync"),
		},
		AdminToken: strings.TrimSpace(getenv("ADMIN_TOKEN", "")),
		AdminTrigger: TriggerLimitConfig{
			Rate:  getenvFloat("ADMIN_TRIGGER_RATE", 1.0/60),
			Burst: getenvInt("ADMIN_TRIGGER_BURST", 3),
		},
		Scheduler: SchedulerConfig{
			Enabled:          getenvBool("SCHEDULER_ENABLED", true),
			RunInterval:      getenvDuration("SCHEDULER_RUN_INTERVAL", 5*time.Minute),
			ReprocessEnabled: getenvBool("SCHEDULER_REPROCESS_ENABLED", false),
			ReprocessEvery:   getenvDuration("SCHEDULER_REPROCESS_EVERY", 24*time.Hour),
		},
	}

	return cfg
}

func (c Config) RedisEnabled() bool {
	return c.RedisAddr != ""
}

func (c Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) != ""
}

func normalizeCacheBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case CacheBackendRedis:
		return CacheBackendRedis
	case CacheBackendMemory:
		return CacheBackendMemory
	default:
		return CacheBackendDB
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
