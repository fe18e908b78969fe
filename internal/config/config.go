package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Upstream UpstreamConfig
	Security SecurityConfig
	Queue    QueueConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RabbitMQConfig configures the optional fast-path delivery queue. When
// Enabled is false the periodic scheduler alone drives delivery.
type RabbitMQConfig struct {
	Enabled            bool
	URL                string
	Host               string
	Port               string
	User               string
	Password           string
	VHost              string
	DeliveryExchange   string
	DeliveryRoutingKey string
	DeliveryQueue      string
	PrefetchCount      int
}

// UpstreamConfig identifies the Measurement Protocol collection target.
type UpstreamConfig struct {
	Endpoint      string
	MeasurementID string
	APISecret     string
	Timeout       time.Duration
}

// SecurityConfig carries the bot-detection thresholds (empirically
// chosen constants, so tunable rather than hard-coded), rate limits,
// the origin allow-list and the shared envelope secret.
type SecurityConfig struct {
	BotSignalThreshold   int
	HeaderAnomalyMin     int
	TelemetryAnomalyMin  int
	BehaviorAnomalyMin   int
	ThreatScoreThreshold int
	RateLimitPerMinute   int
	AllowedOrigins       []string
	InternalDomains      []string
	// EncryptionSecrets holds the shared envelope secrets, newest
	// first; older entries remain valid for verification so keys can
	// rotate without breaking in-flight tokens.
	EncryptionSecrets []string
	EnvelopeValidity  time.Duration
}

type QueueConfig struct {
	Interval        time.Duration
	BatchSize       int
	RetryCeiling    int
	RetentionWindow time.Duration
	WorkerCount     int
}

type SessionConfig struct {
	InactivityWindow time.Duration
}

func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	var missing []string

	get := func(key string) string {
		val := os.Getenv(key)
		if val == "" {
			missing = append(missing, key)
		}
		return val
	}

	config := &Config{
		Server: ServerConfig{
			Port: get("SERVER_PORT"),
			Host: get("SERVER_HOST"),
		},
		Database: DatabaseConfig{
			Host:     get("DB_HOST"),
			Port:     get("DB_PORT"),
			User:     get("DB_USER"),
			Password: get("DB_PASSWORD"),
			DBName:   get("DB_NAME"),
			SSLMode:  get("DB_SSLMODE"),
		},
		RabbitMQ: RabbitMQConfig{
			Enabled:            getBool("RABBITMQ_ENABLED", false),
			URL:                os.Getenv("RABBITMQ_URL"),
			Host:               os.Getenv("RABBITMQ_HOST"),
			Port:               os.Getenv("RABBITMQ_PORT"),
			User:               os.Getenv("RABBITMQ_USER"),
			Password:           os.Getenv("RABBITMQ_PASSWORD"),
			VHost:              os.Getenv("RABBITMQ_VHOST"),
			DeliveryExchange:   getDefault("RABBITMQ_DELIVERY_EXCHANGE", ""),
			DeliveryRoutingKey: getDefault("RABBITMQ_DELIVERY_ROUTING_KEY", "ga4.delivery"),
			DeliveryQueue:      getDefault("RABBITMQ_DELIVERY_QUEUE", "ga4.delivery"),
			PrefetchCount:      getInt("RABBITMQ_PREFETCH_COUNT", 10),
		},
		Upstream: UpstreamConfig{
			Endpoint:      getDefault("GA4_ENDPOINT", "https://www.google-analytics.com/mp/collect"),
			MeasurementID: get("GA4_MEASUREMENT_ID"),
			APISecret:     get("GA4_API_SECRET"),
			Timeout:       getDuration("GA4_TIMEOUT", 10*time.Second),
		},
		Security: SecurityConfig{
			BotSignalThreshold:   getInt("BOT_SIGNAL_THRESHOLD", 2),
			HeaderAnomalyMin:     getInt("BOT_HEADER_ANOMALY_MIN", 2),
			TelemetryAnomalyMin:  getInt("BOT_TELEMETRY_ANOMALY_MIN", 2),
			BehaviorAnomalyMin:   getInt("BOT_BEHAVIOR_ANOMALY_MIN", 2),
			ThreatScoreThreshold: getInt("BOT_THREAT_SCORE_THRESHOLD", 30),
			RateLimitPerMinute:   getInt("RATE_LIMIT_PER_MINUTE", 120),
			AllowedOrigins:       getList("ALLOWED_ORIGINS"),
			InternalDomains:      getList("INTERNAL_DOMAINS"),
			EncryptionSecrets:    getList("ENCRYPTION_SECRETS"),
			EnvelopeValidity:     getDuration("ENVELOPE_VALIDITY", 5*time.Minute),
		},
		Queue: QueueConfig{
			Interval:        getDuration("QUEUE_INTERVAL", 30*time.Second),
			BatchSize:       getInt("QUEUE_BATCH_SIZE", 1000),
			RetryCeiling:    getInt("QUEUE_RETRY_CEILING", 5),
			RetentionWindow: getDuration("QUEUE_RETENTION_WINDOW", 7*24*time.Hour),
			WorkerCount:     getInt("QUEUE_WORKER_COUNT", 4),
		},
		Session: SessionConfig{
			InactivityWindow: getDuration("SESSION_INACTIVITY_WINDOW", 30*time.Minute),
		},
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return config, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}

func getDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
