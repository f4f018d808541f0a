package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr         string
	LogLevel     string
	WriteTimeout time.Duration

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Attributes  AttributeStoreConfig
	Auth        AuthConfig
	Reaper      ReaperConfig
	Outbox      OutboxConfig
	Verify      VerifyConfig
}

// RedisConfig configures the optional Redis connection shared by the reaper
// lock and the verification lockout.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the notification publisher. No brokers means
// notifications are only logged.
type KafkaConfig struct {
	Brokers           []string
	NotifyTopic       string
	TopicPartitions   int32
	ReplicationFactor int16
}

// AttributeStoreConfig points at the SPARQL repository. An empty query URL
// selects the in-memory attribute store.
type AttributeStoreConfig struct {
	QueryURL  string
	UpdateURL string
	Timeout   time.Duration
}

// AuthConfig configures bearer-token validation.
type AuthConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// ReaperConfig tunes the expiry sweeps. The cadences are heuristics, so they
// are configuration rather than constants.
type ReaperConfig struct {
	ClaimInterval    time.Duration
	DonationInterval time.Duration
	BatchSize        int
	LockTTL          time.Duration
}

// OutboxConfig tunes the mirror/notification pipeline.
type OutboxConfig struct {
	PollInterval      time.Duration
	BatchSize         int
	MaxAttempts       int
	BaseRetryDelay    time.Duration
	LeaseDuration     time.Duration
	DispatchTimeout   time.Duration
	ReconcileInterval time.Duration
}

// VerifyConfig bounds wrong pickup codes per organization and donation.
type VerifyConfig struct {
	MaxAttempts  int
	Window       time.Duration
	LockDuration time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	signingKey := os.Getenv("JWT_SIGNING_KEY")
	if signingKey == "" {
		// Use a default for development - should be overridden in production
		signingKey = "dev-secret-key-change-in-production"
	}

	queryURL := os.Getenv("SPARQL_QUERY_URL")
	updateURL := os.Getenv("SPARQL_UPDATE_URL")
	if updateURL == "" && queryURL != "" {
		updateURL = strings.TrimSuffix(queryURL, "/") + "/statements"
	}

	return Server{
		Addr:         envString("FOODLINK_ADDR", ":8080"),
		LogLevel:     envString("LOG_LEVEL", "info"),
		WriteTimeout: envDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           envList("KAFKA_BROKERS"),
			NotifyTopic:       envString("NOTIFY_TOPIC", "claim-notifications"),
			TopicPartitions:   int32(envInt("NOTIFY_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("NOTIFY_TOPIC_REPLICATION", 1)),
		},
		Attributes: AttributeStoreConfig{
			QueryURL:  queryURL,
			UpdateURL: updateURL,
			Timeout:   envDuration("SPARQL_TIMEOUT", 10*time.Second),
		},
		Auth: AuthConfig{
			SigningKey: signingKey,
			Issuer:     envString("JWT_ISSUER", "foodlink"),
			Audience:   envString("JWT_AUDIENCE", "foodlink-api"),
		},
		Reaper: ReaperConfig{
			ClaimInterval:    envDuration("REAPER_CLAIM_INTERVAL", time.Minute),
			DonationInterval: envDuration("REAPER_DONATION_INTERVAL", 5*time.Minute),
			BatchSize:        envInt("REAPER_BATCH_SIZE", 200),
			LockTTL:          envDuration("REAPER_LOCK_TTL", 50*time.Second),
		},
		Outbox: OutboxConfig{
			PollInterval:      envDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
			BatchSize:         envInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:       envInt("OUTBOX_MAX_ATTEMPTS", 10),
			BaseRetryDelay:    envDuration("OUTBOX_BASE_RETRY_DELAY", 5*time.Second),
			LeaseDuration:     envDuration("OUTBOX_LEASE_DURATION", 5*time.Minute),
			DispatchTimeout:   envDuration("OUTBOX_DISPATCH_TIMEOUT", 30*time.Second),
			ReconcileInterval: envDuration("RECONCILE_INTERVAL", time.Hour),
		},
		Verify: VerifyConfig{
			MaxAttempts:  envInt("VERIFY_MAX_ATTEMPTS", 5),
			Window:       envDuration("VERIFY_ATTEMPT_WINDOW", 15*time.Minute),
			LockDuration: envDuration("VERIFY_LOCK_DURATION", 15*time.Minute),
		},
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
