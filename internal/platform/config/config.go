package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string

	HTTP         HTTPConfig
	JWT          JWTConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	KycRecords   KycRecordsConfig
	Org          OrgConfig
	Notification NotificationConfig
	Tracing      TracingConfig
}

// HTTPConfig bounds how long a client may hold a connection or a handler may
// run. RequestTimeout applies to authenticated routes only.
type HTTPConfig struct {
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	RequestTimeout    time.Duration
	ShutdownTimeout   time.Duration
}

// JWTConfig configures validation of identity subsystem tokens.
type JWTConfig struct {
	SigningKey string
	Issuer     string
	Audience   string
}

// DatabaseConfig configures the Postgres pool. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
}

// RedisConfig configures the shared organization snapshot cache. An empty URL
// keeps the cache process-local.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures transition notifications. Without brokers
// notifications are only logged.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// KycRecordsConfig locates the KYC data subsystem. An empty URL selects the
// in-memory records adapter.
type KycRecordsConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type OrgConfig struct {
	SnapshotTTL     time.Duration
	SuperAdminOrder int
}

type NotificationConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// TracingConfig selects the span exporter. An empty OTLPEndpoint keeps spans
// in-process (sampled but never exported).
type TracingConfig struct {
	OTLPEndpoint string
	SampleRatio  float64
}

// IsProduction reports whether dev-only defaults must be rejected.
func (s Server) IsProduction() bool {
	return s.Environment == "production"
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:        envString("KYCFLOW_ADDR", ":8080"),
		Environment: envString("KYCFLOW_ENV", "development"),
		LogLevel:    envString("LOG_LEVEL", "info"),
		HTTP: HTTPConfig{
			ReadHeaderTimeout: envDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       envDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      envDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:       envDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			RequestTimeout:    envDuration("HTTP_REQUEST_TIMEOUT", 15*time.Second),
			ShutdownTimeout:   envDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		JWT: JWTConfig{
			// Use a default for development - should be overridden in production
			SigningKey: envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:     envString("JWT_ISSUER", "kycflow-identity"),
			Audience:   envString("JWT_AUDIENCE", "kycflow"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			MigrateOnStart:  envBool("DATABASE_MIGRATE", true),
		},
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
			Topic:             envString("KAFKA_TOPIC", "kycflow.workflow.events"),
			ClientID:          envString("KAFKA_CLIENT_ID", "kycflow"),
			Partitions:        int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		KycRecords: KycRecordsConfig{
			BaseURL: os.Getenv("KYC_RECORDS_URL"),
			APIKey:  os.Getenv("KYC_RECORDS_API_KEY"),
			Timeout: envDuration("KYC_RECORDS_TIMEOUT", 5*time.Second),
		},
		Org: OrgConfig{
			SnapshotTTL:     envDuration("ORG_SNAPSHOT_TTL", 30*time.Second),
			SuperAdminOrder: envInt("ORG_SUPERADMIN_ORDER", 1000),
		},
		Notification: NotificationConfig{
			BufferSize:    envInt("NOTIFY_BUFFER_SIZE", 1024),
			BatchSize:     envInt("NOTIFY_BATCH_SIZE", 100),
			FlushInterval: envDuration("NOTIFY_FLUSH_INTERVAL", time.Second),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			SampleRatio:  envFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
