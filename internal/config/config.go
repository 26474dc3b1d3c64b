// Package config provides configuration structures and validation for the application.
// It handles environment-based configuration for both binaries: the HTTP gateway
// that numbers, imports and exports documents, and the reconciliation worker.
package config

import (
	"errors"
	"strings"
	"time"
)

// Config holds the complete application configuration with settings for all components.
// Each field represents a major subsystem's configuration and is validated during
// application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Kafka       KafkaConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Outbox      OutboxConfig
	WorkerPool  WorkerPoolConfig
	Sequence    SequenceConfig
	Matcher     MatcherConfig
	Sweeper     SweeperConfig
	Export      ExportConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// KafkaConfig contains Kafka configuration
type KafkaConfig struct {
	Brokers           string
	DocumentTopic     string // Topic carrying DocumentEvents
	NumPartitions     int
	ReplicationFactor int
	ConsumerGroup     string
	MinBytes          int
	MaxBytes          int
	MaxWait           time.Duration
	StartOffset       int64
	DLQTopic          string
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// RedisConfig contains Redis configuration. An empty Addr disables the
// export lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// Enabled reports whether a Redis server is configured
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

// StorageConfig contains S3-compatible object storage configuration. An empty
// Bucket keeps export files in the response only.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// Enabled reports whether export files are uploaded
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}

// OutboxConfig contains outbox relay configuration
type OutboxConfig struct {
	PollingInterval  time.Duration
	BatchSize        int
	MaxRetryAttempts int // Maximum number of publish attempts per message
}

// WorkerPoolConfig contains worker pool configuration
type WorkerPoolConfig struct {
	Size int // Maximum number of workers in the pool
}

// SequenceConfig bounds the allocator's retry loop
type SequenceConfig struct {
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

// MatcherConfig contains reconciliation matcher configuration
type MatcherConfig struct {
	MaxCandidateAttempts int    // Candidates tried per document before giving up
	CreatedBy            string // Recorded on links created automatically
}

// SweeperConfig contains the periodic re-link sweep configuration
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	Lookback  time.Duration
}

// ExportConfig contains accounting export configuration
type ExportConfig struct {
	Encoding string // utf-8 or windows-1252
	LockTTL  time.Duration
	AppName  string // Written into the EXTF header
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Kafka config
	if len(c.Kafka.Brokers) == 0 {
		validationErrors = append(validationErrors, "KAFKA_BROKERS is required")
	}
	if c.Kafka.DocumentTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DOCUMENT_TOPIC is required")
	}
	if c.Kafka.ConsumerGroup == "" {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_GROUP is required")
	}
	if c.Kafka.MinBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MIN_BYTES must be greater than 0")
	}
	if c.Kafka.MaxBytes <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_BYTES must be greater than 0")
	}
	if c.Kafka.MaxWait <= 0 {
		validationErrors = append(validationErrors, "KAFKA_CONSUMER_MAX_WAIT must be greater than 0")
	}
	if c.Kafka.DLQTopic == "" {
		validationErrors = append(validationErrors, "KAFKA_DLQ_TOPIC is required")
	}

	// Validate PostgreSQL config
	if c.Postgres.URL == "" {
		validationErrors = append(validationErrors, "POSTGRES_URL is required")
	}
	if c.Postgres.MaxConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
	}
	if c.Postgres.MinConns <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
	}
	if c.Postgres.ConnMaxLifetime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
	}
	if c.Postgres.ConnMaxIdleTime <= 0 {
		validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Validate MongoDB config
	if c.MongoDB.URI == "" {
		validationErrors = append(validationErrors, "MONGO_URI is required")
	}
	if c.MongoDB.Database == "" {
		validationErrors = append(validationErrors, "MONGO_DATABASE is required")
	}
	if c.MongoDB.Timeout <= 0 {
		validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
	}
	if c.MongoDB.MaxPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MinPoolSize <= 0 {
		validationErrors = append(validationErrors, "MONGO_MIN_POOL_SIZE must be greater than 0")
	}
	if c.MongoDB.MaxConnIdleTime <= 0 {
		validationErrors = append(validationErrors, "MONGO_MAX_CONN_IDLE_TIME must be greater than 0")
	}

	// Redis and storage are optional, but half a configuration is a mistake
	if c.Redis.Enabled() && c.Redis.Timeout <= 0 {
		validationErrors = append(validationErrors, "REDIS_TIMEOUT must be greater than 0")
	}
	if c.Storage.Enabled() && c.Storage.Region == "" {
		validationErrors = append(validationErrors, "STORAGE_REGION is required when STORAGE_BUCKET is set")
	}
	if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		validationErrors = append(validationErrors, "STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY must be set together")
	}

	// Validate Outbox config
	if c.Outbox.PollingInterval <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_POLLING_INTERVAL must be greater than 0")
	}
	if c.Outbox.BatchSize <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_BATCH_SIZE must be greater than 0")
	}
	if c.Outbox.MaxRetryAttempts <= 0 {
		validationErrors = append(validationErrors, "OUTBOX_MAX_RETRY_ATTEMPTS must be greater than 0")
	}

	// Validate WorkerPool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	// Validate Sequence config
	if c.Sequence.MaxAttempts <= 0 {
		validationErrors = append(validationErrors, "SEQUENCE_MAX_ATTEMPTS must be greater than 0")
	}
	if c.Sequence.RetryBaseDelay <= 0 {
		validationErrors = append(validationErrors, "SEQUENCE_RETRY_BASE_DELAY must be greater than 0")
	}
	if c.Sequence.RetryMaxDelay < c.Sequence.RetryBaseDelay {
		validationErrors = append(validationErrors, "SEQUENCE_RETRY_MAX_DELAY must not be less than SEQUENCE_RETRY_BASE_DELAY")
	}

	// Validate Matcher config
	if c.Matcher.MaxCandidateAttempts <= 0 {
		validationErrors = append(validationErrors, "MATCHER_MAX_CANDIDATE_ATTEMPTS must be greater than 0")
	}

	// Validate Sweeper config
	if c.Sweeper.Interval <= 0 {
		validationErrors = append(validationErrors, "SWEEP_INTERVAL must be greater than 0")
	}
	if c.Sweeper.BatchSize <= 0 {
		validationErrors = append(validationErrors, "SWEEP_BATCH_SIZE must be greater than 0")
	}
	if c.Sweeper.Lookback <= 0 {
		validationErrors = append(validationErrors, "SWEEP_LOOKBACK must be greater than 0")
	}

	// Validate Export config
	switch strings.ToLower(c.Export.Encoding) {
	case "utf-8", "windows-1252":
	default:
		validationErrors = append(validationErrors, "EXPORT_ENCODING must be utf-8 or windows-1252")
	}
	if c.Export.LockTTL <= 0 {
		validationErrors = append(validationErrors, "EXPORT_LOCK_TTL must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
