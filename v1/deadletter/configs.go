package deadletter

import (
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// DefaultRequiredAcks waits for all in-sync replicas.
	DefaultRequiredAcks = int(kafka.RequireAll)

	// DefaultMaxAttempts is the number of delivery attempts per message.
	DefaultMaxAttempts = 3

	// DefaultWriteTimeout bounds a single write to the brokers.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultBatchSize is the async batch size.
	DefaultBatchSize = 100

	// DefaultBatchTimeout is the async flush interval.
	DefaultBatchTimeout = time.Second
)

// Config defines where failed fire-and-forget executions are published.
type Config struct {
	// Brokers is the list of Kafka bootstrap addresses.
	Brokers []string `yaml:"brokers" envconfig:"DEADLETTER_BROKERS"`

	// Topic receives one JSON message per failed execution.
	Topic string `yaml:"topic" envconfig:"DEADLETTER_TOPIC"`

	// Service is copied into every message so consumers can tell producers apart.
	Service string `yaml:"service" envconfig:"DEADLETTER_SERVICE"`

	RequiredAcks int           `yaml:"required_acks" envconfig:"DEADLETTER_REQUIRED_ACKS"`
	MaxAttempts  int           `yaml:"max_attempts" envconfig:"DEADLETTER_MAX_ATTEMPTS"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"DEADLETTER_WRITE_TIMEOUT"`

	// Async publishes in the background; Report then never waits for the brokers
	// and delivery errors only reach the Kafka error logger.
	Async        bool          `yaml:"async" envconfig:"DEADLETTER_ASYNC"`
	BatchSize    int           `yaml:"batch_size" envconfig:"DEADLETTER_BATCH_SIZE"`
	BatchTimeout time.Duration `yaml:"batch_timeout" envconfig:"DEADLETTER_BATCH_TIMEOUT"`

	// CompressionCodec is one of gzip, snappy, lz4, zstd, or empty for none.
	CompressionCodec string `yaml:"compression_codec" envconfig:"DEADLETTER_COMPRESSION_CODEC"`

	TLS  TLSConfig  `yaml:"tls"`
	SASL SASLConfig `yaml:"sasl"`
}

// TLSConfig enables TLS to the brokers.
type TLSConfig struct {
	Enabled            bool   `yaml:"enabled" envconfig:"DEADLETTER_TLS_ENABLED"`
	CACertPath         string `yaml:"ca_cert_path" envconfig:"DEADLETTER_TLS_CA_CERT_PATH"`
	ClientCertPath     string `yaml:"client_cert_path" envconfig:"DEADLETTER_TLS_CLIENT_CERT_PATH"`
	ClientKeyPath      string `yaml:"client_key_path" envconfig:"DEADLETTER_TLS_CLIENT_KEY_PATH"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" envconfig:"DEADLETTER_TLS_INSECURE_SKIP_VERIFY"`
}

// SASLConfig enables SASL authentication. Mechanism is PLAIN, SCRAM-SHA-256 or
// SCRAM-SHA-512.
type SASLConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"DEADLETTER_SASL_ENABLED"`
	Mechanism string `yaml:"mechanism" envconfig:"DEADLETTER_SASL_MECHANISM"`
	Username  string `yaml:"username" envconfig:"DEADLETTER_SASL_USERNAME"`
	Password  string `yaml:"password" envconfig:"DEADLETTER_SASL_PASSWORD"`
}

func (c Config) withDefaults() Config {
	if c.RequiredAcks == 0 {
		c.RequiredAcks = DefaultRequiredAcks
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = DefaultBatchTimeout
	}
	return c
}
