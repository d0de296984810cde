package kafka

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// ProducerConfig is the kafka.producer block of the application config.
// Brokers come from the shared kafka.brokers list.
type ProducerConfig struct {
	Brokers      []string      `yaml:"-"`
	RequiredAcks int           `yaml:"required_acks" default:"-1"`
	Compression  string        `yaml:"compression" default:"snappy"`
	MaxAttempts  int           `yaml:"max_attempts" default:"3"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"200ms"`
	Async        bool          `yaml:"async"`
	HashByKey    bool          `yaml:"-"`
}

// DefaultProducerConfig returns the producer defaults from the struct tags.
func DefaultProducerConfig() ProducerConfig {
	var c ProducerConfig
	_ = defaults.Set(&c)
	return c
}

func (c ProducerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	if c.RequiredAcks < -1 || c.RequiredAcks > 1 {
		return fmt.Errorf("required_acks must be -1, 0 or 1, got %d", c.RequiredAcks)
	}
	if _, ok := compressions[c.Compression]; !ok {
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	return nil
}

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithProducerConfig applies a loaded kafka.producer block. Brokers and the
// balancer choice set by other options are kept.
func WithProducerConfig(pc ProducerConfig) ProducerOption {
	return func(c *ProducerConfig) {
		brokers, hash := c.Brokers, c.HashByKey
		*c = pc
		if len(c.Brokers) == 0 {
			c.Brokers = brokers
		}
		c.HashByKey = c.HashByKey || hash
	}
}

// WithHashByKey routes equal keys to one partition, which keeps the events
// of an instrument in order.
func WithHashByKey(hash bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.HashByKey = hash
	}
}

// ConsumerConfig is the kafka.consumer block of the application config.
type ConsumerConfig struct {
	Brokers    []string      `yaml:"-"`
	Enabled    bool          `yaml:"enabled"`
	GroupID    string        `yaml:"group_id" default:"stockvote"`
	StartFrom  string        `yaml:"start_from" default:"earliest"`
	Workers    int           `yaml:"workers" default:"2"`
	BufferSize int           `yaml:"buffer_size" default:"64"`
	RetryMax   int           `yaml:"retry_max" default:"3"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic" default:"analysis.requests.dlq"`
	MinBytes   int           `yaml:"min_bytes" default:"1"`
	MaxBytes   int           `yaml:"max_bytes" default:"1048576"`
}

// DefaultConsumerConfig returns the consumer defaults from the struct tags.
func DefaultConsumerConfig() ConsumerConfig {
	var c ConsumerConfig
	_ = defaults.Set(&c)
	return c
}

func (c ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers are required")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group_id is required")
	}
	if c.StartFrom != "earliest" && c.StartFrom != "latest" {
		return fmt.Errorf("start_from must be earliest or latest, got %q", c.StartFrom)
	}
	if c.Workers <= 0 || c.BufferSize <= 0 {
		return fmt.Errorf("workers and buffer_size must be positive")
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.RetryMax)
	}
	return nil
}

// ConsumerOption configures Consumer.
type ConsumerOption func(*ConsumerConfig)

// WithConsumerBrokers sets Kafka brokers.
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerConfig applies a loaded kafka.consumer block, keeping brokers
// set by WithConsumerBrokers.
func WithConsumerConfig(cc ConsumerConfig) ConsumerOption {
	return func(c *ConsumerConfig) {
		brokers := c.Brokers
		*c = cc
		if len(c.Brokers) == 0 {
			c.Brokers = brokers
		}
	}
}
