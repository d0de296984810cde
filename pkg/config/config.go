package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pkgkafka "StockVote/pkg/kafka"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/postgres"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development"`
	Log         applogger.Config `yaml:"log"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		StreamInterval  time.Duration `yaml:"stream_interval" default:"1s"`
		CORS            bool          `yaml:"cors" default:"true"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Analysis   Analysis        `yaml:"analysis"`
	Retention  Retention       `yaml:"retention"`
	ClickHouse ClickHouse      `yaml:"clickhouse"`
	Postgres   postgres.Config `yaml:"postgres"`
	Redis      Redis           `yaml:"redis"`
	Kafka      Kafka           `yaml:"kafka"`
	Provider   Provider        `yaml:"provider"`
}

type Analysis struct {
	Lookback           int           `yaml:"lookback" default:"50"`
	WindowDays         int           `yaml:"window_days" default:"30"`
	BarInterval        string        `yaml:"bar_interval" default:"15m"`
	Workers            int           `yaml:"workers" default:"8"`
	ParallelStrategies int           `yaml:"parallel_strategies" default:"0"`
	Strategies         []string      `yaml:"strategies"`
	UniverseLimit      int           `yaml:"universe_limit" default:"100"`
	UniverseWindow     time.Duration `yaml:"universe_window" default:"168h"`
	ProgressEvery      int           `yaml:"progress_every" default:"10"`
	Thresholds         Thresholds    `yaml:"thresholds"`
}

type Thresholds struct {
	Strong        float64 `yaml:"strong" default:"0.8333333333"`
	Lean          float64 `yaml:"lean" default:"0.6666666667"`
	MinConfidence float64 `yaml:"min_confidence" default:"0"`
}

type Retention struct {
	Enabled  bool          `yaml:"enabled" default:"false"`
	Horizon  time.Duration `yaml:"horizon" default:"2160h"`
	Interval time.Duration `yaml:"interval" default:"24h"`
}

type ClickHouse struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"market"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	MaxOpenConns     int           `yaml:"max_open_conns" default:"16"`
	MaxIdleConns     int           `yaml:"max_idle_conns" default:"8"`
	BarsTable        string        `yaml:"bars_table" default:"market.bars_{tf}"`
}

type Redis struct {
	Enabled    bool          `yaml:"enabled" default:"false"`
	Host       string        `yaml:"host" default:"localhost"`
	Port       int           `yaml:"port" default:"6379"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db" default:"0"`
	Prefix     string        `yaml:"prefix" default:"stockvote"`
	SeriesTTL  time.Duration `yaml:"series_ttl" default:"10m"`
	MemorySize int           `yaml:"memory_size" default:"256"`
	MemoryTTL  time.Duration `yaml:"memory_ttl" default:"1m"`
	PoolSize   int           `yaml:"pool_size" default:"10"`
	MinIdle    int           `yaml:"min_idle" default:"2"`
	PoolWait   time.Duration `yaml:"pool_timeout" default:"4s"`
}

type Kafka struct {
	Enabled bool     `yaml:"enabled" default:"false"`
	Brokers []string `yaml:"brokers"`
	Topics  struct {
		Consensus string `yaml:"consensus" default:"analysis.consensus"`
		Batches   string `yaml:"batches" default:"analysis.batches"`
		Requests  string `yaml:"requests" default:"analysis.requests"`
	} `yaml:"topics"`
	Producer pkgkafka.ProducerConfig `yaml:"producer"`
	Consumer pkgkafka.ConsumerConfig `yaml:"consumer"`
}

type Provider struct {
	RatePerSec float64 `yaml:"rate_per_sec" default:"50"`
	Burst      int     `yaml:"burst" default:"10"`
	Breaker    struct {
		MaxRequests         uint32        `yaml:"max_requests" default:"1"`
		Interval            time.Duration `yaml:"interval" default:"60s"`
		Timeout             time.Duration `yaml:"timeout" default:"30s"`
		ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5"`
	} `yaml:"breaker"`
}

// Default returns a Config with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Parse applies defaults, then the YAML document on top.
func Parse(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file. An empty path yields
// the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads .env (if present), the YAML file and environment
// overrides, then validates the result.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("POSTGRES_DSN"); ok && v != "" {
		c.Postgres.DSN = v
	}
	if v, ok := lookup("CLICKHOUSE_HOST"); ok && v != "" {
		c.ClickHouse.Host = v
	}
	if v, ok := lookup("CLICKHOUSE_PASSWORD"); ok {
		c.ClickHouse.Password = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		host, port, found := strings.Cut(v, ":")
		c.Redis.Host = host
		if found {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR port: %w", err)
			}
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v, ok := lookup("ANALYSIS_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ANALYSIS_WORKERS: %w", err)
		}
		c.Analysis.Workers = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	a := c.Analysis
	if a.Lookback <= 0 {
		return fmt.Errorf("analysis.lookback must be positive, got %d", a.Lookback)
	}
	if a.WindowDays <= 0 {
		return fmt.Errorf("analysis.window_days must be positive, got %d", a.WindowDays)
	}
	if a.Workers < 0 {
		return fmt.Errorf("analysis.workers must be >= 0, got %d", a.Workers)
	}
	if a.UniverseLimit <= 0 {
		return fmt.Errorf("analysis.universe_limit must be positive, got %d", a.UniverseLimit)
	}
	th := a.Thresholds
	if th.Strong <= 0 || th.Strong > 1 || th.Lean <= 0 || th.Lean > 1 {
		return fmt.Errorf("analysis.thresholds must be within (0,1], got strong=%g lean=%g", th.Strong, th.Lean)
	}
	if th.Lean > th.Strong {
		return fmt.Errorf("analysis.thresholds.lean (%g) must not exceed strong (%g)", th.Lean, th.Strong)
	}
	if th.MinConfidence < 0 || th.MinConfidence > 1 {
		return fmt.Errorf("analysis.thresholds.min_confidence must be within [0,1], got %g", th.MinConfidence)
	}
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Retention.Enabled && c.Retention.Horizon <= 0 {
		return fmt.Errorf("retention.horizon must be positive")
	}
	return nil
}
