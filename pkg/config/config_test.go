package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 50, c.Analysis.Lookback)
	assert.Equal(t, 30, c.Analysis.WindowDays)
	assert.Equal(t, "15m", c.Analysis.BarInterval)
	assert.InDelta(t, 5.0/6, c.Analysis.Thresholds.Strong, 1e-9)
	assert.Equal(t, 90*24*time.Hour, c.Retention.Horizon)
	assert.Equal(t, "market.bars_{tf}", c.ClickHouse.BarsTable)
	assert.Equal(t, -1, c.Kafka.Producer.RequiredAcks)
	assert.Equal(t, "earliest", c.Kafka.Consumer.StartFrom)
	assert.Equal(t, 10, c.Redis.PoolSize)
	assert.True(t, c.Server.CORS)
	assert.Equal(t, []string{"*"}, c.Server.CORSOrigins)
	assert.Equal(t, "info", c.Log.Level)

	assert.Error(t, c.Validate(), "dsn is required")
	c.Postgres.DSN = "postgres://localhost/stockvote"
	assert.NoError(t, c.Validate())
}

func TestParseOverridesDefaults(t *testing.T) {
	doc := []byte(`
environment: production
analysis:
  workers: 16
  strategies: [macd, rsi]
  thresholds:
    strong: 0.9
postgres:
  dsn: postgres://db/stockvote
  query_timeout: 5s
kafka:
  enabled: true
  brokers: ["k1:9092"]
`)
	c, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 16, c.Analysis.Workers)
	assert.Equal(t, []string{"macd", "rsi"}, c.Analysis.Strategies)
	assert.Equal(t, 0.9, c.Analysis.Thresholds.Strong)
	assert.InDelta(t, 4.0/6, c.Analysis.Thresholds.Lean, 1e-9, "untouched fields keep defaults")
	assert.Equal(t, 5*time.Second, c.Postgres.QueryTimeout)
	assert.Equal(t, 10, c.Postgres.MaxOpenConns)
	assert.Equal(t, "analysis.consensus", c.Kafka.Topics.Consensus)
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c, err := Default()
		require.NoError(t, err)
		c.Postgres.DSN = "postgres://x"
		return c
	}
	cases := map[string]func(*Config){
		"lookback":       func(c *Config) { c.Analysis.Lookback = 0 },
		"workers":        func(c *Config) { c.Analysis.Workers = -1 },
		"strong above 1": func(c *Config) { c.Analysis.Thresholds.Strong = 1.5 },
		"lean > strong":  func(c *Config) { c.Analysis.Thresholds.Lean = 0.9 },
		"min confidence": func(c *Config) { c.Analysis.Thresholds.MinConfidence = -0.1 },
		"kafka brokers":  func(c *Config) { c.Kafka.Enabled = true },
		"clickhouse":     func(c *Config) { c.ClickHouse.Host = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	env := map[string]string{
		"POSTGRES_DSN":     "postgres://env/db",
		"REDIS_ADDR":       "cache:6380",
		"KAFKA_BROKERS":    "a:9092,b:9092",
		"ANALYSIS_WORKERS": "4",
		"LOG_LEVEL":        "debug",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	require.NoError(t, c.ApplyEnv(lookup))
	assert.Equal(t, "postgres://env/db", c.Postgres.DSN)
	assert.Equal(t, "cache", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, 4, c.Analysis.Workers)
	assert.Equal(t, "debug", c.Log.Level)

	env["ANALYSIS_WORKERS"] = "many"
	assert.Error(t, c.ApplyEnv(lookup))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  window_days: 10\n"), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, c.Analysis.WindowDays)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestSampleConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Len(t, c.Analysis.Strategies, 6)
	assert.Equal(t, time.Second, c.Server.StreamInterval)
	assert.False(t, c.Kafka.Enabled)
}
