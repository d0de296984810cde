package clickhouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildDSN(t *testing.T) {
	cfg := ClientConfig{
		Host: "ch", Port: 9000, Database: "market", User: "u", Password: "p",
		DialTimeout: 5 * time.Second, MaxExecTime: time.Minute,
	}
	assert.Equal(t, "clickhouse://u:p@ch:9000/market?dial_timeout=5s&max_execution_time=60", buildDSN(cfg))

	cfg = ClientConfig{Host: "ch", Port: 8123, Database: "market", UseHTTP: true}
	assert.Equal(t, "http://:@ch:8123/market", buildDSN(cfg))
}

func TestNewClient_RequiresHost(t *testing.T) {
	_, err := NewClient(WithPort(9000))
	assert.Error(t, err)
}
