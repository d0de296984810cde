package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	applogger "StockVote/pkg/logger"
)

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests" default:"1"`
	Interval            time.Duration `yaml:"interval" default:"60s"`
	Timeout             time.Duration `yaml:"timeout" default:"30s"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" default:"5"`
}

// ResilientMarketData throttles and circuit-breaks an inner provider.
// Only ErrUnavailable counts as a breaker failure; a missing instrument
// is a normal answer.
type ResilientMarketData struct {
	inner   domrepo.MarketDataProvider
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

func NewResilientMarketData(inner domrepo.MarketDataProvider, perSec float64, burst int, bc BreakerConfig, l *applogger.Logger) *ResilientMarketData {
	if l == nil {
		l = applogger.Nop()
	}
	limit := rate.Inf
	if perSec > 0 {
		limit = rate.Limit(perSec)
	}
	if burst <= 0 {
		burst = 1
	}
	threshold := bc.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	st := gobreaker.Settings{
		Name:        "market_data",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			l.Warn("circuit breaker state change",
				applogger.String("breaker", name),
				applogger.String("from", from.String()),
				applogger.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return !errors.Is(err, domrepo.ErrUnavailable)
		},
	}
	return &ResilientMarketData{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

func (r *ResilientMarketData) FetchSeries(ctx context.Context, instrumentID string, from, to time.Time) (models.PriceSeries, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.PriceSeries{}, fmt.Errorf("rate limit %s: %w", instrumentID, err)
	}
	out, err := r.cb.Execute(func() (interface{}, error) {
		return r.inner.FetchSeries(ctx, instrumentID, from, to)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return models.PriceSeries{}, fmt.Errorf("fetch %s: %w: %w", instrumentID, domrepo.ErrUnavailable, err)
		}
		return models.PriceSeries{}, err
	}
	return out.(models.PriceSeries), nil
}

// State exposes the breaker state for health reporting.
func (r *ResilientMarketData) State() string { return r.cb.State().String() }

// Health fails while the breaker is open, so /healthz reports the outage.
func (r *ResilientMarketData) Health(context.Context) error {
	if st := r.State(); st == gobreaker.StateOpen.String() {
		return fmt.Errorf("%w: market data breaker %s", domrepo.ErrUnavailable, st)
	}
	return nil
}
