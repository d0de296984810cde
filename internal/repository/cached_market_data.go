package repository

import (
	"context"
	"errors"
	"time"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/pkg/cache"
	applogger "StockVote/pkg/logger"
)

const seriesKeyPrefix = "series"

// CachedMarketData is a cache-aside decorator keyed by instrument and window.
// Cache faults never fail a fetch.
type CachedMarketData struct {
	inner domrepo.MarketDataProvider
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedMarketData(inner domrepo.MarketDataProvider, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedMarketData {
	if l == nil {
		l = applogger.Nop()
	}
	return &CachedMarketData{inner: inner, cache: c, ttl: ttl, l: l}
}

func (c *CachedMarketData) FetchSeries(ctx context.Context, instrumentID string, from, to time.Time) (models.PriceSeries, error) {
	key := seriesKey(instrumentID, from, to)
	var series models.PriceSeries
	err := c.cache.Get(ctx, key, &series)
	if err == nil && series.InstrumentID == instrumentID {
		return series, nil
	}
	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.l.Warn("series cache get failed", applogger.String("key", key), applogger.Error(err))
	}

	series, err = c.inner.FetchSeries(ctx, instrumentID, from, to)
	if err != nil {
		return models.PriceSeries{}, err
	}
	if err := c.cache.Set(ctx, key, series, c.ttl); err != nil {
		c.l.Warn("series cache set failed", applogger.String("key", key), applogger.Error(err))
	}
	return series, nil
}

// Invalidate drops every cached window of one instrument.
func (c *CachedMarketData) Invalidate(ctx context.Context, instrumentID string) error {
	return c.cache.DeleteByPattern(ctx, cache.BuildPattern(cache.GenerateKeyWithParams(seriesKeyPrefix, instrumentID)+":"))
}

func seriesKey(instrumentID string, from, to time.Time) string {
	return cache.GenerateKeyWithParams(seriesKeyPrefix, instrumentID, from.Unix(), to.Unix())
}
