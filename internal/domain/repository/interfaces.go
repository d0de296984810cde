package repository

import (
	"context"
	"errors"
	"time"

	"StockVote/internal/domain/models"
)

var (
	// ErrNotFound means the provider has no data for the instrument.
	ErrNotFound = errors.New("instrument not found")
	// ErrUnavailable means the data source could not be reached.
	ErrUnavailable = errors.New("market data unavailable")
	// ErrBatchNotFound is returned by stores for unknown batch ids.
	ErrBatchNotFound = errors.New("batch not found")
)

// MarketDataProvider provides price bars for one instrument and window.
type MarketDataProvider interface {
	FetchSeries(ctx context.Context, instrumentID string, from, to time.Time) (models.PriceSeries, error)
}

// SeriesInvalidator is implemented by providers that cache series.
type SeriesInvalidator interface {
	Invalidate(ctx context.Context, instrumentID string) error
}

// UniverseSource lists instruments ranked by recent traded value.
type UniverseSource interface {
	ListInstruments(ctx context.Context, limit int) ([]string, error)
}

// ResultStore persists batches and per-instrument results.
// SaveInstrument must be atomic per instrument.
type ResultStore interface {
	CreateBatch(ctx context.Context, run *models.BatchRun) error
	SaveInstrument(ctx context.Context, batchID string, res *models.ConsensusResult) error
	FinalizeBatch(ctx context.Context, run *models.BatchRun) error
	GetBatch(ctx context.Context, id string) (*models.BatchRun, error)
	BatchResults(ctx context.Context, batchID string) ([]models.StrategyResult, error)
	SignalStats(ctx context.Context, since time.Time, strategy string) (*models.SignalStats, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Health(ctx context.Context) error
}

// EventPublisher emits analysis events to downstream consumers.
type EventPublisher interface {
	PublishConsensus(ctx context.Context, batchID string, res *models.ConsensusResult) error
	PublishBatch(ctx context.Context, run *models.BatchRun) error
	Close() error
}

type Metrics interface {
	RecordBatch(status string, seconds float64)
	RecordInstrument(outcome string)
	RecordStrategy(strategy, status string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
