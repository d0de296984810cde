package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/strategy"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/util"

	"golang.org/x/sync/errgroup"
)

// Analyzer runs strategies against one instrument.
type Analyzer struct {
	provider domrepo.MarketDataProvider
	registry *strategy.Registry
	engine   *consensus.Engine
	metrics  domrepo.Metrics
	logger   *applogger.Logger
	lookback int
	parallel int
	now      func() time.Time
}

type AnalyzerOption func(*Analyzer)

// WithLookback sets the system-wide minimum number of bars.
func WithLookback(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.lookback = n
		}
	}
}

// WithParallelStrategies runs up to n strategies of one instrument at once.
func WithParallelStrategies(n int) AnalyzerOption {
	return func(a *Analyzer) { a.parallel = n }
}

func WithAnalyzerMetrics(m domrepo.Metrics) AnalyzerOption {
	return func(a *Analyzer) {
		if m != nil {
			a.metrics = m
		}
	}
}

func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(provider domrepo.MarketDataProvider, registry *strategy.Registry, engine *consensus.Engine, logger *applogger.Logger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		provider: provider,
		registry: registry,
		engine:   engine,
		metrics:  nopMetrics{},
		logger:   logger,
		lookback: strategy.DefaultLookback,
		parallel: 1,
		now:      time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Analyzer) Engine() *consensus.Engine    { return a.engine }
func (a *Analyzer) Registry() *strategy.Registry { return a.registry }

// Analyze fetches the series of one instrument and runs every strategy on it.
// Strategy faults become skipped or failed markers; only fetch faults are returned.
func (a *Analyzer) Analyze(ctx context.Context, instrumentID string, from, to time.Time, strategies []strategy.Strategy) ([]models.StrategyResult, error) {
	start := time.Now()
	series, err := a.provider.FetchSeries(ctx, instrumentID, from, to)
	a.metrics.RecordLatency("fetch_series", time.Since(start).Seconds())
	if err != nil {
		a.metrics.RecordError("fetch")
		return nil, fmt.Errorf("fetch %s: %w", instrumentID, err)
	}
	if series.InstrumentID == "" {
		series.InstrumentID = instrumentID
	}

	results := make([]models.StrategyResult, len(strategies))
	if a.parallel <= 1 || len(strategies) <= 1 {
		for i, s := range strategies {
			results[i] = a.runStrategy(s, series)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(a.parallel)
		for i, s := range strategies {
			g.Go(func() error {
				results[i] = a.runStrategy(s, series)
				return nil
			})
		}
		_ = g.Wait()
	}

	for i := range results {
		a.metrics.RecordStrategy(results[i].StrategyName, string(results[i].Status))
	}
	return results, nil
}

// AnalyzeInstrument is an ad-hoc analysis of one instrument with a strategy
// subset. No batch is created and nothing is persisted.
func (a *Analyzer) AnalyzeInstrument(ctx context.Context, code string, names []string, from, to time.Time) (*models.ConsensusResult, error) {
	id, err := util.NormalizeInstrument(code)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		names = a.registry.Names()
	}
	strategies, err := a.registry.Resolve(names)
	if err != nil {
		return nil, err
	}
	results, err := a.Analyze(ctx, id, from, to, strategies)
	if err != nil {
		return nil, err
	}
	res := a.engine.Compute(id, results)
	return &res, nil
}

// Refresh drops cached series of one instrument so the next analysis reads
// the provider. It is a no-op when the provider does not cache.
func (a *Analyzer) Refresh(ctx context.Context, code string) error {
	id, err := util.NormalizeInstrument(code)
	if err != nil {
		return err
	}
	inv, ok := a.provider.(domrepo.SeriesInvalidator)
	if !ok {
		return nil
	}
	if err := inv.Invalidate(ctx, id); err != nil {
		return fmt.Errorf("invalidate %s: %w", id, err)
	}
	return nil
}

func (a *Analyzer) threshold(s strategy.Strategy) int {
	return max(a.lookback, s.Lookback())
}

// runStrategy never fails: faults and panics become markers.
func (a *Analyzer) runStrategy(s strategy.Strategy, series models.PriceSeries) (res models.StrategyResult) {
	need := a.threshold(s)
	defer func() {
		if p := recover(); p != nil {
			res = a.marker(s, series, models.StatusFailed, fmt.Sprintf("strategy panic: %v", p))
		}
		res.AnalyzedAt = a.now()
		res.Sanitize()
	}()

	if series.Len() < need {
		return a.marker(s, series, models.StatusSkipped, fmt.Sprintf("insufficient data points (<%d)", need))
	}
	table, err := s.ComputeIndicators(series)
	if err == nil {
		res, err = s.GenerateSignal(table)
	}
	switch {
	case errors.Is(err, strategy.ErrInsufficientData):
		return a.marker(s, series, models.StatusSkipped, fmt.Sprintf("insufficient data points (<%d)", need))
	case err != nil:
		a.logger.Debug("strategy failed",
			applogger.String("strategy", s.Name()),
			applogger.String("instrument", series.InstrumentID),
			applogger.Error(err))
		return a.marker(s, series, models.StatusFailed, err.Error())
	case !res.Signal.Valid():
		return a.marker(s, series, models.StatusFailed, fmt.Sprintf("invalid signal %q", res.Signal))
	}
	res.InstrumentID = series.InstrumentID
	res.StrategyName = s.Name()
	res.Status = models.StatusOK
	if len(res.Reasons) == 0 {
		res.Reasons = []string{"no reason given"}
	}
	return res
}

func (a *Analyzer) marker(s strategy.Strategy, series models.PriceSeries, status models.ResultStatus, reason string) models.StrategyResult {
	m := models.StrategyResult{
		InstrumentID: series.InstrumentID,
		StrategyName: s.Name(),
		Signal:       models.SignalHold,
		Reasons:      []string{reason},
		WindowStart:  series.Start(),
		WindowEnd:    series.End(),
		DataPoints:   series.Len(),
		Status:       status,
	}
	if status == models.StatusFailed {
		m.Error = reason
	}
	return m
}

type nopMetrics struct{}

func (nopMetrics) RecordBatch(string, float64)   {}
func (nopMetrics) RecordInstrument(string)       {}
func (nopMetrics) RecordStrategy(string, string) {}
func (nopMetrics) RecordError(string)            {}
func (nopMetrics) RecordLatency(string, float64) {}
