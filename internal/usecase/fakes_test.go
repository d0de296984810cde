package usecase

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/strategy"
	applogger "StockVote/pkg/logger"

	"github.com/stretchr/testify/require"
)

var barsStart = time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

func testSeries(id string, n int) models.PriceSeries {
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 50 + 3*math.Sin(float64(i)/5)
		bars[i] = models.PriceBar{
			Timestamp: barsStart.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1000, Amount: c * 1000,
		}
	}
	return models.PriceSeries{InstrumentID: id, Bars: bars}
}

type fakeProvider struct {
	mu      sync.Mutex
	bars    int
	fail    map[string]error
	gate    chan struct{}
	started chan string
	calls   int
}

func (p *fakeProvider) FetchSeries(ctx context.Context, id string, from, to time.Time) (models.PriceSeries, error) {
	p.mu.Lock()
	p.calls++
	err := p.fail[id]
	p.mu.Unlock()
	if p.started != nil {
		p.started <- id
	}
	if p.gate != nil {
		<-p.gate
	}
	if err != nil {
		return models.PriceSeries{}, err
	}
	n := p.bars
	if n == 0 {
		n = 120
	}
	return testSeries(id, n), nil
}

type fakeStore struct {
	mu          sync.Mutex
	batches     map[string]models.BatchRun
	saved       map[string][]models.ConsensusResult
	createErr   error
	saveErr     error
	healthErr   error
	finalizeErr error
	finalized   int
	cutoff      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{batches: map[string]models.BatchRun{}, saved: map[string][]models.ConsensusResult{}}
}

func (s *fakeStore) CreateBatch(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.batches[run.ID] = *run
	return nil
}

func (s *fakeStore) SaveInstrument(_ context.Context, batchID string, res *models.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved[batchID] = append(s.saved[batchID], *res)
	return nil
}

func (s *fakeStore) FinalizeBatch(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalized++
	if s.finalizeErr != nil {
		return s.finalizeErr
	}
	s.batches[run.ID] = *run
	return nil
}

func (s *fakeStore) GetBatch(_ context.Context, id string) (*models.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.batches[id]
	if !ok {
		return nil, domrepo.ErrBatchNotFound
	}
	return &run, nil
}

func (s *fakeStore) BatchResults(_ context.Context, batchID string) ([]models.StrategyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StrategyResult
	for _, c := range s.saved[batchID] {
		out = append(out, c.PerStrategy...)
	}
	return out, nil
}

func (s *fakeStore) SignalStats(_ context.Context, since time.Time, name string) (*models.SignalStats, error) {
	return &models.SignalStats{Strategy: name, Since: since, Counts: map[models.Signal]int{}}, nil
}

func (s *fakeStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cutoff = cutoff
	return 3, nil
}

func (s *fakeStore) Health(context.Context) error { return s.healthErr }

func (s *fakeStore) savedCount(batchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved[batchID])
}

type fakePublisher struct {
	mu        sync.Mutex
	consensus int
	batches   []models.BatchRun
}

func (p *fakePublisher) PublishConsensus(context.Context, string, *models.ConsensusResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consensus++
	return nil
}

func (p *fakePublisher) PublishBatch(_ context.Context, run *models.BatchRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, *run)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeUniverse struct {
	ids   []string
	limit int
}

func (u *fakeUniverse) ListInstruments(_ context.Context, limit int) ([]string, error) {
	u.limit = limit
	if limit > 0 && limit < len(u.ids) {
		return u.ids[:limit], nil
	}
	return u.ids, nil
}

// stubStrategy votes a fixed signal, or fails or panics on demand.
type stubStrategy struct {
	name     string
	lookback int
	signal   models.Signal
	conf     float64
	err      error
	panics   bool
}

func (s *stubStrategy) Name() string        { return s.name }
func (s *stubStrategy) Description() string { return "stub " + s.name }
func (s *stubStrategy) Lookback() int       { return s.lookback }

func (s *stubStrategy) ComputeIndicators(series models.PriceSeries) (*strategy.IndicatorTable, error) {
	if s.panics {
		panic("boom")
	}
	if s.err != nil {
		return nil, s.err
	}
	t := strategy.NewIndicatorTable(series)
	t.Set("close", series.Closes())
	return t, nil
}

func (s *stubStrategy) GenerateSignal(t *strategy.IndicatorTable) (models.StrategyResult, error) {
	return models.StrategyResult{
		Signal:      s.signal,
		Confidence:  s.conf,
		Reasons:     []string{s.name + " says " + string(s.signal)},
		Indicators:  map[string]models.IndicatorValue{"close": models.Num(t.Last("close"))},
		WindowStart: t.Series.Start(),
		WindowEnd:   t.Series.End(),
		DataPoints:  t.Len(),
	}, nil
}

var errStub = errors.New("stub fault")

func stubRegistry(t *testing.T, stubs ...*stubStrategy) *strategy.Registry {
	t.Helper()
	r := strategy.NewRegistry()
	for _, s := range stubs {
		require.NoError(t, r.Register(s.name, func() strategy.Strategy { return s }))
	}
	return r
}

func defaultStubs() []*stubStrategy {
	return []*stubStrategy{
		{name: "up", lookback: 10, signal: models.SignalBuy, conf: 0.8},
		{name: "up2", lookback: 10, signal: models.SignalBuy, conf: 0.6},
		{name: "flat", lookback: 10, signal: models.SignalHold, conf: 0.5},
	}
}

func newTestAnalyzer(t *testing.T, p domrepo.MarketDataProvider, r *strategy.Registry, opts ...AnalyzerOption) *Analyzer {
	t.Helper()
	e, err := consensus.New(consensus.DefaultThresholds())
	require.NoError(t, err)
	return NewAnalyzer(p, r, e, applogger.Nop(), opts...)
}
