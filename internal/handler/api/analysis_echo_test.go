package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/repository"
	"StockVote/internal/strategy"
	"StockVote/internal/usecase"
	"StockVote/pkg/cache"
	applogger "StockVote/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unknownBatch = "0b6f3c1e-8f7a-4e55-9a43-0d6e2b1c9f10"

var fixedNow = time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

type waveProvider struct {
	mu    sync.Mutex
	gate  chan struct{}
	miss  map[string]bool
	calls int
}

func (p *waveProvider) fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *waveProvider) FetchSeries(ctx context.Context, id string, from, to time.Time) (models.PriceSeries, error) {
	p.mu.Lock()
	p.calls++
	gate, missing := p.gate, p.miss[id]
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if missing {
		return models.PriceSeries{}, domrepo.ErrNotFound
	}
	bars := make([]models.PriceBar, 160)
	start := to.Add(-160 * 15 * time.Minute)
	for i := range bars {
		c := 20 + 2*math.Sin(float64(i)/7) + float64(i)*0.01
		bars[i] = models.PriceBar{
			Timestamp: start.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c, High: c * 1.01, Low: c * 0.99, Close: c,
			Volume: 1000 + float64(i%9)*100, Amount: c * 1000,
		}
	}
	return models.PriceSeries{InstrumentID: id, Bars: bars}, nil
}

type memoryStore struct {
	mu      sync.Mutex
	batches map[string]models.BatchRun
	results map[string][]models.StrategyResult
}

func newMemoryStore() *memoryStore {
	return &memoryStore{batches: map[string]models.BatchRun{}, results: map[string][]models.StrategyResult{}}
}

func (s *memoryStore) CreateBatch(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[run.ID] = *run
	return nil
}

func (s *memoryStore) SaveInstrument(_ context.Context, batchID string, res *models.ConsensusResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[batchID] = append(s.results[batchID], res.PerStrategy...)
	return nil
}

func (s *memoryStore) FinalizeBatch(_ context.Context, run *models.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[run.ID] = *run
	return nil
}

func (s *memoryStore) GetBatch(_ context.Context, id string) (*models.BatchRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.batches[id]
	if !ok {
		return nil, domrepo.ErrBatchNotFound
	}
	return &run, nil
}

func (s *memoryStore) BatchResults(_ context.Context, batchID string) ([]models.StrategyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StrategyResult(nil), s.results[batchID]...), nil
}

func (s *memoryStore) SignalStats(_ context.Context, since time.Time, name string) (*models.SignalStats, error) {
	return &models.SignalStats{Strategy: name, Since: since, Total: 2, Counts: map[models.Signal]int{models.SignalBuy: 2}}, nil
}

func (s *memoryStore) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }
func (s *memoryStore) Health(context.Context) error                              { return nil }

type fixture struct {
	e        *echo.Echo
	provider *waveProvider
	engine   *usecase.BatchEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg, err := strategy.NewDefaultRegistry()
	require.NoError(t, err)
	eng, err := consensus.New(consensus.DefaultThresholds())
	require.NoError(t, err)
	p := &waveProvider{miss: map[string]bool{}}
	store := newMemoryStore()
	analyzer := usecase.NewAnalyzer(p, reg, eng, applogger.Nop())
	batches := usecase.NewBatchEngine(analyzer, store, usecase.BatchConfig{Workers: 2, WindowDays: 30}, applogger.Nop())
	t.Cleanup(func() {
		p.mu.Lock()
		if p.gate != nil {
			close(p.gate)
			p.gate = nil
		}
		p.mu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = batches.Shutdown(ctx)
	})

	h := NewAnalysisEchoHandler(applogger.Nop(), analyzer, batches, usecase.NewReportService(store, eng),
		WithStreamInterval(10*time.Millisecond), WithHandlerClock(func() time.Time { return fixedNow }))
	e := echo.New()
	h.RegisterRoutes(e)
	return &fixture{e: e, provider: p, engine: batches}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (f *fixture) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (f *fixture) startBatch(t *testing.T, body string) models.BatchRun {
	t.Helper()
	code, env := f.do(t, http.MethodPost, "/api/batches", body)
	require.Equal(t, http.StatusAccepted, code, string(env.Data))
	var run models.BatchRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	return run
}

func (f *fixture) wait(t *testing.T, id string) {
	t.Helper()
	h, ok := f.engine.Handle(id)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := h.Wait(ctx)
	require.NoError(t, err)
	// the handle leaves the running set right after Done closes
	require.Eventually(t, func() bool {
		_, running := f.engine.Handle(id)
		return !running
	}, 2*time.Second, 5*time.Millisecond)
}

func TestStrategies(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/api/strategies", "")
	require.Equal(t, http.StatusOK, code)

	var infos []strategy.Info
	require.NoError(t, json.Unmarshal(env.Data, &infos))
	assert.Len(t, infos, 6)
}

func TestBatchLifecycle(t *testing.T) {
	f := newFixture(t)
	run := f.startBatch(t, `{"name":"nightly","instruments":["000001.SZ","600000","sz.000002"],"days":10}`)
	assert.Equal(t, models.BatchRunning, run.Status)
	assert.Equal(t, 3, run.UniverseSize)
	assert.Len(t, run.Strategies, 6)
	f.wait(t, run.ID)

	code, env := f.do(t, http.MethodGet, "/api/batches/"+run.ID, "")
	require.Equal(t, http.StatusOK, code)
	var got models.BatchRun
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.BatchCompleted, got.Status)
	assert.Equal(t, 3, got.Attempted())

	code, env = f.do(t, http.MethodGet, "/api/batches/"+run.ID+"/results?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	var report usecase.BatchReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, run.ID, report.Summary.Batch.ID)
	assert.Len(t, report.Summary.Strategies, 6)
	assert.LessOrEqual(t, len(report.Top), 3)

	code, _ = f.do(t, http.MethodPost, "/api/batches/"+run.ID+"/cancel", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestStartBatchSetupFaults(t *testing.T) {
	f := newFixture(t)
	for name, body := range map[string]string{
		"unknown strategy":  `{"instruments":["000001.SZ"],"strategies":["astrology"]}`,
		"bad instrument":    `{"instruments":["AAPL"]}`,
		"empty universe":    `{}`,
		"days out of range": `{"instruments":["000001.SZ"],"days":9999}`,
	} {
		t.Run(name, func(t *testing.T) {
			code, _ := f.do(t, http.MethodPost, "/api/batches", body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestUnknownBatch(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/api/batches/"+unknownBatch, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodPost, "/api/batches/"+unknownBatch+"/cancel", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/batches/"+unknownBatch+"/results", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/batches/not-a-uuid/results", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/batches/"+unknownBatch+"/results?signal=maybe", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelRunningBatch(t *testing.T) {
	f := newFixture(t)
	f.provider.mu.Lock()
	f.provider.gate = make(chan struct{})
	f.provider.mu.Unlock()

	run := f.startBatch(t, `{"instruments":["000001.SZ","000002.SZ","000003.SZ","000004.SZ"],"concurrency":1}`)
	code, _ := f.do(t, http.MethodPost, "/api/batches/"+run.ID+"/cancel", "")
	assert.Equal(t, http.StatusAccepted, code)

	f.provider.mu.Lock()
	close(f.provider.gate)
	f.provider.gate = nil
	f.provider.mu.Unlock()
	f.wait(t, run.ID)

	_, env := f.do(t, http.MethodGet, "/api/batches/"+run.ID, "")
	var got models.BatchRun
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, models.BatchFailed, got.Status)
	assert.Equal(t, "cancelled", got.Error)
	assert.Less(t, got.Attempted(), 4)
}

func TestAnalyzeInstrument(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/api/instruments/000001.SZ/analysis?strategies=kdj,%20macd&days=5", "")
	require.Equal(t, http.StatusOK, code, string(env.Data))

	var res models.ConsensusResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "sz.000001", res.InstrumentID)
	require.Len(t, res.PerStrategy, 2)
	assert.Equal(t, strategy.KDJName, res.PerStrategy[0].StrategyName)
	assert.Equal(t, strategy.MACDName, res.PerStrategy[1].StrategyName)
}

func TestAnalyzeInstrumentErrors(t *testing.T) {
	f := newFixture(t)
	f.provider.miss["sz.000009"] = true

	code, _ := f.do(t, http.MethodGet, "/api/instruments/000009.SZ/analysis", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = f.do(t, http.MethodGet, "/api/instruments/000001.SZ/analysis?strategies=nope", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/instruments/XYZ/analysis", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestAnalyzeInstrumentReusesSeriesWithinBar(t *testing.T) {
	reg, err := strategy.NewDefaultRegistry()
	require.NoError(t, err)
	eng, err := consensus.New(consensus.DefaultThresholds())
	require.NoError(t, err)
	p := &waveProvider{miss: map[string]bool{}}
	cached := repository.NewCachedMarketData(p, cache.NewMemoryCache(cache.WithMemoryCleanup(0)), time.Hour, applogger.Nop())
	analyzer := usecase.NewAnalyzer(cached, reg, eng, applogger.Nop())

	now := fixedNow.Add(3 * time.Minute)
	h := NewAnalysisEchoHandler(applogger.Nop(), analyzer, nil, nil,
		WithBarStep(15*time.Minute), WithHandlerClock(func() time.Time { return now }))
	e := echo.New()
	h.RegisterRoutes(e)
	f := &fixture{e: e, provider: p}
	analyze := func(query string) {
		t.Helper()
		code, env := f.do(t, http.MethodGet, "/api/instruments/000001.SZ/analysis?strategies=kdj"+query, "")
		require.Equal(t, http.StatusOK, code, string(env.Data))
	}

	analyze("")
	now = now.Add(7 * time.Minute)
	analyze("")
	assert.Equal(t, 1, p.fetches(), "15:03 and 15:10 share the 15:00 bar")

	now = now.Add(15 * time.Minute)
	analyze("")
	assert.Equal(t, 2, p.fetches(), "15:25 starts a new window")

	analyze("&refresh=true")
	assert.Equal(t, 3, p.fetches(), "refresh drops the cached window")
}

func TestSignalStats(t *testing.T) {
	f := newFixture(t)
	code, env := f.do(t, http.MethodGet, "/api/signals/stats?strategy=rsi&days=3", "")
	require.Equal(t, http.StatusOK, code)

	var stats models.SignalStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, "rsi", stats.Strategy)
	assert.Equal(t, 2, stats.Total)
}

func TestStreamFinishedBatch(t *testing.T) {
	f := newFixture(t)
	run := f.startBatch(t, `{"instruments":["000001.SZ"]}`)
	f.wait(t, run.ID)

	srv := httptest.NewServer(f.e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/batches/" + run.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var got models.BatchRun
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, models.BatchCompleted, got.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
}

func TestStreamUnknownBatch(t *testing.T) {
	f := newFixture(t)
	code, _ := f.do(t, http.MethodGet, "/api/batches/"+unknownBatch+"/stream", "")
	assert.Equal(t, http.StatusNotFound, code)
}
