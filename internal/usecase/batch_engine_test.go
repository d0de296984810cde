package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/strategy"
	applogger "StockVote/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%06d.SZ", i+1)
	}
	return out
}

func newTestEngine(t *testing.T, p *fakeProvider, store *fakeStore, opts ...BatchEngineOption) *BatchEngine {
	t.Helper()
	a := newTestAnalyzer(t, p, stubRegistry(t, defaultStubs()...))
	return NewBatchEngine(a, store, BatchConfig{Workers: 4, WindowDays: 30}, applogger.Nop(), opts...)
}

func waitRun(t *testing.T, h *BatchHandle) models.BatchRun {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := h.Wait(ctx)
	require.NoError(t, err)
	return run
}

func TestBatchHundredWithEightFetchFailures(t *testing.T) {
	fail := map[string]error{}
	for i := 1; i <= 8; i++ {
		fail[fmt.Sprintf("sz.%06d", i*10)] = fmt.Errorf("%w: timeout", domrepo.ErrUnavailable)
	}
	store := newFakeStore()
	pub := &fakePublisher{}
	var progressCalls, lastDone int32
	e := newTestEngine(t, &fakeProvider{fail: fail}, store, WithPublisher(pub))

	h, err := e.Start(context.Background(), BatchRequest{
		Name:        "nightly",
		Instruments: codes(100),
		Concurrency: 8,
		Progress: func(done, total int, _ string) {
			atomic.AddInt32(&progressCalls, 1)
			atomic.StoreInt32(&lastDone, int32(done))
			assert.Equal(t, 100, total)
		},
	})
	require.NoError(t, err)
	run := waitRun(t, h)

	assert.Equal(t, models.BatchCompleted, run.Status)
	assert.Equal(t, 92, run.Succeeded)
	assert.Equal(t, 8, run.Failed)
	assert.Equal(t, 100, run.UniverseSize)
	assert.True(t, run.EndTime.After(run.StartTime))
	assert.Equal(t, []string{"flat", "up", "up2"}, run.Strategies)

	assert.Equal(t, 92, store.savedCount(run.ID))
	assert.Equal(t, 1, store.finalized)
	stored, err := store.GetBatch(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, stored.Status)

	assert.Equal(t, int32(100), atomic.LoadInt32(&progressCalls))
	assert.Equal(t, int32(100), atomic.LoadInt32(&lastDone))
	assert.Len(t, h.Outcomes(), 100)
	assert.Equal(t, 92, pub.consensus)
	require.Len(t, pub.batches, 1)
	assert.Equal(t, models.BatchCompleted, pub.batches[0].Status)

	_, running := e.Handle(run.ID)
	assert.False(t, running)
}

func TestBatchSetupFaults(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, &fakeProvider{}, store)

	_, err := e.Start(context.Background(), BatchRequest{Instruments: codes(3), Strategies: []string{"up", "ichimoku"}})
	assert.True(t, errors.Is(err, strategy.ErrUnknownStrategy))

	_, err = e.Start(context.Background(), BatchRequest{})
	assert.True(t, errors.Is(err, ErrEmptyUniverse))

	_, err = e.Start(context.Background(), BatchRequest{Instruments: []string{"AAPL"}})
	assert.Error(t, err)

	store.createErr = errors.New("connection refused")
	_, err = e.Start(context.Background(), BatchRequest{Instruments: codes(3)})
	assert.True(t, errors.Is(err, ErrPersistence))

	assert.Empty(t, store.batches)
}

func TestBatchUsesUniverseSource(t *testing.T) {
	u := &fakeUniverse{ids: []string{"sh.600000", "sh.600519", "sz.000001", "sh.600000"}}
	e := newTestEngine(t, &fakeProvider{}, newFakeStore(), WithUniverse(u))

	run, _, err := e.Run(context.Background(), BatchRequest{Limit: 4, Strategies: []string{"up"}})
	require.NoError(t, err)
	assert.Equal(t, 4, u.limit)
	assert.Equal(t, 3, run.UniverseSize)
	assert.Equal(t, 3, run.Succeeded)
	assert.Equal(t, []string{"up"}, run.Strategies)
}

func TestBatchDeduplicatesInstruments(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{}, newFakeStore())
	run, _, err := e.Run(context.Background(), BatchRequest{Instruments: []string{"000001.SZ", "sz.000001", "600000"}})
	require.NoError(t, err)
	assert.Equal(t, 2, run.UniverseSize)
	assert.Equal(t, 2, run.Attempted())
}

func TestBatchCancelFinishesInFlight(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{}), started: make(chan string, 10)}
	store := newFakeStore()
	e := newTestEngine(t, p, store)

	h, err := e.Start(context.Background(), BatchRequest{Instruments: codes(10), Concurrency: 1})
	require.NoError(t, err)
	<-p.started
	h.Cancel()
	close(p.gate)
	run := waitRun(t, h)

	assert.Equal(t, models.BatchFailed, run.Status)
	assert.Equal(t, "cancelled", run.Error)
	assert.GreaterOrEqual(t, run.Attempted(), 1)
	assert.Less(t, run.Attempted(), 10)
	assert.Equal(t, run.Attempted(), store.savedCount(run.ID))
	assert.Equal(t, 1, store.finalized)
}

func TestBatchCancelAfterLastInstrumentCompletes(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, &fakeProvider{}, store)
	lastApplied, cancelled := make(chan struct{}), make(chan struct{})

	h, err := e.Start(context.Background(), BatchRequest{
		Instruments: codes(3),
		Progress: func(done, total int, _ string) {
			if done == total {
				close(lastApplied)
				<-cancelled
			}
		},
	})
	require.NoError(t, err)
	<-lastApplied
	h.Cancel()
	close(cancelled)
	run := waitRun(t, h)

	assert.Equal(t, models.BatchCompleted, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, 3, run.Succeeded)
	assert.Equal(t, 1, store.finalized)
}

func TestBatchAbortsWhenStoreUnreachable(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("write failed")
	store.healthErr = errors.New("connection refused")
	e := newTestEngine(t, &fakeProvider{}, store)

	h, err := e.Start(context.Background(), BatchRequest{Instruments: codes(20), Concurrency: 2})
	require.NoError(t, err)
	run := waitRun(t, h)

	assert.Equal(t, models.BatchFailed, run.Status)
	assert.Contains(t, run.Error, ErrPersistence.Error())
	assert.Zero(t, run.Succeeded)
	assert.Equal(t, run.Attempted(), run.Failed)
	assert.LessOrEqual(t, run.Attempted(), 20)
}

func TestBatchSingleSaveFailureKeepsGoing(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("constraint violation")
	e := newTestEngine(t, &fakeProvider{}, store)

	run, h, err := e.Run(context.Background(), BatchRequest{Instruments: codes(5)})
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, run.Status)
	assert.Equal(t, 5, run.Failed)
	for _, o := range h.Outcomes() {
		assert.Contains(t, o.Error, ErrPersistence.Error())
	}
}

func TestBatchFinalizeFailure(t *testing.T) {
	store := newFakeStore()
	store.finalizeErr = errors.New("timeout")
	e := newTestEngine(t, &fakeProvider{}, store)

	run, _, err := e.Run(context.Background(), BatchRequest{Instruments: codes(3)})
	require.NoError(t, err)
	assert.Equal(t, models.BatchFailed, run.Status)
	assert.Equal(t, 3, run.Succeeded)
	assert.Contains(t, run.Error, "finalize")
	assert.Equal(t, 1, store.finalized)
}

func TestBatchDegenerateInstrumentsFail(t *testing.T) {
	e := newTestEngine(t, &fakeProvider{bars: 20}, newFakeStore())
	run, h, err := e.Run(context.Background(), BatchRequest{Instruments: codes(4)})
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, run.Status)
	assert.Equal(t, 4, run.Failed)
	for _, o := range h.Outcomes() {
		require.NotNil(t, o.Consensus)
		assert.True(t, o.Consensus.Degenerate)
	}
}

func TestBatchLookupAndCancel(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, &fakeProvider{}, store)

	_, err := e.Lookup(context.Background(), "missing")
	assert.True(t, errors.Is(err, domrepo.ErrBatchNotFound))
	assert.True(t, errors.Is(e.Cancel(context.Background(), "missing"), domrepo.ErrBatchNotFound))

	run, _, err := e.Run(context.Background(), BatchRequest{Instruments: codes(2)})
	require.NoError(t, err)
	got, err := e.Lookup(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BatchCompleted, got.Status)
	assert.True(t, errors.Is(e.Cancel(context.Background(), run.ID), ErrBatchNotRunning))
}

func TestBatchShutdownCancelsRunning(t *testing.T) {
	p := &fakeProvider{gate: make(chan struct{}), started: make(chan string, 10)}
	e := newTestEngine(t, p, newFakeStore())

	h, err := e.Start(context.Background(), BatchRequest{Instruments: codes(5), Concurrency: 1})
	require.NoError(t, err)
	<-p.started
	live, err := e.Lookup(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, models.BatchRunning, live.Status)

	expired, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(e.Shutdown(expired), context.Canceled))

	close(p.gate)
	require.NoError(t, e.Shutdown(context.Background()))
	run := waitRun(t, h)
	assert.Equal(t, models.BatchFailed, run.Status)
	assert.Equal(t, 1, run.Attempted())
}

func TestBatchWindowAlignsToBarStep(t *testing.T) {
	a := newTestAnalyzer(t, &fakeProvider{}, stubRegistry(t, defaultStubs()...))
	e := NewBatchEngine(a, newFakeStore(), BatchConfig{WindowDays: 30, BarStep: 15 * time.Minute}, applogger.Nop())
	now := time.Date(2024, 5, 1, 10, 7, 42, 0, time.UTC)
	e.now = func() time.Time { return now }
	bar := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	req := BatchRequest{Instruments: []string{"000001.SZ"}, Days: 10}

	first, err := e.plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, bar, first.to)
	assert.Equal(t, bar.AddDate(0, 0, -10), first.from)

	now = now.Add(5 * time.Minute)
	second, err := e.plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.from, second.from)
	assert.Equal(t, first.to, second.to)

	req.Days = 0
	def, err := e.plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, bar.AddDate(0, 0, -30), def.from)

	end := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	explicit, err := e.plan(context.Background(), BatchRequest{Instruments: []string{"000001.SZ"}, Days: 5, To: end})
	require.NoError(t, err)
	assert.Equal(t, end, explicit.to)
	assert.Equal(t, end.AddDate(0, 0, -5), explicit.from)
}
