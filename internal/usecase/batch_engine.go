package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	"StockVote/internal/strategy"
	applogger "StockVote/pkg/logger"
	"StockVote/pkg/util"

	"github.com/google/uuid"
)

var (
	ErrEmptyUniverse   = errors.New("empty instrument universe")
	ErrPersistence     = errors.New("persistence failure")
	ErrBatchNotRunning = errors.New("batch is not running")
	ErrInvalidWindow   = errors.New("invalid analysis window")
)

// BatchConfig holds the engine defaults a request may override.
type BatchConfig struct {
	Workers       int
	WindowDays    int
	BarStep       time.Duration
	Strategies    []string
	UniverseLimit int
	ProgressEvery int
}

// BatchRequest describes one batch submission.
type BatchRequest struct {
	Name        string
	Instruments []string
	// Limit bounds the universe when Instruments is empty.
	Limit       int
	Strategies  []string
	Concurrency int
	// Days sizes the window when From is unset. Zero means WindowDays.
	Days     int
	From, To time.Time
	Progress ProgressFunc
}

// BatchEngine schedules per-instrument analysis over a universe with a
// bounded worker pool and owns the bookkeeping of its batches.
type BatchEngine struct {
	analyzer  *Analyzer
	store     domrepo.ResultStore
	universe  domrepo.UniverseSource
	publisher domrepo.EventPublisher
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	cfg       BatchConfig
	now       func() time.Time

	mu      sync.Mutex
	running map[string]*BatchHandle
	wg      sync.WaitGroup
}

type BatchEngineOption func(*BatchEngine)

func WithUniverse(u domrepo.UniverseSource) BatchEngineOption {
	return func(e *BatchEngine) { e.universe = u }
}

func WithPublisher(p domrepo.EventPublisher) BatchEngineOption {
	return func(e *BatchEngine) {
		if p != nil {
			e.publisher = p
		}
	}
}

func WithBatchMetrics(m domrepo.Metrics) BatchEngineOption {
	return func(e *BatchEngine) {
		if m != nil {
			e.metrics = m
		}
	}
}

func NewBatchEngine(analyzer *Analyzer, store domrepo.ResultStore, cfg BatchConfig, logger *applogger.Logger, opts ...BatchEngineOption) *BatchEngine {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 30
	}
	if cfg.BarStep <= 0 {
		cfg.BarStep = 15 * time.Minute
	}
	e := &BatchEngine{
		analyzer:  analyzer,
		store:     store,
		publisher: nopPublisher{},
		metrics:   nopMetrics{},
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		running:   make(map[string]*BatchHandle),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// BatchHandle tracks one running batch.
type BatchHandle struct {
	id     string
	agg    *batchAggregator
	cancel context.CancelFunc
	done   chan struct{}
}

func (h *BatchHandle) ID() string { return h.id }

// Snapshot returns the current state of the run.
func (h *BatchHandle) Snapshot() models.BatchRun { return h.agg.snapshot() }

// Done is closed once the run is final.
func (h *BatchHandle) Done() <-chan struct{} { return h.done }

// Cancel stops handing out instruments. In-flight instruments still finish
// and the batch ends FAILED.
func (h *BatchHandle) Cancel() { h.cancel() }

// Wait blocks until the run is final or ctx ends.
func (h *BatchHandle) Wait(ctx context.Context) (models.BatchRun, error) {
	select {
	case <-h.done:
		return h.Snapshot(), nil
	case <-ctx.Done():
		return h.Snapshot(), ctx.Err()
	}
}

// Outcomes lists per-instrument outcomes recorded so far, in completion order.
func (h *BatchHandle) Outcomes() []models.InstrumentOutcome { return h.agg.results() }

type batchPlan struct {
	run         models.BatchRun
	instruments []string
	strategies  []strategy.Strategy
	workers     int
	from, to    time.Time
	progress    ProgressFunc
}

// Start validates req, creates the batch row and launches the workers.
// Setup faults are returned before any goroutine starts.
func (e *BatchEngine) Start(ctx context.Context, req BatchRequest) (*BatchHandle, error) {
	plan, err := e.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateBatch(ctx, &plan.run); err != nil {
		e.metrics.RecordError("create_batch")
		return nil, fmt.Errorf("%w: create batch: %v", ErrPersistence, err)
	}

	batchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := &BatchHandle{
		id:     plan.run.ID,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	log := e.logger.With(applogger.String("batch_id", plan.run.ID))
	h.agg = newBatchAggregator(plan.run, chainProgress(LogProgress(log, e.cfg.ProgressEvery), plan.progress))

	e.mu.Lock()
	e.running[h.id] = h
	e.mu.Unlock()
	e.wg.Add(1)

	log.Info("batch started",
		applogger.String("name", plan.run.Name),
		applogger.Int("instruments", len(plan.instruments)),
		applogger.Strings("strategies", plan.run.Strategies),
		applogger.Int("workers", plan.workers))

	go e.execute(batchCtx, h, plan, log)
	return h, nil
}

// Run is Start followed by Wait.
func (e *BatchEngine) Run(ctx context.Context, req BatchRequest) (models.BatchRun, *BatchHandle, error) {
	h, err := e.Start(ctx, req)
	if err != nil {
		return models.BatchRun{}, nil, err
	}
	run, err := h.Wait(ctx)
	return run, h, err
}

// Handle returns the handle of a running batch.
func (e *BatchEngine) Handle(id string) (*BatchHandle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.running[id]
	return h, ok
}

// Lookup returns a live snapshot of a running batch or the stored row.
func (e *BatchEngine) Lookup(ctx context.Context, id string) (*models.BatchRun, error) {
	if h, ok := e.Handle(id); ok {
		run := h.Snapshot()
		return &run, nil
	}
	return e.store.GetBatch(ctx, id)
}

// Cancel aborts a running batch.
func (e *BatchEngine) Cancel(ctx context.Context, id string) error {
	if h, ok := e.Handle(id); ok {
		h.Cancel()
		return nil
	}
	if _, err := e.store.GetBatch(ctx, id); err != nil {
		return err
	}
	return ErrBatchNotRunning
}

// Shutdown cancels every running batch and waits for them to finalize.
func (e *BatchEngine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	for _, h := range e.running {
		h.Cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *BatchEngine) plan(ctx context.Context, req BatchRequest) (*batchPlan, error) {
	instruments := make([]string, 0, len(req.Instruments))
	for _, code := range req.Instruments {
		id, err := util.NormalizeInstrument(code)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, id)
	}
	instruments = util.Dedupe(instruments)
	if len(instruments) == 0 && e.universe != nil {
		limit := req.Limit
		if limit <= 0 {
			limit = e.cfg.UniverseLimit
		}
		ids, err := e.universe.ListInstruments(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
		instruments = util.Dedupe(ids)
	}
	if len(instruments) == 0 {
		return nil, ErrEmptyUniverse
	}

	names := req.Strategies
	if len(names) == 0 {
		names = e.cfg.Strategies
	}
	if len(names) == 0 {
		names = e.analyzer.Registry().Names()
	}
	strategies, err := e.analyzer.Registry().Resolve(names)
	if err != nil {
		return nil, err
	}
	resolved := make([]string, len(strategies))
	for i, s := range strategies {
		resolved[i] = s.Name()
	}

	workers := req.Concurrency
	if workers <= 0 {
		workers = e.cfg.Workers
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(instruments))

	days := req.Days
	if days <= 0 {
		days = e.cfg.WindowDays
	}
	from, to := req.From, req.To
	if to.IsZero() {
		from, to = util.Window(e.now(), days, e.cfg.BarStep)
		if !req.From.IsZero() {
			from = req.From
		}
	} else if from.IsZero() {
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from %s is not before to %s", ErrInvalidWindow, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	name := req.Name
	if name == "" {
		name = "batch " + e.now().UTC().Format("2006-01-02 15:04")
	}
	return &batchPlan{
		run: models.BatchRun{
			ID:           uuid.NewString(),
			Name:         name,
			Strategies:   resolved,
			UniverseSize: len(instruments),
			StartTime:    e.now(),
			Status:       models.BatchRunning,
		},
		instruments: instruments,
		strategies:  strategies,
		workers:     workers,
		from:        from,
		to:          to,
		progress:    req.Progress,
	}, nil
}

func (e *BatchEngine) execute(ctx context.Context, h *BatchHandle, plan *batchPlan, log *applogger.Logger) {
	defer e.wg.Done()
	defer close(h.done)

	jobs := make(chan string)
	results := make(chan instrumentResult, plan.workers)

	go func() {
		defer close(jobs)
		for _, id := range plan.instruments {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- id:
			}
		}
	}()

	// In-flight instruments are not interrupted by a batch cancel.
	workCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for i := 0; i < plan.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				results <- e.process(workCtx, plan, id, log)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		if h.agg.apply(r) {
			log.Error("aborting batch", applogger.Error(r.fatal))
			h.cancel()
		}
	}

	// a cancel that lands after the last instrument changes nothing
	snap := h.agg.snapshot()
	cancelled := ctx.Err() != nil && snap.Attempted() < snap.UniverseSize
	h.cancel()
	e.finalize(h, cancelled, log)

	e.mu.Lock()
	delete(e.running, h.id)
	e.mu.Unlock()
}

// process analyzes one instrument and persists its result set.
func (e *BatchEngine) process(ctx context.Context, plan *batchPlan, id string, log *applogger.Logger) (out instrumentResult) {
	out.outcome.InstrumentID = id
	defer func() {
		if p := recover(); p != nil {
			out.outcome.Succeeded = false
			out.outcome.Error = fmt.Sprintf("panic: %v", p)
		}
		if out.outcome.Succeeded {
			e.metrics.RecordInstrument("succeeded")
		} else {
			e.metrics.RecordInstrument("failed")
		}
	}()

	start := time.Now()
	results, err := e.analyzer.Analyze(ctx, id, plan.from, plan.to, plan.strategies)
	if err != nil {
		log.Warn("instrument fetch failed", applogger.String("instrument", id), applogger.Error(err))
		out.outcome.Error = err.Error()
		return out
	}
	cons := e.analyzer.Engine().Compute(id, results)
	e.metrics.RecordLatency("analyze_instrument", time.Since(start).Seconds())

	if err := e.store.SaveInstrument(ctx, plan.run.ID, &cons); err != nil {
		e.metrics.RecordError("save_instrument")
		log.Warn("save instrument failed", applogger.String("instrument", id), applogger.Error(err))
		out.outcome.Error = fmt.Sprintf("%v: %v", ErrPersistence, err)
		if herr := e.store.Health(ctx); herr != nil {
			out.fatal = fmt.Errorf("%w: store unreachable: %v", ErrPersistence, herr)
		}
		return out
	}
	if err := e.publisher.PublishConsensus(ctx, plan.run.ID, &cons); err != nil {
		e.metrics.RecordError("publish_consensus")
		log.Warn("publish consensus failed", applogger.String("instrument", id), applogger.Error(err))
	}

	out.outcome.Consensus = &cons
	out.outcome.Succeeded = !cons.Degenerate
	if cons.Degenerate {
		out.outcome.Error = "no strategy produced a valid result"
	}
	return out
}

func (e *BatchEngine) finalize(h *BatchHandle, cancelled bool, log *applogger.Logger) {
	status, reason := models.BatchCompleted, ""
	switch {
	case h.agg.fatalErr() != nil:
		status, reason = models.BatchFailed, h.agg.fatalErr().Error()
	case cancelled:
		status, reason = models.BatchFailed, "cancelled"
	}
	final := h.agg.draft(status, reason, e.now())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.store.FinalizeBatch(ctx, &final); err != nil {
		e.metrics.RecordError("finalize_batch")
		log.Error("finalize batch failed", applogger.Error(err))
		final.Status = models.BatchFailed
		final.Error = fmt.Sprintf("%v: finalize: %v", ErrPersistence, err)
	}
	final = h.agg.finish(final)

	if err := e.publisher.PublishBatch(ctx, &final); err != nil {
		e.metrics.RecordError("publish_batch")
		log.Warn("publish batch failed", applogger.Error(err))
	}
	e.metrics.RecordBatch(string(final.Status), final.Duration().Seconds())
	log.Info("batch finished",
		applogger.String("status", string(final.Status)),
		applogger.Int("succeeded", final.Succeeded),
		applogger.Int("failed", final.Failed),
		applogger.Int("universe", final.UniverseSize),
		applogger.Duration("duration_ms", final.Duration()),
		applogger.String("reason", final.Error))
}

type nopPublisher struct{}

func (nopPublisher) PublishConsensus(context.Context, string, *models.ConsensusResult) error {
	return nil
}
func (nopPublisher) PublishBatch(context.Context, *models.BatchRun) error { return nil }
func (nopPublisher) Close() error                                         { return nil }
