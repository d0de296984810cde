package usecase

import (
	"sync"
	"time"

	"StockVote/internal/domain/models"
)

// instrumentResult is what a worker reports for one instrument.
type instrumentResult struct {
	outcome models.InstrumentOutcome
	// fatal is set when the fault makes the rest of the batch pointless.
	fatal error
}

// batchAggregator is the single writer of a BatchRun's counters. Workers
// send results over a channel and only the aggregator goroutine calls apply.
type batchAggregator struct {
	mu       sync.RWMutex
	run      models.BatchRun
	outcomes []models.InstrumentOutcome
	fatal    error
	progress ProgressFunc
}

func newBatchAggregator(run models.BatchRun, progress ProgressFunc) *batchAggregator {
	return &batchAggregator{
		run:      run,
		outcomes: make([]models.InstrumentOutcome, 0, run.UniverseSize),
		progress: progress,
	}
}

// apply records one instrument and reports whether the batch must abort.
func (a *batchAggregator) apply(r instrumentResult) bool {
	a.mu.Lock()
	if r.outcome.Succeeded {
		a.run.Succeeded++
	} else {
		a.run.Failed++
	}
	a.outcomes = append(a.outcomes, r.outcome)
	abort := false
	if r.fatal != nil && a.fatal == nil {
		a.fatal = r.fatal
		abort = true
	}
	done, total := a.run.Attempted(), a.run.UniverseSize
	a.mu.Unlock()

	if a.progress != nil {
		a.progress(done, total, r.outcome.InstrumentID)
	}
	return abort
}

// draft returns the run as it would look when finalized now, without
// changing the aggregator.
func (a *batchAggregator) draft(status models.BatchStatus, reason string, end time.Time) models.BatchRun {
	run := a.snapshot()
	run.Status = status
	run.Error = reason
	run.EndTime = end
	return run
}

// finish commits the final run. Only the first call has an effect.
func (a *batchAggregator) finish(final models.BatchRun) models.BatchRun {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run.Status.Final() {
		return a.run
	}
	a.run.Status = final.Status
	a.run.Error = final.Error
	a.run.EndTime = final.EndTime
	return a.run
}

func (a *batchAggregator) snapshot() models.BatchRun {
	a.mu.RLock()
	defer a.mu.RUnlock()
	run := a.run
	run.Strategies = append([]string(nil), a.run.Strategies...)
	return run
}

func (a *batchAggregator) fatalErr() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fatal
}

func (a *batchAggregator) results() []models.InstrumentOutcome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.InstrumentOutcome(nil), a.outcomes...)
}
