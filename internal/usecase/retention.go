package usecase

import (
	"context"
	"time"

	domrepo "StockVote/internal/domain/repository"
	applogger "StockVote/pkg/logger"
)

// RetentionJob deletes results older than a horizon together with the
// finished batches that started before it.
type RetentionJob struct {
	store   domrepo.ResultStore
	horizon time.Duration
	logger  *applogger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

func NewRetentionJob(store domrepo.ResultStore, horizon time.Duration, logger *applogger.Logger, metrics domrepo.Metrics) *RetentionJob {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &RetentionJob{store: store, horizon: horizon, logger: logger, metrics: metrics, now: time.Now}
}

// WithHorizon returns a copy of the job using horizon.
func (j *RetentionJob) WithHorizon(horizon time.Duration) *RetentionJob {
	c := *j
	c.horizon = horizon
	return &c
}

// Run deletes once and returns the number of removed results.
func (j *RetentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().Add(-j.horizon)
	start := time.Now()
	n, err := j.store.DeleteOlderThan(ctx, cutoff)
	j.metrics.RecordLatency("retention", time.Since(start).Seconds())
	if err != nil {
		j.metrics.RecordError("retention")
		j.logger.Error("retention failed", applogger.Error(err))
		return 0, err
	}
	j.logger.Info("retention done",
		applogger.String("cutoff", cutoff.Format(time.RFC3339)),
		applogger.Int64("deleted", n))
	return n, nil
}

// Start runs the job every interval until ctx is done.
func (j *RetentionJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = j.Run(ctx)
			}
		}
	}()
}
