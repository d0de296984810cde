package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
	applogger "StockVote/pkg/logger"
)

// PGResultStore persists batches and strategy results in Postgres.
type PGResultStore struct {
	db      *sqlx.DB
	timeout time.Duration
	l       *applogger.Logger
}

func NewPGResultStore(db *sqlx.DB, timeout time.Duration, l *applogger.Logger) *PGResultStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &PGResultStore{db: db, timeout: timeout, l: l}
}

type batchRow struct {
	ID         string          `db:"id"`
	Name       string          `db:"name"`
	Strategies pq.StringArray  `db:"strategy_names"`
	Total      int             `db:"total_instruments"`
	Succeeded  int             `db:"succeeded_count"`
	Failed     int             `db:"failed_count"`
	StartTime  time.Time       `db:"start_time"`
	EndTime    sql.NullTime    `db:"end_time"`
	Duration   sql.NullFloat64 `db:"duration_seconds"`
	Status     string          `db:"status"`
	Error      string          `db:"error"`
}

func (r batchRow) model() *models.BatchRun {
	run := &models.BatchRun{
		ID:           r.ID,
		Name:         r.Name,
		Strategies:   []string(r.Strategies),
		UniverseSize: r.Total,
		Succeeded:    r.Succeeded,
		Failed:       r.Failed,
		StartTime:    r.StartTime,
		Status:       models.BatchStatus(r.Status),
		Error:        r.Error,
	}
	if r.EndTime.Valid {
		run.EndTime = r.EndTime.Time
	}
	return run
}

type resultRow struct {
	ID           int64        `db:"id"`
	InstrumentID string       `db:"instrument_id"`
	StrategyName string       `db:"strategy_name"`
	Signal       string       `db:"signal"`
	Confidence   float64      `db:"confidence"`
	Status       string       `db:"status"`
	Error        string       `db:"error"`
	WindowStart  sql.NullTime `db:"window_start"`
	WindowEnd    sql.NullTime `db:"window_end"`
	DataPoints   int          `db:"data_points"`
	AnalyzedAt   time.Time    `db:"analyzed_at"`
}

type reasonRow struct {
	ResultID int64  `db:"result_id"`
	Position int    `db:"position"`
	Reason   string `db:"reason"`
}

type indicatorRow struct {
	ResultID int64           `db:"result_id"`
	Name     string          `db:"name"`
	Numeric  sql.NullFloat64 `db:"numeric_value"`
	Text     sql.NullString  `db:"text_value"`
}

func (s *PGResultStore) CreateBatch(ctx context.Context, run *models.BatchRun) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		INSERT INTO analysis_batches
			(id, name, strategy_names, total_instruments, succeeded_count, failed_count, start_time, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, q,
		run.ID, run.Name, pq.Array(run.Strategies), run.UniverseSize,
		run.Succeeded, run.Failed, run.StartTime, string(run.Status), run.Error)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate batch %s: %w", run.ID, err)
		}
		return fmt.Errorf("create batch: %w", err)
	}
	return nil
}

// SaveInstrument writes every strategy result of one instrument with its
// reasons, indicators and batch link in a single transaction.
func (s *PGResultStore) SaveInstrument(ctx context.Context, batchID string, res *models.ConsensusResult) error {
	if len(res.PerStrategy) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const insResult = `
		INSERT INTO analysis_results
			(instrument_id, strategy_name, signal, confidence, status, error, window_start, window_end, data_points, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`
	const insReason = `INSERT INTO analysis_reasons (result_id, position, reason) VALUES ($1, $2, $3)`
	const insIndicator = `INSERT INTO analysis_indicators (result_id, name, numeric_value, text_value) VALUES ($1, $2, $3, $4)`
	const insLink = `INSERT INTO batch_results (batch_id, result_id) VALUES ($1, $2)`

	for _, r := range res.PerStrategy {
		var id int64
		err := tx.QueryRowxContext(ctx, insResult,
			res.InstrumentID, r.StrategyName, string(r.Signal), r.Confidence, string(r.Status), r.Error,
			nullTime(r.WindowStart), nullTime(r.WindowEnd), r.DataPoints, r.AnalyzedAt,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert result %s/%s: %w", res.InstrumentID, r.StrategyName, err)
		}
		for i, reason := range r.Reasons {
			if _, err := tx.ExecContext(ctx, insReason, id, i, reason); err != nil {
				return fmt.Errorf("insert reason: %w", err)
			}
		}
		for _, name := range r.IndicatorNames() {
			v := r.Indicators[name]
			var num sql.NullFloat64
			var text sql.NullString
			if v.IsText {
				text = sql.NullString{String: v.Text, Valid: true}
			} else {
				num = sql.NullFloat64{Float64: v.Number, Valid: true}
			}
			if _, err := tx.ExecContext(ctx, insIndicator, id, name, num, text); err != nil {
				return fmt.Errorf("insert indicator %s: %w", name, err)
			}
		}
		if _, err := tx.ExecContext(ctx, insLink, batchID, id); err != nil {
			return fmt.Errorf("link result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PGResultStore) FinalizeBatch(ctx context.Context, run *models.BatchRun) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		UPDATE analysis_batches
		SET succeeded_count = $2, failed_count = $3, end_time = $4, duration_seconds = $5, status = $6, error = $7
		WHERE id = $1 AND status = 'RUNNING'`
	res, err := s.db.ExecContext(ctx, q,
		run.ID, run.Succeeded, run.Failed, nullTime(run.EndTime), run.Duration().Seconds(), string(run.Status), run.Error)
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize batch: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finalize %s: %w", run.ID, domrepo.ErrBatchNotFound)
	}
	return nil
}

func (s *PGResultStore) GetBatch(ctx context.Context, id string) (*models.BatchRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("batch %q: %w", id, domrepo.ErrBatchNotFound)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT id, name, strategy_names, total_instruments, succeeded_count, failed_count,
		       start_time, end_time, duration_seconds, status, error
		FROM analysis_batches
		WHERE id = $1`
	var row batchRow
	if err := s.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("batch %s: %w", id, domrepo.ErrBatchNotFound)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}
	return row.model(), nil
}

// BatchResults loads every strategy result linked to a batch, ordered by
// instrument and insertion order.
func (s *PGResultStore) BatchResults(ctx context.Context, batchID string) ([]models.StrategyResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT r.id, r.instrument_id, r.strategy_name, r.signal, r.confidence, r.status, r.error,
		       r.window_start, r.window_end, r.data_points, r.analyzed_at
		FROM analysis_results r
		JOIN batch_results b ON b.result_id = r.id
		WHERE b.batch_id = $1
		ORDER BY r.instrument_id, r.id`
	var rows []resultRow
	if err := s.db.SelectContext(ctx, &rows, q, batchID); err != nil {
		return nil, fmt.Errorf("batch results: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}

	var reasons []reasonRow
	const qReasons = `
		SELECT result_id, position, reason
		FROM analysis_reasons
		WHERE result_id = ANY($1)
		ORDER BY result_id, position`
	if err := s.db.SelectContext(ctx, &reasons, qReasons, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("batch reasons: %w", err)
	}

	var indicators []indicatorRow
	const qIndicators = `
		SELECT result_id, name, numeric_value, text_value
		FROM analysis_indicators
		WHERE result_id = ANY($1)`
	if err := s.db.SelectContext(ctx, &indicators, qIndicators, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("batch indicators: %w", err)
	}

	byID := make(map[int64]*models.StrategyResult, len(rows))
	out := make([]models.StrategyResult, len(rows))
	for i, r := range rows {
		out[i] = models.StrategyResult{
			InstrumentID: r.InstrumentID,
			StrategyName: r.StrategyName,
			Signal:       models.Signal(r.Signal),
			Confidence:   r.Confidence,
			Reasons:      []string{},
			Status:       models.ResultStatus(r.Status),
			Error:        r.Error,
			DataPoints:   r.DataPoints,
			AnalyzedAt:   r.AnalyzedAt,
		}
		if r.WindowStart.Valid {
			out[i].WindowStart = r.WindowStart.Time
		}
		if r.WindowEnd.Valid {
			out[i].WindowEnd = r.WindowEnd.Time
		}
		byID[r.ID] = &out[i]
	}
	for _, rr := range reasons {
		if res, ok := byID[rr.ResultID]; ok {
			res.Reasons = append(res.Reasons, rr.Reason)
		}
	}
	for _, ir := range indicators {
		res, ok := byID[ir.ResultID]
		if !ok {
			continue
		}
		if res.Indicators == nil {
			res.Indicators = make(map[string]models.IndicatorValue)
		}
		switch {
		case ir.Text.Valid:
			res.Indicators[ir.Name] = models.Text(ir.Text.String)
		case ir.Numeric.Valid:
			res.Indicators[ir.Name] = models.Num(ir.Numeric.Float64)
		}
	}
	return out, nil
}

func (s *PGResultStore) SignalStats(ctx context.Context, since time.Time, strategy string) (*models.SignalStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	const q = `
		SELECT signal, COUNT(*) AS count, AVG(confidence) AS avg_confidence
		FROM analysis_results
		WHERE analyzed_at >= $1 AND status = 'ok' AND ($2 = '' OR strategy_name = $2)
		GROUP BY signal`
	var rows []struct {
		Signal string  `db:"signal"`
		Count  int     `db:"count"`
		Avg    float64 `db:"avg_confidence"`
	}
	if err := s.db.SelectContext(ctx, &rows, q, since, strategy); err != nil {
		return nil, fmt.Errorf("signal stats: %w", err)
	}
	stats := &models.SignalStats{
		Strategy:      strategy,
		Since:         since,
		Counts:        make(map[models.Signal]int, len(rows)),
		AvgConfidence: make(map[models.Signal]float64, len(rows)),
	}
	for _, r := range rows {
		sig := models.Signal(r.Signal)
		stats.Counts[sig] = r.Count
		stats.AvgConfidence[sig] = r.Avg
		stats.Total += r.Count
	}
	return stats, nil
}

// DeleteOlderThan removes results analysed before cutoff together with
// finished batches that started before it, and returns the result count.
func (s *PGResultStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM analysis_results WHERE analyzed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	results, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete results: %w", err)
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM analysis_batches WHERE start_time < $1 AND status <> 'RUNNING'`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete batches: %w", err)
	}
	batches, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	s.l.Debug("retention delete",
		applogger.Int64("results", results),
		applogger.Int64("batches", batches),
		applogger.String("cutoff", cutoff.Format(time.RFC3339)),
	)
	return results, nil
}

func (s *PGResultStore) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
