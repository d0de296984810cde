package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
)

const testBatchID = "4b0c6d8e-3f5a-4c1e-9a7b-2d6f8e1c3a5b"

func newMockStore(t *testing.T) (*PGResultStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPGResultStore(sqlx.NewDb(db, "postgres"), time.Second, nil), mock
}

func TestPGResultStore_CreateBatch(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	run := &models.BatchRun{
		ID: testBatchID, Name: "daily", Strategies: []string{"macd", "rsi"},
		UniverseSize: 100, StartTime: start, Status: models.BatchRunning,
	}

	mock.ExpectExec(`INSERT INTO analysis_batches`).
		WithArgs(testBatchID, "daily", "{\"macd\",\"rsi\"}", 100, 0, 0, start, "RUNNING", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.CreateBatch(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_SaveInstrumentIsOneTransaction(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	ws := at.Add(-30 * 24 * time.Hour)
	res := &models.ConsensusResult{
		InstrumentID: "sz.000001",
		PerStrategy: []models.StrategyResult{
			{
				StrategyName: "macd", Signal: models.SignalBuy, Confidence: 0.8,
				Reasons:     []string{"golden cross", "volume up"},
				Indicators:  map[string]models.IndicatorValue{"macd": models.Num(0.12), "trend": models.Text("up")},
				WindowStart: ws, WindowEnd: at, DataPoints: 480, Status: models.StatusOK, AnalyzedAt: at,
			},
			{
				StrategyName: "adx_trend", Signal: models.SignalHold, Status: models.StatusSkipped,
				Reasons: []string{"insufficient data points (<100)"}, AnalyzedAt: at,
			},
		},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO analysis_results`).
		WithArgs("sz.000001", "macd", "BUY", 0.8, "ok", "", ws, at, 480, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	mock.ExpectExec(`INSERT INTO analysis_reasons`).WithArgs(int64(11), 0, "golden cross").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO analysis_reasons`).WithArgs(int64(11), 1, "volume up").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO analysis_indicators`).WithArgs(int64(11), "macd", 0.12, nil).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO analysis_indicators`).WithArgs(int64(11), "trend", nil, "up").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO batch_results`).WithArgs(testBatchID, int64(11)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO analysis_results`).
		WithArgs("sz.000001", "adx_trend", "HOLD", 0.0, "skipped", "", nil, nil, 0, at).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))
	mock.ExpectExec(`INSERT INTO analysis_reasons`).WithArgs(int64(12), 0, "insufficient data points (<100)").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO batch_results`).WithArgs(testBatchID, int64(12)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.SaveInstrument(context.Background(), testBatchID, res))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_SaveInstrumentRollsBack(t *testing.T) {
	store, mock := newMockStore(t)
	res := &models.ConsensusResult{
		InstrumentID: "sz.000001",
		PerStrategy:  []models.StrategyResult{{StrategyName: "rsi", Signal: models.SignalSell, Status: models.StatusOK}},
	}
	boom := errors.New("disk full")

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO analysis_results`).WillReturnError(boom)
	mock.ExpectRollback()

	err := store.SaveInstrument(context.Background(), testBatchID, res)
	assert.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_FinalizeBatch(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	run := &models.BatchRun{
		ID: testBatchID, Succeeded: 92, Failed: 8, StartTime: start,
		EndTime: start.Add(90 * time.Second), Status: models.BatchCompleted,
	}

	mock.ExpectExec(`UPDATE analysis_batches`).
		WithArgs(testBatchID, 92, 8, run.EndTime, 90.0, "COMPLETED", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.FinalizeBatch(context.Background(), run))

	mock.ExpectExec(`UPDATE analysis_batches`).WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.FinalizeBatch(context.Background(), run)
	assert.ErrorIs(t, err, domrepo.ErrBatchNotFound, "second finalize touches no RUNNING row")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_GetBatch(t *testing.T) {
	store, mock := newMockStore(t)
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Minute)
	cols := []string{"id", "name", "strategy_names", "total_instruments", "succeeded_count", "failed_count",
		"start_time", "end_time", "duration_seconds", "status", "error"}

	mock.ExpectQuery(`FROM analysis_batches`).WithArgs(testBatchID).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(testBatchID, "daily", "{macd,rsi}", 100, 92, 8, start, end, 60.0, "COMPLETED", ""))

	run, err := store.GetBatch(context.Background(), testBatchID)
	require.NoError(t, err)
	assert.Equal(t, []string{"macd", "rsi"}, run.Strategies)
	assert.Equal(t, models.BatchCompleted, run.Status)
	assert.Equal(t, 100, run.Attempted())
	assert.Equal(t, time.Minute, run.Duration())

	mock.ExpectQuery(`FROM analysis_batches`).WillReturnRows(sqlmock.NewRows(cols))
	_, err = store.GetBatch(context.Background(), testBatchID)
	assert.ErrorIs(t, err, domrepo.ErrBatchNotFound)

	_, err = store.GetBatch(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, domrepo.ErrBatchNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_BatchResults(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`JOIN batch_results b ON b.result_id = r.id`).WithArgs(testBatchID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "instrument_id", "strategy_name", "signal", "confidence",
			"status", "error", "window_start", "window_end", "data_points", "analyzed_at"}).
			AddRow(int64(1), "sz.000001", "macd", "BUY", 0.8, "ok", "", at, at, 480, at).
			AddRow(int64(2), "sz.000001", "rsi", "HOLD", 0.0, "failed", "boom", nil, nil, 0, at))
	mock.ExpectQuery(`FROM analysis_reasons`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"result_id", "position", "reason"}).
			AddRow(int64(1), 0, "golden cross").
			AddRow(int64(1), 1, "volume up"))
	mock.ExpectQuery(`FROM analysis_indicators`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"result_id", "name", "numeric_value", "text_value"}).
			AddRow(int64(1), "macd", 0.12, nil).
			AddRow(int64(1), "trend", nil, "up"))

	out, err := store.BatchResults(context.Background(), testBatchID)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"golden cross", "volume up"}, out[0].Reasons)
	assert.Equal(t, models.Num(0.12), out[0].Indicators["macd"])
	assert.Equal(t, models.Text("up"), out[0].Indicators["trend"])
	assert.True(t, out[0].Valid())
	assert.Equal(t, models.StatusFailed, out[1].Status)
	assert.True(t, out[1].WindowStart.IsZero())
	assert.Empty(t, out[1].Reasons)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_SignalStats(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`GROUP BY signal`).WithArgs(since, "macd").
		WillReturnRows(sqlmock.NewRows([]string{"signal", "count", "avg_confidence"}).
			AddRow("BUY", 3, 0.8).
			AddRow("HOLD", 5, 0.5))

	stats, err := store.SignalStats(context.Background(), since, "macd")
	require.NoError(t, err)
	assert.Equal(t, 8, stats.Total)
	assert.Equal(t, 3, stats.Counts[models.SignalBuy])
	assert.InDelta(t, 0.5, stats.AvgConfidence[models.SignalHold], 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_DeleteOlderThan(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM analysis_results`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 42))
	mock.ExpectExec(`DELETE FROM analysis_batches`).WithArgs(cutoff).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	n, err := store.DeleteOlderThan(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPGResultStore_Health(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	store := NewPGResultStore(sqlx.NewDb(db, "postgres"), time.Second, nil)

	mock.ExpectPing().WillReturnError(errors.New("down"))
	assert.Error(t, store.Health(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
