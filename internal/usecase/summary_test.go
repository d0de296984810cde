package usecase

import (
	"context"
	"testing"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(id, name string, sig models.Signal, conf float64) models.StrategyResult {
	return models.StrategyResult{
		InstrumentID: id, StrategyName: name, Signal: sig, Confidence: conf,
		Reasons: []string{name + " r1", name + " r2"}, Status: models.StatusOK,
	}
}

func sampleResults() []models.StrategyResult {
	skipped := models.StrategyResult{InstrumentID: "sz.000003", StrategyName: "b", Signal: models.SignalHold, Status: models.StatusSkipped}
	failed := models.StrategyResult{InstrumentID: "sz.000003", StrategyName: "a", Signal: models.SignalHold, Status: models.StatusFailed}
	return []models.StrategyResult{
		result("sz.000002", "a", models.SignalBuy, 0.9),
		result("sz.000002", "b", models.SignalBuy, 0.7),
		result("sz.000001", "a", models.SignalBuy, 0.8),
		result("sz.000001", "b", models.SignalHold, 0.5),
		result("sz.000004", "a", models.SignalBuy, 0.9),
		result("sz.000004", "b", models.SignalBuy, 0.7),
		result("sz.000005", "a", models.SignalSell, 0.6),
		result("sz.000005", "b", models.SignalSell, 0.8),
		skipped,
		failed,
	}
}

func TestRecomputeGroupsByInstrument(t *testing.T) {
	e, err := consensus.New(consensus.DefaultThresholds())
	require.NoError(t, err)
	cons := Recompute(e, sampleResults())
	require.Len(t, cons, 5)
	assert.Equal(t, "sz.000001", cons[0].InstrumentID)
	assert.Equal(t, models.SignalHold, cons[0].Signal)
	assert.True(t, cons[2].Degenerate)
}

func TestTopSignalsOrdering(t *testing.T) {
	e, _ := consensus.New(consensus.DefaultThresholds())
	cons := Recompute(e, sampleResults())

	top := TopSignals(cons, models.SignalBuy, 10)
	require.Len(t, top, 2)
	assert.Equal(t, "sz.000002", top[0].InstrumentID)
	assert.Equal(t, "sz.000004", top[1].InstrumentID)
	assert.Equal(t, models.TierStrong, top[0].Tier)
	assert.Equal(t, 2, top[0].Votes)
	assert.Equal(t, []string{"a: a r1", "a: a r2", "b: b r1"}, top[0].Reasons)

	all := TopSignals(cons, "", 0)
	assert.Len(t, all, 4)
	assert.Equal(t, models.SignalSell, all[2].Signal)
	assert.Equal(t, models.TierWatch, all[3].Tier)

	assert.Len(t, TopSignals(cons, "", 1), 1)
}

func TestSummarize(t *testing.T) {
	e, _ := consensus.New(consensus.DefaultThresholds())
	cons := Recompute(e, sampleResults())
	run := models.BatchRun{ID: "b1", Strategies: []string{"b", "a"}}

	s := Summarize(run, cons)
	require.Len(t, s.Strategies, 2)
	assert.Equal(t, "b", s.Strategies[0].Strategy)
	a := s.Strategies[1]
	assert.Equal(t, 3, a.Counts[models.SignalBuy])
	assert.Equal(t, 1, a.Counts[models.SignalSell])
	assert.Equal(t, 1, a.Failed)
	assert.InDelta(t, (0.9+0.8+0.9)/3, a.AvgConfidence[models.SignalBuy], 1e-12)
	assert.Equal(t, 1, s.Strategies[0].Skipped)

	assert.Equal(t, 1, s.Tiers[models.TierInsufficient])
	assert.Equal(t, 3, s.Tiers[models.TierStrong])
	assert.Equal(t, 2, s.Consensus[models.SignalBuy])
	assert.Equal(t, 1, s.Consensus[models.SignalSell])
}

func TestReportService(t *testing.T) {
	store := newFakeStore()
	e, _ := consensus.New(consensus.DefaultThresholds())
	run := models.BatchRun{ID: "b1", Strategies: []string{"a", "b"}, Status: models.BatchCompleted}
	require.NoError(t, store.CreateBatch(context.Background(), &run))
	for _, c := range Recompute(e, sampleResults()) {
		require.NoError(t, store.SaveInstrument(context.Background(), "b1", &c))
	}

	svc := NewReportService(store, e)
	rep, err := svc.BatchReport(context.Background(), "b1", models.SignalSell, 5)
	require.NoError(t, err)
	require.Len(t, rep.Top, 1)
	assert.Equal(t, "sz.000005", rep.Top[0].InstrumentID)
	assert.Equal(t, "b1", rep.Summary.Batch.ID)

	_, err = svc.BatchReport(context.Background(), "missing", "", 5)
	assert.Error(t, err)

	stats, err := svc.SignalStats(context.Background(), 0, "macd")
	require.NoError(t, err)
	assert.Equal(t, "macd", stats.Strategy)
}
