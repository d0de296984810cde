package usecase

import (
	"context"
	"fmt"
	"time"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"
	domrepo "StockVote/internal/domain/repository"
)

// BatchReport is the read-back view of a batch.
type BatchReport struct {
	Summary models.BatchSummary `json:"summary"`
	Top     []models.TopSignal  `json:"top"`
}

// ReportService reads stored batches back and recomputes their consensus.
type ReportService struct {
	store  domrepo.ResultStore
	engine *consensus.Engine
	now    func() time.Time
}

func NewReportService(store domrepo.ResultStore, engine *consensus.Engine) *ReportService {
	return &ReportService{store: store, engine: engine, now: time.Now}
}

// BatchReport summarizes batch id and ranks its instruments for signal.
func (s *ReportService) BatchReport(ctx context.Context, id string, signal models.Signal, limit int) (*BatchReport, error) {
	run, err := s.store.GetBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := s.store.BatchResults(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("batch results: %w", err)
	}
	cons := Recompute(s.engine, results)
	return &BatchReport{
		Summary: Summarize(*run, cons),
		Top:     TopSignals(cons, signal, limit),
	}, nil
}

// SignalStats reports the signal distribution of the last days, optionally
// for a single strategy.
func (s *ReportService) SignalStats(ctx context.Context, days int, strategy string) (*models.SignalStats, error) {
	if days <= 0 {
		days = 7
	}
	return s.store.SignalStats(ctx, s.now().AddDate(0, 0, -days), strategy)
}
