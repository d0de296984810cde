package usecase

import (
	"sort"

	"StockVote/internal/consensus"
	"StockVote/internal/domain/models"
)

// Recompute rebuilds per-instrument consensus from stored strategy results,
// ordered by instrument id.
func Recompute(engine *consensus.Engine, results []models.StrategyResult) []models.ConsensusResult {
	groups := make(map[string][]models.StrategyResult)
	for _, r := range results {
		groups[r.InstrumentID] = append(groups[r.InstrumentID], r)
	}
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]models.ConsensusResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, engine.Compute(id, groups[id]))
	}
	return out
}

// Summarize counts signals per strategy and the tier and consensus
// distributions of a batch.
func Summarize(run models.BatchRun, results []models.ConsensusResult) models.BatchSummary {
	byName := make(map[string]*models.StrategySummary)
	order := append([]string(nil), run.Strategies...)
	sums := make(map[string]map[models.Signal]float64)
	get := func(name string) *models.StrategySummary {
		s, ok := byName[name]
		if !ok {
			s = &models.StrategySummary{
				Strategy:      name,
				Counts:        make(map[models.Signal]int),
				AvgConfidence: make(map[models.Signal]float64),
			}
			byName[name] = s
			sums[name] = make(map[models.Signal]float64)
		}
		return s
	}
	for _, n := range order {
		get(n)
	}

	summary := models.BatchSummary{
		Batch:     run,
		Tiers:     make(map[models.Tier]int),
		Consensus: make(map[models.Signal]int),
	}
	for _, c := range results {
		summary.Tiers[c.Tier]++
		if !c.Degenerate {
			summary.Consensus[c.Signal]++
		}
		for _, r := range c.PerStrategy {
			if _, known := byName[r.StrategyName]; !known {
				order = append(order, r.StrategyName)
			}
			s := get(r.StrategyName)
			switch r.Status {
			case models.StatusOK:
				s.Counts[r.Signal]++
				sums[r.StrategyName][r.Signal] += r.Confidence
			case models.StatusSkipped:
				s.Skipped++
			default:
				s.Failed++
			}
		}
	}
	for _, n := range order {
		s := byName[n]
		for sig, c := range s.Counts {
			s.AvgConfidence[sig] = sums[n][sig] / float64(c)
		}
		summary.Strategies = append(summary.Strategies, *s)
	}
	return summary
}

// TopSignals ranks non-degenerate results by tier, confidence and consistency.
// An empty signal keeps every signal. limit <= 0 keeps all rows.
func TopSignals(results []models.ConsensusResult, signal models.Signal, limit int) []models.TopSignal {
	picked := make([]models.ConsensusResult, 0, len(results))
	for _, c := range results {
		if c.Degenerate || (signal != "" && c.Signal != signal) {
			continue
		}
		picked = append(picked, c)
	}
	sort.Slice(picked, func(i, j int) bool {
		a, b := picked[i], picked[j]
		if a.Tier.Rank() != b.Tier.Rank() {
			return a.Tier.Rank() > b.Tier.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Consistency != b.Consistency {
			return a.Consistency > b.Consistency
		}
		return a.InstrumentID < b.InstrumentID
	})
	if limit > 0 && len(picked) > limit {
		picked = picked[:limit]
	}
	out := make([]models.TopSignal, 0, len(picked))
	for _, c := range picked {
		out = append(out, models.TopSignal{
			InstrumentID: c.InstrumentID,
			Signal:       c.Signal,
			Tier:         c.Tier,
			Confidence:   c.Confidence,
			Consistency:  c.Consistency,
			Votes:        c.VoteTally[c.Signal],
			Reasons:      c.SupportingReasons(3),
		})
	}
	return out
}
