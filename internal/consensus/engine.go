// Package consensus folds per-strategy results of one instrument into a
// single recommendation.
package consensus

import (
	"fmt"

	"StockVote/internal/domain/models"
)

const epsilon = 1e-9

// Thresholds are the consistency fractions a consensus must reach for each
// tier. They are fractions of the valid votes, so they apply unchanged to
// any number of requested strategies.
type Thresholds struct {
	Strong        float64 `yaml:"strong" default:"0.8333333333"`
	Lean          float64 `yaml:"lean" default:"0.6666666667"`
	MinConfidence float64 `yaml:"min_confidence" default:"0"`
}

// DefaultThresholds is 5/6 for strong and 4/6 for lean.
func DefaultThresholds() Thresholds {
	return Thresholds{Strong: 5.0 / 6.0, Lean: 4.0 / 6.0}
}

// Validate checks 0 < lean <= strong <= 1 and 0 <= min_confidence <= 1.
func (t Thresholds) Validate() error {
	if t.Lean <= 0 || t.Lean > t.Strong || t.Strong > 1 {
		return fmt.Errorf("consensus thresholds: need 0 < lean (%.3f) <= strong (%.3f) <= 1", t.Lean, t.Strong)
	}
	if t.MinConfidence < 0 || t.MinConfidence > 1 {
		return fmt.Errorf("consensus thresholds: min_confidence %.3f out of [0,1]", t.MinConfidence)
	}
	return nil
}

// Engine computes ConsensusResults. It holds no mutable state.
type Engine struct {
	th Thresholds
}

func New(th Thresholds) (*Engine, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return &Engine{th: th}, nil
}

// Compute aggregates results of one instrument. It is a pure function of its
// input: the same results always give the same ConsensusResult.
func (e *Engine) Compute(instrumentID string, results []models.StrategyResult) models.ConsensusResult {
	out := models.ConsensusResult{
		InstrumentID: instrumentID,
		PerStrategy:  append([]models.StrategyResult(nil), results...),
		VoteTally:    make(map[models.Signal]int, 3),
		Requested:    len(results),
	}
	valid := 0
	for _, r := range results {
		if r.AnalyzedAt.After(out.GeneratedAt) {
			out.GeneratedAt = r.AnalyzedAt
		}
		if !r.Valid() {
			continue
		}
		out.VoteTally[r.Signal]++
		valid++
	}

	if valid == 0 {
		out.Signal = models.SignalHold
		out.Tier = models.TierInsufficient
		out.Degenerate = true
		return out
	}

	out.Signal = majority(out.VoteTally)

	var sum float64
	n := 0
	for _, r := range results {
		if r.Valid() && r.Signal == out.Signal {
			sum += r.Confidence
			n++
		}
	}
	if n > 0 {
		out.Confidence = sum / float64(n)
	}
	out.Consistency = float64(out.VoteTally[out.Signal]) / float64(valid)
	out.Tier = e.Tier(out.Consistency, out.Confidence)
	return out
}

// Tier maps consistency and confidence of a non-degenerate consensus to a tier.
func (e *Engine) Tier(consistency, confidence float64) models.Tier {
	if confidence+epsilon < e.th.MinConfidence {
		return models.TierWatch
	}
	switch {
	case consistency+epsilon >= e.th.Strong:
		return models.TierStrong
	case consistency+epsilon >= e.th.Lean:
		return models.TierLean
	default:
		return models.TierWatch
	}
}

// majority returns the signal with the strictly highest count, HOLD on a tie.
func majority(tally map[models.Signal]int) models.Signal {
	best, top, tied := models.SignalHold, -1, false
	for _, s := range models.Signals() {
		c, ok := tally[s]
		if !ok {
			continue
		}
		switch {
		case c > top:
			best, top, tied = s, c, false
		case c == top:
			tied = true
		}
	}
	if tied {
		return models.SignalHold
	}
	return best
}
