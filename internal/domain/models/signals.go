package models

import "time"

// Tier is the recommendation strength derived from a consensus.
type Tier string

const (
	TierStrong       Tier = "strong"
	TierLean         Tier = "lean"
	TierWatch        Tier = "watch"
	TierInsufficient Tier = "insufficient-data"
)

// Rank orders tiers for sorting, higher is stronger.
func (t Tier) Rank() int {
	switch t {
	case TierStrong:
		return 3
	case TierLean:
		return 2
	case TierWatch:
		return 1
	default:
		return 0
	}
}

// ConsensusResult aggregates all strategy results of one instrument.
// It is derived data and recomputed from stored StrategyResults.
type ConsensusResult struct {
	InstrumentID string           `json:"instrument_id"`
	PerStrategy  []StrategyResult `json:"per_strategy"`
	VoteTally    map[Signal]int   `json:"vote_tally"`
	Signal       Signal           `json:"consensus_signal"`
	Confidence   float64          `json:"consensus_confidence"`
	Consistency  float64          `json:"consistency_ratio"`
	Tier         Tier             `json:"recommendation_tier"`
	Degenerate   bool             `json:"degenerate"`
	Requested    int              `json:"requested"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// ValidVotes sums the tally.
func (c ConsensusResult) ValidVotes() int {
	n := 0
	for _, v := range c.VoteTally {
		n += v
	}
	return n
}

// SupportingReasons returns up to limit reasons from strategies that voted
// with the consensus, in strategy order.
func (c ConsensusResult) SupportingReasons(limit int) []string {
	out := make([]string, 0, limit)
	for _, r := range c.PerStrategy {
		if !r.Valid() || r.Signal != c.Signal {
			continue
		}
		for _, reason := range r.Reasons {
			if len(out) == limit {
				return out
			}
			out = append(out, r.StrategyName+": "+reason)
		}
	}
	return out
}

// SignalStats is a signal distribution over a time range.
type SignalStats struct {
	Strategy      string             `json:"strategy,omitempty"`
	Since         time.Time          `json:"since"`
	Total         int                `json:"total"`
	Counts        map[Signal]int     `json:"counts"`
	AvgConfidence map[Signal]float64 `json:"avg_confidence"`
}
