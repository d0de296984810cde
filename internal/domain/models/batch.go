package models

import "time"

// BatchStatus is the lifecycle state of a batch run.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "RUNNING"
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// Final reports whether the status can no longer change.
func (s BatchStatus) Final() bool { return s == BatchCompleted || s == BatchFailed }

// BatchRun is the bookkeeping row of one batch.
type BatchRun struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Strategies   []string    `json:"strategies"`
	UniverseSize int         `json:"universe_size"`
	Succeeded    int         `json:"succeeded_count"`
	Failed       int         `json:"failed_count"`
	StartTime    time.Time   `json:"start_time"`
	EndTime      time.Time   `json:"end_time,omitempty"`
	Status       BatchStatus `json:"status"`
	Error        string      `json:"error,omitempty"`
}

// Attempted is the number of instruments with a recorded outcome.
func (b BatchRun) Attempted() int { return b.Succeeded + b.Failed }

// Duration is zero until the run is final.
func (b BatchRun) Duration() time.Duration {
	if b.EndTime.IsZero() {
		return 0
	}
	return b.EndTime.Sub(b.StartTime)
}

// InstrumentOutcome is the result of one instrument within a batch.
type InstrumentOutcome struct {
	InstrumentID string           `json:"instrument_id"`
	Succeeded    bool             `json:"succeeded"`
	Consensus    *ConsensusResult `json:"consensus,omitempty"`
	Error        string           `json:"error,omitempty"`
}

// StrategySummary counts the signals of one strategy across a batch.
type StrategySummary struct {
	Strategy      string             `json:"strategy"`
	Counts        map[Signal]int     `json:"counts"`
	Failed        int                `json:"failed"`
	Skipped       int                `json:"skipped"`
	AvgConfidence map[Signal]float64 `json:"avg_confidence"`
}

// BatchSummary is the post-hoc overview of a finished batch.
type BatchSummary struct {
	Batch      BatchRun          `json:"batch"`
	Strategies []StrategySummary `json:"strategies"`
	Tiers      map[Tier]int      `json:"tiers"`
	Consensus  map[Signal]int    `json:"consensus"`
}

// TopSignal is one row of a ranked signal list.
type TopSignal struct {
	InstrumentID string   `json:"instrument_id"`
	Signal       Signal   `json:"signal"`
	Tier         Tier     `json:"tier"`
	Confidence   float64  `json:"confidence"`
	Consistency  float64  `json:"consistency"`
	Votes        int      `json:"votes"`
	Reasons      []string `json:"reasons"`
}
