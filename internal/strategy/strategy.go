// Package strategy holds the pluggable signal generators and their registry.
package strategy

import (
	"errors"
	"fmt"
	"math"

	"StockVote/internal/domain/models"
)

// DefaultLookback is the system-wide minimum number of bars.
const DefaultLookback = 50

// ErrInsufficientData is returned when a series is shorter than a lookback.
var ErrInsufficientData = errors.New("insufficient data")

// Strategy turns a price series into indicators and one signal.
// Implementations must be deterministic and keep no state between calls.
type Strategy interface {
	Name() string
	Description() string
	Lookback() int
	ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error)
	GenerateSignal(table *IndicatorTable) (models.StrategyResult, error)
}

// InsufficientDataError wraps ErrInsufficientData with the counts involved.
func InsufficientDataError(have, need int) error {
	return fmt.Errorf("%w: have %d bars, need %d", ErrInsufficientData, have, need)
}

func requireBars(series models.PriceSeries, need int) error {
	if series.Len() < need {
		return InsufficientDataError(series.Len(), need)
	}
	return nil
}

// IndicatorTable holds named indicator columns aligned with the series bars.
type IndicatorTable struct {
	Series  models.PriceSeries
	columns map[string][]float64
}

func NewIndicatorTable(series models.PriceSeries) *IndicatorTable {
	return &IndicatorTable{Series: series, columns: make(map[string][]float64)}
}

// Set stores a column. Columns must have one value per bar.
func (t *IndicatorTable) Set(name string, values []float64) {
	t.columns[name] = values
}

// Column returns the named column or nil.
func (t *IndicatorTable) Column(name string) []float64 { return t.columns[name] }

// Len is the number of rows in the table.
func (t *IndicatorTable) Len() int { return t.Series.Len() }

// At returns the value back rows before the last one, NaN when out of range.
func (t *IndicatorTable) At(name string, back int) float64 {
	col := t.columns[name]
	i := len(col) - 1 - back
	if i < 0 || i >= len(col) {
		return math.NaN()
	}
	return col[i]
}

// Last is At(name, 0).
func (t *IndicatorTable) Last(name string) float64 { return t.At(name, 0) }

// result builds a StrategyResult carrying the window of the table.
func (t *IndicatorTable) result(strategy string, signal models.Signal, confidence float64, reasons []string, indicators map[string]models.IndicatorValue) models.StrategyResult {
	return models.StrategyResult{
		InstrumentID: t.Series.InstrumentID,
		StrategyName: strategy,
		Signal:       signal,
		Confidence:   math.Min(confidence, 1.0),
		Reasons:      reasons,
		Indicators:   indicators,
		WindowStart:  t.Series.Start(),
		WindowEnd:    t.Series.End(),
		DataPoints:   t.Series.Len(),
		Status:       models.StatusOK,
	}
}

// snapshot copies the last value of each named column into an indicator map.
func (t *IndicatorTable) snapshot(names ...string) map[string]models.IndicatorValue {
	out := make(map[string]models.IndicatorValue, len(names))
	for _, n := range names {
		out[n] = models.Num(t.Last(n))
	}
	return out
}
