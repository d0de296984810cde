package models

import (
	"fmt"
	"sort"
	"time"
)

// PriceBar is one OHLCV record of an instrument. Amount is the traded value.
type PriceBar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	Amount    float64   `json:"amount"`
}

// PriceSeries is a time-ascending sequence of bars for one instrument.
// A series is treated as immutable once built; strategies only read it.
type PriceSeries struct {
	InstrumentID string     `json:"instrument_id"`
	Bars         []PriceBar `json:"bars"`
}

// NewPriceSeries sorts bars by timestamp and rejects duplicate timestamps.
func NewPriceSeries(instrumentID string, bars []PriceBar) (PriceSeries, error) {
	out := make([]PriceBar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	for i := 1; i < len(out); i++ {
		if out[i].Timestamp.Equal(out[i-1].Timestamp) {
			return PriceSeries{}, fmt.Errorf("duplicate bar timestamp %s for %s", out[i].Timestamp.Format(time.RFC3339), instrumentID)
		}
	}
	return PriceSeries{InstrumentID: instrumentID, Bars: out}, nil
}

func (s PriceSeries) Len() int { return len(s.Bars) }

// Start returns the first bar timestamp, zero for an empty series.
func (s PriceSeries) Start() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[0].Timestamp
}

// End returns the last bar timestamp, zero for an empty series.
func (s PriceSeries) End() time.Time {
	if len(s.Bars) == 0 {
		return time.Time{}
	}
	return s.Bars[len(s.Bars)-1].Timestamp
}

func (s PriceSeries) Highs() []float64  { return s.column(func(b PriceBar) float64 { return b.High }) }
func (s PriceSeries) Lows() []float64   { return s.column(func(b PriceBar) float64 { return b.Low }) }
func (s PriceSeries) Closes() []float64 { return s.column(func(b PriceBar) float64 { return b.Close }) }
func (s PriceSeries) Volumes() []float64 {
	return s.column(func(b PriceBar) float64 { return b.Volume })
}

// column returns a fresh slice so callers can never mutate the bars.
func (s PriceSeries) column(get func(PriceBar) float64) []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = get(b)
	}
	return out
}
