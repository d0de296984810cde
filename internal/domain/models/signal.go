package models

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Signal is one directional call. Only equality is meaningful.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Valid reports whether s is BUY, SELL or HOLD exactly.
func (s Signal) Valid() bool {
	return s == SignalBuy || s == SignalSell || s == SignalHold
}

// Signals lists every signal in display order.
func Signals() []Signal { return []Signal{SignalBuy, SignalSell, SignalHold} }

// ParseSignal accepts any casing of BUY, SELL or HOLD.
func ParseSignal(s string) (Signal, error) {
	switch Signal(strings.ToUpper(strings.TrimSpace(s))) {
	case SignalBuy:
		return SignalBuy, nil
	case SignalSell:
		return SignalSell, nil
	case SignalHold:
		return SignalHold, nil
	default:
		return "", fmt.Errorf("unknown signal %q", s)
	}
}

// ResultStatus tells a real vote apart from skipped and failed markers.
type ResultStatus string

const (
	StatusOK      ResultStatus = "ok"
	StatusSkipped ResultStatus = "skipped"
	StatusFailed  ResultStatus = "failed"
)

// IndicatorValue holds either a number or a text value.
type IndicatorValue struct {
	Number float64
	Text   string
	IsText bool
}

func Num(v float64) IndicatorValue { return IndicatorValue{Number: v} }
func Text(v string) IndicatorValue { return IndicatorValue{Text: v, IsText: true} }

func (v IndicatorValue) String() string {
	if v.IsText {
		return v.Text
	}
	return fmt.Sprintf("%g", v.Number)
}

func (v IndicatorValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

func (v *IndicatorValue) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*v = Num(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("indicator value: %w", err)
	}
	*v = Text(s)
	return nil
}

// StrategyResult is the output of one strategy invocation on one instrument.
type StrategyResult struct {
	InstrumentID string                    `json:"instrument_id"`
	StrategyName string                    `json:"strategy_name"`
	Signal       Signal                    `json:"signal"`
	Confidence   float64                   `json:"confidence"`
	Reasons      []string                  `json:"reasons"`
	Indicators   map[string]IndicatorValue `json:"indicators,omitempty"`
	WindowStart  time.Time                 `json:"window_start"`
	WindowEnd    time.Time                 `json:"window_end"`
	DataPoints   int                       `json:"data_points"`
	Status       ResultStatus              `json:"status"`
	Error        string                    `json:"error,omitempty"`
	AnalyzedAt   time.Time                 `json:"analyzed_at"`
}

// Valid reports whether the result is a real vote.
func (r StrategyResult) Valid() bool { return r.Status == StatusOK }

// Sanitize replaces non-finite numbers with 0 and clamps confidence to [0,1].
func (r *StrategyResult) Sanitize() {
	r.Confidence = clamp01(finite(r.Confidence))
	for k, v := range r.Indicators {
		if !v.IsText {
			r.Indicators[k] = Num(finite(v.Number))
		}
	}
}

// IndicatorNames returns indicator names in a stable order.
func (r StrategyResult) IndicatorNames() []string {
	names := make([]string, 0, len(r.Indicators))
	for k := range r.Indicators {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
