package strategy

import (
	"fmt"
	"math"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const BollingerName = "bollinger"

// Bollinger is a mean-reversion strategy on the band extremes.
type Bollinger struct {
	Period         int
	StdDev         float64
	RSIPeriod      int
	RSIOversold    float64
	RSIOverbought  float64
	VolumeFactor   float64
	LowerThreshold float64
	UpperThreshold float64
	lookback       int
}

func NewBollinger() *Bollinger {
	return &Bollinger{
		Period: 20, StdDev: 2.0,
		RSIPeriod: 14, RSIOversold: 35, RSIOverbought: 65,
		VolumeFactor:   1.2,
		LowerThreshold: 0.1, UpperThreshold: 0.9,
		lookback: 50,
	}
}

func (s *Bollinger) Name() string        { return BollingerName }
func (s *Bollinger) Description() string { return "Bollinger band mean reversion at the extremes" }
func (s *Bollinger) Lookback() int       { return s.lookback }

func (s *Bollinger) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	closes := series.Closes()
	upper, middle, lower := talib.BBands(closes, s.Period, s.StdDev, s.StdDev, talib.SMA)
	width := make([]float64, len(closes))
	percent := make([]float64, len(closes))
	for i := range closes {
		width[i] = ratio(upper[i]-lower[i], middle[i])
		percent[i] = ratio(closes[i]-lower[i], upper[i]-lower[i])
	}
	ema := talib.Ema(closes, 20)
	vsEMA := make([]float64, len(closes))
	for i := range closes {
		vsEMA[i] = ratio(closes[i], ema[i]) - 1
	}

	t := NewIndicatorTable(series)
	t.Set("bb_upper", upper)
	t.Set("bb_middle", middle)
	t.Set("bb_lower", lower)
	t.Set("bb_width", width)
	t.Set("bb_percent", percent)
	t.Set("bb_width_q20", rollingQuantile(width, 20, 0.2))
	t.Set("bb_width_q80", rollingQuantile(width, 20, 0.8))
	t.Set("rsi", rsi(closes, s.RSIPeriod))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	t.Set("price_vs_ema", vsEMA)
	t.Set("close", closes)
	return t, nil
}

func (s *Bollinger) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 2 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 2)
	}
	ind := t.snapshot("bb_percent", "bb_width", "rsi", "volume_ratio", "close", "bb_upper", "bb_lower", "bb_middle")
	pct := t.Last("bb_percent")
	r := t.Last("rsi")
	prevRSI := t.At("rsi", 1)
	vr := t.Last("volume_ratio")
	closePx := t.Last("close")
	squeeze := t.Last("bb_width") < t.Last("bb_width_q20")
	expansion := t.Last("bb_width") > t.Last("bb_width_q80")

	switch {
	case pct < s.LowerThreshold || closePx < t.Last("bb_lower"):
		conf := 0.75
		reasons := []string{fmt.Sprintf("price near lower band (position %.1f%%)", pct*100)}
		if r < s.RSIOversold {
			conf += 0.1
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) confirms oversold", r))
		}
		if r > prevRSI {
			conf += 0.05
			reasons = append(reasons, "RSI turning up")
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		if squeeze {
			conf += 0.05
			reasons = append(reasons, "bands squeezing, breakout pending")
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case pct > s.UpperThreshold || closePx > t.Last("bb_upper"):
		conf := 0.75
		reasons := []string{fmt.Sprintf("price near upper band (position %.1f%%)", pct*100)}
		if r > s.RSIOverbought {
			conf += 0.1
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) confirms overbought", r))
		}
		if r < prevRSI {
			conf += 0.05
			reasons = append(reasons, "RSI turning down")
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		if expansion {
			conf += 0.05
			reasons = append(reasons, "bands expanding, pressure building")
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case math.Abs(pct-0.5) < 0.1:
		vs := t.Last("price_vs_ema")
		if vs > 0 && r > 50 {
			return t.result(s.Name(), models.SignalBuy, 0.5,
				[]string{"price near middle band", "bias up", fmt.Sprintf("RSI(%.1f) neutral-strong", r)}, ind), nil
		}
		if vs < 0 && r < 50 {
			return t.result(s.Name(), models.SignalSell, 0.5,
				[]string{"price near middle band", "bias down", fmt.Sprintf("RSI(%.1f) neutral-weak", r)}, ind), nil
		}
	}
	return t.result(s.Name(), models.SignalHold, 0.5,
		[]string{fmt.Sprintf("price mid-band (%.1f%%), no clear signal", pct*100)}, ind), nil
}
