package strategy

import (
	"fmt"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const MACDName = "macd"

// MACD trades signal-line crosses confirmed by histogram slope, RSI and volume.
type MACD struct {
	Fast, Slow, SignalPeriod int
	RSIPeriod                int
	RSIOverbought            float64
	RSIOversold              float64
	VolumeFactor             float64
	lookback                 int
}

func NewMACD() *MACD {
	return &MACD{
		Fast: 12, Slow: 26, SignalPeriod: 9,
		RSIPeriod: 14, RSIOverbought: 70, RSIOversold: 30,
		VolumeFactor: 1.2,
		lookback:     50,
	}
}

func (s *MACD) Name() string        { return MACDName }
func (s *MACD) Description() string { return "MACD golden/death cross confirmed by RSI and volume" }
func (s *MACD) Lookback() int       { return s.lookback }

func (s *MACD) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	closes := series.Closes()
	t := NewIndicatorTable(series)
	line, sig, hist := macd(closes, s.Fast, s.Slow, s.SignalPeriod)
	t.Set("macd", line)
	t.Set("macd_signal", sig)
	t.Set("macd_hist", hist)
	t.Set("rsi", rsi(closes, s.RSIPeriod))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	t.Set("ema_fast", talib.Ema(closes, 12))
	t.Set("ema_slow", talib.Ema(closes, 26))
	t.Set("close", closes)
	return t, nil
}

func (s *MACD) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 2 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 2)
	}
	ind := t.snapshot("macd", "macd_signal", "macd_hist", "rsi", "volume_ratio", "close")
	r := t.Last("rsi")
	vr := t.Last("volume_ratio")
	histRising := t.Last("macd_hist") > t.At("macd_hist", 1)
	histFalling := t.Last("macd_hist") < t.At("macd_hist", 1)
	trendUp := t.Last("ema_fast") > t.Last("ema_slow")
	above := t.Last("macd") > t.Last("macd_signal")
	below := t.Last("macd") < t.Last("macd_signal")

	switch {
	case crossedAbove(t.Column("macd"), t.Column("macd_signal")):
		conf := 0.8
		reasons := []string{"MACD golden cross"}
		if histRising {
			conf += 0.1
			reasons = append(reasons, "MACD histogram rising")
		}
		if r < s.RSIOverbought {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) not overbought", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case crossedBelow(t.Column("macd"), t.Column("macd_signal")):
		conf := 0.8
		reasons := []string{"MACD death cross"}
		if histFalling {
			conf += 0.1
			reasons = append(reasons, "MACD histogram falling")
		}
		if r > s.RSIOversold {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) not oversold", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case above && trendUp && r < s.RSIOverbought:
		return t.result(s.Name(), models.SignalBuy, 0.6,
			[]string{"MACD above signal line", "trend up", fmt.Sprintf("RSI(%.1f) reasonable", r)}, ind), nil
	case below && !trendUp && r > s.RSIOversold:
		return t.result(s.Name(), models.SignalSell, 0.6,
			[]string{"MACD below signal line", "trend down", fmt.Sprintf("RSI(%.1f) reasonable", r)}, ind), nil
	}
	return t.result(s.Name(), models.SignalHold, 0.5, []string{"MACD signal unclear"}, ind), nil
}
