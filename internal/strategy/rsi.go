package strategy

import (
	"fmt"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const RSIName = "rsi"

// RSI looks for reversals out of the overbought and oversold zones.
type RSI struct {
	Period       int
	Oversold     float64
	Overbought   float64
	Middle       float64
	EMAFast      int
	EMASlow      int
	VolumeFactor float64
	lookback     int
}

func NewRSI() *RSI {
	return &RSI{
		Period: 14, Oversold: 30, Overbought: 70, Middle: 50,
		EMAFast: 20, EMASlow: 50,
		VolumeFactor: 1.3,
		lookback:     50,
	}
}

func (s *RSI) Name() string { return RSIName }
func (s *RSI) Description() string {
	return "RSI overbought/oversold reversals with divergence and trend confirmation"
}
func (s *RSI) Lookback() int { return s.lookback }

func (s *RSI) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	closes := series.Closes()
	t := NewIndicatorTable(series)
	t.Set("rsi", rsi(closes, s.Period))
	t.Set("ema_fast", talib.Ema(closes, s.EMAFast))
	t.Set("ema_slow", talib.Ema(closes, s.EMASlow))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	line, sig, _ := macd(closes, 12, 26, 9)
	t.Set("macd", line)
	t.Set("macd_signal", sig)
	t.Set("close", closes)
	return t, nil
}

func (s *RSI) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 6 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 6)
	}
	r := t.Last("rsi")
	ind := t.snapshot("rsi", "close", "volume_ratio", "ema_fast", "ema_slow")
	ind["rsi_prev"] = models.Num(t.At("rsi", 1))

	rising := r > t.At("rsi", 1)
	falling := r < t.At("rsi", 1)
	priceHigher := t.Last("close") > t.At("close", 5)
	priceLower := t.Last("close") < t.At("close", 5)
	rsiLower := r < t.At("rsi", 5)
	rsiHigher := r > t.At("rsi", 5)
	trendUp := t.Last("ema_fast") > t.Last("ema_slow")
	priceAboveEMA := t.Last("close") > t.Last("ema_fast")
	highVolume := t.Last("volume_ratio") > s.VolumeFactor
	macdBull := t.Last("macd") > t.Last("macd_signal")

	switch {
	case r < s.Oversold:
		conf := 0.7
		reasons := []string{fmt.Sprintf("RSI(%.1f) oversold", r)}
		if rising {
			conf += 0.1
			reasons = append(reasons, "RSI turning up")
		}
		if priceLower && !rsiLower {
			conf += 0.15
			reasons = append(reasons, "bullish divergence")
		}
		if trendUp {
			conf += 0.05
			reasons = append(reasons, "primary trend up")
		}
		if highVolume {
			conf += 0.05
			reasons = append(reasons, "volume expanding")
		}
		if macdBull {
			conf += 0.05
			reasons = append(reasons, "MACD supportive")
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case r > s.Overbought:
		conf := 0.7
		reasons := []string{fmt.Sprintf("RSI(%.1f) overbought", r)}
		if falling {
			conf += 0.1
			reasons = append(reasons, "RSI turning down")
		}
		if priceHigher && !rsiHigher {
			conf += 0.15
			reasons = append(reasons, "bearish divergence")
		}
		if !trendUp {
			conf += 0.05
			reasons = append(reasons, "primary trend down")
		}
		if highVolume {
			conf += 0.05
			reasons = append(reasons, "volume expanding")
		}
		if !macdBull {
			conf += 0.05
			reasons = append(reasons, "MACD weakening")
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case r > s.Middle && trendUp:
		if priceAboveEMA && rising {
			return t.result(s.Name(), models.SignalBuy, 0.55,
				[]string{fmt.Sprintf("RSI(%.1f) neutral-strong", r), "trend up", "price strong"}, ind), nil
		}
	case r < s.Middle && !trendUp:
		if !priceAboveEMA && falling {
			return t.result(s.Name(), models.SignalSell, 0.55,
				[]string{fmt.Sprintf("RSI(%.1f) neutral-weak", r), "trend down", "price weak"}, ind), nil
		}
	}
	return t.result(s.Name(), models.SignalHold, 0.5,
		[]string{fmt.Sprintf("RSI(%.1f) in neutral zone, waiting for a clear signal", r)}, ind), nil
}
