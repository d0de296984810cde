package strategy

import (
	"fmt"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const ADXTrendName = "adx_trend"

// ADXTrend scores trend strength from ADX, directional movement and EMA alignment.
type ADXTrend struct {
	ADXPeriod        int
	StrongTrend      float64
	WeakTrend        float64
	DIDiffThreshold  float64
	SlopeBars        int
	MinSlope         float64
	EMAFast, EMASlow int
	RSIPeriod        int
	RSIBuyLow        float64
	RSIBuyHigh       float64
	RSISell          float64
	VolumeFactor     float64
	BuyScore         float64
	SellScore        float64
	lookback         int
}

func NewADXTrend() *ADXTrend {
	return &ADXTrend{
		ADXPeriod: 14, StrongTrend: 30, WeakTrend: 20, DIDiffThreshold: 5,
		SlopeBars: 5, MinSlope: 1.5,
		EMAFast: 12, EMASlow: 30,
		RSIPeriod: 14, RSIBuyLow: 50, RSIBuyHigh: 80, RSISell: 75,
		VolumeFactor: 1.6,
		BuyScore:     0.7, SellScore: 0.4,
		lookback: 100,
	}
}

func (s *ADXTrend) Name() string { return ADXTrendName }
func (s *ADXTrend) Description() string {
	return "ADX trend strength with DI, EMA and MACD confirmation"
}
func (s *ADXTrend) Lookback() int { return s.lookback }

func (s *ADXTrend) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	highs, lows, closes := series.Highs(), series.Lows(), series.Closes()
	adx := talib.Adx(highs, lows, closes, s.ADXPeriod)
	plus := talib.PlusDI(highs, lows, closes, s.ADXPeriod)
	minus := talib.MinusDI(highs, lows, closes, s.ADXPeriod)
	diff := make([]float64, len(closes))
	for i := range closes {
		diff[i] = plus[i] - minus[i]
	}
	line, sig, _ := macd(closes, 12, 26, 9)

	t := NewIndicatorTable(series)
	t.Set("adx", adx)
	t.Set("di_plus", plus)
	t.Set("di_minus", minus)
	t.Set("di_diff", diff)
	t.Set("adx_slope", slope(adx, s.SlopeBars))
	t.Set("atr", talib.Atr(highs, lows, closes, s.ADXPeriod))
	t.Set("rsi", rsi(closes, s.RSIPeriod))
	t.Set("ema_fast", talib.Ema(closes, s.EMAFast))
	t.Set("ema_slow", talib.Ema(closes, s.EMASlow))
	t.Set("macd", line)
	t.Set("macd_signal", sig)
	t.Set("momentum", momentum(closes, s.SlopeBars))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	t.Set("close", closes)
	return t, nil
}

func (s *ADXTrend) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 2 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 2)
	}
	adx := t.Last("adx")
	diff := t.Last("di_diff")
	adxSlope := t.Last("adx_slope")
	r := t.Last("rsi")
	emaFast, emaSlow := t.Last("ema_fast"), t.Last("ema_slow")

	bullish := diff > s.DIDiffThreshold
	bearish := diff < -s.DIDiffThreshold
	strong := adx > s.StrongTrend
	weak := adx < s.WeakTrend
	rising := adxSlope > s.MinSlope
	falling := adxSlope < -s.MinSlope
	emaUp := emaFast > emaSlow
	priceAboveFast := t.Last("close") > emaFast
	macdBull := t.Last("macd") > t.Last("macd_signal")
	highVolume := t.Last("volume_ratio") > s.VolumeFactor

	trendScore := 0
	for _, c := range []struct {
		ok     bool
		weight int
	}{{bullish, 2}, {strong, 2}, {rising, 1}, {emaUp, 1}, {priceAboveFast, 1}, {macdBull, 1}} {
		if c.ok {
			trendScore += c.weight
		}
	}

	ind := t.snapshot("adx", "di_plus", "di_minus", "di_diff", "adx_slope", "rsi",
		"ema_fast", "ema_slow", "macd", "macd_signal", "close", "volume_ratio", "atr")
	ind["trend_score"] = models.Num(float64(trendScore))

	buyChecks := []bool{
		bullish, strong, rising, emaUp, priceAboveFast,
		r > s.RSIBuyLow && r < s.RSIBuyHigh,
		macdBull, highVolume, trendScore >= 6,
	}
	sellChecks := []bool{
		bearish, weak, falling, !emaUp, r > s.RSISell, !macdBull, trendScore <= 3,
	}
	buy := score(buyChecks)
	sell := score(sellChecks)

	switch {
	case buy >= s.BuyScore:
		reasons := []string{fmt.Sprintf("trend score %d, buy checks %.0f%%", trendScore, buy*100)}
		if bullish {
			reasons = append(reasons, fmt.Sprintf("+DI leads -DI by %.1f", diff))
		}
		if strong {
			reasons = append(reasons, fmt.Sprintf("ADX(%.1f) strong trend", adx))
		}
		if rising {
			reasons = append(reasons, "ADX rising")
		}
		if highVolume {
			reasons = append(reasons, "volume expanding")
		}
		return t.result(s.Name(), models.SignalBuy, buy, reasons, ind), nil
	case sell >= s.SellScore:
		reasons := []string{fmt.Sprintf("trend score %d, sell checks %.0f%%", trendScore, sell*100)}
		if bearish {
			reasons = append(reasons, fmt.Sprintf("-DI leads +DI by %.1f", -diff))
		}
		if weak {
			reasons = append(reasons, fmt.Sprintf("ADX(%.1f) trend fading", adx))
		}
		if falling {
			reasons = append(reasons, "ADX falling")
		}
		if r > s.RSISell {
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) overheated", r))
		}
		return t.result(s.Name(), models.SignalSell, sell, reasons, ind), nil
	}
	return t.result(s.Name(), models.SignalHold, 0.5, []string{"no clear buy/sell signal"}, ind), nil
}

// score is the fraction of checks that hold.
func score(checks []bool) float64 {
	if len(checks) == 0 {
		return 0
	}
	n := 0
	for _, ok := range checks {
		if ok {
			n++
		}
	}
	return float64(n) / float64(len(checks))
}
