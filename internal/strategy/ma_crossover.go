package strategy

import (
	"fmt"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const MACrossoverName = "ma_crossover"

// MACrossover follows fast/slow EMA crosses.
type MACrossover struct {
	FastPeriod    int
	SlowPeriod    int
	RSIPeriod     int
	RSIOversold   float64
	RSIOverbought float64
	VolumeFactor  float64
	lookback      int
}

func NewMACrossover() *MACrossover {
	return &MACrossover{
		FastPeriod: 20, SlowPeriod: 50,
		RSIPeriod: 14, RSIOversold: 30, RSIOverbought: 70,
		VolumeFactor: 1.2,
		lookback:     60,
	}
}

func (s *MACrossover) Name() string { return MACrossoverName }
func (s *MACrossover) Description() string {
	return "fast/slow moving average golden and death crosses"
}
func (s *MACrossover) Lookback() int { return s.lookback }

func (s *MACrossover) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	closes := series.Closes()
	fast := talib.Ema(closes, s.FastPeriod)
	slow := talib.Ema(closes, s.SlowPeriod)
	gap := make([]float64, len(closes))
	for i := range closes {
		gap[i] = ratio(fast[i]-slow[i], slow[i])
	}
	t := NewIndicatorTable(series)
	t.Set("ma_fast", fast)
	t.Set("ma_slow", slow)
	t.Set("ma_gap", gap)
	t.Set("rsi", rsi(closes, s.RSIPeriod))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	line, sig, _ := macd(closes, 12, 26, 9)
	t.Set("macd", line)
	t.Set("macd_signal", sig)
	t.Set("close", closes)
	return t, nil
}

func (s *MACrossover) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 4 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 4)
	}
	ind := t.snapshot("ma_fast", "ma_slow", "ma_gap", "rsi", "volume_ratio", "close")
	fast, slow := t.Last("ma_fast"), t.Last("ma_slow")
	r := t.Last("rsi")
	vr := t.Last("volume_ratio")
	priceAboveFast := t.Last("close") > fast
	fastRising := fast > t.At("ma_fast", 3)
	macdBull := t.Last("macd") > t.Last("macd_signal")

	switch {
	case crossedAbove(t.Column("ma_fast"), t.Column("ma_slow")):
		conf := 0.8
		reasons := []string{fmt.Sprintf("golden cross (fast %.2f > slow %.2f)", fast, slow)}
		if priceAboveFast {
			conf += 0.1
			reasons = append(reasons, "price above fast MA")
		}
		if fastRising {
			conf += 0.05
			reasons = append(reasons, "fast MA rising")
		}
		if r > 50 && r < s.RSIOverbought {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) strong but not overbought", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		if macdBull {
			conf += 0.05
			reasons = append(reasons, "MACD bullish")
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case crossedBelow(t.Column("ma_fast"), t.Column("ma_slow")):
		conf := 0.8
		reasons := []string{fmt.Sprintf("death cross (fast %.2f < slow %.2f)", fast, slow)}
		if !priceAboveFast {
			conf += 0.1
			reasons = append(reasons, "price below fast MA")
		}
		if !fastRising {
			conf += 0.05
			reasons = append(reasons, "fast MA falling")
		}
		if r < 50 && r > s.RSIOversold {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) weak but not oversold", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		if !macdBull {
			conf += 0.05
			reasons = append(reasons, "MACD bearish")
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case fast > slow:
		if priceAboveFast && fastRising && r > 50 {
			return t.result(s.Name(), models.SignalBuy, 0.6,
				[]string{"fast MA above slow MA", "price strong", fmt.Sprintf("RSI(%.1f) strong", r)}, ind), nil
		}
	default:
		if !priceAboveFast && !fastRising && r < 50 {
			return t.result(s.Name(), models.SignalSell, 0.6,
				[]string{"fast MA below slow MA", "price weak", fmt.Sprintf("RSI(%.1f) weak", r)}, ind), nil
		}
	}
	return t.result(s.Name(), models.SignalHold, 0.5, []string{"no clear moving average cross, waiting"}, ind), nil
}
