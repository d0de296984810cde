package strategy

import (
	"fmt"

	"StockVote/internal/domain/models"

	"github.com/markcheno/go-talib"
)

const KDJName = "kdj"

// KDJ trades K/D crosses, weighted up inside the extreme zones.
type KDJ struct {
	Period       int
	Oversold     float64
	Overbought   float64
	RSIPeriod    int
	VolumeFactor float64
	lookback     int
}

func NewKDJ() *KDJ {
	return &KDJ{Period: 9, Oversold: 20, Overbought: 80, RSIPeriod: 14, VolumeFactor: 1.2, lookback: 50}
}

func (s *KDJ) Name() string        { return KDJName }
func (s *KDJ) Description() string { return "KDJ stochastic crosses and overbought/oversold zones" }
func (s *KDJ) Lookback() int       { return s.lookback }

func (s *KDJ) ComputeIndicators(series models.PriceSeries) (*IndicatorTable, error) {
	if err := requireBars(series, s.lookback); err != nil {
		return nil, err
	}
	closes := series.Closes()
	k, d, j := kdj(series.Highs(), series.Lows(), closes, s.Period)
	t := NewIndicatorTable(series)
	t.Set("k", k)
	t.Set("d", d)
	t.Set("j", j)
	t.Set("rsi", rsi(closes, s.RSIPeriod))
	t.Set("volume_ratio", volumeRatio(series.Volumes(), 20))
	t.Set("ema_20", talib.Ema(closes, 20))
	t.Set("close", closes)
	return t, nil
}

func (s *KDJ) GenerateSignal(t *IndicatorTable) (models.StrategyResult, error) {
	if t.Len() < 2 {
		return models.StrategyResult{}, InsufficientDataError(t.Len(), 2)
	}
	ind := t.snapshot("k", "d", "j", "rsi", "volume_ratio", "close")
	k, d, j := t.Last("k"), t.Last("d"), t.Last("j")
	r := t.Last("rsi")
	vr := t.Last("volume_ratio")
	golden := crossedAbove(t.Column("k"), t.Column("d"))
	death := crossedBelow(t.Column("k"), t.Column("d"))
	oversold := k < s.Oversold && d < s.Oversold
	overbought := k > s.Overbought && d > s.Overbought
	rising := k > t.At("k", 1) && d > t.At("d", 1)
	falling := k < t.At("k", 1) && d < t.At("d", 1)
	trendUp := t.Last("close") > t.Last("ema_20")

	switch {
	case golden && oversold:
		conf := 0.85
		reasons := []string{fmt.Sprintf("KDJ golden cross while oversold (K:%.1f, D:%.1f)", k, d)}
		if j < 0 {
			conf += 0.1
			reasons = append(reasons, fmt.Sprintf("J(%.1f) extremely oversold", j))
		}
		if r < 40 {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) confirms oversold", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case golden:
		conf := 0.7
		reasons := []string{fmt.Sprintf("KDJ golden cross (K:%.1f, D:%.1f)", k, d)}
		if trendUp {
			conf += 0.1
			reasons = append(reasons, "price trend up")
		}
		if rising {
			conf += 0.05
			reasons = append(reasons, "KDJ rising")
		}
		return t.result(s.Name(), models.SignalBuy, conf, reasons, ind), nil
	case death && overbought:
		conf := 0.85
		reasons := []string{fmt.Sprintf("KDJ death cross while overbought (K:%.1f, D:%.1f)", k, d)}
		if j > 100 {
			conf += 0.1
			reasons = append(reasons, fmt.Sprintf("J(%.1f) extremely overbought", j))
		}
		if r > 60 {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("RSI(%.1f) confirms overbought", r))
		}
		if vr > s.VolumeFactor {
			conf += 0.05
			reasons = append(reasons, fmt.Sprintf("volume expanding (%.1fx)", vr))
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case death:
		conf := 0.7
		reasons := []string{fmt.Sprintf("KDJ death cross (K:%.1f, D:%.1f)", k, d)}
		if !trendUp {
			conf += 0.1
			reasons = append(reasons, "price trend down")
		}
		if falling {
			conf += 0.05
			reasons = append(reasons, "KDJ falling")
		}
		return t.result(s.Name(), models.SignalSell, conf, reasons, ind), nil
	case k > d && rising:
		if k > 50 && d > 50 {
			return t.result(s.Name(), models.SignalBuy, 0.55,
				[]string{fmt.Sprintf("KDJ bullish alignment (K:%.1f > D:%.1f)", k, d), "indicator rising"}, ind), nil
		}
	case k < d && falling:
		if k < 50 && d < 50 {
			return t.result(s.Name(), models.SignalSell, 0.55,
				[]string{fmt.Sprintf("KDJ bearish alignment (K:%.1f < D:%.1f)", k, d), "indicator falling"}, ind), nil
		}
	}
	return t.result(s.Name(), models.SignalHold, 0.5,
		[]string{fmt.Sprintf("KDJ neutral (K:%.1f, D:%.1f), waiting for a cross", k, d)}, ind), nil
}
