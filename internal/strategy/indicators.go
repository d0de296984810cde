package strategy

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"
)

// volumeRatio is volume divided by its simple moving average.
func volumeRatio(volumes []float64, period int) []float64 {
	sma := talib.Sma(volumes, period)
	out := make([]float64, len(volumes))
	for i := range volumes {
		if sma[i] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = volumes[i] / sma[i]
	}
	return out
}

// momentum is the relative change over n bars.
func momentum(closes []float64, n int) []float64 {
	out := make([]float64, len(closes))
	for i := range closes {
		if i < n || closes[i-n] == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = (closes[i] - closes[i-n]) / closes[i-n]
	}
	return out
}

// slope is the average per-bar change over n bars.
func slope(values []float64, n int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		if i < n {
			out[i] = math.NaN()
			continue
		}
		out[i] = (values[i] - values[i-n]) / float64(n)
	}
	return out
}

// rollingQuantile returns the q-quantile of the trailing window, linear
// interpolation between closest ranks.
func rollingQuantile(values []float64, window int, q float64) []float64 {
	out := make([]float64, len(values))
	buf := make([]float64, window)
	for i := range values {
		if i+1 < window {
			out[i] = math.NaN()
			continue
		}
		copy(buf, values[i+1-window:i+1])
		sort.Float64s(buf)
		pos := q * float64(window-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		out[i] = buf[lo] + (buf[hi]-buf[lo])*(pos-float64(lo))
	}
	return out
}

// kdj computes the stochastic K, D and J lines with 1/3 smoothing seeded at 50.
func kdj(highs, lows, closes []float64, period int) (k, d, j []float64) {
	n := len(closes)
	k = make([]float64, n)
	d = make([]float64, n)
	j = make([]float64, n)
	kPrev, dPrev := 50.0, 50.0
	for i := 0; i < n; i++ {
		if i+1 >= period {
			lo, hi := lows[i], highs[i]
			for w := i + 1 - period; w <= i; w++ {
				lo = math.Min(lo, lows[w])
				hi = math.Max(hi, highs[w])
			}
			if hi > lo {
				rsv := (closes[i] - lo) / (hi - lo) * 100
				kPrev = 2.0/3.0*kPrev + rsv/3.0
			}
		}
		dPrev = 2.0/3.0*dPrev + kPrev/3.0
		k[i], d[i] = kPrev, dPrev
		j[i] = 3*kPrev - 2*dPrev
	}
	return k, d, j
}

// crossedAbove reports a crossing of a over b on the last bar.
func crossedAbove(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	return a[n-1] > b[n-1] && a[n-2] <= b[n-2]
}

// crossedBelow reports a crossing of a under b on the last bar.
func crossedBelow(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	return a[n-1] < b[n-1] && a[n-2] >= b[n-2]
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return math.NaN()
	}
	return a / b
}

// rsi and macd are shared helper columns used by several strategies.
func rsi(closes []float64, period int) []float64 { return talib.Rsi(closes, period) }

func macd(closes []float64, fast, slow, signal int) (line, sig, hist []float64) {
	return talib.Macd(closes, fast, slow, signal)
}
