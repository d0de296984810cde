package strategy

import (
	"errors"
	"math"
	"testing"
	"time"

	"StockVote/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var seriesStart = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

// makeSeries builds n 15-minute bars whose close is price(i).
func makeSeries(t *testing.T, n int, price func(i int) float64) models.PriceSeries {
	t.Helper()
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := price(i)
		bars[i] = models.PriceBar{
			Timestamp: seriesStart.Add(time.Duration(i) * 15 * time.Minute),
			Open:      c * 0.998,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000 + float64(i%7)*100,
			Amount:    c * 1000,
		}
	}
	s, err := models.NewPriceSeries("sz.000001", bars)
	require.NoError(t, err)
	return s
}

func wave(i int) float64 { return 100 + 5*math.Sin(float64(i)/6) + float64(i)*0.05 }

func run(t *testing.T, s Strategy, series models.PriceSeries) models.StrategyResult {
	t.Helper()
	table, err := s.ComputeIndicators(series)
	require.NoError(t, err)
	res, err := s.GenerateSignal(table)
	require.NoError(t, err)
	return res
}

func TestBuiltinsProduceValidResults(t *testing.T) {
	series := makeSeries(t, 160, wave)
	for name, f := range Builtins() {
		t.Run(name, func(t *testing.T) {
			s := f()
			assert.Equal(t, name, s.Name())
			res := run(t, s, series)
			assert.Equal(t, name, res.StrategyName)
			assert.Equal(t, "sz.000001", res.InstrumentID)
			assert.Contains(t, models.Signals(), res.Signal)
			assert.GreaterOrEqual(t, res.Confidence, 0.0)
			assert.LessOrEqual(t, res.Confidence, 1.0)
			assert.NotEmpty(t, res.Reasons)
			assert.NotEmpty(t, res.Indicators)
			assert.Equal(t, models.StatusOK, res.Status)
			assert.Equal(t, series.Start(), res.WindowStart)
			assert.Equal(t, series.End(), res.WindowEnd)
			assert.Equal(t, series.Len(), res.DataPoints)
		})
	}
}

func TestBuiltinsAreDeterministic(t *testing.T) {
	series := makeSeries(t, 160, wave)
	for name, f := range Builtins() {
		t.Run(name, func(t *testing.T) {
			a := run(t, f(), series)
			b := run(t, f(), series)
			assert.Equal(t, a.Signal, b.Signal)
			assert.Equal(t, a.Confidence, b.Confidence)
			assert.Equal(t, a.Reasons, b.Reasons)
		})
	}
}

func TestBuiltinsRejectShortSeries(t *testing.T) {
	for name, f := range Builtins() {
		t.Run(name, func(t *testing.T) {
			s := f()
			series := makeSeries(t, s.Lookback()-1, wave)
			_, err := s.ComputeIndicators(series)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsufficientData))
		})
	}
}

func TestRSIExtremes(t *testing.T) {
	falling := makeSeries(t, 80, func(i int) float64 { return 200 - float64(i) })
	res := run(t, NewRSI(), falling)
	assert.Equal(t, models.SignalBuy, res.Signal)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)

	rising := makeSeries(t, 80, func(i int) float64 { return 100 + float64(i) })
	res = run(t, NewRSI(), rising)
	assert.Equal(t, models.SignalSell, res.Signal)
	assert.GreaterOrEqual(t, res.Confidence, 0.7)
}

func TestBollingerBuysBelowLowerBand(t *testing.T) {
	series := makeSeries(t, 60, func(i int) float64 {
		if i == 59 {
			return 90
		}
		return 100 + math.Sin(float64(i)/3)
	})
	res := run(t, NewBollinger(), series)
	assert.Equal(t, models.SignalBuy, res.Signal)
	assert.GreaterOrEqual(t, res.Confidence, 0.75)
	assert.Contains(t, res.IndicatorNames(), "bb_percent")
}

func TestIndicatorTableAt(t *testing.T) {
	table := NewIndicatorTable(makeSeries(t, 3, wave))
	table.Set("x", []float64{1, 2, 3})
	assert.Equal(t, 3.0, table.Last("x"))
	assert.Equal(t, 1.0, table.At("x", 2))
	assert.True(t, math.IsNaN(table.At("x", 3)))
	assert.True(t, math.IsNaN(table.Last("missing")))
}
