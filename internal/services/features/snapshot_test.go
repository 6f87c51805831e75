package features

import (
	"testing"
	"time"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// risingCandles closes at 100, 101, 102... with a fixed 2-point range.
func risingCandles(n int) []models.Candle {
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		c := decimal.NewFromInt(int64(100 + i))
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     c,
			High:     c.Add(decimal.NewFromInt(1)),
			Low:      c.Sub(decimal.NewFromInt(1)),
			Close:    c,
			Volume:   decimal.NewFromInt(10),
		}
	}
	return out
}

var btc = models.Instrument{Symbol: "BTCUSDT", Market: models.MarketCrypto, Source: models.SourceBinance, Interval: "5m"}

func TestBuildOnRisingSeries(t *testing.T) {
	b, err := NewBuilder(DefaultPeriods())
	require.NoError(t, err)

	candles := risingCandles(60)
	snap, err := b.Build(btc, candles)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Instrument)
	assert.Equal(t, models.MarketCrypto, snap.Market)
	assert.True(t, snap.Price.Equal(decimal.NewFromInt(159)))
	assert.Equal(t, candles[59].OpenTime, snap.At)

	assert.InDelta(t, 149.5, snap.SMAShort.InexactFloat64(), 1e-9)
	assert.InDelta(t, 134.5, snap.SMALong.InexactFloat64(), 1e-9)
	assert.InDelta(t, 100, snap.RSI.InexactFloat64(), 1e-9)
	assert.InDelta(t, 2, snap.ATR.InexactFloat64(), 1e-9)

	assert.True(t, snap.EMAShort.GreaterThan(snap.EMALong), "short EMA leads in an uptrend")
	assert.True(t, snap.MACDLine.IsPositive())
	assert.True(t, snap.BollingerUpper.GreaterThan(snap.BollingerLower))
}

func TestBuildInsufficientHistory(t *testing.T) {
	b, err := NewBuilder(DefaultPeriods())
	require.NoError(t, err)

	_, err = b.Build(btc, risingCandles(DefaultPeriods().MinCandles()-1))
	require.ErrorIs(t, err, ErrInsufficientHistory)

	_, err = b.Build(btc, nil)
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestMinCandles(t *testing.T) {
	assert.Equal(t, 51, DefaultPeriods().MinCandles())

	p := DefaultPeriods()
	p.SMALong = 30
	// MACD 26+9-1 now dominates
	assert.Equal(t, 35, p.MinCandles())
}

func TestPeriodsValidate(t *testing.T) {
	p := DefaultPeriods()
	p.MACDFast = 30
	_, err := NewBuilder(p)
	require.Error(t, err)

	p = DefaultPeriods()
	p.RSI = 1
	_, err = NewBuilder(p)
	require.Error(t, err)

	p = DefaultPeriods()
	p.BollingerStdDev = 0
	_, err = NewBuilder(p)
	require.Error(t, err)
}
