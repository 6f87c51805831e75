package features

import (
	"errors"
	"fmt"
	"math"

	"SignalDesk/internal/domain/models"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
)

// ErrInsufficientHistory means the candle series is too short for the
// configured lookbacks, or an indicator has not warmed up yet.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// Periods are the indicator lookbacks.
type Periods struct {
	SMAShort        int
	SMALong         int
	EMAShort        int
	EMALong         int
	RSI             int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerStdDev float64
	ATR             int
}

// DefaultPeriods: SMA 20/50, EMA 12/26, RSI 14, MACD 12/26/9,
// Bollinger 20x2, ATR 14.
func DefaultPeriods() Periods {
	return Periods{
		SMAShort:        20,
		SMALong:         50,
		EMAShort:        12,
		EMALong:         26,
		RSI:             14,
		MACDFast:        12,
		MACDSlow:        26,
		MACDSignal:      9,
		BollingerPeriod: 20,
		BollingerStdDev: 2,
		ATR:             14,
	}
}

func (p Periods) Validate() error {
	for name, v := range map[string]int{
		"sma_short":        p.SMAShort,
		"sma_long":         p.SMALong,
		"ema_short":        p.EMAShort,
		"ema_long":         p.EMALong,
		"rsi":              p.RSI,
		"macd_fast":        p.MACDFast,
		"macd_slow":        p.MACDSlow,
		"macd_signal":      p.MACDSignal,
		"bollinger_period": p.BollingerPeriod,
		"atr":              p.ATR,
	} {
		if v < 2 {
			return fmt.Errorf("indicator period %s must be at least 2, got %d", name, v)
		}
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd_fast (%d) must be below macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	if p.BollingerStdDev <= 0 {
		return fmt.Errorf("bollinger_stddev must be positive")
	}
	return nil
}

// MinCandles is the shortest series Build accepts.
func (p Periods) MinCandles() int {
	need := p.SMALong
	for _, v := range []int{
		p.SMAShort,
		p.EMAShort,
		p.EMALong,
		p.RSI,
		p.MACDSlow + p.MACDSignal - 1,
		p.BollingerPeriod,
		p.ATR,
	} {
		if v > need {
			need = v
		}
	}
	return need + 1
}

// Builder turns candles into an IndicatorSnapshot.
type Builder struct {
	periods Periods
}

func NewBuilder(p Periods) (*Builder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Builder{periods: p}, nil
}

// Build reads the latest value of every indicator. candles must be oldest
// first; the last candle's close is the snapshot price.
func (b *Builder) Build(in models.Instrument, candles []models.Candle) (models.IndicatorSnapshot, error) {
	p := b.periods
	if len(candles) < p.MinCandles() {
		return models.IndicatorSnapshot{}, fmt.Errorf("%w: have %d candles, need %d",
			ErrInsufficientHistory, len(candles), p.MinCandles())
	}

	closes := make([]float64, len(candles))
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
	}

	macd, signal, _ := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	upper, _, lower := talib.BBands(closes, p.BollingerPeriod, p.BollingerStdDev, p.BollingerStdDev, talib.SMA)

	values := []struct {
		name   string
		series []float64
	}{
		{"rsi", talib.Rsi(closes, p.RSI)},
		{"macd_line", macd},
		{"macd_signal", signal},
		{"sma_short", talib.Sma(closes, p.SMAShort)},
		{"sma_long", talib.Sma(closes, p.SMALong)},
		{"ema_short", talib.Ema(closes, p.EMAShort)},
		{"ema_long", talib.Ema(closes, p.EMALong)},
		{"bollinger_upper", upper},
		{"bollinger_lower", lower},
		{"atr", talib.Atr(highs, lows, closes, p.ATR)},
	}

	last := make(map[string]decimal.Decimal, len(values))
	for _, v := range values {
		d, err := lastValue(v.name, v.series)
		if err != nil {
			return models.IndicatorSnapshot{}, err
		}
		last[v.name] = d
	}

	final := candles[len(candles)-1]
	return models.IndicatorSnapshot{
		Instrument:     in.Symbol,
		Market:         in.Market,
		Price:          final.Close,
		RSI:            last["rsi"],
		MACDLine:       last["macd_line"],
		MACDSignal:     last["macd_signal"],
		SMAShort:       last["sma_short"],
		SMALong:        last["sma_long"],
		EMAShort:       last["ema_short"],
		EMALong:        last["ema_long"],
		BollingerUpper: last["bollinger_upper"],
		BollingerLower: last["bollinger_lower"],
		ATR:            last["atr"],
		At:             final.OpenTime,
	}, nil
}

func lastValue(name string, series []float64) (decimal.Decimal, error) {
	if len(series) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s produced no output", ErrInsufficientHistory, name)
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: %s is not finite", ErrInsufficientHistory, name)
	}
	return decimal.NewFromFloat(v), nil
}
