package signal

import (
	"errors"
	"testing"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// neutralSnapshot trips no rule: RSI mid band, flat MACD, price between
// the SMAs, equal EMAs, price inside the bands.
func neutralSnapshot() models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		Instrument:     "BTCUSDT",
		Market:         models.MarketCrypto,
		Price:          d("100"),
		RSI:            d("50"),
		MACDLine:       d("0"),
		MACDSignal:     d("0"),
		SMAShort:       d("101"),
		SMALong:        d("99"),
		EMAShort:       d("100"),
		EMALong:        d("100"),
		BollingerUpper: d("110"),
		BollingerLower: d("90"),
		ATR:            d("2"),
	}
}

func cryptoProfile() models.ThresholdProfile { return NewProfile(30, 70, 2, 3) }

func TestEvaluateAllNeutral(t *testing.T) {
	res, err := NewEvaluator().Evaluate(neutralSnapshot(), cryptoProfile())
	require.NoError(t, err)

	assert.Equal(t, models.Neutral, res.Direction)
	assert.Equal(t, 0, res.Strength)
	assert.Equal(t, 0, res.Score)
	assert.Empty(t, res.Reasons)
	assert.Nil(t, res.Entry)
	assert.Nil(t, res.StopLoss)
	assert.Nil(t, res.TakeProfit)
}

func TestEvaluateEveryBullishRule(t *testing.T) {
	s := neutralSnapshot()
	s.RSI = d("20")
	s.MACDLine, s.MACDSignal = d("1.5"), d("0.5")
	s.SMAShort, s.SMALong = d("95"), d("90")
	s.EMAShort, s.EMALong = d("98"), d("97")
	s.BollingerLower, s.BollingerUpper = d("100"), d("110")

	res, err := NewEvaluator().Evaluate(s, cryptoProfile())
	require.NoError(t, err)

	assert.Equal(t, models.StrongLong, res.Direction)
	assert.Equal(t, 7, res.Strength)
	assert.Equal(t, []string{
		ReasonRSIOversold,
		ReasonMACDBullish,
		ReasonTrendUp,
		ReasonGoldenCross,
		ReasonBelowLowerBand,
	}, res.Reasons)

	require.True(t, res.HasLevels())
	assert.True(t, res.Entry.Equal(d("100")))
	assert.True(t, res.StopLoss.Equal(d("96")), "stop %s", res.StopLoss)
	assert.True(t, res.TakeProfit.Equal(d("106")), "target %s", res.TakeProfit)
}

func TestEvaluateEveryBearishRule(t *testing.T) {
	s := neutralSnapshot()
	s.RSI = d("85")
	s.MACDLine, s.MACDSignal = d("-1"), d("0")
	s.SMAShort, s.SMALong = d("105"), d("110")
	s.EMAShort, s.EMALong = d("101"), d("102")
	s.BollingerLower, s.BollingerUpper = d("90"), d("100")

	res, err := NewEvaluator().Evaluate(s, cryptoProfile())
	require.NoError(t, err)

	assert.Equal(t, models.StrongShort, res.Direction)
	assert.Equal(t, 7, res.Strength)
	assert.Equal(t, -7, res.Score)
	assert.Equal(t, []string{
		ReasonRSIOverbought,
		ReasonMACDBearish,
		ReasonTrendDown,
		ReasonDeathCross,
		ReasonAboveUpperBand,
	}, res.Reasons)

	require.True(t, res.HasLevels())
	assert.True(t, res.StopLoss.Equal(d("104")))
	assert.True(t, res.TakeProfit.Equal(d("94")))
}

func TestEvaluateBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*models.IndicatorSnapshot)
		score int
		want  models.Direction
	}{
		{"score 1 stays neutral", func(s *models.IndicatorSnapshot) { s.MACDLine = d("1") }, 1, models.Neutral},
		{"score -1 stays neutral", func(s *models.IndicatorSnapshot) { s.MACDLine = d("-1") }, -1, models.Neutral},
		{"score 2 is long", func(s *models.IndicatorSnapshot) { s.RSI = d("20") }, 2, models.Long},
		{"score -2 is short", func(s *models.IndicatorSnapshot) { s.RSI = d("80") }, -2, models.Short},
		{"score 3 is long", func(s *models.IndicatorSnapshot) {
			s.RSI = d("20")
			s.MACDLine = d("1")
		}, 3, models.Long},
		{"score 4 is strong long", func(s *models.IndicatorSnapshot) {
			s.RSI = d("20")
			s.SMAShort, s.SMALong = d("95"), d("90")
		}, 4, models.StrongLong},
		{"score -4 is strong short", func(s *models.IndicatorSnapshot) {
			s.RSI = d("80")
			s.SMAShort, s.SMALong = d("105"), d("110")
		}, -4, models.StrongShort},
		{"rsi equal to oversold does not count", func(s *models.IndicatorSnapshot) { s.RSI = d("30") }, 0, models.Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := neutralSnapshot()
			tt.edit(&s)
			res, err := NewEvaluator().Evaluate(s, cryptoProfile())
			require.NoError(t, err)
			assert.Equal(t, tt.score, res.Score)
			assert.Equal(t, tt.want, res.Direction)
		})
	}
}

func TestEvaluateZeroWidthBandCancels(t *testing.T) {
	s := neutralSnapshot()
	s.BollingerLower, s.BollingerUpper = d("100"), d("100")

	res, err := NewEvaluator().Evaluate(s, cryptoProfile())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, []string{ReasonBelowLowerBand, ReasonAboveUpperBand}, res.Reasons)
}

func TestEvaluateInvalidSnapshot(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(*models.IndicatorSnapshot)
		field string
	}{
		{"rsi above 100", func(s *models.IndicatorSnapshot) { s.RSI = d("150") }, "rsi"},
		{"rsi below 0", func(s *models.IndicatorSnapshot) { s.RSI = d("-0.1") }, "rsi"},
		{"negative atr", func(s *models.IndicatorSnapshot) { s.ATR = d("-1") }, "atr"},
		{"inverted bands", func(s *models.IndicatorSnapshot) { s.BollingerUpper = d("80") }, "bollinger_upper"},
		{"zero price", func(s *models.IndicatorSnapshot) { s.Price = decimal.Zero }, "price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := neutralSnapshot()
			tt.edit(&s)
			res, err := NewEvaluator().Evaluate(s, cryptoProfile())
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSnapshot))

			var snapErr *InvalidSnapshotError
			require.True(t, errors.As(err, &snapErr))
			assert.Equal(t, tt.field, snapErr.Field)
			assert.Equal(t, models.SignalResult{}, res)
		})
	}
}

func TestEvaluateRsiBoundsInclusive(t *testing.T) {
	for _, v := range []string{"0", "100"} {
		s := neutralSnapshot()
		s.RSI = d(v)
		_, err := NewEvaluator().Evaluate(s, cryptoProfile())
		require.NoError(t, err, "rsi=%s", v)
	}
}

func TestEvaluateInvalidLevel(t *testing.T) {
	t.Run("long stop below zero", func(t *testing.T) {
		s := neutralSnapshot()
		s.RSI = d("20")
		s.ATR = d("60")

		res, err := NewEvaluator().Evaluate(s, cryptoProfile())
		require.ErrorIs(t, err, ErrInvalidLevel)
		assert.Equal(t, models.SignalResult{}, res)

		var lvl *InvalidLevelError
		require.True(t, errors.As(err, &lvl))
		assert.Equal(t, models.Long, lvl.Direction)
		assert.True(t, lvl.StopLoss.Equal(d("-20")))

		fb := lvl.Fallback()
		assert.Equal(t, models.Neutral, fb.Direction)
		assert.Equal(t, 2, fb.Score)
		assert.Equal(t, []string{ReasonRSIOversold}, fb.Reasons)
		assert.NotEmpty(t, fb.RejectedReason)
		assert.False(t, fb.HasLevels())
	})

	t.Run("short target below zero", func(t *testing.T) {
		s := neutralSnapshot()
		s.RSI = d("80")
		s.ATR = d("40")

		_, err := NewEvaluator().Evaluate(s, cryptoProfile())
		var lvl *InvalidLevelError
		require.True(t, errors.As(err, &lvl))
		assert.Equal(t, models.Short, lvl.Direction)
		assert.True(t, lvl.TakeProfit.Equal(d("-20")))
	})

	t.Run("zero atr", func(t *testing.T) {
		s := neutralSnapshot()
		s.RSI = d("20")
		s.ATR = decimal.Zero

		_, err := NewEvaluator().Evaluate(s, cryptoProfile())
		require.ErrorIs(t, err, ErrInvalidLevel)
	})

	t.Run("zero atr is fine when neutral", func(t *testing.T) {
		s := neutralSnapshot()
		s.ATR = decimal.Zero

		res, err := NewEvaluator().Evaluate(s, cryptoProfile())
		require.NoError(t, err)
		assert.Equal(t, models.Neutral, res.Direction)
	})
}

func TestEvaluateRejectsBadProfile(t *testing.T) {
	_, err := NewEvaluator().Evaluate(neutralSnapshot(), NewProfile(70, 30, 2, 3))
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestEvaluateDeterministic(t *testing.T) {
	s := neutralSnapshot()
	s.RSI = d("22.5")
	s.MACDLine = d("0.0001")
	ev := NewEvaluator()

	first, err := ev.Evaluate(s, cryptoProfile())
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		again, err := ev.Evaluate(s, cryptoProfile())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

// TestEvaluateInvariantSweep walks every combination of rule outcomes and
// checks the result shape.
func TestEvaluateInvariantSweep(t *testing.T) {
	rsis := []string{"20", "50", "80"}
	macds := []string{"-1", "0", "1"}
	trends := [][2]string{{"95", "90"}, {"101", "99"}, {"105", "110"}}
	emas := []string{"99", "100", "101"}
	bands := [][2]string{{"100", "110"}, {"90", "110"}, {"90", "100"}}

	ev := NewEvaluator()
	for _, rsi := range rsis {
		for _, macd := range macds {
			for _, tr := range trends {
				for _, ema := range emas {
					for _, band := range bands {
						s := neutralSnapshot()
						s.RSI = d(rsi)
						s.MACDLine = d(macd)
						s.SMAShort, s.SMALong = d(tr[0]), d(tr[1])
						s.EMAShort = d(ema)
						s.BollingerLower, s.BollingerUpper = d(band[0]), d(band[1])

						res, err := ev.Evaluate(s, cryptoProfile())
						require.NoError(t, err)

						require.GreaterOrEqual(t, res.Strength, 0)
						require.LessOrEqual(t, res.Strength, MaxScore)
						require.Equal(t, Classify(res.Score), res.Direction)

						switch {
						case res.Direction == models.Neutral:
							require.False(t, res.HasLevels())
							require.Nil(t, res.Entry)
						case res.Direction.IsLong():
							require.True(t, res.StopLoss.LessThan(*res.Entry))
							require.True(t, res.Entry.LessThan(*res.TakeProfit))
						default:
							require.True(t, res.TakeProfit.LessThan(*res.Entry))
							require.True(t, res.Entry.LessThan(*res.StopLoss))
						}
					}
				}
			}
		}
	}
}

func TestClassifyMonotonic(t *testing.T) {
	rank := map[models.Direction]int{
		models.StrongShort: 0,
		models.Short:       1,
		models.Neutral:     2,
		models.Long:        3,
		models.StrongLong:  4,
	}
	prev := rank[Classify(-MaxScore)]
	for score := -MaxScore + 1; score <= MaxScore; score++ {
		cur := rank[Classify(score)]
		require.GreaterOrEqual(t, cur, prev, "score %d", score)
		prev = cur
	}
}

func TestEvaluateWithState(t *testing.T) {
	ev := NewEvaluator()
	bull := neutralSnapshot()
	bull.EMAShort, bull.EMALong = d("101"), d("100")
	bear := neutralSnapshot()
	bear.EMAShort, bear.EMALong = d("99"), d("100")

	res, next, err := ev.EvaluateWithState(bull, cryptoProfile(), models.EMAUnknown)
	require.NoError(t, err)
	assert.Equal(t, models.EMABullish, next)
	assert.False(t, res.FreshCross, "no cross without a known prior side")

	res, next, err = ev.EvaluateWithState(bull, cryptoProfile(), models.EMABullish)
	require.NoError(t, err)
	assert.Equal(t, models.EMABullish, next)
	assert.False(t, res.FreshCross)

	res, next, err = ev.EvaluateWithState(bear, cryptoProfile(), models.EMABullish)
	require.NoError(t, err)
	assert.Equal(t, models.EMABearish, next)
	assert.True(t, res.FreshCross)

	// scoring matches the stateless call
	plain, err := ev.Evaluate(bear, cryptoProfile())
	require.NoError(t, err)
	assert.Equal(t, plain.Score, res.Score)
	assert.Equal(t, plain.Reasons, res.Reasons)
}

func TestEvaluateWithStateKeepsPriorOnEqualEMAs(t *testing.T) {
	_, next, err := NewEvaluator().EvaluateWithState(neutralSnapshot(), cryptoProfile(), models.EMABearish)
	require.NoError(t, err)
	assert.Equal(t, models.EMABearish, next)
}

func TestEvaluateWithStateInvalidSnapshotKeepsPrior(t *testing.T) {
	s := neutralSnapshot()
	s.EMAShort = d("120")
	s.RSI = d("101")

	_, next, err := NewEvaluator().EvaluateWithState(s, cryptoProfile(), models.EMABearish)
	require.ErrorIs(t, err, ErrInvalidSnapshot)
	assert.Equal(t, models.EMABearish, next)
}

func TestEvaluateWithStateInvalidLevelAdvancesState(t *testing.T) {
	s := neutralSnapshot()
	s.RSI = d("20")
	s.ATR = d("60")
	s.EMAShort, s.EMALong = d("101"), d("100")

	_, next, err := NewEvaluator().EvaluateWithState(s, cryptoProfile(), models.EMABearish)
	var lvl *InvalidLevelError
	require.True(t, errors.As(err, &lvl))
	assert.Equal(t, models.EMABullish, next)
	assert.True(t, lvl.Fallback().FreshCross)
}
