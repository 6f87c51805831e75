package signal

import (
	"errors"
	"fmt"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

const (
	MaxScore = 10

	ReasonRSIOversold    = "RSI oversold"
	ReasonRSIOverbought  = "RSI overbought"
	ReasonMACDBullish    = "MACD bullish crossover"
	ReasonMACDBearish    = "MACD bearish crossover"
	ReasonTrendUp        = "Price above rising moving averages"
	ReasonTrendDown      = "Price below falling moving averages"
	ReasonGoldenCross    = "EMA golden cross"
	ReasonDeathCross     = "EMA death cross"
	ReasonBelowLowerBand = "Price at/below lower Bollinger Band"
	ReasonAboveUpperBand = "Price at/above upper Bollinger Band"
)

var hundred = decimal.NewFromInt(100)

// Evaluator scores indicator snapshots. It holds no state and is safe for
// concurrent use.
type Evaluator struct{}

func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate accumulates a signed score over the RSI, MACD, moving average
// trend, EMA and Bollinger rules, classifies it and derives ATR based
// levels for directional results.
func (Evaluator) Evaluate(s models.IndicatorSnapshot, p models.ThresholdProfile) (models.SignalResult, error) {
	if err := ValidateSnapshot(s); err != nil {
		return models.SignalResult{}, err
	}
	if err := ValidateProfile(p); err != nil {
		return models.SignalResult{}, err
	}

	score, reasons := scoreSnapshot(s, p)
	return withLevels(s, p, score, reasons)
}

// EvaluateWithState scores like Evaluate and advances the EMA state of the
// instrument. prior is returned untouched when the snapshot is rejected.
func (e Evaluator) EvaluateWithState(s models.IndicatorSnapshot, p models.ThresholdProfile, prior models.EMAState) (models.SignalResult, models.EMAState, error) {
	res, err := e.Evaluate(s, p)

	var lvl *InvalidLevelError
	if err != nil && !errors.As(err, &lvl) {
		return models.SignalResult{}, prior, err
	}

	next := NextEMAState(prior, s.EMAShort, s.EMALong)
	fresh := IsFreshCross(prior, next)
	if lvl != nil {
		lvl.fallback.FreshCross = fresh
		return models.SignalResult{}, next, err
	}
	res.FreshCross = fresh
	return res, next, nil
}

func scoreSnapshot(s models.IndicatorSnapshot, p models.ThresholdProfile) (int, []string) {
	score := 0
	reasons := make([]string, 0, 5)

	switch {
	case s.RSI.LessThan(p.Oversold):
		score += 2
		reasons = append(reasons, ReasonRSIOversold)
	case s.RSI.GreaterThan(p.Overbought):
		score -= 2
		reasons = append(reasons, ReasonRSIOverbought)
	}

	switch s.MACDLine.Cmp(s.MACDSignal) {
	case 1:
		score++
		reasons = append(reasons, ReasonMACDBullish)
	case -1:
		score--
		reasons = append(reasons, ReasonMACDBearish)
	}

	switch {
	case s.Price.GreaterThan(s.SMAShort) && s.SMAShort.GreaterThan(s.SMALong):
		score += 2
		reasons = append(reasons, ReasonTrendUp)
	case s.Price.LessThan(s.SMAShort) && s.SMAShort.LessThan(s.SMALong):
		score -= 2
		reasons = append(reasons, ReasonTrendDown)
	}

	// one-shot comparison, cross memory lives in EvaluateWithState
	switch s.EMAShort.Cmp(s.EMALong) {
	case 1:
		score++
		reasons = append(reasons, ReasonGoldenCross)
	case -1:
		score--
		reasons = append(reasons, ReasonDeathCross)
	}

	// both fire on a zero-width band and cancel out
	if s.Price.LessThanOrEqual(s.BollingerLower) {
		score++
		reasons = append(reasons, ReasonBelowLowerBand)
	}
	if s.Price.GreaterThanOrEqual(s.BollingerUpper) {
		score--
		reasons = append(reasons, ReasonAboveUpperBand)
	}

	return clamp(score), reasons
}

func withLevels(s models.IndicatorSnapshot, p models.ThresholdProfile, score int, reasons []string) (models.SignalResult, error) {
	res := models.SignalResult{
		Direction: Classify(score),
		Strength:  abs(score),
		Score:     score,
		Reasons:   reasons,
	}
	if res.Direction == models.Neutral {
		return res, nil
	}

	entry := s.Price
	stopDist := p.StopLossATRMult.Mul(s.ATR)
	targetDist := p.TakeProfitATRMult.Mul(s.ATR)

	var stop, target decimal.Decimal
	if res.Direction.IsLong() {
		stop, target = entry.Sub(stopDist), entry.Add(targetDist)
	} else {
		stop, target = entry.Add(stopDist), entry.Sub(targetDist)
	}

	var rejected string
	switch {
	case !stop.IsPositive() || !target.IsPositive():
		rejected = fmt.Sprintf("%s levels not positive (stop_loss=%s take_profit=%s)", res.Direction, stop.String(), target.String())
	case !s.ATR.IsPositive():
		rejected = fmt.Sprintf("%s levels collapse onto entry with zero ATR", res.Direction)
	}
	if rejected != "" {
		fallback := res
		fallback.Direction = models.Neutral
		fallback.RejectedReason = rejected
		return models.SignalResult{}, &InvalidLevelError{
			Direction:  res.Direction,
			StopLoss:   stop,
			TakeProfit: target,
			fallback:   fallback,
		}
	}

	res.Entry = &entry
	res.StopLoss = &stop
	res.TakeProfit = &target
	return res, nil
}

// Classify maps a clamped score onto a direction. Thresholds are fixed and
// inclusive toward the strong tiers.
func Classify(score int) models.Direction {
	switch {
	case score >= 4:
		return models.StrongLong
	case score >= 2:
		return models.Long
	case score > -2:
		return models.Neutral
	case score > -4:
		return models.Short
	default:
		return models.StrongShort
	}
}

// NextEMAState moves to the side the short EMA currently sits on. Equal
// averages keep the prior state.
func NextEMAState(prior models.EMAState, short, long decimal.Decimal) models.EMAState {
	switch short.Cmp(long) {
	case 1:
		return models.EMABullish
	case -1:
		return models.EMABearish
	}
	if prior == "" {
		return models.EMAUnknown
	}
	return prior
}

// IsFreshCross reports a flip between the two known sides.
func IsFreshCross(prior, next models.EMAState) bool {
	return (prior == models.EMABearish && next == models.EMABullish) ||
		(prior == models.EMABullish && next == models.EMABearish)
}

func ValidateSnapshot(s models.IndicatorSnapshot) error {
	switch {
	case !s.Price.IsPositive():
		return &InvalidSnapshotError{Field: "price", Reason: "must be positive"}
	case s.RSI.IsNegative() || s.RSI.GreaterThan(hundred):
		return &InvalidSnapshotError{Field: "rsi", Reason: "must be within [0,100]"}
	case s.ATR.IsNegative():
		return &InvalidSnapshotError{Field: "atr", Reason: "must not be negative"}
	case s.BollingerUpper.LessThan(s.BollingerLower):
		return &InvalidSnapshotError{Field: "bollinger_upper", Reason: "must not be below bollinger_lower"}
	}
	return nil
}

func ValidateProfile(p models.ThresholdProfile) error {
	if !p.Oversold.IsPositive() || !p.Oversold.LessThan(p.Overbought) || !p.Overbought.LessThan(hundred) {
		return fmt.Errorf("%w: need 0 < oversold < overbought < 100, got %s/%s",
			ErrInvalidProfile, p.Oversold.String(), p.Overbought.String())
	}
	if !p.StopLossATRMult.IsPositive() || !p.TakeProfitATRMult.IsPositive() {
		return fmt.Errorf("%w: atr multipliers must be positive", ErrInvalidProfile)
	}
	return nil
}

func clamp(score int) int {
	if score > MaxScore {
		return MaxScore
	}
	if score < -MaxScore {
		return -MaxScore
	}
	return score
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
