package service

import "SignalDesk/internal/domain/models"

// SignalEvaluator scores an indicator snapshot. Implementations are pure.
type SignalEvaluator interface {
	Evaluate(s models.IndicatorSnapshot, p models.ThresholdProfile) (models.SignalResult, error)
	EvaluateWithState(s models.IndicatorSnapshot, p models.ThresholdProfile, prior models.EMAState) (models.SignalResult, models.EMAState, error)
}

// ProfileResolver maps a market class onto its threshold profile.
type ProfileResolver interface {
	For(m models.MarketClass) (models.ThresholdProfile, error)
	All() map[models.MarketClass]models.ThresholdProfile
}

// SnapshotBuilder turns candles into an indicator snapshot.
type SnapshotBuilder interface {
	Build(in models.Instrument, candles []models.Candle) (models.IndicatorSnapshot, error)
}
