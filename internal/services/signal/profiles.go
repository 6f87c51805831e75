package signal

import (
	"fmt"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

// ProfileSet resolves threshold profiles by market class. It is built once
// at startup and only read afterwards.
type ProfileSet struct {
	profiles map[models.MarketClass]models.ThresholdProfile
}

// DefaultProfiles returns the stock thresholds. Gold trades in a tighter RSI
// band with wider ATR multiples.
func DefaultProfiles() map[models.MarketClass]models.ThresholdProfile {
	return map[models.MarketClass]models.ThresholdProfile{
		models.MarketCrypto: NewProfile(30, 70, 2, 3),
		models.MarketGold:   NewProfile(25, 75, 2.5, 4),
		models.MarketEquity: NewProfile(30, 70, 2, 3),
	}
}

func NewProfile(oversold, overbought, stopMult, targetMult float64) models.ThresholdProfile {
	return models.ThresholdProfile{
		Oversold:          decimal.NewFromFloat(oversold),
		Overbought:        decimal.NewFromFloat(overbought),
		StopLossATRMult:   decimal.NewFromFloat(stopMult),
		TakeProfitATRMult: decimal.NewFromFloat(targetMult),
	}
}

// NewProfileSet layers overrides over the defaults and validates the result.
func NewProfileSet(overrides map[models.MarketClass]models.ThresholdProfile) (*ProfileSet, error) {
	profiles := DefaultProfiles()
	for m, p := range overrides {
		if _, ok := profiles[m]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, m)
		}
		profiles[m] = p
	}
	for m, p := range profiles {
		if err := ValidateProfile(p); err != nil {
			return nil, fmt.Errorf("profile %s: %w", m, err)
		}
	}
	return &ProfileSet{profiles: profiles}, nil
}

func (ps *ProfileSet) For(m models.MarketClass) (models.ThresholdProfile, error) {
	p, ok := ps.profiles[m]
	if !ok {
		return models.ThresholdProfile{}, fmt.Errorf("%w: %q", ErrUnknownMarket, m)
	}
	return p, nil
}

// All returns a copy of every configured profile.
func (ps *ProfileSet) All() map[models.MarketClass]models.ThresholdProfile {
	out := make(map[models.MarketClass]models.ThresholdProfile, len(ps.profiles))
	for m, p := range ps.profiles {
		out[m] = p
	}
	return out
}
