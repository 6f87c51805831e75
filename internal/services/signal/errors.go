package signal

import (
	"errors"
	"fmt"

	"SignalDesk/internal/domain/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidSnapshot = errors.New("invalid indicator snapshot")
	ErrInvalidLevel    = errors.New("invalid trading level")
	ErrInvalidProfile  = errors.New("invalid threshold profile")
	ErrUnknownMarket   = errors.New("unknown market class")
)

// InvalidSnapshotError reports an out-of-range indicator input. No result is
// produced alongside it.
type InvalidSnapshotError struct {
	Field  string
	Reason string
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrInvalidSnapshot, e.Field, e.Reason)
}

func (e *InvalidSnapshotError) Unwrap() error { return ErrInvalidSnapshot }

// InvalidLevelError reports a directional signal whose derived stop or
// target is not a usable price. Fallback returns the NEUTRAL downgrade.
type InvalidLevelError struct {
	Direction  models.Direction
	StopLoss   decimal.Decimal
	TakeProfit decimal.Decimal

	fallback models.SignalResult
}

func (e *InvalidLevelError) Error() string {
	return fmt.Sprintf("%s: %s stop_loss=%s take_profit=%s",
		ErrInvalidLevel, e.Direction, e.StopLoss.String(), e.TakeProfit.String())
}

func (e *InvalidLevelError) Unwrap() error { return ErrInvalidLevel }

// Fallback is the signal downgraded to NEUTRAL: same score and reasons, no
// levels, RejectedReason set.
func (e *InvalidLevelError) Fallback() models.SignalResult {
	r := e.fallback
	r.Reasons = append([]string(nil), e.fallback.Reasons...)
	return r
}
