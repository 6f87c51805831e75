package repository

import (
	"context"
	"errors"

	"SignalDesk/internal/domain/models"
)

var ErrNotFound = errors.New("not found")

// MarketData returns the most recent candles of an instrument, oldest first.
type MarketData interface {
	Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error)
}

// HistorySink persists evaluations (result + timestamp + instrument).
type HistorySink interface {
	Append(ctx context.Context, ev models.Evaluation) error
	Recent(ctx context.Context, f models.HistoryFilter) ([]models.Evaluation, error)
	Close() error
}

// SignalStore keeps the latest evaluation per instrument.
type SignalStore interface {
	Latest(ctx context.Context, symbol string) (models.Evaluation, error)
	LatestAll(ctx context.Context, symbols []string) ([]models.Evaluation, error)
	Save(ctx context.Context, ev models.Evaluation) error
}

// EMAStateStore threads the EMA cross state between evaluations.
type EMAStateStore interface {
	Get(symbol string) models.EMAState
	Set(symbol string, state models.EMAState)
}

// Notifier delivers an alert over one channel.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, alert models.Alert) error
}

// Publisher writes a keyed message to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
}

type Metrics interface {
	RecordEvaluation(market, direction string, seconds float64)
	RecordStrength(symbol string, strength int)
	RecordError(kind string)
	RecordAlert(direction string)
	RecordNotifierError(notifier string)
	RecordHistoryError(sink string)
}
