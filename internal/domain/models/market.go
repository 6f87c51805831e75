package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Source string

const (
	SourceBinance Source = "binance"
	SourceYahoo   Source = "yahoo"
)

type Instrument struct {
	Symbol   string      `json:"symbol"`
	Name     string      `json:"name,omitempty"`
	Market   MarketClass `json:"market"`
	Source   Source      `json:"source"`
	Interval string      `json:"interval"`
}

// Candle is one OHLCV bar, oldest first in every slice handed around.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
}

// Evaluation ties a SignalResult to the instrument and the moment it was
// produced. It is what the history sink persists.
type Evaluation struct {
	Instrument    Instrument        `json:"instrument"`
	Snapshot      IndicatorSnapshot `json:"snapshot"`
	Result        SignalResult      `json:"result"`
	PrevDirection Direction         `json:"prev_direction"`
	EvaluatedAt   time.Time         `json:"evaluated_at"`
	Alerted       bool              `json:"alerted"`
}

// Alert is an Evaluation the dispatcher decided to notify about.
type Alert struct {
	ID         string     `json:"id"`
	Evaluation Evaluation `json:"evaluation"`
	Previous   Direction  `json:"previous"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (a Alert) Symbol() string       { return a.Evaluation.Instrument.Symbol }
func (a Alert) Direction() Direction { return a.Evaluation.Result.Direction }

// HistoryFilter narrows history reads. Zero values mean no filter.
type HistoryFilter struct {
	Symbol string
	Since  time.Time
	Limit  int
}
