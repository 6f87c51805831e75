package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketClass selects the threshold profile used to score a snapshot.
type MarketClass string

const (
	MarketCrypto MarketClass = "CRYPTO"
	MarketGold   MarketClass = "GOLD"
	MarketEquity MarketClass = "EQUITY"
)

func ParseMarketClass(s string) (MarketClass, error) {
	switch m := MarketClass(strings.ToUpper(strings.TrimSpace(s))); m {
	case MarketCrypto, MarketGold, MarketEquity:
		return m, nil
	}
	return "", fmt.Errorf("unknown market class %q", s)
}

type Direction string

const (
	StrongLong  Direction = "STRONG_LONG"
	Long        Direction = "LONG"
	Neutral     Direction = "NEUTRAL"
	Short       Direction = "SHORT"
	StrongShort Direction = "STRONG_SHORT"
)

func (d Direction) IsLong() bool  { return d == Long || d == StrongLong }
func (d Direction) IsShort() bool { return d == Short || d == StrongShort }

func (d Direction) IsStrong() bool { return d == StrongLong || d == StrongShort }

// Action is the trader-facing verb for a direction.
func (d Direction) Action() string {
	switch {
	case d.IsLong():
		return "BUY/LONG"
	case d.IsShort():
		return "SELL/SHORT"
	}
	return "NEUTRAL"
}

// EMAState remembers on which side of the long EMA the short EMA sat at the
// previous evaluation of an instrument.
type EMAState string

const (
	EMAUnknown EMAState = "UNKNOWN"
	EMABullish EMAState = "EMA_BULLISH"
	EMABearish EMAState = "EMA_BEARISH"
)

// IndicatorSnapshot is the normalized indicator reading of one instrument at
// one point in time.
type IndicatorSnapshot struct {
	Instrument     string          `json:"instrument,omitempty"`
	Market         MarketClass     `json:"market"`
	Price          decimal.Decimal `json:"price"`
	RSI            decimal.Decimal `json:"rsi"`
	MACDLine       decimal.Decimal `json:"macd_line"`
	MACDSignal     decimal.Decimal `json:"macd_signal"`
	SMAShort       decimal.Decimal `json:"sma_short"`
	SMALong        decimal.Decimal `json:"sma_long"`
	EMAShort       decimal.Decimal `json:"ema_short"`
	EMALong        decimal.Decimal `json:"ema_long"`
	BollingerUpper decimal.Decimal `json:"bollinger_upper"`
	BollingerLower decimal.Decimal `json:"bollinger_lower"`
	ATR            decimal.Decimal `json:"atr"`
	At             time.Time       `json:"at,omitempty"`
}

type ThresholdProfile struct {
	Oversold          decimal.Decimal `json:"oversold"`
	Overbought        decimal.Decimal `json:"overbought"`
	StopLossATRMult   decimal.Decimal `json:"stop_loss_atr_mult"`
	TakeProfitATRMult decimal.Decimal `json:"take_profit_atr_mult"`
}

// SignalResult is produced fresh per evaluation and never mutated.
// Entry, StopLoss and TakeProfit are set iff Direction is not NEUTRAL.
type SignalResult struct {
	Direction      Direction        `json:"direction"`
	Strength       int              `json:"strength"`
	Score          int              `json:"score"`
	Reasons        []string         `json:"reasons"`
	Entry          *decimal.Decimal `json:"entry,omitempty"`
	StopLoss       *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit     *decimal.Decimal `json:"take_profit,omitempty"`
	FreshCross     bool             `json:"fresh_cross,omitempty"`
	RejectedReason string           `json:"rejected_reason,omitempty"`
}

func (r SignalResult) HasLevels() bool {
	return r.Entry != nil && r.StopLoss != nil && r.TakeProfit != nil
}
