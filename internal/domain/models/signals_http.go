package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Request payloads of the HTTP API and the snapshot topic.

type SnapshotPayload struct {
	Price          string `json:"price" validate:"required,numeric"`
	RSI            string `json:"rsi" validate:"required,numeric"`
	MACDLine       string `json:"macd_line" validate:"required,numeric"`
	MACDSignal     string `json:"macd_signal" validate:"required,numeric"`
	SMAShort       string `json:"sma_short" validate:"required,numeric"`
	SMALong        string `json:"sma_long" validate:"required,numeric"`
	EMAShort       string `json:"ema_short" validate:"required,numeric"`
	EMALong        string `json:"ema_long" validate:"required,numeric"`
	BollingerUpper string `json:"bollinger_upper" validate:"required,numeric"`
	BollingerLower string `json:"bollinger_lower" validate:"required,numeric"`
	ATR            string `json:"atr" validate:"required,numeric"`
}

type ProfilePayload struct {
	Oversold          string `json:"oversold" validate:"required,numeric"`
	Overbought        string `json:"overbought" validate:"required,numeric"`
	StopLossATRMult   string `json:"stop_loss_atr_mult" validate:"required,numeric"`
	TakeProfitATRMult string `json:"take_profit_atr_mult" validate:"required,numeric"`
}

type EvaluateRequest struct {
	Instrument string          `json:"instrument"`
	Market     string          `json:"market" default:"CRYPTO" validate:"oneof=CRYPTO GOLD EQUITY crypto gold equity"`
	Snapshot   SnapshotPayload `json:"snapshot"`
	Profile    *ProfilePayload `json:"profile,omitempty" validate:"omitempty"`
	PriorEMA   string          `json:"prior_ema" default:"UNKNOWN" validate:"oneof=UNKNOWN EMA_BULLISH EMA_BEARISH"`
}

type SymbolRequest struct {
	Symbol string `param:"symbol" validate:"required,max=32"`
}

type HistoryRequest struct {
	Symbol string `query:"symbol" validate:"omitempty,max=32"`
	Since  string `query:"since"`
	Limit  int    `query:"limit" default:"20" validate:"gte=1,lte=100"`
}

// SnapshotMessage is the JSON body of a snapshot published on kafka.
type SnapshotMessage struct {
	Instrument string          `json:"instrument" validate:"required,max=32"`
	Market     string          `json:"market" validate:"required,oneof=CRYPTO GOLD EQUITY crypto gold equity"`
	Snapshot   SnapshotPayload `json:"snapshot"`
	At         string          `json:"at"`
}

// Decode parses the decimal strings. Range checks are left to the evaluator.
func (p SnapshotPayload) Decode() (IndicatorSnapshot, error) {
	var s IndicatorSnapshot
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"price", p.Price, &s.Price},
		{"rsi", p.RSI, &s.RSI},
		{"macd_line", p.MACDLine, &s.MACDLine},
		{"macd_signal", p.MACDSignal, &s.MACDSignal},
		{"sma_short", p.SMAShort, &s.SMAShort},
		{"sma_long", p.SMALong, &s.SMALong},
		{"ema_short", p.EMAShort, &s.EMAShort},
		{"ema_long", p.EMALong, &s.EMALong},
		{"bollinger_upper", p.BollingerUpper, &s.BollingerUpper},
		{"bollinger_lower", p.BollingerLower, &s.BollingerLower},
		{"atr", p.ATR, &s.ATR},
	}
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return IndicatorSnapshot{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}
	return s, nil
}

func (p ProfilePayload) Decode() (ThresholdProfile, error) {
	var out ThresholdProfile
	var err error
	if out.Oversold, err = decimal.NewFromString(p.Oversold); err != nil {
		return out, fmt.Errorf("oversold: %w", err)
	}
	if out.Overbought, err = decimal.NewFromString(p.Overbought); err != nil {
		return out, fmt.Errorf("overbought: %w", err)
	}
	if out.StopLossATRMult, err = decimal.NewFromString(p.StopLossATRMult); err != nil {
		return out, fmt.Errorf("stop_loss_atr_mult: %w", err)
	}
	if out.TakeProfitATRMult, err = decimal.NewFromString(p.TakeProfitATRMult); err != nil {
		return out, fmt.Errorf("take_profit_atr_mult: %w", err)
	}
	return out, nil
}
