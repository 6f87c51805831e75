package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	xhttp "SignalDesk/pkg/http"

	"github.com/shopspring/decimal"
)

// Binance serves /api/v3/klines. The API caps limit at 1000.
type Binance struct {
	baseURL string
	client  *xhttp.Client
}

func NewBinance(baseURL string, client *xhttp.Client) *Binance {
	return &Binance{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (b *Binance) Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var rows [][]json.RawMessage
	err := b.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    b.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":   {strings.ToUpper(in.Symbol)},
			"interval": {in.Interval},
			"limit":    {strconv.Itoa(limit)},
		},
	}, &rows)
	if err != nil {
		return nil, upstreamError("binance", in.Symbol, err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("binance %s: kline %d: %w", in.Symbol, i, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...]; prices
// arrive as strings.
func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var openMs int64
	if err := json.Unmarshal(row[0], &openMs); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}

	var vals [5]decimal.Decimal
	for i := range vals {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = d
	}

	return models.Candle{
		OpenTime: time.UnixMilli(openMs).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
