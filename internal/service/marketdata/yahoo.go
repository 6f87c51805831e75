package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/util"

	"github.com/shopspring/decimal"
)

// Yahoo serves the v8 chart endpoint, used for gold futures and equities.
type Yahoo struct {
	baseURL string
	client  *xhttp.Client
}

func NewYahoo(baseURL string, client *xhttp.Client) *Yahoo {
	return &Yahoo{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (y *Yahoo) Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error) {
	interval, err := util.YahooInterval(in.Interval)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", in.Symbol, err)
	}
	rng, err := util.YahooRange(in.Interval, limit)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", in.Symbol, err)
	}

	var resp chartResponse
	err = y.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    y.baseURL + "/v8/finance/chart/" + url.PathEscape(in.Symbol),
		QueryParams: map[string][]string{
			"interval": {interval},
			"range":    {rng},
		},
		// the endpoint rejects requests without a browser-like agent
		Headers: map[string]string{"User-Agent": "Mozilla/5.0"},
	}, &resp)
	if err != nil {
		return nil, upstreamError("yahoo", in.Symbol, err)
	}

	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("yahoo %s: %w: %s", in.Symbol, ErrSymbolNotFound, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("yahoo %s: %w: empty chart", in.Symbol, ErrSymbolNotFound)
	}

	res := resp.Chart.Result[0]
	q := res.Indicators.Quote[0]
	candles := make([]models.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		open, high, low, cls := at(q.Open, i), at(q.High, i), at(q.Low, i), at(q.Close, i)
		// halted or still-forming bars come back as nulls
		if open == nil || high == nil || low == nil || cls == nil {
			continue
		}
		vol := decimal.Zero
		if v := at(q.Volume, i); v != nil {
			vol = decimal.NewFromFloat(*v)
		}
		candles = append(candles, models.Candle{
			OpenTime: time.Unix(ts, 0).UTC(),
			Open:     decimal.NewFromFloat(*open),
			High:     decimal.NewFromFloat(*high),
			Low:      decimal.NewFromFloat(*low),
			Close:    decimal.NewFromFloat(*cls),
			Volume:   vol,
		})
	}
	return tail(candles, limit), nil
}

func at(s []*float64, i int) *float64 {
	if i < len(s) {
		return s[i]
	}
	return nil
}
