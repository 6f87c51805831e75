package marketdata

import (
	"context"
	"time"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"
)

// Cached keeps candle responses for ttl so API calls and monitor ticks that
// land close together share one upstream fetch.
type Cached struct {
	next  drepo.MarketData
	cache cache.Service
	ttl   time.Duration
	log   *applogger.Logger
}

func NewCached(next drepo.MarketData, c cache.Service, ttl time.Duration, log *applogger.Logger) *Cached {
	return &Cached{next: next, cache: c, ttl: ttl, log: log}
}

func (c *Cached) Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error) {
	if c.ttl <= 0 {
		return c.next.Candles(ctx, in, limit)
	}

	key := cache.GenerateKeyWithParams("candles", in.Source, in.Symbol, in.Interval, limit)

	var candles []models.Candle
	if err := c.cache.Get(ctx, key, &candles); err == nil {
		return candles, nil
	}

	candles, err := c.next.Candles(ctx, in, limit)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, candles, c.ttl); err != nil {
		c.log.Warn("cache candles failed", applogger.String("symbol", in.Symbol), applogger.Error(err))
	}
	return candles, nil
}
