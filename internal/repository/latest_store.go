package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
)

const latestPrefix = "signal:latest"

// CacheSignalStore keeps the latest evaluation per symbol in the cache, so
// a redis backend shares it between replicas and restarts.
type CacheSignalStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheSignalStore(c cache.Service, ttl time.Duration) *CacheSignalStore {
	return &CacheSignalStore{c: c, ttl: ttl}
}

func latestKey(symbol string) string { return cache.GenerateKey(latestPrefix, symbol) }

func (s *CacheSignalStore) Latest(ctx context.Context, symbol string) (models.Evaluation, error) {
	var ev models.Evaluation
	if err := s.c.Get(ctx, latestKey(symbol), &ev); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.Evaluation{}, fmt.Errorf("latest %s: %w", symbol, domrepo.ErrNotFound)
		}
		return models.Evaluation{}, fmt.Errorf("latest %s: %w", symbol, err)
	}
	return ev, nil
}

// LatestAll returns what is stored for symbols, in the given order. Symbols
// never evaluated are skipped.
func (s *CacheSignalStore) LatestAll(ctx context.Context, symbols []string) ([]models.Evaluation, error) {
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = latestKey(sym)
	}
	found, err := cache.MGetTyped[models.Evaluation](ctx, s.c, keys...)
	if err != nil {
		return nil, fmt.Errorf("latest all: %w", err)
	}

	out := make([]models.Evaluation, 0, len(found))
	for _, k := range keys {
		if ev, ok := found[k]; ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *CacheSignalStore) Save(ctx context.Context, ev models.Evaluation) error {
	if err := s.c.Set(ctx, latestKey(ev.Instrument.Symbol), ev, s.ttl); err != nil {
		return fmt.Errorf("save latest %s: %w", ev.Instrument.Symbol, err)
	}
	return nil
}
