package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"SignalDesk/internal/domain/models"
	drepo "SignalDesk/internal/domain/repository"
	xhttp "SignalDesk/pkg/http"
)

// ErrSymbolNotFound is returned when the upstream does not know the symbol.
var ErrSymbolNotFound = errors.New("symbol not found upstream")

// Router sends each instrument to the provider registered for its source.
type Router struct {
	providers map[models.Source]drepo.MarketData
}

func NewRouter(providers map[models.Source]drepo.MarketData) *Router {
	return &Router{providers: providers}
}

func (r *Router) Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error) {
	p, ok := r.providers[in.Source]
	if !ok {
		return nil, fmt.Errorf("no market data provider for source %q", in.Source)
	}
	return p.Candles(ctx, in, limit)
}

// upstreamError folds 400/404 replies into ErrSymbolNotFound.
func upstreamError(source, symbol string, err error) error {
	var se *xhttp.StatusError
	if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusNotFound) {
		return fmt.Errorf("%s %s: %w: %s", source, symbol, ErrSymbolNotFound, se.Body)
	}
	return fmt.Errorf("%s %s: %w", source, symbol, err)
}

// tail keeps the newest limit candles.
func tail(c []models.Candle, limit int) []models.Candle {
	if limit > 0 && len(c) > limit {
		return c[len(c)-limit:]
	}
	return c
}
