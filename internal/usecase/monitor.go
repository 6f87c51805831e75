package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/features"
	applogger "SignalDesk/pkg/logger"
)

// Analyzer runs the full fetch, build and evaluate cycle for an instrument.
type Analyzer interface {
	AnalyzeInstrument(ctx context.Context, in models.Instrument) (models.Evaluation, error)
}

// InstrumentResult is the outcome of one instrument in a monitor pass.
type InstrumentResult struct {
	Instrument models.Instrument
	Evaluation models.Evaluation
	Err        error
}

// Monitor evaluates every configured instrument on a fixed interval.
type Monitor struct {
	analyzer    Analyzer
	instruments []models.Instrument
	interval    time.Duration
	timeout     time.Duration
	concurrency int
	metrics     domrepo.Metrics
	log         *applogger.Logger
}

func NewMonitor(analyzer Analyzer, instruments []models.Instrument, interval, timeout time.Duration, concurrency int, metrics domrepo.Metrics, log *applogger.Logger) *Monitor {
	if concurrency <= 0 {
		concurrency = 1
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Monitor{
		analyzer:    analyzer,
		instruments: instruments,
		interval:    interval,
		timeout:     timeout,
		concurrency: concurrency,
		metrics:     metrics,
		log:         log,
	}
}

// Run ticks until ctx is cancelled, starting with an immediate pass.
// Instrument failures are logged and never stop the loop.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("monitor started",
		applogger.Int("instruments", len(m.instruments)),
		applogger.Duration("interval_ms", m.interval),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.tick(ctx)
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	start := time.Now()
	results := m.RunOnce(ctx)

	failed := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		failed++
		if errors.Is(r.Err, context.Canceled) {
			continue
		}
		if errors.Is(r.Err, context.DeadlineExceeded) {
			m.metrics.RecordError("instrument_timeout")
		}
		fields := []applogger.Field{applogger.String("symbol", r.Instrument.Symbol), applogger.Error(r.Err)}
		if errors.Is(r.Err, features.ErrInsufficientHistory) {
			m.log.Warn("not enough candles yet", fields...)
			continue
		}
		m.log.Error("instrument evaluation failed", fields...)
	}

	m.log.Debug("monitor pass done",
		applogger.Int("instruments", len(results)),
		applogger.Int("failed", failed),
		applogger.Duration("duration_ms", time.Since(start)),
	)
}

// RunOnce evaluates every instrument once, at most concurrency at a time,
// and returns the outcomes in configuration order.
func (m *Monitor) RunOnce(ctx context.Context) []InstrumentResult {
	results := make([]InstrumentResult, len(m.instruments))
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for i, in := range m.instruments {
		results[i].Instrument = in

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i].Err = ctx.Err()
			continue
		}

		wg.Add(1)
		go func(i int, in models.Instrument) {
			defer wg.Done()
			defer func() { <-sem }()

			ictx := ctx
			if m.timeout > 0 {
				var cancel context.CancelFunc
				ictx, cancel = context.WithTimeout(ctx, m.timeout)
				defer cancel()
			}
			results[i].Evaluation, results[i].Err = m.analyzer.AnalyzeInstrument(ictx, in)
		}(i, in)
	}
	wg.Wait()
	return results
}
