package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	applogger "SignalDesk/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnalyzer struct {
	mu       sync.Mutex
	calls    map[string]int
	failing  map[string]error
	inFlight int32
	peak     int32
	delay    time.Duration
}

func (f *fakeAnalyzer) AnalyzeInstrument(ctx context.Context, in models.Instrument) (models.Evaluation, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls[in.Symbol]++
	err := f.failing[in.Symbol]
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return models.Evaluation{}, ctx.Err()
		}
	}
	if err != nil {
		return models.Evaluation{}, err
	}
	return models.Evaluation{Instrument: in, Result: models.SignalResult{Direction: models.Neutral}}, nil
}

func (f *fakeAnalyzer) callsFor(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func instruments(symbols ...string) []models.Instrument {
	out := make([]models.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = models.Instrument{Symbol: s, Market: models.MarketCrypto}
	}
	return out
}

func TestRunOnceKeepsOrderAndErrors(t *testing.T) {
	a := &fakeAnalyzer{calls: map[string]int{}, failing: map[string]error{"ETHUSDT": errors.New("binance 503")}}
	m := NewMonitor(a, instruments("BTCUSDT", "ETHUSDT", "GC=F"), time.Minute, time.Second, 2, newRecMetrics(), applogger.Nop())

	res := m.RunOnce(context.Background())
	require.Len(t, res, 3)
	assert.Equal(t, "BTCUSDT", res[0].Instrument.Symbol)
	assert.NoError(t, res[0].Err)
	assert.Error(t, res[1].Err)
	assert.Equal(t, "GC=F", res[2].Evaluation.Instrument.Symbol)
}

func TestRunOnceBoundsConcurrency(t *testing.T) {
	a := &fakeAnalyzer{calls: map[string]int{}, failing: map[string]error{}, delay: 20 * time.Millisecond}
	m := NewMonitor(a, instruments("A", "B", "C", "D", "E", "F"), time.Minute, time.Second, 2, newRecMetrics(), applogger.Nop())

	m.RunOnce(context.Background())
	assert.LessOrEqual(t, atomic.LoadInt32(&a.peak), int32(2))
}

func TestRunOnceAppliesInstrumentTimeout(t *testing.T) {
	a := &fakeAnalyzer{calls: map[string]int{}, failing: map[string]error{}, delay: time.Second}
	m := NewMonitor(a, instruments("BTCUSDT"), time.Minute, 10*time.Millisecond, 1, newRecMetrics(), applogger.Nop())

	res := m.RunOnce(context.Background())
	require.ErrorIs(t, res[0].Err, context.DeadlineExceeded)
}

func TestRunTicksUntilCancelled(t *testing.T) {
	a := &fakeAnalyzer{calls: map[string]int{}, failing: map[string]error{"ETHUSDT": errors.New("boom")}}
	m := NewMonitor(a, instruments("BTCUSDT", "ETHUSDT"), 10*time.Millisecond, time.Second, 2, newRecMetrics(), applogger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return a.callsFor("BTCUSDT") >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, a.callsFor("ETHUSDT"), 3, "failures do not stop the loop")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
	}
}
