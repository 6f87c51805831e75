package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/services/signal"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func newRecMetrics() *recMetrics { return &recMetrics{errors: map[string]int{}} }

func (m *recMetrics) RecordEvaluation(market, direction string, seconds float64) {}
func (m *recMetrics) RecordStrength(symbol string, strength int)                {}
func (m *recMetrics) RecordAlert(direction string)                              {}
func (m *recMetrics) RecordNotifierError(notifier string)                       {}
func (m *recMetrics) RecordHistoryError(sink string)                            {}
func (m *recMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *recMetrics) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

type fakeEvaluator struct {
	mu    sync.Mutex
	calls int
	fail  int // first n calls fail
	err   error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, in models.Instrument, s models.IndicatorSnapshot) (models.Evaluation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return models.Evaluation{}, f.err
	}
	return models.Evaluation{Instrument: in, Snapshot: s}, nil
}

func (f *fakeEvaluator) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func validSnapshot() models.IndicatorSnapshot {
	d := decimal.NewFromInt
	return models.IndicatorSnapshot{
		Market: models.MarketCrypto, Price: d(100), RSI: d(50),
		SMAShort: d(101), SMALong: d(99), EMAShort: d(100), EMALong: d(100),
		BollingerUpper: d(110), BollingerLower: d(90), ATR: d(2),
	}
}

var btc = models.Instrument{Symbol: "BTCUSDT", Market: models.MarketCrypto}

func TestPipelineRejectsInvalidSnapshot(t *testing.T) {
	m := newRecMetrics()
	next := &fakeEvaluator{}
	p := NewSnapshotPipeline(next, m)

	s := validSnapshot()
	s.RSI = decimal.NewFromInt(120)
	err := p.Process(context.Background(), btc, s)
	require.ErrorIs(t, err, signal.ErrInvalidSnapshot)

	err = p.Process(context.Background(), models.Instrument{}, validSnapshot())
	require.ErrorIs(t, err, signal.ErrInvalidSnapshot)

	assert.Equal(t, 0, next.Calls())
	assert.Equal(t, 2, m.count("pipeline_validate"))
}

func TestPipelineThrottlesPerInstrument(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	next := &fakeEvaluator{}
	p := NewSnapshotPipeline(next, newRecMetrics(),
		WithMinInterval(time.Minute),
		WithClock(func() time.Time { return now }))

	ctx := context.Background()
	require.NoError(t, p.Process(ctx, btc, validSnapshot()))
	require.ErrorIs(t, p.Process(ctx, btc, validSnapshot()), ErrThrottled)
	require.NoError(t, p.Process(ctx, models.Instrument{Symbol: "ETHUSDT"}, validSnapshot()))

	now = now.Add(time.Minute)
	require.NoError(t, p.Process(ctx, btc, validSnapshot()))
	assert.Equal(t, 3, next.Calls())
}

func TestPipelineReturnsDownstreamErrorWithoutBuffer(t *testing.T) {
	next := &fakeEvaluator{fail: 1, err: errors.New("redis down")}
	p := NewSnapshotPipeline(next, newRecMetrics(), WithMinInterval(0))
	require.Error(t, p.Process(context.Background(), btc, validSnapshot()))
}

func TestPipelineBuffersAndRetries(t *testing.T) {
	m := newRecMetrics()
	next := &fakeEvaluator{fail: 1, err: errors.New("redis down")}
	p := NewSnapshotPipeline(next, m, WithMinInterval(0), WithRetryBuffer(4))

	require.NoError(t, p.Process(context.Background(), btc, validSnapshot()))
	assert.Equal(t, 1, p.Buffered())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	require.Eventually(t, func() bool { return next.Calls() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, p.Buffered())
	p.Stop()
	p.Stop()
}

func TestPipelineDoesNotBufferInvalidSnapshotErrors(t *testing.T) {
	next := &fakeEvaluator{fail: 1, err: &signal.InvalidSnapshotError{Field: "atr", Reason: "must be positive"}}
	p := NewSnapshotPipeline(next, newRecMetrics(), WithMinInterval(0), WithRetryBuffer(4))

	require.ErrorIs(t, p.Process(context.Background(), btc, validSnapshot()), signal.ErrInvalidSnapshot)
	assert.Equal(t, 0, p.Buffered())
}

func TestPipelineStopWithoutStart(t *testing.T) {
	p := NewSnapshotPipeline(&fakeEvaluator{}, newRecMetrics(), WithRetryBuffer(1))
	p.Stop()
}
