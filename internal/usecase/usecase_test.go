package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/repository"
	"SignalDesk/internal/services/features"
	"SignalDesk/internal/services/signal"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recMetrics struct {
	mu          sync.Mutex
	errors      map[string]int
	evaluations map[string]int
	alerts      map[string]int
	notifier    map[string]int
	history     int
}

func newRecMetrics() *recMetrics {
	return &recMetrics{
		errors:      map[string]int{},
		evaluations: map[string]int{},
		alerts:      map[string]int{},
		notifier:    map[string]int{},
	}
}

func (m *recMetrics) RecordEvaluation(market, direction string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[market+"/"+direction]++
}
func (m *recMetrics) RecordStrength(symbol string, strength int) {}
func (m *recMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[kind]++
}
func (m *recMetrics) RecordAlert(direction string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[direction]++
}
func (m *recMetrics) RecordNotifierError(notifier string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier[notifier]++
}
func (m *recMetrics) RecordHistoryError(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history++
}

type memHistory struct {
	mu   sync.Mutex
	evs  []models.Evaluation
	fail error
}

func (h *memHistory) Append(_ context.Context, ev models.Evaluation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.evs = append(h.evs, ev)
	return nil
}

func (h *memHistory) Recent(_ context.Context, _ models.HistoryFilter) ([]models.Evaluation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Evaluation(nil), h.evs...), nil
}

func (h *memHistory) Close() error { return nil }

type recNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	alerts []models.Alert
}

func (n *recNotifier) Name() string { return n.name }

func (n *recNotifier) Notify(_ context.Context, a models.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
	return n.err
}

func (n *recNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func neutralSnapshot() models.IndicatorSnapshot {
	return models.IndicatorSnapshot{
		Price: d("100"), RSI: d("50"),
		MACDLine: d("0"), MACDSignal: d("0"),
		SMAShort: d("101"), SMALong: d("99"),
		EMAShort: d("100"), EMALong: d("100"),
		BollingerUpper: d("110"), BollingerLower: d("90"),
		ATR: d("2"),
	}
}

// bullishSnapshot scores +7: STRONG_LONG.
func bullishSnapshot() models.IndicatorSnapshot {
	s := neutralSnapshot()
	s.RSI = d("25")
	s.MACDLine, s.MACDSignal = d("1"), d("0.5")
	s.SMAShort, s.SMALong = d("95"), d("90")
	s.EMAShort, s.EMALong = d("99"), d("98")
	s.BollingerLower = d("100")
	return s
}

// longSnapshot scores +2: LONG.
func longSnapshot() models.IndicatorSnapshot {
	s := neutralSnapshot()
	s.RSI = d("25")
	return s
}

var btc = models.Instrument{Symbol: "BTCUSDT", Market: models.MarketCrypto, Source: models.SourceBinance, Interval: "5m"}

type harness struct {
	uc       *EvaluateUseCase
	metrics  *recMetrics
	history  *memHistory
	latest   *repository.CacheSignalStore
	states   *repository.MemoryEMAStateStore
	console  *recNotifier
	mem      *cache.MemoryCache
	disp     *Dispatcher
	alertsOn bool
}

func newHarness(t *testing.T, alertsOnly bool, opts ...EvaluateOption) *harness {
	t.Helper()
	profiles, err := signal.NewProfileSet(nil)
	require.NoError(t, err)

	h := &harness{
		metrics: newRecMetrics(),
		history: &memHistory{},
		states:  repository.NewMemoryEMAStateStore(),
		console: &recNotifier{name: "console"},
		mem:     cache.NewMemoryCache(),
	}
	t.Cleanup(func() { h.mem.Close() })
	h.latest = repository.NewCacheSignalStore(h.mem, time.Hour)
	h.disp = NewDispatcher([]domrepo.Notifier{h.console}, h.metrics, applogger.Nop())

	opts = append([]EvaluateOption{WithAlertsOnlyHistory(alertsOnly)}, opts...)
	h.uc = NewEvaluateUseCase(signal.NewEvaluator(), profiles, h.states, h.latest, h.history, h.disp, h.metrics, applogger.Nop(), opts...)
	return h
}

func TestEvaluateFirstSignalAlertsAndRecords(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	ev, err := h.uc.Evaluate(ctx, btc, bullishSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.StrongLong, ev.Result.Direction)
	assert.Equal(t, models.Neutral, ev.PrevDirection)
	assert.True(t, ev.Alerted)
	assert.Equal(t, "BTCUSDT", ev.Snapshot.Instrument)
	assert.Equal(t, models.EMABullish, h.states.Get("BTCUSDT"))

	latest, err := h.latest.Latest(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, models.StrongLong, latest.Result.Direction)
	assert.True(t, latest.Alerted)

	require.Equal(t, 1, h.console.count())
	assert.Equal(t, models.Neutral, h.console.alerts[0].Previous)
	assert.Len(t, h.history.evs, 1)
	assert.Equal(t, 1, h.metrics.evaluations["CRYPTO/STRONG_LONG"])
}

func TestEvaluateUnchangedNonStrongDoesNotAlert(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	_, err := h.uc.Evaluate(ctx, btc, longSnapshot())
	require.NoError(t, err)
	second, err := h.uc.Evaluate(ctx, btc, longSnapshot())
	require.NoError(t, err)

	assert.Equal(t, models.Long, second.PrevDirection)
	assert.False(t, second.Alerted)
	assert.Equal(t, 1, h.console.count())
	assert.Len(t, h.history.evs, 1, "alerts-only history skips the quiet evaluation")
}

func TestEvaluateRepeatedStrongAlertsEveryTime(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := h.uc.Evaluate(ctx, btc, bullishSnapshot())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, h.console.count())
}

func TestEvaluateInvalidSnapshotLeavesStateUntouched(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	h.states.Set("BTCUSDT", models.EMABearish)

	s := bullishSnapshot()
	s.ATR = d("0")
	s.RSI = d("-1")
	_, err := h.uc.Evaluate(ctx, btc, s)
	require.ErrorIs(t, err, signal.ErrInvalidSnapshot)

	assert.Equal(t, models.EMABearish, h.states.Get("BTCUSDT"))
	_, err = h.latest.Latest(ctx, "BTCUSDT")
	assert.Error(t, err)
	assert.Empty(t, h.history.evs)
	assert.Equal(t, 0, h.console.count())
	assert.Equal(t, 1, h.metrics.errors["invalid_snapshot"])
}

func TestEvaluateInvalidLevelDowngradesToNeutral(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()

	s := longSnapshot()
	s.ATR = d("60") // stop = 100 - 2*60 < 0
	ev, err := h.uc.Evaluate(ctx, btc, s)
	require.NoError(t, err)
	assert.Equal(t, models.Neutral, ev.Result.Direction)
	assert.NotEmpty(t, ev.Result.RejectedReason)
	assert.False(t, ev.Result.HasLevels())
	assert.False(t, ev.Alerted, "neutral after neutral is not an alert")
	assert.Equal(t, 1, h.metrics.errors["invalid_level"])
	assert.Len(t, h.history.evs, 1)
}

func TestEvaluateHistoryFailureDoesNotFail(t *testing.T) {
	h := newHarness(t, false)
	h.history.fail = errors.New("disk full")

	ev, err := h.uc.Evaluate(context.Background(), btc, longSnapshot())
	require.NoError(t, err)
	assert.Equal(t, models.Long, ev.Result.Direction)
	assert.Equal(t, 1, h.metrics.history)
}

func TestEvaluateUnknownMarket(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.uc.Evaluate(context.Background(), models.Instrument{Symbol: "EURUSD", Market: "FX"}, longSnapshot())
	require.ErrorIs(t, err, signal.ErrUnknownMarket)
}

func TestStatelessTouchesNothing(t *testing.T) {
	h := newHarness(t, false)

	s := bullishSnapshot()
	s.Market = models.MarketCrypto
	res, err := h.uc.Stateless(s, nil, models.EMABearish)
	require.NoError(t, err)
	assert.Equal(t, models.StrongLong, res.Direction)
	assert.True(t, res.FreshCross)

	assert.Equal(t, models.EMAUnknown, h.states.Get("BTCUSDT"))
	assert.Equal(t, 0, h.console.count())
	assert.Empty(t, h.history.evs)

	custom := signal.NewProfile(30, 70, 1, 1)
	res, err = h.uc.Stateless(s, &custom, models.EMAUnknown)
	require.NoError(t, err)
	assert.True(t, res.StopLoss.Equal(d("98")))
}

type stubMarket struct {
	candles []models.Candle
	err     error
}

func (s stubMarket) Candles(ctx context.Context, in models.Instrument, limit int) ([]models.Candle, error) {
	return s.candles, s.err
}

func risingCandles(n int) []models.Candle {
	out := make([]models.Candle, n)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		c := decimal.NewFromInt(int64(100 + i))
		out[i] = models.Candle{
			OpenTime: start.Add(time.Duration(i) * 5 * time.Minute),
			Open:     c, Close: c,
			High:   c.Add(decimal.NewFromInt(1)),
			Low:    c.Sub(decimal.NewFromInt(1)),
			Volume: decimal.NewFromInt(10),
		}
	}
	return out
}

func TestAnalyzeInstrument(t *testing.T) {
	b, err := features.NewBuilder(features.DefaultPeriods())
	require.NoError(t, err)

	h := newHarness(t, false, WithMarketData(stubMarket{candles: risingCandles(120)}, b, 120))
	ev, err := h.uc.AnalyzeInstrument(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ev.Instrument.Symbol)
	assert.True(t, ev.Snapshot.Price.Equal(decimal.NewFromInt(219)))

	short := newHarness(t, false, WithMarketData(stubMarket{candles: risingCandles(10)}, b, 10))
	_, err = short.uc.AnalyzeInstrument(context.Background(), btc)
	require.ErrorIs(t, err, features.ErrInsufficientHistory)
	assert.Equal(t, 1, short.metrics.errors["insufficient_history"])

	down := newHarness(t, false, WithMarketData(stubMarket{err: errors.New("503")}, b, 10))
	_, err = down.uc.AnalyzeInstrument(context.Background(), btc)
	require.Error(t, err)
	assert.Equal(t, 1, down.metrics.errors["market_data"])
}

func TestAnalyzeWithoutMarketData(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.uc.AnalyzeInstrument(context.Background(), btc)
	require.Error(t, err)
}
