package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/services/features"
	"SignalDesk/internal/services/signal"
	applogger "SignalDesk/pkg/logger"
)

// AlertDispatcher decides on and delivers alerts for fresh evaluations.
type AlertDispatcher interface {
	ShouldAlert(prev, cur models.Direction) bool
	Dispatch(ctx context.Context, ev models.Evaluation) (*models.Alert, error)
}

// EvaluateUseCase scores snapshots with the per-instrument EMA state,
// records the outcome and hands it to the dispatcher.
type EvaluateUseCase struct {
	evaluator  service.SignalEvaluator
	profiles   service.ProfileResolver
	states     domrepo.EMAStateStore
	latest     domrepo.SignalStore
	history    domrepo.HistorySink
	dispatcher AlertDispatcher
	metrics    domrepo.Metrics
	log        *applogger.Logger

	market      domrepo.MarketData
	builder     service.SnapshotBuilder
	candleLimit int
	alertsOnly  bool
	historyName string
	now         func() time.Time

	locks sync.Map // symbol -> *sync.Mutex
}

type EvaluateOption func(*EvaluateUseCase)

// WithMarketData enables AnalyzeInstrument.
func WithMarketData(market domrepo.MarketData, builder service.SnapshotBuilder, candleLimit int) EvaluateOption {
	return func(uc *EvaluateUseCase) {
		uc.market = market
		uc.builder = builder
		if candleLimit > 0 {
			uc.candleLimit = candleLimit
		}
	}
}

// WithAlertsOnlyHistory records only evaluations that raised an alert.
func WithAlertsOnlyHistory(on bool) EvaluateOption {
	return func(uc *EvaluateUseCase) { uc.alertsOnly = on }
}

// WithHistoryName labels history failures in metrics.
func WithHistoryName(name string) EvaluateOption {
	return func(uc *EvaluateUseCase) { uc.historyName = name }
}

func WithEvaluateClock(now func() time.Time) EvaluateOption {
	return func(uc *EvaluateUseCase) { uc.now = now }
}

func NewEvaluateUseCase(
	evaluator service.SignalEvaluator,
	profiles service.ProfileResolver,
	states domrepo.EMAStateStore,
	latest domrepo.SignalStore,
	history domrepo.HistorySink,
	dispatcher AlertDispatcher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
	opts ...EvaluateOption,
) *EvaluateUseCase {
	uc := &EvaluateUseCase{
		evaluator:   evaluator,
		profiles:    profiles,
		states:      states,
		latest:      latest,
		history:     history,
		dispatcher:  dispatcher,
		metrics:     metrics,
		log:         log,
		candleLimit: 200,
		historyName: "history",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Evaluate scores s for in and applies every side effect: EMA state,
// latest signal, alert dispatch, history. A rejected stop or target
// downgrades the result to NEUTRAL instead of failing; an invalid snapshot
// fails and leaves all state untouched.
func (uc *EvaluateUseCase) Evaluate(ctx context.Context, in models.Instrument, s models.IndicatorSnapshot) (models.Evaluation, error) {
	start := uc.now()

	profile, err := uc.profiles.For(in.Market)
	if err != nil {
		uc.metrics.RecordError("profile")
		return models.Evaluation{}, fmt.Errorf("evaluate %s: %w", in.Symbol, err)
	}
	if s.Instrument == "" {
		s.Instrument = in.Symbol
	}
	if s.Market == "" {
		s.Market = in.Market
	}
	if s.At.IsZero() {
		s.At = start
	}

	// one evaluation per symbol at a time keeps the EMA state and the
	// previous direction consistent across the monitor, kafka and the API
	mu := uc.lockFor(in.Symbol)
	mu.Lock()
	defer mu.Unlock()

	prior := uc.states.Get(in.Symbol)
	res, next, err := uc.evaluator.EvaluateWithState(s, profile, prior)
	if err != nil {
		var lvl *signal.InvalidLevelError
		if !errors.As(err, &lvl) {
			kind := "evaluate"
			if errors.Is(err, signal.ErrInvalidSnapshot) {
				kind = "invalid_snapshot"
			}
			uc.metrics.RecordError(kind)
			return models.Evaluation{}, fmt.Errorf("evaluate %s: %w", in.Symbol, err)
		}
		res = lvl.Fallback()
		uc.metrics.RecordError("invalid_level")
		uc.log.Warn("levels rejected, downgraded to neutral",
			applogger.String("symbol", in.Symbol),
			applogger.String("direction", string(lvl.Direction)),
			applogger.Decimal("stop_loss", lvl.StopLoss),
			applogger.Decimal("take_profit", lvl.TakeProfit),
		)
	}
	uc.states.Set(in.Symbol, next)

	ev := models.Evaluation{
		Instrument:    in,
		Snapshot:      s,
		Result:        res,
		PrevDirection: uc.previousDirection(ctx, in.Symbol),
		EvaluatedAt:   start,
	}

	if uc.dispatcher != nil && uc.dispatcher.ShouldAlert(ev.PrevDirection, res.Direction) {
		alert, derr := uc.dispatcher.Dispatch(ctx, ev)
		ev.Alerted = alert != nil
		if derr != nil {
			uc.log.Warn("alert delivery incomplete", applogger.String("symbol", in.Symbol), applogger.Error(derr))
		}
	}

	if err := uc.latest.Save(ctx, ev); err != nil {
		uc.metrics.RecordError("latest_write")
		uc.log.Error("save latest signal failed", applogger.String("symbol", in.Symbol), applogger.Error(err))
	}

	if !uc.alertsOnly || ev.Alerted {
		if err := uc.history.Append(ctx, ev); err != nil {
			uc.metrics.RecordHistoryError(uc.historyName)
			uc.log.Error("append history failed", applogger.String("symbol", in.Symbol), applogger.Error(err))
		}
	}

	uc.metrics.RecordEvaluation(string(in.Market), string(res.Direction), uc.now().Sub(start).Seconds())
	uc.metrics.RecordStrength(in.Symbol, res.Strength)
	uc.log.Debug("evaluated",
		applogger.String("symbol", in.Symbol),
		applogger.String("direction", string(res.Direction)),
		applogger.Int("score", res.Score),
		applogger.Bool("alerted", ev.Alerted),
	)
	return ev, nil
}

// AnalyzeInstrument fetches candles, builds a snapshot and evaluates it.
func (uc *EvaluateUseCase) AnalyzeInstrument(ctx context.Context, in models.Instrument) (models.Evaluation, error) {
	if uc.market == nil || uc.builder == nil {
		return models.Evaluation{}, errors.New("analyze: no market data configured")
	}

	candles, err := uc.market.Candles(ctx, in, uc.candleLimit)
	if err != nil {
		uc.metrics.RecordError("market_data")
		return models.Evaluation{}, fmt.Errorf("fetch candles %s: %w", in.Symbol, err)
	}
	snap, err := uc.builder.Build(in, candles)
	if err != nil {
		kind := "snapshot"
		if errors.Is(err, features.ErrInsufficientHistory) {
			kind = "insufficient_history"
		}
		uc.metrics.RecordError(kind)
		return models.Evaluation{}, fmt.Errorf("build snapshot %s: %w", in.Symbol, err)
	}
	return uc.Evaluate(ctx, in, snap)
}

// Stateless scores a snapshot without touching any store. Used by the
// evaluate endpoint.
func (uc *EvaluateUseCase) Stateless(s models.IndicatorSnapshot, p *models.ThresholdProfile, prior models.EMAState) (models.SignalResult, error) {
	profile := models.ThresholdProfile{}
	if p != nil {
		profile = *p
	} else {
		var err error
		if profile, err = uc.profiles.For(s.Market); err != nil {
			return models.SignalResult{}, err
		}
	}

	res, _, err := uc.evaluator.EvaluateWithState(s, profile, prior)
	if err != nil {
		var lvl *signal.InvalidLevelError
		if errors.As(err, &lvl) {
			return lvl.Fallback(), nil
		}
		return models.SignalResult{}, err
	}
	return res, nil
}

// Profiles exposes the active threshold profiles.
func (uc *EvaluateUseCase) Profiles() map[models.MarketClass]models.ThresholdProfile {
	return uc.profiles.All()
}

func (uc *EvaluateUseCase) previousDirection(ctx context.Context, symbol string) models.Direction {
	last, err := uc.latest.Latest(ctx, symbol)
	if err == nil && last.Result.Direction != "" {
		return last.Result.Direction
	}
	if err != nil && !errors.Is(err, domrepo.ErrNotFound) {
		uc.metrics.RecordError("latest_read")
		uc.log.Warn("read latest signal failed, assuming neutral", applogger.String("symbol", symbol), applogger.Error(err))
	}
	return models.Neutral
}

func (uc *EvaluateUseCase) lockFor(symbol string) *sync.Mutex {
	mu, _ := uc.locks.LoadOrStore(symbol, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
