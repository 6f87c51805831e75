package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/pkg/cache"
	applogger "SignalDesk/pkg/logger"

	"github.com/google/uuid"
)

// Dispatcher fans alerts out to the enabled notifiers.
type Dispatcher struct {
	notifiers []domrepo.Notifier
	metrics   domrepo.Metrics
	log       *applogger.Logger

	locks    cache.Service
	cooldown time.Duration
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

type DispatcherOption func(*Dispatcher)

// WithCooldown suppresses a repeated STRONG alert of the same instrument
// and direction for d. The lock lives in c so replicas share it.
func WithCooldown(c cache.Service, d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		dp.locks = c
		dp.cooldown = d
	}
}

// WithNotifyTimeout bounds each notifier call.
func WithNotifyTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.timeout = d }
}

func NewDispatcher(notifiers []domrepo.Notifier, metrics domrepo.Metrics, log *applogger.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifiers: notifiers,
		metrics:   metrics,
		log:       log,
		timeout:   30 * time.Second,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldAlert is true on any direction change and on every STRONG reading.
// An empty prev counts as NEUTRAL.
func (d *Dispatcher) ShouldAlert(prev, cur models.Direction) bool {
	if prev == "" {
		prev = models.Neutral
	}
	return cur != prev || cur.IsStrong()
}

// Dispatch delivers the alert to every notifier concurrently. Notifier
// failures are joined into the returned error; the alert is still returned
// as dispatched. A nil alert means the cooldown suppressed it.
func (d *Dispatcher) Dispatch(ctx context.Context, ev models.Evaluation) (*models.Alert, error) {
	cur := ev.Result.Direction
	symbol := ev.Instrument.Symbol

	lockKey := ""
	if d.cooldown > 0 && d.locks != nil && cur.IsStrong() && cur == ev.PrevDirection {
		key := cache.GenerateKeyWithParams("alert:cooldown", symbol, cur)
		ok, err := d.locks.TryLock(ctx, key, d.cooldown)
		switch {
		case err != nil:
			d.log.Warn("cooldown check failed, alerting anyway", applogger.String("symbol", symbol), applogger.Error(err))
		case !ok:
			d.log.Debug("alert suppressed by cooldown", applogger.String("symbol", symbol), applogger.String("direction", string(cur)))
			return nil, nil
		default:
			lockKey = key
		}
	}

	ev.Alerted = true
	alert := models.Alert{
		ID:         d.newID(),
		Evaluation: ev,
		Previous:   ev.PrevDirection,
		CreatedAt:  d.now(),
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs = make(map[string]error)
	)
	for _, n := range d.notifiers {
		wg.Add(1)
		go func(n domrepo.Notifier) {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := n.Notify(nctx, alert); err != nil {
				d.metrics.RecordNotifierError(n.Name())
				mu.Lock()
				errs[n.Name()] = err
				mu.Unlock()
			}
		}(n)
	}
	wg.Wait()

	d.metrics.RecordAlert(string(cur))
	d.log.Info("alert dispatched",
		applogger.String("alert_id", alert.ID),
		applogger.String("symbol", symbol),
		applogger.String("previous", string(alert.Previous)),
		applogger.String("direction", string(cur)),
		applogger.Int("notifiers", len(d.notifiers)),
		applogger.Int("failed", len(errs)),
	)

	if len(errs) == 0 {
		return &alert, nil
	}
	// nobody heard it, let the next tick try again
	if lockKey != "" && len(errs) == len(d.notifiers) {
		if err := d.locks.Delete(ctx, lockKey); err != nil {
			d.log.Warn("release cooldown failed", applogger.String("key", lockKey), applogger.Error(err))
		}
	}
	return &alert, joinNotifierErrors(errs)
}

func joinNotifierErrors(errs map[string]error) error {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	wrapped := make([]error, 0, len(names))
	for _, name := range names {
		wrapped = append(wrapped, fmt.Errorf("%s: %w", name, errs[name]))
	}
	return errors.Join(wrapped...)
}
