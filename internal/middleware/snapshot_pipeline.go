package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"SignalDesk/internal/domain/models"
	domrepo "SignalDesk/internal/domain/repository"
	"SignalDesk/internal/services/signal"
)

// Evaluator is the downstream the pipeline feeds.
type Evaluator interface {
	Evaluate(ctx context.Context, in models.Instrument, s models.IndicatorSnapshot) (models.Evaluation, error)
}

// ErrThrottled is returned when a snapshot arrives inside the minimum
// interval of its instrument. Callers treat it as a successful drop.
var ErrThrottled = errors.New("snapshot throttled")

type pending struct {
	in   models.Instrument
	snap models.IndicatorSnapshot
}

// SnapshotPipeline sits between the snapshot feed and the evaluator. It
// validates, throttles per instrument, forwards, and optionally buffers
// snapshots the evaluator failed on for a background retry.
type SnapshotPipeline struct {
	next        Evaluator
	metrics     domrepo.Metrics
	minInterval time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time

	bufCh     chan pending
	stopCh    chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
	running   atomic.Bool
}

type PipelineOption func(*SnapshotPipeline)

// WithMinInterval drops snapshots of an instrument arriving faster than d.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *SnapshotPipeline) {
		if d >= 0 {
			p.minInterval = d
		}
	}
}

// WithRetryBuffer keeps up to n failed snapshots for retry once Start runs.
func WithRetryBuffer(n int) PipelineOption {
	return func(p *SnapshotPipeline) {
		if n > 0 {
			p.bufCh = make(chan pending, n)
		}
	}
}

func WithClock(now func() time.Time) PipelineOption {
	return func(p *SnapshotPipeline) { p.now = now }
}

func NewSnapshotPipeline(next Evaluator, metrics domrepo.Metrics, opts ...PipelineOption) *SnapshotPipeline {
	p := &SnapshotPipeline{
		next:        next,
		metrics:     metrics,
		minInterval: time.Second,
		now:         time.Now,
		lastSeen:    make(map[string]time.Time),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the retry loop. It is a no-op without a retry buffer.
func (p *SnapshotPipeline) Start(ctx context.Context) {
	if p.bufCh == nil {
		return
	}
	p.startOnce.Do(func() {
		p.running.Store(true)
		go p.drain(ctx)
	})
}

// Stop ends the retry loop; snapshots still buffered are dropped.
func (p *SnapshotPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	if p.running.Load() {
		<-p.done
	}
}

func (p *SnapshotPipeline) drain(ctx context.Context) {
	defer close(p.done)

	backoff := 50 * time.Millisecond
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case item := <-p.bufCh:
			if _, err := p.next.Evaluate(ctx, item.in, item.snap); err != nil {
				p.metrics.RecordError("pipeline_flush")
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case <-time.After(backoff):
				case <-p.stopCh:
					return
				case <-ctx.Done():
					return
				}
				select {
				case p.bufCh <- item:
				default:
					p.metrics.RecordError("pipeline_buffer_drop")
				}
				continue
			}
			backoff = 50 * time.Millisecond
		}
	}
}

// Process validates, throttles and forwards one snapshot. A downstream
// failure is buffered when a retry buffer has room, and returned otherwise.
func (p *SnapshotPipeline) Process(ctx context.Context, in models.Instrument, s models.IndicatorSnapshot) error {
	if in.Symbol == "" {
		p.metrics.RecordError("pipeline_validate")
		return &signal.InvalidSnapshotError{Field: "instrument", Reason: "is empty"}
	}
	if err := signal.ValidateSnapshot(s); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(in.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return ErrThrottled
	}

	_, err := p.next.Evaluate(ctx, in, s)
	if err == nil {
		return nil
	}
	p.metrics.RecordError("pipeline_process")
	if errors.Is(err, signal.ErrInvalidSnapshot) || p.bufCh == nil {
		return err
	}

	select {
	case p.bufCh <- pending{in: in, snap: s}:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline downstream: %w", err)
	}
}

// Buffered reports how many snapshots wait for a retry.
func (p *SnapshotPipeline) Buffered() int {
	if p.bufCh == nil {
		return 0
	}
	return len(p.bufCh)
}

func (p *SnapshotPipeline) allow(symbol string) bool {
	if p.minInterval <= 0 {
		return true
	}
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if last, ok := p.lastSeen[symbol]; ok && now.Sub(last) < p.minInterval {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
