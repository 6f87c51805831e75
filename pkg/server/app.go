package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	mid "SignalDesk/internal/middleware"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
)

const (
	limiterSweepEvery = 5 * time.Minute
	limiterIdle       = 10 * time.Minute
)

type closer struct {
	name string
	fn   func() error
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	monitor    *usecase.Monitor
	consumer   *pkgkafka.Consumer
	pipeline   *mid.SnapshotPipeline
	queue      *queue.RedisQueue
	limiter    *ratelimit.Limiter
	closers    []closer

	wg sync.WaitGroup
}

// New creates a new App instance with its always-on parts.
func New(cfg *config.Config, log *applogger.Logger, httpServer *xhttp.Server, monitor *usecase.Monitor) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		httpServer: httpServer,
		monitor:    monitor,
	}
}

// WithConsumer enables snapshot ingestion from kafka.
func (a *App) WithConsumer(c *pkgkafka.Consumer, p *mid.SnapshotPipeline) {
	a.consumer = c
	a.pipeline = p
}

// WithQueue enables the job queue workers.
func (a *App) WithQueue(q *queue.RedisQueue) { a.queue = q }

// WithLimiter lets the app sweep idle rate-limit buckets.
func (a *App) WithLimiter(l *ratelimit.Limiter) { a.limiter = l }

// AddCloser registers a resource released at the end of shutdown, in
// registration order.
func (a *App) AddCloser(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run starts every enabled component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(ctx); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	a.shutdown()
	return nil
}

// RunOnce evaluates every instrument a single time, then releases resources.
func (a *App) RunOnce(ctx context.Context) []usecase.InstrumentResult {
	results := a.monitor.RunOnce(ctx)
	a.close()
	return results
}

func (a *App) start(ctx context.Context) error {
	if a.queue != nil {
		if err := a.queue.Start(); err != nil {
			return err
		}
	}

	if a.consumer != nil {
		a.pipeline.Start(ctx)
		if err := a.consumer.Start(); err != nil {
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	if a.limiter != nil {
		a.wg.Add(1)
		go a.sweepLimiter(ctx)
	}

	if a.cfg.Monitor.Enabled {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.monitor.Run(ctx); err != nil {
				a.log.Error("monitor error", applogger.Error(err))
			}
		}()
	}
	return nil
}

func (a *App) sweepLimiter(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(limiterSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.limiter.Sweep(limiterIdle); n > 0 {
				a.log.Debug("rate limit buckets swept", applogger.Int("buckets", n))
			}
		}
	}
}

// shutdown stops components in reverse start order. The monitor and sweeper
// exit on their own once the run context is cancelled.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	a.log.Info("shutting down...")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("timeout waiting for monitor")
	}

	if err := a.httpServer.Stop(ctx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
		a.pipeline.Stop()
	}

	if a.queue != nil {
		if err := a.queue.Stop(ctx); err != nil {
			a.log.Warn("queue stop error", applogger.Error(err))
		}
	}

	a.close()
	a.log.Info("shutdown complete")
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c.fn(); err != nil {
			a.log.Warn("close error", applogger.String("resource", c.name), applogger.Error(err))
		}
	}
	a.closers = nil
}
