package di

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"SignalDesk/internal/domain/models"
	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	mid "SignalDesk/internal/middleware"
	"SignalDesk/internal/notifier"
	internalrepo "SignalDesk/internal/repository"
	"SignalDesk/internal/service/marketdata"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/services/features"
	"SignalDesk/internal/services/signal"
	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	"SignalDesk/pkg/queue"
	"SignalDesk/pkg/server"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Optional infrastructure (redis, kafka, clickhouse, queue, hub) is provided
// as nil when the config does not enable it; consumers check for nil.

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideInstruments converts the configured watch list.
func ProvideInstruments(cfg *config.Config) ([]models.Instrument, error) {
	out := make([]models.Instrument, 0, len(cfg.Instruments))
	for _, in := range cfg.Instruments {
		market, err := models.ParseMarketClass(in.Market)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", in.Symbol, err)
		}
		out = append(out, models.Instrument{
			Symbol:   in.Symbol,
			Name:     in.Name,
			Market:   market,
			Source:   models.Source(in.Source),
			Interval: in.Interval,
		})
	}
	return out, nil
}

// ProvideRedisClient connects to redis when the cache backend or the email
// queue needs it.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.RedisRequired() {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(10, 2, 30*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, err
	}
	return rc.Client(), nil
}

// ProvideCache selects the cache backend shared by the latest-signal store,
// the candle cache and the alert cooldown.
func ProvideCache(cfg *config.Config, client *redis.Client) (cache.Service, error) {
	switch cfg.Cache.Backend {
	case "redis":
		return cache.NewRedisCacheFromClient(client, cfg.Redis.Prefix), nil
	case "layered":
		return cache.NewLayeredCache(
			cache.NewRedisCacheFromClient(client, cfg.Redis.Prefix),
			cache.WithLayeredMemorySize(cfg.Cache.MaxItems),
			cache.WithLayeredMemoryTTL(cfg.Cache.CandlesTTL),
		), nil
	case "memory":
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxItems),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideErrorCollector ships deduplicated error logs to the errors topic.
func ProvideErrorCollector(cfg *config.Config, log *applogger.Logger, producer *pkgkafka.Producer) *applogger.ErrorCollector {
	if producer == nil || cfg.Kafka.ErrorsTopic == "" {
		return nil
	}
	c := applogger.NewErrorCollector(applogger.CollectorConfig{
		FlushInterval: 30 * time.Second,
		Topic:         cfg.Kafka.ErrorsTopic,
		Publisher:     producer,
	})
	log.AttachCollector(c)
	return c
}

// ProvideClickHouseClient connects only when history goes to ClickHouse.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if cfg.History.Backend != "clickhouse" {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideHistory creates the configured history sink.
func ProvideHistory(cfg *config.Config, ch *pkgch.Client, log *applogger.Logger) (repository.HistorySink, error) {
	switch cfg.History.Backend {
	case "none":
		return internalrepo.NopHistory{}, nil
	case "clickhouse":
		h := internalrepo.NewCHHistory(ch, log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := h.Init(ctx); err != nil {
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		return h, nil
	}
	h, err := internalrepo.NewJSONFileHistory(cfg.History.Path, cfg.History.MaxRecords)
	if err != nil {
		return nil, fmt.Errorf("history file: %w", err)
	}
	return h, nil
}

func ProvideSignalStore(cfg *config.Config, c cache.Service) repository.SignalStore {
	return internalrepo.NewCacheSignalStore(c, cfg.Cache.LatestTTL)
}

func ProvideEMAStateStore() repository.EMAStateStore {
	return internalrepo.NewMemoryEMAStateStore()
}

// ProvideMarketData routes candle requests by source, behind the candle cache.
func ProvideMarketData(cfg *config.Config, c cache.Service, log *applogger.Logger) repository.MarketData {
	md := cfg.MarketData
	binance := marketdata.NewBinance(md.Binance.BaseURL, xhttp.NewClient(
		xhttp.WithTimeout(md.Binance.Timeout),
		xhttp.WithRetry(md.Retries, md.RetryDelay),
	))
	yahoo := marketdata.NewYahoo(md.Yahoo.BaseURL, xhttp.NewClient(
		xhttp.WithTimeout(md.Yahoo.Timeout),
		xhttp.WithRetry(md.Retries, md.RetryDelay),
	))
	router := marketdata.NewRouter(map[models.Source]repository.MarketData{
		models.SourceBinance: binance,
		models.SourceYahoo:   yahoo,
	})
	return marketdata.NewCached(router, c, cfg.Cache.CandlesTTL, log)
}

func ProvideSnapshotBuilder(cfg *config.Config) (service.SnapshotBuilder, error) {
	ind := cfg.Indicators
	return features.NewBuilder(features.Periods{
		SMAShort:        ind.SMAShort,
		SMALong:         ind.SMALong,
		EMAShort:        ind.EMAShort,
		EMALong:         ind.EMALong,
		RSI:             ind.RSI,
		MACDFast:        ind.MACDFast,
		MACDSlow:        ind.MACDSlow,
		MACDSignal:      ind.MACDSignal,
		BollingerPeriod: ind.BollingerPeriod,
		BollingerStdDev: ind.BollingerStdDev,
		ATR:             ind.ATR,
	})
}

// ProvideProfiles layers the configured overrides over the stock profiles.
func ProvideProfiles(cfg *config.Config) (service.ProfileResolver, error) {
	overrides := make(map[models.MarketClass]models.ThresholdProfile, len(cfg.Profiles))
	for name, p := range cfg.Profiles {
		market, err := models.ParseMarketClass(name)
		if err != nil {
			return nil, fmt.Errorf("profiles: %w", err)
		}
		overrides[market] = signal.NewProfile(p.Oversold, p.Overbought, p.StopLossATRMult, p.TakeProfitATRMult)
	}
	return signal.NewProfileSet(overrides)
}

func ProvideEvaluator() service.SignalEvaluator {
	return signal.NewEvaluator()
}

// ProvideHub creates the websocket alert hub.
func ProvideHub(cfg *config.Config, log *applogger.Logger) *notifier.Hub {
	if !cfg.Notifiers.WebSocket.Enabled {
		return nil
	}
	return notifier.NewHub(log)
}

// ProvideQueue creates the redis job queue backing queued email delivery.
func ProvideQueue(cfg *config.Config, client *redis.Client, log *applogger.Logger) *queue.RedisQueue {
	email := cfg.Notifiers.Email
	if !email.Enabled || !email.Queued {
		return nil
	}
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
	}, client, queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
	q.RegisterJob(notifier.NewEmailJob(notifier.NewSMTPMailer(smtpConfig(cfg)), log))
	return q
}

func smtpConfig(cfg *config.Config) notifier.SMTPConfig {
	e := cfg.Notifiers.Email
	from := e.From
	if from == "" {
		from = e.Username
	}
	return notifier.SMTPConfig{
		Host:     e.Host,
		Port:     e.Port,
		Username: e.Username,
		Password: e.Password,
		From:     from,
		To:       e.To,
		Timeout:  e.Timeout,
	}
}

// ProvideNotifiers builds the enabled alert channels.
func ProvideNotifiers(cfg *config.Config, log *applogger.Logger, hub *notifier.Hub, producer *pkgkafka.Producer, q *queue.RedisQueue) []repository.Notifier {
	n := cfg.Notifiers
	var out []repository.Notifier
	if n.Console.Enabled {
		out = append(out, notifier.NewConsole(os.Stdout, log))
	}
	if n.Desktop.Enabled {
		out = append(out, notifier.NewDesktop(n.Desktop.Timeout))
	}
	if n.Email.Enabled {
		if q != nil {
			out = append(out, notifier.NewQueuedEmail(n.Email.To, q))
		} else {
			out = append(out, notifier.NewEmail(n.Email.To, notifier.NewSMTPMailer(smtpConfig(cfg))))
		}
	}
	if n.Kafka.Enabled && producer != nil {
		out = append(out, notifier.NewKafka(cfg.Kafka.AlertsTopic, producer))
	}
	if hub != nil {
		out = append(out, hub)
	}

	names := make([]string, len(out))
	for i, nt := range out {
		names[i] = nt.Name()
	}
	log.Info("notifiers enabled", applogger.Strings("notifiers", names))
	return out
}

func ProvideDispatcher(cfg *config.Config, notifiers []repository.Notifier, c cache.Service, m repository.Metrics, log *applogger.Logger) *usecase.Dispatcher {
	return usecase.NewDispatcher(notifiers, m, log, usecase.WithCooldown(c, cfg.Alerts.Cooldown))
}

func ProvideEvaluateUseCase(
	cfg *config.Config,
	evaluator service.SignalEvaluator,
	profiles service.ProfileResolver,
	states repository.EMAStateStore,
	latest repository.SignalStore,
	history repository.HistorySink,
	dispatcher *usecase.Dispatcher,
	market repository.MarketData,
	builder service.SnapshotBuilder,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.EvaluateUseCase {
	return usecase.NewEvaluateUseCase(evaluator, profiles, states, latest, history, dispatcher, m, log,
		usecase.WithMarketData(market, builder, cfg.Monitor.CandleLimit),
		usecase.WithAlertsOnlyHistory(cfg.History.AlertsOnly),
		usecase.WithHistoryName(cfg.History.Backend),
	)
}

func ProvideMonitor(cfg *config.Config, uc *usecase.EvaluateUseCase, instruments []models.Instrument, m repository.Metrics, log *applogger.Logger) *usecase.Monitor {
	return usecase.NewMonitor(uc, instruments, cfg.Monitor.Interval, cfg.Monitor.InstrumentTimeout, cfg.Monitor.MaxConcurrency, m, log)
}

// ProvideSnapshotPipeline sits between the snapshot topic and the use case.
func ProvideSnapshotPipeline(cfg *config.Config, uc *usecase.EvaluateUseCase, m repository.Metrics) *mid.SnapshotPipeline {
	if !cfg.Kafka.Enabled || cfg.Kafka.SnapshotsTopic == "" {
		return nil
	}
	return mid.NewSnapshotPipeline(uc, m,
		mid.WithMinInterval(cfg.Kafka.Consumer.MinInterval),
		mid.WithRetryBuffer(cfg.Kafka.Consumer.BufferSize),
	)
}

// ProvideKafkaConsumer subscribes the snapshot handler when a snapshots
// topic is configured.
func ProvideKafkaConsumer(cfg *config.Config, pipeline *mid.SnapshotPipeline, instruments []models.Instrument, m repository.Metrics, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if pipeline == nil {
		return nil, nil
	}
	kc := cfg.Kafka.Consumer
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(kc.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(kc.OffsetReset),
		pkgkafka.WithConsumerWorkers(kc.Workers),
		pkgkafka.WithConsumerBufferSize(kc.BufferSize),
		pkgkafka.WithConsumerRetry(kc.RetryMax, kc.BackoffMin, kc.BackoffMax),
		pkgkafka.WithConsumerDLQ(kc.DLQTopic),
		pkgkafka.WithConsumerFetch(kc.MinBytes, kc.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}

	consumer.RegisterHandler(usecase.NewKafkaSnapshotsHandler(cfg.Kafka.SnapshotsTopic, pipeline, instruments, m))
	consumer.WithConsumerHook(pkgkafka.HookFuncs{
		Err: func(_ context.Context, topic string, km kafkago.Message, _ []byte, err error) {
			m.RecordError("consumer_handle")
			log.Warn("snapshot message failed",
				applogger.String("topic", topic),
				applogger.String("key", string(km.Key)),
				applogger.Int64("offset", km.Offset),
				applogger.Error(err),
			)
		},
	})
	return consumer, nil
}

func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHealthChecks pings every enabled backing service.
func ProvideHealthChecks(client *redis.Client, ch *pkgch.Client) map[string]api.Checker {
	checks := map[string]api.Checker{}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if ch != nil {
		checks["clickhouse"] = ch.Health
	}
	return checks
}

// ProvideHTTPServer mounts the API, health and alert stream handlers.
func ProvideHTTPServer(
	cfg *config.Config,
	log *applogger.Logger,
	uc *usecase.EvaluateUseCase,
	latest repository.SignalStore,
	history repository.HistorySink,
	instruments []models.Instrument,
	hub *notifier.Hub,
	checks map[string]api.Checker,
	limiter *ratelimit.Limiter,
) *xhttp.Server {
	handlers := []xhttp.Handler{
		api.NewSignalsHandler(log, uc, latest, history, instruments),
		api.NewHealthHandler(checks),
	}
	if hub != nil {
		handlers = append(handlers, api.NewAlertsStreamHandler(hub))
	}

	s := cfg.Server
	return xhttp.NewServer(handlers, log,
		xhttp.WithHost(s.Host),
		xhttp.WithPort(s.Port),
		xhttp.WithTimeouts(s.ReadTimeout, s.WriteTimeout, s.ShutdownTimeout),
		xhttp.WithCORS(!strings.EqualFold(cfg.Environment, "production")),
		xhttp.WithRateLimit(limiter, s.RateLimit.Burst, s.RateLimit.RPS),
	)
}

// ProvideApp assembles the application.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	monitor *usecase.Monitor,
	consumer *pkgkafka.Consumer,
	pipeline *mid.SnapshotPipeline,
	q *queue.RedisQueue,
	hub *notifier.Hub,
	limiter *ratelimit.Limiter,
	history repository.HistorySink,
	producer *pkgkafka.Producer,
	collector *applogger.ErrorCollector,
	c cache.Service,
	redisClient *redis.Client,
	ch *pkgch.Client,
) *server.App {
	app := server.New(cfg, log, httpServer, monitor)
	if consumer != nil {
		app.WithConsumer(consumer, pipeline)
	}
	if q != nil {
		app.WithQueue(q)
	}
	app.WithLimiter(limiter)

	// closed after everything that writes through them has stopped
	if hub != nil {
		app.AddCloser("websocket hub", hub.Close)
	}
	app.AddCloser("history", history.Close)
	if collector != nil {
		app.AddCloser("error collector", func() error { collector.Close(); return nil })
	}
	if producer != nil {
		app.AddCloser("kafka producer", producer.Close)
	}
	app.AddCloser("cache", c.Close)
	// the redis cache backends close the shared client themselves
	if redisClient != nil && cfg.Cache.Backend == "memory" {
		app.AddCloser("redis", redisClient.Close)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch.Close)
	}
	return app
}
