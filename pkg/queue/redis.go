package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"SignalDesk/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	popTimeout    = time.Second
	retryInterval = 5 * time.Second
)

var ErrUnknownJob = errors.New("queue: no job registered for message type")

// RedisQueue keeps pending messages in a redis list, delayed retries in a
// sorted set scored by due time and exhausted messages in a dead-letter list.
// Enqueueing works whether or not this process runs workers, so a producer
// such as a one-shot CLI run can hand work to a long-running instance.
type RedisQueue struct {
	logger *logger.Logger
	config *QueueConfig
	client *redis.Client
	keys   queueKeys

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type queueKeys struct {
	pending string
	retry   string
	dead    string
}

func newQueueKeys(prefix string) queueKeys {
	return queueKeys{
		pending: prefix + ":messages",
		retry:   prefix + ":retry",
		dead:    prefix + ":dlq",
	}
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keys = newQueueKeys(prefix)
	}
}

// NewRedisQueue creates a queue that enqueues right away and runs the
// registered jobs once started.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	if config == nil {
		config = &QueueConfig{}
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 10 * time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	rq := &RedisQueue{
		logger: lgr,
		config: config,
		client: client,
		keys:   newQueueKeys("signaldesk:queue"),
		jobs:   make(map[string]Job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJobs registers multiple jobs.
func (r *RedisQueue) RegisterJobs(jobs []Job) {
	for _, job := range jobs {
		r.RegisterJob(job)
	}
}

// RegisterJob registers a single job. A second job for the same type is
// ignored.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered",
		logger.String("job", job.Name()),
		logger.String("type", job.Type()))
}

func (r *RedisQueue) job(msgType string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[msgType]
	return job, ok
}

// Start pings redis and launches the workers plus the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(r.ctx, 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	r.running = true

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryMover()

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr))
	return nil
}

// Stop cancels in-flight jobs and waits for the workers until ctx expires.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.logger.Info("stopping redis queue...")
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped gracefully")
		return nil
	}
}

// Enqueue adds a message for a registered job type.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	if _, ok := r.job(msgType); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	if err := r.client.LPush(ctx, r.keys.pending, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		msg, ok := r.pop()
		if ok {
			r.process(msg)
		}
	}
}

// pop blocks up to popTimeout for the next message.
func (r *RedisQueue) pop() (Message, bool) {
	result, err := r.client.BRPop(r.ctx, popTimeout, r.keys.pending).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
			return Message{}, false
		}
		r.logger.Error("brpop error", logger.Error(err))
		select {
		case <-r.ctx.Done():
		case <-time.After(time.Second):
		}
		return Message{}, false
	}
	if len(result) < 2 {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		r.logger.Error("unmarshal message", logger.Error(err))
		r.bury([]byte(result[1]))
		return Message{}, false
	}
	return msg, true
}

func (r *RedisQueue) process(msg Message) {
	job, ok := r.job(msg.Type)
	if !ok {
		r.logger.Error("no job found",
			logger.String("type", msg.Type),
			logger.String("id", msg.ID))
		r.buryMessage(msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := job.Handle(ctx, msg.Payload)
	if err == nil {
		return
	}
	if r.ctx.Err() != nil {
		// stopping: put the message back so the next run picks it up
		r.logger.Warn("message interrupted by shutdown",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed_ms", time.Since(start)))
		r.schedule(msg, time.Now())
		return
	}
	r.fail(msg, job, err)
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	r.logger.Error("message processing error",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts+1),
		logger.Error(err))

	if msg.Attempts >= r.config.RetryLimit {
		r.logger.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.buryMessage(msg)
		return
	}

	msg.Attempts++
	at := RetryAt(time.Now(), r.config.RetryDelay, msg.Attempts)
	r.schedule(msg, at)
	r.logger.Info("scheduled retry",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", at.Format(time.RFC3339)))
}

// schedule parks msg in the retry set until at. It uses a fresh context so a
// message can still be saved while the queue shuts down.
func (r *RedisQueue) schedule(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal retry", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.ZAdd(ctx, r.keys.retry, redis.Z{Score: float64(at.Unix()), Member: data}).Err(); err != nil {
		r.logger.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) buryMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dlq", logger.Error(err))
		return
	}
	r.bury(data)
}

func (r *RedisQueue) bury(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.LPush(ctx, r.keys.dead, data).Err(); err != nil {
		r.logger.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) retryMover() {
	defer r.wg.Done()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDue(time.Now())
		}
	}
}

// moveDue pushes every retry whose time has come back onto the pending
// list. Only the instance whose ZREM succeeds pushes a member, so several
// instances can sweep the same set.
func (r *RedisQueue) moveDue(now time.Time) {
	due, err := r.client.ZRangeByScore(r.ctx, r.keys.retry, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.logger.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		removed, err := r.client.ZRem(r.ctx, r.keys.retry, member).Result()
		if err != nil {
			if r.ctx.Err() == nil {
				r.logger.Error("remove retry message", logger.Error(err))
			}
			return
		}
		if removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.keys.pending, member).Err(); err != nil {
			r.logger.Error("requeue retry message", logger.Error(err))
			r.client.ZAdd(context.Background(), r.keys.retry, redis.Z{Score: float64(now.Unix()), Member: member})
		}
	}
}
