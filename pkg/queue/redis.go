package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"FinFolio/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotRunning = errors.New("queue not running")

// RedisQueue stores pending messages in a list, delayed retries in a sorted
// set scored by due time, and exhausted messages in a capped dead-letter list.
type RedisQueue struct {
	logger *logger.Logger
	config QueueConfig
	client redis.UniversalClient
	prefix string
	now    func() time.Time

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// NewRedisQueue creates a queue. Jobs must be registered before Start.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	if lgr == nil {
		lgr = logger.Nop()
	}
	var cfg QueueConfig
	if config != nil {
		cfg = *config
	}
	cfg.applyDefaults()

	rq := &RedisQueue{
		logger: lgr,
		config: cfg,
		client: client,
		prefix: "finfolio:queue",
		now:    time.Now,
		jobs:   make(map[string]Job),
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// RegisterJob registers the handler for job.Type(). The first registration wins.
func (r *RedisQueue) RegisterJob(job Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.logger.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.logger.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and launches the workers and the retry loop.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	runCtx, stop := context.WithCancel(context.Background())
	r.cancel = stop
	r.running = true
	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(runCtx, i)
	}
	r.wg.Add(1)
	go r.retryLoop(runCtx)

	r.logger.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("prefix", r.prefix))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs until ctx expires.
// Jobs interrupted by the cancellation are pushed back to the queue.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		r.logger.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("queue stop: %w", ctx.Err())
	case <-done:
		r.logger.Info("redis queue stopped")
		return nil
	}
}

// Enqueue adds a message for a registered job type.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) error {
	r.mu.RLock()
	running := r.running
	_, registered := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return ErrNotRunning
	}
	if !registered {
		return fmt.Errorf("no job registered for type %q", msgType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	b, err := json.Marshal(Message{
		ID:       uuid.NewString(),
		Type:     msgType,
		Payload:  raw,
		Enqueued: r.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), b).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

// PublishMessage implements QueueService.
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) error {
	return r.Enqueue(ctx, msgType, payload)
}

// Stats returns the current queue depths.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.queueKey())
	retrying := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), DeadLetter: dead.Val()}, nil
}

func (r *RedisQueue) worker(ctx context.Context, id int) {
	defer r.wg.Done()
	r.logger.Debug("queue worker started", logger.Int("worker_id", id))

	for ctx.Err() == nil {
		res, err := r.client.BRPop(ctx, 2*time.Second, r.queueKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			r.logger.Error("brpop error", logger.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if len(res) < 2 {
			continue
		}

		var msg Message
		if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
			r.logger.Error("drop malformed message", logger.Error(err))
			continue
		}
		r.processMessage(ctx, msg)
	}
}

func (r *RedisQueue) processMessage(ctx context.Context, msg Message) {
	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.logger.Error("no job for message", logger.String("type", msg.Type), logger.String("id", msg.ID))
		r.deadLetter(msg)
		return
	}

	start := r.now()
	err := job.Handle(ctx, msg.Payload)
	elapsed := r.now().Sub(start)

	switch {
	case err == nil:
		r.logger.Debug("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int64("elapsed_ms", elapsed.Milliseconds()))
	case ctx.Err() != nil:
		r.requeue(msg)
	default:
		r.fail(msg, job, err)
	}
}

func (r *RedisQueue) fail(msg Message, job Job, err error) {
	msg.Attempts++
	msg.LastErr = err.Error()
	if msg.Attempts > r.config.RetryLimit {
		r.logger.Error("message failed permanently",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.deadLetter(msg)
		return
	}

	due := r.now().Add(r.config.backoff(msg.Attempts))
	r.logger.Warn("message failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.String("retry_at", due.Format(time.RFC3339)),
		logger.Error(err))

	b, mErr := json.Marshal(msg)
	if mErr != nil {
		r.logger.Error("marshal retry", logger.Error(mErr))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if zErr := r.client.ZAdd(ctx, r.retryKey(), redis.Z{Score: float64(due.Unix()), Member: b}).Err(); zErr != nil {
		r.logger.Error("zadd retry", logger.Error(zErr))
	}
}

// requeue returns a message interrupted by shutdown without counting an attempt.
func (r *RedisQueue) requeue(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.RPush(ctx, r.queueKey(), b).Err(); err != nil {
		r.logger.Error("requeue interrupted message", logger.String("id", msg.ID), logger.Error(err))
	}
}

func (r *RedisQueue) deadLetter(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("marshal dead letter", logger.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.deadLetterKey(), b)
	pipe.LTrim(ctx, r.deadLetterKey(), 0, r.config.DeadLetterMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("push dead letter", logger.Error(err))
	}
}

func (r *RedisQueue) retryLoop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.promoteDue(ctx)
		}
	}
}

// promoteDue moves due retries back to the pending list. ZREM decides which
// instance owns a member when several instances poll the same set.
func (r *RedisQueue) promoteDue(ctx context.Context) {
	due, err := r.client.ZRangeByScore(ctx, r.retryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(r.now().Unix(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error("fetch due retries", logger.Error(err))
		}
		return
	}
	for _, member := range due {
		removed, err := r.client.ZRem(ctx, r.retryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(ctx, r.queueKey(), member).Err(); err != nil {
			r.logger.Error("promote retry", logger.Error(err))
		}
	}
}

func (r *RedisQueue) queueKey() string      { return r.prefix + ":messages" }
func (r *RedisQueue) retryKey() string      { return r.prefix + ":retry" }
func (r *RedisQueue) deadLetterKey() string { return r.prefix + ":dlq" }
