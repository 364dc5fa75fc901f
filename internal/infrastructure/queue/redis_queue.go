package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "vendorsync:queue"
	// priorityWeight keeps every sequence number below one priority step so
	// that ZPOPMIN yields priority desc then FIFO.
	priorityWeight = 1e12
	maxTxAttempts  = 5
)

// RedisJobQueue is a durable JobQueue backed by Redis.
//
// Layout under the key prefix:
//
//	job:<id>        JSON document of the job
//	ready:<queue>   ZSET of ready job ids scored by priority and sequence
//	delayed         ZSET of retrying job ids scored by ready time (unix ms)
//	index           ZSET of every job id scored by creation time (unix ms)
//	seq             enqueue sequence counter
//
// Status transitions run in WATCH/MULTI transactions on the job key.
type RedisJobQueue struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// RedisQueueOption configures a RedisJobQueue
type RedisQueueOption func(*RedisJobQueue)

// WithKeyPrefix overrides the key prefix
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(q *RedisJobQueue) {
		if prefix != "" {
			q.prefix = prefix
		}
	}
}

// WithRedisClock overrides the clock used to decide readiness
func WithRedisClock(now func() time.Time) RedisQueueOption {
	return func(q *RedisJobQueue) {
		q.now = now
	}
}

// NewRedisJobQueue creates a queue over an existing client
func NewRedisJobQueue(client *redis.Client, opts ...RedisQueueOption) *RedisJobQueue {
	q := &RedisJobQueue{
		client: client,
		prefix: defaultKeyPrefix,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisJobQueue) jobKey(id uuid.UUID) string {
	return q.prefix + ":job:" + id.String()
}

func (q *RedisJobQueue) readyKey(name vendorsync.SyncType) string {
	return q.prefix + ":ready:" + string(name)
}

func (q *RedisJobQueue) delayedKey() string { return q.prefix + ":delayed" }
func (q *RedisJobQueue) indexKey() string   { return q.prefix + ":index" }
func (q *RedisJobQueue) seqKey() string     { return q.prefix + ":seq" }

func readyScore(priority int, seq int64) float64 {
	return -float64(priority)*priorityWeight + float64(seq)
}

// Enqueue implements vendorsync.JobQueue
func (q *RedisJobQueue) Enqueue(ctx context.Context, job *vendorsync.SyncJob) (uuid.UUID, error) {
	if job.Status != vendorsync.JobStatusPending {
		return uuid.Nil, ErrJobNotPending
	}
	if !job.QueueName().IsValid() {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownQueue, job.QueueName())
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}

	data, err := json.Marshal(job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode job: %w", err)
	}
	created, err := q.client.SetNX(ctx, q.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to store job: %w", err)
	}
	if !created {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrDuplicateJob, job.ID)
	}

	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		q.discard(ctx, job.ID)
		return uuid.Nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, q.indexKey(), redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.ID.String()})
		q.scheduleCmd(ctx, pipe, job, seq)
		return nil
	})
	if err != nil {
		q.discard(ctx, job.ID)
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job.ID, nil
}

// discard removes the document of a job that never reached a ready set
func (q *RedisJobQueue) discard(ctx context.Context, id uuid.UUID) {
	_ = q.client.Del(context.WithoutCancel(ctx), q.jobKey(id)).Err()
}

// DequeueNext implements vendorsync.JobQueue
func (q *RedisJobQueue) DequeueNext(ctx context.Context, name vendorsync.SyncType) (*vendorsync.SyncJob, error) {
	if !name.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, name)
	}
	if err := q.promoteDue(ctx); err != nil {
		return nil, err
	}

	for {
		popped, err := q.client.ZPopMin(ctx, q.readyKey(name), 1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to pop job: %w", err)
		}
		if len(popped) == 0 {
			return nil, nil
		}
		member, _ := popped[0].Member.(string)
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		job, err := q.load(ctx, q.client, id)
		if errors.Is(err, vendorsync.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if job.Status == vendorsync.JobStatusPending {
			return job, nil
		}
	}
}

// MarkRunning implements vendorsync.JobQueue
func (q *RedisJobQueue) MarkRunning(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.mutate(ctx, id, func(job *vendorsync.SyncJob) (func(redis.Pipeliner), error) {
		if err := job.Start(); err != nil {
			return nil, err
		}
		return func(pipe redis.Pipeliner) {
			q.unscheduleCmd(ctx, pipe, job)
		}, nil
	})
}

// Ack implements vendorsync.JobQueue
func (q *RedisJobQueue) Ack(ctx context.Context, id uuid.UUID, outcome vendorsync.JobOutcome) (*vendorsync.SyncJob, error) {
	return q.mutate(ctx, id, func(job *vendorsync.SyncJob) (func(redis.Pipeliner), error) {
		return nil, applyOutcome(job, outcome)
	})
}

// Requeue implements vendorsync.JobQueue
func (q *RedisJobQueue) Requeue(ctx context.Context, id uuid.UUID, readyAt time.Time) (*vendorsync.SyncJob, error) {
	return q.rescheduling(ctx, id, func(job *vendorsync.SyncJob) error {
		return job.ScheduleRetry(readyAt)
	})
}

// Reopen implements vendorsync.JobQueue
func (q *RedisJobQueue) Reopen(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.rescheduling(ctx, id, func(job *vendorsync.SyncJob) error {
		return job.Reopen()
	})
}

// Cancel implements vendorsync.JobQueue
func (q *RedisJobQueue) Cancel(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.mutate(ctx, id, func(job *vendorsync.SyncJob) (func(redis.Pipeliner), error) {
		wasPending := job.Status == vendorsync.JobStatusPending
		if err := job.Cancel(); err != nil {
			return nil, err
		}
		if !wasPending {
			return nil, nil
		}
		return func(pipe redis.Pipeliner) {
			q.unscheduleCmd(ctx, pipe, job)
		}, nil
	})
}

// GetJob implements vendorsync.JobQueue
func (q *RedisJobQueue) GetJob(ctx context.Context, id uuid.UUID) (*vendorsync.SyncJob, error) {
	return q.load(ctx, q.client, id)
}

// ListJobs implements vendorsync.JobQueue. Results are newest first.
func (q *RedisJobQueue) ListJobs(ctx context.Context, filter vendorsync.JobFilter) ([]*vendorsync.SyncJob, error) {
	ids, err := q.client.ZRevRange(ctx, q.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	out := make([]*vendorsync.SyncJob, 0)
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = q.prefix + ":job:" + id
	}
	values, err := q.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load jobs: %w", err)
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var job vendorsync.SyncJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("failed to decode job: %w", err)
		}
		if !filter.Matches(&job) {
			continue
		}
		out = append(out, &job)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// rescheduling runs a transition that puts the job back into a waiting set
func (q *RedisJobQueue) rescheduling(ctx context.Context, id uuid.UUID, transition func(*vendorsync.SyncJob) error) (*vendorsync.SyncJob, error) {
	seq, err := q.client.Incr(ctx, q.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return q.mutate(ctx, id, func(job *vendorsync.SyncJob) (func(redis.Pipeliner), error) {
		if err := transition(job); err != nil {
			return nil, err
		}
		return func(pipe redis.Pipeliner) {
			q.scheduleCmd(ctx, pipe, job, seq)
		}, nil
	})
}

// mutate loads the job under WATCH, applies fn and writes the job back
// together with fn's side effects. Concurrent writers cause a retry.
func (q *RedisJobQueue) mutate(ctx context.Context, id uuid.UUID, fn func(*vendorsync.SyncJob) (func(redis.Pipeliner), error)) (*vendorsync.SyncJob, error) {
	key := q.jobKey(id)
	var result *vendorsync.SyncJob

	txf := func(tx *redis.Tx) error {
		job, err := q.load(ctx, tx, id)
		if err != nil {
			return err
		}
		sideEffects, err := fn(job)
		if err != nil {
			return err
		}
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if sideEffects != nil {
				sideEffects(pipe)
			}
			return nil
		})
		if err != nil {
			return err
		}
		result = job
		return nil
	}

	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := q.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("job %s: %w", id, redis.TxFailedErr)
}

func (q *RedisJobQueue) load(ctx context.Context, c stringGetter, id uuid.UUID) (*vendorsync.SyncJob, error) {
	raw, err := c.Get(ctx, q.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", vendorsync.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	var job vendorsync.SyncJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job: %w", err)
	}
	return &job, nil
}

func (q *RedisJobQueue) scheduleCmd(ctx context.Context, pipe redis.Pipeliner, job *vendorsync.SyncJob, seq int64) {
	member := job.ID.String()
	if job.NextRunAt != nil && job.NextRunAt.After(q.now()) {
		pipe.ZAdd(ctx, q.delayedKey(), redis.Z{Score: float64(job.NextRunAt.UnixMilli()), Member: member})
		return
	}
	pipe.ZAdd(ctx, q.readyKey(job.QueueName()), redis.Z{Score: readyScore(job.Priority, seq), Member: member})
}

func (q *RedisJobQueue) unscheduleCmd(ctx context.Context, pipe redis.Pipeliner, job *vendorsync.SyncJob) {
	member := job.ID.String()
	pipe.ZRem(ctx, q.readyKey(job.QueueName()), member)
	pipe.ZRem(ctx, q.delayedKey(), member)
}

// promoteDue moves delayed jobs whose ready time has passed into their
// ready queue. ZREM decides which caller owns the promotion.
func (q *RedisJobQueue) promoteDue(ctx context.Context) error {
	upTo := strconv.FormatInt(q.now().UnixMilli(), 10)
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: upTo}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	for _, member := range due {
		removed, err := q.client.ZRem(ctx, q.delayedKey(), member).Result()
		if err != nil {
			return fmt.Errorf("failed to promote job: %w", err)
		}
		if removed == 0 {
			continue
		}
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		job, err := q.load(ctx, q.client, id)
		if errors.Is(err, vendorsync.ErrJobNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if job.Status != vendorsync.JobStatusPending {
			continue
		}
		seq, err := q.client.Incr(ctx, q.seqKey()).Result()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		if err := q.client.ZAdd(ctx, q.readyKey(job.QueueName()), redis.Z{Score: readyScore(job.Priority, seq), Member: member}).Err(); err != nil {
			return fmt.Errorf("failed to promote job: %w", err)
		}
	}
	return nil
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

var _ vendorsync.JobQueue = (*RedisJobQueue)(nil)
