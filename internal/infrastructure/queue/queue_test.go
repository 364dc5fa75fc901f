package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type queueFactory func(t *testing.T, clock *testClock) vendorsync.JobQueue

func queueImplementations() map[string]queueFactory {
	return map[string]queueFactory{
		"inmemory": func(t *testing.T, clock *testClock) vendorsync.JobQueue {
			return NewInMemoryJobQueue(WithClock(clock.Now))
		},
		"redis": func(t *testing.T, clock *testClock) vendorsync.JobQueue {
			mr := miniredis.RunT(t)
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = client.Close() })
			return NewRedisJobQueue(client, WithKeyPrefix("test:queue"), WithRedisClock(clock.Now))
		},
	}
}

func newPendingJob(t *testing.T, vendorID string, syncType vendorsync.SyncType, priority int) *vendorsync.SyncJob {
	t.Helper()
	job, err := vendorsync.NewSyncJob(vendorID, syncType, priority, 3, vendorsync.TriggerManual)
	require.NoError(t, err)
	return job
}

func forEachQueue(t *testing.T, fn func(t *testing.T, q vendorsync.JobQueue, clock *testClock)) {
	for name, factory := range queueImplementations() {
		t.Run(name, func(t *testing.T) {
			clock := newTestClock()
			fn(t, factory(t, clock), clock)
		})
	}
}

func TestJobQueue_PriorityThenFIFO(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		a := newPendingJob(t, "a", vendorsync.SyncTypeInventory, 5)
		b := newPendingJob(t, "b", vendorsync.SyncTypeInventory, 10)
		c := newPendingJob(t, "c", vendorsync.SyncTypeInventory, 5)
		d := newPendingJob(t, "d", vendorsync.SyncTypeInventory, 10)
		for _, job := range []*vendorsync.SyncJob{a, b, c, d} {
			id, err := q.Enqueue(ctx, job)
			require.NoError(t, err)
			assert.Equal(t, job.ID, id)
		}

		var order []string
		for {
			job, err := q.DequeueNext(ctx, vendorsync.SyncTypeInventory)
			require.NoError(t, err)
			if job == nil {
				break
			}
			order = append(order, job.VendorID)
		}
		assert.Equal(t, []string{"b", "d", "a", "c"}, order)
	})
}

func TestJobQueue_DomainsAreIsolated(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		inv := newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5)
		all := newPendingJob(t, "v", vendorsync.SyncTypeAll, 5)
		_, err := q.Enqueue(ctx, inv)
		require.NoError(t, err)
		_, err = q.Enqueue(ctx, all)
		require.NoError(t, err)

		job, err := q.DequeueNext(ctx, vendorsync.SyncTypePricing)
		require.NoError(t, err)
		assert.Nil(t, job)

		job, err = q.DequeueNext(ctx, vendorsync.SyncTypeAll)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, all.ID, job.ID)

		job, err = q.DequeueNext(ctx, vendorsync.SyncTypeInventory)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, inv.ID, job.ID)
		assert.Equal(t, vendorsync.JobStatusPending, job.Status)
	})
}

func TestJobQueue_EnqueueRejectsDuplicatesAndNonPending(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		job := newPendingJob(t, "v", vendorsync.SyncTypeOrder, 5)
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)

		_, err = q.Enqueue(ctx, job)
		assert.ErrorIs(t, err, ErrDuplicateJob)

		running := newPendingJob(t, "v", vendorsync.SyncTypeOrder, 5)
		running.Status = vendorsync.JobStatusRunning
		_, err = q.Enqueue(ctx, running)
		assert.ErrorIs(t, err, ErrJobNotPending)
	})
}

func TestJobQueue_MarkRunningClaimsOnce(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		job := newPendingJob(t, "v", vendorsync.SyncTypePricing, 5)
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)

		running, err := q.MarkRunning(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusRunning, running.Status)
		assert.NotNil(t, running.StartedAt)

		_, err = q.MarkRunning(ctx, job.ID)
		assert.ErrorIs(t, err, vendorsync.ErrInvalidTransition)

		// a job claimed directly is no longer handed out by DequeueNext
		next, err := q.DequeueNext(ctx, vendorsync.SyncTypePricing)
		require.NoError(t, err)
		assert.Nil(t, next)
	})
}

func TestJobQueue_AckAndTerminalStates(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		job := newPendingJob(t, "v", vendorsync.SyncTypeCatalog, 5)
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)
		_, err = q.MarkRunning(ctx, job.ID)
		require.NoError(t, err)

		result := vendorsync.NewSyncResult()
		result.Reports[vendorsync.SyncTypeCatalog] = &vendorsync.BatchReport{Domain: vendorsync.SyncTypeCatalog, Processed: 3, Succeeded: 3}
		done, err := q.Ack(ctx, job.ID, vendorsync.Succeeded(result))
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusCompleted, done.Status)

		stored, err := q.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusCompleted, stored.Status)
		require.NotNil(t, stored.Result)
		assert.Equal(t, 3, stored.Result.Reports[vendorsync.SyncTypeCatalog].Succeeded)

		_, err = q.Requeue(ctx, job.ID, time.Now())
		assert.ErrorIs(t, err, vendorsync.ErrInvalidTransition)
		_, err = q.Ack(ctx, job.ID, vendorsync.Failed(errors.New("late"), nil))
		assert.ErrorIs(t, err, vendorsync.ErrInvalidTransition)
	})
}

func TestJobQueue_FinalFailureCanOnlyBeReopened(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		job := newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5)
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)
		_, err = q.MarkRunning(ctx, job.ID)
		require.NoError(t, err)

		outcome := vendorsync.Failed(vendorsync.NewValidationError("sku", "is required"), nil)
		outcome.Final = true
		failed, err := q.Ack(ctx, job.ID, outcome)
		require.NoError(t, err)
		assert.True(t, failed.Final)
		assert.True(t, failed.IsTerminal())

		_, err = q.Requeue(ctx, job.ID, time.Now())
		assert.ErrorIs(t, err, vendorsync.ErrInvalidTransition)

		reopened, err := q.Reopen(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusPending, reopened.Status)
		assert.False(t, reopened.Final)
	})
}

func TestJobQueue_RequeueIsDelayed(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, clock *testClock) {
		ctx := context.Background()
		job := newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5)
		_, err := q.Enqueue(ctx, job)
		require.NoError(t, err)
		_, err = q.MarkRunning(ctx, job.ID)
		require.NoError(t, err)
		_, err = q.Ack(ctx, job.ID, vendorsync.Failed(errors.New("connection refused"), nil))
		require.NoError(t, err)

		requeued, err := q.Requeue(ctx, job.ID, clock.Now().Add(5*time.Second))
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusPending, requeued.Status)
		assert.Equal(t, 1, requeued.RetryCount)
		assert.Equal(t, "connection refused", requeued.LastError)

		next, err := q.DequeueNext(ctx, vendorsync.SyncTypeInventory)
		require.NoError(t, err)
		assert.Nil(t, next, "job must wait for its backoff")

		clock.Advance(5 * time.Second)
		next, err = q.DequeueNext(ctx, vendorsync.SyncTypeInventory)
		require.NoError(t, err)
		require.NotNil(t, next)
		assert.Equal(t, job.ID, next.ID)
	})
}

func TestJobQueue_Cancel(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()

		pending := newPendingJob(t, "v", vendorsync.SyncTypeOrder, 5)
		_, err := q.Enqueue(ctx, pending)
		require.NoError(t, err)

		cancelled, err := q.Cancel(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusCancelled, cancelled.Status)

		next, err := q.DequeueNext(ctx, vendorsync.SyncTypeOrder)
		require.NoError(t, err)
		assert.Nil(t, next)

		running := newPendingJob(t, "v", vendorsync.SyncTypeOrder, 5)
		_, err = q.Enqueue(ctx, running)
		require.NoError(t, err)
		_, err = q.MarkRunning(ctx, running.ID)
		require.NoError(t, err)

		flagged, err := q.Cancel(ctx, running.ID)
		require.NoError(t, err)
		assert.Equal(t, vendorsync.JobStatusRunning, flagged.Status)
		assert.True(t, flagged.CancelRequested)

		_, err = q.Ack(ctx, running.ID, vendorsync.Failed(errors.New("timeout"), nil))
		require.NoError(t, err)
		_, err = q.Requeue(ctx, running.ID, time.Now())
		assert.ErrorIs(t, err, vendorsync.ErrInvalidTransition)
	})
}

func TestJobQueue_GetAndList(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()

		_, err := q.GetJob(ctx, uuid.New())
		assert.ErrorIs(t, err, vendorsync.ErrJobNotFound)

		a := newPendingJob(t, "acme", vendorsync.SyncTypeInventory, 5)
		b := newPendingJob(t, "acme", vendorsync.SyncTypePricing, 5)
		c := newPendingJob(t, "globex", vendorsync.SyncTypeInventory, 5)
		for i, job := range []*vendorsync.SyncJob{a, b, c} {
			job.CreatedAt = job.CreatedAt.Add(time.Duration(i) * time.Second)
			_, err := q.Enqueue(ctx, job)
			require.NoError(t, err)
		}
		_, err = q.MarkRunning(ctx, b.ID)
		require.NoError(t, err)

		jobs, err := q.ListJobs(ctx, vendorsync.JobFilter{VendorID: "acme"})
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, b.ID, jobs[0].ID, "newest first")

		jobs, err = q.ListJobs(ctx, vendorsync.JobFilter{Statuses: []vendorsync.JobStatus{vendorsync.JobStatusPending}})
		require.NoError(t, err)
		assert.Len(t, jobs, 2)

		jobs, err = q.ListJobs(ctx, vendorsync.JobFilter{SyncType: vendorsync.SyncTypeInventory, Limit: 1})
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, c.ID, jobs[0].ID)
	})
}

func TestJobQueue_ConcurrentConsumersNeverShareAJob(t *testing.T) {
	forEachQueue(t, func(t *testing.T, q vendorsync.JobQueue, _ *testClock) {
		ctx := context.Background()
		const jobs = 40
		for i := 0; i < jobs; i++ {
			_, err := q.Enqueue(ctx, newPendingJob(t, "v", vendorsync.SyncTypeInventory, i%3))
			require.NoError(t, err)
		}

		var (
			mu      sync.Mutex
			claimed = make(map[uuid.UUID]int)
			wg      sync.WaitGroup
		)
		for w := 0; w < 6; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := q.DequeueNext(ctx, vendorsync.SyncTypeInventory)
					if err != nil || job == nil {
						return
					}
					if _, err := q.MarkRunning(ctx, job.ID); err != nil {
						continue
					}
					mu.Lock()
					claimed[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, claimed, jobs)
		for id, n := range claimed {
			assert.Equal(t, 1, n, "job %s claimed more than once", id)
		}
	})
}

func TestInMemoryJobQueue_Capacity(t *testing.T) {
	q := NewInMemoryJobQueue(WithCapacity(1))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5))
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len(vendorsync.SyncTypeInventory))

	_, err = q.Enqueue(ctx, newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5))
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestRedisJobQueue_FailedEnqueueLeavesNoJob(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	q := NewRedisJobQueue(client, WithKeyPrefix("test:queue"))
	ctx := context.Background()

	// a non-numeric sequence makes INCR fail after the document is written
	require.NoError(t, mr.Set("test:queue:seq", "not-a-number"))

	job := newPendingJob(t, "v", vendorsync.SyncTypeInventory, 5)
	_, err := q.Enqueue(ctx, job)
	require.Error(t, err)

	assert.False(t, mr.Exists("test:queue:job:"+job.ID.String()))
	_, err = q.GetJob(ctx, job.ID)
	assert.Error(t, err)

	mr.Del("test:queue:seq")
	_, err = q.Enqueue(ctx, job)
	require.NoError(t, err, "the same job can be enqueued once the store recovers")
}
