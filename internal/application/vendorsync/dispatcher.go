package vendorsync

import (
	"context"
	"errors"
	"time"

	"github.com/erp/vendorsync/internal/domain/vendorsync"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyStarted is returned by Start on a running service
var ErrAlreadyStarted = errors.New("vendorsync: dispatchers already started")

// Start launches one dispatcher per queue. Each dispatcher drains its queue
// in priority order, then sleeps until an enqueue signal or the poll
// interval.
func (s *SyncService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, name := range vendorsync.AllQueues() {
		group.Go(func() error {
			s.dispatch(groupCtx, name)
			return nil
		})
	}
	s.cancel = cancel
	s.group = group
	s.running = true

	s.logger.Info("Sync dispatchers started",
		zap.Int("queues", len(vendorsync.AllQueues())),
		zap.Duration("poll_interval", s.pollInterval),
		zap.Int("batch_size", s.batchSize),
	)
	return nil
}

// Stop cancels the dispatchers and waits for in-flight jobs until ctx ends.
// A job already claimed runs to completion; no new job is dequeued.
func (s *SyncService) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, group := s.cancel, s.group
	s.running = false
	s.cancel = nil
	s.group = nil
	s.mu.Unlock()

	cancel()
	done := make(chan error, 1)
	go func() {
		done <- group.Wait()
	}()

	select {
	case err := <-done:
		s.logger.Info("Sync dispatchers stopped")
		return err
	case <-ctx.Done():
		s.logger.Warn("Timed out waiting for sync dispatchers")
		return ctx.Err()
	}
}

// IsRunning reports whether the dispatchers are active
func (s *SyncService) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SyncService) dispatch(ctx context.Context, name vendorsync.SyncType) {
	log := s.logger.With(zap.String("queue", name.String()))
	log.Debug("Dispatcher started")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("Dispatcher stopped")
			return
		case <-s.wake[name]:
		case <-timer.C:
		}

		more := s.drain(ctx, name, log)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		if more {
			timer.Reset(0)
		} else {
			timer.Reset(s.pollInterval)
		}
	}
}

// drain executes up to one batch of ready jobs. It reports whether the batch
// was exhausted before the queue was.
func (s *SyncService) drain(ctx context.Context, name vendorsync.SyncType, log *zap.Logger) bool {
	for n := 0; ctx.Err() == nil; n++ {
		if s.batchSize > 0 && n >= s.batchSize {
			return true
		}
		job, err := s.queue.DequeueNext(ctx, name)
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Failed to dequeue sync job", zap.Error(err))
			}
			return false
		}
		if job == nil {
			return false
		}
		// a claimed job finishes even when Stop cancels the dispatcher
		if _, err := s.ExecuteSync(context.WithoutCancel(ctx), job); err != nil {
			log.Warn("Sync job not executed",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}
	return false
}

// signal wakes the dispatcher of a queue without blocking
func (s *SyncService) signal(name vendorsync.SyncType) {
	ch, ok := s.wake[name]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}
