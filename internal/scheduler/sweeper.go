package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/taskwell/taskwell/internal/events"
)

// RunSweeper periodically sweeps workers that missed their heartbeat
// window, requeueing their in-flight tasks. Runs until ctx is cancelled.
func (s *Scheduler) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			s.SweepOnce(now.UTC())
		}
	}
}

// SweepOnce runs a single heartbeat sweep against the given time. Each
// timed-out worker's tasks are requeued exactly once, with retry counts
// untouched: a worker failure is not a task failure.
func (s *Scheduler) SweepOnce(now time.Time) int {
	timedOut := s.workers.Sweep(now)
	for _, to := range timedOut {
		requeued := s.requeueAll(to.WorkerID, to.TaskIDs, events.CauseWorkerTimeout)
		if len(requeued) > 0 {
			log.Printf("WARNING: worker %q missed heartbeat, requeued %d tasks", to.WorkerID, len(requeued))
		}
		s.bus.Publish(events.TopicWorker, events.WorkerOfflineEvent{
			ID:        to.WorkerID,
			Requeued:  requeued,
			Timestamp: now,
		})
	}
	return len(timedOut)
}
