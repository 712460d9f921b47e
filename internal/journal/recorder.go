package journal

import (
	"context"
	"fmt"
	"log"

	"github.com/taskwell/taskwell/internal/events"
	"github.com/taskwell/taskwell/internal/scheduler"
)

// Recorder consumes the event bus firehose and writes history rows.
// Task events also refresh the task's snapshot from live scheduler state.
type Recorder struct {
	journal *Journal
	sched   *scheduler.Scheduler
	ch      <-chan events.Event
}

// NewRecorder subscribes a recorder to the bus firehose.
func NewRecorder(j *Journal, sched *scheduler.Scheduler, bus *events.Bus) *Recorder {
	return &Recorder{
		journal: j,
		sched:   sched,
		ch:      bus.SubscribeAll(0),
	}
}

// Run consumes events until ctx is cancelled or the bus closes. Write
// failures are logged and skipped; the journal never stalls the bus.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.ch:
			if !ok {
				return nil
			}
			if err := r.handle(ctx, ev); err != nil {
				log.Printf("WARNING: journal write failed for %s: %v", ev.EventType(), err)
			}
		}
	}
}

func (r *Recorder) handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.TaskSubmittedEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), Detail: e.Priority, Timestamp: e.Timestamp})
	case events.TaskClaimedEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), WorkerID: e.WorkerID, Timestamp: e.Timestamp})
	case events.TaskProgressEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), WorkerID: e.WorkerID, Detail: fmt.Sprintf("%d%% %s", e.Percent, e.Note), Timestamp: e.Timestamp})
	case events.TaskCompletedEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), WorkerID: e.WorkerID, Detail: e.Result, Timestamp: e.Timestamp})
	case events.TaskFailedEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), WorkerID: e.WorkerID, Detail: e.Reason, Timestamp: e.Timestamp})
	case events.TaskRequeuedEvent:
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), WorkerID: e.WorkerID, Detail: e.Cause, Timestamp: e.Timestamp})
	case events.TaskCancelledEvent:
		detail := "requested"
		if e.Acknowledged {
			detail = "acknowledged"
		}
		return r.recordTask(ctx, TaskEventRecord{TaskID: e.ID, EventType: e.EventType(), Detail: detail, Timestamp: e.Timestamp})
	case events.WorkerRegisteredEvent:
		return r.journal.RecordWorkerEvent(ctx, e.ID, e.EventType(), e.Name, e.Timestamp)
	case events.WorkerDeregisteredEvent:
		return r.journal.RecordWorkerEvent(ctx, e.ID, e.EventType(), fmt.Sprintf("requeued %d tasks", len(e.Requeued)), e.Timestamp)
	case events.WorkerOfflineEvent:
		return r.journal.RecordWorkerEvent(ctx, e.ID, e.EventType(), fmt.Sprintf("requeued %d tasks", len(e.Requeued)), e.Timestamp)
	case events.ScaleDecisionEvent:
		return r.journal.RecordScaleDecision(ctx, ScaleDecisionRecord{
			Decision:   e.Decision,
			Pending:    e.Pending,
			InProgress: e.InProgress,
			Workers:    e.Workers,
			Timestamp:  e.Timestamp,
		})
	default:
		return nil
	}
}

// recordTask appends the trail row, then refreshes the task's snapshot.
func (r *Recorder) recordTask(ctx context.Context, rec TaskEventRecord) error {
	if err := r.journal.RecordTaskEvent(ctx, rec); err != nil {
		return err
	}
	if t, ok := r.sched.Task(rec.TaskID); ok {
		return r.journal.RecordTaskSnapshot(ctx, t)
	}
	return nil
}
