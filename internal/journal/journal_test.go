package journal

import (
	"context"
	"testing"
	"time"

	"github.com/taskwell/taskwell/internal/events"
	"github.com/taskwell/taskwell/internal/scheduler"
	"github.com/taskwell/taskwell/internal/task"
	"github.com/taskwell/taskwell/internal/worker"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := OpenMemory(context.Background())
	if err != nil {
		t.Fatalf("opening memory journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// TestSnapshotUpsert verifies repeated snapshots keep one row per task.
func TestSnapshotUpsert(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	tk := &task.Task{ID: "t1", Name: "build", Priority: task.PriorityNormal, Status: task.StatusPending}
	if err := j.RecordTaskSnapshot(ctx, tk); err != nil {
		t.Fatalf("first snapshot: %v", err)
	}

	tk.Status = task.StatusFailed
	tk.FailReason = "boom"
	tk.RetryCount = 3
	if err := j.RecordTaskSnapshot(ctx, tk); err != nil {
		t.Fatalf("second snapshot: %v", err)
	}

	ids, err := j.FailedTaskIDs(ctx)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "t1" {
		t.Errorf("failed ids = %v, want [t1]", ids)
	}
}

// TestTaskHistoryOrder verifies the trail comes back in insertion order.
func TestTaskHistoryOrder(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, et := range []string{events.EventTypeTaskSubmitted, events.EventTypeTaskClaimed, events.EventTypeTaskCompleted} {
		err := j.RecordTaskEvent(ctx, TaskEventRecord{TaskID: "t1", EventType: et, WorkerID: "w1", Timestamp: now})
		if err != nil {
			t.Fatalf("recording %s: %v", et, err)
		}
	}
	if err := j.RecordTaskEvent(ctx, TaskEventRecord{TaskID: "t2", EventType: events.EventTypeTaskSubmitted, Timestamp: now}); err != nil {
		t.Fatalf("recording other task: %v", err)
	}

	history, err := j.TaskHistory(ctx, "t1")
	if err != nil {
		t.Fatalf("querying history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	want := []string{events.EventTypeTaskSubmitted, events.EventTypeTaskClaimed, events.EventTypeTaskCompleted}
	for i, rec := range history {
		if rec.EventType != want[i] {
			t.Errorf("history[%d] = %s, want %s", i, rec.EventType, want[i])
		}
	}
}

// TestWorkerHistory verifies worker lifecycle rows round trip.
func TestWorkerHistory(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := j.RecordWorkerEvent(ctx, "w1", events.EventTypeWorkerRegistered, "builder", now); err != nil {
		t.Fatalf("recording register: %v", err)
	}
	if err := j.RecordWorkerEvent(ctx, "w1", events.EventTypeWorkerOffline, "requeued 2 tasks", now); err != nil {
		t.Fatalf("recording offline: %v", err)
	}

	history, err := j.WorkerHistory(ctx, "w1")
	if err != nil {
		t.Fatalf("querying worker history: %v", err)
	}
	if len(history) != 2 || history[1].EventType != events.EventTypeWorkerOffline {
		t.Errorf("worker history = %+v", history)
	}
}

// TestScaleDecisionsNewestFirst verifies ordering and the limit.
func TestScaleDecisionsNewestFirst(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	for i, d := range []string{"scale_up", "hold", "scale_down"} {
		err := j.RecordScaleDecision(ctx, ScaleDecisionRecord{
			Decision:  d,
			Pending:   i,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("recording decision %s: %v", d, err)
		}
	}

	decisions, err := j.ScaleDecisions(ctx, 2)
	if err != nil {
		t.Fatalf("listing decisions: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	if decisions[0].Decision != "scale_down" || decisions[1].Decision != "hold" {
		t.Errorf("decisions = %+v, want newest first", decisions)
	}
}

// TestRecorderWritesTrailAndSnapshot verifies event handling end to end
// against live scheduler state.
func TestRecorderWritesTrailAndSnapshot(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	bus := events.NewBus()
	defer bus.Close()
	sched := scheduler.New(task.NewStore(3), worker.NewRegistry(30*time.Second), bus)
	rec := NewRecorder(j, sched, bus)

	sched.RegisterWorker("w1", "one", []string{"go"}, 1)
	id, err := sched.SubmitTask("build", "", task.PriorityHigh, []string{"go"}, nil)
	if err != nil {
		t.Fatalf("submitting: %v", err)
	}
	if !sched.ClaimTask("w1", id) {
		t.Fatal("claim failed")
	}
	if !sched.CompleteTask("w1", id, "ok") {
		t.Fatal("complete failed")
	}

	// Drain the subscription synchronously for determinism.
	for len(rec.ch) > 0 {
		if err := rec.handle(ctx, <-rec.ch); err != nil {
			t.Fatalf("handling event: %v", err)
		}
	}

	history, err := j.TaskHistory(ctx, id)
	if err != nil {
		t.Fatalf("querying history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want submitted/claimed/completed", len(history))
	}
	if history[2].EventType != events.EventTypeTaskCompleted || history[2].Detail != "ok" {
		t.Errorf("final trail row = %+v", history[2])
	}

	ids, err := j.FailedTaskIDs(ctx)
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("failed ids = %v, want none", ids)
	}
}
