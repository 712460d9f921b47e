package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/taskwell/taskwell/internal/task"
)

// TaskEventRecord is one row of a task's persisted event trail.
type TaskEventRecord struct {
	TaskID    string
	EventType string
	WorkerID  string
	Detail    string
	Timestamp time.Time
}

// WorkerEventRecord is one persisted worker lifecycle event.
type WorkerEventRecord struct {
	WorkerID  string
	EventType string
	Detail    string
	Timestamp time.Time
}

// ScaleDecisionRecord is one persisted autoscaler decision.
type ScaleDecisionRecord struct {
	Decision   string
	Pending    int
	InProgress int
	Workers    int
	Timestamp  time.Time
}

// RecordTaskSnapshot upserts the current state of a task. Repeated calls
// for the same task keep only the latest snapshot.
func (j *Journal) RecordTaskSnapshot(ctx context.Context, t *task.Task) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_snapshots (id, name, priority, status, assigned_worker, progress, result, fail_reason, retry_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_worker = excluded.assigned_worker,
			progress = excluded.progress,
			result = excluded.result,
			fail_reason = excluded.fail_reason,
			retry_count = excluded.retry_count,
			updated_at = CURRENT_TIMESTAMP
	`, t.ID, t.Name, t.Priority.String(), t.Status.String(), t.AssignedWorker, t.Progress, t.Result, t.FailReason, t.RetryCount)
	if err != nil {
		return fmt.Errorf("recording task snapshot: %w", err)
	}
	return nil
}

// RecordTaskEvent appends one row to a task's event trail.
func (j *Journal) RecordTaskEvent(ctx context.Context, rec TaskEventRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO task_events (task_id, event_type, worker_id, detail, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, rec.TaskID, rec.EventType, rec.WorkerID, rec.Detail, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("recording task event: %w", err)
	}
	return nil
}

// RecordWorkerEvent appends one worker lifecycle row.
func (j *Journal) RecordWorkerEvent(ctx context.Context, workerID, eventType, detail string, ts time.Time) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO worker_events (worker_id, event_type, detail, timestamp)
		VALUES (?, ?, ?, ?)
	`, workerID, eventType, detail, ts)
	if err != nil {
		return fmt.Errorf("recording worker event: %w", err)
	}
	return nil
}

// RecordScaleDecision appends one autoscaler decision.
func (j *Journal) RecordScaleDecision(ctx context.Context, rec ScaleDecisionRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO scale_decisions (decision, pending, in_progress, workers, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`, rec.Decision, rec.Pending, rec.InProgress, rec.Workers, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("recording scale decision: %w", err)
	}
	return nil
}

// TaskHistory returns a task's event trail in insertion order.
func (j *Journal) TaskHistory(ctx context.Context, taskID string) ([]TaskEventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT task_id, event_type, worker_id, detail, timestamp
		FROM task_events
		WHERE task_id = ?
		ORDER BY id
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("querying task history: %w", err)
	}
	defer rows.Close()

	var history []TaskEventRecord
	for rows.Next() {
		var rec TaskEventRecord
		if err := rows.Scan(&rec.TaskID, &rec.EventType, &rec.WorkerID, &rec.Detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning task event: %w", err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating task events: %w", err)
	}
	return history, nil
}

// WorkerHistory returns a worker's lifecycle events in insertion order.
func (j *Journal) WorkerHistory(ctx context.Context, workerID string) ([]WorkerEventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT worker_id, event_type, detail, timestamp
		FROM worker_events
		WHERE worker_id = ?
		ORDER BY id
	`, workerID)
	if err != nil {
		return nil, fmt.Errorf("querying worker history: %w", err)
	}
	defer rows.Close()

	var history []WorkerEventRecord
	for rows.Next() {
		var rec WorkerEventRecord
		if err := rows.Scan(&rec.WorkerID, &rec.EventType, &rec.Detail, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning worker event: %w", err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating worker events: %w", err)
	}
	return history, nil
}

// FailedTaskIDs returns the ids of tasks whose latest snapshot is failed.
// This survives restarts, unlike the in-memory failed list.
func (j *Journal) FailedTaskIDs(ctx context.Context) ([]string, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id FROM task_snapshots WHERE status = ? ORDER BY updated_at
	`, task.StatusFailed.String())
	if err != nil {
		return nil, fmt.Errorf("querying failed tasks: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning failed task id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating failed tasks: %w", err)
	}
	return ids, nil
}

// ScaleDecisions returns the most recent autoscaler decisions, newest
// first, capped at limit.
func (j *Journal) ScaleDecisions(ctx context.Context, limit int) ([]ScaleDecisionRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT decision, pending, in_progress, workers, timestamp
		FROM scale_decisions
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scale decisions: %w", err)
	}
	defer rows.Close()

	var decisions []ScaleDecisionRecord
	for rows.Next() {
		var rec ScaleDecisionRecord
		if err := rows.Scan(&rec.Decision, &rec.Pending, &rec.InProgress, &rec.Workers, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning scale decision: %w", err)
		}
		decisions = append(decisions, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scale decisions: %w", err)
	}
	return decisions, nil
}
