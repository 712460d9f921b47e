package events

import "time"

// Event is the base interface for all events.
type Event interface {
	EventType() string
	EntityID() string
}

// Topic constants
const (
	TopicTask   = "task"
	TopicWorker = "worker"
	TopicScale  = "scale"
)

// Event type constants
const (
	EventTypeTaskSubmitted      = "task.submitted"
	EventTypeTaskClaimed        = "task.claimed"
	EventTypeTaskProgress       = "task.progress"
	EventTypeTaskCompleted      = "task.completed"
	EventTypeTaskFailed         = "task.failed"
	EventTypeTaskRequeued       = "task.requeued"
	EventTypeTaskCancelled      = "task.cancelled"
	EventTypeWorkerRegistered   = "worker.registered"
	EventTypeWorkerDeregistered = "worker.deregistered"
	EventTypeWorkerOffline      = "worker.offline"
	EventTypeScaleDecision      = "scale.decision"
)

// Requeue cause constants for TaskRequeuedEvent.
const (
	CauseFailure        = "failure"
	CauseWorkerTimeout  = "worker_timeout"
	CauseDeregistration = "deregistration"
)

// TaskSubmittedEvent is published when a producer submits a task.
type TaskSubmittedEvent struct {
	ID        string
	Name      string
	Priority  string
	Timestamp time.Time
}

func (e TaskSubmittedEvent) EventType() string { return EventTypeTaskSubmitted }
func (e TaskSubmittedEvent) EntityID() string  { return e.ID }

// TaskClaimedEvent is published when a worker wins a claim.
type TaskClaimedEvent struct {
	ID        string
	WorkerID  string
	Timestamp time.Time
}

func (e TaskClaimedEvent) EventType() string { return EventTypeTaskClaimed }
func (e TaskClaimedEvent) EntityID() string  { return e.ID }

// TaskProgressEvent is published on accepted progress updates.
type TaskProgressEvent struct {
	ID        string
	WorkerID  string
	Percent   int
	Note      string
	Timestamp time.Time
}

func (e TaskProgressEvent) EventType() string { return EventTypeTaskProgress }
func (e TaskProgressEvent) EntityID() string  { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
// Results consumers subscribe to TopicTask for these.
type TaskCompletedEvent struct {
	ID        string
	WorkerID  string
	Result    string
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) EntityID() string  { return e.ID }

// TaskFailedEvent is published when a task's retries are exhausted.
type TaskFailedEvent struct {
	ID        string
	WorkerID  string
	Reason    string
	Retries   int
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) EntityID() string  { return e.ID }

// TaskRequeuedEvent is published when a task returns to the pending queue
// after a retryable failure, an offline sweep, or a deregistration.
type TaskRequeuedEvent struct {
	ID        string
	WorkerID  string
	Cause     string
	Timestamp time.Time
}

func (e TaskRequeuedEvent) EventType() string { return EventTypeTaskRequeued }
func (e TaskRequeuedEvent) EntityID() string  { return e.ID }

// TaskCancelledEvent is published when a cancellation is requested and
// again, with Acknowledged set, once the owning worker observes it.
type TaskCancelledEvent struct {
	ID           string
	Acknowledged bool
	Timestamp    time.Time
}

func (e TaskCancelledEvent) EventType() string { return EventTypeTaskCancelled }
func (e TaskCancelledEvent) EntityID() string  { return e.ID }

// WorkerRegisteredEvent is published when a worker joins the pool.
type WorkerRegisteredEvent struct {
	ID           string
	Name         string
	Capabilities []string
	Timestamp    time.Time
}

func (e WorkerRegisteredEvent) EventType() string { return EventTypeWorkerRegistered }
func (e WorkerRegisteredEvent) EntityID() string  { return e.ID }

// WorkerDeregisteredEvent is published on explicit deregistration.
// Requeued lists the tasks returned to the queue.
type WorkerDeregisteredEvent struct {
	ID        string
	Requeued  []string
	Timestamp time.Time
}

func (e WorkerDeregisteredEvent) EventType() string { return EventTypeWorkerDeregistered }
func (e WorkerDeregisteredEvent) EntityID() string  { return e.ID }

// WorkerOfflineEvent is published when the heartbeat sweep takes a worker
// offline. Requeued lists the tasks returned to the queue.
type WorkerOfflineEvent struct {
	ID        string
	Requeued  []string
	Timestamp time.Time
}

func (e WorkerOfflineEvent) EventType() string { return EventTypeWorkerOffline }
func (e WorkerOfflineEvent) EntityID() string  { return e.ID }

// ScaleDecisionEvent is published for every autoscaler action. A
// worker-pool manager subscribes to TopicScale for these.
type ScaleDecisionEvent struct {
	Decision   string
	Pending    int
	InProgress int
	Workers    int
	Timestamp  time.Time
}

func (e ScaleDecisionEvent) EventType() string { return EventTypeScaleDecision }
func (e ScaleDecisionEvent) EntityID() string  { return "" }
