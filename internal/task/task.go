package task

import "time"

// Priority orders tasks within the claimable queue. Higher values are
// dispatched first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	}
	return "unknown"
}

// Status represents the current state of a task.
type Status int

const (
	StatusPending    Status = iota // Waiting to be claimed
	StatusInProgress               // Claimed and bound to one worker
	StatusCompleted                // Finished successfully
	StatusFailed                   // Retries exhausted
	StatusCancelled                // Cancelled by a producer
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Task is a unit of work with a capability requirement and a priority.
// AssignedWorker is non-empty only while Status is StatusInProgress.
type Task struct {
	ID           string
	Name         string
	Description  string
	Priority     Priority
	Status       Status
	Capabilities []string // capabilities a worker must have to claim this task
	DependsOn    []string // task IDs that must complete before this one is claimable
	AffinityKey  string   // optional routing key for affinity-hash balancing

	AssignedWorker string
	Progress       int // 0-100
	ProgressNote   string
	Result         string
	FailReason     string

	// CancelRequested is set when a producer cancels an in-progress task.
	// The owning worker observes it on its next progress update; the core
	// never interrupts work forcibly.
	CancelRequested bool

	RetryCount int
	MaxRetries int

	CreatedAt   time.Time
	ClaimedAt   *time.Time
	CompletedAt *time.Time

	// seq is the submission sequence number, used as the FIFO tie-break
	// when priorities are equal.
	seq uint64

	// ackWorker remembers who owned the task when it was cancelled, so the
	// cooperative acknowledgment can be matched to the right worker.
	ackWorker string
}

// Spec describes a task submission.
type Spec struct {
	Name         string
	Description  string
	Priority     Priority
	Capabilities []string
	DependsOn    []string
	AffinityKey  string
	MaxRetries   int // 0 means the store default
}

// HasCapabilities reports whether the worker capability set covers every
// required capability.
func HasCapabilities(workerCaps, required []string) bool {
	if len(required) == 0 {
		return true
	}
	have := make(map[string]struct{}, len(workerCaps))
	for _, c := range workerCaps {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}

func cloneTask(t *Task) *Task {
	if t == nil {
		return nil
	}

	cp := *t
	if t.Capabilities != nil {
		cp.Capabilities = append([]string(nil), t.Capabilities...)
	}
	if t.DependsOn != nil {
		cp.DependsOn = append([]string(nil), t.DependsOn...)
	}
	if t.ClaimedAt != nil {
		at := *t.ClaimedAt
		cp.ClaimedAt = &at
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}
