package schema

// TaskState is the lifecycle state of a task record.
type TaskState string

const (
	TaskStateCreated   TaskState = "created"
	TaskStateRunning   TaskState = "running"
	TaskStatePending   TaskState = "pending"
	TaskStateCompleted TaskState = "completed"
	TaskStateStopped   TaskState = "stopped"
	TaskStateCancelled TaskState = "cancelled"
)

// Terminal reports whether the state accepts no further transitions.
func (s TaskState) Terminal() bool {
	return s == TaskStateCompleted || s == TaskStateStopped || s == TaskStateCancelled
}

// ResumeDecision is the explicit choice made when re-admitting a pending task.
type ResumeDecision string

const (
	// ResumeNext advances past the suspension point using the normal
	// successor rule, without re-invoking the node's agent.
	ResumeNext ResumeDecision = "next"
	// ResumeRetry re-executes the suspension node from scratch, discarding
	// the prior output but keeping prior tool log entries.
	ResumeRetry ResumeDecision = "retry"
)

// Valid reports whether the decision is one of the recognized values.
func (d ResumeDecision) Valid() bool {
	return d == ResumeNext || d == ResumeRetry
}
