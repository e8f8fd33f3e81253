package session

// Status represents the lifecycle state of a feedback session. Sessions move
// forward through WAITING, ACTIVE, FEEDBACK_SUBMITTED, and COMPLETED, and can
// drop into one of three absorbing terminal states from anywhere.
type Status int

const (
	StatusWaiting Status = iota
	StatusActive
	StatusFeedbackSubmitted
	StatusCompleted
	StatusError
	StatusTimeout
	StatusExpired
)

// String returns the string representation of the status
func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusActive:
		return "active"
	case StatusFeedbackSubmitted:
		return "feedback_submitted"
	case StatusCompleted:
		return "completed"
	case StatusError:
		return "error"
	case StatusTimeout:
		return "timeout"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Next returns the single forward successor of a status, or the status itself
// when no forward move exists
func (s Status) Next() Status {
	switch s {
	case StatusWaiting:
		return StatusActive
	case StatusActive:
		return StatusFeedbackSubmitted
	case StatusFeedbackSubmitted:
		return StatusCompleted
	default:
		return s
	}
}

// IsTerminal reports whether no further transitions are allowed from s
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout, StatusExpired:
		return true
	default:
		return false
	}
}

// CleanupReason tags why a session's resources were torn down
type CleanupReason string

const (
	ReasonTimeout        CleanupReason = "timeout"
	ReasonExpired        CleanupReason = "expired"
	ReasonMemoryPressure CleanupReason = "memory_pressure"
	ReasonCapacity       CleanupReason = "capacity"
	ReasonManual         CleanupReason = "manual"
	ReasonError          CleanupReason = "error"
	ReasonShutdown       CleanupReason = "shutdown"
)

// CleanupTrigger identifies what initiated a cleanup pass over sessions
type CleanupTrigger string

const (
	TriggerAuto           CleanupTrigger = "auto"
	TriggerMemoryPressure CleanupTrigger = "memory_pressure"
	TriggerManual         CleanupTrigger = "manual"
	TriggerExpired        CleanupTrigger = "expired"
	TriggerCapacity       CleanupTrigger = "capacity"
	TriggerShutdown       CleanupTrigger = "shutdown"
)
