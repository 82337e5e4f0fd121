package notify

// EventKind classifies delivery outcome events.
type EventKind string

const (
	// EventCompleted marks a delivered job.
	EventCompleted EventKind = "completed"
	// EventFailed marks a job that exhausted all attempts. Exactly one
	// failed event is emitted per exhausted job.
	EventFailed EventKind = "failed"
)

// Event reports a terminal delivery outcome on the dispatcher's event stream.
// The stream is the only place terminal failures surface; they never propagate
// back to the code path that enqueued the job.
type Event struct {
	Kind   EventKind
	JobID  string
	Name   Name
	Reason string
}
