package task

// EventType identifies a progress stream event.
type EventType string

const (
	EventProgress     EventType = "progress"
	EventStepComplete EventType = "stepComplete"
	EventPaused       EventType = "paused"
	EventResumed      EventType = "resumed"
	EventCancelled    EventType = "cancelled"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// Event is one typed message on a task's progress stream.
type Event struct {
	Type           EventType `json:"-"`
	TaskID         string    `json:"task_id,omitempty"`
	Step           string    `json:"step,omitempty"`
	Progress       int       `json:"progress,omitempty"`
	Message        string    `json:"message,omitempty"`
	CompletedSteps []string  `json:"completed_steps,omitempty"`
	CanResume      bool      `json:"can_resume,omitempty"`
	Recoverable    *bool     `json:"recoverable,omitempty"`
}

// Terminal reports whether the event closes the stream.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventDone, EventError, EventCancelled, EventPaused:
		return true
	}
	return false
}

// Sink receives executor events. Implementations must not block.
type Sink interface {
	Publish(ev Event)
}

// NopSink drops every event; used when no stream is attached.
type NopSink struct{}

// Publish implements Sink.
func (NopSink) Publish(Event) {}
