package events

import "context"

const (
	// TaskStarted is emitted when a process has been launched for a request.
	TaskStarted = "task.started"
	// TaskFinished is emitted once per request with its terminal result.
	TaskFinished = "task.finished"
	// SequenceStarted is emitted when a pipeline begins.
	SequenceStarted = "sequence.started"
	// StepStarted is emitted before a pipeline step is submitted.
	StepStarted = "step.started"
	// StepResolved is emitted after a step's result has been classified.
	StepResolved = "step.resolved"
	// SequenceCompleted is emitted when the last step has resolved.
	SequenceCompleted = "sequence.completed"
	// SequenceAborted is emitted when a pipeline stops early.
	SequenceAborted = "sequence.aborted"
)

// Event is a notification emitted by the execution engine.
type Event interface {
	EventType() string
	Payload() any
}

// Handler processes a single event. Returned errors are logged, not propagated.
type Handler func(context.Context, Event) error

// Subscription represents a registered handler.
type Subscription interface {
	Unsubscribe()
}

// Publisher distributes events to subscribers. Publish is synchronous.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType string, handler Handler) (Subscription, error)
}

// Basic is a ready-made Event implementation.
type Basic struct {
	Type string
	Data any
}

// EventType implements Event.
func (e Basic) EventType() string { return e.Type }

// Payload implements Event.
func (e Basic) Payload() any { return e.Data }

// New constructs a Basic event.
func New(eventType string, data any) Event {
	return Basic{Type: eventType, Data: data}
}

// Wildcard subscribes a handler to every event type.
const Wildcard = "*"
