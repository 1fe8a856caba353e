package process

// Transition names a lifecycle step of a running process.
type Transition string

const (
	Started            Transition = "started"
	TerminateRequested Transition = "terminate-requested"
	TerminateForced    Transition = "terminate-forced"
	TimedOut           Transition = "timeout"
	Exited             Transition = "exited"
)

// Sink observes streamed stdout lines and lifecycle transitions. Nothing
// passed to a sink is retained by the runner.
type Sink interface {
	Line(line string)
	Lifecycle(transition Transition, detail string)
}

// Funcs adapts plain functions to a Sink. Nil fields are ignored.
type Funcs struct {
	OnLine      func(line string)
	OnLifecycle func(transition Transition, detail string)
}

// Line implements Sink.
func (f Funcs) Line(line string) {
	if f.OnLine != nil {
		f.OnLine(line)
	}
}

// Lifecycle implements Sink.
func (f Funcs) Lifecycle(transition Transition, detail string) {
	if f.OnLifecycle != nil {
		f.OnLifecycle(transition, detail)
	}
}

// Discard is a Sink that drops everything.
var Discard Sink = Funcs{}

// Tee fans events out to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return tee(filtered)
}

type tee []Sink

func (t tee) Line(line string) {
	for _, s := range t {
		s.Line(line)
	}
}

func (t tee) Lifecycle(transition Transition, detail string) {
	for _, s := range t {
		s.Lifecycle(transition, detail)
	}
}
