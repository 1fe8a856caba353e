package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/portly/internal/events"
	"github.com/alexisbeaulieu97/portly/internal/logger"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/task"
	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// State is the lifecycle position of a Sequencer.
type State uint8

const (
	Idle State = iota
	Running
	Complete
	Aborted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Step is one unit of a Pipeline.
type Step struct {
	Name string
	// Build turns the incoming continuation token into a request. A request
	// without a Token inherits the incoming one.
	Build func(token task.Token) (task.Request, error)
	Parse task.Parser
	// Classify may rewrite the raw result, typically a benign failure into a success.
	Classify func(task.Result) task.Result
	// Fold derives the token handed to the next step. Defaults to the result's token.
	Fold func(token task.Token, result task.Result) task.Token
	// Critical steps abort the pipeline on any failure.
	Critical bool
}

// Pipeline is an ordered list of steps, consumed once.
type Pipeline struct {
	Name  string
	Steps []Step
}

// Outcome records how one step resolved.
type Outcome struct {
	Index   int
	Step    string
	Result  task.Result
	Elapsed time.Duration
}

// Report summarises a finished pipeline run.
type Report struct {
	RunID    string
	Pipeline string
	State    State
	// Reason explains an abort; empty on completion.
	Reason   string
	Outcomes []Outcome
	Token    task.Token
}

// Failed returns the outcomes whose result is a failure.
func (r Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Result.Kind == task.KindFailure {
			failed = append(failed, o)
		}
	}
	return failed
}

// Executor is the single-flight task executor the sequencer drives.
type Executor interface {
	Submit(ctx context.Context, req task.Request, sink process.Sink, parse task.Parser) (<-chan task.Result, error)
	Cancel() bool
}

// Observer receives step notifications on the sequencer's goroutine.
type Observer interface {
	StepStarted(index int, step string, req task.Request)
	StepResolved(outcome Outcome)
	Finished(report Report)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are ignored.
type ObserverFuncs struct {
	OnStepStarted  func(index int, step string, req task.Request)
	OnStepResolved func(outcome Outcome)
	OnFinished     func(report Report)
}

func (o ObserverFuncs) StepStarted(index int, step string, req task.Request) {
	if o.OnStepStarted != nil {
		o.OnStepStarted(index, step, req)
	}
}

func (o ObserverFuncs) StepResolved(outcome Outcome) {
	if o.OnStepResolved != nil {
		o.OnStepResolved(outcome)
	}
}

func (o ObserverFuncs) Finished(report Report) {
	if o.OnFinished != nil {
		o.OnFinished(report)
	}
}

// Option customises a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the sequencer logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Sequencer) {
		if log != nil {
			s.log = log
		}
	}
}

// WithPublisher sets the publisher that receives sequence events.
func WithPublisher(publisher events.Publisher) Option {
	return func(s *Sequencer) {
		s.publisher = publisher
	}
}

// Sequencer runs one Pipeline at a time over an Executor.
type Sequencer struct {
	exec      Executor
	log       *logger.Logger
	publisher events.Publisher

	mu        sync.Mutex
	state     State
	current   int
	cancelled bool
}

// New creates an idle Sequencer.
func New(exec Executor, opts ...Option) *Sequencer {
	s := &Sequencer{exec: exec, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state and, while Running, the active step index.
func (s *Sequencer) State() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.current
}

// run is the per-start state owned by the driving goroutine.
type run struct {
	id       string
	pipeline Pipeline
	sink     process.Sink
	observer Observer
	log      *logger.Logger
	outcomes []Outcome
	out      chan Report
}

// Start submits the first step and drives the rest on a goroutine. It
// returns errors.ErrBusy while another pipeline is running or the executor
// already has a task in flight. The returned channel yields one Report.
func (s *Sequencer) Start(ctx context.Context, pipeline Pipeline, initial task.Token, sink process.Sink, observer Observer) (<-chan Report, error) {
	if len(pipeline.Steps) == 0 {
		return nil, fmt.Errorf("pipeline %q has no steps", pipeline.Name)
	}
	if observer == nil {
		observer = ObserverFuncs{}
	}

	s.mu.Lock()
	if s.state == Running {
		s.mu.Unlock()
		return nil, pkgerrors.ErrBusy
	}
	previous := s.state
	s.state, s.current, s.cancelled = Running, 0, false
	s.mu.Unlock()

	r := &run{
		id:       uuid.NewString(),
		pipeline: pipeline,
		sink:     sink,
		observer: observer,
		out:      make(chan Report, 1),
	}
	r.log = s.log.With("run_id", r.id, "pipeline", pipeline.Name)

	started := time.Now()
	first, err := s.launch(ctx, r, 0, initial)
	if errors.Is(err, pkgerrors.ErrBusy) {
		s.mu.Lock()
		s.state = previous
		s.mu.Unlock()
		return nil, err
	}

	r.log.Info("pipeline started", "steps", len(pipeline.Steps))
	s.publish(ctx, events.SequenceStarted, map[string]any{
		"run_id":   r.id,
		"pipeline": pipeline.Name,
		"steps":    len(pipeline.Steps),
	})
	s.stepStarted(ctx, r, 0, first)

	go s.drive(ctx, r, initial, first, started)
	return r.out, nil
}

// Cancel stops the running pipeline: the active task is terminated and no
// further step is launched, including one about to be submitted. It returns
// false when nothing is running.
func (s *Sequencer) Cancel() bool {
	s.mu.Lock()
	if s.state != Running {
		s.mu.Unlock()
		return false
	}
	s.cancelled = true
	s.mu.Unlock()

	s.exec.Cancel()
	return true
}

func (s *Sequencer) cancelRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// launched is a submitted step, or the immediate result of one that could
// not be submitted.
type launched struct {
	req       task.Request
	pending   <-chan task.Result
	immediate task.Result
}

// launch builds and submits step index. Build failures and a busy executor
// become an immediate failure result; ErrBusy is also returned so Start can
// reject the whole pipeline when the first step cannot be submitted.
func (s *Sequencer) launch(ctx context.Context, r *run, index int, token task.Token) (launched, error) {
	step := r.pipeline.Steps[index]

	s.mu.Lock()
	s.current = index
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		return launched{immediate: task.NewCancelled(token)}, nil
	}

	if step.Build == nil {
		failure := &task.Failure{Reason: task.ReasonInvalid, Diagnostic: fmt.Sprintf("step %q has no command builder", step.Name)}
		return launched{immediate: task.NewFailure(failure, token)}, nil
	}
	req, err := step.Build(token)
	if err != nil {
		failure := task.FailureFromError(err)
		if failure.Reason == task.ReasonInternal {
			failure.Reason = task.ReasonInvalid
		}
		return launched{immediate: task.NewFailure(failure, token)}, nil
	}
	if req.Token == nil {
		req.Token = token
	}
	if req.Label == "" {
		req.Label = step.Name
	}

	pending, err := s.exec.Submit(ctx, req, r.sink, step.Parse)
	if err != nil {
		return launched{req: req, immediate: task.NewFailure(task.FailureFromError(err), token)}, err
	}
	// A Cancel that ran before the slot was claimed found nothing to stop.
	if s.cancelRequested() {
		s.exec.Cancel()
	}
	return launched{req: req, pending: pending}, nil
}

func (s *Sequencer) stepStarted(ctx context.Context, r *run, index int, l launched) {
	if l.pending == nil {
		return
	}
	name := r.pipeline.Steps[index].Name
	r.observer.StepStarted(index, name, l.req)
	s.publish(ctx, events.StepStarted, map[string]any{
		"run_id":  r.id,
		"step":    name,
		"index":   index,
		"command": l.req.Command.String(),
	})
}

func (s *Sequencer) drive(ctx context.Context, r *run, token task.Token, current launched, started time.Time) {
	last := len(r.pipeline.Steps) - 1
	for index := 0; ; index++ {
		step := r.pipeline.Steps[index]

		result := current.immediate
		if current.pending != nil {
			result = <-current.pending
		}
		if step.Classify != nil {
			result = step.Classify(result)
		}

		outcome := Outcome{Index: index, Step: step.Name, Result: result, Elapsed: time.Since(started)}
		r.outcomes = append(r.outcomes, outcome)
		s.resolved(ctx, r, outcome)

		if result.Kind == task.KindCancelled || s.cancelRequested() {
			s.finish(ctx, r, Aborted, "cancelled", token)
			return
		}
		if result.Kind == task.KindFailure {
			switch {
			case result.Failure.Fatal():
				s.finish(ctx, r, Aborted, fmt.Sprintf("step %q: %s", step.Name, result.Failure.Headline()), token)
				return
			case step.Critical:
				s.finish(ctx, r, Aborted, fmt.Sprintf("critical step %q failed", step.Name), token)
				return
			}
		}

		token = result.Token
		if step.Fold != nil {
			token = step.Fold(token, result)
		}
		if index == last {
			s.finish(ctx, r, Complete, "", token)
			return
		}

		started = time.Now()
		current, _ = s.launch(ctx, r, index+1, token)
		s.stepStarted(ctx, r, index+1, current)
	}
}

func (s *Sequencer) resolved(ctx context.Context, r *run, outcome Outcome) {
	fields := map[string]any{
		"run_id": r.id,
		"step":   outcome.Step,
		"index":  outcome.Index,
		"kind":   outcome.Result.Kind.String(),
	}
	log := r.log.With("step", outcome.Step, "elapsed", outcome.Elapsed)
	if f := outcome.Result.Failure; f != nil {
		fields["reason"] = string(f.Reason)
		log.Warn("step failed", "reason", string(f.Reason), "headline", f.Headline())
	} else {
		log.Info("step resolved", "kind", outcome.Result.Kind.String())
	}
	s.publish(ctx, events.StepResolved, fields)
	r.observer.StepResolved(outcome)
}

func (s *Sequencer) finish(ctx context.Context, r *run, state State, reason string, token task.Token) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	report := Report{
		RunID:    r.id,
		Pipeline: r.pipeline.Name,
		State:    state,
		Reason:   reason,
		Outcomes: r.outcomes,
		Token:    token,
	}

	if state == Complete {
		r.log.Info("pipeline complete", "failed_steps", len(report.Failed()))
		s.publish(ctx, events.SequenceCompleted, map[string]any{"run_id": r.id, "pipeline": r.pipeline.Name})
	} else {
		r.log.Warn("pipeline aborted", "reason", reason)
		s.publish(ctx, events.SequenceAborted, map[string]any{"run_id": r.id, "pipeline": r.pipeline.Name, "reason": reason})
	}

	r.observer.Finished(report)
	r.out <- report
	close(r.out)
}

func (s *Sequencer) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(context.WithoutCancel(ctx), events.New(eventType, payload)); err != nil {
		s.log.Warn("publish event failed", "event_type", eventType, "error", err)
	}
}
