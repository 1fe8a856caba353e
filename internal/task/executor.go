package task

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexisbeaulieu97/portly/internal/events"
	"github.com/alexisbeaulieu97/portly/internal/logger"
	"github.com/alexisbeaulieu97/portly/internal/process"
	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// DefaultSampleLines is how many raw output lines a parse failure carries.
const DefaultSampleLines = 10

// Parser turns the stdout lines of a successful process into a payload.
type Parser func(lines []string) (any, error)

// Request describes one unit of work handed to the Executor.
type Request struct {
	// Label names the request in logs and events.
	Label   string
	Command process.Command
	Elevate bool
	// Timeout of zero selects the runner default.
	Timeout time.Duration
	Token   Token
}

// Starter launches processes. *process.Runner satisfies it.
type Starter interface {
	Start(ctx context.Context, spec process.Spec, sink process.Sink) (*process.Process, error)
}

// Option customises an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Executor) {
		if log != nil {
			e.log = log
		}
	}
}

// WithPublisher sets the publisher that receives task events.
func WithPublisher(publisher events.Publisher) Option {
	return func(e *Executor) {
		e.publisher = publisher
	}
}

// WithSampleLines sets how many raw lines are attached to parse failures.
func WithSampleLines(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.sampleLines = n
		}
	}
}

// Executor runs at most one Request at a time. A Submit while another
// request is active fails with errors.ErrBusy; nothing is queued.
type Executor struct {
	starter     Starter
	log         *logger.Logger
	publisher   events.Publisher
	sampleLines int

	slot atomic.Pointer[active]
}

// active is the in-flight request. finished and cancelled are guarded by mu
// so that a cancel and a natural completion cannot both win.
type active struct {
	mu        sync.Mutex
	proc      *process.Process
	finished  bool
	cancelled bool
}

// NewExecutor builds an Executor around starter.
func NewExecutor(starter Starter, opts ...Option) *Executor {
	e := &Executor{
		starter:     starter,
		log:         logger.Nop(),
		sampleLines: DefaultSampleLines,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Busy reports whether a request is in flight.
func (e *Executor) Busy() bool {
	return e.slot.Load() != nil
}

// Submit starts req on a worker goroutine and returns a channel that yields
// exactly one Result and is then closed. Lines reach sink in order and
// strictly before the Result is sent. The slot is released before the
// Result is delivered, so the receiver may submit a follow-up immediately.
func (e *Executor) Submit(ctx context.Context, req Request, sink process.Sink, parse Parser) (<-chan Result, error) {
	a := &active{}
	if !e.slot.CompareAndSwap(nil, a) {
		return nil, pkgerrors.ErrBusy
	}
	if sink == nil {
		sink = process.Discard
	}

	out := make(chan Result, 1)
	go func() {
		defer close(out)
		result := e.run(ctx, a, req, sink, parse)

		a.mu.Lock()
		a.finished = true
		if a.cancelled {
			result = NewCancelled(req.Token)
		}
		a.mu.Unlock()

		e.slot.CompareAndSwap(a, nil)
		e.report(ctx, req, result)
		out <- result
	}()
	return out, nil
}

// Cancel terminates the active request. It returns true when the request
// will resolve as Cancelled, and false when nothing was running or the
// request had already finished.
func (e *Executor) Cancel() bool {
	a := e.slot.Load()
	if a == nil {
		return false
	}

	a.mu.Lock()
	if a.finished {
		a.mu.Unlock()
		return false
	}
	a.cancelled = true
	proc := a.proc
	a.mu.Unlock()

	e.log.Info("task cancellation requested")
	if proc != nil {
		proc.Terminate()
	}
	return true
}

func (e *Executor) run(ctx context.Context, a *active, req Request, sink process.Sink, parse Parser) Result {
	log := e.log.With("task", req.Label)
	spec := process.Spec{Command: req.Command, Elevate: req.Elevate, Timeout: req.Timeout}

	proc, err := e.starter.Start(ctx, spec, sink)
	if err != nil {
		if ctx.Err() != nil {
			return NewCancelled(req.Token)
		}
		log.Error(err, "task could not start", "argv", []string(req.Command))
		return NewFailure(FailureFromError(err), req.Token)
	}

	a.mu.Lock()
	a.proc = proc
	cancelled := a.cancelled
	a.mu.Unlock()
	if cancelled {
		proc.Terminate()
	}

	argv := proc.Command()
	log.Info("task started", "argv", []string(argv), "pid", proc.Pid(), "elevate", req.Elevate)
	e.publish(ctx, events.TaskStarted, map[string]any{
		"task":    req.Label,
		"command": argv.String(),
		"elevate": req.Elevate,
	})

	var lines []string
	for line := range proc.Lines() {
		lines = append(lines, line)
	}

	exit, err := proc.Wait()
	if err != nil {
		return NewFailure(FailureFromError(err), req.Token)
	}
	if proc.Terminated() && ctx.Err() != nil {
		return NewCancelled(req.Token)
	}
	if exit.Code != 0 {
		return NewFailure(FailureFromError(pkgerrors.NewProcessError(argv, exit.Code, exit.Stderr)), req.Token)
	}
	if parse == nil {
		return NewSuccess(lines, req.Token)
	}

	payload, err := safeParse(parse, lines)
	if err != nil {
		sample := lines
		if len(sample) > e.sampleLines {
			sample = sample[:e.sampleLines]
		}
		return NewFailure(FailureFromError(pkgerrors.NewParseError(argv, sample, err)), req.Token)
	}
	return NewSuccess(payload, req.Token)
}

func safeParse(parse Parser, lines []string) (payload any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parser panic: %v", r)
		}
	}()
	return parse(lines)
}

func (e *Executor) report(ctx context.Context, req Request, result Result) {
	log := e.log.With("task", req.Label)
	fields := map[string]any{"task": req.Label, "kind": result.Kind.String()}

	switch result.Kind {
	case KindSuccess:
		log.Info("task succeeded")
	case KindCancelled:
		log.Info("task cancelled")
	case KindFailure:
		fields["reason"] = string(result.Failure.Reason)
		log.Warn("task failed", "reason", string(result.Failure.Reason), "headline", result.Failure.Headline())
	}
	e.publish(ctx, events.TaskFinished, fields)
}

func (e *Executor) publish(ctx context.Context, eventType string, payload map[string]any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(context.WithoutCancel(ctx), events.New(eventType, payload)); err != nil {
		e.log.Warn("publish event failed", "event_type", eventType, "error", err)
	}
}
