package process

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

const (
	// DefaultTimeout bounds every invocation unless a Spec overrides it.
	DefaultTimeout = 300 * time.Second
	// DefaultGracePeriod is how long Terminate waits before escalating to a kill.
	DefaultGracePeriod = 2 * time.Second
	// DefaultElevationHelper runs commands with elevated privileges.
	DefaultElevationHelper = "pkexec"

	maxLineBytes = 1024 * 1024
	waitDelay    = 5 * time.Second
)

// DefaultElevationArgs keep the helper from falling back to an interactive
// text agent, so it either authenticates through the session or fails.
var DefaultElevationArgs = []string{"--disable-internal-agent"}

// Options configures a Runner.
type Options struct {
	ElevationHelper string
	ElevationArgs   []string
	GracePeriod     time.Duration
	DefaultTimeout  time.Duration
	LookPath        func(file string) (string, error)
}

// Runner launches external processes.
type Runner struct {
	opts Options
}

// NewRunner creates a Runner, filling unset options with defaults.
func NewRunner(opts Options) *Runner {
	if opts.ElevationHelper == "" {
		opts.ElevationHelper = DefaultElevationHelper
		if opts.ElevationArgs == nil {
			opts.ElevationArgs = DefaultElevationArgs
		}
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = DefaultGracePeriod
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultTimeout
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	return &Runner{opts: opts}
}

// ElevationHelper returns the configured helper executable.
func (r *Runner) ElevationHelper() string {
	return r.opts.ElevationHelper
}

// Spec describes one invocation.
type Spec struct {
	Command Command
	Elevate bool
	// Timeout of zero selects the runner default.
	Timeout time.Duration
}

// Argv returns the argv that Start would execute for spec.
func (r *Runner) Argv(spec Spec) Command {
	if !spec.Elevate {
		return spec.Command.Clone()
	}
	argv := make(Command, 0, len(spec.Command)+len(r.opts.ElevationArgs)+1)
	argv = append(argv, r.opts.ElevationHelper)
	argv = append(argv, r.opts.ElevationArgs...)
	return append(argv, spec.Command...)
}

// Start launches spec and returns a handle to the running process. The
// process is terminated when ctx is cancelled. Sink methods may be called
// from several goroutines.
func (r *Runner) Start(ctx context.Context, spec Spec, sink Sink) (*Process, error) {
	if err := spec.Command.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = Discard
	}

	if spec.Elevate {
		if _, err := r.opts.LookPath(r.opts.ElevationHelper); err != nil {
			return nil, pkgerrors.NewPrivilegeToolMissingError(r.opts.ElevationHelper, err)
		}
	}
	if _, err := r.opts.LookPath(spec.Command.Executable()); err != nil {
		return nil, pkgerrors.NewLaunchError(spec.Command.Executable(), err)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}

	argv := r.Argv(spec)
	cmd := exec.Command(argv[0], argv[1:]...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("attach stdout: %w", err)
	}

	p := &Process{
		cmd:       cmd,
		argv:      argv,
		sink:      sink,
		stdout:    stdout,
		timeout:   timeout,
		grace:     r.opts.GracePeriod,
		linesDone: make(chan struct{}),
	}
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return nil, pkgerrors.NewLaunchError(argv.Executable(), err)
	}
	p.started = time.Now()
	p.running.Store(true)
	sink.Lifecycle(Started, fmt.Sprintf("pid %d: %s", cmd.Process.Pid, argv))

	p.mu.Lock()
	p.deadline = time.AfterFunc(timeout, p.expire)
	p.stopCtx = context.AfterFunc(ctx, p.Terminate)
	p.mu.Unlock()

	return p, nil
}

// Exit describes how a process finished.
type Exit struct {
	// Code is -1 when the process was killed by a signal.
	Code    int
	Stderr  string
	Elapsed time.Duration
}

// Process is a handle to one launched command.
type Process struct {
	cmd     *exec.Cmd
	argv    Command
	sink    Sink
	stdout  io.ReadCloser
	stderr  syncBuffer
	timeout time.Duration
	grace   time.Duration
	started time.Time

	linesClaimed atomic.Bool
	linesDone    chan struct{}
	linesOnce    sync.Once

	running    atomic.Bool
	terminated atomic.Bool
	timedOut   atomic.Bool
	termOnce   sync.Once
	killOnce   sync.Once

	mu       sync.Mutex
	deadline *time.Timer
	force    *time.Timer
	stopCtx  func() bool

	waitOnce sync.Once
	exit     Exit
	waitErr  error
}

// Command returns the argv actually executed, including any elevation prefix.
func (p *Process) Command() Command {
	return p.argv.Clone()
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// IsRunning reports whether the process has not yet been reaped by Wait.
func (p *Process) IsRunning() bool {
	return p.running.Load()
}

// Terminated reports whether Terminate has been called.
func (p *Process) Terminated() bool {
	return p.terminated.Load()
}

// Lines streams stdout one line at a time, in order, as the process writes
// it. Each line is passed to the sink before it is yielded. The sequence can
// be consumed once; later calls yield nothing.
func (p *Process) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !p.linesClaimed.CompareAndSwap(false, true) {
			return
		}
		defer p.finishLines()

		scanner := bufio.NewScanner(p.stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			line := normalizeLine(scanner.Text())
			p.sink.Line(line)
			if !yield(line) {
				return
			}
		}
	}
}

// Wait blocks until stdout is finished and the process has exited, then
// returns its exit code and captured stderr. A process killed by the
// timeout yields a *errors.TimeoutError. Repeated calls return the same result.
func (p *Process) Wait() (Exit, error) {
	p.waitOnce.Do(p.wait)
	return p.exit, p.waitErr
}

func (p *Process) wait() {
	if p.linesClaimed.CompareAndSwap(false, true) {
		p.finishLines()
	}
	<-p.linesDone
	// whatever the consumer left unread
	_, _ = io.Copy(io.Discard, p.stdout)

	err := p.cmd.Wait()
	p.running.Store(false)
	p.stopTimers()

	exit := Exit{Code: -1, Stderr: p.stderr.String(), Elapsed: time.Since(p.started)}
	if state := p.cmd.ProcessState; state != nil {
		exit.Code = state.ExitCode()
	}
	p.exit = exit

	var exitErr *exec.ExitError
	switch {
	case p.timedOut.Load():
		p.waitErr = pkgerrors.NewTimeoutError(p.argv, p.timeout, exit.Elapsed)
	case err != nil && !errors.As(err, &exitErr) && !errors.Is(err, exec.ErrWaitDelay):
		p.waitErr = fmt.Errorf("wait for %s: %w", p.argv.Executable(), err)
	}

	p.sink.Lifecycle(Exited, fmt.Sprintf("exit code %d after %s", exit.Code, exit.Elapsed.Round(time.Millisecond)))
}

// Terminate asks the process group to stop and kills it if it is still
// running after the grace period. It never blocks and is safe to call more
// than once.
func (p *Process) Terminate() {
	p.termOnce.Do(func() {
		p.terminated.Store(true)
		if !p.running.Load() {
			return
		}
		p.sink.Lifecycle(TerminateRequested, fmt.Sprintf("pid %d", p.Pid()))
		if err := signalGroup(p.cmd, true); err != nil {
			p.sink.Lifecycle(TerminateForced, fmt.Sprintf("terminate signal failed: %v", err))
			p.kill()
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.force = time.AfterFunc(p.grace, func() {
			if !p.running.Load() {
				return
			}
			p.sink.Lifecycle(TerminateForced, fmt.Sprintf("still running after %s", p.grace))
			p.kill()
		})
	})
}

func (p *Process) expire() {
	if !p.running.Load() {
		return
	}
	p.timedOut.Store(true)
	p.sink.Lifecycle(TimedOut, fmt.Sprintf("no exit after %s", p.timeout))
	p.kill()
}

// kill force-kills the group and closes our end of stdout so a blocked read
// loop returns even if the signal could not be delivered.
func (p *Process) kill() {
	p.killOnce.Do(func() {
		_ = signalGroup(p.cmd, false)
		_ = p.stdout.Close()
	})
}

func (p *Process) finishLines() {
	p.linesOnce.Do(func() { close(p.linesDone) })
}

func (p *Process) stopTimers() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deadline != nil {
		p.deadline.Stop()
	}
	if p.force != nil {
		p.force.Stop()
	}
	if p.stopCtx != nil {
		p.stopCtx()
	}
}

func normalizeLine(raw string) string {
	return strings.TrimSpace(strings.ToValidUTF8(raw, "\uFFFD"))
}

// syncBuffer collects stderr while the process runs.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
