package sequencer

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/portly/internal/classify"
	"github.com/alexisbeaulieu97/portly/internal/events"
	"github.com/alexisbeaulieu97/portly/internal/logger"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/task"
	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// fakeExecutor resolves requests by label. Labels listed in gates block
// until released or cancelled.
type fakeExecutor struct {
	mu        sync.Mutex
	submitted []string
	failures  map[string]error
	gates     map[string]chan struct{}
	cancel    chan struct{}
	once      sync.Once
	busy      bool
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failures: map[string]error{},
		gates:    map[string]chan struct{}{},
		cancel:   make(chan struct{}),
	}
}

func (f *fakeExecutor) Submit(_ context.Context, req task.Request, _ process.Sink, parse task.Parser) (<-chan task.Result, error) {
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return nil, pkgerrors.ErrBusy
	}
	f.submitted = append(f.submitted, req.Label)
	err := f.failures[req.Label]
	gate := f.gates[req.Label]
	f.mu.Unlock()

	out := make(chan task.Result, 1)
	go func() {
		defer close(out)
		if gate != nil {
			select {
			case <-gate:
			case <-f.cancel:
				out <- task.NewCancelled(req.Token)
				return
			}
		}
		if err != nil {
			out <- task.NewFailure(task.FailureFromError(err), req.Token)
			return
		}
		var payload any = req.Label
		if parse != nil {
			payload, _ = parse([]string{req.Label})
		}
		out <- task.NewSuccess(payload, req.Token)
	}()
	return out, nil
}

func (f *fakeExecutor) Cancel() bool {
	f.once.Do(func() { close(f.cancel) })
	return true
}

func (f *fakeExecutor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func fixedStep(name string) Step {
	return Step{
		Name: name,
		Build: func(task.Token) (task.Request, error) {
			return task.Request{Command: process.Command{name}}, nil
		},
	}
}

func awaitReport(t *testing.T, reports <-chan Report) Report {
	t.Helper()
	select {
	case report := <-reports:
		return report
	case <-time.After(15 * time.Second):
		t.Fatal("timed out waiting for pipeline report")
		return Report{}
	}
}

func kinds(report Report) []task.Kind {
	out := make([]task.Kind, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		out = append(out, o.Result.Kind)
	}
	return out
}

func TestPipelineContinuesPastNonFatalFailure(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.failures["B"] = pkgerrors.NewProcessError([]string{"B"}, 1, "broken")

	seq := New(exec)
	reports, err := seq.Start(context.Background(), Pipeline{Name: "abc", Steps: []Step{fixedStep("A"), fixedStep("B"), fixedStep("C")}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Complete, report.State)
	require.Equal(t, []string{"A", "B", "C"}, exec.calls())
	require.Equal(t, []task.Kind{task.KindSuccess, task.KindFailure, task.KindSuccess}, kinds(report))
	require.Len(t, report.Failed(), 1)
	require.Equal(t, "B", report.Failed()[0].Step)
	require.NotEmpty(t, report.RunID)

	state, _ := seq.State()
	require.Equal(t, Complete, state)
}

func TestPipelineAbortsOnLaunchError(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.failures["A"] = pkgerrors.NewLaunchError("A", errors.New("not found"))

	reports, err := New(exec).Start(context.Background(), Pipeline{Steps: []Step{fixedStep("A"), fixedStep("B"), fixedStep("C")}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, []string{"A"}, exec.calls())
	require.Contains(t, report.Reason, "not found")
}

func TestFatalFailureOnLastStepAborts(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.failures["B"] = pkgerrors.NewPrivilegeToolMissingError("pkexec", errors.New("missing"))

	reports, err := New(exec).Start(context.Background(), Pipeline{Steps: []Step{fixedStep("A"), fixedStep("B")}}, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, Aborted, awaitReport(t, reports).State)
}

func TestCriticalStepFailureAborts(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.failures["install"] = pkgerrors.NewProcessError([]string{"emerge"}, 1, "")

	install := fixedStep("install")
	install.Critical = true
	reports, err := New(exec).Start(context.Background(), Pipeline{Steps: []Step{install, fixedStep("refresh")}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, []string{"install"}, exec.calls())
	require.Contains(t, report.Reason, "critical step")
}

func TestCancelAbortsPipeline(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.gates["B"] = make(chan struct{})

	var (
		mu      sync.Mutex
		started []string
	)
	observer := ObserverFuncs{OnStepStarted: func(_ int, step string, _ task.Request) {
		mu.Lock()
		defer mu.Unlock()
		started = append(started, step)
	}}

	seq := New(exec)
	reports, err := seq.Start(context.Background(), Pipeline{Steps: []Step{fixedStep("A"), fixedStep("B"), fixedStep("C")}}, nil, nil, observer)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, index := seq.State()
		return state == Running && index == 1
	}, 5*time.Second, 5*time.Millisecond)

	require.True(t, seq.Cancel())
	report := awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, "cancelled", report.Reason)
	require.Equal(t, []task.Kind{task.KindSuccess, task.KindCancelled}, kinds(report))
	require.Equal(t, []string{"A", "B"}, exec.calls())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"A", "B"}, started)
	require.False(t, seq.Cancel(), "nothing left to cancel")
}

func TestCancelBetweenStepsSkipsNextStep(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	seq := New(exec)

	var accepted bool
	first := fixedStep("A")
	first.Fold = func(token task.Token, _ task.Result) task.Token {
		accepted = seq.Cancel()
		return token
	}

	reports, err := seq.Start(context.Background(), Pipeline{Steps: []Step{first, fixedStep("B"), fixedStep("C")}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.True(t, accepted)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, "cancelled", report.Reason)
	require.Equal(t, []task.Kind{task.KindSuccess, task.KindCancelled}, kinds(report))
	require.Equal(t, []string{"A"}, exec.calls())
}

func TestCancelBeforeSubmitStopsFirstStep(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.gates["A"] = make(chan struct{})
	seq := New(exec)

	first := Step{Name: "A", Build: func(task.Token) (task.Request, error) {
		seq.Cancel()
		return task.Request{Command: process.Command{"A"}}, nil
	}}

	reports, err := seq.Start(context.Background(), Pipeline{Steps: []Step{first, fixedStep("B")}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, "cancelled", report.Reason)
	require.Equal(t, []task.Kind{task.KindCancelled}, kinds(report))
	require.Equal(t, []string{"A"}, exec.calls())
}

func TestStartWhileRunningIsBusy(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	gate := make(chan struct{})
	exec.gates["slow"] = gate

	seq := New(exec)
	reports, err := seq.Start(context.Background(), Pipeline{Steps: []Step{fixedStep("slow")}}, nil, nil, nil)
	require.NoError(t, err)

	_, err = seq.Start(context.Background(), Pipeline{Steps: []Step{fixedStep("other")}}, nil, nil, nil)
	require.ErrorIs(t, err, pkgerrors.ErrBusy)

	close(gate)
	require.Equal(t, Complete, awaitReport(t, reports).State)

	reports, err = seq.Start(context.Background(), Pipeline{Steps: []Step{fixedStep("other")}}, nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, Complete, awaitReport(t, reports).State)
}

func TestStartWithBusyExecutorIsRejected(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.busy = true

	seq := New(exec)
	_, err := seq.Start(context.Background(), Pipeline{Steps: []Step{fixedStep("A")}}, nil, nil, nil)
	require.ErrorIs(t, err, pkgerrors.ErrBusy)

	state, _ := seq.State()
	require.Equal(t, Idle, state)
}

func TestStartRejectsEmptyPipeline(t *testing.T) {
	t.Parallel()

	_, err := New(newFakeExecutor()).Start(context.Background(), Pipeline{Name: "empty"}, nil, nil, nil)
	require.ErrorContains(t, err, "no steps")
}

func TestTokenThreadsThroughSteps(t *testing.T) {
	t.Parallel()

	collect := func(name string) Step {
		return Step{
			Name: name,
			Build: func(token task.Token) (task.Request, error) {
				return task.Request{Command: process.Command{name}, Token: append(token.([]string), "build:"+name)}, nil
			},
			Parse: func(lines []string) (any, error) { return lines[0], nil },
			Fold: func(token task.Token, result task.Result) task.Token {
				return append(token.([]string), "fold:"+result.Payload.(string))
			},
		}
	}

	reports, err := New(newFakeExecutor()).Start(context.Background(), Pipeline{Steps: []Step{collect("one"), collect("two")}}, []string{}, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Complete, report.State)
	require.Equal(t, []string{"build:one", "fold:one", "build:two", "fold:two"}, report.Token)
}

func TestBuildErrorIsStepLocal(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	broken := Step{
		Name:  "broken",
		Build: func(task.Token) (task.Request, error) { return task.Request{}, errors.New("no atoms selected") },
	}

	reports, err := New(exec).Start(context.Background(), Pipeline{Steps: []Step{broken, fixedStep("after")}}, "tok", nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Complete, report.State)
	require.Equal(t, []string{"after"}, exec.calls())
	first := report.Outcomes[0].Result
	require.Equal(t, task.ReasonInvalid, first.Failure.Reason)
	require.Equal(t, "tok", first.Token)
}

func TestClassifiedFailureAdvancesAsSuccess(t *testing.T) {
	t.Parallel()

	exec := newFakeExecutor()
	exec.failures["updates"] = pkgerrors.NewProcessError([]string{"emerge"}, 1, "There are no packages to update")

	updates := fixedStep("updates")
	updates.Classify = classify.Default([]string{}).Classify

	var resolved []Outcome
	observer := ObserverFuncs{OnStepResolved: func(o Outcome) { resolved = append(resolved, o) }}
	reports, err := New(exec).Start(context.Background(), Pipeline{Steps: []Step{updates}}, nil, nil, observer)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Complete, report.State)
	require.Empty(t, report.Failed())
	require.Len(t, resolved, 1)
	require.Equal(t, []string{}, resolved[0].Result.Payload)
}

func TestSequencerPublishesLifecycle(t *testing.T) {
	t.Parallel()

	publisher := events.NewLoggingPublisher(logger.Nop())
	var (
		mu    sync.Mutex
		types []string
	)
	_, err := publisher.Subscribe(events.Wildcard, func(_ context.Context, event events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, event.EventType())
		return nil
	})
	require.NoError(t, err)

	reports, err := New(newFakeExecutor(), WithPublisher(publisher)).Start(context.Background(), Pipeline{Steps: []Step{fixedStep("A")}}, nil, nil, nil)
	require.NoError(t, err)
	awaitReport(t, reports)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{events.SequenceStarted, events.StepStarted, events.StepResolved, events.SequenceCompleted}, types)
}

func TestSequencerWithRealProcesses(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}

	shell := func(name, script string) Step {
		return Step{Name: name, Build: func(task.Token) (task.Request, error) {
			return task.Request{Command: process.Command{"sh", "-c", script}}, nil
		}}
	}

	runner := process.NewRunner(process.Options{GracePeriod: 200 * time.Millisecond})
	executor := task.NewExecutor(runner)
	seq := New(executor)

	reports, err := seq.Start(context.Background(), Pipeline{Steps: []Step{
		shell("ok", "echo ok"),
		shell("fails", "echo nope >&2; exit 2"),
		shell("missing", "exec portly-no-such-tool"),
		shell("last", "echo done"),
	}}, nil, nil, nil)
	require.NoError(t, err)

	report := awaitReport(t, reports)
	require.Equal(t, Complete, report.State)
	require.Equal(t, []task.Kind{task.KindSuccess, task.KindFailure, task.KindFailure, task.KindSuccess}, kinds(report))
	require.Equal(t, []string{"done"}, report.Outcomes[3].Result.Payload)
	require.False(t, executor.Busy())

	reports, err = seq.Start(context.Background(), Pipeline{Steps: []Step{
		shell("hang", "sleep 30"),
		shell("never", "echo unreachable"),
	}}, nil, nil, nil)
	require.NoError(t, err)

	require.Eventually(t, executor.Busy, 5*time.Second, 5*time.Millisecond)
	require.True(t, seq.Cancel())
	report = awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, task.KindCancelled, report.Outcomes[0].Result.Kind)

	marker := filepath.Join(t.TempDir(), "ran")
	first := shell("first", "echo first")
	first.Fold = func(token task.Token, _ task.Result) task.Token {
		seq.Cancel()
		return token
	}
	reports, err = seq.Start(context.Background(), Pipeline{Steps: []Step{
		first,
		shell("touch", "touch "+marker),
	}}, nil, nil, nil)
	require.NoError(t, err)

	report = awaitReport(t, reports)
	require.Equal(t, Aborted, report.State)
	require.Equal(t, "cancelled", report.Reason)
	require.NoFileExists(t, marker)
	require.False(t, executor.Busy())
}
