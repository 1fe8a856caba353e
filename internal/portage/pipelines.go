// Package portage assembles the Portage pipelines run by the sequencer.
package portage

import (
	"errors"
	"time"

	"github.com/alexisbeaulieu97/portly/internal/classify"
	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

// Step names.
const (
	StepInstalled = "installed"
	StepAvailable = "available"
	StepUpdates   = "updates"
	StepSync      = "sync"
	StepInstall   = "install"
	StepUninstall = "uninstall"
	StepUpdate    = "update"
)

// Pipeline names.
const (
	PipelineRefresh   = "refresh"
	PipelineSync      = "sync"
	PipelineInstall   = "install"
	PipelineUninstall = "uninstall"
	PipelineUpdate    = "update"
)

// ErrNoAtoms is returned when an action is requested without packages.
var ErrNoAtoms = errors.New("no valid package atoms selected")

// Tools names the Portage executables.
type Tools struct {
	Emerge string
	Eix    string
	Equery string
}

// DefaultTools returns the stock executable names.
func DefaultTools() Tools {
	return Tools{Emerge: "emerge", Eix: "eix", Equery: "equery"}
}

// Builder creates pipelines. Every pipeline threads a snapshot.Snapshot as
// its continuation token: list steps replace their list on success and keep
// the incoming one on failure.
type Builder struct {
	tools      Tools
	classifier *classify.Classifier
	timeout    time.Duration
	now        func() time.Time
}

// NewBuilder creates a Builder. A nil classifier selects the default rules;
// a zero timeout selects the runner default.
func NewBuilder(tools Tools, classifier *classify.Classifier, timeout time.Duration) *Builder {
	defaults := DefaultTools()
	if tools.Emerge == "" {
		tools.Emerge = defaults.Emerge
	}
	if tools.Eix == "" {
		tools.Eix = defaults.Eix
	}
	if tools.Equery == "" {
		tools.Equery = defaults.Equery
	}
	if classifier == nil {
		classifier = classify.Default(nil)
	}
	return &Builder{tools: tools, classifier: classifier, timeout: timeout, now: time.Now}
}

// Tools returns the executables the builder invokes.
func (b *Builder) Tools() Tools {
	return b.tools
}

// Refresh loads the installed, available and update lists in that order.
func (b *Builder) Refresh() sequencer.Pipeline {
	return sequencer.Pipeline{
		Name:  PipelineRefresh,
		Steps: b.refreshSteps(),
	}
}

// Sync synchronises the repositories, then re-checks updates.
func (b *Builder) Sync() sequencer.Pipeline {
	return sequencer.Pipeline{
		Name: PipelineSync,
		Steps: []sequencer.Step{
			b.action(StepSync, process.Command{b.tools.Emerge, "--sync"}),
			b.updatesStep(),
		},
	}
}

// Install merges atoms, then refreshes every list.
func (b *Builder) Install(atoms []string) (sequencer.Pipeline, error) {
	if len(atoms) == 0 {
		return sequencer.Pipeline{}, ErrNoAtoms
	}
	return b.withRefresh(PipelineInstall, b.action(StepInstall, b.emerge(atoms))), nil
}

// Uninstall unmerges atoms, then refreshes every list.
func (b *Builder) Uninstall(atoms []string) (sequencer.Pipeline, error) {
	if len(atoms) == 0 {
		return sequencer.Pipeline{}, ErrNoAtoms
	}
	return b.withRefresh(PipelineUninstall, b.action(StepUninstall, b.emerge(atoms, "--unmerge"))), nil
}

// Update updates atoms, or @world when none are given, then refreshes every list.
func (b *Builder) Update(atoms []string) sequencer.Pipeline {
	targets := atoms
	if len(targets) == 0 {
		targets = []string{"@world"}
	}
	return b.withRefresh(PipelineUpdate, b.action(StepUpdate, b.emerge(targets, "-uND")))
}

// ListFor returns the list a step loads.
func ListFor(step string) (snapshot.List, bool) {
	switch step {
	case StepInstalled:
		return snapshot.Installed, true
	case StepAvailable:
		return snapshot.Available, true
	case StepUpdates:
		return snapshot.Updates, true
	default:
		return "", false
	}
}

// ActionCommand returns the command an action pipeline would run first, for
// confirmation prompts.
func ActionCommand(p sequencer.Pipeline) (process.Command, bool) {
	if len(p.Steps) == 0 || !p.Steps[0].Critical || p.Steps[0].Build == nil {
		return nil, false
	}
	req, err := p.Steps[0].Build(nil)
	if err != nil {
		return nil, false
	}
	return req.Command, true
}

func (b *Builder) emerge(targets []string, flags ...string) process.Command {
	cmd := process.Command{b.tools.Emerge, "--ask=n", "--verbose"}
	cmd = append(cmd, flags...)
	return append(cmd, targets...)
}

func (b *Builder) withRefresh(name string, first sequencer.Step) sequencer.Pipeline {
	return sequencer.Pipeline{
		Name:  name,
		Steps: append([]sequencer.Step{first}, b.refreshSteps()...),
	}
}

func (b *Builder) refreshSteps() []sequencer.Step {
	return []sequencer.Step{
		b.listStep(StepInstalled, snapshot.Installed, process.Command{b.tools.Equery, "list", "--installed", "*/*"}, parsers.ParseInstalled, []string{}),
		b.listStep(StepAvailable, snapshot.Available, process.Command{b.tools.Eix, "-c", "--only-names", "*/*"}, parsers.ParseAvailable, []string{}),
		b.updatesStep(),
	}
}

func (b *Builder) updatesStep() sequencer.Step {
	empty := parsers.Updates{Atoms: []string{}, Display: []string{}, Records: []parsers.Update{}}
	return b.listStep(StepUpdates, snapshot.Updates, process.Command{b.tools.Emerge, "-upvND", "@world"}, parsers.ParseUpdates, empty)
}

// listStep reads one list. A benign failure yields empty.
func (b *Builder) listStep(name string, list snapshot.List, cmd process.Command, parse task.Parser, empty any) sequencer.Step {
	return sequencer.Step{
		Name:     name,
		Classify: b.classifier.WithEmpty(empty).Classify,
		Build: func(token task.Token) (task.Request, error) {
			return task.Request{Command: cmd, Timeout: b.timeout, Token: snapshot.From(token)}, nil
		},
		Parse: parse,
		Fold: func(token task.Token, result task.Result) task.Token {
			snap := snapshot.From(token)
			if !result.Succeeded() {
				return snap
			}
			return snap.With(list, result.Payload, b.now())
		},
	}
}

// action is an elevated first step; its failure aborts the pipeline so the
// lists are not refreshed after a failed merge.
func (b *Builder) action(name string, cmd process.Command) sequencer.Step {
	return sequencer.Step{
		Name:     name,
		Critical: true,
		Build: func(token task.Token) (task.Request, error) {
			return task.Request{Command: cmd, Elevate: true, Timeout: b.timeout, Token: snapshot.From(token)}, nil
		},
		Fold: func(token task.Token, _ task.Result) task.Token {
			return snapshot.From(token)
		},
	}
}
