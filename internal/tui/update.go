package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
	"github.com/alexisbeaulieu97/portly/internal/portage"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
	"github.com/alexisbeaulieu97/portly/internal/tui/components"
	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// Update handles incoming messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	// System messages
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		updated, cmd := m.progress.Update(msg)
		if p, ok := updated.(progress.Model); ok {
			m.progress = p
		}
		return m, cmd

	case startRequestMsg:
		return m.startAction(msg.action, nil)

	// Pipeline messages
	case PipelineStartedMsg:
		if msg.Run != m.run {
			return m, nil
		}
		return m, listenCmd(m.msgs, m.done)

	case StartFailedMsg:
		if msg.Run != m.run {
			return m, nil
		}
		m.running = false
		if errors.Is(msg.Error, pkgerrors.ErrBusy) {
			m.status = "Busy: another operation is already in progress"
			return m, nil
		}
		m.status = "Failed to start: " + msg.Error.Error()
		m.appendConsole(msg.Error.Error())
		return m, nil

	case StepStartedMsg:
		if msg.Run != m.run {
			return m, nil
		}
		m.status = fmt.Sprintf("Running %s (%d/%d)", msg.Step, msg.Index+1, m.totalSteps)
		m.steps = m.steps.With(msg.Index, components.StepRunning)
		return m, listenCmd(m.msgs, m.done)

	case LineMsg:
		if msg.Run != m.run {
			return m, nil
		}
		m.appendConsole(msg.Text)
		return m, listenCmd(m.msgs, m.done)

	case LifecycleMsg:
		if msg.Run != m.run {
			return m, nil
		}
		switch msg.Transition {
		case process.Started:
			// Started arrives before the first line of the same process.
			if _, argv, ok := strings.Cut(msg.Detail, ": "); ok {
				m.appendConsole("Executing: " + argv)
			}
		case process.TerminateRequested:
			m.appendConsole("Stopping: " + msg.Detail)
		case process.TerminateForced:
			m.appendConsole("Killed: " + msg.Detail)
		case process.TimedOut:
			m.appendConsole("Timed out: " + msg.Detail)
		}
		return m, listenCmd(m.msgs, m.done)

	case StepResolvedMsg:
		if msg.Run != m.run {
			return m, nil
		}
		m.doneSteps = msg.Outcome.Index + 1
		cmds := []tea.Cmd{listenCmd(m.msgs, m.done), m.progress.SetPercent(m.percent())}
		m.resolveStep(msg.Outcome)
		return m, tea.Batch(cmds...)

	case PipelineDoneMsg:
		if msg.Run != m.run {
			return m, nil
		}
		return m.finishPipeline(msg.Report)

	case CancelRequestedMsg:
		if !msg.Accepted && m.running {
			m.status = "Nothing to cancel yet"
		}
		return m, nil

	case SnapshotSavedMsg:
		if msg.Error != nil {
			m.log.Warn("failed to save snapshot", "error", msg.Error.Error())
			m.status = "Lists updated, but the cache could not be saved: " + msg.Error.Error()
		}
		return m, nil

	// Error messages
	case ErrorMsg:
		m.showError(msg.Title, msg.Message)
		return m, nil

	case ClearErrorMsg:
		m.errorTitle = ""
		m.errorMsg = ""
		m.viewMode = ViewList
		return m, nil
	}

	return m, nil
}

func (m Model) percent() float64 {
	if m.totalSteps == 0 {
		return 0
	}
	return float64(m.doneSteps) / float64(m.totalSteps)
}

// resolveStep applies one step outcome to the lists, console and dialogs.
func (m *Model) resolveStep(outcome sequencer.Outcome) {
	result := outcome.Result
	m.steps = m.steps.With(outcome.Index, stepState(result))
	switch {
	case result.Succeeded():
		if list, ok := portage.ListFor(outcome.Step); ok {
			m.snap = m.snap.With(list, result.Payload, time.Now())
			m.clampCursor()
			m.status = fmt.Sprintf("Loaded %d %s packages", len(m.snap.Items(list)), list)
		} else {
			m.status = fmt.Sprintf("%s finished", outcome.Step)
		}
	case result.Cancelled():
		m.status = fmt.Sprintf("%s cancelled", outcome.Step)
	case result.Failure != nil:
		failure := result.Failure
		m.appendConsole(fmt.Sprintf("%s failed:", outcome.Step), failure.Diagnostic)
		m.status = fmt.Sprintf("%s failed: %s", outcome.Step, failure.Headline())
		if failure.Attention || failure.Fatal() {
			m.showError(fmt.Sprintf("%s needs attention", outcome.Step), failure.Diagnostic)
		}
	}
}

func stepState(result task.Result) components.StepState {
	switch result.Kind {
	case task.KindSuccess:
		return components.StepDone
	case task.KindCancelled:
		return components.StepCancelled
	default:
		return components.StepFailed
	}
}

func (m Model) finishPipeline(report sequencer.Report) (tea.Model, tea.Cmd) {
	m.running = false
	m.snap = snapshot.From(report.Token)
	m.clampCursor()

	switch report.State {
	case sequencer.Complete:
		if failed := len(report.Failed()); failed > 0 {
			m.status = fmt.Sprintf("%s finished with %d failed step(s)", report.Pipeline, failed)
		} else {
			m.status = fmt.Sprintf("%s complete", report.Pipeline)
		}
		if m.action != ActionRefresh && len(report.Failed()) == 0 {
			m.selected = make(map[string]bool)
		}
	default:
		if report.Reason == "cancelled" {
			m.status = fmt.Sprintf("%s cancelled", report.Pipeline)
		} else {
			m.status = fmt.Sprintf("%s aborted: %s", report.Pipeline, report.Reason)
		}
	}
	m.appendConsole(fmt.Sprintf("%s: %s", report.Pipeline, report.State))

	cmds := []tea.Cmd{m.progress.SetPercent(1)}
	if m.store != nil && !m.snap.Empty() {
		cmds = append(cmds, saveSnapshotCmd(m.store, m.snap))
	}
	return m, tea.Batch(cmds...)
}

// handleKeyPress handles keyboard input based on current view mode
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m.quit()
	}
	switch m.viewMode {
	case ViewConfirm:
		return m.handleConfirmKeys(msg)
	case ViewError:
		return m.handleErrorKeys(msg)
	case ViewHelp:
		return m.handleHelpKeys(msg)
	default:
		if m.filtering {
			return m.handleFilterKeys(msg)
		}
		return m.handleListKeys(msg)
	}
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.running && m.runner != nil {
		m.runner.Cancel()
	}
	m.Close()
	return m, tea.Quit
}

// handleListKeys handles keys in list view
func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()

	// Tabs
	case "tab", "right", "l":
		m.tab = (m.tab + 1) % len(snapshot.Lists)
		m.cursor, m.offset = 0, 0
		return m, nil

	case "shift+tab", "left", "h":
		m.tab = (m.tab + len(snapshot.Lists) - 1) % len(snapshot.Lists)
		m.cursor, m.offset = 0, 0
		return m, nil

	case "1", "2", "3":
		m.tab = int(msg.String()[0] - '1')
		m.cursor, m.offset = 0, 0
		return m, nil

	// Navigation
	case "up", "k":
		m.cursor--
		m.clampCursor()
		return m, nil

	case "down", "j":
		m.cursor++
		m.clampCursor()
		return m, nil

	case "pgup":
		m.cursor -= m.listHeight()
		m.clampCursor()
		return m, nil

	case "pgdown":
		m.cursor += m.listHeight()
		m.clampCursor()
		return m, nil

	case "home", "g":
		m.cursor = 0
		m.clampCursor()
		return m, nil

	case "end", "G":
		m.cursor = len(m.visibleItems()) - 1
		m.clampCursor()
		return m, nil

	// Console scrolling
	case "ctrl+u":
		m.viewport.HalfViewUp()
		return m, nil

	case "ctrl+d":
		m.viewport.HalfViewDown()
		return m, nil

	// Selection
	case " ":
		items := m.visibleItems()
		if m.cursor < len(items) {
			key := m.selectionKey(items[m.cursor])
			if m.selected[key] {
				delete(m.selected, key)
			} else {
				m.selected[key] = true
			}
		}
		return m, nil

	case "esc":
		if m.running {
			return m, cancelCmd(m.runner)
		}
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.clampCursor()
			return m, nil
		}
		m.selected = make(map[string]bool)
		return m, nil

	case "/":
		m.filtering = true
		return m, m.filter.Focus()

	// Actions
	case "r":
		return m.startAction(ActionRefresh, nil)

	case "s":
		return m.confirm(ActionSync, nil)

	case "i":
		return m.confirm(ActionInstall, m.selectedItems())

	case "d":
		return m.confirm(ActionUninstall, m.selectedItems())

	case "u":
		var items []string
		if m.List() == snapshot.Updates && m.selectionCount() > 0 {
			items = m.selectedItems()
		}
		return m.confirm(ActionUpdate, items)

	case "c":
		if m.running {
			return m, cancelCmd(m.runner)
		}
		return m, nil

	case "?":
		m.viewMode = ViewHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleFilterKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.filter.SetValue("")
		fallthrough
	case "enter":
		m.filtering = false
		m.filter.Blur()
		m.cursor, m.offset = 0, 0
		m.clampCursor()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.cursor, m.offset = 0, 0
	m.clampCursor()
	return m, cmd
}

// confirm prepares the confirmation dialog for action.
func (m Model) confirm(action Action, items []string) (tea.Model, tea.Cmd) {
	if m.running {
		m.status = "Busy: another operation is already in progress"
		return m, nil
	}

	atoms, skipped := parsers.SelectAtoms(items)
	if len(items) > 0 && len(atoms) == 0 {
		m.status = "No valid package atoms selected"
		return m, nil
	}

	pipeline, err := m.buildPipeline(action, atoms)
	if err != nil {
		m.status = err.Error()
		return m, nil
	}

	command, _ := portage.ActionCommand(pipeline)
	m.confirmAction = action
	m.confirmAtoms = atoms
	m.confirmPipeline = pipeline
	m.confirmCommand = command.String()
	m.confirmMessage = confirmMessage(action, atoms)
	if len(skipped) > 0 {
		m.confirmMessage += fmt.Sprintf("\nSkipping %d entr(ies) without a package atom.", len(skipped))
	}
	m.viewMode = ViewConfirm
	return m, nil
}

func confirmMessage(action Action, atoms []string) string {
	switch action {
	case ActionSync:
		return "Synchronise the Portage repositories?"
	case ActionUpdate:
		if len(atoms) == 0 {
			return "Update @world?"
		}
	}
	verb := strings.ToUpper(string(action[:1])) + string(action[1:])
	if len(atoms) == 1 {
		return fmt.Sprintf("%s %s?", verb, atoms[0])
	}
	return fmt.Sprintf("%s %d packages?", verb, len(atoms))
}

func (m Model) buildPipeline(action Action, atoms []string) (sequencer.Pipeline, error) {
	switch action {
	case ActionRefresh:
		return m.builder.Refresh(), nil
	case ActionSync:
		return m.builder.Sync(), nil
	case ActionInstall:
		return m.builder.Install(atoms)
	case ActionUninstall:
		return m.builder.Uninstall(atoms)
	case ActionUpdate:
		return m.builder.Update(atoms), nil
	default:
		return sequencer.Pipeline{}, fmt.Errorf("unknown action %q", action)
	}
}

// startAction hands a pipeline to the runner.
func (m Model) startAction(action Action, pipeline *sequencer.Pipeline) (tea.Model, tea.Cmd) {
	if m.running {
		m.status = "Busy: another operation is already in progress"
		return m, nil
	}
	if m.runner == nil {
		m.status = "No runner configured"
		return m, nil
	}

	var p sequencer.Pipeline
	if pipeline != nil {
		p = *pipeline
	} else {
		built, err := m.buildPipeline(action, nil)
		if err != nil {
			m.status = err.Error()
			return m, nil
		}
		p = built
	}

	m.run++
	m.running = true
	m.action = action
	m.totalSteps = len(p.Steps)
	m.doneSteps = 0
	names := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		names[i] = step.Name
	}
	m.steps = components.NewStepList(names)
	m.msgs = make(chan tea.Msg, bridgeBuffer)
	m.status = fmt.Sprintf("Starting %s", p.Name)
	m.log.Info("starting pipeline", "pipeline", p.Name)

	return m, tea.Batch(
		m.spinner.Tick,
		m.progress.SetPercent(0),
		startPipelineCmd(m.runner, m.run, action, p, m.snap, m.msgs, m.done),
	)
}

// handleConfirmKeys handles keys in confirmation dialog
func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		action := m.confirmAction
		pipeline := m.confirmPipeline
		m.clearConfirm()
		m.viewMode = ViewList
		return m.startAction(action, &pipeline)

	case "n", "N", "esc", "q":
		m.clearConfirm()
		m.viewMode = ViewList
		m.status = "Cancelled"
		return m, nil
	}
	return m, nil
}

func (m *Model) clearConfirm() {
	m.confirmAction = ""
	m.confirmAtoms = nil
	m.confirmCommand = ""
	m.confirmMessage = ""
	m.confirmPipeline = sequencer.Pipeline{}
}

// handleErrorKeys handles keys in the error dialog
func (m Model) handleErrorKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "x", "esc", "enter", "q":
		m.errorTitle = ""
		m.errorMsg = ""
		m.viewMode = ViewList
	}
	return m, nil
}

// handleHelpKeys handles keys in help view
func (m Model) handleHelpKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "?", "esc", "q":
		m.viewMode = ViewList
	}
	return m, nil
}
